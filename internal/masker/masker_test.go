package masker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaskFirstWins(t *testing.T) {
	seen := NewSeen()

	kept1, masked1 := seen.Mask([]string{"com/x/T.class", "com/x/U.class"})
	require.Empty(t, masked1)
	assert.Equal(t, []string{"com/x/T.class", "com/x/U.class"}, kept1)

	kept2, masked2 := seen.Mask([]string{"com/x/T.class", "com/x/V.class"})
	assert.Equal(t, []string{"com/x/V.class"}, kept2)
	assert.Equal(t, []string{"com/x/T.class"}, masked2)
}

func TestSeenHasDoesNotMutate(t *testing.T) {
	seen := NewSeen()
	assert.False(t, seen.Has("a/B.class"))
	kept, _ := seen.Mask([]string{"a/B.class"})
	assert.Equal(t, []string{"a/B.class"}, kept, "Has must not have claimed the path")
	assert.True(t, seen.Has("a/B.class"))
}
