package orderer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cpscan/engine/internal/types"
)

func TestOrderTopLevelStableByIndex(t *testing.T) {
	nodes := map[types.ElementID]*Node{
		0: {ID: 0, Parent: types.NoElement, Order: 1},
		1: {ID: 1, Parent: types.NoElement, Order: 0},
	}
	got := Order(nodes, nil)
	require.Equal(t, []types.ElementID{1, 0}, got)
}

func TestOrderDepthFirstWithChildren(t *testing.T) {
	nodes := map[types.ElementID]*Node{
		0: {ID: 0, Parent: types.NoElement, Order: 0, Children: []types.ElementID{1, 2}},
		1: {ID: 1, Parent: 0, Order: 0},
		2: {ID: 2, Parent: 0, Order: 1},
	}
	got := Order(nodes, nil)
	assert.Equal(t, []types.ElementID{0, 1, 2}, got)
}

func TestOrderBreaksCycles(t *testing.T) {
	// Two archives, each listing the other as a Class-Path child.
	nodes := map[types.ElementID]*Node{
		0: {ID: 0, Parent: types.NoElement, Order: 0, Children: []types.ElementID{1}},
		1: {ID: 1, Parent: types.NoElement, Order: 1, Children: []types.ElementID{0}},
	}
	got := Order(nodes, nil)
	assert.Equal(t, []types.ElementID{0, 1}, got)
}

func TestOrderSkipsInvalidElements(t *testing.T) {
	nodes := map[types.ElementID]*Node{
		0: {ID: 0, Parent: types.NoElement, Order: 0, Skip: true},
		1: {ID: 1, Parent: types.NoElement, Order: 1},
	}
	got := Order(nodes, nil)
	assert.Equal(t, []types.ElementID{1}, got)
}

func TestOrderPrependsModules(t *testing.T) {
	nodes := map[types.ElementID]*Node{
		0: {ID: 0, Parent: types.NoElement, Order: 0},
	}
	got := Order(nodes, []types.ElementID{10, 11})
	assert.Equal(t, []types.ElementID{10, 11, 0}, got)
}

func TestScanModuleRules(t *testing.T) {
	assert.True(t, ScanModule("java.base", true, true, nil, nil))
	assert.False(t, ScanModule("java.base", true, false, nil, nil))
	assert.True(t, ScanModule("java.sql", true, false, []string{"java.sql"}, nil))
	assert.False(t, ScanModule("java.sql", true, false, []string{"java.sql"}, []string{"java.sql"}))
	assert.False(t, ScanModule("my.mod", false, true, nil, nil))
	assert.True(t, ScanModule("my.mod", false, true, []string{"my.mod"}, nil))
}

func TestDetectNestedRootsDirectoryOverArchive(t *testing.T) {
	nodes := []*Node{
		{ID: 0, Canonical: "/lib"},
		{ID: 1, Canonical: "/lib/sub.jar"},
	}
	sorted := SortByCanonical(nodes)
	prefixes := DetectNestedRoots(sorted)
	assert.Equal(t, []string{"sub.jar/"}, prefixes[0])
	assert.Empty(t, prefixes[1])
}

func TestDetectNestedRootsStopsAtFirstNonMatch(t *testing.T) {
	nodes := []*Node{
		{ID: 0, Canonical: "/a"},
		{ID: 1, Canonical: "/a/b.jar"},
		{ID: 2, Canonical: "/z"},
	}
	prefixes := DetectNestedRoots(SortByCanonical(nodes))
	assert.Equal(t, []string{"b.jar/"}, prefixes[0])
	assert.Empty(t, prefixes[2])
}
