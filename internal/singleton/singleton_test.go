package singleton

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetConstructsOncePerKey(t *testing.T) {
	m := New[int]()
	var calls atomic.Int32

	newInstance := func() (int, error) {
		calls.Add(1)
		return 42, nil
	}

	v1, err := m.Get("a", newInstance)
	require.NoError(t, err)
	v2, err := m.Get("a", newInstance)
	require.NoError(t, err)

	assert.Equal(t, 42, v1)
	assert.Equal(t, 42, v2)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGetCachesFailure(t *testing.T) {
	m := New[int]()
	var calls atomic.Int32
	wantErr := errors.New("construction failed")

	newInstance := func() (int, error) {
		calls.Add(1)
		return 0, wantErr
	}

	_, err1 := m.Get("a", newInstance)
	_, err2 := m.Get("a", newInstance)

	assert.Equal(t, wantErr, err1)
	assert.Equal(t, wantErr, err2)
	assert.Equal(t, int32(1), calls.Load())
}

func TestConcurrentGetCollapsesToOneConstruction(t *testing.T) {
	m := New[int]()
	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})

	newInstance := func() (int, error) {
		calls.Add(1)
		close(started)
		<-release
		return 7, nil
	}

	var wg sync.WaitGroup
	results := make([]int, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := m.Get("shared", newInstance)
			require.NoError(t, err)
			results[i] = v
		}(i)
	}

	<-started
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, v := range results {
		assert.Equal(t, 7, v)
	}
}

func TestKeysListsSuccessfulEntries(t *testing.T) {
	m := New[int]()
	_, _ = m.Get("a", func() (int, error) { return 1, nil })
	_, _ = m.Get("b", func() (int, error) { return 0, errors.New("fail") })

	keys := m.Keys()
	assert.Equal(t, []string{"a"}, keys)
}
