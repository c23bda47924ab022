// Package singleton implements the Singleton Map: a concurrent memoized
// factory keyed by string, with per-key once-only construction, shared
// result for concurrent callers, and cached failure.
//
// Grounded on golang.org/x/sync/singleflight (an indirect corpus
// dependency of standardbeagle/lci, promoted here to a direct one) for the
// in-flight-collapsing half of the contract. singleflight.Group forgets a
// key the instant its in-flight call returns, so it alone does not give
// "failure is cached ... for the remainder of the scan" — that half is
// grounded on standardbeagle/lci's internal/cache.MetricsCache shape (a keyed
// cache of immutable entries), kept here as two maps, values and errors,
// guarded by a sync.RWMutex.
package singleton

import (
	"sync"

	"golang.org/x/sync/singleflight"
)

// Map is a concurrent memoized factory: Get(key) constructs the value via
// newInstance exactly once per key; concurrent callers for the same key
// block until construction completes and share the result. A failure is
// cached for the key for the remainder of the Map's lifetime.
type Map[V any] struct {
	group singleflight.Group

	mu     sync.RWMutex
	values map[string]V
	errs   map[string]error
}

func New[V any]() *Map[V] {
	return &Map[V]{
		values: make(map[string]V),
		errs:   make(map[string]error),
	}
}

// Get returns the memoized value for key, constructing it via newInstance
// on first request. If a prior call for key failed, newInstance is not
// retried — the cached failure is returned immediately.
func (m *Map[V]) Get(key string, newInstance func() (V, error)) (V, error) {
	m.mu.RLock()
	if v, ok := m.values[key]; ok {
		m.mu.RUnlock()
		return v, nil
	}
	if err, ok := m.errs[key]; ok {
		m.mu.RUnlock()
		var zero V
		return zero, err
	}
	m.mu.RUnlock()

	result, err, _ := m.group.Do(key, func() (any, error) {
		// Re-check under the group's collapsing: another goroutine may have
		// completed construction for this key between our RLock above and
		// entering Do.
		m.mu.RLock()
		if v, ok := m.values[key]; ok {
			m.mu.RUnlock()
			return v, nil
		}
		if err, ok := m.errs[key]; ok {
			m.mu.RUnlock()
			return nil, err
		}
		m.mu.RUnlock()

		v, err := newInstance()
		m.mu.Lock()
		if err != nil {
			m.errs[key] = err
		} else {
			m.values[key] = v
		}
		m.mu.Unlock()
		return v, err
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return result.(V), nil
}

// Keys returns every key currently memoized with a successful value,
// useful for the final-order traversal to enumerate opened elements.
func (m *Map[V]) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.values))
	for k := range m.values {
		keys = append(keys, k)
	}
	return keys
}
