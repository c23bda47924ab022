// Package masker enforces first-wins semantics: given the final
// classpath order, the first element to offer a given logical classfile
// path wins; every later element's copy of that path is dropped before
// the classfile-scan phase ever sees it.
package masker

import "sync"

// Seen is the shared already-seen logical-path set threaded through the
// ordered elements during masking. It is mutated by one goroutine at a
// time in final-order sequence, but guarded by a mutex so callers that
// mask concurrently (e.g. tests exercising several elements independently)
// still observe first-wins correctly.
type Seen struct {
	mu    sync.Mutex
	paths map[string]struct{}
}

func NewSeen() *Seen {
	return &Seen{paths: make(map[string]struct{})}
}

// Mask filters classfileResources down to those whose logical path has not
// already been claimed by an earlier element, then records every surviving
// path as claimed. Callers must invoke Mask in final classpath order,
// passing the shared already-seen logical paths set element by element,
// for first-wins to hold.
//
// Mask does not check whether a path names a classfile; Element.MaskClassfiles
// passes only ClassfileResources, so non-classfile resources never reach it.
func (s *Seen) Mask(classfileResources []string) (kept []string, masked []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept = make([]string, 0, len(classfileResources))
	for _, p := range classfileResources {
		if _, dup := s.paths[p]; dup {
			masked = append(masked, p)
			continue
		}
		s.paths[p] = struct{}{}
		kept = append(kept, p)
	}
	return kept, masked
}

// Has reports whether a logical path has already been claimed, without
// mutating the set.
func (s *Seen) Has(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.paths[path]
	return ok
}
