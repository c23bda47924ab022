// Package closure implements the Upward-Closure Scheduler: given a
// just-produced Unlinked Record, it looks up every type name the
// record references, and if that type is found on an already-opened
// element but was not itself going to be scanned, schedules it for
// parsing too.
package closure

import (
	"sync"

	"github.com/cpscan/engine/internal/logging"
	"github.com/cpscan/engine/internal/types"
	"github.com/cpscan/engine/internal/workqueue"
)

// suppressedRoot is the well-known root type never scheduled even when
// unresolved.
const suppressedRoot = "java.lang.Object"

// ElementProbe resolves a classfile resource path against one Classpath
// Element, the collaborator Schedule uses to probe the owning element
// first and, failing that, every other element in final order.
type ElementProbe interface {
	HasResource(elem types.ElementID, classfileResourcePath string) (types.Resource, bool)
}

// Scheduler tracks the run's set of already-seen class names and
// schedules Classfile Units for externally-referenced types.
type Scheduler struct {
	mu      sync.Mutex
	scanned map[string]bool
}

// NewScheduler creates a Scheduler pre-seeded with every included
// classfile's type name, so upward scheduling never re-enqueues an
// already-scheduled included type.
func NewScheduler(preseed []string) *Scheduler {
	s := &Scheduler{scanned: make(map[string]bool, len(preseed))}
	for _, n := range preseed {
		s.scanned[n] = true
	}
	return s
}

// markSeen atomically adds name if absent, returning true iff it was newly
// added.
func (s *Scheduler) markSeen(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scanned[name] {
		return false
	}
	s.scanned[name] = true
	return true
}

// ResourcePath maps a dotted type name to its classfile resource path:
// dotted name becomes slashed name plus ".class".
func ResourcePath(typeName string) string {
	out := make([]byte, 0, len(typeName)+6)
	for i := 0; i < len(typeName); i++ {
		if typeName[i] == '.' {
			out = append(out, '/')
		} else {
			out = append(out, typeName[i])
		}
	}
	out = append(out, ".class"...)
	return string(out)
}

// ReferencedTypeNames collects every type name an Unlinked Record
// references — superclass, implemented interfaces, class annotations,
// method annotations, method-parameter annotations, field annotations —
// deduplicated, with the suppressed root type removed.
func ReferencedTypeNames(rec *types.UnlinkedRecord) []string {
	seen := make(map[string]bool)
	var names []string
	add := func(n string) {
		if n == "" || n == suppressedRoot || seen[n] {
			return
		}
		seen[n] = true
		names = append(names, n)
	}

	add(rec.SuperclassName)
	for _, iface := range rec.Interfaces {
		add(iface)
	}
	for _, a := range rec.Annotations {
		add(a.TypeName)
	}
	for _, f := range rec.Fields {
		for _, a := range f.Annotations {
			add(a.TypeName)
		}
	}
	for _, m := range rec.Methods {
		for _, a := range m.Annotations {
			add(a.TypeName)
		}
		for _, params := range m.ParameterAnnotations {
			for _, a := range params {
				add(a.TypeName)
			}
		}
	}

	return names
}

// Schedule resolves the upward closure for one produced record: for every
// referenced type not already scheduled, probe the owning element first,
// then every element in finalOrder, and enqueue a Classfile Unit with
// isExternalClass=true on whichever element has the resource.
func Schedule(rec *types.UnlinkedRecord, sched *Scheduler, finalOrder []types.ElementID, probe ElementProbe, h workqueue.Handle[types.WorkUnit], log logging.Logger) {
	for _, name := range ReferencedTypeNames(rec) {
		if !sched.markSeen(name) {
			continue
		}

		resourcePath := ResourcePath(name)

		if r, ok := probe.HasResource(rec.OwningElement, resourcePath); ok {
			enqueue(h, rec.OwningElement, r)
			continue
		}

		found := false
		for _, elemID := range finalOrder {
			if elemID == rec.OwningElement {
				continue
			}
			if r, ok := probe.HasResource(elemID, resourcePath); ok {
				enqueue(h, elemID, r)
				found = true
				break
			}
		}
		if !found && log != nil {
			log.Warnf("upward closure: referenced type %s not found on classpath", name)
		}
	}
}

func enqueue(h workqueue.Handle[types.WorkUnit], owner types.ElementID, r types.Resource) {
	h.Add(types.WorkUnit{
		Kind:          types.WorkUnitClassfile,
		OwningElement: owner,
		Resource:      r,
		IsExternal:    true,
	})
}
