// Package orderer implements the Classpath Orderer: it turns the
// parent/child graph of opened Classpath Elements into a single stable
// final order, breaking cycles, and implements the Nested-Root Detector
// that stops an outer directory element from descending into a path an
// inner archive element already owns.
//
// Grounded on standardbeagle/lci's arena-of-IDs traversal style (elements
// addressed by integer identity, never by pointer, so a cyclic parent/
// child graph can be walked with a plain visited-set DFS) — the same
// shape as internal/symbollinker's FileID-indexed tables, generalized to
// classpath elements rather than source files.
package orderer

import (
	"sort"
	"strings"

	"github.com/cpscan/engine/internal/types"
)

// Node is the ordering-relevant view of one opened Classpath Element: its
// identity, whether open() skipped it, its parent (or NoElement for a
// toplevel entry), its order index within that parent, and its children
// collected from manifest cross-references during opening.
type Node struct {
	ID       types.ElementID
	Kind     types.ElementKind
	Canonical string
	Skip     bool
	Parent   types.ElementID
	Order    int
	Children []types.ElementID
}

// Order runs two traversals over the opened node set and returns the
// final depth-first order. modules, already filtered by the caller's
// include/exclude + system-module rules, are prepended verbatim ahead of
// the rest of the order.
func Order(nodes map[types.ElementID]*Node, modules []types.ElementID) []types.ElementID {
	toplevel := make([]*Node, 0)
	for _, n := range nodes {
		if n.Parent == types.NoElement {
			toplevel = append(toplevel, n)
		}
	}
	sort.SliceStable(toplevel, func(i, j int) bool { return toplevel[i].Order < toplevel[j].Order })

	for _, n := range nodes {
		sort.SliceStable(n.Children, func(i, j int) bool {
			return nodes[n.Children[i]].Order < nodes[n.Children[j]].Order
		})
	}

	visited := make(map[types.ElementID]bool, len(nodes))
	var final []types.ElementID

	var visit func(id types.ElementID)
	visit = func(id types.ElementID) {
		if visited[id] {
			return
		}
		visited[id] = true
		n, ok := nodes[id]
		if !ok || n.Skip {
			return
		}
		final = append(final, id)
		for _, childID := range n.Children {
			visit(childID)
		}
	}

	for _, n := range toplevel {
		visit(n.ID)
	}

	if len(modules) == 0 {
		return final
	}
	out := make([]types.ElementID, 0, len(modules)+len(final))
	out = append(out, modules...)
	out = append(out, final...)
	return out
}

// ScanModule reports whether a module named name should be scanned:
// system modules are scanned iff (system-modules-enabled AND include
// list empty) OR (specifically included AND not excluded); non-system
// modules are scanned iff (included AND not excluded).
func ScanModule(name string, isSystem, systemModulesEnabled bool, include, exclude []string) bool {
	if matches(exclude, name) {
		return false
	}
	if isSystem {
		return (systemModulesEnabled && len(include) == 0) || matches(include, name)
	}
	return matches(include, name)
}

func matches(patterns []string, name string) bool {
	for _, p := range patterns {
		if p == name {
			return true
		}
	}
	return false
}

// DetectNestedRoots runs over one pass (directories or archives; callers
// run this once per kind, never mixing the two, and
// never for modules). Elements must already be sorted by canonical path;
// SortByCanonical below does that. For every element whose canonical path
// is a prefix of a later one's (joined by '/' or '!', with no further '!'
// in the suffix), the suffix plus a trailing '/' is recorded as a
// nested-root prefix on the outer element.
func DetectNestedRoots(nodesByCanonical []*Node) map[types.ElementID][]string {
	prefixes := make(map[types.ElementID][]string)

	for i := 0; i < len(nodesByCanonical); i++ {
		outer := nodesByCanonical[i]
		for j := i + 1; j < len(nodesByCanonical); j++ {
			inner := nodesByCanonical[j]
			suffix, sep, ok := stripRootPrefix(outer.Canonical, inner.Canonical)
			if !ok {
				break // lexicographic order guarantees no further matches
			}
			if strings.Contains(suffix, "!") {
				continue
			}
			_ = sep
			prefixes[outer.ID] = append(prefixes[outer.ID], suffix+"/")
		}
	}
	return prefixes
}

// stripRootPrefix reports whether outer+sep is a prefix of inner, for
// sep in {'/', '!'}, returning the suffix after outer+sep.
func stripRootPrefix(outer, inner string) (suffix string, sep byte, ok bool) {
	for _, s := range []byte{'/', '!'} {
		prefix := outer + string(s)
		if strings.HasPrefix(inner, prefix) {
			return strings.TrimPrefix(inner, prefix), s, true
		}
	}
	return "", 0, false
}

// SortByCanonical returns nodes ordered lexicographically by canonical
// path, the precondition DetectNestedRoots relies on.
func SortByCanonical(nodes []*Node) []*Node {
	out := append([]*Node(nil), nodes...)
	sort.Slice(out, func(i, j int) bool { return out[i].Canonical < out[j].Canonical })
	return out
}
