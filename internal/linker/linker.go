// Package linker implements the Linker: it joins the collected Unlinked
// Records of one scan into a TypeGraph, resolving each referenced name
// against a class-name table and creating placeholder records for names
// that were never themselves scanned.
//
// Grounded on standardbeagle/lci's internal/symbollinker.SymbolLinkerEngine: a
// single engine instance holding name-keyed tables, mutated during one
// serial link phase, never concurrently — a thread-unsafe-by-design
// single-writer phase, applied to classfile types instead of source
// symbols.
package linker

import (
	"github.com/cpscan/engine/internal/types"
)

// Engine links Unlinked Records into a TypeGraph. It is not safe for
// concurrent use: the link phase runs after the classfile-scan work queue
// has fully drained, serially, by the scan's orchestrating goroutine.
type Engine struct {
	graph *types.TypeGraph
}

func NewEngine() *Engine {
	return &Engine{graph: types.NewTypeGraph()}
}

// Link resolves every record in records into e's graph and returns it.
// Call once, after all records for a scan have been collected.
func (e *Engine) Link(records []*types.UnlinkedRecord) *types.TypeGraph {
	for _, rec := range records {
		if rec.IsModuleInfo {
			continue
		}
		e.linkClass(rec)
	}
	for _, rec := range records {
		if rec.IsModuleInfo {
			e.linkModule(rec)
		}
	}
	return e.graph
}

func (e *Engine) linkClass(rec *types.UnlinkedRecord) {
	info := e.classInfo(rec.TypeName)
	info.Modifiers = rec.Modifiers
	info.Annotations = rec.Annotations
	info.Fields = rec.Fields
	info.Methods = rec.Methods
	info.IsExternalClass = rec.IsExternalClass
	info.IsPlaceholder = false

	if rec.SuperclassName != "" {
		super := e.classInfo(rec.SuperclassName)
		info.Superclass = super
		super.SubclassesOf = append(super.SubclassesOf, info)
	}
	for _, ifaceName := range rec.Interfaces {
		iface := e.classInfo(ifaceName)
		info.Interfaces = append(info.Interfaces, iface)
	}

	pkg := e.packageInfo(types.PackageName(rec.TypeName))
	info.Package = pkg
	pkg.Classes = append(pkg.Classes, info)
}

// classInfo returns the ClassInfo for name, creating a placeholder on
// demand if this is the first reference to it.
func (e *Engine) classInfo(name string) *types.ClassInfo {
	if info, ok := e.graph.ClassesByName[name]; ok {
		return info
	}
	info := &types.ClassInfo{Name: name, IsPlaceholder: true}
	e.graph.ClassesByName[name] = info
	return info
}

func (e *Engine) packageInfo(name string) *types.PackageInfo {
	if pkg, ok := e.graph.PackagesByName[name]; ok {
		return pkg
	}
	pkg := &types.PackageInfo{Name: name}
	e.graph.PackagesByName[name] = pkg
	return pkg
}

func (e *Engine) linkModule(rec *types.UnlinkedRecord) {
	mod := &types.ModuleInfo{Name: rec.ModuleName, Directives: rec.Directives}
	for _, d := range rec.Directives {
		if d.Kind != "exports" {
			continue
		}
		mod.Packages = append(mod.Packages, e.packageInfo(d.Target))
	}
	e.graph.ModulesByName[rec.ModuleName] = mod
}
