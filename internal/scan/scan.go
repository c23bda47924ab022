// Package scan is the Scan Engine orchestration: it wires the
// Interruption Monitor, Work Queue, Singleton Map, Classpath Element,
// Classpath Orderer, Nested-Root Detector, Masker, Classfile Parser,
// Upward-Closure Scheduler, and Linker into a single end-to-end pipeline.
package scan

import (
	"context"
	"sync"

	"github.com/cpscan/engine/internal/classfile"
	"github.com/cpscan/engine/internal/closure"
	"github.com/cpscan/engine/internal/config"
	"github.com/cpscan/engine/internal/element"
	cperrors "github.com/cpscan/engine/internal/errors"
	"github.com/cpscan/engine/internal/linker"
	"github.com/cpscan/engine/internal/logging"
	"github.com/cpscan/engine/internal/masker"
	"github.com/cpscan/engine/internal/monitor"
	"github.com/cpscan/engine/internal/orderer"
	"github.com/cpscan/engine/internal/types"
	"github.com/cpscan/engine/internal/workqueue"
)

// Result is the scan's output contract: the final element order, context
// class-loaders, the three linked mappings (absent when
// PerformScan is false), the file→last-modified record, and the Nested
// Archive Handler for later resource reads.
type Result struct {
	FinalOrder          []string
	ContextClassLoaders []string
	Graph               *types.TypeGraph
	FileModTimes        map[string]int64
	NestedArchives      *element.NestedArchiveHandler
}

// Engine runs scans. Discoverer is the external classpath-discovery
// collaborator; Log is the hierarchical logger collaborator.
type Engine struct {
	Discoverer ClasspathDiscoverer
	Log        logging.Logger
}

func New(discoverer ClasspathDiscoverer, log logging.Logger) *Engine {
	if log == nil {
		log = logging.NewNop()
	}
	return &Engine{Discoverer: discoverer, Log: log}
}

// Scan runs one full scan end to end. Each Work Queue phase (opener, path
// scan, classfile scan) sizes its parallelism with
// workqueue.Parallelism over that phase's initial unit count.
func (e *Engine) Scan(ctx context.Context, spec config.ScanSpec) (*Result, error) {
	mon := monitor.New(ctx)
	defer mon.Close()

	disc := e.Discoverer
	if len(spec.ClasspathOverride) > 0 {
		disc = staticDiscoverer{result: DiscoveryResult{RawPaths: spec.ClasspathOverride}}
	}
	discovery, err := disc.Discover(mon.Context())
	if err != nil {
		return nil, cperrors.New(cperrors.KindWorkerException, "", err)
	}

	reg := element.NewRegistry()
	nah := element.NewNestedArchiveHandler()
	sink := element.NewModulePathSink()

	if err := e.runOpenerPhase(mon, reg, nah, sink, discovery); err != nil {
		nah.Close(true)
		return nil, err
	}
	spec.ModulePathInfo = append(spec.ModulePathInfo, sink.Entries()...)

	nodes := buildOrderNodes(reg)
	moduleIDs := e.openModules(reg, discovery, spec)
	finalOrder := orderer.Order(nodes, moduleIDs)

	applyNestedRootDetection(reg, finalOrder)

	resourceFilter := buildResourceFilter(spec)
	classFilter := buildClassFilter(spec)
	if err := e.runPathScanPhase(mon, reg, finalOrder, resourceFilter, classFilter); err != nil {
		nah.Close(true)
		return nil, err
	}

	seen := masker.NewSeen()
	for _, id := range finalOrder {
		if el, ok := reg.Get(id); ok && !el.Skip {
			el.MaskClassfiles(seen)
		}
	}

	var graph *types.TypeGraph
	fileModTimes := collectFileModTimes(reg, finalOrder)

	if spec.PerformScan {
		graph, err = e.runClassfileScanPhase(mon, reg, finalOrder, spec)
		if err != nil {
			nah.Close(true)
			return nil, err
		}
	}

	if spec.RemoveTemporaryFilesAfterScan {
		nah.Close(true)
	}

	return &Result{
		FinalOrder:          stringifyOrder(reg, finalOrder),
		ContextClassLoaders: discovery.ContextClassLoaders,
		Graph:               graph,
		FileModTimes:        fileModTimes,
		NestedArchives:      nah,
	}, nil
}

func (e *Engine) runOpenerPhase(mon *monitor.Monitor, reg *element.Registry, nah *element.NestedArchiveHandler, sink *element.ModulePathSink, discovery DiscoveryResult) error {
	initial := make([]types.WorkUnit, len(discovery.RawPaths))
	for i, p := range discovery.RawPaths {
		initial[i] = types.WorkUnit{Kind: types.WorkUnitOpener, RawPath: p, ParentElement: types.NoElement, OrderIndex: i}
	}

	processor := func(ctx context.Context, unit types.WorkUnit, h workqueue.Handle[types.WorkUnit]) error {
		classLoader := discovery.ClassLoaderOf[unit.RawPath]
		_, err := element.Open(unit.RawPath, unit.ParentElement, unit.OrderIndex, classLoader, reg, nah, sink, h, e.Log)
		return err
	}

	return workqueue.Run(mon.Context(), mon, workqueue.Parallelism(len(initial)), initial, processor)
}

func (e *Engine) runPathScanPhase(mon *monitor.Monitor, reg *element.Registry, finalOrder []types.ElementID, resourceFilter, classFilter element.IncludeExclude) error {
	type scanUnit struct{ id types.ElementID }
	initial := make([]scanUnit, 0, len(finalOrder))
	for _, id := range finalOrder {
		initial = append(initial, scanUnit{id: id})
	}

	processor := func(ctx context.Context, unit scanUnit, h workqueue.Handle[scanUnit]) error {
		el, ok := reg.Get(unit.id)
		if !ok || el.Skip {
			return nil
		}
		if err := el.ScanPaths(resourceFilter, classFilter); err != nil {
			e.Log.Warnf("path scan failed for %s: %v", el.Canonical, err)
		}
		return nil
	}

	return workqueue.Run(mon.Context(), mon, workqueue.Parallelism(len(initial)), initial, processor)
}

func (e *Engine) runClassfileScanPhase(mon *monitor.Monitor, reg *element.Registry, finalOrder []types.ElementID, spec config.ScanSpec) (*types.TypeGraph, error) {
	initial := make([]types.WorkUnit, 0)
	preseed := make([]string, 0)
	for _, id := range finalOrder {
		el, ok := reg.Get(id)
		if !ok || el.Skip {
			continue
		}
		for _, r := range el.ClassfileResources {
			initial = append(initial, types.WorkUnit{Kind: types.WorkUnitClassfile, OwningElement: id, Resource: r, IsExternal: false})
			preseed = append(preseed, resourcePathToTypeName(r.LogicalPath))
		}
	}

	sched := closure.NewScheduler(preseed)
	probe := registryProbe{reg: reg}

	var recMu sync.Mutex
	var records []*types.UnlinkedRecord

	processor := func(ctx context.Context, unit types.WorkUnit, h workqueue.Handle[types.WorkUnit]) error {
		rc, err := unit.Resource.Open()
		if err != nil {
			e.Log.Warnf("resource open failed for %s: %v", unit.Resource.LogicalPath, err)
			return nil
		}
		defer rc.Close()

		rec, err := classfile.Parse(rc, unit.OwningElement, unit.IsExternal)
		if err != nil {
			e.Log.Warnf("classfile parse failed for %s: %v", unit.Resource.LogicalPath, err)
			return nil
		}

		recMu.Lock()
		records = append(records, rec)
		recMu.Unlock()

		if spec.ExtendScanningUpwardsToExternalClasses && !rec.IsModuleInfo {
			closure.Schedule(rec, sched, finalOrder, probe, h, e.Log)
		}
		return nil
	}

	if err := workqueue.Run(mon.Context(), mon, workqueue.Parallelism(len(initial)), initial, processor); err != nil {
		return nil, err
	}

	return linker.NewEngine().Link(records), nil
}

// openModules opens Module elements per the include/exclude and
// system-module rules, returning them in discovery order.
func (e *Engine) openModules(reg *element.Registry, discovery DiscoveryResult, spec config.ScanSpec) []types.ElementID {
	if !spec.ScanModules {
		return nil
	}
	var ids []types.ElementID
	for _, name := range discovery.SystemModules {
		if orderer.ScanModule(name, true, spec.EnableSystemJarsAndModules, spec.IncludeModules, spec.ExcludeModules) {
			ids = append(ids, reg.OpenModule(name).ID)
		}
	}
	for _, name := range discovery.NonSystemModules {
		if orderer.ScanModule(name, false, spec.EnableSystemJarsAndModules, spec.IncludeModules, spec.ExcludeModules) {
			ids = append(ids, reg.OpenModule(name).ID)
		}
	}
	return ids
}

func buildOrderNodes(reg *element.Registry) map[types.ElementID]*orderer.Node {
	byID := reg.ByID()
	nodes := make(map[types.ElementID]*orderer.Node, len(byID))
	for id, el := range byID {
		if el.Kind == types.ElementModule {
			continue // modules are prepended separately, not DFS-ordered
		}
		nodes[id] = &orderer.Node{
			ID: id, Kind: el.Kind, Canonical: el.Canonical, Skip: el.Skip,
			Parent: el.Parent, Order: el.Order, Children: el.Children,
		}
	}
	return nodes
}

func applyNestedRootDetection(reg *element.Registry, finalOrder []types.ElementID) {
	var nodes []*orderer.Node
	for _, id := range finalOrder {
		el, ok := reg.Get(id)
		if !ok {
			continue
		}
		switch el.Kind {
		case types.ElementDirectory, types.ElementArchive:
			nodes = append(nodes, &orderer.Node{ID: id, Canonical: el.Canonical})
		}
	}

	prefixes := orderer.DetectNestedRoots(orderer.SortByCanonical(nodes))
	for id, prefixList := range prefixes {
		if el, ok := reg.Get(id); ok {
			el.NestedRootPrefixes = append(el.NestedRootPrefixes, prefixList...)
		}
	}
}

func collectFileModTimes(reg *element.Registry, finalOrder []types.ElementID) map[string]int64 {
	out := make(map[string]int64)
	for _, id := range finalOrder {
		el, ok := reg.Get(id)
		if !ok {
			continue
		}
		for path, t := range el.FileModTimes {
			out[el.Canonical+"!"+path] = t
		}
	}
	return out
}

func stringifyOrder(reg *element.Registry, finalOrder []types.ElementID) []string {
	out := make([]string, 0, len(finalOrder))
	for _, id := range finalOrder {
		if el, ok := reg.Get(id); ok {
			out = append(out, el.Canonical)
		}
	}
	return out
}

func resourcePathToTypeName(logicalPath string) string {
	name := logicalPath
	if len(name) > 6 && name[len(name)-6:] == ".class" {
		name = name[:len(name)-6]
	}
	out := []byte(name)
	for i := range out {
		if out[i] == '/' {
			out[i] = '.'
		}
	}
	return string(out)
}

type registryProbe struct{ reg *element.Registry }

func (p registryProbe) HasResource(elem types.ElementID, path string) (types.Resource, bool) {
	el, ok := p.reg.Get(elem)
	if !ok {
		return types.Resource{}, false
	}
	return el.GetResource(path)
}
