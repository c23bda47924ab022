// Package element implements the Classpath Element: a tagged
// {Directory, Archive, Module} handle with open(), scanPaths(),
// getResource(), and maskClassfiles(), plus the Nested Archive Handler
// that owns archive-within-archive extraction (archive_nested.go in this
// package).
//
// Grounded on standardbeagle/lci's pkg/pathutil conventions (reused directly via
// internal/cpath) for path handling, and on archive/zip (stdlib; no corpus
// or ecosystem dependency reads JAR/ZIP central directories — see
// DESIGN.md) for archive content and manifest access.
package element

import (
	"archive/zip"
	"bufio"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/cpscan/engine/internal/cpath"
	cperrors "github.com/cpscan/engine/internal/errors"
	"github.com/cpscan/engine/internal/logging"
	"github.com/cpscan/engine/internal/singleton"
	"github.com/cpscan/engine/internal/types"
	"github.com/cpscan/engine/internal/workqueue"
)

// Element is the polymorphic Classpath Element handle. open() sets its
// identity fields in the worker that opened it; Children grows under the
// Registry's mutex as child elements are opened; NestedRootPrefixes is set
// serially before the path scan; Resources, ClassfileResources and
// FileModTimes are filled by the one path-scan unit for this element; and
// ClassfileResources is rewritten once more during masking.
type Element struct {
	ID         types.ElementID
	Kind       types.ElementKind
	Canonical  string // canonical identity: path, URL, or module name
	InnerChain []string
	Remote     bool

	Skip        bool
	ClassLoader string // opaque context carried from discovery, lookup-only

	Parent   types.ElementID
	Order    int
	Children []types.ElementID

	NestedRootPrefixes []string

	Resources           []types.Resource // whitelistedResources
	ClassfileResources  []types.Resource // whitelistedClassfileResources, pre-mask
	FileModTimes        map[string]int64

	archivePath string // resolved filesystem path for an Archive element (after nested-archive expansion)
}

// IncludeExclude is the package/resource-path pattern filter applied
// during scanPaths. Patterns are doublestar globs.
type IncludeExclude struct {
	Include []string
	Exclude []string
}

// Matches reports whether logicalPath passes the include/exclude set: an
// empty include list means "everything included"; exclude always wins.
func (f IncludeExclude) Matches(logicalPath string) bool {
	for _, pat := range f.Exclude {
		if ok, _ := doublestar.Match(pat, logicalPath); ok {
			return false
		}
	}
	if len(f.Include) == 0 {
		return true
	}
	for _, pat := range f.Include {
		if ok, _ := doublestar.Match(pat, logicalPath); ok {
			return true
		}
	}
	return false
}

// Registry is the Singleton Map specialized to Classpath Elements, keyed
// by canonical identity.
type Registry struct {
	byIdentity *singleton.Map[*Element]

	mu      sync.Mutex
	nextID  types.ElementID
	byID    map[types.ElementID]*Element
}

func NewRegistry() *Registry {
	return &Registry{
		byIdentity: singleton.New[*Element](),
		byID:       make(map[types.ElementID]*Element),
	}
}

func (r *Registry) allocID() types.ElementID {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextID
	r.nextID++
	return id
}

func (r *Registry) register(e *Element) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[e.ID] = e
}

// ByID returns every registered element, for the ordering/nested-root/
// masking phases that iterate the whole opened set.
func (r *Registry) ByID() map[types.ElementID]*Element {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[types.ElementID]*Element, len(r.byID))
	for k, v := range r.byID {
		out[k] = v
	}
	return out
}

// Get returns the element registered under id, if any.
func (r *Registry) Get(id types.ElementID) (*Element, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byID[id]
	return e, ok
}

// AddChild records child as one of parent's manifest cross-reference
// children, used by the Classpath Orderer's DFS.
func (r *Registry) AddChild(parent, child types.ElementID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.byID[parent]; ok {
		p.Children = append(p.Children, child)
	}
}

// OpenModule registers a Module element, the variant not reached through
// Open's filesystem/archive path-parsing grammar.
func (r *Registry) OpenModule(name string) *Element {
	e, _ := r.byIdentity.Get("module:"+name, func() (*Element, error) {
		return newElement(r, types.ElementModule, name, nil, false), nil
	})
	return e
}

// ModulePathSink accumulates Add-Exports/Add-Opens directives discovered
// in archive manifests, appended with the sentinel "=ALL-UNNAMED".
type ModulePathSink struct {
	mu      sync.Mutex
	entries []string
}

func NewModulePathSink() *ModulePathSink { return &ModulePathSink{} }

func (s *ModulePathSink) Add(entries ...string) {
	if len(entries) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entries...)
}

func (s *ModulePathSink) Entries() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.entries...)
}

// Open implements the open() algorithm for one classpath entry. raw is the
// classpath entry string as discovered; parent/order locate it within the
// opener graph (types.NoElement and the entry's classpath position for a
// toplevel entry).
func Open(
	raw string,
	parent types.ElementID,
	order int,
	classLoader string,
	reg *Registry,
	nah *NestedArchiveHandler,
	sink *ModulePathSink,
	h workqueue.Handle[types.WorkUnit],
	log logging.Logger,
) (*Element, error) {
	parsed := cpath.Parse(raw)

	if parsed.Remote {
		return openWith(parsed.Base, func() (*Element, error) {
			e := newElement(reg, types.ElementArchive, parsed.Base, nil, true)
			e.Remote = true
			e.Parent = parent
			e.Order = order
			e.ClassLoader = classLoader
			if parent != types.NoElement {
				reg.AddChild(parent, e.ID)
			}
			return e, nil
		}, reg)
	}

	base := parsed.Base
	canonical, err := cpath.Canonicalize(base)
	if err != nil {
		return skippedElement(reg, types.ElementDirectory, base, parsed.InnerChain, err, log), nil
	}
	identity := cpath.Identity(canonical, parsed.InnerChain)

	return openWith(identity, func() (*Element, error) {
		return buildElement(canonical, parsed.InnerChain, parent, order, classLoader, reg, nah, sink, h, log)
	}, reg)
}

func openWith(identity string, build func() (*Element, error), reg *Registry) (*Element, error) {
	return reg.byIdentity.Get(identity, build)
}

func newElement(reg *Registry, kind types.ElementKind, canonical string, innerChain []string, remote bool) *Element {
	e := &Element{
		ID:           reg.allocID(),
		Kind:         kind,
		Canonical:    canonical,
		InnerChain:   innerChain,
		Remote:       remote,
		Parent:       types.NoElement,
		FileModTimes: make(map[string]int64),
	}
	reg.register(e)
	return e
}

func skippedElement(reg *Registry, kind types.ElementKind, canonical string, innerChain []string, cause error, log logging.Logger) *Element {
	e := newElement(reg, kind, canonical, innerChain, false)
	e.Skip = true
	if log != nil {
		log.Warnf("skipping classpath element %s: %v", canonical, cause)
	}
	return e
}

// buildElement stats the canonical filesystem base, classifies it as a
// directory or archive, and for an archive opens it and reads its
// manifest.
func buildElement(canonical string, innerChain []string, parent types.ElementID, order int, classLoader string, reg *Registry, nah *NestedArchiveHandler, sink *ModulePathSink, h workqueue.Handle[types.WorkUnit], log logging.Logger) (*Element, error) {
	info, err := os.Stat(canonical)
	if err != nil {
		return skippedElement(reg, types.ElementDirectory, canonical, innerChain, err, log), nil
	}

	isArchiveMarker := len(innerChain) > 0 || hasArchiveExtension(canonical)

	var kind types.ElementKind
	switch {
	case info.Mode().IsRegular() || isArchiveMarker:
		kind = types.ElementArchive
	case info.IsDir():
		kind = types.ElementDirectory
	default:
		return skippedElement(reg, types.ElementDirectory, canonical, innerChain, cperrors.New(cperrors.KindInvalidElement, canonical, os.ErrInvalid), log), nil
	}

	e := newElement(reg, kind, canonical, innerChain, false)
	e.Parent = parent
	e.Order = order
	e.ClassLoader = classLoader
	if parent != types.NoElement {
		reg.AddChild(parent, e.ID)
	}

	if kind == types.ElementDirectory {
		return e, nil
	}

	archivePath := canonical
	if len(innerChain) > 0 {
		resolved, err := nah.Expand(canonical, innerChain)
		if err != nil {
			e.Skip = true
			if log != nil {
				log.Warnf("nested archive expansion failed for %s: %v", canonical, err)
			}
			return e, nil
		}
		archivePath = resolved
	}
	e.archivePath = archivePath

	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		e.Skip = true
		if log != nil {
			log.Warnf("archive open failed for %s: %v", archivePath, err)
		}
		return e, nil
	}
	defer zr.Close()

	if err := processManifest(zr, canonical, e, sink, h, log); err != nil {
		if log != nil {
			log.Warnf("manifest read failed for %s: %v", archivePath, err)
		}
	}

	return e, nil
}

func hasArchiveExtension(p string) bool {
	ext := strings.ToLower(filepath.Ext(p))
	return ext == ".jar" || ext == ".zip" || ext == ".war" || ext == ".ear"
}

// processManifest turns a JAR manifest's Class-Path cross references into
// child opener units, and its Add-Exports/Add-Opens entries into
// module-path info entries.
func processManifest(zr *zip.ReadCloser, archiveCanonical string, e *Element, sink *ModulePathSink, h workqueue.Handle[types.WorkUnit], log logging.Logger) error {
	var mf *zip.File
	for _, f := range zr.File {
		if strings.EqualFold(f.Name, "META-INF/MANIFEST.MF") {
			mf = f
			break
		}
	}
	if mf == nil {
		return nil
	}

	rc, err := mf.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	attrs, err := parseManifestAttributes(rc)
	if err != nil {
		return err
	}

	archiveDir := filepath.Dir(archiveCanonical)

	if cp, ok := attrs["Class-Path"]; ok {
		tokens := strings.Fields(cp)
		for i, tok := range tokens {
			childRaw := filepath.ToSlash(filepath.Join(archiveDir, tok))
			h.Add(types.WorkUnit{
				Kind:          types.WorkUnitOpener,
				RawPath:       childRaw,
				ParentElement: e.ID,
				OrderIndex:    i,
			})
		}
	}

	if exports, ok := attrs["Add-Exports"]; ok {
		for _, tok := range strings.Fields(exports) {
			sink.Add(tok + "=ALL-UNNAMED")
		}
	}
	if opens, ok := attrs["Add-Opens"]; ok {
		for _, tok := range strings.Fields(opens) {
			sink.Add(tok + "=ALL-UNNAMED")
		}
	}

	return nil
}

// parseManifestAttributes parses the JAR manifest's main-section key:value
// lines, honoring its 72-byte continuation-line convention (a line
// beginning with a single space continues the previous value).
func parseManifestAttributes(r io.Reader) (map[string]string, error) {
	attrs := make(map[string]string)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var lastKey string
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, " ") && lastKey != "" {
			attrs[lastKey] += strings.TrimPrefix(line, " ")
			continue
		}
		idx := strings.Index(line, ":")
		if idx < 0 {
			continue
		}
		key := strings.TrimSpace(line[:idx])
		val := strings.TrimSpace(line[idx+1:])
		attrs[key] = val
		lastKey = key
	}
	return attrs, scanner.Err()
}

// ScanPaths enumerates resources, classifies them against the two
// filters, and populates Resources/ClassfileResources, honoring the
// nested-root exclusion prefixes already computed on e.
//
// resourceFilter governs whether a resource is visible at all (it excludes
// e.g. VCS/build metadata paths); classFilter governs, for a resource that
// is a classfile, only whether it is scheduled for direct classfile-scan —
// a classfile that fails classFilter is still recorded in Resources, so
// the Upward-Closure Scheduler can still reach it by name when something
// whitelisted references it.
func (e *Element) ScanPaths(resourceFilter, classFilter IncludeExclude) error {
	if e.Skip {
		return nil
	}
	switch e.Kind {
	case types.ElementDirectory:
		return e.scanDirectory(resourceFilter, classFilter)
	case types.ElementArchive:
		return e.scanArchive(resourceFilter, classFilter)
	default:
		return nil // module resource enumeration is an external collaborator
	}
}

func (e *Element) excludedByNestedRoot(logicalPath string) bool {
	for _, prefix := range e.NestedRootPrefixes {
		if strings.HasPrefix(logicalPath, prefix) {
			return true
		}
	}
	return false
}

func (e *Element) scanDirectory(resourceFilter, classFilter IncludeExclude) error {
	root := e.Canonical
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // recoverable per-resource I/O failure: skip, don't abort
		}
		if d.IsDir() {
			return nil
		}
		rel := cpath.ToLogical(cpath.ToRelative(path, root))
		if e.excludedByNestedRoot(rel) {
			return nil
		}
		if !resourceFilter.Matches(rel) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		e.addResource(rel, info.ModTime().Unix(), info.Size(), classFilter.Matches(rel), func() (io.ReadCloser, error) {
			return os.Open(path)
		})
		return nil
	})
}

func (e *Element) scanArchive(resourceFilter, classFilter IncludeExclude) error {
	zr, err := zip.OpenReader(e.archivePath)
	if err != nil {
		return cperrors.New(cperrors.KindArchiveOpen, e.archivePath, err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		rel := f.Name
		if e.excludedByNestedRoot(rel) {
			continue
		}
		if !resourceFilter.Matches(rel) {
			continue
		}
		ff := f
		e.addResource(rel, ff.Modified.Unix(), int64(ff.UncompressedSize64), classFilter.Matches(rel), func() (io.ReadCloser, error) {
			return ff.Open()
		})
	}
	return nil
}

// addResource records a discovered resource. scheduleForScan additionally
// gates whether a classfile resource is appended to ClassfileResources
// (the direct classfile-scan phase's initial work set); non-classfiles
// ignore it.
func (e *Element) addResource(logicalPath string, modTime, size int64, scheduleForScan bool, open func() (io.ReadCloser, error)) {
	r := types.Resource{LogicalPath: logicalPath, ModTime: modTime, Size: size, Open: open}
	e.FileModTimes[logicalPath] = modTime
	e.Resources = append(e.Resources, r)
	if r.IsClassfile() && scheduleForScan {
		e.ClassfileResources = append(e.ClassfileResources, r)
	}
}

// GetResource returns the resource at logicalPath, if this element
// discovered one there during ScanPaths.
func (e *Element) GetResource(logicalPath string) (types.Resource, bool) {
	for _, r := range e.Resources {
		if r.LogicalPath == logicalPath {
			return r, true
		}
	}
	return types.Resource{}, false
}

// seenSet is the minimal subset of masker.Seen MaskClassfiles needs, kept
// as an interface so element does not import masker and create a cycle
// with packages that import both.
type seenSet interface {
	Mask(paths []string) (kept []string, masked []string)
}

// MaskClassfiles filters e.ClassfileResources down to first-wins
// survivors against the shared seen set. Must be called in final
// classpath order.
func (e *Element) MaskClassfiles(seen seenSet) {
	if len(e.ClassfileResources) == 0 {
		return
	}
	paths := make([]string, len(e.ClassfileResources))
	byPath := make(map[string]types.Resource, len(e.ClassfileResources))
	for i, r := range e.ClassfileResources {
		paths[i] = r.LogicalPath
		byPath[r.LogicalPath] = r
	}
	kept, _ := seen.Mask(paths)
	survivors := make([]types.Resource, len(kept))
	for i, p := range kept {
		survivors[i] = byPath[p]
	}
	e.ClassfileResources = survivors
}
