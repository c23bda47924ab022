package scan

import (
	"strings"

	"github.com/cpscan/engine/internal/config"
	"github.com/cpscan/engine/internal/element"
)

// buildResourceFilter turns a scan spec's resource-path include/exclude
// sets into the doublestar glob filter that governs whether a resource is
// recorded at all. Package include/exclude is deliberately not folded in
// here: it only gates direct classfile scheduling, via buildClassFilter,
// so the Upward-Closure Scheduler can still resolve a reference into a
// package this filter would otherwise hide.
func buildResourceFilter(spec config.ScanSpec) element.IncludeExclude {
	return element.IncludeExclude{
		Include: append([]string{}, spec.IncludeResourcePaths...),
		Exclude: append([]string{}, spec.ExcludeResourcePaths...),
	}
}

// buildClassFilter turns a scan spec's package include/exclude sets into
// the glob filter that gates ClassfileResources membership, converting
// package names to the path prefix their classfiles live under.
func buildClassFilter(spec config.ScanSpec) element.IncludeExclude {
	f := element.IncludeExclude{}
	for _, p := range spec.IncludePackages {
		f.Include = append(f.Include, packageToPathGlob(p))
	}
	for _, p := range spec.ExcludePackages {
		f.Exclude = append(f.Exclude, packageToPathGlob(p))
	}
	return f
}

func packageToPathGlob(pkg string) string {
	return strings.ReplaceAll(pkg, ".", "/") + "/**"
}
