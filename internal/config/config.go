// Package config holds the scan specification's input contract:
// include/exclude sets, feature toggles, and classpath/class-loader
// overrides, plus the ambient project/performance settings a CLI
// invocation needs.
//
// Structurally grounded on standardbeagle/lci's internal/config/config.go
// (typed sections, a Load() that layers a global ~/.cpscan.kdl under a
// project .cpscan.kdl, a Validator that fills smart defaults) with its
// content narrowed from source-indexing concerns to the scan engine's
// own fields.
package config

import (
	"os"
	"runtime"
)

// Config is the top-level configuration for one invocation of the scan
// engine: where to run, how hard to parallelize, and the ScanSpec proper.
type Config struct {
	Version     int
	Project     Project
	Performance Performance
	Spec        ScanSpec
}

type Project struct {
	Root string
}

type Performance struct {
	// ParallelWorkers is the Work Queue's parallelism; 0 = auto-detect
	// via runtime.NumCPU().
	ParallelWorkers int
}

// ScanSpec is the scan engine's input contract.
type ScanSpec struct {
	// Classpath overrides: when set, bypasses the ClasspathDiscoverer
	// collaborator entirely and scans exactly these raw paths in order.
	ClasspathOverride []string

	// Include/exclude sets. Packages are dotted package names, each turned
	// into a "pkg/path/**" glob; modules are exact module names; resource
	// paths are doublestar glob patterns.
	IncludePackages      []string
	ExcludePackages      []string
	IncludeModules       []string
	ExcludeModules       []string
	IncludeResourcePaths []string
	ExcludeResourcePaths []string

	// Feature toggles.
	ScanModules                          bool
	EnableSystemJarsAndModules            bool
	EnableClassInfo                       bool
	ExtendScanningUpwardsToExternalClasses bool
	PerformScan                           bool
	RemoveTemporaryFilesAfterScan         bool

	// ModulePathInfo accumulates Add-Exports/Add-Opens directives found in
	// archive manifests during opening.
	ModulePathInfo []string
}

// DefaultScanSpec returns the defaults: scan everything reachable, scan
// modules (system modules stay off), do not follow references upward, do
// perform the scan, and remove temporary files afterwards.
func DefaultScanSpec() ScanSpec {
	return ScanSpec{
		PerformScan:                    true,
		EnableClassInfo:                true,
		ExtendScanningUpwardsToExternalClasses: false,
		ScanModules:                    true,
		EnableSystemJarsAndModules:     false,
		RemoveTemporaryFilesAfterScan:  true,
		ExcludeResourcePaths: []string{
			"**/.git/**",
			"**/META-INF/maven/**",
		},
	}
}

// Load layers a global ~/.cpscan.kdl under a project-local .cpscan.kdl
// found under root, falling back to DefaultScanSpec when neither exists.
func Load(root string) (*Config, error) {
	cwd := root
	if cwd == "" {
		if wd, err := os.Getwd(); err == nil {
			cwd = wd
		} else {
			cwd = "."
		}
	}

	var base *Config
	if home, err := os.UserHomeDir(); err == nil {
		if globalCfg, err := LoadKDL(home); err == nil && globalCfg != nil {
			base = globalCfg
		}
	}

	project, err := LoadKDL(cwd)
	if err != nil {
		return nil, err
	}

	var cfg *Config
	switch {
	case base != nil && project != nil:
		cfg = mergeConfigs(base, project)
	case project != nil:
		project.Project.Root = cwd
		cfg = project
	case base != nil:
		base.Project.Root = cwd
		cfg = base
	default:
		cfg = &Config{
			Version:     1,
			Project:     Project{Root: cwd},
			Performance: Performance{ParallelWorkers: 0},
			Spec:        DefaultScanSpec(),
		}
	}

	applyGitignoreExcludes(cfg, cwd)
	return cfg, nil
}

// applyGitignoreExcludes loads a .gitignore at root, if any, and unions the
// doublestar patterns it implies onto cfg's resource-path exclude set: a
// project's VCS-ignored paths are classpath noise the same way its build
// directories are, so they are folded into the same exclude set rather than
// tracked separately.
func applyGitignoreExcludes(cfg *Config, root string) {
	gp := NewGitignoreParser()
	if err := gp.LoadGitignore(root); err != nil {
		return
	}
	cfg.Spec.ExcludeResourcePaths = unionDedup(cfg.Spec.ExcludeResourcePaths, gp.GetExclusionPatterns())
}

// mergeConfigs layers project over base: exclude sets union, include sets
// are project-overrides-base (project wins only if non-empty), everything
// else is taken from project as-is. Ported from standardbeagle/lci's
// mergeConfigs, narrowed to ScanSpec's fields.
func mergeConfigs(base, project *Config) *Config {
	merged := *project

	merged.Spec.ExcludeResourcePaths = unionDedup(base.Spec.ExcludeResourcePaths, project.Spec.ExcludeResourcePaths)
	merged.Spec.ExcludePackages = unionDedup(base.Spec.ExcludePackages, project.Spec.ExcludePackages)
	merged.Spec.ExcludeModules = unionDedup(base.Spec.ExcludeModules, project.Spec.ExcludeModules)

	if len(project.Spec.IncludeResourcePaths) == 0 {
		merged.Spec.IncludeResourcePaths = base.Spec.IncludeResourcePaths
	}
	if len(project.Spec.IncludePackages) == 0 {
		merged.Spec.IncludePackages = base.Spec.IncludePackages
	}
	if len(project.Spec.IncludeModules) == 0 {
		merged.Spec.IncludeModules = base.Spec.IncludeModules
	}

	return &merged
}

func unionDedup(a, b []string) []string {
	if len(a) == 0 {
		return b
	}
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range append(append([]string{}, a...), b...) {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// ParallelWorkers resolves the "0 = auto" sentinel to runtime.NumCPU().
func (c *Config) ParallelWorkers() int {
	if c.Performance.ParallelWorkers > 0 {
		return c.Performance.ParallelWorkers
	}
	return runtime.NumCPU()
}
