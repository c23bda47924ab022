package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	kdl "github.com/sblinch/kdl-go"
	"github.com/sblinch/kdl-go/document"
)

// LoadKDL attempts to load configuration from a .cpscan.kdl file under
// projectRoot. Returns (nil, nil) when no such file exists, matching the
// layered global-then-project merge in Load.
func LoadKDL(projectRoot string) (*Config, error) {
	kdlPath := filepath.Join(projectRoot, ".cpscan.kdl")

	if _, err := os.Stat(kdlPath); os.IsNotExist(err) {
		return nil, nil
	}

	content, err := os.ReadFile(kdlPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read .cpscan.kdl: %v", err)
	}

	cfg, err := parseKDL(string(content))
	if err != nil {
		return nil, err
	}

	if cfg != nil && cfg.Project.Root != "" {
		var absRoot string
		if filepath.IsAbs(cfg.Project.Root) {
			absRoot = cfg.Project.Root
		} else {
			absRoot = filepath.Join(projectRoot, cfg.Project.Root)
		}
		cfg.Project.Root = filepath.Clean(absRoot)
	} else if cfg != nil {
		absRoot, err := filepath.Abs(projectRoot)
		if err == nil {
			cfg.Project.Root = absRoot
		} else {
			cfg.Project.Root = projectRoot
		}
	}

	return cfg, nil
}

// parseKDL parses a .cpscan.kdl document into a Config, starting from
// DefaultScanSpec and overlaying whatever sections are present.
func parseKDL(content string) (*Config, error) {
	defaultRoot, _ := os.Getwd()
	if defaultRoot == "" {
		defaultRoot = "."
	}

	cfg := &Config{
		Version:     1,
		Project:     Project{Root: defaultRoot},
		Performance: Performance{ParallelWorkers: 0},
		Spec:        DefaultScanSpec(),
	}

	doc, err := kdl.Parse(strings.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse KDL config: %w", err)
	}

	for _, n := range doc.Nodes {
		switch nodeName(n) {
		case "project":
			for _, cn := range n.Children { // project { root "." }
				assignSimpleString(cn, "root", func(v string) { cfg.Project.Root = v })
			}
		case "performance":
			for _, cn := range n.Children { // performance { parallel_workers 8 }
				if nodeName(cn) == "parallel_workers" {
					if v, ok := firstIntArg(cn); ok {
						cfg.Performance.ParallelWorkers = v
					}
				}
			}
		case "classpath_override":
			cfg.Spec.ClasspathOverride = collectStringArgs(n)
		case "include_packages":
			cfg.Spec.IncludePackages = collectStringArgs(n)
		case "exclude_packages":
			cfg.Spec.ExcludePackages = collectStringArgs(n)
		case "include_modules":
			cfg.Spec.IncludeModules = collectStringArgs(n)
		case "exclude_modules":
			cfg.Spec.ExcludeModules = collectStringArgs(n)
		case "include_resource_paths":
			cfg.Spec.IncludeResourcePaths = collectStringArgs(n)
		case "exclude_resource_paths":
			cfg.Spec.ExcludeResourcePaths = collectStringArgs(n)
		case "module_path_info":
			cfg.Spec.ModulePathInfo = collectStringArgs(n)
		case "scan_modules":
			if v, ok := firstBoolArg(n); ok {
				cfg.Spec.ScanModules = v
			}
		case "enable_system_jars_and_modules":
			if v, ok := firstBoolArg(n); ok {
				cfg.Spec.EnableSystemJarsAndModules = v
			}
		case "enable_class_info":
			if v, ok := firstBoolArg(n); ok {
				cfg.Spec.EnableClassInfo = v
			}
		case "extend_scanning_upwards_to_external_classes":
			if v, ok := firstBoolArg(n); ok {
				cfg.Spec.ExtendScanningUpwardsToExternalClasses = v
			}
		case "perform_scan":
			if v, ok := firstBoolArg(n); ok {
				cfg.Spec.PerformScan = v
			}
		case "remove_temporary_files_after_scan":
			if v, ok := firstBoolArg(n); ok {
				cfg.Spec.RemoveTemporaryFilesAfterScan = v
			}
		}
	}

	return cfg, nil
}

// Helper functions leveraging the kdl-go document model.
func nodeName(n *document.Node) string {
	if n == nil || n.Name == nil {
		return ""
	}
	return n.Name.NodeNameString()
}
func firstIntArg(n *document.Node) (int, bool) {
	if len(n.Arguments) == 0 {
		return 0, false
	}
	switch v := n.Arguments[0].Value.(type) {
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}
func firstStringArg(n *document.Node) (string, bool) {
	if len(n.Arguments) == 0 {
		return "", false
	}
	if s, ok := n.Arguments[0].Value.(string); ok {
		return s, true
	}
	return "", false
}
func firstBoolArg(n *document.Node) (bool, bool) {
	if len(n.Arguments) == 0 {
		return false, false
	}
	if b, ok := n.Arguments[0].Value.(bool); ok {
		return b, true
	}
	return false, false
}
func firstFloatArg(n *document.Node) (float64, bool) {
	if len(n.Arguments) == 0 {
		return 0, false
	}
	switch v := n.Arguments[0].Value.(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	default:
		name := nodeName(n)
		log.Printf("WARNING: invalid float value for '%s' in KDL config, expected number but got %T", name, n.Arguments[0].Value)
		return 0, false
	}
}

// collectStringArgs collects string values either from a node's inline
// arguments (classpath_override "a" "b") or from its block children
// (exclude_packages { "a" "b" }).
func collectStringArgs(n *document.Node) []string {
	if n == nil {
		return nil
	}
	out := make([]string, 0, len(n.Arguments))
	for _, a := range n.Arguments {
		if s, ok := a.Value.(string); ok {
			out = append(out, s)
		}
	}

	if len(out) == 0 && len(n.Children) > 0 {
		out = make([]string, 0, len(n.Children))
		for _, child := range n.Children {
			if s, ok := firstStringArg(child); ok {
				out = append(out, s)
			} else if child.Name != nil {
				if s, ok := child.Name.Value.(string); ok {
					out = append(out, s)
				}
			}
		}
	}

	return out
}
func assignSimpleString(n *document.Node, target string, set func(string)) {
	if nodeName(n) == target {
		if s, ok := firstStringArg(n); ok {
			set(s)
		}
	}
}

// parseSize handles size strings like "10MB", "500KB", "1GB". parseKDL
// does not call it: no KDL section takes a size value.
func parseSize(s string) (int64, error) {
	s = strings.ToUpper(strings.TrimSpace(s))

	var multiplier int64 = 1
	var numStr string

	switch {
	case strings.HasSuffix(s, "GB"):
		multiplier = 1024 * 1024 * 1024
		numStr = strings.TrimSuffix(s, "GB")
	case strings.HasSuffix(s, "MB"):
		multiplier = 1024 * 1024
		numStr = strings.TrimSuffix(s, "MB")
	case strings.HasSuffix(s, "KB"):
		multiplier = 1024
		numStr = strings.TrimSuffix(s, "KB")
	case strings.HasSuffix(s, "B"):
		multiplier = 1
		numStr = strings.TrimSuffix(s, "B")
	default:
		numStr = s
	}

	num, err := strconv.ParseInt(numStr, 10, 64)
	if err != nil {
		return 0, err
	}

	return num * multiplier, nil
}

func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "yes" || s == "1" || s == "on"
}
