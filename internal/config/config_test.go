package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeKDL(t *testing.T, dir, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".cpscan.kdl"), []byte(content), 0o644))
}

func TestLoadKDLReturnsNilWhenAbsent(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadKDL(dir)
	require.NoError(t, err)
	assert.Nil(t, cfg)
}

func TestLoadKDLParsesScanSpec(t *testing.T) {
	dir := t.TempDir()
	writeKDL(t, dir, `
project {
  root "."
}
performance {
  parallel_workers 4
}
include_packages "com.example" "com.other"
exclude_packages "com.example.internal"
scan_modules false
perform_scan true
`)

	cfg, err := LoadKDL(dir)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, 4, cfg.Performance.ParallelWorkers)
	assert.Equal(t, []string{"com.example", "com.other"}, cfg.Spec.IncludePackages)
	assert.Equal(t, []string{"com.example.internal"}, cfg.Spec.ExcludePackages)
	assert.False(t, cfg.Spec.ScanModules)
	assert.True(t, cfg.Spec.PerformScan)

	absDir, _ := filepath.Abs(dir)
	assert.Equal(t, filepath.Clean(absDir), cfg.Project.Root)
}

func TestLoadFallsBackToDefaultsWithNoKDL(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir)
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, DefaultScanSpec().PerformScan, cfg.Spec.PerformScan)
}

func TestLoadFoldsGitignoreIntoExcludeResourcePaths(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".gitignore"), []byte("build/\n*.tmp\n"), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Contains(t, cfg.Spec.ExcludeResourcePaths, "**/build/**")
	assert.Contains(t, cfg.Spec.ExcludeResourcePaths, "**/*.tmp")
	for _, p := range DefaultScanSpec().ExcludeResourcePaths {
		assert.Contains(t, cfg.Spec.ExcludeResourcePaths, p)
	}
}

func TestLoadWithNoGitignoreKeepsDefaultExcludes(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, DefaultScanSpec().ExcludeResourcePaths, cfg.Spec.ExcludeResourcePaths)
}

func TestMergeConfigsUnionsExcludesAndOverridesIncludes(t *testing.T) {
	base := &Config{Spec: ScanSpec{
		ExcludePackages: []string{"com.a"},
		IncludePackages: []string{"com.base"},
	}}
	project := &Config{Spec: ScanSpec{
		ExcludePackages: []string{"com.b"},
	}}

	merged := mergeConfigs(base, project)

	assert.ElementsMatch(t, []string{"com.a", "com.b"}, merged.Spec.ExcludePackages)
	assert.Equal(t, []string{"com.base"}, merged.Spec.IncludePackages)
}

func TestValidatorRejectsEmptyRoot(t *testing.T) {
	v := NewValidator()
	cfg := &Config{Spec: DefaultScanSpec()}
	err := v.ValidateAndSetDefaults(cfg)
	assert.Error(t, err)
}

func TestValidatorFillsVersionDefault(t *testing.T) {
	v := NewValidator()
	cfg := &Config{Project: Project{Root: "/tmp"}, Spec: DefaultScanSpec()}
	require.NoError(t, v.ValidateAndSetDefaults(cfg))
	assert.Equal(t, 1, cfg.Version)
}
