package scan

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cpscan/engine/internal/config"
	"github.com/cpscan/engine/internal/logging"
	"github.com/cpscan/engine/internal/testutil"
	"github.com/cpscan/engine/internal/types"
)

func defaultSpec(override ...string) config.ScanSpec {
	s := config.DefaultScanSpec()
	s.ExcludeResourcePaths = nil
	s.ClasspathOverride = override
	return s
}

// Scenario 1: duplicate path aliasing.
func TestScanDuplicatePathAliasing(t *testing.T) {
	dir := t.TempDir()
	jarPath := filepath.Join(dir, "a.jar")
	require.NoError(t, testutil.WriteZip(jarPath, nil))

	eng := New(NoModuleDiscoverer{}, logging.NewNop())
	spec := defaultSpec(jarPath, "file:"+jarPath, "jar:"+jarPath+"!/")

	res, err := eng.Scan(context.Background(), spec)
	require.NoError(t, err)
	assert.Len(t, res.FinalOrder, 1)
}

// Scenario 2: manifest Class-Path insertion.
func TestScanManifestClassPathInsertion(t *testing.T) {
	dir := t.TempDir()
	aPath := filepath.Join(dir, "a.jar")
	bPath := filepath.Join(dir, "b.jar")

	require.NoError(t, testutil.WriteZip(aPath, []testutil.ZipEntry{
		{Name: "META-INF/MANIFEST.MF", Data: testutil.Manifest([2]string{"Class-Path", "b.jar c.jar"})},
	}))
	require.NoError(t, testutil.WriteZip(bPath, nil))
	// c.jar intentionally absent.

	eng := New(NoModuleDiscoverer{}, logging.NewNop())
	res, err := eng.Scan(context.Background(), defaultSpec(aPath))
	require.NoError(t, err)

	require.Len(t, res.FinalOrder, 2)
	assert.Equal(t, aPath, res.FinalOrder[0])
	assert.Equal(t, bPath, res.FinalOrder[1])
}

// Scenario 3: masking — first occurrence in classpath order wins.
func TestScanMaskingFirstWins(t *testing.T) {
	dir := t.TempDir()
	pPath := filepath.Join(dir, "p.jar")
	qPath := filepath.Join(dir, "q.jar")

	classFromP := testutil.BuildClass("com.x.T", "java.lang.Object")
	classFromQ := testutil.BuildClass("com.x.T", "java.lang.Object")

	require.NoError(t, testutil.WriteZip(pPath, []testutil.ZipEntry{{Name: "com/x/T.class", Data: classFromP}}))
	require.NoError(t, testutil.WriteZip(qPath, []testutil.ZipEntry{{Name: "com/x/T.class", Data: classFromQ}}))

	eng := New(NoModuleDiscoverer{}, logging.NewNop())
	res, err := eng.Scan(context.Background(), defaultSpec(pPath, qPath))
	require.NoError(t, err)

	require.NotNil(t, res.Graph)
	info, ok := res.Graph.ClassesByName["com.x.T"]
	require.True(t, ok)
	assert.False(t, info.IsPlaceholder)
	// q.jar's copy was masked, so only one record was linked into the package.
	assert.Len(t, res.Graph.PackagesByName["com.x"].Classes, 1)
}

// Scenario 4: nested element — a directory does not descend into an
// archive that is itself a classpath entry.
func TestScanNestedElementNotDoubleScanned(t *testing.T) {
	libDir := t.TempDir()
	subJar := filepath.Join(libDir, "sub.jar")
	require.NoError(t, testutil.WriteZip(subJar, []testutil.ZipEntry{
		{Name: "com/y/U.class", Data: testutil.BuildClass("com.y.U", "java.lang.Object")},
	}))
	require.NoError(t, os.WriteFile(filepath.Join(libDir, "com_y_V.txt"), []byte("x"), 0o644))

	eng := New(NoModuleDiscoverer{}, logging.NewNop())
	res, err := eng.Scan(context.Background(), defaultSpec(libDir, subJar))
	require.NoError(t, err)

	require.Len(t, res.FinalOrder, 2)
	require.NotNil(t, res.Graph)
	_, ok := res.Graph.ClassesByName["com.y.U"]
	assert.True(t, ok)
}

// Scenario 6: cycle in parent/child — two archives each list the other in
// their Class-Path; DFS emits both exactly once and the scan completes.
func TestScanCycleInParentChild(t *testing.T) {
	dir := t.TempDir()
	aPath := filepath.Join(dir, "a.jar")
	bPath := filepath.Join(dir, "b.jar")

	require.NoError(t, testutil.WriteZip(aPath, []testutil.ZipEntry{
		{Name: "META-INF/MANIFEST.MF", Data: testutil.Manifest([2]string{"Class-Path", "b.jar"})},
	}))
	require.NoError(t, testutil.WriteZip(bPath, []testutil.ZipEntry{
		{Name: "META-INF/MANIFEST.MF", Data: testutil.Manifest([2]string{"Class-Path", "a.jar"})},
	}))

	eng := New(NoModuleDiscoverer{}, logging.NewNop())
	res, err := eng.Scan(context.Background(), defaultSpec(aPath))
	require.NoError(t, err)
	assert.Equal(t, []string{aPath, bPath}, res.FinalOrder)
}

// Scenario 5: upward closure — an included type extending a type in a
// package excluded from direct classfile scanning is pulled in by name
// when upward closure is enabled, and left a bare placeholder when not.
func TestScanUpwardClosurePullsExternalSuperclass(t *testing.T) {
	dir := t.TempDir()
	appJar := filepath.Join(dir, "app.jar")
	libJar := filepath.Join(dir, "libs_x.jar")

	require.NoError(t, testutil.WriteZip(appJar, []testutil.ZipEntry{
		{Name: "a/A.class", Data: testutil.BuildClass("a.A", "x.B")},
	}))
	require.NoError(t, testutil.WriteZip(libJar, []testutil.ZipEntry{
		{Name: "x/B.class", Data: testutil.BuildClass("x.B", "java.lang.Object")},
	}))

	run := func(extendUpward bool) *types.ClassInfo {
		eng := New(NoModuleDiscoverer{}, logging.NewNop())
		spec := defaultSpec(appJar, libJar)
		spec.ExcludePackages = []string{"x"}
		spec.ExtendScanningUpwardsToExternalClasses = extendUpward

		res, err := eng.Scan(context.Background(), spec)
		require.NoError(t, err)

		b, ok := res.Graph.ClassesByName["x.B"]
		require.True(t, ok)
		return b
	}

	assert.True(t, run(false).IsPlaceholder)
	assert.False(t, run(true).IsPlaceholder)
}

func TestScanDisabledPerformScanReturnsOrderOnly(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, testutil.WriteZip(filepath.Join(dir, "a.jar"), nil))

	eng := New(NoModuleDiscoverer{}, logging.NewNop())
	spec := defaultSpec(filepath.Join(dir, "a.jar"))
	spec.PerformScan = false

	res, err := eng.Scan(context.Background(), spec)
	require.NoError(t, err)
	assert.Nil(t, res.Graph)
	assert.Len(t, res.FinalOrder, 1)
}
