package core

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pkgrepo/internal/types"
)

func TestLocalLoaderFindsPackageAtRoot(t *testing.T) {
	fs := newMemFS(nil)
	writeFile(fs, "/sdk/tools/package.xml", localDescriptorV1("tools", "22.3.4"))

	loader := NewLocalRepoLoader("/sdk", fs, NewSchemaRegistry(), nil)
	packages := loader.Packages(&recordingProgress{})

	require.Len(t, packages, 1)
	pkg := packages["tools"]
	assert.Equal(t, "22.3.4", pkg.Revision.String())
	assert.True(t, pkg.Revision.Equal(types.NewRevision(22, 3, 4)))
	assert.Equal(t, "/sdk/tools", pkg.Location)
	assert.Equal(t, "/sdk/tools/package.xml", pkg.Descriptor)
}

func TestLocalLoaderDepthLimit(t *testing.T) {
	fs := newMemFS(nil)
	deep := "/sdk"
	var segments []string
	for i := 1; i <= MaxScanDepth; i++ {
		segment := "d" + string(rune('a'+i))
		segments = append(segments, segment)
		deep = filepath.Join(deep, segment)
	}
	atLimit := types.PackagePath(strings.Join(segments, types.PathSeparator))
	writeFile(fs, filepath.Join(deep, "package.xml"), localDescriptorV1(string(atLimit), "1"))

	tooDeep := filepath.Join("/sdk", "x", strings.Join(segments, "/"))
	writeFile(fs, filepath.Join(tooDeep, "package.xml"), localDescriptorV1("x;"+string(atLimit), "1"))

	loader := NewLocalRepoLoader("/sdk", fs, NewSchemaRegistry(), nil)
	packages := loader.Packages(&recordingProgress{})

	assert.Contains(t, packages, atLimit)
	assert.NotContains(t, packages, types.PackagePath("x;"+string(atLimit)))
	assert.Len(t, packages, 1)
}

func TestLocalLoaderStopsAtPackageRoot(t *testing.T) {
	fs := newMemFS(nil)
	writeFile(fs, "/sdk/tools/package.xml", localDescriptorV1("tools", "1"))
	writeFile(fs, "/sdk/tools/nested/package.xml", localDescriptorV1("tools;nested", "1"))

	loader := NewLocalRepoLoader("/sdk", fs, NewSchemaRegistry(), nil)
	packages := loader.Packages(&recordingProgress{})

	assert.Contains(t, packages, types.PackagePath("tools"))
	assert.NotContains(t, packages, types.PackagePath("tools;nested"))
}

func TestLocalLoaderConflictPrefersCanonicalLocation(t *testing.T) {
	fs := newMemFS(nil)
	// "a-misplaced" sorts before "tools", so the misplaced copy is seen first.
	writeFile(fs, "/sdk/a-misplaced/package.xml", localDescriptorV1("tools", "2"))
	writeFile(fs, "/sdk/tools/package.xml", localDescriptorV1("tools", "1"))
	writeFile(fs, "/sdk/z-misplaced/package.xml", localDescriptorV1("tools", "3"))

	progress := &recordingProgress{}
	loader := NewLocalRepoLoader("/sdk", fs, NewSchemaRegistry(), nil)
	packages := loader.Packages(progress)

	require.Len(t, packages, 1)
	assert.Equal(t, "/sdk/tools", packages["tools"].Location)
	assert.Equal(t, "1", packages["tools"].Revision.String())

	warnings := strings.Join(progress.Warnings(), "\n")
	assert.Contains(t, warnings, "inconsistent location '/sdk/a-misplaced'")
	assert.Contains(t, warnings, "Skipping duplicate at '/sdk/z-misplaced'")
}

func TestLocalLoaderFirstMisplacedWinsWithoutCanonical(t *testing.T) {
	fs := newMemFS(nil)
	writeFile(fs, "/sdk/a/package.xml", localDescriptorV1("tools", "1"))
	writeFile(fs, "/sdk/b/package.xml", localDescriptorV1("tools", "2"))

	loader := NewLocalRepoLoader("/sdk", fs, NewSchemaRegistry(), nil)
	packages := loader.Packages(&recordingProgress{})

	assert.Equal(t, "/sdk/a", packages["tools"].Location)
}

func TestLocalLoaderFallbackPromotesDescriptor(t *testing.T) {
	fs := newMemFS(nil)
	writeFile(fs, "/sdk/build-tools/22.0.1/legacy", "build-tools;22.0.1|22.0.1")
	fallback := &stubLocalFallback{fop: fs}

	registry := NewSchemaRegistry()
	loader := NewLocalRepoLoader("/sdk", fs, registry, fallback)
	packages := loader.Packages(&recordingProgress{})

	pkg, ok := packages["build-tools;22.0.1"]
	require.True(t, ok)
	assert.Equal(t, "/sdk/build-tools/22.0.1", pkg.Location)

	written, err := fs.ReadFile("/sdk/build-tools/22.0.1/package.xml")
	require.NoError(t, err)
	doc, err := registry.Unmarshal(written, nil)
	require.NoError(t, err)
	assert.Equal(t, pkg.Path, doc.LocalPackage.Path)

	// A fresh loader now takes the descriptor path.
	fs.Remove("/sdk/build-tools/22.0.1/legacy")
	again := NewLocalRepoLoader("/sdk", fs, registry, nil).Packages(&recordingProgress{})
	assert.Equal(t, "22.0.1", again["build-tools;22.0.1"].Revision.String())
}

func TestLocalLoaderPromotionFailureIsNotFatal(t *testing.T) {
	fs := newMemFS(nil)
	writeFile(fs, "/sdk/tools/legacy", "tools|1.0")
	fs.SetReadOnly(true)

	progress := &recordingProgress{}
	loader := NewLocalRepoLoader("/sdk", fs, NewSchemaRegistry(), &stubLocalFallback{fop: fs})
	packages := loader.Packages(progress)

	assert.Contains(t, packages, types.PackagePath("tools"))
	require.Len(t, progress.infos, 1)
	assert.Contains(t, progress.infos[0], "probably read-only")
}

func TestLocalLoaderCorruptedDescriptorFallsThrough(t *testing.T) {
	fs := newMemFS(nil)
	writeFile(fs, "/sdk/tools/package.xml", "<repository")
	writeFile(fs, "/sdk/tools/legacy", "tools|3")
	writeFile(fs, "/sdk/platforms/package.xml", "<repository")
	writeFile(fs, "/sdk/emulator/package.xml", localDescriptorV1("emulator", "30.1"))

	progress := &recordingProgress{}
	loader := NewLocalRepoLoader("/sdk", fs, NewSchemaRegistry(), &stubLocalFallback{fop: fs})
	packages := loader.Packages(progress)

	assert.Equal(t, "3", packages["tools"].Revision.String())
	assert.NotContains(t, packages, types.PackagePath("platforms"))
	assert.Contains(t, packages, types.PackagePath("emulator"))

	warnings := strings.Join(progress.Warnings(), "\n")
	assert.Contains(t, warnings, "corrupted descriptor at /sdk/platforms/package.xml")
	assert.Contains(t, warnings, "failed to parse using fallback")
}

func TestLocalLoaderIsMemoized(t *testing.T) {
	fs := newMemFS(nil)
	writeFile(fs, "/sdk/tools/package.xml", localDescriptorV1("tools", "1"))
	loader := NewLocalRepoLoader("/sdk", fs, NewSchemaRegistry(), nil)

	first := loader.Packages(&recordingProgress{})
	writeFile(fs, "/sdk/emulator/package.xml", localDescriptorV1("emulator", "1"))
	second := loader.Packages(&recordingProgress{})

	if diff := cmp.Diff(first, second, cmp.Comparer(func(a, b types.Revision) bool { return a.Equal(b) })); diff != "" {
		t.Fatalf("memoized packages changed (-first +second):\n%s", diff)
	}
	assert.Len(t, NewLocalRepoLoader("/sdk", fs, NewSchemaRegistry(), nil).Packages(&recordingProgress{}), 2)
}

func TestLocalPackagesHash(t *testing.T) {
	fs := newMemFS(nil)
	writeFile(fs, "/sdk/tools/package.xml", localDescriptorV1("tools", "1"))
	hash := NewLocalRepoLoader("/sdk", fs, NewSchemaRegistry(), nil).LocalPackagesHash()
	require.Len(t, hash, 16)

	// Content changes do not affect the hash.
	writeFile(fs, "/sdk/tools/package.xml", localDescriptorV1("tools", "2"))
	assert.Equal(t, hash, NewLocalRepoLoader("/sdk", fs, NewSchemaRegistry(), nil).LocalPackagesHash())

	writeFile(fs, "/sdk/emulator/package.xml", localDescriptorV1("emulator", "1"))
	assert.NotEqual(t, hash, NewLocalRepoLoader("/sdk", fs, NewSchemaRegistry(), nil).LocalPackagesHash())
}

func TestLatestPackageUpdateTime(t *testing.T) {
	clock := newFakeClock()
	fs := newMemFS(clock)
	writeFile(fs, "/sdk/tools/package.xml", localDescriptorV1("tools", "1"))
	clock.Advance(time.Hour)
	writeFile(fs, "/sdk/emulator/package.xml", localDescriptorV1("emulator", "1"))

	latest := NewLocalRepoLoader("/sdk", fs, NewSchemaRegistry(), nil).LatestPackageUpdateTime()
	assert.Equal(t, testEpoch.Add(time.Hour), latest)

	assert.True(t, NewLocalRepoLoader("/empty", fs, NewSchemaRegistry(), nil).LatestPackageUpdateTime().IsZero())
}
