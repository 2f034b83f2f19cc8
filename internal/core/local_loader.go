package core

import (
	"crypto/md5"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog/log"

	"pkgrepo/internal/ports"
	"pkgrepo/internal/types"
)

// MaxScanDepth bounds how far below the root package directories are
// searched for.
const MaxScanDepth = 10

// LocalRepoLoader finds installed packages under a root directory. The
// set of candidate directories and the parsed packages are computed once;
// build a new loader to rescan.
type LocalRepoLoader struct {
	root     string
	fop      ports.FileOps
	schemas  *SchemaRegistry
	fallback ports.FallbackLocalLoader
	maxDepth int

	mu       sync.Mutex
	dirs     []string
	packages map[types.PackagePath]types.LocalPackage
}

func NewLocalRepoLoader(root string, fop ports.FileOps, schemas *SchemaRegistry, fallback ports.FallbackLocalLoader) *LocalRepoLoader {
	return &LocalRepoLoader{
		root:     filepath.Clean(root),
		fop:      fop,
		schemas:  schemas,
		fallback: fallback,
		maxDepth: MaxScanDepth,
	}
}

// LocalPackagesHash digests the absolute paths of the candidate package
// directories. Package contents are not read.
func (l *LocalRepoLoader) LocalPackagesHash() []byte {
	digest := md5.New()
	for _, dir := range l.collectPackages() {
		abs, err := filepath.Abs(dir)
		if err != nil {
			abs = dir
		}
		digest.Write([]byte(abs))
	}
	return digest.Sum(nil)
}

// LatestPackageUpdateTime is the newest modification time of any
// descriptor, or of the directory itself for fallback packages.
func (l *LocalRepoLoader) LatestPackageUpdateTime() time.Time {
	var latest time.Time
	for _, dir := range l.collectPackages() {
		path := filepath.Join(dir, types.DescriptorFileName)
		if !l.fop.Exists(path) {
			path = dir
		}
		if modified := l.fop.LastModified(path); modified.After(latest) {
			latest = modified
		}
	}
	return latest
}

// Packages scans and parses on first use and returns the cached result
// afterwards.
func (l *LocalRepoLoader) Packages(progress ports.ProgressIndicator) map[types.PackagePath]types.LocalPackage {
	dirs := l.collectPackages()
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.packages == nil {
		l.packages = l.parsePackages(dirs, progress)
	}
	out := make(map[types.PackagePath]types.LocalPackage, len(l.packages))
	for path, pkg := range l.packages {
		out[path] = pkg
	}
	return out
}

// Promote writes a canonical descriptor for a package that was recognized
// by the fallback loader, so the next scan can read it directly.
func (l *LocalRepoLoader) Promote(dir string, pkg types.LocalPackage) error {
	data, err := l.schemas.MarshalLocal(pkg)
	if err != nil {
		return err
	}
	path := filepath.Join(dir, types.DescriptorFileName)
	if err := l.fop.WriteFile(path, data); err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to write descriptor " + path).
			WithCause(err)
	}
	return nil
}

func (l *LocalRepoLoader) collectPackages() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.dirs == nil {
		dirs := []string{}
		l.collect(l.root, 0, &dirs)
		sort.Strings(dirs)
		l.dirs = dirs
	}
	return l.dirs
}

func (l *LocalRepoLoader) collect(dir string, depth int, out *[]string) {
	if depth > l.maxDepth {
		return
	}
	if l.fop.Exists(filepath.Join(dir, types.DescriptorFileName)) ||
		(l.fallback != nil && l.fallback.ShouldParse(dir)) {
		*out = append(*out, dir)
		return
	}
	children, err := l.fop.ListDir(dir)
	if err != nil {
		log.Debug().Err(err).Str("dir", dir).Msg("skipping unreadable directory")
		return
	}
	for _, child := range children {
		if l.fop.IsDirectory(child) {
			l.collect(child, depth+1, out)
		}
	}
}

func (l *LocalRepoLoader) parsePackages(dirs []string, progress ports.ProgressIndicator) map[types.PackagePath]types.LocalPackage {
	result := map[types.PackagePath]types.LocalPackage{}
	for _, dir := range dirs {
		descriptor := filepath.Join(dir, types.DescriptorFileName)
		var pkg *types.LocalPackage
		if l.fop.Exists(descriptor) {
			parsed, err := l.parseDescriptor(descriptor)
			if err != nil {
				progress.LogWarning("Found corrupted descriptor at " + descriptor)
				log.Debug().Err(err).Str("path", descriptor).Msg("descriptor parse failed")
			} else {
				pkg = parsed
			}
		}
		if pkg == nil && l.fallback != nil {
			legacy, err := l.fallback.ParseLegacy(dir, progress)
			if err != nil {
				log.Debug().Err(err).Str("dir", dir).Msg("fallback parse failed")
			}
			if legacy != nil {
				if legacy.Location == "" {
					legacy.Location = dir
				}
				pkg = legacy
				if err := l.Promote(dir, *legacy); err != nil {
					progress.LogInfo(fmt.Sprintf("Could not write %s, the repository is probably read-only", descriptor))
				}
			} else if l.fop.Exists(descriptor) {
				progress.LogWarning(fmt.Sprintf("Invalid descriptor found at %s and failed to parse using fallback.", descriptor))
			}
		}
		if pkg != nil {
			l.addPackage(*pkg, result, progress)
		}
	}
	return result
}

func (l *LocalRepoLoader) parseDescriptor(path string) (*types.LocalPackage, error) {
	data, err := l.fop.ReadFile(path)
	if err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg("failed to read descriptor").
			WithCause(err)
	}
	doc, err := l.schemas.Unmarshal(data, nil)
	if err != nil {
		return nil, err
	}
	if doc.LocalPackage == nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("descriptor has no local package")
	}
	pkg := *doc.LocalPackage
	pkg.Location = filepath.Dir(path)
	pkg.Descriptor = path
	return &pkg, nil
}

// addPackage keeps one package per path. A package outside its canonical
// directory never replaces one that was already found.
func (l *LocalRepoLoader) addPackage(pkg types.LocalPackage, result map[types.PackagePath]types.LocalPackage, progress ports.ProgressIndicator) {
	desired := pkg.Path.InstallDir(l.root)
	if filepath.Clean(pkg.Location) != desired {
		progress.LogWarning(fmt.Sprintf("Observed package id '%s' in inconsistent location '%s' (Expected '%s')",
			pkg.Path, pkg.Location, desired))
		if existing, ok := result[pkg.Path]; ok {
			progress.LogWarning(fmt.Sprintf("Already observed package id '%s' in '%s'. Skipping duplicate at '%s'",
				pkg.Path, existing.Location, pkg.Location))
			return
		}
	}
	result[pkg.Path] = pkg
}

var _ ports.LocalRepoLoader = (*LocalRepoLoader)(nil)
