package adapters

import (
	"path/filepath"
	"strings"
	"sync"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/magiconair/properties"

	"pkgrepo/internal/ports"
	"pkgrepo/internal/types"
)

// LegacyPropertiesFileName is the descriptor written by older installers.
const LegacyPropertiesFileName = "source.properties"

// PropertiesLocalFallback parses package directories that only carry a
// source.properties file. Parsed results are cached per directory until
// Refresh.
type PropertiesLocalFallback struct {
	fop ports.FileOps

	mu    sync.Mutex
	cache map[string]types.LocalPackage
}

func NewPropertiesLocalFallback(fop ports.FileOps) *PropertiesLocalFallback {
	return &PropertiesLocalFallback{fop: fop, cache: map[string]types.LocalPackage{}}
}

func (f *PropertiesLocalFallback) ShouldParse(dir string) bool {
	return f.fop.Exists(filepath.Join(dir, LegacyPropertiesFileName))
}

func (f *PropertiesLocalFallback) Refresh() {
	f.mu.Lock()
	defer f.mu.Unlock()
	clear(f.cache)
}

func (f *PropertiesLocalFallback) ParseLegacy(dir string, progress ports.ProgressIndicator) (*types.LocalPackage, error) {
	f.mu.Lock()
	if cached, ok := f.cache[dir]; ok {
		f.mu.Unlock()
		return &cached, nil
	}
	f.mu.Unlock()

	path := filepath.Join(dir, LegacyPropertiesFileName)
	data, err := f.fop.ReadFile(path)
	if err != nil {
		return nil, err
	}
	pkg, err := parseSourceProperties(data)
	if err != nil {
		if progress != nil {
			progress.LogWarning("Failed to parse " + path + ": " + err.Error())
		}
		return nil, err
	}
	pkg.Location = dir

	f.mu.Lock()
	f.cache[dir] = *pkg
	f.mu.Unlock()
	return pkg, nil
}

// parseSourceProperties reads the Pkg.* keys of a source.properties
// file. Keys are case-sensitive.
func parseSourceProperties(data []byte) (*types.LocalPackage, error) {
	props, err := properties.Load(data, properties.UTF8)
	if err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("malformed properties").
			WithCause(err)
	}
	path := strings.TrimSpace(props.GetString("Pkg.Path", ""))
	if path == "" {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("Pkg.Path is missing")
	}
	revision, err := types.ParseRevision(props.GetString("Pkg.Revision", ""))
	if err != nil {
		return nil, err
	}
	return &types.LocalPackage{
		Path:        types.PackagePath(path),
		Revision:    revision,
		DisplayName: strings.TrimSpace(props.GetString("Pkg.Desc", "")),
	}, nil
}

var _ ports.FallbackLocalLoader = (*PropertiesLocalFallback)(nil)
var _ ports.RefreshableFallback = (*PropertiesLocalFallback)(nil)
