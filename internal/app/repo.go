package app

import (
	"context"
	"encoding/hex"
	"slices"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"

	"pkgrepo/internal/core"
	"pkgrepo/internal/types"
)

// List loads the repository synchronously and returns the published
// snapshot's packages sorted by path.
func (s Service) List(ctx context.Context, req ListRequest) (ListResult, error) {
	result, err := s.Manager.Load(ctx, core.LoadRequest{
		CacheExpiration: s.CacheExpiration,
		ForceRefresh:    req.ForceRefresh,
		Runner:          s.newRunner(),
		Downloader:      s.Downloader,
		Settings:        s.Settings,
		Sync:            true,
	})
	if err != nil {
		return ListResult{}, err
	}
	snapshot := s.Manager.Packages()
	out := ListResult{
		LoadID:   result.LoadID.String(),
		Reloaded: result.Reloaded,
		Updates:  snapshot.Updates(),
		New:      snapshot.NewPackages(),
		Sources:  s.Sources(ctx, false),
	}
	for _, pkg := range snapshot.LocalPackages() {
		out.Local = append(out.Local, pkg)
	}
	for _, pkg := range snapshot.RemotePackages() {
		out.Remote = append(out.Remote, pkg)
	}
	slices.SortFunc(out.Local, func(a, b types.LocalPackage) int {
		return strings.Compare(string(a.Path), string(b.Path))
	})
	slices.SortFunc(out.Remote, func(a, b types.RemotePackage) int {
		return strings.Compare(string(a.Path), string(b.Path))
	})
	return out, nil
}

// Hash reports the local packages hash without parsing any descriptor.
// Directories claimed by the local fallback count, so the result matches
// the hash the manager stores after a load.
func (s Service) Hash(_ context.Context) (HashResult, error) {
	root := s.Manager.LocalRoot()
	if root == "" {
		return HashResult{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("local root is required")
	}
	if !s.FileOps.IsDirectory(root) {
		return HashResult{}, errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg("local root does not exist: " + root)
	}
	loader := core.NewLocalRepoLoader(root, s.FileOps, s.Manager.Schemas(), s.Manager.LocalFallback())
	return HashResult{
		Root:         root,
		Hash:         hex.EncodeToString(loader.LocalPackagesHash()),
		LatestUpdate: loader.LatestPackageUpdateTime(),
	}, nil
}

// Sources lists the configured sources.
func (s Service) Sources(ctx context.Context, forceRefresh bool) []*types.RepositorySource {
	return s.Manager.Sources(ctx, s.Downloader, s.Settings, runnerProgress(ctx), forceRefresh)
}

func defaultExpiration(value time.Duration) time.Duration {
	if value <= 0 {
		return core.DefaultCacheExpiration
	}
	return value
}
