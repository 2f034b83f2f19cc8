package ports

import (
	"context"

	"pkgrepo/internal/types"
)

// FallbackLocalLoader recognizes installed packages that have no canonical
// descriptor, typically written by older tooling.
type FallbackLocalLoader interface {
	ShouldParse(dir string) bool
	ParseLegacy(dir string, progress ProgressIndicator) (*types.LocalPackage, error)
}

// RefreshableFallback is implemented by local fallbacks that cache state
// between scans.
type RefreshableFallback interface {
	Refresh()
}

// FallbackRemoteLoader parses a source that no schema module accepted.
type FallbackRemoteLoader interface {
	ParseLegacy(ctx context.Context, source *types.RepositorySource, settings SettingsController, progress ProgressIndicator) ([]types.RemotePackage, error)
}
