package ports

import (
	"context"
	"time"

	"pkgrepo/internal/types"
)

// LocalRepoLoader discovers installed packages under one root.
type LocalRepoLoader interface {
	// LocalPackagesHash digests the set of package directories. Nil means
	// hashing is unavailable.
	LocalPackagesHash() []byte
	LatestPackageUpdateTime() time.Time
	Packages(progress ProgressIndicator) map[types.PackagePath]types.LocalPackage
}

// RemoteRepoLoader fetches and reconciles remote packages.
type RemoteRepoLoader interface {
	FetchPackages(ctx context.Context, progress ProgressIndicator, downloader Downloader, settings SettingsController) (map[types.PackagePath]types.RemotePackage, error)
}
