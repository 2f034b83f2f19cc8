package ports

import (
	"context"

	"pkgrepo/internal/types"
)

// SettingsController exposes the caller's channel and transport choices.
type SettingsController interface {
	ChannelLimit() types.Channel
	ForceHTTPDownloads() bool
}

// SourceProvider yields remote sources. Sources are returned by pointer so
// the remote loader can record per-source fetch errors on them.
type SourceProvider interface {
	Sources(ctx context.Context, downloader Downloader, settings SettingsController, progress ProgressIndicator, forceRefresh bool) ([]*types.RepositorySource, error)
}
