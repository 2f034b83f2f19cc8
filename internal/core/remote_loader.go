package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"slices"
	"strings"
	"sync"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"pkgrepo/internal/metrics"
	"pkgrepo/internal/ports"
	"pkgrepo/internal/shared"
	"pkgrepo/internal/types"
)

const defaultSourceFetchWorkers = 4

// RemoteRepoLoader downloads every enabled source, parses it against the
// schema registry (or the legacy fallback) and reduces the candidates to
// one package per path.
type RemoteRepoLoader struct {
	providers []ports.SourceProvider
	schemas   *SchemaRegistry
	fallback  ports.FallbackRemoteLoader
	metrics   *metrics.Collector
	workers   int
}

func NewRemoteRepoLoader(providers []ports.SourceProvider, schemas *SchemaRegistry, fallback ports.FallbackRemoteLoader, collector *metrics.Collector) *RemoteRepoLoader {
	return &RemoteRepoLoader{
		providers: providers,
		schemas:   schemas,
		fallback:  fallback,
		metrics:   collector,
		workers:   defaultSourceFetchWorkers,
	}
}

type sourceResult struct {
	packages []types.RemotePackage
	legacy   bool
	err      error
}

// FetchPackages never fails because of a single source: fetch and parse
// failures are recorded on the source's FetchError and the remaining
// sources are still merged. Candidates are merged in source order, so
// "first seen" is the first source listed by the first provider.
func (l *RemoteRepoLoader) FetchPackages(ctx context.Context, progress ports.ProgressIndicator, downloader ports.Downloader, settings ports.SettingsController) (map[types.PackagePath]types.RemotePackage, error) {
	if downloader == nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("remote fetch requires a downloader")
	}
	if settings == nil {
		settings = types.Settings{}
	}
	sources := l.enabledSources(ctx, downloader, settings, progress)
	results := make([]sourceResult, len(sources))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.workers)
	for i, source := range sources {
		g.Go(func() error {
			if gctx.Err() != nil || progress.IsCanceled() {
				results[i] = sourceResult{err: gctx.Err()}
				return nil
			}
			results[i] = l.fetchSource(gctx, source, downloader, settings, progress)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	limit := settings.ChannelLimit()
	merged := map[types.PackagePath]types.RemotePackage{}
	for i, source := range sources {
		result := results[i]
		if result.err != nil {
			message := result.err.Error()
			setFetchError(source, message)
			progress.LogWarning(fmt.Sprintf("Failed to load source %s: %s", source.URL, message))
			l.metrics.SourceError(shared.RedactURL(source.URL))
			continue
		}
		setFetchError(source, "")
		if result.legacy {
			l.metrics.LegacySource()
		}
		for _, pkg := range result.packages {
			if pkg.Channel < source.Channel {
				pkg.Channel = source.Channel
			}
			if !pkg.Channel.Within(limit) {
				continue
			}
			mergeCandidate(merged, pkg)
		}
		if len(sources) > 0 {
			progress.SetFraction(float64(i+1) / float64(len(sources)))
		}
	}
	log.Debug().
		Int("sources", len(sources)).
		Int("packages", len(merged)).
		Str("channel", limit.String()).
		Msg("remote packages merged")
	return merged, nil
}

// sourceStateMu guards FetchError on sources handed out by providers,
// which cache them and return the same pointers to every caller.
var sourceStateMu sync.RWMutex

func setFetchError(source *types.RepositorySource, message string) {
	sourceStateMu.Lock()
	source.FetchError = message
	sourceStateMu.Unlock()
}

// snapshotSources copies sources while no fetch error is being recorded.
func snapshotSources(sources []*types.RepositorySource) []*types.RepositorySource {
	sourceStateMu.RLock()
	defer sourceStateMu.RUnlock()
	out := make([]*types.RepositorySource, 0, len(sources))
	for _, source := range sources {
		if source == nil {
			continue
		}
		copied := *source
		copied.PermittedModules = slices.Clone(source.PermittedModules)
		out = append(out, &copied)
	}
	return out
}

func (l *RemoteRepoLoader) enabledSources(ctx context.Context, downloader ports.Downloader, settings ports.SettingsController, progress ports.ProgressIndicator) []*types.RepositorySource {
	var out []*types.RepositorySource
	for _, provider := range l.providers {
		sources, err := provider.Sources(ctx, downloader, settings, progress, false)
		if err != nil {
			progress.LogWarning("Failed to read repository sources: " + err.Error())
			continue
		}
		for _, source := range sources {
			if source != nil && source.Enabled {
				out = append(out, source)
			}
		}
	}
	return out
}

func (l *RemoteRepoLoader) fetchSource(ctx context.Context, source *types.RepositorySource, downloader ports.Downloader, settings ports.SettingsController, progress ports.ProgressIndicator) sourceResult {
	location, err := sourceURL(source.URL, settings.ForceHTTPDownloads())
	if err != nil {
		return sourceResult{err: err}
	}
	stream, err := downloader.Fetch(ctx, location, progress)
	if err != nil {
		return sourceResult{err: errbuilder.New().
			WithCode(errbuilder.CodeUnavailable).
			WithMsg("failed to download " + location).
			WithCause(err)}
	}
	data, err := io.ReadAll(stream)
	_ = stream.Close()
	if err != nil {
		return sourceResult{err: errbuilder.New().
			WithCode(errbuilder.CodeUnavailable).
			WithMsg("failed to read " + location).
			WithCause(err)}
	}

	doc, parseErr := l.schemas.Unmarshal(data, source.PermittedModules)
	if parseErr == nil {
		packages := make([]types.RemotePackage, 0, len(doc.RemotePackages))
		for _, pkg := range doc.RemotePackages {
			pkg.Origin = location
			packages = append(packages, pkg)
		}
		return sourceResult{packages: packages}
	}
	log.Debug().Err(parseErr).Str("source", location).Msg("no schema module accepted source")

	if l.fallback == nil {
		return sourceResult{err: parseErr}
	}
	legacy, err := l.fallback.ParseLegacy(ctx, source, settings, progress)
	if err != nil || len(legacy) == 0 {
		if err == nil {
			err = errors.New("legacy parser found no packages")
		}
		return sourceResult{err: errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("source matched no schema module and the legacy parser failed").
			WithCause(errors.Join(parseErr, err))}
	}
	for i := range legacy {
		legacy[i].Legacy = true
		if legacy[i].Origin == "" {
			legacy[i].Origin = location
		}
	}
	return sourceResult{packages: legacy, legacy: true}
}

func sourceURL(raw string, forceHTTP bool) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if forceHTTP {
		trimmed = shared.ForceHTTP(trimmed)
	}
	parsed, err := url.Parse(trimmed)
	if err != nil || parsed.Scheme == "" || (parsed.Host == "" && parsed.Scheme != "file") {
		cause := err
		if cause == nil {
			cause = fmt.Errorf("url %q has no scheme or host", raw)
		}
		return "", errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("malformed source url").
			WithCause(cause)
	}
	return trimmed, nil
}

var _ ports.RemoteRepoLoader = (*RemoteRepoLoader)(nil)
