package core

import (
	"bytes"
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"pkgrepo/internal/metrics"
	"pkgrepo/internal/ports"
	"pkgrepo/internal/types"
)

const (
	// DefaultCacheExpiration is the expiration used by ReloadLocalIfNeeded.
	DefaultCacheExpiration = 24 * time.Hour
	// KnownPackagesFileName stores the last local packages hash under the
	// local root so other processes can detect installs and removals.
	KnownPackagesFileName = ".knownPackages"

	staleTaskTimeout = 3 * time.Minute
)

// LocalLoaderFactory builds the loader used for one local scan.
type LocalLoaderFactory func(root string, fop ports.FileOps, schemas *SchemaRegistry, fallback ports.FallbackLocalLoader) ports.LocalRepoLoader

// RemoteLoaderFactory builds the loader used for one remote fetch.
type RemoteLoaderFactory func(providers []ports.SourceProvider, schemas *SchemaRegistry, fallback ports.FallbackRemoteLoader, collector *metrics.Collector) ports.RemoteRepoLoader

// LoadRequest describes one call to Load. A zero Runner runs the task on
// the calling goroutine (sync) or a new goroutine (async).
type LoadRequest struct {
	CacheExpiration time.Duration
	Callbacks       LoadCallbacks
	ForceRefresh    bool
	Runner          ports.ProgressRunner
	Downloader      ports.Downloader
	Settings        ports.SettingsController
	Sync            bool
}

// LoadResult reports what a Load call did. Reloaded is false only on the
// cache fast path; Joined is true when the call attached to a task that
// was already in flight.
type LoadResult struct {
	Reloaded bool
	Joined   bool
	LoadID   uuid.UUID
}

type ManagerOption func(*RepoManager)

func WithClock(now func() time.Time) ManagerOption {
	return func(m *RepoManager) { m.now = now }
}

func WithMetrics(collector *metrics.Collector) ManagerOption {
	return func(m *RepoManager) { m.metrics = collector }
}

func WithLocalLoaderFactory(factory LocalLoaderFactory) ManagerOption {
	return func(m *RepoManager) { m.newLocal = factory }
}

func WithRemoteLoaderFactory(factory RemoteLoaderFactory) ManagerOption {
	return func(m *RepoManager) { m.newRemote = factory }
}

func WithSchemaRegistry(registry *SchemaRegistry) ManagerOption {
	return func(m *RepoManager) { m.schemas = registry }
}

// RepoManager owns the published RepositoryPackages snapshot and
// coordinates loads so that at most one task runs at a time.
type RepoManager struct {
	fop       ports.FileOps
	schemas   *SchemaRegistry
	metrics   *metrics.Collector
	now       func() time.Time
	newLocal  LocalLoaderFactory
	newRemote RemoteLoaderFactory

	packages atomic.Pointer[types.RepositoryPackages]

	mu                sync.Mutex
	localRoot         string
	providers         []ports.SourceProvider
	localFallback     ports.FallbackLocalLoader
	remoteFallback    ports.FallbackRemoteLoader
	lastLocalRefresh  time.Time
	lastRemoteRefresh time.Time
	task              *loadTask
	localListeners    []LoadedCallback
	remoteListeners   []LoadedCallback
}

func NewRepoManager(fop ports.FileOps, opts ...ManagerOption) *RepoManager {
	m := &RepoManager{
		fop:     fop,
		schemas: NewSchemaRegistry(),
		now:     time.Now,
		newLocal: func(root string, fop ports.FileOps, schemas *SchemaRegistry, fallback ports.FallbackLocalLoader) ports.LocalRepoLoader {
			return NewLocalRepoLoader(root, fop, schemas, fallback)
		},
		newRemote: func(providers []ports.SourceProvider, schemas *SchemaRegistry, fallback ports.FallbackRemoteLoader, collector *metrics.Collector) ports.RemoteRepoLoader {
			return NewRemoteRepoLoader(providers, schemas, fallback, collector)
		},
	}
	for _, opt := range opts {
		opt(m)
	}
	m.packages.Store(types.NewRepositoryPackages(nil, nil))
	return m
}

// Packages returns the last published snapshot. It never blocks on a
// running load.
func (m *RepoManager) Packages() *types.RepositoryPackages {
	return m.packages.Load()
}

func (m *RepoManager) Schemas() *SchemaRegistry {
	return m.schemas
}

func (m *RepoManager) LocalRoot() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.localRoot
}

func (m *RepoManager) SetLocalRoot(root string) {
	m.mu.Lock()
	if root != "" {
		root = filepath.Clean(root)
	}
	m.localRoot = root
	m.mu.Unlock()
	m.MarkInvalid()
}

func (m *RepoManager) RegisterSourceProvider(provider ports.SourceProvider) {
	m.mu.Lock()
	m.providers = append(m.providers, provider)
	m.mu.Unlock()
	m.MarkInvalid()
}

func (m *RepoManager) RegisterSchemaModule(ctx context.Context, module SchemaModule) {
	m.schemas.Register(ctx, module)
	m.MarkInvalid()
}

func (m *RepoManager) SetFallbackLocalLoader(fallback ports.FallbackLocalLoader) {
	m.mu.Lock()
	m.localFallback = fallback
	m.mu.Unlock()
	m.MarkInvalid()
}

// LocalFallback returns the configured local fallback, or nil.
func (m *RepoManager) LocalFallback() ports.FallbackLocalLoader {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.localFallback
}

func (m *RepoManager) SetFallbackRemoteLoader(fallback ports.FallbackRemoteLoader) {
	m.mu.Lock()
	m.remoteFallback = fallback
	m.mu.Unlock()
	m.MarkInvalid()
}

// RegisterLocalChangeListener is called after a successful load whose
// local packages differ from the previously published ones.
func (m *RepoManager) RegisterLocalChangeListener(listener LoadedCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.localListeners = append(m.localListeners, listener)
}

// RegisterRemoteChangeListener is the remote counterpart of
// RegisterLocalChangeListener.
func (m *RepoManager) RegisterRemoteChangeListener(listener LoadedCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.remoteListeners = append(m.remoteListeners, listener)
}

// Sources lists copies of the sources of every registered provider, in
// provider order. Fetch errors are those recorded by the last load.
func (m *RepoManager) Sources(ctx context.Context, downloader ports.Downloader, settings ports.SettingsController, progress ports.ProgressIndicator, forceRefresh bool) []*types.RepositorySource {
	m.mu.Lock()
	providers := append([]ports.SourceProvider(nil), m.providers...)
	m.mu.Unlock()
	if settings == nil {
		settings = types.Settings{}
	}
	var out []*types.RepositorySource
	for _, provider := range providers {
		sources, err := provider.Sources(ctx, downloader, settings, progress, forceRefresh)
		if err != nil {
			progress.LogWarning("Failed to read repository sources: " + err.Error())
			continue
		}
		out = append(out, snapshotSources(sources)...)
	}
	return out
}

// MarkInvalid forces the next Load to bypass the cache.
func (m *RepoManager) MarkInvalid() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastLocalRefresh = time.Time{}
	m.lastRemoteRefresh = time.Time{}
}

// MarkLocalCacheInvalid forces the next Load to rescan local packages.
func (m *RepoManager) MarkLocalCacheInvalid() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastLocalRefresh = time.Time{}
}

// Load refreshes the snapshot when the cache has expired, joining a load
// already in flight instead of starting a second one. Sync loads return
// after every callback has run, with the task's error if it failed or a
// Canceled error if it was canceled.
func (m *RepoManager) Load(ctx context.Context, req LoadRequest) (LoadResult, error) {
	runner := req.Runner
	if runner == nil {
		runner = inlineRunner{}
	}

	if !req.ForceRefresh && !m.expired(req.Downloader != nil, req.CacheExpiration) {
		m.metrics.LoadOutcome(metrics.OutcomeCached)
		snapshot := m.Packages()
		deliverLoaded([]subscription{{callbacks: req.Callbacks, runner: runner}}, runner, snapshot, func(c LoadCallbacks) []LoadedCallback { return c.OnLocalComplete })
		deliverLoaded([]subscription{{callbacks: req.Callbacks, runner: runner}}, runner, snapshot, func(c LoadCallbacks) []LoadedCallback { return c.OnSuccess })
		return LoadResult{}, nil
	}

	m.mu.Lock()
	now := m.now()
	if t := m.task; t != nil && now.Sub(t.created) < staleTaskTimeout {
		if !req.Callbacks.empty() {
			t.subs = append(t.subs, subscription{callbacks: req.Callbacks, runner: runner})
		}
		m.mu.Unlock()
		m.metrics.LoadOutcome(metrics.OutcomeJoined)
		log.Debug().Str("load_id", t.id.String()).Msg("joined repository load in progress")
		result := LoadResult{Reloaded: true, Joined: true, LoadID: t.id}
		if !req.Sync {
			return result, nil
		}
		return result, t.wait(ctx)
	} else if t != nil {
		log.Warn().
			Str("load_id", t.id.String()).
			Dur("age", now.Sub(t.created)).
			Msg("abandoning stale repository load")
	}

	t := newLoadTask(now, loadPlan{
		localRoot:      m.localRoot,
		localFallback:  m.localFallback,
		providers:      append([]ports.SourceProvider(nil), m.providers...),
		remoteFallback: m.remoteFallback,
		downloader:     req.Downloader,
		settings:       req.Settings,
	}, runner, req.Callbacks)
	m.task = t
	m.mu.Unlock()

	m.metrics.LoadOutcome(metrics.OutcomeStarted)
	log.Debug().Str("load_id", t.id.String()).Bool("sync", req.Sync).Msg("starting repository load")
	body := func(ctx context.Context, progress ports.ProgressIndicator) {
		m.run(ctx, t, progress)
	}
	result := LoadResult{Reloaded: true, LoadID: t.id}
	if !req.Sync {
		runner.RunAsync(context.WithoutCancel(ctx), body)
		return result, nil
	}
	runner.RunSync(ctx, body)
	return result, t.wait(ctx)
}

// Subscribe attaches callbacks to the in-flight task identified by loadID.
// It reports false when that task has already finished, in which case no
// callback will ever run.
func (m *RepoManager) Subscribe(loadID uuid.UUID, callbacks LoadCallbacks, runner ports.ProgressRunner) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.task
	if t == nil || t.id != loadID || t.finished {
		return false
	}
	t.subs = append(t.subs, subscription{callbacks: callbacks, runner: runner})
	return true
}

// ReloadLocalIfNeeded rescans local packages when another process has
// touched the known-packages file or the set of package directories has
// changed, then runs a synchronous load with the default expiration.
func (m *RepoManager) ReloadLocalIfNeeded(ctx context.Context, runner ports.ProgressRunner) (LoadResult, error) {
	m.mu.Lock()
	root := m.localRoot
	fallback := m.localFallback
	m.mu.Unlock()
	if root == "" {
		return LoadResult{}, nil
	}

	if m.knownPackagesTouched(root) {
		m.MarkLocalCacheInvalid()
	} else if m.updateKnownPackagesHash(root, m.newLocal(root, m.fop, m.schemas, fallback)) {
		m.MarkLocalCacheInvalid()
	}
	return m.Load(ctx, LoadRequest{
		CacheExpiration: DefaultCacheExpiration,
		Runner:          runner,
		Sync:            true,
	})
}

// expired reports whether the cache needs a reload. The stamps are read
// under mu; the hash file check runs outside it.
func (m *RepoManager) expired(checkRemote bool, expiration time.Duration) bool {
	m.mu.Lock()
	root := m.localRoot
	lastLocal := m.lastLocalRefresh
	lastRemote := m.lastRemoteRefresh
	m.mu.Unlock()

	now := m.now()
	if root != "" {
		if !lastLocal.Add(expiration).After(now) {
			return true
		}
		if m.knownPackagesNewerThan(root, lastLocal) {
			return true
		}
	}
	return checkRemote && !lastRemote.Add(expiration).After(now)
}

func (m *RepoManager) knownPackagesTouched(root string) bool {
	m.mu.Lock()
	lastLocal := m.lastLocalRefresh
	m.mu.Unlock()
	return m.knownPackagesNewerThan(root, lastLocal)
}

func (m *RepoManager) knownPackagesNewerThan(root string, stamp time.Time) bool {
	path := m.knownPackagesFile(root)
	return path != "" && m.fop.LastModified(path).After(stamp)
}

// knownPackagesFile returns the hash file under root, creating it empty
// when missing. It returns "" when the file cannot be created.
func (m *RepoManager) knownPackagesFile(root string) string {
	if root == "" || m.fop == nil {
		return ""
	}
	path := filepath.Join(root, KnownPackagesFileName)
	if !m.fop.Exists(path) {
		if err := m.fop.WriteFile(path, nil); err != nil {
			log.Debug().Err(err).Str("path", path).Msg("known packages file unavailable")
			return ""
		}
	}
	return path
}

// updateKnownPackagesHash rewrites the hash file when the local packages
// hash no longer matches it and reports whether it did. The stored hash is
// only read when no package changed after the file was last written.
func (m *RepoManager) updateKnownPackagesHash(root string, local ports.LocalRepoLoader) bool {
	path := m.knownPackagesFile(root)
	hash := local.LocalPackagesHash()
	if path == "" || hash == nil {
		return false
	}
	var stored []byte
	if !local.LatestPackageUpdateTime().After(m.fop.LastModified(path)) {
		data, err := m.fop.ReadFile(path)
		if err != nil {
			return false
		}
		stored = data
	}
	if bytes.Equal(stored, hash) {
		return false
	}
	if err := m.fop.WriteFile(path, hash); err != nil {
		log.Debug().Err(err).Str("path", path).Msg("failed to write known packages file")
		return false
	}
	return true
}

// inlineRunner is used when a request carries no runner.
type inlineRunner struct{}

func (inlineRunner) RunSync(ctx context.Context, task ports.ProgressTask) {
	task(ctx, logProgress{ctx: ctx})
}

func (inlineRunner) RunAsync(ctx context.Context, task ports.ProgressTask) {
	go task(ctx, logProgress{ctx: ctx})
}

func (inlineRunner) RunCallbackSync(callback func()) {
	callback()
}

// logProgress forwards progress logging to zerolog and reports
// cancellation from its context.
type logProgress struct {
	ctx context.Context
}

func (logProgress) SetFraction(float64) {}

func (logProgress) SetText(text string) {
	log.Debug().Msg(text)
}

func (p logProgress) IsCanceled() bool {
	return p.ctx.Err() != nil
}

func (logProgress) LogInfo(msg string) {
	log.Info().Msg(msg)
}

func (logProgress) LogWarning(msg string) {
	log.Warn().Msg(msg)
}

func (logProgress) LogError(msg string, err error) {
	log.Error().Err(err).Msg(msg)
}
