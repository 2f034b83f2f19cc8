package core

import (
	"context"
	"fmt"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"pkgrepo/internal/metrics"
	"pkgrepo/internal/ports"
	"pkgrepo/internal/types"
)

// LoadedCallback receives a published (or, for local-complete callbacks,
// intermediate) snapshot.
type LoadedCallback func(*types.RepositoryPackages)

// ErrorCallback receives the error that ended a failed load.
type ErrorCallback func(error)

// LoadCallbacks groups the three callback lists a load can notify.
type LoadCallbacks struct {
	OnLocalComplete []LoadedCallback
	OnSuccess       []LoadedCallback
	OnError         []ErrorCallback
}

func (c LoadCallbacks) empty() bool {
	return len(c.OnLocalComplete) == 0 && len(c.OnSuccess) == 0 && len(c.OnError) == 0
}

type subscription struct {
	callbacks LoadCallbacks
	runner    ports.ProgressRunner
}

// loadPlan is the configuration captured when a task is created, so later
// setter calls on the manager cannot change a task that is already running.
type loadPlan struct {
	localRoot      string
	localFallback  ports.FallbackLocalLoader
	providers      []ports.SourceProvider
	remoteFallback ports.FallbackRemoteLoader
	downloader     ports.Downloader
	settings       ports.SettingsController
}

// loadTask is one in-flight load. Its subscriptions are guarded by the
// owning manager's mutex; done is closed after every callback has run.
type loadTask struct {
	id      uuid.UUID
	created time.Time
	plan    loadPlan
	runner  ports.ProgressRunner

	subs     []subscription
	finished bool

	done chan struct{}
	err  error
}

func newLoadTask(created time.Time, plan loadPlan, runner ports.ProgressRunner, owner LoadCallbacks) *loadTask {
	t := &loadTask{
		id:      uuid.New(),
		created: created,
		plan:    plan,
		runner:  runner,
		done:    make(chan struct{}),
	}
	t.subs = append(t.subs, subscription{callbacks: owner, runner: runner})
	return t
}

// wait blocks until the task has finished and every callback has run, or
// until ctx is done.
func (t *loadTask) wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return errbuilder.New().
			WithCode(errbuilder.CodeCanceled).
			WithMsg("stopped waiting for repository load").
			WithCause(ctx.Err())
	}
}

// drainLocal removes and returns every pending local-complete callback.
// Caller holds the manager mutex.
func (t *loadTask) drainLocal() []subscription {
	var out []subscription
	for i := range t.subs {
		if len(t.subs[i].callbacks.OnLocalComplete) == 0 {
			continue
		}
		out = append(out, subscription{
			callbacks: LoadCallbacks{OnLocalComplete: t.subs[i].callbacks.OnLocalComplete},
			runner:    t.subs[i].runner,
		})
		t.subs[i].callbacks.OnLocalComplete = nil
	}
	return out
}

// drainAll marks the task finished and hands back all remaining
// subscriptions. Caller holds the manager mutex.
func (t *loadTask) drainAll() []subscription {
	t.finished = true
	out := t.subs
	t.subs = nil
	return out
}

var errTaskCanceled = errbuilder.New().
	WithCode(errbuilder.CodeCanceled).
	WithMsg("repository load canceled")

// run is the task body handed to the runner. Local discovery strictly
// precedes the remote fetch, and nothing is published unless both phases
// complete without cancellation.
func (m *RepoManager) run(ctx context.Context, t *loadTask, progress ports.ProgressIndicator) {
	started := m.now()
	var (
		snapshot *types.RepositoryPackages
		err      error
		canceled bool
	)
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = errbuilder.New().
					WithCode(errbuilder.CodeInternal).
					WithMsg(fmt.Sprintf("repository load panicked: %v", r))
			}
		}()
		snapshot, canceled, err = m.load(ctx, t, progress)
	}()

	outcome := metrics.OutcomeSucceeded
	switch {
	case canceled:
		outcome = metrics.OutcomeCanceled
		err = errTaskCanceled
		log.Info().Str("load_id", t.id.String()).Msg("repository load canceled")
	case err != nil:
		outcome = metrics.OutcomeFailed
		progress.LogError("Failed to load repository", err)
	}
	m.metrics.LoadOutcome(outcome)
	m.finish(t, snapshot, err, canceled)
	if outcome == metrics.OutcomeSucceeded {
		m.metrics.Published(snapshot.LocalCount(), snapshot.RemoteCount(), m.now().Sub(started).Seconds())
	}
}

func (m *RepoManager) load(ctx context.Context, t *loadTask, progress ports.ProgressIndicator) (*types.RepositoryPackages, bool, error) {
	isCanceled := func() bool { return ctx.Err() != nil || progress.IsCanceled() }
	if isCanceled() {
		return nil, true, nil
	}
	snapshot := m.Packages()

	if t.plan.localRoot != "" {
		if refreshable, ok := t.plan.localFallback.(ports.RefreshableFallback); ok {
			refreshable.Refresh()
		}
		progress.SetText("Loading local repository...")
		local := m.newLocal(t.plan.localRoot, m.fop, m.schemas, t.plan.localFallback)
		snapshot = snapshot.WithLocal(local.Packages(progress))
		m.updateKnownPackagesHash(t.plan.localRoot, local)
		progress.SetFraction(0.25)
	}
	if isCanceled() {
		return nil, true, nil
	}

	m.mu.Lock()
	pending := t.drainLocal()
	m.mu.Unlock()
	deliverLoaded(pending, t.runner, snapshot, func(c LoadCallbacks) []LoadedCallback { return c.OnLocalComplete })

	if len(t.plan.providers) > 0 && t.plan.downloader != nil {
		progress.SetText("Fetching remote repository...")
		remote := m.newRemote(t.plan.providers, m.schemas, t.plan.remoteFallback, m.metrics)
		remotes, err := remote.FetchPackages(ctx, progress, t.plan.downloader, t.plan.settings)
		if err != nil {
			if isCanceled() {
				return nil, true, nil
			}
			return nil, false, err
		}
		progress.SetText("Computing updates...")
		snapshot = snapshot.WithRemote(remotes)
		progress.SetFraction(0.75)
	}
	if isCanceled() {
		return nil, true, nil
	}
	progress.SetFraction(1)
	return snapshot, false, nil
}

// finish publishes a successful snapshot and notifies subscribers. The
// manager's task reference is only cleared when t is still the current
// task, so an abandoned task cannot detach its replacement.
func (m *RepoManager) finish(t *loadTask, snapshot *types.RepositoryPackages, err error, canceled bool) {
	m.mu.Lock()
	if m.task == t {
		m.task = nil
	}
	subs := t.drainAll()
	t.err = err
	var previous *types.RepositoryPackages
	if err == nil {
		previous = m.packages.Swap(snapshot)
		now := m.now()
		if t.plan.localRoot != "" {
			m.lastLocalRefresh = now
		}
		if t.plan.downloader != nil {
			m.lastRemoteRefresh = now
		}
	}
	localListeners := append([]LoadedCallback(nil), m.localListeners...)
	remoteListeners := append([]LoadedCallback(nil), m.remoteListeners...)
	m.mu.Unlock()

	defer close(t.done)
	switch {
	case canceled:
		return
	case err != nil:
		for _, sub := range subs {
			for _, callback := range sub.callbacks.OnError {
				callback(err)
			}
		}
		return
	}

	if !snapshot.SameLocal(previous) {
		for _, listener := range localListeners {
			listener(snapshot)
		}
	}
	if !snapshot.SameRemote(previous) {
		for _, listener := range remoteListeners {
			listener(snapshot)
		}
	}
	deliverLoaded(subs, t.runner, snapshot, func(c LoadCallbacks) []LoadedCallback { return c.OnLocalComplete })
	deliverLoaded(subs, t.runner, snapshot, func(c LoadCallbacks) []LoadedCallback { return c.OnSuccess })
}

// deliverLoaded runs the selected callbacks of each subscription on that
// subscription's runner, or on fallback when it has none.
func deliverLoaded(subs []subscription, fallback ports.ProgressRunner, snapshot *types.RepositoryPackages, pick func(LoadCallbacks) []LoadedCallback) {
	for _, sub := range subs {
		runner := sub.runner
		if runner == nil {
			runner = fallback
		}
		for _, callback := range pick(sub.callbacks) {
			runner.RunCallbackSync(func() { callback(snapshot) })
		}
	}
}
