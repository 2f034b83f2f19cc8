package adapters

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"pkgrepo/internal/ports"
)

// LogProgress reports progress through zerolog. It is canceled when its
// context is done or Cancel is called.
type LogProgress struct {
	ctx      context.Context
	logger   zerolog.Logger
	canceled atomic.Bool

	mu       sync.Mutex
	fraction float64
	text     string
}

func NewLogProgress(ctx context.Context) *LogProgress {
	return &LogProgress{ctx: ctx, logger: log.Logger}
}

func (p *LogProgress) Cancel() {
	p.canceled.Store(true)
}

func (p *LogProgress) SetFraction(fraction float64) {
	p.mu.Lock()
	p.fraction = fraction
	text := p.text
	p.mu.Unlock()
	p.logger.Debug().Float64("fraction", fraction).Str("step", text).Msg("progress")
}

func (p *LogProgress) SetText(text string) {
	p.mu.Lock()
	p.text = text
	p.mu.Unlock()
	p.logger.Debug().Msg(text)
}

// Fraction returns the last reported fraction.
func (p *LogProgress) Fraction() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fraction
}

func (p *LogProgress) IsCanceled() bool {
	return p.canceled.Load() || (p.ctx != nil && p.ctx.Err() != nil)
}

func (p *LogProgress) LogInfo(msg string) {
	p.logger.Info().Msg(msg)
}

func (p *LogProgress) LogWarning(msg string) {
	p.logger.Warn().Msg(msg)
}

func (p *LogProgress) LogError(msg string, err error) {
	p.logger.Error().Err(err).Msg(msg)
}

// GoroutineRunner runs sync tasks on the calling goroutine and async tasks
// on a new one. Callbacks run inline. Wait blocks until every async task
// has returned.
type GoroutineRunner struct {
	wg       sync.WaitGroup
	progress func(ctx context.Context) ports.ProgressIndicator
}

func NewGoroutineRunner() *GoroutineRunner {
	return &GoroutineRunner{}
}

// NewGoroutineRunnerWithProgress uses newProgress to build the indicator
// handed to each task.
func NewGoroutineRunnerWithProgress(newProgress func(ctx context.Context) ports.ProgressIndicator) *GoroutineRunner {
	return &GoroutineRunner{progress: newProgress}
}

func (r *GoroutineRunner) indicator(ctx context.Context) ports.ProgressIndicator {
	if r.progress != nil {
		return r.progress(ctx)
	}
	return NewLogProgress(ctx)
}

func (r *GoroutineRunner) RunSync(ctx context.Context, task ports.ProgressTask) {
	task(ctx, r.indicator(ctx))
}

func (r *GoroutineRunner) RunAsync(ctx context.Context, task ports.ProgressTask) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		task(ctx, r.indicator(ctx))
	}()
}

func (r *GoroutineRunner) RunCallbackSync(callback func()) {
	callback()
}

func (r *GoroutineRunner) Wait() {
	r.wg.Wait()
}

var _ ports.ProgressIndicator = (*LogProgress)(nil)
var _ ports.ProgressRunner = (*GoroutineRunner)(nil)
