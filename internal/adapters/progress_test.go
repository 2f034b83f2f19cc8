package adapters

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"

	"pkgrepo/internal/ports"
)

func TestLogProgress(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	progress := NewLogProgress(ctx)

	progress.SetText("Loading local repository...")
	progress.SetFraction(0.25)
	progress.LogInfo("info")
	progress.LogWarning("warning")
	progress.LogError("error", errors.New("boom"))
	assert.InDelta(t, 0.25, progress.Fraction(), 1e-9)
	assert.False(t, progress.IsCanceled())

	cancel()
	assert.True(t, progress.IsCanceled())

	manual := NewLogProgress(t.Context())
	manual.Cancel()
	assert.True(t, manual.IsCanceled())
}

func TestGoroutineRunner(t *testing.T) {
	runner := NewGoroutineRunner()
	var ran atomic.Int32
	task := func(_ context.Context, progress ports.ProgressIndicator) {
		assert.NotNil(t, progress)
		ran.Add(1)
	}

	runner.RunSync(t.Context(), task)
	assert.EqualValues(t, 1, ran.Load())

	for range 3 {
		runner.RunAsync(t.Context(), task)
	}
	runner.Wait()
	assert.EqualValues(t, 4, ran.Load())

	called := false
	runner.RunCallbackSync(func() { called = true })
	assert.True(t, called)
}

func TestGoroutineRunnerWithProgress(t *testing.T) {
	shared := NewLogProgress(t.Context())
	shared.Cancel()
	runner := NewGoroutineRunnerWithProgress(func(context.Context) ports.ProgressIndicator { return shared })

	var canceled bool
	runner.RunSync(t.Context(), func(_ context.Context, progress ports.ProgressIndicator) {
		canceled = progress.IsCanceled()
	})
	assert.True(t, canceled)
}
