package ports

import "context"

// ProgressIndicator receives progress and log output from long-running
// work and reports whether the caller has canceled it.
type ProgressIndicator interface {
	SetFraction(fraction float64)
	SetText(text string)
	IsCanceled() bool
	LogInfo(msg string)
	LogWarning(msg string)
	LogError(msg string, err error)
}

// ProgressTask is a unit of work driven by a ProgressRunner.
type ProgressTask func(ctx context.Context, progress ProgressIndicator)

// ProgressRunner is the execution substrate for loads. RunSync returns once
// task has finished; RunAsync returns immediately.
type ProgressRunner interface {
	RunSync(ctx context.Context, task ProgressTask)
	RunAsync(ctx context.Context, task ProgressTask)
	RunCallbackSync(callback func())
}
