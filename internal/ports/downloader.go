package ports

import (
	"context"
	"io"
)

// Downloader fetches the bytes behind a URL. The remote loader calls
// Fetch from several goroutines at once, so implementations must be safe
// for concurrent use.
type Downloader interface {
	Fetch(ctx context.Context, url string, progress ProgressIndicator) (io.ReadCloser, error)
}
