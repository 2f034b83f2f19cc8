package adapters

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeHTTPConfig(t *testing.T) {
	tests := []struct {
		name    string
		timeout int
		retries int
		delay   int
		want    httpRetryConfig
	}{
		{
			name: "defaults",
			want: httpRetryConfig{timeout: defaultHTTPTimeout, retries: defaultHTTPRetries, baseDelay: defaultHTTPRetryDelay},
		},
		{
			name:    "explicit",
			timeout: 5,
			retries: 1,
			delay:   10,
			want:    httpRetryConfig{timeout: 5 * time.Second, retries: 1, baseDelay: 10 * time.Millisecond},
		},
		{
			name:    "negative values",
			timeout: -1,
			retries: -2,
			delay:   -3,
			want:    httpRetryConfig{timeout: defaultHTTPTimeout, retries: defaultHTTPRetries, baseDelay: defaultHTTPRetryDelay},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizeHTTPConfig(tt.timeout, tt.retries, tt.delay))
		})
	}
}

func testDownloader() *HTTPDownloader {
	return NewHTTPDownloader(HTTPConfig{TimeoutSec: 5, Retries: 3, RetryDelayMs: 1, UserAgent: "pkgrepo-test"})
}

func readAll(t *testing.T, stream io.ReadCloser) string {
	t.Helper()
	defer stream.Close()
	data, err := io.ReadAll(stream)
	require.NoError(t, err)
	return string(data)
}

func TestHTTPDownloaderRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "pkgrepo-test", r.Header.Get("User-Agent"))
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte("<repository/>"))
	}))
	defer server.Close()

	stream, err := testDownloader().Fetch(t.Context(), server.URL+"/repo.xml", nil)
	require.NoError(t, err)
	assert.Equal(t, "<repository/>", readAll(t, stream))
	assert.EqualValues(t, 2, calls.Load())
}

func TestHTTPDownloaderErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/missing.xml":
			w.WriteHeader(http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusBadGateway)
		}
	}))
	defer server.Close()

	downloader := testDownloader()
	_, err := downloader.Fetch(t.Context(), server.URL+"/missing.xml", nil)
	require.Error(t, err)
	assert.Equal(t, errbuilder.CodeNotFound, errbuilder.CodeOf(err))

	_, err = downloader.Fetch(t.Context(), server.URL+"/broken.xml", nil)
	require.Error(t, err)
	assert.Equal(t, errbuilder.CodeUnavailable, errbuilder.CodeOf(err))

	_, err = downloader.Fetch(t.Context(), "ftp://example.com/repo.xml", nil)
	require.Error(t, err)
	assert.Equal(t, errbuilder.CodeInvalidArgument, errbuilder.CodeOf(err))
}

func TestHTTPDownloaderGzip(t *testing.T) {
	var compressed bytes.Buffer
	gz := gzip.NewWriter(&compressed)
	_, err := gz.Write([]byte("Package: tools\n"))
	require.NoError(t, err)
	require.NoError(t, gz.Close())

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(compressed.Bytes())
	}))
	defer server.Close()

	stream, err := testDownloader().Fetch(t.Context(), server.URL+"/Packages.gz", nil)
	require.NoError(t, err)
	assert.Equal(t, "Package: tools\n", readAll(t, stream))
}

func TestHTTPDownloaderFileURL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "repo.xml")
	require.NoError(t, os.WriteFile(path, []byte("<repository/>"), 0o644))

	progress := NewLogProgress(t.Context())
	stream, err := testDownloader().Fetch(t.Context(), "file://"+path, progress)
	require.NoError(t, err)
	assert.Equal(t, "<repository/>", readAll(t, stream))

	_, err = testDownloader().Fetch(t.Context(), "file://"+path+".missing", nil)
	assert.Equal(t, errbuilder.CodeNotFound, errbuilder.CodeOf(err))
}
