package adapters

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/klauspost/compress/gzip"

	"pkgrepo/internal/ports"
	"pkgrepo/internal/shared"
)

const defaultHTTPTimeout = 60 * time.Second
const defaultHTTPRetries = 3
const defaultHTTPRetryDelay = 200 * time.Millisecond
const maxHTTPRetryDelay = 2 * time.Second

// HTTPConfig mirrors the http_* configuration keys. Non-positive values
// select the defaults.
type HTTPConfig struct {
	TimeoutSec   int
	Retries      int
	RetryDelayMs int
	UserAgent    string
}

type httpRetryConfig struct {
	timeout   time.Duration
	retries   int
	baseDelay time.Duration
}

func normalizeHTTPConfig(timeoutSec int, retries int, delayMs int) httpRetryConfig {
	timeout := time.Duration(timeoutSec) * time.Second
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	retryCount := retries
	if retryCount <= 0 {
		retryCount = defaultHTTPRetries
	}
	baseDelay := time.Duration(delayMs) * time.Millisecond
	if baseDelay <= 0 {
		baseDelay = defaultHTTPRetryDelay
	}
	return httpRetryConfig{
		timeout:   timeout,
		retries:   retryCount,
		baseDelay: baseDelay,
	}
}

// HTTPDownloader fetches http(s) URLs with retries and reads file URLs
// straight from disk. Documents whose name ends in .gz are decompressed.
type HTTPDownloader struct {
	client    *retryablehttp.Client
	userAgent string
}

func NewHTTPDownloader(cfg HTTPConfig) *HTTPDownloader {
	retryCfg := normalizeHTTPConfig(cfg.TimeoutSec, cfg.Retries, cfg.RetryDelayMs)
	client := retryablehttp.NewClient()
	client.RetryMax = retryCfg.retries - 1
	client.RetryWaitMin = retryCfg.baseDelay
	client.RetryWaitMax = maxHTTPRetryDelay
	client.HTTPClient.Timeout = retryCfg.timeout
	client.Logger = nil
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = "pkgrepo"
	}
	return &HTTPDownloader{client: client, userAgent: userAgent}
}

func (d *HTTPDownloader) Fetch(ctx context.Context, rawURL string, progress ports.ProgressIndicator) (io.ReadCloser, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("invalid url " + rawURL).
			WithCause(err)
	}
	if progress != nil {
		progress.SetText("Downloading " + rawURL)
	}
	var body io.ReadCloser
	switch parsed.Scheme {
	case "file":
		file, err := os.Open(parsed.Path)
		if err != nil {
			return nil, errbuilder.New().
				WithCode(errbuilder.CodeNotFound).
				WithMsg("failed to open " + rawURL).
				WithCause(err)
		}
		body = file
	case "http", "https":
		body, err = d.get(ctx, rawURL)
		if err != nil {
			return nil, err
		}
	default:
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg(fmt.Sprintf("unsupported url scheme %q", parsed.Scheme))
	}
	if !strings.HasSuffix(parsed.Path, ".gz") {
		return body, nil
	}
	gz, err := gzip.NewReader(body)
	if err != nil {
		_ = body.Close()
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to read gzipped document " + rawURL).
			WithCause(err)
	}
	return gzipReadCloser{Reader: gz, body: body}, nil
}

func (d *HTTPDownloader) get(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to create request").
			WithCause(err)
	}
	req.Header.Set("User-Agent", d.userAgent)
	resp, err := d.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errbuilder.New().
				WithCode(errbuilder.CodeCanceled).
				WithMsg("request canceled").
				WithCause(ctx.Err())
		}
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeUnavailable).
			WithMsg("request failed").
			WithCause(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		code := errbuilder.CodeUnavailable
		if resp.StatusCode == http.StatusNotFound {
			code = errbuilder.CodeNotFound
		}
		return nil, errbuilder.New().
			WithCode(code).
			WithMsg("unexpected response").
			WithCause(shared.HTTPStatusError(resp.StatusCode, rawURL))
	}
	return resp.Body, nil
}

type gzipReadCloser struct {
	*gzip.Reader
	body io.Closer
}

func (g gzipReadCloser) Close() error {
	gzErr := g.Reader.Close()
	if err := g.body.Close(); err != nil {
		return err
	}
	return gzErr
}

var _ ports.Downloader = (*HTTPDownloader)(nil)
