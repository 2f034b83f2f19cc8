package app

import (
	"context"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/prometheus/client_golang/prometheus"

	"pkgrepo/internal/adapters"
	"pkgrepo/internal/core"
	"pkgrepo/internal/metrics"
	"pkgrepo/internal/ports"
	"pkgrepo/internal/types"
)

// Config is the resolved command line and file configuration.
type Config struct {
	LocalRoot       string
	SourcesFile     string
	Channel         types.Channel
	ForceHTTP       bool
	CacheExpiration time.Duration
	HTTP            adapters.HTTPConfig
	// MetricsFile receives the registry in the Prometheus text format
	// after a command; empty disables it.
	MetricsFile string
}

type Service struct {
	Manager         *core.RepoManager
	FileOps         ports.FileOps
	Downloader      ports.Downloader
	Settings        types.Settings
	CacheExpiration time.Duration
	Metrics         *metrics.Collector
	Registry        *prometheus.Registry
	MetricsFile     string
}

func NewService(cfg Config) Service {
	fop := adapters.NewOSFileOps()
	return NewServiceWith(cfg, fop, adapters.NewHTTPDownloader(cfg.HTTP))
}

// NewServiceWith wires a service around the given file system and
// downloader. The manager is configured from cfg and registers the legacy
// fallbacks.
func NewServiceWith(cfg Config, fop ports.FileOps, downloader ports.Downloader) Service {
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)
	manager := core.NewRepoManager(fop, core.WithMetrics(collector))
	if cfg.LocalRoot != "" {
		manager.SetLocalRoot(cfg.LocalRoot)
	}
	manager.SetFallbackLocalLoader(adapters.NewPropertiesLocalFallback(fop))
	manager.SetFallbackRemoteLoader(adapters.NewDebianRemoteFallback(downloader))
	if cfg.SourcesFile != "" {
		manager.RegisterSourceProvider(adapters.NewFileSourceProvider(cfg.SourcesFile, fop))
	}
	return Service{
		Manager:         manager,
		FileOps:         fop,
		Downloader:      downloader,
		Settings:        types.Settings{Channel: cfg.Channel, ForceHTTP: cfg.ForceHTTP},
		CacheExpiration: defaultExpiration(cfg.CacheExpiration),
		Metrics:         collector,
		Registry:        registry,
		MetricsFile:     cfg.MetricsFile,
	}
}

// WriteMetrics writes the registry to MetricsFile, replacing the file
// atomically so a node exporter textfile collector never reads a partial
// one.
func (s Service) WriteMetrics() error {
	if s.MetricsFile == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(s.MetricsFile, s.Registry); err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to write metrics file").
			WithCause(err)
	}
	return nil
}

func (s Service) newRunner() ports.ProgressRunner {
	return adapters.NewGoroutineRunner()
}

func runnerProgress(ctx context.Context) ports.ProgressIndicator {
	return adapters.NewLogProgress(ctx)
}
