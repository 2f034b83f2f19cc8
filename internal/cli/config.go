package cli

import (
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"pkgrepo/internal/adapters"
	"pkgrepo/internal/app"
	"pkgrepo/internal/types"
)

var newAppService = app.NewService

// serviceConfig merges flags, environment and config file, in that order
// of precedence.
func serviceConfig(cmd *cobra.Command, cfg *RootConfig) (app.Config, error) {
	channel, err := types.ParseChannel(resolveString(cmd, cfg.Channel, "channel", "channel"))
	if err != nil {
		return app.Config{}, err
	}
	return app.Config{
		LocalRoot:       resolveString(cmd, cfg.LocalRoot, "local_root", "local-root"),
		SourcesFile:     resolveString(cmd, cfg.SourcesFile, "sources_file", "sources-file"),
		Channel:         channel,
		ForceHTTP:       resolveBool(cmd, cfg.ForceHTTP, "force_http", "force-http"),
		CacheExpiration: resolveDuration(cmd, cfg.CacheExpiration, "cache_expiration", "cache-expiration"),
		HTTP: adapters.HTTPConfig{
			TimeoutSec:   resolveInt(cmd, cfg.HTTPTimeoutSec, "http_timeout_sec", "http-timeout"),
			Retries:      resolveInt(cmd, cfg.HTTPRetries, "http_retries", "http-retries"),
			RetryDelayMs: resolveInt(cmd, cfg.HTTPRetryDelayMs, "http_retry_delay_ms", "http-retry-delay-ms"),
			UserAgent:    "pkgrepo/" + version,
		},
		MetricsFile: resolveString(cmd, cfg.MetricsFile, "metrics_file", "metrics-file"),
	}, nil
}

// withService builds the service for cmd, runs fn and then writes the
// metrics file when one is configured.
func withService(cmd *cobra.Command, cfg *RootConfig, fn func(app.Service) error) error {
	config, err := serviceConfig(cmd, cfg)
	if err != nil {
		return err
	}
	service := newAppService(config)
	if err := fn(service); err != nil {
		return err
	}
	return service.WriteMetrics()
}

func resolveString(cmd *cobra.Command, value string, key string, flagName string) string {
	if cmd == nil {
		if value != "" {
			return value
		}
		return viper.GetString(key)
	}
	if flagChanged(cmd, flagName) {
		return value
	}
	return viper.GetString(key)
}

func resolveBool(cmd *cobra.Command, value bool, key string, flagName string) bool {
	if cmd == nil {
		return value
	}
	if flagChanged(cmd, flagName) {
		return value
	}
	return viper.GetBool(key)
}

func resolveInt(cmd *cobra.Command, value int, key string, flagName string) int {
	if cmd == nil {
		return value
	}
	if flagChanged(cmd, flagName) {
		return value
	}
	return viper.GetInt(key)
}

func resolveDuration(cmd *cobra.Command, value time.Duration, key string, flagName string) time.Duration {
	if cmd == nil {
		return value
	}
	if flagChanged(cmd, flagName) {
		return value
	}
	return viper.GetDuration(key)
}

func flagChanged(cmd *cobra.Command, name string) bool {
	if cmd == nil || strings.TrimSpace(name) == "" {
		return false
	}
	if flag := cmd.Flags().Lookup(name); flag != nil {
		return flag.Changed
	}
	if flag := cmd.PersistentFlags().Lookup(name); flag != nil {
		return flag.Changed
	}
	return false
}
