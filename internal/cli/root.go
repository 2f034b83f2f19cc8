package cli

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// version is set at build time via ldflags.
var version = "dev"

const envPrefix = "PKGREPO"

type RootConfig struct {
	ConfigFile       string
	LogLevel         string
	LocalRoot        string
	SourcesFile      string
	Channel          string
	ForceHTTP        bool
	CacheExpiration  time.Duration
	HTTPTimeoutSec   int
	HTTPRetries      int
	HTTPRetryDelayMs int
	MetricsFile      string
}

func Execute() {
	root := newRootCommand()
	if err := root.Execute(); err != nil {
		log.Error().Err(err).Msg(errorMessage(err))
		os.Exit(exitCodeForError(err))
	}
}

func newRootCommand() *cobra.Command {
	cfg := &RootConfig{}
	cmd := &cobra.Command{
		Use:           "pkgrepo",
		Short:         "Inspect installed and available repository packages",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := initConfig(cfg.ConfigFile); err != nil {
				return err
			}
			setupLogging(viper.GetString("log_level"))
			return nil
		},
	}
	flags := cmd.PersistentFlags()
	flags.StringVar(&cfg.ConfigFile, "config", "", "Config file path")
	flags.StringVar(&cfg.LogLevel, "log-level", "info", "Log level")
	flags.StringVar(&cfg.LocalRoot, "local-root", "", "Directory holding installed packages")
	flags.StringVar(&cfg.SourcesFile, "sources-file", "", "YAML list of remote sources")
	flags.StringVar(&cfg.Channel, "channel", "stable", "Least stable channel to include (stable, beta, dev, canary)")
	flags.BoolVar(&cfg.ForceHTTP, "force-http", false, "Download https sources over plain http")
	flags.DurationVar(&cfg.CacheExpiration, "cache-expiration", 24*time.Hour, "How long a loaded repository stays fresh")
	flags.IntVar(&cfg.HTTPTimeoutSec, "http-timeout", 60, "HTTP timeout in seconds (0 = default)")
	flags.IntVar(&cfg.HTTPRetries, "http-retries", 3, "HTTP attempts (0 = default)")
	flags.IntVar(&cfg.HTTPRetryDelayMs, "http-retry-delay-ms", 200, "HTTP retry base delay in ms (0 = default)")
	flags.StringVar(&cfg.MetricsFile, "metrics-file", "", "Write Prometheus metrics to this file after the command")

	_ = viper.BindPFlag("log_level", flags.Lookup("log-level"))
	_ = viper.BindPFlag("local_root", flags.Lookup("local-root"))
	_ = viper.BindPFlag("sources_file", flags.Lookup("sources-file"))
	_ = viper.BindPFlag("channel", flags.Lookup("channel"))
	_ = viper.BindPFlag("force_http", flags.Lookup("force-http"))
	_ = viper.BindPFlag("cache_expiration", flags.Lookup("cache-expiration"))
	_ = viper.BindPFlag("http_timeout_sec", flags.Lookup("http-timeout"))
	_ = viper.BindPFlag("http_retries", flags.Lookup("http-retries"))
	_ = viper.BindPFlag("http_retry_delay_ms", flags.Lookup("http-retry-delay-ms"))
	_ = viper.BindPFlag("metrics_file", flags.Lookup("metrics-file"))

	cmd.AddCommand(newListCommand(cfg))
	cmd.AddCommand(newHashCommand(cfg))
	cmd.AddCommand(newValidateCommand(cfg))
	cmd.AddCommand(newSourcesCommand(cfg))
	return cmd
}

func initConfig(configFile string) error {
	viper.SetEnvPrefix(envPrefix)
	viper.AutomaticEnv()

	if configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return errbuilder.New().
				WithCode(errbuilder.CodeInvalidArgument).
				WithMsg("failed to read config file").
				WithCause(err)
		}
		return nil
	}

	viper.SetConfigName("pkgrepo")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.config/pkgrepo")
	if err := viper.ReadInConfig(); err != nil {
		return nil
	}
	return nil
}

func setupLogging(level string) {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

func exitCodeForError(err error) int {
	code := errbuilder.CodeOf(err)
	switch code {
	case errbuilder.CodeInvalidArgument, errbuilder.CodeAlreadyExists:
		return 2
	case errbuilder.CodeFailedPrecondition, errbuilder.CodePermissionDenied:
		return 3
	case errbuilder.CodeUnavailable:
		return 4
	case errbuilder.CodeNotFound, errbuilder.CodeInternal:
		return 5
	case errbuilder.CodeCanceled:
		return 130
	default:
		return 1
	}
}

func errorMessage(err error) string {
	var builder *errbuilder.ErrBuilder
	if errors.As(err, &builder) && strings.TrimSpace(builder.Msg) != "" {
		return builder.Msg
	}
	return err.Error()
}
