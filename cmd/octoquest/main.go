// Package main implements the octoquest CLI for inspecting and managing
// achievement progress and API quota.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/octoquest/internal/config"
	"github.com/fyrsmithlabs/octoquest/internal/ghclient"
	"github.com/fyrsmithlabs/octoquest/internal/logging"
	"github.com/fyrsmithlabs/octoquest/internal/progress"
	"github.com/fyrsmithlabs/octoquest/internal/ratelimit"
	"github.com/fyrsmithlabs/octoquest/internal/telemetry"
)

var (
	// configPath overrides the default config file location
	configPath string
	// version information
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "octoquest",
	Short: "GitHub achievement progress and rate limit tooling",
	Long: `octoquest tracks progress toward GitHub achievements and keeps API usage
inside rate limits. It persists progress durably with automatic backups and
recovers from corrupted state on its own.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"config file path (default ~/.config/octoquest/config.yaml)")
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(quotaCmd)
	rootCmd.AddCommand(validateCmd)
}

// loadConfig loads and validates the full configuration.
func loadConfig() (*config.Config, error) {
	if err := config.EnsureConfigDir(); err != nil {
		return nil, err
	}
	return config.Load(configPath)
}

// newLogger builds the configured logger. Callers must Sync before exit.
func newLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.NewLogger(&cfg.Logging)
}

// openStore opens the progress store, recovering from corruption if needed.
func openStore(cfg *config.Config, logger *zap.Logger) (*progress.Store, error) {
	return progress.NewStore(&cfg.Progress, logger)
}

// buildClient wires the limiter and the API client together. The client is
// also the limiter's quota source, so the fetcher is installed after both
// exist.
func buildClient(cfg *config.Config, logger *zap.Logger) (*ghclient.Client, error) {
	limiter := ratelimit.New(&cfg.RateLimit, nil, logger)
	client, err := ghclient.New(cfg.GitHub.ClientConfig(), limiter, logger)
	if err != nil {
		return nil, err
	}
	limiter.SetFetcher(client)
	return client, nil
}

// setupTelemetry initializes the global otel providers. The returned
// shutdown function flushes pending telemetry and must run before exit.
func setupTelemetry(ctx context.Context, cfg *config.Config, logger *zap.Logger) (func(), error) {
	tel, err := telemetry.New(ctx, &cfg.Telemetry, logger)
	if err != nil {
		return nil, err
	}
	return func() {
		if err := tel.Shutdown(context.Background()); err != nil {
			logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}, nil
}

// syncLogger flushes buffered log entries, reporting failures to stderr.
func syncLogger(logger *zap.Logger) {
	if err := logging.Sync(logger); err != nil {
		fmt.Fprintf(os.Stderr, "failed to sync logger: %v\n", err)
	}
}
