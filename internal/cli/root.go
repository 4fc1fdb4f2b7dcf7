// Package cli implements the shipyard command line interface.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/pendergraft/shipyard/internal/build"
	"github.com/pendergraft/shipyard/internal/build/foundry"
	"github.com/pendergraft/shipyard/internal/build/solc"
	"github.com/pendergraft/shipyard/internal/config"
	"github.com/pendergraft/shipyard/internal/networks"
	"github.com/pendergraft/shipyard/internal/observability/metrics"
)

var (
	cfgFile    string
	projectDir string
	verbose    bool
)

// Execute runs the CLI
func Execute(version string) error {
	rootCmd := &cobra.Command{
		Use:     "shipyard",
		Short:   "Contract deployment and verification orchestrator",
		Long:    `Shipyard builds, deploys and verifies EVM smart contracts against configured networks.`,
		Version: version,

		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: shipyard.toml or sy.toml)")
	rootCmd.PersistentFlags().StringVarP(&projectDir, "dir", "d", ".", "project directory")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")

	// Add subcommands
	rootCmd.AddCommand(createBuildCmd())
	rootCmd.AddCommand(createDeployCmd())
	rootCmd.AddCommand(createCallCmd())
	rootCmd.AddCommand(createVerifyCmd())
	rootCmd.AddCommand(createNetworksCmd())
	rootCmd.AddCommand(createDeploymentsCmd())
	rootCmd.AddCommand(createConfigCmd())
	rootCmd.AddCommand(createServeCmd())

	return rootCmd.Execute()
}

// loadConfig loads the project configuration honoring the --config flag
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// cliLogger builds the logger used by pipeline components. Progress output
// goes to stdout via fmt; structured logs go to stderr so they can be
// filtered or discarded independently.
func cliLogger(cfg *config.Config) *slog.Logger {
	level := parseLogLevel(cfg.Logging.Level)
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// pushMetrics flushes pipeline counters to the configured push gateway.
// Failures never fail the command.
func pushMetrics(cfg *config.Config) {
	if err := metrics.Push(cfg.Metrics.PushURL, cfg.Metrics.Job); err != nil {
		cliLogger(cfg).Warn("pushing metrics", "gateway", cfg.Metrics.PushURL, "error", err)
	}
}

// newRegistry builds the builder registry from config
func newRegistry(cfg *config.Config) *build.Registry {
	registry := build.NewRegistry()
	registry.Register(foundry.New())
	registry.Register(newSolcCompiler(cfg))
	return registry
}

func newSolcCompiler(cfg *config.Config) *solc.Compiler {
	solcPath := cfg.Build.SolcPath
	if solcPath == "" {
		solcPath = "solc"
	}

	var cache *solc.Cache
	cacheDir := cfg.Build.CacheDir
	if cacheDir == "" {
		cacheDir = ".shipyard/cache"
	}
	if c, err := solc.NewCache(cacheDir); err == nil {
		cache = c
	}

	runs := cfg.Build.OptimizerRuns
	if runs == 0 {
		runs = config.DefaultOptimizerRuns
	}

	compiler := solc.New(solcPath, solc.Settings{
		OptimizerEnabled: true,
		OptimizerRuns:    runs,
	}, cache)
	if len(cfg.Build.Sources) > 0 {
		compiler.WithSources(cfg.Build.Sources)
	}
	return compiler
}

// newResolver builds a network resolver with an interactive key prompt
// fallback.
func newResolver(cfg *config.Config) *networks.Resolver {
	return networks.NewResolver(cfg.Networks, networks.WithKeyPrompt(promptSigningKey))
}
