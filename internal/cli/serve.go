package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pendergraft/shipyard/internal/observability/metrics"
	"github.com/pendergraft/shipyard/internal/server"
	"github.com/pendergraft/shipyard/internal/storage"
)

func createServeCmd() *cobra.Command {
	var enableMetrics bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the deployment records over HTTP",
		Long: `Start a read-only HTTP API over the deployment record store.

The server exposes /v1/deployments for listing and lookup, /health for
probes and, with --metrics, Prometheus metrics on /metrics. All writes
happen through the CLI pipeline; the server never mutates the store.
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(enableMetrics)
		},
	}

	cmd.Flags().BoolVar(&enableMetrics, "metrics", false, "expose Prometheus metrics on /metrics")

	return cmd
}

func runServe(enableMetrics bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger := cliLogger(cfg)
	metrics.Init(enableMetrics, cfg.Metrics.Job)

	store, err := storage.New(cfg.Storage, logger)
	if err != nil {
		return fmt.Errorf("initializing storage: %w", err)
	}
	defer store.Close()

	if err := store.Migrate(context.Background()); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	srv := server.New(cfg, store, logger)

	httpServer := &http.Server{
		Addr:         srv.Addr(),
		Handler:      srv.Handler(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		logger.Info("shutting down", "signal", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}

	logger.Info("server stopped")
	return nil
}
