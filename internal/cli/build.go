package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pendergraft/shipyard/internal/build"
	"github.com/pendergraft/shipyard/internal/config"
	"github.com/pendergraft/shipyard/internal/observability/metrics"
)

// compilingBuilder is implemented by builders that run a compile step before
// artifacts exist on disk. Foundry shells out to forge; the plain solc
// builder compiles inside Discover.
type compilingBuilder interface {
	Build(ctx context.Context, dir string) error
}

func createBuildCmd() *cobra.Command {
	var contracts []string
	var exclude []string

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Compile contracts and list artifacts",
		Long: `Compile the project with the detected builder and list the resulting
contract artifacts.

Foundry projects are compiled with forge; plain Solidity projects go
straight through solc --standard-json with an on-disk compilation cache.

EXAMPLES:
  # Build everything
  shipyard build

  # Build and show only selected contracts
  shipyard build --contract Token --contract Vault

  # Skip test and script contracts
  shipyard build --exclude Test --exclude Script
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(cmd.Context(), contracts, exclude)
		},
	}

	cmd.Flags().StringSliceVar(&contracts, "contract", nil, "contract to include (repeatable)")
	cmd.Flags().StringSliceVar(&exclude, "exclude", nil, "contract name pattern to exclude (repeatable)")

	return cmd
}

func runBuild(ctx context.Context, contracts, exclude []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	metrics.Init(cfg.Metrics.PushURL != "", cfg.Metrics.Job)
	defer pushMetrics(cfg)
	registry := newRegistry(cfg)

	builder, err := selectBuilder(cfg, registry)
	if err != nil {
		return err
	}

	if cb, ok := builder.(compilingBuilder); ok {
		if err := cb.Build(ctx, projectDir); err != nil {
			metrics.Compile(builder.Name(), "error")
			return reportCompileError(err)
		}
	}

	paths, err := builder.Discover(projectDir, build.DiscoverOptions{
		Contracts: contracts,
		Exclude:   exclude,
	})
	if err != nil {
		metrics.Compile(builder.Name(), "error")
		return reportCompileError(err)
	}
	metrics.Compile(builder.Name(), "ok")

	if len(paths) == 0 {
		fmt.Println("No contract artifacts found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CONTRACT\tSOURCE\tCOMPILER\tDEPLOYABLE")
	for _, path := range paths {
		artifact, err := builder.Parse(path)
		if err != nil {
			return fmt.Errorf("parsing artifact %s: %w", path, err)
		}
		deployable := "yes"
		if !artifact.HasBytecode() {
			deployable = "no"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", artifact.Name, artifact.SourcePath, artifact.Compiler.Version, deployable)
	}
	w.Flush()

	fmt.Printf("\n%d artifact(s) built with %s\n", len(paths), builder.DisplayName())
	return nil
}

// selectBuilder honors the configured builder and falls back to detection.
func selectBuilder(cfg *config.Config, registry *build.Registry) (build.Builder, error) {
	if cfg.Build.Builder != "" {
		builder, ok := registry.Get(cfg.Build.Builder)
		if !ok {
			return nil, fmt.Errorf("unknown builder %q", cfg.Build.Builder)
		}
		return builder, nil
	}
	return registry.DetectBuilder(projectDir)
}

// reportCompileError prints compiler diagnostics in full before returning a
// short error for the exit path.
func reportCompileError(err error) error {
	var compileErr *build.CompileError
	if errors.As(err, &compileErr) {
		for _, d := range compileErr.Diagnostics {
			fmt.Fprintln(os.Stderr, d.String())
		}
		return fmt.Errorf("compilation failed")
	}
	return err
}
