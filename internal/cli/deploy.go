package cli

import (
	"context"
	"fmt"
	"math/big"

	"github.com/spf13/cobra"

	"github.com/pendergraft/shipyard/internal/config"
	deploymentsDomain "github.com/pendergraft/shipyard/internal/deployments/domain"
	"github.com/pendergraft/shipyard/internal/observability/metrics"
	"github.com/pendergraft/shipyard/internal/orchestrator"
	"github.com/pendergraft/shipyard/internal/storage"
)

func createDeployCmd() *cobra.Command {
	var (
		network  string
		contract string
		args     []string
		value    string
		verify   bool
		planFile string
	)

	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Deploy a contract to a configured network",
		Long: `Deploy a compiled contract. The transaction is simulated first; a failed
simulation aborts before anything is signed or broadcast. Every transaction
that reaches the chain is recorded, including reverted ones.

EXAMPLES:
  # Deploy with constructor args
  shipyard deploy --network sepolia --contract Token --args 1000000 --args 0xAb58...

  # Deploy and verify on the configured explorer
  shipyard deploy --network sepolia --contract Token --verify

  # Attach value (wei)
  shipyard deploy --network sepolia --contract Vault --value 1000000000000000000

  # Deploy a whole plan concurrently
  shipyard deploy --network sepolia --plan deploy.yaml
`,
		RunE: func(cmd *cobra.Command, cmdArgs []string) error {
			if planFile != "" {
				return runDeployPlan(cmd.Context(), planFile)
			}
			if contract == "" {
				return fmt.Errorf("--contract is required (or use --plan)")
			}
			if network == "" {
				return fmt.Errorf("--network is required")
			}
			return runDeploy(cmd.Context(), network, contract, args, value, verify)
		},
	}

	cmd.Flags().StringVarP(&network, "network", "n", "", "target network from config")
	cmd.Flags().StringVarP(&contract, "contract", "c", "", "contract name")
	cmd.Flags().StringArrayVar(&args, "args", nil, "constructor argument (repeatable, in order)")
	cmd.Flags().StringVar(&value, "value", "", "wei to send with the deployment")
	cmd.Flags().BoolVar(&verify, "verify", false, "verify on the explorer after deployment")
	cmd.Flags().StringVar(&planFile, "plan", "", "YAML deployment plan")

	return cmd
}

// pipeline bundles the orchestrator with the store it records into. Close
// pushes pipeline metrics (when a gateway is configured) and releases the
// store.
type pipeline struct {
	orch  *orchestrator.Orchestrator
	svc   deploymentsDomain.Service
	store storage.Store
	cfg   *config.Config
}

func (p *pipeline) Close() {
	pushMetrics(p.cfg)
	p.store.Close()
}

func newPipeline() (*pipeline, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger := cliLogger(cfg)
	metrics.Init(cfg.Metrics.PushURL != "", cfg.Metrics.Job)

	store, err := storage.New(cfg.Storage, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing storage: %w", err)
	}
	if err := store.Migrate(context.Background()); err != nil {
		store.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	svc := deploymentsDomain.NewService(store)
	orch := orchestrator.New(cfg, newRegistry(cfg), newResolver(cfg), svc, logger)
	return &pipeline{orch: orch, svc: svc, store: store, cfg: cfg}, nil
}

func runDeploy(ctx context.Context, network, contract string, args []string, value string, verify bool) error {
	valueWei, err := parseValue(value)
	if err != nil {
		return err
	}

	p, err := newPipeline()
	if err != nil {
		return err
	}
	defer p.Close()

	outcome, err := p.orch.Run(ctx, orchestrator.DeployRequest{
		Dir:      projectDir,
		Network:  network,
		Contract: contract,
		Args:     args,
		Value:    valueWei,
		Verify:   verify,
	})
	if err != nil {
		return err
	}

	printOutcome(outcome)
	return nil
}

func runDeployPlan(ctx context.Context, planFile string) error {
	plan, err := orchestrator.LoadPlan(planFile)
	if err != nil {
		return err
	}

	p, err := newPipeline()
	if err != nil {
		return err
	}
	defer p.Close()

	outcomes, err := p.orch.RunPlan(ctx, projectDir, plan)
	for _, outcome := range outcomes {
		if outcome != nil && outcome.Result != nil {
			printOutcome(outcome)
		}
	}
	if err != nil {
		return err
	}

	fmt.Printf("\n%d contract(s) deployed to %s\n", len(outcomes), plan.Network)
	return nil
}

func printOutcome(outcome *orchestrator.DeployOutcome) {
	result := outcome.Result
	fmt.Printf("%s deployed\n", outcome.Artifact.Name)
	fmt.Printf("  address:   %s\n", result.ContractAddress.Hex())
	fmt.Printf("  tx:        %s\n", result.TxHash.Hex())
	fmt.Printf("  block:     %d\n", result.BlockNumber)
	fmt.Printf("  gas used:  %d\n", result.GasUsed)
	if outcome.Job != nil {
		fmt.Printf("  verified:  %s", outcome.Job.State)
		if outcome.Job.Detail != "" {
			fmt.Printf(" (%s)", outcome.Job.Detail)
		}
		fmt.Println()
	}
}

// parseValue parses a decimal wei amount.
func parseValue(value string) (*big.Int, error) {
	if value == "" {
		return nil, nil
	}
	v, ok := new(big.Int).SetString(value, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("invalid --value %q: expected decimal wei", value)
	}
	return v, nil
}
