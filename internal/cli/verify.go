package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	deploymentsDomain "github.com/pendergraft/shipyard/internal/deployments/domain"
	"github.com/pendergraft/shipyard/internal/explorer"
	"github.com/pendergraft/shipyard/internal/orchestrator"
)

func createVerifyCmd() *cobra.Command {
	var (
		network  string
		contract string
		address  string
		args     []string
	)

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify a deployed contract on the explorer",
		Long: `Submit a deployed contract's source to the configured explorer and poll
until verification completes.

The on-chain bytecode is compared against the local artifact first; a
mismatch is rejected without contacting the explorer. If the address is
found in the deployment records, the record's verification state is
updated.

EXAMPLES:
  shipyard verify --network sepolia --contract Token --address 0x5FbD...

  # With the original constructor args
  shipyard verify --network sepolia --contract Token --address 0x5FbD... --args 1000000
`,
		RunE: func(cmd *cobra.Command, cmdArgs []string) error {
			if network == "" || contract == "" || address == "" {
				return fmt.Errorf("--network, --contract and --address are required")
			}
			return runVerify(cmd.Context(), network, contract, address, args)
		},
	}

	cmd.Flags().StringVarP(&network, "network", "n", "", "target network from config")
	cmd.Flags().StringVarP(&contract, "contract", "c", "", "contract name")
	cmd.Flags().StringVarP(&address, "address", "a", "", "deployed contract address")
	cmd.Flags().StringArrayVar(&args, "args", nil, "constructor argument used at deployment (repeatable)")

	return cmd
}

func runVerify(ctx context.Context, network, contract, address string, args []string) error {
	p, err := newPipeline()
	if err != nil {
		return err
	}
	defer p.Close()

	// Link the verification to the deployment record when we have one.
	recordID := ""
	if dep, err := p.svc.GetByAddress(ctx, network, address); err == nil {
		recordID = dep.ID
	} else if !errors.Is(err, deploymentsDomain.ErrNotFound) && !errors.Is(err, deploymentsDomain.ErrInvalidAddress) {
		return err
	}

	job, err := p.orch.Verify(ctx, orchestrator.VerifyRequest{
		Dir:      projectDir,
		Network:  network,
		Contract: contract,
		Address:  address,
		Args:     args,
		RecordID: recordID,
	})
	if err != nil {
		return err
	}

	switch job.State {
	case explorer.JobVerified:
		fmt.Printf("%s at %s verified", contract, address)
		if job.Detail != "" {
			fmt.Printf(" (%s)", job.Detail)
		}
		fmt.Println()
		return nil
	default:
		return fmt.Errorf("verification did not complete: %s", job.Detail)
	}
}
