package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pendergraft/shipyard/internal/orchestrator"
)

func createCallCmd() *cobra.Command {
	var (
		network  string
		contract string
		address  string
		method   string
		args     []string
		value    string
		view     bool
	)

	cmd := &cobra.Command{
		Use:   "call",
		Short: "Call a method on a deployed contract",
		Long: `Call a method on an already deployed contract using the project's ABI.

State-changing calls go through the full broadcast pipeline with simulation
and receipt polling. Use --view for read-only methods; those are executed
via eth_call and print the decoded return values.

EXAMPLES:
  # Read-only call
  shipyard call --network sepolia --contract Token --address 0x5FbD... --method balanceOf --args 0xAb58... --view

  # State-changing call
  shipyard call --network sepolia --contract Token --address 0x5FbD... --method transfer --args 0xAb58... --args 1000
`,
		RunE: func(cmd *cobra.Command, cmdArgs []string) error {
			if network == "" || contract == "" || address == "" || method == "" {
				return fmt.Errorf("--network, --contract, --address and --method are required")
			}
			return runCall(cmd.Context(), network, contract, address, method, args, value, view)
		},
	}

	cmd.Flags().StringVarP(&network, "network", "n", "", "target network from config")
	cmd.Flags().StringVarP(&contract, "contract", "c", "", "contract name (for the ABI)")
	cmd.Flags().StringVarP(&address, "address", "a", "", "deployed contract address")
	cmd.Flags().StringVarP(&method, "method", "m", "", "method name")
	cmd.Flags().StringArrayVar(&args, "args", nil, "method argument (repeatable, in order)")
	cmd.Flags().StringVar(&value, "value", "", "wei to send with the call")
	cmd.Flags().BoolVar(&view, "view", false, "read-only call via eth_call")

	return cmd
}

func runCall(ctx context.Context, network, contract, address, method string, args []string, value string, view bool) error {
	valueWei, err := parseValue(value)
	if err != nil {
		return err
	}

	p, err := newPipeline()
	if err != nil {
		return err
	}
	defer p.Close()

	result, values, err := p.orch.Call(ctx, orchestrator.CallRequest{
		Dir:      projectDir,
		Network:  network,
		Contract: contract,
		Address:  address,
		Method:   method,
		Args:     args,
		Value:    valueWei,
		View:     view,
	})
	if err != nil {
		return err
	}

	if view {
		for _, v := range values {
			fmt.Println(formatReturnValue(v))
		}
		return nil
	}

	fmt.Printf("%s.%s executed\n", contract, method)
	fmt.Printf("  tx:        %s\n", result.TxHash.Hex())
	fmt.Printf("  block:     %d\n", result.BlockNumber)
	fmt.Printf("  gas used:  %d\n", result.GasUsed)
	return nil
}

func formatReturnValue(v any) string {
	switch val := v.(type) {
	case fmt.Stringer:
		return val.String()
	case []byte:
		return fmt.Sprintf("0x%x", val)
	default:
		return fmt.Sprintf("%v", val)
	}
}
