package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pendergraft/shipyard/internal/deployments/domain"
)

func createDeploymentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deployments",
		Short: "Inspect recorded deployments",
	}

	cmd.AddCommand(createDeploymentsListCmd())
	cmd.AddCommand(createDeploymentsInfoCmd())

	return cmd
}

func createDeploymentsListCmd() *cobra.Command {
	var (
		network    string
		contract   string
		verified   bool
		unverified bool
		limit      int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded deployments",
		Long: `List deployments from the record store, newest first.

EXAMPLES:
  # All deployments
  shipyard deployments list

  # Deployments of one contract on one network
  shipyard deployments list --network sepolia --contract Token

  # Only unverified deployments
  shipyard deployments list --unverified
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var verifiedFilter *bool
			if verified {
				v := true
				verifiedFilter = &v
			} else if unverified {
				v := false
				verifiedFilter = &v
			}
			return runDeploymentsList(cmd.Context(), network, contract, verifiedFilter, limit, jsonOutput)
		},
	}

	cmd.Flags().StringVarP(&network, "network", "n", "", "filter by network")
	cmd.Flags().StringVarP(&contract, "contract", "c", "", "filter by contract")
	cmd.Flags().BoolVar(&verified, "verified", false, "only verified deployments")
	cmd.Flags().BoolVar(&unverified, "unverified", false, "only unverified deployments")
	cmd.Flags().IntVar(&limit, "limit", 20, "number of deployments to show")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	return cmd
}

func runDeploymentsList(ctx context.Context, network, contract string, verified *bool, limit int, jsonOutput bool) error {
	p, err := newPipeline()
	if err != nil {
		return err
	}
	defer p.Close()

	result, err := p.svc.List(ctx, domain.ListFilter{
		Network:  network,
		Contract: contract,
		Verified: verified,
	}, domain.PaginationParams{Limit: limit})
	if err != nil {
		return fmt.Errorf("listing deployments: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"deployments": result.Deployments,
			"count":       len(result.Deployments),
			"hasMore":     result.HasMore,
			"nextCursor":  result.NextCursor,
		})
	}

	if len(result.Deployments) == 0 {
		fmt.Println("No deployments found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCONTRACT\tNETWORK\tADDRESS\tSTATUS\tVERIFIED\tCREATED")
	for _, d := range result.Deployments {
		idDisplay := d.ID
		if len(idDisplay) > 8 {
			idDisplay = idDisplay[:8] + "..."
		}
		verifiedCol := "no"
		if d.Verified {
			verifiedCol = "yes"
		}
		address := d.Address
		if address == "" {
			address = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			idDisplay, d.Contract, d.Network, address, d.Status, verifiedCol,
			d.CreatedAt.Format("2006-01-02 15:04"))
	}
	w.Flush()

	if result.HasMore {
		fmt.Printf("\n(showing %d deployments, more available)\n", len(result.Deployments))
	}
	return nil
}

func createDeploymentsInfoCmd() *cobra.Command {
	var network string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "info <id-or-address>",
		Short: "Show one deployment record",
		Long: `Show a deployment record by its ID, or by contract address together
with --network.

EXAMPLES:
  shipyard deployments info 7f3c21aa-...
  shipyard deployments info 0x5FbD... --network sepolia
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeploymentsInfo(cmd.Context(), args[0], network, jsonOutput)
		},
	}

	cmd.Flags().StringVarP(&network, "network", "n", "", "network (required when looking up by address)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	return cmd
}

func runDeploymentsInfo(ctx context.Context, ref, network string, jsonOutput bool) error {
	p, err := newPipeline()
	if err != nil {
		return err
	}
	defer p.Close()

	var dep *domain.Deployment
	if strings.HasPrefix(ref, "0x") {
		if network == "" {
			return fmt.Errorf("--network is required when looking up by address")
		}
		dep, err = p.svc.GetByAddress(ctx, network, ref)
	} else {
		dep, err = p.svc.Get(ctx, ref)
	}
	if err != nil {
		return fmt.Errorf("fetching deployment: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(dep)
	}

	fmt.Printf("Deployment %s\n", dep.ID)
	fmt.Printf("  contract:  %s\n", dep.Contract)
	fmt.Printf("  network:   %s (chain %d)\n", dep.Network, dep.ChainID)
	if dep.Address != "" {
		fmt.Printf("  address:   %s\n", dep.Address)
	}
	fmt.Printf("  deployer:  %s\n", dep.DeployerAddress)
	fmt.Printf("  tx:        %s\n", dep.TxHash)
	fmt.Printf("  block:     %d\n", dep.BlockNumber)
	fmt.Printf("  gas used:  %d\n", dep.GasUsed)
	fmt.Printf("  status:    %s\n", dep.Status)
	if dep.CompilerVersion != "" {
		fmt.Printf("  compiler:  %s\n", dep.CompilerVersion)
	}
	fmt.Printf("  verified:  %t\n", dep.Verified)
	if dep.VerifyDetail != "" {
		fmt.Printf("  detail:    %s\n", dep.VerifyDetail)
	}
	fmt.Printf("  created:   %s\n", dep.CreatedAt.Format("2006-01-02 15:04:05"))
	return nil
}
