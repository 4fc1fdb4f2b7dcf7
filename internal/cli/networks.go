package cli

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func createNetworksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "networks",
		Short: "List configured networks",
		Long: `List the networks defined in the project config.

Signing keys are never stored in the config file; each network names an
environment variable that holds its key. The KEY column shows whether that
variable is currently set.
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNetworks()
		},
	}
	return cmd
}

func runNetworks() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if len(cfg.Networks) == 0 {
		fmt.Println("No networks configured")
		fmt.Println()
		fmt.Println("Add one to shipyard.toml:")
		fmt.Println(`  [networks.sepolia]
  rpc_url = "https://rpc.sepolia.org"
  chain_id = 11155111
  key_env = "SEPOLIA_DEPLOY_KEY"`)
		return nil
	}

	names := make([]string, 0, len(cfg.Networks))
	for name := range cfg.Networks {
		names = append(names, name)
	}
	sort.Strings(names)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tCHAIN ID\tRPC\tEXPLORER\tKEY")
	for _, name := range names {
		n := cfg.Networks[name]
		explorerCol := "-"
		if n.ExplorerURL != "" {
			explorerCol = n.ExplorerURL
		}
		keyCol := "unset"
		if n.KeyEnv != "" {
			if v, ok := os.LookupEnv(n.KeyEnv); ok && v != "" {
				keyCol = fmt.Sprintf("%s (set)", n.KeyEnv)
			} else {
				keyCol = fmt.Sprintf("%s (unset)", n.KeyEnv)
			}
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\n", name, n.ChainID, n.RPCURL, explorerCol, keyCol)
	}
	w.Flush()

	return nil
}
