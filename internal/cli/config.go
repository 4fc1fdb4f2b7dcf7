package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const configTemplate = `# shipyard project configuration.
# Secrets never live in this file; network entries name the environment
# variables that hold them.

[networks.sepolia]
rpc_url = "https://rpc.sepolia.org"
chain_id = 11155111
key_env = "SEPOLIA_DEPLOY_KEY"
explorer_url = "https://api-sepolia.etherscan.io/api"
explorer_key_env = "ETHERSCAN_API_KEY"

[networks.anvil]
rpc_url = "http://127.0.0.1:8545"
chain_id = 31337
key_env = "ANVIL_DEPLOY_KEY"

[build]
# builder = "foundry"        # auto-detected when omitted
# optimizer_runs = 200

[verify]
# poll_interval_seconds = 5
# max_attempts = 24

[broadcast]
# receipt_timeout_seconds = 300
# gas_limit_multiplier = 1.2

[metrics]
# push_url = "http://pushgateway:9091"   # CLI runs push their counters here
`

func createConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration commands",
	}

	cmd.AddCommand(createConfigInitCmd())
	cmd.AddCommand(createConfigShowCmd())

	return cmd
}

func createConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a shipyard.toml in the current directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigInit(force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing config")

	return cmd
}

func runConfigInit(force bool) error {
	const path = "shipyard.toml"

	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}

	if err := os.WriteFile(path, []byte(configTemplate), 0644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	fmt.Printf("Created %s\n", path)
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Println("  1. Edit the network entries for your targets")
	fmt.Println("  2. export SEPOLIA_DEPLOY_KEY=<your signing key>")
	fmt.Println("  3. shipyard build")
	return nil
}

func createConfigShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the resolved configuration",
		Long: `Show the effective configuration after merging the config file,
environment variables and defaults. Secrets are shown as the environment
variable names that hold them, never as values.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow()
		},
	}
	return cmd
}

func runConfigShow() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Networks only carry env var names, so the whole config is safe to
	// print.
	out := map[string]any{
		"networks":  cfg.Networks,
		"build":     cfg.Build,
		"verify":    cfg.Verify,
		"broadcast": cfg.Broadcast,
		"storage": map[string]any{
			"type":        cfg.Storage.Type,
			"sqlite_path": cfg.Storage.SQLite.Path,
			"postgres":    cfg.Storage.Postgres.URL != "",
		},
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
