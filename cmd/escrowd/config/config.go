// Package configcmder provides the config command for managing persistent
// escrowd configuration stored in the .escrowd/ directory.
package configcmder

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/escrowd/pkg/cliui"
	"github.com/papercomputeco/escrowd/pkg/config"
)

const configLongDesc string = `Manage persistent escrowd configuration.

Configuration is stored as config.toml in the .escrowd/ directory and provides
default values for command flags. CLI flags and ESCROWD_* environment
variables always take precedence over config file values.

Keys use dotted notation matching the TOML section structure:
  storage.provider, storage.sqlite_path, storage.postgres_dsn,
  facts.dir,
  ledger.provider, ledger.rpc_url, ledger.contract_address, ledger.chain_id,
  ledger.controller_key, ledger.poll_interval,
  api.listen,
  agent.merchant_target, agent.default_merchant, agent.default_seller_wallet,
  agent.remote_timeout,
  llm.base_url, llm.model, llm.api_key,
  events.provider, events.brokers, events.topic

Use subcommands to get, set, or list configuration values:
  escrowd config set <key> <value>    Set a configuration value
  escrowd config get <key>            Get a configuration value
  escrowd config list                 List all configuration values

Examples:
  escrowd config set ledger.provider ethereum
  escrowd config set agent.remote_timeout 5s
  escrowd config get ledger.rpc_url
  escrowd config list`

const configShortDesc string = "Manage persistent escrowd configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}

func unknownKey(key string) error {
	return fmt.Errorf("unknown config key: %q\n\nValid keys: %s",
		key, strings.Join(config.ValidConfigKeys(), ", "))
}

func completeKeys(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	if len(args) == 0 {
		return config.ValidConfigKeys(), cobra.ShellCompDirectiveNoFileComp
	}
	return nil, cobra.ShellCompDirectiveNoFileComp
}

func printTarget(w io.Writer, cfger *config.Configer) {
	if target := cfger.GetTarget(); target != "" {
		fmt.Fprintf(w, "\n  %s %s\n\n",
			cliui.KeyStyle.Render("Config file:"),
			cliui.DimStyle.Render(target),
		)
		return
	}
	fmt.Fprintf(w, "\n  %s\n\n", cliui.DimStyle.Render("No config file found. Using defaults."))
}

// display masks secret values so they never land in terminal scrollback.
func display(key, value string) string {
	if value == "" || !config.IsSecretKey(key) {
		return value
	}
	if len(value) <= 4 {
		return "****"
	}
	return "****" + value[len(value)-4:]
}
