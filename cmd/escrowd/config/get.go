package configcmder

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/escrowd/pkg/cliui"
	"github.com/papercomputeco/escrowd/pkg/config"
)

const getLongDesc string = `Get a configuration value.

Reads the value for the given key from the config.toml file stored in
the .escrowd/ directory. Secrets such as llm.api_key are masked unless
--reveal is passed.

Examples:
  escrowd config get ledger.provider
  escrowd config get llm.api_key --reveal`

const getShortDesc string = "Get a configuration value"

func newGetCmd() *cobra.Command {
	var reveal bool

	cmd := &cobra.Command{
		Use:   "get <key>",
		Short: getShortDesc,
		Long:  getLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			return runGet(cmd.OutOrStdout(), args[0], configDir, reveal)
		},
		ValidArgsFunction: completeKeys,
	}

	cmd.Flags().BoolVar(&reveal, "reveal", false, "Print secret values unmasked")

	return cmd
}

func runGet(w io.Writer, key, configDir string, reveal bool) error {
	if !config.IsValidConfigKey(key) {
		return unknownKey(key)
	}

	cfger, err := config.NewConfiger(configDir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	printTarget(w, cfger)

	value, err := cfger.GetConfigValue(key)
	if err != nil {
		return err
	}
	if !reveal {
		value = display(key, value)
	}

	cliui.Field(w, len(key), key, value)
	fmt.Fprintln(w)
	return nil
}
