// Package merchantcmder provides the merchant command for managing merchant
// knowledge in the local fact logs.
package merchantcmder

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/escrowd/cmd/escrowd/stack"
	"github.com/papercomputeco/escrowd/pkg/cliui"
	"github.com/papercomputeco/escrowd/pkg/config"
	"github.com/papercomputeco/escrowd/pkg/knowledge"
	"github.com/papercomputeco/escrowd/pkg/logger"
	"github.com/papercomputeco/escrowd/pkg/search"
)

type merchantCommander struct {
	factsDir string
	jsonOut  bool
	debug    bool

	logger   *slog.Logger
	registry *knowledge.Registry
}

const merchantLongDesc string = `Manage merchant knowledge.

Merchant menus, wallets, and profile fields live in append-only fact logs
under .escrowd/facts (or --facts-dir). These commands read and write the
logs directly, so a running "escrowd serve" sharing the same directory
sees the changes on its next request.

Admin commands use the same syntax the merchant agent accepts in chat:
  set_wallet:<address>
  add_item:<name>:<price>
  update_price:<name>:<price>
  remove_item:<name>
  set_item_desc:<name>:<text>
  set_desc:<text>
  set_hours:<text>
  set_location:<text>
  add_category:<text>

Examples:
  escrowd merchant apply 1 add_item:Fish Tacos:12
  escrowd merchant apply 1 set_wallet:0xAbC...
  escrowd merchant menu 1
  escrowd merchant search "vegan tacos"`

const merchantShortDesc string = "Manage merchant knowledge"

func NewMerchantCmd() *cobra.Command {
	cmder := &merchantCommander{}

	cmd := &cobra.Command{
		Use:   "merchant",
		Short: merchantShortDesc,
		Long:  merchantLongDesc,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cmder.debug, _ = cmd.Flags().GetBool("debug")
			cmder.logger = logger.NewLogger(cmder.debug)

			cfg, configDir, err := stack.Load(cmd, config.FlagFactsDir)
			if err != nil {
				return err
			}
			cmder.registry, err = stack.OpenRegistry(cfg, configDir, cmder.logger)
			return err
		},
	}

	def := config.Registry[config.FlagFactsDir]
	cmd.PersistentFlags().StringVar(&cmder.factsDir, def.Name, "", def.Description)
	cmd.PersistentFlags().BoolVar(&cmder.jsonOut, "json", false, "Print raw JSON")

	cmd.AddCommand(newApplyCmd(cmder))
	cmd.AddCommand(newMenuCmd(cmder))
	cmd.AddCommand(newProfileCmd(cmder))
	cmd.AddCommand(newSearchCmd(cmder))
	cmd.AddCommand(newReindexCmd(cmder))

	return cmd
}

func (m *merchantCommander) index() (*search.Index, error) {
	return search.NewIndex(search.Config{Registry: m.registry, Logger: m.logger})
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printMenu(w io.Writer, menu []knowledge.MenuEntry) {
	width := 0
	for _, e := range menu {
		width = max(width, len(e.Display))
	}
	for _, e := range menu {
		line := e.Price
		if e.Description != "" {
			line = fmt.Sprintf("%s  %s", e.Price, e.Description)
		}
		cliui.Field(w, width, e.Display, line)
	}
}
