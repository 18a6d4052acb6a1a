package merchantcmder

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/escrowd/pkg/agent"
	"github.com/papercomputeco/escrowd/pkg/cliui"
)

func newApplyCmd(m *merchantCommander) *cobra.Command {
	return &cobra.Command{
		Use:   "apply <merchant-id> <command>",
		Short: "Apply an admin command to a merchant",
		Long: `Apply one admin command to a merchant's fact log.

Arguments after the merchant id are joined with spaces, so item names
with spaces need no quoting:
  escrowd merchant apply 1 add_item:Fish Tacos:12`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			scope := strings.TrimSpace(args[0])
			if scope == "" {
				return fmt.Errorf("merchant id is required")
			}
			raw := strings.Join(args[1:], " ")

			admin, ok, err := agent.ParseAdminCommand(raw)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: %q is not an admin command", agent.ErrMalformedCommand, raw)
			}

			if err := admin.Apply(cmd.Context(), m.registry, scope); err != nil {
				return err
			}

			m.logger.Debug("applied admin command", "merchant_id", scope, "kind", string(admin.Kind))
			fmt.Fprintf(cmd.OutOrStdout(), "  %s Merchant %s: %s\n",
				cliui.SuccessMark, cliui.ValueStyle.Render(scope), admin.Summary())
			return nil
		},
	}
}
