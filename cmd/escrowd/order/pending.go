package ordercmder

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/escrowd/pkg/cliui"
	"github.com/papercomputeco/escrowd/pkg/dotdir"
)

func newPendingCmd(o *orderCommander) *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "List orders whose settlement stopped after the proposal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := cmd.OutOrStdout()

			pending, err := dotdir.NewManager().LoadPending(o.configDir)
			if err != nil {
				return err
			}
			if o.jsonOut {
				if pending == nil {
					pending = []dotdir.PendingSettlement{}
				}
				return printJSON(w, pending)
			}
			if len(pending) == 0 {
				fmt.Fprintf(w, "  %s\n", cliui.DimStyle.Render("No pending settlements."))
				return nil
			}

			for _, p := range pending {
				fmt.Fprintf(w, "\n  %s %s  %s\n",
					cliui.FailMark,
					cliui.KeyStyle.Render("order "+p.OrderID),
					cliui.DimStyle.Render("stopped at "+p.Step),
				)
				cliui.Field(w, 11, "buyer", p.Buyer)
				cliui.Field(w, 11, "merchant", p.MerchantID)
				cliui.Field(w, 11, "price", p.Price)
				cliui.Field(w, 11, "reason", p.Reason)
				cliui.Field(w, 11, "recorded_at", p.RecordedAt.Format("2006-01-02 15:04:05Z07:00"))
			}
			fmt.Fprintf(w, "\n  %s\n", cliui.DimStyle.Render("Resume with: escrowd order resume <order-id>"))
			return nil
		},
	}
}
