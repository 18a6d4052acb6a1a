package ordercmder

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/escrowd/pkg/cliui"
	"github.com/papercomputeco/escrowd/pkg/escrow"
)

func newListCmd(o *orderCommander) *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "list <address>",
		Short: "List a user's orders",
		Long: `List the orders a wallet has placed, optionally filtered by status.

Statuses: proposed, confirmed, inprogress, completed, cancelled.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if status != "" {
				if _, err := escrow.ParseStatus(status); err != nil {
					return err
				}
			}

			resp, err := o.client.UserOrders(cmd.Context(), args[0], status)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if o.jsonOut {
				return printJSON(w, resp)
			}
			if resp.Count == 0 {
				fmt.Fprintf(w, "  %s\n", cliui.DimStyle.Render("No orders found."))
				return nil
			}

			width := 0
			for _, e := range resp.Orders {
				width = max(width, len(e.OrderID))
			}
			for _, e := range resp.Orders {
				cliui.StatusField(w, width, e.OrderID, e.Status.String())
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Only list orders in this status")
	return cmd
}
