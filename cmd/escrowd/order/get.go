package ordercmder

import (
	"github.com/spf13/cobra"
)

func newGetCmd(o *orderCommander) *cobra.Command {
	return &cobra.Command{
		Use:   "get <order-id>",
		Short: "Show the on-chain state of an order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			order, err := o.client.GetOrder(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if o.jsonOut {
				return printJSON(cmd.OutOrStdout(), order)
			}
			printOrder(cmd.OutOrStdout(), order)
			return nil
		},
	}
}
