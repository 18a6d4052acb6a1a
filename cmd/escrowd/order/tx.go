package ordercmder

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/escrowd/pkg/cliui"
)

func newConfirmCmd(o *orderCommander) *cobra.Command {
	var buyer string

	cmd := &cobra.Command{
		Use:   "confirm <order-id>",
		Short: "Build the buyer's payment transaction for a proposed order",
		Long: `Build the buyer's unsigned confirmOrder transaction.

The amount is the order price plus the agent fee. The buyer must have
approved that amount of tokens for the escrow contract before submitting.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if buyer == "" {
				return errors.New("--buyer is required")
			}
			tx, err := o.client.Confirm(cmd.Context(), args[0], buyer)
			if err != nil {
				return err
			}
			return printTransaction(cmd.OutOrStdout(), "Confirm", tx, o.jsonOut)
		},
	}

	cmd.Flags().StringVar(&buyer, "buyer", "", "Buyer wallet address")
	return cmd
}

func newCancelCmd(o *orderCommander) *cobra.Command {
	var buyer string

	cmd := &cobra.Command{
		Use:   "cancel <order-id>",
		Short: "Build the buyer's refund transaction for a confirmed order",
		Long: `Build the buyer's unsigned cancelOrder transaction.

Only confirmed orders can be cancelled, and only once the hold period
after the order's creation has elapsed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if buyer == "" {
				return errors.New("--buyer is required")
			}
			tx, err := o.client.Cancel(cmd.Context(), args[0], buyer)
			if err != nil {
				return err
			}
			return printTransaction(cmd.OutOrStdout(), "Cancel", tx, o.jsonOut)
		},
	}

	cmd.Flags().StringVar(&buyer, "buyer", "", "Buyer wallet address")
	return cmd
}

func newFinalizeCmd(o *orderCommander) *cobra.Command {
	return &cobra.Command{
		Use:   "finalize <order-id>",
		Short: "Release a confirmed order's payment to the seller",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			done, err := o.client.Finalize(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if o.jsonOut {
				return printJSON(cmd.OutOrStdout(), done)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "  %s Finalized order %s in %s\n",
				cliui.SuccessMark, cliui.ValueStyle.Render(done.OrderID), cliui.DimStyle.Render(done.TxHash.Hex()))
			return nil
		},
	}
}
