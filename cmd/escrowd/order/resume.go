package ordercmder

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/papercomputeco/escrowd/api"
	"github.com/papercomputeco/escrowd/pkg/cliui"
	"github.com/papercomputeco/escrowd/pkg/dotdir"
)

const resumeLongDesc string = `Resume settlement of an order that stopped after its proposal.

The order is answered with the merchant's wallet and the agreed price,
then the buyer's confirm transaction is built. When the order was recorded
in the pending settlement ledger, --merchant and --price default to the
recorded values. An order that already carries its answer skips straight
to the confirm transaction.

Examples:
  escrowd order resume 12
  escrowd order resume 12 --merchant 3 --price 15.5`

func newResumeCmd(o *orderCommander) *cobra.Command {
	var (
		merchantID string
		price      string
	)

	cmd := &cobra.Command{
		Use:   "resume <order-id>",
		Short: "Resume settlement of a partially settled order",
		Long:  resumeLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			orderID := args[0]
			ddm := dotdir.NewManager()

			req, err := o.resumeRequest(ddm, orderID, merchantID, price)
			if err != nil {
				return err
			}

			result, err := o.client.Answer(cmd.Context(), orderID, req)
			if err != nil {
				return err
			}

			if err := ddm.ClearPending(orderID, o.configDir); err != nil {
				return fmt.Errorf("order resumed but pending ledger not updated: %w", err)
			}

			if !o.jsonOut {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s Resumed order %s, seller %s, price %s\n\n",
					cliui.SuccessMark,
					cliui.ValueStyle.Render(result.OrderID),
					cliui.ValueStyle.Render(result.Seller.Hex()),
					cliui.ValueStyle.Render(result.Price.String()),
				)
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}

	cmd.Flags().StringVarP(&merchantID, "merchant", "m", "", "Merchant id whose wallet receives the payment")
	cmd.Flags().StringVar(&price, "price", "", "Agreed price in tokens")

	return cmd
}

// resumeRequest fills missing flags from the pending settlement ledger.
func (o *orderCommander) resumeRequest(ddm *dotdir.Manager, orderID, merchantID, price string) (api.AnswerRequest, error) {
	if merchantID == "" || price == "" {
		pending, err := ddm.LoadPending(o.configDir)
		if err != nil {
			return api.AnswerRequest{}, err
		}
		for _, p := range pending {
			if p.OrderID != orderID {
				continue
			}
			if merchantID == "" {
				merchantID = p.MerchantID
			}
			if price == "" {
				price = p.Price
			}
		}
	}

	if merchantID == "" && o.cfg != nil {
		merchantID = o.cfg.Agent.DefaultMerchant
	}

	req := api.AnswerRequest{MerchantID: merchantID}
	if price == "" {
		// An order that already has its answer ignores the price.
		return req, nil
	}

	p, err := decimal.NewFromString(price)
	if err != nil {
		return api.AnswerRequest{}, fmt.Errorf("invalid price %q: %w", price, err)
	}
	if !p.IsPositive() {
		return api.AnswerRequest{}, errors.New("price must be positive")
	}
	req.Price = p
	return req, nil
}
