// Package ordercmder provides the order command for inspecting and driving
// escrow orders through a running escrowd API server.
package ordercmder

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	apiclient "github.com/papercomputeco/escrowd/api/client"
	"github.com/papercomputeco/escrowd/cmd/escrowd/stack"
	"github.com/papercomputeco/escrowd/pkg/cliui"
	"github.com/papercomputeco/escrowd/pkg/config"
	"github.com/papercomputeco/escrowd/pkg/escrow"
)

// orderCommander holds state shared by the order subcommands.
type orderCommander struct {
	apiTarget string
	timeout   time.Duration
	jsonOut   bool

	cfg       *config.Config
	configDir string
	client    *apiclient.Client
}

const orderLongDesc string = `Inspect and drive escrow orders.

Most subcommands call a running escrowd API server (see "escrowd serve")
at --api-target, which defaults to client.api_target. The pending
subcommand reads the local pending settlement ledger instead.

Examples:
  escrowd order get 12
  escrowd order confirm 12 --buyer 0xB0b...
  escrowd order finalize 12
  escrowd order pending
  escrowd order resume 12 --price 15
  escrowd order list 0xB0b... --status confirmed`

const orderShortDesc string = "Inspect and drive escrow orders"

func NewOrderCmd() *cobra.Command {
	cmder := &orderCommander{}

	cmd := &cobra.Command{
		Use:   "order",
		Short: orderShortDesc,
		Long:  orderLongDesc,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, configDir, err := stack.Load(cmd, config.FlagAPITarget)
			if err != nil {
				return err
			}
			cmder.cfg = cfg
			cmder.configDir = configDir

			cmder.client, err = apiclient.New(cfg.Client.APITarget, cmder.timeout)
			return err
		},
	}

	def := config.Registry[config.FlagAPITarget]
	cmd.PersistentFlags().StringVar(&cmder.apiTarget, def.Name, "", def.Description)
	cmd.PersistentFlags().DurationVar(&cmder.timeout, "timeout", 30*time.Second, "Timeout for API requests")
	cmd.PersistentFlags().BoolVar(&cmder.jsonOut, "json", false, "Print raw JSON")

	cmd.AddCommand(newGetCmd(cmder))
	cmd.AddCommand(newConfirmCmd(cmder))
	cmd.AddCommand(newCancelCmd(cmder))
	cmd.AddCommand(newFinalizeCmd(cmder))
	cmd.AddCommand(newResumeCmd(cmder))
	cmd.AddCommand(newPendingCmd(cmder))
	cmd.AddCommand(newListCmd(cmder))

	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printOrder(w io.Writer, o *escrow.OrderDetails) {
	const width = 13
	fmt.Fprintf(w, "\n  %s %s\n\n", cliui.KeyStyle.Render("Order"), cliui.ValueStyle.Render(o.OrderID))
	cliui.StatusField(w, width, "status", o.Status.String())
	cliui.Field(w, width, "buyer", o.Buyer.Hex())
	if o.HasSeller() {
		cliui.Field(w, width, "seller", o.Seller.Hex())
	} else {
		cliui.Field(w, width, "seller", "")
	}
	cliui.Field(w, width, "price", o.Price.String())
	cliui.Field(w, width, "paid", o.Paid.String())
	cliui.Field(w, width, "prompt_digest", o.PromptDigest.Hex())
	cliui.Field(w, width, "created_at", o.CreatedAt.UTC().Format(time.RFC3339))
	if o.Status == escrow.StatusConfirmed {
		cliui.Field(w, width, "cancellable", o.CreatedAt.Add(escrow.HoldPeriod).UTC().Format(time.RFC3339))
	}
	fmt.Fprintln(w)
}

// printTransaction always prints JSON: the output is meant for a wallet.
func printTransaction(w io.Writer, what string, tx *escrow.UnsignedTransaction, jsonOut bool) error {
	if !jsonOut {
		fmt.Fprintf(w, "  %s %s transaction for %s, amount %s\n\n",
			cliui.SuccessMark, what, cliui.ValueStyle.Render(tx.From.Hex()), cliui.ValueStyle.Render(tx.Amount.String()))
	}
	return printJSON(w, tx)
}
