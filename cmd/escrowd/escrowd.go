// Package escrowdcmder
package escrowdcmder

import (
	"github.com/spf13/cobra"

	configcmder "github.com/papercomputeco/escrowd/cmd/escrowd/config"
	initcmder "github.com/papercomputeco/escrowd/cmd/escrowd/init"
	merchantcmder "github.com/papercomputeco/escrowd/cmd/escrowd/merchant"
	ordercmder "github.com/papercomputeco/escrowd/cmd/escrowd/order"
	servecmder "github.com/papercomputeco/escrowd/cmd/escrowd/serve"
	versioncmder "github.com/papercomputeco/escrowd/cmd/version"
)

const escrowdLongDesc string = `escrowd negotiates orders between customer and merchant agents and settles
them through an on-chain escrow contract.

Run the agents and API using:
  escrowd serve

Inspect and drive orders using:
  escrowd order get <id>
  escrowd order pending
  escrowd order resume <id>

Manage merchant knowledge using:
  escrowd merchant apply <merchant-id> <command>
  escrowd merchant menu <merchant-id>`

const escrowdShortDesc string = "escrowd - agent order escrow"

func NewEscrowdCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "escrowd",
		Short:         escrowdShortDesc,
		Long:          escrowdLongDesc,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override the .escrowd configuration directory")

	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(initcmder.NewInitCmd())
	cmd.AddCommand(ordercmder.NewOrderCmd())
	cmd.AddCommand(merchantcmder.NewMerchantCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
