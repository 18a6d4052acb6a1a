package merchantcmder

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/escrowd/pkg/cliui"
	"github.com/papercomputeco/escrowd/pkg/knowledge"
)

func newMenuCmd(m *merchantCommander) *cobra.Command {
	return &cobra.Command{
		Use:   "menu <merchant-id>",
		Short: "Show a merchant's menu",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			menu, err := m.registry.Menu(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if m.jsonOut {
				if menu == nil {
					menu = []knowledge.MenuEntry{}
				}
				return printJSON(w, menu)
			}
			if len(menu) == 0 {
				fmt.Fprintf(w, "  %s\n", cliui.DimStyle.Render("No menu items."))
				return nil
			}
			printMenu(w, menu)
			return nil
		},
	}
}

func newProfileCmd(m *merchantCommander) *cobra.Command {
	return &cobra.Command{
		Use:   "profile <merchant-id>",
		Short: "Show everything known about a merchant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			profile, err := m.registry.Profile(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if m.jsonOut {
				return printJSON(w, profile)
			}

			const width = 11
			fmt.Fprintf(w, "\n  %s %s\n\n", cliui.KeyStyle.Render("Merchant"), cliui.ValueStyle.Render(profile.Scope))
			cliui.Field(w, width, "wallet", profile.Wallet)
			cliui.Field(w, width, "description", profile.Description)
			cliui.Field(w, width, "hours", profile.Hours)
			cliui.Field(w, width, "location", profile.Location)
			cliui.Field(w, width, "categories", strings.Join(profile.Categories, ", "))

			if len(profile.Menu) > 0 {
				fmt.Fprintf(w, "\n  %s\n", cliui.KeyStyle.Render("Menu"))
				printMenu(w, profile.Menu)
			}
			fmt.Fprintln(w)
			return nil
		},
	}
}
