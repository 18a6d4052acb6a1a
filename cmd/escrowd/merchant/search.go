package merchantcmder

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/escrowd/pkg/cliui"
	"github.com/papercomputeco/escrowd/pkg/search"
	"github.com/papercomputeco/escrowd/pkg/utils"
)

const previewLen = 60

func newSearchCmd(m *merchantCommander) *cobra.Command {
	var topK int

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Rank merchants by keyword overlap",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ix, err := m.index()
			if err != nil {
				return err
			}

			query := strings.Join(args, " ")
			results, err := ix.Search(cmd.Context(), query, topK)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if m.jsonOut {
				if results == nil {
					results = []search.Result{}
				}
				return printJSON(w, results)
			}
			if len(results) == 0 {
				fmt.Fprintf(w, "  %s\n", cliui.DimStyle.Render("No merchants found."))
				return nil
			}

			for i, r := range results {
				fmt.Fprintf(w, "  %s  %s  %s\n",
					cliui.KeyStyle.Render(fmt.Sprintf("#%d", i+1)),
					cliui.ValueStyle.Render("merchant "+r.MerchantID),
					cliui.DimStyle.Render(fmt.Sprintf("score: %d", r.Score)),
				)
				if r.Desc != "" {
					fmt.Fprintf(w, "      %s\n", utils.Truncate(strings.ReplaceAll(r.Desc, "\n", " "), previewLen))
				}
				if len(r.Items) > 0 {
					fmt.Fprintf(w, "      %s\n", cliui.DimStyle.Render(utils.Truncate(strings.Join(r.Items, ", "), previewLen)))
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&topK, "top", "k", search.DefaultTopK, "Number of merchants to return")
	return cmd
}

func newReindexCmd(m *merchantCommander) *cobra.Command {
	return &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the cached merchant search index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ix, err := m.index()
			if err != nil {
				return err
			}
			return cliui.Step(cmd.OutOrStdout(), "Rebuilding merchant index", func() error {
				return ix.Rebuild(cmd.Context())
			})
		},
	}
}
