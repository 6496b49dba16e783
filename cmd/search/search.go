// Package search implements full-text queries over the article index.
package search

import (
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/jonesrussell/newsflow/cmd/common"
)

// Command returns the search command.
func Command() *cobra.Command {
	var (
		source string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "search <query>...",
		Short: "Full-text search over indexed articles",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := common.Bootstrap()
			if err != nil {
				return err
			}
			defer deps.Close()

			client, err := deps.SearchClient()
			if err != nil {
				return err
			}

			query := strings.Join(args, " ")
			hits, err := client.Search(cmd.Context(), query, source, limit)
			if err != nil {
				return err
			}
			if len(hits) == 0 {
				fmt.Println("No results")
				return nil
			}

			t := table.NewWriter()
			t.SetOutputMirror(os.Stdout)
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"ID", "Score", "Source", "Title", "URL"})
			for _, hit := range hits {
				t.AppendRow(table.Row{
					hit.ArticleID,
					fmt.Sprintf("%.2f", hit.Score),
					hit.Source,
					hit.Title,
					hit.URL,
				})
			}
			t.Render()
			return nil
		},
	}
	cmd.Flags().StringVar(&source, "source", "", "restrict to one source")
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "maximum number of results")
	return cmd
}
