// Package sources implements inspection of the sources.yml crawl
// configuration.
package sources

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/jonesrussell/newsflow/cmd/common"
)

// Command returns the sources command group.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sources",
		Short: "Inspect configured news sources",
	}
	cmd.AddCommand(listCommand())
	cmd.AddCommand(validateCommand())
	return cmd
}

func listCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List sources from the sources file",
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := common.Bootstrap()
			if err != nil {
				return err
			}
			defer deps.Close()

			sources, err := deps.LoadSources()
			if err != nil {
				return err
			}

			t := table.NewWriter()
			t.SetOutputMirror(os.Stdout)
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"Name", "Display Name", "List URLs", "Interval", "Rate Limit"})
			for _, src := range sources {
				interval := "-"
				if src.IntervalMinutes > 0 {
					interval = fmt.Sprintf("%dm", src.IntervalMinutes)
				}
				rateLimit := src.RateLimit
				if rateLimit == "" {
					rateLimit = "-"
				}
				t.AppendRow(table.Row{src.Name, src.DisplayName, len(src.List.URLs), interval, rateLimit})
			}
			t.Render()
			return nil
		},
	}
}

func validateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the sources file",
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := common.Bootstrap()
			if err != nil {
				return err
			}
			defer deps.Close()

			sources, err := deps.LoadSources()
			if err != nil {
				return err
			}
			for _, src := range sources {
				if err := src.Validate(); err != nil {
					return fmt.Errorf("source %s is invalid: %w", src.Name, err)
				}
			}
			fmt.Printf("%d sources valid\n", len(sources))
			return nil
		},
	}
}
