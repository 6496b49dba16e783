// Package queue implements URL queue inspection and recovery commands.
package queue

import (
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/jonesrussell/newsflow/cmd/common"
)

// Command returns the queue command group.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and recover the URL queue",
	}
	cmd.AddCommand(statsCommand())
	cmd.AddCommand(resetCommand())
	return cmd
}

func statsCommand() *cobra.Command {
	var source string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show queue counts by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := common.Bootstrap()
			if err != nil {
				return err
			}
			defer deps.Close()

			stats, err := deps.QueueService().Stats(cmd.Context(), source)
			if err != nil {
				return err
			}

			scope := stats.Source
			if scope == "" {
				scope = "all sources"
			}
			t := table.NewWriter()
			t.SetOutputMirror(os.Stdout)
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"Scope", "Pending", "Processing", "Completed", "Failed", "Total"})
			t.AppendRow(table.Row{scope, stats.Pending, stats.Processing, stats.Completed, stats.Failed, stats.Total})
			t.Render()
			return nil
		},
	}
	cmd.Flags().StringVar(&source, "source", "", "restrict stats to one source")
	return cmd
}

func resetCommand() *cobra.Command {
	var (
		source string
		force  bool
	)
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Return stuck processing URLs to pending",
		Long: `reset returns stale processing leases to pending. By default only
leases older than queue.stale_minutes are reset; --force resets every
processing lease regardless of age.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := common.Bootstrap()
			if err != nil {
				return err
			}
			defer deps.Close()

			svc := deps.QueueService()
			var n int
			if force {
				n, err = svc.ForceResetAllProcessing(cmd.Context(), source)
			} else {
				staleAfter := time.Duration(deps.Config.Queue.StaleMinutes) * time.Minute
				n, err = svc.ResetStaleProcessing(cmd.Context(), staleAfter)
			}
			if err != nil {
				return err
			}
			fmt.Printf("Reset %d URLs to pending\n", n)
			return nil
		},
	}
	cmd.Flags().StringVar(&source, "source", "", "restrict force reset to one source")
	cmd.Flags().BoolVar(&force, "force", false, "reset all processing leases regardless of age")
	return cmd
}
