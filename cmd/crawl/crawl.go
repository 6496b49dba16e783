// Package crawl implements manual crawl execution and crawl log streaming.
package crawl

import (
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/jonesrussell/newsflow/cmd/common"
	"github.com/jonesrussell/newsflow/internal/database"
)

// Command returns the crawl command group.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Run crawlers and inspect their activity",
	}
	cmd.AddCommand(runCommand())
	cmd.AddCommand(statusCommand())
	cmd.AddCommand(logsCommand())
	return cmd
}

func runCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run <crawler-name>",
		Short: "Execute one crawler immediately",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := common.Bootstrap()
			if err != nil {
				return err
			}
			defer deps.Close()

			registry, err := deps.Registry()
			if err != nil {
				return err
			}
			exec, err := deps.Executor(registry)
			if err != nil {
				return err
			}
			if err := exec.Execute(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("crawl failed: %w", err)
			}
			fmt.Printf("Crawler %s finished\n", args[0])
			return nil
		},
	}
}

func statusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show every registered crawler and its last run",
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := common.Bootstrap()
			if err != nil {
				return err
			}
			defer deps.Close()

			configs, err := database.NewCrawlerConfigRepository(deps.DB).List(cmd.Context())
			if err != nil {
				return err
			}

			t := table.NewWriter()
			t.SetOutputMirror(os.Stdout)
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"Name", "Kind", "Active", "Interval", "Last Status", "Last Run", "Next Run", "Last Items", "Total Items"})
			for _, cc := range configs {
				t.AppendRow(table.Row{
					cc.Name,
					cc.Kind,
					cc.IsActive,
					fmt.Sprintf("%dm", cc.IntervalMinutes),
					cc.LastRunStatus,
					formatTime(cc.LastRunTime),
					formatTime(cc.NextRunTime),
					cc.LastRunItemsCount,
					cc.TotalItemsCount,
				})
			}
			t.Render()
			return nil
		},
	}
}

func logsCommand() *cobra.Command {
	var count int
	cmd := &cobra.Command{
		Use:   "logs <crawler-name>",
		Short: "Show recent crawl events from the Redis stream",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := common.Bootstrap()
			if err != nil {
				return err
			}
			defer deps.Close()

			publisher, err := deps.RedisPublisher()
			if err != nil {
				return err
			}
			events, err := publisher.ReadLast(cmd.Context(), args[0], count)
			if err != nil {
				return fmt.Errorf("failed to read crawl logs: %w", err)
			}
			if len(events) == 0 {
				fmt.Println("No events")
				return nil
			}
			for _, ev := range events {
				line := fmt.Sprintf("%s [%s] %s", ev.Timestamp.Format(time.RFC3339), ev.Level, ev.Message)
				if len(ev.Fields) > 0 {
					line += fmt.Sprintf(" %v", ev.Fields)
				}
				fmt.Println(line)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 50, "number of events to show")
	return cmd
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format("2006-01-02 15:04")
}
