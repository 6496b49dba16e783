// Package archive implements cold storage commands: archiving raw HTML,
// restoring it, and inspecting the archive tree.
package archive

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/jonesrussell/newsflow/cmd/common"
	"github.com/jonesrussell/newsflow/internal/archive"
)

const dayLayout = "2006-01-02"

// Command returns the archive command group.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Move raw HTML to cold storage and back",
	}
	cmd.AddCommand(runCommand())
	cmd.AddCommand(restoreCommand())
	cmd.AddCommand(infoCommand())
	cmd.AddCommand(statsCommand())
	return cmd
}

func runCommand() *cobra.Command {
	var (
		source  string
		day     string
		before  string
		allTime bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Archive raw HTML batches",
		Long: `run moves archivable raw HTML into compressed batch files. Without a
date flag, everything before today is archived. --source restricts the
run to one source; otherwise every source with archivable articles is
processed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			pred, err := predicate(day, before, allTime)
			if err != nil {
				return err
			}

			deps, err := common.Bootstrap()
			if err != nil {
				return err
			}
			defer deps.Close()

			engine, err := deps.ArchiveEngine()
			if err != nil {
				return err
			}

			var reports []*archive.ArchiveReport
			if source != "" {
				report, err := engine.ArchiveSource(cmd.Context(), source, pred)
				if err != nil {
					return err
				}
				reports = append(reports, report)
			} else {
				reports, err = engine.ArchiveAllSources(cmd.Context(), pred)
				if err != nil {
					return err
				}
			}

			t := table.NewWriter()
			t.SetOutputMirror(os.Stdout)
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"Source", "Archived", "Batch Files", "Original", "Compressed"})
			for _, r := range reports {
				t.AppendRow(table.Row{
					r.Source,
					r.ArchivedCount,
					len(r.BatchFiles),
					formatBytes(r.OriginalBytes),
					formatBytes(r.CompressedBytes),
				})
			}
			t.Render()
			return nil
		},
	}
	cmd.Flags().StringVar(&source, "source", "", "archive only this source")
	cmd.Flags().StringVar(&day, "day", "", "archive articles crawled on this day (YYYY-MM-DD)")
	cmd.Flags().StringVar(&before, "before", "", "archive articles crawled before this day (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&allTime, "all-time", false, "archive regardless of crawl date")
	return cmd
}

func predicate(day, before string, allTime bool) (archive.DatePredicate, error) {
	set := 0
	for _, b := range []bool{day != "", before != "", allTime} {
		if b {
			set++
		}
	}
	if set > 1 {
		return archive.DatePredicate{}, fmt.Errorf("--day, --before, and --all-time are mutually exclusive")
	}

	switch {
	case allTime:
		return archive.AllTime(), nil
	case day != "":
		t, err := time.Parse(dayLayout, day)
		if err != nil {
			return archive.DatePredicate{}, fmt.Errorf("invalid --day %q: %w", day, err)
		}
		return archive.OnDay(t), nil
	case before != "":
		t, err := time.Parse(dayLayout, before)
		if err != nil {
			return archive.DatePredicate{}, fmt.Errorf("invalid --before %q: %w", before, err)
		}
		return archive.Before(t), nil
	default:
		now := time.Now()
		today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		return archive.Before(today), nil
	}
}

func restoreCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "restore <article-id>...",
		Short: "Restore archived raw HTML back into the database",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]int64, 0, len(args))
			for _, arg := range args {
				id, err := strconv.ParseInt(arg, 10, 64)
				if err != nil {
					return fmt.Errorf("invalid article id %q", arg)
				}
				ids = append(ids, id)
			}

			deps, err := common.Bootstrap()
			if err != nil {
				return err
			}
			defer deps.Close()

			engine, err := deps.ArchiveEngine()
			if err != nil {
				return err
			}
			report, err := engine.Restore(cmd.Context(), ids)
			if err != nil {
				return err
			}

			fmt.Printf("Restored %d, skipped %d\n", report.RestoredCount, report.SkippedCount)
			if len(report.FailedIDs) > 0 {
				fmt.Printf("Failed ids: %v\n", report.FailedIDs)
			}
			return nil
		},
	}
}

func infoCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Inventory the on-disk archive tree",
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := common.Bootstrap()
			if err != nil {
				return err
			}
			defer deps.Close()

			engine, err := deps.ArchiveEngine()
			if err != nil {
				return err
			}
			info, err := engine.Info(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Printf("Archive at %s: %d batches, %s\n",
				info.BasePath, info.TotalBatches, formatBytes(info.TotalBytes))

			t := table.NewWriter()
			t.SetOutputMirror(os.Stdout)
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"Source", "Month", "Batches", "Size", "Manifest"})
			for _, src := range info.Sources {
				for _, m := range src.Months {
					t.AppendRow(table.Row{src.Source, m.Month, m.BatchCount, formatBytes(m.TotalBytes), m.HasManifest})
				}
			}
			t.Render()
			return nil
		},
	}
}

func statsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats <source>",
		Short: "Show live vs archived volume for one source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := common.Bootstrap()
			if err != nil {
				return err
			}
			defer deps.Close()

			engine, err := deps.ArchiveEngine()
			if err != nil {
				return err
			}
			stats, err := engine.SourceStatistics(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			lastArchived := "-"
			if stats.LastArchivedAt != nil {
				lastArchived = stats.LastArchivedAt.Format("2006-01-02 15:04")
			}
			t := table.NewWriter()
			t.SetOutputMirror(os.Stdout)
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"Source", "Live", "Archived", "Restored", "Original", "Compressed", "Last Archived"})
			t.AppendRow(table.Row{
				stats.Source,
				stats.LiveCount,
				stats.ArchivedCount,
				stats.RestoredCount,
				formatBytes(stats.OriginalBytes),
				formatBytes(stats.CompressedBytes),
				lastArchived,
			})
			t.Render()
			return nil
		},
	}
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
