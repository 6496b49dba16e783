// Package reparse implements re-extraction of parsed fields from stored and
// archived raw HTML after selector updates.
package reparse

import (
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/jonesrussell/newsflow/cmd/common"
	"github.com/jonesrussell/newsflow/internal/domain"
)

// Command returns the reparse command group.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reparse",
		Short: "Re-extract article fields from stored raw HTML",
	}
	cmd.AddCommand(startCommand())
	cmd.AddCommand(statusCommand())
	cmd.AddCommand(cancelCommand())
	cmd.AddCommand(jobsCommand())
	return cmd
}

func startCommand() *cobra.Command {
	var wait bool
	cmd := &cobra.Command{
		Use:   "start <source>",
		Short: "Start a reparse job for one source",
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
			svc, err := deps.ReparseService(registry)
			if err != nil {
				return err
			}

			inDB, archived, err := svc.Preview(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Source %s: %d live articles, %d archived\n", args[0], inDB, archived)

			jobID, err := svc.Start(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Started reparse job %s\n", jobID)

			if !wait {
				return nil
			}
			job, err := svc.WaitSettle(cmd.Context(), jobID, 24*time.Hour)
			if err != nil {
				return err
			}
			printJob(job)
			return nil
		},
	}
	cmd.Flags().BoolVar(&wait, "wait", false, "block until the job finishes")
	return cmd
}

func statusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show one reparse job",
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
			svc, err := deps.ReparseService(registry)
			if err != nil {
				return err
			}
			job, err := svc.Status(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printJob(job)
			return nil
		},
	}
}

func cancelCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Cancel a running reparse job",
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
			svc, err := deps.ReparseService(registry)
			if err != nil {
				return err
			}
			if err := svc.Cancel(args[0]); err != nil {
				return err
			}
			fmt.Printf("Cancellation requested for job %s\n", args[0])
			return nil
		},
	}
}

func jobsCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List recent reparse jobs",
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
			svc, err := deps.ReparseService(registry)
			if err != nil {
				return err
			}
			jobs, err := svc.Jobs(cmd.Context(), limit)
			if err != nil {
				return err
			}

			t := table.NewWriter()
			t.SetOutputMirror(os.Stdout)
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"Job", "Source", "Status", "Progress", "Processed", "Failed", "Created"})
			for _, job := range jobs {
				t.AppendRow(table.Row{
					job.ID,
					job.Source,
					job.Status,
					fmt.Sprintf("%.1f%%", job.ProgressPercent()),
					job.ProcessedCount,
					job.FailedCount,
					job.CreatedAt.Format("2006-01-02 15:04"),
				})
			}
			t.Render()
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of jobs to show")
	return cmd
}

func printJob(job *domain.ReparseJob) {
	fmt.Printf("Job %s (%s): %s, %.1f%% done, %d processed, %d failed\n",
		job.ID, job.Source, job.Status, job.ProgressPercent(),
		job.ProcessedCount, job.FailedCount)
	if job.ErrorLog != nil {
		fmt.Printf("Error: %s\n", *job.ErrorLog)
	}
}
