// Package pipeline implements the analysis pipeline commands: creating and
// running analysis runs, retrying failures, and managing force-includes.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/jonesrussell/newsflow/cmd/common"
	"github.com/jonesrussell/newsflow/internal/analysis"
	"github.com/jonesrussell/newsflow/internal/database"
	"github.com/jonesrussell/newsflow/internal/domain"
	"github.com/jonesrussell/newsflow/internal/pipeline"
)

// Command returns the pipeline command group.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pipeline",
		Short: "Run and manage the analysis pipeline",
	}
	cmd.AddCommand(runCommand())
	cmd.AddCommand(resumeCommand())
	cmd.AddCommand(statusCommand())
	cmd.AddCommand(runsCommand())
	cmd.AddCommand(statsCommand())
	cmd.AddCommand(articlesCommand())
	cmd.AddCommand(resetCommand())
	cmd.AddCommand(retryFailedCommand())
	cmd.AddCommand(retryStoreFailedCommand())
	cmd.AddCommand(forceIncludeCommand())
	return cmd
}

const dayLayout = "2006-01-02"

func runCommand() *cobra.Command {
	var (
		days       int
		from       string
		to         string
		name       string
		limit      int
		untilStage string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Create and execute an analysis run",
		Long: `run creates a pipeline run over an article window and executes its
stages in order. By default the window is the last pipeline.default_days
days; --from/--to set an explicit window. --until-stage pauses the run
cleanly after the named stage so it can be resumed later.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := runOptions(limit, untilStage, cmd.Flags().Changed("limit"))
			if err != nil {
				return err
			}

			deps, err := common.Bootstrap()
			if err != nil {
				return err
			}
			defer deps.Close()

			svc, err := deps.PipelineService()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			var run *domain.PipelineRun
			if from != "" || to != "" {
				dateFrom, dateTo, err := parseWindow(from, to)
				if err != nil {
					return err
				}
				if name == "" {
					name = fmt.Sprintf("run %s", time.Now().Format("2006-01-02 15:04"))
				}
				run, err = svc.CreateRun(ctx, name, dateFrom, dateTo)
				if err != nil {
					return err
				}
			} else {
				if days <= 0 {
					days = deps.Config.Pipeline.DefaultDays
				}
				run, err = svc.CreateQuickRun(ctx, days)
				if err != nil {
					return err
				}
			}
			fmt.Printf("Created run %d\n", run.ID)

			if err := svc.Run(ctx, run.ID, opts); err != nil {
				return err
			}
			return printRun(ctx, deps, run.ID)
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "lookback window in days (default pipeline.default_days)")
	cmd.Flags().StringVar(&from, "from", "", "window start (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "window end (YYYY-MM-DD)")
	cmd.Flags().StringVar(&name, "name", "", "run name")
	cmd.Flags().IntVar(&limit, "limit", 0, "cap the number of articles considered")
	cmd.Flags().StringVar(&untilStage, "until-stage", "", "pause after this stage (FETCH, RULE_FILTER, LLM_ANALYSIS, STORE)")
	return cmd
}

func resumeCommand() *cobra.Command {
	var (
		limit      int
		untilStage string
	)
	cmd := &cobra.Command{
		Use:   "resume <run-id>",
		Short: "Resume a paused or failed run from its recorded stage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID, err := parseRunID(args[0])
			if err != nil {
				return err
			}
			opts, err := runOptions(limit, untilStage, cmd.Flags().Changed("limit"))
			if err != nil {
				return err
			}

			deps, err := common.Bootstrap()
			if err != nil {
				return err
			}
			defer deps.Close()

			svc, err := deps.PipelineService()
			if err != nil {
				return err
			}
			if err := svc.Run(cmd.Context(), runID, opts); err != nil {
				return err
			}
			return printRun(cmd.Context(), deps, runID)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "cap the number of articles considered")
	cmd.Flags().StringVar(&untilStage, "until-stage", "", "pause after this stage")
	return cmd
}

func runOptions(limit int, untilStage string, limitSet bool) (pipeline.RunOptions, error) {
	opts := pipeline.RunOptions{
		Progress: func(stage domain.PipelineStage, message string) {
			fmt.Printf("[%s] %s\n", stage, message)
		},
	}
	if limitSet {
		opts.Limit = &limit
	}
	if untilStage != "" {
		stage, err := parseStage(untilStage)
		if err != nil {
			return opts, err
		}
		opts.UntilStage = &stage
	}
	return opts, nil
}

func parseStage(s string) (domain.PipelineStage, error) {
	stage := domain.PipelineStage(strings.ToUpper(s))
	if domain.StageIndex(stage) < 0 {
		return "", fmt.Errorf("unknown stage %q (expected one of %v)", s, domain.StageOrder)
	}
	return stage, nil
}

func parseRunID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid run id %q", s)
	}
	return id, nil
}

func parseWindow(from, to string) (*time.Time, *time.Time, error) {
	var dateFrom, dateTo *time.Time
	if from != "" {
		t, err := time.Parse(dayLayout, from)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid --from %q: %w", from, err)
		}
		dateFrom = &t
	}
	if to != "" {
		t, err := time.Parse(dayLayout, to)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid --to %q: %w", to, err)
		}
		// The window end is inclusive of the named day.
		end := t.Add(24*time.Hour - time.Nanosecond)
		dateTo = &end
	}
	return dateFrom, dateTo, nil
}

func statusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status <run-id>",
		Short: "Show one pipeline run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID, err := parseRunID(args[0])
			if err != nil {
				return err
			}
			deps, err := common.Bootstrap()
			if err != nil {
				return err
			}
			defer deps.Close()
			return printRun(cmd.Context(), deps, runID)
		},
	}
}

func printRun(ctx context.Context, deps *common.Deps, runID int64) error {
	run, err := database.NewPipelineRunRepository(deps.DB).GetByID(ctx, runID)
	if err != nil {
		return err
	}

	stage := "-"
	if run.CurrentStage != nil {
		stage = string(*run.CurrentStage)
	}
	fmt.Printf("Run %d (%s): %s, stage %s\n", run.ID, run.Name, run.Status, stage)
	fmt.Printf("Window: %s .. %s\n", formatTime(run.DateFrom), formatTime(run.DateTo))
	fmt.Printf("Articles: %d total, %d filtered, %d passed (%d force-included), %d analyzed\n",
		run.TotalArticles, run.RuleFilteredCount, run.RulePassedCount,
		run.ForceIncludedCount, run.AnalyzedCount)
	if run.BatchID != nil {
		fmt.Printf("Batch: %s\n", *run.BatchID)
	}
	if run.ErrorLog != nil {
		fmt.Printf("Error: %s\n", *run.ErrorLog)
	}
	return nil
}

func runsCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent pipeline runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := common.Bootstrap()
			if err != nil {
				return err
			}
			defer deps.Close()

			runs, err := database.NewPipelineRunRepository(deps.DB).ListRecent(cmd.Context(), limit)
			if err != nil {
				return err
			}

			t := table.NewWriter()
			t.SetOutputMirror(os.Stdout)
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"ID", "Name", "Status", "Stage", "Total", "Passed", "Analyzed", "Created"})
			for _, run := range runs {
				stage := "-"
				if run.CurrentStage != nil {
					stage = string(*run.CurrentStage)
				}
				t.AppendRow(table.Row{
					run.ID,
					run.Name,
					run.Status,
					stage,
					run.TotalArticles,
					run.RulePassedCount,
					run.AnalyzedCount,
					run.CreatedAt.Format("2006-01-02 15:04"),
				})
			}
			t.Render()
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to show")
	return cmd
}

func statsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Aggregate statistics across runs and rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := common.Bootstrap()
			if err != nil {
				return err
			}
			defer deps.Close()

			svc, err := deps.PipelineService()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			overall, err := svc.OverallStats(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Runs: %d total, %d completed, %d failed\n",
				overall.TotalRuns, overall.CompletedRuns, overall.FailedRuns)
			fmt.Printf("Articles: %d total, %d filtered, %d passed, %d analyzed\n",
				overall.TotalArticles, overall.FilteredCount,
				overall.PassedCount, overall.AnalyzedCount)

			rules, err := svc.RuleStats(ctx)
			if err != nil {
				return err
			}
			t := table.NewWriter()
			t.SetOutputMirror(os.Stdout)
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"Rule", "Description", "Type", "Active", "Lifetime Filtered"})
			for _, rule := range rules {
				t.AppendRow(table.Row{rule.Name, rule.Description, rule.RuleType, rule.IsActive, rule.TotalFilteredCount})
			}
			t.Render()
			return nil
		},
	}
}

func articlesCommand() *cobra.Command {
	var (
		passed bool
		limit  int
		offset int
	)
	cmd := &cobra.Command{
		Use:   "articles <run-id>",
		Short: "List a run's filtered or passed articles",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID, err := parseRunID(args[0])
			if err != nil {
				return err
			}

			deps, err := common.Bootstrap()
			if err != nil {
				return err
			}
			defer deps.Close()

			svc, err := deps.PipelineService()
			if err != nil {
				return err
			}

			var rows []*database.FilteredArticle
			if passed {
				rows, err = svc.PassedArticles(cmd.Context(), runID, limit, offset)
			} else {
				rows, err = svc.FilteredArticles(cmd.Context(), runID, nil, limit, offset)
			}
			if err != nil {
				return err
			}

			t := table.NewWriter()
			t.SetOutputMirror(os.Stdout)
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"Article", "Source", "Title", "Decision", "Rule", "Reason"})
			for _, row := range rows {
				t.AppendRow(table.Row{
					row.ArticleID,
					row.Source,
					row.Title,
					row.Decision,
					deref(row.RuleName),
					deref(row.Reason),
				})
			}
			t.Render()
			return nil
		},
	}
	cmd.Flags().BoolVar(&passed, "passed", false, "list passed instead of filtered articles")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "rows per page")
	cmd.Flags().IntVar(&offset, "offset", 0, "page offset")
	return cmd
}

func resetCommand() *cobra.Command {
	var fromStage string
	cmd := &cobra.Command{
		Use:   "reset <run-id>",
		Short: "Rewind a run to before the named stage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID, err := parseRunID(args[0])
			if err != nil {
				return err
			}
			stage, err := parseStage(fromStage)
			if err != nil {
				return err
			}

			deps, err := common.Bootstrap()
			if err != nil {
				return err
			}
			defer deps.Close()

			svc, err := deps.PipelineService()
			if err != nil {
				return err
			}
			if err := svc.Reset(cmd.Context(), runID, stage); err != nil {
				return err
			}
			fmt.Printf("Run %d rewound to before %s\n", runID, stage)
			return nil
		},
	}
	cmd.Flags().StringVar(&fromStage, "from-stage", string(domain.StageRuleFilter), "stage to rewind to")
	return cmd
}

func retryFailedCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "retry-failed <run-id>",
		Short: "Resubmit a run's failed articles in a new batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID, err := parseRunID(args[0])
			if err != nil {
				return err
			}

			deps, err := common.Bootstrap()
			if err != nil {
				return err
			}
			defer deps.Close()

			coord, err := deps.Coordinator()
			if err != nil {
				return err
			}
			run, err := database.NewPipelineRunRepository(deps.DB).GetByID(cmd.Context(), runID)
			if err != nil {
				return err
			}
			report, err := coord.RetryFailed(cmd.Context(), run)
			if err != nil {
				return err
			}
			printReport(report)
			return nil
		},
	}
}

func retryStoreFailedCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "retry-store-failed",
		Short: "Replay retained analysis results whose store step failed",
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := common.Bootstrap()
			if err != nil {
				return err
			}
			defer deps.Close()

			coord, err := deps.Coordinator()
			if err != nil {
				return err
			}
			report, err := coord.RetryStoreFailed(cmd.Context())
			if err != nil {
				return err
			}
			printReport(report)
			return nil
		},
	}
}

func printReport(r *analysis.Report) {
	if r.BatchID != "" {
		fmt.Printf("Batch: %s\n", r.BatchID)
	}
	fmt.Printf("Submitted %d, skipped %d, succeeded %d, failed %d, store-failed %d\n",
		r.Submitted, r.Skipped, r.Succeeded, r.Failed, r.StoreFailed)
}

func forceIncludeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "force-include",
		Short: "Manage articles that bypass rule filtering",
	}

	var (
		reason  string
		addedBy string
	)
	add := &cobra.Command{
		Use:   "add <article-id>",
		Short: "Mark an article to bypass rule filtering",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			articleID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid article id %q", args[0])
			}

			deps, err := common.Bootstrap()
			if err != nil {
				return err
			}
			defer deps.Close()

			svc, err := deps.PipelineService()
			if err != nil {
				return err
			}
			if err := svc.AddForceInclude(cmd.Context(), articleID, reason, addedBy); err != nil {
				return err
			}
			fmt.Printf("Article %d force-included\n", articleID)
			return nil
		},
	}
	add.Flags().StringVar(&reason, "reason", "", "why this article must be analyzed")
	add.Flags().StringVar(&addedBy, "by", "", "who requested the override")

	remove := &cobra.Command{
		Use:   "remove <article-id>",
		Short: "Remove a force-include override",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			articleID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid article id %q", args[0])
			}

			deps, err := common.Bootstrap()
			if err != nil {
				return err
			}
			defer deps.Close()

			svc, err := deps.PipelineService()
			if err != nil {
				return err
			}
			if err := svc.RemoveForceInclude(cmd.Context(), articleID); err != nil {
				return err
			}
			fmt.Printf("Article %d override removed\n", articleID)
			return nil
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List force-included articles",
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := common.Bootstrap()
			if err != nil {
				return err
			}
			defer deps.Close()

			svc, err := deps.PipelineService()
			if err != nil {
				return err
			}
			overrides, err := svc.ListForceIncludes(cmd.Context())
			if err != nil {
				return err
			}

			t := table.NewWriter()
			t.SetOutputMirror(os.Stdout)
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"Article", "Reason", "Added By", "Created"})
			for _, fi := range overrides {
				t.AppendRow(table.Row{
					fi.ArticleID,
					deref(fi.Reason),
					deref(fi.AddedBy),
					fi.CreatedAt.Format("2006-01-02 15:04"),
				})
			}
			t.Render()
			return nil
		},
	}

	cmd.AddCommand(add, remove, list)
	return cmd
}

func deref(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format("2006-01-02 15:04")
}
