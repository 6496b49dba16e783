// Package pipeline orchestrates the staged analysis of crawled articles:
// size the window, apply the rule filter, submit survivors for LLM batch
// analysis, and finalize statistics. Runs are persisted and resumable.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonesrussell/newsflow/internal/analysis"
	"github.com/jonesrussell/newsflow/internal/config"
	"github.com/jonesrussell/newsflow/internal/database"
	"github.com/jonesrussell/newsflow/internal/domain"
	"github.com/jonesrussell/newsflow/internal/logger"
)

const (
	defaultPageSize = 100
	maxErrorLogLen  = 4096
)

// Analyzer is the slice of the batch coordinator the pipeline needs.
type Analyzer interface {
	Analyze(ctx context.Context, articles []*domain.Article, run *domain.PipelineRun) (*analysis.Report, error)
}

// RunOptions tunes one Run invocation.
type RunOptions struct {
	// UntilStage stops the run cleanly after that stage and marks it PAUSED.
	UntilStage *domain.PipelineStage
	// Limit caps how many articles the run considers. nil means no cap;
	// zero means the run processes nothing but still completes.
	Limit *int
	// Progress receives stage lifecycle messages. May be nil.
	Progress func(stage domain.PipelineStage, message string)
}

// Service orchestrates pipeline runs.
type Service struct {
	runs     database.PipelineRunRepositoryInterface
	results  database.FilterResultRepositoryInterface
	rules    database.FilterRuleRepositoryInterface
	articles database.ArticleRepositoryInterface
	tracking database.AnalysisRepositoryInterface
	analyzer Analyzer
	cfg      config.PipelineConfig
	logger   logger.Logger

	mu           sync.Mutex
	forceInclude map[int64]struct{}
}

// NewService creates the pipeline service.
func NewService(
	runs database.PipelineRunRepositoryInterface,
	results database.FilterResultRepositoryInterface,
	rules database.FilterRuleRepositoryInterface,
	articles database.ArticleRepositoryInterface,
	tracking database.AnalysisRepositoryInterface,
	analyzer Analyzer,
	cfg config.PipelineConfig,
	log logger.Logger,
) *Service {
	if cfg.PageSize < 1 {
		cfg.PageSize = defaultPageSize
	}
	return &Service{
		runs:     runs,
		results:  results,
		rules:    rules,
		articles: articles,
		tracking: tracking,
		analyzer: analyzer,
		cfg:      cfg,
		logger:   log,
	}
}

// CreateRun creates a PENDING run over an optional date window.
func (s *Service) CreateRun(ctx context.Context, name string, dateFrom, dateTo *time.Time) (*domain.PipelineRun, error) {
	if name == "" {
		name = "run_" + time.Now().UTC().Format("20060102_150405")
	}

	run := &domain.PipelineRun{
		Name:     name,
		Status:   domain.PipelineStatusPending,
		DateFrom: dateFrom,
		DateTo:   dateTo,
	}
	if err := s.runs.Create(ctx, run); err != nil {
		return nil, err
	}
	return run, nil
}

// CreateQuickRun creates a run over the last N days. days <= 0 uses the
// configured default lookback.
func (s *Service) CreateQuickRun(ctx context.Context, days int) (*domain.PipelineRun, error) {
	if days <= 0 {
		days = s.cfg.DefaultDays
	}

	to := time.Now().UTC()
	from := to.AddDate(0, 0, -days)
	name := fmt.Sprintf("quick_%dd_%s", days, to.Format("20060102_150405"))
	return s.CreateRun(ctx, name, &from, &to)
}

// GetRun returns one run by id.
func (s *Service) GetRun(ctx context.Context, runID int64) (*domain.PipelineRun, error) {
	return s.runs.GetByID(ctx, runID)
}

// runState carries stage outputs across the loop in Run.
type runState struct {
	survivors []*domain.Article
	loaded    bool
}

// Run executes the pipeline for a run from its recorded stage onward. A
// fresh run starts at FETCH; a paused run resumes at the stage it stopped
// in. An LLM poll timeout pauses the run and returns analysis.ErrTimeout.
func (s *Service) Run(ctx context.Context, runID int64, opts RunOptions) error {
	run, err := s.runs.GetByID(ctx, runID)
	if err != nil {
		return err
	}
	if err := domain.ValidatePipelineTransition(run.Status, domain.PipelineStatusRunning); err != nil {
		return err
	}
	if err := s.runs.UpdateStatus(ctx, runID, domain.PipelineStatusRunning); err != nil {
		return err
	}

	start := 0
	if run.CurrentStage != nil {
		if idx := domain.StageIndex(*run.CurrentStage); idx >= 0 {
			start = idx
		}
	}

	state := &runState{}
	for _, stage := range domain.StageOrder[start:] {
		stage := stage
		if err := s.runs.UpdateStage(ctx, runID, &stage); err != nil {
			return err
		}
		s.report(opts, stage, "started")

		if err := s.runStage(ctx, run, stage, opts, state); err != nil {
			return s.failOrPause(ctx, runID, stage, err)
		}
		s.report(opts, stage, "finished")

		if opts.UntilStage != nil && stage == *opts.UntilStage && stage != domain.StageStore {
			next := domain.StageOrder[domain.StageIndex(stage)+1]
			if err := s.runs.UpdateStage(ctx, runID, &next); err != nil {
				return err
			}
			return s.runs.UpdateStatus(ctx, runID, domain.PipelineStatusPaused)
		}
	}

	if err := s.runs.UpdateStage(ctx, runID, nil); err != nil {
		return err
	}
	return s.runs.UpdateStatus(ctx, runID, domain.PipelineStatusCompleted)
}

// failOrPause routes a stage error: poll timeouts pause the run so an
// operator can resume the same batch, anything else fails it.
func (s *Service) failOrPause(ctx context.Context, runID int64, stage domain.PipelineStage, stageErr error) error {
	if errors.Is(stageErr, analysis.ErrTimeout) {
		s.logger.Warn("pipeline paused on poll timeout",
			logger.Int64("run_id", runID),
			logger.String("stage", string(stage)),
		)
		if err := s.runs.UpdateStatus(ctx, runID, domain.PipelineStatusPaused); err != nil {
			return err
		}
		return stageErr
	}

	msg := stageErr.Error()
	if len(msg) > maxErrorLogLen {
		msg = msg[:maxErrorLogLen]
	}
	if err := s.runs.SetErrorLog(ctx, runID, &msg); err != nil {
		s.logger.Error("failed to record run error", logger.Error(err))
	}
	if err := s.runs.UpdateStage(ctx, runID, nil); err != nil {
		s.logger.Error("failed to clear run stage", logger.Error(err))
	}
	if err := s.runs.UpdateStatus(ctx, runID, domain.PipelineStatusFailed); err != nil {
		return err
	}
	s.logger.Error("pipeline run failed",
		logger.Int64("run_id", runID),
		logger.String("stage", string(stage)),
		logger.Error(stageErr),
	)
	return stageErr
}

func (s *Service) runStage(
	ctx context.Context,
	run *domain.PipelineRun,
	stage domain.PipelineStage,
	opts RunOptions,
	state *runState,
) error {
	switch stage {
	case domain.StageFetch:
		return s.stageFetch(ctx, run, opts)
	case domain.StageRuleFilter:
		return s.stageRuleFilter(ctx, run, opts, state)
	case domain.StageLLMAnalysis:
		return s.stageLLMAnalysis(ctx, run, opts, state)
	case domain.StageStore:
		return s.stageStore(ctx, run)
	default:
		return fmt.Errorf("unknown pipeline stage: %s", stage)
	}
}

// stageFetch sizes the article window for the run.
func (s *Service) stageFetch(ctx context.Context, run *domain.PipelineRun, opts RunOptions) error {
	total, err := s.articles.CountInWindow(ctx, run.DateFrom, run.DateTo)
	if err != nil {
		return err
	}
	if opts.Limit != nil && *opts.Limit < total {
		total = *opts.Limit
	}
	run.TotalArticles = total
	s.report(opts, domain.StageFetch, fmt.Sprintf("%d articles in window", total))
	return s.runs.SetTotalArticles(ctx, run.ID, total)
}

// stageRuleFilter streams the window through the rule set, one decision row
// per article, collecting survivors for the analysis stage.
func (s *Service) stageRuleFilter(
	ctx context.Context,
	run *domain.PipelineRun,
	opts RunOptions,
	state *runState,
) error {
	if _, err := s.rules.SeedRules(ctx, DefaultRules()); err != nil {
		return err
	}
	activeRules, err := s.rules.ListActiveRules(ctx)
	if err != nil {
		return err
	}
	forceInclude, err := s.forceIncludeSet(ctx)
	if err != nil {
		return err
	}
	evaluator, err := NewEvaluator(activeRules, forceInclude)
	if err != nil {
		return err
	}

	remaining := -1
	if opts.Limit != nil {
		remaining = *opts.Limit
	}

	state.survivors = nil
	state.loaded = true
	offset := 0
	for remaining != 0 {
		page, err := s.articles.ListInWindow(ctx, run.DateFrom, run.DateTo, s.cfg.PageSize, offset)
		if err != nil {
			return err
		}
		if len(page) == 0 {
			break
		}
		if remaining >= 0 && len(page) > remaining {
			page = page[:remaining]
		}

		results := make([]*domain.FilterResult, 0, len(page))
		for _, a := range page {
			verdict := evaluator.Evaluate(a)
			results = append(results, &domain.FilterResult{
				PipelineRunID: run.ID,
				ArticleID:     a.ID,
				Stage:         domain.StageRuleFilter,
				Decision:      verdict.Decision,
				RuleName:      verdict.RuleName,
				Reason:        verdict.Reason,
			})
			if verdict.Decision != domain.DecisionFilter {
				state.survivors = append(state.survivors, a)
			}
		}
		if err := s.results.InsertBatch(ctx, results); err != nil {
			return err
		}

		offset += len(page)
		if remaining >= 0 {
			remaining -= len(page)
		}
		if len(page) < s.cfg.PageSize {
			break
		}
	}

	for name, count := range evaluator.MatchCounts() {
		if err := s.rules.IncrementFilteredCount(ctx, name, count); err != nil {
			return err
		}
	}

	return s.refreshRuleStats(ctx, run.ID)
}

// stageLLMAnalysis hands the survivors to the batch coordinator. On resume
// the survivor set is rebuilt from the persisted filter decisions.
func (s *Service) stageLLMAnalysis(
	ctx context.Context,
	run *domain.PipelineRun,
	opts RunOptions,
	state *runState,
) error {
	if !state.loaded {
		survivors, err := s.loadSurvivors(ctx, run.ID)
		if err != nil {
			return err
		}
		state.survivors = survivors
		state.loaded = true
	}

	if len(state.survivors) == 0 {
		s.report(opts, domain.StageLLMAnalysis, "no survivors to analyze")
		return s.runs.SetAnalyzedCount(ctx, run.ID, 0)
	}

	report, err := s.analyzer.Analyze(ctx, state.survivors, run)
	if err != nil {
		return err
	}
	s.report(opts, domain.StageLLMAnalysis,
		fmt.Sprintf("analyzed %d, failed %d", report.Succeeded, report.Failed))

	analyzed, err := s.tracking.CountResultsByRun(ctx, run.ID)
	if err != nil {
		return err
	}
	return s.runs.SetAnalyzedCount(ctx, run.ID, analyzed)
}

// stageStore recomputes the run counters from the authoritative decision and
// result tables.
func (s *Service) stageStore(ctx context.Context, run *domain.PipelineRun) error {
	if err := s.refreshRuleStats(ctx, run.ID); err != nil {
		return err
	}
	analyzed, err := s.tracking.CountResultsByRun(ctx, run.ID)
	if err != nil {
		return err
	}
	return s.runs.SetAnalyzedCount(ctx, run.ID, analyzed)
}

func (s *Service) refreshRuleStats(ctx context.Context, runID int64) error {
	counts, err := s.results.CountDecisions(ctx, runID, domain.StageRuleFilter)
	if err != nil {
		return err
	}
	filtered := counts[domain.DecisionFilter]
	forceIncluded := counts[domain.DecisionForceInclude]
	passed := counts[domain.DecisionKeep] + forceIncluded
	return s.runs.UpdateRuleStats(ctx, runID, filtered, passed, forceIncluded)
}

// loadSurvivors rebuilds the in-memory survivor set from persisted filter
// decisions, for runs resuming directly in the analysis stage.
func (s *Service) loadSurvivors(ctx context.Context, runID int64) ([]*domain.Article, error) {
	ids, err := s.results.PassedArticleIDs(ctx, runID)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	return s.articles.GetByIDs(ctx, ids)
}

// Reset rewinds a run to before the given stage so it can re-execute from
// there. Stage artifacts from that stage onward are deleted.
func (s *Service) Reset(ctx context.Context, runID int64, fromStage domain.PipelineStage) error {
	idx := domain.StageIndex(fromStage)
	if idx < 0 {
		return fmt.Errorf("unknown pipeline stage: %s", fromStage)
	}

	run, err := s.runs.GetByID(ctx, runID)
	if err != nil {
		return err
	}
	if err := domain.ValidatePipelineTransition(run.Status, domain.PipelineStatusPending); err != nil {
		return err
	}

	llmIdx := domain.StageIndex(domain.StageLLMAnalysis)
	return s.runs.ResetRun(ctx, database.ResetRunParams{
		RunID:        runID,
		DeleteStages: domain.StagesFrom(fromStage),
		ResetLLM:     idx <= llmIdx,
		ZeroTotal:    fromStage == domain.StageFetch,
		ZeroRule:     idx <= domain.StageIndex(domain.StageRuleFilter),
		ZeroAnalyzed: idx <= llmIdx,
	})
}

// AddForceInclude whitelists an article past every filter rule.
func (s *Service) AddForceInclude(ctx context.Context, articleID int64, reason, addedBy string) error {
	fi := &domain.ForceIncludeArticle{ArticleID: articleID}
	if reason != "" {
		fi.Reason = &reason
	}
	if addedBy != "" {
		fi.AddedBy = &addedBy
	}
	if err := s.rules.AddForceInclude(ctx, fi); err != nil {
		return err
	}
	s.invalidateForceIncludes()
	return nil
}

// RemoveForceInclude removes an article from the whitelist.
func (s *Service) RemoveForceInclude(ctx context.Context, articleID int64) error {
	if err := s.rules.RemoveForceInclude(ctx, articleID); err != nil {
		return err
	}
	s.invalidateForceIncludes()
	return nil
}

// ListForceIncludes returns the whitelist, newest first.
func (s *Service) ListForceIncludes(ctx context.Context) ([]*domain.ForceIncludeArticle, error) {
	return s.rules.ListForceIncludes(ctx)
}

func (s *Service) forceIncludeSet(ctx context.Context) (map[int64]struct{}, error) {
	s.mu.Lock()
	cached := s.forceInclude
	s.mu.Unlock()
	if cached != nil {
		return cached, nil
	}

	set, err := s.rules.ForceIncludeIDSet(ctx)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.forceInclude = set
	s.mu.Unlock()
	return set, nil
}

func (s *Service) invalidateForceIncludes() {
	s.mu.Lock()
	s.forceInclude = nil
	s.mu.Unlock()
}

func (s *Service) report(opts RunOptions, stage domain.PipelineStage, message string) {
	if opts.Progress != nil {
		opts.Progress(stage, message)
	}
	s.logger.Info("pipeline stage",
		logger.String("stage", string(stage)),
		logger.String("message", message),
	)
}
