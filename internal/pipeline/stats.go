package pipeline

import (
	"context"

	"github.com/jonesrussell/newsflow/internal/database"
	"github.com/jonesrussell/newsflow/internal/domain"
)

// RunReport is one run with its decision breakdown.
type RunReport struct {
	Run       *domain.PipelineRun           `json:"run"`
	Decisions map[domain.FilterDecision]int `json:"decisions"`
}

// OverallReport aggregates every recent run.
type OverallReport struct {
	TotalRuns     int `json:"total_runs"`
	CompletedRuns int `json:"completed_runs"`
	FailedRuns    int `json:"failed_runs"`
	TotalArticles int `json:"total_articles"`
	FilteredCount int `json:"filtered_count"`
	PassedCount   int `json:"passed_count"`
	AnalyzedCount int `json:"analyzed_count"`
}

// overallWindow bounds how many runs OverallStats aggregates.
const overallWindow = 1000

// RunStats returns one run with its per-decision counts.
func (s *Service) RunStats(ctx context.Context, runID int64) (*RunReport, error) {
	run, err := s.runs.GetByID(ctx, runID)
	if err != nil {
		return nil, err
	}
	decisions, err := s.results.CountDecisions(ctx, runID, domain.StageRuleFilter)
	if err != nil {
		return nil, err
	}
	return &RunReport{Run: run, Decisions: decisions}, nil
}

// RuleStats returns every rule with its lifetime filtered count.
func (s *Service) RuleStats(ctx context.Context) ([]*domain.FilterRule, error) {
	return s.rules.ListRules(ctx)
}

// OverallStats aggregates counters across recent runs.
func (s *Service) OverallStats(ctx context.Context) (*OverallReport, error) {
	runs, err := s.runs.ListRecent(ctx, overallWindow)
	if err != nil {
		return nil, err
	}

	report := &OverallReport{TotalRuns: len(runs)}
	for _, run := range runs {
		switch run.Status {
		case domain.PipelineStatusCompleted:
			report.CompletedRuns++
		case domain.PipelineStatusFailed:
			report.FailedRuns++
		}
		report.TotalArticles += run.TotalArticles
		report.FilteredCount += run.RuleFilteredCount
		report.PassedCount += run.RulePassedCount
		report.AnalyzedCount += run.AnalyzedCount
	}
	return report, nil
}

// RecentRuns returns the newest runs.
func (s *Service) RecentRuns(ctx context.Context, limit int) ([]*domain.PipelineRun, error) {
	return s.runs.ListRecent(ctx, limit)
}

// FilteredArticles pages through articles a run dropped.
func (s *Service) FilteredArticles(
	ctx context.Context,
	runID int64,
	stage *domain.PipelineStage,
	limit, offset int,
) ([]*database.FilteredArticle, error) {
	return s.results.ListFiltered(ctx, runID, stage, limit, offset)
}

// PassedArticles pages through articles a run let through.
func (s *Service) PassedArticles(
	ctx context.Context,
	runID int64,
	limit, offset int,
) ([]*database.FilteredArticle, error) {
	return s.results.ListPassed(ctx, runID, limit, offset)
}
