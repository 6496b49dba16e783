package pipeline_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/newsflow/internal/analysis"
	"github.com/jonesrussell/newsflow/internal/config"
	"github.com/jonesrussell/newsflow/internal/database"
	"github.com/jonesrussell/newsflow/internal/domain"
	"github.com/jonesrussell/newsflow/internal/logger"
	"github.com/jonesrussell/newsflow/internal/pipeline"
)

type fakeRunRepo struct {
	database.PipelineRunRepositoryInterface

	run           *domain.PipelineRun
	statuses      []domain.PipelineStatus
	stages        []*domain.PipelineStage
	totalArticles *int
	analyzedCount *int
	ruleStats     []int
	errorLog      *string
	resetParams   *database.ResetRunParams
}

func (f *fakeRunRepo) Create(_ context.Context, run *domain.PipelineRun) error {
	run.ID = 7
	f.run = run
	return nil
}

func (f *fakeRunRepo) GetByID(_ context.Context, _ int64) (*domain.PipelineRun, error) {
	return f.run, nil
}

func (f *fakeRunRepo) UpdateStatus(_ context.Context, _ int64, status domain.PipelineStatus) error {
	f.statuses = append(f.statuses, status)
	f.run.Status = status
	return nil
}

func (f *fakeRunRepo) UpdateStage(_ context.Context, _ int64, stage *domain.PipelineStage) error {
	f.stages = append(f.stages, stage)
	f.run.CurrentStage = stage
	return nil
}

func (f *fakeRunRepo) SetTotalArticles(_ context.Context, _ int64, total int) error {
	f.totalArticles = &total
	return nil
}

func (f *fakeRunRepo) UpdateRuleStats(_ context.Context, _ int64, filtered, passed, forceIncluded int) error {
	f.ruleStats = []int{filtered, passed, forceIncluded}
	return nil
}

func (f *fakeRunRepo) SetAnalyzedCount(_ context.Context, _ int64, analyzed int) error {
	f.analyzedCount = &analyzed
	return nil
}

func (f *fakeRunRepo) SetErrorLog(_ context.Context, _ int64, errorLog *string) error {
	f.errorLog = errorLog
	return nil
}

func (f *fakeRunRepo) ResetRun(_ context.Context, params database.ResetRunParams) error {
	f.resetParams = &params
	return nil
}

type fakeResultRepo struct {
	database.FilterResultRepositoryInterface

	inserted  []*domain.FilterResult
	passedIDs []int64
}

func (f *fakeResultRepo) InsertBatch(_ context.Context, results []*domain.FilterResult) error {
	f.inserted = append(f.inserted, results...)
	return nil
}

func (f *fakeResultRepo) CountDecisions(
	_ context.Context, _ int64, _ domain.PipelineStage,
) (map[domain.FilterDecision]int, error) {
	counts := make(map[domain.FilterDecision]int)
	for _, r := range f.inserted {
		counts[r.Decision]++
	}
	return counts, nil
}

func (f *fakeResultRepo) PassedArticleIDs(_ context.Context, _ int64) ([]int64, error) {
	return f.passedIDs, nil
}

type fakeRuleRepo struct {
	database.FilterRuleRepositoryInterface

	increments map[string]int64
}

func (f *fakeRuleRepo) SeedRules(_ context.Context, _ []*domain.FilterRule) (int, error) {
	return 0, nil
}

func (f *fakeRuleRepo) ListActiveRules(_ context.Context) ([]*domain.FilterRule, error) {
	return pipeline.DefaultRules(), nil
}

func (f *fakeRuleRepo) ForceIncludeIDSet(_ context.Context) (map[int64]struct{}, error) {
	return map[int64]struct{}{}, nil
}

func (f *fakeRuleRepo) IncrementFilteredCount(_ context.Context, name string, delta int64) error {
	if f.increments == nil {
		f.increments = make(map[string]int64)
	}
	f.increments[name] += delta
	return nil
}

type fakeWindowRepo struct {
	database.ArticleRepositoryInterface

	articles []*domain.Article
}

func (f *fakeWindowRepo) CountInWindow(_ context.Context, _, _ *time.Time) (int, error) {
	return len(f.articles), nil
}

func (f *fakeWindowRepo) ListInWindow(
	_ context.Context, _, _ *time.Time, limit, offset int,
) ([]*domain.Article, error) {
	if offset >= len(f.articles) {
		return nil, nil
	}
	end := offset + limit
	if end > len(f.articles) {
		end = len(f.articles)
	}
	return f.articles[offset:end], nil
}

func (f *fakeWindowRepo) GetByIDs(_ context.Context, ids []int64) ([]*domain.Article, error) {
	var out []*domain.Article
	for _, a := range f.articles {
		for _, id := range ids {
			if a.ID == id {
				out = append(out, a)
			}
		}
	}
	return out, nil
}

type fakeTrackingRepo struct {
	database.AnalysisRepositoryInterface

	resultCount int
}

func (f *fakeTrackingRepo) CountResultsByRun(_ context.Context, _ int64) (int, error) {
	return f.resultCount, nil
}

type fakeAnalyzer struct {
	analyzed []*domain.Article
	report   *analysis.Report
	err      error
}

func (f *fakeAnalyzer) Analyze(
	_ context.Context, articles []*domain.Article, _ *domain.PipelineRun,
) (*analysis.Report, error) {
	f.analyzed = articles
	if f.err != nil {
		return nil, f.err
	}
	if f.report != nil {
		return f.report, nil
	}
	return &analysis.Report{Succeeded: len(articles)}, nil
}

type pipelineFixture struct {
	svc      *pipeline.Service
	runs     *fakeRunRepo
	results  *fakeResultRepo
	rules    *fakeRuleRepo
	articles *fakeWindowRepo
	tracking *fakeTrackingRepo
	analyzer *fakeAnalyzer
}

func newFixture(articles []*domain.Article) *pipelineFixture {
	f := &pipelineFixture{
		runs: &fakeRunRepo{
			run: &domain.PipelineRun{ID: 7, Status: domain.PipelineStatusPending},
		},
		results:  &fakeResultRepo{},
		rules:    &fakeRuleRepo{},
		articles: &fakeWindowRepo{articles: articles},
		tracking: &fakeTrackingRepo{},
		analyzer: &fakeAnalyzer{},
	}
	f.svc = pipeline.NewService(
		f.runs, f.results, f.rules, f.articles, f.tracking, f.analyzer,
		config.PipelineConfig{DefaultDays: 7, PageSize: 2},
		logger.NewNop(),
	)
	return f
}

func windowArticles() []*domain.Article {
	return []*domain.Article{
		{ID: 1, Title: "立法院三讀通過年度預算"},
		{ID: 2, Title: "本週星座運勢大公開"},
		{ID: 3, Title: "內閣改組進入最後階段"},
	}
}

func TestRunCompletesAllStages(t *testing.T) {
	f := newFixture(windowArticles())
	f.tracking.resultCount = 2

	err := f.svc.Run(context.Background(), 7, pipeline.RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, []domain.PipelineStatus{
		domain.PipelineStatusRunning,
		domain.PipelineStatusCompleted,
	}, f.runs.statuses)
	require.NotNil(t, f.runs.totalArticles)
	assert.Equal(t, 3, *f.runs.totalArticles)

	// One decision row per article; the horoscope is the only drop.
	require.Len(t, f.results.inserted, 3)
	assert.Equal(t, []int{1, 2, 0}, f.runs.ruleStats)
	assert.Equal(t, int64(1), f.rules.increments["horoscope_filter"])

	require.Len(t, f.analyzer.analyzed, 2)
	assert.Equal(t, int64(1), f.analyzer.analyzed[0].ID)
	assert.Equal(t, int64(3), f.analyzer.analyzed[1].ID)

	require.NotNil(t, f.runs.analyzedCount)
	assert.Equal(t, 2, *f.runs.analyzedCount)

	// Stage pointer cleared once the run completes.
	assert.Nil(t, f.runs.stages[len(f.runs.stages)-1])
}

func TestRunUntilStagePausesBeforeNext(t *testing.T) {
	f := newFixture(windowArticles())

	until := domain.StageRuleFilter
	err := f.svc.Run(context.Background(), 7, pipeline.RunOptions{UntilStage: &until})
	require.NoError(t, err)

	assert.Equal(t, domain.PipelineStatusPaused, f.runs.run.Status)
	require.NotNil(t, f.runs.run.CurrentStage)
	assert.Equal(t, domain.StageLLMAnalysis, *f.runs.run.CurrentStage)
	assert.Empty(t, f.analyzer.analyzed, "analysis must not start before resume")
}

func TestRunResumesFromRecordedStage(t *testing.T) {
	f := newFixture(windowArticles())
	stage := domain.StageLLMAnalysis
	f.runs.run.Status = domain.PipelineStatusPaused
	f.runs.run.CurrentStage = &stage
	f.results.passedIDs = []int64{1, 3}
	f.tracking.resultCount = 2

	err := f.svc.Run(context.Background(), 7, pipeline.RunOptions{})
	require.NoError(t, err)

	// Survivors are rebuilt from persisted decisions, not re-filtered.
	assert.Empty(t, f.results.inserted)
	require.Len(t, f.analyzer.analyzed, 2)
	assert.Equal(t, domain.PipelineStatusCompleted, f.runs.run.Status)
}

func TestRunZeroLimitCompletesWithoutWork(t *testing.T) {
	f := newFixture(windowArticles())

	limit := 0
	err := f.svc.Run(context.Background(), 7, pipeline.RunOptions{Limit: &limit})
	require.NoError(t, err)

	assert.Equal(t, domain.PipelineStatusCompleted, f.runs.run.Status)
	require.NotNil(t, f.runs.totalArticles)
	assert.Equal(t, 0, *f.runs.totalArticles)
	assert.Empty(t, f.results.inserted)
	assert.Empty(t, f.analyzer.analyzed)
}

func TestRunLimitCapsWindow(t *testing.T) {
	f := newFixture(windowArticles())
	f.tracking.resultCount = 1

	limit := 2
	err := f.svc.Run(context.Background(), 7, pipeline.RunOptions{Limit: &limit})
	require.NoError(t, err)

	require.NotNil(t, f.runs.totalArticles)
	assert.Equal(t, 2, *f.runs.totalArticles)
	// Articles 1 and 2 considered; the horoscope drops, one survivor.
	require.Len(t, f.results.inserted, 2)
	require.Len(t, f.analyzer.analyzed, 1)
}

func TestRunPollTimeoutPausesRun(t *testing.T) {
	f := newFixture(windowArticles())
	f.analyzer.err = analysis.ErrTimeout

	err := f.svc.Run(context.Background(), 7, pipeline.RunOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, analysis.ErrTimeout)

	assert.Equal(t, domain.PipelineStatusPaused, f.runs.run.Status)
	assert.Nil(t, f.runs.errorLog, "timeout is a pause, not a failure")
	// The stage pointer stays on LLM_ANALYSIS so resume re-enters the batch.
	require.NotNil(t, f.runs.run.CurrentStage)
	assert.Equal(t, domain.StageLLMAnalysis, *f.runs.run.CurrentStage)
}

func TestRunStageErrorFailsRun(t *testing.T) {
	f := newFixture(windowArticles())
	f.analyzer.err = errors.New("provider rejected the batch")

	err := f.svc.Run(context.Background(), 7, pipeline.RunOptions{})
	require.Error(t, err)

	assert.Equal(t, domain.PipelineStatusFailed, f.runs.run.Status)
	require.NotNil(t, f.runs.errorLog)
	assert.Contains(t, *f.runs.errorLog, "provider rejected")
	assert.Nil(t, f.runs.run.CurrentStage)
}

func TestRunRejectsInvalidTransition(t *testing.T) {
	f := newFixture(nil)
	f.runs.run.Status = domain.PipelineStatusRunning

	err := f.svc.Run(context.Background(), 7, pipeline.RunOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid pipeline transition")
}

func TestCreateQuickRunUsesDefaultLookback(t *testing.T) {
	f := newFixture(nil)

	run, err := f.svc.CreateQuickRun(context.Background(), 0)
	require.NoError(t, err)
	require.NotNil(t, run.DateFrom)
	require.NotNil(t, run.DateTo)
	assert.WithinDuration(t, run.DateTo.AddDate(0, 0, -7), *run.DateFrom, time.Second)
	assert.Equal(t, domain.PipelineStatusPending, run.Status)
}

func TestResetRewindsRun(t *testing.T) {
	f := newFixture(nil)
	f.runs.run.Status = domain.PipelineStatusCompleted

	err := f.svc.Reset(context.Background(), 7, domain.StageRuleFilter)
	require.NoError(t, err)

	params := f.runs.resetParams
	require.NotNil(t, params)
	assert.Equal(t, []domain.PipelineStage{
		domain.StageRuleFilter, domain.StageLLMAnalysis, domain.StageStore,
	}, params.DeleteStages)
	assert.True(t, params.ResetLLM)
	assert.False(t, params.ZeroTotal)
	assert.True(t, params.ZeroRule)
	assert.True(t, params.ZeroAnalyzed)
}

func TestResetRejectsRunningRun(t *testing.T) {
	f := newFixture(nil)
	f.runs.run.Status = domain.PipelineStatusRunning

	err := f.svc.Reset(context.Background(), 7, domain.StageFetch)
	require.Error(t, err)
	assert.Nil(t, f.runs.resetParams)
}
