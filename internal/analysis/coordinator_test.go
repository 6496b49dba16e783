package analysis_test

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
)

type fakeProvider struct {
	submitted [][]analysis.AnalysisRequest
	batchID   string
	statuses  []analysis.BatchStatus
	statusIdx int
	responses []analysis.AnalysisResponse
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) SubmitBatch(_ context.Context, requests []analysis.AnalysisRequest) (string, error) {
	f.submitted = append(f.submitted, requests)
	return f.batchID, nil
}

func (f *fakeProvider) CheckBatchStatus(_ context.Context, _ string) (*analysis.BatchStatus, error) {
	status := f.statuses[f.statusIdx]
	if f.statusIdx < len(f.statuses)-1 {
		f.statusIdx++
	}
	return &status, nil
}

func (f *fakeProvider) RetrieveResults(_ context.Context, _ string) ([]analysis.AnalysisResponse, error) {
	return f.responses, nil
}

type outcome struct {
	status     domain.TrackingStatus
	errMsg     *string
	resultJSON *string
}

type fakeTracking struct {
	database.AnalysisRepositoryInterface

	events      *[]string
	successIDs  map[int64]struct{}
	pending     []*domain.AnalysisTracking
	outcomes    map[int64]outcome
	failedIDs   []int64
	storeFailed []*domain.AnalysisTracking
	results     []*domain.AnalysisResult
}

func (f *fakeTracking) SuccessArticleIDs(_ context.Context, _ int64) (map[int64]struct{}, error) {
	if f.successIDs == nil {
		return map[int64]struct{}{}, nil
	}
	return f.successIDs, nil
}

func (f *fakeTracking) InsertPendingTracking(_ context.Context, rows []*domain.AnalysisTracking) error {
	*f.events = append(*f.events, "tracking")
	f.pending = append(f.pending, rows...)
	return nil
}

func (f *fakeTracking) MarkOutcome(
	_ context.Context, articleID int64, _ string,
	status domain.TrackingStatus, errMsg, resultJSON *string,
) error {
	if f.outcomes == nil {
		f.outcomes = make(map[int64]outcome)
	}
	f.outcomes[articleID] = outcome{status: status, errMsg: errMsg, resultJSON: resultJSON}
	return nil
}

func (f *fakeTracking) DeleteFailed(_ context.Context, _ int64) ([]int64, error) {
	return f.failedIDs, nil
}

func (f *fakeTracking) ListStoreFailed(_ context.Context) ([]*domain.AnalysisTracking, error) {
	return f.storeFailed, nil
}

func (f *fakeTracking) InsertResult(_ context.Context, result *domain.AnalysisResult) error {
	f.results = append(f.results, result)
	return nil
}

type fakeRuns struct {
	database.PipelineRunRepositoryInterface

	events  *[]string
	batchID string
}

func (f *fakeRuns) SetBatchID(_ context.Context, _ int64, batchID string) error {
	*f.events = append(*f.events, "batch_id")
	f.batchID = batchID
	return nil
}

type fakeArticles struct {
	database.ArticleRepositoryInterface

	articles []*domain.Article
}

func (f *fakeArticles) GetByIDs(_ context.Context, _ []int64) ([]*domain.Article, error) {
	return f.articles, nil
}

type fakeStore struct {
	failures []analysis.StoreFailure
	err      error
	stored   []analysis.AnalysisResponse
}

func (f *fakeStore) StoreBatch(
	_ context.Context, _ map[int64]*domain.Article, responses []analysis.AnalysisResponse,
) (int, []analysis.StoreFailure, error) {
	f.stored = append(f.stored, responses...)
	return len(responses) - len(f.failures), f.failures, f.err
}

func testArticles(ids ...int64) []*domain.Article {
	articles := make([]*domain.Article, 0, len(ids))
	for _, id := range ids {
		articles = append(articles, &domain.Article{
			ID:        id,
			Title:     "測試文章",
			Source:    "udn",
			CrawledAt: time.Now(),
		})
	}
	return articles
}

func llmConfig() config.LLMConfig {
	return config.LLMConfig{
		Provider:     "openai",
		Model:        "gpt-4o-mini",
		PollInterval: time.Millisecond,
		MaxWait:      50 * time.Millisecond,
	}
}

func TestAnalyzeTracksEveryOutcome(t *testing.T) {
	events := []string{}
	provider := &fakeProvider{
		batchID:  "batch_1",
		statuses: []analysis.BatchStatus{{State: analysis.BatchStateCompleted}},
		responses: []analysis.AnalysisResponse{
			{CustomID: analysis.CustomID(1), Success: true, ResultJSON: `{}`},
			{CustomID: analysis.CustomID(2), Success: true, ResultJSON: `{}`},
			{CustomID: analysis.CustomID(3), Success: true, ResultJSON: `{}`},
			{CustomID: analysis.CustomID(4), Success: false, ErrorMessage: "model refused"},
		},
	}
	tracking := &fakeTracking{events: &events}
	runs := &fakeRuns{events: &events}
	store := &fakeStore{
		failures: []analysis.StoreFailure{
			{ArticleID: 2, Transient: true, Err: errors.New("connection reset")},
			{ArticleID: 3, Transient: false, Err: errors.New("bad event time")},
		},
	}

	coord := analysis.NewCoordinator(provider, tracking, runs, &fakeArticles{}, store, llmConfig(), logger.NewNop())
	run := &domain.PipelineRun{ID: 7}

	report, err := coord.Analyze(context.Background(), testArticles(1, 2, 3, 4), run)
	require.NoError(t, err)

	assert.Equal(t, "batch_1", report.BatchID)
	assert.Equal(t, 4, report.Submitted)
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 2, report.Failed)
	assert.Equal(t, 1, report.StoreFailed)

	// The batch id must land on the run before any tracking row exists, so a
	// crash between the two resumes instead of resubmitting.
	require.Equal(t, []string{"batch_id", "tracking"}, events)
	assert.Equal(t, "batch_1", runs.batchID)
	require.Len(t, tracking.pending, 4)

	assert.Equal(t, domain.TrackingStatusSuccess, tracking.outcomes[1].status)
	assert.Nil(t, tracking.outcomes[1].resultJSON)
	assert.Equal(t, domain.TrackingStatusStoreFailed, tracking.outcomes[2].status)
	require.NotNil(t, tracking.outcomes[2].resultJSON)
	assert.Equal(t, `{}`, *tracking.outcomes[2].resultJSON)
	assert.Equal(t, domain.TrackingStatusFailed, tracking.outcomes[3].status)
	assert.Nil(t, tracking.outcomes[3].resultJSON)
	assert.Equal(t, domain.TrackingStatusFailed, tracking.outcomes[4].status)

	require.Len(t, tracking.results, 1)
	assert.Equal(t, int64(1), tracking.results[0].ArticleID)
	assert.Equal(t, "gpt-4o-mini", tracking.results[0].Model)
}

func TestAnalyzeSkipsAlreadySucceeded(t *testing.T) {
	events := []string{}
	provider := &fakeProvider{
		batchID:  "batch_2",
		statuses: []analysis.BatchStatus{{State: analysis.BatchStateCompleted}},
		responses: []analysis.AnalysisResponse{
			{CustomID: analysis.CustomID(2), Success: true, ResultJSON: `{}`},
		},
	}
	tracking := &fakeTracking{
		events:     &events,
		successIDs: map[int64]struct{}{1: {}},
	}

	coord := analysis.NewCoordinator(provider, tracking, &fakeRuns{events: &events},
		&fakeArticles{}, &fakeStore{}, llmConfig(), logger.NewNop())

	report, err := coord.Analyze(context.Background(), testArticles(1, 2), &domain.PipelineRun{ID: 7})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 1, report.Submitted)
	require.Len(t, provider.submitted, 1)
	require.Len(t, provider.submitted[0], 1)
	assert.Equal(t, analysis.CustomID(2), provider.submitted[0][0].CustomID)
}

func TestAnalyzeResumesPersistedBatch(t *testing.T) {
	events := []string{}
	provider := &fakeProvider{
		statuses: []analysis.BatchStatus{{State: analysis.BatchStateCompleted}},
		responses: []analysis.AnalysisResponse{
			{CustomID: analysis.CustomID(1), Success: true, ResultJSON: `{}`},
		},
	}
	tracking := &fakeTracking{events: &events}

	coord := analysis.NewCoordinator(provider, tracking, &fakeRuns{events: &events},
		&fakeArticles{}, &fakeStore{}, llmConfig(), logger.NewNop())

	batchID := "batch_old"
	run := &domain.PipelineRun{ID: 7, BatchID: &batchID}

	report, err := coord.Analyze(context.Background(), testArticles(1), run)
	require.NoError(t, err)

	assert.Empty(t, provider.submitted, "resumed run must not resubmit")
	assert.Equal(t, "batch_old", report.BatchID)
	assert.Equal(t, 0, report.Submitted)
	assert.Equal(t, 1, report.Succeeded)
}

func TestAnalyzeNothingToDo(t *testing.T) {
	events := []string{}
	tracking := &fakeTracking{
		events:     &events,
		successIDs: map[int64]struct{}{1: {}},
	}

	coord := analysis.NewCoordinator(&fakeProvider{}, tracking, &fakeRuns{events: &events},
		&fakeArticles{}, &fakeStore{}, llmConfig(), logger.NewNop())

	report, err := coord.Analyze(context.Background(), testArticles(1), &domain.PipelineRun{ID: 7})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Skipped)
	assert.Empty(t, report.BatchID)
	assert.Empty(t, tracking.pending)
}

func TestAnalyzePollTimeout(t *testing.T) {
	events := []string{}
	provider := &fakeProvider{
		batchID:  "batch_slow",
		statuses: []analysis.BatchStatus{{State: analysis.BatchStateInProgress}},
	}

	cfg := llmConfig()
	cfg.MaxWait = 5 * time.Millisecond

	coord := analysis.NewCoordinator(provider, &fakeTracking{events: &events},
		&fakeRuns{events: &events}, &fakeArticles{}, &fakeStore{}, cfg, logger.NewNop())

	_, err := coord.Analyze(context.Background(), testArticles(1), &domain.PipelineRun{ID: 7})
	require.Error(t, err)
	assert.ErrorIs(t, err, analysis.ErrTimeout)
}

func TestAnalyzeWholesaleStoreErrorIsTransient(t *testing.T) {
	events := []string{}
	provider := &fakeProvider{
		batchID:  "batch_3",
		statuses: []analysis.BatchStatus{{State: analysis.BatchStateCompleted}},
		responses: []analysis.AnalysisResponse{
			{CustomID: analysis.CustomID(1), Success: true, ResultJSON: `{}`},
			{CustomID: analysis.CustomID(2), Success: true, ResultJSON: `{}`},
		},
	}
	tracking := &fakeTracking{events: &events}
	store := &fakeStore{err: errors.New("database is down")}

	coord := analysis.NewCoordinator(provider, tracking, &fakeRuns{events: &events},
		&fakeArticles{}, store, llmConfig(), logger.NewNop())

	report, err := coord.Analyze(context.Background(), testArticles(1, 2), &domain.PipelineRun{ID: 7})
	require.NoError(t, err)

	assert.Equal(t, 2, report.StoreFailed)
	assert.Equal(t, 0, report.Succeeded)
	assert.Equal(t, domain.TrackingStatusStoreFailed, tracking.outcomes[1].status)
	assert.Equal(t, domain.TrackingStatusStoreFailed, tracking.outcomes[2].status)
}

func TestRetryFailedResubmitsDeletedRows(t *testing.T) {
	events := []string{}
	provider := &fakeProvider{
		batchID:  "batch_retry",
		statuses: []analysis.BatchStatus{{State: analysis.BatchStateCompleted}},
		responses: []analysis.AnalysisResponse{
			{CustomID: analysis.CustomID(5), Success: true, ResultJSON: `{}`},
		},
	}
	tracking := &fakeTracking{events: &events, failedIDs: []int64{5}}
	articles := &fakeArticles{articles: testArticles(5)}

	coord := analysis.NewCoordinator(provider, tracking, &fakeRuns{events: &events},
		articles, &fakeStore{}, llmConfig(), logger.NewNop())

	report, err := coord.RetryFailed(context.Background(), &domain.PipelineRun{ID: 7})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Submitted)
	assert.Equal(t, 1, report.Succeeded)
	require.Len(t, provider.submitted, 1)
	assert.Equal(t, analysis.CustomID(5), provider.submitted[0][0].CustomID)
}

func TestRetryFailedNoRows(t *testing.T) {
	events := []string{}
	coord := analysis.NewCoordinator(&fakeProvider{}, &fakeTracking{events: &events},
		&fakeRuns{events: &events}, &fakeArticles{}, &fakeStore{}, llmConfig(), logger.NewNop())

	report, err := coord.RetryFailed(context.Background(), &domain.PipelineRun{ID: 7})
	require.NoError(t, err)
	assert.Equal(t, 0, report.Submitted)
}

func TestRetryStoreFailedSplitsOutcomes(t *testing.T) {
	events := []string{}
	retained := `{"category_normalized":"politics"}`
	rows := []*domain.AnalysisTracking{
		{PipelineRunID: 7, ArticleID: 1, BatchID: "batch_1", ResultJSON: &retained},
		{PipelineRunID: 7, ArticleID: 2, BatchID: "batch_1", ResultJSON: &retained},
		{PipelineRunID: 7, ArticleID: 3, BatchID: "batch_1", ResultJSON: &retained},
	}
	tracking := &fakeTracking{events: &events, storeFailed: rows}
	store := &fakeStore{
		failures: []analysis.StoreFailure{
			{ArticleID: 2, Transient: true, Err: errors.New("still down")},
			{ArticleID: 3, Transient: false, Err: errors.New("bad payload")},
		},
	}

	coord := analysis.NewCoordinator(&fakeProvider{}, tracking, &fakeRuns{events: &events},
		&fakeArticles{articles: testArticles(1, 2, 3)}, store, llmConfig(), logger.NewNop())

	report, err := coord.RetryStoreFailed(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 1, report.StoreFailed)
	assert.Equal(t, 1, report.Failed)

	// No LLM round trip: retained results replay straight into the store.
	assert.Empty(t, events)
	require.Len(t, store.stored, 3)

	assert.Equal(t, domain.TrackingStatusSuccess, tracking.outcomes[1].status)
	assert.Nil(t, tracking.outcomes[1].resultJSON)
	assert.Equal(t, domain.TrackingStatusStoreFailed, tracking.outcomes[2].status)
	require.NotNil(t, tracking.outcomes[2].resultJSON)
	assert.Equal(t, domain.TrackingStatusFailed, tracking.outcomes[3].status)
	assert.Nil(t, tracking.outcomes[3].resultJSON)
	require.Len(t, tracking.results, 1)
}
