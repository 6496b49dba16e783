package analysis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonesrussell/newsflow/internal/config"
	"github.com/jonesrussell/newsflow/internal/database"
	"github.com/jonesrussell/newsflow/internal/domain"
	"github.com/jonesrussell/newsflow/internal/logger"
)

// ErrTimeout reports that a batch did not finish within the configured
// maximum wait. The batch keeps running remotely; callers pause and resume
// polling later rather than resubmitting.
var ErrTimeout = errors.New("batch polling timed out")

// maxTrackedErrorLen bounds error messages stored on tracking rows.
const maxTrackedErrorLen = 4096

// StoreFailure is one article the analysis store could not persist.
// Transient failures keep their result for a storage-only retry; data
// failures require re-analysis.
type StoreFailure struct {
	ArticleID int64
	Transient bool
	Err       error
}

// Storer persists analysis graphs. Implemented by the analytics store.
type Storer interface {
	StoreBatch(ctx context.Context, articles map[int64]*domain.Article, responses []AnalysisResponse) (int, []StoreFailure, error)
}

// Report summarizes one coordinator invocation.
type Report struct {
	BatchID     string `json:"batch_id,omitempty"`
	Submitted   int    `json:"submitted"`
	Skipped     int    `json:"skipped"`
	Succeeded   int    `json:"succeeded"`
	Failed      int    `json:"failed"`
	StoreFailed int    `json:"store_failed"`
}

// Coordinator drives one batch of analysis requests end to end: submit or
// resume, poll to completion, retrieve, persist through the store, and keep
// one authoritative tracking row per article per batch.
type Coordinator struct {
	provider Provider
	tracking database.AnalysisRepositoryInterface
	runs     database.PipelineRunRepositoryInterface
	articles database.ArticleRepositoryInterface
	store    Storer
	model    string
	cfg      config.LLMConfig
	logger   logger.Logger
}

// NewCoordinator creates the batch coordinator.
func NewCoordinator(
	provider Provider,
	tracking database.AnalysisRepositoryInterface,
	runs database.PipelineRunRepositoryInterface,
	articles database.ArticleRepositoryInterface,
	store Storer,
	cfg config.LLMConfig,
	log logger.Logger,
) *Coordinator {
	model := cfg.Model
	if cfg.Provider == "anthropic" && cfg.Anthropic.Model != "" {
		model = cfg.Anthropic.Model
	}
	return &Coordinator{
		provider: provider,
		tracking: tracking,
		runs:     runs,
		articles: articles,
		store:    store,
		model:    model,
		cfg:      cfg,
		logger:   log,
	}
}

// Analyze submits the articles as one batch, or resumes the run's persisted
// batch, and tracks every article to a terminal outcome. Articles that
// already succeeded in this run are skipped. The batch id lands on the run
// before any tracking row so a crash between the two can resume.
func (c *Coordinator) Analyze(ctx context.Context, articles []*domain.Article, run *domain.PipelineRun) (*Report, error) {
	done, err := c.tracking.SuccessArticleIDs(ctx, run.ID)
	if err != nil {
		return nil, err
	}

	candidates := make([]*domain.Article, 0, len(articles))
	for _, a := range articles {
		if _, ok := done[a.ID]; !ok {
			candidates = append(candidates, a)
		}
	}
	report := &Report{Skipped: len(articles) - len(candidates)}

	var batchID string
	switch {
	case run.BatchID != nil && *run.BatchID != "":
		batchID = *run.BatchID
		c.logger.Info("resuming persisted batch",
			logger.Int64("run_id", run.ID),
			logger.String("batch_id", batchID),
		)
	case len(candidates) == 0:
		return report, nil
	default:
		requests := make([]AnalysisRequest, 0, len(candidates))
		for _, a := range candidates {
			requests = append(requests, NewRequest(a))
		}
		batchID, err = c.provider.SubmitBatch(ctx, requests)
		if err != nil {
			return nil, fmt.Errorf("failed to submit batch: %w", err)
		}
		if err := c.runs.SetBatchID(ctx, run.ID, batchID); err != nil {
			return nil, err
		}
		run.BatchID = &batchID
		report.Submitted = len(candidates)
	}

	return c.execute(ctx, run.ID, batchID, candidates, report)
}

// RetryFailed rebuilds a batch from the run's FAILED tracking rows, deletes
// them, and submits fresh. STORE_FAILED rows are excluded: their analysis
// already succeeded.
func (c *Coordinator) RetryFailed(ctx context.Context, run *domain.PipelineRun) (*Report, error) {
	ids, err := c.tracking.DeleteFailed(ctx, run.ID)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return &Report{}, nil
	}

	candidates, err := c.articles.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	requests := make([]AnalysisRequest, 0, len(candidates))
	for _, a := range candidates {
		requests = append(requests, NewRequest(a))
	}

	batchID, err := c.provider.SubmitBatch(ctx, requests)
	if err != nil {
		return nil, fmt.Errorf("failed to submit retry batch: %w", err)
	}
	if err := c.runs.SetBatchID(ctx, run.ID, batchID); err != nil {
		return nil, err
	}
	run.BatchID = &batchID

	report := &Report{Submitted: len(candidates)}
	return c.execute(ctx, run.ID, batchID, candidates, report)
}

// RetryStoreFailed replays retained results of STORE_FAILED rows into the
// store without touching the LLM. Stored rows flip to SUCCESS and drop
// their payload; data failures flip to FAILED for re-analysis; transient
// failures stay STORE_FAILED.
func (c *Coordinator) RetryStoreFailed(ctx context.Context) (*Report, error) {
	rows, err := c.tracking.ListStoreFailed(ctx)
	if err != nil {
		return nil, err
	}
	report := &Report{}
	if len(rows) == 0 {
		return report, nil
	}

	ids := make([]int64, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ArticleID)
	}
	articles, err := c.articles.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := articlesByID(articles)

	responses := make([]AnalysisResponse, 0, len(rows))
	for _, row := range rows {
		responses = append(responses, AnalysisResponse{
			CustomID:   CustomID(row.ArticleID),
			Success:    true,
			ResultJSON: *row.ResultJSON,
		})
	}

	_, failures, storeErr := c.store.StoreBatch(ctx, byID, responses)
	failureByID := failuresByID(failures, storeErr, responses)

	for _, row := range rows {
		failure, failed := failureByID[row.ArticleID]
		switch {
		case !failed:
			if err := c.tracking.MarkOutcome(ctx, row.ArticleID, row.BatchID,
				domain.TrackingStatusSuccess, nil, nil); err != nil {
				return nil, err
			}
			c.insertResult(ctx, row.PipelineRunID, row.ArticleID, row.BatchID)
			report.Succeeded++
		case failure.Transient:
			msg := truncateError(failure.Err)
			if err := c.tracking.MarkOutcome(ctx, row.ArticleID, row.BatchID,
				domain.TrackingStatusStoreFailed, &msg, row.ResultJSON); err != nil {
				return nil, err
			}
			report.StoreFailed++
		default:
			msg := truncateError(failure.Err)
			if err := c.tracking.MarkOutcome(ctx, row.ArticleID, row.BatchID,
				domain.TrackingStatusFailed, &msg, nil); err != nil {
				return nil, err
			}
			report.Failed++
		}
	}
	return report, nil
}

// execute tracks, awaits, retrieves, and persists one batch.
func (c *Coordinator) execute(
	ctx context.Context,
	runID int64,
	batchID string,
	candidates []*domain.Article,
	report *Report,
) (*Report, error) {
	report.BatchID = batchID

	trackingRows := make([]*domain.AnalysisTracking, 0, len(candidates))
	for _, a := range candidates {
		trackingRows = append(trackingRows, &domain.AnalysisTracking{
			PipelineRunID: runID,
			ArticleID:     a.ID,
			BatchID:       batchID,
		})
	}
	if err := c.tracking.InsertPendingTracking(ctx, trackingRows); err != nil {
		return nil, err
	}

	status, err := c.awaitBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if status.State != BatchStateCompleted {
		return nil, fmt.Errorf("batch %s ended in state %s", batchID, status.State)
	}

	responses, err := c.provider.RetrieveResults(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve batch results: %w", err)
	}

	if err := c.persist(ctx, runID, batchID, articlesByID(candidates), responses, report); err != nil {
		return nil, err
	}
	return report, nil
}

// awaitBatch polls the batch until it reaches a terminal state or MaxWait
// elapses.
func (c *Coordinator) awaitBatch(ctx context.Context, batchID string) (*BatchStatus, error) {
	deadline := time.Now().Add(c.cfg.MaxWait)
	for {
		status, err := c.provider.CheckBatchStatus(ctx, batchID)
		if err != nil {
			return nil, err
		}
		if status.State.Terminal() {
			return status, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("batch %s still %s after %s: %w",
				batchID, status.State, c.cfg.MaxWait, ErrTimeout)
		}

		c.logger.Debug("batch in progress",
			logger.String("batch_id", batchID),
			logger.Int("completed", status.Completed),
			logger.Int("total", status.Total),
		)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.cfg.PollInterval):
		}
	}
}

// persist routes every response to its terminal tracking state. Successful
// analyses go through the store; its per-article failure classification
// decides between SUCCESS, STORE_FAILED, and FAILED.
func (c *Coordinator) persist(
	ctx context.Context,
	runID int64,
	batchID string,
	byID map[int64]*domain.Article,
	responses []AnalysisResponse,
	report *Report,
) error {
	successes := make([]AnalysisResponse, 0, len(responses))
	for _, resp := range responses {
		articleID, err := ParseCustomID(resp.CustomID)
		if err != nil {
			c.logger.Warn("skipping unrecognized batch line", logger.String("custom_id", resp.CustomID))
			continue
		}
		if _, ok := byID[articleID]; !ok {
			// A resumed batch can carry lines for articles that already
			// terminated in an earlier invocation.
			continue
		}

		if !resp.Success {
			msg := truncate(resp.ErrorMessage)
			if err := c.tracking.MarkOutcome(ctx, articleID, batchID,
				domain.TrackingStatusFailed, &msg, nil); err != nil {
				return err
			}
			report.Failed++
			continue
		}
		successes = append(successes, resp)
	}

	if len(successes) == 0 {
		return nil
	}

	_, failures, storeErr := c.store.StoreBatch(ctx, byID, successes)
	failureByID := failuresByID(failures, storeErr, successes)

	for _, resp := range successes {
		articleID, _ := ParseCustomID(resp.CustomID)
		failure, failed := failureByID[articleID]
		switch {
		case !failed:
			if err := c.tracking.MarkOutcome(ctx, articleID, batchID,
				domain.TrackingStatusSuccess, nil, nil); err != nil {
				return err
			}
			c.insertResult(ctx, runID, articleID, batchID)
			report.Succeeded++
		case failure.Transient:
			msg := truncateError(failure.Err)
			resultJSON := resp.ResultJSON
			if err := c.tracking.MarkOutcome(ctx, articleID, batchID,
				domain.TrackingStatusStoreFailed, &msg, &resultJSON); err != nil {
				return err
			}
			report.StoreFailed++
		default:
			msg := truncateError(failure.Err)
			if err := c.tracking.MarkOutcome(ctx, articleID, batchID,
				domain.TrackingStatusFailed, &msg, nil); err != nil {
				return err
			}
			report.Failed++
		}
	}
	return nil
}

func (c *Coordinator) insertResult(ctx context.Context, runID, articleID int64, batchID string) {
	err := c.tracking.InsertResult(ctx, &domain.AnalysisResult{
		PipelineRunID: runID,
		ArticleID:     articleID,
		BatchID:       batchID,
		Status:        string(domain.TrackingStatusSuccess),
		Model:         c.model,
	})
	if err != nil {
		c.logger.Error("failed to record analysis result",
			logger.Int64("article_id", articleID),
			logger.Error(err),
		)
	}
}

// failuresByID indexes store failures per article. A store call that failed
// wholesale counts as a transient failure for every submitted article.
func failuresByID(failures []StoreFailure, storeErr error, responses []AnalysisResponse) map[int64]StoreFailure {
	byID := make(map[int64]StoreFailure, len(failures))
	if storeErr != nil {
		for _, resp := range responses {
			if id, err := ParseCustomID(resp.CustomID); err == nil {
				byID[id] = StoreFailure{ArticleID: id, Transient: true, Err: storeErr}
			}
		}
		return byID
	}
	for _, f := range failures {
		byID[f.ArticleID] = f
	}
	return byID
}

func articlesByID(articles []*domain.Article) map[int64]*domain.Article {
	byID := make(map[int64]*domain.Article, len(articles))
	for _, a := range articles {
		byID[a.ID] = a
	}
	return byID
}

func truncate(msg string) string {
	if len(msg) > maxTrackedErrorLen {
		return msg[:maxTrackedErrorLen]
	}
	return msg
}

func truncateError(err error) string {
	if err == nil {
		return ""
	}
	return truncate(err.Error())
}
