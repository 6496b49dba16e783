package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/newsflow/internal/domain"
)

const trackingColumns = `id, pipeline_run_id, article_id, batch_id, status,
	       error_message, result_json, created_at, updated_at`

// AnalysisRepository handles database operations for LLM batch tracking rows
// and per-run analysis result records.
type AnalysisRepository struct {
	db *sqlx.DB
}

// NewAnalysisRepository creates a new analysis repository.
func NewAnalysisRepository(db *sqlx.DB) *AnalysisRepository {
	return &AnalysisRepository{db: db}
}

// InsertPendingTracking inserts PENDING tracking rows for a batch. Rows that
// already exist for the same (article, batch) are skipped, so resuming a
// batch only fills the gaps.
func (r *AnalysisRepository) InsertPendingTracking(ctx context.Context, rows []*domain.AnalysisTracking) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	query := `
		INSERT INTO article_analysis_tracking (pipeline_run_id, article_id, batch_id, status)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (article_id, batch_id) DO NOTHING
	`

	for _, row := range rows {
		if _, execErr := tx.ExecContext(ctx, query,
			row.PipelineRunID, row.ArticleID, row.BatchID, domain.TrackingStatusPending); execErr != nil {
			return fmt.Errorf("failed to insert tracking row: %w", execErr)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit tracking rows: %w", err)
	}

	return nil
}

// SuccessArticleIDs returns the run's articles that already completed
// analysis, the set Analyze skips on re-submission.
func (r *AnalysisRepository) SuccessArticleIDs(ctx context.Context, runID int64) (map[int64]struct{}, error) {
	var ids []int64
	query := `
		SELECT article_id FROM article_analysis_tracking
		WHERE pipeline_run_id = $1 AND status = $2
	`

	err := r.db.SelectContext(ctx, &ids, query, runID, domain.TrackingStatusSuccess)
	if err != nil {
		return nil, fmt.Errorf("failed to load analyzed article ids: %w", err)
	}

	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set, nil
}

// MarkOutcome finalizes one tracking row after batch retrieval or storage.
// resultJSON must be non-nil only for STORE_FAILED rows.
func (r *AnalysisRepository) MarkOutcome(
	ctx context.Context,
	articleID int64,
	batchID string,
	status domain.TrackingStatus,
	errorMessage *string,
	resultJSON *string,
) error {
	query := `
		UPDATE article_analysis_tracking
		SET status = $1, error_message = $2, result_json = $3, updated_at = NOW()
		WHERE article_id = $4 AND batch_id = $5
	`

	result, err := r.db.ExecContext(ctx, query, status, errorMessage, resultJSON, articleID, batchID)
	return execRequireRows(result, wrapExecErr("mark tracking outcome", err),
		fmt.Errorf("tracking row not found: article %d batch %s", articleID, batchID))
}

// ListByRunAndStatus retrieves a run's tracking rows in one status.
func (r *AnalysisRepository) ListByRunAndStatus(
	ctx context.Context,
	runID int64,
	status domain.TrackingStatus,
) ([]*domain.AnalysisTracking, error) {
	rows := []*domain.AnalysisTracking{}
	query := `
		SELECT ` + trackingColumns + `
		FROM article_analysis_tracking
		WHERE pipeline_run_id = $1 AND status = $2
		ORDER BY article_id
	`

	err := r.db.SelectContext(ctx, &rows, query, runID, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list tracking rows: %w", err)
	}

	return rows, nil
}

// ListStoreFailed retrieves every STORE_FAILED row still holding its result
// payload, across all runs.
func (r *AnalysisRepository) ListStoreFailed(ctx context.Context) ([]*domain.AnalysisTracking, error) {
	rows := []*domain.AnalysisTracking{}
	query := `
		SELECT ` + trackingColumns + `
		FROM article_analysis_tracking
		WHERE status = $1 AND result_json IS NOT NULL
		ORDER BY pipeline_run_id, article_id
	`

	err := r.db.SelectContext(ctx, &rows, query, domain.TrackingStatusStoreFailed)
	if err != nil {
		return nil, fmt.Errorf("failed to list store failed rows: %w", err)
	}

	return rows, nil
}

// DeleteFailed removes a run's FAILED tracking rows and returns the affected
// article ids, the input for a retry batch. STORE_FAILED rows are untouched.
func (r *AnalysisRepository) DeleteFailed(ctx context.Context, runID int64) ([]int64, error) {
	ids := []int64{}
	query := `
		DELETE FROM article_analysis_tracking
		WHERE pipeline_run_id = $1 AND status = $2
		RETURNING article_id
	`

	err := r.db.SelectContext(ctx, &ids, query, runID, domain.TrackingStatusFailed)
	if err != nil {
		return nil, fmt.Errorf("failed to delete failed tracking rows: %w", err)
	}

	return ids, nil
}

// InsertResult records one successfully analyzed article for a run.
func (r *AnalysisRepository) InsertResult(ctx context.Context, res *domain.AnalysisResult) error {
	query := `
		INSERT INTO article_analysis_results (pipeline_run_id, article_id, batch_id, status, model)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`

	err := r.db.QueryRowContext(ctx, query,
		res.PipelineRunID, res.ArticleID, res.BatchID, res.Status, res.Model,
	).Scan(&res.ID, &res.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert analysis result: %w", err)
	}

	return nil
}

// CountResultsByRun counts a run's analysis result records, the source of
// the run's analyzed_count.
func (r *AnalysisRepository) CountResultsByRun(ctx context.Context, runID int64) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM article_analysis_results WHERE pipeline_run_id = $1`

	err := r.db.GetContext(ctx, &count, query, runID)
	if err != nil {
		return 0, fmt.Errorf("failed to count analysis results: %w", err)
	}

	return count, nil
}
