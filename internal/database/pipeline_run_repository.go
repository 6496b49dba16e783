package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/jonesrussell/newsflow/internal/domain"
)

const pipelineRunColumns = `id, name, status, current_stage, date_from, date_to,
	       total_articles, rule_filtered_count, rule_passed_count, force_included_count,
	       analyzed_count, batch_id, error_log, started_at, completed_at, created_at, updated_at`

// PipelineRunRepository handles database operations for pipeline runs.
type PipelineRunRepository struct {
	db *sqlx.DB
}

// NewPipelineRunRepository creates a new pipeline run repository.
func NewPipelineRunRepository(db *sqlx.DB) *PipelineRunRepository {
	return &PipelineRunRepository{db: db}
}

// Create inserts a new pipeline run.
func (r *PipelineRunRepository) Create(ctx context.Context, run *domain.PipelineRun) error {
	query := `
		INSERT INTO pipeline_runs (name, status, date_from, date_to)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRowContext(ctx, query,
		run.Name, run.Status, run.DateFrom, run.DateTo,
	).Scan(&run.ID, &run.CreatedAt, &run.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create pipeline run: %w", err)
	}

	return nil
}

// GetByID retrieves a pipeline run.
func (r *PipelineRunRepository) GetByID(ctx context.Context, id int64) (*domain.PipelineRun, error) {
	var run domain.PipelineRun
	query := `
		SELECT ` + pipelineRunColumns + `
		FROM pipeline_runs
		WHERE id = $1
	`

	err := r.db.GetContext(ctx, &run, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("pipeline run not found: %d", id)
		}
		return nil, fmt.Errorf("failed to get pipeline run: %w", err)
	}

	return &run, nil
}

// ListRecent retrieves the newest pipeline runs.
func (r *PipelineRunRepository) ListRecent(ctx context.Context, limit int) ([]*domain.PipelineRun, error) {
	runs := []*domain.PipelineRun{}
	query := `
		SELECT ` + pipelineRunColumns + `
		FROM pipeline_runs
		ORDER BY created_at DESC
		LIMIT $1
	`

	err := r.db.SelectContext(ctx, &runs, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pipeline runs: %w", err)
	}

	return runs, nil
}

// UpdateStatus moves a run to a new status. started_at is stamped on the
// first transition to RUNNING, completed_at on reaching a terminal status.
func (r *PipelineRunRepository) UpdateStatus(ctx context.Context, id int64, status domain.PipelineStatus) error {
	query := `
		UPDATE pipeline_runs
		SET status = $1,
		    started_at = CASE WHEN $1 = 'RUNNING' AND started_at IS NULL THEN NOW() ELSE started_at END,
		    completed_at = CASE WHEN $1 IN ('COMPLETED', 'FAILED') THEN NOW() ELSE completed_at END,
		    updated_at = NOW()
		WHERE id = $2
	`

	result, err := r.db.ExecContext(ctx, query, status, id)
	return execRequireRows(result, wrapExecErr("update run status", err),
		fmt.Errorf("pipeline run not found: %d", id))
}

// UpdateStage records which stage is currently executing. A nil stage clears it.
func (r *PipelineRunRepository) UpdateStage(ctx context.Context, id int64, stage *domain.PipelineStage) error {
	query := `
		UPDATE pipeline_runs
		SET current_stage = $1, updated_at = NOW()
		WHERE id = $2
	`

	result, err := r.db.ExecContext(ctx, query, stage, id)
	return execRequireRows(result, wrapExecErr("update run stage", err),
		fmt.Errorf("pipeline run not found: %d", id))
}

// SetTotalArticles records the FETCH stage outcome.
func (r *PipelineRunRepository) SetTotalArticles(ctx context.Context, id int64, total int) error {
	query := `
		UPDATE pipeline_runs
		SET total_articles = $1, updated_at = NOW()
		WHERE id = $2
	`

	result, err := r.db.ExecContext(ctx, query, total, id)
	return execRequireRows(result, wrapExecErr("set total articles", err),
		fmt.Errorf("pipeline run not found: %d", id))
}

// UpdateRuleStats writes the recomputed RULE_FILTER counters.
func (r *PipelineRunRepository) UpdateRuleStats(ctx context.Context, id int64, filtered, passed, forceIncluded int) error {
	query := `
		UPDATE pipeline_runs
		SET rule_filtered_count = $1, rule_passed_count = $2, force_included_count = $3,
		    updated_at = NOW()
		WHERE id = $4
	`

	result, err := r.db.ExecContext(ctx, query, filtered, passed, forceIncluded, id)
	return execRequireRows(result, wrapExecErr("update rule stats", err),
		fmt.Errorf("pipeline run not found: %d", id))
}

// SetAnalyzedCount writes the recomputed LLM_ANALYSIS counter.
func (r *PipelineRunRepository) SetAnalyzedCount(ctx context.Context, id int64, analyzed int) error {
	query := `
		UPDATE pipeline_runs
		SET analyzed_count = $1, updated_at = NOW()
		WHERE id = $2
	`

	result, err := r.db.ExecContext(ctx, query, analyzed, id)
	return execRequireRows(result, wrapExecErr("set analyzed count", err),
		fmt.Errorf("pipeline run not found: %d", id))
}

// SetBatchID persists the submitted LLM batch id on the run. Written before
// any tracking rows so a crash during submission can still resume the batch.
func (r *PipelineRunRepository) SetBatchID(ctx context.Context, id int64, batchID string) error {
	query := `
		UPDATE pipeline_runs
		SET batch_id = $1, updated_at = NOW()
		WHERE id = $2
	`

	result, err := r.db.ExecContext(ctx, query, batchID, id)
	return execRequireRows(result, wrapExecErr("set batch id", err),
		fmt.Errorf("pipeline run not found: %d", id))
}

// SetErrorLog records a truncated stage error on the run.
func (r *PipelineRunRepository) SetErrorLog(ctx context.Context, id int64, errorLog *string) error {
	query := `
		UPDATE pipeline_runs
		SET error_log = $1, updated_at = NOW()
		WHERE id = $2
	`

	result, err := r.db.ExecContext(ctx, query, errorLog, id)
	return execRequireRows(result, wrapExecErr("set error log", err),
		fmt.Errorf("pipeline run not found: %d", id))
}

// ResetRunParams controls which artifacts ResetRun removes.
type ResetRunParams struct {
	RunID        int64
	DeleteStages []domain.PipelineStage // filter results to delete
	ResetLLM     bool                   // also delete analysis artifacts and clear batch_id
	ZeroTotal    bool
	ZeroRule     bool
	ZeroAnalyzed bool
}

// ResetRun rewinds a run so it can re-execute from an earlier stage. Stage
// artifacts are deleted and counters zeroed in one transaction; the run
// returns to PENDING with no current stage.
func (r *PipelineRunRepository) ResetRun(ctx context.Context, params ResetRunParams) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	if len(params.DeleteStages) > 0 {
		stages := make([]string, len(params.DeleteStages))
		for i, s := range params.DeleteStages {
			stages[i] = string(s)
		}
		query := `DELETE FROM article_filter_results WHERE pipeline_run_id = $1 AND stage = ANY($2)`
		if _, execErr := tx.ExecContext(ctx, query, params.RunID, pq.Array(stages)); execErr != nil {
			return fmt.Errorf("failed to delete filter results: %w", execErr)
		}
	}

	if params.ResetLLM {
		if _, execErr := tx.ExecContext(ctx,
			`DELETE FROM article_analysis_results WHERE pipeline_run_id = $1`, params.RunID); execErr != nil {
			return fmt.Errorf("failed to delete analysis results: %w", execErr)
		}
		if _, execErr := tx.ExecContext(ctx,
			`DELETE FROM article_analysis_tracking WHERE pipeline_run_id = $1`, params.RunID); execErr != nil {
			return fmt.Errorf("failed to delete analysis tracking: %w", execErr)
		}
	}

	query := `
		UPDATE pipeline_runs
		SET status = $1,
		    current_stage = NULL,
		    completed_at = NULL,
		    error_log = NULL,
		    total_articles = CASE WHEN $2 THEN 0 ELSE total_articles END,
		    rule_filtered_count = CASE WHEN $3 THEN 0 ELSE rule_filtered_count END,
		    rule_passed_count = CASE WHEN $3 THEN 0 ELSE rule_passed_count END,
		    analyzed_count = CASE WHEN $4 THEN 0 ELSE analyzed_count END,
		    batch_id = CASE WHEN $4 THEN NULL ELSE batch_id END,
		    updated_at = NOW()
		WHERE id = $5
	`

	result, execErr := tx.ExecContext(ctx, query,
		domain.PipelineStatusPending, params.ZeroTotal, params.ZeroRule, params.ZeroAnalyzed, params.RunID)
	if err := execRequireRows(result, wrapExecErr("reset pipeline run", execErr),
		fmt.Errorf("pipeline run not found: %d", params.RunID)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run reset: %w", err)
	}

	return nil
}
