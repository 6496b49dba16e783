package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/newsflow/internal/domain"
)

const reparseColumns = `id, source, status, total_count, processed_count, failed_count,
	       error_log, started_at, completed_at, created_at`

// ReparseJobRepository handles database operations for reparse jobs.
type ReparseJobRepository struct {
	db *sqlx.DB
}

// NewReparseJobRepository creates a new reparse job repository.
func NewReparseJobRepository(db *sqlx.DB) *ReparseJobRepository {
	return &ReparseJobRepository{db: db}
}

// Create inserts a new reparse job.
func (r *ReparseJobRepository) Create(ctx context.Context, job *domain.ReparseJob) error {
	query := `
		INSERT INTO reparse_jobs (id, source, status, total_count)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`

	err := r.db.QueryRowContext(ctx, query,
		job.ID, job.Source, job.Status, job.TotalCount).Scan(&job.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create reparse job: %w", err)
	}

	return nil
}

// GetByID retrieves a reparse job.
func (r *ReparseJobRepository) GetByID(ctx context.Context, id string) (*domain.ReparseJob, error) {
	var job domain.ReparseJob
	query := `
		SELECT ` + reparseColumns + `
		FROM reparse_jobs
		WHERE id = $1
	`

	err := r.db.GetContext(ctx, &job, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("reparse job not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get reparse job: %w", err)
	}

	return &job, nil
}

// List retrieves recent reparse jobs, newest first.
func (r *ReparseJobRepository) List(ctx context.Context, limit int) ([]*domain.ReparseJob, error) {
	jobs := []*domain.ReparseJob{}
	query := `
		SELECT ` + reparseColumns + `
		FROM reparse_jobs
		ORDER BY created_at DESC
		LIMIT $1
	`

	err := r.db.SelectContext(ctx, &jobs, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list reparse jobs: %w", err)
	}

	return jobs, nil
}

// MarkRunning flips a job to RUNNING and stamps started_at.
func (r *ReparseJobRepository) MarkRunning(ctx context.Context, id string) error {
	query := `
		UPDATE reparse_jobs
		SET status = $1, started_at = NOW()
		WHERE id = $2
	`

	result, err := r.db.ExecContext(ctx, query, domain.ReparseStatusRunning, id)
	return execRequireRows(result, wrapExecErr("mark reparse running", err),
		fmt.Errorf("reparse job not found: %s", id))
}

// UpdateProgress persists the worker's running counters.
func (r *ReparseJobRepository) UpdateProgress(ctx context.Context, id string, processed, failed int) error {
	query := `
		UPDATE reparse_jobs
		SET processed_count = $1, failed_count = $2
		WHERE id = $3
	`

	result, err := r.db.ExecContext(ctx, query, processed, failed, id)
	return execRequireRows(result, wrapExecErr("update reparse progress", err),
		fmt.Errorf("reparse job not found: %s", id))
}

// Finish records the terminal state of a job along with final counters.
func (r *ReparseJobRepository) Finish(
	ctx context.Context,
	id string,
	status domain.ReparseStatus,
	processed, failed int,
	errorLog *string,
) error {
	query := `
		UPDATE reparse_jobs
		SET status = $1, processed_count = $2, failed_count = $3, error_log = $4,
		    completed_at = NOW()
		WHERE id = $5
	`

	result, err := r.db.ExecContext(ctx, query, status, processed, failed, errorLog, id)
	return execRequireRows(result, wrapExecErr("finish reparse job", err),
		fmt.Errorf("reparse job not found: %s", id))
}
