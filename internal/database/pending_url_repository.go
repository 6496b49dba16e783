package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/jonesrussell/newsflow/internal/domain"
)

const pendingURLColumns = `id, url, url_hash, source, status, retry_count, max_retries,
	       error_message, discovered_at, processed_at, created_at, updated_at`

// PendingURLRepository handles database operations for the URL work queue.
type PendingURLRepository struct {
	db *sqlx.DB
}

// NewPendingURLRepository creates a new pending URL repository.
func NewPendingURLRepository(db *sqlx.DB) *PendingURLRepository {
	return &PendingURLRepository{db: db}
}

// InsertBatch inserts PENDING rows in a single transaction and returns how
// many were actually inserted. Rows whose URL already exists are skipped.
func (r *PendingURLRepository) InsertBatch(ctx context.Context, urls []*domain.PendingURL) (int, error) {
	if len(urls) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	query := `
		INSERT INTO pending_urls (url, url_hash, source, status, max_retries, discovered_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (url) DO NOTHING
	`

	inserted := 0
	for _, u := range urls {
		discovered := u.DiscoveredAt
		if discovered.IsZero() {
			discovered = time.Now().UTC()
		}
		result, execErr := tx.ExecContext(ctx, query,
			u.URL, u.URLHash, u.Source, domain.URLStatusPending, u.MaxRetries, discovered)
		if execErr != nil {
			return 0, fmt.Errorf("failed to insert pending url: %w", execErr)
		}
		n, raErr := result.RowsAffected()
		if raErr != nil {
			return 0, fmt.Errorf("failed to count inserted url: %w", raErr)
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit pending urls: %w", err)
	}

	return inserted, nil
}

// ExistingHashes returns which of the given url hashes already exist in the queue.
func (r *PendingURLRepository) ExistingHashes(ctx context.Context, hashes []string) (map[string]struct{}, error) {
	existing := make(map[string]struct{})
	if len(hashes) == 0 {
		return existing, nil
	}

	var found []string
	query := `SELECT url_hash FROM pending_urls WHERE url_hash = ANY($1)`

	err := r.db.SelectContext(ctx, &found, query, pq.Array(hashes))
	if err != nil {
		return nil, fmt.Errorf("failed to check existing queue hashes: %w", err)
	}

	for _, h := range found {
		existing[h] = struct{}{}
	}
	return existing, nil
}

// Lease atomically claims up to limit PENDING URLs for a source, oldest
// discovery first, flipping them to PROCESSING. limit <= 0 means no limit.
// SKIP LOCKED keeps concurrent lessees from ever receiving the same row.
func (r *PendingURLRepository) Lease(ctx context.Context, source string, limit int) ([]*domain.PendingURL, error) {
	var leased []*domain.PendingURL

	limitClause := ""
	args := []any{domain.URLStatusProcessing, source, domain.URLStatusPending}
	if limit > 0 {
		limitClause = "LIMIT $4"
		args = append(args, limit)
	}

	query := `
		UPDATE pending_urls
		SET status = $1, updated_at = NOW()
		WHERE id IN (
			SELECT id FROM pending_urls
			WHERE source = $2 AND status = $3
			ORDER BY discovered_at ASC
			` + limitClause + `
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + pendingURLColumns + `
	`

	err := r.db.SelectContext(ctx, &leased, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to lease pending urls: %w", err)
	}

	if leased == nil {
		leased = []*domain.PendingURL{}
	}

	return leased, nil
}

// MarkCompleted finalizes a leased URL after its article was stored.
func (r *PendingURLRepository) MarkCompleted(ctx context.Context, id int64) error {
	query := `
		UPDATE pending_urls
		SET status = $1, processed_at = NOW(), updated_at = NOW()
		WHERE id = $2
	`

	result, err := r.db.ExecContext(ctx, query, domain.URLStatusCompleted, id)
	return execRequireRows(result, wrapExecErr("mark url completed", err),
		fmt.Errorf("pending url not found: %d", id))
}

// MarkFailed records a failed attempt. The retry counter is bumped and the
// row either returns to PENDING or, once retries are exhausted, settles in
// FAILED with processed_at stamped. Both arms run in one statement so a
// concurrent reset can never observe the intermediate state.
func (r *PendingURLRepository) MarkFailed(ctx context.Context, id int64, message string) error {
	query := `
		UPDATE pending_urls
		SET retry_count = retry_count + 1,
		    error_message = $1,
		    status = CASE WHEN retry_count + 1 >= max_retries THEN $2::text ELSE $3::text END,
		    processed_at = CASE WHEN retry_count + 1 >= max_retries THEN NOW() ELSE processed_at END,
		    updated_at = NOW()
		WHERE id = $4
	`

	result, err := r.db.ExecContext(ctx, query,
		message, domain.URLStatusFailed, domain.URLStatusPending, id)
	return execRequireRows(result, wrapExecErr("mark url failed", err),
		fmt.Errorf("pending url not found: %d", id))
}

// GetByID retrieves one queue row.
func (r *PendingURLRepository) GetByID(ctx context.Context, id int64) (*domain.PendingURL, error) {
	var u domain.PendingURL
	query := `
		SELECT ` + pendingURLColumns + `
		FROM pending_urls
		WHERE id = $1
	`

	err := r.db.GetContext(ctx, &u, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("pending url not found: %d", id)
		}
		return nil, fmt.Errorf("failed to get pending url: %w", err)
	}

	return &u, nil
}

// ResetStale returns PROCESSING rows whose lease went quiet before the
// cutoff back to PENDING. Retry counters are left untouched.
func (r *PendingURLRepository) ResetStale(ctx context.Context, cutoff time.Time) (int, error) {
	query := `
		UPDATE pending_urls
		SET status = $1, updated_at = NOW()
		WHERE status = $2 AND updated_at < $3
	`

	result, err := r.db.ExecContext(ctx, query,
		domain.URLStatusPending, domain.URLStatusProcessing, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to reset stale urls: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count reset urls: %w", err)
	}

	return int(n), nil
}

// ForceResetProcessing unconditionally returns PROCESSING rows to PENDING.
// An empty source resets every source. Used at startup when no worker can
// legitimately hold a lease.
func (r *PendingURLRepository) ForceResetProcessing(ctx context.Context, source string) (int, error) {
	var (
		result sql.Result
		err    error
	)

	if source == "" {
		query := `
			UPDATE pending_urls
			SET status = $1, updated_at = NOW()
			WHERE status = $2
		`
		result, err = r.db.ExecContext(ctx, query, domain.URLStatusPending, domain.URLStatusProcessing)
	} else {
		query := `
			UPDATE pending_urls
			SET status = $1, updated_at = NOW()
			WHERE status = $2 AND source = $3
		`
		result, err = r.db.ExecContext(ctx, query, domain.URLStatusPending, domain.URLStatusProcessing, source)
	}

	if err != nil {
		return 0, fmt.Errorf("failed to force reset processing urls: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count force reset urls: %w", err)
	}

	return int(n), nil
}

// Stats returns queue depth per status. An empty source aggregates all sources.
func (r *PendingURLRepository) Stats(ctx context.Context, source string) (*domain.QueueStats, error) {
	stats := &domain.QueueStats{Source: source}

	query := `
		SELECT
			COUNT(*) FILTER (WHERE status = 'PENDING') AS pending,
			COUNT(*) FILTER (WHERE status = 'PROCESSING') AS processing,
			COUNT(*) FILTER (WHERE status = 'COMPLETED') AS completed,
			COUNT(*) FILTER (WHERE status = 'FAILED') AS failed,
			COUNT(*) AS total
		FROM pending_urls
	`

	var row *sql.Row
	if source == "" {
		row = r.db.QueryRowContext(ctx, query)
	} else {
		row = r.db.QueryRowContext(ctx, query+` WHERE source = $1`, source)
	}

	err := row.Scan(&stats.Pending, &stats.Processing, &stats.Completed, &stats.Failed, &stats.Total)
	if err != nil {
		return nil, fmt.Errorf("failed to get queue stats: %w", err)
	}

	return stats, nil
}
