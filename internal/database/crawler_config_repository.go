package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/newsflow/internal/domain"
)

const crawlerConfigColumns = `id, name, display_name, crawler_type, source, is_active,
	       interval_minutes, timeout_seconds, last_run_status, last_run_time, next_run_time,
	       error_log, last_run_items_count, total_items_count, created_at, updated_at`

// CrawlerConfigRepository handles database operations for crawler configurations.
type CrawlerConfigRepository struct {
	db *sqlx.DB
}

// NewCrawlerConfigRepository creates a new crawler config repository.
func NewCrawlerConfigRepository(db *sqlx.DB) *CrawlerConfigRepository {
	return &CrawlerConfigRepository{db: db}
}

// Create inserts a new crawler configuration.
func (r *CrawlerConfigRepository) Create(ctx context.Context, cfg *domain.CrawlerConfig) error {
	query := `
		INSERT INTO crawler_configs (name, display_name, crawler_type, source, is_active,
		                             interval_minutes, timeout_seconds, last_run_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRowContext(
		ctx,
		query,
		cfg.Name,
		cfg.DisplayName,
		cfg.Kind,
		cfg.Source,
		cfg.IsActive,
		cfg.IntervalMinutes,
		cfg.TimeoutSeconds,
		cfg.LastRunStatus,
	).Scan(&cfg.ID, &cfg.CreatedAt, &cfg.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create crawler config: %w", err)
	}

	return nil
}

// GetByName retrieves a crawler configuration by its unique name.
func (r *CrawlerConfigRepository) GetByName(ctx context.Context, name string) (*domain.CrawlerConfig, error) {
	var cfg domain.CrawlerConfig
	query := `
		SELECT ` + crawlerConfigColumns + `
		FROM crawler_configs
		WHERE name = $1
	`

	err := r.db.GetContext(ctx, &cfg, query, name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("crawler config not found: %s", name)
		}
		return nil, fmt.Errorf("failed to get crawler config: %w", err)
	}

	return &cfg, nil
}

// List retrieves all crawler configurations ordered by name.
func (r *CrawlerConfigRepository) List(ctx context.Context) ([]*domain.CrawlerConfig, error) {
	var configs []*domain.CrawlerConfig
	query := `
		SELECT ` + crawlerConfigColumns + `
		FROM crawler_configs
		ORDER BY name
	`

	err := r.db.SelectContext(ctx, &configs, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list crawler configs: %w", err)
	}

	if configs == nil {
		configs = []*domain.CrawlerConfig{}
	}

	return configs, nil
}

// ListActive retrieves all active crawler configurations ordered by name.
func (r *CrawlerConfigRepository) ListActive(ctx context.Context) ([]*domain.CrawlerConfig, error) {
	var configs []*domain.CrawlerConfig
	query := `
		SELECT ` + crawlerConfigColumns + `
		FROM crawler_configs
		WHERE is_active = TRUE
		ORDER BY name
	`

	err := r.db.SelectContext(ctx, &configs, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list active crawler configs: %w", err)
	}

	if configs == nil {
		configs = []*domain.CrawlerConfig{}
	}

	return configs, nil
}

// UpdateRegistration refreshes the code-derived fields of an existing row.
// Operator-controlled fields (is_active, interval, timeout) and statistics
// are never touched here.
func (r *CrawlerConfigRepository) UpdateRegistration(
	ctx context.Context,
	name, displayName, source string,
	kind domain.CrawlerKind,
) error {
	query := `
		UPDATE crawler_configs
		SET display_name = $1, source = $2, crawler_type = $3, updated_at = NOW()
		WHERE name = $4
	`

	result, err := r.db.ExecContext(ctx, query, displayName, source, kind, name)
	return execRequireRows(result, wrapExecErr("update crawler registration", err),
		fmt.Errorf("crawler config not found: %s", name))
}

// SetActive enables or disables a crawler's schedule.
func (r *CrawlerConfigRepository) SetActive(ctx context.Context, name string, active bool) error {
	query := `
		UPDATE crawler_configs
		SET is_active = $1, updated_at = NOW()
		WHERE name = $2
	`

	result, err := r.db.ExecContext(ctx, query, active, name)
	return execRequireRows(result, wrapExecErr("set crawler active", err),
		fmt.Errorf("crawler config not found: %s", name))
}

// SetInterval updates a crawler's schedule interval.
func (r *CrawlerConfigRepository) SetInterval(ctx context.Context, name string, minutes int) error {
	query := `
		UPDATE crawler_configs
		SET interval_minutes = $1, updated_at = NOW()
		WHERE name = $2
	`

	result, err := r.db.ExecContext(ctx, query, minutes, name)
	return execRequireRows(result, wrapExecErr("set crawler interval", err),
		fmt.Errorf("crawler config not found: %s", name))
}

// MarkRunning flips a crawler to RUNNING. Committed before the tick body so
// the state is visible to observers while the crawl is in flight.
func (r *CrawlerConfigRepository) MarkRunning(ctx context.Context, name string) error {
	query := `
		UPDATE crawler_configs
		SET last_run_status = $1, updated_at = NOW()
		WHERE name = $2
	`

	result, err := r.db.ExecContext(ctx, query, domain.RunStatusRunning, name)
	return execRequireRows(result, wrapExecErr("mark crawler running", err),
		fmt.Errorf("crawler config not found: %s", name))
}

// RecordRunResult writes the post-execution outcome of one tick.
// items is added to the lifetime total and recorded as the last run count.
func (r *CrawlerConfigRepository) RecordRunResult(
	ctx context.Context,
	name string,
	status domain.RunStatus,
	errorLog *string,
	items int,
	nextRun *time.Time,
) error {
	query := `
		UPDATE crawler_configs
		SET last_run_status = $1,
		    last_run_time = NOW(),
		    error_log = $2,
		    last_run_items_count = $3,
		    total_items_count = total_items_count + $3,
		    next_run_time = $4,
		    updated_at = NOW()
		WHERE name = $5
	`

	result, err := r.db.ExecContext(ctx, query, status, errorLog, items, nextRun, name)
	return execRequireRows(result, wrapExecErr("record run result", err),
		fmt.Errorf("crawler config not found: %s", name))
}

// UpdateNextRunTime records the scheduler's next planned firing.
func (r *CrawlerConfigRepository) UpdateNextRunTime(ctx context.Context, name string, next *time.Time) error {
	query := `
		UPDATE crawler_configs
		SET next_run_time = $1, updated_at = NOW()
		WHERE name = $2
	`

	result, err := r.db.ExecContext(ctx, query, next, name)
	return execRequireRows(result, wrapExecErr("update next run time", err),
		fmt.Errorf("crawler config not found: %s", name))
}

// ResetRunningToIdle flips every RUNNING crawler back to IDLE.
// Called once at startup to clear rows orphaned by a crash.
func (r *CrawlerConfigRepository) ResetRunningToIdle(ctx context.Context) (int, error) {
	query := `
		UPDATE crawler_configs
		SET last_run_status = $1, updated_at = NOW()
		WHERE last_run_status = $2
	`

	result, err := r.db.ExecContext(ctx, query, domain.RunStatusIdle, domain.RunStatusRunning)
	if err != nil {
		return 0, fmt.Errorf("failed to reset running crawlers: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count reset crawlers: %w", err)
	}

	return int(n), nil
}
