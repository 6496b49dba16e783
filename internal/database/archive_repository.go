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

const archiveColumns = `id, article_id, source, archive_path, status, original_size,
	       compressed_size, archived_at, created_at`

// ArchiveRepository handles database operations for cold storage records.
type ArchiveRepository struct {
	db *sqlx.DB
}

// NewArchiveRepository creates a new archive repository.
func NewArchiveRepository(db *sqlx.DB) *ArchiveRepository {
	return &ArchiveRepository{db: db}
}

// ArchiveBatch finalizes one batch file in a single transaction: the archive
// records are upserted as ARCHIVED and the articles' raw HTML is nulled.
// A crash between file write and commit leaves an orphan batch file but
// never a record pointing at missing data.
func (r *ArchiveRepository) ArchiveBatch(ctx context.Context, records []*domain.ArchiveRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	insert := `
		INSERT INTO raw_html_archives (article_id, source, archive_path, status,
		                               original_size, compressed_size, archived_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (article_id) DO UPDATE
		SET archive_path = EXCLUDED.archive_path,
		    status = EXCLUDED.status,
		    original_size = EXCLUDED.original_size,
		    compressed_size = EXCLUDED.compressed_size,
		    archived_at = EXCLUDED.archived_at
	`

	ids := make([]int64, 0, len(records))
	for _, rec := range records {
		_, execErr := tx.ExecContext(ctx, insert,
			rec.ArticleID, rec.Source, rec.ArchivePath, domain.ArchiveStatusArchived,
			rec.OriginalSize, rec.CompressedSize)
		if execErr != nil {
			return fmt.Errorf("failed to insert archive record: %w", execErr)
		}
		ids = append(ids, rec.ArticleID)
	}

	clear := `UPDATE news_articles SET raw_html = NULL WHERE id = ANY($1)`
	if _, execErr := tx.ExecContext(ctx, clear, pq.Array(ids)); execErr != nil {
		return fmt.Errorf("failed to clear raw html: %w", execErr)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit archive batch: %w", err)
	}

	return nil
}

// RestoreBatch writes raw HTML back for one archive file's articles and flips
// their records to ACTIVE, all in one transaction.
func (r *ArchiveRepository) RestoreBatch(ctx context.Context, htmlByArticle map[int64]string) error {
	if len(htmlByArticle) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	restore := `UPDATE news_articles SET raw_html = $1 WHERE id = $2`
	flip := `UPDATE raw_html_archives SET status = $1 WHERE article_id = $2`

	for id, html := range htmlByArticle {
		if _, execErr := tx.ExecContext(ctx, restore, html, id); execErr != nil {
			return fmt.Errorf("failed to restore raw html: %w", execErr)
		}
		if _, execErr := tx.ExecContext(ctx, flip, domain.ArchiveStatusActive, id); execErr != nil {
			return fmt.Errorf("failed to flip archive record: %w", execErr)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit restore batch: %w", err)
	}

	return nil
}

// GetByArticleID retrieves the archive record for one article.
func (r *ArchiveRepository) GetByArticleID(ctx context.Context, articleID int64) (*domain.ArchiveRecord, error) {
	var rec domain.ArchiveRecord
	query := `
		SELECT ` + archiveColumns + `
		FROM raw_html_archives
		WHERE article_id = $1
	`

	err := r.db.GetContext(ctx, &rec, query, articleID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("archive record not found: %d", articleID)
		}
		return nil, fmt.Errorf("failed to get archive record: %w", err)
	}

	return &rec, nil
}

// ListByArticleIDs retrieves archive records for the given articles.
func (r *ArchiveRepository) ListByArticleIDs(ctx context.Context, ids []int64) ([]*domain.ArchiveRecord, error) {
	records := []*domain.ArchiveRecord{}
	if len(ids) == 0 {
		return records, nil
	}

	query := `
		SELECT ` + archiveColumns + `
		FROM raw_html_archives
		WHERE article_id = ANY($1)
	`

	err := r.db.SelectContext(ctx, &records, query, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to list archive records: %w", err)
	}

	return records, nil
}

// ListArchivedBySource pages through a source's ARCHIVED records, oldest first.
func (r *ArchiveRepository) ListArchivedBySource(
	ctx context.Context,
	source string,
	limit, offset int,
) ([]*domain.ArchiveRecord, error) {
	records := []*domain.ArchiveRecord{}
	query := `
		SELECT ` + archiveColumns + `
		FROM raw_html_archives
		WHERE source = $1 AND status = $2
		ORDER BY article_id
		LIMIT $3 OFFSET $4
	`

	err := r.db.SelectContext(ctx, &records, query, source, domain.ArchiveStatusArchived, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list archived records: %w", err)
	}

	return records, nil
}

// CountArchivedBySource counts a source's records still in cold storage.
func (r *ArchiveRepository) CountArchivedBySource(ctx context.Context, source string) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM raw_html_archives WHERE source = $1 AND status = $2`

	err := r.db.GetContext(ctx, &count, query, source, domain.ArchiveStatusArchived)
	if err != nil {
		return 0, fmt.Errorf("failed to count archived records: %w", err)
	}

	return count, nil
}

// SourceStats aggregates archive volume for one source.
type SourceStats struct {
	Source         string     `db:"source"          json:"source"`
	ArchivedCount  int        `db:"archived_count"  json:"archived_count"`
	RestoredCount  int        `db:"restored_count"  json:"restored_count"`
	OriginalBytes  int64      `db:"original_bytes"  json:"original_bytes"`
	CompressedSize int64      `db:"compressed_size" json:"compressed_size"`
	LastArchivedAt *time.Time `db:"last_archived_at" json:"last_archived_at,omitempty"`
}

// StatsBySource aggregates archive counters and sizes for one source.
func (r *ArchiveRepository) StatsBySource(ctx context.Context, source string) (*SourceStats, error) {
	stats := &SourceStats{Source: source}
	query := `
		SELECT
			COUNT(*) FILTER (WHERE status = 'ARCHIVED') AS archived_count,
			COUNT(*) FILTER (WHERE status = 'ACTIVE') AS restored_count,
			COALESCE(SUM(original_size), 0) AS original_bytes,
			COALESCE(SUM(compressed_size), 0) AS compressed_size,
			MAX(archived_at) AS last_archived_at
		FROM raw_html_archives
		WHERE source = $1
	`

	err := r.db.QueryRowContext(ctx, query, source).Scan(
		&stats.ArchivedCount, &stats.RestoredCount,
		&stats.OriginalBytes, &stats.CompressedSize, &stats.LastArchivedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get archive stats: %w", err)
	}

	return stats, nil
}
