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

const articleColumns = `id, url, url_hash, title, content, summary, author, source,
	       crawler_name, category, sub_category, tags, published_at, crawled_at, raw_html, images`

// articleListColumns excludes raw_html, which can be megabytes per row.
const articleListColumns = `id, url, url_hash, title, content, summary, author, source,
	       crawler_name, category, sub_category, tags, published_at, crawled_at, images`

// ArchiveCandidate is the narrow projection used when batching articles
// into cold storage.
type ArchiveCandidate struct {
	ID      int64  `db:"id"`
	URLHash string `db:"url_hash"`
	RawHTML string `db:"raw_html"`
}

// ArticleRepository handles database operations for news articles.
type ArticleRepository struct {
	db *sqlx.DB
}

// NewArticleRepository creates a new article repository.
func NewArticleRepository(db *sqlx.DB) *ArticleRepository {
	return &ArticleRepository{db: db}
}

// Create inserts a new article and populates its generated fields.
func (r *ArticleRepository) Create(ctx context.Context, a *domain.Article) error {
	query := `
		INSERT INTO news_articles (url, url_hash, title, content, summary, author, source,
		                           crawler_name, category, sub_category, tags, published_at,
		                           raw_html, images)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id, crawled_at
	`

	err := r.db.QueryRowContext(
		ctx,
		query,
		a.URL,
		a.URLHash,
		a.Title,
		a.Content,
		a.Summary,
		a.Author,
		a.Source,
		a.CrawlerName,
		a.Category,
		a.SubCategory,
		a.Tags,
		a.PublishedAt,
		a.RawHTML,
		a.Images,
	).Scan(&a.ID, &a.CrawledAt)

	if err != nil {
		return fmt.Errorf("failed to create article: %w", err)
	}

	return nil
}

// GetByID retrieves an article by its ID, raw HTML included.
func (r *ArticleRepository) GetByID(ctx context.Context, id int64) (*domain.Article, error) {
	var a domain.Article
	query := `
		SELECT ` + articleColumns + `
		FROM news_articles
		WHERE id = $1
	`

	err := r.db.GetContext(ctx, &a, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("article not found: %d", id)
		}
		return nil, fmt.Errorf("failed to get article: %w", err)
	}

	return &a, nil
}

// GetByURLHash retrieves an article by its URL hash.
func (r *ArticleRepository) GetByURLHash(ctx context.Context, hash string) (*domain.Article, error) {
	var a domain.Article
	query := `
		SELECT ` + articleColumns + `
		FROM news_articles
		WHERE url_hash = $1
	`

	err := r.db.GetContext(ctx, &a, query, hash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("article not found: %s", hash)
		}
		return nil, fmt.Errorf("failed to get article by hash: %w", err)
	}

	return &a, nil
}

// GetByIDs retrieves articles by ID, raw HTML excluded.
func (r *ArticleRepository) GetByIDs(ctx context.Context, ids []int64) ([]*domain.Article, error) {
	articles := []*domain.Article{}
	if len(ids) == 0 {
		return articles, nil
	}

	query := `
		SELECT ` + articleListColumns + `
		FROM news_articles
		WHERE id = ANY($1)
		ORDER BY id
	`

	err := r.db.SelectContext(ctx, &articles, query, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to get articles by ids: %w", err)
	}

	return articles, nil
}

// ExistingHashes returns which of the given url hashes already have articles.
func (r *ArticleRepository) ExistingHashes(ctx context.Context, hashes []string) (map[string]struct{}, error) {
	existing := make(map[string]struct{})
	if len(hashes) == 0 {
		return existing, nil
	}

	var found []string
	query := `SELECT url_hash FROM news_articles WHERE url_hash = ANY($1)`

	err := r.db.SelectContext(ctx, &found, query, pq.Array(hashes))
	if err != nil {
		return nil, fmt.Errorf("failed to check existing article hashes: %w", err)
	}

	for _, h := range found {
		existing[h] = struct{}{}
	}
	return existing, nil
}

// CountBySource counts stored articles for one source.
func (r *ArticleRepository) CountBySource(ctx context.Context, source string) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM news_articles WHERE source = $1`

	err := r.db.GetContext(ctx, &count, query, source)
	if err != nil {
		return 0, fmt.Errorf("failed to count articles: %w", err)
	}

	return count, nil
}

// CountInWindow counts articles published inside the half-open window
// [from, to). Nil bounds leave that side open.
func (r *ArticleRepository) CountInWindow(ctx context.Context, from, to *time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM news_articles WHERE published_at IS NOT NULL`
	args := []any{}
	query, args = appendWindow(query, args, from, to)

	var count int
	err := r.db.GetContext(ctx, &count, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to count articles in window: %w", err)
	}

	return count, nil
}

// ListInWindow pages through articles published inside [from, to),
// newest first. Raw HTML is excluded.
func (r *ArticleRepository) ListInWindow(
	ctx context.Context,
	from, to *time.Time,
	limit, offset int,
) ([]*domain.Article, error) {
	query := `
		SELECT ` + articleListColumns + `
		FROM news_articles WHERE published_at IS NOT NULL`
	args := []any{}
	query, args = appendWindow(query, args, from, to)
	query += fmt.Sprintf(`
		ORDER BY published_at DESC
		LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	articles := []*domain.Article{}
	err := r.db.SelectContext(ctx, &articles, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list articles in window: %w", err)
	}

	return articles, nil
}

// appendWindow adds published_at bounds to a WHERE clause already guarded
// by published_at IS NOT NULL.
func appendWindow(query string, args []any, from, to *time.Time) (string, []any) {
	if from != nil {
		args = append(args, *from)
		query += fmt.Sprintf(" AND published_at >= $%d", len(args))
	}
	if to != nil {
		args = append(args, *to)
		query += fmt.Sprintf(" AND published_at < $%d", len(args))
	}
	return query, args
}

// UpdateParsedFields overwrites the fields a parser produces. Identity,
// provenance and raw HTML are never touched.
func (r *ArticleRepository) UpdateParsedFields(ctx context.Context, a *domain.Article) error {
	query := `
		UPDATE news_articles
		SET title = $1, content = $2, summary = $3, author = $4, category = $5,
		    sub_category = $6, tags = $7, published_at = $8, images = $9
		WHERE id = $10
	`

	result, err := r.db.ExecContext(ctx, query,
		a.Title, a.Content, a.Summary, a.Author, a.Category,
		a.SubCategory, a.Tags, a.PublishedAt, a.Images, a.ID)
	return execRequireRows(result, wrapExecErr("update parsed fields", err),
		fmt.Errorf("article not found: %d", a.ID))
}

// CountWithRawHTML counts a source's articles that still hold raw HTML in the
// database.
func (r *ArticleRepository) CountWithRawHTML(ctx context.Context, source string) (int, error) {
	var count int
	query := `
		SELECT COUNT(*) FROM news_articles
		WHERE source = $1 AND raw_html IS NOT NULL AND raw_html <> ''
	`

	err := r.db.GetContext(ctx, &count, query, source)
	if err != nil {
		return 0, fmt.Errorf("failed to count raw html articles: %w", err)
	}

	return count, nil
}

// ListWithRawHTML pages through a source's articles that still hold raw HTML.
func (r *ArticleRepository) ListWithRawHTML(
	ctx context.Context,
	source string,
	limit, offset int,
) ([]*domain.Article, error) {
	articles := []*domain.Article{}
	query := `
		SELECT ` + articleColumns + `
		FROM news_articles
		WHERE source = $1 AND raw_html IS NOT NULL AND raw_html <> ''
		ORDER BY id
		LIMIT $2 OFFSET $3
	`

	err := r.db.SelectContext(ctx, &articles, query, source, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list raw html articles: %w", err)
	}

	return articles, nil
}

// ListArchivable returns the next batch of cold storage candidates: articles
// of a source with raw HTML whose crawl time falls inside the half-open
// window [from, to). No offset is needed, archiving a batch nulls raw_html
// and removes the rows from the result set.
func (r *ArticleRepository) ListArchivable(
	ctx context.Context,
	source string,
	from, to *time.Time,
	limit int,
) ([]*ArchiveCandidate, error) {
	query := `
		SELECT id, url_hash, raw_html
		FROM news_articles
		WHERE source = $1 AND raw_html IS NOT NULL AND raw_html <> ''`
	args := []any{source}

	if from != nil {
		args = append(args, *from)
		query += fmt.Sprintf(" AND crawled_at >= $%d", len(args))
	}
	if to != nil {
		args = append(args, *to)
		query += fmt.Sprintf(" AND crawled_at < $%d", len(args))
	}

	args = append(args, limit)
	query += fmt.Sprintf(`
		ORDER BY id
		LIMIT $%d`, len(args))

	candidates := []*ArchiveCandidate{}
	err := r.db.SelectContext(ctx, &candidates, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list archivable articles: %w", err)
	}

	return candidates, nil
}

// ListSources returns the distinct sources present in the article store.
func (r *ArticleRepository) ListSources(ctx context.Context) ([]string, error) {
	sources := []string{}
	query := `SELECT DISTINCT source FROM news_articles ORDER BY source`

	err := r.db.SelectContext(ctx, &sources, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list article sources: %w", err)
	}

	return sources, nil
}
