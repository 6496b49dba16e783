package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/newsflow/internal/domain"
)

// FilteredArticle is a filter decision joined with its article's headline data.
type FilteredArticle struct {
	ArticleID   int64      `db:"article_id"   json:"article_id"`
	Title       string     `db:"title"        json:"title"`
	Source      string     `db:"source"       json:"source"`
	Category    *string    `db:"category"     json:"category,omitempty"`
	PublishedAt *time.Time `db:"published_at" json:"published_at,omitempty"`
	Decision    string     `db:"decision"     json:"decision"`
	RuleName    *string    `db:"rule_name"    json:"rule_name,omitempty"`
	Reason      *string    `db:"reason"       json:"reason,omitempty"`
}

// FilterResultRepository handles database operations for per-article stage decisions.
type FilterResultRepository struct {
	db *sqlx.DB
}

// NewFilterResultRepository creates a new filter result repository.
func NewFilterResultRepository(db *sqlx.DB) *FilterResultRepository {
	return &FilterResultRepository{db: db}
}

// InsertBatch inserts one page of filter results in a single transaction.
func (r *FilterResultRepository) InsertBatch(ctx context.Context, results []*domain.FilterResult) error {
	if len(results) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	query := `
		INSERT INTO article_filter_results (pipeline_run_id, article_id, stage, decision, rule_name, reason)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	for _, res := range results {
		if _, execErr := tx.ExecContext(ctx, query,
			res.PipelineRunID, res.ArticleID, res.Stage, res.Decision, res.RuleName, res.Reason); execErr != nil {
			return fmt.Errorf("failed to insert filter result: %w", execErr)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit filter results: %w", err)
	}

	return nil
}

// CountDecisions tallies decisions for one run and stage.
func (r *FilterResultRepository) CountDecisions(
	ctx context.Context,
	runID int64,
	stage domain.PipelineStage,
) (map[domain.FilterDecision]int, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT decision, COUNT(*)
		FROM article_filter_results
		WHERE pipeline_run_id = $1 AND stage = $2
		GROUP BY decision
	`, runID, stage)
	if err != nil {
		return nil, fmt.Errorf("failed to count decisions: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.FilterDecision]int)
	for rows.Next() {
		var decision domain.FilterDecision
		var count int
		if scanErr := rows.Scan(&decision, &count); scanErr != nil {
			return nil, fmt.Errorf("failed to scan decision count: %w", scanErr)
		}
		counts[decision] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read decision counts: %w", err)
	}

	return counts, nil
}

// PassedArticleIDs returns the articles whose latest decision in the run is
// KEEP or FORCE_INCLUDE. The latest decision wins when a stage was re-run.
func (r *FilterResultRepository) PassedArticleIDs(ctx context.Context, runID int64) ([]int64, error) {
	ids := []int64{}
	query := `
		SELECT fr.article_id
		FROM article_filter_results fr
		JOIN (
			SELECT article_id, MAX(id) AS max_id
			FROM article_filter_results
			WHERE pipeline_run_id = $1
			GROUP BY article_id
		) latest ON fr.id = latest.max_id
		WHERE fr.decision IN ('KEEP', 'FORCE_INCLUDE')
		ORDER BY fr.article_id
	`

	err := r.db.SelectContext(ctx, &ids, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list passed article ids: %w", err)
	}

	return ids, nil
}

// ListFiltered pages through articles dropped by the run, optionally
// restricted to one stage.
func (r *FilterResultRepository) ListFiltered(
	ctx context.Context,
	runID int64,
	stage *domain.PipelineStage,
	limit, offset int,
) ([]*FilteredArticle, error) {
	query := `
		SELECT fr.article_id, a.title, a.source, a.category, a.published_at,
		       fr.decision, fr.rule_name, fr.reason
		FROM article_filter_results fr
		JOIN news_articles a ON a.id = fr.article_id
		WHERE fr.pipeline_run_id = $1 AND fr.decision = 'FILTER'`
	args := []any{runID}

	if stage != nil {
		args = append(args, *stage)
		query += fmt.Sprintf(" AND fr.stage = $%d", len(args))
	}

	args = append(args, limit, offset)
	query += fmt.Sprintf(`
		ORDER BY fr.id
		LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	items := []*FilteredArticle{}
	err := r.db.SelectContext(ctx, &items, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list filtered articles: %w", err)
	}

	return items, nil
}

// ListPassed pages through articles whose latest decision in the run let
// them through.
func (r *FilterResultRepository) ListPassed(
	ctx context.Context,
	runID int64,
	limit, offset int,
) ([]*FilteredArticle, error) {
	items := []*FilteredArticle{}
	query := `
		SELECT fr.article_id, a.title, a.source, a.category, a.published_at,
		       fr.decision, fr.rule_name, fr.reason
		FROM article_filter_results fr
		JOIN (
			SELECT article_id, MAX(id) AS max_id
			FROM article_filter_results
			WHERE pipeline_run_id = $1
			GROUP BY article_id
		) latest ON fr.id = latest.max_id
		JOIN news_articles a ON a.id = fr.article_id
		WHERE fr.decision IN ('KEEP', 'FORCE_INCLUDE')
		ORDER BY fr.article_id
		LIMIT $2 OFFSET $3
	`

	err := r.db.SelectContext(ctx, &items, query, runID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list passed articles: %w", err)
	}

	return items, nil
}
