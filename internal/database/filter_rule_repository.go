package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/newsflow/internal/domain"
)

const filterRuleColumns = `id, name, description, rule_type, config, is_active, priority,
	       total_filtered_count, created_at, updated_at`

// FilterRuleRepository handles database operations for filter rules and the
// force-include whitelist.
type FilterRuleRepository struct {
	db *sqlx.DB
}

// NewFilterRuleRepository creates a new filter rule repository.
func NewFilterRuleRepository(db *sqlx.DB) *FilterRuleRepository {
	return &FilterRuleRepository{db: db}
}

// CreateRule inserts a new filter rule.
func (r *FilterRuleRepository) CreateRule(ctx context.Context, rule *domain.FilterRule) error {
	query := `
		INSERT INTO filter_rules (name, description, rule_type, config, is_active, priority)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRowContext(ctx, query,
		rule.Name, rule.Description, rule.RuleType, rule.Config, rule.IsActive, rule.Priority,
	).Scan(&rule.ID, &rule.CreatedAt, &rule.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create filter rule: %w", err)
	}

	return nil
}

// SeedRules inserts the given rules, skipping names that already exist.
// Existing rules are never modified, operators may have tuned them.
func (r *FilterRuleRepository) SeedRules(ctx context.Context, rules []*domain.FilterRule) (int, error) {
	query := `
		INSERT INTO filter_rules (name, description, rule_type, config, is_active, priority)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (name) DO NOTHING
	`

	seeded := 0
	for _, rule := range rules {
		result, err := r.db.ExecContext(ctx, query,
			rule.Name, rule.Description, rule.RuleType, rule.Config, rule.IsActive, rule.Priority)
		if err != nil {
			return seeded, fmt.Errorf("failed to seed filter rule %s: %w", rule.Name, err)
		}
		n, raErr := result.RowsAffected()
		if raErr != nil {
			return seeded, fmt.Errorf("failed to count seeded rule: %w", raErr)
		}
		seeded += int(n)
	}

	return seeded, nil
}

// GetRuleByName retrieves a filter rule by its unique name.
func (r *FilterRuleRepository) GetRuleByName(ctx context.Context, name string) (*domain.FilterRule, error) {
	var rule domain.FilterRule
	query := `
		SELECT ` + filterRuleColumns + `
		FROM filter_rules
		WHERE name = $1
	`

	err := r.db.GetContext(ctx, &rule, query, name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("filter rule not found: %s", name)
		}
		return nil, fmt.Errorf("failed to get filter rule: %w", err)
	}

	return &rule, nil
}

// ListActiveRules retrieves active rules in priority order, lowest first.
func (r *FilterRuleRepository) ListActiveRules(ctx context.Context) ([]*domain.FilterRule, error) {
	rules := []*domain.FilterRule{}
	query := `
		SELECT ` + filterRuleColumns + `
		FROM filter_rules
		WHERE is_active = TRUE
		ORDER BY priority, name
	`

	err := r.db.SelectContext(ctx, &rules, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list active rules: %w", err)
	}

	return rules, nil
}

// ListRules retrieves all rules in priority order.
func (r *FilterRuleRepository) ListRules(ctx context.Context) ([]*domain.FilterRule, error) {
	rules := []*domain.FilterRule{}
	query := `
		SELECT ` + filterRuleColumns + `
		FROM filter_rules
		ORDER BY priority, name
	`

	err := r.db.SelectContext(ctx, &rules, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}

	return rules, nil
}

// IncrementFilteredCount adds the page's match count to a rule's lifetime total.
func (r *FilterRuleRepository) IncrementFilteredCount(ctx context.Context, name string, delta int64) error {
	if delta == 0 {
		return nil
	}

	query := `
		UPDATE filter_rules
		SET total_filtered_count = total_filtered_count + $1, updated_at = NOW()
		WHERE name = $2
	`

	result, err := r.db.ExecContext(ctx, query, delta, name)
	return execRequireRows(result, wrapExecErr("increment filtered count", err),
		fmt.Errorf("filter rule not found: %s", name))
}

// AddForceInclude whitelists an article past every filter rule.
// Adding the same article twice is a no-op.
func (r *FilterRuleRepository) AddForceInclude(ctx context.Context, fi *domain.ForceIncludeArticle) error {
	query := `
		INSERT INTO force_include_articles (article_id, reason, added_by)
		VALUES ($1, $2, $3)
		ON CONFLICT (article_id) DO NOTHING
	`

	_, err := r.db.ExecContext(ctx, query, fi.ArticleID, fi.Reason, fi.AddedBy)
	if err != nil {
		return fmt.Errorf("failed to add force include: %w", err)
	}

	return nil
}

// RemoveForceInclude removes an article from the whitelist.
func (r *FilterRuleRepository) RemoveForceInclude(ctx context.Context, articleID int64) error {
	query := `DELETE FROM force_include_articles WHERE article_id = $1`

	result, err := r.db.ExecContext(ctx, query, articleID)
	return execRequireRows(result, wrapExecErr("remove force include", err),
		fmt.Errorf("force include not found: %d", articleID))
}

// ListForceIncludes retrieves the whole whitelist, newest first.
func (r *FilterRuleRepository) ListForceIncludes(ctx context.Context) ([]*domain.ForceIncludeArticle, error) {
	items := []*domain.ForceIncludeArticle{}
	query := `
		SELECT id, article_id, reason, added_by, created_at
		FROM force_include_articles
		ORDER BY created_at DESC
	`

	err := r.db.SelectContext(ctx, &items, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list force includes: %w", err)
	}

	return items, nil
}

// ForceIncludeIDSet returns the whitelisted article ids as a set.
func (r *FilterRuleRepository) ForceIncludeIDSet(ctx context.Context) (map[int64]struct{}, error) {
	var ids []int64
	query := `SELECT article_id FROM force_include_articles`

	err := r.db.SelectContext(ctx, &ids, query)
	if err != nil {
		return nil, fmt.Errorf("failed to load force include ids: %w", err)
	}

	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set, nil
}
