package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// RuleType identifies the matching strategy of a filter rule.
type RuleType string

const (
	// RuleTypeKeyword matches when any keyword is a substring of a field.
	RuleTypeKeyword RuleType = "KEYWORD"
	// RuleTypePattern matches case-insensitive regular expressions.
	RuleTypePattern RuleType = "PATTERN"
	// RuleTypeCategory matches on category or sub-category membership.
	RuleTypeCategory RuleType = "CATEGORY"
)

// FilterDecision is the verdict recorded for one article at one stage.
type FilterDecision string

const (
	// DecisionKeep lets the article continue to the next stage.
	DecisionKeep FilterDecision = "KEEP"
	// DecisionFilter drops the article from the run.
	DecisionFilter FilterDecision = "FILTER"
	// DecisionForceInclude bypasses every rule for a whitelisted article.
	DecisionForceInclude FilterDecision = "FORCE_INCLUDE"
)

// RuleConfig is the typed JSON payload of a filter rule.
// Which fields are populated depends on the rule type.
type RuleConfig struct {
	Keywords        []string `json:"keywords,omitempty"`
	MatchFields     []string `json:"match_fields,omitempty"`
	Patterns        []string `json:"patterns,omitempty"`
	ExcludeKeywords []string `json:"exclude_keywords,omitempty"`
	Categories      []string `json:"categories,omitempty"`
	SubCategories   []string `json:"sub_categories,omitempty"`
}

// Scan implements the sql.Scanner interface for JSON-encoded rule configs.
func (c *RuleConfig) Scan(value any) error {
	if value == nil {
		*c = RuleConfig{}
		return nil
	}

	var data []byte
	switch v := value.(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return errors.New("unsupported type for RuleConfig")
	}

	if len(data) == 0 {
		*c = RuleConfig{}
		return nil
	}
	return json.Unmarshal(data, c)
}

// Value implements the driver.Valuer interface.
func (c RuleConfig) Value() (driver.Value, error) {
	return json.Marshal(c)
}

// FilterRule is one persisted filtering rule.
type FilterRule struct {
	ID          int64      `db:"id"          json:"id"`
	Name        string     `db:"name"        json:"name"` // unique
	Description string     `db:"description" json:"description"`
	RuleType    RuleType   `db:"rule_type"   json:"rule_type"`
	Config      RuleConfig `db:"config"      json:"config"`

	IsActive bool `db:"is_active" json:"is_active"`
	Priority int  `db:"priority"  json:"priority"` // lower runs first

	TotalFilteredCount int64 `db:"total_filtered_count" json:"total_filtered_count"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// FilterResult records the decision for one article at one pipeline stage.
type FilterResult struct {
	ID            int64          `db:"id"              json:"id"`
	PipelineRunID int64          `db:"pipeline_run_id" json:"pipeline_run_id"`
	ArticleID     int64          `db:"article_id"      json:"article_id"`
	Stage         PipelineStage  `db:"stage"           json:"stage"`
	Decision      FilterDecision `db:"decision"        json:"decision"`
	RuleName      *string        `db:"rule_name"       json:"rule_name,omitempty"`
	Reason        *string        `db:"reason"          json:"reason,omitempty"`
	CreatedAt     time.Time      `db:"created_at"      json:"created_at"`
}

// ForceIncludeArticle whitelists an article past every filter rule.
type ForceIncludeArticle struct {
	ID        int64     `db:"id"         json:"id"`
	ArticleID int64     `db:"article_id" json:"article_id"` // unique
	Reason    *string   `db:"reason"     json:"reason,omitempty"`
	AddedBy   *string   `db:"added_by"   json:"added_by,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
