package domain

import (
	"time"
)

// CrawlerKind distinguishes URL-discovery crawlers from content crawlers.
type CrawlerKind string

const (
	// KindList crawlers enumerate article URLs from listing pages.
	KindList CrawlerKind = "LIST"
	// KindArticle crawlers fetch and parse article content.
	KindArticle CrawlerKind = "ARTICLE"
)

// RunStatus tracks the lifecycle of a crawler's scheduled execution.
type RunStatus string

const (
	// RunStatusIdle means no execution is in flight.
	RunStatusIdle RunStatus = "IDLE"
	// RunStatusRunning means an execution is currently in flight.
	RunStatusRunning RunStatus = "RUNNING"
	// RunStatusSuccess means the last execution completed normally.
	RunStatusSuccess RunStatus = "SUCCESS"
	// RunStatusFailed means the last execution ended with an error.
	RunStatusFailed RunStatus = "FAILED"
)

// CrawlerConfig is the persisted registration and schedule state of a crawler.
type CrawlerConfig struct {
	// Identity
	ID          int64       `db:"id"           json:"id"`
	Name        string      `db:"name"         json:"name"` // unique registry key
	DisplayName string      `db:"display_name" json:"display_name"`
	Kind        CrawlerKind `db:"crawler_type" json:"crawler_type"`
	Source      string      `db:"source"       json:"source"`

	// Schedule, operator controlled and never overwritten by registry sync
	IsActive        bool `db:"is_active"        json:"is_active"`
	IntervalMinutes int  `db:"interval_minutes" json:"interval_minutes"`
	TimeoutSeconds  int  `db:"timeout_seconds"  json:"timeout_seconds"`

	// Last execution outcome
	LastRunStatus RunStatus  `db:"last_run_status" json:"last_run_status"`
	LastRunTime   *time.Time `db:"last_run_time"   json:"last_run_time,omitempty"`
	NextRunTime   *time.Time `db:"next_run_time"   json:"next_run_time,omitempty"`
	ErrorLog      *string    `db:"error_log"       json:"error_log,omitempty"`

	// Counters
	LastRunItemsCount int `db:"last_run_items_count" json:"last_run_items_count"`
	TotalItemsCount   int `db:"total_items_count"    json:"total_items_count"`

	// Metadata
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
