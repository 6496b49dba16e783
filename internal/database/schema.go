package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// schemaStatements bootstraps the operational schema. Every statement is
// idempotent so EnsureSchema can run at every startup.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS crawler_configs (
		id BIGSERIAL PRIMARY KEY,
		name VARCHAR(100) NOT NULL UNIQUE,
		display_name VARCHAR(200) NOT NULL DEFAULT '',
		crawler_type VARCHAR(20) NOT NULL,
		source VARCHAR(100) NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		interval_minutes INTEGER NOT NULL DEFAULT 60,
		timeout_seconds INTEGER NOT NULL DEFAULT 300,
		last_run_status VARCHAR(20) NOT NULL DEFAULT 'IDLE',
		last_run_time TIMESTAMPTZ,
		next_run_time TIMESTAMPTZ,
		error_log TEXT,
		last_run_items_count INTEGER NOT NULL DEFAULT 0,
		total_items_count INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_crawler_configs_source ON crawler_configs (source)`,

	`CREATE TABLE IF NOT EXISTS news_articles (
		id BIGSERIAL PRIMARY KEY,
		url VARCHAR(2048) NOT NULL UNIQUE,
		url_hash VARCHAR(32) NOT NULL,
		title VARCHAR(500) NOT NULL DEFAULT '',
		content TEXT NOT NULL DEFAULT '',
		summary TEXT,
		author VARCHAR(200),
		source VARCHAR(100) NOT NULL,
		crawler_name VARCHAR(100) NOT NULL DEFAULT '',
		category VARCHAR(100),
		sub_category VARCHAR(100),
		tags TEXT,
		published_at TIMESTAMPTZ,
		crawled_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		raw_html TEXT,
		images TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_news_articles_url_hash ON news_articles (url_hash)`,
	`CREATE INDEX IF NOT EXISTS idx_news_articles_source ON news_articles (source)`,
	`CREATE INDEX IF NOT EXISTS idx_news_articles_crawler_name ON news_articles (crawler_name)`,
	`CREATE INDEX IF NOT EXISTS idx_news_articles_published_at ON news_articles (published_at)`,

	`CREATE TABLE IF NOT EXISTS pending_urls (
		id BIGSERIAL PRIMARY KEY,
		url VARCHAR(2048) NOT NULL UNIQUE,
		url_hash VARCHAR(32) NOT NULL,
		source VARCHAR(100) NOT NULL,
		status VARCHAR(20) NOT NULL DEFAULT 'PENDING',
		retry_count INTEGER NOT NULL DEFAULT 0,
		max_retries INTEGER NOT NULL DEFAULT 3,
		error_message TEXT,
		discovered_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		processed_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_pending_urls_url_hash ON pending_urls (url_hash)`,
	`CREATE INDEX IF NOT EXISTS idx_pending_urls_lease ON pending_urls (source, status, discovered_at)`,

	`CREATE TABLE IF NOT EXISTS raw_html_archives (
		id BIGSERIAL PRIMARY KEY,
		article_id BIGINT NOT NULL UNIQUE,
		source VARCHAR(100) NOT NULL,
		archive_path VARCHAR(500),
		status VARCHAR(20) NOT NULL DEFAULT 'ACTIVE',
		original_size BIGINT NOT NULL DEFAULT 0,
		compressed_size BIGINT,
		archived_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_raw_html_archives_source ON raw_html_archives (source, status)`,

	`CREATE TABLE IF NOT EXISTS reparse_jobs (
		id VARCHAR(36) PRIMARY KEY,
		source VARCHAR(100) NOT NULL,
		status VARCHAR(20) NOT NULL DEFAULT 'PENDING',
		total_count INTEGER NOT NULL DEFAULT 0,
		processed_count INTEGER NOT NULL DEFAULT 0,
		failed_count INTEGER NOT NULL DEFAULT 0,
		error_log TEXT,
		started_at TIMESTAMPTZ,
		completed_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_reparse_jobs_source ON reparse_jobs (source)`,

	`CREATE TABLE IF NOT EXISTS pipeline_runs (
		id BIGSERIAL PRIMARY KEY,
		name VARCHAR(200) NOT NULL,
		status VARCHAR(20) NOT NULL DEFAULT 'PENDING',
		current_stage VARCHAR(20),
		date_from TIMESTAMPTZ,
		date_to TIMESTAMPTZ,
		total_articles INTEGER NOT NULL DEFAULT 0,
		rule_filtered_count INTEGER NOT NULL DEFAULT 0,
		rule_passed_count INTEGER NOT NULL DEFAULT 0,
		force_included_count INTEGER NOT NULL DEFAULT 0,
		analyzed_count INTEGER NOT NULL DEFAULT 0,
		batch_id VARCHAR(100),
		error_log TEXT,
		started_at TIMESTAMPTZ,
		completed_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS article_filter_results (
		id BIGSERIAL PRIMARY KEY,
		pipeline_run_id BIGINT NOT NULL,
		article_id BIGINT NOT NULL,
		stage VARCHAR(20) NOT NULL,
		decision VARCHAR(20) NOT NULL,
		rule_name VARCHAR(100),
		reason TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_filter_results_run_stage ON article_filter_results (pipeline_run_id, stage)`,
	`CREATE INDEX IF NOT EXISTS idx_filter_results_run_article ON article_filter_results (pipeline_run_id, article_id)`,

	`CREATE TABLE IF NOT EXISTS filter_rules (
		id BIGSERIAL PRIMARY KEY,
		name VARCHAR(100) NOT NULL UNIQUE,
		description TEXT NOT NULL DEFAULT '',
		rule_type VARCHAR(20) NOT NULL,
		config JSONB NOT NULL DEFAULT '{}',
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		priority INTEGER NOT NULL DEFAULT 100,
		total_filtered_count BIGINT NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS force_include_articles (
		id BIGSERIAL PRIMARY KEY,
		article_id BIGINT NOT NULL UNIQUE,
		reason TEXT,
		added_by VARCHAR(100),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS article_analysis_tracking (
		id BIGSERIAL PRIMARY KEY,
		pipeline_run_id BIGINT NOT NULL,
		article_id BIGINT NOT NULL,
		batch_id VARCHAR(100) NOT NULL,
		status VARCHAR(20) NOT NULL DEFAULT 'PENDING',
		error_message TEXT,
		result_json TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (article_id, batch_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_analysis_tracking_run_status ON article_analysis_tracking (pipeline_run_id, status)`,

	`CREATE TABLE IF NOT EXISTS article_analysis_results (
		id BIGSERIAL PRIMARY KEY,
		pipeline_run_id BIGINT NOT NULL,
		article_id BIGINT NOT NULL,
		batch_id VARCHAR(100) NOT NULL,
		status VARCHAR(20) NOT NULL,
		model VARCHAR(100) NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_analysis_results_run ON article_analysis_results (pipeline_run_id)`,
}

// EnsureSchema creates the operational tables and indexes if they do not
// already exist.
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure schema: %w", err)
		}
	}
	return nil
}
