package analytics

import (
	"context"
	"fmt"
)

// analyticsSchema bootstraps the analytical store for development setups.
// Production deployments own their DDL; every statement here is idempotent.
var analyticsSchema = []string{
	`CREATE TABLE IF NOT EXISTS articles (
		id BIGSERIAL PRIMARY KEY,
		external_id VARCHAR(32) NOT NULL,
		published_at TIMESTAMPTZ NOT NULL,
		url VARCHAR(2048) NOT NULL,
		title VARCHAR(500) NOT NULL,
		source VARCHAR(100) NOT NULL,
		author VARCHAR(200),
		keywords_original TEXT[] NOT NULL DEFAULT '{}',
		sentiment_polarity DOUBLE PRECISION NOT NULL DEFAULT 0,
		sentiment_intensity DOUBLE PRECISION NOT NULL DEFAULT 0,
		sentiment_tone VARCHAR(20) NOT NULL DEFAULT 'neutral',
		framing_angle TEXT NOT NULL DEFAULT '',
		framing_narrative_type VARCHAR(20) NOT NULL DEFAULT '',
		is_exclusive BOOLEAN NOT NULL DEFAULT FALSE,
		is_opinion BOOLEAN NOT NULL DEFAULT FALSE,
		has_update BOOLEAN NOT NULL DEFAULT FALSE,
		key_claims TEXT[] NOT NULL DEFAULT '{}',
		virality_score DOUBLE PRECISION NOT NULL DEFAULT 0,
		category_normalized VARCHAR(30) NOT NULL DEFAULT 'other',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_articles_external_id ON articles (external_id, published_at)`,

	`CREATE TABLE IF NOT EXISTS entities (
		id BIGSERIAL PRIMARY KEY,
		name_normalized VARCHAR(200) NOT NULL UNIQUE,
		entity_type VARCHAR(20) NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS entity_aliases (
		id BIGSERIAL PRIMARY KEY,
		entity_id BIGINT NOT NULL REFERENCES entities (id),
		alias VARCHAR(200) NOT NULL,
		UNIQUE (entity_id, alias)
	)`,

	`CREATE TABLE IF NOT EXISTS events (
		id BIGSERIAL PRIMARY KEY,
		name_normalized VARCHAR(200) NOT NULL UNIQUE,
		topic_normalized VARCHAR(200) NOT NULL DEFAULT '',
		event_type VARCHAR(20) NOT NULL,
		tags TEXT[] NOT NULL DEFAULT '{}',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS sub_events (
		id BIGSERIAL PRIMARY KEY,
		event_id BIGINT NOT NULL REFERENCES events (id),
		name_normalized VARCHAR(200) NOT NULL,
		event_time TIMESTAMPTZ,
		UNIQUE (event_id, name_normalized)
	)`,

	`CREATE TABLE IF NOT EXISTS article_entities (
		id BIGSERIAL PRIMARY KEY,
		article_id BIGINT NOT NULL REFERENCES articles (id),
		entity_id BIGINT NOT NULL REFERENCES entities (id),
		name_in_article VARCHAR(200) NOT NULL,
		role VARCHAR(20) NOT NULL,
		sentiment_toward DOUBLE PRECISION NOT NULL DEFAULT 0,
		UNIQUE (article_id, entity_id, name_in_article)
	)`,

	`CREATE TABLE IF NOT EXISTS article_events (
		id BIGSERIAL PRIMARY KEY,
		article_id BIGINT NOT NULL REFERENCES articles (id),
		event_id BIGINT NOT NULL REFERENCES events (id),
		sub_event_id BIGINT REFERENCES sub_events (id),
		is_main BOOLEAN NOT NULL DEFAULT FALSE,
		article_type VARCHAR(20) NOT NULL DEFAULT 'standard',
		event_time TIMESTAMPTZ,
		temporal_cues TEXT[] NOT NULL DEFAULT '{}',
		UNIQUE (article_id, event_id)
	)`,

	`CREATE TABLE IF NOT EXISTS entity_relations (
		id BIGSERIAL PRIMARY KEY,
		source_entity_id BIGINT NOT NULL REFERENCES entities (id),
		target_entity_id BIGINT NOT NULL REFERENCES entities (id),
		relation_type VARCHAR(30) NOT NULL,
		weight INTEGER NOT NULL DEFAULT 1,
		UNIQUE (source_entity_id, target_entity_id, relation_type)
	)`,

	`CREATE TABLE IF NOT EXISTS event_relations (
		id BIGSERIAL PRIMARY KEY,
		entity_id BIGINT NOT NULL REFERENCES entities (id),
		event_id BIGINT NOT NULL REFERENCES events (id),
		relation_type VARCHAR(30) NOT NULL,
		weight INTEGER NOT NULL DEFAULT 1,
		UNIQUE (entity_id, event_id, relation_type)
	)`,
}

// EnsureSchema creates the analytical tables if they do not already exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range analyticsSchema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure analytics schema: %w", err)
		}
	}
	return nil
}
