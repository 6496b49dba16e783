// Package analytics writes analysis graphs into the analytical store: one
// article row plus its entities, events, sub-events, junctions, and relation
// edges, each article in its own transaction.
package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/jonesrussell/newsflow/internal/analysis"
	"github.com/jonesrussell/newsflow/internal/domain"
	"github.com/jonesrussell/newsflow/internal/logger"
)

// dedupWindow is how far around an article's publication time an existing
// row with the same external id counts as the same article.
const dedupWindow = 7 * 24 * time.Hour

// Store writes analysis output to the analytical Postgres.
type Store struct {
	db     *sqlx.DB
	logger logger.Logger
}

// NewStore creates the analytics store writer.
func NewStore(db *sqlx.DB, log logger.Logger) *Store {
	return &Store{db: db, logger: log}
}

// StoreBatch persists one analysis graph per response, each in its own
// transaction, so one bad article never poisons the rest. Returns how many
// articles were stored and the per-article failures, classified transient
// (connectivity, retry storage only) or not (data, re-analyze).
func (s *Store) StoreBatch(
	ctx context.Context,
	articles map[int64]*domain.Article,
	responses []analysis.AnalysisResponse,
) (int, []analysis.StoreFailure, error) {
	stored := 0
	var failures []analysis.StoreFailure

	for _, resp := range responses {
		articleID, err := analysis.ParseCustomID(resp.CustomID)
		if err != nil {
			return stored, failures, err
		}
		article, ok := articles[articleID]
		if !ok {
			failures = append(failures, analysis.StoreFailure{
				ArticleID: articleID,
				Transient: false,
				Err:       fmt.Errorf("article %d not in batch input", articleID),
			})
			continue
		}

		result, err := analysis.ParseResult([]byte(resp.ResultJSON))
		if err != nil {
			failures = append(failures, analysis.StoreFailure{
				ArticleID: articleID,
				Transient: false,
				Err:       err,
			})
			continue
		}

		inserted, err := s.storeOne(ctx, article, result)
		if err != nil {
			failures = append(failures, analysis.StoreFailure{
				ArticleID: articleID,
				Transient: isTransient(err),
				Err:       err,
			})
			s.logger.Error("failed to store analysis",
				logger.Int64("article_id", articleID),
				logger.Error(err),
			)
			continue
		}
		if inserted {
			stored++
		} else {
			s.logger.Debug("duplicate analysis skipped",
				logger.Int64("article_id", articleID),
				logger.String("external_id", article.URLHash),
			)
		}
	}

	return stored, failures, nil
}

// storeOne writes one article's graph. Returns false without error when an
// article with the same external id already exists inside the dedup window.
func (s *Store) storeOne(ctx context.Context, article *domain.Article, result *analysis.Result) (bool, error) {
	publishedAt := normalizePublished(article)

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	duplicate, err := s.isDuplicate(ctx, tx, article.URLHash, publishedAt)
	if err != nil {
		return false, err
	}
	if duplicate {
		return false, nil
	}

	articleID, err := s.insertArticle(ctx, tx, article, result, publishedAt)
	if err != nil {
		return false, err
	}

	entityIDs, err := s.upsertEntities(ctx, tx, result.Entities)
	if err != nil {
		return false, err
	}
	eventIDs, subEventIDs, err := s.upsertEvents(ctx, tx, result.Events)
	if err != nil {
		return false, err
	}

	if err := s.insertArticleEntities(ctx, tx, articleID, publishedAt, result.Entities, entityIDs); err != nil {
		return false, err
	}
	if err := s.insertArticleEvents(ctx, tx, articleID, publishedAt, result.Events, eventIDs, subEventIDs); err != nil {
		return false, err
	}
	if err := s.upsertRelations(ctx, tx, result, entityIDs, eventIDs); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit analysis graph: %w", err)
	}
	return true, nil
}

// normalizePublished picks the article's timestamp for the analytical
// store: published time when known, crawl time otherwise, always UTC.
func normalizePublished(article *domain.Article) time.Time {
	if article.PublishedAt != nil {
		return article.PublishedAt.UTC()
	}
	return article.CrawledAt.UTC()
}

func (s *Store) isDuplicate(ctx context.Context, tx *sqlx.Tx, externalID string, publishedAt time.Time) (bool, error) {
	var id int64
	query := `
		SELECT id FROM articles
		WHERE external_id = $1 AND published_at BETWEEN $2 AND $3
		LIMIT 1
	`

	err := tx.GetContext(ctx, &id, query, externalID,
		publishedAt.Add(-dedupWindow), publishedAt.Add(dedupWindow))
	if err == nil {
		return true, nil
	}
	if isNoRows(err) {
		return false, nil
	}
	return false, fmt.Errorf("failed to check for duplicate article: %w", err)
}

func (s *Store) insertArticle(
	ctx context.Context,
	tx *sqlx.Tx,
	article *domain.Article,
	result *analysis.Result,
	publishedAt time.Time,
) (int64, error) {
	var id int64
	query := `
		INSERT INTO articles (
			external_id, published_at, url, title, source, author,
			keywords_original,
			sentiment_polarity, sentiment_intensity, sentiment_tone,
			framing_angle, framing_narrative_type,
			is_exclusive, is_opinion, has_update, key_claims, virality_score,
			category_normalized
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		RETURNING id
	`

	err := tx.QueryRowContext(ctx, query,
		article.URLHash, publishedAt, article.URL, article.Title, article.Source, article.Author,
		pq.Array([]string(article.Tags)),
		result.Sentiment.Polarity, result.Sentiment.Intensity, result.Sentiment.Tone,
		result.Framing.Angle, result.Framing.NarrativeType,
		result.Signals.IsExclusive, result.Signals.IsOpinion, result.Signals.HasUpdate,
		pq.Array(result.Signals.KeyClaims), result.Signals.ViralityScore,
		result.CategoryNormalized,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert analysis article: %w", err)
	}
	return id, nil
}

// upsertEntities resolves every entity to its id, inserting new ones and
// recording alias edges when the article's surface form differs from the
// normalized name.
func (s *Store) upsertEntities(ctx context.Context, tx *sqlx.Tx, entities []analysis.Entity) (map[string]int64, error) {
	ids := make(map[string]int64, len(entities))

	upsert := `
		INSERT INTO entities (name_normalized, entity_type)
		VALUES ($1, $2)
		ON CONFLICT (name_normalized) DO UPDATE SET entity_type = EXCLUDED.entity_type
		RETURNING id
	`
	alias := `
		INSERT INTO entity_aliases (entity_id, alias)
		VALUES ($1, $2)
		ON CONFLICT (entity_id, alias) DO NOTHING
	`

	for _, e := range entities {
		var id int64
		if err := tx.QueryRowContext(ctx, upsert, e.NameNormalized, e.Type).Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to upsert entity %q: %w", e.NameNormalized, err)
		}
		ids[e.NameNormalized] = id

		if e.Name != "" && e.Name != e.NameNormalized {
			if _, err := tx.ExecContext(ctx, alias, id, e.Name); err != nil {
				return nil, fmt.Errorf("failed to insert entity alias %q: %w", e.Name, err)
			}
		}
	}
	return ids, nil
}

// upsertEvents resolves events and their sub-events to ids. Sub-event ids
// are keyed (event_normalized, sub_event_normalized).
func (s *Store) upsertEvents(
	ctx context.Context,
	tx *sqlx.Tx,
	events []analysis.Event,
) (map[string]int64, map[[2]string]int64, error) {
	eventIDs := make(map[string]int64, len(events))
	subEventIDs := make(map[[2]string]int64)

	upsert := `
		INSERT INTO events (name_normalized, topic_normalized, event_type, tags)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (name_normalized) DO UPDATE
		SET topic_normalized = EXCLUDED.topic_normalized,
		    event_type = EXCLUDED.event_type,
		    tags = EXCLUDED.tags
		RETURNING id
	`
	subUpsert := `
		INSERT INTO sub_events (event_id, name_normalized, event_time)
		VALUES ($1, $2, $3)
		ON CONFLICT (event_id, name_normalized) DO UPDATE SET event_time = EXCLUDED.event_time
		RETURNING id
	`

	for _, ev := range events {
		var id int64
		err := tx.QueryRowContext(ctx, upsert,
			ev.NameNormalized, ev.TopicNormalized, ev.Type, pq.Array(ev.Tags)).Scan(&id)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to upsert event %q: %w", ev.NameNormalized, err)
		}
		eventIDs[ev.NameNormalized] = id

		if ev.SubEventNormalized != nil && *ev.SubEventNormalized != "" {
			var subID int64
			err := tx.QueryRowContext(ctx, subUpsert, id, *ev.SubEventNormalized, ev.EventTimeValue()).Scan(&subID)
			if err != nil {
				return nil, nil, fmt.Errorf("failed to upsert sub-event %q: %w", *ev.SubEventNormalized, err)
			}
			subEventIDs[[2]string{ev.NameNormalized, *ev.SubEventNormalized}] = subID
		}
	}
	return eventIDs, subEventIDs, nil
}

func (s *Store) insertArticleEntities(
	ctx context.Context,
	tx *sqlx.Tx,
	articleID int64,
	publishedAt time.Time,
	entities []analysis.Entity,
	entityIDs map[string]int64,
) error {
	_ = publishedAt // partition key once the junction tables are partitioned

	query := `
		INSERT INTO article_entities (article_id, entity_id, name_in_article, role, sentiment_toward)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (article_id, entity_id, name_in_article) DO NOTHING
	`

	for _, e := range entities {
		entityID, ok := entityIDs[e.NameNormalized]
		if !ok {
			continue
		}
		name := e.Name
		if name == "" {
			name = e.NameNormalized
		}
		if _, err := tx.ExecContext(ctx, query, articleID, entityID, name, e.Role, e.SentimentToward); err != nil {
			return fmt.Errorf("failed to insert article entity: %w", err)
		}
	}
	return nil
}

func (s *Store) insertArticleEvents(
	ctx context.Context,
	tx *sqlx.Tx,
	articleID int64,
	publishedAt time.Time,
	events []analysis.Event,
	eventIDs map[string]int64,
	subEventIDs map[[2]string]int64,
) error {
	_ = publishedAt

	query := `
		INSERT INTO article_events (article_id, event_id, sub_event_id, is_main, article_type, event_time, temporal_cues)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (article_id, event_id) DO NOTHING
	`

	for _, ev := range events {
		eventID, ok := eventIDs[ev.NameNormalized]
		if !ok {
			continue
		}

		var subEventID *int64
		if ev.SubEventNormalized != nil {
			if id, ok := subEventIDs[[2]string{ev.NameNormalized, *ev.SubEventNormalized}]; ok {
				subEventID = &id
			}
		}

		_, err := tx.ExecContext(ctx, query,
			articleID, eventID, subEventID, ev.IsMain, ev.ArticleType,
			ev.EventTimeValue(), pq.Array(ev.TemporalCues))
		if err != nil {
			return fmt.Errorf("failed to insert article event: %w", err)
		}
	}
	return nil
}

// upsertRelations writes entity-entity and entity-event edges, bumping the
// weight counter on repeats. Edges whose endpoints did not resolve in this
// article's maps are skipped silently.
func (s *Store) upsertRelations(
	ctx context.Context,
	tx *sqlx.Tx,
	result *analysis.Result,
	entityIDs map[string]int64,
	eventIDs map[string]int64,
) error {
	entityEdge := `
		INSERT INTO entity_relations (source_entity_id, target_entity_id, relation_type)
		VALUES ($1, $2, $3)
		ON CONFLICT (source_entity_id, target_entity_id, relation_type)
		DO UPDATE SET weight = entity_relations.weight + 1
	`
	eventEdge := `
		INSERT INTO event_relations (entity_id, event_id, relation_type)
		VALUES ($1, $2, $3)
		ON CONFLICT (entity_id, event_id, relation_type)
		DO UPDATE SET weight = event_relations.weight + 1
	`

	for _, rel := range result.EntityRelations {
		sourceID, sourceOK := entityIDs[rel.Source]
		targetID, targetOK := entityIDs[rel.Target]
		if !sourceOK || !targetOK {
			continue
		}
		if _, err := tx.ExecContext(ctx, entityEdge, sourceID, targetID, rel.Type); err != nil {
			return fmt.Errorf("failed to upsert entity relation: %w", err)
		}
	}

	for _, rel := range result.EventRelations {
		entityID, entityOK := entityIDs[rel.Entity]
		eventID, eventOK := eventIDs[rel.Event]
		if !entityOK || !eventOK {
			continue
		}
		if _, err := tx.ExecContext(ctx, eventEdge, entityID, eventID, rel.Type); err != nil {
			return fmt.Errorf("failed to upsert event relation: %w", err)
		}
	}
	return nil
}

// DeleteByExternalIDs removes analysis articles and their junction rows.
// Shared entities, events, and relation edges stay: other articles still
// reference them.
func (s *Store) DeleteByExternalIDs(ctx context.Context, externalIDs []string) (int, error) {
	if len(externalIDs) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	var ids []int64
	query, args, err := sqlx.In(`SELECT id FROM articles WHERE external_id IN (?)`, externalIDs)
	if err != nil {
		return 0, fmt.Errorf("failed to build article lookup: %w", err)
	}
	if err := tx.SelectContext(ctx, &ids, tx.Rebind(query), args...); err != nil {
		return 0, fmt.Errorf("failed to find articles to delete: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	for _, stmt := range []string{
		`DELETE FROM article_entities WHERE article_id IN (?)`,
		`DELETE FROM article_events WHERE article_id IN (?)`,
		`DELETE FROM articles WHERE id IN (?)`,
	} {
		query, args, err := sqlx.In(stmt, ids)
		if err != nil {
			return 0, fmt.Errorf("failed to build delete: %w", err)
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(query), args...); err != nil {
			return 0, fmt.Errorf("failed to delete analysis rows: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit delete: %w", err)
	}
	return len(ids), nil
}
