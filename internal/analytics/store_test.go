package analytics_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/newsflow/internal/analysis"
	"github.com/jonesrussell/newsflow/internal/analytics"
	"github.com/jonesrussell/newsflow/internal/domain"
	"github.com/jonesrussell/newsflow/internal/logger"
)

func newMockStore(t *testing.T) (*analytics.Store, sqlmock.Sqlmock) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	return analytics.NewStore(sqlx.NewDb(mockDB, "postgres"), logger.NewNop()), mock
}

func storedArticle() *domain.Article {
	published := time.Date(2026, 8, 21, 10, 0, 0, 0, time.UTC)
	return &domain.Article{
		ID:          1,
		URL:         "https://news.example.com/a/1",
		URLHash:     "3f2a9c",
		Title:       "內閣改組進入最後階段",
		Source:      "udn",
		PublishedAt: &published,
		CrawledAt:   published.Add(time.Hour),
	}
}

func storedResultJSON(t *testing.T) string {
	t.Helper()

	subEvent := "名單公布"
	eventTime := "2026-08-20"
	result := analysis.Result{
		Sentiment: analysis.Sentiment{Polarity: -2, Intensity: 5, Tone: "analytical"},
		Framing:   analysis.Framing{Angle: "政局觀察", NarrativeType: "procedural"},
		Entities: []analysis.Entity{
			{Name: "行政院", NameNormalized: "行政院", Type: "organization", Role: "subject", SentimentToward: -1},
			{Name: "賴總統", NameNormalized: "賴清德", Type: "person", Role: "mentioned", SentimentToward: 0},
		},
		Events: []analysis.Event{
			{
				TopicNormalized:    "內閣改組",
				NameNormalized:     "2026內閣改組",
				SubEventNormalized: &subEvent,
				Tags:               []string{"政治"},
				Type:               "policy",
				IsMain:             true,
				EventTime:          &eventTime,
				ArticleType:        "follow_up",
			},
		},
		EntityRelations: []analysis.EntityRelation{
			{Source: "行政院", Target: "賴清德", Type: "related_to"},
			// Endpoint missing from this article's entities: skipped silently.
			{Source: "行政院", Target: "立法院", Type: "conflicts_with"},
		},
		EventRelations: []analysis.EventRelation{
			{Entity: "賴清德", Event: "2026內閣改組", Type: "involved_in"},
		},
		Signals:            analysis.Signals{HasUpdate: true, ViralityScore: 6},
		CategoryNormalized: "politics",
	}

	data, err := json.Marshal(result)
	require.NoError(t, err)
	return string(data)
}

func TestStoreBatchPersistsFullGraph(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM articles").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("INSERT INTO articles").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(100))

	mock.ExpectQuery("INSERT INTO entities").
		WithArgs("行政院", "organization").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(10))
	mock.ExpectQuery("INSERT INTO entities").
		WithArgs("賴清德", "person").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(11))
	mock.ExpectExec("INSERT INTO entity_aliases").
		WithArgs(int64(11), "賴總統").
		WillReturnResult(sqlmock.NewResult(0, 1))

	mock.ExpectQuery("INSERT INTO events").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(20))
	mock.ExpectQuery("INSERT INTO sub_events").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(21))

	mock.ExpectExec("INSERT INTO article_entities").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO article_entities").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO article_events").
		WillReturnResult(sqlmock.NewResult(0, 1))

	mock.ExpectExec("INSERT INTO entity_relations").
		WithArgs(int64(10), int64(11), "related_to").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO event_relations").
		WithArgs(int64(11), int64(20), "involved_in").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	article := storedArticle()
	stored, failures, err := store.StoreBatch(context.Background(),
		map[int64]*domain.Article{1: article},
		[]analysis.AnalysisResponse{
			{CustomID: analysis.CustomID(1), Success: true, ResultJSON: storedResultJSON(t)},
		})

	require.NoError(t, err)
	assert.Equal(t, 1, stored)
	assert.Empty(t, failures)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreBatchSkipsDuplicateInWindow(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM articles").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(55))
	mock.ExpectRollback()

	stored, failures, err := store.StoreBatch(context.Background(),
		map[int64]*domain.Article{1: storedArticle()},
		[]analysis.AnalysisResponse{
			{CustomID: analysis.CustomID(1), Success: true, ResultJSON: storedResultJSON(t)},
		})

	require.NoError(t, err)
	assert.Equal(t, 0, stored, "duplicate is a skip, not a failure")
	assert.Empty(t, failures)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreBatchClassifiesTransientFailure(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM articles").
		WillReturnError(&pq.Error{Code: "08006"})
	mock.ExpectRollback()

	stored, failures, err := store.StoreBatch(context.Background(),
		map[int64]*domain.Article{1: storedArticle()},
		[]analysis.AnalysisResponse{
			{CustomID: analysis.CustomID(1), Success: true, ResultJSON: storedResultJSON(t)},
		})

	require.NoError(t, err)
	assert.Equal(t, 0, stored)
	require.Len(t, failures, 1)
	assert.Equal(t, int64(1), failures[0].ArticleID)
	assert.True(t, failures[0].Transient)
}

func TestStoreBatchClassifiesDataFailure(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM articles").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("INSERT INTO articles").
		WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()

	stored, failures, err := store.StoreBatch(context.Background(),
		map[int64]*domain.Article{1: storedArticle()},
		[]analysis.AnalysisResponse{
			{CustomID: analysis.CustomID(1), Success: true, ResultJSON: storedResultJSON(t)},
		})

	require.NoError(t, err)
	assert.Equal(t, 0, stored)
	require.Len(t, failures, 1)
	assert.False(t, failures[0].Transient, "constraint violations need re-analysis, not a storage retry")
}

func TestStoreBatchRejectsMalformedResult(t *testing.T) {
	store, _ := newMockStore(t)

	stored, failures, err := store.StoreBatch(context.Background(),
		map[int64]*domain.Article{1: storedArticle()},
		[]analysis.AnalysisResponse{
			{CustomID: analysis.CustomID(1), Success: true, ResultJSON: `{"sentiment":{"polarity":99}}`},
		})

	require.NoError(t, err)
	assert.Equal(t, 0, stored)
	require.Len(t, failures, 1)
	assert.False(t, failures[0].Transient)
}

func TestStoreBatchRejectsUnknownArticle(t *testing.T) {
	store, _ := newMockStore(t)

	stored, failures, err := store.StoreBatch(context.Background(),
		map[int64]*domain.Article{},
		[]analysis.AnalysisResponse{
			{CustomID: analysis.CustomID(9), Success: true, ResultJSON: storedResultJSON(t)},
		})

	require.NoError(t, err)
	assert.Equal(t, 0, stored)
	require.Len(t, failures, 1)
	assert.Equal(t, int64(9), failures[0].ArticleID)
	assert.False(t, failures[0].Transient)
}

func TestDeleteByExternalIDs(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM articles WHERE external_id IN").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1).AddRow(2))
	mock.ExpectExec("DELETE FROM article_entities").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("DELETE FROM article_events").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("DELETE FROM articles").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	deleted, err := store.DeleteByExternalIDs(context.Background(), []string{"h1", "h2"})
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteByExternalIDsEmptyInput(t *testing.T) {
	store, _ := newMockStore(t)

	deleted, err := store.DeleteByExternalIDs(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, deleted)
}
