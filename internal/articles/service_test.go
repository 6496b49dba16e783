package articles_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/newsflow/internal/articles"
	"github.com/jonesrussell/newsflow/internal/database"
	"github.com/jonesrussell/newsflow/internal/domain"
	"github.com/jonesrussell/newsflow/internal/logger"
	"github.com/jonesrussell/newsflow/internal/queue"
)

type fakeArticleRepo struct {
	database.ArticleRepositoryInterface

	created []*domain.Article
}

func (f *fakeArticleRepo) Create(_ context.Context, a *domain.Article) error {
	a.ID = int64(len(f.created) + 1)
	f.created = append(f.created, a)
	return nil
}

type recordingIndexer struct {
	mu      sync.Mutex
	indexed []int64
	done    chan struct{}
	err     error
}

func (r *recordingIndexer) IndexArticle(_ context.Context, a *domain.Article) error {
	r.mu.Lock()
	r.indexed = append(r.indexed, a.ID)
	r.mu.Unlock()
	close(r.done)
	return r.err
}

func TestSaveNormalizesArticle(t *testing.T) {
	repo := &fakeArticleRepo{}
	svc := articles.NewService(repo, nil, logger.NewNop())

	loc := time.FixedZone("CST", 8*60*60)
	published := time.Date(2026, 3, 1, 12, 0, 0, 0, loc)
	a := &domain.Article{
		URL:         "https://example.com/news/1",
		Title:       "標題",
		Content:     "內容",
		Source:      "example",
		Tags:        domain.StringList{" a ", "b", "a", ""},
		PublishedAt: &published,
	}

	require.NoError(t, svc.Save(context.Background(), a))

	require.Len(t, repo.created, 1)
	assert.Equal(t, queue.HashURL(a.URL), a.URLHash)
	assert.Equal(t, domain.StringList{"a", "b"}, a.Tags)
	assert.Equal(t, time.UTC, a.PublishedAt.Location())
	assert.Equal(t, published.UTC(), *a.PublishedAt)
}

func TestSaveRejectsEmptyURL(t *testing.T) {
	svc := articles.NewService(&fakeArticleRepo{}, nil, logger.NewNop())

	err := svc.Save(context.Background(), &domain.Article{Title: "no url"})
	assert.Error(t, err)
}

func TestSaveMirrorsToIndexer(t *testing.T) {
	repo := &fakeArticleRepo{}
	idx := &recordingIndexer{done: make(chan struct{})}
	svc := articles.NewService(repo, idx, logger.NewNop())

	require.NoError(t, svc.Save(context.Background(), &domain.Article{
		URL: "https://example.com/news/2", Source: "example",
	}))

	select {
	case <-idx.done:
	case <-time.After(time.Second):
		t.Fatal("indexer was not called")
	}
	assert.Equal(t, []int64{1}, idx.indexed)
}

func TestSaveSurvivesIndexerFailure(t *testing.T) {
	repo := &fakeArticleRepo{}
	idx := &recordingIndexer{done: make(chan struct{}), err: errors.New("es down")}
	svc := articles.NewService(repo, idx, logger.NewNop())

	err := svc.Save(context.Background(), &domain.Article{
		URL: "https://example.com/news/3", Source: "example",
	})

	require.NoError(t, err)
	<-idx.done
	assert.Len(t, repo.created, 1)
}
