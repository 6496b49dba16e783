// Package articles provides the article store service: persistence of parsed
// news records plus the optional search index mirror.
package articles

import (
	"context"
	"fmt"
	"time"

	"github.com/jonesrussell/newsflow/internal/database"
	"github.com/jonesrussell/newsflow/internal/domain"
	"github.com/jonesrussell/newsflow/internal/logger"
	"github.com/jonesrussell/newsflow/internal/queue"
)

// Indexer mirrors saved articles into a search index. Indexing failures are
// logged and never fail the save.
type Indexer interface {
	IndexArticle(ctx context.Context, a *domain.Article) error
}

// Service persists and retrieves parsed articles.
type Service struct {
	repo    database.ArticleRepositoryInterface
	indexer Indexer // nil when search indexing is disabled
	logger  logger.Logger
}

// NewService creates an article service. indexer may be nil.
func NewService(repo database.ArticleRepositoryInterface, indexer Indexer, log logger.Logger) *Service {
	return &Service{repo: repo, indexer: indexer, logger: log}
}

// Save stores a parsed article. The URL hash is derived from the URL when
// absent, string collections are normalized, and timestamps are converted
// to UTC. When search indexing is enabled the article is mirrored
// asynchronously.
func (s *Service) Save(ctx context.Context, a *domain.Article) error {
	if a.URL == "" {
		return fmt.Errorf("article has no url")
	}
	if a.URLHash == "" {
		a.URLHash = queue.HashURL(a.URL)
	}
	a.Tags = domain.NormalizeStringArray(a.Tags)
	a.Images = domain.NormalizeStringArray(a.Images)
	if a.PublishedAt != nil {
		utc := a.PublishedAt.UTC()
		a.PublishedAt = &utc
	}

	if err := s.repo.Create(ctx, a); err != nil {
		return err
	}

	if s.indexer != nil {
		go s.index(a)
	}
	return nil
}

// index mirrors one article into the search index off the save path.
func (s *Service) index(a *domain.Article) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.indexer.IndexArticle(ctx, a); err != nil {
		s.logger.Warn("search index mirror failed",
			logger.Int64("article_id", a.ID),
			logger.Error(err),
		)
	}
}

// GetByID retrieves one article, raw HTML included.
func (s *Service) GetByID(ctx context.Context, id int64) (*domain.Article, error) {
	return s.repo.GetByID(ctx, id)
}

// GetByURLHash retrieves one article by its URL hash.
func (s *Service) GetByURLHash(ctx context.Context, hash string) (*domain.Article, error) {
	return s.repo.GetByURLHash(ctx, hash)
}

// GetByIDs retrieves articles by id, raw HTML excluded.
func (s *Service) GetByIDs(ctx context.Context, ids []int64) ([]*domain.Article, error) {
	return s.repo.GetByIDs(ctx, ids)
}

// CountBySource counts stored articles for one source.
func (s *Service) CountBySource(ctx context.Context, source string) (int, error) {
	return s.repo.CountBySource(ctx, source)
}

// ListSources returns the distinct sources present in the store.
func (s *Service) ListSources(ctx context.Context) ([]string, error) {
	return s.repo.ListSources(ctx)
}
