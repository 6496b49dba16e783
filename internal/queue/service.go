// Package queue implements the persistent URL work queue. Discovered URLs
// are deduplicated against both the queue and the article store, leased for
// processing, and retried a bounded number of times.
package queue

import (
	"context"
	"crypto/md5" //nolint:gosec // content fingerprint, not a security boundary
	"encoding/hex"
	"fmt"
	"time"

	"github.com/jonesrussell/newsflow/internal/database"
	"github.com/jonesrussell/newsflow/internal/domain"
	"github.com/jonesrussell/newsflow/internal/logger"
)

const (
	// DefaultStaleAfter is how long a lease may sit untouched before a new
	// tick reclaims it. There is no worker heartbeat, a quiet lease is a
	// dead lease.
	DefaultStaleAfter = 10 * time.Minute

	// maxErrorMessageLen bounds stored error messages.
	maxErrorMessageLen = 4096
)

// HashURL returns the 32-character hex digest used to deduplicate URLs
// across the queue and the article store.
func HashURL(url string) string {
	sum := md5.Sum([]byte(url)) //nolint:gosec // dedup key only
	return hex.EncodeToString(sum[:])
}

// Service coordinates queue operations across the pending_urls and
// news_articles tables.
type Service struct {
	urls       database.PendingURLRepositoryInterface
	articles   database.ArticleRepositoryInterface
	maxRetries int
	logger     logger.Logger
}

// NewService creates a queue service. maxRetries is stamped on every new
// queue row; zero means a single failure is terminal.
func NewService(
	urls database.PendingURLRepositoryInterface,
	articles database.ArticleRepositoryInterface,
	maxRetries int,
	log logger.Logger,
) *Service {
	return &Service{
		urls:       urls,
		articles:   articles,
		maxRetries: maxRetries,
		logger:     log,
	}
}

// AddURLs enqueues the URLs that are new to the system and returns how many
// were actually added. A URL already present in the queue or in the article
// store is skipped; duplicates within the input collapse to one.
func (s *Service) AddURLs(ctx context.Context, urls []string, source string) (int, error) {
	if len(urls) == 0 {
		return 0, nil
	}

	byHash := make(map[string]string, len(urls))
	hashes := make([]string, 0, len(urls))
	for _, u := range urls {
		if u == "" {
			continue
		}
		h := HashURL(u)
		if _, dup := byHash[h]; dup {
			continue
		}
		byHash[h] = u
		hashes = append(hashes, h)
	}
	if len(hashes) == 0 {
		return 0, nil
	}

	inArticles, err := s.articles.ExistingHashes(ctx, hashes)
	if err != nil {
		return 0, fmt.Errorf("failed to check article store: %w", err)
	}
	inQueue, err := s.urls.ExistingHashes(ctx, hashes)
	if err != nil {
		return 0, fmt.Errorf("failed to check queue: %w", err)
	}

	now := time.Now().UTC()
	survivors := make([]*domain.PendingURL, 0, len(hashes))
	for _, h := range hashes {
		if _, ok := inArticles[h]; ok {
			continue
		}
		if _, ok := inQueue[h]; ok {
			continue
		}
		survivors = append(survivors, &domain.PendingURL{
			URL:          byHash[h],
			URLHash:      h,
			Source:       source,
			Status:       domain.URLStatusPending,
			MaxRetries:   s.maxRetries,
			DiscoveredAt: now,
		})
	}

	added, err := s.urls.InsertBatch(ctx, survivors)
	if err != nil {
		return 0, err
	}

	s.logger.Info("urls enqueued",
		logger.String("source", source),
		logger.Int("discovered", len(urls)),
		logger.Int("added", added),
	)
	return added, nil
}

// LeaseURLs claims up to limit PENDING URLs for a source, oldest first,
// flipping them to PROCESSING. limit <= 0 means no limit.
func (s *Service) LeaseURLs(ctx context.Context, source string, limit int) ([]*domain.PendingURL, error) {
	return s.urls.Lease(ctx, source, limit)
}

// MarkCompleted finalizes a leased URL whose article was stored.
func (s *Service) MarkCompleted(ctx context.Context, id int64) error {
	return s.urls.MarkCompleted(ctx, id)
}

// MarkFailed records a failed attempt. The row returns to PENDING while
// retries remain and settles in FAILED once they are exhausted.
func (s *Service) MarkFailed(ctx context.Context, id int64, errMsg string) error {
	if len(errMsg) > maxErrorMessageLen {
		errMsg = errMsg[:maxErrorMessageLen]
	}
	return s.urls.MarkFailed(ctx, id, errMsg)
}

// ResetStaleProcessing reclaims PROCESSING rows whose lease went quiet for
// longer than olderThan, returning them to PENDING.
func (s *Service) ResetStaleProcessing(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	n, err := s.urls.ResetStale(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Warn("stale leases reclaimed",
			logger.Int("count", n),
			logger.Duration("older_than", olderThan),
		)
	}
	return n, nil
}

// ForceResetAllProcessing unconditionally returns PROCESSING rows to PENDING
// for one source, or globally when source is empty. Used at startup when no
// worker can legitimately hold a lease.
func (s *Service) ForceResetAllProcessing(ctx context.Context, source string) (int, error) {
	n, err := s.urls.ForceResetProcessing(ctx, source)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("processing urls force reset",
			logger.String("source", source),
			logger.Int("count", n),
		)
	}
	return n, nil
}

// Stats returns queue depth per status for one source, or globally when
// source is empty.
func (s *Service) Stats(ctx context.Context, source string) (*domain.QueueStats, error) {
	return s.urls.Stats(ctx, source)
}
