package queue_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/newsflow/internal/database"
	"github.com/jonesrussell/newsflow/internal/domain"
	"github.com/jonesrussell/newsflow/internal/logger"
	"github.com/jonesrussell/newsflow/internal/queue"
)

type fakeURLRepo struct {
	database.PendingURLRepositoryInterface

	existing    map[string]struct{}
	inserted    []*domain.PendingURL
	failedMsgs  map[int64]string
	completed   []int64
	resetCutoff time.Time
	forceSource *string
}

func (f *fakeURLRepo) ExistingHashes(_ context.Context, hashes []string) (map[string]struct{}, error) {
	found := make(map[string]struct{})
	for _, h := range hashes {
		if _, ok := f.existing[h]; ok {
			found[h] = struct{}{}
		}
	}
	return found, nil
}

func (f *fakeURLRepo) InsertBatch(_ context.Context, urls []*domain.PendingURL) (int, error) {
	f.inserted = append(f.inserted, urls...)
	return len(urls), nil
}

func (f *fakeURLRepo) MarkCompleted(_ context.Context, id int64) error {
	f.completed = append(f.completed, id)
	return nil
}

func (f *fakeURLRepo) MarkFailed(_ context.Context, id int64, message string) error {
	if f.failedMsgs == nil {
		f.failedMsgs = make(map[int64]string)
	}
	f.failedMsgs[id] = message
	return nil
}

func (f *fakeURLRepo) ResetStale(_ context.Context, cutoff time.Time) (int, error) {
	f.resetCutoff = cutoff
	return 1, nil
}

func (f *fakeURLRepo) ForceResetProcessing(_ context.Context, source string) (int, error) {
	f.forceSource = &source
	return 2, nil
}

type fakeArticleRepo struct {
	database.ArticleRepositoryInterface

	existing map[string]struct{}
}

func (f *fakeArticleRepo) ExistingHashes(_ context.Context, hashes []string) (map[string]struct{}, error) {
	found := make(map[string]struct{})
	for _, h := range hashes {
		if _, ok := f.existing[h]; ok {
			found[h] = struct{}{}
		}
	}
	return found, nil
}

func TestHashURL(t *testing.T) {
	h := queue.HashURL("https://example.com/news/1")

	assert.Len(t, h, 32)
	assert.Equal(t, h, queue.HashURL("https://example.com/news/1"))
	assert.NotEqual(t, h, queue.HashURL("https://example.com/news/2"))
}

func TestAddURLsDeduplicates(t *testing.T) {
	inQueue := queue.HashURL("https://example.com/a")
	inStore := queue.HashURL("https://example.com/b")

	urlRepo := &fakeURLRepo{existing: map[string]struct{}{inQueue: {}}}
	artRepo := &fakeArticleRepo{existing: map[string]struct{}{inStore: {}}}
	svc := queue.NewService(urlRepo, artRepo, 3, logger.NewNop())

	added, err := svc.AddURLs(context.Background(), []string{
		"https://example.com/a", // already queued
		"https://example.com/b", // already stored
		"https://example.com/c", // new
		"https://example.com/c", // duplicate within input
		"",                      // dropped
	}, "example")
	require.NoError(t, err)

	assert.Equal(t, 1, added)
	require.Len(t, urlRepo.inserted, 1)
	row := urlRepo.inserted[0]
	assert.Equal(t, "https://example.com/c", row.URL)
	assert.Equal(t, queue.HashURL(row.URL), row.URLHash)
	assert.Equal(t, "example", row.Source)
	assert.Equal(t, domain.URLStatusPending, row.Status)
	assert.Equal(t, 3, row.MaxRetries)
	assert.False(t, row.DiscoveredAt.IsZero())
}

func TestAddURLsAllKnownReturnsZero(t *testing.T) {
	h := queue.HashURL("https://example.com/a")
	urlRepo := &fakeURLRepo{existing: map[string]struct{}{h: {}}}
	svc := queue.NewService(urlRepo, &fakeArticleRepo{}, 3, logger.NewNop())

	added, err := svc.AddURLs(context.Background(), []string{"https://example.com/a"}, "example")
	require.NoError(t, err)

	assert.Zero(t, added)
	assert.Empty(t, urlRepo.inserted)
}

func TestMarkFailedTruncatesMessage(t *testing.T) {
	urlRepo := &fakeURLRepo{}
	svc := queue.NewService(urlRepo, &fakeArticleRepo{}, 3, logger.NewNop())

	long := strings.Repeat("x", 5000)
	require.NoError(t, svc.MarkFailed(context.Background(), 7, long))

	assert.Len(t, urlRepo.failedMsgs[7], 4096)
}

func TestResetStaleProcessingCutoff(t *testing.T) {
	urlRepo := &fakeURLRepo{}
	svc := queue.NewService(urlRepo, &fakeArticleRepo{}, 3, logger.NewNop())

	before := time.Now().UTC().Add(-10 * time.Minute)
	n, err := svc.ResetStaleProcessing(context.Background(), 10*time.Minute)
	require.NoError(t, err)
	after := time.Now().UTC().Add(-10 * time.Minute)

	assert.Equal(t, 1, n)
	assert.False(t, urlRepo.resetCutoff.Before(before))
	assert.False(t, urlRepo.resetCutoff.After(after))
}

func TestForceResetAllProcessingGlobal(t *testing.T) {
	urlRepo := &fakeURLRepo{}
	svc := queue.NewService(urlRepo, &fakeArticleRepo{}, 3, logger.NewNop())

	n, err := svc.ForceResetAllProcessing(context.Background(), "")
	require.NoError(t, err)

	assert.Equal(t, 2, n)
	require.NotNil(t, urlRepo.forceSource)
	assert.Empty(t, *urlRepo.forceSource)
}
