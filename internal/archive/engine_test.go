package archive_test

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/newsflow/internal/archive"
	"github.com/jonesrussell/newsflow/internal/config"
	"github.com/jonesrussell/newsflow/internal/database"
	"github.com/jonesrussell/newsflow/internal/domain"
	"github.com/jonesrussell/newsflow/internal/logger"
)

type fakeArticleRepo struct {
	database.ArticleRepositoryInterface

	candidates []*database.ArchiveCandidate
	archived   map[int64]struct{}
	sources    []string
	liveCount  int
}

func (f *fakeArticleRepo) ListArchivable(
	_ context.Context, _ string, _, _ *time.Time, limit int,
) ([]*database.ArchiveCandidate, error) {
	out := []*database.ArchiveCandidate{}
	for _, c := range f.candidates {
		if _, done := f.archived[c.ID]; done {
			continue
		}
		out = append(out, c)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeArticleRepo) ListSources(_ context.Context) ([]string, error) {
	return f.sources, nil
}

func (f *fakeArticleRepo) CountWithRawHTML(_ context.Context, _ string) (int, error) {
	return f.liveCount, nil
}

type fakeArchiveRepo struct {
	database.ArchiveRepositoryInterface

	articles *fakeArticleRepo
	records  map[int64]*domain.ArchiveRecord
	restored map[int64]string
	stats    *database.SourceStats
}

func newFakeArchiveRepo(articles *fakeArticleRepo) *fakeArchiveRepo {
	return &fakeArchiveRepo{
		articles: articles,
		records:  make(map[int64]*domain.ArchiveRecord),
		restored: make(map[int64]string),
	}
}

func (f *fakeArchiveRepo) ArchiveBatch(_ context.Context, records []*domain.ArchiveRecord) error {
	for _, rec := range records {
		rec.Status = domain.ArchiveStatusArchived
		f.records[rec.ArticleID] = rec
		f.articles.archived[rec.ArticleID] = struct{}{}
	}
	return nil
}

func (f *fakeArchiveRepo) RestoreBatch(_ context.Context, htmlByArticle map[int64]string) error {
	for id, html := range htmlByArticle {
		f.restored[id] = html
		if rec, ok := f.records[id]; ok {
			rec.Status = domain.ArchiveStatusActive
		}
	}
	return nil
}

func (f *fakeArchiveRepo) GetByArticleID(_ context.Context, articleID int64) (*domain.ArchiveRecord, error) {
	rec, ok := f.records[articleID]
	if !ok {
		return nil, fmt.Errorf("archive record not found: %d", articleID)
	}
	return rec, nil
}

func (f *fakeArchiveRepo) ListByArticleIDs(_ context.Context, ids []int64) ([]*domain.ArchiveRecord, error) {
	out := []*domain.ArchiveRecord{}
	for _, id := range ids {
		if rec, ok := f.records[id]; ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (f *fakeArchiveRepo) StatsBySource(_ context.Context, source string) (*database.SourceStats, error) {
	if f.stats != nil {
		return f.stats, nil
	}
	return &database.SourceStats{Source: source}, nil
}

func candidateSet(n int) []*database.ArchiveCandidate {
	out := make([]*database.ArchiveCandidate, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, &database.ArchiveCandidate{
			ID:      int64(i),
			URLHash: fmt.Sprintf("hash%02d", i),
			RawHTML: fmt.Sprintf("<html>article %d</html>", i),
		})
	}
	return out
}

func newTestEngine(t *testing.T, basePath, compression string, batchSize int,
	articles *fakeArticleRepo, records *fakeArchiveRepo,
) *archive.Engine {
	t.Helper()
	engine, err := archive.NewEngine(articles, records, config.ArchiveConfig{
		BasePath:    basePath,
		BatchSize:   batchSize,
		Compression: compression,
	}, logger.NewNop())
	require.NoError(t, err)
	return engine
}

func TestArchiveSourceWritesBatchesAndManifest(t *testing.T) {
	base := t.TempDir()
	articles := &fakeArticleRepo{candidates: candidateSet(5), archived: map[int64]struct{}{}}
	records := newFakeArchiveRepo(articles)
	engine := newTestEngine(t, base, "gzip", 2, articles, records)

	report, err := engine.ArchiveSource(context.Background(), "setn", archive.AllTime())
	require.NoError(t, err)

	assert.Equal(t, 5, report.ArchivedCount)
	require.Len(t, report.BatchFiles, 3)
	assert.Len(t, records.records, 5)

	month := time.Now().UTC().Format("2006-01")
	dir := filepath.Join(base, "raw_html", "setn", month)
	for i, name := range []string{"batch_001.json.gz", "batch_002.json.gz", "batch_003.json.gz"} {
		assert.Equal(t, filepath.Join(dir, name), report.BatchFiles[i])
		assert.FileExists(t, filepath.Join(dir, name))
	}

	data, err := os.ReadFile(filepath.Join(dir, "manifest.json"))
	require.NoError(t, err)
	var manifest archive.Manifest
	require.NoError(t, json.Unmarshal(data, &manifest))
	assert.Equal(t, "setn", manifest.Source)
	assert.Equal(t, month, manifest.Month)
	require.Len(t, manifest.Batches, 3)
	assert.Equal(t, []int64{1, 2}, manifest.Batches[0].ArticleIDs)
	assert.Equal(t, 2, manifest.Batches[0].Count)
	assert.Equal(t, []int64{5}, manifest.Batches[2].ArticleIDs)
}

func TestArchiveSourceIsAdditive(t *testing.T) {
	base := t.TempDir()
	articles := &fakeArticleRepo{candidates: candidateSet(2), archived: map[int64]struct{}{}}
	records := newFakeArchiveRepo(articles)
	engine := newTestEngine(t, base, "gzip", 10, articles, records)

	_, err := engine.ArchiveSource(context.Background(), "setn", archive.AllTime())
	require.NoError(t, err)

	// A second run with new candidates continues the numbering instead of
	// touching batch_001.
	month := time.Now().UTC().Format("2006-01")
	first := filepath.Join(base, "raw_html", "setn", month, "batch_001.json.gz")
	before, err := os.ReadFile(first)
	require.NoError(t, err)

	articles.candidates = append(articles.candidates, &database.ArchiveCandidate{
		ID: 99, URLHash: "hash99", RawHTML: "<html>late</html>",
	})
	report, err := engine.ArchiveSource(context.Background(), "setn", archive.AllTime())
	require.NoError(t, err)
	require.Len(t, report.BatchFiles, 1)
	assert.Contains(t, report.BatchFiles[0], "batch_002.json.gz")

	after, err := os.ReadFile(first)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestArchiveGzipRoundTrip(t *testing.T) {
	base := t.TempDir()
	articles := &fakeArticleRepo{candidates: candidateSet(3), archived: map[int64]struct{}{}}
	records := newFakeArchiveRepo(articles)
	engine := newTestEngine(t, base, "gzip", 10, articles, records)

	report, err := engine.ArchiveSource(context.Background(), "setn", archive.AllTime())
	require.NoError(t, err)
	require.Len(t, report.BatchFiles, 1)

	f, err := os.Open(report.BatchFiles[0])
	require.NoError(t, err)
	defer f.Close()
	gr, err := gzip.NewReader(f)
	require.NoError(t, err)
	var payload struct {
		Articles []struct {
			ArticleID int64  `json:"article_id"`
			URLHash   string `json:"url_hash"`
			RawHTML   string `json:"raw_html"`
		} `json:"articles"`
	}
	require.NoError(t, json.NewDecoder(gr).Decode(&payload))
	require.Len(t, payload.Articles, 3)
	assert.Equal(t, "<html>article 2</html>", payload.Articles[1].RawHTML)

	html, err := engine.RawHTMLFromArchive(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, "<html>article 3</html>", html)
}

func TestArchivePlainJSONCodec(t *testing.T) {
	base := t.TempDir()
	articles := &fakeArticleRepo{candidates: candidateSet(1), archived: map[int64]struct{}{}}
	records := newFakeArchiveRepo(articles)
	engine := newTestEngine(t, base, "none", 10, articles, records)

	report, err := engine.ArchiveSource(context.Background(), "setn", archive.AllTime())
	require.NoError(t, err)
	require.Len(t, report.BatchFiles, 1)
	assert.Contains(t, report.BatchFiles[0], "batch_001.json")
	assert.NotContains(t, report.BatchFiles[0], ".gz")

	html, err := engine.RawHTMLFromArchive(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "<html>article 1</html>", html)
}

func TestRestoreGroupsByFileAndReportsMissing(t *testing.T) {
	base := t.TempDir()
	articles := &fakeArticleRepo{candidates: candidateSet(4), archived: map[int64]struct{}{}}
	records := newFakeArchiveRepo(articles)
	engine := newTestEngine(t, base, "gzip", 2, articles, records)

	_, err := engine.ArchiveSource(context.Background(), "setn", archive.AllTime())
	require.NoError(t, err)

	report, err := engine.Restore(context.Background(), []int64{1, 3, 777})
	require.NoError(t, err)

	assert.Equal(t, 2, report.RestoredCount)
	assert.Equal(t, []int64{777}, report.FailedIDs)
	assert.Equal(t, "<html>article 1</html>", records.restored[1])
	assert.Equal(t, "<html>article 3</html>", records.restored[3])
	assert.Equal(t, domain.ArchiveStatusActive, records.records[1].Status)
	assert.Equal(t, domain.ArchiveStatusArchived, records.records[2].Status)
}

func TestRestoreSkipsAlreadyActive(t *testing.T) {
	base := t.TempDir()
	articles := &fakeArticleRepo{candidates: candidateSet(1), archived: map[int64]struct{}{}}
	records := newFakeArchiveRepo(articles)
	engine := newTestEngine(t, base, "gzip", 10, articles, records)

	_, err := engine.ArchiveSource(context.Background(), "setn", archive.AllTime())
	require.NoError(t, err)

	_, err = engine.Restore(context.Background(), []int64{1})
	require.NoError(t, err)

	report, err := engine.Restore(context.Background(), []int64{1})
	require.NoError(t, err)
	assert.Equal(t, 0, report.RestoredCount)
	assert.Equal(t, 1, report.SkippedCount)
}

func TestInfoInventoriesTree(t *testing.T) {
	base := t.TempDir()
	articles := &fakeArticleRepo{candidates: candidateSet(3), archived: map[int64]struct{}{}}
	records := newFakeArchiveRepo(articles)
	engine := newTestEngine(t, base, "gzip", 2, articles, records)

	_, err := engine.ArchiveSource(context.Background(), "setn", archive.AllTime())
	require.NoError(t, err)

	info, err := engine.Info(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, info.TotalBatches)
	require.Len(t, info.Sources, 1)
	assert.Equal(t, "setn", info.Sources[0].Source)
	require.Len(t, info.Sources[0].Months, 1)
	assert.True(t, info.Sources[0].Months[0].HasManifest)
	assert.Positive(t, info.Sources[0].Months[0].TotalBytes)
}

func TestInfoEmptyTree(t *testing.T) {
	articles := &fakeArticleRepo{archived: map[int64]struct{}{}}
	records := newFakeArchiveRepo(articles)
	engine := newTestEngine(t, t.TempDir(), "gzip", 2, articles, records)

	info, err := engine.Info(context.Background())
	require.NoError(t, err)
	assert.Zero(t, info.TotalBatches)
	assert.Empty(t, info.Sources)
}

func TestSourceStatistics(t *testing.T) {
	articles := &fakeArticleRepo{archived: map[int64]struct{}{}, liveCount: 12}
	records := newFakeArchiveRepo(articles)
	last := time.Date(2026, 8, 1, 3, 0, 0, 0, time.UTC)
	records.stats = &database.SourceStats{
		Source:         "setn",
		ArchivedCount:  40,
		RestoredCount:  2,
		OriginalBytes:  4096,
		CompressedSize: 512,
		LastArchivedAt: &last,
	}
	engine := newTestEngine(t, t.TempDir(), "gzip", 2, articles, records)

	stats, err := engine.SourceStatistics(context.Background(), "setn")
	require.NoError(t, err)
	assert.Equal(t, 12, stats.LiveCount)
	assert.Equal(t, 40, stats.ArchivedCount)
	assert.Equal(t, int64(512), stats.CompressedBytes)
	assert.Equal(t, &last, stats.LastArchivedAt)
}
