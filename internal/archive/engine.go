// Package archive moves raw article HTML into append-only batch files on
// disk and restores it on demand. Batch files are never rewritten; every
// finalized batch is recorded in a per-month manifest.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/jonesrussell/newsflow/internal/config"
	"github.com/jonesrussell/newsflow/internal/database"
	"github.com/jonesrussell/newsflow/internal/domain"
	"github.com/jonesrussell/newsflow/internal/logger"
)

const rawHTMLDir = "raw_html"

var batchFilePattern = regexp.MustCompile(`^batch_(\d+)\.json(\.gz)?$`)

// DatePredicate selects which crawl dates a run archives.
type DatePredicate struct {
	before *time.Time
	target *time.Time
}

// Before archives everything crawled strictly before t.
func Before(t time.Time) DatePredicate {
	t = t.UTC()
	return DatePredicate{before: &t}
}

// OnDay archives everything crawled on the given day. The day boundary is
// taken in day's own location.
func OnDay(day time.Time) DatePredicate {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	return DatePredicate{target: &start}
}

// AllTime archives every candidate regardless of crawl date.
func AllTime() DatePredicate {
	return DatePredicate{}
}

// window returns the crawled_at half-open interval the predicate covers.
func (p DatePredicate) window() (from, to *time.Time) {
	if p.target != nil {
		end := p.target.AddDate(0, 0, 1)
		return p.target, &end
	}
	return nil, p.before
}

// monthDir names the YYYY-MM directory batches land in.
func (p DatePredicate) monthDir(now time.Time) string {
	if p.target != nil {
		return p.target.Format("2006-01")
	}
	return now.UTC().Format("2006-01")
}

// batchArticle is one article inside a batch file.
type batchArticle struct {
	ArticleID int64  `json:"article_id"`
	URLHash   string `json:"url_hash"`
	RawHTML   string `json:"raw_html"`
}

// batchPayload is the batch file's JSON shape.
type batchPayload struct {
	Articles []batchArticle `json:"articles"`
}

// ArchiveReport summarizes one ArchiveSource run.
type ArchiveReport struct {
	Source          string   `json:"source"`
	ArchivedCount   int      `json:"archived_count"`
	BatchFiles      []string `json:"batch_files"`
	OriginalBytes   int64    `json:"original_bytes"`
	CompressedBytes int64    `json:"compressed_bytes"`
}

// RestoreReport summarizes one Restore run.
type RestoreReport struct {
	RestoredCount int     `json:"restored_count"`
	SkippedCount  int     `json:"skipped_count"`
	FailedIDs     []int64 `json:"failed_ids,omitempty"`
}

// Engine is the cold storage engine.
type Engine struct {
	articles database.ArticleRepositoryInterface
	records  database.ArchiveRepositoryInterface
	cfg      config.ArchiveConfig
	codec    *codec
	logger   logger.Logger
}

// NewEngine creates the archive engine.
func NewEngine(
	articles database.ArticleRepositoryInterface,
	records database.ArchiveRepositoryInterface,
	cfg config.ArchiveConfig,
	log logger.Logger,
) (*Engine, error) {
	if cfg.BasePath == "" {
		return nil, fmt.Errorf("archive base path is empty")
	}
	if cfg.BatchSize < 1 {
		return nil, fmt.Errorf("archive batch size must be >= 1, got %d", cfg.BatchSize)
	}
	c, err := newCodec(cfg.Compression)
	if err != nil {
		return nil, err
	}
	return &Engine{articles: articles, records: records, cfg: cfg, codec: c, logger: log}, nil
}

// ArchiveSource drains a source's archivable raw HTML into batch files. Each
// batch is finalized independently: file write, one DB transaction, manifest
// append. A failure stops the run but already finalized batches stand.
func (e *Engine) ArchiveSource(ctx context.Context, source string, pred DatePredicate) (*ArchiveReport, error) {
	report := &ArchiveReport{Source: source}
	from, to := pred.window()

	dir := filepath.Join(e.cfg.BasePath, rawHTMLDir, source, pred.monthDir(time.Now()))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return report, fmt.Errorf("failed to create archive directory: %w", err)
	}
	batchNum, err := nextBatchNumber(dir)
	if err != nil {
		return report, err
	}

	for {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		candidates, err := e.articles.ListArchivable(ctx, source, from, to, e.cfg.BatchSize)
		if err != nil {
			return report, fmt.Errorf("failed to list archive candidates: %w", err)
		}
		if len(candidates) == 0 {
			return report, nil
		}

		filename := fmt.Sprintf("batch_%03d%s", batchNum, e.codec.ext())
		path := filepath.Join(dir, filename)
		if err := e.finalizeBatch(ctx, source, dir, path, filename, pred, candidates, report); err != nil {
			return report, err
		}
		batchNum++
	}
}

// finalizeBatch writes one batch file, commits its records, and appends the
// manifest entry.
func (e *Engine) finalizeBatch(
	ctx context.Context,
	source, dir, path, filename string,
	pred DatePredicate,
	candidates []*database.ArchiveCandidate,
	report *ArchiveReport,
) error {
	payload := batchPayload{Articles: make([]batchArticle, 0, len(candidates))}
	ids := make([]int64, 0, len(candidates))
	var originalBytes int64
	for _, cand := range candidates {
		payload.Articles = append(payload.Articles, batchArticle{
			ArticleID: cand.ID,
			URLHash:   cand.URLHash,
			RawHTML:   cand.RawHTML,
		})
		ids = append(ids, cand.ID)
		originalBytes += int64(len(cand.RawHTML))
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal batch: %w", err)
	}
	fileSize, err := e.codec.write(path, data)
	if err != nil {
		return err
	}

	perArticle := fileSize / int64(len(candidates))
	records := make([]*domain.ArchiveRecord, 0, len(candidates))
	for _, cand := range candidates {
		size := perArticle
		p := path
		records = append(records, &domain.ArchiveRecord{
			ArticleID:      cand.ID,
			Source:         source,
			ArchivePath:    &p,
			OriginalSize:   int64(len(cand.RawHTML)),
			CompressedSize: &size,
		})
	}
	if err := e.records.ArchiveBatch(ctx, records); err != nil {
		return err
	}
	if err := appendManifest(dir, source, pred.monthDir(time.Now()), filename, ids); err != nil {
		return err
	}

	report.ArchivedCount += len(candidates)
	report.BatchFiles = append(report.BatchFiles, path)
	report.OriginalBytes += originalBytes
	report.CompressedBytes += fileSize

	e.logger.Info("batch archived",
		logger.String("source", source),
		logger.String("file", filename),
		logger.Int("articles", len(candidates)),
	)
	return nil
}

// ArchiveAllSources runs ArchiveSource for every known source. A failing
// source is logged and skipped.
func (e *Engine) ArchiveAllSources(ctx context.Context, pred DatePredicate) ([]*ArchiveReport, error) {
	sources, err := e.articles.ListSources(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}

	reports := make([]*ArchiveReport, 0, len(sources))
	for _, source := range sources {
		report, err := e.ArchiveSource(ctx, source, pred)
		if err != nil {
			e.logger.Error("source archive failed",
				logger.String("source", source),
				logger.Error(err),
			)
			continue
		}
		reports = append(reports, report)
	}
	return reports, nil
}

// Restore brings archived raw HTML back into the database. Each batch file
// is opened once regardless of how many requested articles it holds.
func (e *Engine) Restore(ctx context.Context, articleIDs []int64) (*RestoreReport, error) {
	report := &RestoreReport{}
	if len(articleIDs) == 0 {
		return report, nil
	}

	records, err := e.records.ListByArticleIDs(ctx, articleIDs)
	if err != nil {
		return report, err
	}
	byID := make(map[int64]*domain.ArchiveRecord, len(records))
	for _, rec := range records {
		byID[rec.ArticleID] = rec
	}

	wantedByPath := make(map[string][]int64)
	for _, id := range articleIDs {
		rec, ok := byID[id]
		switch {
		case !ok || rec.ArchivePath == nil:
			report.FailedIDs = append(report.FailedIDs, id)
		case rec.Status == domain.ArchiveStatusActive:
			report.SkippedCount++
		default:
			wantedByPath[*rec.ArchivePath] = append(wantedByPath[*rec.ArchivePath], id)
		}
	}

	for path, wanted := range wantedByPath {
		htmlByArticle, missing, err := e.readBatchFor(path, wanted)
		if err != nil {
			e.logger.Error("batch file unreadable",
				logger.String("path", path),
				logger.Error(err),
			)
			report.FailedIDs = append(report.FailedIDs, wanted...)
			continue
		}
		report.FailedIDs = append(report.FailedIDs, missing...)

		if err := e.records.RestoreBatch(ctx, htmlByArticle); err != nil {
			return report, err
		}
		report.RestoredCount += len(htmlByArticle)
	}

	sort.Slice(report.FailedIDs, func(i, j int) bool { return report.FailedIDs[i] < report.FailedIDs[j] })
	return report, nil
}

// readBatchFor extracts the wanted articles from one batch file.
func (e *Engine) readBatchFor(path string, wanted []int64) (map[int64]string, []int64, error) {
	data, err := e.codec.read(path)
	if err != nil {
		return nil, nil, err
	}
	var payload batchPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, nil, fmt.Errorf("failed to parse batch file: %w", err)
	}

	inFile := make(map[int64]string, len(payload.Articles))
	for _, a := range payload.Articles {
		inFile[a.ArticleID] = a.RawHTML
	}

	htmlByArticle := make(map[int64]string, len(wanted))
	var missing []int64
	for _, id := range wanted {
		html, ok := inFile[id]
		if !ok {
			missing = append(missing, id)
			continue
		}
		htmlByArticle[id] = html
	}
	return htmlByArticle, missing, nil
}

// RawHTMLFromArchive reads one article's raw HTML straight from its batch
// file without touching the database copy.
func (e *Engine) RawHTMLFromArchive(ctx context.Context, articleID int64) (string, error) {
	rec, err := e.records.GetByArticleID(ctx, articleID)
	if err != nil {
		return "", err
	}
	if rec.ArchivePath == nil {
		return "", fmt.Errorf("archive record %d has no batch file", articleID)
	}

	data, err := e.codec.read(*rec.ArchivePath)
	if err != nil {
		return "", err
	}
	var payload batchPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return "", fmt.Errorf("failed to parse batch file: %w", err)
	}
	for _, a := range payload.Articles {
		if a.ArticleID == articleID {
			return a.RawHTML, nil
		}
	}
	return "", fmt.Errorf("article %d not found in %s", articleID, *rec.ArchivePath)
}

// SourceStatistics combines archive record aggregates with the count of
// articles whose raw HTML still lives in the database.
type SourceStatistics struct {
	Source          string     `json:"source"`
	LiveCount       int        `json:"live_count"`
	ArchivedCount   int        `json:"archived_count"`
	RestoredCount   int        `json:"restored_count"`
	OriginalBytes   int64      `json:"original_bytes"`
	CompressedBytes int64      `json:"compressed_bytes"`
	LastArchivedAt  *time.Time `json:"last_archived_at,omitempty"`
}

// SourceStatistics reports live vs archived volume for one source.
func (e *Engine) SourceStatistics(ctx context.Context, source string) (*SourceStatistics, error) {
	stats, err := e.records.StatsBySource(ctx, source)
	if err != nil {
		return nil, err
	}
	live, err := e.articles.CountWithRawHTML(ctx, source)
	if err != nil {
		return nil, err
	}

	return &SourceStatistics{
		Source:          source,
		LiveCount:       live,
		ArchivedCount:   stats.ArchivedCount,
		RestoredCount:   stats.RestoredCount,
		OriginalBytes:   stats.OriginalBytes,
		CompressedBytes: stats.CompressedSize,
		LastArchivedAt:  stats.LastArchivedAt,
	}, nil
}

// MonthInfo is the on-disk inventory of one source month.
type MonthInfo struct {
	Month       string `json:"month"`
	BatchCount  int    `json:"batch_count"`
	TotalBytes  int64  `json:"total_bytes"`
	HasManifest bool   `json:"has_manifest"`
}

// SourceInfo is the on-disk inventory of one source.
type SourceInfo struct {
	Source string      `json:"source"`
	Months []MonthInfo `json:"months"`
}

// Info is the on-disk inventory of the whole archive tree.
type Info struct {
	BasePath     string       `json:"base_path"`
	TotalBatches int          `json:"total_batches"`
	TotalBytes   int64        `json:"total_bytes"`
	Sources      []SourceInfo `json:"sources"`
}

// Info walks the archive tree and inventories every batch file.
func (e *Engine) Info(_ context.Context) (*Info, error) {
	info := &Info{BasePath: e.cfg.BasePath}
	root := filepath.Join(e.cfg.BasePath, rawHTMLDir)

	sourceDirs, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return info, nil
		}
		return nil, fmt.Errorf("failed to read archive tree: %w", err)
	}

	for _, sd := range sourceDirs {
		if !sd.IsDir() {
			continue
		}
		src := SourceInfo{Source: sd.Name()}

		monthDirs, err := os.ReadDir(filepath.Join(root, sd.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read source directory: %w", err)
		}
		for _, md := range monthDirs {
			if !md.IsDir() {
				continue
			}
			month, err := inventoryMonth(filepath.Join(root, sd.Name(), md.Name()), md.Name())
			if err != nil {
				return nil, err
			}
			src.Months = append(src.Months, *month)
			info.TotalBatches += month.BatchCount
			info.TotalBytes += month.TotalBytes
		}
		info.Sources = append(info.Sources, src)
	}
	return info, nil
}

func inventoryMonth(dir, month string) (*MonthInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read month directory: %w", err)
	}

	info := &MonthInfo{Month: month}
	for _, entry := range entries {
		if entry.Name() == manifestFilename {
			info.HasManifest = true
			continue
		}
		if !batchFilePattern.MatchString(entry.Name()) {
			continue
		}
		fi, err := entry.Info()
		if err != nil {
			return nil, fmt.Errorf("failed to stat batch file: %w", err)
		}
		info.BatchCount++
		info.TotalBytes += fi.Size()
	}
	return info, nil
}

// nextBatchNumber scans the month directory and returns max existing + 1.
func nextBatchNumber(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("failed to scan archive directory: %w", err)
	}

	maxNum := 0
	for _, entry := range entries {
		m := batchFilePattern.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if n > maxNum {
			maxNum = n
		}
	}
	return maxNum + 1, nil
}
