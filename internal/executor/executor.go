// Package executor runs one crawler's scheduled tick: list crawlers feed the
// URL queue, article crawlers drain their lease and store articles. Every
// tick's outcome lands on the crawler's config row.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonesrussell/newsflow/internal/crawl"
	"github.com/jonesrussell/newsflow/internal/database"
	"github.com/jonesrussell/newsflow/internal/domain"
	"github.com/jonesrussell/newsflow/internal/logger"
	"github.com/jonesrussell/newsflow/internal/logs"
	"github.com/jonesrussell/newsflow/internal/metrics"
	"github.com/jonesrussell/newsflow/internal/queue"
)

const maxErrorLogLen = 4096

// URLQueue is the slice of the queue service the executor needs.
type URLQueue interface {
	AddURLs(ctx context.Context, urls []string, source string) (int, error)
	LeaseURLs(ctx context.Context, source string, limit int) ([]*domain.PendingURL, error)
	MarkCompleted(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64, errMsg string) error
	ResetStaleProcessing(ctx context.Context, olderThan time.Duration) (int, error)
	ForceResetAllProcessing(ctx context.Context, source string) (int, error)
}

// ArticleStore is the slice of the article service the executor needs.
type ArticleStore interface {
	Save(ctx context.Context, a *domain.Article) error
}

// Executor drives one crawl tick end to end.
type Executor struct {
	registry  *crawl.Registry
	configs   database.CrawlerConfigRepositoryInterface
	queue     URLQueue
	articles  ArticleStore
	publisher logs.Publisher
	metrics   *metrics.Metrics
	logger    logger.Logger

	batchSize  int
	staleAfter time.Duration
	nextRun    func(crawlerName string) *time.Time
}

// New creates an executor. publisher and m may be nil.
func New(
	registry *crawl.Registry,
	configs database.CrawlerConfigRepositoryInterface,
	urlQueue URLQueue,
	articles ArticleStore,
	publisher logs.Publisher,
	m *metrics.Metrics,
	batchSize int,
	log logger.Logger,
) *Executor {
	if publisher == nil {
		publisher = logs.NewNop()
	}
	if m == nil {
		m = metrics.New()
	}
	if batchSize < 1 {
		batchSize = 1
	}
	return &Executor{
		registry:   registry,
		configs:    configs,
		queue:      urlQueue,
		articles:   articles,
		publisher:  publisher,
		metrics:    m,
		logger:     log,
		batchSize:  batchSize,
		staleAfter: queue.DefaultStaleAfter,
	}
}

// SetNextRunFunc wires the scheduler's next-fire lookup so tick results can
// record when the crawler runs again. Call before the scheduler starts.
func (e *Executor) SetNextRunFunc(fn func(crawlerName string) *time.Time) {
	e.nextRun = fn
}

// Execute runs one tick for the named crawler.
func (e *Executor) Execute(ctx context.Context, crawlerName string) error {
	cfg, err := e.configs.GetByName(ctx, crawlerName)
	if err != nil {
		return err
	}
	c, err := e.registry.Get(crawlerName)
	if err != nil {
		return err
	}

	if err := e.configs.MarkRunning(ctx, crawlerName); err != nil {
		return err
	}
	e.metrics.SetCurrentSource(c.Source())
	e.publish(ctx, crawlerName, "info", "execution started", nil)

	runCtx, cancel := context.WithTimeout(ctx, time.Duration(cfg.TimeoutSeconds)*time.Second)
	defer cancel()

	start := time.Now()
	items, runErr := e.run(runCtx, c)

	return e.finish(ctx, cfg, items, time.Since(start), runErr)
}

// run dispatches on the crawler's capability.
func (e *Executor) run(ctx context.Context, c crawl.Crawler) (int, error) {
	switch c.Kind() {
	case domain.KindList:
		lc, ok := c.(crawl.ListCrawler)
		if !ok {
			return 0, fmt.Errorf("crawler %s does not implement list crawling", c.Name())
		}
		return e.runList(ctx, lc)
	case domain.KindArticle:
		ac, ok := c.(crawl.ArticleCrawler)
		if !ok {
			return 0, fmt.Errorf("crawler %s does not implement article crawling", c.Name())
		}
		return e.runArticle(ctx, ac)
	default:
		return 0, fmt.Errorf("unknown crawler kind: %s", c.Kind())
	}
}

// runList discovers URLs and feeds the queue. Items = newly queued URLs.
func (e *Executor) runList(ctx context.Context, lc crawl.ListCrawler) (int, error) {
	urls, err := lc.FetchURLs(ctx)
	if err != nil {
		return 0, err
	}

	added, err := e.queue.AddURLs(ctx, urls, lc.Source())
	if err != nil {
		return 0, err
	}
	e.logger.Info("list tick finished",
		logger.String("crawler", lc.Name()),
		logger.Int("discovered", len(urls)),
		logger.Int("queued", added),
	)
	return added, nil
}

// runArticle drains one lease of queued URLs. Per-article failures mark the
// lease entry failed and never abort the tick. Items = stored articles.
func (e *Executor) runArticle(ctx context.Context, ac crawl.ArticleCrawler) (int, error) {
	if _, err := e.queue.ResetStaleProcessing(ctx, e.staleAfter); err != nil {
		return 0, err
	}

	leased, err := e.queue.LeaseURLs(ctx, ac.Source(), e.batchSize)
	if err != nil {
		return 0, err
	}
	if len(leased) == 0 {
		return 0, nil
	}

	leaseByURL := make(map[string]int64, len(leased))
	urls := make([]string, 0, len(leased))
	for _, p := range leased {
		leaseByURL[p.URL] = p.ID
		urls = append(urls, p.URL)
	}

	result, err := ac.FetchArticles(ctx, urls)
	if err != nil {
		return 0, err
	}

	stored := 0
	for _, data := range result.Articles {
		leaseID, ok := leaseByURL[data.URL]
		if !ok {
			continue
		}
		article := data.ToArticle(ac.Source(), ac.Name())
		if saveErr := e.articles.Save(ctx, article); saveErr != nil {
			e.markFailed(ctx, leaseID, data.URL, saveErr.Error())
			continue
		}
		if markErr := e.queue.MarkCompleted(ctx, leaseID); markErr != nil {
			e.logger.Error("failed to complete lease",
				logger.Int64("lease_id", leaseID),
				logger.Error(markErr),
			)
			continue
		}
		stored++
	}
	for _, failed := range result.FailedURLs {
		if leaseID, ok := leaseByURL[failed.URL]; ok {
			e.markFailed(ctx, leaseID, failed.URL, failed.Error)
		}
	}

	e.logger.Info("article tick finished",
		logger.String("crawler", ac.Name()),
		logger.Int("leased", len(leased)),
		logger.Int("stored", stored),
		logger.Int("failed", len(result.FailedURLs)),
	)
	return stored, nil
}

func (e *Executor) markFailed(ctx context.Context, leaseID int64, url, message string) {
	if err := e.queue.MarkFailed(ctx, leaseID, message); err != nil {
		e.logger.Error("failed to mark lease failed",
			logger.Int64("lease_id", leaseID),
			logger.String("url", url),
			logger.Error(err),
		)
	}
}

// finish stamps the tick's outcome on the crawler config row.
func (e *Executor) finish(
	ctx context.Context,
	cfg *domain.CrawlerConfig,
	items int,
	elapsed time.Duration,
	runErr error,
) error {
	status := domain.RunStatusSuccess
	var errorLog *string
	if runErr != nil {
		status = domain.RunStatusFailed
		msg := runErr.Error()
		if errors.Is(runErr, context.DeadlineExceeded) {
			msg = fmt.Sprintf("Execution timeout after %ds", cfg.TimeoutSeconds)
		}
		if len(msg) > maxErrorLogLen {
			msg = msg[:maxErrorLogLen]
		}
		errorLog = &msg
	}

	var next *time.Time
	if e.nextRun != nil {
		next = e.nextRun(cfg.Name)
	}

	if err := e.configs.RecordRunResult(ctx, cfg.Name, status, errorLog, items, next); err != nil {
		return fmt.Errorf("failed to record run result: %w", err)
	}

	if runErr != nil {
		e.publish(ctx, cfg.Name, "error", "execution failed", map[string]any{
			"error":      *errorLog,
			"elapsed_ms": elapsed.Milliseconds(),
		})
		e.logger.Error("execution failed",
			logger.String("crawler", cfg.Name),
			logger.Duration("elapsed", elapsed),
			logger.Error(runErr),
		)
		return runErr
	}

	e.publish(ctx, cfg.Name, "info", "execution finished", map[string]any{
		"items":      items,
		"elapsed_ms": elapsed.Milliseconds(),
	})
	return nil
}

// RecoverAtStartup clears the marks a crashed process left behind: RUNNING
// crawler rows go back to IDLE and every leased URL returns to the queue.
func (e *Executor) RecoverAtStartup(ctx context.Context) error {
	rows, err := e.configs.ResetRunningToIdle(ctx)
	if err != nil {
		return fmt.Errorf("failed to reset running crawlers: %w", err)
	}
	urls, err := e.queue.ForceResetAllProcessing(ctx, "")
	if err != nil {
		return fmt.Errorf("failed to reset leased urls: %w", err)
	}
	if rows > 0 || urls > 0 {
		e.logger.Warn("recovered interrupted state",
			logger.Int("crawlers", rows),
			logger.Int("urls", urls),
		)
	}
	return nil
}

func (e *Executor) publish(ctx context.Context, crawlerName, level, message string, fields map[string]any) {
	err := e.publisher.Publish(ctx, logs.Event{
		Timestamp:   time.Now().UTC(),
		Level:       level,
		CrawlerName: crawlerName,
		Message:     message,
		Fields:      fields,
	})
	if err != nil {
		e.logger.Debug("event publish failed", logger.Error(err))
	}
}
