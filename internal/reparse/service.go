// Package reparse re-runs a source's article parser over stored raw HTML,
// both the copies still in the database and the ones already moved to cold
// storage. Jobs run in the background and are cancellable at any article
// boundary.
package reparse

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/jonesrussell/newsflow/internal/crawl"
	"github.com/jonesrussell/newsflow/internal/database"
	"github.com/jonesrussell/newsflow/internal/domain"
	"github.com/jonesrussell/newsflow/internal/logger"
)

const (
	pageSize         = 50
	commitEvery      = 10
	maxErrorLogLines = 100
)

// ArchiveReader reads raw HTML straight from cold storage.
type ArchiveReader interface {
	RawHTMLFromArchive(ctx context.Context, articleID int64) (string, error)
}

// Service owns reparse jobs.
type Service struct {
	registry *crawl.Registry
	articles database.ArticleRepositoryInterface
	records  database.ArchiveRepositoryInterface
	archive  ArchiveReader
	jobs     database.ReparseJobRepositoryInterface
	logger   logger.Logger

	mu      sync.Mutex
	cancels map[string]*atomic.Bool
}

// NewService creates the reparse service.
func NewService(
	registry *crawl.Registry,
	articles database.ArticleRepositoryInterface,
	records database.ArchiveRepositoryInterface,
	archive ArchiveReader,
	jobs database.ReparseJobRepositoryInterface,
	log logger.Logger,
) *Service {
	return &Service{
		registry: registry,
		articles: articles,
		records:  records,
		archive:  archive,
		jobs:     jobs,
		logger:   log,
		cancels:  make(map[string]*atomic.Bool),
	}
}

// Preview sizes a prospective job: how many articles still hold raw HTML in
// the database and how many sit in cold storage.
func (s *Service) Preview(ctx context.Context, source string) (inDB, archived int, err error) {
	inDB, err = s.articles.CountWithRawHTML(ctx, source)
	if err != nil {
		return 0, 0, err
	}
	archived, err = s.records.CountArchivedBySource(ctx, source)
	if err != nil {
		return 0, 0, err
	}
	return inDB, archived, nil
}

// Start creates a job and spawns its worker. The returned id is a UUID.
func (s *Service) Start(ctx context.Context, source string) (string, error) {
	inDB, archived, err := s.Preview(ctx, source)
	if err != nil {
		return "", err
	}

	job := &domain.ReparseJob{
		ID:         uuid.NewString(),
		Source:     source,
		Status:     domain.ReparseStatusPending,
		TotalCount: inDB + archived,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return "", err
	}

	flag := &atomic.Bool{}
	s.mu.Lock()
	s.cancels[job.ID] = flag
	s.mu.Unlock()

	go s.run(job.ID, source, flag)
	return job.ID, nil
}

// Status returns the job row; progress_percent comes from its counters.
func (s *Service) Status(ctx context.Context, jobID string) (*domain.ReparseJob, error) {
	return s.jobs.GetByID(ctx, jobID)
}

// Cancel flags a running job; the worker exits CANCELLED at its next article
// boundary.
func (s *Service) Cancel(jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	flag, ok := s.cancels[jobID]
	if !ok {
		return fmt.Errorf("reparse job not running: %s", jobID)
	}
	flag.Store(true)
	return nil
}

// Jobs lists recent jobs, newest first.
func (s *Service) Jobs(ctx context.Context, limit int) ([]*domain.ReparseJob, error) {
	return s.jobs.List(ctx, limit)
}

// progress tracks one worker's counters and error lines.
type progress struct {
	processed int
	failed    int
	errLines  []string
}

func (p *progress) recordError(articleID int64, err error) {
	p.failed++
	if len(p.errLines) < maxErrorLogLines {
		p.errLines = append(p.errLines, fmt.Sprintf("article %d: %v", articleID, err))
	}
}

func (p *progress) errorLog() *string {
	if len(p.errLines) == 0 {
		return nil
	}
	log := strings.Join(p.errLines, "\n")
	return &log
}

// run is the worker goroutine.
func (s *Service) run(jobID, source string, cancel *atomic.Bool) {
	ctx := context.Background()
	defer func() {
		s.mu.Lock()
		delete(s.cancels, jobID)
		s.mu.Unlock()
	}()

	if err := s.jobs.MarkRunning(ctx, jobID); err != nil {
		s.logger.Error("failed to mark reparse job running",
			logger.String("job_id", jobID),
			logger.Error(err),
		)
		return
	}

	ac, err := s.registry.GetArticleCrawler(source)
	if err != nil {
		s.finish(ctx, jobID, domain.ReparseStatusFailed, &progress{}, err)
		return
	}

	p := &progress{}
	if done := s.reparseLive(ctx, jobID, ac, source, cancel, p); done {
		return
	}
	if done := s.reparseArchived(ctx, jobID, ac, source, cancel, p); done {
		return
	}

	s.finish(ctx, jobID, domain.ReparseStatusCompleted, p, nil)
}

// reparseLive replays the parser over raw HTML still in the database.
// It returns true when the job already reached a terminal state.
func (s *Service) reparseLive(
	ctx context.Context,
	jobID string,
	ac crawl.ArticleCrawler,
	source string,
	cancel *atomic.Bool,
	p *progress,
) bool {
	offset := 0
	for {
		page, err := s.articles.ListWithRawHTML(ctx, source, pageSize, offset)
		if err != nil {
			s.finish(ctx, jobID, domain.ReparseStatusFailed, p, err)
			return true
		}
		if len(page) == 0 {
			return false
		}

		for _, a := range page {
			if cancel.Load() {
				s.finish(ctx, jobID, domain.ReparseStatusCancelled, p, nil)
				return true
			}
			if a.RawHTML == nil || *a.RawHTML == "" {
				continue
			}
			s.reparseOne(ctx, ac, a, *a.RawHTML, p)
			s.maybeCommit(ctx, jobID, p)
		}

		if len(page) < pageSize {
			return false
		}
		offset += len(page)
	}
}

// reparseArchived replays the parser over cold storage payloads.
func (s *Service) reparseArchived(
	ctx context.Context,
	jobID string,
	ac crawl.ArticleCrawler,
	source string,
	cancel *atomic.Bool,
	p *progress,
) bool {
	offset := 0
	for {
		page, err := s.records.ListArchivedBySource(ctx, source, pageSize, offset)
		if err != nil {
			s.finish(ctx, jobID, domain.ReparseStatusFailed, p, err)
			return true
		}
		if len(page) == 0 {
			return false
		}

		for _, rec := range page {
			if cancel.Load() {
				s.finish(ctx, jobID, domain.ReparseStatusCancelled, p, nil)
				return true
			}

			html, err := s.archive.RawHTMLFromArchive(ctx, rec.ArticleID)
			if err != nil {
				p.recordError(rec.ArticleID, err)
				s.maybeCommit(ctx, jobID, p)
				continue
			}
			a, err := s.articles.GetByID(ctx, rec.ArticleID)
			if err != nil {
				p.recordError(rec.ArticleID, err)
				s.maybeCommit(ctx, jobID, p)
				continue
			}
			s.reparseOne(ctx, ac, a, html, p)
			s.maybeCommit(ctx, jobID, p)
		}

		if len(page) < pageSize {
			return false
		}
		offset += len(page)
	}
}

// reparseOne parses one payload and overwrites the article's parsed fields.
func (s *Service) reparseOne(
	ctx context.Context,
	ac crawl.ArticleCrawler,
	a *domain.Article,
	html string,
	p *progress,
) {
	data, err := ac.ParseHTML(html, a.URL)
	if err != nil {
		p.recordError(a.ID, err)
		return
	}

	a.Title = data.Title
	a.Content = data.Content
	a.Summary = data.Summary
	a.Author = data.Author
	a.Category = data.Category
	a.SubCategory = data.SubCategory
	a.Tags = domain.NormalizeStringArray(data.Tags)
	a.PublishedAt = data.PublishedAt
	a.Images = domain.NormalizeStringArray(data.Images)

	if err := s.articles.UpdateParsedFields(ctx, a); err != nil {
		p.recordError(a.ID, err)
		return
	}
	p.processed++
}

// maybeCommit persists progress every few articles so status stays live.
func (s *Service) maybeCommit(ctx context.Context, jobID string, p *progress) {
	if (p.processed+p.failed)%commitEvery != 0 {
		return
	}
	if err := s.jobs.UpdateProgress(ctx, jobID, p.processed, p.failed); err != nil {
		s.logger.Warn("failed to persist reparse progress",
			logger.String("job_id", jobID),
			logger.Error(err),
		)
	}
}

func (s *Service) finish(
	ctx context.Context,
	jobID string,
	status domain.ReparseStatus,
	p *progress,
	fatal error,
) {
	errorLog := p.errorLog()
	if fatal != nil {
		msg := fatal.Error()
		if errorLog != nil {
			msg = msg + "\n" + *errorLog
		}
		errorLog = &msg
	}

	if err := s.jobs.Finish(ctx, jobID, status, p.processed, p.failed, errorLog); err != nil {
		s.logger.Error("failed to finish reparse job",
			logger.String("job_id", jobID),
			logger.Error(err),
		)
		return
	}
	s.logger.Info("reparse job finished",
		logger.String("job_id", jobID),
		logger.String("status", string(status)),
		logger.Int("processed", p.processed),
		logger.Int("failed", p.failed),
	)
}

// WaitSettle polls until the job reaches a terminal state or the timeout
// elapses. The CLI uses it for its --wait flag.
func (s *Service) WaitSettle(ctx context.Context, jobID string, timeout time.Duration) (*domain.ReparseJob, error) {
	deadline := time.Now().Add(timeout)
	for {
		job, err := s.jobs.GetByID(ctx, jobID)
		if err != nil {
			return nil, err
		}
		if job.IsTerminal() {
			return job, nil
		}
		if time.Now().After(deadline) {
			return job, fmt.Errorf("reparse job did not settle: %s", jobID)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
