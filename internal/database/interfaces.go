package database

import (
	"context"
	"time"

	"github.com/jonesrussell/newsflow/internal/domain"
)

// PendingURLRepositoryInterface defines the contract for URL queue data access.
type PendingURLRepositoryInterface interface {
	InsertBatch(ctx context.Context, urls []*domain.PendingURL) (int, error)
	ExistingHashes(ctx context.Context, hashes []string) (map[string]struct{}, error)
	Lease(ctx context.Context, source string, limit int) ([]*domain.PendingURL, error)
	MarkCompleted(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64, message string) error
	GetByID(ctx context.Context, id int64) (*domain.PendingURL, error)
	ResetStale(ctx context.Context, cutoff time.Time) (int, error)
	ForceResetProcessing(ctx context.Context, source string) (int, error)
	Stats(ctx context.Context, source string) (*domain.QueueStats, error)
}

// ArticleRepositoryInterface defines the contract for article data access.
type ArticleRepositoryInterface interface {
	Create(ctx context.Context, a *domain.Article) error
	GetByID(ctx context.Context, id int64) (*domain.Article, error)
	GetByURLHash(ctx context.Context, hash string) (*domain.Article, error)
	GetByIDs(ctx context.Context, ids []int64) ([]*domain.Article, error)
	ExistingHashes(ctx context.Context, hashes []string) (map[string]struct{}, error)
	CountBySource(ctx context.Context, source string) (int, error)
	CountInWindow(ctx context.Context, from, to *time.Time) (int, error)
	ListInWindow(ctx context.Context, from, to *time.Time, limit, offset int) ([]*domain.Article, error)
	UpdateParsedFields(ctx context.Context, a *domain.Article) error
	CountWithRawHTML(ctx context.Context, source string) (int, error)
	ListWithRawHTML(ctx context.Context, source string, limit, offset int) ([]*domain.Article, error)
	ListArchivable(ctx context.Context, source string, from, to *time.Time, limit int) ([]*ArchiveCandidate, error)
	ListSources(ctx context.Context) ([]string, error)
}

// CrawlerConfigRepositoryInterface defines the contract for crawler
// registration and schedule state.
type CrawlerConfigRepositoryInterface interface {
	Create(ctx context.Context, cfg *domain.CrawlerConfig) error
	GetByName(ctx context.Context, name string) (*domain.CrawlerConfig, error)
	List(ctx context.Context) ([]*domain.CrawlerConfig, error)
	ListActive(ctx context.Context) ([]*domain.CrawlerConfig, error)
	UpdateRegistration(ctx context.Context, name, displayName, source string, kind domain.CrawlerKind) error
	SetActive(ctx context.Context, name string, active bool) error
	SetInterval(ctx context.Context, name string, minutes int) error
	MarkRunning(ctx context.Context, name string) error
	RecordRunResult(ctx context.Context, name string, status domain.RunStatus,
		errorLog *string, items int, nextRun *time.Time) error
	UpdateNextRunTime(ctx context.Context, name string, next *time.Time) error
	ResetRunningToIdle(ctx context.Context) (int, error)
}

// ArchiveRepositoryInterface defines the contract for cold storage records.
type ArchiveRepositoryInterface interface {
	ArchiveBatch(ctx context.Context, records []*domain.ArchiveRecord) error
	RestoreBatch(ctx context.Context, htmlByArticle map[int64]string) error
	GetByArticleID(ctx context.Context, articleID int64) (*domain.ArchiveRecord, error)
	ListByArticleIDs(ctx context.Context, ids []int64) ([]*domain.ArchiveRecord, error)
	ListArchivedBySource(ctx context.Context, source string, limit, offset int) ([]*domain.ArchiveRecord, error)
	CountArchivedBySource(ctx context.Context, source string) (int, error)
	StatsBySource(ctx context.Context, source string) (*SourceStats, error)
}

// ReparseJobRepositoryInterface defines the contract for reparse job state.
type ReparseJobRepositoryInterface interface {
	Create(ctx context.Context, job *domain.ReparseJob) error
	GetByID(ctx context.Context, id string) (*domain.ReparseJob, error)
	List(ctx context.Context, limit int) ([]*domain.ReparseJob, error)
	MarkRunning(ctx context.Context, id string) error
	UpdateProgress(ctx context.Context, id string, processed, failed int) error
	Finish(ctx context.Context, id string, status domain.ReparseStatus,
		processed, failed int, errorLog *string) error
}

// PipelineRunRepositoryInterface defines the contract for pipeline run state.
type PipelineRunRepositoryInterface interface {
	Create(ctx context.Context, run *domain.PipelineRun) error
	GetByID(ctx context.Context, id int64) (*domain.PipelineRun, error)
	ListRecent(ctx context.Context, limit int) ([]*domain.PipelineRun, error)
	UpdateStatus(ctx context.Context, id int64, status domain.PipelineStatus) error
	UpdateStage(ctx context.Context, id int64, stage *domain.PipelineStage) error
	SetTotalArticles(ctx context.Context, id int64, total int) error
	UpdateRuleStats(ctx context.Context, id int64, filtered, passed, forceIncluded int) error
	SetAnalyzedCount(ctx context.Context, id int64, analyzed int) error
	SetBatchID(ctx context.Context, id int64, batchID string) error
	SetErrorLog(ctx context.Context, id int64, errorLog *string) error
	ResetRun(ctx context.Context, params ResetRunParams) error
}

// FilterResultRepositoryInterface defines the contract for per-article
// filter decisions.
type FilterResultRepositoryInterface interface {
	InsertBatch(ctx context.Context, results []*domain.FilterResult) error
	CountDecisions(ctx context.Context, runID int64, stage domain.PipelineStage) (map[domain.FilterDecision]int, error)
	PassedArticleIDs(ctx context.Context, runID int64) ([]int64, error)
	ListFiltered(ctx context.Context, runID int64, stage *domain.PipelineStage, limit, offset int) ([]*FilteredArticle, error)
	ListPassed(ctx context.Context, runID int64, limit, offset int) ([]*FilteredArticle, error)
}

// FilterRuleRepositoryInterface defines the contract for filter rules and
// force-include overrides.
type FilterRuleRepositoryInterface interface {
	CreateRule(ctx context.Context, rule *domain.FilterRule) error
	SeedRules(ctx context.Context, rules []*domain.FilterRule) (int, error)
	GetRuleByName(ctx context.Context, name string) (*domain.FilterRule, error)
	ListActiveRules(ctx context.Context) ([]*domain.FilterRule, error)
	ListRules(ctx context.Context) ([]*domain.FilterRule, error)
	IncrementFilteredCount(ctx context.Context, name string, delta int64) error
	AddForceInclude(ctx context.Context, fi *domain.ForceIncludeArticle) error
	RemoveForceInclude(ctx context.Context, articleID int64) error
	ListForceIncludes(ctx context.Context) ([]*domain.ForceIncludeArticle, error)
	ForceIncludeIDSet(ctx context.Context) (map[int64]struct{}, error)
}

// AnalysisRepositoryInterface defines the contract for batch tracking rows
// and per-run analysis results.
type AnalysisRepositoryInterface interface {
	InsertPendingTracking(ctx context.Context, rows []*domain.AnalysisTracking) error
	SuccessArticleIDs(ctx context.Context, runID int64) (map[int64]struct{}, error)
	MarkOutcome(ctx context.Context, articleID int64, batchID string,
		status domain.TrackingStatus, errorMessage, resultJSON *string) error
	ListByRunAndStatus(ctx context.Context, runID int64, status domain.TrackingStatus) ([]*domain.AnalysisTracking, error)
	ListStoreFailed(ctx context.Context) ([]*domain.AnalysisTracking, error)
	DeleteFailed(ctx context.Context, runID int64) ([]int64, error)
	InsertResult(ctx context.Context, res *domain.AnalysisResult) error
	CountResultsByRun(ctx context.Context, runID int64) (int, error)
}
