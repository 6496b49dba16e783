// Package crawl defines the crawler capability interfaces, the registry that
// keys them by name and by (source, kind), and the generic selector-driven
// list and article crawlers configured from sources.yml.
package crawl

import (
	"context"
	"time"

	"github.com/jonesrussell/newsflow/internal/domain"
)

// ArticleData is the parser's output for one article. Timestamps are
// normalized to UTC before leaving the crawler.
type ArticleData struct {
	URL         string
	Title       string
	Content     string
	Summary     *string
	Author      *string
	Category    *string
	SubCategory *string
	Tags        []string
	PublishedAt *time.Time
	RawHTML     *string
	Images      []string
}

// FailedURL pairs a URL with the reason it could not be crawled.
type FailedURL struct {
	URL   string
	Error string
}

// CrawlResult is an article crawler's outcome for one batch of URLs.
// Per-URL failures land in FailedURLs and never abort the batch.
type CrawlResult struct {
	Articles   []*ArticleData
	FailedURLs []FailedURL
}

// Crawler is the capability shared by list and article crawlers.
type Crawler interface {
	Name() string
	DisplayName() string
	Source() string
	Kind() domain.CrawlerKind
	DefaultIntervalMinutes() int
	DefaultTimeoutSeconds() int
}

// ListCrawler discovers article URLs on a source's index pages.
type ListCrawler interface {
	Crawler
	FetchURLs(ctx context.Context) ([]string, error)
}

// ArticleCrawler fetches and parses individual articles.
type ArticleCrawler interface {
	Crawler
	FetchArticles(ctx context.Context, urls []string) (*CrawlResult, error)
	// ParseHTML extracts an article from already-fetched HTML. It performs
	// no I/O, which is what lets the reparse engine replay it over archived
	// payloads.
	ParseHTML(rawHTML, url string) (*ArticleData, error)
}

// ToArticle converts parser output into a storable article record.
func (d *ArticleData) ToArticle(source, crawlerName string) *domain.Article {
	return &domain.Article{
		URL:         d.URL,
		Title:       d.Title,
		Content:     d.Content,
		Summary:     d.Summary,
		Author:      d.Author,
		Source:      source,
		CrawlerName: crawlerName,
		Category:    d.Category,
		SubCategory: d.SubCategory,
		Tags:        domain.NormalizeStringArray(d.Tags),
		PublishedAt: d.PublishedAt,
		RawHTML:     d.RawHTML,
		Images:      domain.NormalizeStringArray(d.Images),
	}
}
