package crawl

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/jonesrussell/newsflow/internal/domain"
	"github.com/jonesrussell/newsflow/internal/logger"
	"github.com/jonesrussell/newsflow/internal/metrics"
)

// defaultTimeFormats are tried when sources.yml lists none. Taiwanese news
// sites mostly emit zone-less local timestamps.
var defaultTimeFormats = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006/01/02 15:04:05",
	"2006/01/02 15:04",
}

// GenericArticleCrawler fetches article pages and extracts fields with the
// selectors from sources.yml. Parsing is pure so archived HTML can be
// replayed through it.
type GenericArticleCrawler struct {
	cfg      *SourceConfig
	fetcher  *Fetcher
	location *time.Location
	metrics  *metrics.Metrics
	logger   logger.Logger
}

// NewArticleCrawler builds an article crawler for one configured source.
func NewArticleCrawler(cfg *SourceConfig, fetcher *Fetcher, m *metrics.Metrics, log logger.Logger) (*GenericArticleCrawler, error) {
	loc := time.UTC
	if cfg.Article.TimeZone != "" {
		l, err := time.LoadLocation(cfg.Article.TimeZone)
		if err != nil {
			return nil, fmt.Errorf("failed to load time zone for %s: %w", cfg.Name, err)
		}
		loc = l
	}
	if m == nil {
		m = metrics.New()
	}
	return &GenericArticleCrawler{cfg: cfg, fetcher: fetcher, location: loc, metrics: m, logger: log}, nil
}

func (c *GenericArticleCrawler) Name() string               { return c.cfg.Name + "_article" }
func (c *GenericArticleCrawler) DisplayName() string        { return c.cfg.DisplayName + " 內文" }
func (c *GenericArticleCrawler) Source() string             { return c.cfg.Name }
func (c *GenericArticleCrawler) Kind() domain.CrawlerKind   { return domain.KindArticle }
func (c *GenericArticleCrawler) DefaultTimeoutSeconds() int {
	if c.cfg.TimeoutSeconds > 0 {
		return c.cfg.TimeoutSeconds
	}
	return defaultTimeoutSeconds
}

// DefaultIntervalMinutes returns the configured crawl interval.
func (c *GenericArticleCrawler) DefaultIntervalMinutes() int {
	if c.cfg.IntervalMinutes > 0 {
		return c.cfg.IntervalMinutes
	}
	return defaultIntervalMinutes
}

// FetchArticles crawls each URL in turn. A URL that fails to fetch or parse
// is recorded in FailedURLs; the batch continues.
func (c *GenericArticleCrawler) FetchArticles(ctx context.Context, urls []string) (*CrawlResult, error) {
	result := &CrawlResult{}

	for _, articleURL := range urls {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		body, err := c.fetcher.Get(ctx, articleURL, "")
		if err != nil {
			result.FailedURLs = append(result.FailedURLs, FailedURL{URL: articleURL, Error: err.Error()})
			c.metrics.RecordProcessed(false)
			continue
		}

		data, err := c.ParseHTML(string(body), articleURL)
		if err != nil {
			result.FailedURLs = append(result.FailedURLs, FailedURL{URL: articleURL, Error: err.Error()})
			c.metrics.RecordProcessed(false)
			c.logger.Warn("article parse failed",
				logger.String("source", c.cfg.Name),
				logger.String("url", articleURL),
				logger.Error(err),
			)
			continue
		}

		result.Articles = append(result.Articles, data)
		c.metrics.RecordProcessed(true)
	}

	return result, nil
}

// ParseHTML extracts the article fields from rawHTML. It performs no I/O.
func (c *GenericArticleCrawler) ParseHTML(rawHTML, articleURL string) (*ArticleData, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return nil, fmt.Errorf("failed to parse article html: %w", err)
	}

	sel := c.cfg.Article
	title := extractText(doc, sel.Title)
	content := extractContent(doc, sel.Content)
	if title == "" {
		return nil, fmt.Errorf("no title at %s", articleURL)
	}
	if content == "" {
		return nil, fmt.Errorf("no content at %s", articleURL)
	}

	data := &ArticleData{
		URL:     articleURL,
		Title:   title,
		Content: content,
		RawHTML: strPtr(rawHTML),
	}
	if v := extractText(doc, sel.Summary); v != "" {
		data.Summary = strPtr(v)
	}
	if v := extractText(doc, sel.Author); v != "" {
		data.Author = strPtr(v)
	}
	if v := extractText(doc, sel.Category); v != "" {
		data.Category = strPtr(v)
	}
	if v := extractText(doc, sel.SubCategory); v != "" {
		data.SubCategory = strPtr(v)
	}
	data.Tags = extractAll(doc, sel.Tags)
	data.Images = extractAll(doc, sel.Images)

	if raw := extractText(doc, sel.Published); raw != "" {
		ts, parseErr := c.parsePublished(raw)
		if parseErr != nil {
			c.logger.Debug("unparseable published time",
				logger.String("source", c.cfg.Name),
				logger.String("value", raw),
			)
		} else {
			data.PublishedAt = &ts
		}
	}

	return data, nil
}

// parsePublished tries the configured formats in order and returns UTC.
func (c *GenericArticleCrawler) parsePublished(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	formats := c.cfg.Article.TimeFormats
	if len(formats) == 0 {
		formats = defaultTimeFormats
	}
	for _, layout := range formats {
		if ts, err := time.ParseInLocation(layout, raw, c.location); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("no format matched %q", raw)
}

// extractText returns the trimmed text or attribute of the first match.
func extractText(doc *goquery.Document, s Selector) string {
	if s == "" {
		return ""
	}
	css, attr := s.Split()
	node := doc.Find(css).First()
	if node.Length() == 0 {
		return ""
	}
	if attr != "" {
		v, _ := node.Attr(attr)
		return strings.TrimSpace(v)
	}
	return strings.TrimSpace(node.Text())
}

// extractContent joins every match with blank lines, one paragraph per node.
func extractContent(doc *goquery.Document, s Selector) string {
	if s == "" {
		return ""
	}
	css, _ := s.Split()
	var parts []string
	doc.Find(css).Each(func(_ int, node *goquery.Selection) {
		if text := strings.TrimSpace(node.Text()); text != "" {
			parts = append(parts, text)
		}
	})
	return strings.Join(parts, "\n\n")
}

// extractAll returns the trimmed text or attribute of every match.
func extractAll(doc *goquery.Document, s Selector) []string {
	if s == "" {
		return nil
	}
	css, attr := s.Split()
	var out []string
	doc.Find(css).Each(func(_ int, node *goquery.Selection) {
		var v string
		if attr != "" {
			v, _ = node.Attr(attr)
		} else {
			v = node.Text()
		}
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	})
	return out
}

func strPtr(s string) *string { return &s }
