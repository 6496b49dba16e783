package crawl

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"regexp"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/jonesrussell/newsflow/internal/domain"
	"github.com/jonesrussell/newsflow/internal/logger"
)

const (
	defaultIntervalMinutes = 30
	defaultTimeoutSeconds  = 300
)

// GenericListCrawler discovers article URLs from a source's index pages
// using the link selector from sources.yml.
type GenericListCrawler struct {
	cfg        *SourceConfig
	fetcher    *Fetcher
	urlPattern *regexp.Regexp
	pageDelay  time.Duration
	logger     logger.Logger
}

// NewListCrawler builds a list crawler for one configured source.
func NewListCrawler(cfg *SourceConfig, fetcher *Fetcher, log logger.Logger) (*GenericListCrawler, error) {
	c := &GenericListCrawler{cfg: cfg, fetcher: fetcher, logger: log}
	if cfg.List.URLPattern != "" {
		re, err := regexp.Compile(cfg.List.URLPattern)
		if err != nil {
			return nil, fmt.Errorf("failed to compile url pattern for %s: %w", cfg.Name, err)
		}
		c.urlPattern = re
	}
	if cfg.List.PageDelay != "" {
		d, err := time.ParseDuration(cfg.List.PageDelay)
		if err != nil {
			return nil, fmt.Errorf("failed to parse page delay for %s: %w", cfg.Name, err)
		}
		c.pageDelay = d
	}
	return c, nil
}

func (c *GenericListCrawler) Name() string               { return c.cfg.Name + "_list" }
func (c *GenericListCrawler) DisplayName() string        { return c.cfg.DisplayName + " 列表" }
func (c *GenericListCrawler) Source() string             { return c.cfg.Name }
func (c *GenericListCrawler) Kind() domain.CrawlerKind   { return domain.KindList }
func (c *GenericListCrawler) DefaultTimeoutSeconds() int { return c.timeoutOrDefault() }

// DefaultIntervalMinutes returns the configured crawl interval.
func (c *GenericListCrawler) DefaultIntervalMinutes() int {
	if c.cfg.IntervalMinutes > 0 {
		return c.cfg.IntervalMinutes
	}
	return defaultIntervalMinutes
}

func (c *GenericListCrawler) timeoutOrDefault() int {
	if c.cfg.TimeoutSeconds > 0 {
		return c.cfg.TimeoutSeconds
	}
	return defaultTimeoutSeconds
}

// FetchURLs walks every configured index page and collects matching article
// links. A failed index page is logged and skipped; the remaining pages are
// still visited.
func (c *GenericListCrawler) FetchURLs(ctx context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	var out []string

	for i, pageURL := range c.cfg.List.URLs {
		if i > 0 && c.pageDelay > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.pageDelay):
			}
		}

		links, err := c.fetchPage(ctx, pageURL)
		if err != nil {
			c.logger.Warn("index page failed",
				logger.String("source", c.cfg.Name),
				logger.String("url", pageURL),
				logger.Error(err),
			)
			continue
		}
		for _, link := range links {
			if _, dup := seen[link]; dup {
				continue
			}
			seen[link] = struct{}{}
			out = append(out, link)
		}
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("no urls discovered for source %s", c.cfg.Name)
	}
	return out, nil
}

func (c *GenericListCrawler) fetchPage(ctx context.Context, pageURL string) ([]string, error) {
	body, err := c.fetcher.Get(ctx, pageURL, "")
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse index page: %w", err)
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse page url: %w", err)
	}

	var links []string
	doc.Find(c.cfg.List.LinkSelector).Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok || href == "" {
			return
		}
		abs := absolutize(base, href)
		if abs == "" {
			return
		}
		if c.urlPattern != nil && !c.urlPattern.MatchString(abs) {
			return
		}
		links = append(links, abs)
	})
	return links, nil
}

// absolutize resolves href against the index page, keeping only http(s)
// results.
func absolutize(base *url.URL, href string) string {
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	abs := base.ResolveReference(ref)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return ""
	}
	abs.Fragment = ""
	return abs.String()
}
