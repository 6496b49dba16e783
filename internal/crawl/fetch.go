package crawl

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	colly "github.com/gocolly/colly/v2"

	"github.com/jonesrussell/newsflow/internal/logger"
	"github.com/jonesrussell/newsflow/internal/metrics"
)

// defaultUserAgents is the builtin desktop browser rotation used when the
// configuration provides none.
var defaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:127.0) Gecko/20100101 Firefox/127.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.5 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
}

const (
	// fetchMaxAttempts bounds retries after HTTP 429.
	fetchMaxAttempts = 3
	// fetchBaseBackoff is the first 429 backoff; it doubles per attempt.
	fetchBaseBackoff = 2 * time.Second

	randomDelayDivisor = 2
)

// FetcherConfig tunes the shared HTTP fetch layer.
type FetcherConfig struct {
	UserAgents []string
	RateLimit  time.Duration
}

// Fetcher retrieves pages with per-domain rate limiting, user-agent
// rotation, and bounded backoff on HTTP 429.
type Fetcher struct {
	cfg     FetcherConfig
	metrics *metrics.Metrics
	logger  logger.Logger
}

// NewFetcher creates a fetcher. metrics may be nil.
func NewFetcher(cfg FetcherConfig, m *metrics.Metrics, log logger.Logger) *Fetcher {
	if len(cfg.UserAgents) == 0 {
		cfg.UserAgents = defaultUserAgents
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = time.Second
	}
	if m == nil {
		m = metrics.New()
	}
	return &Fetcher{cfg: cfg, metrics: m, logger: log}
}

// Get fetches one page and returns its body. referer may be empty; sites
// that gate on per-page referers get the listing page passed through here.
func (f *Fetcher) Get(ctx context.Context, pageURL, referer string) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt < fetchMaxAttempts; attempt++ {
		body, status, err := f.fetchOnce(ctx, pageURL, referer)
		switch {
		case err == nil:
			f.metrics.RecordRequest(true)
			return body, nil
		case status == http.StatusTooManyRequests:
			f.metrics.RecordRateLimited()
			backoff := fetchBaseBackoff << attempt
			f.logger.Warn("rate limited, backing off",
				logger.String("url", pageURL),
				logger.Duration("backoff", backoff),
			)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			lastErr = err
		default:
			f.metrics.RecordRequest(false)
			return nil, err
		}
	}

	f.metrics.RecordRequest(false)
	return nil, fmt.Errorf("failed to fetch %s after %d attempts: %w", pageURL, fetchMaxAttempts, lastErr)
}

// fetchOnce performs a single collector visit.
func (f *Fetcher) fetchOnce(ctx context.Context, pageURL, referer string) (body []byte, status int, err error) {
	c := colly.NewCollector(
		colly.StdlibContext(ctx),
		colly.UserAgent(f.userAgent()),
		colly.AllowURLRevisit(),
		colly.MaxDepth(1),
	)
	if limitErr := c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Delay:       f.cfg.RateLimit,
		RandomDelay: f.cfg.RateLimit / randomDelayDivisor,
		Parallelism: 1,
	}); limitErr != nil {
		return nil, 0, fmt.Errorf("failed to set rate limit: %w", limitErr)
	}

	if referer != "" {
		c.OnRequest(func(r *colly.Request) {
			r.Headers.Set("Referer", referer)
		})
	}
	c.OnResponse(func(r *colly.Response) {
		body = r.Body
		status = r.StatusCode
	})
	c.OnError(func(r *colly.Response, visitErr error) {
		if r != nil {
			status = r.StatusCode
		}
		err = fmt.Errorf("failed to fetch %s: %w", pageURL, visitErr)
	})

	if visitErr := c.Visit(pageURL); visitErr != nil && err == nil {
		err = fmt.Errorf("failed to fetch %s: %w", pageURL, visitErr)
	}
	c.Wait()

	if err != nil {
		return nil, status, err
	}
	if len(body) == 0 {
		return nil, status, fmt.Errorf("empty response from %s", pageURL)
	}
	return body, status, nil
}

// userAgent picks one agent from the rotation.
func (f *Fetcher) userAgent() string {
	return f.cfg.UserAgents[rand.Intn(len(f.cfg.UserAgents))] //nolint:gosec // rotation, not crypto
}
