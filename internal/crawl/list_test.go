package crawl_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/newsflow/internal/crawl"
	"github.com/jonesrussell/newsflow/internal/logger"
)

const listHTML = `<!DOCTYPE html>
<html><body>
  <h3 class="view-li-title"><a href="/News.aspx?NewsID=100">頭條一</a></h3>
  <h3 class="view-li-title"><a href="/News.aspx?NewsID=101">頭條二</a></h3>
  <h3 class="view-li-title"><a href="/News.aspx?NewsID=100">頭條一重複</a></h3>
  <h3 class="view-li-title"><a href="/Ad/promo">廣告頁</a></h3>
  <h3 class="view-li-title"><a href="mailto:tips@example.com">爆料信箱</a></h3>
</body></html>`

func newTestListCrawler(t *testing.T, cfg *crawl.SourceConfig) *crawl.GenericListCrawler {
	t.Helper()
	fetcher := crawl.NewFetcher(crawl.FetcherConfig{RateLimit: time.Millisecond}, nil, logger.NewNop())
	c, err := crawl.NewListCrawler(cfg, fetcher, logger.NewNop())
	require.NoError(t, err)
	return c
}

func TestFetchURLsFiltersAndDeduplicates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, listHTML)
	}))
	defer srv.Close()

	cfg := &crawl.SourceConfig{
		Name:        "setn",
		DisplayName: "三立新聞",
		List: crawl.ListConfig{
			URLs:         []string{srv.URL + "/ViewAll.aspx"},
			LinkSelector: "h3.view-li-title a",
			URLPattern:   `News\.aspx\?NewsID=\d+`,
		},
	}
	c := newTestListCrawler(t, cfg)

	urls, err := c.FetchURLs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{
		srv.URL + "/News.aspx?NewsID=100",
		srv.URL + "/News.aspx?NewsID=101",
	}, urls)
}

func TestFetchURLsSkipsFailedIndexPage(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ok", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, listHTML)
	})
	mux.HandleFunc("/down", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := &crawl.SourceConfig{
		Name: "setn",
		List: crawl.ListConfig{
			URLs:         []string{srv.URL + "/down", srv.URL + "/ok"},
			LinkSelector: "h3.view-li-title a",
			URLPattern:   `News\.aspx\?NewsID=\d+`,
		},
	}
	c := newTestListCrawler(t, cfg)

	urls, err := c.FetchURLs(context.Background())
	require.NoError(t, err)
	assert.Len(t, urls, 2)
}

func TestFetchURLsNoMatchesFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "<html><body>empty</body></html>")
	}))
	defer srv.Close()

	cfg := &crawl.SourceConfig{
		Name: "setn",
		List: crawl.ListConfig{
			URLs:         []string{srv.URL},
			LinkSelector: "h3.view-li-title a",
		},
	}
	c := newTestListCrawler(t, cfg)

	_, err := c.FetchURLs(context.Background())
	assert.Error(t, err)
}

func TestNewListCrawlerRejectsBadPattern(t *testing.T) {
	fetcher := crawl.NewFetcher(crawl.FetcherConfig{}, nil, logger.NewNop())
	cfg := &crawl.SourceConfig{
		Name: "setn",
		List: crawl.ListConfig{URLPattern: "("},
	}
	_, err := crawl.NewListCrawler(cfg, fetcher, logger.NewNop())
	assert.Error(t, err)
}

func TestCrawlerIdentity(t *testing.T) {
	cfg := &crawl.SourceConfig{Name: "setn", DisplayName: "三立新聞", IntervalMinutes: 15, TimeoutSeconds: 120}
	lc := newTestListCrawler(t, cfg)
	ac := newTestArticleCrawler(t, cfg)

	assert.Equal(t, "setn_list", lc.Name())
	assert.Equal(t, "setn_article", ac.Name())
	assert.Equal(t, "setn", lc.Source())
	assert.Equal(t, 15, lc.DefaultIntervalMinutes())
	assert.Equal(t, 120, ac.DefaultTimeoutSeconds())
}
