// Package search mirrors saved articles into Elasticsearch so operators can
// run full-text queries over the hot store. Indexing is best-effort; the
// operational database stays the source of truth.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	es "github.com/elastic/go-elasticsearch/v8"

	"github.com/jonesrussell/newsflow/internal/config"
	"github.com/jonesrussell/newsflow/internal/domain"
	"github.com/jonesrussell/newsflow/internal/logger"
)

const defaultIndexName = "articles"

// Client wraps the Elasticsearch client for the article index.
type Client struct {
	es     *es.Client
	index  string
	logger logger.Logger
}

// NewClient creates the search client and verifies connectivity.
func NewClient(cfg config.ElasticsearchConfig, log logger.Logger) (*Client, error) {
	if len(cfg.Addresses) == 0 {
		return nil, fmt.Errorf("elasticsearch.addresses is required")
	}
	index := cfg.IndexName
	if index == "" {
		index = defaultIndexName
	}

	client, err := es.NewClient(es.Config{
		Addresses: cfg.Addresses,
		APIKey:    cfg.APIKey,
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}

	res, err := client.Ping()
	if err != nil {
		return nil, fmt.Errorf("failed to ping elasticsearch: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("error pinging elasticsearch: %s", res.String())
	}

	return &Client{es: client, index: index, logger: log}, nil
}

// articleMapping keeps CJK titles searchable and the rest filterable.
const articleMapping = `{
	"mappings": {
		"properties": {
			"url":          {"type": "keyword"},
			"url_hash":     {"type": "keyword"},
			"title":        {"type": "text"},
			"content":      {"type": "text"},
			"summary":      {"type": "text"},
			"source":       {"type": "keyword"},
			"crawler_name": {"type": "keyword"},
			"category":     {"type": "keyword"},
			"sub_category": {"type": "keyword"},
			"tags":         {"type": "keyword"},
			"author":       {"type": "keyword"},
			"published_at": {"type": "date"},
			"crawled_at":   {"type": "date"}
		}
	}
}`

// EnsureIndex creates the article index if it does not exist.
func (c *Client) EnsureIndex(ctx context.Context) error {
	res, err := c.es.Indices.Exists([]string{c.index}, c.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to check index %s: %w", c.index, err)
	}
	res.Body.Close()
	if res.StatusCode == 200 {
		return nil
	}

	res, err = c.es.Indices.Create(
		c.index,
		c.es.Indices.Create.WithContext(ctx),
		c.es.Indices.Create.WithBody(strings.NewReader(articleMapping)),
	)
	if err != nil {
		return fmt.Errorf("failed to create index %s: %w", c.index, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("error creating index %s: %s", c.index, res.String())
	}

	c.logger.Info("search index created", logger.String("index", c.index))
	return nil
}

// DeleteIndex drops the article index. A missing index is not an error.
func (c *Client) DeleteIndex(ctx context.Context) error {
	res, err := c.es.Indices.Delete(
		[]string{c.index},
		c.es.Indices.Delete.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("failed to delete index %s: %w", c.index, err)
	}
	defer res.Body.Close()
	if res.IsError() && res.StatusCode != 404 {
		return fmt.Errorf("error deleting index %s: %s", c.index, res.String())
	}
	return nil
}

// document is the indexed projection of an article. Raw HTML never enters
// the index.
type document struct {
	URL         string     `json:"url"`
	URLHash     string     `json:"url_hash"`
	Title       string     `json:"title"`
	Content     string     `json:"content"`
	Summary     *string    `json:"summary,omitempty"`
	Source      string     `json:"source"`
	CrawlerName string     `json:"crawler_name"`
	Category    *string    `json:"category,omitempty"`
	SubCategory *string    `json:"sub_category,omitempty"`
	Tags        []string   `json:"tags,omitempty"`
	Author      *string    `json:"author,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	CrawledAt   time.Time  `json:"crawled_at"`
}

// IndexArticle mirrors one article into the index, keyed by its database id
// so re-indexing overwrites instead of duplicating.
func (c *Client) IndexArticle(ctx context.Context, a *domain.Article) error {
	doc := document{
		URL:         a.URL,
		URLHash:     a.URLHash,
		Title:       a.Title,
		Content:     a.Content,
		Summary:     a.Summary,
		Source:      a.Source,
		CrawlerName: a.CrawlerName,
		Category:    a.Category,
		SubCategory: a.SubCategory,
		Tags:        a.Tags,
		Author:      a.Author,
		PublishedAt: a.PublishedAt,
		CrawledAt:   a.CrawledAt,
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode article document: %w", err)
	}

	res, err := c.es.Index(
		c.index,
		bytes.NewReader(body),
		c.es.Index.WithContext(ctx),
		c.es.Index.WithDocumentID(strconv.FormatInt(a.ID, 10)),
	)
	if err != nil {
		return fmt.Errorf("failed to index article %d: %w", a.ID, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("error indexing article %d: %s", a.ID, res.String())
	}
	return nil
}

// DeleteArticle removes one article from the index. A missing document is
// not an error.
func (c *Client) DeleteArticle(ctx context.Context, articleID int64) error {
	res, err := c.es.Delete(
		c.index,
		strconv.FormatInt(articleID, 10),
		c.es.Delete.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("failed to delete article %d: %w", articleID, err)
	}
	defer res.Body.Close()
	if res.IsError() && res.StatusCode != 404 {
		return fmt.Errorf("error deleting article %d: %s", articleID, res.String())
	}
	return nil
}

// Hit is one search match.
type Hit struct {
	ArticleID int64
	Score     float64
	Title     string
	URL       string
	Source    string
}

// Search runs a full-text query over title, content, and summary, optionally
// restricted to one source.
func (c *Client) Search(ctx context.Context, text, source string, limit int) ([]Hit, error) {
	if limit <= 0 {
		limit = 10
	}

	must := []map[string]any{
		{
			"multi_match": map[string]any{
				"query":  text,
				"fields": []string{"title^2", "content", "summary"},
			},
		},
	}
	query := map[string]any{
		"size":  limit,
		"query": map[string]any{"bool": map[string]any{"must": must}},
	}
	if source != "" {
		query["query"].(map[string]any)["bool"].(map[string]any)["filter"] = []map[string]any{
			{"term": map[string]any{"source": source}},
		}
	}

	body, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("failed to encode search query: %w", err)
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(c.index),
		c.es.Search.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to execute search: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("search error: %s", res.String())
	}

	var result struct {
		Hits struct {
			Hits []struct {
				ID     string   `json:"_id"`
				Score  float64  `json:"_score"`
				Source document `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	hits := make([]Hit, 0, len(result.Hits.Hits))
	for _, h := range result.Hits.Hits {
		id, _ := strconv.ParseInt(h.ID, 10, 64)
		hits = append(hits, Hit{
			ArticleID: id,
			Score:     h.Score,
			Title:     h.Source.Title,
			URL:       h.Source.URL,
			Source:    h.Source.Source,
		})
	}
	return hits, nil
}
