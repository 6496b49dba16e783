// Package domain provides domain models used across the application.
package domain

import (
	"strings"
	"time"
)

// Article represents a crawled news article.
type Article struct {
	// Identity
	ID      int64  `db:"id"       json:"id"`
	URL     string `db:"url"      json:"url"`
	URLHash string `db:"url_hash" json:"url_hash"` // MD5 hex of the URL

	// Content
	Title   string  `db:"title"   json:"title"`
	Content string  `db:"content" json:"content"`
	Summary *string `db:"summary" json:"summary,omitempty"`
	Author  *string `db:"author"  json:"author,omitempty"`

	// Provenance
	Source      string `db:"source"       json:"source"`
	CrawlerName string `db:"crawler_name" json:"crawler_name"`

	// Classification
	Category    *string    `db:"category"     json:"category,omitempty"`
	SubCategory *string    `db:"sub_category" json:"sub_category,omitempty"`
	Tags        StringList `db:"tags"         json:"tags,omitempty"`

	// Timing
	PublishedAt *time.Time `db:"published_at" json:"published_at,omitempty"`
	CrawledAt   time.Time  `db:"crawled_at"   json:"crawled_at"`

	// Raw payload, nulled once the article moves to cold storage
	RawHTML *string    `db:"raw_html" json:"raw_html,omitempty"`
	Images  StringList `db:"images"   json:"images,omitempty"`
}

// HasRawHTML reports whether the article still carries its raw payload.
func (a *Article) HasRawHTML() bool {
	return a.RawHTML != nil && *a.RawHTML != ""
}

// NormalizeStringArray removes empty items, deduplicates, and returns nil if empty.
func NormalizeStringArray(arr []string) []string {
	if len(arr) == 0 {
		return nil
	}

	seen := make(map[string]bool)
	cleaned := make([]string, 0, len(arr))
	for _, item := range arr {
		item = strings.TrimSpace(item)
		if item != "" && !seen[item] {
			seen[item] = true
			cleaned = append(cleaned, item)
		}
	}

	if len(cleaned) == 0 {
		return nil
	}
	return cleaned
}
