package domain

import (
	"time"
)

// URLStatus tracks a pending URL through the work queue.
type URLStatus string

const (
	// URLStatusPending means the URL is waiting to be leased.
	URLStatusPending URLStatus = "PENDING"
	// URLStatusProcessing means the URL is leased by a worker.
	URLStatusProcessing URLStatus = "PROCESSING"
	// URLStatusCompleted means the URL was fetched and stored.
	URLStatusCompleted URLStatus = "COMPLETED"
	// URLStatusFailed means the URL exhausted its retries.
	URLStatusFailed URLStatus = "FAILED"
)

// PendingURL is one unit of crawl work discovered by a list crawler.
type PendingURL struct {
	// Identity
	ID      int64  `db:"id"       json:"id"`
	URL     string `db:"url"      json:"url"`
	URLHash string `db:"url_hash" json:"url_hash"`
	Source  string `db:"source"   json:"source"`

	// Queue state
	Status       URLStatus `db:"status"        json:"status"`
	RetryCount   int       `db:"retry_count"   json:"retry_count"`
	MaxRetries   int       `db:"max_retries"   json:"max_retries"`
	ErrorMessage *string   `db:"error_message" json:"error_message,omitempty"`

	// Timing
	DiscoveredAt time.Time  `db:"discovered_at" json:"discovered_at"`
	ProcessedAt  *time.Time `db:"processed_at"  json:"processed_at,omitempty"`
	CreatedAt    time.Time  `db:"created_at"    json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at"    json:"updated_at"`
}

// QueueStats summarizes queue depth per status for one source or globally.
type QueueStats struct {
	Source     string `json:"source,omitempty"`
	Pending    int    `json:"pending"`
	Processing int    `json:"processing"`
	Completed  int    `json:"completed"`
	Failed     int    `json:"failed"`
	Total      int    `json:"total"`
}
