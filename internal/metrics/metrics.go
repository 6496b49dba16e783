// Package metrics provides in-process counters for crawl activity.
package metrics

import (
	"sync"
	"time"
)

// Metrics accumulates crawl counters. All methods are safe for concurrent
// use.
type Metrics struct {
	mu sync.Mutex

	startTime           time.Time
	processedCount      int64
	errorCount          int64
	lastProcessedTime   time.Time
	currentSource       string
	successfulRequests  int64
	failedRequests      int64
	rateLimitedRequests int64
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	StartTime           time.Time `json:"start_time"`
	ProcessedCount      int64     `json:"processed_count"`
	ErrorCount          int64     `json:"error_count"`
	LastProcessedTime   time.Time `json:"last_processed_time"`
	CurrentSource       string    `json:"current_source,omitempty"`
	SuccessfulRequests  int64     `json:"successful_requests"`
	FailedRequests      int64     `json:"failed_requests"`
	RateLimitedRequests int64     `json:"rate_limited_requests"`
}

// New creates a Metrics instance with the clock started.
func New() *Metrics {
	return &Metrics{startTime: time.Now()}
}

// RecordProcessed counts one processed item and its outcome.
func (m *Metrics) RecordProcessed(success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.processedCount++
	if success {
		m.lastProcessedTime = time.Now()
	} else {
		m.errorCount++
	}
}

// RecordRequest counts one HTTP request outcome.
func (m *Metrics) RecordRequest(success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if success {
		m.successfulRequests++
	} else {
		m.failedRequests++
	}
}

// RecordRateLimited counts one request the upstream throttled.
func (m *Metrics) RecordRateLimited() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rateLimitedRequests++
}

// SetCurrentSource records which source is being crawled.
func (m *Metrics) SetCurrentSource(source string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.currentSource = source
}

// Snapshot returns a copy of the current counters.
func (m *Metrics) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	return Snapshot{
		StartTime:           m.startTime,
		ProcessedCount:      m.processedCount,
		ErrorCount:          m.errorCount,
		LastProcessedTime:   m.lastProcessedTime,
		CurrentSource:       m.currentSource,
		SuccessfulRequests:  m.successfulRequests,
		FailedRequests:      m.failedRequests,
		RateLimitedRequests: m.rateLimitedRequests,
	}
}
