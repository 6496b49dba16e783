package domain

import (
	"time"
)

// ReparseStatus tracks the lifecycle of a bulk re-extraction job.
type ReparseStatus string

const (
	// ReparseStatusPending means the job row exists but the worker has not started.
	ReparseStatusPending ReparseStatus = "PENDING"
	// ReparseStatusRunning means the worker is iterating articles.
	ReparseStatusRunning ReparseStatus = "RUNNING"
	// ReparseStatusCompleted means the worker finished all candidates.
	ReparseStatusCompleted ReparseStatus = "COMPLETED"
	// ReparseStatusFailed means the worker aborted on a fatal error.
	ReparseStatusFailed ReparseStatus = "FAILED"
	// ReparseStatusCancelled means the job was cancelled cooperatively.
	ReparseStatusCancelled ReparseStatus = "CANCELLED"
)

// ReparseJob is a long-running re-extraction of stored raw HTML.
type ReparseJob struct {
	ID     string        `db:"id"     json:"id"` // UUID
	Source string        `db:"source" json:"source"`
	Status ReparseStatus `db:"status" json:"status"`

	TotalCount     int `db:"total_count"     json:"total_count"`
	ProcessedCount int `db:"processed_count" json:"processed_count"`
	FailedCount    int `db:"failed_count"    json:"failed_count"`

	ErrorLog    *string    `db:"error_log"    json:"error_log,omitempty"`
	StartedAt   *time.Time `db:"started_at"   json:"started_at,omitempty"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt   time.Time  `db:"created_at"   json:"created_at"`
}

// ProgressPercent reports completion as (processed+failed)/total*100.
func (j *ReparseJob) ProgressPercent() float64 {
	if j.TotalCount <= 0 {
		return 0
	}
	return float64(j.ProcessedCount+j.FailedCount) / float64(j.TotalCount) * 100
}

// IsTerminal reports whether the job can no longer change state.
func (j *ReparseJob) IsTerminal() bool {
	switch j.Status {
	case ReparseStatusCompleted, ReparseStatusFailed, ReparseStatusCancelled:
		return true
	default:
		return false
	}
}
