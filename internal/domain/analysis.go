package domain

import (
	"time"
)

// TrackingStatus follows one article through one LLM batch.
type TrackingStatus string

const (
	// TrackingStatusPending means the article is in a submitted batch.
	TrackingStatusPending TrackingStatus = "PENDING"
	// TrackingStatusSuccess means analysis succeeded and results were stored.
	TrackingStatusSuccess TrackingStatus = "SUCCESS"
	// TrackingStatusFailed means analysis failed or storage hit a data error.
	TrackingStatusFailed TrackingStatus = "FAILED"
	// TrackingStatusStoreFailed means analysis succeeded but storage failed
	// transiently. The result JSON is retained for replay.
	TrackingStatusStoreFailed TrackingStatus = "STORE_FAILED"
)

// AnalysisTracking is the authoritative per-article outcome of a batch run.
// ResultJSON is non-null only while status is STORE_FAILED.
type AnalysisTracking struct {
	ID            int64          `db:"id"              json:"id"`
	PipelineRunID int64          `db:"pipeline_run_id" json:"pipeline_run_id"`
	ArticleID     int64          `db:"article_id"      json:"article_id"`
	BatchID       string         `db:"batch_id"        json:"batch_id"`
	Status        TrackingStatus `db:"status"          json:"status"`
	ErrorMessage  *string        `db:"error_message"   json:"error_message,omitempty"`
	ResultJSON    *string        `db:"result_json"     json:"result_json,omitempty"`
	CreatedAt     time.Time      `db:"created_at"      json:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at"      json:"updated_at"`
}

// AnalysisResult is the per-run record of a successfully analyzed article,
// the row analyzed_count is recomputed from.
type AnalysisResult struct {
	ID            int64     `db:"id"              json:"id"`
	PipelineRunID int64     `db:"pipeline_run_id" json:"pipeline_run_id"`
	ArticleID     int64     `db:"article_id"      json:"article_id"`
	BatchID       string    `db:"batch_id"        json:"batch_id"`
	Status        string    `db:"status"          json:"status"`
	Model         string    `db:"model"           json:"model"`
	CreatedAt     time.Time `db:"created_at"      json:"created_at"`
}
