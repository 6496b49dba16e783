package domain

import (
	"fmt"
	"time"
)

// PipelineStatus represents a pipeline run state.
type PipelineStatus string

const (
	// PipelineStatusPending means the run is created but not started.
	PipelineStatusPending PipelineStatus = "PENDING"
	// PipelineStatusRunning means a stage is executing.
	PipelineStatusRunning PipelineStatus = "RUNNING"
	// PipelineStatusPaused means the run stopped cleanly and can be resumed.
	PipelineStatusPaused PipelineStatus = "PAUSED"
	// PipelineStatusCompleted means all stages finished.
	PipelineStatusCompleted PipelineStatus = "COMPLETED"
	// PipelineStatusFailed means a stage aborted the run.
	PipelineStatusFailed PipelineStatus = "FAILED"
)

// PipelineStage identifies one stage of the analysis pipeline.
type PipelineStage string

const (
	// StageFetch sizes the article window for the run.
	StageFetch PipelineStage = "FETCH"
	// StageRuleFilter applies the rule set to every article in the window.
	StageRuleFilter PipelineStage = "RULE_FILTER"
	// StageLLMAnalysis submits surviving articles for batched analysis.
	StageLLMAnalysis PipelineStage = "LLM_ANALYSIS"
	// StageStore recomputes statistics and finalizes the run.
	StageStore PipelineStage = "STORE"
)

// StageOrder lists pipeline stages in execution order.
var StageOrder = []PipelineStage{StageFetch, StageRuleFilter, StageLLMAnalysis, StageStore}

// StageIndex returns the position of a stage in the execution order, or -1.
func StageIndex(stage PipelineStage) int {
	for i, s := range StageOrder {
		if s == stage {
			return i
		}
	}
	return -1
}

// StagesFrom returns the stage and every stage after it in execution order.
func StagesFrom(stage PipelineStage) []PipelineStage {
	idx := StageIndex(stage)
	if idx < 0 {
		return nil
	}
	return StageOrder[idx:]
}

// ValidatePipelineTransition checks if a run status transition is valid.
// Returns an error if the transition is not allowed.
func ValidatePipelineTransition(from, to PipelineStatus) error {
	validTransitions := map[PipelineStatus][]PipelineStatus{
		PipelineStatusPending: {
			PipelineStatusRunning, // Start
			PipelineStatusFailed,  // Startup error
		},
		PipelineStatusRunning: {
			PipelineStatusPaused,    // until_stage reached or LLM poll timed out
			PipelineStatusCompleted, // All stages finished
			PipelineStatusFailed,    // Stage error
		},
		PipelineStatusPaused: {
			PipelineStatusRunning, // Resume
			PipelineStatusPending, // Reset
		},
		PipelineStatusCompleted: {
			PipelineStatusPending, // Reset for re-run
		},
		PipelineStatusFailed: {
			PipelineStatusPending, // Reset for re-run
			PipelineStatusRunning, // Direct retry
		},
	}

	allowed, exists := validTransitions[from]
	if !exists {
		return fmt.Errorf("unknown source status: %s", from)
	}
	for _, a := range allowed {
		if a == to {
			return nil
		}
	}
	return fmt.Errorf("invalid pipeline transition from %s to %s", from, to)
}

// IsTerminalPipelineStatus reports whether a run is finished.
// PAUSED is not terminal, a paused run resumes from its recorded stage.
func IsTerminalPipelineStatus(status PipelineStatus) bool {
	return status == PipelineStatusCompleted || status == PipelineStatusFailed
}

// PipelineRun is one execution of the analysis pipeline over a date window.
type PipelineRun struct {
	// Identity
	ID   int64  `db:"id"   json:"id"`
	Name string `db:"name" json:"name"`

	// State
	Status       PipelineStatus `db:"status"        json:"status"`
	CurrentStage *PipelineStage `db:"current_stage" json:"current_stage,omitempty"`

	// Article window
	DateFrom *time.Time `db:"date_from" json:"date_from,omitempty"`
	DateTo   *time.Time `db:"date_to"   json:"date_to,omitempty"`

	// Counters, recomputed from stage artifacts
	TotalArticles      int `db:"total_articles"       json:"total_articles"`
	RuleFilteredCount  int `db:"rule_filtered_count"  json:"rule_filtered_count"`
	RulePassedCount    int `db:"rule_passed_count"    json:"rule_passed_count"`
	ForceIncludedCount int `db:"force_included_count" json:"force_included_count"`
	AnalyzedCount      int `db:"analyzed_count"       json:"analyzed_count"`

	// LLM batch linkage, set at submit time so a poll crash can resume
	BatchID *string `db:"batch_id" json:"batch_id,omitempty"`

	ErrorLog *string `db:"error_log" json:"error_log,omitempty"`

	// Timing
	StartedAt   *time.Time `db:"started_at"   json:"started_at,omitempty"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt   time.Time  `db:"created_at"   json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at"   json:"updated_at"`
}
