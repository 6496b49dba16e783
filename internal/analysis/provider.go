package analysis

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jonesrussell/newsflow/internal/config"
	"github.com/jonesrussell/newsflow/internal/domain"
	"github.com/jonesrussell/newsflow/internal/logger"
)

// BatchState is the normalized lifecycle state of one provider batch.
type BatchState string

const (
	// BatchStatePending means the batch is accepted but not yet running.
	BatchStatePending BatchState = "PENDING"
	// BatchStateInProgress means the provider is working through the batch.
	BatchStateInProgress BatchState = "IN_PROGRESS"
	// BatchStateCompleted means every request has a result or an error line.
	BatchStateCompleted BatchState = "COMPLETED"
	// BatchStateFailed means the batch itself failed.
	BatchStateFailed BatchState = "FAILED"
	// BatchStateExpired means the completion window elapsed.
	BatchStateExpired BatchState = "EXPIRED"
	// BatchStateCancelled means the batch was cancelled remotely.
	BatchStateCancelled BatchState = "CANCELLED"
)

// Terminal reports whether the batch will make no further progress.
func (s BatchState) Terminal() bool {
	switch s {
	case BatchStateCompleted, BatchStateFailed, BatchStateExpired, BatchStateCancelled:
		return true
	default:
		return false
	}
}

// BatchStatus is one poll's view of a batch.
type BatchStatus struct {
	State     BatchState
	Total     int
	Completed int
	Failed    int
}

// AnalysisRequest is one article heading into a batch.
type AnalysisRequest struct {
	CustomID string
	Article  *domain.Article
}

// AnalysisResponse is one article's outcome after batch retrieval.
// ResultJSON holds the raw validated payload when Success is true.
type AnalysisResponse struct {
	CustomID     string
	Success      bool
	ResultJSON   string
	ErrorMessage string
}

// customIDPrefix keys batch lines back to operational article ids.
const customIDPrefix = "article_"

// CustomID builds the batch line id for an article.
func CustomID(articleID int64) string {
	return customIDPrefix + strconv.FormatInt(articleID, 10)
}

// ParseCustomID extracts the article id from a batch line id.
func ParseCustomID(customID string) (int64, error) {
	raw, ok := strings.CutPrefix(customID, customIDPrefix)
	if !ok {
		return 0, fmt.Errorf("unexpected custom id format: %q", customID)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("unexpected custom id format: %q", customID)
	}
	return id, nil
}

// NewRequest pairs an article with its batch line id.
func NewRequest(a *domain.Article) AnalysisRequest {
	return AnalysisRequest{CustomID: CustomID(a.ID), Article: a}
}

// Provider is the batch analysis capability. Implementations submit one
// batch of structured-output requests, report its progress, and retrieve
// per-line results once the batch ends.
//
//go:generate mockgen -source=provider.go -destination=../../testutils/mocks/analysis/provider.go -package=analysis Provider
type Provider interface {
	Name() string
	SubmitBatch(ctx context.Context, requests []AnalysisRequest) (string, error)
	CheckBatchStatus(ctx context.Context, batchID string) (*BatchStatus, error)
	RetrieveResults(ctx context.Context, batchID string) ([]AnalysisResponse, error)
}

// providerFactory builds one provider kind from config.
type providerFactory func(cfg config.LLMConfig, log logger.Logger) (Provider, error)

var providerFactories = map[string]providerFactory{
	"openai": func(cfg config.LLMConfig, log logger.Logger) (Provider, error) {
		return NewOpenAIProvider(cfg, log)
	},
	"anthropic": func(cfg config.LLMConfig, log logger.Logger) (Provider, error) {
		return NewAnthropicProvider(cfg, log)
	},
}

// NewProvider selects the configured batch provider.
func NewProvider(cfg config.LLMConfig, log logger.Logger) (Provider, error) {
	factory, ok := providerFactories[cfg.Provider]
	if !ok {
		return nil, fmt.Errorf("unsupported llm provider: %q", cfg.Provider)
	}
	return factory(cfg, log)
}
