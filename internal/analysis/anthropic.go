package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/jonesrussell/newsflow/internal/config"
	"github.com/jonesrussell/newsflow/internal/logger"
)

const (
	defaultAnthropicModel = "claude-3-5-haiku-latest"
	anthropicMaxTokens    = 4096
)

// AnthropicProvider runs analysis batches through the Anthropic Message
// Batches API. Anthropic has no server-side strict schema mode, so the
// schema travels in the system prompt and every result is validated against
// the output contract on retrieval.
type AnthropicProvider struct {
	client anthropic.Client
	model  string
	system string
	logger logger.Logger
}

// NewAnthropicProvider creates the Anthropic batch provider.
func NewAnthropicProvider(cfg config.LLMConfig, log logger.Logger) (*AnthropicProvider, error) {
	if cfg.Anthropic.APIKey == "" {
		return nil, fmt.Errorf("llm.anthropic.api_key is required for the anthropic provider")
	}
	model := cfg.Anthropic.Model
	if model == "" {
		model = defaultAnthropicModel
	}

	schemaJSON, err := json.Marshal(StrictResultSchema())
	if err != nil {
		return nil, fmt.Errorf("failed to encode result schema: %w", err)
	}

	return &AnthropicProvider{
		client: anthropic.NewClient(option.WithAPIKey(cfg.Anthropic.APIKey)),
		model:  model,
		system: systemPrompt + "\n\n回覆必須是符合以下 JSON schema 的單一 JSON 物件，不要加任何其他文字：\n" + string(schemaJSON),
		logger: log,
	}, nil
}

// Name identifies the provider in config and logs.
func (p *AnthropicProvider) Name() string { return "anthropic" }

// SubmitBatch creates one message batch with one request per article.
func (p *AnthropicProvider) SubmitBatch(ctx context.Context, requests []AnalysisRequest) (string, error) {
	if len(requests) == 0 {
		return "", fmt.Errorf("cannot submit an empty batch")
	}

	batchRequests := make([]anthropic.MessageBatchNewParamsRequest, 0, len(requests))
	for _, req := range requests {
		batchRequests = append(batchRequests, anthropic.MessageBatchNewParamsRequest{
			CustomID: req.CustomID,
			Params: anthropic.MessageBatchNewParamsRequestParams{
				Model:       anthropic.Model(p.model),
				MaxTokens:   anthropicMaxTokens,
				Temperature: anthropic.Float(0.1),
				System: []anthropic.TextBlockParam{
					{Text: p.system},
				},
				Messages: []anthropic.MessageParam{
					anthropic.NewUserMessage(anthropic.NewTextBlock(BuildUserPrompt(req.Article))),
				},
			},
		})
	}

	batch, err := p.client.Messages.Batches.New(ctx, anthropic.MessageBatchNewParams{
		Requests: batchRequests,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create message batch: %w", err)
	}

	p.logger.Info("batch submitted",
		logger.String("batch_id", batch.ID),
		logger.Int("requests", len(requests)),
		logger.String("model", p.model),
	)
	return batch.ID, nil
}

// CheckBatchStatus maps the batch's processing status onto the normalized
// lifecycle.
func (p *AnthropicProvider) CheckBatchStatus(ctx context.Context, batchID string) (*BatchStatus, error) {
	batch, err := p.client.Messages.Batches.Get(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to check batch %s: %w", batchID, err)
	}

	counts := batch.RequestCounts
	status := &BatchStatus{
		Total:     int(counts.Processing + counts.Succeeded + counts.Errored + counts.Canceled + counts.Expired),
		Completed: int(counts.Succeeded),
		Failed:    int(counts.Errored + counts.Canceled + counts.Expired),
	}

	status.State = mapAnthropicStatus(batch.ProcessingStatus)
	return status, nil
}

// mapAnthropicStatus normalizes the batch processing status. "canceling" is
// transitional: results are not retrievable until the batch reaches "ended",
// so it stays in progress until then.
func mapAnthropicStatus(status anthropic.MessageBatchProcessingStatus) BatchState {
	if status == anthropic.MessageBatchProcessingStatusEnded {
		return BatchStateCompleted
	}
	return BatchStateInProgress
}

// RetrieveResults streams the batch's result lines and validates every
// succeeded payload against the output contract.
func (p *AnthropicProvider) RetrieveResults(ctx context.Context, batchID string) ([]AnalysisResponse, error) {
	stream := p.client.Messages.Batches.ResultsStreaming(ctx, batchID)

	var responses []AnalysisResponse
	for stream.Next() {
		entry := stream.Current()
		responses = append(responses, parseAnthropicResult(entry))
	}
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("failed to stream batch results: %w", err)
	}
	return responses, nil
}

func parseAnthropicResult(entry anthropic.MessageBatchIndividualResponse) AnalysisResponse {
	resp := AnalysisResponse{CustomID: entry.CustomID}

	if entry.Result.Type != "succeeded" {
		resp.ErrorMessage = fmt.Sprintf("batch request %s", entry.Result.Type)
		return resp
	}

	var text strings.Builder
	for _, block := range entry.Result.Message.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	content, err := extractJSONObject(text.String())
	if err != nil {
		resp.ErrorMessage = err.Error()
		return resp
	}
	if _, err := ParseResult([]byte(content)); err != nil {
		resp.ErrorMessage = err.Error()
		return resp
	}

	resp.Success = true
	resp.ResultJSON = content
	return resp
}

// extractJSONObject pulls the first {...} block out of a completion, since a
// prompted model may wrap its JSON in prose or a code fence.
func extractJSONObject(content string) (string, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start == -1 || end <= start {
		return "", fmt.Errorf("no JSON object found in completion")
	}
	return content[start : end+1], nil
}
