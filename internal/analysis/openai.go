package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/jonesrussell/newsflow/internal/config"
	"github.com/jonesrussell/newsflow/internal/logger"
)

const (
	defaultOpenAIBaseURL    = "https://api.openai.com/v1"
	defaultCompletionWindow = "24h"
	chatCompletionsEndpoint = "/v1/chat/completions"

	// openAIHTTPTimeout bounds every single HTTP call; batch completion is
	// bounded separately by the coordinator's poll loop.
	openAIHTTPTimeout = 120 * time.Second
)

// OpenAIProvider submits batches against an OpenAI-compatible server-side
// batch endpoint: upload a JSONL request file, create the batch, poll it,
// then read the output and error files back.
type OpenAIProvider struct {
	apiKey           string
	baseURL          string
	model            string
	completionWindow string
	http             *http.Client
	logger           logger.Logger
}

// NewOpenAIProvider creates the canonical batch provider.
func NewOpenAIProvider(cfg config.LLMConfig, log logger.Logger) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm.api_key is required for the openai provider")
	}
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	window := cfg.CompletionWindow
	if window == "" {
		window = defaultCompletionWindow
	}
	return &OpenAIProvider{
		apiKey:           cfg.APIKey,
		baseURL:          baseURL,
		model:            cfg.Model,
		completionWindow: window,
		http:             &http.Client{Timeout: openAIHTTPTimeout},
		logger:           log,
	}, nil
}

// Name identifies the provider in config and logs.
func (p *OpenAIProvider) Name() string { return "openai" }

// batchLine is one JSONL request in the uploaded batch file.
type batchLine struct {
	CustomID string   `json:"custom_id"`
	Method   string   `json:"method"`
	URL      string   `json:"url"`
	Body     chatBody `json:"body"`
}

type chatBody struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	ResponseFormat responseFormat `json:"response_format"`
	Temperature    float64        `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type       string     `json:"type"`
	JSONSchema jsonSchema `json:"json_schema"`
}

type jsonSchema struct {
	Name   string         `json:"name"`
	Strict bool           `json:"strict"`
	Schema map[string]any `json:"schema"`
}

type fileObject struct {
	ID string `json:"id"`
}

type batchObject struct {
	ID            string  `json:"id"`
	Status        string  `json:"status"`
	OutputFileID  *string `json:"output_file_id"`
	ErrorFileID   *string `json:"error_file_id"`
	RequestCounts struct {
		Total     int `json:"total"`
		Completed int `json:"completed"`
		Failed    int `json:"failed"`
	} `json:"request_counts"`
}

// outputLine is one JSONL line of the batch output or error file.
type outputLine struct {
	CustomID string `json:"custom_id"`
	Response *struct {
		StatusCode int `json:"status_code"`
		Body       struct {
			Choices []struct {
				Message struct {
					Content string `json:"content"`
				} `json:"message"`
			} `json:"choices"`
		} `json:"body"`
	} `json:"response"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// SubmitBatch uploads the JSONL request file and creates the batch.
func (p *OpenAIProvider) SubmitBatch(ctx context.Context, requests []AnalysisRequest) (string, error) {
	if len(requests) == 0 {
		return "", fmt.Errorf("cannot submit an empty batch")
	}

	schema := StrictResultSchema()
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, req := range requests {
		line := batchLine{
			CustomID: req.CustomID,
			Method:   http.MethodPost,
			URL:      chatCompletionsEndpoint,
			Body: chatBody{
				Model: p.model,
				Messages: []chatMessage{
					{Role: "system", Content: systemPrompt},
					{Role: "user", Content: BuildUserPrompt(req.Article)},
				},
				ResponseFormat: responseFormat{
					Type: "json_schema",
					JSONSchema: jsonSchema{
						Name:   "news_analysis",
						Strict: true,
						Schema: schema,
					},
				},
				Temperature: 0.1,
			},
		}
		if err := enc.Encode(line); err != nil {
			return "", fmt.Errorf("failed to encode batch line %s: %w", req.CustomID, err)
		}
	}

	fileID, err := p.uploadFile(ctx, "batch.jsonl", buf.Bytes())
	if err != nil {
		return "", err
	}

	var batch batchObject
	payload := map[string]any{
		"input_file_id":     fileID,
		"endpoint":          chatCompletionsEndpoint,
		"completion_window": p.completionWindow,
	}
	if err := p.doJSON(ctx, http.MethodPost, "/batches", payload, &batch); err != nil {
		return "", fmt.Errorf("failed to create batch: %w", err)
	}

	p.logger.Info("batch submitted",
		logger.String("batch_id", batch.ID),
		logger.Int("requests", len(requests)),
		logger.String("model", p.model),
	)
	return batch.ID, nil
}

// CheckBatchStatus maps the provider's batch status onto the normalized
// lifecycle.
func (p *OpenAIProvider) CheckBatchStatus(ctx context.Context, batchID string) (*BatchStatus, error) {
	var batch batchObject
	if err := p.doJSON(ctx, http.MethodGet, "/batches/"+batchID, nil, &batch); err != nil {
		return nil, fmt.Errorf("failed to check batch %s: %w", batchID, err)
	}

	return &BatchStatus{
		State:     mapOpenAIStatus(batch.Status),
		Total:     batch.RequestCounts.Total,
		Completed: batch.RequestCounts.Completed,
		Failed:    batch.RequestCounts.Failed,
	}, nil
}

func mapOpenAIStatus(status string) BatchState {
	switch status {
	case "validating":
		return BatchStatePending
	// "cancelling" is transitional, output files finalize only once the
	// batch reaches "cancelled".
	case "in_progress", "finalizing", "cancelling":
		return BatchStateInProgress
	case "completed":
		return BatchStateCompleted
	case "expired":
		return BatchStateExpired
	case "cancelled":
		return BatchStateCancelled
	default:
		return BatchStateFailed
	}
}

// RetrieveResults reads the batch's output and error files. Every line
// becomes one response; payloads that fail the output contract become
// failures, never partial results.
func (p *OpenAIProvider) RetrieveResults(ctx context.Context, batchID string) ([]AnalysisResponse, error) {
	var batch batchObject
	if err := p.doJSON(ctx, http.MethodGet, "/batches/"+batchID, nil, &batch); err != nil {
		return nil, fmt.Errorf("failed to load batch %s: %w", batchID, err)
	}

	var responses []AnalysisResponse
	if batch.OutputFileID != nil && *batch.OutputFileID != "" {
		lines, err := p.readFileLines(ctx, *batch.OutputFileID)
		if err != nil {
			return nil, err
		}
		responses = append(responses, parseOutputLines(lines)...)
	}
	if batch.ErrorFileID != nil && *batch.ErrorFileID != "" {
		lines, err := p.readFileLines(ctx, *batch.ErrorFileID)
		if err != nil {
			return nil, err
		}
		responses = append(responses, parseOutputLines(lines)...)
	}

	return responses, nil
}

func parseOutputLines(lines []outputLine) []AnalysisResponse {
	responses := make([]AnalysisResponse, 0, len(lines))
	for _, line := range lines {
		responses = append(responses, parseOutputLine(line))
	}
	return responses
}

func parseOutputLine(line outputLine) AnalysisResponse {
	resp := AnalysisResponse{CustomID: line.CustomID}

	if line.Error != nil {
		resp.ErrorMessage = fmt.Sprintf("%s: %s", line.Error.Code, line.Error.Message)
		return resp
	}
	if line.Response == nil {
		resp.ErrorMessage = "batch line carries neither response nor error"
		return resp
	}
	if line.Response.StatusCode != http.StatusOK {
		resp.ErrorMessage = fmt.Sprintf("request failed with status %d", line.Response.StatusCode)
		return resp
	}
	if len(line.Response.Body.Choices) == 0 {
		resp.ErrorMessage = "response contains no choices"
		return resp
	}

	content := line.Response.Body.Choices[0].Message.Content
	if _, err := ParseResult([]byte(content)); err != nil {
		resp.ErrorMessage = err.Error()
		return resp
	}

	resp.Success = true
	resp.ResultJSON = content
	return resp
}

// uploadFile sends one multipart file with purpose=batch.
func (p *OpenAIProvider) uploadFile(ctx context.Context, name string, content []byte) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if err := writer.WriteField("purpose", "batch"); err != nil {
		return "", fmt.Errorf("failed to build upload form: %w", err)
	}
	part, err := writer.CreateFormFile("file", name)
	if err != nil {
		return "", fmt.Errorf("failed to build upload form: %w", err)
	}
	if _, err := part.Write(content); err != nil {
		return "", fmt.Errorf("failed to build upload form: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to build upload form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/files", &body)
	if err != nil {
		return "", fmt.Errorf("failed to create upload request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := p.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to upload batch file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("file upload returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var file fileObject
	if err := json.NewDecoder(resp.Body).Decode(&file); err != nil {
		return "", fmt.Errorf("failed to decode upload response: %w", err)
	}
	return file.ID, nil
}

// readFileLines downloads one JSONL file and decodes every line.
func (p *OpenAIProvider) readFileLines(ctx context.Context, fileID string) ([]outputLine, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/files/"+fileID+"/content", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create file request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download file %s: %w", fileID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("file download returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var lines []outputLine
	dec := json.NewDecoder(resp.Body)
	for dec.More() {
		var line outputLine
		if err := dec.Decode(&line); err != nil {
			return nil, fmt.Errorf("failed to decode result line: %w", err)
		}
		lines = append(lines, line)
	}
	return lines, nil
}

// doJSON sends one JSON request and decodes the JSON response.
func (p *OpenAIProvider) doJSON(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("request returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
