// Package anthropic provides an adapter for the Anthropic messages API over
// plain HTTP. It implements the domain.Provider interface and tags errors
// with their kind at this boundary.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/davidbz/hearth/internal/domain"
	"github.com/davidbz/hearth/internal/observability"
)

const (
	operationName    = "anthropic-api"
	defaultMaxTokens = 1024
)

// Provider implements the domain.Provider interface for Anthropic.
type Provider struct {
	apiKey     string
	baseURL    string
	version    string
	name       string
	httpClient *http.Client
	models     map[string]bool
}

// NewProvider creates a new Anthropic provider.
func NewProvider(config Config) (*Provider, error) {
	if config.APIKey == "" {
		return nil, errors.New("Anthropic API key is required")
	}

	return &Provider{
		apiKey:  config.APIKey,
		baseURL: config.BaseURL,
		version: config.Version,
		name:    "anthropic",
		httpClient: &http.Client{
			Timeout: time.Duration(config.Timeout) * time.Second,
		},
		models: buildModelSet(SupportedModels()),
	}, nil
}

// SupportedModels returns the provider-native models this backend accepts.
func SupportedModels() []string {
	return []string{
		"claude-sonnet-4-5",
		"claude-haiku-4-5",
		"claude-opus-4-1",
	}
}

func buildModelSet(models []string) map[string]bool {
	set := make(map[string]bool, len(models))
	for _, model := range models {
		set[model] = true
	}
	return set
}

// anthropicRequest mirrors the messages API request body.
type anthropicRequest struct {
	Model         string             `json:"model"`
	System        string             `json:"system,omitempty"`
	Messages      []anthropicMessage `json:"messages"`
	MaxTokens     int                `json:"max_tokens"`
	Temperature   *float64           `json:"temperature,omitempty"`
	TopP          *float64           `json:"top_p,omitempty"`
	StopSequences []string           `json:"stop_sequences,omitempty"`
	Stream        bool               `json:"stream,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// anthropicResponse mirrors the messages API response body.
type anthropicResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func (p *Provider) toAPIRequest(req *domain.CompletionRequest, stream bool) anthropicRequest {
	maxTokens := req.MaxOutputTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	apiReq := anthropicRequest{
		Model:         req.Model,
		System:        req.System,
		MaxTokens:     maxTokens,
		Temperature:   req.Temperature,
		TopP:          req.TopP,
		StopSequences: req.StopSequences,
		Stream:        stream,
	}

	for _, msg := range req.Messages {
		apiReq.Messages = append(apiReq.Messages, anthropicMessage{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}

	return apiReq
}

func (p *Provider) doRequest(ctx context.Context, apiReq anthropicRequest, accept string) (*http.Response, error) {
	body, err := json.Marshal(apiReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		p.baseURL+"/v1/messages",
		bytes.NewReader(body),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", p.version)
	if accept != "" {
		httpReq.Header.Set("Accept", accept)
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, p.tagError(err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		errBody, _ := io.ReadAll(resp.Body)
		return nil, domain.ErrorFromStatus(operationName, resp.StatusCode,
			fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(errBody)))
	}

	return resp, nil
}

// Complete sends a completion request and returns the full response.
func (p *Provider) Complete(ctx context.Context, req *domain.CompletionRequest) (*domain.CompletionResponse, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}

	logger := observability.FromContext(ctx)
	logger.Debug("calling Anthropic API")

	resp, err := p.doRequest(ctx, p.toAPIRequest(req, false), "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var apiResp anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, domain.NewTransientError(operationName, 0,
			fmt.Errorf("failed to decode response: %w", err))
	}

	content := ""
	for _, block := range apiResp.Content {
		if block.Type == "text" {
			content += block.Text
		}
	}

	logger.Debug("Anthropic API call succeeded",
		observability.Int("prompt_tokens", apiResp.Usage.InputTokens),
		observability.Int("completion_tokens", apiResp.Usage.OutputTokens),
	)

	return &domain.CompletionResponse{
		ID:           apiResp.ID,
		Model:        apiResp.Model,
		BackendModel: apiResp.Model,
		Provider:     p.name,
		Content:      content,
		StopReason:   apiResp.StopReason,
		Usage: domain.Usage{
			PromptTokens:     apiResp.Usage.InputTokens,
			CompletionTokens: apiResp.Usage.OutputTokens,
			TotalTokens:      apiResp.Usage.InputTokens + apiResp.Usage.OutputTokens,
		},
		FinishTime: time.Now(),
	}, nil
}

// Stream sends a completion request and returns normalized backend events.
func (p *Provider) Stream(ctx context.Context, req *domain.CompletionRequest) (<-chan domain.StreamEvent, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}

	logger := observability.FromContext(ctx)
	logger.Debug("calling Anthropic streaming API")

	//nolint:bodyclose // closed by the reader goroutine
	resp, err := p.doRequest(ctx, p.toAPIRequest(req, true), "text/event-stream")
	if err != nil {
		return nil, err
	}

	events := make(chan domain.StreamEvent)
	go p.readStream(ctx, resp.Body, events)

	return events, nil
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return p.name
}

// SupportsStreaming reports native streaming support.
func (p *Provider) SupportsStreaming() bool {
	return true
}

// IsModelSupported checks if the provider supports the given model.
func (p *Provider) IsModelSupported(_ context.Context, model string) bool {
	return p.models[model]
}

// SupportedModels lists the provider-native models this backend accepts.
func (p *Provider) SupportedModels(_ context.Context) []string {
	return SupportedModels()
}

// tagError classifies a transport-level error once, here at the boundary.
func (p *Provider) tagError(err error) error {
	if errors.Is(err, context.Canceled) {
		return domain.NewCancelledError(operationName, err)
	}
	return domain.NewTransientError(operationName, 0,
		fmt.Errorf("Anthropic API call failed: %w", err))
}
