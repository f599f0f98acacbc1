// Package openai provides an adapter for the OpenAI API using the official
// SDK. It implements the domain.Provider interface, converting between
// canonical types and SDK types and tagging errors with their kind at this
// boundary so the resilience layer never has to inspect message text.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/davidbz/hearth/internal/domain"
	"github.com/davidbz/hearth/internal/observability"
)

const operationName = "openai-api"

// Provider implements the domain.Provider interface for OpenAI.
type Provider struct {
	client openai.Client
	name   string
	models map[string]bool
}

// NewProvider creates a new OpenAI provider.
func NewProvider(config Config) (*Provider, error) {
	if config.APIKey == "" {
		return nil, errors.New("OpenAI API key is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
	}

	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}

	if config.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(time.Duration(config.Timeout)*time.Second))
	}

	// The SDK's own retry layer is disabled: the resilience executor owns
	// retries so attempts aren't compounded.
	opts = append(opts, option.WithMaxRetries(0))

	return &Provider{
		client: openai.NewClient(opts...),
		name:   "openai",
		models: buildModelSet(SupportedModels()),
	}, nil
}

// Complete sends a completion request and returns the full response.
func (p *Provider) Complete(ctx context.Context, req *domain.CompletionRequest) (*domain.CompletionResponse, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}

	logger := observability.FromContext(ctx)
	logger.Debug("calling OpenAI API")

	resp, err := p.client.Chat.Completions.New(ctx, p.toSDKParams(req))
	if err != nil {
		return nil, p.tagError(err)
	}

	logger.Debug("OpenAI API call succeeded",
		observability.Int("prompt_tokens", int(resp.Usage.PromptTokens)),
		observability.Int("completion_tokens", int(resp.Usage.CompletionTokens)),
	)

	return p.toCanonicalResponse(resp), nil
}

// Stream sends a completion request and returns normalized backend events.
func (p *Provider) Stream(ctx context.Context, req *domain.CompletionRequest) (<-chan domain.StreamEvent, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}

	logger := observability.FromContext(ctx)
	logger.Debug("calling OpenAI streaming API")

	stream := p.client.Chat.Completions.NewStreaming(ctx, p.toSDKParams(req))

	events := make(chan domain.StreamEvent)

	go func() {
		defer close(events)
		defer logger.Debug("OpenAI stream completed")

		var usage *domain.Usage

		for stream.Next() {
			chunk := stream.Current()

			if chunk.Usage.TotalTokens > 0 {
				usage = &domain.Usage{
					PromptTokens:     int(chunk.Usage.PromptTokens),
					CompletionTokens: int(chunk.Usage.CompletionTokens),
					TotalTokens:      int(chunk.Usage.TotalTokens),
				}
			}

			if len(chunk.Choices) == 0 {
				continue
			}
			choice := chunk.Choices[0]

			if choice.Delta.Content != "" {
				select {
				case events <- domain.StreamEvent{Type: domain.EventDelta, Delta: choice.Delta.Content}:
				case <-ctx.Done():
					return
				}
			}

			if choice.FinishReason != "" {
				select {
				case events <- domain.StreamEvent{
					Type:       domain.EventDone,
					StopReason: choice.FinishReason,
					Usage:      usage,
				}:
				case <-ctx.Done():
				}
				return
			}
		}

		if err := stream.Err(); err != nil && !errors.Is(err, io.EOF) {
			select {
			case events <- domain.StreamEvent{Type: domain.EventError, Err: p.tagError(err)}:
			case <-ctx.Done():
			}
			return
		}

		// Stream drained without an explicit finish; report completion with
		// whatever usage we saw.
		select {
		case events <- domain.StreamEvent{Type: domain.EventDone, Usage: usage}:
		case <-ctx.Done():
		}
	}()

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

// tagError classifies an SDK error once, here at the boundary.
func (p *Provider) tagError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.Canceled) {
		return domain.NewCancelledError(operationName, err)
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return domain.ErrorFromStatus(operationName, apiErr.StatusCode, err)
	}

	// Network-level failures (timeouts, resets) arrive untagged.
	return domain.NewTransientError(operationName, 0, fmt.Errorf("OpenAI API call failed: %w", err))
}

// toSDKParams converts the canonical request to SDK parameters. System
// instructions become a leading system message, which is what this backend
// expects.
func (p *Provider) toSDKParams(req *domain.CompletionRequest) openai.ChatCompletionNewParams {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)

	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}

	for _, msg := range req.Messages {
		switch msg.Role {
		case domain.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(msg.Content))
		default:
			messages = append(messages, openai.UserMessage(msg.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(req.Model),
		Messages: messages,
	}

	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}

	if req.TopP != nil {
		params.TopP = openai.Float(*req.TopP)
	}

	if req.MaxOutputTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxOutputTokens))
	}

	if len(req.StopSequences) > 0 {
		params.Stop = openai.ChatCompletionNewParamsStopUnion{
			OfStringArray: req.StopSequences,
		}
	}

	return params
}

// toCanonicalResponse converts the SDK response to the canonical shape.
func (p *Provider) toCanonicalResponse(resp *openai.ChatCompletion) *domain.CompletionResponse {
	content := ""
	stopReason := ""
	if len(resp.Choices) > 0 {
		content = resp.Choices[0].Message.Content
		stopReason = resp.Choices[0].FinishReason
	}

	return &domain.CompletionResponse{
		ID:           resp.ID,
		Model:        string(resp.Model),
		BackendModel: string(resp.Model),
		Provider:     p.name,
		Content:      content,
		StopReason:   stopReason,
		Usage: domain.Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
		FinishTime: time.Now(),
	}
}
