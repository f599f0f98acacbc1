// Package echo provides a testing provider that echoes back input messages.
// It implements the domain.Provider interface without making external API
// calls. The provider deliberately reports no native streaming support, so
// it also exercises the gateway's simulated streaming path end to end.
package echo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/davidbz/hearth/internal/domain"
	"github.com/davidbz/hearth/internal/observability"
)

const (
	providerName = "echo"
	modelName    = "echo4"
)

// Provider implements the domain.Provider interface for echo testing.
type Provider struct {
	name            string
	supportedModels map[string]bool
}

// NewProvider creates a new echo provider.
// No configuration is required as this provider operates entirely in-memory.
func NewProvider() *Provider {
	return &Provider{
		name: providerName,
		supportedModels: map[string]bool{
			modelName: true,
		},
	}
}

// Complete sends a completion request and returns the echoed response.
func (p *Provider) Complete(ctx context.Context, req *domain.CompletionRequest) (*domain.CompletionResponse, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}

	if !p.supportedModels[req.Model] {
		return nil, domain.NewPermanentError(providerName, 0,
			fmt.Errorf("model %s is not supported by echo provider", req.Model))
	}

	logger := observability.FromContext(ctx)
	logger.Debug("echoing request")

	echoContent := buildEchoContent(req.System, req.Messages)

	// Simple word-based token counting; echo returns the same size back.
	promptTokens := countTokens(echoContent)
	completionTokens := promptTokens

	return &domain.CompletionResponse{
		ID:           fmt.Sprintf("echo-%d", time.Now().UnixNano()),
		Model:        req.Model,
		BackendModel: req.Model,
		Provider:     p.name,
		Content:      echoContent,
		StopReason:   "end_turn",
		Usage: domain.Usage{
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			TotalTokens:      promptTokens + completionTokens,
		},
		FinishTime: time.Now(),
	}, nil
}

// Stream is not supported; the gateway synthesizes a stream from Complete.
func (p *Provider) Stream(_ context.Context, _ *domain.CompletionRequest) (<-chan domain.StreamEvent, error) {
	return nil, domain.NewPermanentError(providerName, 0,
		errors.New("echo provider does not stream natively"))
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return p.name
}

// SupportsStreaming reports native streaming support.
func (p *Provider) SupportsStreaming() bool {
	return false
}

// IsModelSupported checks if the provider supports the given model.
func (p *Provider) IsModelSupported(_ context.Context, model string) bool {
	return p.supportedModels[model]
}

// SupportedModels returns a list of all models this provider supports.
func (p *Provider) SupportedModels(_ context.Context) []string {
	models := make([]string, 0, len(p.supportedModels))
	for model := range p.supportedModels {
		models = append(models, model)
	}
	return models
}

// buildEchoContent constructs the echo response from request messages.
func buildEchoContent(system string, messages []domain.Message) string {
	var builder strings.Builder
	if system != "" {
		builder.WriteString(fmt.Sprintf("[system]: %s\n", system))
	}
	for _, msg := range messages {
		builder.WriteString(fmt.Sprintf("[%s]: %s\n", msg.Role, msg.Content))
	}
	return builder.String()
}

// countTokens performs simple word-based token counting.
func countTokens(content string) int {
	if content == "" {
		return 0
	}
	return len(strings.Fields(content))
}
