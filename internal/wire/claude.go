package wire

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/davidbz/hearth/internal/domain"
)

// claudeRequest mirrors the Claude-style messages request body.
type claudeRequest struct {
	Model         string          `json:"model"`
	System        json.RawMessage `json:"system,omitempty"`
	Messages      []claudeMessage `json:"messages"`
	MaxTokens     int             `json:"max_tokens,omitempty"`
	Temperature   *float64        `json:"temperature,omitempty"`
	TopP          *float64        `json:"top_p,omitempty"`
	StopSequences []string        `json:"stop_sequences,omitempty"`
	Stream        bool            `json:"stream,omitempty"`
	Tools         []claudeTool    `json:"tools,omitempty"`
	ToolChoice    json.RawMessage `json:"tool_choice,omitempty"`
	Metadata      map[string]any  `json:"metadata,omitempty"`
}

type claudeMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

type claudeTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema,omitempty"`
}

type claudeContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// ParseClaude converts a Claude-style request body into the canonical shape.
func ParseClaude(body []byte) (*domain.CompletionRequest, error) {
	var raw claudeRequest
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, domain.NewValidationError(fmt.Sprintf("invalid request body: %v", err))
	}

	if raw.Model == "" {
		return nil, domain.NewValidationError("model is required")
	}
	if len(raw.Messages) == 0 {
		return nil, domain.NewValidationError("messages cannot be empty")
	}

	req := &domain.CompletionRequest{
		Model:           raw.Model,
		Stream:          raw.Stream,
		MaxOutputTokens: raw.MaxTokens,
		Temperature:     raw.Temperature,
		TopP:            raw.TopP,
		StopSequences:   raw.StopSequences,
		ToolChoice:      raw.ToolChoice,
	}

	if len(raw.System) > 0 {
		system, err := flattenClaudeContent(raw.System)
		if err != nil {
			return nil, domain.NewValidationError(fmt.Sprintf("invalid system field: %v", err))
		}
		req.System = system
	}

	for _, msg := range raw.Messages {
		content, err := flattenClaudeContent(msg.Content)
		if err != nil {
			return nil, domain.NewValidationError(fmt.Sprintf("invalid message content: %v", err))
		}

		switch msg.Role {
		case domain.RoleUser, domain.RoleAssistant:
			req.Messages = append(req.Messages, domain.Message{Role: msg.Role, Content: content})
		case domain.RoleSystem:
			// A system turn inside the sequence is hoisted out.
			req.System = joinSystem(req.System, content)
		default:
			return nil, domain.NewValidationError(fmt.Sprintf("unsupported message role: %s", msg.Role))
		}
	}

	if len(req.Messages) == 0 {
		return nil, domain.NewValidationError("messages must contain at least one user or assistant turn")
	}

	for _, tool := range raw.Tools {
		req.Tools = append(req.Tools, domain.Tool{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: tool.InputSchema,
		})
	}

	return req, nil
}

// flattenClaudeContent accepts either a bare string or an array of content
// blocks and returns the concatenated text.
func flattenClaudeContent(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", nil
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return asString, nil
	}

	var blocks []claudeContentBlock
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return "", fmt.Errorf("content must be a string or an array of blocks")
	}

	var parts []string
	for _, block := range blocks {
		if block.Type == "" || block.Type == "text" {
			parts = append(parts, block.Text)
		}
	}
	return strings.Join(parts, ""), nil
}

func joinSystem(existing, extra string) string {
	if existing == "" {
		return extra
	}
	if extra == "" {
		return existing
	}
	return existing + "\n\n" + extra
}

// claudeResponse mirrors the Claude-style message response object.
type claudeResponse struct {
	ID            string               `json:"id"`
	Type          string               `json:"type"`
	Role          string               `json:"role"`
	Model         string               `json:"model"`
	Content       []claudeContentBlock `json:"content"`
	StopReason    string               `json:"stop_reason,omitempty"`
	Usage         claudeUsage          `json:"usage"`
	CorrelationID string               `json:"correlation_id"`
}

type claudeUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// formatClaudeResponse renders the canonical response as a Claude-style
// message object, echoing the alias the caller requested.
func formatClaudeResponse(resp *domain.CompletionResponse, correlationID string) any {
	stopReason := resp.StopReason
	if stopReason == "" {
		stopReason = "end_turn"
	}

	return claudeResponse{
		ID:         resp.ID,
		Type:       "message",
		Role:       domain.RoleAssistant,
		Model:      resp.Model,
		Content:    []claudeContentBlock{{Type: "text", Text: resp.Content}},
		StopReason: stopReason,
		Usage: claudeUsage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
		CorrelationID: correlationID,
	}
}

// claudeError mirrors the Claude-style error envelope.
type claudeError struct {
	Type          string           `json:"type"`
	Error         claudeErrorInner `json:"error"`
	CorrelationID string           `json:"correlation_id"`
}

type claudeErrorInner struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func formatClaudeError(status int, message, correlationID string) any {
	return claudeError{
		Type: "error",
		Error: claudeErrorInner{
			Type:    claudeErrorType(status),
			Message: message,
		},
		CorrelationID: correlationID,
	}
}

func claudeErrorType(status int) string {
	switch {
	case status == 400:
		return "invalid_request_error"
	case status == 401 || status == 403:
		return "authentication_error"
	case status == 429:
		return "rate_limit_error"
	case status >= 500:
		return "api_error"
	default:
		return "invalid_request_error"
	}
}
