package wire

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/davidbz/hearth/internal/domain"
)

// openaiChatRequest mirrors the OpenAI-style chat completion request body.
type openaiChatRequest struct {
	Model               string              `json:"model"`
	Messages            []openaiChatMessage `json:"messages"`
	MaxTokens           int                 `json:"max_tokens,omitempty"`
	MaxCompletionTokens int                 `json:"max_completion_tokens,omitempty"`
	Temperature         *float64            `json:"temperature,omitempty"`
	TopP                *float64            `json:"top_p,omitempty"`
	Stop                json.RawMessage     `json:"stop,omitempty"`
	Stream              bool                `json:"stream,omitempty"`
	Tools               []openaiTool        `json:"tools,omitempty"`
	ToolChoice          json.RawMessage     `json:"tool_choice,omitempty"`
	ReasoningEffort     string              `json:"reasoning_effort,omitempty"`
}

type openaiChatMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

type openaiTool struct {
	Type     string             `json:"type"`
	Function openaiToolFunction `json:"function"`
}

type openaiToolFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

type openaiContentPart struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// ParseOpenAI converts an OpenAI-style request body into the canonical shape.
// System-role turns are hoisted out of the message sequence.
func ParseOpenAI(body []byte) (*domain.CompletionRequest, error) {
	var raw openaiChatRequest
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, domain.NewValidationError(fmt.Sprintf("invalid request body: %v", err))
	}

	if raw.Model == "" {
		return nil, domain.NewValidationError("model is required")
	}
	if len(raw.Messages) == 0 {
		return nil, domain.NewValidationError("messages cannot be empty")
	}

	maxTokens := raw.MaxCompletionTokens
	if maxTokens == 0 {
		maxTokens = raw.MaxTokens
	}

	req := &domain.CompletionRequest{
		Model:           raw.Model,
		Stream:          raw.Stream,
		MaxOutputTokens: maxTokens,
		Temperature:     raw.Temperature,
		TopP:            raw.TopP,
		ToolChoice:      raw.ToolChoice,
		ReasoningEffort: raw.ReasoningEffort,
	}

	if len(raw.Stop) > 0 {
		stop, err := parseStop(raw.Stop)
		if err != nil {
			return nil, domain.NewValidationError(fmt.Sprintf("invalid stop field: %v", err))
		}
		req.StopSequences = stop
	}

	for _, msg := range raw.Messages {
		content, err := flattenOpenAIContent(msg.Content)
		if err != nil {
			return nil, domain.NewValidationError(fmt.Sprintf("invalid message content: %v", err))
		}

		switch msg.Role {
		case domain.RoleUser, domain.RoleAssistant:
			req.Messages = append(req.Messages, domain.Message{Role: msg.Role, Content: content})
		case domain.RoleSystem, "developer":
			req.System = joinSystem(req.System, content)
		default:
			return nil, domain.NewValidationError(fmt.Sprintf("unsupported message role: %s", msg.Role))
		}
	}

	if len(req.Messages) == 0 {
		return nil, domain.NewValidationError("messages must contain at least one user or assistant turn")
	}

	for _, tool := range raw.Tools {
		if tool.Type != "" && tool.Type != "function" {
			continue
		}
		req.Tools = append(req.Tools, domain.Tool{
			Name:        tool.Function.Name,
			Description: tool.Function.Description,
			InputSchema: tool.Function.Parameters,
		})
	}

	return req, nil
}

// flattenOpenAIContent accepts either a bare string or an array of content
// parts and returns the concatenated text.
func flattenOpenAIContent(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", nil
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return asString, nil
	}

	var parts []openaiContentPart
	if err := json.Unmarshal(raw, &parts); err != nil {
		return "", fmt.Errorf("content must be a string or an array of parts")
	}

	var texts []string
	for _, part := range parts {
		if part.Type == "" || part.Type == "text" {
			texts = append(texts, part.Text)
		}
	}
	return strings.Join(texts, ""), nil
}

// parseStop accepts either a single stop string or an array of them.
func parseStop(raw json.RawMessage) ([]string, error) {
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return []string{single}, nil
	}

	var many []string
	if err := json.Unmarshal(raw, &many); err != nil {
		return nil, fmt.Errorf("stop must be a string or an array of strings")
	}
	return many, nil
}

// openaiChatResponse mirrors the OpenAI-style chat completion object.
type openaiChatResponse struct {
	ID            string         `json:"id"`
	Object        string         `json:"object"`
	Created       int64          `json:"created"`
	Model         string         `json:"model"`
	Choices       []openaiChoice `json:"choices"`
	Usage         openaiUsage    `json:"usage"`
	CorrelationID string         `json:"correlation_id"`
}

type openaiChoice struct {
	Index        int                 `json:"index"`
	Message      openaiChoiceMessage `json:"message"`
	FinishReason string              `json:"finish_reason"`
}

type openaiChoiceMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openaiUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// formatOpenAIResponse renders the canonical response as an OpenAI-style chat
// completion object, echoing the alias the caller requested.
func formatOpenAIResponse(resp *domain.CompletionResponse, correlationID string) any {
	return openaiChatResponse{
		ID:      resp.ID,
		Object:  "chat.completion",
		Created: resp.FinishTime.Unix(),
		Model:   resp.Model,
		Choices: []openaiChoice{
			{
				Index: 0,
				Message: openaiChoiceMessage{
					Role:    domain.RoleAssistant,
					Content: resp.Content,
				},
				FinishReason: openaiFinishReason(resp.StopReason),
			},
		},
		Usage: openaiUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
		CorrelationID: correlationID,
	}
}

func openaiFinishReason(stopReason string) string {
	switch stopReason {
	case "max_tokens", "length":
		return "length"
	case "tool_use", "tool_calls":
		return "tool_calls"
	default:
		return "stop"
	}
}

// openaiError mirrors the OpenAI-style error envelope.
type openaiError struct {
	Error         openaiErrorInner `json:"error"`
	CorrelationID string           `json:"correlation_id"`
}

type openaiErrorInner struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
}

func formatOpenAIError(status int, message, correlationID string) any {
	return openaiError{
		Error: openaiErrorInner{
			Message: message,
			Type:    openaiErrorTypeFor(status),
		},
		CorrelationID: correlationID,
	}
}

func openaiErrorTypeFor(status int) string {
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
