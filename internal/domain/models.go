package domain

import (
	"encoding/json"
	"time"
)

// Message roles accepted in a canonical conversation.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message represents a single chat turn.
type Message struct {
	Role    string `json:"role"` // user, assistant, system
	Content string `json:"content"`
}

// Tool describes a tool the model may call, in provider-neutral form.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema,omitempty"`
}

// CompletionRequest is the canonical request every caller-facing wire format
// is normalized into. Messages is never empty after normalization; a bare
// string input becomes a single user turn, and a leading system turn is
// hoisted into System.
type CompletionRequest struct {
	Model              string            `json:"model"`
	System             string            `json:"system,omitempty"`
	Messages           []Message         `json:"messages"`
	Stream             bool              `json:"stream,omitempty"`
	MaxOutputTokens    int               `json:"max_output_tokens,omitempty"`
	Temperature        *float64          `json:"temperature,omitempty"`
	TopP               *float64          `json:"top_p,omitempty"`
	StopSequences      []string          `json:"stop_sequences,omitempty"`
	Tools              []Tool            `json:"tools,omitempty"`
	ToolChoice         json.RawMessage   `json:"tool_choice,omitempty"`
	ReasoningEffort    string            `json:"reasoning_effort,omitempty"`
	PreviousResponseID string            `json:"previous_response_id,omitempty"`
	Metadata           map[string]string `json:"metadata,omitempty"`
}

// Usage tracks token consumption.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// CompletionResponse is the canonical response shape. Model carries the alias
// the caller asked for; BackendModel is what the provider was actually called
// with.
type CompletionResponse struct {
	ID           string    `json:"id"`
	Model        string    `json:"model"`
	BackendModel string    `json:"backend_model,omitempty"`
	Provider     string    `json:"provider"`
	Content      string    `json:"content"`
	StopReason   string    `json:"stop_reason,omitempty"`
	Usage        Usage     `json:"usage"`
	Degraded     bool      `json:"degraded,omitempty"`
	FinishTime   time.Time `json:"finish_time"`
}

// RoutingDecision is the result of resolving a requested model alias against
// the static alias table. Resolution never fails; unknown aliases fall back
// to the configured default provider and model.
type RoutingDecision struct {
	Provider       string `json:"provider"`
	BackendModel   string `json:"backend_model"`
	RequestedModel string `json:"requested_model"`
}

// StreamEventType classifies a provider-native stream event after the
// provider adapter has normalized it.
type StreamEventType string

const (
	EventDelta          StreamEventType = "delta"
	EventToolDelta      StreamEventType = "tool_delta"
	EventReasoningDelta StreamEventType = "reasoning_delta"
	EventDone           StreamEventType = "done"
	EventError          StreamEventType = "error"
)

// StreamEvent is one normalized event from a backend's native stream.
// Adapters may forward event types outside the known set; the emitter drops
// those without surfacing them to the caller.
type StreamEvent struct {
	Type       StreamEventType
	Delta      string
	StopReason string
	Usage      *Usage
	Err        error
}

// ChunkType classifies an outbound stream chunk.
type ChunkType string

const (
	ChunkStart     ChunkType = "start"
	ChunkContent   ChunkType = "chunk"
	ChunkEnd       ChunkType = "end"
	ChunkError     ChunkType = "error"
	ChunkHeartbeat ChunkType = "heartbeat"
)

// StreamChunk is the outbound wire unit written to streaming callers.
// For a given MessageID the sequence contains exactly one start, zero or more
// chunk, and exactly one terminal (end or error). Heartbeats carry no
// MessageID and may interleave with any message's sequence.
type StreamChunk struct {
	Type          ChunkType `json:"type"`
	CorrelationID string    `json:"correlation_id"`
	Timestamp     time.Time `json:"timestamp"`
	MessageID     string    `json:"message_id,omitempty"`
	Content       string    `json:"content,omitempty"`
	Model         string    `json:"model,omitempty"`
	Usage         *Usage    `json:"usage,omitempty"`
	ErrorMsg      string    `json:"error,omitempty"`
}

// Terminal reports whether the chunk ends its message's sequence.
func (c StreamChunk) Terminal() bool {
	return c.Type == ChunkEnd || c.Type == ChunkError
}
