package domain

import (
	"context"
	"time"
)

// Provider represents any LLM backend.
type Provider interface {
	// Complete sends a completion request and returns the full response.
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)

	// Stream sends a completion request and returns a stream of normalized
	// backend events. Only meaningful when SupportsStreaming is true.
	Stream(ctx context.Context, req *CompletionRequest) (<-chan StreamEvent, error)

	// Name returns the provider identifier.
	Name() string

	// SupportsStreaming reports whether the backend can stream natively.
	// When false the gateway synthesizes a stream from a complete response.
	SupportsStreaming() bool

	// IsModelSupported checks if the provider supports the given model.
	IsModelSupported(ctx context.Context, model string) bool

	// SupportedModels lists the provider-native models this backend accepts.
	SupportedModels(ctx context.Context) []string
}

// ProviderRegistry manages available providers.
type ProviderRegistry interface {
	// Register adds a provider to the registry.
	Register(ctx context.Context, provider Provider) error

	// Get retrieves a provider by name.
	Get(ctx context.Context, providerName string) (Provider, error)

	// List returns all available provider names.
	List(ctx context.Context) ([]string, error)
}

// FallbackStore supplies a lower-fidelity payload when the primary backend
// path fails terminally, and records successful responses for later replay.
type FallbackStore interface {
	// Lookup returns a degraded payload for the decision, when one exists.
	Lookup(ctx context.Context, decision RoutingDecision) (*CompletionResponse, bool)

	// Store records a successful response as future fallback material.
	Store(ctx context.Context, decision RoutingDecision, resp *CompletionResponse, ttl time.Duration) error
}

// ChunkSink is anything stream chunks can be written to: an SSE connection
// held by the registry, or a test capture. Send reports false once the sink
// is no longer writable; the writer must then stop without treating it as an
// error.
type ChunkSink interface {
	Send(chunk StreamChunk) bool
}
