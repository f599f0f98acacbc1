package gateway_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/davidbz/hearth/internal/domain"
	"github.com/davidbz/hearth/internal/gateway"
	"github.com/davidbz/hearth/internal/provider/registry"
	"github.com/davidbz/hearth/internal/resilience"
	"github.com/davidbz/hearth/internal/routing"
	"github.com/davidbz/hearth/internal/stream"
)

// mockProvider scripts the backend: completeErr fails Complete, streamEvents
// feeds Stream, canStream selects the native streaming path.
type mockProvider struct {
	name         string
	canStream    bool
	completeErr  error
	streamErr    error
	streamEvents []domain.StreamEvent
	completes    int
	lastModel    string
}

func (m *mockProvider) Complete(_ context.Context, req *domain.CompletionRequest) (*domain.CompletionResponse, error) {
	m.completes++
	m.lastModel = req.Model
	if m.completeErr != nil {
		return nil, m.completeErr
	}
	return &domain.CompletionResponse{
		ID:         "resp-1",
		Model:      req.Model,
		Provider:   m.name,
		Content:    "backend says hi",
		Usage:      domain.Usage{PromptTokens: 2, CompletionTokens: 3, TotalTokens: 5},
		FinishTime: time.Now(),
	}, nil
}

func (m *mockProvider) Stream(_ context.Context, req *domain.CompletionRequest) (<-chan domain.StreamEvent, error) {
	m.lastModel = req.Model
	if m.streamErr != nil {
		return nil, m.streamErr
	}
	ch := make(chan domain.StreamEvent, len(m.streamEvents))
	for _, ev := range m.streamEvents {
		ch <- ev
	}
	close(ch)
	return ch, nil
}

func (m *mockProvider) Name() string                                  { return m.name }
func (m *mockProvider) SupportsStreaming() bool                       { return m.canStream }
func (m *mockProvider) IsModelSupported(context.Context, string) bool { return true }
func (m *mockProvider) SupportedModels(context.Context) []string      { return nil }

// mockFallback is an in-memory fallback store.
type mockFallback struct {
	stored map[string]*domain.CompletionResponse
}

func newMockFallback() *mockFallback {
	return &mockFallback{stored: make(map[string]*domain.CompletionResponse)}
}

func (m *mockFallback) key(d domain.RoutingDecision) string {
	return d.Provider + "/" + d.BackendModel
}

func (m *mockFallback) Lookup(_ context.Context, d domain.RoutingDecision) (*domain.CompletionResponse, bool) {
	resp, ok := m.stored[m.key(d)]
	if !ok {
		return nil, false
	}
	replay := *resp
	replay.Degraded = true
	replay.Model = d.RequestedModel
	return &replay, true
}

func (m *mockFallback) Store(_ context.Context, d domain.RoutingDecision, resp *domain.CompletionResponse, _ time.Duration) error {
	m.stored[m.key(d)] = resp
	return nil
}

type captureSink struct {
	chunks []domain.StreamChunk
}

func (s *captureSink) Send(chunk domain.StreamChunk) bool {
	s.chunks = append(s.chunks, chunk)
	return true
}

func (s *captureSink) types() []domain.ChunkType {
	types := make([]domain.ChunkType, 0, len(s.chunks))
	for _, c := range s.chunks {
		types = append(types, c.Type)
	}
	return types
}

func (s *captureSink) content() string {
	var b strings.Builder
	for _, c := range s.chunks {
		b.WriteString(c.Content)
	}
	return b.String()
}

func fastPolicy() resilience.Policy {
	return resilience.Policy{
		MaxAttempts:       3,
		BaseDelay:         time.Millisecond,
		MaxDelay:          5 * time.Millisecond,
		BackoffMultiplier: 2.0,
		JitterFactor:      0,
		Timeout:           time.Second,
	}
}

func newService(t *testing.T, provider *mockProvider, store domain.FallbackStore) *gateway.Service {
	t.Helper()

	reg := registry.NewRegistry()
	require.NoError(t, reg.Register(context.Background(), provider))

	router := routing.NewRouter([]routing.AliasSet{
		{Provider: provider.name, Aliases: map[string]string{"alias": "backend-model"}},
	}, provider.name, "default-model")

	executor := resilience.NewExecutor(resilience.BreakerConfig{
		FailureThreshold: 5,
		RecoveryTimeout:  time.Minute,
	}, nil)

	emitter := stream.NewEmitter(5, 1, nil)

	return gateway.NewService(reg, router, executor, fastPolicy(), store, emitter, nil)
}

func request(model string) *domain.CompletionRequest {
	return &domain.CompletionRequest{
		Model:    model,
		Messages: []domain.Message{{Role: domain.RoleUser, Content: "hello"}},
	}
}

func TestService_Complete(t *testing.T) {
	ctx := context.Background()

	t.Run("should route the alias and echo it in the response", func(t *testing.T) {
		provider := &mockProvider{name: "mock"}
		svc := newService(t, provider, newMockFallback())

		resp, err := svc.Complete(ctx, request("alias"))
		require.NoError(t, err)
		require.Equal(t, "alias", resp.Model)
		require.Equal(t, "backend-model", provider.lastModel)
		require.Equal(t, "backend says hi", resp.Content)
		require.False(t, resp.Degraded)
	})

	t.Run("should reject empty messages", func(t *testing.T) {
		svc := newService(t, &mockProvider{name: "mock"}, nil)

		_, err := svc.Complete(ctx, &domain.CompletionRequest{Model: "alias"})
		require.Error(t, err)
		require.Equal(t, domain.KindValidation, domain.KindOf(err))
	})

	t.Run("should store successful responses for degradation", func(t *testing.T) {
		store := newMockFallback()
		svc := newService(t, &mockProvider{name: "mock"}, store)

		_, err := svc.Complete(ctx, request("alias"))
		require.NoError(t, err)
		require.Contains(t, store.stored, "mock/backend-model")
	})

	t.Run("should serve the fallback payload when the backend fails", func(t *testing.T) {
		store := newMockFallback()

		healthy := &mockProvider{name: "mock"}
		svc := newService(t, healthy, store)
		_, err := svc.Complete(ctx, request("alias"))
		require.NoError(t, err)

		healthy.completeErr = domain.NewTransientError("mock-api", 503, errors.New("down"))
		resp, err := svc.Complete(ctx, request("alias"))
		require.NoError(t, err)
		require.True(t, resp.Degraded)
		require.Equal(t, "alias", resp.Model)
		require.Equal(t, "backend says hi", resp.Content)
	})

	t.Run("should surface the error when no fallback exists", func(t *testing.T) {
		provider := &mockProvider{
			name:        "mock",
			completeErr: domain.NewTransientError("mock-api", 503, errors.New("down")),
		}
		svc := newService(t, provider, newMockFallback())

		_, err := svc.Complete(ctx, request("alias"))
		require.Error(t, err)
		require.Equal(t, domain.KindTransient, domain.KindOf(err))
		// All attempts were spent before giving up.
		require.Equal(t, 3, provider.completes)
	})

	t.Run("should not degrade permanent caller errors", func(t *testing.T) {
		store := newMockFallback()

		healthy := &mockProvider{name: "mock"}
		svc := newService(t, healthy, store)
		_, err := svc.Complete(ctx, request("alias"))
		require.NoError(t, err)

		healthy.completeErr = domain.NewPermanentError("mock-api", 401, errors.New("bad key"))
		_, err = svc.Complete(ctx, request("alias"))
		require.Error(t, err)
		require.Equal(t, domain.KindPermanent, domain.KindOf(err))
	})
}

func TestService_StreamTo(t *testing.T) {
	ctx := context.Background()

	t.Run("should simulate a stream for a non-streaming backend", func(t *testing.T) {
		svc := newService(t, &mockProvider{name: "mock"}, nil)
		sink := &captureSink{}

		svc.StreamTo(ctx, sink, request("alias"))

		types := sink.types()
		require.Equal(t, domain.ChunkStart, types[0])
		require.Equal(t, domain.ChunkEnd, types[len(types)-1])
		require.Equal(t, "backend says hi", sink.content())

		// Every chunk belongs to the same message.
		for _, c := range sink.chunks {
			require.Equal(t, sink.chunks[0].MessageID, c.MessageID)
			require.Equal(t, "alias", c.Model)
		}
	})

	t.Run("should relay a native stream", func(t *testing.T) {
		provider := &mockProvider{
			name:      "mock",
			canStream: true,
			streamEvents: []domain.StreamEvent{
				{Type: domain.EventDelta, Delta: "str"},
				{Type: domain.EventDelta, Delta: "eamed"},
				{Type: domain.EventDone, Usage: &domain.Usage{TotalTokens: 4}},
			},
		}
		svc := newService(t, provider, nil)
		sink := &captureSink{}

		svc.StreamTo(ctx, sink, request("alias"))

		require.Equal(t, []domain.ChunkType{
			domain.ChunkStart, domain.ChunkContent, domain.ChunkContent, domain.ChunkEnd,
		}, sink.types())
		require.Equal(t, "streamed", sink.content())
		require.Equal(t, "backend-model", provider.lastModel)
	})

	t.Run("should emit an error terminal when the stream cannot open", func(t *testing.T) {
		provider := &mockProvider{
			name:      "mock",
			canStream: true,
			streamErr: domain.NewPermanentError("mock-api", 400, errors.New("bad request")),
		}
		svc := newService(t, provider, nil)
		sink := &captureSink{}

		svc.StreamTo(ctx, sink, request("alias"))

		require.Equal(t, []domain.ChunkType{domain.ChunkStart, domain.ChunkError}, sink.types())
		require.NotEmpty(t, sink.chunks[1].ErrorMsg)
	})

	t.Run("should simulate the fallback payload when the stream fails", func(t *testing.T) {
		store := newMockFallback()

		provider := &mockProvider{name: "mock", canStream: true}
		svc := newService(t, provider, store)
		_, err := svc.Complete(ctx, request("alias"))
		require.NoError(t, err)

		provider.streamErr = domain.NewTransientError("mock-api", 503, errors.New("down"))
		sink := &captureSink{}
		svc.StreamTo(ctx, sink, request("alias"))

		types := sink.types()
		require.Equal(t, domain.ChunkStart, types[0])
		require.Equal(t, domain.ChunkEnd, types[len(types)-1])
		require.Equal(t, "backend says hi", sink.content())
	})

	t.Run("should emit an error terminal for an empty request", func(t *testing.T) {
		svc := newService(t, &mockProvider{name: "mock"}, nil)
		sink := &captureSink{}

		svc.StreamTo(ctx, sink, &domain.CompletionRequest{Model: "alias"})

		require.Equal(t, []domain.ChunkType{domain.ChunkStart, domain.ChunkError}, sink.types())
	})

	t.Run("should write nothing when the caller has already gone", func(t *testing.T) {
		svc := newService(t, &mockProvider{name: "mock"}, nil)
		sink := &captureSink{}

		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		svc.StreamTo(cancelled, sink, request("alias"))
		require.Empty(t, sink.chunks)
	})
}
