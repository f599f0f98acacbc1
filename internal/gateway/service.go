// Package gateway orchestrates the proxy pipeline: resolve the routing
// decision, invoke the chosen provider under the resilience executor, and
// return the canonical result - complete, relayed as a native stream, or
// synthesized into one when the backend cannot stream.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/davidbz/hearth/internal/domain"
	"github.com/davidbz/hearth/internal/observability"
	"github.com/davidbz/hearth/internal/resilience"
	"github.com/davidbz/hearth/internal/routing"
	"github.com/davidbz/hearth/internal/stream"
)

// Service wires the router, provider registry, resilience executor, fallback
// store and streaming emitter into one request pipeline.
type Service struct {
	registry domain.ProviderRegistry
	router   *routing.Router
	executor *resilience.Executor
	policy   resilience.Policy
	fallback domain.FallbackStore
	emitter  *stream.Emitter
	metrics  *observability.Metrics
}

// NewService creates the gateway service (DI constructor). fallback and
// metrics may be nil.
func NewService(
	registry domain.ProviderRegistry,
	router *routing.Router,
	executor *resilience.Executor,
	policy resilience.Policy,
	fallbackStore domain.FallbackStore,
	emitter *stream.Emitter,
	metrics *observability.Metrics,
) *Service {
	return &Service{
		registry: registry,
		router:   router,
		executor: executor,
		policy:   policy,
		fallback: fallbackStore,
		emitter:  emitter,
		metrics:  metrics,
	}
}

func operationName(provider string) string {
	return provider + "-api"
}

// Complete handles a non-streaming request. Exactly one terminal outcome is
// produced: a live response, a degraded fallback payload, or an error.
func (s *Service) Complete(ctx context.Context, req *domain.CompletionRequest) (*domain.CompletionResponse, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}
	if len(req.Messages) == 0 {
		return nil, domain.NewValidationError("messages cannot be empty")
	}

	decision := s.router.Route(req)
	ctx = observability.WithProvider(ctx, decision.Provider)

	resp, err := s.complete(ctx, decision, req)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// complete runs the resilient backend call for a decision and applies
// graceful degradation and fallback bookkeeping. The response always echoes
// the alias the caller requested.
func (s *Service) complete(ctx context.Context, decision domain.RoutingDecision, req *domain.CompletionRequest) (*domain.CompletionResponse, error) {
	logger := observability.FromContext(ctx)

	provider, err := s.registry.Get(ctx, decision.Provider)
	if err != nil {
		return nil, fmt.Errorf("provider not found: %w", err)
	}

	backendReq := *req
	backendReq.Model = decision.BackendModel

	op := operationName(decision.Provider)
	started := time.Now()

	resp, err := resilience.Execute(ctx, s.executor, op, s.policy,
		func(ctx context.Context) (*domain.CompletionResponse, error) {
			return provider.Complete(ctx, &backendReq)
		})

	if err != nil {
		if domain.IsCancellation(err) {
			return nil, err
		}

		if s.fallback != nil && domain.IsDegradable(err) {
			if degraded, ok := s.fallback.Lookup(ctx, decision); ok {
				logger.Warn("backend failed, serving degraded response",
					observability.Error(err))
				if s.metrics != nil {
					s.metrics.ObserveDegradation(decision.Provider)
				}
				s.observe(decision, "degraded", started)
				return degraded, nil
			}
		}

		s.observe(decision, "error", started)
		return nil, err
	}

	resp.Model = decision.RequestedModel

	if s.fallback != nil {
		if storeErr := s.fallback.Store(ctx, decision, resp, 0); storeErr != nil {
			logger.Warn("failed to store fallback payload",
				observability.Error(storeErr))
		}
	}

	s.observe(decision, "success", started)
	return resp, nil
}

func (s *Service) observe(decision domain.RoutingDecision, outcome string, started time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveRequest(decision.Provider, decision.RequestedModel, outcome, time.Since(started).Seconds())
	}
}

// StreamTo handles a streaming request, writing the canonical chunk sequence
// to the sink. Backends that stream natively are relayed; the rest run a
// resilient Complete whose result is sliced into a simulated stream. A
// failure after the connection is open surfaces as an error chunk; caller
// cancellation just stops the writes.
func (s *Service) StreamTo(ctx context.Context, sink domain.ChunkSink, req *domain.CompletionRequest) {
	correlationID := observability.GetCorrelationID(ctx)
	messageID := "msg_" + uuid.New().String()

	if req == nil || len(req.Messages) == 0 {
		s.emitFailure(sink, correlationID, messageID, "", "messages cannot be empty")
		return
	}

	decision := s.router.Route(req)
	ctx = observability.WithProvider(ctx, decision.Provider)
	logger := observability.FromContext(ctx)

	provider, err := s.registry.Get(ctx, decision.Provider)
	if err != nil {
		s.emitFailure(sink, correlationID, messageID, decision.RequestedModel, "provider not found")
		return
	}

	if !provider.SupportsStreaming() {
		resp, err := s.complete(ctx, decision, req)
		if err != nil {
			if domain.IsCancellation(err) {
				return
			}
			s.emitFailure(sink, correlationID, messageID, decision.RequestedModel, err.Error())
			return
		}
		s.emitter.Simulate(ctx, sink, correlationID, messageID, resp)
		return
	}

	backendReq := *req
	backendReq.Model = decision.BackendModel

	// The per-attempt timeout only guards opening the stream; it must not
	// cut the stream's life short, so it is stripped here and the relay
	// relies on caller cancellation.
	openPolicy := s.policy
	openPolicy.Timeout = 0

	events, err := resilience.Execute(ctx, s.executor, operationName(decision.Provider), openPolicy,
		func(ctx context.Context) (<-chan domain.StreamEvent, error) {
			return provider.Stream(ctx, &backendReq)
		})
	if err != nil {
		if domain.IsCancellation(err) {
			return
		}

		if s.fallback != nil && domain.IsDegradable(err) {
			if degraded, ok := s.fallback.Lookup(ctx, decision); ok {
				logger.Warn("backend stream failed, simulating degraded response",
					observability.Error(err))
				s.emitter.Simulate(ctx, sink, correlationID, messageID, degraded)
				return
			}
		}

		s.emitFailure(sink, correlationID, messageID, decision.RequestedModel, err.Error())
		return
	}

	s.emitter.Relay(ctx, sink, correlationID, messageID, decision.RequestedModel, events)
}

// emitFailure writes the minimal valid failed sequence: a start chunk and an
// error terminal for the message.
func (s *Service) emitFailure(sink domain.ChunkSink, correlationID, messageID, model, message string) {
	now := time.Now()
	if !sink.Send(domain.StreamChunk{
		Type:          domain.ChunkStart,
		CorrelationID: correlationID,
		Timestamp:     now,
		MessageID:     messageID,
		Model:         model,
	}) {
		return
	}
	sink.Send(domain.StreamChunk{
		Type:          domain.ChunkError,
		CorrelationID: correlationID,
		Timestamp:     time.Now(),
		MessageID:     messageID,
		Model:         model,
		ErrorMsg:      message,
	})
}
