// Package http exposes the gateway over HTTP: the completion endpoints in
// both wire dialects, the session-scoped streaming surface backed by the
// connection registry, and the management endpoints.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/davidbz/hearth/internal/domain"
	"github.com/davidbz/hearth/internal/gateway"
	"github.com/davidbz/hearth/internal/observability"
	"github.com/davidbz/hearth/internal/resilience"
	"github.com/davidbz/hearth/internal/sse"
	"github.com/davidbz/hearth/internal/wire"
	"go.uber.org/zap"
)

// Handler handles HTTP requests.
type Handler struct {
	gateway  *gateway.Service
	registry *sse.Registry
	executor *resilience.Executor
	metrics  *observability.Metrics
}

// NewHandler creates a new HTTP handler (DI constructor).
func NewHandler(
	gw *gateway.Service,
	registry *sse.Registry,
	executor *resilience.Executor,
	metrics *observability.Metrics,
) *Handler {
	return &Handler{
		gateway:  gw,
		registry: registry,
		executor: executor,
		metrics:  metrics,
	}
}

// HandleChatCompletions processes OpenAI-dialect completion requests.
func (h *Handler) HandleChatCompletions(w http.ResponseWriter, r *http.Request) {
	h.handleCompletion(w, r, wire.FormatOpenAI)
}

// HandleMessages processes Claude-dialect completion requests.
func (h *Handler) HandleMessages(w http.ResponseWriter, r *http.Request) {
	h.handleCompletion(w, r, wire.FormatClaude)
}

func (h *Handler) handleCompletion(w http.ResponseWriter, r *http.Request, hint wire.Format) {
	ctx := r.Context()
	correlationID := observability.GetCorrelationID(ctx)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.writeError(w, hint, http.StatusBadRequest, "failed to read request body", correlationID)
		return
	}

	// The endpoint sets the dialect hint, but the body and headers get the
	// final word so clients can hit either endpoint with either shape.
	format := wire.Detect(body, r.Header, hint)

	req, err := wire.Normalize(format, body)
	if err != nil {
		h.writeError(w, format, http.StatusBadRequest, err.Error(), correlationID)
		return
	}

	ctx = observability.WithModel(ctx, req.Model)
	if sessionID := r.Header.Get("X-Session-ID"); sessionID != "" {
		ctx = observability.WithSessionID(ctx, sessionID)
	}

	logger := observability.FromContext(ctx)
	logger.Info("completion request received",
		zap.String("format", string(format)),
		zap.String("model", req.Model),
		zap.Bool("stream", req.Stream),
	)

	if req.Stream {
		h.streamInline(ctx, w, format, req)
		return
	}

	response, err := h.gateway.Complete(ctx, req)
	if err != nil {
		if domain.IsCancellation(err) {
			logger.Info("completion cancelled by client")
			return
		}
		logger.Error("completion failed", zap.Error(err))
		h.writeError(w, format, httpStatusFor(err), err.Error(), correlationID)
		return
	}

	logger.Info("completion succeeded",
		zap.Int("tokens", response.Usage.TotalTokens),
		zap.Bool("degraded", response.Degraded),
	)

	h.writeJSON(w, http.StatusOK, wire.FormatResponse(format, response, correlationID))
}

// streamInline streams the canonical chunk sequence directly over the
// request's own response, for clients that set stream without opening a
// registry connection first.
func (h *Handler) streamInline(ctx context.Context, w http.ResponseWriter, format wire.Format, req *domain.CompletionRequest) {
	logger := observability.FromContext(ctx)
	correlationID := observability.GetCorrelationID(ctx)

	writer, err := newSSEWriter(w)
	if err != nil {
		logger.Error("streaming unsupported", zap.Error(err))
		h.writeError(w, format, http.StatusInternalServerError, "streaming not supported", correlationID)
		return
	}
	writer.commitHeaders()

	h.gateway.StreamTo(ctx, &writerSink{writer: writer}, req)
	logger.Info("stream finished")
}

// HandleOpenStream opens the long-lived SSE connection for a conversation
// and holds it until the registry closes it or the client goes away.
func (h *Handler) HandleOpenStream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := r.PathValue("session")
	conversationID := r.PathValue("conversation")

	ctx = observability.WithSessionID(ctx, sessionID)
	logger := observability.FromContext(ctx)

	writer, err := newSSEWriter(w)
	if err != nil {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	conn, err := h.registry.Open(ctx, sessionID, conversationID, writer)
	if err != nil {
		if errors.Is(err, sse.ErrSessionLimit) {
			h.writeJSON(w, http.StatusTooManyRequests, map[string]string{
				"error": err.Error(),
			})
			return
		}
		logger.Error("failed to open stream", zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writer.commitHeaders()
	logger.Info("stream connection open",
		zap.String("connection_id", conn.ID),
		zap.String("conversation_id", conversationID),
	)

	select {
	case <-conn.Done():
	case <-ctx.Done():
		h.registry.Close(conn.ID, sse.CloseByClient)
	}

	logger.Info("stream connection closed",
		zap.String("connection_id", conn.ID),
		zap.Int("chunks", conn.ChunkCount()),
	)
}

// HandleSubmitMessage accepts a completion request for a conversation whose
// stream is already open and fans the chunks into that connection. The
// request is acknowledged immediately; the stream carries the result.
func (h *Handler) HandleSubmitMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := r.PathValue("session")
	conversationID := r.PathValue("conversation")

	ctx = observability.WithSessionID(ctx, sessionID)
	correlationID := observability.GetCorrelationID(ctx)
	logger := observability.FromContext(ctx)

	conn, ok := h.registry.Lookup(sessionID, conversationID)
	if !ok {
		h.writeJSON(w, http.StatusConflict, map[string]string{
			"error": "no open stream for conversation; open the stream first",
		})
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "failed to read request body"})
		return
	}

	format := wire.Detect(body, r.Header, wire.FormatOpenAI)
	req, err := wire.Normalize(format, body)
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	req.Stream = true

	ctx = observability.WithModel(ctx, req.Model)

	// The produced chunks outlive this request, so the stream runs on a
	// context detached from it, cancelled when the connection dies.
	streamCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	go func() {
		select {
		case <-conn.Done():
		case <-streamCtx.Done():
		}
		cancel()
	}()
	go func() {
		defer cancel()
		h.gateway.StreamTo(streamCtx, &registrySink{registry: h.registry, connID: conn.ID}, req)
	}()

	logger.Info("message accepted for streaming",
		zap.String("connection_id", conn.ID),
		zap.String("model", req.Model),
	)

	h.writeJSON(w, http.StatusAccepted, map[string]string{
		"connection_id":  conn.ID,
		"correlation_id": correlationID,
		"status":         "accepted",
	})
}

// HandleListConnections returns the session's live connections with health.
func (h *Handler) HandleListConnections(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session")

	h.writeJSON(w, http.StatusOK, map[string]any{
		"session_id":  sessionID,
		"connections": h.registry.ListSession(sessionID),
	})
}

// HandleCloseConnection closes one of the session's connections. A
// connection belonging to another session is reported as not found.
func (h *Handler) HandleCloseConnection(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session")
	connID := r.PathValue("id")

	conn, ok := h.registry.Get(connID)
	if !ok || conn.SessionID != sessionID {
		h.writeJSON(w, http.StatusNotFound, map[string]string{"error": "connection not found"})
		return
	}

	h.registry.Close(connID, sse.CloseManual)
	w.WriteHeader(http.StatusNoContent)
}

// HandleStats returns the aggregate connection statistics and circuit
// breaker states.
func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	breakers := make(map[string]map[string]any)
	for op, snap := range h.executor.Snapshots() {
		breakers[op] = map[string]any{
			"state":                snap.State.String(),
			"consecutive_failures": snap.ConsecutiveFailures,
		}
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"connections": h.registry.Stats(),
		"breakers":    breakers,
	})
}

// HandleHealth performs a health check.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{
		"status":             "ok",
		"active_connections": h.registry.ActiveCount(),
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		observability.FromContext(context.Background()).Error("failed to encode response", zap.Error(err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, format wire.Format, status int, message, correlationID string) {
	h.writeJSON(w, status, wire.FormatError(format, status, message, correlationID))
}

// httpStatusFor maps a classified error to a response status.
func httpStatusFor(err error) int {
	return domain.StatusOf(err)
}

// registrySink routes emitted chunks through the registry so delivery is
// tracked and write failures close the connection.
type registrySink struct {
	registry *sse.Registry
	connID   string
}

func (s *registrySink) Send(chunk domain.StreamChunk) bool {
	return s.registry.Send(s.connID, chunk)
}
