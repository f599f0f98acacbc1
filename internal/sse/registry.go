package sse

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/davidbz/hearth/internal/domain"
	"github.com/davidbz/hearth/internal/observability"
)

var (
	// ErrSessionLimit is returned when a session already holds the maximum
	// number of live connections.
	ErrSessionLimit = errors.New("session connection limit reached")

	// ErrNoConnection is returned when no active stream exists for a
	// conversation.
	ErrNoConnection = errors.New("no active connection for conversation")

	errInactive = errors.New("connection is not active")
)

// Config bounds the registry's resource usage and drives the periodic tasks.
type Config struct {
	MaxPerSession     int
	IdleTimeout       time.Duration
	HeartbeatInterval time.Duration
	SweepInterval     time.Duration
	HandshakeDelay    time.Duration
}

// DefaultConfig mirrors the configuration defaults.
func DefaultConfig() Config {
	return Config{
		MaxPerSession:     3,
		IdleTimeout:       5 * time.Minute,
		HeartbeatInterval: 30 * time.Second,
		SweepInterval:     time.Minute,
		HandshakeDelay:    100 * time.Millisecond,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxPerSession <= 0 {
		c.MaxPerSession = d.MaxPerSession
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = d.IdleTimeout
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = d.HeartbeatInterval
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = d.SweepInterval
	}
	if c.HandshakeDelay < 0 {
		c.HandshakeDelay = d.HandshakeDelay
	}
	return c
}

type convKey struct {
	sessionID      string
	conversationID string
}

// Registry is the session-scoped table of open streaming connections. Three
// indices are kept in lockstep under one mutex: connection id -> connection,
// session id -> connection id set, and (session, conversation) -> connection
// id for O(1) "is there already a live stream" lookups. Every removal path
// updates all three together.
type Registry struct {
	mu             sync.Mutex
	conns          map[string]*Connection
	bySession      map[string]map[string]struct{}
	byConversation map[convKey]string

	cfg     Config
	stats   *Statistics
	metrics *observability.Metrics
}

// NewRegistry creates a connection registry. metrics may be nil.
func NewRegistry(cfg Config, metrics *observability.Metrics) *Registry {
	return &Registry{
		conns:          make(map[string]*Connection),
		bySession:      make(map[string]map[string]struct{}),
		byConversation: make(map[convKey]string),
		cfg:            cfg.withDefaults(),
		stats:          NewStatistics(),
		metrics:        metrics,
	}
}

// Open creates a streaming connection for (session, conversation). A live
// connection for the same conversation is replaced: the old one closes as a
// client disconnect (counted as a reconnection) and a fresh connection takes
// its place. Opening past the per-session cap fails with ErrSessionLimit.
// A short delayed start handshake chunk is scheduled on success.
func (r *Registry) Open(ctx context.Context, sessionID, conversationID string, writer ChunkWriter) (*Connection, error) {
	now := time.Now()
	key := convKey{sessionID, conversationID}

	r.mu.Lock()

	if existingID, ok := r.byConversation[key]; ok {
		if existing, ok := r.conns[existingID]; ok {
			r.closeLocked(existing, CloseByClient)
		}
	}

	if len(r.bySession[sessionID]) >= r.cfg.MaxPerSession {
		r.mu.Unlock()
		return nil, ErrSessionLimit
	}

	conn := newConnection(observability.GenerateConnectionID(), sessionID, conversationID, writer, now)
	r.conns[conn.ID] = conn
	if r.bySession[sessionID] == nil {
		r.bySession[sessionID] = make(map[string]struct{})
	}
	r.bySession[sessionID][conn.ID] = struct{}{}
	r.byConversation[key] = conn.ID

	active := len(r.conns)
	r.mu.Unlock()

	r.stats.recordCreated()
	if r.metrics != nil {
		r.metrics.SetActiveConnections(active)
	}

	observability.FromContext(ctx).Info("stream connection opened",
		observability.String("connection_id", conn.ID),
		observability.String("conversation_id", conversationID))

	go r.handshake(ctx, conn.ID)

	return conn, nil
}

// handshake sends the delayed start chunk that confirms the stream is live.
func (r *Registry) handshake(ctx context.Context, connID string) {
	timer := time.NewTimer(r.cfg.HandshakeDelay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}

	r.Send(connID, domain.StreamChunk{
		Type:          domain.ChunkStart,
		CorrelationID: connID,
		Timestamp:     time.Now(),
	})
}

// Get returns the connection with the given id.
func (r *Registry) Get(connID string) (*Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.conns[connID]
	return conn, ok
}

// Lookup returns the live connection for (session, conversation), if any.
func (r *Registry) Lookup(sessionID, conversationID string) (*Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	connID, ok := r.byConversation[convKey{sessionID, conversationID}]
	if !ok {
		return nil, false
	}
	conn, ok := r.conns[connID]
	return conn, ok
}

// Send writes one chunk to the connection. It is a no-op returning false when
// the connection is unknown or inactive; a transport write error closes the
// connection immediately and also returns false. The registry lock is not
// held across the write.
func (r *Registry) Send(connID string, chunk domain.StreamChunk) bool {
	r.mu.Lock()
	conn, ok := r.conns[connID]
	r.mu.Unlock()

	if !ok {
		return false
	}

	touch := chunk.Type != domain.ChunkHeartbeat
	if err := conn.write(chunk, touch); err != nil {
		if !errors.Is(err, errInactive) {
			// Write failure means the client is gone.
			r.stats.recordErrorType(errorTypeOf(err))
			r.Close(connID, CloseByError)
		}
		return false
	}

	if r.metrics != nil {
		r.metrics.ObserveChunk(string(chunk.Type))
	}
	return true
}

// Close transitions the connection to a terminal state, removes it from all
// indices and updates statistics. It is idempotent: closing an unknown or
// already-closed id does nothing.
func (r *Registry) Close(connID string, reason CloseReason) {
	r.mu.Lock()
	conn, ok := r.conns[connID]
	if !ok {
		r.mu.Unlock()
		return
	}
	r.closeLocked(conn, reason)
	active := len(r.conns)
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.SetActiveConnections(active)
	}
}

// closeLocked removes the connection from all three indices together and
// records its lifetime. Callers hold r.mu.
func (r *Registry) closeLocked(conn *Connection, reason CloseReason) {
	delete(r.conns, conn.ID)
	if set, ok := r.bySession[conn.SessionID]; ok {
		delete(set, conn.ID)
		if len(set) == 0 {
			delete(r.bySession, conn.SessionID)
		}
	}
	key := convKey{conn.SessionID, conn.ConversationID}
	if r.byConversation[key] == conn.ID {
		delete(r.byConversation, key)
	}

	if conn.deactivate() {
		r.stats.recordClosed(time.Since(conn.CreatedAt), reason)
		if reason == CloseByClient {
			r.stats.recordReconnection(conn.SessionID)
		}
	}
	conn.markDone()
}

// Sweep closes every connection idle past the timeout, then prunes the
// statistics maps back to their caps. It runs on a fixed period.
func (r *Registry) Sweep() {
	now := time.Now()

	r.mu.Lock()
	var idle []*Connection
	for _, conn := range r.conns {
		if now.Sub(conn.LastMessageAt()) > r.cfg.IdleTimeout {
			idle = append(idle, conn)
		}
	}
	r.mu.Unlock()

	for _, conn := range idle {
		r.Close(conn.ID, CloseByTimeout)
	}

	r.stats.prune()
}

// Heartbeat sends a heartbeat chunk to every active connection. Heartbeats
// carry no message id and do not advance the idle clock.
func (r *Registry) Heartbeat() {
	r.mu.Lock()
	ids := make([]string, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	now := time.Now()
	for _, id := range ids {
		r.Send(id, domain.StreamChunk{
			Type:          domain.ChunkHeartbeat,
			CorrelationID: id,
			Timestamp:     now,
		})
	}
}

// ConnectionInfo is the management view of one live connection.
type ConnectionInfo struct {
	ID             string        `json:"id"`
	ConversationID string        `json:"conversation_id"`
	CreatedAt      time.Time     `json:"created_at"`
	LastMessageAt  time.Time     `json:"last_message_at"`
	ChunkCount     int           `json:"chunk_count"`
	Idle           time.Duration `json:"idle_ms"`
	Health         Health        `json:"health"`
}

// ListSession returns the caller's live connections with a health
// classification derived from idle time versus the configured timeout.
func (r *Registry) ListSession(sessionID string) []ConnectionInfo {
	r.mu.Lock()
	conns := make([]*Connection, 0, len(r.bySession[sessionID]))
	for id := range r.bySession[sessionID] {
		if conn, ok := r.conns[id]; ok {
			conns = append(conns, conn)
		}
	}
	r.mu.Unlock()

	now := time.Now()
	infos := make([]ConnectionInfo, 0, len(conns))
	for _, conn := range conns {
		idle := now.Sub(conn.LastMessageAt())
		infos = append(infos, ConnectionInfo{
			ID:             conn.ID,
			ConversationID: conn.ConversationID,
			CreatedAt:      conn.CreatedAt,
			LastMessageAt:  conn.LastMessageAt(),
			ChunkCount:     conn.ChunkCount(),
			Idle:           idle,
			Health:         r.healthFor(idle),
		})
	}
	return infos
}

func (r *Registry) healthFor(idle time.Duration) Health {
	switch {
	case idle >= r.cfg.IdleTimeout*8/10:
		return HealthNearTimeout
	case idle >= r.cfg.IdleTimeout/2:
		return HealthStale
	default:
		return HealthHealthy
	}
}

// ActiveCount returns the number of live connections.
func (r *Registry) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// Stats returns a point-in-time aggregate snapshot.
func (r *Registry) Stats() Snapshot {
	return r.stats.snapshot(r.ActiveCount())
}

// Config returns the registry's effective configuration.
func (r *Registry) Config() Config {
	return r.cfg
}

func errorTypeOf(err error) string {
	var tagged *domain.Error
	if errors.As(err, &tagged) && tagged.Kind != "" {
		return string(tagged.Kind)
	}
	return "write_failure"
}
