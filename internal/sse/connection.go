// Package sse tracks long-lived streaming connections per session: an
// indexed registry with a per-session cap, periodic liveness sweeps,
// heartbeats, and bounded aggregate statistics.
package sse

import (
	"sync"
	"time"

	"github.com/davidbz/hearth/internal/domain"
)

// CloseReason records why a connection reached a terminal state.
type CloseReason string

const (
	CloseByClient  CloseReason = "client_disconnect"
	CloseByTimeout CloseReason = "timeout"
	CloseByError   CloseReason = "error"
	CloseManual    CloseReason = "manual"
)

// Health classifies a live connection by its idle time.
type Health string

const (
	HealthHealthy     Health = "healthy"
	HealthStale       Health = "stale"
	HealthNearTimeout Health = "near_timeout"
)

// ChunkWriter is the transport a connection writes chunks to. The HTTP layer
// implements it over a flushed response writer; tests capture chunks in
// memory.
type ChunkWriter interface {
	WriteChunk(chunk domain.StreamChunk) error
}

// Connection is one open streaming connection. It is created by the registry
// and never resurrected: reconnection produces a new Connection. The mutex
// serializes transport writes and guards the per-send fields, so chunks go
// out strictly in the order they were handed to Send.
type Connection struct {
	ID             string
	SessionID      string
	ConversationID string
	CreatedAt      time.Time

	mu          sync.Mutex
	writer      ChunkWriter
	active      bool
	lastMessage time.Time
	chunkCount  int

	closeOnce sync.Once
	done      chan struct{}
}

func newConnection(id, sessionID, conversationID string, writer ChunkWriter, now time.Time) *Connection {
	return &Connection{
		ID:             id,
		SessionID:      sessionID,
		ConversationID: conversationID,
		CreatedAt:      now,
		writer:         writer,
		active:         true,
		lastMessage:    now,
		done:           make(chan struct{}),
	}
}

// write pushes one chunk to the transport. touch controls whether the write
// counts against the connection's idle clock; heartbeats do not.
func (c *Connection) write(chunk domain.StreamChunk, touch bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.active {
		return errInactive
	}

	if err := c.writer.WriteChunk(chunk); err != nil {
		return err
	}

	if touch {
		c.lastMessage = time.Now()
		c.chunkCount++
	}
	return nil
}

func (c *Connection) deactivate() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.active {
		return false
	}
	c.active = false
	return true
}

// IsActive reports whether the connection still accepts writes.
func (c *Connection) IsActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// LastMessageAt returns the time of the last counted write.
func (c *Connection) LastMessageAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastMessage
}

// ChunkCount returns the number of counted writes.
func (c *Connection) ChunkCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.chunkCount
}

// Done is closed when the connection reaches a terminal state; the handler
// holding the transport open selects on it.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

func (c *Connection) markDone() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}
