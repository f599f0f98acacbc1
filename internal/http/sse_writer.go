package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/davidbz/hearth/internal/domain"
)

// sseWriter frames canonical chunks as server-sent events over an HTTP
// response. Each chunk becomes one event whose name is the chunk type and
// whose data line carries the JSON payload. Writes are serialized so
// interleaved heartbeats never corrupt a frame.
type sseWriter struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
}

// newSSEWriter wraps a response writer for SSE framing. Headers are not
// written here; the handler commits them once it knows the stream will open.
func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support streaming")
	}
	return &sseWriter{w: w, flusher: flusher}, nil
}

// commitHeaders writes the SSE response headers and flushes them so the
// client sees the stream open before the first chunk arrives.
func (s *sseWriter) commitHeaders() {
	s.mu.Lock()
	defer s.mu.Unlock()

	h := s.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	s.w.WriteHeader(http.StatusOK)
	s.flusher.Flush()
}

// WriteChunk implements sse.ChunkWriter.
func (s *sseWriter) WriteChunk(chunk domain.StreamChunk) error {
	data, err := json.Marshal(chunk)
	if err != nil {
		return fmt.Errorf("failed to encode chunk: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", chunk.Type, data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// writerSink adapts an sseWriter to the chunk sink contract for inline
// streaming, where no registry connection is involved. The first failed
// write marks the sink dead so emitters stop producing.
type writerSink struct {
	writer *sseWriter
	dead   bool
}

func (s *writerSink) Send(chunk domain.StreamChunk) bool {
	if s.dead {
		return false
	}
	if err := s.writer.WriteChunk(chunk); err != nil {
		s.dead = true
		return false
	}
	return true
}
