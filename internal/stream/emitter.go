// Package stream turns backend output into the canonical outbound chunk
// sequence. Relay mode forwards a native backend stream; simulated mode
// slices a complete response so callers that asked for streaming get one even
// when the chosen backend cannot stream.
package stream

import (
	"context"
	"time"

	"github.com/davidbz/hearth/internal/domain"
	"github.com/davidbz/hearth/internal/observability"
)

const (
	// DefaultSliceCount smooths perceived latency without flooding the
	// client; the value is a fixed design constant, not derived from
	// response size.
	DefaultSliceCount = 5

	// DefaultSliceDelay is the pause between simulated chunks.
	DefaultSliceDelay = 50 * time.Millisecond
)

// Emitter writes canonical chunks to a sink. Writes on one sink are strictly
// sequential; the emitter never runs two writers against the same sink.
type Emitter struct {
	sliceCount int
	sliceDelay time.Duration
	metrics    *observability.Metrics
}

// NewEmitter creates an emitter. metrics may be nil.
func NewEmitter(sliceCount int, sliceDelay time.Duration, metrics *observability.Metrics) *Emitter {
	if sliceCount <= 0 {
		sliceCount = DefaultSliceCount
	}
	if sliceDelay < 0 {
		sliceDelay = DefaultSliceDelay
	}
	return &Emitter{
		sliceCount: sliceCount,
		sliceDelay: sliceDelay,
		metrics:    metrics,
	}
}

func (e *Emitter) send(sink domain.ChunkSink, chunk domain.StreamChunk) bool {
	ok := sink.Send(chunk)
	if ok && e.metrics != nil {
		e.metrics.ObserveChunk(string(chunk.Type))
	}
	return ok
}

func chunk(chunkType domain.ChunkType, correlationID, messageID, model string) domain.StreamChunk {
	return domain.StreamChunk{
		Type:          chunkType,
		CorrelationID: correlationID,
		Timestamp:     time.Now(),
		MessageID:     messageID,
		Model:         model,
	}
}

// Relay consumes normalized backend events one at a time and writes the
// canonical sequence: start on first content, chunk per delta, one terminal
// end or error. Unknown event types are dropped and logged, never surfaced.
// A sink that stops accepting writes, or caller cancellation, ends the relay
// silently.
func (e *Emitter) Relay(
	ctx context.Context,
	sink domain.ChunkSink,
	correlationID, messageID, model string,
	events <-chan domain.StreamEvent,
) {
	logger := observability.FromContext(ctx)
	started := false

	start := func() bool {
		if started {
			return true
		}
		started = true
		return e.send(sink, chunk(domain.ChunkStart, correlationID, messageID, model))
	}

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				// Provider closed without a terminal event; the message
				// still gets exactly one terminal chunk.
				if started {
					e.send(sink, chunk(domain.ChunkEnd, correlationID, messageID, model))
				}
				return
			}

			switch event.Type {
			case domain.EventDelta, domain.EventToolDelta, domain.EventReasoningDelta:
				if event.Delta == "" {
					continue
				}
				if !start() {
					return
				}
				c := chunk(domain.ChunkContent, correlationID, messageID, model)
				c.Content = event.Delta
				if !e.send(sink, c) {
					return
				}

			case domain.EventDone:
				if !start() {
					return
				}
				c := chunk(domain.ChunkEnd, correlationID, messageID, model)
				c.Usage = event.Usage
				e.send(sink, c)
				return

			case domain.EventError:
				if !start() {
					return
				}
				c := chunk(domain.ChunkError, correlationID, messageID, model)
				if event.Err != nil {
					c.ErrorMsg = event.Err.Error()
				}
				e.send(sink, c)
				return

			default:
				logger.Debug("dropping unrecognized backend event",
					observability.String("event_type", string(event.Type)))
			}
		}
	}
}

// Simulate synthesizes a stream from a complete response: start, the text in
// roughly equal slices with a fixed inter-chunk delay, then end carrying the
// response's usage. Cancellation or a dead sink before any write aborts the
// remaining slices without error.
func (e *Emitter) Simulate(
	ctx context.Context,
	sink domain.ChunkSink,
	correlationID, messageID string,
	resp *domain.CompletionResponse,
) {
	if ctx.Err() != nil {
		return
	}

	if !e.send(sink, chunk(domain.ChunkStart, correlationID, messageID, resp.Model)) {
		return
	}

	slices := SplitText(resp.Content, e.sliceCount)
	for i, slice := range slices {
		if i > 0 && e.sliceDelay > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(e.sliceDelay):
			}
		}

		if ctx.Err() != nil {
			return
		}

		c := chunk(domain.ChunkContent, correlationID, messageID, resp.Model)
		c.Content = slice
		if !e.send(sink, c) {
			return
		}
	}

	if ctx.Err() != nil {
		return
	}

	end := chunk(domain.ChunkEnd, correlationID, messageID, resp.Model)
	usage := resp.Usage
	end.Usage = &usage
	e.send(sink, end)
}

// SplitText splits text into at most n roughly equal slices whose
// concatenation equals the input exactly. Splits happen on rune boundaries;
// the final slices may be shorter. Empty text yields no slices.
func SplitText(text string, n int) []string {
	if text == "" || n <= 0 {
		return nil
	}

	runes := []rune(text)
	if len(runes) <= n {
		slices := make([]string, 0, len(runes))
		for _, r := range runes {
			slices = append(slices, string(r))
		}
		return slices
	}

	base := len(runes) / n
	rem := len(runes) % n

	slices := make([]string, 0, n)
	offset := 0
	for i := 0; i < n; i++ {
		size := base
		if i < rem {
			size++
		}
		slices = append(slices, string(runes[offset:offset+size]))
		offset += size
	}
	return slices
}
