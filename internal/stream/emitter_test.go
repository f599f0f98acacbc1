package stream_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/davidbz/hearth/internal/domain"
	"github.com/davidbz/hearth/internal/stream"
)

// captureSink records every chunk it accepts. Setting failAfter makes Send
// start rejecting writes once that many chunks have been accepted.
type captureSink struct {
	chunks    []domain.StreamChunk
	failAfter int
}

func (s *captureSink) Send(chunk domain.StreamChunk) bool {
	if s.failAfter > 0 && len(s.chunks) >= s.failAfter {
		return false
	}
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

func TestSplitText(t *testing.T) {
	t.Run("should produce at most n slices whose concatenation equals the input", func(t *testing.T) {
		inputs := []string{
			"hello world, this is a streamed response",
			"short",
			strings.Repeat("x", 1000),
			"uneven length input!",
		}

		for _, input := range inputs {
			slices := stream.SplitText(input, 5)
			require.LessOrEqual(t, len(slices), 5)
			require.Equal(t, input, strings.Join(slices, ""))
		}
	})

	t.Run("should split exactly into n slices when long enough", func(t *testing.T) {
		slices := stream.SplitText("abcdefghij", 5)
		require.Len(t, slices, 5)
		require.Equal(t, []string{"ab", "cd", "ef", "gh", "ij"}, slices)
	})

	t.Run("should yield one slice per rune for short text", func(t *testing.T) {
		slices := stream.SplitText("abc", 5)
		require.Equal(t, []string{"a", "b", "c"}, slices)
	})

	t.Run("should never split multi-byte runes", func(t *testing.T) {
		input := "héllo wörld ünïcode tèxt hère"
		slices := stream.SplitText(input, 5)
		require.Equal(t, input, strings.Join(slices, ""))
		for _, s := range slices {
			require.True(t, strings.ToValidUTF8(s, "?") == s)
		}
	})

	t.Run("should return nothing for empty text", func(t *testing.T) {
		require.Nil(t, stream.SplitText("", 5))
	})
}

func TestEmitter_Simulate(t *testing.T) {
	ctx := context.Background()

	t.Run("should emit start, slices and end in order", func(t *testing.T) {
		e := stream.NewEmitter(5, 1, nil)
		sink := &captureSink{}

		resp := &domain.CompletionResponse{
			Model:   "smart",
			Content: "a complete response body",
			Usage:   domain.Usage{PromptTokens: 3, CompletionTokens: 7, TotalTokens: 10},
		}

		e.Simulate(ctx, sink, "corr", "msg-1", resp)

		require.Len(t, sink.chunks, 7)
		require.Equal(t, domain.ChunkStart, sink.chunks[0].Type)
		require.Equal(t, domain.ChunkEnd, sink.chunks[6].Type)
		require.Equal(t, resp.Content, sink.content())

		end := sink.chunks[6]
		require.NotNil(t, end.Usage)
		require.Equal(t, 10, end.Usage.TotalTokens)
	})

	t.Run("should stamp every chunk with ids and model", func(t *testing.T) {
		e := stream.NewEmitter(5, 1, nil)
		sink := &captureSink{}

		e.Simulate(ctx, sink, "corr-9", "msg-9", &domain.CompletionResponse{
			Model:   "fast",
			Content: "hello",
		})

		for _, c := range sink.chunks {
			require.Equal(t, "corr-9", c.CorrelationID)
			require.Equal(t, "msg-9", c.MessageID)
			require.Equal(t, "fast", c.Model)
			require.False(t, c.Timestamp.IsZero())
		}
	})

	t.Run("should stop without a terminal when the sink dies", func(t *testing.T) {
		e := stream.NewEmitter(5, 1, nil)
		sink := &captureSink{failAfter: 3}

		e.Simulate(ctx, sink, "corr", "msg", &domain.CompletionResponse{
			Model:   "smart",
			Content: "a long enough body to slice",
		})

		require.Len(t, sink.chunks, 3)
		for _, c := range sink.chunks {
			require.NotEqual(t, domain.ChunkEnd, c.Type)
		}
	})

	t.Run("should write nothing when already cancelled", func(t *testing.T) {
		e := stream.NewEmitter(5, 1, nil)
		sink := &captureSink{}

		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		e.Simulate(cancelled, sink, "corr", "msg", &domain.CompletionResponse{Content: "body"})
		require.Empty(t, sink.chunks)
	})

	t.Run("should emit start and end for empty content", func(t *testing.T) {
		e := stream.NewEmitter(5, 1, nil)
		sink := &captureSink{}

		e.Simulate(ctx, sink, "corr", "msg", &domain.CompletionResponse{Model: "smart"})

		require.Equal(t, []domain.ChunkType{domain.ChunkStart, domain.ChunkEnd}, sink.types())
	})
}

func TestEmitter_Relay(t *testing.T) {
	ctx := context.Background()

	emit := func(events ...domain.StreamEvent) <-chan domain.StreamEvent {
		ch := make(chan domain.StreamEvent, len(events))
		for _, ev := range events {
			ch <- ev
		}
		close(ch)
		return ch
	}

	t.Run("should relay deltas between one start and one end", func(t *testing.T) {
		e := stream.NewEmitter(5, 1, nil)
		sink := &captureSink{}

		usage := &domain.Usage{PromptTokens: 1, CompletionTokens: 2, TotalTokens: 3}
		e.Relay(ctx, sink, "corr", "msg", "smart", emit(
			domain.StreamEvent{Type: domain.EventDelta, Delta: "hel"},
			domain.StreamEvent{Type: domain.EventDelta, Delta: "lo"},
			domain.StreamEvent{Type: domain.EventDone, Usage: usage},
		))

		require.Equal(t, []domain.ChunkType{
			domain.ChunkStart, domain.ChunkContent, domain.ChunkContent, domain.ChunkEnd,
		}, sink.types())
		require.Equal(t, "hello", sink.content())
		require.Equal(t, usage, sink.chunks[3].Usage)
	})

	t.Run("should emit an error terminal on backend error", func(t *testing.T) {
		e := stream.NewEmitter(5, 1, nil)
		sink := &captureSink{}

		e.Relay(ctx, sink, "corr", "msg", "smart", emit(
			domain.StreamEvent{Type: domain.EventDelta, Delta: "partial"},
			domain.StreamEvent{Type: domain.EventError, Err: errors.New("backend reset")},
		))

		types := sink.types()
		require.Equal(t, domain.ChunkError, types[len(types)-1])
		require.Equal(t, "backend reset", sink.chunks[len(sink.chunks)-1].ErrorMsg)
	})

	t.Run("should drop unknown event types", func(t *testing.T) {
		e := stream.NewEmitter(5, 1, nil)
		sink := &captureSink{}

		e.Relay(ctx, sink, "corr", "msg", "smart", emit(
			domain.StreamEvent{Type: "content_block_fancy", Delta: "ignored"},
			domain.StreamEvent{Type: domain.EventDelta, Delta: "kept"},
			domain.StreamEvent{Type: domain.EventDone},
		))

		require.Equal(t, "kept", sink.content())
	})

	t.Run("should close the message when the channel ends without a terminal", func(t *testing.T) {
		e := stream.NewEmitter(5, 1, nil)
		sink := &captureSink{}

		e.Relay(ctx, sink, "corr", "msg", "smart", emit(
			domain.StreamEvent{Type: domain.EventDelta, Delta: "cut off"},
		))

		types := sink.types()
		require.Equal(t, domain.ChunkEnd, types[len(types)-1])
	})

	t.Run("should write nothing when no content ever arrives", func(t *testing.T) {
		e := stream.NewEmitter(5, 1, nil)
		sink := &captureSink{}

		e.Relay(ctx, sink, "corr", "msg", "smart", emit())
		require.Empty(t, sink.chunks)
	})

	t.Run("should stop relaying once the sink dies", func(t *testing.T) {
		e := stream.NewEmitter(5, 1, nil)
		sink := &captureSink{failAfter: 2}

		e.Relay(ctx, sink, "corr", "msg", "smart", emit(
			domain.StreamEvent{Type: domain.EventDelta, Delta: "a"},
			domain.StreamEvent{Type: domain.EventDelta, Delta: "b"},
			domain.StreamEvent{Type: domain.EventDelta, Delta: "c"},
			domain.StreamEvent{Type: domain.EventDone},
		))

		require.Len(t, sink.chunks, 2)
	})
}
