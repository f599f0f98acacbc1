package anthropic

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/davidbz/hearth/internal/domain"
	"github.com/davidbz/hearth/internal/observability"
)

// streamEvent is one Server-Sent Event from the messages API stream.
type streamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type       string `json:"type"`
		Text       string `json:"text"`
		StopReason string `json:"stop_reason"`
	} `json:"delta"`
	Message struct {
		Usage struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"usage"`
	} `json:"message"`
	Usage struct {
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// readStream parses the SSE body into normalized events. Event types the
// gateway doesn't model (ping, content_block_start, ...) are forwarded with
// their native type name so the emitter can drop and log them.
func (p *Provider) readStream(ctx context.Context, body io.ReadCloser, events chan<- domain.StreamEvent) {
	defer close(events)
	defer body.Close()

	logger := observability.FromContext(ctx)
	scanner := bufio.NewScanner(body)

	var usage domain.Usage
	var stopReason string

	emit := func(event domain.StreamEvent) bool {
		select {
		case events <- event:
			return true
		case <-ctx.Done():
			return false
		}
	}

	for {
		event, err := readSSEEvent(scanner)
		if err != nil {
			if err != io.EOF {
				emit(domain.StreamEvent{Type: domain.EventError, Err: p.tagError(err)})
			}
			return
		}

		switch event.Type {
		case "message_start":
			usage.PromptTokens = event.Message.Usage.InputTokens

		case "content_block_delta":
			switch event.Delta.Type {
			case "text_delta":
				if !emit(domain.StreamEvent{Type: domain.EventDelta, Delta: event.Delta.Text}) {
					return
				}
			case "thinking_delta":
				if !emit(domain.StreamEvent{Type: domain.EventReasoningDelta, Delta: event.Delta.Text}) {
					return
				}
			case "input_json_delta":
				if !emit(domain.StreamEvent{Type: domain.EventToolDelta, Delta: event.Delta.Text}) {
					return
				}
			}

		case "message_delta":
			if event.Delta.StopReason != "" {
				stopReason = event.Delta.StopReason
			}
			if event.Usage.OutputTokens > 0 {
				usage.CompletionTokens = event.Usage.OutputTokens
			}

		case "message_stop":
			usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
			final := usage
			emit(domain.StreamEvent{
				Type:       domain.EventDone,
				StopReason: stopReason,
				Usage:      &final,
			})
			return

		case "error":
			emit(domain.StreamEvent{
				Type: domain.EventError,
				Err: domain.NewTransientError(operationName, 0,
					fmt.Errorf("stream error: %s: %s", event.Error.Type, event.Error.Message)),
			})
			return

		case "ping", "content_block_start", "content_block_stop":
			// Housekeeping events carry nothing the caller needs.

		default:
			logger.Debug("forwarding unrecognized stream event",
				observability.String("event_type", event.Type))
			if !emit(domain.StreamEvent{Type: domain.StreamEventType(event.Type)}) {
				return
			}
		}
	}
}

// readSSEEvent reads one complete SSE event from the scanner. Returns io.EOF
// when the stream ends.
func readSSEEvent(scanner *bufio.Scanner) (*streamEvent, error) {
	var eventType string
	var dataLines []string

	for scanner.Scan() {
		line := scanner.Text()

		// Empty line marks end of event.
		if line == "" {
			if eventType != "" || len(dataLines) > 0 {
				break
			}
			continue
		}

		if strings.HasPrefix(line, "event: ") {
			eventType = strings.TrimPrefix(line, "event: ")
		} else if strings.HasPrefix(line, "data: ") {
			dataLines = append(dataLines, strings.TrimPrefix(line, "data: "))
		}
		// Other SSE fields (id, retry) are ignored.
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if eventType == "" && len(dataLines) == 0 {
		return nil, io.EOF
	}

	event := &streamEvent{Type: eventType}
	if len(dataLines) > 0 {
		if err := json.Unmarshal([]byte(strings.Join(dataLines, "\n")), event); err != nil {
			return nil, fmt.Errorf("failed to parse stream event: %w", err)
		}
		if event.Type == "" {
			event.Type = eventType
		}
	}

	return event, nil
}
