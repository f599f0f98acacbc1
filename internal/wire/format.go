package wire

import (
	"fmt"

	"github.com/davidbz/hearth/internal/domain"
)

// Normalize parses a request body in the given format into the canonical
// shape. Parse failures come back tagged as validation errors.
func Normalize(format Format, body []byte) (*domain.CompletionRequest, error) {
	switch format {
	case FormatClaude:
		return ParseClaude(body)
	case FormatOpenAI:
		return ParseOpenAI(body)
	default:
		return nil, domain.NewValidationError(fmt.Sprintf("unknown wire format: %s", format))
	}
}

// FormatResponse renders the canonical response in the caller's format.
func FormatResponse(format Format, resp *domain.CompletionResponse, correlationID string) any {
	if format == FormatClaude {
		return formatClaudeResponse(resp, correlationID)
	}
	return formatOpenAIResponse(resp, correlationID)
}

// FormatError renders an error body in the caller's format with a stable
// correlation ID for support lookup.
func FormatError(format Format, status int, message, correlationID string) any {
	if format == FormatClaude {
		return formatClaudeError(status, message, correlationID)
	}
	return formatOpenAIError(status, message, correlationID)
}
