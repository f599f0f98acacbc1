// Package wire translates between the caller-facing wire formats (the
// Claude-style messages shape and the OpenAI-style chat shape) and the
// canonical request/response model. Translation is lossless in the canonical
// direction; responses are rendered back in whichever format the caller used.
package wire

import (
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

// Format identifies a caller wire format.
type Format string

const (
	FormatOpenAI Format = "openai"
	FormatClaude Format = "claude"
)

// Detect infers the caller's wire format from header and structural hints.
// The endpoint's native format is passed as a hint and wins when the body is
// ambiguous.
func Detect(body []byte, header http.Header, hint Format) Format {
	if header.Get("anthropic-version") != "" || header.Get("x-api-key") != "" {
		return FormatClaude
	}

	model := gjson.GetBytes(body, "model").String()
	if strings.HasPrefix(model, "claude") {
		return FormatClaude
	}

	// A top-level system string or stop_sequences array is Claude-shaped;
	// OpenAI carries system turns inside messages and uses "stop".
	if gjson.GetBytes(body, "system").Exists() ||
		gjson.GetBytes(body, "stop_sequences").Exists() {
		return FormatClaude
	}

	if gjson.GetBytes(body, "messages.#(role==\"system\")").Exists() ||
		gjson.GetBytes(body, "stop").Exists() ||
		gjson.GetBytes(body, "tools.0.function").Exists() {
		return FormatOpenAI
	}

	if hint != "" {
		return hint
	}

	return FormatOpenAI
}
