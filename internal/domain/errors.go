package domain

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error once, at the boundary where it is produced.
// Everything above that boundary (retry policy, circuit breaker bookkeeping,
// HTTP status mapping) consumes the tag instead of re-deriving the class from
// message text.
type Kind string

const (
	// KindValidation marks malformed caller input. Never retried.
	KindValidation Kind = "validation"

	// KindTransient marks backend failures worth retrying: timeouts,
	// connection resets, 5xx, 429.
	KindTransient Kind = "transient"

	// KindPermanent marks backend failures that will not improve on retry:
	// 4xx other than 429, auth failures.
	KindPermanent Kind = "permanent"

	// KindCircuitOpen marks a fast-fail because the operation's circuit
	// breaker is open; the backend was never called.
	KindCircuitOpen Kind = "circuit_open"

	// KindCancelled marks caller-initiated cancellation. Never retried,
	// never counted against the circuit breaker, never surfaced as an error.
	KindCancelled Kind = "cancelled"
)

// Error is the tagged error type shared across the gateway.
type Error struct {
	Kind    Kind
	Op      string // stable operation name, e.g. "openai-api"
	Status  int    // upstream HTTP status when known, 0 otherwise
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Op, msg, e.Kind)
	}
	return fmt.Sprintf("%s (%s)", msg, e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewValidationError reports malformed caller input.
func NewValidationError(message string) *Error {
	return &Error{Kind: KindValidation, Status: http.StatusBadRequest, Message: message}
}

// NewTransientError tags a retryable backend failure.
func NewTransientError(op string, status int, err error) *Error {
	return &Error{Kind: KindTransient, Op: op, Status: status, Err: err}
}

// NewPermanentError tags a non-retryable backend failure.
func NewPermanentError(op string, status int, err error) *Error {
	return &Error{Kind: KindPermanent, Op: op, Status: status, Err: err}
}

// NewCircuitOpenError reports a fast-fail without a backend call.
func NewCircuitOpenError(op string) *Error {
	return &Error{
		Kind:    KindCircuitOpen,
		Op:      op,
		Status:  http.StatusServiceUnavailable,
		Message: "circuit open",
	}
}

// NewCancelledError tags caller-initiated cancellation.
func NewCancelledError(op string, err error) *Error {
	return &Error{Kind: KindCancelled, Op: op, Err: err}
}

// ErrorFromStatus tags an upstream HTTP failure by status code.
func ErrorFromStatus(op string, status int, err error) *Error {
	switch {
	case status == http.StatusTooManyRequests || status >= 500:
		return NewTransientError(op, status, err)
	default:
		return NewPermanentError(op, status, err)
	}
}

// KindOf extracts the error kind. Untagged errors default to transient
// (network-level failures reach us untagged), except context cancellation
// which is always KindCancelled.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}

	var tagged *Error
	if errors.As(err, &tagged) {
		return tagged.Kind
	}

	if errors.Is(err, context.Canceled) {
		return KindCancelled
	}

	// An untagged deadline error is an attempt timeout, not a caller cancel.
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransient
	}

	return KindTransient
}

// IsRetryable reports whether the retry loop may attempt the work again.
func IsRetryable(err error) bool {
	return KindOf(err) == KindTransient
}

// IsCancellation reports whether the error represents caller cancellation.
func IsCancellation(err error) bool {
	return KindOf(err) == KindCancelled
}

// IsDegradable reports whether a terminal failure qualifies for graceful
// degradation: non-cancellation, with upstream status absent or >= 500.
func IsDegradable(err error) bool {
	kind := KindOf(err)
	if kind == KindCancelled || kind == KindValidation {
		return false
	}

	var tagged *Error
	if errors.As(err, &tagged) && tagged.Status != 0 && tagged.Status < 500 {
		return false
	}

	return true
}

// StatusOf maps an error to the HTTP status surfaced to the caller.
func StatusOf(err error) int {
	var tagged *Error
	if errors.As(err, &tagged) {
		switch tagged.Kind {
		case KindValidation:
			return http.StatusBadRequest
		case KindCircuitOpen:
			return http.StatusServiceUnavailable
		case KindPermanent:
			if tagged.Status != 0 {
				return tagged.Status
			}
			return http.StatusBadGateway
		case KindTransient:
			return http.StatusBadGateway
		}
	}
	return http.StatusInternalServerError
}
