package domain_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/davidbz/hearth/internal/domain"
)

func TestKindOf(t *testing.T) {
	t.Run("should extract the tag from a classified error", func(t *testing.T) {
		require.Equal(t, domain.KindValidation, domain.KindOf(domain.NewValidationError("bad")))
		require.Equal(t, domain.KindTransient, domain.KindOf(domain.NewTransientError("op", 503, errors.New("x"))))
		require.Equal(t, domain.KindPermanent, domain.KindOf(domain.NewPermanentError("op", 401, errors.New("x"))))
		require.Equal(t, domain.KindCircuitOpen, domain.KindOf(domain.NewCircuitOpenError("op")))
	})

	t.Run("should extract the tag through wrapping", func(t *testing.T) {
		wrapped := fmt.Errorf("calling backend: %w", domain.NewPermanentError("op", 403, errors.New("denied")))
		require.Equal(t, domain.KindPermanent, domain.KindOf(wrapped))
	})

	t.Run("should treat untagged errors as transient", func(t *testing.T) {
		require.Equal(t, domain.KindTransient, domain.KindOf(errors.New("connection reset")))
	})

	t.Run("should treat context cancellation as cancelled", func(t *testing.T) {
		require.Equal(t, domain.KindCancelled, domain.KindOf(context.Canceled))
		require.Equal(t, domain.KindCancelled, domain.KindOf(fmt.Errorf("stream: %w", context.Canceled)))
	})

	t.Run("should treat a bare deadline error as transient", func(t *testing.T) {
		require.Equal(t, domain.KindTransient, domain.KindOf(context.DeadlineExceeded))
	})
}

func TestErrorFromStatus(t *testing.T) {
	t.Run("should classify 429 and 5xx as transient", func(t *testing.T) {
		require.Equal(t, domain.KindTransient, domain.KindOf(domain.ErrorFromStatus("op", 429, errors.New("x"))))
		require.Equal(t, domain.KindTransient, domain.KindOf(domain.ErrorFromStatus("op", 500, errors.New("x"))))
		require.Equal(t, domain.KindTransient, domain.KindOf(domain.ErrorFromStatus("op", 503, errors.New("x"))))
	})

	t.Run("should classify other 4xx as permanent", func(t *testing.T) {
		require.Equal(t, domain.KindPermanent, domain.KindOf(domain.ErrorFromStatus("op", 400, errors.New("x"))))
		require.Equal(t, domain.KindPermanent, domain.KindOf(domain.ErrorFromStatus("op", 401, errors.New("x"))))
		require.Equal(t, domain.KindPermanent, domain.KindOf(domain.ErrorFromStatus("op", 404, errors.New("x"))))
	})
}

func TestIsRetryable(t *testing.T) {
	t.Run("should retry only transient errors", func(t *testing.T) {
		require.True(t, domain.IsRetryable(domain.NewTransientError("op", 503, errors.New("x"))))
		require.True(t, domain.IsRetryable(errors.New("untagged")))
		require.False(t, domain.IsRetryable(domain.NewPermanentError("op", 401, errors.New("x"))))
		require.False(t, domain.IsRetryable(domain.NewValidationError("bad")))
		require.False(t, domain.IsRetryable(domain.NewCircuitOpenError("op")))
		require.False(t, domain.IsRetryable(context.Canceled))
	})
}

func TestIsDegradable(t *testing.T) {
	t.Run("should degrade timeouts and 5xx failures", func(t *testing.T) {
		require.True(t, domain.IsDegradable(domain.NewTransientError("op", 0, context.DeadlineExceeded)))
		require.True(t, domain.IsDegradable(domain.NewTransientError("op", 503, errors.New("x"))))
		require.True(t, domain.IsDegradable(domain.NewCircuitOpenError("op")))
	})

	t.Run("should not degrade caller-side failures", func(t *testing.T) {
		require.False(t, domain.IsDegradable(domain.NewValidationError("bad")))
		require.False(t, domain.IsDegradable(domain.NewPermanentError("op", 401, errors.New("denied"))))
		require.False(t, domain.IsDegradable(domain.NewCancelledError("op", context.Canceled)))
	})
}

func TestStatusOf(t *testing.T) {
	t.Run("should map kinds to caller-facing statuses", func(t *testing.T) {
		require.Equal(t, http.StatusBadRequest, domain.StatusOf(domain.NewValidationError("bad")))
		require.Equal(t, http.StatusServiceUnavailable, domain.StatusOf(domain.NewCircuitOpenError("op")))
		require.Equal(t, http.StatusBadGateway, domain.StatusOf(domain.NewTransientError("op", 503, errors.New("x"))))
		require.Equal(t, http.StatusUnauthorized, domain.StatusOf(domain.NewPermanentError("op", 401, errors.New("x"))))
		require.Equal(t, http.StatusInternalServerError, domain.StatusOf(errors.New("untagged")))
	})
}
