package resilience

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBreaker_StateMachine(t *testing.T) {
	cfg := BreakerConfig{FailureThreshold: 3, RecoveryTimeout: time.Minute}

	t.Run("should start closed and admit calls", func(t *testing.T) {
		b := newBreaker(cfg)

		admitted, _, changed := b.allow(time.Now())
		require.True(t, admitted)
		require.False(t, changed)
		require.Equal(t, StateClosed, b.snapshot().State)
	})

	t.Run("should open once consecutive failures reach the threshold", func(t *testing.T) {
		b := newBreaker(cfg)
		now := time.Now()

		b.onFailure(now)
		b.onFailure(now)
		require.Equal(t, StateClosed, b.snapshot().State)

		transitioned, changed := b.onFailure(now)
		require.True(t, changed)
		require.Equal(t, StateOpen, transitioned)
		require.Equal(t, 3, b.snapshot().ConsecutiveFailures)
	})

	t.Run("should reject calls while open within the cooldown", func(t *testing.T) {
		b := newBreaker(cfg)
		now := time.Now()
		for i := 0; i < 3; i++ {
			b.onFailure(now)
		}

		admitted, _, _ := b.allow(now.Add(30 * time.Second))
		require.False(t, admitted)
	})

	t.Run("should admit exactly one trial after the cooldown", func(t *testing.T) {
		b := newBreaker(cfg)
		now := time.Now()
		for i := 0; i < 3; i++ {
			b.onFailure(now)
		}

		later := now.Add(cfg.RecoveryTimeout + time.Second)

		admitted, transitioned, changed := b.allow(later)
		require.True(t, admitted)
		require.True(t, changed)
		require.Equal(t, StateHalfOpen, transitioned)

		// A concurrent caller during the trial is rejected.
		admitted, _, _ = b.allow(later)
		require.False(t, admitted)
	})

	t.Run("should close after a successful trial", func(t *testing.T) {
		b := newBreaker(cfg)
		now := time.Now()
		for i := 0; i < 3; i++ {
			b.onFailure(now)
		}
		b.allow(now.Add(cfg.RecoveryTimeout + time.Second))

		transitioned, changed := b.onSuccess()
		require.True(t, changed)
		require.Equal(t, StateClosed, transitioned)

		snap := b.snapshot()
		require.Equal(t, StateClosed, snap.State)
		require.Zero(t, snap.ConsecutiveFailures)
	})

	t.Run("should reopen after a failed trial", func(t *testing.T) {
		b := newBreaker(cfg)
		now := time.Now()
		for i := 0; i < 3; i++ {
			b.onFailure(now)
		}
		later := now.Add(cfg.RecoveryTimeout + time.Second)
		b.allow(later)

		transitioned, changed := b.onFailure(later)
		require.True(t, changed)
		require.Equal(t, StateOpen, transitioned)

		// The next trial requires a fresh cooldown.
		admitted, _, _ := b.allow(later.Add(time.Second))
		require.False(t, admitted)
	})

	t.Run("should free the trial slot on release", func(t *testing.T) {
		b := newBreaker(cfg)
		now := time.Now()
		for i := 0; i < 3; i++ {
			b.onFailure(now)
		}
		later := now.Add(cfg.RecoveryTimeout + time.Second)
		b.allow(later)

		// A cancelled trial records no outcome; the slot reopens for the
		// next caller.
		b.releaseTrial()

		admitted, _, _ := b.allow(later)
		require.True(t, admitted)
	})
}
