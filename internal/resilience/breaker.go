// Package resilience wraps single backend invocations with a per-operation
// circuit breaker, a classified retry loop with jittered exponential backoff,
// and a cooperative per-attempt timeout. It is the only place that decides
// retryability and breaker bookkeeping; callers see a final value or a final
// tagged error.
package resilience

import (
	"sync"
	"time"
)

// BreakerState is the circuit breaker state for one named operation.
type BreakerState int

const (
	StateClosed BreakerState = iota
	StateOpen
	StateHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// BreakerConfig sets the failure threshold and recovery cooldown shared by
// all operations the executor creates breakers for.
type BreakerConfig struct {
	FailureThreshold int
	RecoveryTimeout  time.Duration
}

// DefaultBreakerConfig mirrors the configuration defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		RecoveryTimeout:  30 * time.Second,
	}
}

// breaker holds the mutable circuit state for one operation name. One
// instance is shared by every concurrent request to that operation, so all
// transitions happen under its mutex.
type breaker struct {
	mu sync.Mutex

	state               BreakerState
	consecutiveFailures int
	lastFailure         time.Time
	trialInFlight       bool

	threshold int
	recovery  time.Duration
}

func newBreaker(cfg BreakerConfig) *breaker {
	return &breaker{
		state:     StateClosed,
		threshold: cfg.FailureThreshold,
		recovery:  cfg.RecoveryTimeout,
	}
}

// allow decides whether a call may proceed. When the breaker is open and the
// cooldown has elapsed it transitions to half-open and admits exactly one
// trial call; concurrent callers during that trial are rejected.
// The second return value reports a state transition for metrics.
func (b *breaker) allow(now time.Time) (admitted bool, transitioned BreakerState, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true, 0, false
	case StateOpen:
		if now.Sub(b.lastFailure) < b.recovery {
			return false, 0, false
		}
		b.state = StateHalfOpen
		b.trialInFlight = true
		return true, StateHalfOpen, true
	case StateHalfOpen:
		if b.trialInFlight {
			return false, 0, false
		}
		b.trialInFlight = true
		return true, 0, false
	}

	return false, 0, false
}

// onSuccess records a successful call: failures reset, state forced closed.
func (b *breaker) onSuccess() (transitioned BreakerState, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	changed := b.state != StateClosed
	b.state = StateClosed
	b.consecutiveFailures = 0
	b.trialInFlight = false

	if changed {
		return StateClosed, true
	}
	return 0, false
}

// onFailure records a non-cancellation failure. A failed half-open trial
// reopens immediately; in closed state the breaker opens once consecutive
// failures reach the threshold.
func (b *breaker) onFailure(now time.Time) (transitioned BreakerState, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveFailures++
	b.lastFailure = now
	wasOpen := b.state == StateOpen

	if b.state == StateHalfOpen {
		b.state = StateOpen
		b.trialInFlight = false
		return StateOpen, true
	}

	if b.consecutiveFailures >= b.threshold {
		b.state = StateOpen
		if !wasOpen {
			return StateOpen, true
		}
	}

	return 0, false
}

// releaseTrial frees the half-open trial slot without recording an outcome.
// Used when a trial call ends in cancellation, which counts for nothing.
func (b *breaker) releaseTrial() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.trialInFlight = false
}

// BreakerSnapshot is a read-only view of one breaker for stats and tests.
type BreakerSnapshot struct {
	State               BreakerState
	ConsecutiveFailures int
	LastFailure         time.Time
}

func (b *breaker) snapshot() BreakerSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	return BreakerSnapshot{
		State:               b.state,
		ConsecutiveFailures: b.consecutiveFailures,
		LastFailure:         b.lastFailure,
	}
}
