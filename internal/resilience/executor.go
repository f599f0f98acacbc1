package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/davidbz/hearth/internal/domain"
	"github.com/davidbz/hearth/internal/observability"
)

// Executor owns one circuit breaker per named operation. Breakers are created
// lazily and shared across all requests for that name; the executor is the
// only code that mutates them.
type Executor struct {
	mu         sync.Mutex
	breakers   map[string]*breaker
	breakerCfg BreakerConfig
	metrics    *observability.Metrics
}

// NewExecutor creates an executor. metrics may be nil.
func NewExecutor(breakerCfg BreakerConfig, metrics *observability.Metrics) *Executor {
	if breakerCfg.FailureThreshold <= 0 {
		breakerCfg.FailureThreshold = DefaultBreakerConfig().FailureThreshold
	}
	if breakerCfg.RecoveryTimeout <= 0 {
		breakerCfg.RecoveryTimeout = DefaultBreakerConfig().RecoveryTimeout
	}

	return &Executor{
		breakers:   make(map[string]*breaker),
		breakerCfg: breakerCfg,
		metrics:    metrics,
	}
}

func (e *Executor) breakerFor(op string) *breaker {
	e.mu.Lock()
	defer e.mu.Unlock()

	b, ok := e.breakers[op]
	if !ok {
		b = newBreaker(e.breakerCfg)
		e.breakers[op] = b
	}
	return b
}

// Breaker returns a read-only snapshot of the named operation's breaker.
func (e *Executor) Breaker(op string) BreakerSnapshot {
	return e.breakerFor(op).snapshot()
}

// Snapshots returns a snapshot of every breaker created so far, keyed by
// operation name.
func (e *Executor) Snapshots() map[string]BreakerSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	snaps := make(map[string]BreakerSnapshot, len(e.breakers))
	for op, b := range e.breakers {
		snaps[op] = b.snapshot()
	}
	return snaps
}

func (e *Executor) noteTransition(op string, state BreakerState) {
	if e.metrics != nil {
		e.metrics.ObserveBreakerTransition(op, state.String())
	}
}

// Execute runs work under the named operation's circuit breaker and the given
// retry policy. Each attempt gets its own deadline derived from the policy
// timeout, combined with the caller's context; whichever fires first aborts
// the in-flight call. Cancellation is never retried and never counted against
// the breaker.
func Execute[T any](
	ctx context.Context,
	e *Executor,
	op string,
	policy Policy,
	work func(ctx context.Context) (T, error),
) (T, error) {
	var zero T

	policy = policy.withDefaults()
	br := e.breakerFor(op)
	logger := observability.FromContext(ctx)

	var lastErr error
	var delayBefore time.Duration

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		admitted, transition, changed := br.allow(time.Now())
		if changed {
			e.noteTransition(op, transition)
		}
		if !admitted {
			logger.Warn("circuit open, fast-failing",
				observability.String("operation", op))
			return zero, domain.NewCircuitOpenError(op)
		}

		attemptCtx := ctx
		cancel := context.CancelFunc(func() {})
		if policy.Timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, policy.Timeout)
		}

		start := time.Now()
		value, err := work(attemptCtx)
		cancel()

		record := AttemptRecord{
			Attempt:     attempt,
			DelayBefore: delayBefore,
			Duration:    time.Since(start),
			Err:         err,
			Timestamp:   start,
		}

		if err == nil {
			if transition, changed := br.onSuccess(); changed {
				e.noteTransition(op, transition)
			}
			return value, nil
		}

		// Caller cancellation ends the operation silently: no retry, no
		// breaker bookkeeping.
		if ctx.Err() != nil || domain.IsCancellation(err) {
			br.releaseTrial()
			return zero, domain.NewCancelledError(op, err)
		}

		// The attempt deadline fired while the caller is still live: a
		// timeout, classified transient.
		if errors.Is(err, context.DeadlineExceeded) {
			err = domain.NewTransientError(op, 0, err)
		}

		lastErr = err
		if transition, changed := br.onFailure(time.Now()); changed {
			e.noteTransition(op, transition)
		}

		logger.Warn("attempt failed",
			observability.String("operation", op),
			observability.Int("attempt", record.Attempt),
			observability.Duration("duration", record.Duration),
			observability.Error(err))

		if !domain.IsRetryable(err) || attempt == policy.MaxAttempts {
			return zero, lastErr
		}

		delayBefore = policy.backoffDelay(attempt)
		if e.metrics != nil {
			e.metrics.ObserveRetry(op)
		}
		logger.Info("retrying after backoff",
			observability.String("operation", op),
			observability.Int("next_attempt", attempt+1),
			observability.Duration("delay", delayBefore))

		select {
		case <-ctx.Done():
			return zero, domain.NewCancelledError(op, ctx.Err())
		case <-time.After(delayBefore):
		}
	}

	return zero, lastErr
}
