package resilience

import (
	"math"
	"math/rand"
	"time"
)

// Policy is the immutable retry policy applied to one execution. Zero values
// fall back to the defaults below.
type Policy struct {
	MaxAttempts       int
	BaseDelay         time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
	JitterFactor      float64 // multiplicative, e.g. 0.2 for +/-20%
	Timeout           time.Duration
}

// DefaultPolicy mirrors the configuration defaults.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:       3,
		BaseDelay:         500 * time.Millisecond,
		MaxDelay:          10 * time.Second,
		BackoffMultiplier: 2.0,
		JitterFactor:      0.2,
		Timeout:           60 * time.Second,
	}
}

func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = d.BaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = d.MaxDelay
	}
	if p.BackoffMultiplier <= 0 {
		p.BackoffMultiplier = d.BackoffMultiplier
	}
	if p.JitterFactor < 0 {
		p.JitterFactor = 0
	}
	return p
}

// backoffDelay computes the sleep before the given retry (attempt numbers
// start at 1; the delay precedes attempt+1). The exponential curve is capped
// at MaxDelay, then perturbed by +/-JitterFactor so synchronized callers
// don't retry in lockstep.
func (p Policy) backoffDelay(attempt int) time.Duration {
	exp := float64(p.BaseDelay) * math.Pow(p.BackoffMultiplier, float64(attempt-1))
	capped := math.Min(exp, float64(p.MaxDelay))

	if p.JitterFactor > 0 {
		jitter := 1 + p.JitterFactor*(2*rand.Float64()-1)
		capped *= jitter
	}

	if capped < 0 {
		return 0
	}
	return time.Duration(capped)
}

// AttemptRecord captures one attempt of one execution, for logging only.
type AttemptRecord struct {
	Attempt     int
	DelayBefore time.Duration
	Duration    time.Duration
	Err         error
	Timestamp   time.Time
}
