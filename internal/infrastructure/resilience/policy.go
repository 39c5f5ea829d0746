package resilience

import (
	"math"
	"time"
)

// Config tunes retries and the per-operation circuit breakers. Zero fields fall back
// to DefaultConfig when the executor is built.
type Config struct {
	RetryMaxAttempts    int
	RetryInitialBackoff time.Duration
	RetryMaxBackoff     time.Duration
	RetryMultiplier     float64
	// AttemptTimeout bounds a single try; zero leaves only the caller's deadline.
	AttemptTimeout time.Duration

	BreakerEnabled          bool
	BreakerMinRequests      uint32
	BreakerFailureRatio     float64
	BreakerOpenTimeout      time.Duration
	BreakerHalfOpenMaxCalls uint32
}

func DefaultConfig() Config {
	return Config{
		RetryMaxAttempts:        3,
		RetryInitialBackoff:     100 * time.Millisecond,
		RetryMaxBackoff:         400 * time.Millisecond,
		RetryMultiplier:         2.0,
		BreakerEnabled:          true,
		BreakerMinRequests:      10,
		BreakerFailureRatio:     0.5,
		BreakerOpenTimeout:      30 * time.Second,
		BreakerHalfOpenMaxCalls: 2,
	}
}

func positiveOr[T int | uint32 | time.Duration](value, fallback T) T {
	if value <= 0 {
		return fallback
	}
	return value
}

func (c Config) normalize() Config {
	def := DefaultConfig()
	out := c

	out.RetryMaxAttempts = positiveOr(out.RetryMaxAttempts, def.RetryMaxAttempts)
	out.RetryInitialBackoff = positiveOr(out.RetryInitialBackoff, def.RetryInitialBackoff)
	out.RetryMaxBackoff = max(positiveOr(out.RetryMaxBackoff, def.RetryMaxBackoff), out.RetryInitialBackoff)
	if out.RetryMultiplier < 1 {
		out.RetryMultiplier = def.RetryMultiplier
	}
	out.AttemptTimeout = max(out.AttemptTimeout, 0)

	out.BreakerMinRequests = positiveOr(out.BreakerMinRequests, def.BreakerMinRequests)
	if out.BreakerFailureRatio <= 0 || out.BreakerFailureRatio > 1 {
		out.BreakerFailureRatio = def.BreakerFailureRatio
	}
	out.BreakerOpenTimeout = positiveOr(out.BreakerOpenTimeout, def.BreakerOpenTimeout)
	out.BreakerHalfOpenMaxCalls = positiveOr(out.BreakerHalfOpenMaxCalls, def.BreakerHalfOpenMaxCalls)
	return out
}

// backoff is the wait after the given failed attempt (1-based), growing geometrically
// from RetryInitialBackoff and capped at RetryMaxBackoff.
func (c Config) backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	wait := float64(c.RetryInitialBackoff) * math.Pow(c.RetryMultiplier, float64(attempt-1))
	if wait >= float64(c.RetryMaxBackoff) || math.IsInf(wait, 0) {
		return c.RetryMaxBackoff
	}
	return time.Duration(wait)
}

// ready reports whether breaker counts warrant opening the circuit.
func (c Config) ready(requests, failures uint32) bool {
	if requests < c.BreakerMinRequests {
		return false
	}
	return float64(failures)/float64(requests) >= c.BreakerFailureRatio
}
