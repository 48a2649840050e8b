package circuitbreaker

import (
	"context"
	"time"
)

// Config holds the tuning knobs for a single breaker.
type Config struct {
	// FailureThreshold is the number of consecutive counted failures that
	// opens the breaker from CLOSED.
	FailureThreshold uint32

	// FailureRateThreshold opens the breaker when the rolling failure rate
	// over the sliding window reaches this fraction (e.g. 0.5 for 50%),
	// provided the window holds at least MinRequests samples. This lets a
	// breaker open on a sustained elevated failure rate even with
	// occasional successes interspersed.
	FailureRateThreshold float64

	// SlidingWindowSize bounds the FIFO of recent call outcomes backing the
	// failure-rate calculation.
	SlidingWindowSize int

	// MinRequests is the minimum number of samples the window must hold
	// before the failure rate can trip the breaker.
	MinRequests uint32

	// RecoveryTimeout is how long an open breaker waits before allowing a
	// half-open probe. The wait is checked lazily on the next call, not by
	// an active timer.
	RecoveryTimeout time.Duration

	// HalfOpenMaxCalls is the number of consecutive probe successes in
	// HALF_OPEN required to close the breaker.
	HalfOpenMaxCalls uint32

	// Classifier decides whether a failure counts toward breaker
	// statistics. A nil Classifier counts every non-nil error. Return
	// false for failures that should not trip a breaker guarding a
	// healthy dependency, such as client-side validation errors.
	Classifier func(err error) bool

	// Fallback, when set, is invoked when the wrapped call fails (not when
	// the breaker is already open) and its result is returned instead of
	// propagating the failure. Open rejections always raise so callers can
	// tell "dependency degraded" apart from "circuit open".
	Fallback func(ctx context.Context, err error) (any, error)
}

// DefaultConfig provides balanced settings for most dependencies.
func DefaultConfig() Config {
	return Config{
		FailureThreshold:     15,
		FailureRateThreshold: 0.5,
		SlidingWindowSize:    50,
		MinRequests:          10,
		RecoveryTimeout:      2 * time.Minute,
		HalfOpenMaxCalls:     3,
	}
}

// AggressiveConfig for dependencies requiring fast failure detection.
func AggressiveConfig() Config {
	return Config{
		FailureThreshold:     5,
		FailureRateThreshold: 0.4,
		SlidingWindowSize:    20,
		MinRequests:          5,
		RecoveryTimeout:      1 * time.Minute,
		HalfOpenMaxCalls:     2,
	}
}

// ConservativeConfig for dependencies that should tolerate more failures
// before tripping, such as databases where transient network blips are
// expected.
func ConservativeConfig() Config {
	return Config{
		FailureThreshold:     25,
		FailureRateThreshold: 0.6,
		SlidingWindowSize:    100,
		MinRequests:          20,
		RecoveryTimeout:      5 * time.Minute,
		HalfOpenMaxCalls:     5,
	}
}

// HTTPServiceConfig optimized for external HTTP APIs: faster failure
// detection and a shorter cooldown than DefaultConfig.
func HTTPServiceConfig() Config {
	return Config{
		FailureThreshold:     5,
		FailureRateThreshold: 0.5,
		SlidingWindowSize:    50,
		MinRequests:          10,
		RecoveryTimeout:      30 * time.Second,
		HalfOpenMaxCalls:     3,
	}
}

// normalize fills zero values with defaults so a partially specified
// Config still produces a working breaker.
func (c Config) normalize() Config {
	def := DefaultConfig()

	if c.FailureThreshold == 0 {
		c.FailureThreshold = def.FailureThreshold
	}

	if c.FailureRateThreshold <= 0 || c.FailureRateThreshold > 1 {
		c.FailureRateThreshold = def.FailureRateThreshold
	}

	if c.SlidingWindowSize <= 0 {
		c.SlidingWindowSize = def.SlidingWindowSize
	}

	if c.MinRequests == 0 {
		c.MinRequests = def.MinRequests
	}

	if c.RecoveryTimeout <= 0 {
		c.RecoveryTimeout = def.RecoveryTimeout
	}

	if c.HalfOpenMaxCalls == 0 {
		c.HalfOpenMaxCalls = def.HalfOpenMaxCalls
	}

	return c
}
