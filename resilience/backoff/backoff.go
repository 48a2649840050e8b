package backoff

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"math"
	"math/big"
	mrand "math/rand/v2"
	"time"
)

// Strategy selects a delay schedule.
type Strategy string

const (
	StrategyFixed             Strategy = "fixed"
	StrategyLinear            Strategy = "linear"
	StrategyExponential       Strategy = "exponential"
	StrategyExponentialJitter Strategy = "exponential_jitter"
	StrategyFibonacci         Strategy = "fibonacci"
)

// IsValid reports whether the strategy is a known schedule.
func (s Strategy) IsValid() bool {
	switch s {
	case StrategyFixed, StrategyLinear, StrategyExponential, StrategyExponentialJitter, StrategyFibonacci:
		return true
	default:
		return false
	}
}

// fibonacci holds the standard sequence 1,1,2,3,5,8,... Attempts beyond the
// table reuse the last multiplier; with a max-delay cap that point is moot
// long before entry 32.
var fibonacci = buildFibonacci(32)

func buildFibonacci(n int) []int64 {
	seq := make([]int64, n)
	seq[0], seq[1] = 1, 1

	for i := 2; i < n; i++ {
		seq[i] = seq[i-1] + seq[i-2]
	}

	return seq
}

// Fixed returns the base delay regardless of attempt.
// Negative bases are treated as 0.
func Fixed(base time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}

	return base
}

// Linear calculates a linearly growing delay: base * (attempt + 1).
// Negative attempts are treated as 0.
func Linear(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}

	if attempt < 0 {
		attempt = 0
	}

	multiplier := int64(attempt) + 1
	if int64(base) > math.MaxInt64/multiplier {
		return time.Duration(math.MaxInt64)
	}

	return time.Duration(int64(base) * multiplier)
}

// Exponential calculates base * factor^attempt with overflow protection.
// Factors below 1 fall back to 2. Negative attempts are treated as 0.
func Exponential(base time.Duration, factor float64, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}

	if factor < 1 {
		factor = 2
	}

	if attempt < 0 {
		attempt = 0
	}

	delay := float64(base) * math.Pow(factor, float64(attempt))
	if delay >= math.MaxInt64 || math.IsInf(delay, 1) {
		return time.Duration(math.MaxInt64)
	}

	return time.Duration(delay)
}

// Fibonacci calculates base * fib(attempt) using the standard sequence
// starting 1,1,2,3,5. Attempts past the precomputed table are clamped to
// its last entry.
func Fibonacci(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}

	if attempt < 0 {
		attempt = 0
	} else if attempt >= len(fibonacci) {
		attempt = len(fibonacci) - 1
	}

	multiplier := fibonacci[attempt]
	if int64(base) > math.MaxInt64/multiplier {
		return time.Duration(math.MaxInt64)
	}

	return time.Duration(int64(base) * multiplier)
}

// FullJitter returns a random duration in the range [0, delay).
// Uses crypto/rand for randomness, falling back to a seeded PRNG if the
// entropy source fails, so jitter never stalls a retry loop.
func FullJitter(delay time.Duration) time.Duration {
	if delay <= 0 {
		return 0
	}

	n, err := rand.Int(rand.Reader, big.NewInt(int64(delay)))
	if err != nil {
		return time.Duration(cryptoFallbackRand(int64(delay)))
	}

	return time.Duration(n.Int64())
}

// ExponentialWithJitter returns the exponential delay plus a proportional
// random component: exp + U(0, exp*jitterFactor). A jitterFactor outside
// [0,1] is clamped.
func ExponentialWithJitter(base time.Duration, factor, jitterFactor float64, attempt int) time.Duration {
	exponential := Exponential(base, factor, attempt)

	if jitterFactor <= 0 {
		return exponential
	}

	if jitterFactor > 1 {
		jitterFactor = 1
	}

	jitterRange := time.Duration(float64(exponential) * jitterFactor)
	total := exponential + FullJitter(jitterRange)

	if total < exponential {
		return time.Duration(math.MaxInt64)
	}

	return total
}

// cryptoFallbackRand seeds a math/rand PRNG from raw crypto/rand bytes.
// rand.Read uses a different code path than rand.Int and may succeed
// independently; if even seeding fails, a deterministic midpoint keeps
// jitter non-blocking.
func cryptoFallbackRand(maxValue int64) int64 {
	var seed [8]byte

	_, err := rand.Read(seed[:])
	if err != nil {
		return maxValue / 2
	}

	rng := mrand.New(
		mrand.NewPCG(binary.LittleEndian.Uint64(seed[:]), 0),
	) // #nosec G404 -- Fallback when crypto/rand fails

	return rng.Int64N(maxValue)
}

// WaitContext sleeps for the specified duration but respects context
// cancellation. Returns nil if the sleep completes, or an error if the
// context is cancelled first. Zero or negative durations return immediately.
func WaitContext(ctx context.Context, duration time.Duration) error {
	if duration <= 0 {
		return nil
	}

	timer := time.NewTimer(duration)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("context done: %w", ctx.Err())
	}
}
