package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/adstackhq/lib-resilience/resilience/backoff"
	"github.com/adstackhq/lib-resilience/resilience/log"
)

// Operation is one attemptable unit of work.
type Operation func(ctx context.Context) (any, error)

// ShouldRetry reports whether a failure observed on the given zero-based
// attempt index may be re-attempted under cfg.
//
// The decision order is fixed: attempts are bounded first, circuit-breaker
// rejections and non-retryable kinds always lose, rate-limit failures and
// explicit retryable flags always win, and otherwise membership in the
// configured retryable kind set decides.
func ShouldRetry(err error, attempt int, cfg Config) bool {
	if err == nil {
		return false
	}

	if attempt >= cfg.MaxRetries {
		return false
	}

	return retryableFailure(err, cfg)
}

// retryableFailure decides retryability on the failure alone, ignoring the
// attempt bound.
func retryableFailure(err error, cfg Config) bool {
	if IsCircuitOpen(err) {
		return false
	}

	kind := KindOf(err)
	if _, blocked := cfg.nonRetryableKinds()[kind]; blocked {
		return false
	}

	if kind == KindRateLimit {
		return true
	}

	if verdict, found := retryableFlag(err); found {
		return verdict
	}

	_, retryable := cfg.retryableKinds()[kind]

	return retryable
}

// DelayFor computes the wait before re-attempting after a failure on the
// given zero-based attempt index. An explicit retry-after hint on the
// failure short-circuits the strategy math; every result is capped at
// cfg.MaxDelay.
func DelayFor(attempt int, cfg Config, err error) time.Duration {
	if hint := RetryAfterOf(err); hint > 0 {
		return minDuration(hint, cfg.MaxDelay)
	}

	var delay time.Duration

	switch cfg.Strategy {
	case backoff.StrategyFixed:
		delay = backoff.Fixed(cfg.BaseDelay)
	case backoff.StrategyLinear:
		delay = backoff.Linear(cfg.BaseDelay, attempt)
	case backoff.StrategyExponentialJitter:
		delay = backoff.ExponentialWithJitter(cfg.BaseDelay, cfg.ExponentialBase, cfg.JitterFactor, attempt)
	case backoff.StrategyFibonacci:
		delay = backoff.Fibonacci(cfg.BaseDelay, attempt)
	default:
		delay = backoff.Exponential(cfg.BaseDelay, cfg.ExponentialBase, attempt)
	}

	return minDuration(delay, cfg.MaxDelay)
}

// Do runs op until it succeeds, a failure proves non-retryable, the context
// is cancelled, or all attempts are exhausted.
//
// Non-retryable failures are returned as-is so callers keep the original
// error; exhaustion is reported as *ExhaustedError wrapping the last
// failure. Attempts of one call are strictly sequential.
func Do(ctx context.Context, cfg Config, op Operation) (any, error) {
	if op == nil {
		return nil, ErrOperationRequired
	}

	if ctx == nil {
		ctx = context.Background()
	}

	cfg.normalize()

	start := time.Now()

	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("retry cancelled before attempt %d: %w", attempt+1, err)
		}

		result, err := op(ctx)
		if err == nil {
			invokeCallback(ctx, cfg.Logger, "on_success", func() {
				if cfg.OnSuccess != nil {
					cfg.OnSuccess(attempt)
				}
			})

			return result, nil
		}

		lastErr = err

		if !retryableFailure(err, cfg) {
			return nil, err
		}

		if attempt >= cfg.MaxRetries {
			break
		}

		delay := DelayFor(attempt, cfg, err)

		invokeCallback(ctx, cfg.Logger, "on_retry", func() {
			if cfg.OnRetry != nil {
				cfg.OnRetry(attempt, err, delay)
			}
		})

		if waitErr := backoff.WaitContext(ctx, delay); waitErr != nil {
			return nil, fmt.Errorf("retry wait interrupted: %w", waitErr)
		}
	}

	attempts := cfg.MaxRetries + 1

	invokeCallback(ctx, cfg.Logger, "on_failure", func() {
		if cfg.OnFailure != nil {
			cfg.OnFailure(attempts, lastErr)
		}
	})

	return nil, &ExhaustedError{
		Attempts: attempts,
		Elapsed:  time.Since(start),
		Cause:    lastErr,
	}
}

// invokeCallback runs a user callback, swallowing and logging panics so a
// broken observer can never abort the retry loop.
func invokeCallback(ctx context.Context, logger log.Logger, name string, fn func()) {
	defer func() {
		if recovered := recover(); recovered != nil {
			log.SafeError(logger, ctx, "retry callback panicked",
				fmt.Errorf("%v", recovered), log.String("callback", name))
		}
	}()

	fn()
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}

	return b
}
