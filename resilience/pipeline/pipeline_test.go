//go:build unit

package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adstackhq/lib-resilience/resilience/backoff"
	"github.com/adstackhq/lib-resilience/resilience/circuitbreaker"
	"github.com/adstackhq/lib-resilience/resilience/log"
	"github.com/adstackhq/lib-resilience/resilience/retry"
)

var errFlaky = errors.New("flaky dependency")

func fastRetryConfig(maxRetries int) retry.Config {
	return retry.Config{
		MaxRetries: maxRetries,
		BaseDelay:  time.Millisecond,
		MaxDelay:   5 * time.Millisecond,
		Strategy:   backoff.StrategyFixed,
	}
}

func TestPipeline_NilOperation(t *testing.T) {
	t.Parallel()

	_, err := New().Execute(context.Background(), nil)
	assert.ErrorIs(t, err, ErrOperationRequired)
}

func TestPipeline_NoLayers(t *testing.T) {
	t.Parallel()

	calls := 0

	result, err := New().Execute(context.Background(), func(ctx context.Context) (any, error) {
		calls++
		return "plain", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "plain", result)
	assert.Equal(t, 1, calls)
}

func TestPipeline_RetryOnly(t *testing.T) {
	t.Parallel()

	calls := 0

	result, err := New(WithRetry(fastRetryConfig(3))).Execute(context.Background(),
		func(ctx context.Context) (any, error) {
			calls++
			if calls < 3 {
				return nil, errFlaky
			}

			return "eventually", nil
		})

	require.NoError(t, err)
	assert.Equal(t, "eventually", result)
	assert.Equal(t, 3, calls)
}

func TestPipeline_BreakerOnly(t *testing.T) {
	t.Parallel()

	registry := circuitbreaker.NewRegistry(log.NewNop())
	breaker := registry.GetOrCreate("flaky", circuitbreaker.Config{
		FailureThreshold: 1,
		RecoveryTimeout:  time.Minute,
	})

	p := New(WithBreaker(breaker))

	_, err := p.Execute(context.Background(), func(ctx context.Context) (any, error) {
		return nil, errFlaky
	})
	require.ErrorIs(t, err, errFlaky)
	require.Equal(t, circuitbreaker.StateOpen, breaker.State())

	_, err = p.Execute(context.Background(), func(ctx context.Context) (any, error) {
		t.Fatal("must not run while breaker is open")
		return nil, nil
	})

	var open *circuitbreaker.OpenError
	assert.ErrorAs(t, err, &open)
}

func TestPipeline_BreakerRejectionStopsRetry(t *testing.T) {
	t.Parallel()

	registry := circuitbreaker.NewRegistry(log.NewNop())
	breaker := registry.GetOrCreate("flaky", circuitbreaker.Config{
		FailureThreshold: 1,
		RecoveryTimeout:  time.Minute,
	})

	calls := 0

	// The first attempt fails and opens the breaker; the second attempt is
	// rejected, and a rejection is never retried, so the retry engine must
	// stop there instead of burning the remaining attempts.
	_, err := New(WithBreaker(breaker), WithRetry(fastRetryConfig(5))).Execute(
		context.Background(), func(ctx context.Context) (any, error) {
			calls++
			return nil, errFlaky
		})

	var open *circuitbreaker.OpenError
	require.ErrorAs(t, err, &open)
	assert.Equal(t, 1, calls)
}

func TestPipeline_RetryThroughBreakerSucceeds(t *testing.T) {
	t.Parallel()

	registry := circuitbreaker.NewRegistry(log.NewNop())
	breaker := registry.GetOrCreate("flaky", circuitbreaker.DefaultConfig())

	calls := 0

	result, err := New(WithBreaker(breaker), WithRetry(fastRetryConfig(3))).Execute(
		context.Background(), func(ctx context.Context) (any, error) {
			calls++
			if calls == 1 {
				return nil, errFlaky
			}

			return "recovered", nil
		})

	require.NoError(t, err)
	assert.Equal(t, "recovered", result)
	assert.Equal(t, 2, calls)
	assert.Equal(t, circuitbreaker.StateClosed, breaker.State())

	counts := breaker.Counts()
	assert.Equal(t, uint32(2), counts.Requests)
	assert.Equal(t, uint32(1), counts.TotalFailures)
}
