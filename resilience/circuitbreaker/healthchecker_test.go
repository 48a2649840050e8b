//go:build unit

package circuitbreaker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adstackhq/lib-resilience/resilience/log"
)

func TestNewHealthChecker_Validation(t *testing.T) {
	t.Parallel()

	registry := NewRegistry(log.NewNop())

	_, err := NewHealthChecker(registry, 0, time.Second, log.NewNop())
	assert.ErrorIs(t, err, ErrInvalidHealthCheckInterval)

	_, err = NewHealthChecker(registry, time.Second, -1, log.NewNop())
	assert.ErrorIs(t, err, ErrInvalidHealthCheckTimeout)

	checker, err := NewHealthChecker(registry, time.Second, time.Second, nil)
	require.NoError(t, err)
	assert.NotNil(t, checker)
}

func TestHealthChecker_ResetsRecoveredBreaker(t *testing.T) {
	t.Parallel()

	registry := NewRegistry(log.NewNop())
	registry.GetOrCreate("slack", Config{FailureThreshold: 1, RecoveryTimeout: time.Hour})

	_, _ = registry.Execute(context.Background(), "slack", failCall)
	require.False(t, registry.IsHealthy("slack"))

	checker, err := NewHealthChecker(registry, 10*time.Millisecond, time.Second, log.NewNop())
	require.NoError(t, err)

	checker.Register("slack", func(ctx context.Context) error {
		return nil // dependency is back
	})

	checker.Start()
	defer checker.Stop()

	require.Eventually(t, func() bool {
		return registry.IsHealthy("slack")
	}, 2*time.Second, 10*time.Millisecond, "breaker should be reset once the probe succeeds")
}

func TestHealthChecker_LeavesUnhealthyDependencyOpen(t *testing.T) {
	t.Parallel()

	registry := NewRegistry(log.NewNop())
	registry.GetOrCreate("slack", Config{FailureThreshold: 1, RecoveryTimeout: time.Hour})

	_, _ = registry.Execute(context.Background(), "slack", failCall)

	var probes atomic.Int32

	checker, err := NewHealthChecker(registry, 10*time.Millisecond, time.Second, log.NewNop())
	require.NoError(t, err)

	checker.Register("slack", func(ctx context.Context) error {
		probes.Add(1)
		return errors.New("still down")
	})

	checker.Start()
	defer checker.Stop()

	require.Eventually(t, func() bool {
		return probes.Load() >= 2
	}, 2*time.Second, 10*time.Millisecond)

	assert.False(t, registry.IsHealthy("slack"))
}

func TestHealthChecker_SkipsHealthyDependencies(t *testing.T) {
	t.Parallel()

	registry := NewRegistry(log.NewNop())
	registry.GetOrCreate("slack", DefaultConfig())

	var probes atomic.Int32

	checker, err := NewHealthChecker(registry, 10*time.Millisecond, time.Second, log.NewNop())
	require.NoError(t, err)

	checker.Register("slack", func(ctx context.Context) error {
		probes.Add(1)
		return nil
	})

	checker.Start()

	time.Sleep(100 * time.Millisecond)
	checker.Stop()

	assert.Zero(t, probes.Load(), "closed breakers are never probed")
}

func TestHealthChecker_ImmediateProbeOnOpen(t *testing.T) {
	t.Parallel()

	registry := NewRegistry(log.NewNop())
	registry.GetOrCreate("slack", Config{FailureThreshold: 1, RecoveryTimeout: time.Hour})

	// A long interval so only the open notification can trigger the probe
	// within the test window.
	checker, err := NewHealthChecker(registry, time.Hour, time.Second, log.NewNop())
	require.NoError(t, err)

	checker.Register("slack", func(ctx context.Context) error {
		return nil
	})

	registry.RegisterStateChangeListener(checker)

	checker.Start()
	defer checker.Stop()

	_, _ = registry.Execute(context.Background(), "slack", failCall)

	require.Eventually(t, func() bool {
		return registry.IsHealthy("slack")
	}, 2*time.Second, 10*time.Millisecond, "opening the breaker should schedule an immediate probe")
}

func TestHealthChecker_HealthStatus(t *testing.T) {
	t.Parallel()

	registry := NewRegistry(log.NewNop())
	registry.GetOrCreate("slack", Config{FailureThreshold: 1, RecoveryTimeout: time.Hour})

	checker, err := NewHealthChecker(registry, time.Hour, time.Second, log.NewNop())
	require.NoError(t, err)

	checker.Register("slack", func(ctx context.Context) error { return nil })
	checker.Register("unregistered", func(ctx context.Context) error { return nil })

	_, _ = registry.Execute(context.Background(), "slack", failCall)

	status := checker.HealthStatus()
	assert.Equal(t, string(StateOpen), status["slack"])
	assert.Equal(t, string(StateUnknown), status["unregistered"])
}
