package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/metric"

	"github.com/adstackhq/lib-resilience/resilience/log"
	"github.com/adstackhq/lib-resilience/resilience/runtime"
)

// Registry owns one breaker per named dependency. It is an explicit object
// passed to call sites by injection; there is no package-level singleton.
type Registry struct {
	mu        sync.RWMutex
	breakers  map[string]*Breaker
	listeners []StateChangeListener
	logger    log.Logger
	metrics   registryMetrics
}

// RegistryOption customizes registry construction.
type RegistryOption func(*registryOptions)

type registryOptions struct {
	meterProvider metric.MeterProvider
}

// WithMeterProvider overrides the meter provider used for breaker metrics.
// The global OTel provider is used by default.
func WithMeterProvider(provider metric.MeterProvider) RegistryOption {
	return func(o *registryOptions) {
		o.meterProvider = provider
	}
}

// NewRegistry creates an empty breaker registry. A nil logger is replaced
// with a no-op logger.
func NewRegistry(logger log.Logger, opts ...RegistryOption) *Registry {
	if logger == nil {
		logger = log.NewNop()
	}

	var options registryOptions
	for _, opt := range opts {
		opt(&options)
	}

	metrics, err := newRegistryMetrics(options.meterProvider)
	if err != nil {
		logger.Log(context.Background(), log.LevelWarn,
			"circuit breaker metrics disabled", log.Err(err))
	}

	return &Registry{
		breakers: make(map[string]*Breaker),
		logger:   logger,
		metrics:  metrics,
	}
}

// GetOrCreate returns the breaker registered under name, creating it with
// config if absent. The config of an existing breaker is not changed.
func (r *Registry) GetOrCreate(name string, config Config) *Breaker {
	r.mu.RLock()
	breaker, exists := r.breakers[name]
	r.mu.RUnlock()

	if exists {
		return breaker
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Double-check after acquiring the write lock.
	if breaker, exists = r.breakers[name]; exists {
		return breaker
	}

	breaker = newBreaker(name, config.normalize(), breakerHooks{
		stateChange: r.handleStateChange,
		rejected:    r.handleRejection,
	})
	r.breakers[name] = breaker

	r.logger.Log(context.Background(), log.LevelInfo,
		"created circuit breaker", log.String("breaker", name))

	return breaker
}

// Get returns the breaker registered under name, if any.
func (r *Registry) Get(name string) (*Breaker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	breaker, exists := r.breakers[name]

	return breaker, exists
}

// Execute runs fn through the named breaker. The breaker must have been
// created with GetOrCreate first.
func (r *Registry) Execute(ctx context.Context, name string, fn func(ctx context.Context) (any, error)) (any, error) {
	if name == "" {
		return nil, ErrNameRequired
	}

	breaker, exists := r.Get(name)
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrBreakerNotFound, name)
	}

	result, err := breaker.Execute(ctx, fn)

	var open *OpenError
	if errors.As(err, &open) {
		r.logger.Log(ctx, log.LevelWarn, "circuit breaker rejected request",
			log.String("breaker", name),
			log.Duration("retry_after", open.RetryAfter))
	}

	return result, err
}

// Status returns a snapshot of the named breaker. Reading a status never
// mutates breaker state.
func (r *Registry) Status(name string) (Status, bool) {
	breaker, exists := r.Get(name)
	if !exists {
		return Status{}, false
	}

	return breaker.Status(), true
}

// Statuses returns a snapshot of every registered breaker keyed by name.
func (r *Registry) Statuses() map[string]Status {
	r.mu.RLock()
	breakers := make([]*Breaker, 0, len(r.breakers))

	for _, breaker := range r.breakers {
		breakers = append(breakers, breaker)
	}
	r.mu.RUnlock()

	statuses := make(map[string]Status, len(breakers))
	for _, breaker := range breakers {
		statuses[breaker.Name()] = breaker.Status()
	}

	return statuses
}

// IsHealthy reports whether the named breaker exists and is closed. OPEN
// and HALF_OPEN both count as unhealthy; a half-open breaker still needs
// probes to succeed before traffic should trust it.
func (r *Registry) IsHealthy(name string) bool {
	breaker, exists := r.Get(name)
	if !exists {
		return false
	}

	return breaker.State() == StateClosed
}

// Reset returns the named breaker to CLOSED with cleared counters. It is a
// no-op for unknown names.
func (r *Registry) Reset(name string) {
	breaker, exists := r.Get(name)
	if !exists {
		return
	}

	r.logger.Log(context.Background(), log.LevelInfo,
		"resetting circuit breaker", log.String("breaker", name))
	breaker.Reset()
}

// Remove drops the named breaker from the registry entirely.
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.breakers, name)
}

// RegisterStateChangeListener adds a listener notified on every breaker
// state change. Listeners run in their own goroutines and must not assume
// ordering across breakers.
func (r *Registry) RegisterStateChangeListener(listener StateChangeListener) {
	if listener == nil {
		r.logger.Log(context.Background(), log.LevelWarn,
			"ignoring nil state change listener")

		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.listeners = append(r.listeners, listener)
}

// handleStateChange logs and meters a transition and fans it out to
// listeners. It is invoked from inside a breaker's critical section, so it
// must not call back into the breaker.
func (r *Registry) handleStateChange(name string, from, to State) {
	ctx := context.Background()

	switch to {
	case StateOpen:
		r.logger.Log(ctx, log.LevelError, "circuit breaker opened, requests will fast-fail",
			log.String("breaker", name), log.String("from", string(from)))
	case StateHalfOpen:
		r.logger.Log(ctx, log.LevelInfo, "circuit breaker half-open, probing recovery",
			log.String("breaker", name))
	case StateClosed:
		r.logger.Log(ctx, log.LevelInfo, "circuit breaker closed, dependency is healthy",
			log.String("breaker", name))
	}

	r.metrics.recordTransition(ctx, name, to)

	r.mu.RLock()
	listeners := make([]StateChangeListener, len(r.listeners))
	copy(listeners, r.listeners)
	r.mu.RUnlock()

	for _, listener := range listeners {
		listener := listener

		// Listeners run detached so a slow or panicking listener cannot
		// block breaker operations.
		runtime.SafeGo(ctx, r.logger, "circuitbreaker", "state_change_listener", func(ctx context.Context) {
			listener.OnStateChange(name, from, to)
		})
	}
}

func (r *Registry) handleRejection(name string) {
	r.metrics.recordRejection(context.Background(), name)
}
