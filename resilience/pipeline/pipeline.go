// Package pipeline composes a circuit breaker and a retry policy around an
// arbitrary operation. It replaces decorator-style wrapping with an
// explicit object built at the call site:
//
//	p := pipeline.New(
//		pipeline.WithBreaker(registry.GetOrCreate("google_ads_api", circuitbreaker.HTTPServiceConfig())),
//		pipeline.WithRetry(retry.DefaultConfig()),
//	)
//
//	result, err := p.Execute(ctx, func(ctx context.Context) (any, error) {
//		return adsClient.FetchCampaigns(ctx, accountID)
//	})
//
// The retry policy wraps the breaker, so every attempt passes through the
// breaker's allow/reject decision. A breaker rejection is never retried;
// the retry engine recognizes it and raises immediately.
package pipeline

import (
	"context"
	"errors"

	"github.com/adstackhq/lib-resilience/resilience/circuitbreaker"
	"github.com/adstackhq/lib-resilience/resilience/retry"
)

// ErrOperationRequired indicates Execute was called with a nil operation.
var ErrOperationRequired = errors.New("pipeline: operation is required")

// Operation is the unit of work a pipeline mediates.
type Operation = retry.Operation

// Pipeline runs operations through an optional breaker and an optional
// retry policy. A zero-option pipeline just invokes the operation.
type Pipeline struct {
	breaker  *circuitbreaker.Breaker
	retryCfg retry.Config
	useRetry bool
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithBreaker routes every attempt through the given breaker.
func WithBreaker(breaker *circuitbreaker.Breaker) Option {
	return func(p *Pipeline) {
		p.breaker = breaker
	}
}

// WithRetry re-attempts failed operations according to cfg.
func WithRetry(cfg retry.Config) Option {
	return func(p *Pipeline) {
		p.retryCfg = cfg
		p.useRetry = true
	}
}

// New builds a pipeline from the given options.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{}
	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Execute runs op through the configured layers and returns its result.
// With both layers configured the order is retry(breaker(op)).
func (p *Pipeline) Execute(ctx context.Context, op Operation) (any, error) {
	if op == nil {
		return nil, ErrOperationRequired
	}

	wrapped := op

	if p.breaker != nil {
		inner := wrapped
		wrapped = func(ctx context.Context) (any, error) {
			return p.breaker.Execute(ctx, inner)
		}
	}

	if p.useRetry {
		return retry.Do(ctx, p.retryCfg, wrapped)
	}

	return wrapped(ctx)
}
