package circuitbreaker

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type registryMetrics struct {
	transitions metric.Int64Counter
	rejections  metric.Int64Counter
}

func newRegistryMetrics(provider metric.MeterProvider) (registryMetrics, error) {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}

	meter := provider.Meter("resilience.circuitbreaker")

	var (
		metrics registryMetrics
		err     error
	)

	metrics.transitions, err = meter.Int64Counter(
		"circuitbreaker.transitions",
		metric.WithDescription("Number of circuit breaker state transitions"),
		metric.WithUnit("{transition}"),
	)
	if err != nil {
		return registryMetrics{}, fmt.Errorf("create circuitbreaker.transitions counter: %w", err)
	}

	metrics.rejections, err = meter.Int64Counter(
		"circuitbreaker.rejections",
		metric.WithDescription("Number of requests rejected while a breaker was open"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return registryMetrics{}, fmt.Errorf("create circuitbreaker.rejections counter: %w", err)
	}

	return metrics, nil
}

func (m registryMetrics) recordTransition(ctx context.Context, name string, to State) {
	if m.transitions == nil {
		return
	}

	m.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("breaker", name),
		attribute.String("state", string(to)),
	))
}

func (m registryMetrics) recordRejection(ctx context.Context, name string) {
	if m.rejections == nil {
		return
	}

	m.rejections.Add(ctx, 1, metric.WithAttributes(
		attribute.String("breaker", name),
	))
}
