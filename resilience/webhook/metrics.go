package webhook

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type pipelineMetrics struct {
	deliveriesCreated   metric.Int64Counter
	deliveriesDelivered metric.Int64Counter
	deliveriesFailed    metric.Int64Counter
	deliveriesReclaimed metric.Int64Counter
	attempts            metric.Int64Counter
	attemptLatency      metric.Float64Histogram
}

func newPipelineMetrics(provider metric.MeterProvider) (pipelineMetrics, error) {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}

	meter := provider.Meter("resilience.webhook")

	var (
		metrics pipelineMetrics
		err     error
	)

	metrics.deliveriesCreated, err = meter.Int64Counter(
		"webhook.deliveries.created",
		metric.WithDescription("Number of deliveries created by event fan-out"),
		metric.WithUnit("{delivery}"),
	)
	if err != nil {
		return pipelineMetrics{}, fmt.Errorf("create webhook.deliveries.created counter: %w", err)
	}

	metrics.deliveriesDelivered, err = meter.Int64Counter(
		"webhook.deliveries.delivered",
		metric.WithDescription("Number of deliveries that reached DELIVERED"),
		metric.WithUnit("{delivery}"),
	)
	if err != nil {
		return pipelineMetrics{}, fmt.Errorf("create webhook.deliveries.delivered counter: %w", err)
	}

	metrics.deliveriesFailed, err = meter.Int64Counter(
		"webhook.deliveries.failed",
		metric.WithDescription("Number of deliveries that exhausted their attempt budget"),
		metric.WithUnit("{delivery}"),
	)
	if err != nil {
		return pipelineMetrics{}, fmt.Errorf("create webhook.deliveries.failed counter: %w", err)
	}

	metrics.deliveriesReclaimed, err = meter.Int64Counter(
		"webhook.deliveries.reclaimed",
		metric.WithDescription("Number of stuck or overdue deliveries re-enqueued by reclaim"),
		metric.WithUnit("{delivery}"),
	)
	if err != nil {
		return pipelineMetrics{}, fmt.Errorf("create webhook.deliveries.reclaimed counter: %w", err)
	}

	metrics.attempts, err = meter.Int64Counter(
		"webhook.attempts",
		metric.WithDescription("Number of delivery attempts by outcome"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return pipelineMetrics{}, fmt.Errorf("create webhook.attempts counter: %w", err)
	}

	metrics.attemptLatency, err = meter.Float64Histogram(
		"webhook.attempt.latency",
		metric.WithDescription("Outbound request latency per delivery attempt"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return pipelineMetrics{}, fmt.Errorf("create webhook.attempt.latency histogram: %w", err)
	}

	return metrics, nil
}

func (m pipelineMetrics) addCreated(ctx context.Context, count int64) {
	if m.deliveriesCreated == nil || count <= 0 {
		return
	}

	m.deliveriesCreated.Add(ctx, count)
}

func (m pipelineMetrics) addDelivered(ctx context.Context) {
	if m.deliveriesDelivered == nil {
		return
	}

	m.deliveriesDelivered.Add(ctx, 1)
}

func (m pipelineMetrics) addFailed(ctx context.Context) {
	if m.deliveriesFailed == nil {
		return
	}

	m.deliveriesFailed.Add(ctx, 1)
}

func (m pipelineMetrics) addReclaimed(ctx context.Context, count int64) {
	if m.deliveriesReclaimed == nil || count <= 0 {
		return
	}

	m.deliveriesReclaimed.Add(ctx, count)
}

func (m pipelineMetrics) recordAttempt(ctx context.Context, success bool, latencySeconds float64) {
	outcome := "failure"
	if success {
		outcome = "success"
	}

	if m.attempts != nil {
		m.attempts.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}

	if m.attemptLatency != nil {
		m.attemptLatency.Record(ctx, latencySeconds)
	}
}
