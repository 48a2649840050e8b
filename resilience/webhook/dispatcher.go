package webhook

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/adstackhq/lib-resilience/resilience/log"
)

// Dispatcher fans events out to subscribed receivers and offers the manual
// operations operators use against the ledger.
type Dispatcher struct {
	webhooks WebhookRepository
	store    DeliveryStore
	queue    DeliveryQueue
	logger   log.Logger
	tracer   trace.Tracer
	sender   *sender
	metrics  pipelineMetrics

	testTimeout   time.Duration
	meterProvider metric.MeterProvider
}

// DispatcherOption customizes dispatcher construction.
type DispatcherOption func(*Dispatcher)

// WithTestTimeout bounds the single request made by TestWebhook.
func WithTestTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.testTimeout = timeout
		}
	}
}

// WithDispatcherMeterProvider overrides the meter provider for dispatch
// metrics. The global OTel provider is used by default.
func WithDispatcherMeterProvider(provider metric.MeterProvider) DispatcherOption {
	return func(d *Dispatcher) {
		d.meterProvider = provider
	}
}

// NewDispatcher creates a dispatcher over the given ports. A nil logger or
// tracer falls back to no-op implementations.
func NewDispatcher(
	webhooks WebhookRepository,
	store DeliveryStore,
	queue DeliveryQueue,
	logger log.Logger,
	tracer trace.Tracer,
	opts ...DispatcherOption,
) (*Dispatcher, error) {
	if webhooks == nil {
		return nil, ErrWebhookRepositoryRequired
	}

	if store == nil {
		return nil, ErrDeliveryStoreRequired
	}

	if queue == nil {
		return nil, ErrDeliveryQueueRequired
	}

	if logger == nil {
		logger = log.NewNop()
	}

	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("resilience.noop")
	}

	dispatcher := &Dispatcher{
		webhooks:    webhooks,
		store:       store,
		queue:       queue,
		logger:      logger,
		tracer:      tracer,
		testTimeout: DefaultRequestTimeout,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(dispatcher)
		}
	}

	dispatcher.sender = newSender(dispatcher.testTimeout)

	metrics, err := newPipelineMetrics(dispatcher.meterProvider)
	if err != nil {
		return nil, fmt.Errorf("init webhook metrics: %w", err)
	}

	dispatcher.metrics = metrics

	return dispatcher, nil
}

// DispatchEvent creates one delivery per active subscribed webhook and
// enqueues them. It is fire-and-forget: it returns once the deliveries are
// persisted and enqueued, and delivery outcomes are visible only through
// the ledger. A failure on one receiver's fan-out never blocks the others.
func (d *Dispatcher) DispatchEvent(ctx context.Context, organizationID, eventType string, data, metadata map[string]any) error {
	ctx, span := d.tracer.Start(ctx, "webhook.dispatch_event")
	defer span.End()

	event, err := NewEvent(organizationID, eventType, data, metadata)
	if err != nil {
		return err
	}

	span.SetAttributes(
		attribute.String("event.type", eventType),
		attribute.String("event.id", event.ID.String()),
	)

	receivers, err := d.webhooks.ListActiveForEvent(ctx, organizationID, eventType)
	if err != nil {
		return fmt.Errorf("list webhooks for event %q: %w", eventType, err)
	}

	created := int64(0)

	for _, receiver := range receivers {
		delivery, err := NewDelivery(receiver, event)
		if err != nil {
			log.SafeError(d.logger, ctx, "failed to build delivery", err,
				log.String("webhook_id", receiver.ID.String()))

			continue
		}

		if err := d.store.CreateDelivery(ctx, delivery); err != nil {
			log.SafeError(d.logger, ctx, "failed to persist delivery", err,
				log.String("webhook_id", receiver.ID.String()))

			continue
		}

		created++

		// An enqueue failure leaves the record PENDING; the worker's
		// reclaim loop picks it up, so the delivery is delayed rather
		// than lost.
		if err := d.queue.Enqueue(ctx, Job{DeliveryID: delivery.ID, Webhook: *receiver}); err != nil {
			log.SafeError(d.logger, ctx, "failed to enqueue delivery, left pending for reclaim", err,
				log.String("delivery_id", delivery.ID.String()))
		}
	}

	span.SetAttributes(attribute.Int64("webhook.deliveries.created", created))
	d.metrics.addCreated(ctx, created)

	return nil
}

// RetryDelivery manually resurrects a FAILED delivery: attempt count back
// to zero, status back to PENDING, re-enqueued immediately. Deliveries in
// any other state are rejected with ErrDeliveryNotRetryable; deliveries of
// a deactivated webhook with ErrWebhookInactive.
func (d *Dispatcher) RetryDelivery(ctx context.Context, deliveryID uuid.UUID) error {
	ctx, span := d.tracer.Start(ctx, "webhook.retry_delivery")
	defer span.End()

	existing, err := d.store.GetDelivery(ctx, deliveryID)
	if err != nil {
		return err
	}

	receiver, err := d.webhooks.GetByID(ctx, existing.WebhookID)
	if err != nil {
		return fmt.Errorf("load webhook for manual retry: %w", err)
	}

	// Inactive receivers are checked before the reset so the delivery is
	// not left PENDING for the reclaimer to deliver anyway.
	if !receiver.Active {
		return fmt.Errorf("%w: %s", ErrWebhookInactive, receiver.ID)
	}

	delivery, err := d.store.ResetForRetry(ctx, deliveryID)
	if err != nil {
		return err
	}

	if err := d.queue.Enqueue(ctx, Job{DeliveryID: delivery.ID, Webhook: *receiver}); err != nil {
		log.SafeError(d.logger, ctx, "failed to enqueue manual retry, left pending for reclaim", err,
			log.String("delivery_id", delivery.ID.String()))
	}

	d.logger.Log(ctx, log.LevelInfo, "delivery manually re-queued",
		log.String("delivery_id", delivery.ID.String()))

	return nil
}

// TestResult is the outcome of a TestWebhook connectivity check.
type TestResult struct {
	Success        bool   `json:"success"`
	ResponseStatus int    `json:"response_status,omitempty"`
	ResponseBody   string `json:"response_body,omitempty"`
	ResponseTimeMS int64  `json:"response_time_ms"`
	Error          string `json:"error,omitempty"`
}

// TestWebhook performs one synchronous signed delivery of a synthetic test
// payload, outside the retry and ledger machinery. It never creates a
// Delivery and never touches the webhook's rolling counters.
func (d *Dispatcher) TestWebhook(ctx context.Context, webhookID uuid.UUID) (*TestResult, error) {
	ctx, span := d.tracer.Start(ctx, "webhook.test_webhook")
	defer span.End()

	receiver, err := d.webhooks.GetByID(ctx, webhookID)
	if err != nil {
		return nil, err
	}

	if !receiver.Active {
		return nil, fmt.Errorf("%w: %s", ErrWebhookInactive, receiver.ID)
	}

	event, err := NewEvent(receiver.OrganizationID, "webhook.test", map[string]any{
		"message":    "test delivery",
		"webhook_id": receiver.ID.String(),
	}, nil)
	if err != nil {
		return nil, err
	}

	body, err := event.Body()
	if err != nil {
		return nil, err
	}

	outcome := d.sender.send(ctx, *receiver, receiver.URL, event.ID, event.Type, body)

	return &TestResult{
		Success:        outcome.Success(),
		ResponseStatus: outcome.ResponseStatus,
		ResponseBody:   outcome.ResponseBody,
		ResponseTimeMS: outcome.ResponseTimeMS,
		Error:          outcome.Error,
	}, nil
}
