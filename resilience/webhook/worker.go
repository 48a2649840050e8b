package webhook

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/adstackhq/lib-resilience/resilience/log"
	"github.com/adstackhq/lib-resilience/resilience/runtime"
)

// Worker drains the delivery queue, performs the outbound call for each
// delivery and classifies the outcome. Any number of workers may run
// against the same queue; leases and transition-guarded claims keep each
// delivery owned by exactly one of them at a time.
type Worker struct {
	webhooks WebhookRepository
	store    DeliveryStore
	queue    DeliveryQueue
	lease    Lease
	logger   log.Logger
	tracer   trace.Tracer
	sender   *sender
	cfg      WorkerConfig
	metrics  pipelineMetrics

	stop       chan struct{}
	stopOnce   sync.Once
	runStateMu sync.Mutex
	running    bool
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// NewWorker creates a delivery worker. The lease may be nil for
// single-process deployments where the store's claim guard is enough.
func NewWorker(
	webhooks WebhookRepository,
	store DeliveryStore,
	queue DeliveryQueue,
	lease Lease,
	logger log.Logger,
	tracer trace.Tracer,
	opts ...WorkerOption,
) (*Worker, error) {
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

	worker := &Worker{
		webhooks: webhooks,
		store:    store,
		queue:    queue,
		lease:    lease,
		logger:   logger,
		tracer:   tracer,
		cfg:      DefaultWorkerConfig(),
		stop:     make(chan struct{}),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(worker)
		}
	}

	worker.cfg.normalize()
	worker.sender = newSender(worker.cfg.RequestTimeout)

	metrics, err := newPipelineMetrics(worker.cfg.MeterProvider)
	if err != nil {
		return nil, fmt.Errorf("init webhook metrics: %w", err)
	}

	worker.metrics = metrics

	return worker, nil
}

// Run starts the consumer pool and the reclaim loop and blocks until Stop
// is called or ctx is cancelled.
func (w *Worker) Run(parentCtx context.Context) error {
	if parentCtx == nil {
		parentCtx = context.Background()
	}

	ctx, cancel := context.WithCancel(parentCtx)
	if !w.registerRun(cancel) {
		cancel()

		return ErrWorkerRunning
	}

	defer w.clearRun()

	w.logger.Log(ctx, log.LevelInfo, "delivery worker started",
		log.Int("concurrency", w.cfg.Concurrency))
	defer w.logger.Log(context.Background(), log.LevelInfo, "delivery worker stopped")

	for i := 0; i < w.cfg.Concurrency; i++ {
		w.wg.Add(1)

		go func() {
			defer w.wg.Done()
			defer runtime.RecoverAndLog(ctx, w.logger, "webhook", "worker_consume")

			w.consumeLoop(ctx)
		}()
	}

	w.wg.Add(1)

	go func() {
		defer w.wg.Done()
		defer runtime.RecoverAndLog(ctx, w.logger, "webhook", "worker_reclaim")

		w.reclaimLoop(ctx)
	}()

	select {
	case <-w.stop:
	case <-ctx.Done():
	}

	cancel()
	w.wg.Wait()

	return nil
}

// Stop signals the worker loops to stop.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		w.runStateMu.Lock()
		cancel := w.cancelFunc
		w.runStateMu.Unlock()

		if cancel != nil {
			cancel()
		}

		close(w.stop)
	})
}

// Shutdown stops the worker and waits for in-flight deliveries to settle
// or ctx to expire. Deliveries abandoned mid-flight stay DELIVERING and
// are reclaimed after ProcessingTimeout.
func (w *Worker) Shutdown(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	w.Stop()

	done := make(chan struct{})

	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("worker shutdown: %w", ctx.Err())
	}
}

func (w *Worker) registerRun(cancel context.CancelFunc) bool {
	w.runStateMu.Lock()
	defer w.runStateMu.Unlock()

	if w.running {
		return false
	}

	w.running = true
	w.cancelFunc = cancel

	return true
}

func (w *Worker) clearRun() {
	w.runStateMu.Lock()
	defer w.runStateMu.Unlock()

	w.running = false
	w.cancelFunc = nil
}

func (w *Worker) consumeLoop(ctx context.Context) {
	for {
		job, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, ErrQueueClosed) {
				log.SafeError(w.logger, ctx, "dequeue failed", err)
			}

			return
		}

		w.process(ctx, job)
	}
}

// process performs one delivery attempt for a dequeued job. Every failure
// path is recorded in the ledger; nothing propagates.
func (w *Worker) process(ctx context.Context, job Job) {
	ctx, span := w.tracer.Start(ctx, "webhook.process_delivery")
	defer span.End()

	span.SetAttributes(attribute.String("delivery.id", job.DeliveryID.String()))

	if w.lease != nil {
		acquired, err := w.lease.Acquire(ctx, job.DeliveryID, w.cfg.ProcessingTimeout)
		if err != nil {
			log.SafeError(w.logger, ctx, "lease acquire failed", err,
				log.String("delivery_id", job.DeliveryID.String()))

			return
		}

		if !acquired {
			// Another worker owns this delivery.
			return
		}

		defer func() {
			if err := w.lease.Release(context.WithoutCancel(ctx), job.DeliveryID); err != nil {
				log.SafeError(w.logger, ctx, "lease release failed", err,
					log.String("delivery_id", job.DeliveryID.String()))
			}
		}()
	}

	delivery, err := w.store.MarkDelivering(ctx, job.DeliveryID)
	if err != nil {
		// Duplicate queue deliveries land here: the record is already
		// terminal or claimed by someone else.
		if !errors.Is(err, ErrDeliveryNotClaimable) {
			log.SafeError(w.logger, ctx, "failed to claim delivery", err,
				log.String("delivery_id", job.DeliveryID.String()))
		}

		return
	}

	// The outbound call is bounded by the sender's own timeout, not by
	// worker shutdown; an abandoned DELIVERING record is reclaimed later.
	outcome := w.sender.send(
		context.WithoutCancel(ctx),
		job.Webhook,
		delivery.RequestURL,
		delivery.ID,
		delivery.EventType,
		delivery.RequestBody,
	)

	w.recordAttempt(ctx, delivery, outcome)
	w.metrics.recordAttempt(ctx, outcome.Success(), float64(outcome.ResponseTimeMS)/1000)

	switch {
	case outcome.Success():
		w.settleDelivered(ctx, delivery, outcome)
	case delivery.Exhausted():
		w.settleFailed(ctx, delivery, outcome)
	default:
		w.scheduleRetry(ctx, job, delivery, outcome)
	}
}

func (w *Worker) recordAttempt(ctx context.Context, delivery *Delivery, outcome AttemptOutcome) {
	attempt := &DeliveryAttempt{
		ID:             uuid.New(),
		DeliveryID:     delivery.ID,
		AttemptNumber:  delivery.AttemptCount,
		ResponseStatus: outcome.ResponseStatus,
		ResponseBody:   outcome.ResponseBody,
		ResponseTimeMS: outcome.ResponseTimeMS,
		Error:          outcome.Error,
		Success:        outcome.Success(),
		CreatedAt:      time.Now().UTC(),
	}

	if err := w.store.AppendAttempt(ctx, attempt); err != nil {
		log.SafeError(w.logger, ctx, "failed to append delivery attempt", err,
			log.String("delivery_id", delivery.ID.String()))
	}
}

func (w *Worker) settleDelivered(ctx context.Context, delivery *Delivery, outcome AttemptOutcome) {
	if err := w.store.MarkDelivered(ctx, delivery.ID, outcome); err != nil {
		log.SafeError(w.logger, ctx, "failed to mark delivery delivered", err,
			log.String("delivery_id", delivery.ID.String()))

		return
	}

	w.recordWebhookOutcome(ctx, delivery.WebhookID, true)
	w.metrics.addDelivered(ctx)

	w.logger.Log(ctx, log.LevelDebug, "delivery succeeded",
		log.String("delivery_id", delivery.ID.String()),
		log.Int("attempt", delivery.AttemptCount))
}

func (w *Worker) settleFailed(ctx context.Context, delivery *Delivery, outcome AttemptOutcome) {
	if err := w.store.MarkFailed(ctx, delivery.ID, outcome); err != nil {
		log.SafeError(w.logger, ctx, "failed to mark delivery failed", err,
			log.String("delivery_id", delivery.ID.String()))

		return
	}

	w.recordWebhookOutcome(ctx, delivery.WebhookID, false)
	w.metrics.addFailed(ctx)

	w.logger.Log(ctx, log.LevelWarn, "delivery exhausted attempt budget",
		log.String("delivery_id", delivery.ID.String()),
		log.Int("attempts", delivery.AttemptCount),
		log.Int("response_status", outcome.ResponseStatus))
}

func (w *Worker) scheduleRetry(ctx context.Context, job Job, delivery *Delivery, outcome AttemptOutcome) {
	delay := job.Webhook.BackoffFor(delivery.AttemptCount)
	nextRetryAt := time.Now().UTC().Add(delay)

	if err := w.store.MarkRetrying(ctx, delivery.ID, outcome, nextRetryAt); err != nil {
		log.SafeError(w.logger, ctx, "failed to mark delivery retrying", err,
			log.String("delivery_id", delivery.ID.String()))

		return
	}

	// A lost delayed enqueue is repaired by the reclaim pass via
	// ListDueRetries; the retry is late, not dropped.
	if err := w.queue.EnqueueAfter(ctx, job, delay); err != nil {
		log.SafeError(w.logger, ctx, "failed to schedule retry, reclaim will repair", err,
			log.String("delivery_id", delivery.ID.String()))
	}

	w.logger.Log(ctx, log.LevelDebug, "delivery retry scheduled",
		log.String("delivery_id", delivery.ID.String()),
		log.Int("attempt", delivery.AttemptCount),
		log.Duration("delay", delay))
}

func (w *Worker) recordWebhookOutcome(ctx context.Context, webhookID uuid.UUID, success bool) {
	if err := w.webhooks.RecordOutcome(ctx, webhookID, success, time.Now().UTC()); err != nil {
		log.SafeError(w.logger, ctx, "failed to update webhook counters", err,
			log.String("webhook_id", webhookID.String()))
	}
}

func (w *Worker) reclaimLoop(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.ReclaimInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.reclaimOnce(ctx)
		}
	}
}

// reclaimOnce re-enqueues deliveries abandoned in DELIVERING past the
// processing timeout, PENDING deliveries whose initial enqueue was lost,
// and RETRYING deliveries whose scheduled requeue was lost. Duplicates are
// harmless: the claim guard skips records another worker already owns.
func (w *Worker) reclaimOnce(ctx context.Context) {
	ctx, span := w.tracer.Start(ctx, "webhook.reclaim")
	defer span.End()

	now := time.Now().UTC()
	reclaimed := int64(0)

	stuck, err := w.store.ReclaimStuck(ctx, now.Add(-w.cfg.ProcessingTimeout), w.cfg.ReclaimBatchSize)
	if err != nil {
		log.SafeError(w.logger, ctx, "failed to reclaim stuck deliveries", err)
	}

	reclaimed += w.requeue(ctx, stuck)

	overdue, err := w.store.ListDueRetries(ctx, now.Add(-w.cfg.ReclaimInterval), w.cfg.ReclaimBatchSize)
	if err != nil {
		log.SafeError(w.logger, ctx, "failed to list overdue retries", err)
	}

	reclaimed += w.requeue(ctx, overdue)

	if reclaimed > 0 {
		span.SetAttributes(attribute.Int64("webhook.deliveries.reclaimed", reclaimed))
		w.metrics.addReclaimed(ctx, reclaimed)
		w.logger.Log(ctx, log.LevelInfo, "reclaimed abandoned deliveries",
			log.Int64("count", reclaimed))
	}
}

func (w *Worker) requeue(ctx context.Context, deliveries []*Delivery) int64 {
	requeued := int64(0)

	for _, delivery := range deliveries {
		receiver, err := w.webhooks.GetByID(ctx, delivery.WebhookID)
		if err != nil {
			log.SafeError(w.logger, ctx, "failed to load webhook for reclaimed delivery", err,
				log.String("delivery_id", delivery.ID.String()))

			continue
		}

		if err := w.queue.Enqueue(ctx, Job{DeliveryID: delivery.ID, Webhook: *receiver}); err != nil {
			log.SafeError(w.logger, ctx, "failed to re-enqueue reclaimed delivery", err,
				log.String("delivery_id", delivery.ID.String()))

			continue
		}

		requeued++
	}

	return requeued
}
