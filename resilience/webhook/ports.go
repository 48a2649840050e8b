package webhook

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// WebhookRepository defines persistence for receiver configurations.
type WebhookRepository interface {
	Create(ctx context.Context, w *Webhook) error
	GetByID(ctx context.Context, id uuid.UUID) (*Webhook, error)
	ListByOrganization(ctx context.Context, organizationID string) ([]*Webhook, error)
	// ListActiveForEvent returns the active webhooks of an organization
	// whose subscription set contains eventType.
	ListActiveForEvent(ctx context.Context, organizationID, eventType string) ([]*Webhook, error)
	// Deactivate soft-deletes a webhook. Its ledger entries stay intact.
	Deactivate(ctx context.Context, id uuid.UUID) error
	// RecordOutcome atomically updates the webhook's rolling delivery
	// counters and last-status fields for one terminal delivery outcome.
	RecordOutcome(ctx context.Context, id uuid.UUID, success bool, at time.Time) error
}

// DeliveryStore is the delivery ledger: delivery records plus their
// append-only attempt history. Implementations must guard status updates
// with the lifecycle transition rules so a delivery is never processed by
// two owners at once and terminal records are immutable.
type DeliveryStore interface {
	CreateDelivery(ctx context.Context, d *Delivery) error
	GetDelivery(ctx context.Context, id uuid.UUID) (*Delivery, error)

	// MarkDelivering claims a PENDING or RETRYING delivery for processing:
	// it sets DELIVERING, increments the attempt count, and returns the
	// updated record. Claims on records in any other state fail with
	// ErrDeliveryNotClaimable, which makes duplicate queue deliveries
	// harmless.
	MarkDelivering(ctx context.Context, id uuid.UUID) (*Delivery, error)

	MarkDelivered(ctx context.Context, id uuid.UUID, outcome AttemptOutcome) error
	MarkRetrying(ctx context.Context, id uuid.UUID, outcome AttemptOutcome, nextRetryAt time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, outcome AttemptOutcome) error

	// ResetForRetry resurrects a FAILED delivery for a manual retry:
	// attempt count back to zero, status back to PENDING. Any other state
	// fails with ErrDeliveryNotRetryable. Historical attempts are kept.
	ResetForRetry(ctx context.Context, id uuid.UUID) (*Delivery, error)

	// ReclaimStuck returns deliveries stranded before the given time:
	// DELIVERING records abandoned by a crashed worker are reset back to
	// PENDING, and PENDING records whose enqueue was lost are touched and
	// returned as-is. Both re-enter the queue.
	ReclaimStuck(ctx context.Context, updatedBefore time.Time, limit int) ([]*Delivery, error)

	// ListDueRetries returns RETRYING deliveries whose NextRetryAt passed
	// before the given time without being picked up, so a lost delayed
	// enqueue can be repaired.
	ListDueRetries(ctx context.Context, dueBefore time.Time, limit int) ([]*Delivery, error)

	AppendAttempt(ctx context.Context, attempt *DeliveryAttempt) error
	ListAttempts(ctx context.Context, deliveryID uuid.UUID) ([]*DeliveryAttempt, error)
}

// Job is the unit of work carried by the delivery queue: the delivery to
// process plus the webhook snapshot taken at enqueue time.
type Job struct {
	DeliveryID uuid.UUID `json:"delivery_id"`
	Webhook    Webhook   `json:"webhook"`
}

// DeliveryQueue transports jobs from dispatch to the worker pool.
// Implementations decide durability; all must support delayed redelivery
// for retry scheduling.
type DeliveryQueue interface {
	Enqueue(ctx context.Context, job Job) error
	// EnqueueAfter makes the job available for dequeue only after delay.
	EnqueueAfter(ctx context.Context, job Job, delay time.Duration) error
	// Dequeue blocks until a job is available or ctx is done.
	Dequeue(ctx context.Context) (Job, error)
	Close() error
}

// Lease grants exclusive processing ownership of one delivery for a bounded
// time. A crashed owner's lease expires on its own, letting reclaim re-run
// the delivery within the at-least-once contract.
type Lease interface {
	// Acquire returns true when the caller now owns the delivery.
	Acquire(ctx context.Context, deliveryID uuid.UUID, ttl time.Duration) (bool, error)
	Release(ctx context.Context, deliveryID uuid.UUID) error
}
