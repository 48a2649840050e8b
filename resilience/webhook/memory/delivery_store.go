package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/adstackhq/lib-resilience/resilience/webhook"
)

// DeliveryStore is an in-memory webhook.DeliveryStore. All status updates
// go through the lifecycle transition rules, so duplicate claims and
// updates against terminal records fail exactly as a durable store would.
type DeliveryStore struct {
	mu         sync.Mutex
	deliveries map[uuid.UUID]*webhook.Delivery
	attempts   map[uuid.UUID][]*webhook.DeliveryAttempt
	updatedAt  map[uuid.UUID]time.Time
}

// NewDeliveryStore creates an empty store.
func NewDeliveryStore() *DeliveryStore {
	return &DeliveryStore{
		deliveries: make(map[uuid.UUID]*webhook.Delivery),
		attempts:   make(map[uuid.UUID][]*webhook.DeliveryAttempt),
		updatedAt:  make(map[uuid.UUID]time.Time),
	}
}

// CreateDelivery stores a copy of the delivery.
func (s *DeliveryStore) CreateDelivery(_ context.Context, d *webhook.Delivery) error {
	if d == nil {
		return webhook.ErrDeliveryNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.deliveries[d.ID] = cloneDelivery(d)
	s.updatedAt[d.ID] = time.Now().UTC()

	return nil
}

// GetDelivery returns a copy of the delivery with the given id.
func (s *DeliveryStore) GetDelivery(_ context.Context, id uuid.UUID) (*webhook.Delivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, exists := s.deliveries[id]
	if !exists {
		return nil, webhook.ErrDeliveryNotFound
	}

	return cloneDelivery(stored), nil
}

// MarkDelivering claims a PENDING or RETRYING delivery and increments its
// attempt count.
func (s *DeliveryStore) MarkDelivering(_ context.Context, id uuid.UUID) (*webhook.Delivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, exists := s.deliveries[id]
	if !exists {
		return nil, webhook.ErrDeliveryNotFound
	}

	if !stored.Status.CanTransitionTo(webhook.StatusDelivering) {
		return nil, fmt.Errorf("%w: status %s", webhook.ErrDeliveryNotClaimable, stored.Status)
	}

	stored.Status = webhook.StatusDelivering
	stored.AttemptCount++
	stored.NextRetryAt = nil
	s.updatedAt[id] = time.Now().UTC()

	return cloneDelivery(stored), nil
}

// MarkDelivered settles a DELIVERING record as terminal success.
func (s *DeliveryStore) MarkDelivered(_ context.Context, id uuid.UUID, outcome webhook.AttemptOutcome) error {
	return s.settle(id, webhook.StatusDelivered, outcome, nil)
}

// MarkRetrying records a failed attempt with a scheduled next try.
func (s *DeliveryStore) MarkRetrying(_ context.Context, id uuid.UUID, outcome webhook.AttemptOutcome, nextRetryAt time.Time) error {
	return s.settle(id, webhook.StatusRetrying, outcome, &nextRetryAt)
}

// MarkFailed settles a DELIVERING record as terminal failure.
func (s *DeliveryStore) MarkFailed(_ context.Context, id uuid.UUID, outcome webhook.AttemptOutcome) error {
	return s.settle(id, webhook.StatusFailed, outcome, nil)
}

func (s *DeliveryStore) settle(id uuid.UUID, to webhook.DeliveryStatus, outcome webhook.AttemptOutcome, nextRetryAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, exists := s.deliveries[id]
	if !exists {
		return webhook.ErrDeliveryNotFound
	}

	if !stored.Status.CanTransitionTo(to) {
		return fmt.Errorf("%w: %s -> %s", webhook.ErrTransitionInvalid, stored.Status, to)
	}

	now := time.Now().UTC()

	stored.Status = to
	stored.ResponseStatus = outcome.ResponseStatus
	stored.ResponseBody = webhook.TruncateResponseBody(outcome.ResponseBody)
	stored.ResponseTimeMS = outcome.ResponseTimeMS
	stored.ErrorMessage = webhook.SanitizeErrorMessage(outcome.Error)
	stored.NextRetryAt = nextRetryAt

	if to == webhook.StatusDelivered {
		stored.DeliveredAt = &now
	}

	s.updatedAt[id] = now

	return nil
}

// ResetForRetry resurrects a FAILED delivery for a manual retry.
func (s *DeliveryStore) ResetForRetry(_ context.Context, id uuid.UUID) (*webhook.Delivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, exists := s.deliveries[id]
	if !exists {
		return nil, webhook.ErrDeliveryNotFound
	}

	if stored.Status != webhook.StatusFailed {
		return nil, fmt.Errorf("%w: status %s", webhook.ErrDeliveryNotRetryable, stored.Status)
	}

	stored.Status = webhook.StatusPending
	stored.AttemptCount = 0
	stored.NextRetryAt = nil
	stored.ErrorMessage = ""
	s.updatedAt[id] = time.Now().UTC()

	return cloneDelivery(stored), nil
}

// ReclaimStuck returns deliveries stranded before updatedBefore: abandoned
// DELIVERING records are reset to PENDING, stale PENDING records (their
// enqueue was lost) are touched so the next pass skips them.
func (s *DeliveryStore) ReclaimStuck(_ context.Context, updatedBefore time.Time, limit int) ([]*webhook.Delivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*webhook.Delivery

	for id, stored := range s.deliveries {
		if len(result) >= limit {
			break
		}

		stranded := stored.Status == webhook.StatusDelivering || stored.Status == webhook.StatusPending
		if !stranded || !s.updatedAt[id].Before(updatedBefore) {
			continue
		}

		stored.Status = webhook.StatusPending
		s.updatedAt[id] = time.Now().UTC()
		result = append(result, cloneDelivery(stored))
	}

	return result, nil
}

// ListDueRetries returns RETRYING deliveries overdue for their scheduled
// requeue.
func (s *DeliveryStore) ListDueRetries(_ context.Context, dueBefore time.Time, limit int) ([]*webhook.Delivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*webhook.Delivery

	for _, stored := range s.deliveries {
		if len(result) >= limit {
			break
		}

		if stored.Status != webhook.StatusRetrying || stored.NextRetryAt == nil {
			continue
		}

		if stored.NextRetryAt.Before(dueBefore) {
			result = append(result, cloneDelivery(stored))
		}
	}

	return result, nil
}

// AppendAttempt appends one immutable attempt record.
func (s *DeliveryStore) AppendAttempt(_ context.Context, attempt *webhook.DeliveryAttempt) error {
	if attempt == nil {
		return webhook.ErrDeliveryNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *attempt
	s.attempts[attempt.DeliveryID] = append(s.attempts[attempt.DeliveryID], &clone)

	return nil
}

// ListAttempts returns copies of a delivery's attempts ordered by attempt
// number.
func (s *DeliveryStore) ListAttempts(_ context.Context, deliveryID uuid.UUID) ([]*webhook.DeliveryAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := s.attempts[deliveryID]
	result := make([]*webhook.DeliveryAttempt, 0, len(stored))

	for _, attempt := range stored {
		clone := *attempt
		result = append(result, &clone)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].AttemptNumber < result[j].AttemptNumber
	})

	return result, nil
}

func cloneDelivery(d *webhook.Delivery) *webhook.Delivery {
	clone := *d

	clone.RequestBody = append([]byte(nil), d.RequestBody...)

	if d.NextRetryAt != nil {
		at := *d.NextRetryAt
		clone.NextRetryAt = &at
	}

	if d.DeliveredAt != nil {
		at := *d.DeliveredAt
		clone.DeliveredAt = &at
	}

	return &clone
}
