package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/adstackhq/lib-resilience/resilience/webhook"
)

// WebhookRepository is an in-memory webhook.WebhookRepository. Values are
// copied on the way in and out so callers can never mutate stored state
// behind the lock.
type WebhookRepository struct {
	mu       sync.RWMutex
	webhooks map[uuid.UUID]*webhook.Webhook
}

// NewWebhookRepository creates an empty repository.
func NewWebhookRepository() *WebhookRepository {
	return &WebhookRepository{
		webhooks: make(map[uuid.UUID]*webhook.Webhook),
	}
}

// Create stores a copy of the webhook.
func (r *WebhookRepository) Create(_ context.Context, w *webhook.Webhook) error {
	if w == nil {
		return webhook.ErrWebhookRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.webhooks[w.ID] = cloneWebhook(w)

	return nil
}

// GetByID returns a copy of the webhook with the given id.
func (r *WebhookRepository) GetByID(_ context.Context, id uuid.UUID) (*webhook.Webhook, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stored, exists := r.webhooks[id]
	if !exists {
		return nil, webhook.ErrWebhookNotFound
	}

	return cloneWebhook(stored), nil
}

// ListByOrganization returns copies of all webhooks for an organization.
func (r *WebhookRepository) ListByOrganization(_ context.Context, organizationID string) ([]*webhook.Webhook, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*webhook.Webhook

	for _, stored := range r.webhooks {
		if stored.OrganizationID == organizationID {
			result = append(result, cloneWebhook(stored))
		}
	}

	return result, nil
}

// ListActiveForEvent returns the organization's active webhooks subscribed
// to eventType.
func (r *WebhookRepository) ListActiveForEvent(_ context.Context, organizationID, eventType string) ([]*webhook.Webhook, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*webhook.Webhook

	for _, stored := range r.webhooks {
		if stored.OrganizationID != organizationID || !stored.Active {
			continue
		}

		if !stored.SubscribesTo(eventType) {
			continue
		}

		result = append(result, cloneWebhook(stored))
	}

	return result, nil
}

// Deactivate soft-deletes a webhook.
func (r *WebhookRepository) Deactivate(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, exists := r.webhooks[id]
	if !exists {
		return webhook.ErrWebhookNotFound
	}

	stored.Active = false
	stored.UpdatedAt = time.Now().UTC()

	return nil
}

// RecordOutcome updates the webhook's rolling delivery counters for one
// terminal delivery outcome.
func (r *WebhookRepository) RecordOutcome(_ context.Context, id uuid.UUID, success bool, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, exists := r.webhooks[id]
	if !exists {
		return webhook.ErrWebhookNotFound
	}

	stored.TotalDeliveries++

	if success {
		stored.SuccessfulDeliveries++
		stored.LastStatus = webhook.LastStatusSuccess
	} else {
		stored.FailedDeliveries++
		stored.LastStatus = webhook.LastStatusFailure
	}

	stored.LastDeliveryAt = &at
	stored.UpdatedAt = at

	return nil
}

func cloneWebhook(w *webhook.Webhook) *webhook.Webhook {
	clone := *w

	clone.Events = append([]string(nil), w.Events...)
	clone.RetryBackoff = append([]time.Duration(nil), w.RetryBackoff...)

	if w.Headers != nil {
		clone.Headers = make(map[string]string, len(w.Headers))
		for key, value := range w.Headers {
			clone.Headers[key] = value
		}
	}

	if w.LastDeliveryAt != nil {
		at := *w.LastDeliveryAt
		clone.LastDeliveryAt = &at
	}

	return &clone
}
