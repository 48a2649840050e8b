package webhook

import (
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// EventTypeWildcard subscribes a webhook to every event type.
const EventTypeWildcard = "*"

// DefaultMaxAttempts bounds deliveries when a webhook does not set its own.
const DefaultMaxAttempts = 3

// DefaultRetryBackoff is the per-attempt delay schedule used when a webhook
// does not configure one. The schedule is indexed by attempt number; the
// last entry repeats once attempts outnumber entries.
var DefaultRetryBackoff = []time.Duration{
	time.Minute,
	5 * time.Minute,
	30 * time.Minute,
}

// LastStatus values recorded on a webhook's rolling counters.
const (
	LastStatusSuccess = "success"
	LastStatusFailure = "failure"
)

// Webhook is one externally registered receiver configuration, scoped to an
// organization. Webhooks are soft-deactivated rather than deleted so the
// delivery ledger keeps referential integrity.
type Webhook struct {
	ID             uuid.UUID         `json:"id"`
	OrganizationID string            `json:"organization_id"`
	Name           string            `json:"name"`
	URL            string            `json:"url"`
	Events         []string          `json:"events"`
	Headers        map[string]string `json:"headers,omitempty"`
	Secret         string            `json:"secret"`
	VerifySSL      bool              `json:"verify_ssl"`
	RetryBackoff   []time.Duration   `json:"retry_backoff"`
	MaxAttempts    int               `json:"max_attempts"`
	Active         bool              `json:"active"`

	// Rolling delivery counters, mutated on every delivery outcome.
	TotalDeliveries      int64      `json:"total_deliveries"`
	SuccessfulDeliveries int64      `json:"successful_deliveries"`
	FailedDeliveries     int64      `json:"failed_deliveries"`
	LastStatus           string     `json:"last_status,omitempty"`
	LastDeliveryAt       *time.Time `json:"last_delivery_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// WebhookOption customizes a webhook at construction.
type WebhookOption func(*Webhook)

// WithHeaders sets operator-configured headers added to every delivery.
func WithHeaders(headers map[string]string) WebhookOption {
	return func(w *Webhook) {
		w.Headers = headers
	}
}

// WithRetryBackoff sets the per-attempt delay schedule and, unless
// overridden by WithMaxAttempts, sizes the attempt budget to match it.
func WithRetryBackoff(schedule ...time.Duration) WebhookOption {
	return func(w *Webhook) {
		if len(schedule) == 0 {
			return
		}

		w.RetryBackoff = schedule
		w.MaxAttempts = len(schedule)
	}
}

// WithMaxAttempts overrides the delivery attempt budget.
func WithMaxAttempts(maxAttempts int) WebhookOption {
	return func(w *Webhook) {
		if maxAttempts > 0 {
			w.MaxAttempts = maxAttempts
		}
	}
}

// WithInsecureSkipVerify disables TLS certificate verification for this
// receiver. Meant for internal endpoints with self-signed certificates.
func WithInsecureSkipVerify() WebhookOption {
	return func(w *Webhook) {
		w.VerifySSL = false
	}
}

// NewWebhook creates an active webhook subscribed to the given event types.
func NewWebhook(organizationID, name, rawURL, secret string, events []string, opts ...WebhookOption) (*Webhook, error) {
	organizationID = strings.TrimSpace(organizationID)
	if organizationID == "" {
		return nil, ErrOrganizationIDRequired
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrWebhookNameRequired
	}

	if err := validateURL(rawURL); err != nil {
		return nil, err
	}

	if strings.TrimSpace(secret) == "" {
		return nil, ErrSecretRequired
	}

	subscribed := normalizeEventTypes(events)
	if len(subscribed) == 0 {
		return nil, ErrEventTypesRequired
	}

	now := time.Now().UTC()

	w := &Webhook{
		ID:             uuid.New(),
		OrganizationID: organizationID,
		Name:           name,
		URL:            rawURL,
		Events:         subscribed,
		Secret:         secret,
		VerifySSL:      true,
		RetryBackoff:   DefaultRetryBackoff,
		MaxAttempts:    DefaultMaxAttempts,
		Active:         true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}

	return w, nil
}

// SubscribesTo reports whether the webhook wants deliveries for eventType.
func (w *Webhook) SubscribesTo(eventType string) bool {
	for _, subscribed := range w.Events {
		if subscribed == eventType || subscribed == EventTypeWildcard {
			return true
		}
	}

	return false
}

// BackoffFor returns the delay before the next attempt given the number of
// attempts already made (1-indexed). Attempts beyond the schedule reuse its
// last entry.
func (w *Webhook) BackoffFor(attemptCount int) time.Duration {
	schedule := w.RetryBackoff
	if len(schedule) == 0 {
		schedule = DefaultRetryBackoff
	}

	index := attemptCount - 1
	if index < 0 {
		index = 0
	}

	if index >= len(schedule) {
		index = len(schedule) - 1
	}

	return schedule[index]
}

func validateURL(rawURL string) error {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ErrWebhookURLInvalid
	}

	if (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return ErrWebhookURLInvalid
	}

	return nil
}

func normalizeEventTypes(events []string) []string {
	seen := make(map[string]struct{}, len(events))
	result := make([]string, 0, len(events))

	for _, eventType := range events {
		eventType = strings.TrimSpace(eventType)
		if eventType == "" {
			continue
		}

		if _, exists := seen[eventType]; exists {
			continue
		}

		seen[eventType] = struct{}{}
		result = append(result, eventType)
	}

	return result
}
