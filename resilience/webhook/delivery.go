package webhook

import (
	"time"

	"github.com/google/uuid"
)

// MaxStoredResponseBody bounds the response body captured on deliveries and
// attempts. Longer bodies are truncated before storage.
const MaxStoredResponseBody = 1000

// Delivery is one fan-out instance of an event payload destined for one
// webhook receiver. The payload body and target URL are frozen at creation,
// as is MaxAttempts, so later webhook edits cannot change an in-flight
// delivery's contract. Status moves monotonically toward DELIVERED or
// FAILED and never leaves a terminal state.
type Delivery struct {
	ID             uuid.UUID      `json:"id"`
	WebhookID      uuid.UUID      `json:"webhook_id"`
	OrganizationID string         `json:"organization_id"`
	EventType      string         `json:"event_type"`
	Status         DeliveryStatus `json:"status"`
	AttemptCount   int            `json:"attempt_count"`
	MaxAttempts    int            `json:"max_attempts"`
	RequestURL     string         `json:"request_url"`
	RequestBody    []byte         `json:"request_body"`
	ResponseStatus int            `json:"response_status,omitempty"`
	ResponseBody   string         `json:"response_body,omitempty"`
	ResponseTimeMS int64          `json:"response_time_ms,omitempty"`
	ErrorMessage   string         `json:"error_message,omitempty"`
	NextRetryAt    *time.Time     `json:"next_retry_at,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	DeliveredAt    *time.Time     `json:"delivered_at,omitempty"`
}

// DeliveryAttempt is one network try belonging to a delivery. Attempts are
// append-only and never mutated after creation; a delivery's AttemptCount
// always equals the number of its attempts.
type DeliveryAttempt struct {
	ID             uuid.UUID `json:"id"`
	DeliveryID     uuid.UUID `json:"delivery_id"`
	AttemptNumber  int       `json:"attempt_number"`
	ResponseStatus int       `json:"response_status,omitempty"`
	ResponseBody   string    `json:"response_body,omitempty"`
	ResponseTimeMS int64     `json:"response_time_ms"`
	Error          string    `json:"error,omitempty"`
	Success        bool      `json:"success"`
	CreatedAt      time.Time `json:"created_at"`
}

// AttemptOutcome carries the observed result of one network try, used to
// update the delivery record and build its attempt entry.
type AttemptOutcome struct {
	ResponseStatus int
	ResponseBody   string
	ResponseTimeMS int64
	Error          string
}

// Success reports whether the outcome's HTTP status is in [200,300).
func (o AttemptOutcome) Success() bool {
	return o.Error == "" && o.ResponseStatus >= 200 && o.ResponseStatus < 300
}

// NewDelivery creates a PENDING delivery for one webhook with the event
// payload captured now.
func NewDelivery(w *Webhook, event *Event) (*Delivery, error) {
	if w == nil {
		return nil, ErrWebhookRequired
	}

	if event == nil {
		return nil, ErrEventRequired
	}

	body, err := event.Body()
	if err != nil {
		return nil, err
	}

	maxAttempts := w.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	return &Delivery{
		ID:             uuid.New(),
		WebhookID:      w.ID,
		OrganizationID: event.OrganizationID,
		EventType:      event.Type,
		Status:         StatusPending,
		AttemptCount:   0,
		MaxAttempts:    maxAttempts,
		RequestURL:     w.URL,
		RequestBody:    body,
		CreatedAt:      time.Now().UTC(),
	}, nil
}

// Exhausted reports whether the delivery has used its whole attempt budget.
func (d *Delivery) Exhausted() bool {
	return d.AttemptCount >= d.MaxAttempts
}
