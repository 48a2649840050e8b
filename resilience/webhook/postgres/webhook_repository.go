package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/adstackhq/lib-resilience/resilience/webhook"
)

// WebhookRepository persists webhook configurations in the webhooks table.
type WebhookRepository struct {
	db *sql.DB
}

// NewWebhookRepository creates a repository over an open connection pool.
func NewWebhookRepository(db *sql.DB) *WebhookRepository {
	return &WebhookRepository{db: db}
}

const webhookColumns = `id, organization_id, name, url, events, headers, secret, verify_ssl,
retry_backoff_ms, max_attempts, active, total_deliveries, successful_deliveries,
failed_deliveries, last_status, last_delivery_at, created_at, updated_at`

// Create inserts a webhook row.
func (r *WebhookRepository) Create(ctx context.Context, w *webhook.Webhook) error {
	if w == nil {
		return webhook.ErrWebhookRequired
	}

	headers, err := json.Marshal(headersOrEmpty(w.Headers))
	if err != nil {
		return fmt.Errorf("encode webhook headers: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO webhooks (`+webhookColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		w.ID, w.OrganizationID, w.Name, w.URL,
		pq.Array(w.Events), headers, w.Secret, w.VerifySSL,
		pq.Array(backoffToMillis(w.RetryBackoff)), w.MaxAttempts, w.Active,
		w.TotalDeliveries, w.SuccessfulDeliveries, w.FailedDeliveries,
		nullString(w.LastStatus), w.LastDeliveryAt, w.CreatedAt, w.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert webhook: %w", err)
	}

	return nil
}

// GetByID loads one webhook.
func (r *WebhookRepository) GetByID(ctx context.Context, id uuid.UUID) (*webhook.Webhook, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+webhookColumns+` FROM webhooks WHERE id = $1`, id)

	w, err := scanWebhook(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, webhook.ErrWebhookNotFound
		}

		return nil, fmt.Errorf("select webhook: %w", err)
	}

	return w, nil
}

// ListByOrganization returns every webhook owned by an organization.
func (r *WebhookRepository) ListByOrganization(ctx context.Context, organizationID string) ([]*webhook.Webhook, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+webhookColumns+` FROM webhooks
WHERE organization_id = $1
ORDER BY created_at`, organizationID)
	if err != nil {
		return nil, fmt.Errorf("list webhooks: %w", err)
	}

	return collectWebhooks(rows)
}

// ListActiveForEvent returns the organization's active webhooks subscribed
// to eventType, either exactly or through the wildcard.
func (r *WebhookRepository) ListActiveForEvent(ctx context.Context, organizationID, eventType string) ([]*webhook.Webhook, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+webhookColumns+` FROM webhooks
WHERE organization_id = $1
  AND active
  AND ($2 = ANY (events) OR $3 = ANY (events))
ORDER BY created_at`, organizationID, eventType, webhook.EventTypeWildcard)
	if err != nil {
		return nil, fmt.Errorf("list webhooks for event: %w", err)
	}

	return collectWebhooks(rows)
}

// Deactivate soft-deletes a webhook.
func (r *WebhookRepository) Deactivate(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE webhooks SET active = FALSE, updated_at = $2 WHERE id = $1`, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("deactivate webhook: %w", err)
	}

	return requireOneRow(result, webhook.ErrWebhookNotFound)
}

// RecordOutcome bumps the webhook's rolling delivery counters.
func (r *WebhookRepository) RecordOutcome(ctx context.Context, id uuid.UUID, success bool, at time.Time) error {
	lastStatus := webhook.LastStatusFailure
	if success {
		lastStatus = webhook.LastStatusSuccess
	}

	result, err := r.db.ExecContext(ctx, `
UPDATE webhooks SET
    total_deliveries      = total_deliveries + 1,
    successful_deliveries = successful_deliveries + CASE WHEN $2 THEN 1 ELSE 0 END,
    failed_deliveries     = failed_deliveries + CASE WHEN $2 THEN 0 ELSE 1 END,
    last_status           = $3,
    last_delivery_at      = $4,
    updated_at            = $4
WHERE id = $1`, id, success, lastStatus, at.UTC())
	if err != nil {
		return fmt.Errorf("record webhook outcome: %w", err)
	}

	return requireOneRow(result, webhook.ErrWebhookNotFound)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWebhook(row rowScanner) (*webhook.Webhook, error) {
	var (
		w          webhook.Webhook
		headers    []byte
		backoffMS  pq.Int64Array
		lastStatus sql.NullString
		lastAt     sql.NullTime
	)

	err := row.Scan(
		&w.ID, &w.OrganizationID, &w.Name, &w.URL,
		pq.Array(&w.Events), &headers, &w.Secret, &w.VerifySSL,
		&backoffMS, &w.MaxAttempts, &w.Active,
		&w.TotalDeliveries, &w.SuccessfulDeliveries, &w.FailedDeliveries,
		&lastStatus, &lastAt, &w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(headers) > 0 {
		if err := json.Unmarshal(headers, &w.Headers); err != nil {
			return nil, fmt.Errorf("decode webhook headers: %w", err)
		}
	}

	w.RetryBackoff = millisToBackoff(backoffMS)
	w.LastStatus = lastStatus.String

	if lastAt.Valid {
		at := lastAt.Time
		w.LastDeliveryAt = &at
	}

	return &w, nil
}

func collectWebhooks(rows *sql.Rows) ([]*webhook.Webhook, error) {
	defer func() { _ = rows.Close() }()

	var result []*webhook.Webhook

	for rows.Next() {
		w, err := scanWebhook(rows)
		if err != nil {
			return nil, fmt.Errorf("scan webhook: %w", err)
		}

		result = append(result, w)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate webhooks: %w", err)
	}

	return result, nil
}

func headersOrEmpty(headers map[string]string) map[string]string {
	if headers == nil {
		return map[string]string{}
	}

	return headers
}

func backoffToMillis(schedule []time.Duration) []int64 {
	result := make([]int64, 0, len(schedule))

	for _, delay := range schedule {
		result = append(result, delay.Milliseconds())
	}

	return result
}

func millisToBackoff(millis []int64) []time.Duration {
	result := make([]time.Duration, 0, len(millis))

	for _, ms := range millis {
		result = append(result, time.Duration(ms)*time.Millisecond)
	}

	return result
}

func nullString(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}

func requireOneRow(result sql.Result, missing error) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}

	if affected == 0 {
		return missing
	}

	return nil
}
