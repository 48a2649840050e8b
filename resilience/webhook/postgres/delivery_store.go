package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/adstackhq/lib-resilience/resilience/webhook"
)

// DeliveryStore persists the delivery ledger in the webhook_deliveries and
// webhook_delivery_attempts tables.
type DeliveryStore struct {
	db *sql.DB
}

// NewDeliveryStore creates a store over an open connection pool.
func NewDeliveryStore(db *sql.DB) *DeliveryStore {
	return &DeliveryStore{db: db}
}

const deliveryColumns = `id, webhook_id, organization_id, event_type, status, attempt_count,
max_attempts, request_url, request_body, response_status, response_body,
response_time_ms, error_message, next_retry_at, created_at, delivered_at`

// CreateDelivery inserts a delivery row.
func (s *DeliveryStore) CreateDelivery(ctx context.Context, d *webhook.Delivery) error {
	if d == nil {
		return webhook.ErrDeliveryNotFound
	}

	_, err := s.db.ExecContext(ctx, `
INSERT INTO webhook_deliveries (`+deliveryColumns+`, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		d.ID, d.WebhookID, d.OrganizationID, d.EventType, d.Status, d.AttemptCount,
		d.MaxAttempts, d.RequestURL, d.RequestBody,
		nullInt(d.ResponseStatus), nullString(d.ResponseBody),
		nullInt64(d.ResponseTimeMS), nullString(d.ErrorMessage),
		d.NextRetryAt, d.CreatedAt, d.DeliveredAt, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert delivery: %w", err)
	}

	return nil
}

// GetDelivery loads one delivery.
func (s *DeliveryStore) GetDelivery(ctx context.Context, id uuid.UUID) (*webhook.Delivery, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT `+deliveryColumns+` FROM webhook_deliveries WHERE id = $1`, id)

	d, err := scanDelivery(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, webhook.ErrDeliveryNotFound
		}

		return nil, fmt.Errorf("select delivery: %w", err)
	}

	return d, nil
}

// MarkDelivering atomically claims a PENDING or RETRYING delivery. Losing
// the claim race affects zero rows and returns ErrDeliveryNotClaimable.
func (s *DeliveryStore) MarkDelivering(ctx context.Context, id uuid.UUID) (*webhook.Delivery, error) {
	row := s.db.QueryRowContext(ctx, `
UPDATE webhook_deliveries SET
    status        = $2,
    attempt_count = attempt_count + 1,
    next_retry_at = NULL,
    updated_at    = $3
WHERE id = $1 AND status IN ($4, $5)
RETURNING `+deliveryColumns,
		id, webhook.StatusDelivering, time.Now().UTC(),
		webhook.StatusPending, webhook.StatusRetrying)

	d, err := scanDelivery(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, s.claimFailure(ctx, id)
		}

		return nil, fmt.Errorf("claim delivery: %w", err)
	}

	return d, nil
}

// claimFailure distinguishes a missing row from a lost claim race.
func (s *DeliveryStore) claimFailure(ctx context.Context, id uuid.UUID) error {
	var status webhook.DeliveryStatus

	err := s.db.QueryRowContext(ctx,
		`SELECT status FROM webhook_deliveries WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return webhook.ErrDeliveryNotFound
	}

	if err != nil {
		return fmt.Errorf("inspect delivery status: %w", err)
	}

	return fmt.Errorf("%w: status %s", webhook.ErrDeliveryNotClaimable, status)
}

// MarkDelivered settles a DELIVERING record as terminal success.
func (s *DeliveryStore) MarkDelivered(ctx context.Context, id uuid.UUID, outcome webhook.AttemptOutcome) error {
	now := time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
UPDATE webhook_deliveries SET
    status           = $2,
    response_status  = $3,
    response_body    = $4,
    response_time_ms = $5,
    error_message    = NULL,
    next_retry_at    = NULL,
    delivered_at     = $6,
    updated_at       = $6
WHERE id = $1 AND status = $7`,
		id, webhook.StatusDelivered,
		nullInt(outcome.ResponseStatus), nullString(webhook.TruncateResponseBody(outcome.ResponseBody)),
		outcome.ResponseTimeMS, now, webhook.StatusDelivering)
	if err != nil {
		return fmt.Errorf("mark delivery delivered: %w", err)
	}

	return s.requireTransition(ctx, result, id, webhook.StatusDelivered)
}

// MarkRetrying records a failed attempt with a scheduled next try.
func (s *DeliveryStore) MarkRetrying(ctx context.Context, id uuid.UUID, outcome webhook.AttemptOutcome, nextRetryAt time.Time) error {
	result, err := s.db.ExecContext(ctx, `
UPDATE webhook_deliveries SET
    status           = $2,
    response_status  = $3,
    response_body    = $4,
    response_time_ms = $5,
    error_message    = $6,
    next_retry_at    = $7,
    updated_at       = $8
WHERE id = $1 AND status = $9`,
		id, webhook.StatusRetrying,
		nullInt(outcome.ResponseStatus), nullString(webhook.TruncateResponseBody(outcome.ResponseBody)),
		outcome.ResponseTimeMS, nullString(webhook.SanitizeErrorMessage(outcome.Error)),
		nextRetryAt.UTC(), time.Now().UTC(), webhook.StatusDelivering)
	if err != nil {
		return fmt.Errorf("mark delivery retrying: %w", err)
	}

	return s.requireTransition(ctx, result, id, webhook.StatusRetrying)
}

// MarkFailed settles a DELIVERING record as terminal failure.
func (s *DeliveryStore) MarkFailed(ctx context.Context, id uuid.UUID, outcome webhook.AttemptOutcome) error {
	result, err := s.db.ExecContext(ctx, `
UPDATE webhook_deliveries SET
    status           = $2,
    response_status  = $3,
    response_body    = $4,
    response_time_ms = $5,
    error_message    = $6,
    next_retry_at    = NULL,
    updated_at       = $7
WHERE id = $1 AND status = $8`,
		id, webhook.StatusFailed,
		nullInt(outcome.ResponseStatus), nullString(webhook.TruncateResponseBody(outcome.ResponseBody)),
		outcome.ResponseTimeMS, nullString(webhook.SanitizeErrorMessage(outcome.Error)),
		time.Now().UTC(), webhook.StatusDelivering)
	if err != nil {
		return fmt.Errorf("mark delivery failed: %w", err)
	}

	return s.requireTransition(ctx, result, id, webhook.StatusFailed)
}

func (s *DeliveryStore) requireTransition(ctx context.Context, result sql.Result, id uuid.UUID, to webhook.DeliveryStatus) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}

	if affected > 0 {
		return nil
	}

	var status webhook.DeliveryStatus

	err = s.db.QueryRowContext(ctx,
		`SELECT status FROM webhook_deliveries WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return webhook.ErrDeliveryNotFound
	}

	if err != nil {
		return fmt.Errorf("inspect delivery status: %w", err)
	}

	return fmt.Errorf("%w: %s -> %s", webhook.ErrTransitionInvalid, status, to)
}

// ResetForRetry resurrects a FAILED delivery for a manual retry.
func (s *DeliveryStore) ResetForRetry(ctx context.Context, id uuid.UUID) (*webhook.Delivery, error) {
	row := s.db.QueryRowContext(ctx, `
UPDATE webhook_deliveries SET
    status        = $2,
    attempt_count = 0,
    error_message = NULL,
    next_retry_at = NULL,
    updated_at    = $3
WHERE id = $1 AND status = $4
RETURNING `+deliveryColumns,
		id, webhook.StatusPending, time.Now().UTC(), webhook.StatusFailed)

	d, err := scanDelivery(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, s.resetFailure(ctx, id)
		}

		return nil, fmt.Errorf("reset delivery: %w", err)
	}

	return d, nil
}

func (s *DeliveryStore) resetFailure(ctx context.Context, id uuid.UUID) error {
	var status webhook.DeliveryStatus

	err := s.db.QueryRowContext(ctx,
		`SELECT status FROM webhook_deliveries WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return webhook.ErrDeliveryNotFound
	}

	if err != nil {
		return fmt.Errorf("inspect delivery status: %w", err)
	}

	return fmt.Errorf("%w: status %s", webhook.ErrDeliveryNotRetryable, status)
}

// ReclaimStuck resets DELIVERING rows last touched before updatedBefore back
// to PENDING and returns them, together with PENDING rows stranded by a lost
// enqueue. Touching updated_at keeps the next pass from picking them again.
func (s *DeliveryStore) ReclaimStuck(ctx context.Context, updatedBefore time.Time, limit int) ([]*webhook.Delivery, error) {
	rows, err := s.db.QueryContext(ctx, `
UPDATE webhook_deliveries SET
    status     = $1,
    updated_at = $2
WHERE id IN (
    SELECT id FROM webhook_deliveries
    WHERE status IN ($3, $6) AND updated_at < $4
    ORDER BY updated_at
    LIMIT $5
    FOR UPDATE SKIP LOCKED
)
RETURNING `+deliveryColumns,
		webhook.StatusPending, time.Now().UTC(),
		webhook.StatusDelivering, updatedBefore.UTC(), limit,
		webhook.StatusPending)
	if err != nil {
		return nil, fmt.Errorf("reclaim stuck deliveries: %w", err)
	}

	return collectDeliveries(rows)
}

// ListDueRetries returns RETRYING rows whose scheduled requeue is overdue.
func (s *DeliveryStore) ListDueRetries(ctx context.Context, dueBefore time.Time, limit int) ([]*webhook.Delivery, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT `+deliveryColumns+` FROM webhook_deliveries
WHERE status = $1 AND next_retry_at < $2
ORDER BY next_retry_at
LIMIT $3`,
		webhook.StatusRetrying, dueBefore.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("list due retries: %w", err)
	}

	return collectDeliveries(rows)
}

// AppendAttempt inserts one immutable attempt record.
func (s *DeliveryStore) AppendAttempt(ctx context.Context, attempt *webhook.DeliveryAttempt) error {
	if attempt == nil {
		return webhook.ErrDeliveryNotFound
	}

	_, err := s.db.ExecContext(ctx, `
INSERT INTO webhook_delivery_attempts
    (id, delivery_id, attempt_number, response_status, response_body, response_time_ms, error, success, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		attempt.ID, attempt.DeliveryID, attempt.AttemptNumber,
		nullInt(attempt.ResponseStatus), nullString(attempt.ResponseBody),
		attempt.ResponseTimeMS, nullString(attempt.Error), attempt.Success, attempt.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert delivery attempt: %w", err)
	}

	return nil
}

// ListAttempts returns a delivery's attempts ordered by attempt number.
func (s *DeliveryStore) ListAttempts(ctx context.Context, deliveryID uuid.UUID) ([]*webhook.DeliveryAttempt, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, delivery_id, attempt_number, response_status, response_body, response_time_ms, error, success, created_at
FROM webhook_delivery_attempts
WHERE delivery_id = $1
ORDER BY attempt_number`, deliveryID)
	if err != nil {
		return nil, fmt.Errorf("list delivery attempts: %w", err)
	}

	defer func() { _ = rows.Close() }()

	var result []*webhook.DeliveryAttempt

	for rows.Next() {
		var (
			attempt        webhook.DeliveryAttempt
			responseStatus sql.NullInt64
			responseBody   sql.NullString
			attemptError   sql.NullString
		)

		err := rows.Scan(
			&attempt.ID, &attempt.DeliveryID, &attempt.AttemptNumber,
			&responseStatus, &responseBody, &attempt.ResponseTimeMS,
			&attemptError, &attempt.Success, &attempt.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan delivery attempt: %w", err)
		}

		attempt.ResponseStatus = int(responseStatus.Int64)
		attempt.ResponseBody = responseBody.String
		attempt.Error = attemptError.String

		result = append(result, &attempt)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate delivery attempts: %w", err)
	}

	return result, nil
}

func scanDelivery(row rowScanner) (*webhook.Delivery, error) {
	var (
		d              webhook.Delivery
		responseStatus sql.NullInt64
		responseBody   sql.NullString
		responseTimeMS sql.NullInt64
		errorMessage   sql.NullString
		nextRetryAt    sql.NullTime
		deliveredAt    sql.NullTime
	)

	err := row.Scan(
		&d.ID, &d.WebhookID, &d.OrganizationID, &d.EventType, &d.Status, &d.AttemptCount,
		&d.MaxAttempts, &d.RequestURL, &d.RequestBody, &responseStatus, &responseBody,
		&responseTimeMS, &errorMessage, &nextRetryAt, &d.CreatedAt, &deliveredAt,
	)
	if err != nil {
		return nil, err
	}

	d.ResponseStatus = int(responseStatus.Int64)
	d.ResponseBody = responseBody.String
	d.ResponseTimeMS = responseTimeMS.Int64
	d.ErrorMessage = errorMessage.String

	if nextRetryAt.Valid {
		at := nextRetryAt.Time
		d.NextRetryAt = &at
	}

	if deliveredAt.Valid {
		at := deliveredAt.Time
		d.DeliveredAt = &at
	}

	return &d, nil
}

func collectDeliveries(rows *sql.Rows) ([]*webhook.Delivery, error) {
	defer func() { _ = rows.Close() }()

	var result []*webhook.Delivery

	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, fmt.Errorf("scan delivery: %w", err)
		}

		result = append(result, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate deliveries: %w", err)
	}

	return result, nil
}

func nullInt(value int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(value), Valid: value != 0}
}

func nullInt64(value int64) sql.NullInt64 {
	return sql.NullInt64{Int64: value, Valid: value != 0}
}
