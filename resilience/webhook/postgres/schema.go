package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// Schema statements for the webhook tables. Callers owning their own
// migration tooling can embed these in versioned migrations instead of
// calling EnsureSchema.
const (
	webhooksDDL = `
CREATE TABLE IF NOT EXISTS webhooks (
    id                    UUID PRIMARY KEY,
    organization_id       TEXT NOT NULL,
    name                  TEXT NOT NULL,
    url                   TEXT NOT NULL,
    events                TEXT[] NOT NULL,
    headers               JSONB NOT NULL DEFAULT '{}'::jsonb,
    secret                TEXT NOT NULL,
    verify_ssl            BOOLEAN NOT NULL DEFAULT TRUE,
    retry_backoff_ms      BIGINT[] NOT NULL,
    max_attempts          INT NOT NULL,
    active                BOOLEAN NOT NULL DEFAULT TRUE,
    total_deliveries      BIGINT NOT NULL DEFAULT 0,
    successful_deliveries BIGINT NOT NULL DEFAULT 0,
    failed_deliveries     BIGINT NOT NULL DEFAULT 0,
    last_status           TEXT,
    last_delivery_at      TIMESTAMPTZ,
    created_at            TIMESTAMPTZ NOT NULL,
    updated_at            TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_webhooks_org_active ON webhooks (organization_id, active);`

	deliveriesDDL = `
CREATE TABLE IF NOT EXISTS webhook_deliveries (
    id              UUID PRIMARY KEY,
    webhook_id      UUID NOT NULL REFERENCES webhooks (id),
    organization_id TEXT NOT NULL,
    event_type      TEXT NOT NULL,
    status          TEXT NOT NULL,
    attempt_count   INT NOT NULL DEFAULT 0,
    max_attempts    INT NOT NULL,
    request_url     TEXT NOT NULL,
    request_body    BYTEA NOT NULL,
    response_status INT,
    response_body   TEXT,
    response_time_ms BIGINT,
    error_message   TEXT,
    next_retry_at   TIMESTAMPTZ,
    created_at      TIMESTAMPTZ NOT NULL,
    delivered_at    TIMESTAMPTZ,
    updated_at      TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_webhook_deliveries_status_updated ON webhook_deliveries (status, updated_at);
CREATE INDEX IF NOT EXISTS idx_webhook_deliveries_retry_due ON webhook_deliveries (status, next_retry_at);`

	attemptsDDL = `
CREATE TABLE IF NOT EXISTS webhook_delivery_attempts (
    id              UUID PRIMARY KEY,
    delivery_id     UUID NOT NULL REFERENCES webhook_deliveries (id),
    attempt_number  INT NOT NULL,
    response_status INT,
    response_body   TEXT,
    response_time_ms BIGINT NOT NULL,
    error           TEXT,
    success         BOOLEAN NOT NULL,
    created_at      TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_webhook_delivery_attempts_delivery ON webhook_delivery_attempts (delivery_id, attempt_number);`
)

// EnsureSchema creates the webhook tables and indexes when missing.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, ddl := range []string{webhooksDDL, deliveriesDDL, attemptsDDL} {
		if _, err := db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("apply webhook schema: %w", err)
		}
	}

	return nil
}
