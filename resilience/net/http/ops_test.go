//go:build unit

package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	stdhttp "net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adstackhq/lib-resilience/resilience/circuitbreaker"
	"github.com/adstackhq/lib-resilience/resilience/webhook"
	"github.com/adstackhq/lib-resilience/resilience/webhook/memory"
)

type opsFixture struct {
	app      *fiber.App
	registry *circuitbreaker.Registry
	repo     *memory.WebhookRepository
	store    *memory.DeliveryStore
	queue    *memory.Queue
}

func newOpsFixture(t *testing.T) *opsFixture {
	t.Helper()

	registry := circuitbreaker.NewRegistry(nil)
	repo := memory.NewWebhookRepository()
	store := memory.NewDeliveryStore()
	queue := memory.NewQueue(16)

	dispatcher, err := webhook.NewDispatcher(repo, store, queue, nil, nil)
	require.NoError(t, err)

	checker, err := circuitbreaker.NewHealthChecker(registry, time.Minute, time.Second, nil)
	require.NoError(t, err)

	app := fiber.New()
	NewOpsHandler(registry, checker, repo, store, dispatcher, nil).Register(app)

	return &opsFixture{app: app, registry: registry, repo: repo, store: store, queue: queue}
}

func (f *opsFixture) request(t *testing.T, method, path string) (int, []byte) {
	t.Helper()

	req := httptest.NewRequest(method, path, nil)

	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, body
}

func (f *opsFixture) seedDelivery(t *testing.T) (*webhook.Webhook, *webhook.Delivery) {
	t.Helper()

	ctx := context.Background()

	w, err := webhook.NewWebhook("org-1", "crm-sync", "https://hooks.example.com/crm",
		"signing-secret", []string{"contact.created"})
	require.NoError(t, err)
	require.NoError(t, f.repo.Create(ctx, w))

	event, err := webhook.NewEvent("org-1", "contact.created", nil, nil)
	require.NoError(t, err)

	delivery, err := webhook.NewDelivery(w, event)
	require.NoError(t, err)
	require.NoError(t, f.store.CreateDelivery(ctx, delivery))

	return w, delivery
}

func TestOpsListAndGetBreakers(t *testing.T) {
	t.Parallel()

	f := newOpsFixture(t)
	breaker := f.registry.GetOrCreate("billing-api", circuitbreaker.DefaultConfig())

	_, err := breaker.Execute(context.Background(), func(context.Context) (any, error) {
		return nil, nil
	})
	require.NoError(t, err)

	status, body := f.request(t, stdhttp.MethodGet, "/v1/circuit-breakers")
	assert.Equal(t, stdhttp.StatusOK, status)

	var listed map[string]circuitbreaker.Status
	require.NoError(t, json.Unmarshal(body, &listed))
	require.Contains(t, listed, "billing-api")
	assert.Equal(t, circuitbreaker.StateClosed, listed["billing-api"].State)

	status, body = f.request(t, stdhttp.MethodGet, "/v1/circuit-breakers/billing-api")
	assert.Equal(t, stdhttp.StatusOK, status)

	var single circuitbreaker.Status
	require.NoError(t, json.Unmarshal(body, &single))
	assert.Equal(t, "billing-api", single.Name)

	status, _ = f.request(t, stdhttp.MethodGet, "/v1/circuit-breakers/unknown")
	assert.Equal(t, stdhttp.StatusNotFound, status)
}

func TestOpsResetBreaker(t *testing.T) {
	t.Parallel()

	f := newOpsFixture(t)

	cfg := circuitbreaker.DefaultConfig()
	cfg.FailureThreshold = 1
	breaker := f.registry.GetOrCreate("billing-api", cfg)

	_, err := breaker.Execute(context.Background(), func(context.Context) (any, error) {
		return nil, errors.New("down")
	})
	require.Error(t, err)
	require.Equal(t, circuitbreaker.StateOpen, breaker.State())

	status, _ := f.request(t, stdhttp.MethodPost, "/v1/circuit-breakers/billing-api/reset")
	assert.Equal(t, stdhttp.StatusNoContent, status)
	assert.Equal(t, circuitbreaker.StateClosed, breaker.State())

	status, _ = f.request(t, stdhttp.MethodPost, "/v1/circuit-breakers/unknown/reset")
	assert.Equal(t, stdhttp.StatusNotFound, status)
}

func TestOpsBreakerHealth(t *testing.T) {
	t.Parallel()

	f := newOpsFixture(t)
	f.registry.GetOrCreate("billing-api", circuitbreaker.DefaultConfig())

	status, body := f.request(t, stdhttp.MethodGet, "/v1/circuit-breakers-health")
	assert.Equal(t, stdhttp.StatusOK, status)

	var health map[string]string
	require.NoError(t, json.Unmarshal(body, &health))
	assert.NotNil(t, health)
}

func TestOpsGetWebhookHidesSecret(t *testing.T) {
	t.Parallel()

	f := newOpsFixture(t)
	w, _ := f.seedDelivery(t)

	status, body := f.request(t, stdhttp.MethodGet, "/v1/webhooks/"+w.ID.String())
	assert.Equal(t, stdhttp.StatusOK, status)

	var got webhook.Webhook
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, w.ID, got.ID)
	assert.Empty(t, got.Secret)

	status, _ = f.request(t, stdhttp.MethodGet, "/v1/webhooks/"+uuid.NewString())
	assert.Equal(t, stdhttp.StatusNotFound, status)

	status, _ = f.request(t, stdhttp.MethodGet, "/v1/webhooks/not-a-uuid")
	assert.Equal(t, stdhttp.StatusBadRequest, status)
}

func TestOpsGetDeliveryAndAttempts(t *testing.T) {
	t.Parallel()

	f := newOpsFixture(t)
	_, delivery := f.seedDelivery(t)
	ctx := context.Background()

	require.NoError(t, f.store.AppendAttempt(ctx, &webhook.DeliveryAttempt{
		ID:             uuid.New(),
		DeliveryID:     delivery.ID,
		AttemptNumber:  1,
		ResponseStatus: 500,
		Error:          "status 500",
		CreatedAt:      time.Now().UTC(),
	}))

	status, body := f.request(t, stdhttp.MethodGet, "/v1/deliveries/"+delivery.ID.String())
	assert.Equal(t, stdhttp.StatusOK, status)

	var got webhook.Delivery
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, delivery.ID, got.ID)
	assert.Equal(t, webhook.StatusPending, got.Status)

	status, body = f.request(t, stdhttp.MethodGet, "/v1/deliveries/"+delivery.ID.String()+"/attempts")
	assert.Equal(t, stdhttp.StatusOK, status)

	var attempts []webhook.DeliveryAttempt
	require.NoError(t, json.Unmarshal(body, &attempts))
	require.Len(t, attempts, 1)
	assert.Equal(t, 1, attempts[0].AttemptNumber)

	// Unknown deliveries still get an empty attempt list, not an error.
	status, body = f.request(t, stdhttp.MethodGet, "/v1/deliveries/"+uuid.NewString()+"/attempts")
	assert.Equal(t, stdhttp.StatusOK, status)
	assert.JSONEq(t, "[]", string(body))

	status, _ = f.request(t, stdhttp.MethodGet, "/v1/deliveries/"+uuid.NewString())
	assert.Equal(t, stdhttp.StatusNotFound, status)
}

func TestOpsRetryDelivery(t *testing.T) {
	t.Parallel()

	f := newOpsFixture(t)
	_, delivery := f.seedDelivery(t)
	ctx := context.Background()

	// PENDING deliveries cannot be manually retried.
	status, _ := f.request(t, stdhttp.MethodPost, "/v1/deliveries/"+delivery.ID.String()+"/retry")
	assert.Equal(t, stdhttp.StatusConflict, status)

	_, err := f.store.MarkDelivering(ctx, delivery.ID)
	require.NoError(t, err)
	require.NoError(t, f.store.MarkFailed(ctx, delivery.ID, webhook.AttemptOutcome{ResponseStatus: 500, Error: "status 500"}))

	status, _ = f.request(t, stdhttp.MethodPost, "/v1/deliveries/"+delivery.ID.String()+"/retry")
	assert.Equal(t, stdhttp.StatusAccepted, status)

	got, err := f.store.GetDelivery(ctx, delivery.ID)
	require.NoError(t, err)
	assert.Equal(t, webhook.StatusPending, got.Status)

	status, _ = f.request(t, stdhttp.MethodPost, "/v1/deliveries/"+uuid.NewString()+"/retry")
	assert.Equal(t, stdhttp.StatusNotFound, status)
}

func TestOpsTestWebhook(t *testing.T) {
	t.Parallel()

	receiver := httptest.NewServer(stdhttp.HandlerFunc(func(rw stdhttp.ResponseWriter, _ *stdhttp.Request) {
		rw.WriteHeader(stdhttp.StatusOK)
	}))
	defer receiver.Close()

	f := newOpsFixture(t)

	w, err := webhook.NewWebhook("org-1", "test-target", receiver.URL, "signing-secret", []string{"*"})
	require.NoError(t, err)
	require.NoError(t, f.repo.Create(context.Background(), w))

	status, body := f.request(t, stdhttp.MethodPost, "/v1/webhooks/"+w.ID.String()+"/test")
	assert.Equal(t, stdhttp.StatusOK, status)

	var result webhook.TestResult
	require.NoError(t, json.Unmarshal(body, &result))
	assert.True(t, result.Success)
	assert.Equal(t, stdhttp.StatusOK, result.ResponseStatus)

	status, _ = f.request(t, stdhttp.MethodPost, "/v1/webhooks/"+uuid.NewString()+"/test")
	assert.Equal(t, stdhttp.StatusNotFound, status)
}

func TestOpsOptionalDependencies(t *testing.T) {
	t.Parallel()

	app := fiber.New()
	NewOpsHandler(circuitbreaker.NewRegistry(nil), nil, nil, nil, nil, nil).Register(app)

	req := httptest.NewRequest(stdhttp.MethodGet, "/v1/webhooks/"+uuid.NewString(), nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, stdhttp.StatusNotFound, resp.StatusCode)
}
