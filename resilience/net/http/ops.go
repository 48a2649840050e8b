package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/adstackhq/lib-resilience/resilience/circuitbreaker"
	"github.com/adstackhq/lib-resilience/resilience/log"
	"github.com/adstackhq/lib-resilience/resilience/webhook"
)

// OpsHandler serves the operational endpoints. Every dependency except the
// breaker registry is optional; routes for absent dependencies are not
// registered.
type OpsHandler struct {
	registry   *circuitbreaker.Registry
	checker    *circuitbreaker.HealthChecker
	webhooks   webhook.WebhookRepository
	store      webhook.DeliveryStore
	dispatcher *webhook.Dispatcher
	logger     log.Logger
}

// NewOpsHandler creates the handler. Nil is accepted for any dependency
// whose endpoints the caller does not want exposed.
func NewOpsHandler(
	registry *circuitbreaker.Registry,
	checker *circuitbreaker.HealthChecker,
	webhooks webhook.WebhookRepository,
	store webhook.DeliveryStore,
	dispatcher *webhook.Dispatcher,
	logger log.Logger,
) *OpsHandler {
	if logger == nil {
		logger = log.NewNop()
	}

	return &OpsHandler{
		registry:   registry,
		checker:    checker,
		webhooks:   webhooks,
		store:      store,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// Register mounts the ops routes onto app under /v1.
func (h *OpsHandler) Register(app *fiber.App) {
	v1 := app.Group("/v1")

	if h.registry != nil {
		v1.Get("/circuit-breakers", h.listBreakers)
		v1.Get("/circuit-breakers/:name", h.getBreaker)
		v1.Post("/circuit-breakers/:name/reset", h.resetBreaker)
	}

	if h.checker != nil {
		v1.Get("/circuit-breakers-health", h.breakerHealth)
	}

	if h.webhooks != nil {
		v1.Get("/webhooks/:id", h.getWebhook)
	}

	if h.store != nil {
		v1.Get("/deliveries/:id", h.getDelivery)
		v1.Get("/deliveries/:id/attempts", h.listAttempts)
	}

	if h.dispatcher != nil {
		v1.Post("/deliveries/:id/retry", h.retryDelivery)
		v1.Post("/webhooks/:id/test", h.testWebhook)
	}
}

func (h *OpsHandler) listBreakers(c *fiber.Ctx) error {
	return OK(c, h.registry.Statuses())
}

func (h *OpsHandler) getBreaker(c *fiber.Ctx) error {
	status, found := h.registry.Status(c.Params("name"))
	if !found {
		return NotFound(c, "0001", "Circuit Breaker Not Found", circuitbreaker.ErrBreakerNotFound.Error())
	}

	return OK(c, status)
}

func (h *OpsHandler) resetBreaker(c *fiber.Ctx) error {
	if _, found := h.registry.Get(c.Params("name")); !found {
		return NotFound(c, "0001", "Circuit Breaker Not Found", circuitbreaker.ErrBreakerNotFound.Error())
	}

	h.registry.Reset(c.Params("name"))

	return NoContent(c)
}

func (h *OpsHandler) breakerHealth(c *fiber.Ctx) error {
	return OK(c, h.checker.HealthStatus())
}

func (h *OpsHandler) getWebhook(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return BadRequest(c, "0002", "Invalid Webhook ID", "webhook id must be a valid UUID")
	}

	w, err := h.webhooks.GetByID(c.UserContext(), id)
	if err != nil {
		if errors.Is(err, webhook.ErrWebhookNotFound) {
			return NotFound(c, "0003", "Webhook Not Found", err.Error())
		}

		return h.internal(c, err)
	}

	// The signing secret never leaves the service.
	w.Secret = ""

	return OK(c, w)
}

func (h *OpsHandler) getDelivery(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return BadRequest(c, "0004", "Invalid Delivery ID", "delivery id must be a valid UUID")
	}

	delivery, err := h.store.GetDelivery(c.UserContext(), id)
	if err != nil {
		if errors.Is(err, webhook.ErrDeliveryNotFound) {
			return NotFound(c, "0005", "Delivery Not Found", err.Error())
		}

		return h.internal(c, err)
	}

	return OK(c, delivery)
}

func (h *OpsHandler) listAttempts(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return BadRequest(c, "0004", "Invalid Delivery ID", "delivery id must be a valid UUID")
	}

	attempts, err := h.store.ListAttempts(c.UserContext(), id)
	if err != nil {
		return h.internal(c, err)
	}

	if attempts == nil {
		attempts = []*webhook.DeliveryAttempt{}
	}

	return OK(c, attempts)
}

func (h *OpsHandler) retryDelivery(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return BadRequest(c, "0004", "Invalid Delivery ID", "delivery id must be a valid UUID")
	}

	err = h.dispatcher.RetryDelivery(c.UserContext(), id)

	switch {
	case err == nil:
		return Accepted(c, fiber.Map{"delivery_id": id, "status": webhook.StatusPending})
	case errors.Is(err, webhook.ErrDeliveryNotFound):
		return NotFound(c, "0005", "Delivery Not Found", err.Error())
	case errors.Is(err, webhook.ErrDeliveryNotRetryable):
		return Conflict(c, "0006", "Delivery Not Retryable", err.Error())
	case errors.Is(err, webhook.ErrWebhookInactive):
		return Conflict(c, "0007", "Webhook Inactive", err.Error())
	default:
		return h.internal(c, err)
	}
}

func (h *OpsHandler) testWebhook(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return BadRequest(c, "0002", "Invalid Webhook ID", "webhook id must be a valid UUID")
	}

	result, err := h.dispatcher.TestWebhook(c.UserContext(), id)
	if err != nil {
		if errors.Is(err, webhook.ErrWebhookNotFound) {
			return NotFound(c, "0003", "Webhook Not Found", err.Error())
		}

		if errors.Is(err, webhook.ErrWebhookInactive) {
			return Conflict(c, "0007", "Webhook Inactive", err.Error())
		}

		return h.internal(c, err)
	}

	return OK(c, result)
}

func (h *OpsHandler) internal(c *fiber.Ctx, err error) error {
	log.SafeError(h.logger, c.UserContext(), "ops endpoint failed", err,
		log.String("path", c.Path()))

	return InternalServerError(c, "0000", "Internal Server Error", "unexpected failure, see service logs")
}
