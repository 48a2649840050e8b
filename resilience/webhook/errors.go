package webhook

import "errors"

var (
	ErrWebhookRequired           = errors.New("webhook is required")
	ErrWebhookNotFound           = errors.New("webhook not found")
	ErrWebhookInactive           = errors.New("webhook is inactive")
	ErrWebhookRepositoryRequired = errors.New("webhook repository is required")
	ErrDeliveryStoreRequired     = errors.New("delivery store is required")
	ErrDeliveryQueueRequired     = errors.New("delivery queue is required")
	ErrEventRequired             = errors.New("event is required")
	ErrEventTypeRequired         = errors.New("event type is required")
	ErrOrganizationIDRequired    = errors.New("organization id is required")
	ErrWebhookNameRequired       = errors.New("webhook name is required")
	ErrWebhookURLInvalid         = errors.New("webhook url must be a valid http or https url")
	ErrSecretRequired            = errors.New("webhook signing secret is required")
	ErrEventTypesRequired        = errors.New("webhook must subscribe to at least one event type")
	ErrDeliveryNotFound          = errors.New("delivery not found")
	ErrDeliveryNotClaimable      = errors.New("delivery is not claimable for processing")
	ErrDeliveryNotRetryable      = errors.New("only failed deliveries can be manually retried")
	ErrQueueClosed               = errors.New("delivery queue is closed")
	ErrStatusInvalid             = errors.New("invalid delivery status")
	ErrTransitionInvalid         = errors.New("invalid delivery status transition")
	ErrWorkerRunning             = errors.New("delivery worker is already running")
)
