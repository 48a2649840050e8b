// Package memory provides in-process implementations of the webhook
// storage ports: WebhookRepository, DeliveryStore, DeliveryQueue and
// Lease. They satisfy tests and single-process deployments; durable
// deployments swap in the postgres, rabbitmq and redis subpackages without
// changing pipeline logic.
package memory
