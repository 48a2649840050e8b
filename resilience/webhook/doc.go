// Package webhook implements at-least-once delivery of signed event
// payloads to externally registered HTTP receivers.
//
// An upstream caller dispatches an event once; the pipeline fans it out to
// every active webhook subscribed to the event type, creating one Delivery
// per receiver. A worker pool drains the delivery queue, POSTs the signed
// payload, records an immutable DeliveryAttempt per network try and either
// marks the delivery DELIVERED, schedules a delayed retry, or marks it
// FAILED once the attempt budget is exhausted. Delivery outcomes never
// propagate to the dispatching caller; operators observe them through the
// ledger and per-webhook rolling counters.
//
//	dispatcher, _ := webhook.NewDispatcher(webhooks, store, queue, logger, tracer)
//	worker, _ := webhook.NewWorker(webhooks, store, queue, lease, logger, tracer)
//
//	go worker.Run(ctx)
//
//	_ = dispatcher.DispatchEvent(ctx, orgID, "campaign.created", data, nil)
//
// Storage is abstract: WebhookRepository, DeliveryStore, DeliveryQueue and
// Lease are ports. The memory subpackage satisfies tests and single-process
// deployments; the postgres, rabbitmq and redis subpackages provide durable
// and distributed implementations without changing pipeline logic.
//
// Receivers authenticate payloads with the X-Signature header,
// "sha256=<hex(HMAC-SHA256(secret, body))>", verified with
// VerifySignature. The payload body and target URL are captured at
// dispatch time, so editing a webhook never retroactively changes an
// in-flight delivery's contract.
package webhook
