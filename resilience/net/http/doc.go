// Package http exposes the operational surface of the resilience primitives
// over Fiber: circuit breaker states and resets, webhook configuration and
// delivery ledger lookups, manual delivery retries and connectivity tests.
//
// The surface is meant to be mounted into a service's existing Fiber app:
//
//	ops := http.NewOpsHandler(registry, checker, repo, store, dispatcher, logger)
//	ops.Register(app)
package http
