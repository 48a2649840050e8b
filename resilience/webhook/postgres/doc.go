// Package postgres provides durable PostgreSQL-backed implementations of the
// webhook repository and delivery ledger ports.
//
// Status updates are single guarded UPDATE statements whose WHERE clause
// encodes the delivery lifecycle rules, so concurrent workers race on the
// database row rather than on application state. A claim that loses the race
// affects zero rows and surfaces as ErrDeliveryNotClaimable.
package postgres
