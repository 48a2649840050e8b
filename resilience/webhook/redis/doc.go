// Package redis provides a Redis-backed delivery lease for multi-process
// worker deployments.
//
// The lease is a single-try redsync mutex per delivery: the first worker to
// acquire it owns the delivery until release or TTL expiry, and everyone
// else skips the job. It is an optimization on top of the store's claim
// guard, not a correctness requirement.
package redis
