// Package retry implements the retry-policy engine: callers classify
// failures into kinds at the boundary where an operation is invoked, and the
// engine decides whether to re-attempt and how long to wait, driving the
// loop with per-attempt callbacks until success or exhaustion.
//
// Circuit-breaker rejections are never retried here; the breaker already
// encodes backpressure and re-attempting immediately would defeat it.
package retry
