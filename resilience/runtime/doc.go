// Package runtime provides panic-safe goroutine helpers for background
// loops. A panicking worker or listener must never take the process down;
// it is recovered, logged with its stack, and reported to the caller's
// logger instead.
package runtime
