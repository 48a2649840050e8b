package circuitbreaker

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNameRequired indicates a breaker was requested with an empty name.
	ErrNameRequired = errors.New("circuitbreaker: breaker name is required")
	// ErrOperationRequired indicates Execute was called with a nil operation.
	ErrOperationRequired = errors.New("circuitbreaker: operation is required")
	// ErrBreakerNotFound indicates no breaker exists under the given name.
	ErrBreakerNotFound = errors.New("circuitbreaker: breaker not found (call GetOrCreate first)")
)

// OpenError is returned when a call is rejected because the breaker is
// open. RetryAfter reports how long until the breaker becomes eligible for
// a half-open probe.
type OpenError struct {
	Name       string
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *OpenError) Error() string {
	return fmt.Sprintf("circuit breaker %q is open: retry after %s", e.Name, e.RetryAfter)
}

// CircuitOpen marks the error as a breaker rejection so retry engines can
// refuse to re-attempt it.
func (e *OpenError) CircuitOpen() bool {
	return true
}

// Retryable reports that a breaker rejection must never be retried
// directly. The breaker already encodes backpressure.
func (e *OpenError) Retryable() bool {
	return false
}

// RetryAfterHint returns the remaining cooldown before the breaker will
// allow a probe.
func (e *OpenError) RetryAfterHint() time.Duration {
	return e.RetryAfter
}
