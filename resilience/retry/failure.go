package retry

import (
	"errors"
	"fmt"
	"time"
)

// Kind tags a failure with the category the caller observed at the call
// boundary. Classification by tag replaces exception-type matching: the
// code that invokes the downstream dependency knows best what a given
// error means.
type Kind string

const (
	KindNetwork    Kind = "network"
	KindTimeout    Kind = "timeout"
	KindServer     Kind = "server"
	KindRateLimit  Kind = "rate_limit"
	KindValidation Kind = "validation"
	KindUnknown    Kind = "unknown"
)

// Classified is an error carrying its failure kind and an optional
// retry-after hint (e.g. from a 429 Retry-After header).
type Classified struct {
	Kind  Kind
	Hint  time.Duration
	Cause error
}

// Classify wraps err with a failure kind. A nil err returns nil.
func Classify(err error, kind Kind) error {
	if err == nil {
		return nil
	}

	return &Classified{Kind: kind, Cause: err}
}

// ClassifyRateLimited wraps err as a rate-limit failure with an explicit
// retry-after hint. Rate-limit failures are always considered retryable.
func ClassifyRateLimited(err error, retryAfter time.Duration) error {
	if err == nil {
		return nil
	}

	return &Classified{Kind: KindRateLimit, Hint: retryAfter, Cause: err}
}

func (e *Classified) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
}

func (e *Classified) Unwrap() error {
	return e.Cause
}

// RetryAfterHint returns the explicit wait requested by the dependency,
// or zero when none was provided.
func (e *Classified) RetryAfterHint() time.Duration {
	return e.Hint
}

// KindOf extracts the failure kind from an error chain. Unclassified
// errors report KindUnknown.
func KindOf(err error) Kind {
	var classified *Classified
	if errors.As(err, &classified) {
		return classified.Kind
	}

	return KindUnknown
}

// retryAfterHinter is implemented by failures carrying an explicit
// retry-after hint.
type retryAfterHinter interface {
	RetryAfterHint() time.Duration
}

// retryableFlagger lets a failure override kind-set membership with its own
// retryability verdict (e.g. a provider SDK error that knows it is
// transient).
type retryableFlagger interface {
	Retryable() bool
}

// circuitOpener marks circuit-breaker rejections; those are never retried.
type circuitOpener interface {
	CircuitOpen() bool
}

// RetryAfterOf returns the retry-after hint carried anywhere in the error
// chain, or zero.
func RetryAfterOf(err error) time.Duration {
	for err != nil {
		if hinter, ok := err.(retryAfterHinter); ok {
			if hint := hinter.RetryAfterHint(); hint > 0 {
				return hint
			}
		}

		err = errors.Unwrap(err)
	}

	return 0
}

// IsCircuitOpen reports whether the error chain contains a circuit-breaker
// rejection.
func IsCircuitOpen(err error) bool {
	for err != nil {
		if opener, ok := err.(circuitOpener); ok && opener.CircuitOpen() {
			return true
		}

		err = errors.Unwrap(err)
	}

	return false
}

// retryableFlag reports an explicit retryability verdict carried in the
// error chain, if any.
func retryableFlag(err error) (verdict, found bool) {
	for err != nil {
		if flagger, ok := err.(retryableFlagger); ok {
			return flagger.Retryable(), true
		}

		err = errors.Unwrap(err)
	}

	return false, false
}

// ExhaustedError is returned after every configured attempt has failed.
// It wraps the last underlying failure.
type ExhaustedError struct {
	Attempts int
	Elapsed  time.Duration
	Cause    error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retry exhausted after %d attempts in %s: %v", e.Attempts, e.Elapsed, e.Cause)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Cause
}
