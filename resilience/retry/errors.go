package retry

import "errors"

var (
	// ErrOperationRequired is returned when Do is called without an operation.
	ErrOperationRequired = errors.New("retry operation is required")
)
