package webhook

import "fmt"

// DeliveryStatus represents a valid delivery lifecycle state.
type DeliveryStatus string

const (
	StatusPending    DeliveryStatus = "PENDING"
	StatusDelivering DeliveryStatus = "DELIVERING"
	StatusDelivered  DeliveryStatus = "DELIVERED"
	StatusRetrying   DeliveryStatus = "RETRYING"
	StatusFailed     DeliveryStatus = "FAILED"
)

// ParseDeliveryStatus validates and converts a raw string status.
func ParseDeliveryStatus(raw string) (DeliveryStatus, error) {
	status := DeliveryStatus(raw)

	if !status.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrStatusInvalid, raw)
	}

	return status, nil
}

// IsValid reports whether the status is part of the delivery lifecycle.
func (status DeliveryStatus) IsValid() bool {
	switch status {
	case StatusPending, StatusDelivering, StatusDelivered, StatusRetrying, StatusFailed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the status admits no further transitions.
// A FAILED delivery can still be resurrected by an explicit manual retry,
// which goes through Delivery.ResetForRetry rather than the normal
// transition path.
func (status DeliveryStatus) IsTerminal() bool {
	return status == StatusDelivered || status == StatusFailed
}

// CanTransitionTo reports whether a transition from status to next is allowed.
func (status DeliveryStatus) CanTransitionTo(next DeliveryStatus) bool {
	switch status {
	case StatusPending:
		return next == StatusDelivering
	case StatusRetrying:
		return next == StatusDelivering
	case StatusDelivering:
		return next == StatusDelivered || next == StatusRetrying || next == StatusFailed
	case StatusDelivered, StatusFailed:
		return false
	default:
		return false
	}
}

// ValidateTransition validates a status transition using typed lifecycle rules.
func ValidateTransition(fromRaw, toRaw string) error {
	from, err := ParseDeliveryStatus(fromRaw)
	if err != nil {
		return fmt.Errorf("from status: %w", err)
	}

	to, err := ParseDeliveryStatus(toRaw)
	if err != nil {
		return fmt.Errorf("to status: %w", err)
	}

	if !from.CanTransitionTo(to) {
		return fmt.Errorf("%w: %s -> %s", ErrTransitionInvalid, from, to)
	}

	return nil
}

func (status DeliveryStatus) String() string {
	return string(status)
}
