package circuitbreaker

import (
	"context"
	"time"
)

// State represents the position of a breaker in its lifecycle.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half-open"
	StateUnknown  State = "unknown"
)

// IsValid checks if the state is one of the lifecycle states.
func (s State) IsValid() bool {
	switch s {
	case StateClosed, StateOpen, StateHalfOpen:
		return true
	default:
		return false
	}
}

// Counts holds the statistics a breaker accumulates about the calls it has
// mediated. Requests counts only calls that were allowed through;
// RejectedRequests counts calls refused while the breaker was open.
type Counts struct {
	Requests             uint32
	TotalSuccesses       uint32
	TotalFailures        uint32
	RejectedRequests     uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

// Transition is one entry in a breaker's append-only state-change audit log.
type Transition struct {
	From State
	To   State
	At   time.Time
}

// Status is a point-in-time snapshot of a breaker. Reading a Status never
// mutates the breaker.
type Status struct {
	Name        string
	State       State
	Counts      Counts
	FailureRate float64
	WindowSize  int
	OpenedAt    time.Time
	LastSuccess time.Time
	LastFailure time.Time
	Transitions []Transition
}

// StateChangeListener is notified asynchronously when any breaker owned by
// a registry changes state.
type StateChangeListener interface {
	OnStateChange(name string, from State, to State)
}

// HealthCheckFunc probes a dependency directly, outside breaker accounting.
// A nil return means the dependency is healthy.
type HealthCheckFunc func(ctx context.Context) error
