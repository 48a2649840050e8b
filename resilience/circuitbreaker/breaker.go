package circuitbreaker

import (
	"context"
	"slices"
	"sync"
	"time"
)

// maxTransitionLog bounds the per-breaker audit log. Older entries are
// dropped FIFO once the limit is reached.
const maxTransitionLog = 64

// breakerHooks let the owning registry observe breaker activity without the
// breaker knowing about logging, metrics or listeners.
type breakerHooks struct {
	stateChange func(name string, from, to State)
	rejected    func(name string)
}

// Breaker is a named circuit breaker. All state transitions, statistics
// updates and the allow/reject decision share one critical section, so
// concurrent callers can never both observe CLOSED and push the breaker
// past its threshold inconsistently. Breakers for different names never
// block each other.
type Breaker struct {
	name  string
	cfg   Config
	hooks breakerHooks

	mu                sync.Mutex
	state             State
	window            []bool
	counts            Counts
	halfOpenSuccesses uint32
	openedAt          time.Time
	lastSuccess       time.Time
	lastFailure       time.Time
	transitions       []Transition

	now func() time.Time
}

func newBreaker(name string, cfg Config, hooks breakerHooks) *Breaker {
	return &Breaker{
		name:   name,
		cfg:    cfg,
		hooks:  hooks,
		state:  StateClosed,
		window: make([]bool, 0, cfg.SlidingWindowSize),
		now:    time.Now,
	}
}

// Name returns the breaker's registry name.
func (b *Breaker) Name() string {
	return b.name
}

// Execute runs fn through the breaker. While the breaker is open the call
// is rejected immediately with an *OpenError and fn is never invoked. When
// fn fails and a Fallback is configured, the failure is recorded and the
// fallback's result is returned instead.
func (b *Breaker) Execute(ctx context.Context, fn func(ctx context.Context) (any, error)) (any, error) {
	if fn == nil {
		return nil, ErrOperationRequired
	}

	if err := b.allow(); err != nil {
		return nil, err
	}

	result, err := fn(ctx)
	if err != nil {
		b.recordFailure(err)

		if b.cfg.Fallback != nil {
			return b.cfg.Fallback(ctx, err)
		}

		return nil, err
	}

	b.recordSuccess()

	return result, nil
}

// allow decides whether a call may proceed. An open breaker whose recovery
// timeout has elapsed transitions to HALF_OPEN first and lets the call
// through as a probe.
func (b *Breaker) allow() error {
	b.mu.Lock()

	if b.state == StateOpen {
		remaining := b.cfg.RecoveryTimeout - b.now().Sub(b.openedAt)
		if remaining > 0 {
			b.counts.RejectedRequests++
			b.mu.Unlock()

			if b.hooks.rejected != nil {
				b.hooks.rejected(b.name)
			}

			return &OpenError{Name: b.name, RetryAfter: remaining}
		}

		b.transitionLocked(StateHalfOpen)
	}

	b.counts.Requests++
	b.mu.Unlock()

	return nil
}

func (b *Breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.counts.TotalSuccesses++
	b.counts.ConsecutiveSuccesses++
	b.counts.ConsecutiveFailures = 0
	b.lastSuccess = b.now()
	b.pushOutcomeLocked(true)

	if b.state == StateHalfOpen {
		b.halfOpenSuccesses++
		if b.halfOpenSuccesses >= b.cfg.HalfOpenMaxCalls {
			b.transitionLocked(StateClosed)
		}
	}
}

func (b *Breaker) recordFailure(err error) {
	if b.cfg.Classifier != nil && !b.cfg.Classifier(err) {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.counts.TotalFailures++
	b.counts.ConsecutiveFailures++
	b.counts.ConsecutiveSuccesses = 0
	b.lastFailure = b.now()
	b.pushOutcomeLocked(false)

	switch b.state {
	case StateHalfOpen:
		// Any failure during a probe phase re-opens immediately.
		b.transitionLocked(StateOpen)
	case StateClosed:
		if b.counts.ConsecutiveFailures >= b.cfg.FailureThreshold || b.windowTrippedLocked() {
			b.transitionLocked(StateOpen)
		}
	}
}

// windowTrippedLocked reports whether the sliding window holds enough
// samples and its failure rate has reached the configured threshold.
func (b *Breaker) windowTrippedLocked() bool {
	if uint32(len(b.window)) < b.cfg.MinRequests {
		return false
	}

	return b.failureRateLocked() >= b.cfg.FailureRateThreshold
}

func (b *Breaker) pushOutcomeLocked(success bool) {
	b.window = append(b.window, success)
	if len(b.window) > b.cfg.SlidingWindowSize {
		b.window = b.window[1:]
	}
}

func (b *Breaker) failureRateLocked() float64 {
	if len(b.window) == 0 {
		return 0
	}

	failures := 0

	for _, ok := range b.window {
		if !ok {
			failures++
		}
	}

	return float64(failures) / float64(len(b.window))
}

// transitionLocked moves the breaker to a new state, records the change in
// the audit log and notifies the owning registry. Callers hold b.mu; the
// hook must not call back into the breaker.
func (b *Breaker) transitionLocked(to State) {
	from := b.state
	if from == to {
		return
	}

	b.state = to
	now := b.now()

	switch to {
	case StateOpen:
		b.openedAt = now
		b.halfOpenSuccesses = 0
	case StateHalfOpen:
		b.halfOpenSuccesses = 0
	case StateClosed:
		b.openedAt = time.Time{}
		b.counts.ConsecutiveFailures = 0
		b.window = b.window[:0]
	}

	b.transitions = append(b.transitions, Transition{From: from, To: to, At: now})
	if len(b.transitions) > maxTransitionLog {
		b.transitions = b.transitions[len(b.transitions)-maxTransitionLog:]
	}

	if b.hooks.stateChange != nil {
		b.hooks.stateChange(b.name, from, to)
	}
}

// State returns the breaker's current state without mutating it. An open
// breaker past its recovery timeout still reports OPEN here; the lazy
// transition to HALF_OPEN happens only on the next call.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.state
}

// Counts returns a copy of the breaker's statistics.
func (b *Breaker) Counts() Counts {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.counts
}

// Status returns a point-in-time snapshot including the rolling failure
// rate and a copy of the transition audit log. It never mutates state.
func (b *Breaker) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()

	return Status{
		Name:        b.name,
		State:       b.state,
		Counts:      b.counts,
		FailureRate: b.failureRateLocked(),
		WindowSize:  len(b.window),
		OpenedAt:    b.openedAt,
		LastSuccess: b.lastSuccess,
		LastFailure: b.lastFailure,
		Transitions: slices.Clone(b.transitions),
	}
}

// Reset returns the breaker to CLOSED and clears all counters and the
// sliding window. The transition audit log is preserved.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateClosed {
		b.transitionLocked(StateClosed)
	}

	b.counts = Counts{}
	b.window = b.window[:0]
	b.halfOpenSuccesses = 0
	b.openedAt = time.Time{}
}
