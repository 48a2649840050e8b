package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Lease is an in-process webhook.Lease. It prevents two workers in the same
// process from handling one delivery concurrently; cross-process exclusion
// needs a shared backend.
type Lease struct {
	mu   sync.Mutex
	held map[uuid.UUID]time.Time
	now  func() time.Time
}

// NewLease creates an empty lease table.
func NewLease() *Lease {
	return &Lease{
		held: make(map[uuid.UUID]time.Time),
		now:  time.Now,
	}
}

// Acquire takes the lease for deliveryID if it is free or expired. It does
// not block or retry.
func (l *Lease) Acquire(_ context.Context, deliveryID uuid.UUID, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	if expiry, exists := l.held[deliveryID]; exists && expiry.After(now) {
		return false, nil
	}

	l.held[deliveryID] = now.Add(ttl)

	return true, nil
}

// Release frees the lease for deliveryID.
func (l *Lease) Release(_ context.Context, deliveryID uuid.UUID) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.held, deliveryID)

	return nil
}
