package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/google/uuid"
	goredislib "github.com/redis/go-redis/v9"
)

// ErrClientRequired is returned when a lease is built without a client.
var ErrClientRequired = errors.New("redis client is required")

const leaseKeyPrefix = "webhook:delivery:lease:"

// Lease implements webhook.Lease over redsync mutexes.
type Lease struct {
	rs *redsync.Redsync

	mu   sync.Mutex
	held map[uuid.UUID]*redsync.Mutex
}

// NewLease creates a lease manager over an initialized go-redis client.
func NewLease(client goredislib.UniversalClient) (*Lease, error) {
	if client == nil {
		return nil, ErrClientRequired
	}

	return &Lease{
		rs:   redsync.New(goredis.NewPool(client)),
		held: make(map[uuid.UUID]*redsync.Mutex),
	}, nil
}

// Acquire tries once to take the lease for deliveryID with the given TTL.
// Contention is a normal outcome reported as (false, nil); only transport
// failures surface as errors.
func (l *Lease) Acquire(ctx context.Context, deliveryID uuid.UUID, ttl time.Duration) (bool, error) {
	mutex := l.rs.NewMutex(
		leaseKeyPrefix+deliveryID.String(),
		redsync.WithExpiry(ttl),
		redsync.WithTries(1),
	)

	if err := mutex.LockContext(ctx); err != nil {
		if isContention(err) {
			return false, nil
		}

		return false, fmt.Errorf("acquire delivery lease: %w", err)
	}

	l.mu.Lock()
	l.held[deliveryID] = mutex
	l.mu.Unlock()

	return true, nil
}

// Release frees the lease for deliveryID. Releasing a lease this process
// does not hold is a no-op.
func (l *Lease) Release(ctx context.Context, deliveryID uuid.UUID) error {
	l.mu.Lock()
	mutex, exists := l.held[deliveryID]
	delete(l.held, deliveryID)
	l.mu.Unlock()

	if !exists {
		return nil
	}

	if _, err := mutex.UnlockContext(ctx); err != nil {
		// The TTL already reclaims an expired lease; losing the unlock
		// race is not a failure worth propagating.
		if errors.Is(err, redsync.ErrLockAlreadyExpired) {
			return nil
		}

		return fmt.Errorf("release delivery lease: %w", err)
	}

	return nil
}

// isContention reports whether err means the lease is simply held elsewhere.
func isContention(err error) bool {
	if errors.Is(err, redsync.ErrFailed) {
		return true
	}

	msg := err.Error()

	return strings.Contains(msg, "lock already taken") ||
		strings.Contains(msg, "failed to acquire lock")
}
