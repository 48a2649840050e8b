//go:build unit

package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredislib "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLease(t *testing.T) (*Lease, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)

	client := goredislib.NewClient(&goredislib.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	lease, err := NewLease(client)
	require.NoError(t, err)

	return lease, mr
}

func TestNewLeaseRequiresClient(t *testing.T) {
	t.Parallel()

	_, err := NewLease(nil)
	assert.ErrorIs(t, err, ErrClientRequired)
}

func TestLeaseAcquireIsExclusive(t *testing.T) {
	t.Parallel()

	lease, _ := newTestLease(t)
	id := uuid.New()
	ctx := context.Background()

	ok, err := lease.Acquire(ctx, id, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	// A second holder loses without error.
	ok, err = lease.Acquire(ctx, id, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	// Other deliveries are independent.
	ok, err = lease.Acquire(ctx, uuid.New(), time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLeaseReleaseFreesKey(t *testing.T) {
	t.Parallel()

	lease, _ := newTestLease(t)
	id := uuid.New()
	ctx := context.Background()

	ok, err := lease.Acquire(ctx, id, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, lease.Release(ctx, id))

	ok, err = lease.Acquire(ctx, id, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLeaseExpiresWithTTL(t *testing.T) {
	t.Parallel()

	lease, mr := newTestLease(t)
	id := uuid.New()
	ctx := context.Background()

	ok, err := lease.Acquire(ctx, id, 200*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(time.Second)

	ok, err = lease.Acquire(ctx, id, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLeaseReleaseUnheldIsNoop(t *testing.T) {
	t.Parallel()

	lease, _ := newTestLease(t)

	require.NoError(t, lease.Release(context.Background(), uuid.New()))
}

func TestLeaseReleaseAfterExpirySwallowed(t *testing.T) {
	t.Parallel()

	lease, mr := newTestLease(t)
	id := uuid.New()
	ctx := context.Background()

	ok, err := lease.Acquire(ctx, id, 100*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(time.Second)

	assert.NoError(t, lease.Release(ctx, id))
}
