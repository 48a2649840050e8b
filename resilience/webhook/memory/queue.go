package memory

import (
	"context"
	"sync"
	"time"

	"github.com/adstackhq/lib-resilience/resilience/webhook"
)

const defaultQueueCapacity = 1024

// Queue is an in-process webhook.DeliveryQueue backed by a buffered channel.
// Delayed jobs are parked on timers and pushed onto the channel when due.
type Queue struct {
	jobs     chan webhook.Job
	mu       sync.Mutex
	timers   map[*time.Timer]struct{}
	closed   bool
	closedCh chan struct{}
}

// NewQueue creates a queue with the given buffer capacity. A capacity of
// zero or less uses a reasonable default.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = defaultQueueCapacity
	}

	return &Queue{
		jobs:     make(chan webhook.Job, capacity),
		timers:   make(map[*time.Timer]struct{}),
		closedCh: make(chan struct{}),
	}
}

// Enqueue makes the job available to consumers immediately.
func (q *Queue) Enqueue(ctx context.Context, job webhook.Job) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return webhook.ErrQueueClosed
	}
	q.mu.Unlock()

	select {
	case q.jobs <- job:
		return nil
	case <-q.closedCh:
		return webhook.ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// EnqueueAfter makes the job available to consumers once delay has elapsed.
func (q *Queue) EnqueueAfter(ctx context.Context, job webhook.Job, delay time.Duration) error {
	if delay <= 0 {
		return q.Enqueue(ctx, job)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return webhook.ErrQueueClosed
	}

	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		q.mu.Lock()
		delete(q.timers, timer)
		closed := q.closed
		q.mu.Unlock()

		if closed {
			return
		}

		select {
		case q.jobs <- job:
		case <-q.closedCh:
		}
	})
	q.timers[timer] = struct{}{}

	return nil
}

// Dequeue blocks until a job is available, the queue closes, or ctx ends.
func (q *Queue) Dequeue(ctx context.Context) (webhook.Job, error) {
	select {
	case job := <-q.jobs:
		return job, nil
	case <-q.closedCh:
		// Drain jobs buffered before close.
		select {
		case job := <-q.jobs:
			return job, nil
		default:
			return webhook.Job{}, webhook.ErrQueueClosed
		}
	case <-ctx.Done():
		return webhook.Job{}, ctx.Err()
	}
}

// Close stops accepting jobs and cancels pending delayed jobs. Dequeue keeps
// draining already buffered jobs before reporting the queue closed.
func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}

	q.closed = true
	close(q.closedCh)

	for timer := range q.timers {
		timer.Stop()
	}
	q.timers = make(map[*time.Timer]struct{})

	return nil
}
