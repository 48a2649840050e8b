//go:build unit

package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adstackhq/lib-resilience/resilience/webhook"
)

type declaredQueue struct {
	name string
	args amqp.Table
}

type publishedMsg struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

type fakeChannel struct {
	mu         sync.Mutex
	exchanges  []string
	queues     []declaredQueue
	bindings   []string
	published  []publishedMsg
	deliveries chan amqp.Delivery

	declareErr error
	publishErr error
	consumeErr error
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{deliveries: make(chan amqp.Delivery, 16)}
}

func (f *fakeChannel) ExchangeDeclare(name, _ string, _, _, _, _ bool, _ amqp.Table) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.declareErr != nil {
		return f.declareErr
	}

	f.exchanges = append(f.exchanges, name)

	return nil
}

func (f *fakeChannel) QueueDeclare(name string, _, _, _, _ bool, args amqp.Table) (amqp.Queue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.declareErr != nil {
		return amqp.Queue{}, f.declareErr
	}

	f.queues = append(f.queues, declaredQueue{name: name, args: args})

	return amqp.Queue{Name: name}, nil
}

func (f *fakeChannel) QueueBind(name, key, exchange string, _ bool, _ amqp.Table) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.bindings = append(f.bindings, name+":"+key+":"+exchange)

	return nil
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.publishErr != nil {
		return f.publishErr
	}

	f.published = append(f.published, publishedMsg{exchange: exchange, key: key, msg: msg})

	return nil
}

func (f *fakeChannel) Consume(string, string, bool, bool, bool, bool, amqp.Table) (<-chan amqp.Delivery, error) {
	if f.consumeErr != nil {
		return nil, f.consumeErr
	}

	return f.deliveries, nil
}

func (f *fakeChannel) lastPublished(t *testing.T) publishedMsg {
	t.Helper()

	f.mu.Lock()
	defer f.mu.Unlock()

	require.NotEmpty(t, f.published)

	return f.published[len(f.published)-1]
}

type fakeAcker struct {
	mu     sync.Mutex
	acked  []uint64
	nacked []uint64
}

func (a *fakeAcker) Ack(tag uint64, _ bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.acked = append(a.acked, tag)

	return nil
}

func (a *fakeAcker) Nack(tag uint64, _, _ bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.nacked = append(a.nacked, tag)

	return nil
}

func (a *fakeAcker) Reject(tag uint64, _ bool) error {
	return a.Nack(tag, false, false)
}

func TestNewQueueDeclaresTopology(t *testing.T) {
	t.Parallel()

	ch := newFakeChannel()

	_, err := NewQueue(ch)
	require.NoError(t, err)

	assert.Equal(t, []string{defaultExchangeName}, ch.exchanges)
	require.Len(t, ch.queues, 2)
	assert.Equal(t, defaultQueueName, ch.queues[0].name)
	assert.Nil(t, ch.queues[0].args)

	// The wait queue dead-letters back into the delivery exchange.
	wait := ch.queues[1]
	assert.Equal(t, defaultQueueName+defaultWaitSuffix, wait.name)
	assert.Equal(t, defaultExchangeName, wait.args["x-dead-letter-exchange"])
	assert.Equal(t, defaultRoutingKey, wait.args["x-dead-letter-routing-key"])

	assert.Contains(t, ch.bindings, defaultQueueName+":"+defaultRoutingKey+":"+defaultExchangeName)
}

func TestNewQueueRequiresChannel(t *testing.T) {
	t.Parallel()

	_, err := NewQueue(nil)
	assert.ErrorIs(t, err, ErrChannelRequired)
}

func TestNewQueueDeclareFailure(t *testing.T) {
	t.Parallel()

	ch := newFakeChannel()
	ch.declareErr = errors.New("access refused")

	_, err := NewQueue(ch)
	assert.Error(t, err)
}

func TestEnqueuePublishesPersistentJSON(t *testing.T) {
	t.Parallel()

	ch := newFakeChannel()
	q, err := NewQueue(ch)
	require.NoError(t, err)

	job := webhook.Job{DeliveryID: uuid.New()}
	require.NoError(t, q.Enqueue(context.Background(), job))

	published := ch.lastPublished(t)
	assert.Equal(t, defaultExchangeName, published.exchange)
	assert.Equal(t, defaultRoutingKey, published.key)
	assert.Equal(t, "application/json", published.msg.ContentType)
	assert.Equal(t, uint8(amqp.Persistent), published.msg.DeliveryMode)
	assert.Equal(t, job.DeliveryID.String(), published.msg.MessageId)
	assert.Empty(t, published.msg.Expiration)

	var decoded webhook.Job
	require.NoError(t, json.Unmarshal(published.msg.Body, &decoded))
	assert.Equal(t, job.DeliveryID, decoded.DeliveryID)
}

func TestEnqueueAfterUsesWaitQueueTTL(t *testing.T) {
	t.Parallel()

	ch := newFakeChannel()
	q, err := NewQueue(ch)
	require.NoError(t, err)

	job := webhook.Job{DeliveryID: uuid.New()}
	require.NoError(t, q.EnqueueAfter(context.Background(), job, 5*time.Minute))

	published := ch.lastPublished(t)
	assert.Empty(t, published.exchange)
	assert.Equal(t, defaultQueueName+defaultWaitSuffix, published.key)
	assert.Equal(t, "300000", published.msg.Expiration)
}

func TestEnqueueAfterZeroDelayIsImmediate(t *testing.T) {
	t.Parallel()

	ch := newFakeChannel()
	q, err := NewQueue(ch)
	require.NoError(t, err)

	require.NoError(t, q.EnqueueAfter(context.Background(), webhook.Job{DeliveryID: uuid.New()}, 0))

	published := ch.lastPublished(t)
	assert.Equal(t, defaultExchangeName, published.exchange)
	assert.Empty(t, published.msg.Expiration)
}

func TestDequeueAcksAndDecodes(t *testing.T) {
	t.Parallel()

	ch := newFakeChannel()
	q, err := NewQueue(ch)
	require.NoError(t, err)

	job := webhook.Job{DeliveryID: uuid.New()}
	body, err := json.Marshal(job)
	require.NoError(t, err)

	acker := &fakeAcker{}
	ch.deliveries <- amqp.Delivery{Acknowledger: acker, DeliveryTag: 7, Body: body}

	got, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, job.DeliveryID, got.DeliveryID)
	assert.Equal(t, []uint64{7}, acker.acked)
}

func TestDequeueRejectsPoisonMessages(t *testing.T) {
	t.Parallel()

	ch := newFakeChannel()
	q, err := NewQueue(ch)
	require.NoError(t, err)

	job := webhook.Job{DeliveryID: uuid.New()}
	body, err := json.Marshal(job)
	require.NoError(t, err)

	acker := &fakeAcker{}
	ch.deliveries <- amqp.Delivery{Acknowledger: acker, DeliveryTag: 1, Body: []byte("not json")}
	ch.deliveries <- amqp.Delivery{Acknowledger: acker, DeliveryTag: 2, Body: body}

	got, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, job.DeliveryID, got.DeliveryID)
	assert.Equal(t, []uint64{1}, acker.nacked)
	assert.Equal(t, []uint64{2}, acker.acked)
}

func TestDequeueContextCancel(t *testing.T) {
	t.Parallel()

	ch := newFakeChannel()
	q, err := NewQueue(ch)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = q.Dequeue(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestQueueClosed(t *testing.T) {
	t.Parallel()

	ch := newFakeChannel()
	q, err := NewQueue(ch)
	require.NoError(t, err)

	require.NoError(t, q.Close())
	require.NoError(t, q.Close())

	err = q.Enqueue(context.Background(), webhook.Job{DeliveryID: uuid.New()})
	assert.ErrorIs(t, err, webhook.ErrQueueClosed)

	_, err = q.Dequeue(context.Background())
	assert.ErrorIs(t, err, webhook.ErrQueueClosed)
}

func TestDequeueBrokerChannelClosed(t *testing.T) {
	t.Parallel()

	ch := newFakeChannel()
	q, err := NewQueue(ch)
	require.NoError(t, err)

	close(ch.deliveries)

	_, err = q.Dequeue(context.Background())
	assert.ErrorIs(t, err, webhook.ErrQueueClosed)
}
