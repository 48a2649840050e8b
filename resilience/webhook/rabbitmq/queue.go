package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/adstackhq/lib-resilience/resilience/opentelemetry"
	"github.com/adstackhq/lib-resilience/resilience/webhook"
)

const (
	defaultExchangeName = "webhook.deliveries.x"
	defaultQueueName    = "webhook.deliveries"
	defaultWaitSuffix   = ".wait"
	defaultRoutingKey   = "delivery"
)

// ErrChannelRequired is returned when a queue is built without a channel.
var ErrChannelRequired = errors.New("rabbitmq channel is required")

// Channel is the subset of AMQP channel operations the queue needs. The
// concrete *amqp.Channel satisfies it.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
}

// TopologyConfig names the exchange and queues the delivery queue declares.
type TopologyConfig struct {
	ExchangeName string
	QueueName    string
	// WaitQueueName holds delayed jobs until their per-message TTL expires
	// and they dead-letter back into ExchangeName.
	WaitQueueName string
	RoutingKey    string
}

// Option configures the delivery queue topology.
type Option func(*TopologyConfig)

// WithExchangeName overrides the delivery exchange name.
func WithExchangeName(name string) Option {
	return func(cfg *TopologyConfig) {
		if name != "" {
			cfg.ExchangeName = name
		}
	}
}

// WithQueueName overrides the delivery queue name. The wait queue follows it
// unless overridden separately.
func WithQueueName(name string) Option {
	return func(cfg *TopologyConfig) {
		if name != "" {
			cfg.QueueName = name
			cfg.WaitQueueName = name + defaultWaitSuffix
		}
	}
}

// WithWaitQueueName overrides the wait queue name.
func WithWaitQueueName(name string) Option {
	return func(cfg *TopologyConfig) {
		if name != "" {
			cfg.WaitQueueName = name
		}
	}
}

// WithRoutingKey overrides the routing key jobs are published under.
func WithRoutingKey(key string) Option {
	return func(cfg *TopologyConfig) {
		if key != "" {
			cfg.RoutingKey = key
		}
	}
}

func defaultTopology() TopologyConfig {
	return TopologyConfig{
		ExchangeName:  defaultExchangeName,
		QueueName:     defaultQueueName,
		WaitQueueName: defaultQueueName + defaultWaitSuffix,
		RoutingKey:    defaultRoutingKey,
	}
}

// Queue is a webhook.DeliveryQueue backed by a RabbitMQ channel.
type Queue struct {
	ch  Channel
	cfg TopologyConfig

	mu         sync.Mutex
	deliveries <-chan amqp.Delivery
	closed     bool
	closedCh   chan struct{}
}

// NewQueue declares the delivery topology on ch and returns a ready queue.
func NewQueue(ch Channel, opts ...Option) (*Queue, error) {
	if ch == nil {
		return nil, ErrChannelRequired
	}

	cfg := defaultTopology()

	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	if err := declareTopology(ch, cfg); err != nil {
		return nil, err
	}

	return &Queue{
		ch:       ch,
		cfg:      cfg,
		closedCh: make(chan struct{}),
	}, nil
}

func declareTopology(ch Channel, cfg TopologyConfig) error {
	if err := ch.ExchangeDeclare(cfg.ExchangeName, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare delivery exchange: %w", err)
	}

	if _, err := ch.QueueDeclare(cfg.QueueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare delivery queue: %w", err)
	}

	if err := ch.QueueBind(cfg.QueueName, cfg.RoutingKey, cfg.ExchangeName, false, nil); err != nil {
		return fmt.Errorf("bind delivery queue: %w", err)
	}

	// Expired wait-queue messages dead-letter back into the delivery
	// exchange under the normal routing key.
	waitArgs := amqp.Table{
		"x-dead-letter-exchange":    cfg.ExchangeName,
		"x-dead-letter-routing-key": cfg.RoutingKey,
	}

	if _, err := ch.QueueDeclare(cfg.WaitQueueName, true, false, false, false, waitArgs); err != nil {
		return fmt.Errorf("declare wait queue: %w", err)
	}

	return nil
}

// Enqueue publishes the job for immediate consumption.
func (q *Queue) Enqueue(ctx context.Context, job webhook.Job) error {
	return q.publish(ctx, q.cfg.ExchangeName, q.cfg.RoutingKey, job, 0)
}

// EnqueueAfter publishes the job to the wait queue with delay as its
// per-message TTL.
func (q *Queue) EnqueueAfter(ctx context.Context, job webhook.Job, delay time.Duration) error {
	if delay <= 0 {
		return q.Enqueue(ctx, job)
	}

	// The default exchange routes directly to the wait queue by name.
	return q.publish(ctx, "", q.cfg.WaitQueueName, job, delay)
}

func (q *Queue) publish(ctx context.Context, exchange, key string, job webhook.Job, expiration time.Duration) error {
	if q.isClosed() {
		return webhook.ErrQueueClosed
	}

	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode delivery job: %w", err)
	}

	headers := amqp.Table{}
	for key, value := range opentelemetry.InjectQueueContext(ctx) {
		headers[key] = value
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    job.DeliveryID.String(),
		Headers:      headers,
		Body:         body,
	}

	if expiration > 0 {
		msg.Expiration = strconv.FormatInt(expiration.Milliseconds(), 10)
	}

	if err := q.ch.PublishWithContext(ctx, exchange, key, false, false, msg); err != nil {
		return fmt.Errorf("publish delivery job: %w", err)
	}

	return nil
}

// Dequeue blocks until a job arrives, the queue closes, or ctx ends.
// Messages that fail to decode are rejected without requeue; everything
// else is acked on receipt, relying on the store's claim guard to make
// duplicate consumption harmless.
func (q *Queue) Dequeue(ctx context.Context) (webhook.Job, error) {
	deliveries, err := q.consumeChannel()
	if err != nil {
		return webhook.Job{}, err
	}

	for {
		select {
		case msg, open := <-deliveries:
			if !open {
				return webhook.Job{}, webhook.ErrQueueClosed
			}

			var job webhook.Job

			if err := json.Unmarshal(msg.Body, &job); err != nil {
				// Poison message, park it in the broker's DLQ if
				// one is configured.
				_ = msg.Nack(false, false)

				continue
			}

			if err := msg.Ack(false); err != nil {
				return webhook.Job{}, fmt.Errorf("ack delivery job: %w", err)
			}

			return job, nil
		case <-q.closedCh:
			return webhook.Job{}, webhook.ErrQueueClosed
		case <-ctx.Done():
			return webhook.Job{}, ctx.Err()
		}
	}
}

// consumeChannel lazily starts the single consumer.
func (q *Queue) consumeChannel() (<-chan amqp.Delivery, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil, webhook.ErrQueueClosed
	}

	if q.deliveries != nil {
		return q.deliveries, nil
	}

	deliveries, err := q.ch.Consume(q.cfg.QueueName, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("start delivery consumer: %w", err)
	}

	q.deliveries = deliveries

	return deliveries, nil
}

// Close stops the queue. The underlying channel is owned by the caller and
// is not closed here.
func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}

	q.closed = true
	close(q.closedCh)

	return nil
}

func (q *Queue) isClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.closed
}
