package webhook

import (
	"time"

	"go.opentelemetry.io/otel/metric"
)

const (
	defaultWorkerConcurrency = 4
	defaultProcessingTimeout = 10 * time.Minute
	defaultReclaimInterval   = time.Minute
	defaultReclaimBatchSize  = 50
)

// WorkerConfig controls the delivery worker pool.
type WorkerConfig struct {
	// Concurrency is the number of consumer goroutines. Each delivery is
	// still owned by exactly one consumer at a time; concurrency only
	// parallelizes across deliveries.
	Concurrency int
	// RequestTimeout bounds one outbound delivery attempt.
	RequestTimeout time.Duration
	// ProcessingTimeout is both the lease TTL while a delivery is
	// DELIVERING and the age threshold for reclaiming records abandoned by
	// a crashed worker.
	ProcessingTimeout time.Duration
	// ReclaimInterval is how often the reclaim pass runs.
	ReclaimInterval time.Duration
	// ReclaimBatchSize limits deliveries re-enqueued per reclaim pass.
	ReclaimBatchSize int
	// MeterProvider overrides the default global meter provider when set.
	MeterProvider metric.MeterProvider
}

// DefaultWorkerConfig returns the baseline worker configuration.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		Concurrency:       defaultWorkerConcurrency,
		RequestTimeout:    DefaultRequestTimeout,
		ProcessingTimeout: defaultProcessingTimeout,
		ReclaimInterval:   defaultReclaimInterval,
		ReclaimBatchSize:  defaultReclaimBatchSize,
	}
}

func (cfg *WorkerConfig) normalize() {
	defaults := DefaultWorkerConfig()

	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaults.Concurrency
	}

	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaults.RequestTimeout
	}

	if cfg.ProcessingTimeout <= 0 {
		cfg.ProcessingTimeout = defaults.ProcessingTimeout
	}

	if cfg.ReclaimInterval <= 0 {
		cfg.ReclaimInterval = defaults.ReclaimInterval
	}

	if cfg.ReclaimBatchSize <= 0 {
		cfg.ReclaimBatchSize = defaults.ReclaimBatchSize
	}
}

// WorkerOption mutates worker configuration at construction.
type WorkerOption func(*Worker)

// WithConcurrency sets the number of consumer goroutines.
func WithConcurrency(concurrency int) WorkerOption {
	return func(w *Worker) {
		if concurrency > 0 {
			w.cfg.Concurrency = concurrency
		}
	}
}

// WithRequestTimeout bounds one outbound delivery attempt.
func WithRequestTimeout(timeout time.Duration) WorkerOption {
	return func(w *Worker) {
		if timeout > 0 {
			w.cfg.RequestTimeout = timeout
		}
	}
}

// WithProcessingTimeout sets the lease TTL and stuck-delivery threshold.
func WithProcessingTimeout(timeout time.Duration) WorkerOption {
	return func(w *Worker) {
		if timeout > 0 {
			w.cfg.ProcessingTimeout = timeout
		}
	}
}

// WithReclaimInterval sets how often abandoned deliveries are reclaimed.
func WithReclaimInterval(interval time.Duration) WorkerOption {
	return func(w *Worker) {
		if interval > 0 {
			w.cfg.ReclaimInterval = interval
		}
	}
}

// WithReclaimBatchSize limits deliveries re-enqueued per reclaim pass.
func WithReclaimBatchSize(size int) WorkerOption {
	return func(w *Worker) {
		if size > 0 {
			w.cfg.ReclaimBatchSize = size
		}
	}
}

// WithWorkerMeterProvider injects a custom meter provider for worker
// metrics. Passing nil keeps the default global provider.
func WithWorkerMeterProvider(provider metric.MeterProvider) WorkerOption {
	return func(w *Worker) {
		w.cfg.MeterProvider = provider
	}
}
