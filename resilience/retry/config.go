package retry

import (
	"time"

	"github.com/adstackhq/lib-resilience/resilience/backoff"
	"github.com/adstackhq/lib-resilience/resilience/log"
)

const (
	defaultMaxRetries      = 3
	defaultBaseDelay       = 1 * time.Second
	defaultMaxDelay        = 30 * time.Second
	defaultExponentialBase = 2.0
)

// Config controls one call site's retry behavior. It is immutable once
// passed to Do; construct one per call site and reuse it.
type Config struct {
	// MaxRetries is the number of re-attempts after the first try
	// (total attempts = MaxRetries + 1).
	MaxRetries int
	// BaseDelay seeds the backoff schedule.
	BaseDelay time.Duration
	// MaxDelay caps every computed delay, hints included.
	MaxDelay time.Duration
	// Strategy selects the backoff schedule.
	Strategy backoff.Strategy
	// ExponentialBase is the growth factor for exponential strategies.
	ExponentialBase float64
	// JitterFactor in [0,1] adds U(0, delay*factor) on top of exponential
	// delays when the strategy is exponential_jitter.
	JitterFactor float64
	// Retryable lists failure kinds eligible for retry. Empty means the
	// defaults (network, timeout, server, rate_limit, unknown).
	Retryable []Kind
	// NonRetryable lists kinds that must never be retried; it wins over
	// Retryable. Validation failures are non-retryable regardless.
	NonRetryable []Kind
	// OnRetry runs before each wait. OnSuccess runs once on success with
	// the zero-based attempt index that succeeded. OnFailure runs once
	// before ExhaustedError is returned. Callback panics are swallowed
	// and logged.
	OnRetry   func(attempt int, err error, delay time.Duration)
	OnSuccess func(attempt int)
	OnFailure func(attempts int, err error)
	// Logger receives callback panic reports; nil means no-op.
	Logger log.Logger
}

// DefaultConfig returns the baseline retry configuration: three retries
// with exponential backoff from one second, capped at thirty seconds.
func DefaultConfig() Config {
	return Config{
		MaxRetries:      defaultMaxRetries,
		BaseDelay:       defaultBaseDelay,
		MaxDelay:        defaultMaxDelay,
		Strategy:        backoff.StrategyExponential,
		ExponentialBase: defaultExponentialBase,
	}
}

func (cfg *Config) normalize() {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = defaultBaseDelay
	}

	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = defaultMaxDelay
	}

	if !cfg.Strategy.IsValid() {
		cfg.Strategy = backoff.StrategyExponential
	}

	if cfg.ExponentialBase < 1 {
		cfg.ExponentialBase = defaultExponentialBase
	}

	if cfg.JitterFactor < 0 {
		cfg.JitterFactor = 0
	} else if cfg.JitterFactor > 1 {
		cfg.JitterFactor = 1
	}

	if cfg.Logger == nil {
		cfg.Logger = log.NewNop()
	}
}

func (cfg Config) retryableKinds() map[Kind]struct{} {
	kinds := cfg.Retryable
	if len(kinds) == 0 {
		kinds = []Kind{KindNetwork, KindTimeout, KindServer, KindRateLimit, KindUnknown}
	}

	set := make(map[Kind]struct{}, len(kinds))
	for _, kind := range kinds {
		set[kind] = struct{}{}
	}

	return set
}

func (cfg Config) nonRetryableKinds() map[Kind]struct{} {
	set := make(map[Kind]struct{}, len(cfg.NonRetryable)+1)
	set[KindValidation] = struct{}{}

	for _, kind := range cfg.NonRetryable {
		set[kind] = struct{}{}
	}

	return set
}
