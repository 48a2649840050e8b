package circuitbreaker

import (
	"context"
	"errors"
	"maps"
	"sync"
	"time"

	"github.com/adstackhq/lib-resilience/resilience/log"
)

var (
	// ErrInvalidHealthCheckInterval indicates that the health check interval must be positive.
	ErrInvalidHealthCheckInterval = errors.New("circuitbreaker: health check interval must be positive")
	// ErrInvalidHealthCheckTimeout indicates that the health check timeout must be positive.
	ErrInvalidHealthCheckTimeout = errors.New("circuitbreaker: health check timeout must be positive")
)

// HealthChecker periodically probes dependencies whose breakers are not
// closed and resets a breaker once its probe succeeds, so recovery does not
// depend on live traffic paying the discovery cost.
//
// Register it as a state-change listener on the registry to get an
// immediate probe when a breaker opens:
//
//	checker, _ := NewHealthChecker(registry, 30*time.Second, 5*time.Second, logger)
//	registry.RegisterStateChangeListener(checker)
//	checker.Start()
type HealthChecker struct {
	registry       *Registry
	probes         map[string]HealthCheckFunc
	interval       time.Duration
	checkTimeout   time.Duration
	logger         log.Logger
	stopChan       chan struct{}
	immediateCheck chan string
	wg             sync.WaitGroup
	mu             sync.RWMutex
}

// NewHealthChecker creates a health checker over the given registry.
// interval is how often probes run; checkTimeout bounds each probe.
func NewHealthChecker(registry *Registry, interval, checkTimeout time.Duration, logger log.Logger) (*HealthChecker, error) {
	if interval <= 0 {
		return nil, ErrInvalidHealthCheckInterval
	}

	if checkTimeout <= 0 {
		return nil, ErrInvalidHealthCheckTimeout
	}

	if logger == nil {
		logger = log.NewNop()
	}

	return &HealthChecker{
		registry:       registry,
		probes:         make(map[string]HealthCheckFunc),
		interval:       interval,
		checkTimeout:   checkTimeout,
		logger:         logger,
		stopChan:       make(chan struct{}),
		immediateCheck: make(chan string, 10),
	}, nil
}

// Register adds a probe for the named dependency.
func (hc *HealthChecker) Register(name string, probe HealthCheckFunc) {
	hc.mu.Lock()
	defer hc.mu.Unlock()

	hc.probes[name] = probe
}

// Start begins the probe loop in a separate goroutine.
func (hc *HealthChecker) Start() {
	hc.wg.Add(1)

	go hc.loop()

	hc.logger.Log(context.Background(), log.LevelInfo, "health checker started",
		log.Duration("interval", hc.interval))
}

// Stop gracefully stops the probe loop.
func (hc *HealthChecker) Stop() {
	close(hc.stopChan)
	hc.wg.Wait()
	hc.logger.Log(context.Background(), log.LevelInfo, "health checker stopped")
}

func (hc *HealthChecker) loop() {
	defer hc.wg.Done()

	ticker := time.NewTicker(hc.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			hc.probeAll()
		case name := <-hc.immediateCheck:
			hc.probeOne(name)
		case <-hc.stopChan:
			return
		}
	}
}

func (hc *HealthChecker) probeAll() {
	hc.mu.RLock()
	probes := make(map[string]HealthCheckFunc, len(hc.probes))
	maps.Copy(probes, hc.probes)
	hc.mu.RUnlock()

	for name, probe := range probes {
		if hc.registry.IsHealthy(name) {
			continue
		}

		hc.heal(name, probe)
	}
}

func (hc *HealthChecker) probeOne(name string) {
	hc.mu.RLock()
	probe, exists := hc.probes[name]
	hc.mu.RUnlock()

	if !exists || hc.registry.IsHealthy(name) {
		return
	}

	hc.heal(name, probe)
}

// heal runs one probe and resets the breaker on success.
func (hc *HealthChecker) heal(name string, probe HealthCheckFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), hc.checkTimeout)
	err := probe(ctx)

	cancel()

	if err == nil {
		hc.logger.Log(context.Background(), log.LevelInfo,
			"dependency recovered, resetting circuit breaker", log.String("breaker", name))
		hc.registry.Reset(name)

		return
	}

	hc.logger.Log(context.Background(), log.LevelWarn, "dependency still unhealthy",
		log.String("breaker", name), log.Err(err),
		log.Duration("next_check_in", hc.interval))
}

// HealthStatus returns the breaker state for every registered probe.
func (hc *HealthChecker) HealthStatus() map[string]string {
	hc.mu.RLock()
	defer hc.mu.RUnlock()

	status := make(map[string]string, len(hc.probes))

	for name := range hc.probes {
		state := StateUnknown

		if breaker, exists := hc.registry.Get(name); exists {
			state = breaker.State()
		}

		status[name] = string(state)
	}

	return status
}

// OnStateChange implements StateChangeListener. A breaker that just opened
// gets an immediate probe instead of waiting for the next tick.
func (hc *HealthChecker) OnStateChange(name string, _ State, to State) {
	if to != StateOpen {
		return
	}

	// Non-blocking send; a full channel falls back to the interval tick.
	select {
	case hc.immediateCheck <- name:
	default:
		hc.logger.Log(context.Background(), log.LevelWarn,
			"immediate health check channel full", log.String("breaker", name))
	}
}
