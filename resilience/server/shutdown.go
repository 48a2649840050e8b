package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/adstackhq/lib-resilience/resilience/log"
	"github.com/adstackhq/lib-resilience/resilience/opentelemetry"
	"github.com/adstackhq/lib-resilience/resilience/runtime"
	"github.com/adstackhq/lib-resilience/resilience/webhook"
)

// ErrNothingConfigured indicates the manager has nothing to run.
var ErrNothingConfigured = errors.New("nothing configured: use WithHTTPServer() or WithWorker()")

// ServerManager runs the HTTP operations surface and the delivery worker and
// shuts them down together. The worker stops before telemetry so in-flight
// deliveries can still export their final metrics.
type ServerManager struct {
	httpServer  *fiber.App
	httpAddress string
	worker      *webhook.Worker
	telemetry   *opentelemetry.Telemetry
	logger      log.Logger

	started         chan struct{}
	startedOnce     sync.Once
	shutdownChan    <-chan struct{}
	shutdownOnce    sync.Once
	shutdownTimeout time.Duration
	startupErrors   chan error
}

// NewServerManager creates a manager. Both telemetry and logger may be nil.
func NewServerManager(telemetry *opentelemetry.Telemetry, logger log.Logger) *ServerManager {
	if logger == nil {
		logger = log.NewNop()
	}

	return &ServerManager{
		telemetry:       telemetry,
		logger:          logger,
		started:         make(chan struct{}),
		shutdownTimeout: 30 * time.Second,
		startupErrors:   make(chan error, 2),
	}
}

// WithHTTPServer configures the HTTP operations server.
func (sm *ServerManager) WithHTTPServer(app *fiber.App, address string) *ServerManager {
	sm.httpServer = app
	sm.httpAddress = address

	return sm
}

// WithWorker configures the delivery worker to run alongside the HTTP server.
func (sm *ServerManager) WithWorker(worker *webhook.Worker) *ServerManager {
	sm.worker = worker

	return sm
}

// WithShutdownChannel replaces OS signal handling with a caller-owned channel.
// Closing the channel triggers the shutdown sequence, which lets tests drive
// shutdown deterministically.
func (sm *ServerManager) WithShutdownChannel(ch <-chan struct{}) *ServerManager {
	sm.shutdownChan = ch

	return sm
}

// WithShutdownTimeout bounds how long shutdown waits for the worker to drain
// in-flight deliveries. Defaults to 30 seconds.
func (sm *ServerManager) WithShutdownTimeout(d time.Duration) *ServerManager {
	sm.shutdownTimeout = d

	return sm
}

// Started returns a channel closed once the run goroutines have been
// launched. It signals launch, not that the HTTP socket is bound.
func (sm *ServerManager) Started() <-chan struct{} {
	return sm.started
}

// Run starts everything configured and blocks until a termination signal
// arrives, the shutdown channel closes, or a component fails to start. It
// then executes the shutdown sequence and returns.
func (sm *ServerManager) Run() error {
	if sm.httpServer == nil && sm.worker == nil {
		return ErrNothingConfigured
	}

	sm.start()
	sm.awaitShutdown()

	return nil
}

func (sm *ServerManager) start() {
	launched := 0

	if sm.httpServer != nil {
		runtime.SafeGo(context.Background(), sm.logger, "server", "http_listen", func(_ context.Context) {
			sm.logger.Log(context.Background(), log.LevelInfo, "starting http server",
				log.String("address", sm.httpAddress))

			if err := sm.httpServer.Listen(sm.httpAddress); err != nil {
				sm.reportStartupError(fmt.Errorf("http server: %w", err))
			}
		})

		launched++
	}

	if sm.worker != nil {
		runtime.SafeGo(context.Background(), sm.logger, "server", "worker_run", func(ctx context.Context) {
			sm.logger.Log(ctx, log.LevelInfo, "starting delivery worker")

			if err := sm.worker.Run(ctx); err != nil {
				sm.reportStartupError(fmt.Errorf("delivery worker: %w", err))
			}
		})

		launched++
	}

	sm.logger.Log(context.Background(), log.LevelInfo, "components launched",
		log.Int("count", launched))

	sm.startedOnce.Do(func() {
		close(sm.started)
	})
}

func (sm *ServerManager) reportStartupError(err error) {
	select {
	case sm.startupErrors <- err:
	default:
	}
}

// awaitShutdown blocks until a shutdown trigger fires, then runs the
// shutdown sequence exactly once.
func (sm *ServerManager) awaitShutdown() {
	if sm.shutdownChan != nil {
		select {
		case <-sm.shutdownChan:
		case err := <-sm.startupErrors:
			log.SafeError(sm.logger, context.Background(), "component startup failed", err)
		}
	} else {
		signals := make(chan os.Signal, 1)
		signal.Notify(signals, os.Interrupt, syscall.SIGTERM)

		select {
		case <-signals:
			signal.Stop(signals)
		case err := <-sm.startupErrors:
			log.SafeError(sm.logger, context.Background(), "component startup failed", err)
		}
	}

	sm.logger.Log(context.Background(), log.LevelInfo, "shutting down")

	sm.executeShutdown()
}

// executeShutdown stops components in order: HTTP first so no new retry or
// test requests arrive, then the worker so in-flight deliveries drain, then
// telemetry once nothing records anymore.
func (sm *ServerManager) executeShutdown() {
	sm.shutdownOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), sm.shutdownTimeout)
		defer cancel()

		if sm.httpServer != nil {
			if err := sm.httpServer.Shutdown(); err != nil {
				log.SafeError(sm.logger, ctx, "http server shutdown failed", err)
			}
		}

		if sm.worker != nil {
			if err := sm.worker.Shutdown(ctx); err != nil {
				log.SafeError(sm.logger, ctx, "worker shutdown failed", err)
			}
		}

		if sm.telemetry != nil {
			sm.telemetry.Shutdown(ctx)
		}

		if err := sm.logger.Sync(ctx); err != nil {
			log.SafeError(sm.logger, ctx, "logger sync failed", err)
		}

		sm.logger.Log(context.Background(), log.LevelInfo, "shutdown complete")
	})
}
