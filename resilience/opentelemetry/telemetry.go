package opentelemetry

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.34.0"

	"github.com/adstackhq/lib-resilience/resilience/log"
)

var (
	// ErrServiceNameRequired indicates the config has no service name.
	ErrServiceNameRequired = errors.New("telemetry service name is required")
	// ErrCollectorEndpointRequired indicates telemetry is enabled but no
	// collector endpoint was provided.
	ErrCollectorEndpointRequired = errors.New("telemetry collector endpoint is required when telemetry is enabled")
)

// Config describes the telemetry bootstrap for one service instance.
type Config struct {
	ServiceName       string
	ServiceVersion    string
	DeploymentEnv     string
	CollectorEndpoint string
	Enabled           bool
	Logger            log.Logger
}

func (c Config) validate() error {
	if c.ServiceName == "" {
		return ErrServiceNameRequired
	}

	if c.Enabled && c.CollectorEndpoint == "" {
		return ErrCollectorEndpointRequired
	}

	return nil
}

// Telemetry owns the provider lifecycle. When enabled, New registers the
// providers globally so instrument-owning packages pick them up through
// otel.GetMeterProvider and otel.GetTracerProvider.
type Telemetry struct {
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *sdkmetric.MeterProvider

	logger   log.Logger
	shutdown func(ctx context.Context) error
}

// New builds the telemetry providers described by cfg.
//
// With Enabled false it returns working but export-free providers and does
// not touch the globals, so library code recording metrics stays valid in
// tests and in deployments without a collector.
func New(ctx context.Context, cfg Config) (*Telemetry, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}

	if !cfg.Enabled {
		logger.Log(ctx, log.LevelWarn, "telemetry disabled, metrics and traces will not be exported")

		return &Telemetry{
			TracerProvider: sdktrace.NewTracerProvider(),
			MeterProvider:  sdkmetric.NewMeterProvider(),
			logger:         logger,
			shutdown:       func(context.Context) error { return nil },
		}, nil
	}

	rsc := sdkresource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
		semconv.DeploymentEnvironmentName(cfg.DeploymentEnv),
		semconv.TelemetrySDKLanguageGo,
	)

	traceExp, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.CollectorEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize trace exporter: %w", err)
	}

	metricExp, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(cfg.CollectorEndpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize metric exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExp),
		sdktrace.WithResource(rsc),
	)

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(rsc),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp)),
	)

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.Log(ctx, log.LevelInfo, "telemetry initialized",
		log.String("service", cfg.ServiceName),
		log.String("collector", cfg.CollectorEndpoint),
	)

	return &Telemetry{
		TracerProvider: tp,
		MeterProvider:  mp,
		logger:         logger,
		shutdown: func(ctx context.Context) error {
			return errors.Join(
				mp.Shutdown(ctx),
				tp.Shutdown(ctx),
				traceExp.Shutdown(ctx),
				metricExp.Shutdown(ctx),
			)
		},
	}, nil
}

// Shutdown flushes and stops the providers and exporters. It is safe to call
// on a nil receiver.
func (t *Telemetry) Shutdown(ctx context.Context) {
	if t == nil || t.shutdown == nil {
		return
	}

	if err := t.shutdown(ctx); err != nil {
		log.SafeError(t.logger, ctx, "telemetry shutdown reported errors", err)
	}
}
