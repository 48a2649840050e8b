package opentelemetry

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// InjectHTTPContext writes the active trace context from ctx into headers so
// outbound HTTP requests carry W3C traceparent/tracestate.
func InjectHTTPContext(headers *http.Header, ctx context.Context) {
	carrier := propagation.HeaderCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)

	for key, values := range carrier {
		if len(values) > 0 {
			headers.Set(key, values[0])
		}
	}
}

// InjectQueueContext returns the active trace context from ctx as a flat
// string map suitable for broker message headers.
func InjectQueueContext(ctx context.Context) map[string]string {
	carrier := propagation.HeaderCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)

	headers := make(map[string]string, len(carrier))

	for key, values := range carrier {
		if len(values) > 0 {
			headers[key] = values[0]
		}
	}

	return headers
}

// ExtractQueueContext restores trace context from broker message headers.
// Non-string header values are skipped, which makes it safe to feed amqp
// tables directly.
func ExtractQueueContext(ctx context.Context, headers map[string]any) context.Context {
	if len(headers) == 0 {
		return ctx
	}

	carrier := propagation.HeaderCarrier{}

	for key, value := range headers {
		if str, ok := value.(string); ok {
			carrier.Set(key, str)
		}
	}

	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}
