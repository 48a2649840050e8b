// Package opentelemetry bootstraps OpenTelemetry providers for services that
// embed the resilience and webhook packages. It wires OTLP gRPC exporters for
// metrics and traces, installs the W3C trace context propagator, and exposes
// helpers for carrying trace context across HTTP requests and queue messages.
//
// The metric instruments themselves live next to the code that records them;
// this package only owns provider lifecycle and context propagation.
package opentelemetry
