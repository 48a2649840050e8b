// Package server coordinates the lifecycle of a delivery service. It runs
// the HTTP operations surface alongside the background delivery worker and
// shuts both down in a safe order when the process receives a termination
// signal, flushing telemetry last.
package server
