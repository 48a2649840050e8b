// Package log defines the structured logging contract used across
// lib-resilience, plus a no-op implementation for tests and a zap-backed
// implementation for services.
package log
