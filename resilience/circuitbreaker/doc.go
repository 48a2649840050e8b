// Package circuitbreaker provides per-dependency circuit breakers with a
// named registry, so every caller protecting the same logical dependency
// (for example "google_ads_api") shares one state machine.
//
// Each breaker is a CLOSED -> OPEN -> HALF_OPEN state machine. A breaker
// opens either after ConsecutiveFailures consecutive counted failures or
// when the rolling failure rate over a bounded sliding window crosses
// FailureRateThreshold. While open, calls are rejected immediately with an
// *OpenError carrying the remaining cooldown; once RecoveryTimeout elapses
// the next call is let through as a probe in HALF_OPEN. HalfOpenMaxCalls
// consecutive probe successes close the breaker again.
//
// Basic usage:
//
//	registry := circuitbreaker.NewRegistry(logger)
//	breaker := registry.GetOrCreate("google_ads_api", circuitbreaker.HTTPServiceConfig())
//
//	result, err := breaker.Execute(ctx, func(ctx context.Context) (any, error) {
//		return adsClient.FetchCampaigns(ctx, accountID)
//	})
//
// An optional HealthChecker probes unhealthy dependencies in the background
// and resets their breakers once probes succeed, instead of waiting for
// live traffic to pay the cost of discovery.
package circuitbreaker
