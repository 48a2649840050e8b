// Package backoff provides pure delay-strategy math for retry mechanisms:
// fixed, linear, exponential, exponential-with-jitter, and fibonacci
// schedules, plus context-aware waiting.
package backoff
