// Package policy protects calls to the remote geocoder: per-call timeouts,
// a token bucket sized to the provider quota, a rolling-window circuit
// breaker and per-request budgets.
package policy

import "errors"

var (
	// ErrCircuitOpen indicates the circuit breaker is currently open.
	ErrCircuitOpen = errors.New("circuit breaker open")
	// ErrRateLimited indicates the provider quota is exhausted for now.
	ErrRateLimited = errors.New("rate limited")
	// ErrBudgetExceeded indicates the request budget has been exhausted.
	ErrBudgetExceeded = errors.New("budget exceeded")
	// ErrInvalidBudget indicates the provided budget is invalid.
	ErrInvalidBudget = errors.New("invalid budget")
)
