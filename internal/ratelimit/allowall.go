package ratelimit

import "context"

// AllowAllLimiter is the development-profile limiter described in
// SPEC_FULL.md §4.2: it answers OK unconditionally, grounded on the
// teacher corpus's AllowAllRateLimiterFactory pattern (a no-op limiter
// wired in when rate limiting should not get in the way of local testing).
type AllowAllLimiter struct{}

func NewAllowAllLimiter() *AllowAllLimiter { return &AllowAllLimiter{} }

func (AllowAllLimiter) Allow(context.Context, string, Policy) (Decision, error) {
	return Decision{Allowed: true}, nil
}
