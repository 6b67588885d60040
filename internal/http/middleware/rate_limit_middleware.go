package middleware

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/haloverify/verifysvc/internal/http/response"
	"github.com/haloverify/verifysvc/internal/observability"
	"github.com/haloverify/verifysvc/internal/ratelimit"
)

// FailureMode decides what happens when the rate-limit backend itself is
// unreachable.
type FailureMode string

const (
	FailOpen   FailureMode = "fail_open"
	FailClosed FailureMode = "fail_closed"
)

// RateLimiter is the HTTP-layer throttle that sits in front of the wire
// surface, independent of the domain-level limiters the orchestrator
// consults per call (internal/ratelimit.Engine): this one protects the
// process from raw request volume by client IP, keyed and evaluated by the
// same ratelimit.Limiter contract so both layers share one hybrid
// token-bucket/sliding-window algorithm and, in production, one Redis
// backend.
type RateLimiter struct {
	limiter ratelimit.Limiter
	policy  ratelimit.Policy
	mode    FailureMode
	scope   string
	keyFunc func(r *http.Request) string
}

// NewRateLimiter builds an HTTP rate limiter scoped to name, keyed by
// client IP by default.
func NewRateLimiter(limiter ratelimit.Limiter, policy ratelimit.Policy, mode FailureMode, scope string) *RateLimiter {
	if scope == "" {
		scope = "api"
	}
	return &RateLimiter{limiter: limiter, policy: policy, mode: mode, scope: scope, keyFunc: clientIPKey}
}

// WithKeyFunc overrides the default client-IP key function.
func (rl *RateLimiter) WithKeyFunc(f func(r *http.Request) string) *RateLimiter {
	rl.keyFunc = f
	return rl
}

func (rl *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := rl.keyFunc(r)
			if key == "" {
				key = clientIPKey(r)
			}

			decision, err := rl.limiter.Allow(r.Context(), key, rl.policy)
			if err != nil {
				observability.RecordHTTPRateLimitDecision(r.Context(), rl.scope, "backend_error")
				if rl.mode == FailOpen {
					slog.WarnContext(r.Context(), "rate limiter backend unavailable, allowing request",
						"scope", rl.scope, "mode", string(rl.mode), "error", err.Error())
					next.ServeHTTP(w, r)
					return
				}
				w.Header().Set("Retry-After", retryAfterHeader(rl.policy.SustainedWindow))
				response.Error(w, r, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests", nil)
				return
			}

			if !decision.Allowed {
				observability.RecordHTTPRateLimitDecision(r.Context(), rl.scope, "deny")
				w.Header().Set("Retry-After", retryAfterHeader(decision.RetryAfter))
				response.Error(w, r, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests", nil)
				return
			}
			observability.RecordHTTPRateLimitDecision(r.Context(), rl.scope, "allow")
			next.ServeHTTP(w, r)
		})
	}
}

func clientIPKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func retryAfterHeader(d time.Duration) string {
	if d <= 0 {
		return "1"
	}
	seconds := int(d.Round(time.Second).Seconds())
	if seconds <= 0 {
		seconds = 1
	}
	return fmt.Sprintf("%d", seconds)
}
