package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"
)

// LocalLimiter is the in-process hybrid limiter: a token bucket (burst) on
// top of a sliding window (sustained rate), keyed by a map guarded by a
// single mutex. It is used standalone when the rate-limit backend is
// "local" and as the building block the Redis Lua script re-implements
// atomically for multi-process deployments.
type LocalLimiter struct {
	mu      sync.Mutex
	byKey   map[string]*localState
	cleanup time.Time
	clock   func() time.Time
}

type localState struct {
	tokens     float64
	lastRefill time.Time
	hits       []time.Time
}

func NewLocalLimiter() *LocalLimiter {
	return &LocalLimiter{
		byKey: make(map[string]*localState),
		clock: time.Now,
	}
}

func (l *LocalLimiter) Allow(_ context.Context, key string, policy Policy) (Decision, error) {
	now := l.clock()
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cleanup.IsZero() {
		l.cleanup = now.Add(policy.SustainedWindow)
	}
	if now.After(l.cleanup) {
		for k, st := range l.byKey {
			if len(st.hits) == 0 && now.Sub(st.lastRefill) > 2*policy.SustainedWindow {
				delete(l.byKey, k)
			}
		}
		l.cleanup = now.Add(policy.SustainedWindow)
	}

	st, ok := l.byKey[key]
	if !ok {
		st = &localState{tokens: float64(policy.BurstCapacity), lastRefill: now}
		l.byKey[key] = st
	}
	if now.After(st.lastRefill) {
		elapsed := now.Sub(st.lastRefill).Seconds()
		st.tokens = math.Min(float64(policy.BurstCapacity), st.tokens+elapsed*policy.BurstRefillPerSec)
		st.lastRefill = now
	}

	cutoff := now.Add(-policy.SustainedWindow)
	kept := st.hits[:0]
	for _, h := range st.hits {
		if h.After(cutoff) {
			kept = append(kept, h)
		}
	}
	st.hits = kept

	bucketRetry := time.Duration(0)
	if st.tokens < 1 {
		need := 1 - st.tokens
		bucketRetry = time.Duration(math.Ceil(need/policy.BurstRefillPerSec) * float64(time.Second))
	}
	sustainedRetry := time.Duration(0)
	if len(st.hits) >= policy.SustainedLimit {
		sustainedRetry = st.hits[0].Add(policy.SustainedWindow).Sub(now)
		if sustainedRetry < 0 {
			sustainedRetry = 0
		}
	}

	allowed := bucketRetry <= 0 && sustainedRetry <= 0
	if allowed {
		st.tokens--
		st.hits = append(st.hits, now)
		return Decision{Allowed: true}, nil
	}

	retryAfter := bucketRetry
	if sustainedRetry > retryAfter {
		retryAfter = sustainedRetry
	}
	if retryAfter <= 0 {
		retryAfter = time.Second
	}
	return Decision{Allowed: false, RetryAfter: retryAfter}, nil
}
