package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/haloverify/verifysvc/internal/observability"
	"github.com/haloverify/verifysvc/internal/store"
)

// maxCASAttempts bounds the CAS-conflict retry loop per SPEC_FULL.md §5:
// "a bounded schedule (3 attempts with jittered back-off)".
const maxCASAttempts = 3

// retryCAS runs update, retrying on store.ErrConflict up to maxCASAttempts
// times with jittered exponential back-off. Any other error, including
// store.ErrNotFound, stops the loop immediately.
func retryCAS[T any](ctx context.Context, operation string, update func() (T, error)) (T, error) {
	attempt := 0
	return backoff.Retry(ctx, func() (T, error) {
		attempt++
		if attempt > 1 {
			observability.RecordCASRetry(ctx, operation)
		}
		result, err := update()
		if err != nil {
			if errors.Is(err, store.ErrConflict) {
				return result, err
			}
			return result, backoff.Permanent(err)
		}
		return result, nil
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(maxCASAttempts),
	)
}

// retrySenderCall retries a sender adapter call on transient upstream
// failures (those wrapped in sender.ErrUnavailable, surfaced here via
// isTransient) with a short bounded jittered back-off; any other error is
// permanent.
func retrySenderCall[T any](ctx context.Context, maxAttempts uint, isTransient func(error) bool, call func() (T, error)) (T, error) {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = 50 * time.Millisecond
	eb.MaxInterval = 2 * time.Second

	return backoff.Retry(ctx, func() (T, error) {
		result, err := call()
		if err != nil {
			if isTransient(err) {
				return result, err
			}
			return result, backoff.Permanent(err)
		}
		return result, nil
	},
		backoff.WithBackOff(eb),
		backoff.WithMaxTries(maxAttempts),
	)
}
