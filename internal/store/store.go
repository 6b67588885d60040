// Package store implements the session-store contract from SPEC_FULL.md
// §4.1: a durable map from session id to session record supporting
// create-with-TTL, get, and a compare-and-swap update. Two implementations
// satisfy the contract: an in-memory reference store and a Redis-backed
// store shaped like a single-row conditional write with row-level TTL.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/haloverify/verifysvc/internal/domain"
)

// ErrNotFound is returned by Get and Update when the session does not exist
// or has expired; per invariant 4, an expired session is indistinguishable
// from an absent one.
var ErrNotFound = errors.New("session: not found")

// ErrConflict is returned by Update when the record's version changed
// between the read and the write; callers are expected to retry.
var ErrConflict = errors.New("session: conflicting update")

// Mutator receives the current session and returns the session to persist.
// It must not retain or mutate the record it was given; use Session.Clone.
// Returning a non-nil error aborts the update without writing.
type Mutator func(current domain.Session) (domain.Session, error)

// SessionStore is the contract every store implementation satisfies.
type SessionStore interface {
	// Create allocates a fresh 128-bit session id and persists record under
	// it with the given TTL, returning the id.
	Create(ctx context.Context, record domain.Session, ttl time.Duration) (uuid.UUID, error)
	// Get returns the current record, or ErrNotFound if absent or expired.
	Get(ctx context.Context, id uuid.UUID) (domain.Session, error)
	// Update applies mutator to the current record and writes the result
	// if and only if no other writer has changed the version in between.
	Update(ctx context.Context, id uuid.UUID, mutator Mutator) (domain.Session, error)
}

// applyMutator runs the mutator and stamps the bookkeeping fields every
// implementation needs to apply identically: version increments by exactly
// one per invariant 5, and the mutator operates on a defensive clone.
func applyMutator(current domain.Session, mutator Mutator) (domain.Session, error) {
	next, err := mutator(current.Clone())
	if err != nil {
		return domain.Session{}, err
	}
	next.Version = current.Version + 1
	return next, nil
}
