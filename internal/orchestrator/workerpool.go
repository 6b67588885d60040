package orchestrator

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// DispatchPool bounds concurrent adapter upstream calls separately from the
// goroutine-per-RPC dispatch the HTTP layer uses, so a slow or stuck
// upstream cannot starve new RPCs from being accepted (SPEC_FULL.md §5).
type DispatchPool struct {
	sem *semaphore.Weighted
}

// NewDispatchPool builds a pool allowing at most size concurrent calls.
func NewDispatchPool(size int64) *DispatchPool {
	if size <= 0 {
		size = 1
	}
	return &DispatchPool{sem: semaphore.NewWeighted(size)}
}

// Run acquires a slot, runs fn, and releases the slot. It returns ctx.Err()
// without running fn if the context is done before a slot is acquired.
func (p *DispatchPool) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.sem.Release(1)
	return fn(ctx)
}
