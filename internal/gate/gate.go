// Package gate bounds concurrent network operations against one backend.
package gate

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Gate is a counting admission control sized to the backend's declared
// maximum concurrent batch operations. Every network-bound adapter call
// (upload, create, retrieve, download, cancel) holds one slot for its
// duration. CPU-side translation work is not gated.
type Gate struct {
	sem  *semaphore.Weighted
	size int64
}

// New creates a gate with the given number of slots. Size must be positive.
func New(size int) *Gate {
	if size < 1 {
		size = 1
	}
	return &Gate{sem: semaphore.NewWeighted(int64(size)), size: int64(size)}
}

// Acquire blocks until a slot is free or ctx is done.
func (g *Gate) Acquire(ctx context.Context) error {
	return g.sem.Acquire(ctx, 1)
}

// Release returns a slot. Every Acquire must pair with exactly one Release
// on all exit paths, including failure.
func (g *Gate) Release() {
	g.sem.Release(1)
}

// Do runs fn while holding one slot.
func (g *Gate) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer g.sem.Release(1)
	return fn(ctx)
}

// Size returns the configured slot count.
func (g *Gate) Size() int { return int(g.size) }
