package password

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Gate bounds the number of argon2 computations running at the same time.
//
// Every Hasher built without an explicit Gate shares the process-wide gate
// returned by SharedGate, so real hashes and dummy hashes compete for the
// same slots.
type Gate struct {
	sem      *semaphore.Weighted
	size     int
	inFlight atomic.Int64
}

var (
	sharedGateOnce sync.Once
	sharedGate     *Gate
)

// NewGate creates a gate with size slots. Sizes below one are raised to one.
func NewGate(size int) *Gate {
	if size < 1 {
		size = 1
	}
	return &Gate{
		sem:  semaphore.NewWeighted(int64(size)),
		size: size,
	}
}

// SharedGate returns the process-wide gate sized to runtime.NumCPU().
func SharedGate() *Gate {
	sharedGateOnce.Do(func() {
		sharedGate = NewGate(runtime.NumCPU())
	})
	return sharedGate
}

// Acquire blocks until a slot is free or ctx is done.
//
// The returned release func is safe to call more than once; only the first
// call gives the slot back. When ctx ends first, no slot is held and the
// context error is returned.
func (g *Gate) Acquire(ctx context.Context) (func(), error) {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	g.inFlight.Add(1)

	var once sync.Once
	return func() {
		once.Do(func() {
			g.inFlight.Add(-1)
			g.sem.Release(1)
		})
	}, nil
}

// Size reports the number of slots.
func (g *Gate) Size() int {
	return g.size
}

// InFlight reports how many slots are currently held.
func (g *Gate) InFlight() int {
	return int(g.inFlight.Load())
}
