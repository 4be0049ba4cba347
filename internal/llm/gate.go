package llm

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/rahul/archcopilot/internal/failure"
)

// Gate bounds the number of provider calls in flight across every run in the
// process. Construct one and share it by pointer.
type Gate struct {
	sem      *semaphore.Weighted
	width    int64
	inFlight atomic.Int64
}

func NewGate(width int) *Gate {
	if width < 1 {
		width = 1
	}
	return &Gate{sem: semaphore.NewWeighted(int64(width)), width: int64(width)}
}

// Acquire blocks for a slot. It fails with CANCELLED if ctx ends first.
func (g *Gate) Acquire(ctx context.Context) error {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return failure.Wrap(failure.KindCancelled, err, "waiting for provider slot")
	}
	g.inFlight.Add(1)
	return nil
}

func (g *Gate) Release() {
	g.inFlight.Add(-1)
	g.sem.Release(1)
}

// InFlight reports how many slots are held.
func (g *Gate) InFlight() int64 { return g.inFlight.Load() }

func (g *Gate) Width() int64 { return g.width }
