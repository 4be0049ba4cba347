package store

import (
	"context"
	"log"
	"time"
)

// Pruner deletes submissions older than a cutoff.
type Pruner interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Janitor periodically removes submissions past their retention.
type Janitor struct {
	Store     Pruner
	Retention time.Duration
	Interval  time.Duration
	now       func() time.Time
}

func NewJanitor(store Pruner, retention, interval time.Duration) *Janitor {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Janitor{Store: store, Retention: retention, Interval: interval, now: time.Now}
}

// Start sweeps once immediately and then every Interval until ctx ends. A
// non-positive retention keeps everything.
func (j *Janitor) Start(ctx context.Context) {
	if j.Retention <= 0 {
		return
	}
	ticker := time.NewTicker(j.Interval)
	defer ticker.Stop()

	log.Printf("Retention janitor started (retention %s)", j.Retention)
	j.Sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.Sweep(ctx)
		}
	}
}

// Sweep performs one pass and returns the number of rows removed.
func (j *Janitor) Sweep(ctx context.Context) int64 {
	cutoff := j.now().Add(-j.Retention)
	n, err := j.Store.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		log.Printf("Error sweeping submissions: %v", err)
		return 0
	}
	if n > 0 {
		log.Printf("Removed %d submissions older than %s", n, cutoff.Format(time.RFC3339))
	}
	return n
}
