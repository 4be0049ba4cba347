package agent

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/rahul/archcopilot/pkg/config"
)

// RetryPolicy bounds how hard the executor works for one step.
type RetryPolicy struct {
	StepTimeout    time.Duration
	MaxRetries     int
	OutputRetries  int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
	Jitter         float64
}

// PolicyFromConfig copies the retry settings out of the pipeline config.
func PolicyFromConfig(c config.PipelineConfig) RetryPolicy {
	return RetryPolicy{
		StepTimeout:    c.StepTimeout,
		MaxRetries:     c.MaxRetries,
		OutputRetries:  c.OutputRetries,
		InitialBackoff: c.InitialBackoff,
		MaxBackoff:     c.MaxBackoff,
		Multiplier:     c.BackoffMultiplier,
		Jitter:         c.Jitter,
	}
}

// DefaultPolicy mirrors the pipeline defaults.
func DefaultPolicy() RetryPolicy {
	return PolicyFromConfig(config.Default().Pipeline)
}

// NewBackOff returns the transport retry schedule for one step: at most
// MaxRetries waits growing from InitialBackoff by Multiplier up to MaxBackoff,
// each spread by ±Jitter. It returns backoff.Stop once the retries are spent
// or ctx has ended.
func (p RetryPolicy) NewBackOff(ctx context.Context) backoff.BackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     p.InitialBackoff,
		RandomizationFactor: p.Jitter,
		Multiplier:          p.Multiplier,
		MaxInterval:         p.MaxBackoff,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	if b.InitialInterval <= 0 {
		b.InitialInterval = backoff.DefaultInitialInterval
	}
	if b.Multiplier < 1 {
		b.Multiplier = 2
	}
	if b.MaxInterval <= 0 {
		b.MaxInterval = backoff.DefaultMaxInterval
	}
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(max(p.MaxRetries, 0))), ctx)
}

// sleepContext waits for d or until ctx ends.
func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
