package llmclient

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy configures spec.md §4.5's bounded exponential backoff:
// network errors, non-2xx responses, and provider-reported errors retry
// up to Attempts times with jittered delays starting at InitialInterval
// and doubling.
type RetryPolicy struct {
	Attempts         int
	InitialInterval  time.Duration
	Multiplier       float64
	RandomizationFactor float64
}

// DefaultRetryPolicy is spec.md §4.5's exact contract: 3 attempts at
// 0.5s / 1s / 2s plus jitter.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts:            3,
		InitialInterval:     500 * time.Millisecond,
		Multiplier:          2.0,
		RandomizationFactor: 0.5,
	}
}

func (p RetryPolicy) newBackOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.Multiplier = p.Multiplier
	b.RandomizationFactor = p.RandomizationFactor
	b.MaxElapsedTime = 0 // bounded by WithMaxRetries below, not elapsed time
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(p.Attempts-1)), ctx)
}
