package kafka

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sakashimaa/fulfillment-saga/pkg/config"
	"github.com/sakashimaa/fulfillment-saga/pkg/faults"
)

// RetryPolicy is the bounded exponential backoff shared by the producer and
// consumer paths.
type RetryPolicy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	MaxAttempts     uint64
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		Multiplier:      2,
		MaxAttempts:     5,
	}
}

func PolicyFromConfig(cfg config.Retry) RetryPolicy {
	return RetryPolicy{
		InitialInterval: cfg.InitialInterval,
		MaxInterval:     cfg.MaxInterval,
		Multiplier:      cfg.Multiplier,
		MaxAttempts:     cfg.MaxAttempts,
	}
}

func (p RetryPolicy) exponential() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	if p.Multiplier >= 1 {
		b.Multiplier = p.Multiplier
	}
	b.MaxElapsedTime = 0
	b.Reset()

	return b
}

func (p RetryPolicy) attempts() uint64 {
	if p.MaxAttempts == 0 {
		return 1
	}

	return p.MaxAttempts
}

// Retry runs op until it succeeds, returns a non-retryable fault, the attempt
// ceiling is reached or ctx is done. notify may be nil.
func (p RetryPolicy) Retry(ctx context.Context, op func() error, notify func(err error, next time.Duration)) error {
	b := backoff.WithContext(backoff.WithMaxRetries(p.exponential(), p.attempts()-1), ctx)

	return backoff.RetryNotify(func() error {
		err := op()
		if err != nil && !faults.Retryable(err) {
			return backoff.Permanent(err)
		}

		return err
	}, b, notify)
}
