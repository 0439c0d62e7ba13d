// Package retry wraps outbound calls with bounded exponential backoff.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy describes how a call site retries transient failures. A zero
// field falls back to the corresponding default.
type Policy struct {
	InitialInterval time.Duration
	Multiplier      float64
	MaxInterval     time.Duration
	MaxElapsedTime  time.Duration
	// MaxAttempts bounds the total number of attempts. 0 means the
	// policy is bounded by MaxElapsedTime only.
	MaxAttempts uint64
}

// DefaultPolicy returns the policy used for ASVO API calls.
func DefaultPolicy() Policy {
	return Policy{
		InitialInterval: time.Second,
		Multiplier:      2,
		MaxInterval:     30 * time.Second,
		MaxElapsedTime:  10 * time.Minute,
	}
}

// Permanent marks err as non-retryable. Do stops immediately and returns
// the wrapped error.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Do runs op, retrying transient failures according to p. It stops on
// success, on a Permanent error, when the policy is exhausted, or when
// ctx is cancelled.
func Do(ctx context.Context, p Policy, op func() error) error {
	eb := backoff.NewExponentialBackOff()

	if p.InitialInterval > 0 {
		eb.InitialInterval = p.InitialInterval
	}

	if p.Multiplier > 0 {
		eb.Multiplier = p.Multiplier
	}

	if p.MaxInterval > 0 {
		eb.MaxInterval = p.MaxInterval
	}

	eb.MaxElapsedTime = p.MaxElapsedTime

	var b backoff.BackOff = backoff.WithContext(eb, ctx)

	if p.MaxAttempts > 0 {
		b = backoff.WithMaxRetries(b, p.MaxAttempts-1)
	}

	return backoff.Retry(op, b)
}
