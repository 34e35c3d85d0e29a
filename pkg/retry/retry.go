// Package retry provides the generic retried-call wrapper used around
// provider requests.
package retry

import (
	"context"
	"math/rand"
	"time"
)

type Options struct {
	MaxAttempts int           // total attempts, including the first
	BaseDelay   time.Duration // delay before the second attempt
	MaxDelay    time.Duration // cap for the escalating delay
	// Retryable decides whether an error is worth another attempt. Nil
	// retries everything.
	Retryable func(error) bool
}

func (o Options) withDefaults() Options {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = 500 * time.Millisecond
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = 30 * time.Second
	}
	return o
}

// Do runs fn up to MaxAttempts times with exponential backoff and jitter,
// returning nil on the first success. Non-retryable errors and context
// cancellation end the attempts early; otherwise the last error is
// surfaced to the caller.
func Do(ctx context.Context, opts Options, fn func() error) error {
	opts = opts.withDefaults()

	var err error
	for attempt := 0; attempt < opts.MaxAttempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if opts.Retryable != nil && !opts.Retryable(err) {
			return err
		}
		if attempt == opts.MaxAttempts-1 {
			return err
		}

		delay := opts.BaseDelay * time.Duration(1<<attempt)
		if delay > opts.MaxDelay {
			delay = opts.MaxDelay
		}
		// Up to 25% jitter so concurrent retries don't align.
		delay += time.Duration(rand.Int63n(int64(delay/4) + 1))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return err
}
