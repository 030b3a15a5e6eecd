package retry

import (
	"context"
	"errors"
	"time"
)

// ErrOffline is returned for attempts made while the environment reports no
// network connectivity. It is retryable: the policy keeps scheduling attempts
// so a sync recovers as soon as connectivity returns.
var ErrOffline = errors.New("network offline")

// Options controls a retried operation.
type Options struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	// InitialDelay is the wait before the first retry.
	InitialDelay time.Duration
	// MaxDelay caps the exponential backoff.
	MaxDelay time.Duration
	// ShouldRetry, when set, can veto a retry for a given error. Used to
	// stop retrying on authentication failures.
	ShouldRetry func(error) bool
	// OnRetry is called before each wait with the attempt number and error.
	OnRetry func(attempt int, err error)
	// Offline, when set, is probed before each attempt. A true result
	// short-circuits the attempt with ErrOffline.
	Offline func() bool
}

// DefaultOptions returns the backoff settings used for catalog network calls.
func DefaultOptions() Options {
	return Options{
		MaxRetries:   3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
	}
}

// Do runs fn with exponential backoff. Cancellation is checked before each
// attempt and during each wait; a cancelled context propagates immediately
// and is never retried. Exhausting MaxRetries returns the last error.
func Do(ctx context.Context, opts Options, fn func(ctx context.Context) error) error {
	_, err := DoWithResult(ctx, opts, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// DoWithResult is Do for operations that produce a value.
func DoWithResult[T any](ctx context.Context, opts Options, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt <= opts.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		var err error
		if opts.Offline != nil && opts.Offline() {
			err = ErrOffline
		} else {
			var result T
			result, err = fn(ctx)
			if err == nil {
				return result, nil
			}
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return zero, err
		}
		if opts.ShouldRetry != nil && !opts.ShouldRetry(err) {
			return zero, err
		}

		lastErr = err
		if attempt == opts.MaxRetries {
			break
		}
		if opts.OnRetry != nil {
			opts.OnRetry(attempt, err)
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(backoff(opts, attempt)):
		}
	}

	return zero, lastErr
}

// backoff computes min(InitialDelay * 2^attempt, MaxDelay).
func backoff(opts Options, attempt int) time.Duration {
	delay := opts.InitialDelay
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}
	for i := 0; i < attempt; i++ {
		delay *= 2
		if opts.MaxDelay > 0 && delay >= opts.MaxDelay {
			return opts.MaxDelay
		}
	}
	if opts.MaxDelay > 0 && delay > opts.MaxDelay {
		delay = opts.MaxDelay
	}
	return delay
}
