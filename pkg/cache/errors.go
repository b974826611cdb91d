package cache

import (
	"context"
	"errors"
	"time"
)

// ErrTransient marks a storage failure that a second attempt may not
// hit: a dropped Redis connection, a MongoDB primary stepping down, a
// timed out round trip.
var ErrTransient = errors.New("transient storage error")

// RetryableError marks a cache or collection error as safe to retry.
// Backends wrap driver network and timeout errors in it. Codec errors are
// never wrapped, because a malformed snapshot stays malformed.
type RetryableError struct{ Err error }

// Retryable marks err as safe to retry. A nil err stays nil.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &RetryableError{Err: err}
}

func (e *RetryableError) Error() string { return e.Err.Error() }

func (e *RetryableError) Unwrap() error { return e.Err }

// IsRetryable reports whether err, or an error it wraps, was marked with
// Retryable.
func IsRetryable(err error) bool {
	var re *RetryableError
	return errors.As(err, &re)
}

// retryAttempts bounds how often RetryWithBackoff calls fn.
const retryAttempts = 3

// RetryDelay is the wait after the first failed attempt. Each further
// wait is twice as long.
var RetryDelay = 200 * time.Millisecond

// RetryWithBackoff calls fn until it succeeds, returns an error not
// marked with Retryable, or has run retryAttempts times. Cancelling ctx
// ends a pending wait with ctx.Err().
func RetryWithBackoff(ctx context.Context, fn func() error) error {
	delay := RetryDelay
	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil || !IsRetryable(err) || attempt == retryAttempts {
			return err
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay *= 2
	}
}
