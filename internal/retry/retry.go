// Package retry runs fallible calls again with exponential backoff. Alert
// delivery wraps webhook posts in it: transient failures get another try,
// anything marked Permanent surfaces immediately.
package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// PermanentError marks an error as not worth retrying. Do unwraps it and
// returns the inner error untouched.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so Do stops immediately instead of burning attempts.
func Permanent(err error) error { return &PermanentError{Err: err} }

// backoff returns the sleep before the retry after attempt: base doubled
// per attempt, spread with +-25% jitter.
func backoff(base time.Duration, attempt int) time.Duration {
	d := base << attempt
	if d <= 0 {
		return base
	}
	quarter := int64(d / 4)
	if quarter <= 0 {
		return d
	}
	return d - time.Duration(quarter) + time.Duration(rand.Int63n(2*quarter+1))
}

// Do invokes fn until it succeeds, returns a permanent error, exhausts
// maxAttempts, or ctx ends while waiting between tries. On exhaustion the
// error from the last attempt comes back.
func Do(ctx context.Context, maxAttempts int, base time.Duration, fn func() error) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}

		var perm *PermanentError
		if errors.As(err, &perm) {
			return perm.Err
		}

		if attempt == maxAttempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff(base, attempt)):
		}
	}
	return err
}
