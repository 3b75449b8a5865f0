// Package retry provides the bounded fixed-delay retry helper shared by
// every call against the external portal. Provider sends are never
// routed through it; a failed send is terminal for its job.
package retry

import (
	"context"
	"time"
)

// Do runs op up to attempts times, sleeping delay between attempts.
// The first successful result is returned; after the last attempt the
// last error is surfaced. Context cancellation aborts the wait.
func Do[T any](ctx context.Context, attempts int, delay time.Duration, op func(ctx context.Context) (T, error)) (T, error) {
	var (
		result T
		err    error
	)

	if attempts < 1 {
		attempts = 1
	}

	for attempt := 0; attempt < attempts; attempt++ {
		result, err = op(ctx)
		if err == nil {
			return result, nil
		}

		if attempt < attempts-1 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return result, ctx.Err()
			}
		}
	}

	return result, err
}
