package util

import (
	"context"
	"math/rand"
	"time"
)

// Retry calls fn up to maxAttempts times with exponential backoff starting at
// baseDelay. Each wait gets up to 50% random jitter so callers that fail at
// the same moment do not retry in lockstep. Returns nil on the first
// successful call, or the last error if all attempts fail; context
// cancellation is honored between retries.
func Retry(ctx context.Context, maxAttempts int, baseDelay time.Duration, fn func() error) error {
	var err error
	delay := baseDelay

	for attempt := 0; attempt < maxAttempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}

		// Don't sleep after the last failed attempt.
		if attempt < maxAttempts-1 {
			wait := delay
			if half := delay / 2; half > 0 {
				wait += time.Duration(rand.Int63n(int64(half)))
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
			delay *= 2
		}
	}

	return err
}
