package core

import (
	"context"
	"math/rand"
	"time"

	"github.com/pkg/errors"
)

const (
	defaultRetryBaseDelay    = 10 * time.Millisecond
	defaultRetryJitterFactor = 0.3
)

// RetryOnConflict runs fn up to maxAttempts times, retrying only when it fails with an
// ErrConflict kind error. Delays grow exponentially from 10ms, with 30% jitter.
// The last error is returned once attempts are exhausted.
func RetryOnConflict(ctx context.Context, maxAttempts int, fn func(ctx context.Context) error) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			delay := defaultRetryBaseDelay * time.Duration(1<<(attempt-1))
			jitter := rand.Float64() * float64(delay) * defaultRetryJitterFactor //nolint:gosec
			select {
			case <-time.After(delay + time.Duration(jitter)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil || !errors.Is(lastErr, ErrConflict) {
			return lastErr
		}
	}
	return lastErr
}
