package syncproto

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/locomote-sh/locomote/internal/locoerrors"
)

// Retry tuning, grounded on the teacher's internal/graph/client.go
// calcBackoff: base 1s, factor 2x, max 60s, ±25% jitter, 5 retries.
const (
	maxRetries     = 5
	baseBackoff    = 1 * time.Second
	maxBackoff     = 60 * time.Second
	backoffFactor  = 2.0
	jitterFraction = 0.25
)

// sleepFunc is the injection point for deterministic tests; it mirrors the
// teacher's own Client.sleepFunc field.
type sleepFunc func(ctx context.Context, d time.Duration) error

func defaultSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// calcBackoff computes exponential backoff with +/-25% jitter for the
// given zero-based attempt number.
func calcBackoff(attempt int) time.Duration {
	backoff := float64(baseBackoff) * math.Pow(backoffFactor, float64(attempt))
	if backoff > float64(maxBackoff) {
		backoff = float64(maxBackoff)
	}

	jitter := backoff * jitterFraction * (rand.Float64()*2 - 1) //nolint:gosec // jitter doesn't need crypto rand
	backoff += jitter

	return time.Duration(backoff)
}

// withRetry runs fn up to maxRetries+1 times, backing off between attempts
// as long as fn's error is retryable (locoerrors.IsRetryable). Non-retryable
// errors return immediately.
func withRetry(ctx context.Context, sleep sleepFunc, fn func() error) error {
	if sleep == nil {
		sleep = defaultSleep
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		lastErr = err

		if !locoerrors.IsRetryable(err) || attempt == maxRetries {
			return err
		}

		if sleepErr := sleep(ctx, calcBackoff(attempt)); sleepErr != nil {
			return errors.Join(err, sleepErr)
		}
	}

	return lastErr
}
