package worker

import (
	"context"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"
)

// retry executes fn up to maxAttempts times with jittered exponential backoff.
// Base delay doubles on each attempt: 200ms -> 400ms -> 800ms, etc.
func retry(ctx context.Context, log logrus.FieldLogger, what string, maxAttempts int, baseDelay time.Duration, fn func() error) error {
	var lastErr error
	delay := baseDelay
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if attempt == maxAttempts || ctx.Err() != nil {
			break
		}
		log.WithError(lastErr).Debugf("%s failed (attempt %d/%d), retrying", what, attempt, maxAttempts)
		var jitter time.Duration
		if half := int64(delay / 2); half > 0 {
			jitter = time.Duration(rand.Int63n(half))
		}
		select {
		case <-ctx.Done():
			return lastErr
		case <-time.After(delay + jitter):
		}
		delay *= 2
	}
	return lastErr
}
