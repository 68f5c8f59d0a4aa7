package mirror

import (
	"fmt"
	"math"
	"time"
)

// RetryPolicy bounds the coordination-service write-with-retry behavior used
// for the root-location node: N attempts with exponential backoff, derived
// from the zookeeper.retries / zookeeper.pause configuration keys.
type RetryPolicy struct {
	MaxAttempts int
	BasePause   time.Duration
}

// DefaultRetryPolicy mirrors the source's HConstants.RETRY_BACKOFF-driven
// default: a handful of attempts with a short base pause.
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 5, BasePause: 100 * time.Millisecond}

// backoff returns the pause before attempt n (0-indexed), doubling each time.
func (p RetryPolicy) backoff(attempt int) time.Duration {
	return time.Duration(float64(p.BasePause) * math.Pow(2, float64(attempt)))
}

// UpsertWithRetry writes payload to path, making up to MaxAttempts attempts
// in total with exponential backoff between them. Exhaustion returns the last error;
// the caller (catalog tracking) is responsible for requesting master
// shutdown when this happens, per the error handling design.
func UpsertWithRetry(session Session, path string, payload []byte, policy RetryPolicy, sleep func(time.Duration)) error {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = DefaultRetryPolicy.MaxAttempts
	}
	if sleep == nil {
		sleep = time.Sleep
	}
	var lastErr error
	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		if attempt > 0 {
			sleep(policy.backoff(attempt))
		}
		if err := session.Upsert(path, payload); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return fmt.Errorf("mirror: write-with-retry exhausted after %d attempts: %w", policy.MaxAttempts, lastErr)
}
