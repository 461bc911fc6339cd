package reconcile

import (
	"context"
	"math/rand"
	"time"

	"order-sync/core/tracker"
)

// outcome classifies one remote attempt. Conflicts and stale references are
// separated from plain retryables because they recover differently: a
// conflict needs a fresh version token, a stale reference needs a fallback
// create.
type outcome int

const (
	outcomeOK outcome = iota
	outcomeRetryable
	outcomeConflict
	outcomeStale
	outcomeTerminal
)

func classify(err error) outcome {
	switch {
	case err == nil:
		return outcomeOK
	case tracker.IsConflict(err):
		return outcomeConflict
	case tracker.IsNotFound(err):
		return outcomeStale
	case tracker.IsRetryable(err):
		return outcomeRetryable
	default:
		return outcomeTerminal
	}
}

// backoffDelay computes the sleep before retry attempt n (0-based).
// A server Retry-After hint wins; otherwise exponential growth from the base
// with a hard cap, jittered into [d/2, d) so synchronized workers spread out.
func backoffDelay(attempt int, base, cap time.Duration, err error) time.Duration {
	if hint := tracker.RetryAfterHint(err); hint > 0 {
		if cap > 0 && hint > cap {
			return cap
		}
		return hint
	}
	d := base << uint(attempt)
	if cap > 0 && (d > cap || d <= 0) {
		d = cap
	}
	if d <= 1 {
		return d
	}
	half := int64(d / 2)
	return time.Duration(half + rand.Int63n(half))
}

// sleep waits out a backoff delay, returning early on cancellation.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
