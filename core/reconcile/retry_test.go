package reconcile

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"order-sync/core/tracker"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want outcome
	}{
		{"nil", nil, outcomeOK},
		{"conflict", &tracker.APIError{Status: 409}, outcomeConflict},
		{"not found", &tracker.APIError{Status: 404}, outcomeStale},
		{"deleted identifier", &tracker.APIError{Status: 422, Identifier: "PropertyNotFound", Message: "work package could not be found"}, outcomeStale},
		{"rate limit", &tracker.APIError{Status: 429}, outcomeRetryable},
		{"server error", &tracker.APIError{Status: 503}, outcomeRetryable},
		{"client error", &tracker.APIError{Status: 422, Message: "invalid"}, outcomeTerminal},
		// Transport failures are terminal: retrying a create whose response
		// was lost risks a duplicate item.
		{"transport", fmt.Errorf("connection reset"), outcomeTerminal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classify(tt.err))
		})
	}
}

func TestBackoffDelayBounds(t *testing.T) {
	base := 100 * time.Millisecond
	limit := time.Second

	for attempt := 0; attempt < 8; attempt++ {
		d := backoffDelay(attempt, base, limit, &tracker.APIError{Status: 503})
		expected := base << uint(attempt)
		if expected > limit || expected <= 0 {
			expected = limit
		}
		assert.GreaterOrEqual(t, d, expected/2, "attempt %d", attempt)
		assert.LessOrEqual(t, d, expected, "attempt %d", attempt)
	}
}

func TestBackoffDelayHonorsRetryAfter(t *testing.T) {
	err := &tracker.APIError{Status: 429, RetryAfter: 700 * time.Millisecond}
	d := backoffDelay(0, 100*time.Millisecond, time.Second, err)
	assert.Equal(t, 700*time.Millisecond, d)

	// The hint is still capped.
	err.RetryAfter = 10 * time.Second
	d = backoffDelay(0, 100*time.Millisecond, time.Second, err)
	assert.Equal(t, time.Second, d)
}

func TestSleepCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := sleep(ctx, time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
}
