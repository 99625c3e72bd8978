package ingestion

import (
	"time"

	"github.com/sethvargo/go-retry"
)

const (
	// MaxTransientRetryInterval bounds the wait between retries of transient errors.
	MaxTransientRetryInterval = 60 * time.Second

	// InitialRetryInterval is the wait before the first retry.
	InitialRetryInterval = 500 * time.Millisecond

	// RetryJitterPercent randomizes each interval by up to this percentage either way.
	RetryJitterPercent = 50
)

// NewBackoff returns the policy used between transient failures: exponential growth from
// InitialRetryInterval with jitter, every interval capped at MaxTransientRetryInterval.
// It never stops on its own; callers bound total latency through the context.
//
// The cap is applied before jitter so growth saturates instead of overflowing, and again
// after so the jittered interval never exceeds the ceiling.
func NewBackoff() retry.Backoff {
	b := retry.NewExponential(InitialRetryInterval)
	b = retry.WithCappedDuration(MaxTransientRetryInterval, b)
	b = retry.WithJitterPercent(RetryJitterPercent, b)
	return retry.WithCappedDuration(MaxTransientRetryInterval, b)
}
