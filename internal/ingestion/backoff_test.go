package ingestion

import (
	"testing"
	"time"
)

func TestBackoff_NeverExceedsCeiling(t *testing.T) {
	b := NewBackoff()

	var last time.Duration
	for i := 0; i < 500; i++ {
		d, stop := b.Next()
		if stop {
			t.Fatalf("backoff stopped after %d attempts; transient errors must retry forever", i)
		}
		if d <= 0 {
			t.Fatalf("attempt %d: expected positive interval, got %v", i, d)
		}
		if d > MaxTransientRetryInterval {
			t.Fatalf("attempt %d: interval %v exceeds ceiling %v", i, d, MaxTransientRetryInterval)
		}
		last = d
	}

	// Once saturated, jitter keeps the interval in the upper half of the ceiling.
	if last < MaxTransientRetryInterval/2 {
		t.Errorf("expected saturated interval, got %v", last)
	}
}

func TestBackoff_StartsNearInitialInterval(t *testing.T) {
	d, _ := NewBackoff().Next()

	lo := InitialRetryInterval / 2
	hi := InitialRetryInterval + InitialRetryInterval/2
	if d < lo || d > hi {
		t.Errorf("first interval %v outside [%v, %v]", d, lo, hi)
	}
}

func TestBackoff_Independent(t *testing.T) {
	a := NewBackoff()
	for i := 0; i < 20; i++ {
		a.Next()
	}

	// A fresh policy must not inherit another fetch's progress.
	d, _ := NewBackoff().Next()
	if d > InitialRetryInterval*2 {
		t.Errorf("expected fresh backoff, got %v", d)
	}
}
