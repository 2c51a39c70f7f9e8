package backoff

import (
	"context"
	"testing"
	"time"
)

func TestComputeWithRand(t *testing.T) {
	policy := Policy{Base: 5}

	tests := []struct {
		attempt int
		random  float64
		want    time.Duration
	}{
		{0, 0, 5 * time.Second},
		{1, 0, 10 * time.Second},
		{2, 0, 20 * time.Second},
		{3, 0, 40 * time.Second},
		{0, 0.5, 5500 * time.Millisecond},
		{2, 0.25, 20250 * time.Millisecond},
	}
	for _, tt := range tests {
		if got := ComputeWithRand(policy, tt.attempt, tt.random); got != tt.want {
			t.Errorf("ComputeWithRand(attempt=%d, r=%v) = %v, want %v", tt.attempt, tt.random, got, tt.want)
		}
	}
}

func TestComputeCap(t *testing.T) {
	policy := Policy{Base: 5, Max: 30}
	if got := ComputeWithRand(policy, 10, 0.9); got != 30*time.Second {
		t.Errorf("capped delay = %v, want 30s", got)
	}
}

func TestComputeJitterBounds(t *testing.T) {
	policy := DefaultPolicy()
	for attempt := 0; attempt < 5; attempt++ {
		lo := ComputeWithRand(policy, attempt, 0)
		for i := 0; i < 50; i++ {
			d := Compute(policy, attempt)
			if d < lo || d > lo+time.Second {
				t.Fatalf("attempt %d delay %v outside [%v, %v]", attempt, d, lo, lo+time.Second)
			}
		}
	}
}

func TestSleepWithContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := SleepWithContext(ctx, time.Minute); err != context.Canceled {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestSleepWithContextZero(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := SleepWithContext(ctx, 0); err != nil {
		t.Errorf("zero duration should not consult context, got %v", err)
	}
}
