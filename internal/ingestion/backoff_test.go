package ingestion

import (
	"testing"
	"time"
)

func TestBackoffDelay(t *testing.T) {
	policy := DefaultBackoffPolicy()

	tests := []struct {
		streak int
		want   time.Duration
	}{
		{streak: 1, want: 10 * time.Minute},
		{streak: 2, want: 20 * time.Minute},
		{streak: 3, want: 40 * time.Minute},
		{streak: 8, want: 1280 * time.Minute},
		{streak: 9, want: 1440 * time.Minute},
		{streak: 40, want: 1440 * time.Minute},
		{streak: 5000, want: 1440 * time.Minute},
	}

	for _, tt := range tests {
		if got := policy.Delay(tt.streak); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.streak, got, tt.want)
		}
	}
}

func TestBackoffDelayIsMonotonic(t *testing.T) {
	policy := DefaultBackoffPolicy()

	prev := time.Duration(0)
	for streak := 1; streak <= 64; streak++ {
		delay := policy.Delay(streak)
		if delay < prev {
			t.Fatalf("delay decreased at streak %d: %v < %v", streak, delay, prev)
		}
		if delay > policy.Max {
			t.Fatalf("delay %v exceeds cap %v at streak %d", delay, policy.Max, streak)
		}
		prev = delay
	}

	if prev != policy.Max {
		t.Errorf("expected delay to settle at cap %v, got %v", policy.Max, prev)
	}
}

func TestSchedulePolicyAfterSuccess(t *testing.T) {
	policy := DefaultSchedulePolicy()

	if got := policy.AfterSuccess(true); got != 10*time.Minute {
		t.Errorf("changed interval = %v, want 10m", got)
	}
	if got := policy.AfterSuccess(false); got != 60*time.Minute {
		t.Errorf("unchanged interval = %v, want 60m", got)
	}
}
