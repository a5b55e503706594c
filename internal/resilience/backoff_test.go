package resilience

import (
	"context"
	"testing"
	"time"
)

func TestLinearBackoff(t *testing.T) {
	tests := []struct {
		name     string
		attempt  int
		base     time.Duration
		max      time.Duration
		expected time.Duration
	}{
		{"first attempt", 1, 5 * time.Second, 0, 5 * time.Second},
		{"second attempt", 2, 5 * time.Second, 0, 10 * time.Second},
		{"third attempt", 3, 5 * time.Second, 0, 15 * time.Second},
		{"capped", 10, 5 * time.Second, 30 * time.Second, 30 * time.Second},
		{"zero attempt treated as first", 0, 5 * time.Second, 0, 5 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := LinearBackoff(tt.attempt, tt.base, tt.max)
			if got != tt.expected {
				t.Errorf("Expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestWait_Completes(t *testing.T) {
	if err := Wait(context.Background(), time.Millisecond); err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
}

func TestWait_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := Wait(ctx, time.Hour)
	if err == nil {
		t.Error("Expected context error")
	}
	if time.Since(start) > time.Second {
		t.Error("Wait did not return promptly on cancellation")
	}
}
