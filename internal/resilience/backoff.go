package resilience

import (
	"context"
	"time"
)

// LinearBackoff returns the wait before reconnect attempt n (1-based):
// base * n, capped at max. Max of zero means no cap.
func LinearBackoff(attempt int, base, max time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := base * time.Duration(attempt)
	if max > 0 && d > max {
		return max
	}
	return d
}

// Wait sleeps for d or until the context is cancelled. It returns the
// context error on cancellation, nil otherwise.
func Wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
