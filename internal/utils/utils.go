// Package utils holds small timing and string helpers.
package utils

import (
	"context"
	"time"
)

// After is swapped in tests.
var after = time.After

// WaitFor pauses for d or until ctx ends, whichever comes first.
func WaitFor(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-after(d):
		return nil
	}
}

// Backoff returns base doubled attempt times, capped at max.
func Backoff(attempt int, base, max time.Duration) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}

// Abbreviate limits s to max runes in total, replacing the tail with "..."
// when it has to cut.
func Abbreviate(s string, max int) string {
	const marker = "..."
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	if max <= len(marker) {
		return string(runes[:max])
	}
	return string(runes[:max-len(marker)]) + marker
}
