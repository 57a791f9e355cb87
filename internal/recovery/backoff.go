package recovery

import "time"

// Backoff computes the exponential retry delay for a 0-indexed attempt:
// base, 2*base, 4*base, ... capped at max. Non-positive base or max pick
// the defaults (2s, 60s).
func Backoff(attempt int, base, max time.Duration) time.Duration {
	if base <= 0 {
		base = 2 * time.Second
	}
	if max <= 0 {
		max = 60 * time.Second
	}
	if attempt < 0 {
		attempt = 0
	}

	delay := base
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}
