package alert

import "time"

// backoff returns the delay before the next attempt: base doubled per
// attempt already made, capped at max.
func backoff(base, max time.Duration, attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if attempts > 30 {
		return max
	}
	d := base * (1 << uint(attempts))
	if d > max || d < base {
		return max
	}
	return d
}
