package worker

import "time"

// Backoff returns the delay before the next delivery attempt after
// retryCount recorded failures: base doubled per failure, capped at max.
func Backoff(retryCount int, base, max time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}

	d := base
	for i := 0; i < retryCount; i++ {
		d *= 2
		if d >= max || d < 0 {
			return max
		}
	}

	if d > max {
		return max
	}
	return d
}
