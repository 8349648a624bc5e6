package engine

import (
	"math"
	"math/rand"
	"time"

	"github.com/aobuilder/aob/pkg/spec"
)

// Delay computes the backoff before attempt's retry:
// min(max_delay, base_delay * backoff_factor^(attempt-1)), jittered by
// a uniform(0.5, 1.0) multiplier when the policy enables it.
func Delay(r spec.RetryPolicy, attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	base := time.Duration(r.BaseDelayMS) * time.Millisecond
	max := time.Duration(r.MaxDelayMS) * time.Millisecond

	var delay time.Duration
	switch r.Backoff {
	case "constant":
		delay = base
	case "linear":
		delay = base * time.Duration(attempt)
	default: // "exponential", and the zero value
		multiplier := math.Pow(2, float64(attempt-1))
		delay = time.Duration(float64(base) * multiplier)
	}

	if delay > max {
		delay = max
	}

	if r.Jitter {
		delay = time.Duration(float64(delay) * (0.5 + rand.Float64()*0.5))
	}

	return delay
}

// ShouldRetry reports whether attempt may still be retried under r.
func ShouldRetry(r spec.RetryPolicy, attempt int) bool {
	return attempt < r.MaxAttempts
}
