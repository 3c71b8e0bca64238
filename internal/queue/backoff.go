package queue

import (
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Backoff returns the delay before the retry following attempt n (1-based).
type Backoff func(attempt int) time.Duration

// ExponentialBackoff doubles the delay per attempt starting at initial and
// never exceeding maxDelay. There is no jitter, so delays are reproducible.
func ExponentialBackoff(initial, maxDelay time.Duration) Backoff {
	return func(attempt int) time.Duration {
		b := &backoff.ExponentialBackOff{
			InitialInterval:     initial,
			RandomizationFactor: 0,
			Multiplier:          2,
			MaxInterval:         maxDelay,
		}
		b.Reset()

		d := initial
		for i := 0; i < attempt; i++ {
			d = b.NextBackOff()
		}
		return d
	}
}

// ConstantBackoff always waits d.
func ConstantBackoff(d time.Duration) Backoff {
	return func(int) time.Duration { return d }
}
