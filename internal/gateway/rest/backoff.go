package rest

import (
	"math"
	"time"
)

// BackoffConfig bounds the delay between retries. Zero values use defaults.
type BackoffConfig struct {
	Initial time.Duration // default: 200ms
	Max     time.Duration // default: 5s
}

// delay returns the wait before the given retry. Retry 1 waits Initial,
// retry 2 twice that, capped at Max.
func (c BackoffConfig) delay(retry int) time.Duration {
	initial := 200 * time.Millisecond
	maxDelay := 5 * time.Second
	if c.Initial > 0 {
		initial = c.Initial
	}
	if c.Max > 0 {
		maxDelay = c.Max
	}
	if retry < 1 {
		return initial
	}
	d := float64(initial) * math.Pow(2, float64(retry-1))
	if d > float64(maxDelay) {
		return maxDelay
	}
	return time.Duration(d)
}
