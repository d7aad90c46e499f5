// Package backoff computes retry delays for the notification retry queue.
// The policy is a pure function of the attempt count so it can be tested
// independently of the coordinator's I/O loop.
package backoff

import (
	"math"
	"time"
)

// Policy describes an exponential backoff with a cap.
type Policy struct {
	// InitialDelay is the delay after the first failed attempt.
	InitialDelay time.Duration
	// MaxDelay caps the computed delay.
	MaxDelay time.Duration
	// Multiplier is applied once per additional attempt. Must be > 1.
	Multiplier float64
}

// Delay returns the wait before the next attempt given how many attempts have
// already failed: min(MaxDelay, InitialDelay × Multiplier^(attempt-1)).
// Attempt counts below 1 are treated as 1.
func Delay(attempt int, p Policy) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if p.InitialDelay <= 0 {
		return 0
	}

	mult := p.Multiplier
	if mult <= 1 {
		mult = 1
	}

	factor := math.Pow(mult, float64(attempt-1))
	scaled := float64(p.InitialDelay) * factor

	// Guard against float overflow before converting back to a Duration.
	if p.MaxDelay > 0 && scaled >= float64(p.MaxDelay) {
		return p.MaxDelay
	}
	if scaled >= float64(math.MaxInt64) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(scaled)
}
