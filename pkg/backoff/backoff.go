// Package backoff computes retry delays and retries operations with them.
package backoff

import (
	"math"
	"math/rand/v2"
	"time"
)

const (
	defaultInitial = 100 * time.Millisecond
	defaultMax     = 5 * time.Second
)

// Config for exponential backoff. Zero values use defaults.
type Config struct {
	Initial time.Duration // default: 100ms
	Max     time.Duration // default: 5s

	// Jitter spreads each delay uniformly over [d*(1-Jitter), d]. Zero
	// disables it; values outside (0, 1] are clamped.
	Jitter float64
}

// Delay returns the wait before retry number attempt (1-based): initial,
// initial*2, initial*4 and so on up to max, reduced by a random jitter.
func Delay(attempt int, cfg *Config) time.Duration {
	var c Config
	if cfg != nil {
		c = *cfg
	}
	if c.Initial <= 0 {
		c.Initial = defaultInitial
	}
	if c.Max <= 0 {
		c.Max = defaultMax
	}
	if attempt < 1 {
		attempt = 1
	}

	d := math.Min(float64(c.Initial)*math.Pow(2, float64(attempt-1)), float64(c.Max))
	if c.Jitter > 0 {
		d -= d * math.Min(c.Jitter, 1) * rand.Float64()
	}
	return time.Duration(d)
}
