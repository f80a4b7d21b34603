package supervisor

import (
	"math"
	"math/rand/v2"
	"time"
)

// Backoff shapes the delay between failed listen attempts.
type Backoff struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// DefaultBackoff starts at the poll interval and caps at 30s.
func DefaultBackoff() Backoff {
	return Backoff{
		InitialDelay: DefaultPollInterval,
		Multiplier:   2.0,
		MaxDelay:     30 * time.Second,
		Jitter:       true,
	}
}

// Delay returns the wait before retry number attempt (1-based).
func (b Backoff) Delay(attempt int, rng *rand.Rand) time.Duration {
	if attempt <= 1 || b.InitialDelay <= 0 {
		return max(b.InitialDelay, 0)
	}
	if b.Multiplier < 1.0 {
		b.Multiplier = 1.0
	}
	delay := float64(b.InitialDelay) * math.Pow(b.Multiplier, float64(attempt-1))
	if b.MaxDelay > 0 && delay > float64(b.MaxDelay) {
		delay = float64(b.MaxDelay)
	}
	if b.Jitter {
		f := 0.5
		if rng != nil {
			f = 0.5 + rng.Float64()
		}
		delay *= f
	}
	return time.Duration(delay)
}
