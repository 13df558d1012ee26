package circuit

import (
	"math"
	"math/rand"
	"time"
)

// Delay returns the pause before read attempt n (1-based) after n-1
// consecutive failures. A nil rng gives the midpoint of the jitter range.
func (c BackoffConfig) Delay(n int, rng *rand.Rand) time.Duration {
	if n <= 1 || c.InitialDelay <= 0 {
		return max(c.InitialDelay, 0)
	}
	growth := math.Max(c.Multiplier, 1.0)
	d := float64(c.InitialDelay) * math.Pow(growth, float64(n-1))
	if c.MaxDelay > 0 {
		d = math.Min(d, float64(c.MaxDelay))
	}
	if c.Jitter {
		scale := 1.0
		if rng != nil {
			scale = 0.5 + rng.Float64()
		}
		d *= scale
	}
	return time.Duration(d)
}
