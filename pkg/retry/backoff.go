package retry

import (
	"math"
	"math/rand"
	"time"

	"github.com/speedrun-hq/settlement-tracker/pkg/models"
)

// CalculateBackoff returns the wait after the given 1-based attempt under policy, without jitter.
// The result is clamped to [MinDelay, MaxDelay].
func CalculateBackoff(policy models.RetryPolicy, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	factor := policy.Factor
	if factor < 1 {
		factor = 1
	}

	// Cap before converting to time.Duration to avoid overflow
	maxFloat := float64(math.MaxInt64) / 2
	base := float64(policy.InitialDelay) * math.Pow(factor, float64(attempt-1))
	if base > maxFloat || math.IsInf(base, 0) || math.IsNaN(base) {
		base = maxFloat
	}

	return clamp(time.Duration(base), policy.MinDelay, policy.MaxDelay)
}

// JitteredBackoff is CalculateBackoff randomised to [0.5, 1.5) of the base delay when the policy asks for jitter.
// randFn may be nil.
func JitteredBackoff(policy models.RetryPolicy, attempt int, randFn func() float64) time.Duration {
	delay := CalculateBackoff(policy, attempt)
	if !policy.Jitter {
		return delay
	}
	if randFn == nil {
		randFn = rand.Float64
	}
	jittered := time.Duration(float64(delay) * (0.5 + randFn()))
	return clamp(jittered, policy.MinDelay, policy.MaxDelay)
}

func clamp(d, lo, hi time.Duration) time.Duration {
	if hi > 0 && d > hi {
		d = hi
	}
	if d < lo {
		d = lo
	}
	if d < 0 {
		d = 0
	}
	return d
}
