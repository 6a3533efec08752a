package retry

import (
	"time"

	"github.com/speedrun-hq/settlement-tracker/pkg/chains"
	"github.com/speedrun-hq/settlement-tracker/pkg/models"
)

// calibratedShape is the backoff shared by every chain in the calibration table.
// Sharing one shape keeps MaxAttempts monotonic with each chain's p99.
var calibratedShape = models.RetryPolicy{
	InitialDelay: 1 * time.Second,
	Factor:       1.5,
	Jitter:       true,
	MinDelay:     1 * time.Second,
	MaxDelay:     30 * time.Second,
}

// fallbackShape is used for chains missing from the calibration table
var fallbackShape = models.RetryPolicy{
	InitialDelay: 2 * time.Second,
	Factor:       2,
	Jitter:       true,
	MinDelay:     2 * time.Second,
	MaxDelay:     1 * time.Minute,
}

// FallbackHorizon is the wait budget assumed for uncalibrated chains
const FallbackHorizon = 2 * time.Hour

// fallbackStats is the latency profile assumed for uncalibrated chains
var fallbackStats = models.CompletionStats{
	P50: 5 * time.Minute,
	P90: 30 * time.Minute,
	P99: FallbackHorizon,
}

// DefaultQuotePolicy bounds retries of a price-discovery call
var DefaultQuotePolicy = models.RetryPolicy{
	InitialDelay: 200 * time.Millisecond,
	Factor:       2,
	MaxAttempts:  3,
	Jitter:       true,
	MinDelay:     200 * time.Millisecond,
	MaxDelay:     2 * time.Second,
}

// DefaultTransientPolicy paces retries of a single status query across transport failures. It has no attempt cap.
var DefaultTransientPolicy = models.RetryPolicy{
	InitialDelay: 500 * time.Millisecond,
	Factor:       2,
	Jitter:       true,
	MinDelay:     500 * time.Millisecond,
	MaxDelay:     10 * time.Second,
}

// PolicyFor returns the retry policy calibrated to chainID's settlement latency.
// Chains absent from the table get a conservative long-horizon policy.
func PolicyFor(chainID string) models.RetryPolicy {
	c, ok := chains.Get(chainID)
	if !ok {
		return withHorizon(fallbackShape, FallbackHorizon)
	}
	return withHorizon(calibratedShape, c.Stats.P99)
}

// StatsFor returns the completion latency profile for chainID, or the fallback profile
func StatsFor(chainID string) models.CompletionStats {
	c, ok := chains.Get(chainID)
	if !ok {
		return fallbackStats
	}
	return c.Stats
}

func withHorizon(shape models.RetryPolicy, horizon time.Duration) models.RetryPolicy {
	p := shape
	p.MaxAttempts = AttemptsForHorizon(shape, horizon)
	return p
}

// AttemptsForHorizon returns how many attempts the policy needs before the cumulative
// unjittered wait between them reaches horizon. It never returns less than 1.
func AttemptsForHorizon(policy models.RetryPolicy, horizon time.Duration) int {
	attempts := 1
	var waited time.Duration
	for waited < horizon {
		delay := CalculateBackoff(policy, attempts)
		if delay <= 0 {
			break
		}
		waited += delay
		attempts++
	}
	return attempts
}

// TotalWait returns the cumulative unjittered wait a policy spends across all its attempts
func TotalWait(policy models.RetryPolicy) time.Duration {
	var waited time.Duration
	for attempt := 1; attempt < policy.MaxAttempts; attempt++ {
		waited += CalculateBackoff(policy, attempt)
	}
	return waited
}
