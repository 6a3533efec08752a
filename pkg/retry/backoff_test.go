package retry_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/speedrun-hq/settlement-tracker/pkg/models"
	"github.com/speedrun-hq/settlement-tracker/pkg/retry"
)

func TestCalculateBackoff(t *testing.T) {
	policy := models.RetryPolicy{
		InitialDelay: 1 * time.Second,
		Factor:       2,
		MinDelay:     500 * time.Millisecond,
		MaxDelay:     5 * time.Second,
	}

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{0, 1 * time.Second},
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 5 * time.Second},
		{50, 5 * time.Second},
		{5000, 5 * time.Second},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, retry.CalculateBackoff(policy, tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestCalculateBackoffRespectsMinDelay(t *testing.T) {
	policy := models.RetryPolicy{InitialDelay: 10 * time.Millisecond, Factor: 1, MinDelay: time.Second}
	assert.Equal(t, time.Second, retry.CalculateBackoff(policy, 3))
}

func TestJitteredBackoff(t *testing.T) {
	policy := models.RetryPolicy{
		InitialDelay: 2 * time.Second,
		Factor:       1,
		Jitter:       true,
		MinDelay:     1500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
	}

	assert.Equal(t, 1500*time.Millisecond, retry.JitteredBackoff(policy, 1, func() float64 { return 0 }))
	assert.Equal(t, 2*time.Second, retry.JitteredBackoff(policy, 1, func() float64 { return 0.5 }))
	assert.Equal(t, 2500*time.Millisecond, retry.JitteredBackoff(policy, 1, func() float64 { return 0.75 }))

	policy.Jitter = false
	assert.Equal(t, 2*time.Second, retry.JitteredBackoff(policy, 1, func() float64 { return 0 }))
}
