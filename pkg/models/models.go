package models

import (
	"time"
)

// RetryPolicy describes the backoff applied between attempts of one tracked operation.
// It is selected once per operation and never mutated while retrying.
type RetryPolicy struct {
	InitialDelay time.Duration `json:"initial_delay"`
	Factor       float64       `json:"factor"`
	MaxAttempts  int           `json:"max_attempts"` // 0 means unbounded
	Jitter       bool          `json:"jitter"`
	MinDelay     time.Duration `json:"min_delay"`
	MaxDelay     time.Duration `json:"max_delay"`
}

// CompletionStats holds latency percentiles for how long an operation family takes to finish
type CompletionStats struct {
	P50 time.Duration `json:"p50"`
	P90 time.Duration `json:"p90"`
	P99 time.Duration `json:"p99"`
}

// Valid reports whether the percentiles are ordered p50 <= p90 <= p99
func (s CompletionStats) Valid() bool {
	return s.P50 >= 0 && s.P50 <= s.P90 && s.P90 <= s.P99
}

// PollPhase is the polling temperature derived from elapsed time against CompletionStats
type PollPhase string

const (
	// PhaseHot is active while elapsed < p50
	PhaseHot PollPhase = "HOT"
	// PhaseCooling is active while p50 <= elapsed < p90
	PhaseCooling PollPhase = "COOLING"
	// PhaseCold is active once elapsed >= p90
	PhaseCold PollPhase = "COLD"
)
