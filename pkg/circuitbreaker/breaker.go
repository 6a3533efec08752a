// Package circuitbreaker fails relay requests fast while an endpoint keeps failing.
package circuitbreaker

import (
	"sync"
	"time"

	"github.com/speedrun-hq/settlement-tracker/pkg/logger"
	"github.com/speedrun-hq/settlement-tracker/pkg/metrics"
)

// Settings configure a breaker
type Settings struct {
	Enabled       bool
	FailThreshold int           // failures within FailureWindow that trip the breaker
	FailureWindow time.Duration // failures older than this are forgotten
	ResetTimeout  time.Duration // how long the breaker stays open before a trial request
}

// State is a snapshot of a breaker, as reported on /status
type State struct {
	Name          string    `json:"name"`
	Enabled       bool      `json:"enabled"`
	Open          bool      `json:"open"`
	FailureCount  int       `json:"failure_count"`
	FailThreshold int       `json:"fail_threshold"`
	LastFailure   time.Time `json:"last_failure,omitempty"`
	TripTime      time.Time `json:"trip_time,omitempty"`
}

// CircuitBreaker implements the circuit breaker pattern for one relay endpoint
type CircuitBreaker struct {
	name     string
	settings Settings
	logger   logger.Logger
	now      func() time.Time

	failureCount int
	lastFailure  time.Time
	tripped      bool
	tripTime     time.Time
	mu           sync.Mutex
}

// NewCircuitBreaker creates a new circuit breaker named after the endpoint it guards
func NewCircuitBreaker(name string, settings Settings, log logger.Logger) *CircuitBreaker {
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	return &CircuitBreaker{
		name:     name,
		settings: settings,
		logger:   log,
		now:      time.Now,
	}
}

// WithClock replaces the time source; used by tests
func (cb *CircuitBreaker) WithClock(now func() time.Time) *CircuitBreaker {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.now = now
	return cb
}

// Name returns the endpoint name
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// RecordFailure records a failure and trips the circuit if threshold is reached.
// It reports whether the circuit is open afterwards.
func (cb *CircuitBreaker) RecordFailure() bool {
	if !cb.settings.Enabled {
		return false
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.now()

	// If the circuit is already tripped, check if it's time to try again
	if cb.tripped {
		if now.Sub(cb.tripTime) <= cb.settings.ResetTimeout {
			return true
		}
		cb.logger.Info("Circuit breaker %s: attempting to reset after timeout", cb.name)
		cb.close()
	}

	// Reset failure count if outside window
	if now.Sub(cb.lastFailure) > cb.settings.FailureWindow {
		cb.failureCount = 0
	}

	cb.failureCount++
	cb.lastFailure = now

	if cb.failureCount >= cb.settings.FailThreshold {
		cb.tripped = true
		cb.tripTime = now
		metrics.RelayCircuitOpen.WithLabelValues(cb.name).Set(1)
		cb.logger.Error("Circuit breaker %s tripped: %d failures in window", cb.name, cb.failureCount)
		return true
	}

	return false
}

// RecordSuccess clears the failure count; a successful trial request closes an expired circuit
func (cb *CircuitBreaker) RecordSuccess() {
	if !cb.settings.Enabled {
		return
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.tripped && cb.now().Sub(cb.tripTime) <= cb.settings.ResetTimeout {
		return
	}
	cb.close()
}

// IsOpen returns true if the circuit is open (tripped)
func (cb *CircuitBreaker) IsOpen() bool {
	if !cb.settings.Enabled {
		return false
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	// If tripped but reset timeout has passed, let a trial request through
	if cb.tripped && cb.now().Sub(cb.tripTime) > cb.settings.ResetTimeout {
		cb.close()
		return false
	}

	return cb.tripped
}

// Reset manually resets the circuit breaker
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.close()
}

// GetState returns a snapshot of the breaker
func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return State{
		Name:          cb.name,
		Enabled:       cb.settings.Enabled,
		Open:          cb.settings.Enabled && cb.tripped && cb.now().Sub(cb.tripTime) <= cb.settings.ResetTimeout,
		FailureCount:  cb.failureCount,
		FailThreshold: cb.settings.FailThreshold,
		LastFailure:   cb.lastFailure,
		TripTime:      cb.tripTime,
	}
}

// close must be called with mu held
func (cb *CircuitBreaker) close() {
	cb.tripped = false
	cb.failureCount = 0
	metrics.RelayCircuitOpen.WithLabelValues(cb.name).Set(0)
}
