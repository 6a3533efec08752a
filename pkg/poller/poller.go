// Package poller implements latency-profile driven polling: the wait between probes
// widens as elapsed time moves through a chain's p50 and p90, and polling gives up once p99 is reached.
package poller

import (
	"context"
	"errors"
	"time"

	"github.com/speedrun-hq/settlement-tracker/pkg/metrics"
	"github.com/speedrun-hq/settlement-tracker/pkg/models"
	"github.com/speedrun-hq/settlement-tracker/pkg/retry"
	"github.com/speedrun-hq/settlement-tracker/pkg/trackerr"
)

const (
	DefaultMinInterval = 1 * time.Second
	DefaultMaxInterval = 30 * time.Second

	defaultOp = "poller.poll"
)

// PhaseIntervals are the unclamped poll intervals of each phase
var PhaseIntervals = map[models.PollPhase]time.Duration{
	models.PhaseHot:     1 * time.Second,
	models.PhaseCooling: 3 * time.Second,
	models.PhaseCold:    10 * time.Second,
}

// ErrInvalidStats is returned when the percentiles are not ordered p50 <= p90 <= p99
var ErrInvalidStats = errors.New("completion stats must satisfy p50 <= p90 <= p99")

// Probe checks the remote state once. It returns pending=true while the operation is not finished.
type Probe[T any] func(ctx context.Context) (value T, pending bool, err error)

// Options configure a single Poll call
type Options struct {
	Stats       models.CompletionStats
	MinInterval time.Duration // DefaultMinInterval when zero
	MaxInterval time.Duration // DefaultMaxInterval when zero
	Clock       retry.Clock

	// Op and ChainID label the poll attempt metric and the timeout error
	Op      string
	ChainID string
}

// PhaseAt returns the phase active after elapsed time under stats
func PhaseAt(stats models.CompletionStats, elapsed time.Duration) models.PollPhase {
	switch {
	case elapsed < stats.P50:
		return models.PhaseHot
	case elapsed < stats.P90:
		return models.PhaseCooling
	default:
		return models.PhaseCold
	}
}

// Interval returns the phase's default interval clamped to [minInterval, maxInterval]
func Interval(phase models.PollPhase, minInterval, maxInterval time.Duration) time.Duration {
	d, ok := PhaseIntervals[phase]
	if !ok {
		d = PhaseIntervals[models.PhaseCold]
	}
	if d < minInterval {
		d = minInterval
	}
	if maxInterval > 0 && d > maxInterval {
		d = maxInterval
	}
	return d
}

// Phases is the time-budgeted schedule of the poller. Attempts are refused once
// elapsed reaches Stats.P99.
type Phases struct {
	Stats       models.CompletionStats
	MinInterval time.Duration
	MaxInterval time.Duration
	Op          string
}

var _ retry.Schedule = Phases{}

func (p Phases) Allow(_ int, elapsed time.Duration) error {
	if elapsed >= p.Stats.P99 {
		op := p.Op
		if op == "" {
			op = defaultOp
		}
		return trackerr.Timeout(op, elapsed, p.Stats.P99)
	}
	return nil
}

func (p Phases) Delay(_ int, elapsed time.Duration) time.Duration {
	return Interval(PhaseAt(p.Stats, elapsed), p.MinInterval, p.MaxInterval)
}

// Poll invokes probe until it reports a non-pending value, which is returned without further waiting.
// Before every probe it fails with the caller's cancellation cause if ctx is done, or with a
// PollTimeout error once elapsed >= Stats.P99. Probe errors are returned as-is.
func Poll[T any](ctx context.Context, probe Probe[T], opts Options) (T, error) {
	var result T

	if !opts.Stats.Valid() {
		return result, ErrInvalidStats
	}

	schedule := Phases{
		Stats:       opts.Stats,
		MinInterval: opts.MinInterval,
		MaxInterval: opts.MaxInterval,
		Op:          opts.Op,
	}
	if schedule.MinInterval <= 0 {
		schedule.MinInterval = DefaultMinInterval
	}
	if schedule.MaxInterval <= 0 {
		schedule.MaxInterval = DefaultMaxInterval
	}

	op := opts.Op
	if op == "" {
		op = defaultOp
	}

	err := retry.Run(ctx, opts.Clock, schedule, func(ctx context.Context, _ int) (bool, error) {
		metrics.PollAttempts.WithLabelValues(op, opts.ChainID).Inc()

		v, pending, err := probe(ctx)
		if err != nil {
			return false, err
		}
		if pending {
			return false, nil
		}
		result = v
		return true, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}

	return result, nil
}
