package retry

import (
	"context"
	"errors"
	"time"

	"github.com/speedrun-hq/settlement-tracker/pkg/models"
)

// ErrAttemptsExhausted is returned by Run when an attempt budget runs out before the operation is done
var ErrAttemptsExhausted = errors.New("retry attempts exhausted")

// Schedule paces the attempts of one operation. It is either attempt-budgeted (Backoff)
// or time-budgeted (the adaptive poller's phases).
type Schedule interface {
	// Allow is checked before attempt n (0-based) with the time elapsed since the first attempt started
	Allow(n int, elapsed time.Duration) error
	// Delay is the wait after attempt n did not finish the operation; elapsed is the value Allow saw for n
	Delay(n int, elapsed time.Duration) time.Duration
}

// Attempt is one try of a scheduled operation. It returns done once the operation has
// produced its terminal value, or an error to stop the schedule.
type Attempt func(ctx context.Context, n int) (done bool, err error)

// Run drives attempt sequentially under s until it is done, fails, the schedule refuses
// another attempt or ctx is cancelled. Cancellation is checked before every attempt and
// interrupts any wait immediately, returning context.Cause(ctx).
func Run(ctx context.Context, clock Clock, s Schedule, attempt Attempt) error {
	clock = orSystem(clock)
	start := clock.Now()

	for n := 0; ; n++ {
		if err := Cancelled(ctx); err != nil {
			return err
		}

		elapsed := clock.Now().Sub(start)
		if err := s.Allow(n, elapsed); err != nil {
			return err
		}

		done, err := attempt(ctx, n)
		if err != nil {
			return err
		}
		if done {
			return nil
		}

		if err := Sleep(ctx, clock, s.Delay(n, elapsed)); err != nil {
			return err
		}
	}
}

// Backoff is an attempt-budgeted exponential schedule
type Backoff struct {
	Policy models.RetryPolicy
	Rand   func() float64 // jitter source, nil for math/rand
}

var _ Schedule = Backoff{}

func (b Backoff) Allow(n int, _ time.Duration) error {
	if b.Policy.MaxAttempts > 0 && n >= b.Policy.MaxAttempts {
		return ErrAttemptsExhausted
	}
	return nil
}

func (b Backoff) Delay(n int, _ time.Duration) time.Duration {
	return JitteredBackoff(b.Policy, n+1, b.Rand)
}

// Fixed is an unbounded schedule with a constant pause between attempts
type Fixed struct {
	Interval time.Duration
}

var _ Schedule = Fixed{}

func (Fixed) Allow(int, time.Duration) error { return nil }

func (f Fixed) Delay(int, time.Duration) time.Duration { return f.Interval }
