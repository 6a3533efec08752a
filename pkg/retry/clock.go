package retry

import (
	"context"
	"time"
)

// Clock abstracts time so pacing can be driven deterministically in tests
type Clock interface {
	Now() time.Time
	NewTimer(d time.Duration) Timer
}

// Timer is the subset of *time.Timer the scheduler needs
type Timer interface {
	C() <-chan time.Time
	Stop() bool
}

// SystemClock is the wall clock
type SystemClock struct{}

var _ Clock = SystemClock{}

func (SystemClock) Now() time.Time { return time.Now() }

func (SystemClock) NewTimer(d time.Duration) Timer {
	return &systemTimer{t: time.NewTimer(d)}
}

type systemTimer struct {
	t *time.Timer
}

func (s *systemTimer) C() <-chan time.Time { return s.t.C }
func (s *systemTimer) Stop() bool          { return s.t.Stop() }

// orSystem returns clock, or the wall clock when nil
func orSystem(clock Clock) Clock {
	if clock == nil {
		return SystemClock{}
	}
	return clock
}

// Cancelled returns the caller's cancellation cause once ctx is done, nil otherwise
func Cancelled(ctx context.Context) error {
	if ctx.Err() != nil {
		return context.Cause(ctx)
	}
	return nil
}

// Sleep waits for d or until ctx is cancelled, whichever comes first.
// On cancellation it returns context.Cause(ctx) unmodified.
func Sleep(ctx context.Context, clock Clock, d time.Duration) error {
	if err := Cancelled(ctx); err != nil {
		return err
	}
	if d <= 0 {
		return nil
	}

	timer := orSystem(clock).NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return context.Cause(ctx)
	case <-timer.C():
		return nil
	}
}
