package poller_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/speedrun-hq/settlement-tracker/pkg/models"
	"github.com/speedrun-hq/settlement-tracker/pkg/poller"
	"github.com/speedrun-hq/settlement-tracker/pkg/retry"
	"github.com/speedrun-hq/settlement-tracker/pkg/retry/retrytest"
	"github.com/speedrun-hq/settlement-tracker/pkg/trackerr"
)

func TestPhaseAt(t *testing.T) {
	stats := models.CompletionStats{P50: 10 * time.Second, P90: 30 * time.Second, P99: time.Minute}

	tests := []struct {
		elapsed  time.Duration
		expected models.PollPhase
	}{
		{0, models.PhaseHot},
		{9 * time.Second, models.PhaseHot},
		{10 * time.Second, models.PhaseCooling},
		{29 * time.Second, models.PhaseCooling},
		{30 * time.Second, models.PhaseCold},
		{2 * time.Minute, models.PhaseCold},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, poller.PhaseAt(stats, tt.elapsed), "elapsed %s", tt.elapsed)
	}
}

func TestInterval(t *testing.T) {
	assert.Equal(t, 1*time.Second, poller.Interval(models.PhaseHot, time.Second, 30*time.Second))
	assert.Equal(t, 3*time.Second, poller.Interval(models.PhaseCooling, time.Second, 30*time.Second))
	assert.Equal(t, 10*time.Second, poller.Interval(models.PhaseCold, time.Second, 30*time.Second))

	assert.Equal(t, 2*time.Second, poller.Interval(models.PhaseHot, 2*time.Second, 30*time.Second))
	assert.Equal(t, 5*time.Second, poller.Interval(models.PhaseCold, time.Second, 5*time.Second))
}

// expectedSleeps replays the phase schedule for a probe that finishes on call n
func expectedSleeps(stats models.CompletionStats, minInterval, maxInterval time.Duration, n int) []time.Duration {
	var (
		sleeps  []time.Duration
		elapsed time.Duration
	)
	for call := 1; call < n; call++ {
		d := poller.Interval(poller.PhaseAt(stats, elapsed), minInterval, maxInterval)
		sleeps = append(sleeps, d)
		elapsed += d
	}
	return sleeps
}

func TestPollReturnsOnNthCall(t *testing.T) {
	statsCases := []models.CompletionStats{
		{P50: 2 * time.Second, P90: 8 * time.Second, P99: 10 * time.Minute},
		{P50: 0, P90: 0, P99: 10 * time.Minute},
		{P50: 5 * time.Second, P90: 5 * time.Second, P99: 10 * time.Minute},
		{P50: time.Minute, P90: 2 * time.Minute, P99: 10 * time.Minute},
	}
	bounds := []struct{ min, max time.Duration }{
		{time.Second, 30 * time.Second},
		{2 * time.Second, 5 * time.Second},
		{500 * time.Millisecond, 2 * time.Second},
	}

	for _, stats := range statsCases {
		for _, b := range bounds {
			for n := 1; n <= 12; n++ {
				clock := retrytest.NewFakeClock()
				calls := 0

				got, err := poller.Poll(context.Background(), func(ctx context.Context) (int, bool, error) {
					calls++
					if calls < n {
						return 0, true, nil
					}
					return calls * 10, false, nil
				}, poller.Options{Stats: stats, MinInterval: b.min, MaxInterval: b.max, Clock: clock})

				require.NoError(t, err)
				assert.Equal(t, n*10, got)
				assert.Equal(t, n, calls)

				want := expectedSleeps(stats, b.min, b.max, n)
				if len(want) == 0 {
					assert.Empty(t, clock.Sleeps())
				} else {
					assert.Equal(t, want, clock.Sleeps(), "stats %+v bounds %v n %d", stats, b, n)
				}
			}
		}
	}
}

func TestPollFirstCallSuccessDoesNotWait(t *testing.T) {
	clock := retrytest.NewFakeClock()
	start := clock.Now()

	got, err := poller.Poll(context.Background(), func(ctx context.Context) (string, bool, error) {
		return "done", false, nil
	}, poller.Options{Stats: models.CompletionStats{P50: time.Second, P90: 2 * time.Second, P99: 3 * time.Second}, Clock: clock})

	require.NoError(t, err)
	assert.Equal(t, "done", got)
	assert.Empty(t, clock.Sleeps())
	assert.Equal(t, start, clock.Now())
}

func TestPollTimesOutAtP99NeverEarlier(t *testing.T) {
	tests := []models.CompletionStats{
		{P50: 5 * time.Second, P90: 20 * time.Second, P99: time.Minute},
		{P50: time.Second, P90: time.Second, P99: 7 * time.Second},
		{P50: 10 * time.Second, P90: 30 * time.Second, P99: 95 * time.Second},
	}

	for _, stats := range tests {
		clock := retrytest.NewFakeClock()
		start := clock.Now()
		var probeTimes []time.Duration

		_, err := poller.Poll(context.Background(), func(ctx context.Context) (struct{}, bool, error) {
			probeTimes = append(probeTimes, clock.Now().Sub(start))
			return struct{}{}, true, nil
		}, poller.Options{Stats: stats, Clock: clock})

		require.Error(t, err)
		assert.True(t, trackerr.Is(err, trackerr.PollTimeout))

		var te *trackerr.Error
		require.True(t, errors.As(err, &te))
		assert.Equal(t, stats.P99, te.Timeout)
		assert.GreaterOrEqual(t, te.Elapsed, stats.P99)
		assert.GreaterOrEqual(t, clock.Now().Sub(start), stats.P99)

		require.NotEmpty(t, probeTimes)
		for _, at := range probeTimes {
			assert.Less(t, at, stats.P99)
		}
	}
}

func TestPollCancelledMidSleep(t *testing.T) {
	clock := retrytest.NewFakeClock().Blocking()
	clock.Started = make(chan time.Duration, 1)
	cause := errors.New("caller went away")
	ctx, cancel := context.WithCancelCause(context.Background())

	calls := 0
	done := make(chan error, 1)
	go func() {
		_, err := poller.Poll(ctx, func(ctx context.Context) (int, bool, error) {
			calls++
			return 0, true, nil
		}, poller.Options{Stats: models.CompletionStats{P50: time.Minute, P90: time.Hour, P99: 2 * time.Hour}, Clock: clock})
		done <- err
	}()

	sleep := <-clock.Started
	assert.Equal(t, time.Second, sleep)
	cancel(cause)

	select {
	case err := <-done:
		assert.Same(t, cause, err)
		assert.False(t, trackerr.Is(err, trackerr.PollTimeout))
		assert.Equal(t, 1, calls)
	case <-time.After(2 * time.Second):
		t.Fatal("poll did not observe cancellation")
	}
}

func TestPollCancelledMidSleepWallClock(t *testing.T) {
	cause := errors.New("shutdown")
	ctx, cancel := context.WithCancelCause(context.Background())
	probed := make(chan struct{}, 1)

	go func() {
		<-probed
		time.Sleep(20 * time.Millisecond)
		cancel(cause)
	}()

	start := time.Now()
	_, err := poller.Poll(ctx, func(ctx context.Context) (int, bool, error) {
		select {
		case probed <- struct{}{}:
		default:
		}
		return 0, true, nil
	}, poller.Options{
		Stats:       models.CompletionStats{P50: time.Hour, P90: time.Hour, P99: 2 * time.Hour},
		MinInterval: 10 * time.Second,
		Clock:       retry.SystemClock{},
	})

	assert.Same(t, cause, err)
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestPollCancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	_, err := poller.Poll(ctx, func(ctx context.Context) (int, bool, error) {
		called = true
		return 1, false, nil
	}, poller.Options{Stats: models.CompletionStats{P50: time.Second, P90: time.Second, P99: time.Second}})

	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestPollProbeErrorPropagatesAsIs(t *testing.T) {
	boom := trackerr.New(trackerr.InvariantViolation, "probe", "bad shape")
	calls := 0

	_, err := poller.Poll(context.Background(), func(ctx context.Context) (int, bool, error) {
		calls++
		return 0, false, boom
	}, poller.Options{Stats: models.CompletionStats{P50: time.Second, P90: time.Second, P99: time.Minute}, Clock: retrytest.NewFakeClock()})

	assert.Same(t, boom, err)
	assert.Equal(t, 1, calls)
}

func TestPollRejectsUnorderedStats(t *testing.T) {
	_, err := poller.Poll(context.Background(), func(ctx context.Context) (int, bool, error) {
		return 1, false, nil
	}, poller.Options{Stats: models.CompletionStats{P50: time.Minute, P90: time.Second, P99: time.Hour}})

	assert.ErrorIs(t, err, poller.ErrInvalidStats)
}
