package settlement_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/speedrun-hq/settlement-tracker/pkg/logger"
	"github.com/speedrun-hq/settlement-tracker/pkg/models"
	"github.com/speedrun-hq/settlement-tracker/pkg/retry/retrytest"
	"github.com/speedrun-hq/settlement-tracker/pkg/settlement"
	"github.com/speedrun-hq/settlement-tracker/pkg/trackerr"
)

const (
	intentHash = "4wBqpZM9xaSheZzJSMawUKKwhdpChKbZ5eu5ky4Vigw"
	txHash     = "0x3a1f6ee2b0d24b6c7c1e1f4f3d4a9b8c7d6e5f4a3b2c1d0e9f8a7b6c5d4e3f2a"
)

type response struct {
	status models.IntentState
	txHash string
	err    error
}

// scriptedQuerier replays responses in order and repeats the last one when exhausted
type scriptedQuerier struct {
	mu        sync.Mutex
	responses []response
	calls     int
	onCall    func(n int)
}

func (q *scriptedQuerier) GetIntentStatus(ctx context.Context, hash string) (models.IntentStatus, error) {
	q.mu.Lock()
	q.calls++
	n := q.calls
	idx := n - 1
	if idx >= len(q.responses) {
		idx = len(q.responses) - 1
	}
	r := q.responses[idx]
	onCall := q.onCall
	q.mu.Unlock()

	if onCall != nil {
		onCall(n)
	}
	if r.err != nil {
		return models.IntentStatus{}, r.err
	}
	return models.IntentStatus{IntentHash: hash, Status: r.status, TxHash: r.txHash}, nil
}

func (q *scriptedQuerier) Calls() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.calls
}

func newTracker(q settlement.StatusQuerier, clock *retrytest.FakeClock) *settlement.Tracker {
	cfg := settlement.DefaultConfig()
	cfg.Clock = clock
	return settlement.NewTracker(q, cfg, &logger.EmptyLogger{})
}

func TestTrackBroadcastThenSettled(t *testing.T) {
	q := &scriptedQuerier{responses: []response{
		{status: models.IntentPending},
		{status: models.IntentTxBroadcasted, txHash: txHash},
		{status: models.IntentTxBroadcasted, txHash: txHash},
		{status: models.IntentSettled, txHash: txHash},
	}}
	clock := retrytest.NewFakeClock()

	var notified []string
	result, err := newTracker(q, clock).Track(context.Background(), intentHash, settlement.TrackOptions{
		OnTxHashKnown: func(h string) { notified = append(notified, h) },
	})

	require.NoError(t, err)
	assert.Equal(t, models.SettlementResult{Status: models.IntentSettled, TxHash: txHash, IntentHash: intentHash}, result)
	assert.Equal(t, []string{txHash}, notified)
	assert.Equal(t, 4, q.Calls())

	for _, d := range clock.Sleeps() {
		assert.Equal(t, settlement.DefaultPollInterval, d)
	}
	assert.Len(t, clock.Sleeps(), 3)
}

func TestTrackSettledWithoutBroadcastNotifiesOnce(t *testing.T) {
	q := &scriptedQuerier{responses: []response{{status: models.IntentSettled, txHash: txHash}}}

	calls := 0
	result, err := newTracker(q, retrytest.NewFakeClock()).Track(context.Background(), intentHash, settlement.TrackOptions{
		OnTxHashKnown: func(h string) {
			calls++
			assert.Equal(t, txHash, h)
		},
	})

	require.NoError(t, err)
	assert.Equal(t, models.IntentSettled, result.Status)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, q.Calls())
}

func TestTrackNotFoundStreak(t *testing.T) {
	q := &scriptedQuerier{responses: []response{{status: models.IntentNotFoundOrInvalid}}}

	result, err := newTracker(q, retrytest.NewFakeClock()).Track(context.Background(), intentHash, settlement.TrackOptions{})

	require.NoError(t, err)
	assert.Equal(t, models.IntentNotFoundOrInvalid, result.Status)
	assert.Empty(t, result.TxHash)
	assert.Equal(t, intentHash, result.IntentHash)
	assert.Equal(t, 3, q.Calls())
}

func TestTrackNotFoundThreshold(t *testing.T) {
	q := &scriptedQuerier{responses: []response{{status: models.IntentNotFoundOrInvalid}}}
	cfg := settlement.DefaultConfig()
	cfg.Clock = retrytest.NewFakeClock()
	cfg.InvalidStreakThreshold = 5

	_, err := settlement.NewTracker(q, cfg, nil).Track(context.Background(), intentHash, settlement.TrackOptions{})

	require.NoError(t, err)
	assert.Equal(t, 5, q.Calls())
}

func TestTrackStatusTransitionIntoNotFound(t *testing.T) {
	tests := []struct {
		name      string
		responses []response
		calls     int
		txHash    string
	}{
		{
			name: "pending then not found",
			responses: []response{
				{status: models.IntentPending},
				{status: models.IntentNotFoundOrInvalid},
			},
			calls: 2,
		},
		{
			name: "broadcast then not found keeps the hash",
			responses: []response{
				{status: models.IntentTxBroadcasted, txHash: txHash},
				{status: models.IntentNotFoundOrInvalid},
			},
			calls:  2,
			txHash: txHash,
		},
		{
			name: "pending between answers interrupts the streak",
			responses: []response{
				{status: models.IntentNotFoundOrInvalid},
				{status: models.IntentNotFoundOrInvalid},
				{status: models.IntentPending},
				{status: models.IntentPending},
				{status: models.IntentNotFoundOrInvalid},
			},
			calls: 5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := &scriptedQuerier{responses: tt.responses}

			result, err := newTracker(q, retrytest.NewFakeClock()).Track(context.Background(), intentHash, settlement.TrackOptions{})

			require.NoError(t, err)
			assert.Equal(t, models.IntentNotFoundOrInvalid, result.Status)
			assert.Equal(t, tt.txHash, result.TxHash)
			assert.Equal(t, tt.calls, q.Calls())
		})
	}
}

func TestTrackRetriesTransientErrors(t *testing.T) {
	transient := trackerr.New(trackerr.TransportTransient, "relay.get_status", "connection reset")
	q := &scriptedQuerier{responses: []response{
		{err: transient},
		{err: transient},
		{err: transient},
		{status: models.IntentSettled, txHash: txHash},
	}}
	clock := retrytest.NewFakeClock()

	result, err := newTracker(q, clock).Track(context.Background(), intentHash, settlement.TrackOptions{})

	require.NoError(t, err)
	assert.Equal(t, models.IntentSettled, result.Status)
	assert.Equal(t, 4, q.Calls())
	assert.Len(t, clock.Sleeps(), 3)
}

func TestTrackAbortsOnNonTransientError(t *testing.T) {
	rejected := trackerr.Rejected("relay.get_status", &trackerr.RPCError{Code: -32602, Message: "invalid params"})
	q := &scriptedQuerier{responses: []response{
		{status: models.IntentPending},
		{err: rejected},
	}}

	_, err := newTracker(q, retrytest.NewFakeClock()).Track(context.Background(), intentHash, settlement.TrackOptions{})

	require.Error(t, err)
	assert.True(t, trackerr.Is(err, trackerr.RPCRejected))
	assert.Equal(t, 2, q.Calls())

	var te *trackerr.Error
	require.True(t, errors.As(err, &te))
	assert.Equal(t, intentHash, te.Details["intent_hash"])
	assert.Equal(t, string(models.IntentPending), te.Details["last_status"])
	assert.Empty(t, rejected.Details, "original error must not be mutated")

	var rpcErr *trackerr.RPCError
	require.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, -32602, rpcErr.Code)
}

func TestTrackBroadcastWithoutHashIsInvariantViolation(t *testing.T) {
	q := &scriptedQuerier{responses: []response{{status: models.IntentTxBroadcasted}}}

	called := false
	_, err := newTracker(q, retrytest.NewFakeClock()).Track(context.Background(), intentHash, settlement.TrackOptions{
		OnTxHashKnown: func(string) { called = true },
	})

	assert.True(t, trackerr.Is(err, trackerr.InvariantViolation))
	assert.False(t, called)
}

func TestTrackInvalidIntentHash(t *testing.T) {
	tests := []string{
		"",
		"not-base58-0OIl",
		"8DfbjXLth7APvt3qQPgtf", // 16 bytes
	}

	for _, hash := range tests {
		q := &scriptedQuerier{responses: []response{{status: models.IntentSettled, txHash: txHash}}}

		_, err := newTracker(q, retrytest.NewFakeClock()).Track(context.Background(), hash, settlement.TrackOptions{})

		assert.ErrorIs(t, err, settlement.ErrInvalidIntentHash, "hash %q", hash)
		assert.Equal(t, 0, q.Calls())
	}
}

func TestTrackCancelledBeforeStart(t *testing.T) {
	cause := errors.New("user aborted")
	ctx, cancel := context.WithCancelCause(context.Background())
	cancel(cause)

	q := &scriptedQuerier{responses: []response{{status: models.IntentPending}}}
	_, err := newTracker(q, retrytest.NewFakeClock()).Track(ctx, intentHash, settlement.TrackOptions{})

	assert.Same(t, cause, err)
	assert.Equal(t, 0, q.Calls())
}

func TestTrackCancelledBetweenQueries(t *testing.T) {
	cause := errors.New("shutting down")
	ctx, cancel := context.WithCancelCause(context.Background())

	q := &scriptedQuerier{
		responses: []response{{status: models.IntentPending}},
		onCall: func(n int) {
			if n == 2 {
				cancel(cause)
			}
		},
	}

	_, err := newTracker(q, retrytest.NewFakeClock()).Track(ctx, intentHash, settlement.TrackOptions{})

	assert.Same(t, cause, err)
	assert.Equal(t, 2, q.Calls())
}

func TestTrackReturnsClassifiedCauseUnchanged(t *testing.T) {
	cause := trackerr.New(trackerr.Cancelled, "caller", "user aborted")
	ctx, cancel := context.WithCancelCause(context.Background())

	q := &scriptedQuerier{
		responses: []response{{status: models.IntentPending}},
		onCall: func(n int) {
			if n == 1 {
				cancel(cause)
			}
		},
	}

	_, err := newTracker(q, retrytest.NewFakeClock()).Track(ctx, intentHash, settlement.TrackOptions{})

	assert.Same(t, cause, err)
	assert.Empty(t, cause.Details)
	assert.Equal(t, 1, q.Calls())
}

func TestTrackCancelledDuringSleep(t *testing.T) {
	cause := errors.New("deadline from caller")
	ctx, cancel := context.WithCancelCause(context.Background())
	clock := retrytest.NewFakeClock().Blocking()
	clock.Started = make(chan time.Duration, 1)

	q := &scriptedQuerier{responses: []response{{status: models.IntentPending}}}
	done := make(chan error, 1)
	go func() {
		_, err := newTracker(q, clock).Track(ctx, intentHash, settlement.TrackOptions{})
		done <- err
	}()

	assert.Equal(t, settlement.DefaultPollInterval, <-clock.Started)
	cancel(cause)

	select {
	case err := <-done:
		assert.Same(t, cause, err)
		assert.Equal(t, 1, q.Calls())
	case <-time.After(2 * time.Second):
		t.Fatal("tracker did not observe cancellation")
	}
}

func TestValidateIntentHash(t *testing.T) {
	require.NoError(t, settlement.ValidateIntentHash(intentHash))
	assert.ErrorIs(t, settlement.ValidateIntentHash("0x1234"), settlement.ErrInvalidIntentHash)
}
