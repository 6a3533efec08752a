package withdrawal_test

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/speedrun-hq/settlement-tracker/pkg/logger"
	"github.com/speedrun-hq/settlement-tracker/pkg/models"
	"github.com/speedrun-hq/settlement-tracker/pkg/retry"
	"github.com/speedrun-hq/settlement-tracker/pkg/retry/retrytest"
	"github.com/speedrun-hq/settlement-tracker/pkg/trackerr"
	"github.com/speedrun-hq/settlement-tracker/pkg/withdrawal"
)

const (
	bridgeTx  = "7Xq1bN5fZb4xKjY5m3k1Q9w8E7r6T5y4U3i2O1pAsDf"
	usdcID    = "eth-0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48.omft.near"
	usdcAsset = "nep141:" + usdcID
)

var (
	destHash      = "0x" + strings.Repeat("Ab", 32)
	destHashLower = "0x" + strings.Repeat("ab", 32)

	notIndexed = trackerr.Rejected("bridge.withdrawal_status", &trackerr.RPCError{Code: -32000, Message: "Withdrawal not found"})
	transient  = trackerr.New(trackerr.TransportTransient, "bridge.withdrawal_status", "i/o timeout")
)

type reply struct {
	records []models.WithdrawalRecord
	err     error
}

type scriptedQuerier struct {
	mu      sync.Mutex
	replies []reply
	calls   int
}

func (q *scriptedQuerier) GetWithdrawalStatus(ctx context.Context, txHash string) ([]models.WithdrawalRecord, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	idx := q.calls
	q.calls++
	if idx >= len(q.replies) {
		idx = len(q.replies) - 1
	}
	return q.replies[idx].records, q.replies[idx].err
}

func (q *scriptedQuerier) Calls() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.calls
}

func record(status models.WithdrawalState, tokenID, transferHash string) models.WithdrawalRecord {
	return models.WithdrawalRecord{
		Status: status,
		Data: models.WithdrawalData{
			TxHash:         bridgeTx,
			TransferTxHash: transferHash,
			Chain:          "eip155:1",
			NearTokenID:    tokenID,
			Decimals:       6,
			Amount:         "1000000",
			Address:        "0x2b5ad5c4795c026514f8317c7a215e218dccd6cf",
		},
	}
}

func completed() reply {
	return reply{records: []models.WithdrawalRecord{record(models.WithdrawalCompleted, usdcID, destHash)}}
}

func pending() reply {
	return reply{records: []models.WithdrawalRecord{record(models.WithdrawalPending, usdcID, "")}}
}

func policy(maxAttempts int) *models.RetryPolicy {
	return &models.RetryPolicy{
		InitialDelay: time.Second,
		Factor:       2,
		MaxAttempts:  maxAttempts,
		MinDelay:     time.Second,
		MaxDelay:     10 * time.Second,
	}
}

func newTracker(q withdrawal.StatusQuerier) *withdrawal.Tracker {
	return withdrawal.NewTracker(q, withdrawal.Config{Clock: retrytest.NewFakeClock()}, &logger.EmptyLogger{})
}

var criteria = models.WithdrawalCriteria{AssetID: usdcAsset}

func TestTrackNotIndexedThenCompleted(t *testing.T) {
	q := &scriptedQuerier{replies: []reply{{err: notIndexed}, completed()}}

	result, err := newTracker(q).Track(context.Background(), bridgeTx, criteria, withdrawal.TrackOptions{RetryPolicy: policy(2)})

	require.NoError(t, err)
	assert.Equal(t, models.WithdrawalResult{DestinationTxHash: destHashLower, Chain: "eip155:1"}, result)
	assert.Equal(t, 2, q.Calls())
}

func TestTrackNotIndexedWithSingleAttempt(t *testing.T) {
	q := &scriptedQuerier{replies: []reply{{err: notIndexed}, completed()}}

	_, err := newTracker(q).Track(context.Background(), bridgeTx, criteria, withdrawal.TrackOptions{RetryPolicy: policy(1)})

	require.Error(t, err)
	assert.True(t, trackerr.Is(err, trackerr.NotFound))
	assert.ErrorIs(t, err, notIndexed)
	assert.Equal(t, 1, q.Calls())
}

func TestTrackPendingExhausted(t *testing.T) {
	q := &scriptedQuerier{replies: []reply{pending()}}

	_, err := newTracker(q).Track(context.Background(), bridgeTx, criteria, withdrawal.TrackOptions{RetryPolicy: policy(3)})

	require.Error(t, err)
	assert.True(t, trackerr.Is(err, trackerr.PendingExhausted))
	assert.False(t, trackerr.Is(err, trackerr.PollTimeout))
	assert.Equal(t, 3, q.Calls())

	var te *trackerr.Error
	require.True(t, errors.As(err, &te))
	assert.Equal(t, string(models.WithdrawalPending), te.Details["last_status"])
	assert.Equal(t, bridgeTx, te.Details["tx_hash"])
}

func TestTrackPendingThenCompleted(t *testing.T) {
	q := &scriptedQuerier{replies: []reply{pending(), pending(), completed()}}

	result, err := newTracker(q).Track(context.Background(), bridgeTx, criteria, withdrawal.TrackOptions{RetryPolicy: policy(5)})

	require.NoError(t, err)
	assert.Equal(t, destHashLower, result.DestinationTxHash)
	assert.Equal(t, 3, q.Calls())
}

func TestTrackTransportErrors(t *testing.T) {
	t.Run("retried while attempts remain", func(t *testing.T) {
		q := &scriptedQuerier{replies: []reply{{err: transient}, {err: transient}, completed()}}

		result, err := newTracker(q).Track(context.Background(), bridgeTx, criteria, withdrawal.TrackOptions{RetryPolicy: policy(3)})

		require.NoError(t, err)
		assert.Equal(t, destHashLower, result.DestinationTxHash)
	})

	t.Run("last attempt returns the transport error", func(t *testing.T) {
		q := &scriptedQuerier{replies: []reply{{err: transient}}}

		_, err := newTracker(q).Track(context.Background(), bridgeTx, criteria, withdrawal.TrackOptions{RetryPolicy: policy(2)})

		assert.Same(t, transient, err)
		assert.Equal(t, 2, q.Calls())
	})
}

func TestTrackTerminalErrors(t *testing.T) {
	other := trackerr.Rejected("bridge.withdrawal_status", &trackerr.RPCError{Code: -32602, Message: "invalid tx hash"})

	tests := []struct {
		name  string
		reply reply
		kind  trackerr.Kind
	}{
		{
			name:  "no matching asset",
			reply: reply{records: []models.WithdrawalRecord{record(models.WithdrawalCompleted, "wrap.near", destHash)}},
			kind:  trackerr.InvariantViolation,
		},
		{
			name:  "empty withdrawal list",
			reply: reply{records: nil},
			kind:  trackerr.InvariantViolation,
		},
		{
			name:  "completed without destination hash",
			reply: reply{records: []models.WithdrawalRecord{record(models.WithdrawalCompleted, usdcID, "")}},
			kind:  trackerr.InvariantViolation,
		},
		{
			name:  "malformed destination hash",
			reply: reply{records: []models.WithdrawalRecord{record(models.WithdrawalCompleted, usdcID, "0x1234")}},
			kind:  trackerr.InvariantViolation,
		},
		{
			name:  "unknown status",
			reply: reply{records: []models.WithdrawalRecord{record("FAILED", usdcID, "")}},
			kind:  trackerr.InvariantViolation,
		},
		{
			name:  "other rpc rejection",
			reply: reply{err: other},
			kind:  trackerr.RPCRejected,
		},
		{
			name:  "http 404",
			reply: reply{err: trackerr.Rejected("bridge.withdrawal_status", &trackerr.RPCError{Code: http.StatusNotFound, Message: "Not Found"})},
			kind:  trackerr.RPCRejected,
		},
		{
			name:  "method not found",
			reply: reply{err: trackerr.Rejected("bridge.withdrawal_status", &trackerr.RPCError{Code: -32601, Message: "Method not found"})},
			kind:  trackerr.RPCRejected,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := &scriptedQuerier{replies: []reply{tt.reply, completed()}}

			_, err := newTracker(q).Track(context.Background(), bridgeTx, criteria, withdrawal.TrackOptions{RetryPolicy: policy(5)})

			require.Error(t, err)
			assert.Equal(t, tt.kind, trackerr.KindOf(err))
			assert.Equal(t, 1, q.Calls(), "terminal errors are never retried")
		})
	}
}

func TestTrackSelectsMatchingWithdrawal(t *testing.T) {
	other := "0x" + strings.Repeat("cd", 32)
	q := &scriptedQuerier{replies: []reply{{records: []models.WithdrawalRecord{
		record(models.WithdrawalCompleted, "wrap.near", other),
		record(models.WithdrawalCompleted, usdcID, destHash),
	}}}}

	result, err := newTracker(q).Track(context.Background(), bridgeTx, criteria, withdrawal.TrackOptions{RetryPolicy: policy(1)})

	require.NoError(t, err)
	assert.Equal(t, destHashLower, result.DestinationTxHash)
}

func TestTrackUsesChainPolicy(t *testing.T) {
	q := &scriptedQuerier{replies: []reply{pending()}}

	_, err := newTracker(q).Track(context.Background(), bridgeTx, criteria, withdrawal.TrackOptions{Chain: "near:mainnet"})

	assert.True(t, trackerr.Is(err, trackerr.PendingExhausted))
	assert.Equal(t, retry.PolicyFor("near:mainnet").MaxAttempts, q.Calls())
}

func TestTrackCancelled(t *testing.T) {
	cause := errors.New("request aborted")
	ctx, cancel := context.WithCancelCause(context.Background())
	cancel(cause)

	q := &scriptedQuerier{replies: []reply{completed()}}
	_, err := newTracker(q).Track(ctx, bridgeTx, criteria, withdrawal.TrackOptions{RetryPolicy: policy(3)})

	assert.Same(t, cause, err)
	assert.Equal(t, 0, q.Calls())
}

func TestTrackAdaptive(t *testing.T) {
	stats := models.CompletionStats{P50: 5 * time.Second, P90: 20 * time.Second, P99: time.Minute}

	t.Run("resolves through pending and not indexed", func(t *testing.T) {
		q := &scriptedQuerier{replies: []reply{{err: notIndexed}, {err: transient}, pending(), completed()}}

		result, err := newTracker(q).TrackAdaptive(context.Background(), bridgeTx, criteria, stats, "eip155:1")

		require.NoError(t, err)
		assert.Equal(t, destHashLower, result.DestinationTxHash)
		assert.Equal(t, 4, q.Calls())
	})

	t.Run("times out at p99", func(t *testing.T) {
		q := &scriptedQuerier{replies: []reply{pending()}}

		_, err := newTracker(q).TrackAdaptive(context.Background(), bridgeTx, criteria, stats, "eip155:1")

		assert.True(t, trackerr.Is(err, trackerr.PollTimeout))
		assert.False(t, trackerr.Is(err, trackerr.PendingExhausted))
	})

	t.Run("terminal error stops polling", func(t *testing.T) {
		q := &scriptedQuerier{replies: []reply{pending(), {records: nil}}}

		_, err := newTracker(q).TrackAdaptive(context.Background(), bridgeTx, criteria, stats, "eip155:1")

		assert.True(t, trackerr.Is(err, trackerr.InvariantViolation))
		assert.Equal(t, 2, q.Calls())
	})
}
