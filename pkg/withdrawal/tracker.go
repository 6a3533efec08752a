// Package withdrawal tracks a bridge withdrawal until it completes on the destination chain.
package withdrawal

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/speedrun-hq/settlement-tracker/pkg/chains"
	"github.com/speedrun-hq/settlement-tracker/pkg/logger"
	"github.com/speedrun-hq/settlement-tracker/pkg/metrics"
	"github.com/speedrun-hq/settlement-tracker/pkg/models"
	"github.com/speedrun-hq/settlement-tracker/pkg/poller"
	"github.com/speedrun-hq/settlement-tracker/pkg/retry"
	"github.com/speedrun-hq/settlement-tracker/pkg/trackerr"
)

const (
	opTrack         = "withdrawal.track"
	opTrackAdaptive = "withdrawal.track_adaptive"
)

// errPending is the retryable condition raised while the matched withdrawal has not completed
var errPending = errors.New("withdrawal pending")

// StatusQuerier fetches the withdrawals contained in a bridge transaction
type StatusQuerier interface {
	GetWithdrawalStatus(ctx context.Context, txHash string) ([]models.WithdrawalRecord, error)
}

// Config holds the tracker's dependencies shared by all calls
type Config struct {
	Clock retry.Clock
	// MinInterval and MaxInterval bound the adaptive poll interval
	MinInterval time.Duration
	MaxInterval time.Duration
}

// TrackOptions are per-call options
type TrackOptions struct {
	// RetryPolicy overrides the policy selected from Chain
	RetryPolicy *models.RetryPolicy
	// Chain is the CAIP-2 destination chain; it selects the retry policy and hash format
	Chain string
}

// Tracker drives withdrawal status queries to completion or a classified failure.
// It holds no per-call state and can be shared by concurrent calls.
type Tracker struct {
	querier StatusQuerier
	cfg     Config
	logger  logger.Logger
}

// NewTracker creates a new withdrawal tracker
func NewTracker(querier StatusQuerier, cfg Config, log logger.Logger) *Tracker {
	if cfg.Clock == nil {
		cfg.Clock = retry.SystemClock{}
	}
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	return &Tracker{
		querier: querier,
		cfg:     cfg,
		logger:  log,
	}
}

// call is the state of one tracking call
type call struct {
	op       string
	txHash   string
	criteria models.WithdrawalCriteria
	chain    string
	last     *models.WithdrawalRecord
}

// Track queries the bridge under an attempt-budgeted retry policy until the withdrawal matching
// criteria completes. Exhausting the budget yields NotFound when the withdrawal was never
// indexed and PendingExhausted when it never left PENDING.
func (t *Tracker) Track(ctx context.Context, txHash string, criteria models.WithdrawalCriteria, opts TrackOptions) (models.WithdrawalResult, error) {
	policy := retry.PolicyFor(opts.Chain)
	if opts.RetryPolicy != nil {
		policy = *opts.RetryPolicy
	}

	c := &call{op: opTrack, txHash: txHash, criteria: criteria, chain: opts.Chain}
	start := t.cfg.Clock.Now()

	t.logger.DebugWithChain(opts.Chain, "Tracking withdrawal %s (%s) with up to %d attempts", txHash, criteria.AssetID, policy.MaxAttempts)

	result, err := retry.Do(ctx, t.cfg.Clock, policy, func(ctx context.Context, _ int) (models.WithdrawalResult, error) {
		return t.attempt(ctx, c)
	}, t.classifier(c))

	return t.finish(c, start, result, err)
}

// TrackAdaptive runs the same attempt under the adaptive poller: the budget is stats.P99 of
// wall-clock time instead of a number of attempts, and exhausting it yields PollTimeout.
func (t *Tracker) TrackAdaptive(ctx context.Context, txHash string, criteria models.WithdrawalCriteria, stats models.CompletionStats, chain string) (models.WithdrawalResult, error) {
	c := &call{op: opTrackAdaptive, txHash: txHash, criteria: criteria, chain: chain}
	start := t.cfg.Clock.Now()

	result, err := poller.Poll(ctx, func(ctx context.Context) (models.WithdrawalResult, bool, error) {
		res, err := t.attempt(ctx, c)
		switch {
		case err == nil:
			return res, false, nil
		case errors.Is(err, errPending):
			t.countRetry(c, "pending")
			return res, true, nil
		case isNotIndexed(err):
			t.countRetry(c, "not_indexed")
			return res, true, nil
		case trackerr.IsTransient(err):
			t.countRetry(c, "transient")
			return res, true, nil
		}
		return res, false, err
	}, poller.Options{
		Stats:       stats,
		MinInterval: t.cfg.MinInterval,
		MaxInterval: t.cfg.MaxInterval,
		Clock:       t.cfg.Clock,
		Op:          opTrackAdaptive,
		ChainID:     chain,
	})

	return t.finish(c, start, result, err)
}

// attempt performs one status query and evaluates the matching withdrawal
func (t *Tracker) attempt(ctx context.Context, c *call) (models.WithdrawalResult, error) {
	metrics.PollAttempts.WithLabelValues(c.op, c.chain).Inc()

	records, err := t.querier.GetWithdrawalStatus(ctx, c.txHash)
	if err != nil {
		return models.WithdrawalResult{}, err
	}

	record, ok := match(records, c.criteria)
	if !ok {
		return models.WithdrawalResult{}, c.invariant("no withdrawal matches the asset").
			With("withdrawals", strconv.Itoa(len(records)))
	}
	c.last = &record

	switch record.Status {
	case models.WithdrawalCompleted:
		if record.Data.TransferTxHash == "" {
			return models.WithdrawalResult{}, c.invariant("withdrawal completed without a destination hash")
		}
		chain := record.Data.Chain
		if chain == "" {
			chain = c.chain
		}
		hash, err := chains.NormalizeTxHash(chain, record.Data.TransferTxHash)
		if err != nil {
			return models.WithdrawalResult{}, trackerr.Wrap(trackerr.InvariantViolation, c.op, err, "malformed destination hash").
				With("tx_hash", c.txHash).
				With("transfer_tx_hash", record.Data.TransferTxHash)
		}
		return models.WithdrawalResult{DestinationTxHash: hash, Chain: chain}, nil

	case models.WithdrawalPending:
		return models.WithdrawalResult{}, errPending
	}

	return models.WithdrawalResult{}, c.invariant("unknown withdrawal status " + string(record.Status))
}

// classifier implements the retry classification of Track
func (t *Tracker) classifier(c *call) retry.Classifier {
	return func(err error, attemptsLeft int) (bool, error) {
		switch {
		case isNotIndexed(err):
			if attemptsLeft == 0 {
				return false, trackerr.Wrap(trackerr.NotFound, c.op, err, "withdrawal was never indexed").
					With("tx_hash", c.txHash).
					With("asset_id", c.criteria.AssetID)
			}
			t.countRetry(c, "not_indexed")
			return true, err

		case errors.Is(err, errPending):
			if attemptsLeft == 0 {
				e := trackerr.New(trackerr.PendingExhausted, c.op, "withdrawal still pending after all attempts").
					With("tx_hash", c.txHash).
					With("asset_id", c.criteria.AssetID)
				if c.last != nil {
					e = e.With("last_status", string(c.last.Status))
				}
				return false, e
			}
			t.countRetry(c, "pending")
			return true, err

		case trackerr.IsTransient(err):
			if attemptsLeft != 0 {
				t.countRetry(c, "transient")
			}
			return true, err
		}
		return false, err
	}
}

func (t *Tracker) finish(c *call, start time.Time, result models.WithdrawalResult, err error) (models.WithdrawalResult, error) {
	metrics.TrackerDuration.WithLabelValues(c.op).Observe(t.cfg.Clock.Now().Sub(start).Seconds())
	if err != nil {
		metrics.TrackerOutcomes.WithLabelValues(c.op, outcomeOf(err)).Inc()
		t.logger.ErrorWithChain(c.chain, "Withdrawal %s (%s) failed: %v", c.txHash, c.criteria.AssetID, err)
		return models.WithdrawalResult{}, err
	}

	metrics.TrackerOutcomes.WithLabelValues(c.op, metrics.OutcomeCompleted).Inc()
	t.logger.NoticeWithChain(result.Chain, "Withdrawal %s completed with destination tx %s", c.txHash, result.DestinationTxHash)
	return result, nil
}

func (t *Tracker) countRetry(c *call, reason string) {
	metrics.TrackerRetries.WithLabelValues(c.op, reason).Inc()
	t.logger.DebugWithChain(c.chain, "Withdrawal %s not final yet (%s)", c.txHash, reason)
}

func (c *call) invariant(msg string) *trackerr.Error {
	return trackerr.New(trackerr.InvariantViolation, c.op, msg).
		With("tx_hash", c.txHash).
		With("asset_id", c.criteria.AssetID)
}

// match returns the withdrawal whose asset identifier equals the criteria.
// Several withdrawals of the same asset in one transaction are not disambiguated; the first wins.
func match(records []models.WithdrawalRecord, criteria models.WithdrawalCriteria) (models.WithdrawalRecord, bool) {
	for _, r := range records {
		if r.AssetID() == criteria.AssetID {
			return r, true
		}
	}
	return models.WithdrawalRecord{}, false
}

// isNotIndexed reports whether err is the bridge's answer for a withdrawal it has not indexed yet:
// a JSON-RPC error object with an application code whose message says the withdrawal was not found.
// Rejections derived from HTTP statuses carry positive codes and never match, nor do the
// protocol-level codes such as -32601 method not found.
func isNotIndexed(err error) bool {
	if !trackerr.Is(err, trackerr.RPCRejected) {
		return false
	}
	var rpcErr *trackerr.RPCError
	if !errors.As(err, &rpcErr) {
		return false
	}
	if rpcErr.Code >= 0 || isProtocolCode(rpcErr.Code) {
		return false
	}
	msg := strings.ToLower(rpcErr.Message)
	return strings.Contains(msg, "withdrawal") && strings.Contains(msg, "not found")
}

// isProtocolCode reports whether code is in the JSON-RPC range reserved for protocol errors.
// -32099..-32000 is left to the server for application errors.
func isProtocolCode(code int) bool {
	return code >= -32768 && code < -32099
}

func outcomeOf(err error) string {
	switch trackerr.KindOf(err) {
	case trackerr.Cancelled:
		return metrics.OutcomeCancelled
	case trackerr.NotFound:
		return metrics.OutcomeNotFound
	case trackerr.PendingExhausted:
		return metrics.OutcomePendingExhausted
	case trackerr.PollTimeout:
		return metrics.OutcomeTimeout
	case trackerr.InvariantViolation:
		return metrics.OutcomeInvariant
	default:
		return metrics.OutcomeError
	}
}
