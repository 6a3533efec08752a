// Package settlement tracks a signed intent through the solver relay until it is settled
// on-chain or confirmed not found.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mr-tron/base58"

	"github.com/speedrun-hq/settlement-tracker/pkg/logger"
	"github.com/speedrun-hq/settlement-tracker/pkg/metrics"
	"github.com/speedrun-hq/settlement-tracker/pkg/models"
	"github.com/speedrun-hq/settlement-tracker/pkg/retry"
	"github.com/speedrun-hq/settlement-tracker/pkg/trackerr"
)

const (
	DefaultPollInterval           = 200 * time.Millisecond
	DefaultInvalidStreakThreshold = 3

	opTrack = "settlement.track"
)

// ErrInvalidIntentHash is returned before any query when the intent hash is not base58-encoded 32 bytes
var ErrInvalidIntentHash = errors.New("invalid intent hash")

// StatusQuerier fetches the relay's current view of an intent
type StatusQuerier interface {
	GetIntentStatus(ctx context.Context, intentHash string) (models.IntentStatus, error)
}

// Config holds the tracker's pacing
type Config struct {
	// PollInterval is the fixed pause between status checks
	PollInterval time.Duration
	// InvalidStreakThreshold is how many consecutive NOT_FOUND_OR_NOT_VALID answers confirm the outcome
	InvalidStreakThreshold int
	// TransientPolicy paces retries of a single query across transport failures
	TransientPolicy models.RetryPolicy
	Clock           retry.Clock
}

// DefaultConfig returns the standard tracker configuration
func DefaultConfig() Config {
	return Config{
		PollInterval:           DefaultPollInterval,
		InvalidStreakThreshold: DefaultInvalidStreakThreshold,
		TransientPolicy:        retry.DefaultTransientPolicy,
	}
}

// TrackOptions are per-call options
type TrackOptions struct {
	// OnTxHashKnown is called at most once, when a destination transaction hash is first observed
	OnTxHashKnown func(txHash string)
}

// Tracker drives intent status queries to a terminal outcome. It holds no per-call state
// and can be shared by concurrent Track calls.
type Tracker struct {
	querier StatusQuerier
	cfg     Config
	logger  logger.Logger
}

// NewTracker creates a new settlement tracker
func NewTracker(querier StatusQuerier, cfg Config, log logger.Logger) *Tracker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.InvalidStreakThreshold <= 0 {
		cfg.InvalidStreakThreshold = DefaultInvalidStreakThreshold
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

// ValidateIntentHash checks that intentHash is base58-encoded 32 bytes
func ValidateIntentHash(intentHash string) error {
	raw, err := base58.Decode(intentHash)
	if err != nil {
		return fmt.Errorf("%w: %q is not base58: %v", ErrInvalidIntentHash, intentHash, err)
	}
	if len(raw) != 32 {
		return fmt.Errorf("%w: %q decodes to %d bytes, expected 32", ErrInvalidIntentHash, intentHash, len(raw))
	}
	return nil
}

// Track polls the relay until the intent is SETTLED or confirmed NOT_FOUND_OR_NOT_VALID.
// Both are returned as results; errors are reserved for terminal failures and cancellation,
// which returns context.Cause(ctx) unmodified.
func (t *Tracker) Track(ctx context.Context, intentHash string, opts TrackOptions) (models.SettlementResult, error) {
	if err := ValidateIntentHash(intentHash); err != nil {
		return models.SettlementResult{}, err
	}

	clock := t.cfg.Clock
	if clock == nil {
		clock = retry.SystemClock{}
	}
	start := clock.Now()

	s := &session{
		intentHash:    intentHash,
		threshold:     t.cfg.InvalidStreakThreshold,
		onTxHashKnown: opts.OnTxHashKnown,
		logger:        t.logger,
	}

	err := retry.Run(ctx, clock, retry.Fixed{Interval: t.cfg.PollInterval}, func(ctx context.Context, _ int) (bool, error) {
		status, err := t.query(ctx, clock, intentHash)
		if err != nil {
			return false, err
		}
		return s.observe(status)
	})

	metrics.TrackerDuration.WithLabelValues(opTrack).Observe(clock.Now().Sub(start).Seconds())
	if err != nil && ctx.Err() != nil {
		// the caller's cause goes back untouched
		metrics.TrackerOutcomes.WithLabelValues(opTrack, metrics.OutcomeCancelled).Inc()
		t.logger.Info("Tracking intent %s cancelled: %v", intentHash, err)
		return models.SettlementResult{}, err
	}
	if err != nil {
		metrics.TrackerOutcomes.WithLabelValues(opTrack, outcomeOf(err)).Inc()
		t.logger.Error("Tracking intent %s failed: %v", intentHash, err)
		return models.SettlementResult{}, s.annotate(err)
	}

	if s.result.Status == models.IntentSettled {
		metrics.TrackerOutcomes.WithLabelValues(opTrack, metrics.OutcomeSettled).Inc()
	} else {
		metrics.TrackerOutcomes.WithLabelValues(opTrack, metrics.OutcomeNotFoundOrInvalid).Inc()
	}
	t.logger.Notice("Intent %s resolved as %s (tx %q)", intentHash, s.result.Status, s.result.TxHash)

	return s.result, nil
}

// query issues one status query, retrying across transport failures only
func (t *Tracker) query(ctx context.Context, clock retry.Clock, intentHash string) (models.IntentStatus, error) {
	return retry.Do(ctx, clock, t.cfg.TransientPolicy, func(ctx context.Context, attempt int) (models.IntentStatus, error) {
		metrics.PollAttempts.WithLabelValues(opTrack, "").Inc()
		return t.querier.GetIntentStatus(ctx, intentHash)
	}, func(err error, _ int) (bool, error) {
		if !trackerr.IsTransient(err) {
			return false, err
		}
		metrics.TrackerRetries.WithLabelValues(opTrack, "transient").Inc()
		t.logger.Debug("Transient error querying intent %s, retrying: %v", intentHash, err)
		return true, err
	})
}

func outcomeOf(err error) string {
	switch trackerr.KindOf(err) {
	case trackerr.Cancelled:
		return metrics.OutcomeCancelled
	case trackerr.InvariantViolation:
		return metrics.OutcomeInvariant
	default:
		return metrics.OutcomeError
	}
}
