// Package tracking wires the relay client, trackers and event publisher into one service.
package tracking

import (
	"context"
	"sync"
	"time"

	"github.com/speedrun-hq/settlement-tracker/pkg/circuitbreaker"
	"github.com/speedrun-hq/settlement-tracker/pkg/config"
	"github.com/speedrun-hq/settlement-tracker/pkg/events"
	"github.com/speedrun-hq/settlement-tracker/pkg/logger"
	"github.com/speedrun-hq/settlement-tracker/pkg/models"
	"github.com/speedrun-hq/settlement-tracker/pkg/quote"
	"github.com/speedrun-hq/settlement-tracker/pkg/relayclient"
	"github.com/speedrun-hq/settlement-tracker/pkg/retry"
	"github.com/speedrun-hq/settlement-tracker/pkg/settlement"
	"github.com/speedrun-hq/settlement-tracker/pkg/withdrawal"
)

var (
	_ settlement.StatusQuerier = (*relayclient.Client)(nil)
	_ withdrawal.StatusQuerier = (*relayclient.Client)(nil)
	_ quote.Querier            = (*relayclient.Client)(nil)
)

// publishTimeout bounds event publishing after a call has finished
const publishTimeout = 5 * time.Second

// Backends are the relay-facing dependencies of the service
type Backends struct {
	Intents     settlement.StatusQuerier
	Withdrawals withdrawal.StatusQuerier
	Quotes      quote.Querier
	// Breakers are reported by the health server; optional
	Breakers []*circuitbreaker.CircuitBreaker
}

// Service exposes intent tracking, withdrawal tracking and quote selection
type Service struct {
	intents     *settlement.Tracker
	withdrawals *withdrawal.Tracker
	quotes      *quote.Service
	breakers    []*circuitbreaker.CircuitBreaker
	publisher   events.Publisher
	logger      logger.Logger
}

// WithdrawalRequest identifies one withdrawal to track
type WithdrawalRequest struct {
	TxHash   string
	Criteria models.WithdrawalCriteria
	// Chain is the CAIP-2 destination chain
	Chain string
	// Adaptive polls by the chain's latency percentiles instead of backing off
	Adaptive bool
}

type intentEvent struct {
	IntentHash string             `json:"intent_hash"`
	Status     models.IntentState `json:"status,omitempty"`
	TxHash     string             `json:"tx_hash,omitempty"`
	Error      string             `json:"error,omitempty"`
}

type withdrawalEvent struct {
	TxHash            string `json:"tx_hash"`
	AssetID           string `json:"asset_id"`
	Chain             string `json:"chain,omitempty"`
	DestinationTxHash string `json:"destination_tx_hash,omitempty"`
	Error             string `json:"error,omitempty"`
}

type quoteEvent struct {
	QuoteHash string                `json:"quote_hash"`
	AssetIn   string                `json:"asset_in"`
	AssetOut  string                `json:"asset_out"`
	AmountIn  string                `json:"amount_in"`
	AmountOut string                `json:"amount_out"`
	Direction models.TradeDirection `json:"direction"`
}

// NewService creates a service backed by the relay client built from cfg
func NewService(cfg *config.Config, publisher events.Publisher, log logger.Logger) *Service {
	client := relayclient.New(relayclient.Config{
		SolverRelayURL: cfg.SolverRelayURL,
		BridgeURL:      cfg.BridgeURL,
		APIKey:         cfg.RelayAPIKey,
		Timeout:        cfg.RequestTimeout,
		RateLimit:      cfg.RateLimitRPS,
		RateBurst:      cfg.RateLimitBurst,
		Breaker: circuitbreaker.Settings{
			Enabled:       cfg.CircuitBreaker.Enabled,
			FailThreshold: cfg.CircuitBreaker.Threshold,
			FailureWindow: cfg.CircuitBreaker.WindowDuration,
			ResetTimeout:  cfg.CircuitBreaker.ResetTimeout,
		},
	}, log)

	return NewServiceWithBackends(cfg, Backends{
		Intents:     client,
		Withdrawals: client,
		Quotes:      client,
		Breakers:    client.Breakers(),
	}, nil, publisher, log)
}

// NewServiceWithBackends creates a service over the given backends. A nil clock uses the system clock.
func NewServiceWithBackends(cfg *config.Config, b Backends, clock retry.Clock, publisher events.Publisher, log logger.Logger) *Service {
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}

	settlementCfg := settlement.DefaultConfig()
	settlementCfg.PollInterval = cfg.IntentPollInterval
	settlementCfg.InvalidStreakThreshold = cfg.InvalidStreakThreshold
	settlementCfg.Clock = clock

	quoteCfg := quote.DefaultConfig()
	quoteCfg.MinDeadline = cfg.QuoteMinDeadline
	quoteCfg.Clock = clock

	return &Service{
		intents: settlement.NewTracker(b.Intents, settlementCfg, log),
		withdrawals: withdrawal.NewTracker(b.Withdrawals, withdrawal.Config{
			Clock:       clock,
			MinInterval: cfg.PollMinInterval,
			MaxInterval: cfg.PollMaxInterval,
		}, log),
		quotes:    quote.NewService(b.Quotes, quoteCfg, log),
		breakers:  b.Breakers,
		publisher: publisher,
		logger:    log,
	}
}

// Breakers returns the relay circuit breakers for health reporting
func (s *Service) Breakers() []*circuitbreaker.CircuitBreaker {
	return s.breakers
}

// Close releases the event publisher
func (s *Service) Close() {
	s.publisher.Close()
}

// TrackIntent follows an intent to settlement or a confirmed NOT_FOUND_OR_NOT_VALID.
// onTxHashKnown may be nil. The tx-hash event is published off the polling loop and always
// precedes the terminal event.
func (s *Service) TrackIntent(ctx context.Context, intentHash string, onTxHashKnown func(txHash string)) (models.SettlementResult, error) {
	var pending sync.WaitGroup
	result, err := s.intents.Track(ctx, intentHash, settlement.TrackOptions{
		OnTxHashKnown: func(txHash string) {
			pending.Add(1)
			go func() {
				defer pending.Done()
				s.publish(ctx, events.TypeTxHashKnown, intentEvent{IntentHash: intentHash, TxHash: txHash})
			}()
			if onTxHashKnown != nil {
				onTxHashKnown(txHash)
			}
		},
	})
	pending.Wait()

	if err != nil {
		if ctx.Err() == nil {
			s.publish(ctx, events.TypeIntentFailed, intentEvent{IntentHash: intentHash, Error: err.Error()})
		}
		return result, err
	}

	eventType := events.TypeIntentSettled
	if result.Status == models.IntentNotFoundOrInvalid {
		eventType = events.TypeIntentNotFound
	}
	s.publish(ctx, eventType, intentEvent{IntentHash: intentHash, Status: result.Status, TxHash: result.TxHash})
	return result, nil
}

// TrackWithdrawal follows a bridge withdrawal until its destination transaction is known
func (s *Service) TrackWithdrawal(ctx context.Context, req WithdrawalRequest) (models.WithdrawalResult, error) {
	var (
		result models.WithdrawalResult
		err    error
	)
	if req.Adaptive {
		result, err = s.withdrawals.TrackAdaptive(ctx, req.TxHash, req.Criteria, retry.StatsFor(req.Chain), req.Chain)
	} else {
		result, err = s.withdrawals.Track(ctx, req.TxHash, req.Criteria, withdrawal.TrackOptions{Chain: req.Chain})
	}

	ev := withdrawalEvent{TxHash: req.TxHash, AssetID: req.Criteria.AssetID, Chain: req.Chain}
	if err != nil {
		if ctx.Err() == nil {
			ev.Error = err.Error()
			s.publish(ctx, events.TypeWithdrawalFailed, ev)
		}
		return result, err
	}

	ev.Chain = result.Chain
	ev.DestinationTxHash = result.DestinationTxHash
	s.publish(ctx, events.TypeWithdrawalCompleted, ev)
	return result, nil
}

// BestQuote runs price discovery and returns the best quote for req.Direction
func (s *Service) BestQuote(ctx context.Context, req models.QuoteRequest) (models.Quote, error) {
	q, err := s.quotes.BestQuote(ctx, req)
	if err != nil {
		return q, err
	}

	s.publish(ctx, events.TypeQuoteSelected, quoteEvent{
		QuoteHash: q.QuoteHash,
		AssetIn:   q.AssetIn,
		AssetOut:  q.AssetOut,
		AmountIn:  q.AmountIn.String(),
		AmountOut: q.AmountOut.String(),
		Direction: req.Direction,
	})
	return q, nil
}

// publish emits an event without letting publishing failures affect the call's outcome
func (s *Service) publish(ctx context.Context, eventType string, payload any) {
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := s.publisher.Publish(pubCtx, eventType, payload); err != nil {
		s.logger.Error("Failed to publish %s event: %v", eventType, err)
	}
}
