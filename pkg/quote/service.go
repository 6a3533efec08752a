package quote

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/speedrun-hq/settlement-tracker/pkg/logger"
	"github.com/speedrun-hq/settlement-tracker/pkg/metrics"
	"github.com/speedrun-hq/settlement-tracker/pkg/models"
	"github.com/speedrun-hq/settlement-tracker/pkg/retry"
	"github.com/speedrun-hq/settlement-tracker/pkg/trackerr"
)

const (
	DefaultMinDeadline = 60 * time.Second

	opBestQuote = "quote.best"
)

// Querier requests quotes from solvers. A nil or empty list means no liquidity.
type Querier interface {
	GetQuote(ctx context.Context, req models.QuoteRequest) ([]models.QuoteEntry, error)
}

// Config holds the service settings
type Config struct {
	// Policy bounds retries of the quote request across transport failures
	Policy models.RetryPolicy
	// MinDeadline is requested from solvers when the request leaves it unset
	MinDeadline time.Duration
	Clock       retry.Clock
}

// DefaultConfig returns the standard quote service configuration
func DefaultConfig() Config {
	return Config{
		Policy:      retry.DefaultQuotePolicy,
		MinDeadline: DefaultMinDeadline,
	}
}

// Service performs price discovery and picks the best quote
type Service struct {
	querier Querier
	cfg     Config
	logger  logger.Logger
}

// NewService creates a new quote service
func NewService(querier Querier, cfg Config, log logger.Logger) *Service {
	if cfg.Clock == nil {
		cfg.Clock = retry.SystemClock{}
	}
	if cfg.MinDeadline <= 0 {
		cfg.MinDeadline = DefaultMinDeadline
	}
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	return &Service{
		querier: querier,
		cfg:     cfg,
		logger:  log,
	}
}

// BestQuote requests quotes, retrying transport failures within the configured policy,
// drops quotes that already expired and returns the best remaining one for req.Direction.
func (s *Service) BestQuote(ctx context.Context, req models.QuoteRequest) (models.Quote, error) {
	if err := validate(req); err != nil {
		return models.Quote{}, err
	}
	if req.MinDeadline <= 0 {
		req.MinDeadline = s.cfg.MinDeadline
	}

	entries, err := retry.Do(ctx, s.cfg.Clock, s.cfg.Policy, func(ctx context.Context, attempt int) ([]models.QuoteEntry, error) {
		return s.querier.GetQuote(ctx, req)
	}, func(err error, attemptsLeft int) (bool, error) {
		if !trackerr.IsTransient(err) {
			return false, err
		}
		if attemptsLeft != 0 {
			metrics.TrackerRetries.WithLabelValues(opBestQuote, "transient").Inc()
			s.logger.Debug("Quote request %s -> %s failed, retrying: %v", req.AssetIn, req.AssetOut, err)
		}
		return true, err
	})
	if err != nil {
		metrics.TrackerOutcomes.WithLabelValues(opBestQuote, metrics.OutcomeError).Inc()
		return models.Quote{}, err
	}

	live, expired := dropExpired(entries, s.cfg.Clock.Now())
	if len(live) == 0 && expired > 0 {
		metrics.TrackerOutcomes.WithLabelValues(opBestQuote, metrics.OutcomeUnavailable).Inc()
		return models.Quote{}, trackerr.New(trackerr.QuoteUnavailable, opBestQuote, "all quotes expired").
			With("asset_in", req.AssetIn).
			With("asset_out", req.AssetOut)
	}

	best, err := SelectBest(live, req.Direction)
	if err != nil {
		metrics.TrackerOutcomes.WithLabelValues(opBestQuote, metrics.OutcomeUnavailable).Inc()
		s.logger.Info("No quote for %s -> %s: %v", req.AssetIn, req.AssetOut, err)
		return models.Quote{}, err
	}

	metrics.QuoteSelected.WithLabelValues(string(req.Direction)).Inc()
	metrics.TrackerOutcomes.WithLabelValues(opBestQuote, metrics.OutcomeSelected).Inc()
	s.logger.Info("Selected quote %s out of %d: %s %s -> %s %s (rate %s)",
		best.QuoteHash, len(live),
		best.AmountIn.String(), best.AssetIn,
		best.AmountOut.String(), best.AssetOut,
		EffectiveRate(best).StringFixed(8))

	return best, nil
}

// EffectiveRate returns AmountOut / AmountIn in raw units. It is for display only; selection
// never compares rates.
func EffectiveRate(q models.Quote) decimal.Decimal {
	if q.AmountIn == nil || q.AmountOut == nil || q.AmountIn.Sign() == 0 {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(q.AmountOut, 0).Div(decimal.NewFromBigInt(q.AmountIn, 0))
}

// dropExpired removes quotes whose expiration is before now. Failed quotes are kept.
func dropExpired(entries []models.QuoteEntry, now time.Time) ([]models.QuoteEntry, int) {
	live := make([]models.QuoteEntry, 0, len(entries))
	expired := 0
	for _, e := range entries {
		if e.Quote != nil && !e.Quote.ExpirationTime.IsZero() && e.Quote.ExpirationTime.Before(now) {
			expired++
			continue
		}
		live = append(live, e)
	}
	return live, expired
}

func validate(req models.QuoteRequest) error {
	switch {
	case req.AssetIn == "" || req.AssetOut == "":
		return errors.New("quote request needs both assets")
	case req.AssetIn == req.AssetOut:
		return errors.New("quote request assets must differ")
	case req.Amount == nil || req.Amount.Sign() <= 0:
		return errors.New("quote request amount must be positive")
	case req.Direction != models.ExactIn && req.Direction != models.ExactOut:
		return errors.New("quote request direction must be exact_in or exact_out")
	}
	return nil
}
