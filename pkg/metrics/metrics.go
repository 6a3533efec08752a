package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome label values for TrackerOutcomes
const (
	OutcomeSettled           = "settled"
	OutcomeNotFoundOrInvalid = "not_found_or_not_valid"
	OutcomeCompleted         = "completed"
	OutcomeSelected          = "selected"
	OutcomeCancelled         = "cancelled"
	OutcomeTimeout           = "timeout"
	OutcomeNotFound          = "not_found"
	OutcomePendingExhausted  = "pending_exhausted"
	OutcomeInvariant         = "invariant_violation"
	OutcomeUnavailable       = "unavailable"
	OutcomeError             = "error"
)

// Metrics for monitoring
var (
	PollAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tracker_poll_attempts_total",
		Help: "The total number of status queries issued by trackers",
	}, []string{"op", "chain_id"})

	TrackerOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tracker_outcomes_total",
		Help: "Terminal outcomes of tracking operations",
	}, []string{"op", "outcome"})

	TrackerDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tracker_duration_seconds",
		Help:    "Time from the first query to the terminal outcome",
		Buckets: prometheus.ExponentialBuckets(0.25, 2, 14), // 250ms up to ~68 minutes
	}, []string{"op"})

	TrackerRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tracker_retries_total",
		Help: "Retries performed by trackers, by reason",
	}, []string{"op", "reason"})

	TxHashKnown = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tracker_tx_hash_known_total",
		Help: "Number of times a destination transaction hash first became observable",
	})

	RelayRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_requests_total",
		Help: "JSON-RPC requests sent to the relay and bridge, by result",
	}, []string{"method", "result"})

	RelayRequestTime = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "relay_request_seconds",
		Help:    "Round trip time of relay JSON-RPC requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method"})

	RelayCircuitOpen = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "relay_circuit_open",
		Help: "1 while the circuit breaker of a relay endpoint is open",
	}, []string{"endpoint"})

	QuoteSelected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quote_selected_total",
		Help: "Number of quotes selected, by trade direction",
	}, []string{"direction"})

	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "events_published_total",
		Help: "Tracking events published to NATS, by result",
	}, []string{"subject", "result"})
)
