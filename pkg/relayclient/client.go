// Package relayclient is a JSON-RPC client for the solver relay and the withdrawal bridge.
// Errors are classified into the trackerr taxonomy so the trackers can decide what to retry.
package relayclient

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/speedrun-hq/settlement-tracker/pkg/circuitbreaker"
	"github.com/speedrun-hq/settlement-tracker/pkg/logger"
	"github.com/speedrun-hq/settlement-tracker/pkg/metrics"
	"github.com/speedrun-hq/settlement-tracker/pkg/trackerr"
)

const (
	DefaultSolverRelayURL = "https://solver-relay-v2.chaindefuser.com/rpc"
	DefaultBridgeURL      = "https://bridge.chaindefuser.com/rpc"
	DefaultTimeout        = 10 * time.Second

	// maxErrorBody bounds how much of an unexpected response is kept in error details
	maxErrorBody = 512
)

// Config holds the client settings
type Config struct {
	SolverRelayURL string
	BridgeURL      string
	APIKey         string // sent as a Bearer token when set
	Timeout        time.Duration
	RateLimit      float64 // requests per second across both endpoints, 0 disables limiting
	RateBurst      int
	Breaker        circuitbreaker.Settings
}

// Client talks to the relay endpoints. It is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	relay      *endpoint
	bridge     *endpoint
	apiKey     string
	logger     logger.Logger
}

type endpoint struct {
	name    string
	url     string
	breaker *circuitbreaker.CircuitBreaker
}

// New creates a new relay client
func New(cfg Config, log logger.Logger) *Client {
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	if cfg.SolverRelayURL == "" {
		cfg.SolverRelayURL = DefaultSolverRelayURL
	}
	if cfg.BridgeURL == "" {
		cfg.BridgeURL = DefaultBridgeURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 1
	}

	return &Client{
		httpClient: createHTTPClient(cfg.Timeout),
		limiter:    rate.NewLimiter(limit, burst),
		relay: &endpoint{
			name:    "solver-relay",
			url:     cfg.SolverRelayURL,
			breaker: circuitbreaker.NewCircuitBreaker("solver-relay", cfg.Breaker, log),
		},
		bridge: &endpoint{
			name:    "bridge",
			url:     cfg.BridgeURL,
			breaker: circuitbreaker.NewCircuitBreaker("bridge", cfg.Breaker, log),
		},
		apiKey: cfg.APIKey,
		logger: log,
	}
}

// Breakers returns the circuit breakers of both endpoints
func (c *Client) Breakers() []*circuitbreaker.CircuitBreaker {
	return []*circuitbreaker.CircuitBreaker{c.relay.breaker, c.bridge.breaker}
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      string        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcResponse struct {
	ID     json.RawMessage    `json:"id"`
	Result json.RawMessage    `json:"result"`
	Error  *trackerr.RPCError `json:"error"`
}

// call performs one JSON-RPC request. Cancellation returns context.Cause(ctx) unmodified.
func (c *Client) call(ctx context.Context, ep *endpoint, method string, params interface{}, result interface{}) (err error) {
	op := ep.name + "." + method

	if ep.breaker.IsOpen() {
		metrics.RelayRequests.WithLabelValues(method, "circuit_open").Inc()
		return trackerr.New(trackerr.TransportTransient, op, "circuit breaker open").With("endpoint", ep.url)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return context.Cause(ctx)
		}
		return trackerr.Wrap(trackerr.TransportTransient, op, err, "rate limiter")
	}

	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      uuid.NewString(),
		Method:  method,
		Params:  []interface{}{params},
	})
	if err != nil {
		return errors.Wrapf(err, "failed to encode %s request", method)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.url, bytes.NewReader(body))
	if err != nil {
		return errors.Wrapf(err, "failed to build %s request", method)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	defer func() {
		metrics.RelayRequestTime.WithLabelValues(method).Observe(time.Since(start).Seconds())
		metrics.RelayRequests.WithLabelValues(method, resultLabel(err)).Inc()
	}()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return context.Cause(ctx)
		}
		ep.breaker.RecordFailure()
		return trackerr.Wrap(trackerr.TransportTransient, op, errors.Wrapf(err, "post %s", ep.url), "request failed")
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			c.logger.Error("Failed to close response body: %v", err)
		}
	}(resp.Body)

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return context.Cause(ctx)
		}
		ep.breaker.RecordFailure()
		return trackerr.Wrap(trackerr.TransportTransient, op, errors.Wrap(err, "read response body"), "request failed")
	}

	if resp.StatusCode != http.StatusOK {
		return c.classifyStatus(ep, op, resp.StatusCode, bodyBytes)
	}
	ep.breaker.RecordSuccess()

	var envelope rpcResponse
	if err := json.Unmarshal(bodyBytes, &envelope); err != nil {
		return trackerr.Wrap(trackerr.InvariantViolation, op, errors.Wrap(err, "decode response"), "malformed response").
			With("body", truncate(bodyBytes))
	}
	if envelope.Error != nil {
		c.logger.Debug("%s rejected: %v", op, envelope.Error)
		return trackerr.Rejected(op, envelope.Error)
	}
	if result == nil {
		return nil
	}
	if err := json.Unmarshal(envelope.Result, result); err != nil {
		return trackerr.Wrap(trackerr.InvariantViolation, op, errors.Wrap(err, "decode result"), "malformed result").
			With("body", truncate(envelope.Result))
	}
	return nil
}

// classifyStatus maps a non-200 HTTP answer: overload and server errors are transient, the rest is a rejection
func (c *Client) classifyStatus(ep *endpoint, op string, status int, body []byte) error {
	if status >= http.StatusInternalServerError || status == http.StatusTooManyRequests || status == http.StatusRequestTimeout {
		ep.breaker.RecordFailure()
		return trackerr.New(trackerr.TransportTransient, op, "unexpected status "+http.StatusText(status)).
			With("status", strconv.Itoa(status)).
			With("body", truncate(body))
	}

	return trackerr.Rejected(op, &trackerr.RPCError{
		Code:    status,
		Message: http.StatusText(status),
		Data:    jsonString(truncate(body)),
	})
}

func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	switch trackerr.KindOf(err) {
	case trackerr.TransportTransient:
		return "transient"
	case trackerr.RPCRejected:
		return "rejected"
	case trackerr.InvariantViolation:
		return "malformed"
	case trackerr.Cancelled:
		return "cancelled"
	}
	return "error"
}

// Helper function to create an HTTP client with timeouts
func createHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 100,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}
