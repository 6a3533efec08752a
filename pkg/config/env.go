package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/speedrun-hq/settlement-tracker/pkg/logger"
)

const (
	// DefaultSolverRelayURL is the JSON-RPC endpoint of the solver relay
	DefaultSolverRelayURL = "https://solver-relay-v2.chaindefuser.com/rpc"

	// DefaultBridgeURL is the JSON-RPC endpoint of the withdrawal bridge
	DefaultBridgeURL = "https://bridge.chaindefuser.com/rpc"

	// DefaultRequestTimeout bounds a single relay request
	DefaultRequestTimeout = 10 * time.Second

	// DefaultRateLimitRPS and DefaultRateLimitBurst pace requests to the relay endpoints
	DefaultRateLimitRPS   = 10.0
	DefaultRateLimitBurst = 20

	// DefaultIntentPollInterval is the fixed pause between intent status checks
	DefaultIntentPollInterval = 200 * time.Millisecond

	// DefaultInvalidStreakThreshold is how many consecutive NOT_FOUND_OR_NOT_VALID answers end tracking
	DefaultInvalidStreakThreshold = 3

	// DefaultPollMinInterval and DefaultPollMaxInterval clamp the adaptive poll interval
	DefaultPollMinInterval = 1 * time.Second
	DefaultPollMaxInterval = 30 * time.Second

	// DefaultQuoteMinDeadline is the minimum quote validity requested from solvers
	DefaultQuoteMinDeadline = 60 * time.Second

	// DefaultMetricsPort defines the default port for the metrics server
	DefaultMetricsPort = "8080"

	// DefaultCircuitBreakerEnabled defines whether the circuit breaker is enabled
	DefaultCircuitBreakerEnabled = true

	// DefaultCircuitBreakerThreshold defines the number of failures before the circuit breaker trips
	DefaultCircuitBreakerThreshold = 5

	// DefaultCircuitBreakerWindow defines the time window for the circuit breaker
	DefaultCircuitBreakerWindow = 5 * time.Second

	// DefaultCircuitBreakerReset defines the reset timeout for the circuit breaker
	DefaultCircuitBreakerReset = 15 * time.Second

	// DefaultNATSSubjectPrefix prefixes the subjects tracking events are published on
	DefaultNATSSubjectPrefix = "evt.tracker"

	// DefaultLogLevel is used when LOG_LEVEL is unset
	DefaultLogLevel = logger.InfoLevel

	// DefaultLogColoring defines whether log prefixes are coloured
	DefaultLogColoring = true
)

// GetEnvSolverRelayURL returns the solver relay endpoint from environment variables
func GetEnvSolverRelayURL() (string, error) {
	return getEnvURL("SOLVER_RELAY_URL", DefaultSolverRelayURL)
}

// GetEnvBridgeURL returns the bridge endpoint from environment variables
func GetEnvBridgeURL() (string, error) {
	return getEnvURL("BRIDGE_URL", DefaultBridgeURL)
}

// GetEnvRelayAPIKey returns the optional API key sent to the relay endpoints
func GetEnvRelayAPIKey() string {
	return os.Getenv("RELAY_API_KEY")
}

// GetEnvMetricsAPIKey returns the optional API key protecting /metrics
func GetEnvMetricsAPIKey() string {
	return os.Getenv("METRICS_API_KEY")
}

// GetEnvRequestTimeout returns the relay request timeout from environment variables
func GetEnvRequestTimeout() (time.Duration, error) {
	return getEnvPositiveDuration("REQUEST_TIMEOUT", DefaultRequestTimeout)
}

// GetEnvRateLimitRPS returns the relay request rate from environment variables; 0 disables limiting
func GetEnvRateLimitRPS() (float64, error) {
	rps := os.Getenv("RATE_LIMIT_RPS")
	if rps == "" {
		return DefaultRateLimitRPS, nil
	}

	parsed, err := strconv.ParseFloat(rps, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid RATE_LIMIT_RPS value: %s, must be a number", rps)
	}
	if parsed < 0 {
		return 0, fmt.Errorf("RATE_LIMIT_RPS must be greater than or equal to 0")
	}
	return parsed, nil
}

// GetEnvRateLimitBurst returns the relay request burst from environment variables
func GetEnvRateLimitBurst() (int, error) {
	return getEnvPositiveInt("RATE_LIMIT_BURST", DefaultRateLimitBurst)
}

// GetEnvIntentPollInterval returns the pause between intent status checks
func GetEnvIntentPollInterval() (time.Duration, error) {
	return getEnvPositiveDuration("INTENT_POLL_INTERVAL", DefaultIntentPollInterval)
}

// GetEnvInvalidStreakThreshold returns how many NOT_FOUND_OR_NOT_VALID answers in a row end tracking
func GetEnvInvalidStreakThreshold() (int, error) {
	return getEnvPositiveInt("INVALID_STREAK_THRESHOLD", DefaultInvalidStreakThreshold)
}

// GetEnvPollMinInterval returns the lower bound of the adaptive poll interval
func GetEnvPollMinInterval() (time.Duration, error) {
	return getEnvPositiveDuration("POLL_MIN_INTERVAL", DefaultPollMinInterval)
}

// GetEnvPollMaxInterval returns the upper bound of the adaptive poll interval
func GetEnvPollMaxInterval() (time.Duration, error) {
	return getEnvPositiveDuration("POLL_MAX_INTERVAL", DefaultPollMaxInterval)
}

// GetEnvQuoteMinDeadline returns the minimum quote validity requested from solvers
func GetEnvQuoteMinDeadline() (time.Duration, error) {
	return getEnvPositiveDuration("QUOTE_MIN_DEADLINE", DefaultQuoteMinDeadline)
}

// GetEnvMetricsPort returns the metrics server port from environment variables
func GetEnvMetricsPort() (string, error) {
	metricsPort := os.Getenv("METRICS_PORT")
	if metricsPort == "" {
		return DefaultMetricsPort, nil
	}

	// Validate port format
	if _, err := strconv.Atoi(metricsPort); err != nil {
		return "", fmt.Errorf("invalid METRICS_PORT value: %s, must be a valid integer", metricsPort)
	}
	return metricsPort, nil
}

// GetEnvCircuitBreakerEnabled returns whether the circuit breaker is enabled from environment variables
func GetEnvCircuitBreakerEnabled() (bool, error) {
	return getEnvBool("CIRCUIT_BREAKER_ENABLED", DefaultCircuitBreakerEnabled)
}

// GetEnvCircuitBreakerThreshold returns the circuit breaker threshold from environment variables
func GetEnvCircuitBreakerThreshold() (int, error) {
	return getEnvPositiveInt("CIRCUIT_BREAKER_THRESHOLD", DefaultCircuitBreakerThreshold)
}

// GetEnvCircuitBreakerWindow returns the circuit breaker window duration from environment variables
func GetEnvCircuitBreakerWindow() (time.Duration, error) {
	return getEnvPositiveDuration("CIRCUIT_BREAKER_WINDOW", DefaultCircuitBreakerWindow)
}

// GetEnvCircuitBreakerReset returns the circuit breaker reset timeout from environment variables
func GetEnvCircuitBreakerReset() (time.Duration, error) {
	return getEnvPositiveDuration("CIRCUIT_BREAKER_RESET", DefaultCircuitBreakerReset)
}

// GetEnvNATSURL returns the NATS server URL; empty disables event publishing
func GetEnvNATSURL() string {
	return os.Getenv("NATS_URL")
}

// GetEnvNATSSubjectPrefix returns the subject prefix for tracking events
func GetEnvNATSSubjectPrefix() string {
	prefix := os.Getenv("NATS_SUBJECT_PREFIX")
	if prefix == "" {
		return DefaultNATSSubjectPrefix
	}
	return prefix
}

// GetEnvLogLevel returns the log level from environment variables
func GetEnvLogLevel() (logger.Level, error) {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		return DefaultLogLevel, nil
	}

	parsed, err := logger.ParseLevel(level)
	if err != nil {
		return 0, fmt.Errorf("invalid LOG_LEVEL value: %s, must be one of debug, info, notice, error", level)
	}
	return parsed, nil
}

// GetEnvLogColoring returns whether log prefixes are coloured
func GetEnvLogColoring() (bool, error) {
	return getEnvBool("LOG_COLORING", DefaultLogColoring)
}

func getEnvURL(name, def string) (string, error) {
	value := os.Getenv(name)
	if value == "" {
		return def, nil
	}

	// Validate URL format
	if _, err := url.ParseRequestURI(value); err != nil {
		return "", fmt.Errorf("invalid %s value: %s, must be a valid URL", name, value)
	}
	return value, nil
}

func getEnvPositiveDuration(name string, def time.Duration) (time.Duration, error) {
	value := os.Getenv(name)
	if value == "" {
		return def, nil
	}

	// Validate duration format
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value: %s, must be a valid duration string", name, value)
	}
	if parsed <= 0 {
		return 0, fmt.Errorf("%s must be greater than 0", name)
	}
	return parsed, nil
}

func getEnvPositiveInt(name string, def int) (int, error) {
	value := os.Getenv(name)
	if value == "" {
		return def, nil
	}

	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value: %s, must be an integer", name, value)
	}
	if parsed <= 0 {
		return 0, fmt.Errorf("%s must be greater than 0", name)
	}
	return parsed, nil
}

func getEnvBool(name string, def bool) (bool, error) {
	value := os.Getenv(name)
	if value == "" {
		return def, nil
	}

	if value == "true" {
		return true, nil
	} else if value == "false" {
		return false, nil
	}

	return false, fmt.Errorf("invalid %s value: %s, must be 'true' or 'false'", name, value)
}
