package config

import (
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"

	"github.com/speedrun-hq/settlement-tracker/pkg/logger"
)

// Config holds the configuration for the tracker service. It is loaded once and passed
// explicitly to every component; nothing reads the environment after LoadConfig.
type Config struct {
	SolverRelayURL string
	BridgeURL      string
	RelayAPIKey    string
	RequestTimeout time.Duration
	RateLimitRPS   float64
	RateLimitBurst int

	IntentPollInterval     time.Duration
	InvalidStreakThreshold int
	PollMinInterval        time.Duration
	PollMaxInterval        time.Duration
	QuoteMinDeadline       time.Duration

	MetricsPort    string
	MetricsAPIKey  string
	CircuitBreaker CircuitBreakerConfig
	NATS           NATSConfig
	LoggerConfig   LoggerConfig
}

// CircuitBreakerConfig holds circuit breaker configuration
type CircuitBreakerConfig struct {
	Enabled        bool
	Threshold      int
	WindowDuration time.Duration
	ResetTimeout   time.Duration
}

// NATSConfig holds the event publisher configuration
type NATSConfig struct {
	URL           string // empty disables publishing
	SubjectPrefix string
}

// LoggerConfig holds the configuration for logging
type LoggerConfig struct {
	Level    logger.Level
	Coloring bool
}

// LoadConfig loads the configuration from environment variables
func LoadConfig() (*Config, error) {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found, using environment variables")
	}
	return FromEnv()
}

// FromEnv builds the configuration from the current environment
func FromEnv() (*Config, error) {
	solverRelayURL, err := GetEnvSolverRelayURL()
	if err != nil {
		return nil, err
	}

	bridgeURL, err := GetEnvBridgeURL()
	if err != nil {
		return nil, err
	}

	requestTimeout, err := GetEnvRequestTimeout()
	if err != nil {
		return nil, err
	}

	rateLimitRPS, err := GetEnvRateLimitRPS()
	if err != nil {
		return nil, err
	}

	rateLimitBurst, err := GetEnvRateLimitBurst()
	if err != nil {
		return nil, err
	}

	intentPollInterval, err := GetEnvIntentPollInterval()
	if err != nil {
		return nil, err
	}

	invalidStreakThreshold, err := GetEnvInvalidStreakThreshold()
	if err != nil {
		return nil, err
	}

	pollMinInterval, err := GetEnvPollMinInterval()
	if err != nil {
		return nil, err
	}

	pollMaxInterval, err := GetEnvPollMaxInterval()
	if err != nil {
		return nil, err
	}

	quoteMinDeadline, err := GetEnvQuoteMinDeadline()
	if err != nil {
		return nil, err
	}

	metricsPort, err := GetEnvMetricsPort()
	if err != nil {
		return nil, err
	}

	cbEnabled, err := GetEnvCircuitBreakerEnabled()
	if err != nil {
		return nil, err
	}

	cbThreshold, err := GetEnvCircuitBreakerThreshold()
	if err != nil {
		return nil, err
	}

	cbWindow, err := GetEnvCircuitBreakerWindow()
	if err != nil {
		return nil, err
	}

	cbReset, err := GetEnvCircuitBreakerReset()
	if err != nil {
		return nil, err
	}

	logLevel, err := GetEnvLogLevel()
	if err != nil {
		return nil, err
	}

	logColoring, err := GetEnvLogColoring()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		SolverRelayURL:         solverRelayURL,
		BridgeURL:              bridgeURL,
		RelayAPIKey:            GetEnvRelayAPIKey(),
		RequestTimeout:         requestTimeout,
		RateLimitRPS:           rateLimitRPS,
		RateLimitBurst:         rateLimitBurst,
		IntentPollInterval:     intentPollInterval,
		InvalidStreakThreshold: invalidStreakThreshold,
		PollMinInterval:        pollMinInterval,
		PollMaxInterval:        pollMaxInterval,
		QuoteMinDeadline:       quoteMinDeadline,
		MetricsPort:            metricsPort,
		MetricsAPIKey:          GetEnvMetricsAPIKey(),
		CircuitBreaker: CircuitBreakerConfig{
			Enabled:        cbEnabled,
			Threshold:      cbThreshold,
			WindowDuration: cbWindow,
			ResetTimeout:   cbReset,
		},
		NATS: NATSConfig{
			URL:           GetEnvNATSURL(),
			SubjectPrefix: GetEnvNATSSubjectPrefix(),
		},
		LoggerConfig: LoggerConfig{
			Level:    logLevel,
			Coloring: logColoring,
		},
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	if cfg.PollMinInterval > cfg.PollMaxInterval {
		return fmt.Errorf("POLL_MIN_INTERVAL (%s) must not exceed POLL_MAX_INTERVAL (%s)", cfg.PollMinInterval, cfg.PollMaxInterval)
	}
	return nil
}
