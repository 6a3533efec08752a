package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/speedrun-hq/settlement-tracker/pkg/config"
	"github.com/speedrun-hq/settlement-tracker/pkg/events"
	"github.com/speedrun-hq/settlement-tracker/pkg/health"
	"github.com/speedrun-hq/settlement-tracker/pkg/logger"
	"github.com/speedrun-hq/settlement-tracker/pkg/models"
	"github.com/speedrun-hq/settlement-tracker/pkg/quote"
	"github.com/speedrun-hq/settlement-tracker/pkg/tracking"
)

const serviceName = "settlement-tracker"

// errInterrupted is the cancellation cause recorded when a termination signal arrives
var errInterrupted = errors.New("interrupted by signal")

func usage() {
	fmt.Fprintf(os.Stderr, `Usage:
  %[1]s track-intent <intent_hash>
  %[1]s track-withdrawal [-adaptive] <bridge_tx_hash> <asset_id> [chain]
  %[1]s quote [-deadline 60s] <asset_in> <asset_out> <amount> [exact_in|exact_out]
`, serviceName)
}

func main() {
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() < 1 {
		usage()
		os.Exit(2)
	}

	// Load configuration from environment variables
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	appLogger := logger.NewStdLogger(cfg.LoggerConfig.Coloring, cfg.LoggerConfig.Level)

	// Set up context cancelled with a cause on SIGINT/SIGTERM
	ctx, cancel := context.WithCancelCause(context.Background())
	defer cancel(nil)

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-signalCh
		appLogger.Notice("Received termination signal, shutting down gracefully...")
		cancel(errInterrupted)
	}()

	var publisher events.Publisher = events.NopPublisher{}
	if cfg.NATS.URL != "" {
		natsPublisher, err := events.Connect(cfg.NATS.URL, cfg.NATS.SubjectPrefix, serviceName, appLogger)
		if err != nil {
			log.Fatalf("Failed to connect to NATS: %v", err)
		}
		publisher = natsPublisher
	}

	service := tracking.NewService(cfg, publisher, appLogger)

	healthServer := health.NewServer(cfg.MetricsPort, cfg.MetricsAPIKey, service.Breakers(), appLogger)
	go func() {
		if err := healthServer.Start(ctx); err != nil {
			appLogger.Error("Health server error: %v", err)
		}
	}()

	code := 0
	if err := run(ctx, service, appLogger, flag.Arg(0), flag.Args()[1:]); err != nil {
		code = 1
		if errors.Is(err, errInterrupted) {
			appLogger.Notice("Stopped: %v", err)
			code = 130
		} else {
			appLogger.Error("%s failed: %v", flag.Arg(0), err)
		}
	}

	// os.Exit skips deferred calls
	service.Close()
	cancel(nil)
	os.Exit(code)
}

func run(ctx context.Context, service *tracking.Service, log logger.Logger, command string, args []string) error {
	switch command {
	case "track-intent":
		return trackIntent(ctx, service, log, args)
	case "track-withdrawal":
		return trackWithdrawal(ctx, service, log, args)
	case "quote":
		return bestQuote(ctx, service, log, args)
	default:
		usage()
		return fmt.Errorf("unknown command %q", command)
	}
}

func trackIntent(ctx context.Context, service *tracking.Service, log logger.Logger, args []string) error {
	if len(args) != 1 {
		return errors.New("track-intent needs exactly one intent hash")
	}

	result, err := service.TrackIntent(ctx, args[0], func(txHash string) {
		log.Info("Destination transaction known: %s", txHash)
	})
	if err != nil {
		return err
	}
	return printJSON(result)
}

func trackWithdrawal(ctx context.Context, service *tracking.Service, log logger.Logger, args []string) error {
	fs := flag.NewFlagSet("track-withdrawal", flag.ContinueOnError)
	adaptive := fs.Bool("adaptive", false, "poll by the chain's completion latency instead of backing off")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 2 || fs.NArg() > 3 {
		return errors.New("track-withdrawal needs <bridge_tx_hash> <asset_id> [chain]")
	}

	req := tracking.WithdrawalRequest{
		TxHash:   fs.Arg(0),
		Criteria: models.WithdrawalCriteria{AssetID: fs.Arg(1)},
		Adaptive: *adaptive,
	}
	if fs.NArg() == 3 {
		req.Chain = fs.Arg(2)
	}

	log.InfoWithChain(req.Chain, "Tracking withdrawal %s of %s", req.TxHash, req.Criteria.AssetID)
	result, err := service.TrackWithdrawal(ctx, req)
	if err != nil {
		return err
	}
	return printJSON(result)
}

func bestQuote(ctx context.Context, service *tracking.Service, log logger.Logger, args []string) error {
	fs := flag.NewFlagSet("quote", flag.ContinueOnError)
	deadline := fs.Duration("deadline", 0, "minimum quote validity requested from solvers")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 3 || fs.NArg() > 4 {
		return errors.New("quote needs <asset_in> <asset_out> <amount> [exact_in|exact_out]")
	}

	amount, ok := new(big.Int).SetString(fs.Arg(2), 10)
	if !ok {
		return fmt.Errorf("invalid amount %q", fs.Arg(2))
	}
	direction := models.ExactIn
	if fs.NArg() == 4 {
		direction = models.TradeDirection(fs.Arg(3))
	}

	q, err := service.BestQuote(ctx, models.QuoteRequest{
		AssetIn:     fs.Arg(0),
		AssetOut:    fs.Arg(1),
		Amount:      amount,
		Direction:   direction,
		MinDeadline: *deadline,
	})
	if err != nil {
		return err
	}

	log.Debug("Effective rate %s", quote.EffectiveRate(q).String())
	return printJSON(map[string]string{
		"quote_hash":      q.QuoteHash,
		"asset_in":        q.AssetIn,
		"asset_out":       q.AssetOut,
		"amount_in":       q.AmountIn.String(),
		"amount_out":      q.AmountOut.String(),
		"expiration_time": q.ExpirationTime.UTC().Format(time.RFC3339),
	})
}
