// Package main wires the Market Feed, Strategy Core, Execution Adapter,
// Event Sink, and Control Plane into one process and drives the boot/run/
// shutdown sequence named in spec §5:
//
//  1. loadEnv()           - env-var wiring for infra knobs the teacher read
//                           via getEnv in env.go (DSN, venue URL, addr, mode)
//  2. config.NewLoader    - per-symbol, bounds-checked Configuration (§3)
//  3. sink.Open           - connect + migrate the relational store (§4.7)
//  4. wire broker/feed/risk/strategy core (§4.3/§4.1/§4.4/§4.5)
//  5. start feed, tick source, control plane goroutines
//  6. on SIGINT/SIGTERM, post Shutdown and wait for the core to flatten
//
// Usage:
//
//	liqreversion run
//	liqreversion migrate
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/chidi150c/liqreversion/internal/config"
	"github.com/chidi150c/liqreversion/internal/control"
	"github.com/chidi150c/liqreversion/internal/domain"
	"github.com/chidi150c/liqreversion/internal/events"
	"github.com/chidi150c/liqreversion/internal/execution"
	"github.com/chidi150c/liqreversion/internal/feed"
	"github.com/chidi150c/liqreversion/internal/logging"
	"github.com/chidi150c/liqreversion/internal/risk"
	"github.com/chidi150c/liqreversion/internal/sink"
	"github.com/chidi150c/liqreversion/internal/strategy"
)

const tickInterval = 100 * time.Millisecond

func main() {
	root := &cobra.Command{
		Use:   "liqreversion",
		Short: "Forced-liquidation mean-reversion trading bot",
	}
	root.AddCommand(runCmd(), migrateCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Connect the feed, boot the strategy core, and trade until signalled to stop",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context())
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Connect to the relational store and apply AutoMigrate for the seven logical tables plus control_commands",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := logging.New(slog.LevelInfo)
			snk, err := sink.Open(getEnv("DB_DSN", ""), logger)
			if err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			snk.Close()
			logger.Info("migration complete")
			return nil
		},
	}
}

func run(parentCtx context.Context) error {
	env := loadEnv()
	logger := logging.New(env.logLevel)

	loader := config.NewLoader(env.symbols, ".")
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if env.modeOverride != "" {
		cfg.Mode = env.modeOverride
	}

	snk, err := sink.Open(env.dbDSN, logger)
	if err != nil {
		return fmt.Errorf("sink: %w", err)
	}
	defer snk.Close()
	logger = logging.WithSink(logger, snk)

	if blob, err := json.Marshal(cfg); err == nil {
		snk.EnqueueConfig(domain.ConfigSnapshot{
			Version:   cfg.Version,
			JSONBlob:  string(blob),
			Timestamp: time.Now().UTC(),
		})
	} else {
		logger.Warn("config snapshot marshal failed", "error", err)
	}

	// The Feed needs a destination channel before the Strategy Core (whose
	// real mailbox is the destination) exists; Rewire points it at the
	// core's mailbox once the core is built.
	placeholder := make(chan events.Event)
	f := feed.New(env.venueWSURL, env.symbols, placeholder, logger)

	broker, err := newBroker(cfg, env, f)
	if err != nil {
		return fmt.Errorf("broker: %w", err)
	}

	dayStart := time.Now().UTC()
	startEquity, err := broker.GetEquity(parentCtx)
	if err != nil && cfg.Mode == "paper" {
		startEquity = env.paperStartEquity
		err = nil
	}
	if err != nil {
		return fmt.Errorf("initial equity: %w", err)
	}
	gov := risk.New(risk.Config{
		MaxTradesPerDay:                    cfg.MaxTradesPerDay,
		MaxConsecutiveLosses:               cfg.MaxConsecutiveLosses,
		DailyMaxLossPct:                    cfg.DailyMaxLossPct,
		PauseAfterConsecutiveLossesMinutes: cfg.PauseAfterConsecutiveLossesMinutes,
	}, startEquity, dayStart)

	core := strategy.New(cfg, f, broker, gov, snk, logger)
	f.Rewire(core.Mailbox())

	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := core.Boot(ctx); err != nil {
		logger.Error("boot failed", "error", err)
		return err
	}

	// The core runs on its own context so the termination signal does not
	// stop it before it has processed the Shutdown event posted below.
	coreCtx, stopCore := context.WithCancel(parentCtx)
	defer stopCore()
	coreDone := make(chan struct{})
	go func() {
		core.Run(coreCtx)
		close(coreDone)
	}()

	go f.Run(ctx)
	go runTickSource(ctx, core)

	ctrl := control.New(env.controlAddr, core, f, broker, snk, env.symbols, logger)
	go ctrl.Run(ctx)

	<-ctx.Done()
	logger.Info("shutdown signal received, flattening open position")

	reply := make(chan struct{}, 1)
	select {
	case core.Mailbox() <- events.Shutdown{Reply: reply}:
		select {
		case <-reply:
		case <-time.After(10 * time.Second):
			logger.Warn("shutdown flatten did not acknowledge in time")
			stopCore()
		}
	case <-time.After(1 * time.Second):
		logger.Warn("strategy core mailbox unreachable at shutdown")
		stopCore()
	}

	<-coreDone
	return nil
}

// runTickSource posts the 100ms position-monitor heartbeat named in spec
// §4.1/§4.5, independent of the feed's own event cadence.
func runTickSource(ctx context.Context, core *strategy.Core) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			select {
			case core.Mailbox() <- events.Tick{Now: now.UTC()}:
			default:
				// Mailbox saturated; skip this tick rather than block the
				// ticker loop, next tick arrives in 100ms regardless.
			}
		}
	}
}

func newBroker(cfg config.Config, env envConfig, f *feed.Feed) (execution.Broker, error) {
	if cfg.Mode == "live" {
		return execution.NewLiveBroker(execution.LiveConfig{
			APIKey:        env.liveAPIKey,
			APISecret:     env.liveAPISecret,
			RecvWindowMs:  env.recvWindowMs,
			Paper:         env.liveTestnet,
			TestnetAPIKey: env.testnetAPIKey,
			TestnetSecret: env.testnetAPISecret,
			HTTPTimeout:   10 * time.Second,
		}), nil
	}
	return execution.NewPaperBroker(strategy.FeedPriceSource{Feed: f}, env.paperStartEquity), nil
}

// envConfig holds the infra-level knobs that sit outside the bounded
// Configuration loader (spec §3 only covers trading behavior, not
// connection strings or credentials), read the way the teacher's env.go
// reads .env-sourced settings.
type envConfig struct {
	symbols          []string
	venueWSURL       string
	controlAddr      string
	dbDSN            string
	logLevel         slog.Level
	modeOverride     string
	paperStartEquity float64

	liveAPIKey       string
	liveAPISecret    string
	liveTestnet      bool
	testnetAPIKey    string
	testnetAPISecret string
	recvWindowMs     int64
}

func loadEnv() envConfig {
	symbols := strings.Split(getEnv("SYMBOLS", "BTCUSDT"), ",")
	for i := range symbols {
		symbols[i] = strings.TrimSpace(symbols[i])
	}
	return envConfig{
		symbols:          symbols,
		venueWSURL:       getEnv("VENUE_WS_URL", "wss://fstream.example.com/stream"),
		controlAddr:      getEnv("CONTROL_ADDR", ":8080"),
		dbDSN:            getEnv("DB_DSN", ""),
		logLevel:         parseLevel(getEnv("LOG_LEVEL", "info")),
		modeOverride:     getEnv("MODE", ""),
		paperStartEquity: getEnvFloat("PAPER_START_EQUITY", 10000),
		liveAPIKey:       getEnv("VENUE_API_KEY", ""),
		liveAPISecret:    getEnv("VENUE_API_SECRET", ""),
		liveTestnet:      getEnvBool("VENUE_TESTNET", false),
		testnetAPIKey:    getEnv("VENUE_TESTNET_API_KEY", ""),
		testnetAPISecret: getEnv("VENUE_TESTNET_API_SECRET", ""),
		recvWindowMs:     int64(getEnvFloat("VENUE_RECV_WINDOW_MS", 5000)),
	}
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getEnvBool(key string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "y", "yes":
		return true
	case "0", "false", "n", "no":
		return false
	default:
		return def
	}
}
