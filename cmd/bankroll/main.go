package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/areyes/bankroll/config"
	"github.com/areyes/bankroll/internal/adapters/notify"
	"github.com/areyes/bankroll/internal/adapters/storage"
	"github.com/areyes/bankroll/internal/adapters/venue"
	"github.com/areyes/bankroll/internal/calibration"
	"github.com/areyes/bankroll/internal/domain"
	"github.com/areyes/bankroll/internal/guard"
	"github.com/areyes/bankroll/internal/ledger"
	"github.com/areyes/bankroll/internal/ports"
	"github.com/areyes/bankroll/internal/rebalance"
	"github.com/areyes/bankroll/internal/settlement"
	"github.com/areyes/bankroll/internal/trading"
	"github.com/areyes/bankroll/internal/tuner"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	once := flag.Bool("once", false, "run one trading cycle and exit")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	table := flag.Bool("table", false, "print full portfolio tables (default: compact 1-line)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)

	slog.Info("bankroll starting",
		"config", *configPath,
		"trading_interval", cfg.TradingInterval(),
		"settlement_interval", cfg.SettlementInterval(),
		"once", *once,
	)

	store, err := storage.NewSQLiteStore(cfg.Storage.DSN)
	if err != nil {
		slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
		os.Exit(1)
	}
	defer store.Close()

	led := ledger.New(ledger.Config{
		Allocation: domain.AllocationConfig{
			KalshiShare:   cfg.Allocation.KalshiShare,
			CoinbaseShare: cfg.Allocation.CoinbaseShare,
			ReserveShare:  cfg.Allocation.ReserveShare,
		},
		Ladder: ledger.LadderConfig{
			UnderAllocatedMinScore: cfg.Ladder.UnderAllocatedMinScore,
			BalancedMinScore:       cfg.Ladder.BalancedMinScore,
			OverAllocatedMinScore:  cfg.Ladder.OverAllocatedMinScore,
			BalancedBand:           cfg.Ladder.BalancedBand,
			DefaultMinScore:        cfg.Ladder.DefaultMinScore,
			MinAvailable:           cfg.Ladder.MinAvailable,
		},
		MaxTradeUSD:        cfg.Trading.MaxTradeUSD,
		MaxOpenPositions:   cfg.Trading.MaxOpenPositions,
		DailySpendingLimit: cfg.Trading.DailySpendingLimit,
		DailyProfitTarget:  cfg.Trading.DailyProfitTarget,
		MinConfidence:      cfg.Trading.MinConfidence,
		MinEdge:            cfg.Trading.MinEdge,
	}, store)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Persisted open trades are the source of truth after a restart: the
	// ledger rebuilds its allocation records from them before anything runs.
	for _, v := range domain.Venues() {
		open, err := store.GetOpenTrades(ctx, v, 500)
		if err != nil {
			slog.Warn("startup: open trade reconciliation failed", "venue", v, "err", err)
			continue
		}
		led.Restore(open)
	}

	// Venue HTTP clients live outside this module; the paper adapter stands
	// in for them here.
	clients := map[domain.Venue]ports.VenueClient{
		domain.VenueKalshi:   venue.NewPaper(domain.VenueKalshi, cfg.Trading.InitialBalance),
		domain.VenueCoinbase: venue.NewPaper(domain.VenueCoinbase, cfg.Trading.InitialBalance),
	}

	trackers := map[domain.Venue]*calibration.Tracker{
		domain.VenueKalshi:   calibration.New(store, domain.VenueKalshi),
		domain.VenueCoinbase: calibration.New(store, domain.VenueCoinbase),
	}

	notifier := notify.NewConsole(*table)

	engine := trading.New(clients, venue.NewFixtureSource(venue.DefaultFixtures()), led, trackers, notifier,
		trading.Config{Interval: cfg.TradingInterval()})

	if *once {
		if _, err := engine.RunOnce(ctx); err != nil {
			slog.Error("trading cycle failed", "err", err)
			os.Exit(1)
		}
		return
	}

	// One guard shared by the settlement workers; the cooldown stops an
	// overlapping tick from sweeping the same venue twice.
	g := guard.New(cfg.SettlementInterval() / 2)

	settlementCfg := settlement.Config{
		Interval:         cfg.SettlementInterval(),
		LookupLimit:      cfg.Settlement.LookupLimit,
		MaxRetries:       cfg.Settlement.MaxRetries,
		LookupsPerSecond: cfg.Settlement.LookupsPerSecond,
	}
	for v, client := range clients {
		w := settlement.New(v, client, store, led, g, settlementCfg)
		go func() {
			if err := w.Run(ctx); err != nil {
				slog.Error("settlement worker exited", "err", err)
			}
		}()
	}

	tn := tuner.New(store, tuner.Config{
		Interval:  cfg.TunerInterval(),
		MinSample: cfg.Tuner.MinSample,
		Window:    cfg.Tuner.Window,
	}, nil)
	go func() {
		if err := tn.Run(ctx); err != nil {
			slog.Error("tuner exited", "err", err)
		}
	}()

	reb := rebalance.New(led, store, cfg.Rebalance.Threshold)
	go runRebalanceLoop(ctx, reb, cfg)

	if err := engine.Run(ctx); err != nil {
		slog.Error("trading engine exited with error", "err", err)
		os.Exit(1)
	}

	slog.Info("bankroll stopped cleanly")
}

// runRebalanceLoop periodically checks allocation drift and logs advisory
// transfer suggestions. Transfers are never executed automatically.
func runRebalanceLoop(ctx context.Context, reb *rebalance.Tracker, cfg *config.Config) {
	ticker := time.NewTicker(cfg.TunerInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reb.Suggest(ctx)
		}
	}
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
