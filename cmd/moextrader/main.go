package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"moextrader/internal/advisor/builtins"
	"moextrader/internal/broker"
	"moextrader/internal/config"
	"moextrader/internal/domain"
	"moextrader/internal/marketdata"
	"moextrader/internal/notify"
	"moextrader/internal/orchestrator"
	"moextrader/internal/status"
	"moextrader/internal/store"
	"moextrader/internal/util"
)

func main() {
	// .env is optional; real deployments use environment variables directly.
	_ = godotenv.Load()

	cfgPath := "config/moextrader.yaml"
	if p := os.Getenv("MOEXTRADER_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)

	quoter := marketdata.NewMOEXClient()

	sqlite, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatalf("failed to open sqlite store: %v", err)
	}
	defer sqlite.Close()

	advisors := builtins.NewRegistry()
	adv, ok := advisors.Get(cfg.Trading.Advisor)
	if !ok {
		log.Fatalf("unknown advisor %q, available: %v", cfg.Trading.Advisor, advisors.List())
	}

	var notifier notify.Notifier = notify.Nop{}
	if cfg.Telegram.BotToken != "" && cfg.Telegram.ChatID != "" {
		notifier = notify.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChatID, "")
	}

	var sandboxBroker, liveBroker broker.Broker
	mode := cfg.Trading.Mode
	if mode == "sandbox" || mode == "dual" {
		sandboxBroker = broker.New(&cfg.Brokers, broker.Options{
			Type:           cfg.Brokers.Sandbox,
			Mode:           domain.ModeSandbox,
			InitialCapital: cfg.Trading.InitialCapital,
			Quoter:         quoter,
		})
	}
	if mode == "live" || mode == "dual" {
		liveBroker = broker.New(&cfg.Brokers, broker.Options{
			Type:           cfg.Brokers.Live,
			Mode:           domain.ModeLive,
			InitialCapital: cfg.Trading.InitialCapital,
			Quoter:         quoter,
		})
	}

	o := orchestrator.New(orchestrator.Options{
		Sandbox:        sandboxBroker,
		Live:           liveBroker,
		SandboxCapital: cfg.Trading.InitialCapital,
		LiveCapital:    cfg.Trading.InitialCapital,
		Advisor:        adv,
		Candles:        sqlite,
		Orders:         sqlite,
		Status:         status.NewWriter(cfg.Storage.StatusPath),
		Notifier:       notifier,
		Tickers:        cfg.Trading.Tickers,
		CyclePeriod:    parseDuration(cfg.Trading.CyclePeriod, 30*time.Minute),
		CandleLookback: parseDuration(cfg.Trading.CandleLookback, 72*time.Hour),
		CandleInterval: domain.Interval(cfg.Trading.CandleInterval),
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("starting moextrader", "mode", mode, "advisor", adv.Name(), "tickers", cfg.Trading.Tickers)
	if err := o.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatalf("orchestrator error: %v", err)
	}
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
