package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"moextrader/internal/config"
	"moextrader/internal/domain"
	"moextrader/internal/gather"
	"moextrader/internal/marketdata"
	"moextrader/internal/store"
	"moextrader/internal/util"
)

func main() {
	days := flag.Int("days", 30, "how many days of history to backfill")
	interval := flag.String("interval", "1h", "candle interval: 1m, 5m, 15m, 1h, 1d")
	tickerList := flag.String("tickers", "", "comma-separated ticker override")
	workers := flag.Int("workers", 4, "concurrent tickers")
	flag.Parse()

	_ = godotenv.Load()

	cfgPath := "config/moextrader.yaml"
	if p := os.Getenv("MOEXTRADER_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// Dual logger: stdout + /tmp log file.
	logFileName := fmt.Sprintf("/tmp/candle-sync-%s.log", time.Now().Format("2006-01-02"))
	logFile, err := os.Create(logFileName)
	if err != nil {
		log.Fatalf("failed to create log file: %v", err)
	}
	defer logFile.Close()

	w := io.MultiWriter(os.Stdout, logFile)
	slog.SetDefault(util.NewLoggerTo(w, cfg.Logging.Level, "text"))

	tickers := cfg.Trading.Tickers
	if *tickerList != "" {
		tickers = strings.Split(*tickerList, ",")
		for i := range tickers {
			tickers[i] = strings.TrimSpace(tickers[i])
		}
	}

	sqlite, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatalf("failed to open sqlite store: %v", err)
	}
	defer sqlite.Close()

	stores := []store.CandleStore{
		sqlite,
		store.NewParquetStore(cfg.Storage.DataDir),
	}

	backfiller := gather.NewBackfiller(
		marketdata.NewMOEXClient(),
		stores,
		domain.Interval(*interval),
		*workers,
		14*24*time.Hour,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	to := time.Now()
	from := to.AddDate(0, 0, -*days)

	slog.Info("starting candle-sync", "logFile", logFileName, "days", *days, "interval", *interval)
	if err := backfiller.Run(ctx, tickers, from, to); err != nil {
		log.Fatalf("backfill error: %v", err)
	}
}
