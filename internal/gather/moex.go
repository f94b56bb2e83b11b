// Package gather backfills historical candle data from the MOEX ISS API into
// local storage.
package gather

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"moextrader/internal/domain"
	"moextrader/internal/marketdata"
	"moextrader/internal/store"
)

// Backfiller pulls candle history for a ticker set and persists it. Tickers
// are distributed over a bounded worker pool; a failing ticker is logged and
// skipped, never aborting the run.
type Backfiller struct {
	quoter     marketdata.Quoter
	stores     []store.CandleStore
	interval   domain.Interval
	maxWorkers int
	chunk      time.Duration

	log *slog.Logger
}

// NewBackfiller creates a Backfiller writing each pulled batch into every
// given store. chunk bounds how much history one request covers; the ISS API
// caps responses at 500 rows.
func NewBackfiller(quoter marketdata.Quoter, stores []store.CandleStore, interval domain.Interval, maxWorkers int, chunk time.Duration) *Backfiller {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	if chunk <= 0 {
		chunk = 14 * 24 * time.Hour
	}
	return &Backfiller{
		quoter:     quoter,
		stores:     stores,
		interval:   interval,
		maxWorkers: maxWorkers,
		chunk:      chunk,
		log:        slog.Default().With("component", "backfill"),
	}
}

// Run backfills [from, to] for every ticker and returns once all workers
// finish. The error reports only how many tickers failed; details go to the
// log as they happen.
func (b *Backfiller) Run(ctx context.Context, tickers []string, from, to time.Time) error {
	if len(tickers) == 0 {
		return nil
	}

	tickerCh := make(chan int, len(tickers))
	for i := range tickers {
		tickerCh <- i
	}
	close(tickerCh)

	var (
		wg       sync.WaitGroup
		failed   atomic.Int64
		total    atomic.Int64
		runStart = time.Now()
	)

	workers := min(b.maxWorkers, len(tickers))
	b.log.Info("starting backfill",
		"tickers", len(tickers),
		"from", from.Format("2006-01-02"),
		"to", to.Format("2006-01-02"),
		"interval", b.interval,
		"workers", workers,
	)

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range tickerCh {
				if ctx.Err() != nil {
					return
				}

				ticker := tickers[idx]
				n, err := b.backfillTicker(ctx, ticker, from, to)
				if err != nil {
					failed.Add(1)
					b.log.Error("ticker backfill failed", "ticker", ticker, "err", err)
					continue
				}
				total.Add(int64(n))
				b.log.Info("ticker done",
					"ticker", ticker,
					"candles", n,
					"elapsed", time.Since(runStart).Round(time.Second),
				)
			}
		}()
	}

	wg.Wait()

	if ctx.Err() != nil {
		return ctx.Err()
	}

	b.log.Info("backfill complete", "candles", total.Load(), "failed", failed.Load())
	if n := failed.Load(); n > 0 {
		return fmt.Errorf("backfill finished with %d failed tickers", n)
	}
	return nil
}

// backfillTicker walks the window in chunks and writes each batch.
func (b *Backfiller) backfillTicker(ctx context.Context, ticker string, from, to time.Time) (int, error) {
	written := 0
	for start := from; start.Before(to); start = start.Add(b.chunk) {
		end := start.Add(b.chunk)
		if end.After(to) {
			end = to
		}

		candles, err := b.quoter.Candles(ctx, ticker, start, end, b.interval)
		if err != nil {
			return written, fmt.Errorf("fetching %s..%s: %w",
				start.Format("2006-01-02"), end.Format("2006-01-02"), err)
		}
		if len(candles) == 0 {
			continue
		}

		for _, s := range b.stores {
			if err := s.WriteCandles(ctx, candles, b.interval); err != nil {
				return written, fmt.Errorf("writing %d candles: %w", len(candles), err)
			}
		}
		written += len(candles)
	}
	return written, nil
}
