// Package marketdata provides quote and candle retrieval from external data
// sources. Implementations never propagate transport errors as panics; a
// failed lookup is reported through the error return and callers degrade.
package marketdata

import (
	"context"
	"sort"
	"time"

	"moextrader/internal/domain"
)

// Quoter supplies last-trade prices and historical candles by ticker.
type Quoter interface {
	// CurrentPrice returns the last known trade price for the ticker.
	CurrentPrice(ctx context.Context, ticker string) (float64, error)

	// Candles returns OHLCV bars for the ticker within [from, to], ascending
	// by time.
	Candles(ctx context.Context, ticker string, from, to time.Time, interval domain.Interval) ([]domain.Candle, error)
}

// Normalize sorts candles ascending by time, drops duplicate timestamps
// (keeping the first occurrence), and clips the result to [from, to].
func Normalize(candles []domain.Candle, from, to time.Time) []domain.Candle {
	sort.SliceStable(candles, func(i, j int) bool {
		return candles[i].Time.Before(candles[j].Time)
	})

	out := candles[:0]
	var last time.Time
	for _, c := range candles {
		if c.Time.Before(from) || c.Time.After(to) {
			continue
		}
		if len(out) > 0 && c.Time.Equal(last) {
			continue
		}
		out = append(out, c)
		last = c.Time
	}
	return out
}
