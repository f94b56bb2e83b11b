// Package store defines storage interfaces for persisting and retrieving
// candle history and executed-order records.
package store

import (
	"context"
	"time"

	"moextrader/internal/domain"
)

// CandleStore persists and retrieves OHLCV candle data.
type CandleStore interface {
	// WriteCandles persists a batch of candles at the given interval.
	// Re-writing an existing (ticker, interval, time) entry replaces it.
	WriteCandles(ctx context.Context, candles []domain.Candle, interval domain.Interval) error

	// ReadCandles returns candles for the ticker within [from, to],
	// sorted ascending by time.
	ReadCandles(ctx context.Context, ticker string, from, to time.Time, interval domain.Interval) ([]domain.Candle, error)

	// ListTickers returns all distinct tickers with stored candles at the
	// given interval.
	ListTickers(ctx context.Context, interval domain.Interval) ([]string, error)
}

// OrderStore persists executed-order records per trading context.
type OrderStore interface {
	// SaveOrder appends one executed order to the given context's log.
	SaveOrder(ctx context.Context, mode domain.Mode, rec domain.OrderRecord) error

	// ListOrders returns the most recent orders for a context, newest
	// first, up to limit. A non-positive limit returns everything.
	ListOrders(ctx context.Context, mode domain.Mode, limit int) ([]domain.OrderRecord, error)
}
