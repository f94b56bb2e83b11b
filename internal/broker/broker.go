// Package broker defines the broker capability interface and provides one
// adapter per brokerage backend plus a paper-trading simulator. Transport and
// auth failures never escape an adapter as a panic: credentialed adapters
// rotate through their pool and, once retries exhaust, degrade to a zero
// result alongside the error so callers can tell "could not observe" from
// "empty account".
package broker

import (
	"context"
	"errors"
	"time"

	"moextrader/internal/domain"
)

// ErrNoCredentials is returned by credentialed adapters whose pool holds no
// usable credential at all.
var ErrNoCredentials = errors.New("broker: no credentials available")

// Broker abstracts one brokerage backend. Every implementation exposes
// exactly this capability set with the same contract regardless of venue.
type Broker interface {
	// Name returns the broker identifier (e.g. "paper", "tinkoff").
	Name() string

	// GetPortfolio returns a snapshot of the account: cash plus every
	// position marked to the latest known price. A non-nil error accompanies
	// a zero snapshot when the backend could not be observed.
	GetPortfolio(ctx context.Context) (domain.Portfolio, error)

	// PlaceMarketOrder places a market order for quantity lots of ticker.
	// Non-positive quantities and business-rule rejections produce a FAILED
	// result with a nil error; the error is non-nil only for transport
	// failures after retries exhaust.
	PlaceMarketOrder(ctx context.Context, ticker string, quantity int, direction domain.Direction) (domain.OrderResult, error)

	// ResolveSymbol maps a ticker onto the venue's instrument identifier.
	// Venues that address instruments by ticker return it unchanged. The
	// second return value is false when the ticker is unknown.
	ResolveSymbol(ctx context.Context, ticker string) (string, bool)

	// GetCandles returns OHLCV bars for the ticker within [from, to],
	// ascending by time and deduplicated by timestamp. An empty slice with a
	// non-nil error signals a failed fetch.
	GetCandles(ctx context.Context, ticker string, from, to time.Time, interval domain.Interval) ([]domain.Candle, error)
}
