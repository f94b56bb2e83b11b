// Package domain defines the core types shared across the trading system:
// candles, positions, portfolio snapshots, and order results.
package domain

import "time"

// ---------------------------------------------------------------------------
// Market data
// ---------------------------------------------------------------------------

// Candle is a single OHLCV bar for one ticker and interval.
type Candle struct {
	Ticker string
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume int64
}

// Interval identifies a candle timeframe.
type Interval string

const (
	Interval1Min  Interval = "1m"
	Interval5Min  Interval = "5m"
	Interval15Min Interval = "15m"
	Interval1Hour Interval = "1h"
	Interval1Day  Interval = "1d"
)

// ---------------------------------------------------------------------------
// Orders
// ---------------------------------------------------------------------------

// Direction is the side of a market order.
type Direction string

const (
	Buy  Direction = "BUY"
	Sell Direction = "SELL"
)

// OrderStatus is the terminal state of an order placement attempt. Orders
// either execute fully at the requested quantity or fail entirely.
type OrderStatus string

const (
	OrderExecuted OrderStatus = "EXECUTED"
	OrderFailed   OrderStatus = "FAILED"
)

// OrderResult describes the outcome of a single market order placement.
type OrderResult struct {
	OrderID       string
	Status        OrderStatus
	LotsExecuted  int
	ExecutedPrice float64
}

// Failed returns a FAILED OrderResult with zero execution fields.
func Failed() OrderResult {
	return OrderResult{Status: OrderFailed}
}

// OrderRecord is one immutable entry in an account's order history.
type OrderRecord struct {
	OrderID   string
	Ticker    string
	Quantity  int
	Price     float64
	Direction Direction
	Timestamp time.Time
}

// ---------------------------------------------------------------------------
// Portfolio
// ---------------------------------------------------------------------------

// Position is a held instrument within one account. Quantity is always
// positive; a fully closed position is removed rather than kept at zero.
type Position struct {
	Ticker       string  `json:"ticker"`
	Quantity     int     `json:"quantity"`
	CurrentPrice float64 `json:"current_price"`
	AvgBuyPrice  float64 `json:"average_buy_price"`
}

// Portfolio is an on-demand snapshot of one account: cash plus every position
// marked to the latest known price. It is never cached across queries.
type Portfolio struct {
	Positions  []Position
	TotalValue float64
	Cash       float64
}

// ---------------------------------------------------------------------------
// Trading contexts
// ---------------------------------------------------------------------------

// Mode identifies one of the two isolated trading contexts.
type Mode string

const (
	ModeSandbox Mode = "sandbox"
	ModeLive    Mode = "live"
)
