// Package builtins provides the advisor implementations that ship with the
// trading bot.
package builtins

import (
	"context"

	"moextrader/internal/advisor"
	"moextrader/internal/domain"
)

// Compile-time interface check.
var _ advisor.Advisor = (*SMACross)(nil)

// buyCashFraction caps how much free cash a single buy intent may commit.
const buyCashFraction = 0.3

// SMACross implements a simple moving average crossover advisor. It proposes
// a buy when the short-period SMA crosses above the long-period SMA on the
// latest candle, and a full exit when it crosses below.
type SMACross struct {
	shortPeriod int
	longPeriod  int
}

// NewSMACross creates a new SMACross advisor with the specified short and
// long moving average periods.
func NewSMACross(short, long int) *SMACross {
	return &SMACross{
		shortPeriod: short,
		longPeriod:  long,
	}
}

// Name returns "sma-cross".
func (s *SMACross) Name() string {
	return "sma-cross"
}

// Advise detects a crossover on the most recent candle. Without enough
// history to fill both windows it stays silent.
func (s *SMACross) Advise(_ context.Context, ticker string, candles []domain.Candle, pos *domain.Position, cash float64) (*advisor.Intent, error) {
	// A crossover needs both SMAs at the latest candle and at the one before.
	if len(candles) < s.longPeriod+1 {
		return nil, nil
	}

	shortNow := sma(candles, s.shortPeriod, 0)
	longNow := sma(candles, s.longPeriod, 0)
	shortPrev := sma(candles, s.shortPeriod, 1)
	longPrev := sma(candles, s.longPeriod, 1)

	crossedUp := shortPrev <= longPrev && shortNow > longNow
	crossedDown := shortPrev >= longPrev && shortNow < longNow

	switch {
	case crossedUp && pos == nil:
		price := candles[len(candles)-1].Close
		if price <= 0 {
			return nil, nil
		}
		quantity := int(cash * buyCashFraction / price)
		if quantity < 1 {
			return nil, nil
		}
		return &advisor.Intent{Ticker: ticker, Direction: domain.Buy, Quantity: quantity}, nil

	case crossedDown && pos != nil && pos.Quantity > 0:
		return &advisor.Intent{Ticker: ticker, Direction: domain.Sell, Quantity: pos.Quantity}, nil
	}

	return nil, nil
}

// sma averages the closes of the period candles ending offset bars before the
// latest one.
func sma(candles []domain.Candle, period, offset int) float64 {
	end := len(candles) - offset
	sum := 0.0
	for _, c := range candles[end-period : end] {
		sum += c.Close
	}
	return sum / float64(period)
}
