package broker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"moextrader/internal/domain"
	"moextrader/internal/marketdata"
)

// Compile-time interface check.
var _ Broker = (*PaperBroker)(nil)

// defaultPrices is the last-resort price table used when neither a live quote
// nor an existing position average is available. It keeps the simulation from
// halting on missing data; it is not meant to be accurate.
var defaultPrices = map[string]float64{
	"SBER": 300.0,
	"GAZP": 200.0,
	"LKOH": 7000.0,
	"GMKN": 25000.0,
	"YNDX": 3000.0,
}

const fallbackPrice = 100.0

// position is the ledger's internal record of one held instrument.
type position struct {
	quantity int
	avgPrice float64
}

// PaperBroker is the simulated ledger: an in-memory paper-trading engine
// implementing the full broker capability set without talking to any venue.
// Quotes come from the market-data collaborator; order execution is
// all-or-nothing and mutates state only on success.
type PaperBroker struct {
	mu        sync.Mutex
	cash      float64
	positions map[string]*position
	history   []domain.OrderRecord
	lastStamp int64 // monotonic component of generated order ids

	quoter marketdata.Quoter
	log    *slog.Logger
}

// NewPaperBroker creates a PaperBroker with the given starting cash. The
// quoter supplies live marks; it may be nil, in which case the ledger relies
// on position averages and the built-in default table.
func NewPaperBroker(initialCapital float64, quoter marketdata.Quoter) *PaperBroker {
	b := &PaperBroker{
		cash:      initialCapital,
		positions: make(map[string]*position),
		quoter:    quoter,
		log:       slog.Default().With("broker", "paper"),
	}
	b.log.Info("paper broker initialised", "capital", initialCapital)
	return b
}

// Name returns "paper".
func (b *PaperBroker) Name() string { return "paper" }

// GetPortfolio re-marks every position against the latest quote and returns
// the snapshot. Nothing is cached between calls.
func (b *PaperBroker) GetPortfolio(ctx context.Context) (domain.Portfolio, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	snapshot := domain.Portfolio{
		Cash:       b.cash,
		TotalValue: b.cash,
		Positions:  make([]domain.Position, 0, len(b.positions)),
	}

	for ticker, pos := range b.positions {
		price := b.markPriceLocked(ctx, ticker, pos)
		snapshot.TotalValue += float64(pos.quantity) * price
		snapshot.Positions = append(snapshot.Positions, domain.Position{
			Ticker:       ticker,
			Quantity:     pos.quantity,
			CurrentPrice: price,
			AvgBuyPrice:  pos.avgPrice,
		})
	}

	return snapshot, nil
}

// PlaceMarketOrder executes a virtual market order against the ledger. The
// order either fully executes at the current mark price or fails with no
// state mutation.
func (b *PaperBroker) PlaceMarketOrder(ctx context.Context, ticker string, quantity int, direction domain.Direction) (domain.OrderResult, error) {
	if quantity <= 0 {
		b.log.Warn("rejecting non-positive order quantity", "ticker", ticker, "quantity", quantity)
		return domain.Failed(), nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	price := b.markPriceLocked(ctx, ticker, b.positions[ticker])
	orderValue := float64(quantity) * price

	switch direction {
	case domain.Buy:
		if b.cash < orderValue {
			b.log.Warn("insufficient cash for buy", "ticker", ticker, "quantity", quantity, "value", orderValue, "cash", b.cash)
			return domain.Failed(), nil
		}
		b.cash -= orderValue
		if pos, held := b.positions[ticker]; held {
			newQty := pos.quantity + quantity
			pos.avgPrice = (float64(pos.quantity)*pos.avgPrice + float64(quantity)*price) / float64(newQty)
			pos.quantity = newQty
		} else {
			b.positions[ticker] = &position{quantity: quantity, avgPrice: price}
		}

	case domain.Sell:
		pos, held := b.positions[ticker]
		if !held || pos.quantity < quantity {
			b.log.Warn("insufficient position for sell", "ticker", ticker, "quantity", quantity)
			return domain.Failed(), nil
		}
		b.cash += orderValue
		pos.quantity -= quantity
		if pos.quantity == 0 {
			delete(b.positions, ticker)
		}

	default:
		b.log.Warn("unknown order direction", "direction", direction)
		return domain.Failed(), nil
	}

	orderID := b.nextOrderIDLocked(ticker)
	b.history = append(b.history, domain.OrderRecord{
		OrderID:   orderID,
		Ticker:    ticker,
		Quantity:  quantity,
		Price:     price,
		Direction: direction,
		Timestamp: time.Now(),
	})

	b.log.Info("paper trade executed", "direction", direction, "ticker", ticker, "quantity", quantity, "price", price)

	return domain.OrderResult{
		OrderID:       orderID,
		Status:        domain.OrderExecuted,
		LotsExecuted:  quantity,
		ExecutedPrice: price,
	}, nil
}

// ResolveSymbol returns the ticker unchanged: the simulator addresses
// instruments by ticker directly.
func (b *PaperBroker) ResolveSymbol(_ context.Context, ticker string) (string, bool) {
	return ticker, true
}

// GetCandles delegates to the market-data collaborator.
func (b *PaperBroker) GetCandles(ctx context.Context, ticker string, from, to time.Time, interval domain.Interval) ([]domain.Candle, error) {
	if b.quoter == nil {
		return nil, fmt.Errorf("paper broker has no market-data source")
	}
	candles, err := b.quoter.Candles(ctx, ticker, from, to, interval)
	if err != nil {
		return nil, fmt.Errorf("paper candles for %s: %w", ticker, err)
	}
	return candles, nil
}

// OrderHistory returns a copy of the append-only execution log.
func (b *PaperBroker) OrderHistory() []domain.OrderRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.OrderRecord, len(b.history))
	copy(out, b.history)
	return out
}

// markPriceLocked resolves the price used to mark or execute against the
// ticker: live quote, then the position's average, then the default table.
func (b *PaperBroker) markPriceLocked(ctx context.Context, ticker string, pos *position) float64 {
	if b.quoter != nil {
		if price, err := b.quoter.CurrentPrice(ctx, ticker); err == nil && price > 0 {
			return price
		}
	}
	if pos != nil {
		return pos.avgPrice
	}
	if price, ok := defaultPrices[ticker]; ok {
		return price
	}
	return fallbackPrice
}

// nextOrderIDLocked builds a process-unique order id from the ticker and a
// monotonically non-decreasing timestamp component.
func (b *PaperBroker) nextOrderIDLocked(ticker string) string {
	stamp := time.Now().Unix()
	if stamp <= b.lastStamp {
		stamp = b.lastStamp + 1
	}
	b.lastStamp = stamp
	return fmt.Sprintf("PAPER_%s_%d", ticker, stamp)
}
