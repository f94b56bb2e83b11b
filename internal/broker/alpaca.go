package broker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/shopspring/decimal"

	"moextrader/internal/credpool"
	"moextrader/internal/domain"
	"moextrader/internal/marketdata"
)

// Compile-time interface check.
var _ Broker = (*AlpacaBroker)(nil)

// AlpacaBroker implements the broker capability set with the Alpaca SDK.
// Pool credentials are "key:secret" pairs; a fresh SDK client is built for
// whichever credential the rotation hands out.
type AlpacaBroker struct {
	pool    *credpool.Pool
	baseURL string
	dataURL string
	log     *slog.Logger
}

// NewAlpacaBroker creates an AlpacaBroker wired to the given credential pool
// and API endpoints. Empty URLs use the SDK defaults.
func NewAlpacaBroker(pool *credpool.Pool, baseURL, dataURL string) *AlpacaBroker {
	return &AlpacaBroker{
		pool:    pool,
		baseURL: baseURL,
		dataURL: dataURL,
		log:     slog.Default().With("broker", "alpaca"),
	}
}

// Name returns "alpaca".
func (b *AlpacaBroker) Name() string { return "alpaca" }

// GetPortfolio combines the account and positions endpoints into one
// snapshot, degrading to zeros with the error once retries exhaust.
func (b *AlpacaBroker) GetPortfolio(ctx context.Context) (domain.Portfolio, error) {
	var portfolio domain.Portfolio
	err := b.withCredential(ctx, func(client *alpaca.Client) error {
		account, err := client.GetAccount()
		if err != nil {
			return fmt.Errorf("GetAccount: %w", err)
		}
		positions, err := client.GetPositions()
		if err != nil {
			return fmt.Errorf("GetPositions: %w", err)
		}

		portfolio = domain.Portfolio{
			TotalValue: account.Equity.InexactFloat64(),
			Cash:       account.Cash.InexactFloat64(),
			Positions:  make([]domain.Position, 0, len(positions)),
		}
		for _, pos := range positions {
			p := domain.Position{
				Ticker:      pos.Symbol,
				Quantity:    int(pos.Qty.IntPart()),
				AvgBuyPrice: pos.AvgEntryPrice.InexactFloat64(),
			}
			if pos.CurrentPrice != nil {
				p.CurrentPrice = pos.CurrentPrice.InexactFloat64()
			}
			portfolio.Positions = append(portfolio.Positions, p)
		}
		return nil
	})
	if err != nil {
		b.log.Error("portfolio query failed, returning degraded snapshot", "err", err)
		return domain.Portfolio{Positions: []domain.Position{}}, err
	}
	return portfolio, nil
}

// PlaceMarketOrder submits a day market order through the trading API.
func (b *AlpacaBroker) PlaceMarketOrder(ctx context.Context, ticker string, quantity int, direction domain.Direction) (domain.OrderResult, error) {
	if quantity <= 0 {
		b.log.Warn("rejecting non-positive order quantity", "ticker", ticker, "quantity", quantity)
		return domain.Failed(), nil
	}

	side := alpaca.Buy
	if direction == domain.Sell {
		side = alpaca.Sell
	}
	qty := decimal.NewFromInt(int64(quantity))

	var result domain.OrderResult
	err := b.withCredential(ctx, func(client *alpaca.Client) error {
		order, err := client.PlaceOrder(alpaca.PlaceOrderRequest{
			Symbol:      ticker,
			Qty:         &qty,
			Side:        side,
			Type:        alpaca.Market,
			TimeInForce: alpaca.Day,
		})
		if err != nil {
			return fmt.Errorf("PlaceOrder: %w", err)
		}

		// EXECUTED only reflects a confirmed fill; an accepted-but-unfilled
		// order reports FAILED with zero lots rather than asserting a fill
		// the venue has not confirmed.
		lots := int(order.FilledQty.IntPart())
		status := domain.OrderFailed
		if lots > 0 {
			status = domain.OrderExecuted
		}
		result = domain.OrderResult{
			OrderID:      order.ID,
			Status:       status,
			LotsExecuted: lots,
		}
		if order.FilledAvgPrice != nil {
			result.ExecutedPrice = order.FilledAvgPrice.InexactFloat64()
		}
		return nil
	})
	if err != nil {
		return domain.Failed(), err
	}
	return result, nil
}

// ResolveSymbol returns the ticker unchanged: Alpaca addresses instruments
// by symbol.
func (b *AlpacaBroker) ResolveSymbol(_ context.Context, ticker string) (string, bool) {
	return ticker, true
}

// GetCandles fetches bars through the market-data API with the same
// credential rotation as the trading calls.
func (b *AlpacaBroker) GetCandles(ctx context.Context, ticker string, from, to time.Time, interval domain.Interval) ([]domain.Candle, error) {
	attempts := b.pool.EligibleCount()
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		cred, ok := b.pool.Acquire(credpool.RoundRobin)
		if !ok {
			return nil, ErrNoCredentials
		}

		key, secret := splitAlpacaKey(cred.Value)
		quoter := marketdata.NewAlpacaQuoter(key, secret, b.dataURL)

		candles, err := quoter.Candles(ctx, ticker, from, to, interval)
		if err != nil {
			lastErr = err
			b.pool.MarkFailed(cred)
			continue
		}
		b.pool.MarkWorking(cred)
		return candles, nil
	}
	return nil, fmt.Errorf("alpaca candles for %s: %w", ticker, lastErr)
}

// withCredential rotates "key:secret" pool entries into SDK clients until
// one call succeeds, bounded by the eligible count at call start.
func (b *AlpacaBroker) withCredential(_ context.Context, fn func(client *alpaca.Client) error) error {
	attempts := b.pool.EligibleCount()
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		cred, ok := b.pool.Acquire(credpool.RoundRobin)
		if !ok {
			return ErrNoCredentials
		}

		key, secret := splitAlpacaKey(cred.Value)
		client := alpaca.NewClient(alpaca.ClientOpts{
			APIKey:    key,
			APISecret: secret,
			BaseURL:   b.baseURL,
		})

		if err := fn(client); err != nil {
			lastErr = err
			b.pool.MarkFailed(cred)
			b.log.Warn("request failed, rotating credential", "attempt", i+1, "attempts", attempts, "err", err)
			continue
		}

		b.pool.MarkWorking(cred)
		return nil
	}
	return lastErr
}

// splitAlpacaKey splits a "key:secret" credential value.
func splitAlpacaKey(value string) (key, secret string) {
	key, secret, _ = strings.Cut(value, ":")
	return key, secret
}
