package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"

	"moextrader/internal/credpool"
	"moextrader/internal/domain"
	"moextrader/internal/marketdata"
)

// Compile-time interface check.
var _ Broker = (*AlorBroker)(nil)

const defaultAlorBaseURL = "https://api.alor.ru"

// alorExchange is the exchange code used for all instrument lookups.
const alorExchange = "MOEX"

// AlorBroker talks to the Alor Open API. Instruments are addressed by ticker
// directly, so symbol resolution is the identity. JWT tokens come from the
// credential pool with the same rotate-on-failure policy as the other
// credentialed adapters.
type AlorBroker struct {
	pool      *credpool.Pool
	accountID string
	baseURL   string
	http      *http.Client
	log       *slog.Logger
}

// NewAlorBroker creates an AlorBroker wired to the given credential pool and
// portfolio account (e.g. "L01-00000F00").
func NewAlorBroker(pool *credpool.Pool, accountID, baseURL string) *AlorBroker {
	if baseURL == "" {
		baseURL = defaultAlorBaseURL
	}
	return &AlorBroker{
		pool:      pool,
		accountID: accountID,
		baseURL:   baseURL,
		http:      &http.Client{Timeout: 10 * time.Second},
		log:       slog.Default().With("broker", "alor"),
	}
}

// Name returns "alor".
func (b *AlorBroker) Name() string { return "alor" }

type alorPortfolioResponse struct {
	Equity    float64 `json:"equity"`
	Cash      float64 `json:"cash"`
	Positions []struct {
		Symbol       string  `json:"symbol"`
		Qty          int     `json:"qty"`
		CurrentPrice float64 `json:"currentPrice"`
		AveragePrice float64 `json:"averagePrice"`
	} `json:"positions"`
}

type alorOrderResponse struct {
	OrderNumber string `json:"orderNumber"`
	Message     string `json:"message"`
}

type alorHistoryResponse struct {
	History []struct {
		Time   int64   `json:"time"` // Unix seconds
		Open   float64 `json:"open"`
		High   float64 `json:"high"`
		Low    float64 `json:"low"`
		Close  float64 `json:"close"`
		Volume int64   `json:"volume"`
	} `json:"history"`
}

// GetPortfolio queries the portfolio summary endpoint, degrading to a zero
// snapshot with the error once the retry budget exhausts.
func (b *AlorBroker) GetPortfolio(ctx context.Context) (domain.Portfolio, error) {
	var resp alorPortfolioResponse
	err := b.withCredential(ctx, func(token string) error {
		endpoint := fmt.Sprintf("%s/md/v2/portfolios/%s", b.baseURL, url.PathEscape(b.accountID))
		return b.do(ctx, token, http.MethodGet, endpoint, nil, &resp)
	})
	if err != nil {
		b.log.Error("portfolio query failed, returning degraded snapshot", "err", err)
		return domain.Portfolio{Positions: []domain.Position{}}, err
	}

	portfolio := domain.Portfolio{
		TotalValue: resp.Equity,
		Cash:       resp.Cash,
		Positions:  make([]domain.Position, 0, len(resp.Positions)),
	}
	for _, pos := range resp.Positions {
		portfolio.Positions = append(portfolio.Positions, domain.Position{
			Ticker:       pos.Symbol,
			Quantity:     pos.Qty,
			CurrentPrice: pos.CurrentPrice,
			AvgBuyPrice:  pos.AveragePrice,
		})
	}
	return portfolio, nil
}

// PlaceMarketOrder posts a market order through the command API. Execution
// price is not echoed back by the endpoint; the caller observes it through
// the next portfolio query.
func (b *AlorBroker) PlaceMarketOrder(ctx context.Context, ticker string, quantity int, direction domain.Direction) (domain.OrderResult, error) {
	if quantity <= 0 {
		b.log.Warn("rejecting non-positive order quantity", "ticker", ticker, "quantity", quantity)
		return domain.Failed(), nil
	}

	side := "buy"
	if direction == domain.Sell {
		side = "sell"
	}

	body := map[string]any{
		"side":     side,
		"quantity": quantity,
		"instrument": map[string]string{
			"symbol":   ticker,
			"exchange": alorExchange,
		},
		"user": map[string]string{
			"portfolio": b.accountID,
		},
	}

	var resp alorOrderResponse
	err := b.withCredential(ctx, func(token string) error {
		endpoint := b.baseURL + "/commandapi/warptrans/TRADE/v2/client/orders/actions/market"
		return b.do(ctx, token, http.MethodPost, endpoint, body, &resp)
	})
	if err != nil {
		return domain.Failed(), err
	}
	if resp.OrderNumber == "" {
		b.log.Warn("order rejected by venue", "ticker", ticker, "message", resp.Message)
		return domain.Failed(), nil
	}

	return domain.OrderResult{
		OrderID:      resp.OrderNumber,
		Status:       domain.OrderExecuted,
		LotsExecuted: quantity,
	}, nil
}

// ResolveSymbol returns the ticker unchanged: Alor addresses MOEX
// instruments by ticker.
func (b *AlorBroker) ResolveSymbol(_ context.Context, ticker string) (string, bool) {
	return ticker, true
}

// GetCandles queries the history endpoint and normalizes the result.
func (b *AlorBroker) GetCandles(ctx context.Context, ticker string, from, to time.Time, interval domain.Interval) ([]domain.Candle, error) {
	q := url.Values{}
	q.Set("symbol", ticker)
	q.Set("exchange", alorExchange)
	q.Set("tf", strconv.Itoa(alorTimeframe(interval)))
	q.Set("from", strconv.FormatInt(from.Unix(), 10))
	q.Set("to", strconv.FormatInt(to.Unix(), 10))

	var resp alorHistoryResponse
	err := b.withCredential(ctx, func(token string) error {
		endpoint := b.baseURL + "/md/v2/history?" + q.Encode()
		return b.do(ctx, token, http.MethodGet, endpoint, nil, &resp)
	})
	if err != nil {
		return nil, fmt.Errorf("alor candles for %s: %w", ticker, err)
	}

	candles := make([]domain.Candle, 0, len(resp.History))
	for _, c := range resp.History {
		candles = append(candles, domain.Candle{
			Ticker: ticker,
			Time:   time.Unix(c.Time, 0).UTC(),
			Open:   c.Open,
			High:   c.High,
			Low:    c.Low,
			Close:  c.Close,
			Volume: c.Volume,
		})
	}
	return marketdata.Normalize(candles, from, to), nil
}

// withCredential mirrors the rotation policy of the other credentialed
// adapters: budget = eligible count at call start, MarkFailed + next on
// every failure.
func (b *AlorBroker) withCredential(ctx context.Context, fn func(token string) error) error {
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

		if err := fn(cred.Value); err != nil {
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

func (b *AlorBroker) do(ctx context.Context, token, method, endpoint string, body any, dst any) error {
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-ALOR-REQID", uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := b.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s returned status %d", method, endpoint, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}

// alorTimeframe maps a candle interval onto Alor's timeframe seconds.
func alorTimeframe(interval domain.Interval) int {
	switch interval {
	case domain.Interval1Min:
		return 60
	case domain.Interval5Min:
		return 300
	case domain.Interval15Min:
		return 900
	case domain.Interval1Day:
		return 86400
	default:
		return 3600
	}
}
