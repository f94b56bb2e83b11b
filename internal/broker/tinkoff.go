package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"moextrader/internal/credpool"
	"moextrader/internal/domain"
	"moextrader/internal/marketdata"
)

// Compile-time interface check.
var _ Broker = (*TinkoffBroker)(nil)

const defaultTinkoffBaseURL = "https://invest-public-api.tinkoff.ru"

// TinkoffBroker talks to the Tinkoff Invest REST API. Instruments are
// addressed by FIGI, so every order placement resolves the ticker first.
// Each request draws a token from the credential pool; on failure the token
// is marked failed and the call retries with the next one, bounded by the
// pool's eligible count at call time.
type TinkoffBroker struct {
	pool      *credpool.Pool
	accountID string
	baseURL   string
	http      *http.Client
	log       *slog.Logger
}

// NewTinkoffBroker creates a TinkoffBroker wired to the given credential
// pool and account. baseURL may be empty for the public endpoint.
func NewTinkoffBroker(pool *credpool.Pool, accountID, baseURL string) *TinkoffBroker {
	if baseURL == "" {
		baseURL = defaultTinkoffBaseURL
	}
	return &TinkoffBroker{
		pool:      pool,
		accountID: accountID,
		baseURL:   baseURL,
		http:      &http.Client{Timeout: 15 * time.Second},
		log:       slog.Default().With("broker", "tinkoff"),
	}
}

// Name returns "tinkoff".
func (b *TinkoffBroker) Name() string { return "tinkoff" }

// ---------------------------------------------------------------------------
// Wire types (protobuf JSON mapping of the Invest API)
// ---------------------------------------------------------------------------

// quotation carries a decimal as integer units plus nanoseconds-style
// fractional part. Units arrive as a string per the protobuf JSON mapping.
type quotation struct {
	Units string `json:"units"`
	Nano  int64  `json:"nano"`
}

func (q quotation) Float() float64 {
	units, _ := strconv.ParseInt(q.Units, 10, 64)
	return float64(units) + float64(q.Nano)/1e9
}

type tinkoffPortfolioResponse struct {
	TotalAmountPortfolio  quotation `json:"totalAmountPortfolio"`
	TotalAmountCurrencies quotation `json:"totalAmountCurrencies"`
	Positions             []struct {
		Figi                 string    `json:"figi"`
		Ticker               string    `json:"ticker"`
		Quantity             quotation `json:"quantity"`
		CurrentPrice         quotation `json:"currentPrice"`
		AveragePositionPrice quotation `json:"averagePositionPrice"`
	} `json:"positions"`
}

type tinkoffOrderResponse struct {
	OrderID               string    `json:"orderId"`
	ExecutionReportStatus string    `json:"executionReportStatus"`
	LotsExecuted          string    `json:"lotsExecuted"`
	ExecutedOrderPrice    quotation `json:"executedOrderPrice"`
}

type tinkoffFindInstrumentResponse struct {
	Instruments []struct {
		Figi   string `json:"figi"`
		Ticker string `json:"ticker"`
	} `json:"instruments"`
}

type tinkoffCandlesResponse struct {
	Candles []struct {
		Open   quotation `json:"open"`
		High   quotation `json:"high"`
		Low    quotation `json:"low"`
		Close  quotation `json:"close"`
		Volume string    `json:"volume"`
		Time   time.Time `json:"time"`
	} `json:"candles"`
}

// ---------------------------------------------------------------------------
// Capability implementation
// ---------------------------------------------------------------------------

// GetPortfolio queries the Operations service. After the retry budget
// exhausts it returns a zero snapshot together with the last error.
func (b *TinkoffBroker) GetPortfolio(ctx context.Context) (domain.Portfolio, error) {
	var resp tinkoffPortfolioResponse
	err := b.withCredential(ctx, func(token string) error {
		return b.post(ctx, token,
			"tinkoff.public.invest.api.contract.v1.OperationsService/GetPortfolio",
			map[string]any{"accountId": b.accountID},
			&resp,
		)
	})
	if err != nil {
		b.log.Error("portfolio query failed, returning degraded snapshot", "err", err)
		return domain.Portfolio{Positions: []domain.Position{}}, err
	}

	portfolio := domain.Portfolio{
		TotalValue: resp.TotalAmountPortfolio.Float(),
		Cash:       resp.TotalAmountCurrencies.Float(),
		Positions:  make([]domain.Position, 0, len(resp.Positions)),
	}
	for _, pos := range resp.Positions {
		portfolio.Positions = append(portfolio.Positions, domain.Position{
			Ticker:       pos.Ticker,
			Quantity:     int(pos.Quantity.Float()),
			CurrentPrice: pos.CurrentPrice.Float(),
			AvgBuyPrice:  pos.AveragePositionPrice.Float(),
		})
	}
	return portfolio, nil
}

// PlaceMarketOrder resolves the FIGI and posts a market order. An unresolved
// ticker is a business rejection: FAILED with nil error, no retry.
func (b *TinkoffBroker) PlaceMarketOrder(ctx context.Context, ticker string, quantity int, direction domain.Direction) (domain.OrderResult, error) {
	if quantity <= 0 {
		b.log.Warn("rejecting non-positive order quantity", "ticker", ticker, "quantity", quantity)
		return domain.Failed(), nil
	}

	figi, ok := b.ResolveSymbol(ctx, ticker)
	if !ok {
		b.log.Warn("cannot resolve FIGI, rejecting order", "ticker", ticker)
		return domain.Failed(), nil
	}

	wireDirection := "ORDER_DIRECTION_BUY"
	if direction == domain.Sell {
		wireDirection = "ORDER_DIRECTION_SELL"
	}

	var resp tinkoffOrderResponse
	err := b.withCredential(ctx, func(token string) error {
		return b.post(ctx, token,
			"tinkoff.public.invest.api.contract.v1.OrdersService/PostOrder",
			map[string]any{
				"figi":      figi,
				"quantity":  strconv.Itoa(quantity),
				"direction": wireDirection,
				"accountId": b.accountID,
				"orderType": "ORDER_TYPE_MARKET",
				"orderId":   uuid.NewString(),
			},
			&resp,
		)
	})
	if err != nil {
		return domain.Failed(), err
	}

	lots, _ := strconv.Atoi(resp.LotsExecuted)
	status := domain.OrderFailed
	if lots > 0 {
		status = domain.OrderExecuted
	}
	return domain.OrderResult{
		OrderID:       resp.OrderID,
		Status:        status,
		LotsExecuted:  lots,
		ExecutedPrice: resp.ExecutedOrderPrice.Float(),
	}, nil
}

// ResolveSymbol looks the ticker up through the Instruments service and
// returns its FIGI.
func (b *TinkoffBroker) ResolveSymbol(ctx context.Context, ticker string) (string, bool) {
	var resp tinkoffFindInstrumentResponse
	err := b.withCredential(ctx, func(token string) error {
		return b.post(ctx, token,
			"tinkoff.public.invest.api.contract.v1.InstrumentsService/FindInstrument",
			map[string]any{"query": ticker},
			&resp,
		)
	})
	if err != nil {
		b.log.Warn("FIGI lookup failed", "ticker", ticker, "err", err)
		return "", false
	}

	for _, inst := range resp.Instruments {
		if inst.Ticker == ticker && inst.Figi != "" {
			return inst.Figi, true
		}
	}
	if len(resp.Instruments) > 0 && resp.Instruments[0].Figi != "" {
		return resp.Instruments[0].Figi, true
	}
	return "", false
}

// GetCandles queries the MarketData service by FIGI and normalizes the
// result. Any failure yields an empty slice plus the error.
func (b *TinkoffBroker) GetCandles(ctx context.Context, ticker string, from, to time.Time, interval domain.Interval) ([]domain.Candle, error) {
	figi, ok := b.ResolveSymbol(ctx, ticker)
	if !ok {
		return nil, fmt.Errorf("tinkoff candles: cannot resolve %s", ticker)
	}

	var resp tinkoffCandlesResponse
	err := b.withCredential(ctx, func(token string) error {
		return b.post(ctx, token,
			"tinkoff.public.invest.api.contract.v1.MarketDataService/GetCandles",
			map[string]any{
				"figi":     figi,
				"from":     from.Format(time.RFC3339),
				"to":       to.Format(time.RFC3339),
				"interval": tinkoffInterval(interval),
			},
			&resp,
		)
	})
	if err != nil {
		return nil, fmt.Errorf("tinkoff candles for %s: %w", ticker, err)
	}

	candles := make([]domain.Candle, 0, len(resp.Candles))
	for _, c := range resp.Candles {
		volume, _ := strconv.ParseInt(c.Volume, 10, 64)
		candles = append(candles, domain.Candle{
			Ticker: ticker,
			Time:   c.Time,
			Open:   c.Open.Float(),
			High:   c.High.Float(),
			Low:    c.Low.Float(),
			Close:  c.Close.Float(),
			Volume: volume,
		})
	}
	return marketdata.Normalize(candles, from, to), nil
}

// ---------------------------------------------------------------------------
// Transport
// ---------------------------------------------------------------------------

// withCredential runs fn with successive credentials until one succeeds. The
// retry budget is the pool's eligible count when the call starts; each
// failure marks the credential failed before rotating.
func (b *TinkoffBroker) withCredential(ctx context.Context, fn func(token string) error) error {
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

// post sends one authenticated request to the Invest REST gateway.
func (b *TinkoffBroker) post(ctx context.Context, token, method string, body any, dst any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/rest/%s", b.baseURL, method), bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned status %d", method, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}

func tinkoffInterval(interval domain.Interval) string {
	switch interval {
	case domain.Interval1Min:
		return "CANDLE_INTERVAL_1_MIN"
	case domain.Interval5Min:
		return "CANDLE_INTERVAL_5_MIN"
	case domain.Interval15Min:
		return "CANDLE_INTERVAL_15_MIN"
	case domain.Interval1Day:
		return "CANDLE_INTERVAL_DAY"
	default:
		return "CANDLE_INTERVAL_HOUR"
	}
}
