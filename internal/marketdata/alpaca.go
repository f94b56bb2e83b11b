package marketdata

import (
	"context"
	"fmt"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"moextrader/internal/domain"
)

// Compile-time interface check.
var _ Quoter = (*AlpacaQuoter)(nil)

// AlpacaQuoter retrieves quotes and candles from the Alpaca market-data API.
// Used when a trading context is wired to the Alpaca broker adapter.
type AlpacaQuoter struct {
	client *marketdata.Client
}

// NewAlpacaQuoter creates an AlpacaQuoter with the given credentials and
// optional data endpoint override.
func NewAlpacaQuoter(apiKey, apiSecret, dataURL string) *AlpacaQuoter {
	opts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if dataURL != "" {
		opts.BaseURL = dataURL
	}
	return &AlpacaQuoter{client: marketdata.NewClient(opts)}
}

// CurrentPrice returns the price of the latest trade for the symbol.
func (q *AlpacaQuoter) CurrentPrice(_ context.Context, ticker string) (float64, error) {
	trade, err := q.client.GetLatestTrade(ticker, marketdata.GetLatestTradeRequest{})
	if err != nil {
		return 0, fmt.Errorf("GetLatestTrade %s: %w", ticker, err)
	}
	if trade == nil || trade.Price <= 0 {
		return 0, fmt.Errorf("no trade price for %s", ticker)
	}
	return trade.Price, nil
}

// Candles returns OHLCV bars for the symbol within [from, to].
func (q *AlpacaQuoter) Candles(_ context.Context, ticker string, from, to time.Time, interval domain.Interval) ([]domain.Candle, error) {
	bars, err := q.client.GetBars(ticker, marketdata.GetBarsRequest{
		TimeFrame: alpacaTimeFrame(interval),
		Start:     from,
		End:       to,
	})
	if err != nil {
		return nil, fmt.Errorf("GetBars %s: %w", ticker, err)
	}

	candles := make([]domain.Candle, 0, len(bars))
	for _, b := range bars {
		candles = append(candles, domain.Candle{
			Ticker: ticker,
			Time:   b.Timestamp,
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: int64(b.Volume),
		})
	}
	return Normalize(candles, from, to), nil
}

func alpacaTimeFrame(interval domain.Interval) marketdata.TimeFrame {
	switch interval {
	case domain.Interval1Min:
		return marketdata.OneMin
	case domain.Interval5Min:
		return marketdata.NewTimeFrame(5, marketdata.Min)
	case domain.Interval15Min:
		return marketdata.NewTimeFrame(15, marketdata.Min)
	case domain.Interval1Day:
		return marketdata.OneDay
	default:
		return marketdata.NewTimeFrame(1, marketdata.Hour)
	}
}
