package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"moextrader/internal/domain"
	"moextrader/internal/util"
)

// Compile-time interface check.
var _ Quoter = (*MOEXClient)(nil)

const defaultMOEXBaseURL = "https://iss.moex.com"

// moexBoard is the MOEX trading board for liquid shares.
const moexBoard = "TQBR"

// MOEXClient retrieves quotes and candles from the MOEX ISS API. The ISS
// endpoints used here are public and need no authentication.
type MOEXClient struct {
	baseURL string
	http    *http.Client
	limiter *util.RateLimiter
	log     *slog.Logger
}

// NewMOEXClient creates a MOEXClient against the public ISS endpoint.
func NewMOEXClient() *MOEXClient {
	return NewMOEXClientWithBaseURL(defaultMOEXBaseURL)
}

// NewMOEXClientWithBaseURL creates a MOEXClient against a custom base URL.
// Used by tests to point at a stub server.
func NewMOEXClientWithBaseURL(baseURL string) *MOEXClient {
	return &MOEXClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
		// ISS tolerates short bursts; 240/min is the sustained ceiling and a
		// backfill chunk of up to 8 requests may go out back to back.
		limiter: util.NewRateLimiter(240, 8),
		log:     slog.Default().With("component", "moex"),
	}
}

// issTable is the generic ISS response block: a column-name header plus rows
// of heterogeneous values.
type issTable struct {
	Columns []string `json:"columns"`
	Data    [][]any  `json:"data"`
}

// CurrentPrice returns the last trade price for the ticker from the TQBR
// board market data block.
func (c *MOEXClient) CurrentPrice(ctx context.Context, ticker string) (float64, error) {
	endpoint := fmt.Sprintf(
		"%s/iss/engines/stock/markets/shares/boards/%s/securities/%s.json",
		c.baseURL, moexBoard, url.PathEscape(ticker),
	)
	q := url.Values{}
	q.Set("iss.only", "marketdata")
	q.Set("iss.meta", "off")
	q.Set("marketdata.columns", "SECID,LAST")

	var payload struct {
		MarketData issTable `json:"marketdata"`
	}
	if err := c.getJSON(ctx, endpoint+"?"+q.Encode(), &payload); err != nil {
		return 0, fmt.Errorf("fetching quote for %s: %w", ticker, err)
	}

	lastIdx := columnIndex(payload.MarketData.Columns, "LAST")
	if lastIdx < 0 {
		return 0, fmt.Errorf("quote for %s: LAST column missing", ticker)
	}
	for _, row := range payload.MarketData.Data {
		if lastIdx >= len(row) {
			continue
		}
		if price, ok := row[lastIdx].(float64); ok && price > 0 {
			return price, nil
		}
	}
	return 0, fmt.Errorf("quote for %s: no trade price in response", ticker)
}

// Candles returns OHLCV bars for the ticker within [from, to]. The result is
// sorted ascending, deduplicated by timestamp, and clipped to the range.
func (c *MOEXClient) Candles(ctx context.Context, ticker string, from, to time.Time, interval domain.Interval) ([]domain.Candle, error) {
	endpoint := fmt.Sprintf(
		"%s/iss/engines/stock/markets/shares/boards/%s/securities/%s/candles.json",
		c.baseURL, moexBoard, url.PathEscape(ticker),
	)
	q := url.Values{}
	q.Set("iss.meta", "off")
	q.Set("from", from.Format("2006-01-02"))
	q.Set("till", to.Format("2006-01-02"))
	q.Set("interval", fmt.Sprintf("%d", issInterval(interval)))

	var payload struct {
		Candles issTable `json:"candles"`
	}
	if err := c.getJSON(ctx, endpoint+"?"+q.Encode(), &payload); err != nil {
		return nil, fmt.Errorf("fetching candles for %s: %w", ticker, err)
	}

	cols := payload.Candles.Columns
	openIdx := columnIndex(cols, "open")
	highIdx := columnIndex(cols, "high")
	lowIdx := columnIndex(cols, "low")
	closeIdx := columnIndex(cols, "close")
	volumeIdx := columnIndex(cols, "volume")
	beginIdx := columnIndex(cols, "begin")
	if openIdx < 0 || closeIdx < 0 || beginIdx < 0 {
		return nil, fmt.Errorf("candles for %s: unexpected column set %v", ticker, cols)
	}

	candles := make([]domain.Candle, 0, len(payload.Candles.Data))
	for _, row := range payload.Candles.Data {
		if beginIdx >= len(row) {
			continue
		}
		begin, ok := row[beginIdx].(string)
		if !ok {
			continue
		}
		// ISS timestamps are Moscow local time, "2006-01-02 15:04:05".
		ts, err := time.Parse("2006-01-02 15:04:05", begin)
		if err != nil {
			continue
		}
		candles = append(candles, domain.Candle{
			Ticker: ticker,
			Time:   ts,
			Open:   floatAt(row, openIdx),
			High:   floatAt(row, highIdx),
			Low:    floatAt(row, lowIdx),
			Close:  floatAt(row, closeIdx),
			Volume: int64(floatAt(row, volumeIdx)),
		})
	}

	return Normalize(candles, from, to), nil
}

func (c *MOEXClient) getJSON(ctx context.Context, rawURL string, dst any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ISS returned status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}

// issInterval maps a candle interval onto the ISS interval code.
func issInterval(interval domain.Interval) int {
	switch interval {
	case domain.Interval1Min:
		return 1
	case domain.Interval5Min, domain.Interval15Min:
		return 10 // ISS has no 5/15 minute granularity; 10 minutes is closest
	case domain.Interval1Day:
		return 24
	default:
		return 60
	}
}

func columnIndex(columns []string, name string) int {
	for i, c := range columns {
		if c == name {
			return i
		}
	}
	return -1
}

func floatAt(row []any, idx int) float64 {
	if idx < 0 || idx >= len(row) {
		return 0
	}
	v, _ := row[idx].(float64)
	return v
}
