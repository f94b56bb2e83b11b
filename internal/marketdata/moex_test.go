package marketdata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"moextrader/internal/domain"
)

func TestMOEXCurrentPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "/securities/SBER.json") {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"marketdata":{"columns":["SECID","LAST"],"data":[["SBER",305.4]]}}`))
	}))
	defer srv.Close()

	c := NewMOEXClientWithBaseURL(srv.URL)
	price, err := c.CurrentPrice(context.Background(), "SBER")
	if err != nil {
		t.Fatalf("CurrentPrice returned error: %v", err)
	}
	if price != 305.4 {
		t.Errorf("CurrentPrice = %v, want 305.4", price)
	}
}

func TestMOEXCurrentPriceNoTrades(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		// LAST is null before the first trade of the session.
		w.Write([]byte(`{"marketdata":{"columns":["SECID","LAST"],"data":[["SBER",null]]}}`))
	}))
	defer srv.Close()

	c := NewMOEXClientWithBaseURL(srv.URL)
	if _, err := c.CurrentPrice(context.Background(), "SBER"); err == nil {
		t.Error("CurrentPrice should fail when no trade price is present")
	}
}

func TestMOEXCurrentPriceServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewMOEXClientWithBaseURL(srv.URL)
	if _, err := c.CurrentPrice(context.Background(), "SBER"); err == nil {
		t.Error("CurrentPrice should fail on non-2xx response")
	}
}

func TestMOEXCandles(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "/securities/GAZP/candles.json") {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		// Out of order, with a duplicate timestamp.
		w.Write([]byte(`{"candles":{"columns":["open","close","high","low","value","volume","begin","end"],
			"data":[
				[201.0,202.0,203.0,200.0,1.0,500,"2025-06-02 11:00:00","2025-06-02 11:59:59"],
				[200.0,201.0,202.0,199.0,1.0,400,"2025-06-02 10:00:00","2025-06-02 10:59:59"],
				[201.0,202.0,203.0,200.0,1.0,500,"2025-06-02 11:00:00","2025-06-02 11:59:59"]
			]}}`))
	}))
	defer srv.Close()

	c := NewMOEXClientWithBaseURL(srv.URL)
	from := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 6, 3, 0, 0, 0, 0, time.UTC)

	candles, err := c.Candles(context.Background(), "GAZP", from, to, domain.Interval1Hour)
	if err != nil {
		t.Fatalf("Candles returned error: %v", err)
	}
	if len(candles) != 2 {
		t.Fatalf("Candles returned %d bars, want 2 (sorted, deduplicated)", len(candles))
	}
	if !candles[0].Time.Before(candles[1].Time) {
		t.Error("candles are not ascending by time")
	}
	if candles[0].Open != 200.0 || candles[0].Volume != 400 {
		t.Errorf("first candle = %+v, want the 10:00 bar", candles[0])
	}
}

func TestMOEXCandlesSkipsShortRows(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		// A truncated row must be skipped, not crash the pull.
		w.Write([]byte(`{"candles":{"columns":["open","close","high","low","value","volume","begin","end"],
			"data":[
				[100.0],
				[200.0,201.0,202.0,199.0,1.0,400,"2025-06-02 10:00:00","2025-06-02 10:59:59"]
			]}}`))
	}))
	defer srv.Close()

	c := NewMOEXClientWithBaseURL(srv.URL)
	from := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 6, 3, 0, 0, 0, 0, time.UTC)

	candles, err := c.Candles(context.Background(), "GAZP", from, to, domain.Interval1Hour)
	if err != nil {
		t.Fatalf("Candles returned error: %v", err)
	}
	if len(candles) != 1 {
		t.Fatalf("Candles returned %d bars, want only the complete row", len(candles))
	}
	if candles[0].Open != 200.0 {
		t.Errorf("candle = %+v, want the 10:00 bar", candles[0])
	}
}

func TestNormalizeClipsToRange(t *testing.T) {
	base := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	candles := []domain.Candle{
		{Time: base.Add(-time.Hour)},
		{Time: base},
		{Time: base.Add(time.Hour)},
		{Time: base.Add(48 * time.Hour)},
	}

	got := Normalize(candles, base, base.Add(24*time.Hour))
	if len(got) != 2 {
		t.Fatalf("Normalize kept %d candles, want 2", len(got))
	}
	if !got[0].Time.Equal(base) || !got[1].Time.Equal(base.Add(time.Hour)) {
		t.Errorf("Normalize kept wrong candles: %v", got)
	}
}
