package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"moextrader/internal/domain"
)

// Compile-time interface check.
var _ CandleStore = (*ParquetStore)(nil)

// ParquetStore implements CandleStore using Parquet files on disk. It is the
// long-term archive format; the SQLite store remains the hot path.
type ParquetStore struct {
	DataDir string
}

// NewParquetStore creates a new ParquetStore rooted at the given data directory.
func NewParquetStore(dataDir string) *ParquetStore {
	return &ParquetStore{DataDir: dataDir}
}

// CandleRecord is the Parquet schema for candle data.
type CandleRecord struct {
	Ticker    string  `parquet:"ticker"`
	Timestamp int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Open      float64 `parquet:"open"`
	High      float64 `parquet:"high"`
	Low       float64 `parquet:"low"`
	Close     float64 `parquet:"close"`
	Volume    int64   `parquet:"volume"`
}

// WriteCandles writes candles to Parquet files organized by interval, ticker,
// and year. Each ticker+year combination produces a separate file at:
//
//	<DataDir>/moex/<interval>/<TICKER>/<YYYY>.parquet
//
// Existing records for the same timestamp are replaced.
func (s *ParquetStore) WriteCandles(_ context.Context, candles []domain.Candle, interval domain.Interval) error {
	if len(candles) == 0 {
		return nil
	}

	type key struct {
		ticker string
		year   int
	}
	groups := make(map[key][]CandleRecord)
	for _, c := range candles {
		k := key{ticker: c.Ticker, year: c.Time.Year()}
		groups[k] = append(groups[k], CandleRecord{
			Ticker:    c.Ticker,
			Timestamp: c.Time.UnixMilli(),
			Open:      c.Open,
			High:      c.High,
			Low:       c.Low,
			Close:     c.Close,
			Volume:    c.Volume,
		})
	}

	for k, records := range groups {
		path := s.candlePath(k.ticker, interval, k.year)

		// Read existing records to merge.
		existing, _ := readParquetFile[CandleRecord](path)
		merged := mergeCandleRecords(existing, records)

		if err := writeParquetFile(path, merged); err != nil {
			return fmt.Errorf("writing candles for %s/%d: %w", k.ticker, k.year, err)
		}
	}
	return nil
}

// ReadCandles reads candle data for the given ticker and time range.
func (s *ParquetStore) ReadCandles(_ context.Context, ticker string, from, to time.Time, interval domain.Interval) ([]domain.Candle, error) {
	var candles []domain.Candle
	for year := from.Year(); year <= to.Year(); year++ {
		path := s.candlePath(ticker, interval, year)

		records, err := readParquetFile[CandleRecord](path)
		if err != nil {
			// No file for this year.
			continue
		}

		for _, r := range records {
			ts := time.UnixMilli(r.Timestamp).UTC()
			if (ts.Equal(from) || ts.After(from)) && (ts.Equal(to) || ts.Before(to)) {
				candles = append(candles, domain.Candle{
					Ticker: r.Ticker,
					Time:   ts,
					Open:   r.Open,
					High:   r.High,
					Low:    r.Low,
					Close:  r.Close,
					Volume: r.Volume,
				})
			}
		}
	}
	return candles, nil
}

// ListTickers lists all tickers that have candle data at the given interval.
func (s *ParquetStore) ListTickers(_ context.Context, interval domain.Interval) ([]string, error) {
	dir := filepath.Join(s.DataDir, "moex", string(interval))
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var tickers []string
	for _, e := range entries {
		if e.IsDir() {
			tickers = append(tickers, e.Name())
		}
	}
	sort.Strings(tickers)
	return tickers, nil
}

// candlePath returns the filesystem path for a candle Parquet file.
// Layout: <dataDir>/moex/<interval>/<TICKER>/<YYYY>.parquet
func (s *ParquetStore) candlePath(ticker string, interval domain.Interval, year int) string {
	return filepath.Join(s.DataDir, "moex", string(interval), strings.ToUpper(ticker), fmt.Sprintf("%d.parquet", year))
}

// ---------------------------------------------------------------------------
// Parquet file helpers
// ---------------------------------------------------------------------------

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

func readParquetFile[T any](path string) ([]T, error) {
	rows, err := parquet.ReadFile[T](path)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// mergeCandleRecords deduplicates records by (ticker, timestamp), preferring
// new records over existing ones. Results are sorted by timestamp.
func mergeCandleRecords(existing, incoming []CandleRecord) []CandleRecord {
	type key struct {
		ticker string
		ts     int64
	}
	seen := make(map[key]CandleRecord, len(existing)+len(incoming))
	for _, r := range existing {
		seen[key{r.Ticker, r.Timestamp}] = r
	}
	for _, r := range incoming {
		seen[key{r.Ticker, r.Timestamp}] = r
	}

	merged := make([]CandleRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Timestamp < merged[j].Timestamp
	})
	return merged
}
