package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"moextrader/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface checks.
var _ CandleStore = (*SQLiteStore)(nil)
var _ OrderStore = (*SQLiteStore)(nil)

// SQLiteStore implements CandleStore and OrderStore backed by a SQLite
// database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, runs the
// schema migration, and returns a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating schema: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS candles (
			ticker   TEXT    NOT NULL,
			interval TEXT    NOT NULL,
			time     INTEGER NOT NULL,
			open     REAL    NOT NULL,
			high     REAL    NOT NULL,
			low      REAL    NOT NULL,
			close    REAL    NOT NULL,
			volume   INTEGER NOT NULL,
			PRIMARY KEY (ticker, interval, time)
		);
		CREATE TABLE IF NOT EXISTS orders (
			order_id   TEXT    NOT NULL PRIMARY KEY,
			mode       TEXT    NOT NULL,
			ticker     TEXT    NOT NULL,
			quantity   INTEGER NOT NULL,
			price      REAL    NOT NULL,
			direction  TEXT    NOT NULL,
			created_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_orders_mode_time ON orders(mode, created_at);
	`)
	return err
}

// ---------------------------------------------------------------------------
// CandleStore implementation
// ---------------------------------------------------------------------------

// WriteCandles upserts a batch of candles inside one transaction.
func (s *SQLiteStore) WriteCandles(ctx context.Context, candles []domain.Candle, interval domain.Interval) error {
	if len(candles) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO candles (ticker, interval, time, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, c := range candles {
		if _, err := stmt.ExecContext(ctx,
			c.Ticker, string(interval), c.Time.Unix(),
			c.Open, c.High, c.Low, c.Close, c.Volume,
		); err != nil {
			return fmt.Errorf("inserting candle %s@%s: %w", c.Ticker, c.Time, err)
		}
	}
	return tx.Commit()
}

// ReadCandles returns candles for the ticker within [from, to], ascending.
func (s *SQLiteStore) ReadCandles(ctx context.Context, ticker string, from, to time.Time, interval domain.Interval) ([]domain.Candle, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ticker, time, open, high, low, close, volume
		FROM candles
		WHERE ticker = ? AND interval = ? AND time BETWEEN ? AND ?
		ORDER BY time ASC
	`, ticker, string(interval), from.Unix(), to.Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var candles []domain.Candle
	for rows.Next() {
		var c domain.Candle
		var unix int64
		if err := rows.Scan(&c.Ticker, &unix, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, err
		}
		c.Time = time.Unix(unix, 0).UTC()
		candles = append(candles, c)
	}
	return candles, rows.Err()
}

// ListTickers returns the distinct tickers stored at the given interval.
func (s *SQLiteStore) ListTickers(ctx context.Context, interval domain.Interval) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT ticker FROM candles WHERE interval = ? ORDER BY ticker
	`, string(interval))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tickers []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		tickers = append(tickers, t)
	}
	return tickers, rows.Err()
}

// ---------------------------------------------------------------------------
// OrderStore implementation
// ---------------------------------------------------------------------------

// SaveOrder appends one executed order to the given context's log.
func (s *SQLiteStore) SaveOrder(ctx context.Context, mode domain.Mode, rec domain.OrderRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO orders (order_id, mode, ticker, quantity, price, direction, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, rec.OrderID, string(mode), rec.Ticker, rec.Quantity, rec.Price, string(rec.Direction), rec.Timestamp.Unix())
	return err
}

// ListOrders returns the most recent orders for a context, newest first.
func (s *SQLiteStore) ListOrders(ctx context.Context, mode domain.Mode, limit int) ([]domain.OrderRecord, error) {
	query := `
		SELECT order_id, ticker, quantity, price, direction, created_at
		FROM orders WHERE mode = ? ORDER BY created_at DESC
	`
	args := []any{string(mode)}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.OrderRecord
	for rows.Next() {
		var rec domain.OrderRecord
		var direction string
		var unix int64
		if err := rows.Scan(&rec.OrderID, &rec.Ticker, &rec.Quantity, &rec.Price, &direction, &unix); err != nil {
			return nil, err
		}
		rec.Direction = domain.Direction(direction)
		rec.Timestamp = time.Unix(unix, 0).UTC()
		records = append(records, rec)
	}
	return records, rows.Err()
}
