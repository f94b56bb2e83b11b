// Package status maintains a JSON status file shared with external tooling.
// Every update re-reads the file, merges the changed fields, and writes the
// result atomically, so concurrent writers converge on per-field
// last-write-wins.
package status

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"moextrader/internal/domain"
)

// Snapshot is the on-disk status document.
type Snapshot struct {
	TradingEnabled   bool              `json:"trading_enabled"`
	SandboxCapital   float64           `json:"sandbox_capital"`
	LiveCapital      float64           `json:"live_capital"`
	SandboxProfit    float64           `json:"sandbox_profit"`
	LiveProfit       float64           `json:"live_profit"`
	SandboxPositions []domain.Position `json:"sandbox_positions"`
	LivePositions    []domain.Position `json:"live_positions"`
	LastUpdate       string            `json:"last_update"` // RFC 3339
}

// Update is a partial snapshot: nil fields are left as stored.
type Update struct {
	TradingEnabled *bool
	Capital        *float64
	Profit         *float64
	Positions      []domain.Position
}

// Writer serializes updates onto one status file.
type Writer struct {
	mu   sync.Mutex
	path string
	log  *slog.Logger
}

// NewWriter creates a Writer for the status file at path.
func NewWriter(path string) *Writer {
	return &Writer{
		path: path,
		log:  slog.Default().With("component", "status"),
	}
}

// Apply merges the update for one trading context into the file. Failures are
// logged, not returned as fatal: the status file is advisory and must never
// take trading down.
func (w *Writer) Apply(mode domain.Mode, update Update) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	snapshot, err := w.readLocked()
	if err != nil {
		w.log.Warn("status file unreadable, starting fresh", "err", err)
		snapshot = Snapshot{}
	}

	if update.TradingEnabled != nil {
		snapshot.TradingEnabled = *update.TradingEnabled
	}
	switch mode {
	case domain.ModeSandbox:
		if update.Capital != nil {
			snapshot.SandboxCapital = *update.Capital
		}
		if update.Profit != nil {
			snapshot.SandboxProfit = *update.Profit
		}
		if update.Positions != nil {
			snapshot.SandboxPositions = update.Positions
		}
	case domain.ModeLive:
		if update.Capital != nil {
			snapshot.LiveCapital = *update.Capital
		}
		if update.Profit != nil {
			snapshot.LiveProfit = *update.Profit
		}
		if update.Positions != nil {
			snapshot.LivePositions = update.Positions
		}
	}
	snapshot.LastUpdate = time.Now().UTC().Format(time.RFC3339)

	if err := w.writeLocked(snapshot); err != nil {
		w.log.Error("status file write failed", "err", err)
		return err
	}
	return nil
}

// Read returns the current snapshot. A missing file yields a zero snapshot.
func (w *Writer) Read() (Snapshot, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.readLocked()
}

func (w *Writer) readLocked() (Snapshot, error) {
	data, err := os.ReadFile(w.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Snapshot{}, nil
		}
		return Snapshot{}, err
	}
	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return Snapshot{}, fmt.Errorf("parsing %s: %w", w.path, err)
	}
	return snapshot, nil
}

// writeLocked writes via a temp file plus rename so readers never observe a
// partial document.
func (w *Writer) writeLocked(snapshot Snapshot) error {
	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return err
	}

	tmp := w.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, w.path)
}

// Float is a convenience for building Update literals.
func Float(v float64) *float64 { return &v }

// Bool is a convenience for building Update literals.
func Bool(v bool) *bool { return &v }
