package orchestrator

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"moextrader/internal/advisor"
	"moextrader/internal/broker"
	"moextrader/internal/domain"
	"moextrader/internal/status"
)

// ---------------------------------------------------------------------------
// Test doubles
// ---------------------------------------------------------------------------

type fixedQuoter struct {
	price   float64
	candles []domain.Candle
}

func (q *fixedQuoter) CurrentPrice(_ context.Context, _ string) (float64, error) {
	return q.price, nil
}

func (q *fixedQuoter) Candles(_ context.Context, _ string, _, _ time.Time, _ domain.Interval) ([]domain.Candle, error) {
	return q.candles, nil
}

// buyOnceAdvisor proposes one lot of the ticker whenever no position is held.
type buyOnceAdvisor struct{}

func (buyOnceAdvisor) Name() string { return "buy-once" }

func (buyOnceAdvisor) Advise(_ context.Context, ticker string, _ []domain.Candle, pos *domain.Position, _ float64) (*advisor.Intent, error) {
	if pos != nil {
		return nil, nil
	}
	return &advisor.Intent{Ticker: ticker, Direction: domain.Buy, Quantity: 1}, nil
}

// failingBroker errors on every remote operation.
type failingBroker struct{}

func (failingBroker) Name() string { return "failing" }

func (failingBroker) GetPortfolio(_ context.Context) (domain.Portfolio, error) {
	return domain.Portfolio{Positions: []domain.Position{}}, errors.New("venue unreachable")
}

func (failingBroker) PlaceMarketOrder(_ context.Context, _ string, _ int, _ domain.Direction) (domain.OrderResult, error) {
	return domain.Failed(), errors.New("venue unreachable")
}

func (failingBroker) ResolveSymbol(_ context.Context, _ string) (string, bool) {
	return "", false
}

func (failingBroker) GetCandles(_ context.Context, _ string, _, _ time.Time, _ domain.Interval) ([]domain.Candle, error) {
	return nil, errors.New("venue unreachable")
}

// panickingBroker panics on portfolio queries.
type panickingBroker struct {
	failingBroker
}

func (panickingBroker) GetPortfolio(_ context.Context) (domain.Portfolio, error) {
	panic("malformed venue payload")
}

// memOrderStore records saved orders in memory.
type memOrderStore struct {
	mu     sync.Mutex
	orders map[domain.Mode][]domain.OrderRecord
}

func newMemOrderStore() *memOrderStore {
	return &memOrderStore{orders: make(map[domain.Mode][]domain.OrderRecord)}
}

func (s *memOrderStore) SaveOrder(_ context.Context, mode domain.Mode, rec domain.OrderRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[mode] = append(s.orders[mode], rec)
	return nil
}

func (s *memOrderStore) ListOrders(_ context.Context, mode domain.Mode, _ int) ([]domain.OrderRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orders[mode], nil
}

// memCandleStore records written candles in memory.
type memCandleStore struct {
	mu      sync.Mutex
	written []domain.Candle
}

func (s *memCandleStore) WriteCandles(_ context.Context, candles []domain.Candle, _ domain.Interval) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.written = append(s.written, candles...)
	return nil
}

func (s *memCandleStore) ReadCandles(_ context.Context, _ string, _, _ time.Time, _ domain.Interval) ([]domain.Candle, error) {
	return nil, nil
}

func (s *memCandleStore) ListTickers(_ context.Context, _ domain.Interval) ([]string, error) {
	return nil, nil
}

func testCandles(n int) []domain.Candle {
	base := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	candles := make([]domain.Candle, 0, n)
	for i := 0; i < n; i++ {
		candles = append(candles, domain.Candle{
			Ticker: "SBER",
			Time:   base.Add(time.Duration(i) * time.Hour),
			Open:   100, High: 101, Low: 99, Close: 100,
			Volume: 1,
		})
	}
	return candles
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestDualContextIsolation(t *testing.T) {
	quoter := &fixedQuoter{price: 100, candles: testCandles(5)}
	sandbox := broker.NewPaperBroker(500_000, quoter)
	live := broker.NewPaperBroker(2_000_000, quoter)

	o := New(Options{
		Sandbox:        sandbox,
		Live:           live,
		SandboxCapital: 500_000,
		LiveCapital:    2_000_000,
		Advisor:        buyOnceAdvisor{},
		Tickers:        []string{"SBER"},
		CandleInterval: domain.Interval1Hour,
	})

	for i := 0; i < 100; i++ {
		o.Tick(context.Background())
	}

	// Each context bought exactly once: the advisor stays silent while a
	// position is held, and the two ledgers never share state.
	sb, err := sandbox.GetPortfolio(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	lv, err := live.GetPortfolio(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if sb.Cash != 499_900 {
		t.Errorf("sandbox cash = %v, want 499900", sb.Cash)
	}
	if lv.Cash != 1_999_900 {
		t.Errorf("live cash = %v, want 1999900", lv.Cash)
	}
	if len(sb.Positions) != 1 || sb.Positions[0].Quantity != 1 {
		t.Errorf("sandbox positions = %+v", sb.Positions)
	}
	if len(lv.Positions) != 1 || lv.Positions[0].Quantity != 1 {
		t.Errorf("live positions = %+v", lv.Positions)
	}
}

func TestFailingContextDoesNotAbortSibling(t *testing.T) {
	quoter := &fixedQuoter{price: 100, candles: testCandles(5)}
	sandbox := broker.NewPaperBroker(500_000, quoter)
	statusW := status.NewWriter(filepath.Join(t.TempDir(), "status.json"))

	// Seed the sink with the live context's last real numbers.
	if err := statusW.Apply(domain.ModeLive, status.Update{
		Capital: status.Float(2_000_000),
		Profit:  status.Float(150),
		Positions: []domain.Position{
			{Ticker: "GAZP", Quantity: 3, CurrentPrice: 125, AvgBuyPrice: 120},
		},
	}); err != nil {
		t.Fatal(err)
	}

	o := New(Options{
		Sandbox:        sandbox,
		Live:           failingBroker{},
		SandboxCapital: 500_000,
		LiveCapital:    2_000_000,
		Advisor:        buyOnceAdvisor{},
		Status:         statusW,
		Tickers:        []string{"SBER"},
	})

	o.Tick(context.Background())

	// The sandbox cycle completed and traded despite the live failure.
	sb, err := sandbox.GetPortfolio(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if sb.Cash != 499_900 {
		t.Errorf("sandbox cash = %v, want 499900", sb.Cash)
	}

	snapshot, err := statusW.Read()
	if err != nil {
		t.Fatal(err)
	}
	if snapshot.SandboxCapital == 0 {
		t.Error("sandbox status missing after sibling failure")
	}
	// The failing context must not publish its degraded zeros as account
	// state: its fields keep the last real values.
	if snapshot.LiveCapital != 2_000_000 || snapshot.LiveProfit != 150 {
		t.Errorf("live fields overwritten by a degraded snapshot: capital=%v profit=%v",
			snapshot.LiveCapital, snapshot.LiveProfit)
	}
	if len(snapshot.LivePositions) != 1 || snapshot.LivePositions[0].Ticker != "GAZP" {
		t.Errorf("live positions overwritten by a degraded snapshot: %+v", snapshot.LivePositions)
	}

	// Both contexts are idle again and stay schedulable.
	if got := o.ContextState(domain.ModeSandbox); got != StateIdle {
		t.Errorf("sandbox state = %v, want idle", got)
	}
	if got := o.ContextState(domain.ModeLive); got != StateIdle {
		t.Errorf("live state = %v, want idle", got)
	}
}

func TestPanickingContextDoesNotAbortSibling(t *testing.T) {
	quoter := &fixedQuoter{price: 100, candles: testCandles(5)}
	sandbox := broker.NewPaperBroker(500_000, quoter)

	o := New(Options{
		Sandbox: sandbox,
		Live:    panickingBroker{},
		Advisor: buyOnceAdvisor{},
		Tickers: []string{"SBER"},
	})

	// Must not crash the process.
	o.Tick(context.Background())

	sb, err := sandbox.GetPortfolio(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if sb.Cash != 499_900 {
		t.Errorf("sandbox cash = %v, want 499900", sb.Cash)
	}

	// The panicked context returns to idle and stays schedulable.
	if got := o.ContextState(domain.ModeLive); got != StateIdle {
		t.Errorf("live state = %v, want idle", got)
	}
}

func TestNilBrokerContextStaysDisabled(t *testing.T) {
	quoter := &fixedQuoter{price: 100, candles: testCandles(5)}
	o := New(Options{
		Sandbox: broker.NewPaperBroker(100_000, quoter),
		Tickers: []string{"SBER"},
	})

	if got := o.ContextState(domain.ModeLive); got != StateDisabled {
		t.Fatalf("live state = %v, want disabled", got)
	}

	// Enable cannot resurrect a context that has no broker.
	o.Enable(domain.ModeLive)
	if got := o.ContextState(domain.ModeLive); got != StateDisabled {
		t.Errorf("live state after Enable = %v, want disabled", got)
	}

	// Ticking with a disabled context must not panic.
	o.Tick(context.Background())
}

func TestDisableTakesContextOutOfRotation(t *testing.T) {
	quoter := &fixedQuoter{price: 100, candles: testCandles(5)}
	sandbox := broker.NewPaperBroker(500_000, quoter)

	o := New(Options{
		Sandbox: sandbox,
		Advisor: buyOnceAdvisor{},
		Tickers: []string{"SBER"},
	})

	o.Disable(domain.ModeSandbox)
	o.Tick(context.Background())

	sb, _ := sandbox.GetPortfolio(context.Background())
	if sb.Cash != 500_000 {
		t.Errorf("disabled context traded: cash = %v", sb.Cash)
	}

	o.Enable(domain.ModeSandbox)
	o.Tick(context.Background())

	sb, _ = sandbox.GetPortfolio(context.Background())
	if sb.Cash != 499_900 {
		t.Errorf("re-enabled context did not trade: cash = %v", sb.Cash)
	}
}

func TestExecutedOrdersArePersisted(t *testing.T) {
	quoter := &fixedQuoter{price: 100, candles: testCandles(5)}
	orders := newMemOrderStore()

	o := New(Options{
		Sandbox: broker.NewPaperBroker(500_000, quoter),
		Advisor: buyOnceAdvisor{},
		Orders:  orders,
		Tickers: []string{"SBER"},
	})

	o.Tick(context.Background())

	got, _ := orders.ListOrders(context.Background(), domain.ModeSandbox, 0)
	if len(got) != 1 {
		t.Fatalf("persisted orders = %d, want 1", len(got))
	}
	rec := got[0]
	if rec.Ticker != "SBER" || rec.Quantity != 1 || rec.Direction != domain.Buy || rec.Price != 100 {
		t.Errorf("record = %+v", rec)
	}
	if rec.OrderID == "" {
		t.Error("record missing order id")
	}
}

func TestSandboxPullFeedsCandleStore(t *testing.T) {
	quoter := &fixedQuoter{price: 100, candles: testCandles(3)}
	candleStore := &memCandleStore{}

	o := New(Options{
		Sandbox: broker.NewPaperBroker(500_000, quoter),
		Live:    broker.NewPaperBroker(2_000_000, quoter),
		Candles: candleStore,
		Tickers: []string{"SBER"},
	})

	o.Tick(context.Background())

	candleStore.mu.Lock()
	defer candleStore.mu.Unlock()
	// Only the sandbox context feeds the store; the live pull is not
	// duplicated into it.
	if len(candleStore.written) != 3 {
		t.Errorf("candles written = %d, want 3 (sandbox only)", len(candleStore.written))
	}
}

func TestStatusReportsProfitAgainstBaseline(t *testing.T) {
	quoter := &fixedQuoter{price: 100, candles: testCandles(5)}
	statusW := status.NewWriter(filepath.Join(t.TempDir(), "status.json"))

	o := New(Options{
		Sandbox:        broker.NewPaperBroker(500_000, quoter),
		SandboxCapital: 400_000, // baseline below current value
		Status:         statusW,
		Tickers:        []string{"SBER"},
	})

	o.Tick(context.Background())

	snapshot, err := statusW.Read()
	if err != nil {
		t.Fatal(err)
	}
	if snapshot.SandboxCapital != 500_000 {
		t.Errorf("sandbox capital = %v, want 500000", snapshot.SandboxCapital)
	}
	if snapshot.SandboxProfit != 100_000 {
		t.Errorf("sandbox profit = %v, want 100000", snapshot.SandboxProfit)
	}
	if !snapshot.TradingEnabled {
		t.Error("trading_enabled not set")
	}
}
