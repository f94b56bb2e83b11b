// Package orchestrator drives the trading loop. It owns the sandbox and live
// trading contexts and runs their cycles concurrently on a fixed schedule,
// keeping the two strictly isolated: separate brokers, separate capital,
// separate failure domains.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"moextrader/internal/advisor"
	"moextrader/internal/broker"
	"moextrader/internal/domain"
	"moextrader/internal/notify"
	"moextrader/internal/status"
	"moextrader/internal/store"
)

// State is the lifecycle state of one trading context.
type State int

const (
	// StateDisabled marks a context that is configured out; ticks skip it.
	StateDisabled State = iota
	// StateIdle marks an enabled context waiting for the next tick.
	StateIdle
	// StateRunning marks a context whose cycle is currently executing.
	StateRunning
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateDisabled:
		return "disabled"
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	default:
		return "unknown"
	}
}

// tradingContext is one isolated half of the dual-mode loop.
type tradingContext struct {
	mode           domain.Mode
	broker         broker.Broker
	initialCapital float64
	state          State
}

// Options configures an Orchestrator.
type Options struct {
	// Sandbox and Live are the per-context brokers. A nil broker leaves the
	// context disabled.
	Sandbox broker.Broker
	Live    broker.Broker

	// SandboxCapital and LiveCapital are the baselines profit is measured
	// against.
	SandboxCapital float64
	LiveCapital    float64

	// Advisor produces trade intents each cycle. Nil disables trading; the
	// loop still collects data and reports status.
	Advisor advisor.Advisor

	// Candles receives the sandbox context's market-data pull. Optional.
	Candles store.CandleStore
	// Orders receives executed-order records. Optional.
	Orders store.OrderStore
	// Status receives per-cycle account state. Optional.
	Status *status.Writer
	// Notifier receives trade notifications. Nil means no notifications.
	Notifier notify.Notifier

	// Tickers is the watched instrument set.
	Tickers []string
	// CyclePeriod is the scheduling interval between ticks.
	CyclePeriod time.Duration
	// CandleLookback is the history window pulled each cycle.
	CandleLookback time.Duration
	// CandleInterval is the candle timeframe pulled each cycle.
	CandleInterval domain.Interval
}

// Orchestrator runs the sandbox and live trading contexts on a shared clock.
type Orchestrator struct {
	mu       sync.Mutex
	contexts map[domain.Mode]*tradingContext

	advisor  advisor.Advisor
	candles  store.CandleStore
	orders   store.OrderStore
	status   *status.Writer
	notifier notify.Notifier

	tickers  []string
	period   time.Duration
	lookback time.Duration
	interval domain.Interval

	log *slog.Logger
}

// New creates an Orchestrator. Contexts with a nil broker start disabled;
// everything else starts idle.
func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		contexts: make(map[domain.Mode]*tradingContext),
		advisor:  opts.Advisor,
		candles:  opts.Candles,
		orders:   opts.Orders,
		status:   opts.Status,
		notifier: opts.Notifier,
		tickers:  opts.Tickers,
		period:   opts.CyclePeriod,
		lookback: opts.CandleLookback,
		interval: opts.CandleInterval,
		log:      slog.Default().With("component", "orchestrator"),
	}
	if o.notifier == nil {
		o.notifier = notify.Nop{}
	}
	if o.period <= 0 {
		o.period = 30 * time.Minute
	}
	if o.lookback <= 0 {
		o.lookback = 72 * time.Hour
	}
	if o.interval == "" {
		o.interval = domain.Interval1Hour
	}

	o.contexts[domain.ModeSandbox] = newContext(domain.ModeSandbox, opts.Sandbox, opts.SandboxCapital)
	o.contexts[domain.ModeLive] = newContext(domain.ModeLive, opts.Live, opts.LiveCapital)
	return o
}

func newContext(mode domain.Mode, b broker.Broker, capital float64) *tradingContext {
	state := StateDisabled
	if b != nil {
		state = StateIdle
	}
	return &tradingContext{mode: mode, broker: b, initialCapital: capital, state: state}
}

// ContextState reports the lifecycle state of one context.
func (o *Orchestrator) ContextState(mode domain.Mode) State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.contexts[mode].state
}

// Disable takes a context out of rotation. Its broker keeps its state; a
// later Enable resumes from there.
func (o *Orchestrator) Disable(mode domain.Mode) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.contexts[mode].state = StateDisabled
}

// Enable returns a disabled context to rotation. A context without a broker
// stays disabled.
func (o *Orchestrator) Enable(mode domain.Mode) {
	o.mu.Lock()
	defer o.mu.Unlock()
	tc := o.contexts[mode]
	if tc.broker != nil && tc.state == StateDisabled {
		tc.state = StateIdle
	}
}

// Run schedules ticks at the configured period and blocks until ctx is
// cancelled. A tick that is still running when the next slot arrives makes
// the scheduler skip that slot rather than overlap.
func (o *Orchestrator) Run(ctx context.Context) error {
	scheduler := cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cronLogger{o.log}),
	))
	_, err := scheduler.AddFunc(fmt.Sprintf("@every %s", o.period), func() {
		o.Tick(ctx)
	})
	if err != nil {
		return fmt.Errorf("scheduling trading cycle: %w", err)
	}

	o.log.Info("orchestrator started", "period", o.period, "tickers", o.tickers)

	// First cycle runs immediately; the scheduler takes over after that.
	o.Tick(ctx)

	scheduler.Start()
	<-ctx.Done()

	stopCtx := scheduler.Stop()
	<-stopCtx.Done()

	o.log.Info("orchestrator stopped")
	return ctx.Err()
}

// Tick runs one cycle for every enabled context. The contexts execute
// concurrently and a failure in one never aborts the other; Tick returns once
// both have finished.
func (o *Orchestrator) Tick(ctx context.Context) {
	var wg sync.WaitGroup
	for _, mode := range []domain.Mode{domain.ModeSandbox, domain.ModeLive} {
		o.mu.Lock()
		tc := o.contexts[mode]
		if tc.state != StateIdle {
			o.mu.Unlock()
			continue
		}
		tc.state = StateRunning
		o.mu.Unlock()

		wg.Add(1)
		go func(tc *tradingContext) {
			defer wg.Done()
			defer func() {
				// A panicking cycle must not take down the sibling context
				// or the scheduler.
				if r := recover(); r != nil {
					o.log.Error("trading cycle panicked", "mode", tc.mode, "panic", r)
				}
				o.mu.Lock()
				tc.state = StateIdle
				o.mu.Unlock()
			}()

			if err := o.runCycle(ctx, tc); err != nil {
				o.log.Error("trading cycle failed", "mode", tc.mode, "err", err)
			}
		}(tc)
	}
	wg.Wait()
}

// runCycle executes one full cycle for a context: portfolio snapshot, candle
// pull, advisor consultation, order placement, then status reporting.
func (o *Orchestrator) runCycle(ctx context.Context, tc *tradingContext) error {
	log := o.log.With("mode", tc.mode, "broker", tc.broker.Name())
	started := time.Now()

	portfolio, err := tc.broker.GetPortfolio(ctx)
	if err != nil {
		// Degraded snapshot: the zeros mean "could not observe", not "empty
		// account". Skip both trading and status publication this cycle so
		// the sink keeps the last real numbers.
		return fmt.Errorf("portfolio snapshot: %w", err)
	}

	now := time.Now()
	traded := 0
	for _, ticker := range o.tickers {
		candles, err := tc.broker.GetCandles(ctx, ticker, now.Add(-o.lookback), now, o.interval)
		if err != nil {
			log.Warn("candle pull failed, skipping ticker", "ticker", ticker, "err", err)
			continue
		}
		if len(candles) == 0 {
			continue
		}

		// The sandbox context doubles as the data collector.
		if tc.mode == domain.ModeSandbox && o.candles != nil {
			if err := o.candles.WriteCandles(ctx, candles, o.interval); err != nil {
				log.Warn("candle store write failed", "ticker", ticker, "err", err)
			}
		}

		if o.advisor == nil {
			continue
		}
		intent, err := o.advisor.Advise(ctx, ticker, candles, findPosition(portfolio, ticker), portfolio.Cash)
		if err != nil {
			log.Warn("advisor failed for ticker", "ticker", ticker, "err", err)
			continue
		}
		if intent == nil {
			continue
		}

		if o.executeIntent(ctx, tc, log, intent) {
			traded++
			// Re-snapshot so later tickers see the updated cash and positions.
			if refreshed, err := tc.broker.GetPortfolio(ctx); err == nil {
				portfolio = refreshed
			}
		}
	}

	o.reportStatus(tc, portfolio)

	log.Info("trading cycle complete",
		"duration", time.Since(started).Round(time.Millisecond),
		"trades", traded,
		"total_value", portfolio.TotalValue,
	)
	return nil
}

// executeIntent places one order and records the outcome. Returns true when
// the order executed.
func (o *Orchestrator) executeIntent(ctx context.Context, tc *tradingContext, log *slog.Logger, intent *advisor.Intent) bool {
	result, err := tc.broker.PlaceMarketOrder(ctx, intent.Ticker, intent.Quantity, intent.Direction)
	if err != nil {
		log.Error("order placement failed", "ticker", intent.Ticker, "err", err)
		return false
	}
	if result.Status != domain.OrderExecuted {
		log.Warn("order rejected", "ticker", intent.Ticker, "direction", intent.Direction, "quantity", intent.Quantity)
		return false
	}

	log.Info("order executed",
		"ticker", intent.Ticker,
		"direction", intent.Direction,
		"quantity", result.LotsExecuted,
		"price", result.ExecutedPrice,
	)

	if o.orders != nil {
		rec := domain.OrderRecord{
			OrderID:   result.OrderID,
			Ticker:    intent.Ticker,
			Quantity:  result.LotsExecuted,
			Price:     result.ExecutedPrice,
			Direction: intent.Direction,
			Timestamp: time.Now(),
		}
		if err := o.orders.SaveOrder(ctx, tc.mode, rec); err != nil {
			log.Warn("order record write failed", "order_id", result.OrderID, "err", err)
		}
	}

	text := fmt.Sprintf("[%s] %s %d %s @ %.2f",
		tc.mode, intent.Direction, result.LotsExecuted, intent.Ticker, result.ExecutedPrice)
	if err := o.notifier.Notify(ctx, text); err != nil {
		log.Warn("notification failed", "err", err)
	}
	return true
}

// reportStatus pushes the context's account state to the status sink.
func (o *Orchestrator) reportStatus(tc *tradingContext, portfolio domain.Portfolio) {
	if o.status == nil {
		return
	}
	positions := portfolio.Positions
	if positions == nil {
		positions = []domain.Position{}
	}
	err := o.status.Apply(tc.mode, status.Update{
		TradingEnabled: status.Bool(true),
		Capital:        status.Float(portfolio.TotalValue),
		Profit:         status.Float(portfolio.TotalValue - tc.initialCapital),
		Positions:      positions,
	})
	if err != nil {
		o.log.Warn("status update failed", "mode", tc.mode, "err", err)
	}
}

// findPosition returns the portfolio's position in ticker, or nil.
func findPosition(portfolio domain.Portfolio, ticker string) *domain.Position {
	for i := range portfolio.Positions {
		if portfolio.Positions[i].Ticker == ticker {
			return &portfolio.Positions[i]
		}
	}
	return nil
}

// cronLogger adapts slog to the scheduler's logging interface.
type cronLogger struct {
	log *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.log.Info(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.log.Error(msg, append([]any{"err", err}, keysAndValues...)...)
}
