package broker

import (
	"log/slog"
	"strings"

	"moextrader/internal/config"
	"moextrader/internal/credpool"
	"moextrader/internal/domain"
	"moextrader/internal/marketdata"
)

// Options carries everything the factory needs to construct an adapter for
// one trading context.
type Options struct {
	// Type selects the backend: "paper", "tinkoff", "alor", or "alpaca".
	Type string
	// Mode is the trading context the adapter will serve. The Tinkoff family
	// keeps separate sandbox and live credential sets.
	Mode domain.Mode
	// InitialCapital seeds the paper ledger (used directly for "paper" and
	// as the fallback when a real adapter cannot be constructed).
	InitialCapital float64
	// Quoter marks paper positions; ignored by real adapters.
	Quoter marketdata.Quoter
}

// New constructs the broker adapter selected by opts, drawing credentials
// from cfg. Misconfiguration is never fatal: an unknown type or an empty
// credential set falls back to the paper broker so every enabled context has
// a usable adapter.
func New(cfg *config.Brokers, opts Options) Broker {
	log := slog.Default().With("component", "broker-factory", "mode", string(opts.Mode))

	switch strings.ToLower(opts.Type) {
	case "paper", "":
		log.Info("creating paper broker")
		return NewPaperBroker(opts.InitialCapital, opts.Quoter)

	case "tinkoff":
		tokens := cfg.Tinkoff.LiveTokens
		if opts.Mode == domain.ModeSandbox {
			tokens = cfg.Tinkoff.SandboxTokens
		}
		pool := credpool.New(credpool.ParseValues(tokens))
		if pool.Size() == 0 {
			log.Warn("no tinkoff credentials for this mode, falling back to paper broker")
			return NewPaperBroker(opts.InitialCapital, opts.Quoter)
		}
		log.Info("creating tinkoff broker", "credentials", pool.Size())
		return NewTinkoffBroker(pool, cfg.Tinkoff.AccountID, cfg.Tinkoff.BaseURL)

	case "alor":
		pool := credpool.New(credpool.ParseValues(cfg.Alor.Tokens))
		if pool.Size() == 0 || cfg.Alor.AccountID == "" {
			log.Warn("alor credentials or account id missing, falling back to paper broker")
			return NewPaperBroker(opts.InitialCapital, opts.Quoter)
		}
		log.Info("creating alor broker", "credentials", pool.Size())
		return NewAlorBroker(pool, cfg.Alor.AccountID, cfg.Alor.BaseURL)

	case "alpaca":
		pool := credpool.New(credpool.ParseValues(cfg.Alpaca.Keys))
		if pool.Size() == 0 {
			log.Warn("no alpaca credentials, falling back to paper broker")
			return NewPaperBroker(opts.InitialCapital, opts.Quoter)
		}
		log.Info("creating alpaca broker", "credentials", pool.Size())
		return NewAlpacaBroker(pool, cfg.Alpaca.BaseURL, cfg.Alpaca.DataURL)

	default:
		log.Warn("unknown broker type, falling back to paper broker", "type", opts.Type)
		return NewPaperBroker(opts.InitialCapital, opts.Quoter)
	}
}
