// Package config loads the YAML configuration file and applies environment
// variable overrides on top of it.
package config

import (
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the trading bot.
type Config struct {
	Storage  Storage        `yaml:"storage"`
	Brokers  Brokers        `yaml:"brokers"`
	Trading  TradingConfig  `yaml:"trading"`
	Logging  Logging        `yaml:"logging"`
	Telegram TelegramConfig `yaml:"telegram"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
	StatusPath string `yaml:"status_path"`
}

// Brokers selects the broker backend per trading context and carries the
// credential sets for every supported brokerage family.
type Brokers struct {
	Sandbox string `yaml:"sandbox"` // broker type for the sandbox context
	Live    string `yaml:"live"`    // broker type for the live context

	Tinkoff TinkoffConfig `yaml:"tinkoff"`
	Alor    AlorConfig    `yaml:"alor"`
	Alpaca  AlpacaConfig  `yaml:"alpaca"`
}

// TinkoffConfig holds Tinkoff Invest API credentials. Sandbox and live token
// sets are separate: the two contexts must never share credentials.
type TinkoffConfig struct {
	SandboxTokens string `yaml:"sandbox_tokens"` // delimited token list
	LiveTokens    string `yaml:"live_tokens"`    // delimited token list
	AccountID     string `yaml:"account_id"`
	BaseURL       string `yaml:"base_url"`
}

// AlorConfig holds Alor Open API credentials.
type AlorConfig struct {
	Tokens    string `yaml:"tokens"` // delimited JWT list
	AccountID string `yaml:"account_id"`
	BaseURL   string `yaml:"base_url"`
}

// AlpacaConfig holds Alpaca credentials. Each entry in Keys is a
// "key:secret" pair; the list is delimited like every other credential set.
type AlpacaConfig struct {
	Keys    string `yaml:"keys"`
	BaseURL string `yaml:"base_url"`
	DataURL string `yaml:"data_url"`
}

// TradingConfig defines the orchestrator's execution parameters.
type TradingConfig struct {
	Mode           string   `yaml:"mode"`             // "sandbox", "live", or "dual"
	Advisor        string   `yaml:"advisor"`          // advisor name, e.g. "sma-cross"
	CyclePeriod    string   `yaml:"cycle_period"`     // e.g. "30m"
	InitialCapital float64  `yaml:"initial_capital"`  // paper ledger starting cash
	Tickers        []string `yaml:"tickers"`          // watched ticker set
	CandleLookback string   `yaml:"candle_lookback"`  // window for the sandbox data pull
	CandleInterval string   `yaml:"candle_interval"`  // e.g. "1h"
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TelegramConfig configures the optional status notification channel.
type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
	ChatID   string `yaml:"chat_id"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path, parses it into a
// Config struct, and then applies environment variable overrides. A missing
// file is not an error: the configuration can be driven by environment alone.
func Load(path string) (*Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Storage: Storage{
			DataDir:    "data",
			SQLitePath: "data/trading_bot.db",
			StatusPath: "data/bot_status.json",
		},
		Brokers: Brokers{
			Sandbox: "paper",
			Live:    "paper",
			Tinkoff: TinkoffConfig{BaseURL: "https://invest-public-api.tinkoff.ru"},
			Alor:    AlorConfig{BaseURL: "https://api.alor.ru"},
		},
		Trading: TradingConfig{
			Mode:           "sandbox",
			Advisor:        "sma-cross",
			CyclePeriod:    "30m",
			InitialCapital: 1_000_000,
			Tickers:        []string{"SBER", "GAZP", "LKOH"},
			CandleLookback: "72h",
			CandleInterval: "1h",
		},
		Logging: Logging{Level: "info", Format: "json"},
	}
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("STATUS_PATH"); v != "" {
		cfg.Storage.StatusPath = v
	}

	if v := os.Getenv("BROKER_SANDBOX"); v != "" {
		cfg.Brokers.Sandbox = v
	}
	if v := os.Getenv("BROKER_LIVE"); v != "" {
		cfg.Brokers.Live = v
	}

	if v := os.Getenv("TINKOFF_SANDBOX_TOKENS"); v != "" {
		cfg.Brokers.Tinkoff.SandboxTokens = v
	}
	if v := os.Getenv("TINKOFF_LIVE_TOKENS"); v != "" {
		cfg.Brokers.Tinkoff.LiveTokens = v
	}
	// Legacy single-token variable, lowest priority of the Tinkoff set.
	if v := os.Getenv("TINKOFF_TOKEN"); v != "" && cfg.Brokers.Tinkoff.SandboxTokens == "" {
		cfg.Brokers.Tinkoff.SandboxTokens = v
	}
	if v := os.Getenv("TINKOFF_ACCOUNT_ID"); v != "" {
		cfg.Brokers.Tinkoff.AccountID = v
	}

	if v := os.Getenv("ALOR_TOKENS"); v != "" {
		cfg.Brokers.Alor.Tokens = v
	}
	if v := os.Getenv("ALOR_ACCOUNT_ID"); v != "" {
		cfg.Brokers.Alor.AccountID = v
	}

	if v := os.Getenv("ALPACA_KEYS"); v != "" {
		cfg.Brokers.Alpaca.Keys = v
	}
	if v := os.Getenv("ALPACA_BASE_URL"); v != "" {
		cfg.Brokers.Alpaca.BaseURL = v
	}
	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Brokers.Alpaca.DataURL = v
	}

	if v := os.Getenv("TRADING_MODE"); v != "" {
		cfg.Trading.Mode = v
	}
	if v := os.Getenv("TRADING_ADVISOR"); v != "" {
		cfg.Trading.Advisor = v
	}
	if v := os.Getenv("CYCLE_PERIOD"); v != "" {
		cfg.Trading.CyclePeriod = v
	}
	if v := os.Getenv("INITIAL_CAPITAL"); v != "" {
		if capital, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Trading.InitialCapital = capital
		}
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		cfg.Telegram.ChatID = v
	}
}
