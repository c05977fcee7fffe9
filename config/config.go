package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full application configuration.
type Config struct {
	Allocation AllocationConfig `yaml:"allocation"`
	Trading    TradingConfig    `yaml:"trading"`
	Ladder     LadderConfig     `yaml:"ladder"`
	Settlement SettlementConfig `yaml:"settlement"`
	Tuner      TunerConfig      `yaml:"tuner"`
	Rebalance  RebalanceConfig  `yaml:"rebalance"`
	Storage    StorageConfig    `yaml:"storage"`
	Log        LogConfig        `yaml:"log"`
}

// AllocationConfig is the target capital split, in percent. The three
// shares should sum to 100.
type AllocationConfig struct {
	KalshiShare   float64 `yaml:"kalshi_share"`
	CoinbaseShare float64 `yaml:"coinbase_share"`
	ReserveShare  float64 `yaml:"reserve_share"`
}

// TradingConfig holds the default risk limits, used for categories that
// have no tuned StrategyParams yet.
type TradingConfig struct {
	MaxTradeUSD        float64 `yaml:"max_trade_usd"`
	MaxOpenPositions   int     `yaml:"max_open_positions"`
	DailySpendingLimit float64 `yaml:"daily_spending_limit"`
	DailyProfitTarget  float64 `yaml:"daily_profit_target"`
	MinConfidence      float64 `yaml:"min_confidence"`
	MinEdge            float64 `yaml:"min_edge"`
	IntervalSeconds    int     `yaml:"interval_seconds"`
	InitialBalance     float64 `yaml:"initial_balance"` // paper mode starting capital per venue
}

// LadderConfig holds the venue decision ladder thresholds. The numbers have
// no documented derivation, so they are tunable here rather than hard-coded.
type LadderConfig struct {
	UnderAllocatedMinScore float64 `yaml:"under_allocated_min_score"`
	BalancedMinScore       float64 `yaml:"balanced_min_score"`
	OverAllocatedMinScore  float64 `yaml:"over_allocated_min_score"`
	BalancedBand           float64 `yaml:"balanced_band"`
	DefaultMinScore        float64 `yaml:"default_min_score"`
	MinAvailable           float64 `yaml:"min_available"`
}

// SettlementConfig controls the reconciliation workers.
type SettlementConfig struct {
	IntervalSeconds  int     `yaml:"interval_seconds"`
	LookupLimit      int     `yaml:"lookup_limit"`
	MaxRetries       int     `yaml:"max_retries"`
	LookupsPerSecond float64 `yaml:"lookups_per_second"`
}

// TunerConfig controls the adaptive parameter tuner.
type TunerConfig struct {
	IntervalSeconds int `yaml:"interval_seconds"`
	MinSample       int `yaml:"min_sample"`
	Window          int `yaml:"window"`
}

// RebalanceConfig controls the advisory transfer tracker.
type RebalanceConfig struct {
	Threshold float64 `yaml:"threshold"` // dollar drift that triggers a suggestion
}

// StorageConfig controls where data is persisted.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // path to the SQLite file, or ":memory:"
}

// LogConfig controls logging format and level.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load reads the YAML file and the .env file if present. Environment
// variables override the matching YAML keys.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	return &cfg, nil
}

// TradingInterval returns the trading cycle cadence.
func (c *Config) TradingInterval() time.Duration {
	return time.Duration(c.Trading.IntervalSeconds) * time.Second
}

// SettlementInterval returns the reconciliation cadence.
func (c *Config) SettlementInterval() time.Duration {
	return time.Duration(c.Settlement.IntervalSeconds) * time.Second
}

// TunerInterval returns the tuning cadence.
func (c *Config) TunerInterval() time.Duration {
	return time.Duration(c.Tuner.IntervalSeconds) * time.Second
}

// applyEnvOverrides replaces values with environment variables when set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("BANKROLL_DSN"); v != "" {
		cfg.Storage.DSN = v
	}
}

// setDefaults ensures required values have sensible defaults.
func setDefaults(cfg *Config) {
	if cfg.Allocation.KalshiShare <= 0 && cfg.Allocation.CoinbaseShare <= 0 {
		cfg.Allocation.KalshiShare = 40
		cfg.Allocation.CoinbaseShare = 50
		cfg.Allocation.ReserveShare = 10
	}
	if cfg.Trading.MaxTradeUSD <= 0 {
		cfg.Trading.MaxTradeUSD = 10
	}
	if cfg.Trading.MaxOpenPositions <= 0 {
		cfg.Trading.MaxOpenPositions = 5
	}
	if cfg.Trading.DailySpendingLimit <= 0 {
		cfg.Trading.DailySpendingLimit = 50
	}
	if cfg.Trading.MinConfidence <= 0 {
		cfg.Trading.MinConfidence = 65
	}
	if cfg.Trading.MinEdge <= 0 {
		cfg.Trading.MinEdge = 3
	}
	if cfg.Trading.IntervalSeconds <= 0 {
		cfg.Trading.IntervalSeconds = 30
	}
	if cfg.Trading.InitialBalance <= 0 {
		cfg.Trading.InitialBalance = 500
	}
	if cfg.Ladder.UnderAllocatedMinScore <= 0 {
		cfg.Ladder.UnderAllocatedMinScore = 60
	}
	if cfg.Ladder.BalancedMinScore <= 0 {
		cfg.Ladder.BalancedMinScore = 70
	}
	if cfg.Ladder.OverAllocatedMinScore <= 0 {
		cfg.Ladder.OverAllocatedMinScore = 85
	}
	if cfg.Ladder.BalancedBand <= 0 {
		cfg.Ladder.BalancedBand = 20
	}
	if cfg.Ladder.DefaultMinScore <= 0 {
		cfg.Ladder.DefaultMinScore = 75
	}
	if cfg.Ladder.MinAvailable <= 0 {
		cfg.Ladder.MinAvailable = 5
	}
	if cfg.Settlement.IntervalSeconds <= 0 {
		cfg.Settlement.IntervalSeconds = 120
	}
	if cfg.Settlement.LookupLimit <= 0 {
		cfg.Settlement.LookupLimit = 5
	}
	if cfg.Settlement.MaxRetries <= 0 {
		cfg.Settlement.MaxRetries = 2
	}
	if cfg.Settlement.LookupsPerSecond <= 0 {
		cfg.Settlement.LookupsPerSecond = 4
	}
	if cfg.Tuner.IntervalSeconds <= 0 {
		cfg.Tuner.IntervalSeconds = 300
	}
	if cfg.Tuner.MinSample <= 0 {
		cfg.Tuner.MinSample = 10
	}
	if cfg.Tuner.Window <= 0 {
		cfg.Tuner.Window = 100
	}
	if cfg.Rebalance.Threshold <= 0 {
		cfg.Rebalance.Threshold = 50
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "bankroll.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
