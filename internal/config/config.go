package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	SourceHyperliquid = "hyperliquid"
	SourceCSV         = "csv"

	dateLayout = "2006-01-02"
)

type Config struct {
	Log       LoggingConfig   `yaml:"log"`
	Data      DataConfig      `yaml:"data"`
	Pool      PoolConfig      `yaml:"pool"`
	Exchange  ExchangeConfig  `yaml:"exchange"`
	Strategy  StrategyConfig  `yaml:"strategy"`
	Backtest  BacktestConfig  `yaml:"backtest"`
	Sweep     SweepConfig     `yaml:"sweep"`
	State     StateConfig     `yaml:"state"`
	Timescale TimescaleConfig `yaml:"timescale"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Telegram  TelegramConfig  `yaml:"telegram"`
}

type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// DataConfig selects the price series. Start is inclusive and End exclusive,
// both as YYYY-MM-DD in UTC.
type DataConfig struct {
	Source   string        `yaml:"source"`
	Asset    string        `yaml:"asset"`
	Interval string        `yaml:"interval"`
	Start    string        `yaml:"start"`
	End      string        `yaml:"end"`
	CSVPath  string        `yaml:"csv_path"`
	Export   string        `yaml:"export_csv"`
	BaseURL  string        `yaml:"base_url"`
	Timeout  time.Duration `yaml:"timeout"`
	Cache    *bool         `yaml:"cache"`
}

type PoolConfig struct {
	EthReserve  float64 `yaml:"eth_reserve"`
	UsdcReserve float64 `yaml:"usdc_reserve"`
}

type ExchangeConfig struct {
	StartingBalance float64       `yaml:"starting_balance"`
	FundingRate     float64       `yaml:"funding_rate"`
	FundingInterval time.Duration `yaml:"funding_interval"`
	Leverage        float64       `yaml:"leverage"`
}

type StrategyConfig struct {
	Symbol      string  `yaml:"symbol"`
	Threshold   float64 `yaml:"rebalance_threshold"`
	DeltaPolicy string  `yaml:"delta_policy"`
	DeltaRatio  float64 `yaml:"delta_ratio"`
}

type BacktestConfig struct {
	EthAmount  float64 `yaml:"eth_amount"`
	UsdcAmount float64 `yaml:"usdc_amount"`
	OutputCSV  string  `yaml:"output_csv"`
}

type SweepConfig struct {
	EthAmounts []float64 `yaml:"eth_amounts"`
	Thresholds []float64 `yaml:"thresholds"`
	Workers    int       `yaml:"workers"`
	OutputCSV  string    `yaml:"output_csv"`
	Top        int       `yaml:"top"`
}

type StateConfig struct {
	SQLitePath string `yaml:"sqlite_path"`
}

type TimescaleConfig struct {
	Enabled         bool          `yaml:"enabled"`
	DSN             string        `yaml:"dsn"`
	Schema          string        `yaml:"schema"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

type MetricsConfig struct {
	Enabled *bool  `yaml:"enabled"`
	Address string `yaml:"address"`
	Path    string `yaml:"path"`
}

func (m MetricsConfig) EnabledValue() bool {
	return m.Enabled == nil || *m.Enabled
}

type TelegramConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
	ChatID  string `yaml:"chat_id"`
}

func (d DataConfig) CacheValue() bool {
	return d.Cache == nil || *d.Cache
}

// Range parses Start and End.
func (d DataConfig) Range() (time.Time, time.Time, error) {
	start, err := time.ParseInLocation(dateLayout, d.Start, time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("data.start: %w", err)
	}
	end, err := time.ParseInLocation(dateLayout, d.End, time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("data.end: %w", err)
	}
	return start, end, nil
}

func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	return &cfg, validate(&cfg)
}

// Default is the configuration used when no file is given.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	return &cfg
}

// Validate re-checks a config after callers have overridden fields.
func (c *Config) Validate() error {
	return validate(c)
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.File != "" {
		if cfg.Log.MaxSizeMB == 0 {
			cfg.Log.MaxSizeMB = 100
		}
		if cfg.Log.MaxBackups == 0 {
			cfg.Log.MaxBackups = 3
		}
		if cfg.Log.MaxAgeDays == 0 {
			cfg.Log.MaxAgeDays = 28
		}
	}
	if cfg.Data.Source == "" {
		cfg.Data.Source = SourceHyperliquid
	}
	if cfg.Data.Asset == "" {
		cfg.Data.Asset = "ETH"
	}
	if cfg.Data.Interval == "" {
		cfg.Data.Interval = "1h"
	}
	if cfg.Data.Start == "" {
		cfg.Data.Start = "2022-01-01"
	}
	if cfg.Data.End == "" {
		cfg.Data.End = "2022-12-31"
	}
	if cfg.Data.BaseURL == "" {
		cfg.Data.BaseURL = "https://api.hyperliquid.xyz"
	}
	if cfg.Data.Timeout == 0 {
		cfg.Data.Timeout = 10 * time.Second
	}
	if cfg.Pool.EthReserve == 0 {
		cfg.Pool.EthReserve = 1000
	}
	if cfg.Exchange.StartingBalance == 0 {
		cfg.Exchange.StartingBalance = 10000
	}
	if cfg.Exchange.FundingRate == 0 {
		cfg.Exchange.FundingRate = 0.0001
	}
	if cfg.Exchange.FundingInterval == 0 {
		cfg.Exchange.FundingInterval = 8 * time.Hour
	}
	if cfg.Exchange.Leverage == 0 {
		cfg.Exchange.Leverage = 3
	}
	if cfg.Strategy.Symbol == "" {
		cfg.Strategy.Symbol = "ETHUSDC"
	}
	if cfg.Strategy.Threshold == 0 {
		cfg.Strategy.Threshold = 0.05
	}
	if cfg.Strategy.DeltaPolicy == "" {
		cfg.Strategy.DeltaPolicy = "fixed"
	}
	if cfg.Strategy.DeltaRatio == 0 {
		cfg.Strategy.DeltaRatio = 0.5
	}
	if cfg.Backtest.EthAmount == 0 {
		cfg.Backtest.EthAmount = 10
	}
	if len(cfg.Sweep.EthAmounts) == 0 {
		cfg.Sweep.EthAmounts = []float64{5, 10, 20}
	}
	if len(cfg.Sweep.Thresholds) == 0 {
		cfg.Sweep.Thresholds = []float64{0.01, 0.05, 0.1}
	}
	if cfg.Sweep.Workers == 0 {
		cfg.Sweep.Workers = runtime.GOMAXPROCS(0)
	}
	if cfg.Sweep.Top == 0 {
		cfg.Sweep.Top = 5
	}
	if cfg.State.SQLitePath == "" {
		cfg.State.SQLitePath = "data/lp-hedge.db"
	}
	if cfg.Timescale.Schema == "" {
		cfg.Timescale.Schema = "public"
	}
	if cfg.Metrics.Enabled == nil {
		enabled := true
		cfg.Metrics.Enabled = &enabled
	}
	if cfg.Metrics.Address == "" {
		cfg.Metrics.Address = "127.0.0.1:9001"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
}

func applyEnvOverrides(cfg *Config) {
	if val := strings.TrimSpace(os.Getenv("LPH_TELEGRAM_TOKEN")); val != "" {
		cfg.Telegram.Token = val
	}
	if val := strings.TrimSpace(os.Getenv("LPH_TELEGRAM_CHAT_ID")); val != "" {
		cfg.Telegram.ChatID = val
	}
	if val := strings.TrimSpace(os.Getenv("LPH_TIMESCALE_DSN")); val != "" {
		cfg.Timescale.DSN = val
	}
	if val := strings.TrimSpace(os.Getenv("LPH_DATA_BASE_URL")); val != "" {
		cfg.Data.BaseURL = val
	}
}

func validate(cfg *Config) error {
	switch cfg.Data.Source {
	case SourceHyperliquid:
		start, end, err := cfg.Data.Range()
		if err != nil {
			return err
		}
		if !end.After(start) {
			return errors.New("data.end must be after data.start")
		}
	case SourceCSV:
		if strings.TrimSpace(cfg.Data.CSVPath) == "" {
			return errors.New("data.csv_path is required for csv source")
		}
	default:
		return fmt.Errorf("data.source %q is not supported", cfg.Data.Source)
	}
	if cfg.Data.Timeout < 0 {
		return errors.New("data.timeout must be >= 0")
	}
	if cfg.Pool.EthReserve <= 0 {
		return errors.New("pool.eth_reserve must be > 0")
	}
	if cfg.Pool.UsdcReserve < 0 {
		return errors.New("pool.usdc_reserve must be >= 0")
	}
	if cfg.Exchange.StartingBalance < 0 {
		return errors.New("exchange.starting_balance must be >= 0")
	}
	if cfg.Exchange.FundingInterval < 0 {
		return errors.New("exchange.funding_interval must be >= 0")
	}
	if cfg.Exchange.Leverage <= 0 {
		return errors.New("exchange.leverage must be > 0")
	}
	if cfg.Strategy.Threshold < 0 {
		return errors.New("strategy.rebalance_threshold must be >= 0")
	}
	switch cfg.Strategy.DeltaPolicy {
	case "fixed", "constant_product":
	default:
		return fmt.Errorf("strategy.delta_policy %q is not supported", cfg.Strategy.DeltaPolicy)
	}
	if cfg.Strategy.DeltaRatio < 0 {
		return errors.New("strategy.delta_ratio must be >= 0")
	}
	if cfg.Backtest.EthAmount <= 0 {
		return errors.New("backtest.eth_amount must be > 0")
	}
	if cfg.Backtest.UsdcAmount < 0 {
		return errors.New("backtest.usdc_amount must be >= 0")
	}
	for _, v := range cfg.Sweep.EthAmounts {
		if v <= 0 {
			return errors.New("sweep.eth_amounts must be > 0")
		}
	}
	for _, v := range cfg.Sweep.Thresholds {
		if v < 0 {
			return errors.New("sweep.thresholds must be >= 0")
		}
	}
	if cfg.Sweep.Workers < 0 {
		return errors.New("sweep.workers must be >= 0")
	}
	if cfg.Timescale.Enabled && strings.TrimSpace(cfg.Timescale.DSN) == "" {
		return errors.New("timescale.dsn is required when timescale is enabled")
	}
	if cfg.Metrics.EnabledValue() && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		return errors.New("metrics.path must start with /")
	}
	if cfg.Telegram.Enabled && (cfg.Telegram.Token == "" || cfg.Telegram.ChatID == "") {
		return errors.New("telegram.token and telegram.chat_id are required when telegram is enabled")
	}
	return nil
}
