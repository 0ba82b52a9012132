package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)
	if cfg.Pool.EthReserve != 1000 {
		t.Fatalf("expected eth reserve 1000, got %v", cfg.Pool.EthReserve)
	}
	if cfg.Exchange.StartingBalance != 10000 || cfg.Exchange.FundingRate != 0.0001 {
		t.Fatalf("unexpected exchange defaults: %#v", cfg.Exchange)
	}
	if cfg.Exchange.FundingInterval != 8*time.Hour || cfg.Exchange.Leverage != 3 {
		t.Fatalf("unexpected funding/leverage defaults: %#v", cfg.Exchange)
	}
	if cfg.Strategy.Symbol != "ETHUSDC" || cfg.Strategy.Threshold != 0.05 {
		t.Fatalf("unexpected strategy defaults: %#v", cfg.Strategy)
	}
	if cfg.Strategy.DeltaPolicy != "fixed" || cfg.Strategy.DeltaRatio != 0.5 {
		t.Fatalf("unexpected delta defaults: %#v", cfg.Strategy)
	}
	if cfg.Backtest.EthAmount != 10 {
		t.Fatalf("expected eth amount 10, got %v", cfg.Backtest.EthAmount)
	}
	if cfg.Data.Source != SourceHyperliquid || cfg.Data.Asset != "ETH" || cfg.Data.Interval != "1h" {
		t.Fatalf("unexpected data defaults: %#v", cfg.Data)
	}
	if !cfg.Data.CacheValue() {
		t.Fatalf("expected cache enabled by default")
	}
	if len(cfg.Sweep.EthAmounts) != 3 || len(cfg.Sweep.Thresholds) != 3 || cfg.Sweep.Workers <= 0 {
		t.Fatalf("unexpected sweep defaults: %#v", cfg.Sweep)
	}
	if cfg.State.SQLitePath != "data/lp-hedge.db" {
		t.Fatalf("unexpected sqlite path %q", cfg.State.SQLitePath)
	}
	if err := validate(cfg); err != nil {
		t.Fatalf("expected defaults to validate, got %v", err)
	}
}

func TestMetricsDefaults(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)
	if cfg.Metrics.Enabled == nil || !cfg.Metrics.EnabledValue() {
		t.Fatalf("expected metrics enabled default")
	}
	if cfg.Metrics.Address != "127.0.0.1:9001" {
		t.Fatalf("expected metrics address default, got %q", cfg.Metrics.Address)
	}
	if cfg.Metrics.Path != "/metrics" {
		t.Fatalf("expected metrics path default, got %q", cfg.Metrics.Path)
	}
}

func TestLogRotationDefaultsOnlyWithFile(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)
	if cfg.Log.MaxSizeMB != 0 {
		t.Fatalf("expected no rotation defaults without file")
	}
	cfg = &Config{Log: LoggingConfig{File: "logs/run.log"}}
	applyDefaults(cfg)
	if cfg.Log.MaxSizeMB != 100 || cfg.Log.MaxBackups != 3 || cfg.Log.MaxAgeDays != 28 {
		t.Fatalf("unexpected rotation defaults: %#v", cfg.Log)
	}
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "" +
		"data:\n" +
		"  source: csv\n" +
		"  csv_path: data/eth.csv\n" +
		"strategy:\n" +
		"  rebalance_threshold: 0.1\n" +
		"  delta_policy: constant_product\n" +
		"exchange:\n" +
		"  funding_interval: 4h\n" +
		"sweep:\n" +
		"  eth_amounts: [1, 2]\n" +
		"metrics:\n" +
		"  enabled: false\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Data.Source != SourceCSV || cfg.Data.CSVPath != "data/eth.csv" {
		t.Fatalf("unexpected data config: %#v", cfg.Data)
	}
	if cfg.Strategy.Threshold != 0.1 || cfg.Strategy.DeltaPolicy != "constant_product" {
		t.Fatalf("unexpected strategy config: %#v", cfg.Strategy)
	}
	if cfg.Exchange.FundingInterval != 4*time.Hour {
		t.Fatalf("expected 4h funding interval, got %v", cfg.Exchange.FundingInterval)
	}
	if len(cfg.Sweep.EthAmounts) != 2 || len(cfg.Sweep.Thresholds) != 3 {
		t.Fatalf("unexpected sweep grid: %#v", cfg.Sweep)
	}
	if cfg.Metrics.EnabledValue() {
		t.Fatalf("expected metrics disabled")
	}
}

func TestLoadRequiresPath(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
}

func TestDataRange(t *testing.T) {
	cfg := DataConfig{Start: "2022-01-01", End: "2022-02-01"}
	start, end, err := cfg.Range()
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	if !start.Equal(time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)) || !end.Equal(time.Date(2022, 2, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected range %s - %s", start, end)
	}
	if _, _, err := (DataConfig{Start: "01/01/2022", End: "2022-02-01"}).Range(); err == nil {
		t.Fatalf("expected error for malformed start")
	}
}

func TestValidateRejectsReversedRange(t *testing.T) {
	cfg := &Config{Data: DataConfig{Start: "2022-02-01", End: "2022-01-01"}}
	applyDefaults(cfg)
	if err := validate(cfg); err == nil {
		t.Fatalf("expected error for end before start")
	}
}

func TestValidateRequiresCSVPath(t *testing.T) {
	cfg := &Config{Data: DataConfig{Source: SourceCSV}}
	applyDefaults(cfg)
	if err := validate(cfg); err == nil {
		t.Fatalf("expected error for csv source without path")
	}
}

func TestValidateRejectsUnknownSource(t *testing.T) {
	cfg := &Config{Data: DataConfig{Source: "yahoo"}}
	applyDefaults(cfg)
	if err := validate(cfg); err == nil {
		t.Fatalf("expected error for unknown source")
	}
}

func TestValidateRejectsUnknownDeltaPolicy(t *testing.T) {
	cfg := &Config{Strategy: StrategyConfig{DeltaPolicy: "gamma"}}
	applyDefaults(cfg)
	if err := validate(cfg); err == nil {
		t.Fatalf("expected error for unknown delta policy")
	}
}

func TestValidateRejectsNegativeAmounts(t *testing.T) {
	cases := []func(*Config){
		func(c *Config) { c.Pool.EthReserve = -1 },
		func(c *Config) { c.Pool.UsdcReserve = -1 },
		func(c *Config) { c.Exchange.StartingBalance = -1 },
		func(c *Config) { c.Strategy.Threshold = -0.1 },
		func(c *Config) { c.Backtest.EthAmount = -1 },
		func(c *Config) { c.Backtest.UsdcAmount = -1 },
		func(c *Config) { c.Sweep.EthAmounts = []float64{1, 0} },
		func(c *Config) { c.Sweep.Thresholds = []float64{-0.01} },
	}
	for i, mutate := range cases {
		cfg := &Config{}
		applyDefaults(cfg)
		mutate(cfg)
		if err := validate(cfg); err == nil {
			t.Fatalf("case %d: expected validation error", i)
		}
	}
}

func TestValidateRejectsMetricsPathWithoutSlash(t *testing.T) {
	cfg := &Config{Metrics: MetricsConfig{Path: "metrics"}}
	applyDefaults(cfg)
	if err := validate(cfg); err == nil {
		t.Fatalf("expected error for metrics path without leading slash")
	}
}

func TestValidateRequiresTimescaleDSN(t *testing.T) {
	t.Setenv("LPH_TIMESCALE_DSN", "")
	cfg := &Config{Timescale: TimescaleConfig{Enabled: true}}
	applyDefaults(cfg)
	applyEnvOverrides(cfg)
	if err := validate(cfg); err == nil {
		t.Fatalf("expected error for missing timescale dsn")
	}
	t.Setenv("LPH_TIMESCALE_DSN", "postgres://localhost/backtests")
	applyEnvOverrides(cfg)
	if err := validate(cfg); err != nil {
		t.Fatalf("expected env dsn to satisfy validation, got %v", err)
	}
}

func TestValidateRejectsTelegramEnabledWithoutConfig(t *testing.T) {
	t.Setenv("LPH_TELEGRAM_TOKEN", "")
	t.Setenv("LPH_TELEGRAM_CHAT_ID", "")
	cfg := &Config{Telegram: TelegramConfig{Enabled: true}}
	applyDefaults(cfg)
	applyEnvOverrides(cfg)
	if err := validate(cfg); err == nil {
		t.Fatalf("expected error for missing telegram token/chat_id")
	}
}

func TestTelegramEnvOverridesConfig(t *testing.T) {
	t.Setenv("LPH_TELEGRAM_TOKEN", "env-token")
	t.Setenv("LPH_TELEGRAM_CHAT_ID", "123")
	cfg := &Config{
		Telegram: TelegramConfig{
			Enabled: true,
			Token:   "config-token",
			ChatID:  "999",
		},
	}
	applyDefaults(cfg)
	applyEnvOverrides(cfg)
	if cfg.Telegram.Token != "env-token" {
		t.Fatalf("expected env token override, got %q", cfg.Telegram.Token)
	}
	if cfg.Telegram.ChatID != "123" {
		t.Fatalf("expected env chat id override, got %q", cfg.Telegram.ChatID)
	}
	if err := validate(cfg); err != nil {
		t.Fatalf("expected valid config with env overrides, got %v", err)
	}
}

func TestDataBaseURLEnvOverride(t *testing.T) {
	t.Setenv("LPH_DATA_BASE_URL", "http://127.0.0.1:8080")
	cfg := Default()
	if cfg.Data.BaseURL != "http://127.0.0.1:8080" {
		t.Fatalf("expected env base url, got %q", cfg.Data.BaseURL)
	}
}
