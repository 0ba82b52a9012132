package backtest

import (
	"errors"
	"time"

	"lp-hedge-backtest/internal/config"
	"lp-hedge-backtest/internal/perp"
	"lp-hedge-backtest/internal/strategy"
)

const (
	DefaultEthReserve      = 1000.0
	DefaultEthAmount       = 10.0
	DefaultFundingInterval = 8 * time.Hour
)

// Params configures one run. Zero UsdcReserve and UsdcAmount are derived
// from the first observed price so both sides start at equal value.
type Params struct {
	Symbol          string
	EthReserve      float64
	UsdcReserve     float64
	StartingBalance float64
	FundingRate     float64
	FundingInterval time.Duration
	EthAmount       float64
	UsdcAmount      float64
	Threshold       float64
	Leverage        float64
	Policy          strategy.DeltaPolicy
}

func DefaultParams() Params {
	return Params{
		Symbol:          strategy.DefaultSymbol,
		EthReserve:      DefaultEthReserve,
		StartingBalance: perp.DefaultStartingBalance,
		FundingRate:     perp.DefaultFundingRate,
		FundingInterval: DefaultFundingInterval,
		EthAmount:       DefaultEthAmount,
		Threshold:       strategy.DefaultThreshold,
		Leverage:        strategy.DefaultHedgeLeverage,
	}
}

// ParamsFromConfig maps the pool, exchange, strategy and backtest sections.
func ParamsFromConfig(cfg *config.Config) (Params, error) {
	if cfg == nil {
		return DefaultParams(), nil
	}
	policy, err := strategy.PolicyByName(cfg.Strategy.DeltaPolicy, cfg.Strategy.DeltaRatio)
	if err != nil {
		return Params{}, err
	}
	return Params{
		Symbol:          cfg.Strategy.Symbol,
		EthReserve:      cfg.Pool.EthReserve,
		UsdcReserve:     cfg.Pool.UsdcReserve,
		StartingBalance: cfg.Exchange.StartingBalance,
		FundingRate:     cfg.Exchange.FundingRate,
		FundingInterval: cfg.Exchange.FundingInterval,
		EthAmount:       cfg.Backtest.EthAmount,
		UsdcAmount:      cfg.Backtest.UsdcAmount,
		Threshold:       cfg.Strategy.Threshold,
		Leverage:        cfg.Exchange.Leverage,
		Policy:          policy,
	}, nil
}

func (p Params) withDefaults() Params {
	if p.Symbol == "" {
		p.Symbol = strategy.DefaultSymbol
	}
	if p.FundingInterval <= 0 {
		p.FundingInterval = DefaultFundingInterval
	}
	if p.Leverage <= 0 {
		p.Leverage = strategy.DefaultHedgeLeverage
	}
	return p
}

func (p Params) validate() error {
	if p.EthReserve <= 0 {
		return errors.New("eth reserve must be > 0")
	}
	if p.UsdcReserve < 0 {
		return errors.New("usdc reserve must be >= 0")
	}
	if p.StartingBalance < 0 {
		return errors.New("starting balance must be >= 0")
	}
	if p.EthAmount <= 0 {
		return errors.New("eth amount must be > 0")
	}
	if p.UsdcAmount < 0 {
		return errors.New("usdc amount must be >= 0")
	}
	if p.Threshold < 0 {
		return errors.New("rebalance threshold must be >= 0")
	}
	return nil
}
