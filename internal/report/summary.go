package report

import (
	"errors"
	"time"

	"lp-hedge-backtest/internal/backtest"
	"lp-hedge-backtest/internal/market"
	"lp-hedge-backtest/internal/perp"

	"go.uber.org/zap"
)

var ErrNoRecords = errors.New("no records to summarise")

// Account is the read side of the hedge venue used in summaries.
type Account interface {
	Balance() float64
	FundingTotal(symbol string) float64
	Trades() []perp.Trade
}

// Summary condenses a run. Returns and changes are percentages; MaxILPct is
// the most negative impermanent loss seen and VolatilityPct the standard
// deviation of per-observation price returns, also in percent.
type Summary struct {
	Start           time.Time
	End             time.Time
	Observations    int
	InitialPrice    float64
	FinalPrice      float64
	PriceChangePct  float64
	LPReturnPct     float64
	HedgedReturnPct float64
	HodlReturnPct   float64
	MaxILPct        float64
	VolatilityPct   float64
	Rebalances      int
	FinalValue      float64
	FinalBalance    float64
	FundingTotal    float64
	Trades          int
}

// Summarize derives the headline figures from records. Returns are measured
// against the first record's LP value. account may be nil.
func Summarize(records []backtest.Record, account Account, symbol string) (Summary, error) {
	if len(records) == 0 {
		return Summary{}, ErrNoRecords
	}
	first := records[0]
	last := records[len(records)-1]
	summary := Summary{
		Start:        first.Timestamp,
		End:          last.Timestamp,
		Observations: len(records),
		InitialPrice: first.Price,
		FinalPrice:   last.Price,
		FinalValue:   last.TotalValue,
	}
	summary.PriceChangePct = pctChange(first.Price, last.Price)
	summary.LPReturnPct = pctChange(first.LPValue, last.LPValue)
	summary.HedgedReturnPct = pctChange(first.LPValue, last.TotalValue)
	summary.HodlReturnPct = pctChange(first.HodlValue, last.HodlValue)
	closes := make([]float64, len(records))
	for i, rec := range records {
		closes[i] = rec.Price
		if rec.Rebalanced {
			summary.Rebalances++
		}
		if il := rec.ILPct * 100; il < summary.MaxILPct {
			summary.MaxILPct = il
		}
	}
	summary.VolatilityPct = market.Volatility(closes) * 100
	if account != nil {
		summary.FinalBalance = account.Balance()
		summary.FundingTotal = account.FundingTotal(symbol)
		summary.Trades = len(account.Trades())
	}
	return summary, nil
}

func (s Summary) Fields() []zap.Field {
	return []zap.Field{
		zap.Time("start", s.Start),
		zap.Time("end", s.End),
		zap.Int("observations", s.Observations),
		zap.Float64("initial_price", s.InitialPrice),
		zap.Float64("final_price", s.FinalPrice),
		zap.Float64("price_change_pct", s.PriceChangePct),
		zap.Float64("lp_return_pct", s.LPReturnPct),
		zap.Float64("hedged_return_pct", s.HedgedReturnPct),
		zap.Float64("hodl_return_pct", s.HodlReturnPct),
		zap.Float64("max_il_pct", s.MaxILPct),
		zap.Float64("volatility_pct", s.VolatilityPct),
		zap.Int("rebalances", s.Rebalances),
		zap.Float64("final_value", s.FinalValue),
		zap.Float64("final_balance", s.FinalBalance),
		zap.Float64("funding_total", s.FundingTotal),
		zap.Int("trades", s.Trades),
	}
}

func pctChange(from, to float64) float64 {
	if from == 0 {
		return 0
	}
	return (to/from - 1) * 100
}
