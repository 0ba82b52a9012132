package backtest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"lp-hedge-backtest/internal/amm"
	"lp-hedge-backtest/internal/market"
	"lp-hedge-backtest/internal/metrics"
	"lp-hedge-backtest/internal/perp"
	"lp-hedge-backtest/internal/strategy"

	"go.uber.org/zap"
)

var ErrNotRun = errors.New("backtest has not run")

// Record is the state of the strategy after one observation.
type Record struct {
	Timestamp  time.Time
	Price      float64
	LPValue    float64
	HodlValue  float64
	ILPct      float64
	HedgePnL   float64
	TotalPnL   float64
	TotalValue float64
	Rebalanced bool
}

// Engine replays a price series through a fresh pool, exchange and hedger.
// Each Run rebuilds all three, so an Engine can be reused sequentially but
// not shared between goroutines.
type Engine struct {
	params  Params
	log     *zap.Logger
	metrics *metrics.Metrics

	pool         *amm.Pool
	exchange     *perp.Exchange
	hedger       *strategy.Hedger
	initialValue float64
}

func New(params Params, log *zap.Logger, m *metrics.Metrics) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	if m == nil {
		m = metrics.NewNoop()
	}
	return &Engine{
		params:  params.withDefaults(),
		log:     log,
		metrics: m,
	}
}

func (e *Engine) Run(ctx context.Context, points []market.PricePoint) ([]Record, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	records, err := e.run(ctx, points)
	if err != nil {
		e.metrics.RunsFailed.Inc()
		return nil, err
	}
	e.metrics.RunsCompleted.Inc()
	return records, nil
}

func (e *Engine) run(ctx context.Context, points []market.PricePoint) ([]Record, error) {
	e.pool, e.exchange, e.hedger = nil, nil, nil
	if len(points) == 0 {
		return []Record{}, nil
	}
	if err := e.params.validate(); err != nil {
		return nil, err
	}
	first := points[0]
	if err := e.setup(first); err != nil {
		return nil, fmt.Errorf("setup at %s: %w", first.Time.Format(time.RFC3339), err)
	}

	position, err := e.hedger.Position()
	if err != nil {
		return nil, err
	}
	e.initialValue = position.HodlValueAt(first.Price)
	lastFunding := first.Time
	rebalances := 0
	fundings := 0
	warnedEntry := 0.0

	records := make([]Record, 0, len(points))
	for _, point := range points {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		e.exchange.SetTime(point.Time)
		if err := e.pool.UpdatePrice(point.Price); err != nil {
			return nil, stepError(point, err)
		}
		rebalanced, err := e.hedger.CheckAndRebalance(point.Price)
		if err != nil {
			return nil, stepError(point, err)
		}
		if rebalanced {
			rebalances++
		}
		if point.Time.Sub(lastFunding) >= e.params.FundingInterval {
			if e.exchange.ApplyDefaultFunding(e.hedger.Symbol()) {
				fundings++
			}
			lastFunding = point.Time
		}
		if hedge, ok := e.hedger.Hedge(); ok && hedge.EntryPrice != warnedEntry {
			if err := strategy.CheckLiquidation(hedge, point.Price); err != nil {
				warnedEntry = hedge.EntryPrice
				e.log.Warn("hedge beyond liquidation price",
					zap.Time("time", point.Time),
					zap.Float64("notional", hedge.Notional(point.Price)),
					zap.Error(err),
				)
			}
		}

		totalPnL := e.hedger.TotalPnL(point.Price)
		records = append(records, Record{
			Timestamp:  point.Time,
			Price:      point.Price,
			LPValue:    position.ValueAt(point.Price),
			HodlValue:  position.HodlValueAt(point.Price),
			ILPct:      position.ImpermanentLoss(point.Price),
			HedgePnL:   e.hedger.HedgePnL(point.Price),
			TotalPnL:   totalPnL,
			TotalValue: e.initialValue + totalPnL,
			Rebalanced: rebalanced,
		})
	}

	last := records[len(records)-1]
	ethReserve, usdcReserve := e.pool.Reserves()
	e.log.Info("backtest complete",
		zap.Int("observations", len(records)),
		zap.Time("start", first.Time),
		zap.Time("end", last.Timestamp),
		zap.Float64("eth_amount", position.EthAmount),
		zap.Float64("threshold", e.params.Threshold),
		zap.Int("rebalances", rebalances),
		zap.Int("funding_payments", fundings),
		zap.Float64("final_value", last.TotalValue),
		zap.Float64("balance", e.exchange.Balance()),
		zap.Float64("pool_eth_reserve", ethReserve),
		zap.Float64("pool_usdc_reserve", usdcReserve),
	)
	return records, nil
}

func (e *Engine) setup(first market.PricePoint) error {
	pool, err := amm.NewPool(first.Price, e.params.EthReserve, e.params.UsdcReserve)
	if err != nil {
		return err
	}
	exchange := perp.NewExchange(e.params.StartingBalance,
		perp.WithLogger(e.log),
		perp.WithMetrics(e.metrics),
		perp.WithFundingRate(e.params.FundingRate),
	)
	exchange.SetTime(first.Time)
	hedger := strategy.NewHedger(pool, exchange, strategy.Config{
		Symbol:    e.params.Symbol,
		Threshold: e.params.Threshold,
		Leverage:  e.params.Leverage,
		Policy:    e.params.Policy,
	}, e.log, e.metrics)
	usdcAmount := e.params.UsdcAmount
	if usdcAmount == 0 {
		usdcAmount = e.params.EthAmount * first.Price
	}
	if err := hedger.ProvideLiquidity(e.params.EthAmount, usdcAmount); err != nil {
		return err
	}
	e.pool, e.exchange, e.hedger = pool, exchange, hedger
	return nil
}

func stepError(point market.PricePoint, err error) error {
	return fmt.Errorf("step %s price %.4f: %w", point.Time.Format(time.RFC3339), point.Price, err)
}

// Pool, Exchange and Hedger expose the components of the last run for
// reporting.
func (e *Engine) Pool() (*amm.Pool, error) {
	if e.pool == nil {
		return nil, ErrNotRun
	}
	return e.pool, nil
}

func (e *Engine) Exchange() (*perp.Exchange, error) {
	if e.exchange == nil {
		return nil, ErrNotRun
	}
	return e.exchange, nil
}

func (e *Engine) Hedger() (*strategy.Hedger, error) {
	if e.hedger == nil {
		return nil, ErrNotRun
	}
	return e.hedger, nil
}

// InitialValue is the deposit's value at the first observation.
func (e *Engine) InitialValue() float64 {
	return e.initialValue
}

func (e *Engine) Params() Params {
	return e.params
}
