package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"lp-hedge-backtest/internal/alerts"
	"lp-hedge-backtest/internal/backtest"
	"lp-hedge-backtest/internal/config"
	"lp-hedge-backtest/internal/hl/rest"
	"lp-hedge-backtest/internal/market"
	"lp-hedge-backtest/internal/metrics"
	"lp-hedge-backtest/internal/report"
	"lp-hedge-backtest/internal/state"
	"lp-hedge-backtest/internal/state/sqlite"
	"lp-hedge-backtest/internal/sweep"
	"lp-hedge-backtest/internal/timescale"

	"go.uber.org/zap"
)

var ErrNoPrices = errors.New("price series is empty")

// PriceSource yields historical prices for an asset between two instants.
type PriceSource interface {
	Prices(ctx context.Context, asset, interval string, start, end time.Time) ([]market.PricePoint, error)
}

type App struct {
	cfg       *config.Config
	log       *zap.Logger
	store     state.Store
	source    PriceSource
	prom      *metrics.Prometheus
	metrics   *metrics.Metrics
	timescale *timescale.Writer
	alerts    *alerts.Telegram
	now       func() time.Time
}

// BacktestResult is the outcome of a single configured run.
type BacktestResult struct {
	RunID   string
	Records []backtest.Record
	Summary report.Summary
}

func New(cfg *config.Config, log *zap.Logger) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(cfg.State.SQLitePath), 0o755); err != nil {
		return nil, err
	}
	store, err := sqlite.New(cfg.State.SQLitePath)
	if err != nil {
		return nil, err
	}
	writer, err := timescale.New(cfg.Timescale, log)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("timescale: %w", err)
	}
	a := &App{
		cfg:       cfg,
		log:       log,
		store:     store,
		source:    market.NewFetcher(rest.New(cfg.Data.BaseURL, cfg.Data.Timeout, log), log),
		metrics:   metrics.NewNoop(),
		timescale: writer,
		alerts:    alerts.NewTelegram(cfg.Telegram, log),
		now:       time.Now,
	}
	if cfg.Metrics.EnabledValue() {
		a.prom = metrics.NewPrometheus()
		a.metrics = a.prom.Metrics
	}
	return a, nil
}

func (a *App) Close() error {
	var errs []error
	if a.timescale != nil {
		errs = append(errs, a.timescale.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	return errors.Join(errs...)
}

// LoadPrices reads the configured series from CSV or from the candle API,
// consulting the sqlite cache first for the latter.
func (a *App) LoadPrices(ctx context.Context) ([]market.PricePoint, error) {
	points, err := a.loadPrices(ctx)
	if err != nil {
		return nil, err
	}
	if len(points) == 0 {
		return nil, ErrNoPrices
	}
	if path := a.cfg.Data.Export; path != "" {
		if err := writeFile(path, func(f *os.File) error { return market.WriteCSV(f, points) }); err != nil {
			return nil, fmt.Errorf("export prices: %w", err)
		}
		a.log.Info("prices exported", zap.String("path", path), zap.Int("count", len(points)))
	}
	return points, nil
}

func (a *App) loadPrices(ctx context.Context) ([]market.PricePoint, error) {
	data := a.cfg.Data
	if data.Source == config.SourceCSV {
		f, err := os.Open(data.CSVPath)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		points, err := market.ReadCSV(f)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", data.CSVPath, err)
		}
		a.log.Info("prices loaded from csv", zap.String("path", data.CSVPath), zap.Int("count", len(points)))
		return points, nil
	}
	start, end, err := data.Range()
	if err != nil {
		return nil, err
	}
	key := state.PriceKey(data.Asset, data.Interval, start, end)
	if data.CacheValue() {
		points, ok, err := state.LoadPrices(ctx, a.store, key)
		if err != nil {
			a.log.Warn("price cache read failed", zap.String("key", key), zap.Error(err))
		} else if ok {
			a.log.Info("prices loaded from cache", zap.String("key", key), zap.Int("count", len(points)))
			return points, nil
		}
	}
	points, err := a.source.Prices(ctx, data.Asset, data.Interval, start, end)
	if err != nil {
		return nil, err
	}
	a.log.Info("prices fetched",
		zap.String("asset", data.Asset),
		zap.String("interval", data.Interval),
		zap.Time("start", start),
		zap.Time("end", end),
		zap.Int("count", len(points)),
	)
	if data.CacheValue() && len(points) > 0 {
		if err := state.SavePrices(ctx, a.store, key, points); err != nil {
			a.log.Warn("price cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return points, nil
}

// RunBacktest runs the configured single backtest and fans the result out
// to the CSV file, the run snapshot, timescale and telegram.
func (a *App) RunBacktest(ctx context.Context, points []market.PricePoint) (BacktestResult, error) {
	params, err := backtest.ParamsFromConfig(a.cfg)
	if err != nil {
		return BacktestResult{}, err
	}
	engine := backtest.New(params, a.log, a.metrics)
	records, err := engine.Run(ctx, points)
	if err != nil {
		return BacktestResult{}, err
	}
	exchange, err := engine.Exchange()
	if err != nil {
		return BacktestResult{}, err
	}
	summary, err := report.Summarize(records, exchange, params.Symbol)
	if err != nil {
		return BacktestResult{}, err
	}
	result := BacktestResult{
		RunID:   a.runID("bt"),
		Records: records,
		Summary: summary,
	}
	a.log.Info("backtest summary", append([]zap.Field{zap.String("run_id", result.RunID)}, summary.Fields()...)...)

	if path := a.cfg.Backtest.OutputCSV; path != "" {
		if err := writeFile(path, func(f *os.File) error { return report.WriteRecordsCSV(f, records) }); err != nil {
			return result, fmt.Errorf("write results: %w", err)
		}
		a.log.Info("results written", zap.String("path", path))
	}
	a.saveSnapshot(ctx, engine, summary)
	a.recordRun(ctx, result.RunID, records)
	a.alerts.NotifyRun(ctx, fmt.Sprintf("eth=%g thr=%g", params.EthAmount, params.Threshold), summary)
	return result, nil
}

// RunSweep evaluates the configured grid and returns the cells in grid order.
func (a *App) RunSweep(ctx context.Context, points []market.PricePoint) ([]sweep.Result, error) {
	params, err := backtest.ParamsFromConfig(a.cfg)
	if err != nil {
		return nil, err
	}
	// Cell runs only surface warnings.
	runner := sweep.New(params, a.cfg.Sweep.Workers, a.log.WithOptions(zap.IncreaseLevel(zap.WarnLevel)), a.metrics)
	results, err := runner.Run(ctx, sweep.Grid{
		EthAmounts: a.cfg.Sweep.EthAmounts,
		Thresholds: a.cfg.Sweep.Thresholds,
	}, points)
	if err != nil {
		return nil, err
	}
	sweepID := a.runID("sweep")
	for i, res := range sweep.Rank(results) {
		if i >= a.cfg.Sweep.Top || res.Err != nil {
			break
		}
		a.log.Info("sweep rank",
			zap.Int("rank", i+1),
			zap.Float64("eth_amount", res.EthAmount),
			zap.Float64("threshold", res.Threshold),
			zap.Float64("final_value", res.FinalValue),
			zap.Float64("roi", res.ROI),
			zap.Float64("max_drawdown", res.MaxDrawdown),
			zap.Float64("sharpe_ratio", res.SharpeRatio),
		)
	}
	if path := a.cfg.Sweep.OutputCSV; path != "" {
		if err := writeFile(path, func(f *os.File) error { return report.WriteSweepCSV(f, results) }); err != nil {
			return results, fmt.Errorf("write sweep: %w", err)
		}
		a.log.Info("sweep written", zap.String("path", path))
	}
	a.recordSweep(ctx, sweepID, results)
	a.alerts.NotifySweep(ctx, results, a.cfg.Sweep.Top)
	return results, nil
}

func (a *App) saveSnapshot(ctx context.Context, engine *backtest.Engine, summary report.Summary) {
	hedger, err := engine.Hedger()
	if err != nil {
		return
	}
	position, err := hedger.Position()
	if err != nil {
		return
	}
	params := engine.Params()
	prev, hadPrev, err := state.LoadRunSnapshot(ctx, a.store)
	if err != nil {
		a.log.Warn("run snapshot read failed", zap.Error(err))
	}
	policy := a.cfg.Strategy.DeltaPolicy
	snapshot := state.RunSnapshot{
		State:        string(hedger.State()),
		Symbol:       hedger.Symbol(),
		EthAmount:    position.EthAmount,
		UsdcAmount:   position.UsdcAmount,
		Threshold:    params.Threshold,
		DeltaPolicy:  policy,
		Observations: summary.Observations,
		InitialPrice: summary.InitialPrice,
		FinalPrice:   summary.FinalPrice,
		FinalValue:   summary.FinalValue,
		TotalPnL:     summary.FinalValue - engine.InitialValue(),
		Balance:      summary.FinalBalance,
		FundingTotal: summary.FundingTotal,
		Rebalances:   summary.Rebalances,
		UpdatedAtMS:  a.now().UnixMilli(),
	}
	if hadPrev {
		a.log.Info("compared with previous run",
			zap.Float64("previous_final_value", prev.FinalValue),
			zap.Float64("final_value_change", snapshot.FinalValue-prev.FinalValue),
			zap.Int("previous_rebalances", prev.Rebalances),
		)
	}
	if err := state.SaveRunSnapshot(ctx, a.store, snapshot); err != nil {
		a.log.Warn("run snapshot write failed", zap.Error(err))
	}
}

func (a *App) runID(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, a.now().UTC().Format("20060102T150405.000Z"))
}

func writeFile(path string, fn func(f *os.File) error) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := fn(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
