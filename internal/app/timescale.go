package app

import (
	"context"

	"lp-hedge-backtest/internal/backtest"
	"lp-hedge-backtest/internal/sweep"

	"go.uber.org/zap"
)

func (a *App) recordRun(ctx context.Context, runID string, records []backtest.Record) {
	if a.timescale == nil {
		return
	}
	if err := a.timescale.WriteRun(ctx, runID, records); err != nil {
		a.log.Warn("timescale run write failed", zap.String("run_id", runID), zap.Error(err))
		return
	}
	a.log.Info("run stored in timescale", zap.String("run_id", runID), zap.Int("records", len(records)))
}

func (a *App) recordSweep(ctx context.Context, sweepID string, results []sweep.Result) {
	if a.timescale == nil {
		return
	}
	if err := a.timescale.WriteSweep(ctx, sweepID, results); err != nil {
		a.log.Warn("timescale sweep write failed", zap.String("sweep_id", sweepID), zap.Error(err))
		return
	}
	a.log.Info("sweep stored in timescale", zap.String("sweep_id", sweepID), zap.Int("cells", len(results)))
}
