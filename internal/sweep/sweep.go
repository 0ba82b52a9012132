package sweep

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sort"

	"lp-hedge-backtest/internal/backtest"
	"lp-hedge-backtest/internal/market"
	"lp-hedge-backtest/internal/metrics"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var ErrNoPrices = errors.New("sweep requires at least one price")

type Grid struct {
	EthAmounts []float64
	Thresholds []float64
}

func (g Grid) Size() int {
	return len(g.EthAmounts) * len(g.Thresholds)
}

// Result is one grid cell. ROI and MaxDrawdown are percentages; SharpeRatio
// is ROI per unit of drawdown and +Inf when the run never drew down. Err is
// set when the run failed and the metrics are then zero.
type Result struct {
	EthAmount   float64
	Threshold   float64
	FinalValue  float64
	ROI         float64
	MaxDrawdown float64
	SharpeRatio float64
	Err         error
}

type Runner struct {
	base    backtest.Params
	workers int
	log     *zap.Logger
	metrics *metrics.Metrics
}

// New returns a runner that overrides EthAmount and Threshold on base for
// each cell. workers <= 0 uses GOMAXPROCS.
func New(base backtest.Params, workers int, log *zap.Logger, m *metrics.Metrics) *Runner {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if log == nil {
		log = zap.NewNop()
	}
	if m == nil {
		m = metrics.NewNoop()
	}
	return &Runner{base: base, workers: workers, log: log, metrics: m}
}

// Run evaluates every cell of grid against points. Results are ordered by
// eth amount then threshold as given. A failing cell is reported in its
// Result and does not stop the others; only cancellation of ctx aborts.
func (r *Runner) Run(ctx context.Context, grid Grid, points []market.PricePoint) ([]Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(points) == 0 {
		return nil, ErrNoPrices
	}
	results := make([]Result, grid.Size())
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for i, eth := range grid.EthAmounts {
		for j, threshold := range grid.Thresholds {
			eth, threshold := eth, threshold
			idx := i*len(grid.Thresholds) + j
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				results[idx] = r.runOne(gctx, eth, threshold, points)
				if errors.Is(results[idx].Err, context.Canceled) || errors.Is(results[idx].Err, context.DeadlineExceeded) {
					return results[idx].Err
				}
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	failed := 0
	for _, res := range results {
		if res.Err != nil {
			failed++
		}
	}
	r.log.Info("sweep complete",
		zap.Int("cells", len(results)),
		zap.Int("failed", failed),
		zap.Int("workers", r.workers),
	)
	return results, nil
}

func (r *Runner) runOne(ctx context.Context, eth, threshold float64, points []market.PricePoint) Result {
	res := Result{EthAmount: eth, Threshold: threshold}
	params := r.base
	params.EthAmount = eth
	params.UsdcAmount = 0
	params.Threshold = threshold
	records, err := backtest.New(params, r.log.With(
		zap.Float64("eth_amount", eth),
		zap.Float64("threshold", threshold),
	), r.metrics).Run(ctx, points)
	if err != nil {
		res.Err = fmt.Errorf("eth=%g threshold=%g: %w", eth, threshold, err)
		r.log.Warn("sweep cell failed", zap.Error(res.Err))
		return res
	}
	values := make([]float64, len(records))
	for i, rec := range records {
		values[i] = rec.TotalValue
	}
	initial := eth * points[0].Price * 2
	res.FinalValue = values[len(values)-1]
	res.ROI = (res.FinalValue/initial - 1) * 100
	res.MaxDrawdown = MaxDrawdown(values)
	res.SharpeRatio = RiskAdjusted(res.ROI, res.MaxDrawdown)
	return res
}

// MaxDrawdown is the largest fall from a running peak, in percent of that peak.
func MaxDrawdown(values []float64) float64 {
	peak := math.Inf(-1)
	worst := 0.0
	for _, v := range values {
		if v > peak {
			peak = v
		}
		if peak <= 0 {
			continue
		}
		if dd := (peak - v) / peak * 100; dd > worst {
			worst = dd
		}
	}
	return worst
}

// RiskAdjusted divides roi by drawdown; a run without drawdown scores +Inf.
func RiskAdjusted(roi, maxDrawdown float64) float64 {
	if maxDrawdown > 0 {
		return roi / maxDrawdown
	}
	return math.Inf(1)
}

// Rank returns successful results by descending SharpeRatio, ties broken by
// ROI, followed by failed cells in grid order.
func Rank(results []Result) []Result {
	out := make([]Result, len(results))
	copy(out, results)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if (a.Err == nil) != (b.Err == nil) {
			return a.Err == nil
		}
		if a.Err != nil {
			return false
		}
		if a.SharpeRatio != b.SharpeRatio {
			return a.SharpeRatio > b.SharpeRatio
		}
		return a.ROI > b.ROI
	})
	return out
}
