package alerts

import (
	"context"
	"fmt"
	"math"
	"strings"

	"lp-hedge-backtest/internal/report"
	"lp-hedge-backtest/internal/sweep"

	"go.uber.org/zap"
)

func RunMessage(label string, s report.Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "LP hedge backtest %s\n", label)
	fmt.Fprintf(&b, "%s -> %s (%d obs)\n", s.Start.UTC().Format("2006-01-02"), s.End.UTC().Format("2006-01-02"), s.Observations)
	fmt.Fprintf(&b, "price %.2f -> %.2f (%+.2f%%)\n", s.InitialPrice, s.FinalPrice, s.PriceChangePct)
	fmt.Fprintf(&b, "LP %+.2f%% | LP+hedge %+.2f%% | HODL %+.2f%%\n", s.LPReturnPct, s.HedgedReturnPct, s.HodlReturnPct)
	fmt.Fprintf(&b, "max IL %.2f%% | rebalances %d | funding %.2f | balance %.2f", s.MaxILPct, s.Rebalances, s.FundingTotal, s.FinalBalance)
	return b.String()
}

// SweepMessage lists up to top ranked cells and the failure count.
func SweepMessage(results []sweep.Result, top int) string {
	ranked := sweep.Rank(results)
	failed := 0
	for _, res := range ranked {
		if res.Err != nil {
			failed++
		}
	}
	var b strings.Builder
	fmt.Fprintf(&b, "LP hedge sweep: %d cells, %d failed\n", len(results), failed)
	for i, res := range ranked {
		if i >= top || res.Err != nil {
			break
		}
		fmt.Fprintf(&b, "%d. eth=%g thr=%g roi=%+.2f%% dd=%.2f%% sharpe=%s\n",
			i+1, res.EthAmount, res.Threshold, res.ROI, res.MaxDrawdown, formatRatio(res.SharpeRatio))
	}
	return strings.TrimRight(b.String(), "\n")
}

func (t *Telegram) NotifyRun(ctx context.Context, label string, s report.Summary) {
	t.notify(ctx, RunMessage(label, s))
}

func (t *Telegram) NotifySweep(ctx context.Context, results []sweep.Result, top int) {
	t.notify(ctx, SweepMessage(results, top))
}

func (t *Telegram) notify(ctx context.Context, message string) {
	if !t.Enabled() {
		return
	}
	if err := t.Send(ctx, message); err != nil && t.log != nil {
		t.log.Warn("telegram notify failed", zap.Error(err))
	}
}

func formatRatio(v float64) string {
	if math.IsInf(v, 1) {
		return "inf"
	}
	return fmt.Sprintf("%.2f", v)
}
