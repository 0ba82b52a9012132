package strategy

import (
	"errors"
	"math"
	"testing"

	"lp-hedge-backtest/internal/amm"
	"lp-hedge-backtest/internal/perp"
)

func newScenario(t *testing.T, threshold float64, policy DeltaPolicy) (*amm.Pool, *perp.Exchange, *Hedger) {
	t.Helper()
	pool, err := amm.NewPool(2000, 1000, 2_000_000)
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	ex := perp.NewExchange(perp.DefaultStartingBalance)
	h := NewHedger(pool, ex, Config{Threshold: threshold, Policy: policy}, nil, nil)
	return pool, ex, h
}

func TestProvideLiquidityOpensInitialHedge(t *testing.T) {
	_, ex, h := newScenario(t, 0.05, nil)
	if err := h.ProvideLiquidity(10, 20000); err != nil {
		t.Fatalf("provide liquidity: %v", err)
	}
	hedge, ok := ex.Position(DefaultSymbol)
	if !ok {
		t.Fatalf("expected hedge position")
	}
	if hedge.Side != perp.SideShort || hedge.Quantity != 5 || hedge.Leverage != 3 {
		t.Fatalf("unexpected hedge: %#v", hedge)
	}
	if !nearly(hedge.EntryPrice, 2000) {
		t.Fatalf("expected entry 2000, got %f", hedge.EntryPrice)
	}
	if !nearly(h.LastRebalancePrice(), 2000) {
		t.Fatalf("expected last rebalance 2000, got %f", h.LastRebalancePrice())
	}
	if h.State() != StateHedged {
		t.Fatalf("expected %s, got %s", StateHedged, h.State())
	}
	if got := h.TotalPnL(2000); math.Abs(got) > 1e-6 {
		t.Fatalf("expected zero pnl at entry, got %f", got)
	}
}

func TestRebalanceScenarioSeparatesRealizedPnL(t *testing.T) {
	pool, ex, h := newScenario(t, 0.05, nil)
	if err := h.ProvideLiquidity(10, 20000); err != nil {
		t.Fatalf("provide liquidity: %v", err)
	}
	if err := pool.UpdatePrice(2200); err != nil {
		t.Fatalf("update price: %v", err)
	}
	rebalanced, err := h.CheckAndRebalance(2200)
	if err != nil {
		t.Fatalf("rebalance: %v", err)
	}
	if !rebalanced {
		t.Fatalf("expected rebalance for 10%% move")
	}
	hedge, ok := h.Hedge()
	if !ok || hedge.EntryPrice != 2200 || hedge.Quantity != 5 {
		t.Fatalf("expected fresh short 5 @ 2200, got %#v", hedge)
	}
	if got := h.HedgePnL(2200); got != 0 {
		t.Fatalf("expected zero unrealized hedge pnl, got %f", got)
	}
	if got := ex.RealizedPnL(DefaultSymbol); !nearly(got, -1000) {
		t.Fatalf("expected realized -1000, got %f", got)
	}
	wantBalance := perp.DefaultStartingBalance - 1000 - 5*2200.0/3
	if !nearly(ex.Balance(), wantBalance) {
		t.Fatalf("expected balance %f, got %f", wantBalance, ex.Balance())
	}
	// Mark-to-market only covers the live legs; the realised -1000 is not in it.
	total := h.TotalPnL(2200)
	if math.Abs(total-1952.35) > 0.01 {
		t.Fatalf("expected total pnl ~1952.35, got %f", total)
	}
	if math.Abs(total-(1952.35-1000)) < 1 {
		t.Fatalf("total pnl must not include realized hedge loss")
	}
}

func TestRebalanceThresholdIsStrict(t *testing.T) {
	_, _, h := newScenario(t, 0.25, nil)
	if err := h.ProvideLiquidity(10, 20000); err != nil {
		t.Fatalf("provide liquidity: %v", err)
	}
	rebalanced, err := h.CheckAndRebalance(2500)
	if err != nil {
		t.Fatalf("rebalance: %v", err)
	}
	if rebalanced {
		t.Fatalf("move equal to threshold must not rebalance")
	}
	rebalanced, err = h.CheckAndRebalance(1500)
	if err != nil {
		t.Fatalf("rebalance: %v", err)
	}
	if rebalanced {
		t.Fatalf("downward move equal to threshold must not rebalance")
	}
	rebalanced, err = h.CheckAndRebalance(2500.5)
	if err != nil {
		t.Fatalf("rebalance: %v", err)
	}
	if !rebalanced {
		t.Fatalf("move above threshold must rebalance")
	}
	if h.LastRebalancePrice() != 2500.5 {
		t.Fatalf("expected last rebalance 2500.5, got %f", h.LastRebalancePrice())
	}
}

func TestCheckAndRebalanceWithoutLiquidity(t *testing.T) {
	_, ex, h := newScenario(t, 0.05, nil)
	rebalanced, err := h.CheckAndRebalance(5000)
	if err != nil || rebalanced {
		t.Fatalf("expected no rebalance without liquidity, got %v %v", rebalanced, err)
	}
	if h.TotalPnL(5000) != 0 {
		t.Fatalf("expected zero pnl without liquidity")
	}
	if len(ex.Trades()) != 0 {
		t.Fatalf("expected no trades")
	}
	if _, err := h.Position(); !errors.Is(err, ErrNoLiquidity) {
		t.Fatalf("expected ErrNoLiquidity, got %v", err)
	}
}

func TestInitialHedgeInsufficientBalance(t *testing.T) {
	pool, err := amm.NewPool(2000, 1000, 0)
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	ex := perp.NewExchange(100)
	h := NewHedger(pool, ex, Config{Threshold: 0.05}, nil, nil)
	err = h.ProvideLiquidity(10, 20000)
	if !errors.Is(err, perp.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
}

func TestZeroDeltaLeavesUnhedged(t *testing.T) {
	_, ex, h := newScenario(t, 0.05, FixedRatioDelta{Ratio: 0})
	if err := h.ProvideLiquidity(10, 20000); err != nil {
		t.Fatalf("provide liquidity: %v", err)
	}
	if ex.HasPosition(DefaultSymbol) {
		t.Fatalf("expected no hedge for zero delta")
	}
	if h.State() != StateUnhedged {
		t.Fatalf("expected %s, got %s", StateUnhedged, h.State())
	}
	if h.HedgePnL(2500) != 0 {
		t.Fatalf("expected zero hedge pnl")
	}
}

func TestConstantProductPolicyResizesHedge(t *testing.T) {
	pool, _, h := newScenario(t, 0.05, ConstantProductDelta{})
	if err := h.ProvideLiquidity(10, 20000); err != nil {
		t.Fatalf("provide liquidity: %v", err)
	}
	hedge, _ := h.Hedge()
	if !nearly(hedge.Quantity, 10) {
		t.Fatalf("expected initial hedge 10, got %f", hedge.Quantity)
	}
	if err := pool.UpdatePrice(1600); err != nil {
		t.Fatalf("update price: %v", err)
	}
	if _, err := h.CheckAndRebalance(1600); err != nil {
		t.Fatalf("rebalance: %v", err)
	}
	hedge, _ = h.Hedge()
	pos, _ := h.Position()
	eth, _ := pos.AmountsAt(1600)
	if !nearly(hedge.Quantity, eth) {
		t.Fatalf("expected hedge %f, got %f", eth, hedge.Quantity)
	}
}

func nearly(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}
