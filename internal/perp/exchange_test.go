package perp

import (
	"errors"
	"math"
	"testing"
	"time"
)

func TestOpenDebitsMargin(t *testing.T) {
	ex := NewExchange(10000)
	pos, err := ex.Open("ETHUSDC", SideShort, 5, 2000, 3)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if pos.Side != SideShort || pos.Quantity != 5 || pos.EntryPrice != 2000 {
		t.Fatalf("unexpected position: %#v", pos)
	}
	want := 10000 - 5*2000.0/3
	if !closeEnough(ex.Balance(), want) {
		t.Fatalf("expected balance %f, got %f", want, ex.Balance())
	}
	trades := ex.Trades()
	if len(trades) != 1 || trades[0].Action != ActionOpen {
		t.Fatalf("expected one OPEN trade, got %#v", trades)
	}
}

func TestOpenRejectsDuplicate(t *testing.T) {
	ex := NewExchange(10000)
	if _, err := ex.Open("ETHUSDC", SideShort, 1, 2000, 3); err != nil {
		t.Fatalf("open: %v", err)
	}
	balance := ex.Balance()
	_, err := ex.Open("ETHUSDC", SideLong, 1, 2100, 3)
	if !errors.Is(err, ErrDuplicatePosition) {
		t.Fatalf("expected ErrDuplicatePosition, got %v", err)
	}
	pos, _ := ex.Position("ETHUSDC")
	if pos.Side != SideShort || pos.EntryPrice != 2000 {
		t.Fatalf("existing position overwritten: %#v", pos)
	}
	if ex.Balance() != balance {
		t.Fatalf("duplicate open changed balance")
	}
	if len(ex.Trades()) != 1 {
		t.Fatalf("duplicate open recorded a trade")
	}
}

func TestOpenRejectsInsufficientBalance(t *testing.T) {
	ex := NewExchange(100)
	_, err := ex.Open("ETHUSDC", SideShort, 1, 2000, 3)
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if ex.HasPosition("ETHUSDC") {
		t.Fatalf("position created despite failure")
	}
	if ex.Balance() != 100 {
		t.Fatalf("balance changed on failed open: %f", ex.Balance())
	}
}

func TestOpenAllowsExactBalance(t *testing.T) {
	ex := NewExchange(1000)
	if _, err := ex.Open("ETHUSDC", SideLong, 1, 2000, 2); err != nil {
		t.Fatalf("expected margin equal to balance to pass, got %v", err)
	}
	if ex.Balance() != 0 {
		t.Fatalf("expected zero balance, got %f", ex.Balance())
	}
}

func TestOpenRejectsInvalidOrder(t *testing.T) {
	ex := NewExchange(10000)
	cases := []struct {
		side     Side
		qty      float64
		price    float64
		leverage float64
	}{
		{SideShort, 0, 2000, 3},
		{SideShort, 1, -1, 3},
		{SideShort, 1, 2000, 0},
		{Side("FLAT"), 1, 2000, 3},
		{SideLong, math.NaN(), 2000, 3},
	}
	for _, tc := range cases {
		if _, err := ex.Open("ETHUSDC", tc.side, tc.qty, tc.price, tc.leverage); !errors.Is(err, ErrInvalidOrder) {
			t.Fatalf("expected ErrInvalidOrder for %#v, got %v", tc, err)
		}
	}
}

func TestCloseShortScenario(t *testing.T) {
	ex := NewExchange(10000)
	if _, err := ex.Open("ETHUSDC", SideShort, 5, 2000, 3); err != nil {
		t.Fatalf("open: %v", err)
	}
	pnl, err := ex.Close("ETHUSDC", 2200)
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if !closeEnough(pnl, -1000) {
		t.Fatalf("expected pnl -1000, got %f", pnl)
	}
	if !closeEnough(ex.Balance(), 9000) {
		t.Fatalf("expected balance 9000, got %f", ex.Balance())
	}
	if ex.HasPosition("ETHUSDC") {
		t.Fatalf("position not removed")
	}
	trades := ex.Trades()
	if len(trades) != 2 || trades[1].Action != ActionClose || !closeEnough(trades[1].PnL, -1000) {
		t.Fatalf("unexpected trades: %#v", trades)
	}
	if !closeEnough(ex.RealizedPnL("ETHUSDC"), -1000) {
		t.Fatalf("expected realized pnl -1000, got %f", ex.RealizedPnL("ETHUSDC"))
	}
}

func TestCloseMissingPosition(t *testing.T) {
	ex := NewExchange(10000)
	if _, err := ex.Close("ETHUSDC", 2000); !errors.Is(err, ErrNoPosition) {
		t.Fatalf("expected ErrNoPosition, got %v", err)
	}
}

func TestPositionPnL(t *testing.T) {
	long := Position{EntryPrice: 100, Quantity: 2, Side: SideLong, Leverage: 1}
	short := Position{EntryPrice: 100, Quantity: 2, Side: SideShort, Leverage: 1}
	if got := long.PnL(110); got != 20 {
		t.Fatalf("expected long pnl 20, got %f", got)
	}
	if got := short.PnL(110); got != -20 {
		t.Fatalf("expected short pnl -20, got %f", got)
	}
}

func TestLiquidationPrice(t *testing.T) {
	long := Position{EntryPrice: 2000, Quantity: 1, Side: SideLong, Leverage: 3}
	short := Position{EntryPrice: 2000, Quantity: 1, Side: SideShort, Leverage: 3}
	if got, want := long.LiquidationPrice(), 2000*(1-1.0/3+0.02); !closeEnough(got, want) {
		t.Fatalf("expected long liquidation %f, got %f", want, got)
	}
	if got, want := short.LiquidationPrice(), 2000*(1+1.0/3-0.02); !closeEnough(got, want) {
		t.Fatalf("expected short liquidation %f, got %f", want, got)
	}
}

func TestApplyFundingDirection(t *testing.T) {
	ex := NewExchange(10000)
	if _, err := ex.Open("SHORT", SideShort, 5, 2000, 5); err != nil {
		t.Fatalf("open short: %v", err)
	}
	if _, err := ex.Open("LONG", SideLong, 1, 1000, 5); err != nil {
		t.Fatalf("open long: %v", err)
	}
	before := ex.Balance()
	if !ex.ApplyDefaultFunding("SHORT") {
		t.Fatalf("expected funding to apply to short")
	}
	if !closeEnough(ex.Balance()-before, 1) {
		t.Fatalf("expected short to receive 1, got %f", ex.Balance()-before)
	}
	before = ex.Balance()
	if !ex.ApplyFunding("LONG", 0.001) {
		t.Fatalf("expected funding to apply to long")
	}
	if !closeEnough(ex.Balance()-before, -1) {
		t.Fatalf("expected long to pay 1, got %f", ex.Balance()-before)
	}
	if !closeEnough(ex.FundingTotal("SHORT"), 1) || !closeEnough(ex.FundingTotal("LONG"), -1) {
		t.Fatalf("unexpected funding totals")
	}
}

func TestApplyFundingWithoutPositionIsNoop(t *testing.T) {
	ex := NewExchange(10000)
	if ex.ApplyDefaultFunding("ETHUSDC") {
		t.Fatalf("expected no funding without position")
	}
	if ex.Balance() != 10000 || len(ex.Trades()) != 0 {
		t.Fatalf("noop funding mutated account")
	}
}

func TestTradesStampedWithSetTime(t *testing.T) {
	ex := NewExchange(10000, WithFundingRate(0.0002))
	ts := time.Date(2022, 1, 1, 8, 0, 0, 0, time.UTC)
	ex.SetTime(ts)
	if _, err := ex.Open("ETHUSDC", SideShort, 1, 2000, 3); err != nil {
		t.Fatalf("open: %v", err)
	}
	if ex.FundingRate() != 0.0002 {
		t.Fatalf("expected funding rate option applied")
	}
	trades := ex.Trades()
	if !trades[0].Time.Equal(ts) {
		t.Fatalf("expected trade time %s, got %s", ts, trades[0].Time)
	}
	trades[0].Price = 1
	if ex.Trades()[0].Price != 2000 {
		t.Fatalf("trade history must be copied on read")
	}
}

func closeEnough(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}
