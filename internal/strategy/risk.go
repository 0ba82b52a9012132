package strategy

import (
	"errors"
	"fmt"

	"lp-hedge-backtest/internal/perp"
)

var ErrLiquidationCrossed = errors.New("mark price beyond liquidation price")

// LiquidationDistance is the signed fraction of price left before the
// position's reported liquidation level; negative once crossed.
func LiquidationDistance(pos perp.Position, price float64) float64 {
	if price <= 0 {
		return 0
	}
	liq := pos.LiquidationPrice()
	if pos.Side == perp.SideLong {
		return (price - liq) / price
	}
	return (liq - price) / price
}

// CheckLiquidation reports, without acting on it, whether price has crossed
// the hedge's liquidation level.
func CheckLiquidation(pos perp.Position, price float64) error {
	if dist := LiquidationDistance(pos, price); dist < 0 {
		return fmt.Errorf("%s %s liquidation %.4f at mark %.4f: %w", pos.Symbol, pos.Side, pos.LiquidationPrice(), price, ErrLiquidationCrossed)
	}
	return nil
}
