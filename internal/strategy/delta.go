package strategy

import (
	"fmt"
	"math"

	"lp-hedge-backtest/internal/amm"
)

// DeltaPolicy sizes the short hedge for an LP position at price.
type DeltaPolicy interface {
	HedgeDelta(position amm.Position, price float64) float64
}

// FixedRatioDelta hedges a constant share of the deposited ETH regardless of
// price. With Ratio 0.5 it matches amm.Position.Delta and is the default;
// it understates the pool's ETH holding once price falls below entry.
type FixedRatioDelta struct {
	Ratio float64
}

func (f FixedRatioDelta) HedgeDelta(position amm.Position, _ float64) float64 {
	return position.EthAmount * f.Ratio
}

// ConstantProductDelta hedges the ETH the position actually holds at price,
// which is the derivative of its value along the curve.
type ConstantProductDelta struct{}

func (ConstantProductDelta) HedgeDelta(position amm.Position, price float64) float64 {
	if price <= 0 || position.InitialPrice <= 0 {
		return 0
	}
	return position.EthAmount / math.Sqrt(price/position.InitialPrice)
}

const (
	PolicyFixed           = "fixed"
	PolicyConstantProduct = "constant_product"
)

// PolicyByName resolves a configured policy name; ratio only applies to the
// fixed policy and falls back to amm.DefaultDeltaRatio when zero.
func PolicyByName(name string, ratio float64) (DeltaPolicy, error) {
	switch name {
	case "", PolicyFixed:
		if ratio == 0 {
			ratio = amm.DefaultDeltaRatio
		}
		return FixedRatioDelta{Ratio: ratio}, nil
	case PolicyConstantProduct:
		return ConstantProductDelta{}, nil
	default:
		return nil, fmt.Errorf("unknown delta policy %q", name)
	}
}
