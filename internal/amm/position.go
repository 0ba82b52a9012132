package amm

import "math"

// DefaultDeltaRatio is the share of the deposited ETH treated as directional
// exposure. It does not move with price.
const DefaultDeltaRatio = 0.5

// Position is a single depositor's share, frozen at deposit time.
type Position struct {
	EthAmount    float64
	UsdcAmount   float64
	InitialPrice float64
}

// ValueAt rebalances the deposited amounts along the constant-product curve
// from InitialPrice to price and marks the result in USDC.
func (p Position) ValueAt(price float64) float64 {
	eth, usdc := p.AmountsAt(price)
	return eth*price + usdc
}

// AmountsAt returns the ETH and USDC held by the position at price.
func (p Position) AmountsAt(price float64) (eth, usdc float64) {
	ratio := math.Sqrt(price / p.InitialPrice)
	return p.EthAmount / ratio, p.UsdcAmount * ratio
}

func (p Position) HodlValueAt(price float64) float64 {
	return p.EthAmount*price + p.UsdcAmount
}

// ImpermanentLoss is the fractional shortfall against holding; zero at
// InitialPrice and negative elsewhere.
func (p Position) ImpermanentLoss(price float64) float64 {
	return p.ValueAt(price)/p.HodlValueAt(price) - 1
}

func (p Position) Delta() float64 {
	return p.EthAmount * DefaultDeltaRatio
}
