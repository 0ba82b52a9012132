package perp

type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// MaintenanceMargin is the fraction of entry price used when reporting a
// liquidation level.
const MaintenanceMargin = 0.02

type Position struct {
	Symbol     string
	EntryPrice float64
	Quantity   float64
	Side       Side
	Leverage   float64
}

func (p Position) PnL(price float64) float64 {
	if p.Side == SideLong {
		return p.Quantity * (price - p.EntryPrice)
	}
	return p.Quantity * (p.EntryPrice - price)
}

// Margin is the collateral posted when the position was opened.
func (p Position) Margin() float64 {
	return p.Quantity * p.EntryPrice / p.Leverage
}

func (p Position) Notional(price float64) float64 {
	return p.Quantity * price
}

// LiquidationPrice is informational; nothing closes the position when the
// mark crosses it.
func (p Position) LiquidationPrice() float64 {
	if p.Side == SideLong {
		return p.EntryPrice * (1 - 1/p.Leverage + MaintenanceMargin)
	}
	return p.EntryPrice * (1 + 1/p.Leverage - MaintenanceMargin)
}
