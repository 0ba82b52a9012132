package strategy

import (
	"errors"
	"fmt"
	"math"

	"lp-hedge-backtest/internal/amm"
	"lp-hedge-backtest/internal/metrics"
	"lp-hedge-backtest/internal/perp"

	"go.uber.org/zap"
)

const (
	DefaultSymbol        = "ETHUSDC"
	DefaultThreshold     = 0.05
	DefaultHedgeLeverage = 3.0
)

var ErrNoLiquidity = errors.New("no liquidity provided")

// Pool is the part of the AMM the hedger drives.
type Pool interface {
	AddLiquidity(ethAmount, usdcAmount float64) (amm.Position, error)
	CurrentPrice() float64
}

// Exchange is the part of the perpetual venue the hedger drives.
type Exchange interface {
	Open(symbol string, side perp.Side, quantity, price, leverage float64) (perp.Position, error)
	Close(symbol string, price float64) (float64, error)
	Position(symbol string) (perp.Position, bool)
}

type Config struct {
	Symbol    string
	Threshold float64
	Leverage  float64
	Policy    DeltaPolicy
}

// Hedger keeps a short perpetual sized to the LP position's delta and
// resizes it when price drifts past Threshold from the last rebalance.
type Hedger struct {
	pool     Pool
	exchange Exchange
	log      *zap.Logger
	metrics  *metrics.Metrics
	state    *StateMachine

	symbol    string
	threshold float64
	leverage  float64
	policy    DeltaPolicy

	position           amm.Position
	hasPosition        bool
	lastRebalancePrice float64
}

func NewHedger(pool Pool, exchange Exchange, cfg Config, log *zap.Logger, m *metrics.Metrics) *Hedger {
	if cfg.Symbol == "" {
		cfg.Symbol = DefaultSymbol
	}
	if cfg.Leverage <= 0 {
		cfg.Leverage = DefaultHedgeLeverage
	}
	if cfg.Policy == nil {
		cfg.Policy = FixedRatioDelta{Ratio: amm.DefaultDeltaRatio}
	}
	if log == nil {
		log = zap.NewNop()
	}
	if m == nil {
		m = metrics.NewNoop()
	}
	return &Hedger{
		pool:      pool,
		exchange:  exchange,
		log:       log,
		metrics:   m,
		state:     NewStateMachine(),
		symbol:    cfg.Symbol,
		threshold: cfg.Threshold,
		leverage:  cfg.Leverage,
		policy:    cfg.Policy,
	}
}

// ProvideLiquidity deposits into the pool and places the initial hedge at
// the pool's current price.
func (h *Hedger) ProvideLiquidity(ethAmount, usdcAmount float64) error {
	position, err := h.pool.AddLiquidity(ethAmount, usdcAmount)
	if err != nil {
		return fmt.Errorf("provide liquidity: %w", err)
	}
	h.position = position
	h.hasPosition = true
	price := h.pool.CurrentPrice()
	h.lastRebalancePrice = price
	if err := h.updateHedge(price); err != nil {
		return fmt.Errorf("initial hedge: %w", err)
	}
	h.log.Info("liquidity provided",
		zap.Float64("eth_amount", ethAmount),
		zap.Float64("usdc_amount", usdcAmount),
		zap.Float64("initial_price", position.InitialPrice),
		zap.Float64("hedge_price", price),
		zap.String("state", string(h.state.State)),
	)
	return nil
}

// CheckAndRebalance resizes the hedge when the move since the last
// rebalance strictly exceeds the threshold.
func (h *Hedger) CheckAndRebalance(price float64) (bool, error) {
	if !h.hasPosition || h.lastRebalancePrice == 0 {
		return false, nil
	}
	move := math.Abs(price/h.lastRebalancePrice - 1)
	if move <= h.threshold {
		return false, nil
	}
	from := h.lastRebalancePrice
	if err := h.updateHedge(price); err != nil {
		return false, fmt.Errorf("rebalance at %.4f: %w", price, err)
	}
	h.metrics.Rebalances.Inc()
	h.log.Debug("hedge rebalanced",
		zap.Float64("from_price", from),
		zap.Float64("price", price),
		zap.Float64("move", move),
	)
	return true, nil
}

// updateHedge closes any open hedge and reopens it at the policy delta, both
// legs at price.
func (h *Hedger) updateHedge(price float64) error {
	delta := h.policy.HedgeDelta(h.position, price)
	if _, ok := h.exchange.Position(h.symbol); ok {
		if _, err := h.exchange.Close(h.symbol, price); err != nil {
			return err
		}
		h.state.Apply(EventUnhedged)
	}
	if delta > 0 {
		if _, err := h.exchange.Open(h.symbol, perp.SideShort, delta, price, h.leverage); err != nil {
			return err
		}
		h.state.Apply(EventHedged)
	} else {
		h.state.Apply(EventUnhedged)
	}
	h.lastRebalancePrice = price
	return nil
}

// TotalPnL marks the LP leg against its deposit value and adds the open
// hedge's unrealised pnl. Pnl realised by earlier hedges sits in the
// exchange balance and is not included.
func (h *Hedger) TotalPnL(price float64) float64 {
	if !h.hasPosition {
		return 0
	}
	lpPnL := h.position.ValueAt(price) - h.position.HodlValueAt(h.position.InitialPrice)
	return lpPnL + h.HedgePnL(price)
}

func (h *Hedger) HedgePnL(price float64) float64 {
	pos, ok := h.exchange.Position(h.symbol)
	if !ok {
		return 0
	}
	return pos.PnL(price)
}

// Position returns the LP snapshot, or ErrNoLiquidity before ProvideLiquidity.
func (h *Hedger) Position() (amm.Position, error) {
	if !h.hasPosition {
		return amm.Position{}, ErrNoLiquidity
	}
	return h.position, nil
}

func (h *Hedger) Hedge() (perp.Position, bool) {
	return h.exchange.Position(h.symbol)
}

func (h *Hedger) Symbol() string {
	return h.symbol
}

func (h *Hedger) LastRebalancePrice() float64 {
	return h.lastRebalancePrice
}

func (h *Hedger) State() State {
	return h.state.State
}
