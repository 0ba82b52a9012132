package perp

import (
	"errors"
	"fmt"
	"math"
	"time"

	"lp-hedge-backtest/internal/metrics"

	"go.uber.org/zap"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrNoPosition          = errors.New("no open position")
	ErrDuplicatePosition   = errors.New("position already open")
	ErrInvalidOrder        = errors.New("invalid order")
)

const (
	DefaultStartingBalance = 10000.0
	DefaultFundingRate     = 0.0001
)

type Action string

const (
	ActionOpen    Action = "OPEN"
	ActionClose   Action = "CLOSE"
	ActionFunding Action = "FUNDING"
)

// Trade is one entry of the account's append-only history. PnL is set on
// CLOSE and Amount on FUNDING (signed from the account's point of view).
type Trade struct {
	Time     time.Time
	Symbol   string
	Side     Side
	Action   Action
	Quantity float64
	Price    float64
	PnL      float64
	Amount   float64
	Balance  float64
}

// Exchange is a single margin account holding at most one position per
// symbol. It is not safe for concurrent use; each backtest owns its own.
type Exchange struct {
	log         *zap.Logger
	metrics     *metrics.Metrics
	fundingRate float64
	now         time.Time

	balance   float64
	positions map[string]Position
	trades    []Trade
}

type Option func(*Exchange)

func WithLogger(log *zap.Logger) Option {
	return func(e *Exchange) {
		if log != nil {
			e.log = log
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Exchange) {
		if m != nil {
			e.metrics = m
		}
	}
}

func WithFundingRate(rate float64) Option {
	return func(e *Exchange) {
		e.fundingRate = rate
	}
}

func NewExchange(startingBalance float64, opts ...Option) *Exchange {
	e := &Exchange{
		log:         zap.NewNop(),
		metrics:     metrics.NewNoop(),
		fundingRate: DefaultFundingRate,
		balance:     startingBalance,
		positions:   make(map[string]Position),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SetTime stamps subsequent trade records. Backtests advance it with the
// price series so the history stays deterministic.
func (e *Exchange) SetTime(t time.Time) {
	e.now = t
}

func (e *Exchange) Open(symbol string, side Side, quantity, price, leverage float64) (Position, error) {
	if _, ok := e.positions[symbol]; ok {
		return Position{}, fmt.Errorf("open %s: %w", symbol, ErrDuplicatePosition)
	}
	if side != SideLong && side != SideShort {
		return Position{}, fmt.Errorf("open %s: side %q: %w", symbol, side, ErrInvalidOrder)
	}
	if !positiveFinite(quantity) || !positiveFinite(price) || !positiveFinite(leverage) {
		return Position{}, fmt.Errorf("open %s: qty=%v price=%v leverage=%v: %w", symbol, quantity, price, leverage, ErrInvalidOrder)
	}
	pos := Position{
		Symbol:     symbol,
		EntryPrice: price,
		Quantity:   quantity,
		Side:       side,
		Leverage:   leverage,
	}
	cost := pos.Margin()
	if cost > e.balance {
		return Position{}, fmt.Errorf("open %s: margin %.4f exceeds balance %.4f: %w", symbol, cost, e.balance, ErrInsufficientBalance)
	}
	e.positions[symbol] = pos
	e.balance -= cost
	e.trades = append(e.trades, Trade{
		Time:     e.now,
		Symbol:   symbol,
		Side:     side,
		Action:   ActionOpen,
		Quantity: quantity,
		Price:    price,
		Balance:  e.balance,
	})
	e.metrics.HedgeOpened.Inc()
	e.log.Debug("position opened",
		zap.String("symbol", symbol),
		zap.String("side", string(side)),
		zap.Float64("quantity", quantity),
		zap.Float64("price", price),
		zap.Float64("margin", cost),
		zap.Float64("balance", e.balance),
	)
	return pos, nil
}

// Close settles the position at price, returning the margin plus realised
// pnl to the balance.
func (e *Exchange) Close(symbol string, price float64) (float64, error) {
	pos, ok := e.positions[symbol]
	if !ok {
		return 0, fmt.Errorf("close %s: %w", symbol, ErrNoPosition)
	}
	if !positiveFinite(price) {
		return 0, fmt.Errorf("close %s: price=%v: %w", symbol, price, ErrInvalidOrder)
	}
	pnl := pos.PnL(price)
	e.balance += pos.Margin() + pnl
	e.trades = append(e.trades, Trade{
		Time:     e.now,
		Symbol:   symbol,
		Side:     pos.Side,
		Action:   ActionClose,
		Quantity: pos.Quantity,
		Price:    price,
		PnL:      pnl,
		Balance:  e.balance,
	})
	delete(e.positions, symbol)
	e.metrics.HedgeClosed.Inc()
	e.log.Debug("position closed",
		zap.String("symbol", symbol),
		zap.Float64("price", price),
		zap.Float64("pnl", pnl),
		zap.Float64("balance", e.balance),
	)
	return pnl, nil
}

// ApplyFunding settles one funding interval at rate against the entry
// notional. Longs pay and shorts receive a positive rate. It reports whether
// a payment was made.
func (e *Exchange) ApplyFunding(symbol string, rate float64) bool {
	pos, ok := e.positions[symbol]
	if !ok {
		return false
	}
	payment := pos.Quantity * pos.EntryPrice * rate
	amount := payment
	if pos.Side == SideLong {
		amount = -payment
	}
	e.balance += amount
	e.trades = append(e.trades, Trade{
		Time:    e.now,
		Symbol:  symbol,
		Side:    pos.Side,
		Action:  ActionFunding,
		Amount:  amount,
		Balance: e.balance,
	})
	e.metrics.FundingPayments.Inc()
	e.log.Debug("funding applied",
		zap.String("symbol", symbol),
		zap.Float64("rate", rate),
		zap.Float64("amount", amount),
		zap.Float64("balance", e.balance),
	)
	return true
}

func (e *Exchange) ApplyDefaultFunding(symbol string) bool {
	return e.ApplyFunding(symbol, e.fundingRate)
}

func (e *Exchange) FundingRate() float64 {
	return e.fundingRate
}

func (e *Exchange) Balance() float64 {
	return e.balance
}

func (e *Exchange) Position(symbol string) (Position, bool) {
	pos, ok := e.positions[symbol]
	return pos, ok
}

func (e *Exchange) HasPosition(symbol string) bool {
	_, ok := e.positions[symbol]
	return ok
}

func (e *Exchange) Trades() []Trade {
	out := make([]Trade, len(e.trades))
	copy(out, e.trades)
	return out
}

// FundingTotal sums signed funding amounts for symbol.
func (e *Exchange) FundingTotal(symbol string) float64 {
	total := 0.0
	for _, trade := range e.trades {
		if trade.Action == ActionFunding && trade.Symbol == symbol {
			total += trade.Amount
		}
	}
	return total
}

// RealizedPnL sums pnl booked by closes for symbol.
func (e *Exchange) RealizedPnL(symbol string) float64 {
	total := 0.0
	for _, trade := range e.trades {
		if trade.Action == ActionClose && trade.Symbol == symbol {
			total += trade.PnL
		}
	}
	return total
}

func positiveFinite(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}
