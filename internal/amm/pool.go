package amm

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrInvalidPrice  = errors.New("invalid price")
	ErrInvalidAmount = errors.New("invalid amount")
)

// Pool is a two-asset constant-product pool quoted in USDC per ETH.
type Pool struct {
	ethPrice    float64
	ethReserve  float64
	usdcReserve float64
	k           float64
}

// NewPool builds a pool at price. A zero usdcReserve is derived from the
// eth reserve so the reserve ratio starts at price.
func NewPool(price, ethReserve, usdcReserve float64) (*Pool, error) {
	if !validPositive(price) {
		return nil, fmt.Errorf("pool price %v: %w", price, ErrInvalidPrice)
	}
	if !validPositive(ethReserve) {
		return nil, fmt.Errorf("eth reserve %v: %w", ethReserve, ErrInvalidAmount)
	}
	if usdcReserve == 0 {
		usdcReserve = ethReserve * price
	}
	if !validPositive(usdcReserve) {
		return nil, fmt.Errorf("usdc reserve %v: %w", usdcReserve, ErrInvalidAmount)
	}
	return &Pool{
		ethPrice:    price,
		ethReserve:  ethReserve,
		usdcReserve: usdcReserve,
		k:           ethReserve * usdcReserve,
	}, nil
}

// AddLiquidity deposits both assets and returns the deposit snapshot. The
// snapshot is valued from the tracked price held at call time, not from the
// post-deposit reserve ratio.
func (p *Pool) AddLiquidity(ethAmount, usdcAmount float64) (Position, error) {
	if !validPositive(ethAmount) {
		return Position{}, fmt.Errorf("eth amount %v: %w", ethAmount, ErrInvalidAmount)
	}
	if !validPositive(usdcAmount) {
		return Position{}, fmt.Errorf("usdc amount %v: %w", usdcAmount, ErrInvalidAmount)
	}
	p.ethReserve += ethAmount
	p.usdcReserve += usdcAmount
	p.k = p.ethReserve * p.usdcReserve
	return Position{
		EthAmount:    ethAmount,
		UsdcAmount:   usdcAmount,
		InitialPrice: p.ethPrice,
	}, nil
}

// UpdatePrice moves the reserves along the curve so that the reserve ratio
// equals price while k stays fixed.
func (p *Pool) UpdatePrice(price float64) error {
	if !validPositive(price) {
		return fmt.Errorf("update price %v: %w", price, ErrInvalidPrice)
	}
	p.ethReserve = math.Sqrt(p.k / price)
	p.usdcReserve = math.Sqrt(p.k * price)
	p.ethPrice = price
	return nil
}

func (p *Pool) CurrentPrice() float64 {
	return p.usdcReserve / p.ethReserve
}

func (p *Pool) TrackedPrice() float64 {
	return p.ethPrice
}

func (p *Pool) Reserves() (eth, usdc float64) {
	return p.ethReserve, p.usdcReserve
}

func (p *Pool) K() float64 {
	return p.k
}

func validPositive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}
