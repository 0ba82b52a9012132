package market

import (
	"sort"
	"time"
)

type Candle struct {
	Asset    string
	Interval string
	Start    time.Time
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
}

// PricePoint is one observation of the backtest input series.
type PricePoint struct {
	Time  time.Time
	Price float64
}

// ClosePrices turns candles into a price series keyed by candle open time.
func ClosePrices(candles []Candle) []PricePoint {
	points := make([]PricePoint, 0, len(candles))
	for _, candle := range candles {
		points = append(points, PricePoint{Time: candle.Start, Price: candle.Close})
	}
	return Normalize(points)
}

// Normalize sorts points by time, drops non-positive prices and keeps the
// last observation for a repeated timestamp. The backtest engine relies on
// its input having passed through here.
func Normalize(points []PricePoint) []PricePoint {
	out := make([]PricePoint, 0, len(points))
	for _, p := range points {
		if p.Price > 0 && !p.Time.IsZero() {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Time.Before(out[j].Time)
	})
	deduped := out[:0]
	for _, p := range out {
		if n := len(deduped); n > 0 && deduped[n-1].Time.Equal(p.Time) {
			deduped[n-1] = p
			continue
		}
		deduped = append(deduped, p)
	}
	return deduped
}

func Closes(points []PricePoint) []float64 {
	closes := make([]float64, len(points))
	for i, p := range points {
		closes[i] = p.Price
	}
	return closes
}
