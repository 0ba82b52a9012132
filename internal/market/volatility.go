package market

import "math"

// Volatility is the population standard deviation of simple returns.
func Volatility(closes []float64) float64 {
	if len(closes) < 2 {
		return 0
	}
	var sum float64
	var sumSq float64
	var count float64
	for i := 1; i < len(closes); i++ {
		prev := closes[i-1]
		curr := closes[i]
		if prev == 0 {
			continue
		}
		r := (curr - prev) / prev
		sum += r
		sumSq += r * r
		count++
	}
	if count == 0 {
		return 0
	}
	mean := sum / count
	variance := sumSq/count - mean*mean
	if variance < 0 {
		variance = 0
	}
	return math.Sqrt(variance)
}
