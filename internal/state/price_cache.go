package state

import (
	"context"
	"fmt"
	"strings"
	"time"

	"lp-hedge-backtest/internal/market"

	"github.com/vmihailenco/msgpack/v5"
)

const priceKeyPrefix = "prices:"

type cachedSeries struct {
	Times  []int64   `msgpack:"t"`
	Prices []float64 `msgpack:"p"`
}

// PriceKey identifies a fetched series by asset, interval and range.
func PriceKey(asset, interval string, start, end time.Time) string {
	return fmt.Sprintf("%s%s:%s:%d:%d", priceKeyPrefix, strings.ToUpper(asset), interval, start.UTC().Unix(), end.UTC().Unix())
}

func LoadPrices(ctx context.Context, store Store, key string) ([]market.PricePoint, bool, error) {
	if store == nil {
		return nil, false, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	raw, ok, err := store.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if !ok || raw == "" {
		return nil, false, nil
	}
	var series cachedSeries
	if err := msgpack.Unmarshal([]byte(raw), &series); err != nil {
		return nil, false, fmt.Errorf("decode %s: %w", key, err)
	}
	if len(series.Times) != len(series.Prices) {
		return nil, false, fmt.Errorf("decode %s: %d times for %d prices", key, len(series.Times), len(series.Prices))
	}
	points := make([]market.PricePoint, len(series.Times))
	for i := range series.Times {
		points[i] = market.PricePoint{
			Time:  time.UnixMilli(series.Times[i]).UTC(),
			Price: series.Prices[i],
		}
	}
	return points, true, nil
}

func SavePrices(ctx context.Context, store Store, key string, points []market.PricePoint) error {
	if store == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	series := cachedSeries{
		Times:  make([]int64, len(points)),
		Prices: make([]float64, len(points)),
	}
	for i, p := range points {
		series.Times[i] = p.Time.UnixMilli()
		series.Prices[i] = p.Price
	}
	payload, err := msgpack.Marshal(&series)
	if err != nil {
		return err
	}
	return store.Set(ctx, key, string(payload))
}

// CachedPriceKeys lists every cached series key.
func CachedPriceKeys(ctx context.Context, store Store) ([]string, error) {
	if store == nil {
		return nil, nil
	}
	return store.Keys(ctx, priceKeyPrefix)
}
