package market

import (
	"context"
	"errors"
	"fmt"
	"time"

	"lp-hedge-backtest/internal/hl/rest"

	"go.uber.org/zap"
)

// candleSnapshot returns at most this many candles per request.
const maxCandlesPerPage = 5000

type InfoClient interface {
	Info(ctx context.Context, req interface{}) (any, error)
}

// Fetcher pages historical candles out of the /info candleSnapshot endpoint.
type Fetcher struct {
	client   InfoClient
	log      *zap.Logger
	attempts int
	backoff  time.Duration
}

func NewFetcher(client InfoClient, log *zap.Logger) *Fetcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Fetcher{
		client:   client,
		log:      log,
		attempts: 5,
		backoff:  200 * time.Millisecond,
	}
}

var intervals = map[string]time.Duration{
	"1m":  time.Minute,
	"3m":  3 * time.Minute,
	"5m":  5 * time.Minute,
	"15m": 15 * time.Minute,
	"30m": 30 * time.Minute,
	"1h":  time.Hour,
	"2h":  2 * time.Hour,
	"4h":  4 * time.Hour,
	"8h":  8 * time.Hour,
	"12h": 12 * time.Hour,
	"1d":  24 * time.Hour,
	"3d":  72 * time.Hour,
	"1w":  7 * 24 * time.Hour,
}

func IntervalDuration(interval string) (time.Duration, error) {
	d, ok := intervals[interval]
	if !ok {
		return 0, fmt.Errorf("unsupported candle interval %q", interval)
	}
	return d, nil
}

// Candles returns every candle of asset opening in [start, end).
func (f *Fetcher) Candles(ctx context.Context, asset, interval string, start, end time.Time) ([]Candle, error) {
	if f.client == nil {
		return nil, errors.New("info client is required")
	}
	step, err := IntervalDuration(interval)
	if err != nil {
		return nil, err
	}
	if !end.After(start) {
		return nil, fmt.Errorf("empty range %s..%s", start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	var out []Candle
	cursor := start
	for cursor.Before(end) {
		req := rest.CandleSnapshot(rest.CandleRequest{
			Coin:      asset,
			Interval:  interval,
			StartTime: cursor.UnixMilli(),
			EndTime:   end.UnixMilli(),
		})
		var page []Candle
		err := f.retry(ctx, func() error {
			payload, err := f.client.Info(ctx, req)
			if err != nil {
				return err
			}
			page, err = parseCandles(payload, asset, interval)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("candles %s %s from %s: %w", asset, interval, cursor.Format(time.RFC3339), err)
		}
		if len(page) == 0 {
			break
		}
		last := cursor
		for _, candle := range page {
			if candle.Start.Before(start) || !candle.Start.Before(end) {
				continue
			}
			out = append(out, candle)
			if candle.Start.After(last) {
				last = candle.Start
			}
		}
		f.log.Debug("candle page fetched",
			zap.String("asset", asset),
			zap.Int("count", len(page)),
			zap.Time("from", cursor),
			zap.Time("last", last),
		)
		if len(page) < maxCandlesPerPage {
			break
		}
		next := last.Add(step)
		if !next.After(cursor) {
			break
		}
		cursor = next
	}
	return out, nil
}

// Prices fetches candles and reduces them to a normalised close series.
func (f *Fetcher) Prices(ctx context.Context, asset, interval string, start, end time.Time) ([]PricePoint, error) {
	candles, err := f.Candles(ctx, asset, interval, start, end)
	if err != nil {
		return nil, err
	}
	return ClosePrices(candles), nil
}

func (f *Fetcher) retry(ctx context.Context, fn func() error) error {
	backoff := f.backoff
	for attempt := 0; attempt < f.attempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if attempt == f.attempts-1 {
			return fmt.Errorf("retry failed: %w", err)
		}
		f.log.Warn("candle request failed", zap.Int("attempt", attempt+1), zap.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
			backoff *= 2
		}
	}
	return nil
}
