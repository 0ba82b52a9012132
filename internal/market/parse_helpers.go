package market

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"
)

// parseCandles decodes a candleSnapshot response. Entries without a start
// time or close are skipped.
func parseCandles(payload any, asset, interval string) ([]Candle, error) {
	items, ok := toSlice(payload)
	if !ok {
		if m, isMap := toMap(payload); isMap {
			items, ok = toSlice(m["data"])
		}
	}
	if !ok {
		return nil, errors.New("candleSnapshot payload is not a list")
	}
	candles := make([]Candle, 0, len(items))
	for _, item := range items {
		data, ok := toMap(item)
		if !ok {
			continue
		}
		start, ok := timeFromMap(data, "t", "start", "time", "timestamp")
		if !ok {
			continue
		}
		close := floatFromMap(data, "c", "close")
		if close == 0 {
			continue
		}
		name := stringFromMap(data, "s", "coin", "symbol")
		if name == "" {
			name = asset
		}
		iv := stringFromMap(data, "i", "interval")
		if iv == "" {
			iv = interval
		}
		candles = append(candles, Candle{
			Asset:    name,
			Interval: iv,
			Start:    start,
			Open:     floatFromMap(data, "o", "open"),
			High:     floatFromMap(data, "h", "high"),
			Low:      floatFromMap(data, "l", "low"),
			Close:    close,
			Volume:   floatFromMap(data, "v", "volume"),
		})
	}
	return candles, nil
}

func toMap(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

func toSlice(v any) ([]any, bool) {
	s, ok := v.([]any)
	return s, ok
}

func stringFromMap(m map[string]any, keys ...string) string {
	for _, key := range keys {
		if v, ok := m[key]; ok {
			if s := stringFromAny(v); s != "" {
				return s
			}
		}
	}
	return ""
}

func stringFromAny(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

func floatFromMap(m map[string]any, keys ...string) float64 {
	for _, key := range keys {
		if v, ok := m[key]; ok {
			if f, ok := floatFromAny(v); ok {
				return f
			}
		}
	}
	return 0
}

func floatFromAny(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case json.Number:
		f, err := val.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func timeFromMap(m map[string]any, keys ...string) (time.Time, bool) {
	for _, key := range keys {
		if v, ok := m[key]; ok {
			if ts, ok := timeFromAny(v); ok {
				return ts, true
			}
		}
	}
	return time.Time{}, false
}

// timeFromAny accepts epoch seconds, milliseconds or nanoseconds.
func timeFromAny(v any) (time.Time, bool) {
	f, ok := floatFromAny(v)
	if !ok || f <= 0 {
		return time.Time{}, false
	}
	ts := int64(f)
	switch {
	case ts > 1e15:
		return time.Unix(0, ts).UTC(), true
	case ts > 1e12:
		return time.UnixMilli(ts).UTC(), true
	default:
		return time.Unix(ts, 0).UTC(), true
	}
}
