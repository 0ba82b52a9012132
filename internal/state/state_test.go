package state

import (
	"context"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"lp-hedge-backtest/internal/market"
)

type memoryStore struct {
	mu    sync.Mutex
	items map[string]string
}

func (m *memoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	val, ok := m.items[key]
	return val, ok, nil
}

func (m *memoryStore) Set(ctx context.Context, key, value string) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.items == nil {
		m.items = make(map[string]string)
	}
	m.items[key] = value
	return nil
}

func (m *memoryStore) Delete(ctx context.Context, key string) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
	return nil
}

func (m *memoryStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for key := range m.items {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *memoryStore) Close() error {
	return nil
}

func TestRunSnapshotRoundTrip(t *testing.T) {
	store := &memoryStore{}
	ctx := context.Background()
	snapshot := RunSnapshot{
		State:        "HEDGED",
		Symbol:       "ETHUSDC",
		EthAmount:    10,
		UsdcAmount:   20000,
		Threshold:    0.05,
		DeltaPolicy:  "fixed",
		Observations: 100,
		InitialPrice: 2000,
		FinalPrice:   2200,
		FinalValue:   41952.35,
		TotalPnL:     1952.35,
		Balance:      5333.33,
		FundingTotal: 3.5,
		Rebalances:   1,
		UpdatedAtMS:  12345,
	}
	if err := SaveRunSnapshot(ctx, store, snapshot); err != nil {
		t.Fatalf("save snapshot: %v", err)
	}
	got, ok, err := LoadRunSnapshot(ctx, store)
	if err != nil {
		t.Fatalf("load snapshot: %v", err)
	}
	if !ok {
		t.Fatalf("expected snapshot to be present")
	}
	if got != snapshot {
		t.Fatalf("unexpected snapshot: %#v", got)
	}
}

func TestRunSnapshotMissing(t *testing.T) {
	store := &memoryStore{}
	got, ok, err := LoadRunSnapshot(context.Background(), store)
	if err != nil {
		t.Fatalf("load snapshot: %v", err)
	}
	if ok {
		t.Fatalf("expected no snapshot, got %#v", got)
	}
}

func TestRunSnapshotInvalid(t *testing.T) {
	store := &memoryStore{items: map[string]string{RunSnapshotKey: "{"}}
	_, _, err := LoadRunSnapshot(context.Background(), store)
	if err == nil {
		t.Fatalf("expected error for invalid snapshot JSON")
	}
}

func TestPriceCacheRoundTrip(t *testing.T) {
	store := &memoryStore{}
	ctx := context.Background()
	start := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(48 * time.Hour)
	key := PriceKey("eth", "1h", start, end)
	if !strings.HasPrefix(key, "prices:ETH:1h:") {
		t.Fatalf("unexpected key %s", key)
	}
	points := []market.PricePoint{
		{Time: start, Price: 3676.01},
		{Time: start.Add(time.Hour), Price: 3690.5},
	}
	if err := SavePrices(ctx, store, key, points); err != nil {
		t.Fatalf("save prices: %v", err)
	}
	got, ok, err := LoadPrices(ctx, store, key)
	if err != nil {
		t.Fatalf("load prices: %v", err)
	}
	if !ok || len(got) != 2 {
		t.Fatalf("expected 2 cached points, got %d (ok=%v)", len(got), ok)
	}
	for i := range points {
		if !got[i].Time.Equal(points[i].Time) || got[i].Price != points[i].Price {
			t.Fatalf("point %d mismatch: %#v vs %#v", i, got[i], points[i])
		}
	}
	keys, err := CachedPriceKeys(ctx, store)
	if err != nil || len(keys) != 1 || keys[0] != key {
		t.Fatalf("unexpected cached keys %v (%v)", keys, err)
	}
}

func TestPriceCacheMissAndCorrupt(t *testing.T) {
	store := &memoryStore{items: map[string]string{"prices:bad": "\xc1"}}
	ctx := context.Background()
	if _, ok, err := LoadPrices(ctx, store, "prices:none"); ok || err != nil {
		t.Fatalf("expected clean miss, got ok=%v err=%v", ok, err)
	}
	if _, _, err := LoadPrices(ctx, store, "prices:bad"); err == nil {
		t.Fatalf("expected decode error")
	}
	if _, ok, err := LoadPrices(ctx, nil, "prices:none"); ok || err != nil {
		t.Fatalf("expected nil store miss")
	}
}
