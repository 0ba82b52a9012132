package state

import (
	"context"
	"encoding/json"
	"strings"
)

const RunSnapshotKey = "backtest:last_run"

// RunSnapshot is the summary of the most recent backtest, kept so the next
// invocation can report what changed.
type RunSnapshot struct {
	State        string  `json:"state"`
	Symbol       string  `json:"symbol"`
	EthAmount    float64 `json:"eth_amount"`
	UsdcAmount   float64 `json:"usdc_amount"`
	Threshold    float64 `json:"threshold"`
	DeltaPolicy  string  `json:"delta_policy"`
	Observations int     `json:"observations"`
	InitialPrice float64 `json:"initial_price"`
	FinalPrice   float64 `json:"final_price"`
	FinalValue   float64 `json:"final_value"`
	TotalPnL     float64 `json:"total_pnl"`
	Balance      float64 `json:"balance"`
	FundingTotal float64 `json:"funding_total"`
	Rebalances   int     `json:"rebalances"`
	UpdatedAtMS  int64   `json:"updated_at_ms"`
}

func LoadRunSnapshot(ctx context.Context, store Store) (RunSnapshot, bool, error) {
	if store == nil {
		return RunSnapshot{}, false, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	raw, ok, err := store.Get(ctx, RunSnapshotKey)
	if err != nil {
		return RunSnapshot{}, false, err
	}
	if !ok || strings.TrimSpace(raw) == "" {
		return RunSnapshot{}, false, nil
	}
	var snapshot RunSnapshot
	if err := json.Unmarshal([]byte(raw), &snapshot); err != nil {
		return RunSnapshot{}, false, err
	}
	return snapshot, true, nil
}

func SaveRunSnapshot(ctx context.Context, store Store, snapshot RunSnapshot) error {
	if store == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	return store.Set(ctx, RunSnapshotKey, string(payload))
}
