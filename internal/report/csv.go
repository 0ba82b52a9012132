package report

import (
	"encoding/csv"
	"io"
	"math"
	"strconv"
	"time"

	"lp-hedge-backtest/internal/backtest"
	"lp-hedge-backtest/internal/sweep"
)

var recordHeader = []string{
	"timestamp",
	"price",
	"lp_value",
	"hodl_value",
	"il_pct",
	"hedge_pnl",
	"total_pnl",
	"total_value",
	"rebalanced",
}

var sweepHeader = []string{
	"eth_amount",
	"threshold",
	"final_value",
	"roi",
	"max_drawdown",
	"sharpe_ratio",
	"error",
}

func WriteRecordsCSV(w io.Writer, records []backtest.Record) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(recordHeader); err != nil {
		return err
	}
	for _, rec := range records {
		if err := writer.Write([]string{
			rec.Timestamp.UTC().Format(time.RFC3339),
			formatFloat(rec.Price),
			formatFloat(rec.LPValue),
			formatFloat(rec.HodlValue),
			formatFloat(rec.ILPct),
			formatFloat(rec.HedgePnL),
			formatFloat(rec.TotalPnL),
			formatFloat(rec.TotalValue),
			strconv.FormatBool(rec.Rebalanced),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteSweepCSV writes one row per cell; failed cells keep their
// coordinates, leave the metrics empty and carry the error text.
func WriteSweepCSV(w io.Writer, results []sweep.Result) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(sweepHeader); err != nil {
		return err
	}
	for _, res := range results {
		row := []string{formatFloat(res.EthAmount), formatFloat(res.Threshold)}
		if res.Err != nil {
			row = append(row, "", "", "", "", res.Err.Error())
		} else {
			row = append(row,
				formatFloat(res.FinalValue),
				formatFloat(res.ROI),
				formatFloat(res.MaxDrawdown),
				formatFloat(res.SharpeRatio),
				"",
			)
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func formatFloat(v float64) string {
	if math.IsInf(v, 1) {
		return "inf"
	}
	if math.IsInf(v, -1) {
		return "-inf"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
