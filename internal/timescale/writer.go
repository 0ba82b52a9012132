package timescale

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"lp-hedge-backtest/internal/backtest"
	"lp-hedge-backtest/internal/config"
	"lp-hedge-backtest/internal/sweep"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

const (
	ddlTimeout   = 5 * time.Second
	recordsTable = "backtest_records"
	sweepTable   = "sweep_results"
)

// Writer stores run records and sweep grids in Postgres, turning the records
// table into a hypertable when the timescaledb extension is available.
type Writer struct {
	db     *sql.DB
	log    *zap.Logger
	schema string
}

// New returns nil without error when timescale is disabled; a nil *Writer
// accepts writes and drops them.
func New(cfg config.TimescaleConfig, log *zap.Logger) (*Writer, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("timescale dsn is required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	ctx, cancel := context.WithTimeout(context.Background(), ddlTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	writer := &Writer{db: db, log: log, schema: schemaName(cfg.Schema)}
	if err := writer.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return writer, nil
}

func (w *Writer) Close() error {
	if w == nil || w.db == nil {
		return nil
	}
	return w.db.Close()
}

// WriteRun replaces any rows previously stored under runID.
func (w *Writer) WriteRun(ctx context.Context, runID string, records []backtest.Record) error {
	if w == nil || len(records) == 0 {
		return nil
	}
	return w.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE run_id = $1", w.table(recordsTable)), runID); err != nil {
			return err
		}
		stmt, err := tx.PrepareContext(ctx, recordInsertQuery(w.table(recordsTable)))
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, rec := range records {
			if _, err := stmt.ExecContext(ctx,
				rec.Timestamp,
				runID,
				rec.Price,
				rec.LPValue,
				rec.HodlValue,
				rec.ILPct,
				rec.HedgePnL,
				rec.TotalPnL,
				rec.TotalValue,
				rec.Rebalanced,
			); err != nil {
				return fmt.Errorf("insert record %s: %w", rec.Timestamp.Format(time.RFC3339), err)
			}
		}
		return nil
	})
}

func (w *Writer) WriteSweep(ctx context.Context, sweepID string, results []sweep.Result) error {
	if w == nil || len(results) == 0 {
		return nil
	}
	return w.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, sweepUpsertQuery(w.table(sweepTable)))
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, res := range results {
			if _, err := stmt.ExecContext(ctx, sweepArgs(sweepID, res)...); err != nil {
				return fmt.Errorf("insert sweep cell eth=%g threshold=%g: %w", res.EthAmount, res.Threshold, err)
			}
		}
		return nil
	})
}

func (w *Writer) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (w *Writer) ensureSchema(ctx context.Context) error {
	if w.db == nil {
		return errors.New("timescale db not initialized")
	}
	if w.schema != "public" {
		if err := w.exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", w.schema)); err != nil {
			return err
		}
	}
	if err := w.exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts TIMESTAMPTZ NOT NULL,
		run_id TEXT NOT NULL,
		price DOUBLE PRECISION NOT NULL,
		lp_value DOUBLE PRECISION NOT NULL,
		hodl_value DOUBLE PRECISION NOT NULL,
		il_pct DOUBLE PRECISION NOT NULL,
		hedge_pnl DOUBLE PRECISION NOT NULL,
		total_pnl DOUBLE PRECISION NOT NULL,
		total_value DOUBLE PRECISION NOT NULL,
		rebalanced BOOLEAN NOT NULL,
		PRIMARY KEY (ts, run_id)
	)`, w.table(recordsTable))); err != nil {
		return err
	}
	if err := w.exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		sweep_id TEXT NOT NULL,
		eth_amount DOUBLE PRECISION NOT NULL,
		threshold DOUBLE PRECISION NOT NULL,
		final_value DOUBLE PRECISION,
		roi DOUBLE PRECISION,
		max_drawdown DOUBLE PRECISION,
		sharpe_ratio DOUBLE PRECISION,
		error TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (sweep_id, eth_amount, threshold)
	)`, w.table(sweepTable))); err != nil {
		return err
	}
	if err := w.exec(ctx, "CREATE EXTENSION IF NOT EXISTS timescaledb"); err != nil {
		w.log.Warn("timescale extension ensure failed", zap.Error(err))
		return nil
	}
	if err := w.exec(ctx, fmt.Sprintf("SELECT create_hypertable('%s', 'ts', if_not_exists => TRUE)", w.table(recordsTable))); err != nil {
		w.log.Warn("timescale backtest_records hypertable create failed", zap.Error(err))
	}
	return nil
}

func (w *Writer) exec(ctx context.Context, query string) error {
	ctx, cancel := context.WithTimeout(ctx, ddlTimeout)
	defer cancel()
	_, err := w.db.ExecContext(ctx, query)
	return err
}

func (w *Writer) table(name string) string {
	return w.schema + "." + name
}

func schemaName(schema string) string {
	schema = strings.TrimSpace(schema)
	if schema == "" {
		return "public"
	}
	return schema
}

func recordInsertQuery(table string) string {
	return fmt.Sprintf(`INSERT INTO %s (
		ts, run_id, price, lp_value, hodl_value, il_pct, hedge_pnl, total_pnl, total_value, rebalanced
	) VALUES (
		$1,$2,$3,$4,$5,$6,$7,$8,$9,$10
	)`, table)
}

func sweepUpsertQuery(table string) string {
	return fmt.Sprintf(`INSERT INTO %s (
		sweep_id, eth_amount, threshold, final_value, roi, max_drawdown, sharpe_ratio, error
	) VALUES (
		$1,$2,$3,$4,$5,$6,$7,$8
	)
	ON CONFLICT (sweep_id, eth_amount, threshold) DO UPDATE SET
		final_value = EXCLUDED.final_value,
		roi = EXCLUDED.roi,
		max_drawdown = EXCLUDED.max_drawdown,
		sharpe_ratio = EXCLUDED.sharpe_ratio,
		error = EXCLUDED.error`, table)
}

// sweepArgs leaves the metric columns NULL for failed cells.
func sweepArgs(sweepID string, res sweep.Result) []any {
	if res.Err != nil {
		return []any{sweepID, res.EthAmount, res.Threshold, nil, nil, nil, nil, res.Err.Error()}
	}
	return []any{sweepID, res.EthAmount, res.Threshold, res.FinalValue, res.ROI, res.MaxDrawdown, res.SharpeRatio, nil}
}
