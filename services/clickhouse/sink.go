// Package clickhouse persists backtest results to a ClickHouse cluster so
// runs can be compared across parameter sweeps.
package clickhouse

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"structure-backtest/services/engine"
)

// Sink writes trades and rejections through the native protocol.
type Sink struct {
	conn     clickhouse.Conn
	database string
	log      *zap.Logger
}

// Options configures a Sink connection.
type Options struct {
	Addr     string
	Database string
	Username string
	Password string
}

// Open connects and pings the cluster.
func Open(ctx context.Context, opts Options, log *zap.Logger) (*Sink, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{opts.Addr},
		Auth: clickhouse.Auth{
			Database: opts.Database,
			Username: opts.Username,
			Password: opts.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": uint64(0),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("clickhouse open: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}
	return &Sink{conn: conn, database: opts.Database, log: log}, nil
}

// EnsureSchema creates the database and result tables if missing.
func (s *Sink) EnsureSchema(ctx context.Context) error {
	if err := s.conn.Exec(ctx, fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", s.database)); err != nil {
		return fmt.Errorf("create database: %w", err)
	}

	tradesDDL := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s.trades (
			run_id String,
			symbol String,
			side LowCardinality(String),
			model LowCardinality(String),
			entry_time DateTime64(3, 'UTC'),
			exit_time DateTime64(3, 'UTC'),
			entry_price Decimal(18, 8),
			exit_price Decimal(18, 8),
			stop_price Decimal(18, 8),
			target_price Decimal(18, 8),
			pnl Decimal(18, 8),
			r_multiple Float64,
			exit_reason LowCardinality(String),
			entry_reasons String
		)
		ENGINE = MergeTree
		ORDER BY (run_id, symbol, entry_time)
		SETTINGS index_granularity = 8192
	`, s.database)
	if err := s.conn.Exec(ctx, tradesDDL); err != nil {
		return fmt.Errorf("create trades table: %w", err)
	}

	rejectionsDDL := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s.rejections (
			run_id String,
			symbol String,
			ts DateTime64(3, 'UTC'),
			hour Int32,
			reasons String
		)
		ENGINE = MergeTree
		ORDER BY (run_id, symbol, ts)
		SETTINGS index_granularity = 8192
	`, s.database)
	if err := s.conn.Exec(ctx, rejectionsDDL); err != nil {
		return fmt.Errorf("create rejections table: %w", err)
	}
	return nil
}

// InsertTrades batches the trade log under the given run ID.
func (s *Sink) InsertTrades(ctx context.Context, runID string, trades []engine.Trade) error {
	if len(trades) == 0 {
		return nil
	}
	batch, err := s.conn.PrepareBatch(ctx, fmt.Sprintf("INSERT INTO %s.trades", s.database))
	if err != nil {
		return fmt.Errorf("prepare trades batch: %w", err)
	}
	for _, tr := range trades {
		if err := batch.Append(
			runID,
			tr.Symbol,
			tr.Side.String(),
			tr.Model,
			tr.EntryTime,
			tr.ExitTime,
			decimal.NewFromFloat(tr.EntryPrice),
			decimal.NewFromFloat(tr.ExitPrice),
			decimal.NewFromFloat(tr.StopPrice),
			decimal.NewFromFloat(tr.TargetPrice),
			decimal.NewFromFloat(tr.PnL),
			tr.RMultiple,
			tr.ExitReason,
			tr.EntryReasons,
		); err != nil {
			return fmt.Errorf("append trade: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("send trades batch: %w", err)
	}
	s.log.Info("trades persisted", zap.String("run_id", runID), zap.Int("count", len(trades)))
	return nil
}

// InsertRejections batches the rejection log under the given run ID.
func (s *Sink) InsertRejections(ctx context.Context, runID string, rejections []engine.Rejection) error {
	if len(rejections) == 0 {
		return nil
	}
	batch, err := s.conn.PrepareBatch(ctx, fmt.Sprintf("INSERT INTO %s.rejections", s.database))
	if err != nil {
		return fmt.Errorf("prepare rejections batch: %w", err)
	}
	for _, rej := range rejections {
		if err := batch.Append(
			runID,
			rej.Symbol,
			rej.Timestamp,
			int32(rej.Hour),
			rej.Reasons,
		); err != nil {
			return fmt.Errorf("append rejection: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("send rejections batch: %w", err)
	}
	s.log.Info("rejections persisted", zap.String("run_id", runID), zap.Int("count", len(rejections)))
	return nil
}

// Close releases the connection.
func (s *Sink) Close() error {
	return s.conn.Close()
}
