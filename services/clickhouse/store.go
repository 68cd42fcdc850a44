// Package clickhouse reads bar history from and writes scan/backtest results
// to ClickHouse over the native protocol.
package clickhouse

import (
	"context"
	"fmt"
	"time"

	ch "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"ema-scanner/services/backtest"
	"ema-scanner/services/market"
	"ema-scanner/services/signals"
)

// Config holds connection settings for the native protocol.
type Config struct {
	Addr     string
	Database string
	Table    string
	Username string
	Password string
}

// Store is the bar source and results sink.
type Store struct {
	conn   ch.Conn
	cfg    Config
	logger *zap.Logger
}

// NewStore opens and pings a connection.
func NewStore(cfg Config, logger *zap.Logger) (*Store, error) {
	conn, err := ch.Open(&ch.Options{
		Addr: []string{cfg.Addr},
		Auth: ch.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Settings: ch.Settings{
			"max_execution_time": uint64(0),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("clickhouse open: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Ping(pingCtx); err != nil {
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{conn: conn, cfg: cfg, logger: logger}, nil
}

// LoadBars returns the symbol's bars for the interval [from, to) in
// chronological order. Timestamps are Unix milliseconds.
func (s *Store) LoadBars(ctx context.Context, symbol string, tf market.Timeframe, from, to int64) ([]market.Bar, error) {
	query := fmt.Sprintf(`
		SELECT open_time_ms, open, high, low, close, volume
		FROM %s.%s
		WHERE symbol = ? AND interval = ? AND open_time_ms >= ? AND open_time_ms < ?
		ORDER BY open_time_ms
	`, s.cfg.Database, s.cfg.Table)

	rows, err := s.conn.Query(ctx, query, symbol, string(tf), uint64(from), uint64(to))
	if err != nil {
		return nil, fmt.Errorf("query bars: %w", err)
	}
	defer rows.Close()

	var bars []market.Bar
	for rows.Next() {
		var (
			ts                            uint64
			open, high, low, closep, vol float64
		)
		if err := rows.Scan(&ts, &open, &high, &low, &closep, &vol); err != nil {
			return nil, fmt.Errorf("scan bar: %w", err)
		}
		bars = append(bars, market.Bar{
			Symbol:    symbol,
			Timestamp: int64(ts),
			Open:      decimal.NewFromFloat(open),
			High:      decimal.NewFromFloat(high),
			Low:       decimal.NewFromFloat(low),
			Close:     decimal.NewFromFloat(closep),
			Volume:    int64(vol),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read bars: %w", err)
	}
	s.logger.Debug("loaded bars",
		zap.String("symbol", symbol),
		zap.String("interval", string(tf)),
		zap.Int("count", len(bars)),
	)
	return bars, nil
}

// EnsureResultsSchema creates the trades and signals tables when missing.
func (s *Store) EnsureResultsSchema(ctx context.Context) error {
	tradesDDL := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s.trades (
			job_id String,
			symbol String,
			direction LowCardinality(String),
			entry_time_ms UInt64,
			exit_time_ms UInt64,
			entry_price Float64,
			exit_price Float64,
			pnl Float64,
			pnl_pct Float64,
			exit_reason LowCardinality(String),
			created_at DateTime DEFAULT now()
		) ENGINE = MergeTree
		ORDER BY (job_id, symbol, entry_time_ms)
	`, s.cfg.Database)
	if err := s.conn.Exec(ctx, tradesDDL); err != nil {
		return fmt.Errorf("create trades table: %w", err)
	}

	signalsDDL := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s.signals (
			job_id String,
			symbol String,
			direction LowCardinality(String),
			ts_ms UInt64,
			price Float64,
			confidence Float64,
			created_at DateTime DEFAULT now()
		) ENGINE = MergeTree
		ORDER BY (job_id, symbol, ts_ms)
	`, s.cfg.Database)
	if err := s.conn.Exec(ctx, signalsDDL); err != nil {
		return fmt.Errorf("create signals table: %w", err)
	}
	return nil
}

// InsertTrades writes a job's trade ledger in one batch.
func (s *Store) InsertTrades(ctx context.Context, jobID string, trades []backtest.Trade) error {
	if len(trades) == 0 {
		return nil
	}
	batch, err := s.conn.PrepareBatch(ctx, fmt.Sprintf(
		"INSERT INTO %s.trades (job_id, symbol, direction, entry_time_ms, exit_time_ms, entry_price, exit_price, pnl, pnl_pct, exit_reason)",
		s.cfg.Database,
	))
	if err != nil {
		return fmt.Errorf("prepare trades batch: %w", err)
	}
	for _, t := range trades {
		if err := batch.Append(
			jobID,
			t.Symbol,
			t.Direction.String(),
			uint64(t.EntryTime),
			uint64(t.ExitTime),
			t.EntryPrice.InexactFloat64(),
			t.ExitPrice.InexactFloat64(),
			t.PnL.InexactFloat64(),
			t.PnLPercent,
			t.ExitReason.String(),
		); err != nil {
			return fmt.Errorf("append trade: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("send trades batch: %w", err)
	}
	s.logger.Info("trades persisted", zap.String("job_id", jobID), zap.Int("count", len(trades)))
	return nil
}

// InsertSignals writes a scan's signals in one batch.
func (s *Store) InsertSignals(ctx context.Context, jobID string, sigs []signals.Signal) error {
	if len(sigs) == 0 {
		return nil
	}
	batch, err := s.conn.PrepareBatch(ctx, fmt.Sprintf(
		"INSERT INTO %s.signals (job_id, symbol, direction, ts_ms, price, confidence)",
		s.cfg.Database,
	))
	if err != nil {
		return fmt.Errorf("prepare signals batch: %w", err)
	}
	for _, sig := range sigs {
		if err := batch.Append(
			jobID,
			sig.Symbol,
			sig.Direction.String(),
			uint64(sig.Timestamp),
			sig.Price.InexactFloat64(),
			sig.Confidence,
		); err != nil {
			return fmt.Errorf("append signal: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("send signals batch: %w", err)
	}
	s.logger.Info("signals persisted", zap.String("job_id", jobID), zap.Int("count", len(sigs)))
	return nil
}

// Close releases the connection.
func (s *Store) Close() error {
	return s.conn.Close()
}
