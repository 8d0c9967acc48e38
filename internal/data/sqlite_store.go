package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ridopark/eventtrader/pkg/feed"
	"github.com/ridopark/eventtrader/pkg/logging"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// SQLiteStore is a local bar store. It doubles as the cache behind
// CachingProvider, so it remembers which ranges were fetched in full.
type SQLiteStore struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewSQLiteStore opens (or creates) a store. dsn is a modernc sqlite DSN,
// e.g. "file:bars.db" or ":memory:".
func NewSQLiteStore(ctx context.Context, dsn string) (*SQLiteStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("sqlite dsn must not be empty")
	}
	if !strings.Contains(dsn, "_pragma") && dsn != ":memory:" {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite store: %w", err)
	}
	// A single connection keeps ":memory:" databases alive and serializes writes
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := ensureStoreSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db, logger: logging.GetLogger("sqlite_store")}, nil
}

func ensureStoreSchema(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS bars (
			symbol    TEXT NOT NULL,
			timeframe TEXT NOT NULL,
			ts        INTEGER NOT NULL,
			open      REAL NOT NULL,
			high      REAL NOT NULL,
			low       REAL NOT NULL,
			close     REAL NOT NULL,
			volume    REAL NOT NULL,
			PRIMARY KEY (symbol, timeframe, ts)
		);`,
		`CREATE TABLE IF NOT EXISTS fetched_ranges (
			symbol    TEXT NOT NULL,
			timeframe TEXT NOT NULL,
			start_ts  INTEGER NOT NULL,
			end_ts    INTEGER NOT NULL,
			PRIMARY KEY (symbol, timeframe, start_ts, end_ts)
		);`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create sqlite schema: %w", err)
		}
	}
	return nil
}

// SaveBars upserts bars; an existing bar with the same timestamp is replaced
func (s *SQLiteStore) SaveBars(ctx context.Context, bars []feed.BarData) (int, error) {
	if len(bars) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO bars (symbol, timeframe, ts, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol, timeframe, ts) DO UPDATE SET
		    open=excluded.open,
		    high=excluded.high,
		    low=excluded.low,
		    close=excluded.close,
		    volume=excluded.volume`)
	if err != nil {
		_ = tx.Rollback()
		return 0, err
	}
	defer stmt.Close()

	count := 0
	for _, b := range bars {
		if _, err := stmt.ExecContext(ctx, b.Symbol, b.Timeframe, b.Timestamp.UnixMilli(), b.Open, b.High, b.Low, b.Close, b.Volume); err != nil {
			_ = tx.Rollback()
			return 0, fmt.Errorf("failed to save bar %s@%s: %w", b.Symbol, b.Timestamp, err)
		}
		count++
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return count, nil
}

// MarkFetched records that [start, end] was loaded in full for symbol
func (s *SQLiteStore) MarkFetched(ctx context.Context, symbol, timeframe string, start, end time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO fetched_ranges (symbol, timeframe, start_ts, end_ts)
		VALUES (?, ?, ?, ?)`, symbol, timeframe, start.UnixMilli(), end.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to record fetched range: %w", err)
	}
	return nil
}

// Covered reports whether a single recorded range spans [start, end]
func (s *SQLiteStore) Covered(ctx context.Context, symbol, timeframe string, start, end time.Time) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(1) FROM fetched_ranges
		WHERE symbol = ? AND timeframe = ? AND start_ts <= ? AND end_ts >= ?`,
		symbol, timeframe, start.UnixMilli(), end.UnixMilli()).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check fetched ranges: %w", err)
	}
	return n > 0, nil
}

// GetBars returns stored bars in [start, end]; a zero bound is open
func (s *SQLiteStore) GetBars(ctx context.Context, symbol string, timeframe string, start time.Time, end time.Time) ([]feed.BarData, error) {
	lo, hi := int64(-1<<63), int64(1<<63-1)
	if !start.IsZero() {
		lo = start.UnixMilli()
	}
	if !end.IsZero() {
		hi = end.UnixMilli()
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, timeframe, ts, open, high, low, close, volume
		FROM bars
		WHERE symbol = ? AND timeframe = ? AND ts BETWEEN ? AND ?
		ORDER BY ts ASC`, symbol, timeframe, lo, hi)
	if err != nil {
		return nil, fmt.Errorf("failed to query bars: %w", err)
	}
	defer rows.Close()
	return scanStoredBars(rows)
}

// GetLastBar returns the newest stored bar
func (s *SQLiteStore) GetLastBar(ctx context.Context, symbol string, timeframe string) (*feed.BarData, error) {
	bars, err := s.GetBarsLimit(ctx, symbol, timeframe, 1)
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("symbol %s timeframe %s: %w", symbol, timeframe, feed.ErrNoData)
	}
	return &bars[0], nil
}

// GetBarsLimit returns the newest limit bars, oldest first
func (s *SQLiteStore) GetBarsLimit(ctx context.Context, symbol string, timeframe string, limit int) ([]feed.BarData, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, timeframe, ts, open, high, low, close, volume
		FROM bars
		WHERE symbol = ? AND timeframe = ?
		ORDER BY ts DESC
		LIMIT ?`, symbol, timeframe, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query bars: %w", err)
	}
	defer rows.Close()

	bars, err := scanStoredBars(rows)
	if err != nil {
		return nil, err
	}
	reverse(bars)
	return bars, nil
}

// Count returns the number of stored bars for symbol
func (s *SQLiteStore) Count(ctx context.Context, symbol, timeframe string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM bars WHERE symbol = ? AND timeframe = ?`, symbol, timeframe).Scan(&n)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}
	return n, nil
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func scanStoredBars(rows *sql.Rows) ([]feed.BarData, error) {
	var bars []feed.BarData
	for rows.Next() {
		var (
			bar feed.BarData
			ts  int64
		)
		if err := rows.Scan(&bar.Symbol, &bar.Timeframe, &ts, &bar.Open, &bar.High, &bar.Low, &bar.Close, &bar.Volume); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		bar.Timestamp = time.UnixMilli(ts).UTC()
		bars = append(bars, bar)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return bars, nil
}

var _ feed.HistoricalDataProvider = (*SQLiteStore)(nil)
