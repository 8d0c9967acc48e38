package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/ridopark/eventtrader/pkg/feed"
	"github.com/ridopark/eventtrader/pkg/logging"
	"github.com/rs/zerolog"
)

const barColumns = `symbol, timestamp, open, high, low, close, volume, timeframe`

// TimescaleDBProvider provides historical data from TimescaleDB
type TimescaleDBProvider struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewTimescaleDBProvider creates a new TimescaleDB data provider
func NewTimescaleDBProvider(ctx context.Context, connectionString string) (*TimescaleDBProvider, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}
	db.SetMaxOpenConns(8)
	db.SetConnMaxIdleTime(5 * time.Minute)

	// Test the connection
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return newTimescaleDBProvider(db), nil
}

func newTimescaleDBProvider(db *sql.DB) *TimescaleDBProvider {
	return &TimescaleDBProvider{
		db:     db,
		logger: logging.GetLogger("timescaledb"),
	}
}

// GetBars retrieves historical OHLCV data for the given parameters
func (p *TimescaleDBProvider) GetBars(ctx context.Context, symbol string, timeframe string, start time.Time, end time.Time) ([]feed.BarData, error) {
	query := `
		SELECT ` + barColumns + `
		FROM ohlcv_data
		WHERE symbol = $1 AND timeframe = $2 AND timestamp >= $3 AND timestamp <= $4
		ORDER BY timestamp ASC
	`

	rows, err := p.db.QueryContext(ctx, query, symbol, timeframe, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query ohlcv_data: %w", err)
	}
	defer rows.Close()

	bars, err := scanBars(rows)
	if err != nil {
		return nil, err
	}

	p.logger.Debug().
		Str("symbol", symbol).
		Str("timeframe", timeframe).
		Int("bars", len(bars)).
		Msg("Loaded bars")
	return bars, nil
}

// GetLastBar gets the most recent bar for a symbol
func (p *TimescaleDBProvider) GetLastBar(ctx context.Context, symbol string, timeframe string) (*feed.BarData, error) {
	query := `
		SELECT ` + barColumns + `
		FROM ohlcv_data
		WHERE symbol = $1 AND timeframe = $2
		ORDER BY timestamp DESC
		LIMIT 1
	`

	var bar feed.BarData
	err := scanBar(p.db.QueryRowContext(ctx, query, symbol, timeframe), &bar)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("symbol %s timeframe %s: %w", symbol, timeframe, feed.ErrNoData)
		}
		return nil, fmt.Errorf("failed to get last bar: %w", err)
	}

	return &bar, nil
}

// GetBarsLimit gets the last N bars for a symbol, oldest first
func (p *TimescaleDBProvider) GetBarsLimit(ctx context.Context, symbol string, timeframe string, limit int) ([]feed.BarData, error) {
	query := `
		SELECT ` + barColumns + `
		FROM ohlcv_data
		WHERE symbol = $1 AND timeframe = $2
		ORDER BY timestamp DESC
		LIMIT $3
	`

	rows, err := p.db.QueryContext(ctx, query, symbol, timeframe, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query ohlcv_data: %w", err)
	}
	defer rows.Close()

	bars, err := scanBars(rows)
	if err != nil {
		return nil, err
	}
	reverse(bars)
	return bars, nil
}

// Close closes the database connection
func (p *TimescaleDBProvider) Close() error {
	return p.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBar(row rowScanner, bar *feed.BarData) error {
	return row.Scan(
		&bar.Symbol,
		&bar.Timestamp,
		&bar.Open,
		&bar.High,
		&bar.Low,
		&bar.Close,
		&bar.Volume,
		&bar.Timeframe,
	)
}

func scanBars(rows *sql.Rows) ([]feed.BarData, error) {
	var bars []feed.BarData
	for rows.Next() {
		var bar feed.BarData
		if err := scanBar(rows, &bar); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		bars = append(bars, bar)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return bars, nil
}

// reverse puts newest-first query results in chronological order
func reverse(bars []feed.BarData) {
	for i, j := 0, len(bars)-1; i < j; i, j = i+1, j-1 {
		bars[i], bars[j] = bars[j], bars[i]
	}
}

// Verify that TimescaleDBProvider implements the HistoricalDataProvider interface
var _ feed.HistoricalDataProvider = (*TimescaleDBProvider)(nil)
