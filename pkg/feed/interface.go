package feed

import (
	"context"
	"errors"
	"time"

	"github.com/ridopark/eventtrader/pkg/event"
)

var (
	// ErrNoData means the symbol has no bar available yet. Callers treat it as
	// recoverable: skip the symbol for this tick and try again on the next one.
	ErrNoData = errors.New("no bar data available")

	// ErrUnknownSymbol wraps ErrNoData for symbols outside the feed's universe.
	ErrUnknownSymbol = errors.New("unknown symbol")

	// ErrEndOfData is returned by UpdateBars once the timeline is exhausted.
	ErrEndOfData = errors.New("end of data")
)

// BarData represents OHLCV data for a single time period
type BarData struct {
	Symbol    string
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	Timeframe string
}

// DataHandler is the engine's read-only view of market data. It owns the
// price history; every other component only queries it.
type DataHandler interface {
	// LatestBars returns up to n bars for symbol, most recent last
	LatestBars(symbol string, n int) ([]BarData, error)

	// UpdateBars advances the cursor by one tick and returns its market event
	UpdateBars() (event.MarketEvent, error)

	// ContinueBacktest is false once the data is exhausted
	ContinueBacktest() bool

	// Symbols returns the traded universe, fixed for the run
	Symbols() []string
}

// HistoricalDataProvider defines the interface for historical data sources
type HistoricalDataProvider interface {
	// GetBars retrieves historical OHLCV data for the given parameters
	GetBars(ctx context.Context, symbol string, timeframe string, start time.Time, end time.Time) ([]BarData, error)

	// GetLastBar gets the most recent bar for a symbol
	GetLastBar(ctx context.Context, symbol string, timeframe string) (*BarData, error)

	// GetBarsLimit gets the last N bars for a symbol
	GetBarsLimit(ctx context.Context, symbol string, timeframe string, limit int) ([]BarData, error)
}

// LatestBar is a convenience for the single most recent bar
func LatestBar(dh DataHandler, symbol string) (BarData, error) {
	bars, err := dh.LatestBars(symbol, 1)
	if err != nil {
		return BarData{}, err
	}
	if len(bars) == 0 {
		return BarData{}, ErrNoData
	}
	return bars[len(bars)-1], nil
}

// LatestClose returns the close of the most recent bar
func LatestClose(dh DataHandler, symbol string) (float64, error) {
	bar, err := LatestBar(dh, symbol)
	if err != nil {
		return 0, err
	}
	return bar.Close, nil
}

// Closes extracts closing prices in order
func Closes(bars []BarData) []float64 {
	out := make([]float64, len(bars))
	for i, bar := range bars {
		out[i] = bar.Close
	}
	return out
}
