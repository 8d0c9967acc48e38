package portfolio

import (
	"time"

	"github.com/ridopark/eventtrader/pkg/event"
)

// Holdings is a point-in-time valuation of cash plus all positions.
// For every appended snapshot Total == Cash + sum(MarketValue).
type Holdings struct {
	Timestamp   time.Time
	Cash        float64
	Commission  float64
	MarketValue map[string]float64
	Total       float64
}

// Clone returns a deep copy so callers never alias portfolio state
func (h Holdings) Clone() Holdings {
	mv := make(map[string]float64, len(h.MarketValue))
	for symbol, value := range h.MarketValue {
		mv[symbol] = value
	}
	h.MarketValue = mv
	return h
}

// MarketValueSum adds up the per-symbol market values
func (h Holdings) MarketValueSum() float64 {
	sum := 0.0
	for _, value := range h.MarketValue {
		sum += value
	}
	return sum
}

// PositionSnapshot records per-symbol quantities at a tick
type PositionSnapshot struct {
	Timestamp time.Time
	Positions map[string]int64
}

// Trade is the last execution seen for a symbol
type Trade struct {
	Price     float64
	Timestamp time.Time
	Direction event.Direction
	Quantity  int64
}

// View is the read-only state handed to rebalance policies
type View struct {
	Timestamp         time.Time
	PreviousTimestamp time.Time
	Holdings          Holdings
	Positions         map[string]int64
	LatestClose       map[string]float64
	LastTrades        map[string]Trade
}

// Position returns the quantity held for symbol
func (v View) Position(symbol string) int64 {
	return v.Positions[symbol]
}
