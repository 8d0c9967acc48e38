package portfolio

import (
	"fmt"
	"strings"
	"time"

	"github.com/ridopark/eventtrader/pkg/event"
)

// Rebalance is a periodic hook run after every holdings snapshot. It only
// emits signals; the portfolio acts on them like any other signal.
type Rebalance interface {
	NeedRebalance(view View) bool
	Rebalance(symbols []string, view View) []event.SignalEvent
	Name() string
}

// NoRebalance never fires
type NoRebalance struct{}

func (NoRebalance) NeedRebalance(View) bool                      { return false }
func (NoRebalance) Rebalance([]string, View) []event.SignalEvent { return nil }
func (NoRebalance) Name() string                                 { return "none" }

// YearStart closes every open position on the first tick of a new year
type YearStart struct{}

func (YearStart) NeedRebalance(view View) bool {
	if view.PreviousTimestamp.IsZero() || view.Timestamp.IsZero() {
		return false
	}
	return view.Timestamp.Year() != view.PreviousTimestamp.Year()
}

func (YearStart) Rebalance(symbols []string, view View) []event.SignalEvent {
	return exitAll(symbols, view, "rebalance:year_start")
}

func (YearStart) Name() string { return "year_start" }

// QuarterStart closes every open position on the first tick of a new quarter
type QuarterStart struct{}

func (QuarterStart) NeedRebalance(view View) bool {
	if view.PreviousTimestamp.IsZero() || view.Timestamp.IsZero() {
		return false
	}
	return quarterOf(view.Timestamp) != quarterOf(view.PreviousTimestamp)
}

func (QuarterStart) Rebalance(symbols []string, view View) []event.SignalEvent {
	return exitAll(symbols, view, "rebalance:quarter_start")
}

func (QuarterStart) Name() string { return "quarter_start" }

// SellBelowLastTrade exits longs whose latest close dropped under their last fill price
type SellBelowLastTrade struct{}

func (SellBelowLastTrade) NeedRebalance(view View) bool {
	for _, qty := range view.Positions {
		if qty > 0 {
			return true
		}
	}
	return false
}

func (SellBelowLastTrade) Rebalance(symbols []string, view View) []event.SignalEvent {
	var signals []event.SignalEvent
	for _, symbol := range symbols {
		if view.Position(symbol) <= 0 {
			continue
		}
		trade, ok := view.LastTrades[symbol]
		if !ok {
			continue
		}
		price, ok := view.LatestClose[symbol]
		if !ok || price >= trade.Price {
			continue
		}
		signals = append(signals, event.SignalEvent{
			Symbol:         symbol,
			Timestamp:      view.Timestamp,
			Position:       event.PositionExitLong,
			ReferencePrice: price,
			Strategy:       "rebalance:sell_below_last_trade",
		})
	}
	return signals
}

func (SellBelowLastTrade) Name() string { return "sell_below_last_trade" }

// ParseRebalance builds a rebalance policy from its config name
func ParseRebalance(name string) (Rebalance, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "none", "no_rebalance":
		return NoRebalance{}, nil
	case "year_start", "yearly":
		return YearStart{}, nil
	case "quarter_start", "quarterly":
		return QuarterStart{}, nil
	case "sell_below_last_trade", "sell_losers":
		return SellBelowLastTrade{}, nil
	default:
		return nil, fmt.Errorf("unknown rebalance policy: %s", name)
	}
}

func exitAll(symbols []string, view View, origin string) []event.SignalEvent {
	var signals []event.SignalEvent
	for _, symbol := range symbols {
		qty := view.Position(symbol)
		if qty == 0 {
			continue
		}
		position := event.PositionExitLong
		if qty < 0 {
			position = event.PositionExitShort
		}
		signals = append(signals, event.SignalEvent{
			Symbol:         symbol,
			Timestamp:      view.Timestamp,
			Position:       position,
			ReferencePrice: view.LatestClose[symbol],
			Strategy:       origin,
		})
	}
	return signals
}

func quarterOf(t time.Time) int {
	return t.Year()*4 + (int(t.Month())-1)/3
}
