package examples

import (
	"errors"

	"github.com/ridopark/eventtrader/pkg/event"
	"github.com/ridopark/eventtrader/pkg/feed"
	"github.com/ridopark/eventtrader/pkg/strategy"
)

// BuyAndHoldStrategy buys every symbol once, on its first available bar,
// and never signals again. Position size is left to the portfolio.
type BuyAndHoldStrategy struct {
	*strategy.BaseStrategy
	hasBought map[string]bool
}

// NewBuyAndHoldStrategy creates a new buy-and-hold strategy
func NewBuyAndHoldStrategy(data feed.DataHandler) *BuyAndHoldStrategy {
	return &BuyAndHoldStrategy{
		BaseStrategy: strategy.NewBaseStrategy("BuyAndHold", data, nil),
		hasBought:    make(map[string]bool),
	}
}

// CalculateSignals emits a BUY for each symbol that has not been bought yet
func (s *BuyAndHoldStrategy) CalculateSignals(market event.MarketEvent) ([]event.SignalEvent, error) {
	var signals []event.SignalEvent

	for _, symbol := range s.GetSymbols() {
		if s.hasBought[symbol] {
			continue
		}

		bar, err := feed.LatestBar(s.Data(), symbol)
		if err != nil {
			if errors.Is(err, feed.ErrNoData) {
				continue
			}
			return nil, err
		}

		signals = append(signals, s.NewSignal(symbol, market.Timestamp, event.PositionBuy, bar.Close))
		s.hasBought[symbol] = true

		s.Logger().Info().
			Str("symbol", symbol).
			Float64("price", bar.Close).
			Msg("Buying and holding")
	}

	return signals, nil
}
