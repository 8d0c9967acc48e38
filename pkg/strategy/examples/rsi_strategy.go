package examples

import (
	"errors"
	"fmt"

	"github.com/markcheno/go-talib"
	"github.com/ridopark/eventtrader/pkg/event"
	"github.com/ridopark/eventtrader/pkg/feed"
	"github.com/ridopark/eventtrader/pkg/strategy"
)

// RSIStrategy buys when RSI drops into oversold territory and exits the long
// when it rises into overbought territory. Signals fire on the crossing only.
type RSIStrategy struct {
	*strategy.BaseStrategy
	rsiPeriod int
	buyLevel  float64 // RSI level to buy (oversold)
	sellLevel float64 // RSI level to sell (overbought)
}

// NewRSIStrategy creates a new RSI strategy
func NewRSIStrategy(data feed.DataHandler, rsiPeriod int, buyLevel, sellLevel float64) (*RSIStrategy, error) {
	if rsiPeriod < 2 {
		return nil, fmt.Errorf("rsi period must be at least 2, got %d", rsiPeriod)
	}
	if buyLevel <= 0 || sellLevel >= 100 || buyLevel >= sellLevel {
		return nil, fmt.Errorf("rsi levels must satisfy 0 < buy < sell < 100, got %v/%v", buyLevel, sellLevel)
	}

	base := strategy.NewBaseStrategy("RSI", data, map[string]interface{}{
		"period":     rsiPeriod,
		"oversold":   buyLevel,
		"overbought": sellLevel,
	})
	return &RSIStrategy{
		BaseStrategy: base,
		rsiPeriod:    rsiPeriod,
		buyLevel:     buyLevel,
		sellLevel:    sellLevel,
	}, nil
}

// CalculateSignals compares the last two RSI readings of every symbol
func (s *RSIStrategy) CalculateSignals(market event.MarketEvent) ([]event.SignalEvent, error) {
	var signals []event.SignalEvent
	window := s.rsiPeriod * 3

	for _, symbol := range s.GetSymbols() {
		bars, err := s.Data().LatestBars(symbol, window)
		if err != nil {
			if errors.Is(err, feed.ErrNoData) {
				continue
			}
			return nil, fmt.Errorf("failed to read bars for %s: %w", symbol, err)
		}
		// talib leaves the first period values empty
		if len(bars) < s.rsiPeriod+2 {
			continue
		}

		closes := feed.Closes(bars)
		series := talib.Rsi(closes, s.rsiPeriod)
		last := len(series) - 1
		prev, curr := series[last-1], series[last]
		price := closes[len(closes)-1]

		s.Logger().Debug().
			Str("symbol", symbol).
			Float64("price", price).
			Float64("rsi", curr).
			Msg("RSI analysis")

		switch {
		case prev > s.buyLevel && curr <= s.buyLevel:
			signals = append(signals, s.NewSignal(symbol, market.Timestamp, event.PositionBuy, price))
			s.Logger().Info().
				Str("symbol", symbol).
				Float64("price", price).
				Float64("rsi", curr).
				Msg("RSI oversold")

		case prev < s.sellLevel && curr >= s.sellLevel:
			signals = append(signals, s.NewSignal(symbol, market.Timestamp, event.PositionExitLong, price))
			s.Logger().Info().
				Str("symbol", symbol).
				Float64("price", price).
				Float64("rsi", curr).
				Msg("RSI overbought")
		}
	}

	return signals, nil
}
