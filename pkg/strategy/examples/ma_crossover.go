package examples

import (
	"errors"
	"fmt"

	"github.com/markcheno/go-talib"
	"github.com/ridopark/eventtrader/pkg/event"
	"github.com/ridopark/eventtrader/pkg/feed"
	"github.com/ridopark/eventtrader/pkg/strategy"
)

// MovingAverageCrossoverStrategy goes long when the short SMA crosses above
// the long SMA and exits the long when it crosses back below.
type MovingAverageCrossoverStrategy struct {
	*strategy.BaseStrategy
	shortPeriod int
	longPeriod  int

	// optimizeLookback is the number of bars scored when refitting
	optimizeLookback int
}

// NewMovingAverageCrossoverStrategy creates a new moving average crossover strategy
func NewMovingAverageCrossoverStrategy(data feed.DataHandler, shortPeriod, longPeriod int) (*MovingAverageCrossoverStrategy, error) {
	if shortPeriod < 2 || shortPeriod >= longPeriod {
		return nil, fmt.Errorf("short period must be at least 2 and less than long period, got %d/%d", shortPeriod, longPeriod)
	}

	base := strategy.NewBaseStrategy("MovingAverageCrossover", data, map[string]interface{}{
		"short_period": shortPeriod,
		"long_period":  longPeriod,
	})

	return &MovingAverageCrossoverStrategy{
		BaseStrategy:     base,
		shortPeriod:      shortPeriod,
		longPeriod:       longPeriod,
		optimizeLookback: longPeriod * 4,
	}, nil
}

// Periods returns the current short and long periods
func (s *MovingAverageCrossoverStrategy) Periods() (int, int) {
	return s.shortPeriod, s.longPeriod
}

// CalculateSignals looks for a crossover between the previous and the
// current bar of every symbol.
func (s *MovingAverageCrossoverStrategy) CalculateSignals(market event.MarketEvent) ([]event.SignalEvent, error) {
	var signals []event.SignalEvent

	for _, symbol := range s.GetSymbols() {
		bars, err := s.Data().LatestBars(symbol, s.longPeriod+1)
		if err != nil {
			if errors.Is(err, feed.ErrNoData) {
				continue
			}
			return nil, fmt.Errorf("failed to read bars for %s: %w", symbol, err)
		}
		// Need one full long window on the previous bar for crossover detection
		if len(bars) < s.longPeriod+1 {
			continue
		}

		closes := feed.Closes(bars)
		short := talib.Sma(closes, s.shortPeriod)
		long := talib.Sma(closes, s.longPeriod)
		last := len(closes) - 1

		prevAbove := short[last-1] > long[last-1]
		currAbove := short[last] > long[last]
		price := closes[last]

		switch {
		case !prevAbove && currAbove:
			signals = append(signals, s.NewSignal(symbol, market.Timestamp, event.PositionBuy, price))
			s.Logger().Info().
				Str("symbol", symbol).
				Float64("price", price).
				Float64("shortMA", short[last]).
				Float64("longMA", long[last]).
				Msg("Bullish crossover detected")

		case prevAbove && !currAbove:
			signals = append(signals, s.NewSignal(symbol, market.Timestamp, event.PositionExitLong, price))
			s.Logger().Info().
				Str("symbol", symbol).
				Float64("price", price).
				Float64("shortMA", short[last]).
				Float64("longMA", long[last]).
				Msg("Bearish crossover detected")
		}
	}

	return signals, nil
}

// Optimize refits the short period against the recent window, keeping the
// long period fixed. Candidates are scored by the return of trading the
// crossover over the lookback across every symbol.
func (s *MovingAverageCrossoverStrategy) Optimize(ev event.OptimizeEvent) error {
	series := make([][]float64, 0, len(s.GetSymbols()))
	for _, symbol := range s.GetSymbols() {
		bars, err := s.Data().LatestBars(symbol, s.optimizeLookback)
		if err != nil {
			if errors.Is(err, feed.ErrNoData) {
				continue
			}
			return fmt.Errorf("failed to read bars for %s: %w", symbol, err)
		}
		if len(bars) > s.longPeriod+1 {
			series = append(series, feed.Closes(bars))
		}
	}
	if len(series) == 0 {
		return nil
	}

	score := func(shortPeriod int) float64 {
		total := 0.0
		for _, closes := range series {
			total += crossoverReturn(closes, shortPeriod, s.longPeriod)
		}
		return total
	}

	// The current period wins ties
	best, bestScore := s.shortPeriod, score(s.shortPeriod)
	for candidate := max(2, s.shortPeriod-2); candidate <= s.shortPeriod+2 && candidate < s.longPeriod; candidate++ {
		if candidate == s.shortPeriod {
			continue
		}
		if sc := score(candidate); sc > bestScore {
			best, bestScore = candidate, sc
		}
	}

	if best != s.shortPeriod {
		s.Logger().Info().
			Time("timestamp", ev.Timestamp).
			Int("from", s.shortPeriod).
			Int("to", best).
			Float64("score", bestScore).
			Msg("Short period refitted")
		s.shortPeriod = best
		s.SetParameter("short_period", best)
	}
	return nil
}

// crossoverReturn replays a long-only crossover over closes and returns the
// compounded return.
func crossoverReturn(closes []float64, shortPeriod, longPeriod int) float64 {
	short := talib.Sma(closes, shortPeriod)
	long := talib.Sma(closes, longPeriod)

	growth := 1.0
	inMarket := false
	for i := longPeriod - 1; i < len(closes); i++ {
		if inMarket && closes[i-1] > 0 {
			growth *= closes[i] / closes[i-1]
		}
		inMarket = short[i] > long[i]
	}
	return growth - 1
}
