package examples

import (
	"fmt"
	"strings"

	"github.com/ridopark/eventtrader/pkg/feed"
	"github.com/ridopark/eventtrader/pkg/strategy"
)

// New builds a strategy from its config. Parameter keys are lower snake
// case since config keys are case-insensitive.
func New(cfg strategy.StrategyConfig, data feed.DataHandler) (strategy.Strategy, error) {
	params := strategy.NewBaseStrategy(cfg.Name, data, cfg.Parameters)

	var (
		s   strategy.Strategy
		err error
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Name)) {
	case "buy_and_hold", "buyandhold":
		s = NewBuyAndHoldStrategy(data)

	case "ma_crossover", "movingaveragecrossover":
		short, perr := params.IntOr("short_period", 10)
		if perr != nil {
			return nil, perr
		}
		long, perr := params.IntOr("long_period", 30)
		if perr != nil {
			return nil, perr
		}
		s, err = NewMovingAverageCrossoverStrategy(data, short, long)

	case "rsi":
		period, perr := params.IntOr("period", 14)
		if perr != nil {
			return nil, perr
		}
		oversold, perr := params.Float64Or("oversold", 30)
		if perr != nil {
			return nil, perr
		}
		overbought, perr := params.Float64Or("overbought", 70)
		if perr != nil {
			return nil, perr
		}
		s, err = NewRSIStrategy(data, period, oversold, overbought)

	default:
		return nil, fmt.Errorf("unknown strategy: %s", cfg.Name)
	}
	if err != nil {
		return nil, err
	}

	if len(cfg.Symbols) > 0 {
		if scoped, ok := s.(interface{ SetSymbols([]string) }); ok {
			scoped.SetSymbols(cfg.Symbols)
		}
	}
	return s, nil
}
