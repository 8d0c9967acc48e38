package strategy

import (
	"github.com/ridopark/eventtrader/pkg/event"
)

// Strategy turns market data into signals. Strategies read prices through
// the data handler they were built with and never touch portfolio state.
type Strategy interface {
	// GetName returns the strategy name
	GetName() string

	// CalculateSignals is called once per market event
	CalculateSignals(market event.MarketEvent) ([]event.SignalEvent, error)
}

// Optimizer is implemented by strategies that refit their parameters when
// the engine emits an optimize event.
type Optimizer interface {
	Optimize(ev event.OptimizeEvent) error
}

// StrategyConfig holds configuration for a strategy
type StrategyConfig struct {
	Name       string                 `mapstructure:"name"`
	Parameters map[string]interface{} `mapstructure:"parameters"`
	Symbols    []string               `mapstructure:"symbols"`
}
