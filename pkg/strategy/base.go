package strategy

import (
	"fmt"
	"strconv"
	"time"

	"github.com/ridopark/eventtrader/pkg/event"
	"github.com/ridopark/eventtrader/pkg/feed"
	"github.com/ridopark/eventtrader/pkg/logging"
	"github.com/rs/zerolog"
)

// BaseStrategy provides a default implementation of common strategy functionality
type BaseStrategy struct {
	name       string
	parameters map[string]interface{}
	symbols    []string
	data       feed.DataHandler
	logger     zerolog.Logger
}

// NewBaseStrategy creates a new base strategy
func NewBaseStrategy(name string, data feed.DataHandler, parameters map[string]interface{}) *BaseStrategy {
	if parameters == nil {
		parameters = make(map[string]interface{})
	}
	var symbols []string
	if data != nil {
		symbols = data.Symbols()
	}
	return &BaseStrategy{
		name:       name,
		parameters: parameters,
		symbols:    symbols,
		data:       data,
		logger:     logging.GetSubLogger(logging.GetLogger("strategy"), name),
	}
}

// GetName returns the strategy name
func (s *BaseStrategy) GetName() string {
	return s.name
}

// GetParameters returns the strategy parameters
func (s *BaseStrategy) GetParameters() map[string]interface{} {
	return s.parameters
}

// SetParameter overwrites a single parameter
func (s *BaseStrategy) SetParameter(key string, value interface{}) {
	s.parameters[key] = value
}

// SetSymbols restricts the symbols this strategy trades
func (s *BaseStrategy) SetSymbols(symbols []string) {
	s.symbols = symbols
}

// GetSymbols returns the symbols this strategy trades
func (s *BaseStrategy) GetSymbols() []string {
	return s.symbols
}

// Data returns the market data handler
func (s *BaseStrategy) Data() feed.DataHandler {
	return s.data
}

// Logger returns the strategy's component logger
func (s *BaseStrategy) Logger() *zerolog.Logger {
	return &s.logger
}

// GetParameter returns a raw parameter value
func (s *BaseStrategy) GetParameter(key string) interface{} {
	return s.parameters[key]
}

// GetParameterFloat64 returns a parameter as float64
func (s *BaseStrategy) GetParameterFloat64(key string) (float64, error) {
	val, ok := s.parameters[key]
	if !ok {
		return 0, fmt.Errorf("parameter %s not found", key)
	}

	switch v := val.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, fmt.Errorf("parameter %s is not a number: %w", key, err)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("parameter %s is not a number", key)
	}
}

// GetParameterInt returns a parameter as int
func (s *BaseStrategy) GetParameterInt(key string) (int, error) {
	val, ok := s.parameters[key]
	if !ok {
		return 0, fmt.Errorf("parameter %s not found", key)
	}

	switch v := val.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	case string:
		i, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("parameter %s is not an integer: %w", key, err)
		}
		return i, nil
	default:
		return 0, fmt.Errorf("parameter %s is not an integer", key)
	}
}

// GetParameterString returns a parameter as string
func (s *BaseStrategy) GetParameterString(key string) (string, error) {
	val, ok := s.parameters[key]
	if !ok {
		return "", fmt.Errorf("parameter %s not found", key)
	}

	if str, ok := val.(string); ok {
		return str, nil
	}

	return "", fmt.Errorf("parameter %s is not a string", key)
}

// IntOr returns an integer parameter, or def when it is missing
func (s *BaseStrategy) IntOr(key string, def int) (int, error) {
	if _, ok := s.parameters[key]; !ok {
		return def, nil
	}
	return s.GetParameterInt(key)
}

// Float64Or returns a float parameter, or def when it is missing
func (s *BaseStrategy) Float64Or(key string, def float64) (float64, error) {
	if _, ok := s.parameters[key]; !ok {
		return def, nil
	}
	return s.GetParameterFloat64(key)
}

// NewSignal creates a signal stamped with this strategy's name
func (s *BaseStrategy) NewSignal(symbol string, ts time.Time, position event.SignalPosition, referencePrice float64) event.SignalEvent {
	return event.SignalEvent{
		Symbol:         symbol,
		Timestamp:      ts,
		Position:       position,
		ReferencePrice: referencePrice,
		Strategy:       s.name,
	}
}
