package event

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidDirection  = errors.New("order direction must be BUY or SELL")
	ErrInvalidQuantity   = errors.New("order quantity must be positive")
	ErrMissingExpiry     = errors.New("limit order requires an expiry")
	ErrInvalidLimitPrice = errors.New("limit order requires a positive limit price")
)

// EventType represents the type of event
type EventType string

const (
	EventTypeMarket   EventType = "MARKET"
	EventTypeSignal   EventType = "SIGNAL"
	EventTypeOrder    EventType = "ORDER"
	EventTypeFill     EventType = "FILL"
	EventTypeOptimize EventType = "OPTIMIZE"
)

// Event is the closed set of messages flowing through the engine.
// Only the types in this package implement it.
type Event interface {
	GetTimestamp() time.Time
	GetType() EventType
	sealed()
}

// Direction is the side of an order
type Direction string

const (
	DirectionBuy  Direction = "BUY"
	DirectionSell Direction = "SELL"
)

// Sign returns +1 for BUY and -1 for SELL
func (d Direction) Sign() int64 {
	if d == DirectionSell {
		return -1
	}
	return 1
}

func (d Direction) Valid() bool {
	return d == DirectionBuy || d == DirectionSell
}

// SignalPosition is the intent carried by a signal
type SignalPosition string

const (
	PositionBuy       SignalPosition = "BUY"
	PositionSell      SignalPosition = "SELL"
	PositionExit      SignalPosition = "EXIT"
	PositionExitLong  SignalPosition = "EXIT_LONG"
	PositionExitShort SignalPosition = "EXIT_SHORT"
	PositionReverse   SignalPosition = "REVERSE"
)

// OrderKind represents the type of order
type OrderKind string

const (
	OrderKindMarket OrderKind = "MARKET"
	OrderKindLimit  OrderKind = "LIMIT"
)

// MarketEvent announces that a new timestep is available
type MarketEvent struct {
	Timestamp time.Time
}

func (e MarketEvent) GetTimestamp() time.Time { return e.Timestamp }
func (e MarketEvent) GetType() EventType      { return EventTypeMarket }
func (MarketEvent) sealed()                   {}

// SignalEvent is a strategy's or rebalance hook's trading intent
type SignalEvent struct {
	Symbol         string
	Timestamp      time.Time
	Position       SignalPosition
	ReferencePrice float64
	Strategy       string
}

func (e SignalEvent) GetTimestamp() time.Time { return e.Timestamp }
func (e SignalEvent) GetType() EventType      { return EventTypeSignal }
func (SignalEvent) sealed()                   {}

// OrderEvent represents an order to be executed.
// Expiry is the zero time for market orders.
type OrderEvent struct {
	ID         string
	Symbol     string
	Quantity   int64
	Direction  Direction
	Kind       OrderKind
	LimitPrice float64
	Expiry     time.Time
	TradePrice float64
	Timestamp  time.Time
}

func (e OrderEvent) GetTimestamp() time.Time { return e.Timestamp }
func (e OrderEvent) GetType() EventType      { return EventTypeOrder }
func (OrderEvent) sealed()                   {}

// OrderParams are the inputs NewOrderEvent validates
type OrderParams struct {
	Symbol     string
	Quantity   int64
	Direction  Direction
	Kind       OrderKind
	LimitPrice float64
	Expiry     time.Time
	TradePrice float64
	Timestamp  time.Time
}

// NewOrderEvent validates the params and builds an immutable order with a fresh ID
func NewOrderEvent(p OrderParams) (OrderEvent, error) {
	if !p.Direction.Valid() {
		return OrderEvent{}, fmt.Errorf("%w: got %q", ErrInvalidDirection, p.Direction)
	}
	if p.Quantity <= 0 {
		return OrderEvent{}, fmt.Errorf("%w: got %d", ErrInvalidQuantity, p.Quantity)
	}

	kind := p.Kind
	if kind == "" {
		kind = OrderKindMarket
	}

	switch kind {
	case OrderKindMarket:
	case OrderKindLimit:
		if p.Expiry.IsZero() {
			return OrderEvent{}, ErrMissingExpiry
		}
		if p.LimitPrice <= 0 {
			return OrderEvent{}, fmt.Errorf("%w: got %f", ErrInvalidLimitPrice, p.LimitPrice)
		}
	default:
		return OrderEvent{}, fmt.Errorf("unsupported order kind: %s", kind)
	}

	return OrderEvent{
		ID:         "ORD_" + uuid.NewString(),
		Symbol:     p.Symbol,
		Quantity:   p.Quantity,
		Direction:  p.Direction,
		Kind:       kind,
		LimitPrice: p.LimitPrice,
		Expiry:     p.Expiry,
		TradePrice: p.TradePrice,
		Timestamp:  p.Timestamp,
	}, nil
}

// IsLimit reports whether the order rests until its limit is crossed
func (e OrderEvent) IsLimit() bool {
	return e.Kind == OrderKindLimit
}

// Expired reports whether a limit order is past its expiry at now
func (e OrderEvent) Expired(now time.Time) bool {
	return e.IsLimit() && now.After(e.Expiry)
}

// FillEvent represents a completed execution of exactly one order
type FillEvent struct {
	ID         string
	Timestamp  time.Time
	Order      OrderEvent
	Price      float64
	Commission float64
}

// NewFillEvent creates a fill for the given order
func NewFillEvent(order OrderEvent, timestamp time.Time, price, commission float64) FillEvent {
	return FillEvent{
		ID:         "TRD_" + uuid.NewString(),
		Timestamp:  timestamp,
		Order:      order,
		Price:      price,
		Commission: commission,
	}
}

func (e FillEvent) GetTimestamp() time.Time { return e.Timestamp }
func (e FillEvent) GetType() EventType      { return EventTypeFill }
func (FillEvent) sealed()                   {}

// Cost is the gross traded value, excluding commission
func (e FillEvent) Cost() float64 {
	return float64(e.Order.Quantity) * e.Price
}

// OptimizeEvent asks collaborating strategies to refit
type OptimizeEvent struct {
	Timestamp time.Time
}

func (e OptimizeEvent) GetTimestamp() time.Time { return e.Timestamp }
func (e OptimizeEvent) GetType() EventType      { return EventTypeOptimize }
func (OptimizeEvent) sealed()                   {}
