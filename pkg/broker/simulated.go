package broker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ridopark/eventtrader/pkg/event"
	"github.com/ridopark/eventtrader/pkg/feed"
	"github.com/ridopark/eventtrader/pkg/logging"
	"github.com/rs/zerolog"
)

// SimulatedBroker simulates order execution for backtesting. Its only state
// is the set of orders waiting for a later tick.
type SimulatedBroker struct {
	data       feed.DataHandler
	commission CommissionModel
	slippage   float64 // As a percentage
	logger     zerolog.Logger

	pending []event.OrderEvent
	states  map[string]OrderState
}

// NewSimulatedBroker creates a new simulated broker
func NewSimulatedBroker(data feed.DataHandler, commission CommissionModel, slippage float64) *SimulatedBroker {
	if commission == nil {
		commission = ZeroCommission{}
	}
	return &SimulatedBroker{
		data:       data,
		commission: commission,
		slippage:   slippage,
		logger:     logging.GetLogger("broker"),
		states:     make(map[string]OrderState),
	}
}

// ExecuteOrder fills a market order at the latest close. Limit orders are
// parked, and so is a market order whose symbol has no data this tick.
func (b *SimulatedBroker) ExecuteOrder(order event.OrderEvent) (*event.FillEvent, error) {
	b.states[order.ID] = StateSubmitted

	if order.IsLimit() {
		b.SubmitLimitOrder(order)
		return nil, nil
	}
	if order.Kind != event.OrderKindMarket {
		return nil, fmt.Errorf("unsupported order type: %s", order.Kind)
	}

	bar, err := feed.LatestBar(b.data, order.Symbol)
	if err != nil {
		if errors.Is(err, feed.ErrNoData) {
			b.park(order, "no data for symbol")
			return nil, nil
		}
		return nil, fmt.Errorf("failed to price order %s: %w", order.ID, err)
	}

	fill := b.fill(order, bar, b.marketPrice(order, bar))
	return &fill, nil
}

// SubmitLimitOrder parks a limit order until it fills or expires
func (b *SimulatedBroker) SubmitLimitOrder(order event.OrderEvent) {
	b.park(order, "limit order resting")
}

// CheckPendingOrders evaluates every parked order against the bar for now.
// Expired limits are dropped without a fill; orders are only matched against
// bars newer than the order itself.
func (b *SimulatedBroker) CheckPendingOrders(now time.Time) []event.FillEvent {
	if len(b.pending) == 0 {
		return nil
	}

	var fills []event.FillEvent
	remaining := b.pending[:0]
	for _, order := range b.pending {
		if order.Expired(now) {
			b.states[order.ID] = StateExpired
			b.logger.Debug().
				Str("order_id", order.ID).
				Str("symbol", order.Symbol).
				Time("expiry", order.Expiry).
				Time("now", now).
				Msg("Limit order expired")
			continue
		}

		bar, err := feed.LatestBar(b.data, order.Symbol)
		if err != nil || !bar.Timestamp.After(order.Timestamp) {
			remaining = append(remaining, order)
			continue
		}

		price, ok := b.executionPrice(order, bar)
		if !ok {
			remaining = append(remaining, order)
			continue
		}
		fills = append(fills, b.fill(order, bar, price))
	}

	for i := len(remaining); i < len(b.pending); i++ {
		b.pending[i] = event.OrderEvent{}
	}
	b.pending = remaining
	return fills
}

// CanExecuteOrder checks if an order can be executed at the given bar
func (b *SimulatedBroker) CanExecuteOrder(order event.OrderEvent, bar feed.BarData) bool {
	_, ok := b.executionPrice(order, bar)
	return ok
}

// CalculateCommission returns the fee for trading quantity at price
func (b *SimulatedBroker) CalculateCommission(quantity int64, price float64) float64 {
	return b.commission.Calculate(quantity, price)
}

// GetCurrentOrders returns the orders still waiting for a fill
func (b *SimulatedBroker) GetCurrentOrders(ctx context.Context) ([]event.OrderEvent, error) {
	out := make([]event.OrderEvent, len(b.pending))
	copy(out, b.pending)
	return out, nil
}

// State reports the last known state of an order
func (b *SimulatedBroker) State(orderID string) (OrderState, bool) {
	state, ok := b.states[orderID]
	return state, ok
}

// PendingCount returns the number of parked orders
func (b *SimulatedBroker) PendingCount() int {
	return len(b.pending)
}

func (b *SimulatedBroker) executionPrice(order event.OrderEvent, bar feed.BarData) (float64, bool) {
	switch order.Kind {
	case event.OrderKindMarket:
		return b.marketPrice(order, bar), true

	case event.OrderKindLimit:
		if order.Direction == event.DirectionBuy {
			if bar.Low <= order.LimitPrice {
				return order.LimitPrice, true
			}
		} else {
			if bar.High >= order.LimitPrice {
				return order.LimitPrice, true
			}
		}
		return 0, false

	default:
		return 0, false
	}
}

func (b *SimulatedBroker) marketPrice(order event.OrderEvent, bar feed.BarData) float64 {
	if order.Direction == event.DirectionBuy {
		return bar.Close * (1 + b.slippage/100)
	}
	return bar.Close * (1 - b.slippage/100)
}

func (b *SimulatedBroker) fill(order event.OrderEvent, bar feed.BarData, price float64) event.FillEvent {
	commission := b.commission.Calculate(order.Quantity, price)
	fill := event.NewFillEvent(order, bar.Timestamp, price, commission)
	b.states[order.ID] = StateFilled

	b.logger.Debug().
		Str("order_id", order.ID).
		Str("symbol", order.Symbol).
		Str("kind", string(order.Kind)).
		Str("direction", string(order.Direction)).
		Int64("quantity", order.Quantity).
		Float64("price", price).
		Float64("commission", commission).
		Msg("Order filled")
	return fill
}

func (b *SimulatedBroker) park(order event.OrderEvent, reason string) {
	b.pending = append(b.pending, order)
	b.states[order.ID] = StateDeferred
	b.logger.Debug().
		Str("order_id", order.ID).
		Str("symbol", order.Symbol).
		Str("reason", reason).
		Msg("Order deferred")
}

var _ Broker = (*SimulatedBroker)(nil)
