package broker

import (
	"context"
	"time"

	"github.com/ridopark/eventtrader/pkg/event"
)

// OrderState tracks an order through the execution handler
type OrderState string

const (
	StateSubmitted OrderState = "SUBMITTED"
	StateFilled    OrderState = "FILLED"
	StateDeferred  OrderState = "DEFERRED"
	StateExpired   OrderState = "EXPIRED"
)

// Broker consumes orders and produces fills. Orders are treated as immutable
// inputs; every filled order yields exactly one fill.
type Broker interface {
	// ExecuteOrder fills a market order immediately when data allows.
	// A nil fill means the order was deferred.
	ExecuteOrder(order event.OrderEvent) (*event.FillEvent, error)

	// SubmitLimitOrder parks a limit order until it fills or expires
	SubmitLimitOrder(order event.OrderEvent)

	// CheckPendingOrders re-evaluates deferred orders at a new tick
	CheckPendingOrders(now time.Time) []event.FillEvent

	// CalculateCommission returns the fee for trading quantity at price
	CalculateCommission(quantity int64, price float64) float64
}

// LiveBroker is a brokerage-backed broker. The extra methods are read-only
// and used for reconciliation outside the portfolio's write path.
type LiveBroker interface {
	Broker
	GetCurrentOrders(ctx context.Context) ([]event.OrderEvent, error)
	GetPositions(ctx context.Context) (map[string]int64, error)
}
