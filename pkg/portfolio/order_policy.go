package portfolio

import (
	"fmt"
	"strings"
	"time"

	"github.com/ridopark/eventtrader/pkg/event"
	"github.com/ridopark/eventtrader/pkg/logging"
	"github.com/rs/zerolog"
)

// OrderRequest carries everything a policy needs to turn a signal into an order
type OrderRequest struct {
	Signal      event.SignalEvent
	LatestPrice float64
	Position    int64
	Cash        float64
	Total       float64
	Size        int64

	// Entry orders use Kind; exits are always sent at market
	Kind       event.OrderKind
	LimitPrice float64
	Expiry     time.Time
	Timestamp  time.Time
}

// OrderPolicy decides direction and size for a signal. A nil order means
// "no order": unknown signals, flat exits and failed credit checks all end here.
type OrderPolicy interface {
	GenerateOrder(req OrderRequest) *event.OrderEvent
	Name() string
}

// CreditCheck gates every released order: buys must be covered by cash and
// sells by total equity.
func CreditCheck(direction event.Direction, quantity int64, price, cash, total float64) bool {
	notional := float64(quantity) * price
	switch direction {
	case event.DirectionBuy:
		return cash > notional
	case event.DirectionSell:
		return total > notional
	default:
		return false
	}
}

// DefaultOrder nets any opposite exposure before applying the target size
type DefaultOrder struct {
	logger zerolog.Logger
}

// NewDefaultOrder creates the default order policy
func NewDefaultOrder() *DefaultOrder {
	return &DefaultOrder{logger: logging.GetLogger("order_policy")}
}

func (p *DefaultOrder) Name() string { return "default" }

func (p *DefaultOrder) GenerateOrder(req OrderRequest) *event.OrderEvent {
	pos := req.Position

	switch req.Signal.Position {
	case event.PositionBuy:
		qty := req.Size
		if pos < 0 {
			qty += -pos
		}
		return release(p.logger, req, event.DirectionBuy, qty, false)

	case event.PositionSell:
		qty := req.Size
		if pos > 0 {
			qty += pos
		}
		return release(p.logger, req, event.DirectionSell, qty, false)

	case event.PositionExit:
		if pos > 0 {
			return release(p.logger, req, event.DirectionSell, pos, true)
		}
		if pos < 0 {
			return release(p.logger, req, event.DirectionBuy, -pos, true)
		}
		return nil

	case event.PositionExitLong:
		if pos > 0 {
			return release(p.logger, req, event.DirectionSell, pos, true)
		}
		return nil

	case event.PositionExitShort:
		if pos < 0 {
			return release(p.logger, req, event.DirectionBuy, -pos, true)
		}
		return nil

	case event.PositionReverse:
		if pos > 0 {
			return release(p.logger, req, event.DirectionSell, 2*pos, false)
		}
		if pos < 0 {
			return release(p.logger, req, event.DirectionBuy, -2*pos, false)
		}
		return nil
	}

	return nil
}

// LongOnly never opens a short: sells and exits only liquidate an existing long
type LongOnly struct {
	logger zerolog.Logger
}

// NewLongOnly creates the long-only order policy
func NewLongOnly() *LongOnly {
	return &LongOnly{logger: logging.GetLogger("order_policy")}
}

func (p *LongOnly) Name() string { return "long_only" }

func (p *LongOnly) GenerateOrder(req OrderRequest) *event.OrderEvent {
	switch req.Signal.Position {
	case event.PositionBuy:
		return release(p.logger, req, event.DirectionBuy, req.Size, false)

	case event.PositionSell, event.PositionExit, event.PositionExitLong:
		if req.Position > 0 {
			return release(p.logger, req, event.DirectionSell, req.Position, true)
		}
	}

	return nil
}

// ParseOrderPolicy builds a policy from its config name
func ParseOrderPolicy(name string) (OrderPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "default":
		return NewDefaultOrder(), nil
	case "long_only", "longonly":
		return NewLongOnly(), nil
	default:
		return nil, fmt.Errorf("unknown order policy: %s", name)
	}
}

func release(logger zerolog.Logger, req OrderRequest, direction event.Direction, qty int64, exit bool) *event.OrderEvent {
	if qty <= 0 {
		return nil
	}

	limit := !exit && req.Kind == event.OrderKindLimit
	// limit orders execute at their limit, so that is the price they are checked at
	price := req.LatestPrice
	if limit {
		price = req.LimitPrice
	}

	if !CreditCheck(direction, qty, price, req.Cash, req.Total) {
		logger.Info().
			Str("symbol", req.Signal.Symbol).
			Str("direction", string(direction)).
			Int64("quantity", qty).
			Float64("price", price).
			Float64("cash", req.Cash).
			Float64("total", req.Total).
			Msg("Order rejected by credit check")
		return nil
	}

	params := event.OrderParams{
		Symbol:     req.Signal.Symbol,
		Quantity:   qty,
		Direction:  direction,
		Kind:       event.OrderKindMarket,
		TradePrice: price,
		Timestamp:  req.Timestamp,
	}
	if limit {
		params.Kind = event.OrderKindLimit
		params.LimitPrice = req.LimitPrice
		params.Expiry = req.Expiry
	}

	order, err := event.NewOrderEvent(params)
	if err != nil {
		logger.Error().Err(err).Str("symbol", req.Signal.Symbol).Msg("Failed to build order")
		return nil
	}
	return &order
}
