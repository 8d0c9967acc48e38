package event

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOrderEvent(t *testing.T) {
	ts := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	t.Run("market order", func(t *testing.T) {
		order, err := NewOrderEvent(OrderParams{
			Symbol:     "AAPL",
			Quantity:   50,
			Direction:  DirectionBuy,
			TradePrice: 200,
			Timestamp:  ts,
		})
		require.NoError(t, err)
		assert.Equal(t, OrderKindMarket, order.Kind)
		assert.Equal(t, int64(50), order.Quantity)
		assert.Equal(t, 200.0, order.TradePrice)
		assert.NotEmpty(t, order.ID)
		assert.False(t, order.Expired(ts.Add(24*time.Hour)))
	})

	t.Run("rejects exit direction", func(t *testing.T) {
		_, err := NewOrderEvent(OrderParams{Symbol: "AAPL", Quantity: 1, Direction: Direction(PositionExit)})
		assert.ErrorIs(t, err, ErrInvalidDirection)
	})

	t.Run("rejects zero quantity", func(t *testing.T) {
		_, err := NewOrderEvent(OrderParams{Symbol: "AAPL", Quantity: 0, Direction: DirectionSell})
		assert.ErrorIs(t, err, ErrInvalidQuantity)
	})

	t.Run("limit requires expiry", func(t *testing.T) {
		_, err := NewOrderEvent(OrderParams{
			Symbol:     "AAPL",
			Quantity:   10,
			Direction:  DirectionBuy,
			Kind:       OrderKindLimit,
			LimitPrice: 10,
		})
		assert.ErrorIs(t, err, ErrMissingExpiry)
	})

	t.Run("limit expiry", func(t *testing.T) {
		order, err := NewOrderEvent(OrderParams{
			Symbol:     "AAPL",
			Quantity:   10,
			Direction:  DirectionBuy,
			Kind:       OrderKindLimit,
			LimitPrice: 10,
			Expiry:     ts.Add(24 * time.Hour),
			Timestamp:  ts,
		})
		require.NoError(t, err)
		assert.False(t, order.Expired(ts.Add(24*time.Hour)))
		assert.True(t, order.Expired(ts.Add(48*time.Hour)))
	})
}

func TestDirectionSign(t *testing.T) {
	assert.Equal(t, int64(1), DirectionBuy.Sign())
	assert.Equal(t, int64(-1), DirectionSell.Sign())
}

func TestFillCost(t *testing.T) {
	order, err := NewOrderEvent(OrderParams{Symbol: "MSFT", Quantity: 4, Direction: DirectionBuy})
	require.NoError(t, err)

	fill := NewFillEvent(order, time.Now(), 25.5, 1)
	assert.InDelta(t, 102.0, fill.Cost(), 1e-9)
	assert.Equal(t, order.ID, fill.Order.ID)
}

func TestEventQueueIsLIFO(t *testing.T) {
	q := NewEventQueue()
	assert.True(t, q.IsEmpty())

	q.Push(MarketEvent{})
	q.Push(SignalEvent{Symbol: "A"})
	q.Push(SignalEvent{Symbol: "B"})
	q.Push(nil)
	assert.Equal(t, 3, q.Len())

	ev, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, "B", ev.(SignalEvent).Symbol)

	ev, ok = q.Pop()
	require.True(t, ok)
	assert.Equal(t, "A", ev.(SignalEvent).Symbol)

	ev, ok = q.Pop()
	require.True(t, ok)
	assert.Equal(t, EventTypeMarket, ev.GetType())

	_, ok = q.Pop()
	assert.False(t, ok)
}

func TestEventQueueDrain(t *testing.T) {
	q := NewEventQueue()
	q.Push(MarketEvent{})
	q.Push(OptimizeEvent{})

	assert.Equal(t, 2, q.Drain())
	assert.True(t, q.IsEmpty())
	assert.Equal(t, 0, q.Drain())
}
