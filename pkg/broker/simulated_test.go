package broker

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/ridopark/eventtrader/pkg/event"
	"github.com/ridopark/eventtrader/pkg/feed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var tick = time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)

type stubData struct {
	latest map[string]feed.BarData
}

func newStubData() *stubData {
	return &stubData{latest: make(map[string]feed.BarData)}
}

func (s *stubData) set(symbol string, day int, low, high, close float64) {
	s.latest[symbol] = feed.BarData{
		Symbol:    symbol,
		Timestamp: tick.AddDate(0, 0, day),
		Open:      close,
		High:      high,
		Low:       low,
		Close:     close,
	}
}

func (s *stubData) LatestBars(symbol string, n int) ([]feed.BarData, error) {
	bar, ok := s.latest[symbol]
	if !ok {
		return nil, fmt.Errorf("%s: %w", symbol, feed.ErrNoData)
	}
	return []feed.BarData{bar}, nil
}

func (s *stubData) UpdateBars() (event.MarketEvent, error) { return event.MarketEvent{}, nil }
func (s *stubData) ContinueBacktest() bool                 { return true }
func (s *stubData) Symbols() []string                      { return []string{"AAPL"} }

func marketOrder(t *testing.T, direction event.Direction, qty int64, day int) event.OrderEvent {
	t.Helper()
	order, err := event.NewOrderEvent(event.OrderParams{
		Symbol:    "AAPL",
		Quantity:  qty,
		Direction: direction,
		Timestamp: tick.AddDate(0, 0, day),
	})
	require.NoError(t, err)
	return order
}

func limitOrder(t *testing.T, direction event.Direction, limit float64, day, expiryDays int) event.OrderEvent {
	t.Helper()
	order, err := event.NewOrderEvent(event.OrderParams{
		Symbol:     "AAPL",
		Quantity:   100,
		Direction:  direction,
		Kind:       event.OrderKindLimit,
		LimitPrice: limit,
		Expiry:     tick.AddDate(0, 0, day+expiryDays),
		Timestamp:  tick.AddDate(0, 0, day),
	})
	require.NoError(t, err)
	return order
}

func TestMarketOrderFillsAtLatestClose(t *testing.T) {
	data := newStubData()
	data.set("AAPL", 0, 195, 205, 200)
	b := NewSimulatedBroker(data, PercentageCommission{Rate: 0.001}, 0)

	order := marketOrder(t, event.DirectionBuy, 50, 0)
	fill, err := b.ExecuteOrder(order)
	require.NoError(t, err)
	require.NotNil(t, fill)

	assert.Equal(t, 200.0, fill.Price)
	assert.Equal(t, 10.0, fill.Commission)
	assert.Equal(t, order, fill.Order)
	state, ok := b.State(order.ID)
	require.True(t, ok)
	assert.Equal(t, StateFilled, state)
}

func TestMarketOrderSlippage(t *testing.T) {
	data := newStubData()
	data.set("AAPL", 0, 95, 105, 100)
	b := NewSimulatedBroker(data, nil, 1)

	buy, err := b.ExecuteOrder(marketOrder(t, event.DirectionBuy, 1, 0))
	require.NoError(t, err)
	assert.InDelta(t, 101.0, buy.Price, 1e-9)

	sell, err := b.ExecuteOrder(marketOrder(t, event.DirectionSell, 1, 0))
	require.NoError(t, err)
	assert.InDelta(t, 99.0, sell.Price, 1e-9)
	assert.Zero(t, sell.Commission)
}

func TestMarketOrderWithoutDataIsDeferred(t *testing.T) {
	data := newStubData()
	b := NewSimulatedBroker(data, nil, 0)

	order := marketOrder(t, event.DirectionBuy, 10, 0)
	fill, err := b.ExecuteOrder(order)
	require.NoError(t, err)
	assert.Nil(t, fill)
	assert.Equal(t, 1, b.PendingCount())

	assert.Empty(t, b.CheckPendingOrders(tick))

	data.set("AAPL", 1, 9, 11, 10)
	fills := b.CheckPendingOrders(tick.AddDate(0, 0, 1))
	require.Len(t, fills, 1)
	assert.Equal(t, 10.0, fills[0].Price)
	assert.Equal(t, order.ID, fills[0].Order.ID)
	assert.Zero(t, b.PendingCount())
}

func TestLimitBuyDeferredThenFilled(t *testing.T) {
	data := newStubData()
	data.set("AAPL", 0, 10.5, 11, 10.8)
	b := NewSimulatedBroker(data, nil, 0)

	order := limitOrder(t, event.DirectionBuy, 10.00, 0, 5)
	fill, err := b.ExecuteOrder(order)
	require.NoError(t, err)
	assert.Nil(t, fill)

	assert.Empty(t, b.CheckPendingOrders(tick), "submission bar is never matched")

	data.set("AAPL", 1, 10.5, 11, 10.7)
	assert.Empty(t, b.CheckPendingOrders(tick.AddDate(0, 0, 1)))
	state, _ := b.State(order.ID)
	assert.Equal(t, StateDeferred, state)

	data.set("AAPL", 2, 9.8, 10.6, 10.1)
	fills := b.CheckPendingOrders(tick.AddDate(0, 0, 2))
	require.Len(t, fills, 1)
	assert.Equal(t, 10.00, fills[0].Price)
	state, _ = b.State(order.ID)
	assert.Equal(t, StateFilled, state)
	assert.Zero(t, b.PendingCount())
}

func TestLimitSellFillsWhenHighCrosses(t *testing.T) {
	data := newStubData()
	b := NewSimulatedBroker(data, nil, 0)
	b.SubmitLimitOrder(limitOrder(t, event.DirectionSell, 50, 0, 5))

	data.set("AAPL", 1, 45, 49.9, 49)
	assert.Empty(t, b.CheckPendingOrders(tick.AddDate(0, 0, 1)))

	data.set("AAPL", 2, 47, 50.2, 50)
	fills := b.CheckPendingOrders(tick.AddDate(0, 0, 2))
	require.Len(t, fills, 1)
	assert.Equal(t, 50.0, fills[0].Price)
}

func TestLimitOrderExpires(t *testing.T) {
	data := newStubData()
	b := NewSimulatedBroker(data, nil, 0)
	order := limitOrder(t, event.DirectionBuy, 10, 0, 1)
	b.SubmitLimitOrder(order)

	data.set("AAPL", 1, 10.5, 11, 10.8)
	assert.Empty(t, b.CheckPendingOrders(tick.AddDate(0, 0, 1)))
	assert.Equal(t, 1, b.PendingCount())

	// price crosses, but the order is already past expiry
	data.set("AAPL", 2, 9, 11, 9.5)
	assert.Empty(t, b.CheckPendingOrders(tick.AddDate(0, 0, 2)))
	assert.Zero(t, b.PendingCount())
	state, _ := b.State(order.ID)
	assert.Equal(t, StateExpired, state)
}

func TestLimitOrderWaitsOutTicksWithoutData(t *testing.T) {
	data := newStubData()
	b := NewSimulatedBroker(data, nil, 0)
	order := limitOrder(t, event.DirectionBuy, 10, 0, 5)
	b.SubmitLimitOrder(order)

	// no bar for the symbol at all
	assert.Empty(t, b.CheckPendingOrders(tick.AddDate(0, 0, 1)))
	assert.Equal(t, 1, b.PendingCount())
	state, ok := b.State(order.ID)
	require.True(t, ok)
	assert.Equal(t, StateDeferred, state)

	data.set("AAPL", 3, 9.5, 10.5, 10)
	fills := b.CheckPendingOrders(tick.AddDate(0, 0, 3))
	require.Len(t, fills, 1)
	assert.Equal(t, 10.0, fills[0].Price)
}

func TestGetCurrentOrders(t *testing.T) {
	b := NewSimulatedBroker(newStubData(), nil, 0)
	order := limitOrder(t, event.DirectionBuy, 10, 0, 1)
	b.SubmitLimitOrder(order)

	orders, err := b.GetCurrentOrders(context.Background())
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, order.ID, orders[0].ID)
}

func TestCanExecuteOrder(t *testing.T) {
	b := NewSimulatedBroker(newStubData(), nil, 0)
	buy := limitOrder(t, event.DirectionBuy, 10, 0, 1)
	assert.True(t, b.CanExecuteOrder(buy, feed.BarData{Low: 9.99, High: 11}))
	assert.False(t, b.CanExecuteOrder(buy, feed.BarData{Low: 10.01, High: 11}))
	assert.True(t, b.CanExecuteOrder(marketOrder(t, event.DirectionSell, 1, 0), feed.BarData{Close: 1}))
}
