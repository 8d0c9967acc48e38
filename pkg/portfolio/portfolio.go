package portfolio

import (
	"errors"
	"fmt"
	"time"

	"github.com/ridopark/eventtrader/pkg/event"
	"github.com/ridopark/eventtrader/pkg/feed"
	"github.com/ridopark/eventtrader/pkg/logging"
	"github.com/rs/zerolog"
)

var (
	ErrPortfolioClosed = errors.New("portfolio is finalized")
	ErrInvalidConfig   = errors.New("invalid portfolio config")
)

// LimitOrderSink receives limit orders so they can rest and expire
// independently of the event queue
type LimitOrderSink interface {
	SubmitLimitOrder(order event.OrderEvent)
}

// Config holds the portfolio's construction parameters
type Config struct {
	InitialCapital float64
	StartDate      time.Time
	Sizing         Sizer
	OrderKind      event.OrderKind
	LimitExpiry    time.Duration
}

// Portfolio owns positions, cash and the holdings history. Positions change
// only through UpdateFill.
type Portfolio struct {
	cfg       Config
	data      feed.DataHandler
	symbols   []string
	policy    OrderPolicy
	rebalance Rebalance
	limitSink LimitOrderSink
	logger    zerolog.Logger

	positions    map[string]int64
	current      Holdings
	allHoldings  []Holdings
	allPositions []PositionSnapshot
	lastClose    map[string]float64
	lastTrades   map[string]Trade
	reserved     map[string]event.OrderEvent
	fills        []event.FillEvent
	closed       bool
}

// NewPortfolio creates a portfolio with every symbol flat and all capital in cash
func NewPortfolio(cfg Config, data feed.DataHandler, policy OrderPolicy, rebalance Rebalance, limitSink LimitOrderSink) (*Portfolio, error) {
	if data == nil {
		return nil, fmt.Errorf("%w: data handler is required", ErrInvalidConfig)
	}
	if cfg.InitialCapital <= 0 {
		return nil, fmt.Errorf("%w: initial capital must be positive, got %v", ErrInvalidConfig, cfg.InitialCapital)
	}
	if cfg.Sizing == nil {
		cfg.Sizing = FixedSize{Shares: 100}
	}
	if cfg.OrderKind == "" {
		cfg.OrderKind = event.OrderKindMarket
	}
	switch cfg.OrderKind {
	case event.OrderKindMarket:
	case event.OrderKindLimit:
		if cfg.LimitExpiry <= 0 {
			return nil, fmt.Errorf("%w: limit orders need a positive expiry", ErrInvalidConfig)
		}
		if limitSink == nil {
			return nil, fmt.Errorf("%w: limit orders need a pending-order sink", ErrInvalidConfig)
		}
	default:
		return nil, fmt.Errorf("%w: unknown order kind %q", ErrInvalidConfig, cfg.OrderKind)
	}
	if policy == nil {
		policy = NewDefaultOrder()
	}
	if rebalance == nil {
		rebalance = NoRebalance{}
	}

	symbols := data.Symbols()
	positions := make(map[string]int64, len(symbols))
	mv := make(map[string]float64, len(symbols))
	for _, symbol := range symbols {
		positions[symbol] = 0
		mv[symbol] = 0
	}

	initial := Holdings{
		Timestamp:   cfg.StartDate,
		Cash:        cfg.InitialCapital,
		MarketValue: mv,
		Total:       cfg.InitialCapital,
	}

	p := &Portfolio{
		cfg:        cfg,
		data:       data,
		symbols:    symbols,
		policy:     policy,
		rebalance:  rebalance,
		limitSink:  limitSink,
		logger:     logging.GetLogger("portfolio"),
		positions:  positions,
		current:    initial.Clone(),
		lastClose:  make(map[string]float64, len(symbols)),
		lastTrades: make(map[string]Trade, len(symbols)),
		reserved:   make(map[string]event.OrderEvent),
	}
	p.allHoldings = append(p.allHoldings, initial)
	p.allPositions = append(p.allPositions, PositionSnapshot{Timestamp: cfg.StartDate, Positions: p.copyPositions()})
	return p, nil
}

// UpdateTimeIndex marks every position at its latest close, appends a
// holdings snapshot and runs the rebalance hook. It must run once per market
// event. The returned rebalance signals are not queued here; the engine queues
// them so they are handled before the tick's strategy signals.
func (p *Portfolio) UpdateTimeIndex(market event.MarketEvent) ([]event.SignalEvent, error) {
	if p.closed {
		return nil, ErrPortfolioClosed
	}

	for _, symbol := range p.symbols {
		price, err := feed.LatestClose(p.data, symbol)
		if err != nil {
			if errors.Is(err, feed.ErrNoData) {
				p.logger.Debug().Str("symbol", symbol).Msg("No bar for symbol, keeping previous mark")
				continue
			}
			return nil, fmt.Errorf("failed to mark %s: %w", symbol, err)
		}
		p.lastClose[symbol] = price
	}

	p.releaseExpired(market.Timestamp)

	previous := p.allHoldings[len(p.allHoldings)-1].Timestamp
	p.current.Timestamp = market.Timestamp
	p.remark()

	snapshot := p.current.Clone()
	p.allHoldings = append(p.allHoldings, snapshot)
	p.allPositions = append(p.allPositions, PositionSnapshot{Timestamp: market.Timestamp, Positions: p.copyPositions()})

	var signals []event.SignalEvent
	view := p.view(previous)
	if p.rebalance.NeedRebalance(view) {
		signals = p.rebalance.Rebalance(p.Symbols(), view)
		if len(signals) > 0 {
			p.logger.Info().
				Str("policy", p.rebalance.Name()).
				Int("signals", len(signals)).
				Time("timestamp", market.Timestamp).
				Msg("Rebalance triggered")
		}
	}

	p.current.Commission = 0
	return signals, nil
}

// UpdateSignal turns a signal into an order. Market orders are returned for
// the event queue; limit orders go to the pending-order sink and the call
// returns nil. A signal for a symbol without data is skipped for this tick.
func (p *Portfolio) UpdateSignal(signal event.SignalEvent) (*event.OrderEvent, error) {
	if p.closed {
		return nil, ErrPortfolioClosed
	}
	if _, ok := p.positions[signal.Symbol]; !ok {
		return nil, fmt.Errorf("signal for symbol outside the universe: %s", signal.Symbol)
	}

	price, err := feed.LatestClose(p.data, signal.Symbol)
	if err != nil {
		if errors.Is(err, feed.ErrNoData) {
			p.logger.Warn().Str("symbol", signal.Symbol).Str("position", string(signal.Position)).Msg("Skipping signal, no price available")
			return nil, nil
		}
		return nil, fmt.Errorf("failed to price signal for %s: %w", signal.Symbol, err)
	}
	p.lastClose[signal.Symbol] = price

	// resting limit orders hold on to the cash and equity they may consume
	buys, all := p.reservedNotional()
	cash := p.current.Cash - buys
	total := p.markedTotal() - all

	req := OrderRequest{
		Signal:      signal,
		LatestPrice: price,
		Position:    p.positions[signal.Symbol],
		Cash:        cash,
		Total:       total,
		Size:        p.cfg.Sizing.Size(price, cash, total),
		Kind:        p.cfg.OrderKind,
		Timestamp:   p.current.Timestamp,
	}
	if p.cfg.OrderKind == event.OrderKindLimit {
		req.LimitPrice = signal.ReferencePrice
		if req.LimitPrice <= 0 {
			req.LimitPrice = price
		}
		req.Expiry = p.current.Timestamp.Add(p.cfg.LimitExpiry)
	}

	order := p.policy.GenerateOrder(req)
	if order == nil {
		return nil, nil
	}

	p.logger.Debug().
		Str("order_id", order.ID).
		Str("symbol", order.Symbol).
		Str("direction", string(order.Direction)).
		Str("kind", string(order.Kind)).
		Int64("quantity", order.Quantity).
		Float64("trade_price", order.TradePrice).
		Msg("Order generated")

	if order.IsLimit() {
		p.reserved[order.ID] = *order
		p.limitSink.SubmitLimitOrder(*order)
		return nil, nil
	}
	return order, nil
}

// UpdateFill applies an execution to positions and cash. Each fill must
// correspond to exactly one order; duplicates are not detected.
func (p *Portfolio) UpdateFill(fill event.FillEvent) error {
	if p.closed {
		return ErrPortfolioClosed
	}

	order := fill.Order
	if _, ok := p.positions[order.Symbol]; !ok {
		return fmt.Errorf("fill for symbol outside the universe: %s", order.Symbol)
	}
	if !order.Direction.Valid() {
		return fmt.Errorf("%w: fill %s", event.ErrInvalidDirection, fill.ID)
	}

	delete(p.reserved, order.ID)

	sign := order.Direction.Sign()
	p.positions[order.Symbol] += sign * order.Quantity
	p.current.Cash -= float64(sign)*fill.Cost() + fill.Commission
	p.current.Commission += fill.Commission

	if _, ok := p.lastClose[order.Symbol]; !ok {
		p.lastClose[order.Symbol] = fill.Price
	}
	p.remark()

	p.lastTrades[order.Symbol] = Trade{
		Price:     fill.Price,
		Timestamp: fill.Timestamp,
		Direction: order.Direction,
		Quantity:  order.Quantity,
	}
	p.fills = append(p.fills, fill)

	p.logger.Info().
		Str("symbol", order.Symbol).
		Str("direction", string(order.Direction)).
		Int64("quantity", order.Quantity).
		Float64("price", fill.Price).
		Float64("commission", fill.Commission).
		Int64("position", p.positions[order.Symbol]).
		Float64("cash", p.current.Cash).
		Msg("Fill applied")
	return nil
}

// CreateEquityCurve finalizes the portfolio and derives the equity curve.
// No fill or tick is accepted afterwards.
func (p *Portfolio) CreateEquityCurve() (EquityCurve, error) {
	p.closed = true
	return BuildEquityCurve(p.AllHoldings())
}

// Closed reports whether the equity curve has been built
func (p *Portfolio) Closed() bool {
	return p.closed
}

// GetCash returns the current cash balance
func (p *Portfolio) GetCash() float64 {
	return p.current.Cash
}

// GetPosition returns the signed quantity held for symbol
func (p *Portfolio) GetPosition(symbol string) int64 {
	return p.positions[symbol]
}

// GetPositions returns a copy of all positions
func (p *Portfolio) GetPositions() map[string]int64 {
	return p.copyPositions()
}

// GetTrades returns all fills applied so far
func (p *Portfolio) GetTrades() []event.FillEvent {
	out := make([]event.FillEvent, len(p.fills))
	copy(out, p.fills)
	return out
}

// GetTotalValue returns cash plus positions at their latest marks
func (p *Portfolio) GetTotalValue() float64 {
	return p.markedTotal()
}

// GetTotalPL returns the total profit/loss
func (p *Portfolio) GetTotalPL() float64 {
	return p.markedTotal() - p.cfg.InitialCapital
}

// GetTotalReturn returns the total return as a percentage
func (p *Portfolio) GetTotalReturn() float64 {
	return (p.markedTotal() - p.cfg.InitialCapital) / p.cfg.InitialCapital * 100
}

// InitialCapital returns the starting cash
func (p *Portfolio) InitialCapital() float64 {
	return p.cfg.InitialCapital
}

// CurrentHoldings returns a copy of the live holdings record
func (p *Portfolio) CurrentHoldings() Holdings {
	return p.current.Clone()
}

// AllHoldings returns a copy of the snapshot history
func (p *Portfolio) AllHoldings() []Holdings {
	out := make([]Holdings, len(p.allHoldings))
	for i, h := range p.allHoldings {
		out[i] = h.Clone()
	}
	return out
}

// AllPositions returns a copy of the per-tick position history
func (p *Portfolio) AllPositions() []PositionSnapshot {
	out := make([]PositionSnapshot, len(p.allPositions))
	for i, snap := range p.allPositions {
		positions := make(map[string]int64, len(snap.Positions))
		for symbol, qty := range snap.Positions {
			positions[symbol] = qty
		}
		out[i] = PositionSnapshot{Timestamp: snap.Timestamp, Positions: positions}
	}
	return out
}

// Reserved returns the notional held by resting limit orders: buys only,
// and buys plus sells
func (p *Portfolio) Reserved() (float64, float64) {
	return p.reservedNotional()
}

// LastTrade returns the last execution for symbol
func (p *Portfolio) LastTrade(symbol string) (Trade, bool) {
	trade, ok := p.lastTrades[symbol]
	return trade, ok
}

// Symbols returns the traded universe
func (p *Portfolio) Symbols() []string {
	out := make([]string, len(p.symbols))
	copy(out, p.symbols)
	return out
}

// View returns a read-only snapshot of the current state
func (p *Portfolio) View() View {
	previous := time.Time{}
	if n := len(p.allHoldings); n > 1 {
		previous = p.allHoldings[n-2].Timestamp
	}
	return p.view(previous)
}

func (p *Portfolio) view(previous time.Time) View {
	closes := make(map[string]float64, len(p.lastClose))
	for symbol, price := range p.lastClose {
		closes[symbol] = price
	}
	trades := make(map[string]Trade, len(p.lastTrades))
	for symbol, trade := range p.lastTrades {
		trades[symbol] = trade
	}
	return View{
		Timestamp:         p.current.Timestamp,
		PreviousTimestamp: previous,
		Holdings:          p.current.Clone(),
		Positions:         p.copyPositions(),
		LatestClose:       closes,
		LastTrades:        trades,
	}
}

func (p *Portfolio) reservedNotional() (buys, all float64) {
	for _, order := range p.reserved {
		notional := float64(order.Quantity) * order.LimitPrice
		if order.Direction == event.DirectionBuy {
			buys += notional
		}
		all += notional
	}
	return buys, all
}

// releaseExpired drops reservations of limit orders the broker expires at now
func (p *Portfolio) releaseExpired(now time.Time) {
	for id, order := range p.reserved {
		if order.Expired(now) {
			delete(p.reserved, id)
			p.logger.Debug().Str("order_id", id).Str("symbol", order.Symbol).Msg("Released expired limit reservation")
		}
	}
}

// remark revalues every position at its last known close
func (p *Portfolio) remark() {
	total := p.current.Cash
	for _, symbol := range p.symbols {
		value := float64(p.positions[symbol]) * p.lastClose[symbol]
		p.current.MarketValue[symbol] = value
		total += value
	}
	p.current.Total = total
}

func (p *Portfolio) markedTotal() float64 {
	total := p.current.Cash
	for _, symbol := range p.symbols {
		total += float64(p.positions[symbol]) * p.lastClose[symbol]
	}
	return total
}

func (p *Portfolio) copyPositions() map[string]int64 {
	out := make(map[string]int64, len(p.positions))
	for symbol, qty := range p.positions {
		out[symbol] = qty
	}
	return out
}
