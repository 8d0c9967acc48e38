package backtester

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ridopark/eventtrader/pkg/broker"
	"github.com/ridopark/eventtrader/pkg/event"
	"github.com/ridopark/eventtrader/pkg/feed"
	"github.com/ridopark/eventtrader/pkg/logging"
	"github.com/ridopark/eventtrader/pkg/portfolio"
	"github.com/ridopark/eventtrader/pkg/strategy"
	"github.com/rs/zerolog"
)

// Poller extends the data handler with newly observed bars between live
// polling cycles.
type Poller interface {
	Poll(ctx context.Context) (int, error)
}

// Stats counts what the engine processed during a run
type Stats struct {
	Ticks         int `json:"ticks"`
	Signals       int `json:"signals"`
	Orders        int `json:"orders"`
	Fills         int `json:"fills"`
	Optimizations int `json:"optimizations"`
	Errors        int `json:"errors"`
	Discarded     int `json:"discarded"`
	PollCycles    int `json:"poll_cycles"`
}

// Engine coordinates the event loop. Every event of a tick is processed
// before the next tick is pulled, one event at a time.
type Engine struct {
	cfg        Config
	data       feed.DataHandler
	strategies []strategy.Strategy
	portfolio  *portfolio.Portfolio
	broker     broker.Broker
	poller     Poller
	events     *event.EventQueue
	stats      Stats
	logger     zerolog.Logger
}

// Option customizes an Engine
type Option func(*Engine)

// WithPoller sets the source of new bars for live mode
func WithPoller(p Poller) Option {
	return func(e *Engine) { e.poller = p }
}

// NewEngine creates a new engine. All collaborators are required; an invalid
// mode fails here rather than at run time.
func NewEngine(cfg Config, data feed.DataHandler, strategies []strategy.Strategy, pf *portfolio.Portfolio, b broker.Broker, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if data == nil || pf == nil || b == nil {
		return nil, fmt.Errorf("engine requires a data handler, a portfolio and a broker")
	}
	if len(strategies) == 0 {
		return nil, fmt.Errorf("engine requires at least one strategy")
	}

	e := &Engine{
		cfg:        cfg,
		data:       data,
		strategies: strategies,
		portfolio:  pf,
		broker:     b,
		events:     event.NewEventQueue(),
		logger:     logging.GetLogger("engine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Start runs the loop that matches the configured mode
func (e *Engine) Start(ctx context.Context) error {
	if e.cfg.Mode == ModeLive {
		return e.RunLive(ctx)
	}
	return e.Run(ctx)
}

// Run replays the data handler until it is exhausted or ctx is cancelled
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info().
		Strs("symbols", e.data.Symbols()).
		Int("strategies", len(e.strategies)).
		Msg("Starting backtest execution")
	defer e.discard()

	for e.data.ContinueBacktest() {
		if err := ctx.Err(); err != nil {
			e.logger.Warn().Err(err).Int("ticks", e.stats.Ticks).Msg("Backtest cancelled")
			return err
		}

		done, err := e.step()
		if err != nil {
			return err
		}
		if done {
			break
		}
	}

	e.logger.Info().
		Int("ticks", e.stats.Ticks).
		Int("fills", e.stats.Fills).
		Int("errors", e.stats.Errors).
		Msg("Backtest execution completed")
	return nil
}

// RunLive processes every available tick, reconciles with the broker and
// sleeps for the heartbeat, until ctx is done. Cancellation is the normal
// way out and is not reported as an error.
func (e *Engine) RunLive(ctx context.Context) error {
	e.logger.Info().
		Strs("symbols", e.data.Symbols()).
		Dur("heartbeat", e.cfg.Heartbeat).
		Msg("Starting live trading loop")
	defer e.discard()

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info().Int("ticks", e.stats.Ticks).Int("cycles", e.stats.PollCycles).Msg("Live trading loop stopped")
			return nil
		case <-timer.C:
		}

		e.stats.PollCycles++
		if e.poller != nil {
			if _, err := e.poller.Poll(ctx); err != nil {
				e.stats.Errors++
				e.logger.Error().Err(err).Msg("Failed to poll market data")
			}
		}

		for ctx.Err() == nil && e.data.ContinueBacktest() {
			done, err := e.step()
			if err != nil {
				return err
			}
			if done {
				break
			}
		}

		e.reconcile(ctx)
		timer.Reset(e.cfg.Heartbeat)
	}
}

// Stats returns the counters collected so far
func (e *Engine) Stats() Stats {
	return e.stats
}

// step pulls one tick and drains it. done reports an exhausted data handler.
func (e *Engine) step() (bool, error) {
	market, err := e.data.UpdateBars()
	if err != nil {
		if errors.Is(err, feed.ErrEndOfData) {
			return true, nil
		}
		return false, fmt.Errorf("error reading market data: %w", err)
	}

	e.stats.Ticks++
	if e.cfg.OptimizeEvery > 0 && e.stats.Ticks%e.cfg.OptimizeEvery == 0 {
		// Pushed first so it is handled after the tick has settled
		e.events.Push(event.OptimizeEvent{Timestamp: market.Timestamp})
	}
	e.events.Push(market)
	e.drain()
	return false, nil
}

// drain processes events until the queue is empty. A failing event is
// logged and abandoned; the rest of the tick still runs.
func (e *Engine) drain() {
	for {
		ev, ok := e.events.Pop()
		if !ok {
			return
		}
		if err := e.handle(ev); err != nil {
			e.stats.Errors++
			e.logger.Error().
				Err(err).
				Str("event", string(ev.GetType())).
				Time("timestamp", ev.GetTimestamp()).
				Msg("Event abandoned")
		}
	}
}

func (e *Engine) handle(ev event.Event) error {
	switch ev := ev.(type) {
	case event.MarketEvent:
		return e.onMarket(ev)
	case event.SignalEvent:
		return e.onSignal(ev)
	case event.OrderEvent:
		return e.onOrder(ev)
	case event.FillEvent:
		return e.onFill(ev)
	case event.OptimizeEvent:
		return e.onOptimize(ev)
	default:
		return fmt.Errorf("unhandled event type %T", ev)
	}
}

// onMarket marks the portfolio and queues the tick's work. The queue is
// LIFO, so pending fills are handled first, then rebalance exits, then the
// strategies' signals.
func (e *Engine) onMarket(market event.MarketEvent) error {
	rebalance, err := e.portfolio.UpdateTimeIndex(market)
	if err != nil {
		return fmt.Errorf("failed to update time index: %w", err)
	}

	var signals []event.SignalEvent
	for _, s := range e.strategies {
		out, err := s.CalculateSignals(market)
		if err != nil {
			e.stats.Errors++
			e.logger.Error().Err(err).Str("strategy", s.GetName()).Msg("Strategy error on market event")
			continue
		}
		signals = append(signals, out...)
	}

	pushReversed(e.events, signals)
	pushReversed(e.events, rebalance)
	pushReversed(e.events, e.broker.CheckPendingOrders(market.Timestamp))
	return nil
}

func (e *Engine) onSignal(signal event.SignalEvent) error {
	e.stats.Signals++
	order, err := e.portfolio.UpdateSignal(signal)
	if err != nil {
		return fmt.Errorf("failed to process signal for %s: %w", signal.Symbol, err)
	}
	if order != nil {
		e.events.Push(*order)
	}
	return nil
}

func (e *Engine) onOrder(order event.OrderEvent) error {
	e.stats.Orders++
	fill, err := e.broker.ExecuteOrder(order)
	if err != nil {
		return fmt.Errorf("order execution failed: %w", err)
	}
	if fill != nil {
		e.events.Push(*fill)
	}
	return nil
}

func (e *Engine) onFill(fill event.FillEvent) error {
	if err := e.portfolio.UpdateFill(fill); err != nil {
		return fmt.Errorf("failed to apply fill %s: %w", fill.ID, err)
	}
	e.stats.Fills++
	return nil
}

func (e *Engine) onOptimize(ev event.OptimizeEvent) error {
	var errs []error
	for _, s := range e.strategies {
		opt, ok := s.(strategy.Optimizer)
		if !ok {
			continue
		}
		if err := opt.Optimize(ev); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.GetName(), err))
		}
	}
	e.stats.Optimizations++
	return errors.Join(errs...)
}

// reconcile compares broker-side positions with the portfolio. It only
// reads and logs; the portfolio changes through fills alone.
func (e *Engine) reconcile(ctx context.Context) {
	live, ok := e.broker.(broker.LiveBroker)
	if !ok {
		return
	}

	orders, err := live.GetCurrentOrders(ctx)
	if err != nil {
		e.logger.Error().Err(err).Msg("Failed to fetch broker orders")
		return
	}
	positions, err := live.GetPositions(ctx)
	if err != nil {
		e.logger.Error().Err(err).Msg("Failed to fetch broker positions")
		return
	}

	mismatches := 0
	for _, symbol := range e.data.Symbols() {
		local, remote := e.portfolio.GetPosition(symbol), positions[symbol]
		if local != remote {
			mismatches++
			e.logger.Warn().
				Str("symbol", symbol).
				Int64("portfolio", local).
				Int64("broker", remote).
				Msg("Position mismatch")
		}
	}

	e.logger.Debug().
		Int("open_orders", len(orders)).
		Int("mismatches", mismatches).
		Msg("Broker reconciled")
}

// discard drops whatever is left in the queue on exit
func (e *Engine) discard() {
	if n := e.events.Drain(); n > 0 {
		e.stats.Discarded += n
		e.logger.Warn().Int("events", n).Msg("Discarded queued events on exit")
	}
}

// pushReversed queues events so they are popped in their original order
func pushReversed[T event.Event](q *event.EventQueue, events []T) {
	for i := len(events) - 1; i >= 0; i-- {
		q.Push(events[i])
	}
}
