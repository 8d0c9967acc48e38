package feed

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ridopark/eventtrader/pkg/event"
	"github.com/ridopark/eventtrader/pkg/logging"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// HistoricalFeed replays historical market data one timestamp at a time.
// Every symbol is loaded up front; a tick is one distinct timestamp across the
// whole universe, and each symbol's window grows by the bars at or before it.
type HistoricalFeed struct {
	provider  HistoricalDataProvider
	symbols   []string
	timeframe string
	startDate time.Time
	endDate   time.Time
	logger    zerolog.Logger

	// Internal state
	bars        map[string][]BarData
	visible     map[string]int
	timeline    []time.Time
	currentIdx  int
	initialized bool
}

// NewHistoricalFeed creates a new historical data feed
func NewHistoricalFeed(provider HistoricalDataProvider, symbols []string, timeframe string, start, end time.Time) *HistoricalFeed {
	syms := make([]string, len(symbols))
	copy(syms, symbols)

	return &HistoricalFeed{
		provider:  provider,
		symbols:   syms,
		timeframe: timeframe,
		startDate: start,
		endDate:   end,
		logger:    logging.GetLogger("feed"),
		bars:      make(map[string][]BarData, len(syms)),
		visible:   make(map[string]int, len(syms)),
	}
}

// Initialize loads every symbol concurrently and builds the merged timeline.
// It returns only after all loads have finished, so the first tick never sees
// a partially loaded universe.
func (hf *HistoricalFeed) Initialize(ctx context.Context) error {
	if hf.initialized {
		return nil
	}

	loaded := make([][]BarData, len(hf.symbols))
	g, gctx := errgroup.WithContext(ctx)
	for i, symbol := range hf.symbols {
		i, symbol := i, symbol
		g.Go(func() error {
			bars, err := hf.provider.GetBars(gctx, symbol, hf.timeframe, hf.startDate, hf.endDate)
			if err != nil {
				return fmt.Errorf("failed to load data for symbol %s: %w", symbol, err)
			}
			loaded[i] = bars
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	seen := make(map[time.Time]struct{})
	for i, symbol := range hf.symbols {
		bars := loaded[i]
		sort.SliceStable(bars, func(a, b int) bool {
			return bars[a].Timestamp.Before(bars[b].Timestamp)
		})
		hf.bars[symbol] = bars
		hf.visible[symbol] = 0
		for _, bar := range bars {
			seen[bar.Timestamp] = struct{}{}
		}

		hf.logger.Debug().Str("symbol", symbol).Int("bars", len(bars)).Msg("Loaded historical bars")
	}

	hf.timeline = make([]time.Time, 0, len(seen))
	for ts := range seen {
		hf.timeline = append(hf.timeline, ts)
	}
	sort.Slice(hf.timeline, func(i, j int) bool {
		return hf.timeline[i].Before(hf.timeline[j])
	})

	hf.initialized = true
	hf.logger.Info().
		Strs("symbols", hf.symbols).
		Int("ticks", len(hf.timeline)).
		Msg("Historical feed initialized")
	return nil
}

// UpdateBars advances to the next timestamp and returns its market event
func (hf *HistoricalFeed) UpdateBars() (event.MarketEvent, error) {
	if !hf.initialized {
		return event.MarketEvent{}, fmt.Errorf("historical feed not initialized")
	}
	if hf.currentIdx >= len(hf.timeline) {
		return event.MarketEvent{}, ErrEndOfData
	}

	now := hf.timeline[hf.currentIdx]
	hf.currentIdx++

	for _, symbol := range hf.symbols {
		bars := hf.bars[symbol]
		idx := hf.visible[symbol]
		for idx < len(bars) && !bars[idx].Timestamp.After(now) {
			idx++
		}
		hf.visible[symbol] = idx
	}

	return event.MarketEvent{Timestamp: now}, nil
}

// LatestBars returns up to n of the bars visible at the current tick
func (hf *HistoricalFeed) LatestBars(symbol string, n int) ([]BarData, error) {
	bars, ok := hf.bars[symbol]
	if !ok {
		return nil, fmt.Errorf("%w %s: %w", ErrUnknownSymbol, symbol, ErrNoData)
	}

	visible := hf.visible[symbol]
	if visible == 0 || n <= 0 {
		return nil, fmt.Errorf("%s: %w", symbol, ErrNoData)
	}

	start := visible - n
	if start < 0 {
		start = 0
	}

	out := make([]BarData, visible-start)
	copy(out, bars[start:visible])
	return out, nil
}

// Append adds a newly observed bar, used when the feed is driven live.
// Bars older than the symbol's last bar are ignored.
func (hf *HistoricalFeed) Append(bar BarData) bool {
	bars, ok := hf.bars[bar.Symbol]
	if !ok {
		return false
	}
	if n := len(bars); n > 0 && !bar.Timestamp.After(bars[n-1].Timestamp) {
		return false
	}
	hf.bars[bar.Symbol] = append(bars, bar)

	n := len(hf.timeline)
	switch {
	case n == 0 || bar.Timestamp.After(hf.timeline[n-1]):
		hf.timeline = append(hf.timeline, bar.Timestamp)
	case hf.currentIdx > 0 && !bar.Timestamp.After(hf.timeline[hf.currentIdx-1]):
		// late bar for a tick already replayed: expose it on the next update
	default:
		idx := sort.Search(n, func(i int) bool { return !hf.timeline[i].Before(bar.Timestamp) })
		if !hf.timeline[idx].Equal(bar.Timestamp) {
			hf.timeline = append(hf.timeline, time.Time{})
			copy(hf.timeline[idx+1:], hf.timeline[idx:])
			hf.timeline[idx] = bar.Timestamp
		}
	}
	hf.initialized = true
	return true
}

// ContinueBacktest returns true if there's more data available
func (hf *HistoricalFeed) ContinueBacktest() bool {
	if !hf.initialized {
		return true // Assume there's data until we try to initialize
	}

	return hf.currentIdx < len(hf.timeline)
}

// Symbols returns the symbols in this feed
func (hf *HistoricalFeed) Symbols() []string {
	out := make([]string, len(hf.symbols))
	copy(out, hf.symbols)
	return out
}

// Reset rewinds the feed to the beginning
func (hf *HistoricalFeed) Reset() {
	hf.currentIdx = 0
	for symbol := range hf.visible {
		hf.visible[symbol] = 0
	}
}

// Close closes the data feed (no-op for historical feed)
func (hf *HistoricalFeed) Close() error {
	return nil
}

// GetTimeframe returns the timeframe of the data
func (hf *HistoricalFeed) GetTimeframe() string {
	return hf.timeframe
}

// TotalTicks returns the number of distinct timestamps loaded
func (hf *HistoricalFeed) TotalTicks() int {
	return len(hf.timeline)
}

// Progress returns the current progress as a percentage
func (hf *HistoricalFeed) Progress() float64 {
	if len(hf.timeline) == 0 {
		return 0
	}

	return float64(hf.currentIdx) / float64(len(hf.timeline)) * 100
}

// CurrentTimestamp returns the timestamp of the current tick
func (hf *HistoricalFeed) CurrentTimestamp() (time.Time, bool) {
	if hf.currentIdx == 0 || hf.currentIdx > len(hf.timeline) {
		return time.Time{}, false
	}
	return hf.timeline[hf.currentIdx-1], true
}

// DateRange returns the actual date range of the loaded data
func (hf *HistoricalFeed) DateRange() (time.Time, time.Time) {
	if len(hf.timeline) == 0 {
		return time.Time{}, time.Time{}
	}

	return hf.timeline[0], hf.timeline[len(hf.timeline)-1]
}

var _ DataHandler = (*HistoricalFeed)(nil)
