package feed

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryProvider serves bars held in memory. It backs tests and lets callers
// replay data they already fetched elsewhere.
type MemoryProvider struct {
	mu   sync.RWMutex
	bars map[string][]BarData
}

// NewMemoryProvider creates an empty in-memory provider
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{bars: make(map[string][]BarData)}
}

// Add stores bars, keeping each symbol sorted by timestamp
func (p *MemoryProvider) Add(bars ...BarData) {
	p.mu.Lock()
	defer p.mu.Unlock()

	touched := make(map[string]struct{})
	for _, bar := range bars {
		p.bars[bar.Symbol] = append(p.bars[bar.Symbol], bar)
		touched[bar.Symbol] = struct{}{}
	}
	for symbol := range touched {
		series := p.bars[symbol]
		sort.SliceStable(series, func(i, j int) bool {
			return series[i].Timestamp.Before(series[j].Timestamp)
		})
	}
}

// GetBars returns the bars in [start, end]; a zero bound is open
func (p *MemoryProvider) GetBars(ctx context.Context, symbol string, timeframe string, start time.Time, end time.Time) ([]BarData, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	var out []BarData
	for _, bar := range p.bars[symbol] {
		if timeframe != "" && bar.Timeframe != "" && bar.Timeframe != timeframe {
			continue
		}
		if !start.IsZero() && bar.Timestamp.Before(start) {
			continue
		}
		if !end.IsZero() && bar.Timestamp.After(end) {
			continue
		}
		out = append(out, bar)
	}
	return out, nil
}

// GetLastBar gets the most recent bar for a symbol
func (p *MemoryProvider) GetLastBar(ctx context.Context, symbol string, timeframe string) (*BarData, error) {
	bars, err := p.GetBarsLimit(ctx, symbol, timeframe, 1)
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("symbol %s timeframe %s: %w", symbol, timeframe, ErrNoData)
	}
	return &bars[0], nil
}

// GetBarsLimit gets the last N bars for a symbol, oldest first
func (p *MemoryProvider) GetBarsLimit(ctx context.Context, symbol string, timeframe string, limit int) ([]BarData, error) {
	bars, err := p.GetBars(ctx, symbol, timeframe, time.Time{}, time.Time{})
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(bars) > limit {
		bars = bars[len(bars)-limit:]
	}
	return bars, nil
}

var _ HistoricalDataProvider = (*MemoryProvider)(nil)
