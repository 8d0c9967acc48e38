package data

import (
	"context"
	"fmt"
	"time"

	"github.com/ridopark/eventtrader/pkg/feed"
	"github.com/ridopark/eventtrader/pkg/logging"
	"github.com/rs/zerolog"
)

// CachingProvider serves bar ranges from a local store once they have been
// fetched from the upstream provider. The store is owned by the caller.
type CachingProvider struct {
	upstream feed.HistoricalDataProvider
	store    *SQLiteStore
	logger   zerolog.Logger
}

// NewCachingProvider wraps upstream with store
func NewCachingProvider(upstream feed.HistoricalDataProvider, store *SQLiteStore) *CachingProvider {
	return &CachingProvider{
		upstream: upstream,
		store:    store,
		logger:   logging.GetLogger("cache"),
	}
}

// GetBars reads a fully cached range from the store; anything else goes
// upstream and is written through. Open-ended ranges are never treated as
// cached.
func (c *CachingProvider) GetBars(ctx context.Context, symbol string, timeframe string, start time.Time, end time.Time) ([]feed.BarData, error) {
	bounded := !start.IsZero() && !end.IsZero()
	if bounded {
		covered, err := c.store.Covered(ctx, symbol, timeframe, start, end)
		if err != nil {
			c.logger.Warn().Err(err).Str("symbol", symbol).Msg("Cache lookup failed, going upstream")
		} else if covered {
			c.logger.Debug().Str("symbol", symbol).Str("timeframe", timeframe).Msg("Cache hit")
			return c.store.GetBars(ctx, symbol, timeframe, start, end)
		}
	}

	bars, err := c.upstream.GetBars(ctx, symbol, timeframe, start, end)
	if err != nil {
		return nil, err
	}
	c.save(ctx, withTimeframe(bars, timeframe))
	if bounded {
		if err := c.store.MarkFetched(ctx, symbol, timeframe, start, end); err != nil {
			c.logger.Warn().Err(err).Str("symbol", symbol).Msg("Failed to record cached range")
		}
	}
	return bars, nil
}

// GetLastBar always asks upstream; the result is cached
func (c *CachingProvider) GetLastBar(ctx context.Context, symbol string, timeframe string) (*feed.BarData, error) {
	bar, err := c.upstream.GetLastBar(ctx, symbol, timeframe)
	if err != nil {
		return nil, err
	}
	if bar != nil {
		c.save(ctx, withTimeframe([]feed.BarData{*bar}, timeframe))
	}
	return bar, nil
}

// GetBarsLimit always asks upstream; the result is cached
func (c *CachingProvider) GetBarsLimit(ctx context.Context, symbol string, timeframe string, limit int) ([]feed.BarData, error) {
	bars, err := c.upstream.GetBarsLimit(ctx, symbol, timeframe, limit)
	if err != nil {
		return nil, err
	}
	c.save(ctx, withTimeframe(bars, timeframe))
	return bars, nil
}

// save is best effort: a cache write failure never fails the read
func (c *CachingProvider) save(ctx context.Context, bars []feed.BarData) {
	n, err := c.store.SaveBars(ctx, bars)
	if err != nil {
		c.logger.Warn().Err(err).Int("bars", len(bars)).Msg("Failed to cache bars")
		return
	}
	if n > 0 {
		c.logger.Debug().Int("bars", n).Msg("Cached bars")
	}
}

// withTimeframe copies bars, filling a missing timeframe so they are keyed
// the way they were requested
func withTimeframe(bars []feed.BarData, timeframe string) []feed.BarData {
	out := make([]feed.BarData, len(bars))
	for i, b := range bars {
		if b.Timeframe == "" {
			b.Timeframe = timeframe
		}
		out[i] = b
	}
	return out
}

var _ feed.HistoricalDataProvider = (*CachingProvider)(nil)

func (c *CachingProvider) String() string {
	return fmt.Sprintf("cache(%T)", c.upstream)
}
