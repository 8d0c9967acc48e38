package feed

import (
	"context"
	"errors"
	"fmt"

	"github.com/ridopark/eventtrader/pkg/logging"
	"github.com/rs/zerolog"
)

// LivePoller pulls the most recent bar of every symbol from a provider and
// appends the new ones to a feed, so a live run can replay them as ticks.
type LivePoller struct {
	provider HistoricalDataProvider
	feed     *HistoricalFeed
	logger   zerolog.Logger
}

// NewLivePoller creates a poller that extends feed from provider
func NewLivePoller(provider HistoricalDataProvider, feed *HistoricalFeed) *LivePoller {
	return &LivePoller{
		provider: provider,
		feed:     feed,
		logger:   logging.GetLogger("live_poller"),
	}
}

// Poll fetches one bar per symbol and returns how many were new. Symbols
// without data are skipped; any other provider error stops the cycle.
func (p *LivePoller) Poll(ctx context.Context) (int, error) {
	added := 0
	for _, symbol := range p.feed.Symbols() {
		bar, err := p.provider.GetLastBar(ctx, symbol, p.feed.GetTimeframe())
		if err != nil {
			if errors.Is(err, ErrNoData) {
				continue
			}
			return added, fmt.Errorf("failed to poll %s: %w", symbol, err)
		}
		if bar == nil {
			continue
		}
		if p.feed.Append(*bar) {
			added++
			p.logger.Debug().
				Str("symbol", symbol).
				Time("timestamp", bar.Timestamp).
				Float64("close", bar.Close).
				Msg("New live bar")
		}
	}
	return added, nil
}
