package data

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ridopark/eventtrader/pkg/feed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day0 = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

func bar(symbol string, day int, close float64) feed.BarData {
	return feed.BarData{
		Symbol:    symbol,
		Timestamp: day0.AddDate(0, 0, day),
		Open:      close,
		High:      close + 1,
		Low:       close - 1,
		Close:     close,
		Volume:    1000,
		Timeframe: "1d",
	}
}

func newStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	n, err := store.SaveBars(ctx, []feed.BarData{bar("AAPL", 1, 101), bar("AAPL", 0, 100), bar("AAPL", 2, 102)})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// upsert replaces the existing row
	_, err = store.SaveBars(ctx, []feed.BarData{bar("AAPL", 2, 105)})
	require.NoError(t, err)
	count, err := store.Count(ctx, "AAPL", "1d")
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	bars, err := store.GetBars(ctx, "AAPL", "1d", day0.AddDate(0, 0, 1), day0.AddDate(0, 0, 2))
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, 101.0, bars[0].Close)
	assert.Equal(t, 105.0, bars[1].Close)
	assert.True(t, bars[0].Timestamp.Equal(day0.AddDate(0, 0, 1)))

	all, err := store.GetBars(ctx, "AAPL", "1d", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	last, err := store.GetLastBar(ctx, "AAPL", "1d")
	require.NoError(t, err)
	assert.Equal(t, 105.0, last.Close)

	tail, err := store.GetBarsLimit(ctx, "AAPL", "1d", 2)
	require.NoError(t, err)
	require.Len(t, tail, 2)
	assert.Equal(t, 101.0, tail[0].Close)

	_, err = store.GetLastBar(ctx, "MSFT", "1d")
	assert.ErrorIs(t, err, feed.ErrNoData)
}

func TestSQLiteStoreCoverage(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	start, end := day0, day0.AddDate(0, 0, 10)
	require.NoError(t, store.MarkFetched(ctx, "AAPL", "1d", start, end))

	covered, err := store.Covered(ctx, "AAPL", "1d", day0.AddDate(0, 0, 2), day0.AddDate(0, 0, 5))
	require.NoError(t, err)
	assert.True(t, covered)

	covered, err = store.Covered(ctx, "AAPL", "1d", day0.AddDate(0, 0, 2), day0.AddDate(0, 0, 11))
	require.NoError(t, err)
	assert.False(t, covered)

	covered, err = store.Covered(ctx, "AAPL", "1h", start, end)
	require.NoError(t, err)
	assert.False(t, covered)
}

func TestNewSQLiteStoreRejectsEmptyDSN(t *testing.T) {
	_, err := NewSQLiteStore(context.Background(), " ")
	assert.Error(t, err)
}

type countingProvider struct {
	*feed.MemoryProvider
	calls int
	err   error
}

func (p *countingProvider) GetBars(ctx context.Context, symbol string, timeframe string, start time.Time, end time.Time) ([]feed.BarData, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return p.MemoryProvider.GetBars(ctx, symbol, timeframe, start, end)
}

func TestCachingProviderServesRepeatRangesFromStore(t *testing.T) {
	ctx := context.Background()
	upstream := &countingProvider{MemoryProvider: feed.NewMemoryProvider()}
	upstream.Add(bar("AAPL", 0, 100), bar("AAPL", 1, 101), bar("AAPL", 2, 102))
	cache := NewCachingProvider(upstream, newStore(t))

	start, end := day0, day0.AddDate(0, 0, 2)
	first, err := cache.GetBars(ctx, "AAPL", "1d", start, end)
	require.NoError(t, err)
	require.Len(t, first, 3)
	assert.Equal(t, 1, upstream.calls)

	upstream.err = errors.New("upstream down")
	second, err := cache.GetBars(ctx, "AAPL", "1d", day0.AddDate(0, 0, 1), end)
	require.NoError(t, err)
	assert.Equal(t, 1, upstream.calls)
	require.Len(t, second, 2)
	assert.Equal(t, 101.0, second[0].Close)

	_, err = cache.GetBars(ctx, "AAPL", "1d", start, day0.AddDate(0, 0, 5))
	assert.Error(t, err, "uncovered range must go upstream")
	assert.Equal(t, 2, upstream.calls)
}

func TestCachingProviderOpenRangeAlwaysGoesUpstream(t *testing.T) {
	ctx := context.Background()
	upstream := &countingProvider{MemoryProvider: feed.NewMemoryProvider()}
	upstream.Add(bar("AAPL", 0, 100))
	store := newStore(t)
	cache := NewCachingProvider(upstream, store)

	for i := 0; i < 2; i++ {
		_, err := cache.GetBars(ctx, "AAPL", "1d", time.Time{}, time.Time{})
		require.NoError(t, err)
	}
	assert.Equal(t, 2, upstream.calls)

	n, err := store.Count(ctx, "AAPL", "1d")
	require.NoError(t, err)
	assert.Equal(t, 1, n, "bars are still written through")
}

func TestCachingProviderLastBarWritesThrough(t *testing.T) {
	ctx := context.Background()
	upstream := &countingProvider{MemoryProvider: feed.NewMemoryProvider()}
	upstream.Add(bar("AAPL", 0, 100), bar("AAPL", 1, 101))
	store := newStore(t)
	cache := NewCachingProvider(upstream, store)

	last, err := cache.GetLastBar(ctx, "AAPL", "1d")
	require.NoError(t, err)
	assert.Equal(t, 101.0, last.Close)

	stored, err := store.GetLastBar(ctx, "AAPL", "1d")
	require.NoError(t, err)
	assert.Equal(t, 101.0, stored.Close)

	bars, err := cache.GetBarsLimit(ctx, "AAPL", "1d", 5)
	require.NoError(t, err)
	assert.Len(t, bars, 2)

	_, err = cache.GetLastBar(ctx, "MSFT", "1d")
	assert.ErrorIs(t, err, feed.ErrNoData)
}

func writeCSV(t *testing.T, dir, symbol, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, symbol+".csv"), []byte(content), 0o644))
}

func TestCSVProvider(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writeCSV(t, dir, "AAPL", "timestamp,open,high,low,close,volume\n"+
		"2024-01-04,102,103,101,102.5,900\n"+
		"2024-01-02,100,101,99,100.5,1000\n"+
		"2024-01-03T00:00:00Z,101,102,100,101.5,1100\n")

	provider, err := NewCSVProvider(dir)
	require.NoError(t, err)

	bars, err := provider.GetBars(ctx, "AAPL", "1d", day0.AddDate(0, 0, 1), time.Time{})
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, 101.5, bars[0].Close)
	assert.Equal(t, "AAPL", bars[0].Symbol)
	assert.Equal(t, "1d", bars[0].Timeframe)

	last, err := provider.GetLastBar(ctx, "AAPL", "1d")
	require.NoError(t, err)
	assert.Equal(t, 102.5, last.Close)

	tail, err := provider.GetBarsLimit(ctx, "AAPL", "1d", 2)
	require.NoError(t, err)
	require.Len(t, tail, 2)
	assert.True(t, tail[0].Timestamp.Equal(day0.AddDate(0, 0, 1)))

	_, err = provider.GetBars(ctx, "MSFT", "1d", time.Time{}, time.Time{})
	assert.ErrorIs(t, err, feed.ErrNoData)
}

func TestReadBarsCSV(t *testing.T) {
	bars, err := ReadBarsCSV(strings.NewReader("Close,Timestamp,Open,High,Low\n10,1704153600,9,11,8\n"), "X", "1d")
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.Equal(t, 10.0, bars[0].Close)
	assert.Zero(t, bars[0].Volume)
	assert.True(t, bars[0].Timestamp.Equal(day0))

	_, err = ReadBarsCSV(strings.NewReader("timestamp,open,high,low\n"), "X", "1d")
	assert.ErrorContains(t, err, "close")

	_, err = ReadBarsCSV(strings.NewReader("timestamp,open,high,low,close\nyesterday,1,1,1,1\n"), "X", "1d")
	assert.ErrorContains(t, err, "line 2")

	bars, err = ReadBarsCSV(strings.NewReader(""), "X", "1d")
	require.NoError(t, err)
	assert.Empty(t, bars)
}

func TestNewCSVProviderRequiresDirectory(t *testing.T) {
	_, err := NewCSVProvider(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

type fakeRow []any

func (r fakeRow) Scan(dest ...any) error {
	if len(dest) != len(r) {
		return errors.New("column count mismatch")
	}
	for i, v := range r {
		switch d := dest[i].(type) {
		case *string:
			*d = v.(string)
		case *time.Time:
			*d = v.(time.Time)
		case *float64:
			*d = v.(float64)
		}
	}
	return nil
}

func TestScanBarAndReverse(t *testing.T) {
	var b feed.BarData
	require.NoError(t, scanBar(fakeRow{"AAPL", day0, 1.0, 2.0, 0.5, 1.5, 100.0, "1d"}, &b))
	assert.Equal(t, bar("AAPL", 0, 1.5).Symbol, b.Symbol)
	assert.Equal(t, 2.0, b.High)
	assert.Equal(t, "1d", b.Timeframe)

	bars := []feed.BarData{bar("A", 2, 3), bar("A", 1, 2), bar("A", 0, 1)}
	reverse(bars)
	assert.Equal(t, []float64{1, 2, 3}, feed.Closes(bars))
}
