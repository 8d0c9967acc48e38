package data

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ridopark/eventtrader/pkg/feed"
	"github.com/ridopark/eventtrader/pkg/logging"
	"github.com/rs/zerolog"
)

var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// CSVProvider reads bars from <dir>/<SYMBOL>.csv with the header
// timestamp,open,high,low,close,volume. Files are loaded once and kept in
// memory.
type CSVProvider struct {
	dir    string
	logger zerolog.Logger

	mu     sync.Mutex
	loaded map[string][]feed.BarData
}

// NewCSVProvider creates a provider over dir
func NewCSVProvider(dir string) (*CSVProvider, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("csv data dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("csv data dir %s is not a directory", dir)
	}
	return &CSVProvider{
		dir:    dir,
		logger: logging.GetLogger("csv_provider"),
		loaded: make(map[string][]feed.BarData),
	}, nil
}

// GetBars returns bars in [start, end]; a zero bound is open
func (p *CSVProvider) GetBars(_ context.Context, symbol string, timeframe string, start time.Time, end time.Time) ([]feed.BarData, error) {
	all, err := p.bars(symbol, timeframe)
	if err != nil {
		return nil, err
	}
	out := make([]feed.BarData, 0, len(all))
	for _, b := range all {
		if !start.IsZero() && b.Timestamp.Before(start) {
			continue
		}
		if !end.IsZero() && b.Timestamp.After(end) {
			break
		}
		out = append(out, b)
	}
	return out, nil
}

// GetLastBar returns the final row of the file
func (p *CSVProvider) GetLastBar(_ context.Context, symbol string, timeframe string) (*feed.BarData, error) {
	all, err := p.bars(symbol, timeframe)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, fmt.Errorf("symbol %s timeframe %s: %w", symbol, timeframe, feed.ErrNoData)
	}
	bar := all[len(all)-1]
	return &bar, nil
}

// GetBarsLimit returns the last limit rows, oldest first
func (p *CSVProvider) GetBarsLimit(_ context.Context, symbol string, timeframe string, limit int) ([]feed.BarData, error) {
	all, err := p.bars(symbol, timeframe)
	if err != nil {
		return nil, err
	}
	if limit < len(all) {
		all = all[len(all)-limit:]
	}
	out := make([]feed.BarData, len(all))
	copy(out, all)
	return out, nil
}

func (p *CSVProvider) bars(symbol, timeframe string) ([]feed.BarData, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if bars, ok := p.loaded[symbol]; ok {
		return bars, nil
	}

	path := filepath.Join(p.dir, symbol+".csv")
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("symbol %s: %w", symbol, feed.ErrNoData)
		}
		return nil, err
	}
	defer f.Close()

	bars, err := ReadBarsCSV(f, symbol, timeframe)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	p.loaded[symbol] = bars
	p.logger.Debug().Str("symbol", symbol).Int("bars", len(bars)).Msg("Loaded csv")
	return bars, nil
}

// ReadBarsCSV parses timestamp,open,high,low,close,volume rows. Columns are
// matched by header name, case-insensitively; volume is optional. Rows are
// returned sorted by time.
func ReadBarsCSV(r io.Reader, symbol, timeframe string) ([]feed.BarData, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, required := range []string{"timestamp", "open", "high", "low", "close"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("missing column %q", required)
		}
	}

	var bars []feed.BarData
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		ts, err := parseTimestamp(record[cols["timestamp"]])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		bar := feed.BarData{Symbol: symbol, Timeframe: timeframe, Timestamp: ts}
		fields := []struct {
			name string
			dst  *float64
		}{
			{"open", &bar.Open},
			{"high", &bar.High},
			{"low", &bar.Low},
			{"close", &bar.Close},
			{"volume", &bar.Volume},
		}
		for _, fld := range fields {
			idx, ok := cols[fld.name]
			if !ok {
				continue
			}
			v, err := strconv.ParseFloat(strings.TrimSpace(record[idx]), 64)
			if err != nil {
				return nil, fmt.Errorf("line %d %s: %w", line, fld.name, err)
			}
			*fld.dst = v
		}
		bars = append(bars, bar)
	}

	sort.SliceStable(bars, func(i, j int) bool {
		return bars[i].Timestamp.Before(bars[j].Timestamp)
	})
	return bars, nil
}

func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

var _ feed.HistoricalDataProvider = (*CSVProvider)(nil)
