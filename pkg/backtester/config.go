package backtester

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidMode is returned for any mode other than backtest or live
var ErrInvalidMode = errors.New("invalid engine mode")

// Mode selects how the engine is driven
type Mode string

const (
	ModeBacktest Mode = "backtest"
	ModeLive     Mode = "live"
)

// ParseMode converts a config string to a Mode
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeBacktest:
		return ModeBacktest, nil
	case ModeLive:
		return ModeLive, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
}

// Config is the run-wide configuration handed to the engine. It is built
// once per run and never mutated afterwards.
type Config struct {
	Mode           Mode
	Symbols        []string
	StartDate      time.Time
	EndDate        time.Time
	InitialCapital float64
	Timeframe      string

	// OptimizeEvery emits an optimize event every N ticks; 0 disables it
	OptimizeEvery int

	// Heartbeat is the sleep between live polling cycles
	Heartbeat time.Duration
}

// Validate checks the fields the engine relies on
func (c Config) Validate() error {
	if _, err := ParseMode(string(c.Mode)); err != nil {
		return err
	}
	if c.OptimizeEvery < 0 {
		return fmt.Errorf("optimize_every must not be negative, got %d", c.OptimizeEvery)
	}
	if c.Mode == ModeLive && c.Heartbeat <= 0 {
		return fmt.Errorf("live mode requires a positive heartbeat")
	}
	if !c.StartDate.IsZero() && !c.EndDate.IsZero() && c.EndDate.Before(c.StartDate) {
		return fmt.Errorf("end date %s is before start date %s",
			c.EndDate.Format("2006-01-02"), c.StartDate.Format("2006-01-02"))
	}
	return nil
}
