package config

import (
	"fmt"
	"strings"

	"github.com/ridopark/eventtrader/pkg/broker"
	"github.com/ridopark/eventtrader/pkg/event"
	"github.com/ridopark/eventtrader/pkg/portfolio"
)

// Validate checks every section; the first failure is returned wrapped in
// ErrInvalidConfig.
func (c *Config) Validate() error {
	if len(c.Symbols) == 0 {
		return fmt.Errorf("%w: symbols must not be empty", ErrInvalidConfig)
	}
	if c.InitialCapital <= 0 {
		return fmt.Errorf("%w: initial_capital must be positive, got %v", ErrInvalidConfig, c.InitialCapital)
	}
	if strings.TrimSpace(c.Timeframe) == "" {
		return fmt.Errorf("%w: timeframe must not be empty", ErrInvalidConfig)
	}
	if err := c.Engine().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if strings.TrimSpace(c.Strategy.Name) == "" {
		return fmt.Errorf("%w: strategy.name must not be empty", ErrInvalidConfig)
	}
	if err := c.Portfolio.validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := c.Broker.validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := c.Data.validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

func (p PortfolioConfig) validate() error {
	if _, err := portfolio.ParseOrderPolicy(p.Policy); err != nil {
		return fmt.Errorf("portfolio.policy: %w", err)
	}
	if _, err := portfolio.ParseSizing(p.Sizing, p.SizingValue); err != nil {
		return fmt.Errorf("portfolio.sizing: %w", err)
	}
	if _, err := portfolio.ParseRebalance(p.Rebalance); err != nil {
		return fmt.Errorf("portfolio.rebalance: %w", err)
	}
	switch event.OrderKind(p.OrderKind) {
	case event.OrderKindMarket:
	case event.OrderKindLimit:
		if p.LimitExpiry <= 0 {
			return fmt.Errorf("portfolio.limit_expiry must be positive for limit orders")
		}
	default:
		return fmt.Errorf("portfolio.order_kind must be MARKET or LIMIT, got %q", p.OrderKind)
	}
	return nil
}

func (b BrokerConfig) validate() error {
	if _, err := broker.ParseCommission(b.Commission, b.CommissionRate); err != nil {
		return fmt.Errorf("broker.commission: %w", err)
	}
	if b.Slippage < 0 {
		return fmt.Errorf("broker.slippage must not be negative, got %v", b.Slippage)
	}
	return nil
}

func (d DataConfig) validate() error {
	switch d.Source {
	case "timescaledb", "postgres":
		if d.Postgres.DSN == "" && d.Postgres.Host == "" {
			return fmt.Errorf("data.postgres needs a dsn or a host")
		}
	case "csv":
		if strings.TrimSpace(d.CSVDir) == "" {
			return fmt.Errorf("data.csv_dir must be set for the csv source")
		}
	default:
		return fmt.Errorf("data.source must be timescaledb or csv, got %q", d.Source)
	}
	return nil
}
