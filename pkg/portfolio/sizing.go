package portfolio

import (
	"fmt"
	"math"
	"strings"
)

// Sizer converts a signal into a target share count
type Sizer interface {
	Size(price, cash, total float64) int64
	String() string
}

// FixedSize always trades the same number of shares
type FixedSize struct {
	Shares int64
}

func (s FixedSize) Size(price, cash, total float64) int64 {
	if s.Shares < 0 {
		return 0
	}
	return s.Shares
}

func (s FixedSize) String() string { return fmt.Sprintf("fixed(%d)", s.Shares) }

// PercentOfCash spends a fraction of the available cash
type PercentOfCash struct {
	Fraction float64
}

func (s PercentOfCash) Size(price, cash, total float64) int64 {
	return floorShares(s.Fraction*cash, price)
}

func (s PercentOfCash) String() string { return fmt.Sprintf("cash(%.4f)", s.Fraction) }

// PercentOfEquity sizes against total equity, cash plus marked positions
type PercentOfEquity struct {
	Fraction float64
}

func (s PercentOfEquity) Size(price, cash, total float64) int64 {
	return floorShares(s.Fraction*total, price)
}

func (s PercentOfEquity) String() string { return fmt.Sprintf("equity(%.4f)", s.Fraction) }

func floorShares(allocation, price float64) int64 {
	if allocation <= 0 || price <= 0 {
		return 0
	}
	shares := math.Floor(allocation / price)
	if math.IsNaN(shares) || math.IsInf(shares, 0) {
		return 0
	}
	return int64(shares)
}

// ParseSizing builds a sizer from its config name.
// Fractions may be given as 0.25 or as a percentage like 25.
func ParseSizing(rule string, value float64) (Sizer, error) {
	switch strings.ToLower(strings.TrimSpace(rule)) {
	case "", "fixed":
		if value <= 0 {
			return nil, fmt.Errorf("fixed sizing requires a positive share count, got %v", value)
		}
		return FixedSize{Shares: int64(value)}, nil
	case "cash", "percent_cash", "pct_cash":
		frac, err := fraction(value)
		if err != nil {
			return nil, err
		}
		return PercentOfCash{Fraction: frac}, nil
	case "equity", "percent_equity", "pct_equity":
		frac, err := fraction(value)
		if err != nil {
			return nil, err
		}
		return PercentOfEquity{Fraction: frac}, nil
	default:
		return nil, fmt.Errorf("unknown sizing rule: %s", rule)
	}
}

func fraction(value float64) (float64, error) {
	if value > 1 {
		value /= 100
	}
	if value <= 0 || value > 1 {
		return 0, fmt.Errorf("sizing fraction must be in (0, 1], got %v", value)
	}
	return value, nil
}
