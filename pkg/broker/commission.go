package broker

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// CommissionModel prices a single execution
type CommissionModel interface {
	Calculate(quantity int64, price float64) float64
}

// ZeroCommission charges nothing
type ZeroCommission struct{}

func (ZeroCommission) Calculate(int64, float64) float64 { return 0 }

// PercentageCommission charges a fraction of the traded value
type PercentageCommission struct {
	Rate float64
}

func (c PercentageCommission) Calculate(quantity int64, price float64) float64 {
	if quantity <= 0 || price <= 0 || c.Rate <= 0 {
		return 0
	}
	value := decimal.NewFromInt(quantity).Mul(decimal.NewFromFloat(price))
	return toCents(value.Mul(decimal.NewFromFloat(c.Rate)))
}

// SteppedCommission is a per-share schedule with a minimum ticket and a cap
// at a fraction of the traded value, the way US retail brokers price fills.
type SteppedCommission struct {
	Minimum    float64
	Threshold  int64
	SmallRate  float64 // per share up to Threshold
	LargeRate  float64 // per share above Threshold
	MaxPercent float64
}

// NewSteppedCommission returns the default tiered schedule
func NewSteppedCommission() SteppedCommission {
	return SteppedCommission{
		Minimum:    1.30,
		Threshold:  500,
		SmallRate:  0.013,
		LargeRate:  0.008,
		MaxPercent: 0.005,
	}
}

func (c SteppedCommission) Calculate(quantity int64, price float64) float64 {
	if quantity <= 0 {
		return 0
	}

	qty := decimal.NewFromInt(quantity)
	rate := c.SmallRate
	if quantity > c.Threshold {
		rate = c.LargeRate
	}

	cost := decimal.Max(decimal.NewFromFloat(c.Minimum), qty.Mul(decimal.NewFromFloat(rate)))
	if c.MaxPercent > 0 && price > 0 {
		capped := qty.Mul(decimal.NewFromFloat(price)).Mul(decimal.NewFromFloat(c.MaxPercent))
		cost = decimal.Min(cost, capped)
	}
	return toCents(cost)
}

// ParseCommission builds a commission model from its config name
func ParseCommission(kind string, rate float64) (CommissionModel, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", "none", "zero":
		return ZeroCommission{}, nil
	case "percentage", "percent":
		if rate < 0 {
			return nil, fmt.Errorf("commission rate must not be negative, got %v", rate)
		}
		return PercentageCommission{Rate: rate}, nil
	case "stepped", "ib", "tiered":
		return NewSteppedCommission(), nil
	default:
		return nil, fmt.Errorf("unknown commission type: %s", kind)
	}
}

func toCents(d decimal.Decimal) float64 {
	f, _ := d.Round(2).Float64()
	return f
}
