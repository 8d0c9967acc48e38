package backtester

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/ridopark/eventtrader/pkg/event"
	"github.com/ridopark/eventtrader/pkg/portfolio"
)

// Results contains the results of a run
type Results struct {
	StrategyNames  []string              `json:"strategy_names"`
	StartDate      time.Time             `json:"start_date"`
	EndDate        time.Time             `json:"end_date"`
	InitialCapital float64               `json:"initial_capital"`
	FinalCapital   float64               `json:"final_capital"`
	TotalReturn    float64               `json:"total_return"` // percent
	TotalPL        float64               `json:"total_pl"`
	Positions      map[string]int64      `json:"positions"`
	Fills          []event.FillEvent     `json:"fills"`
	EquityCurve    portfolio.EquityCurve `json:"equity_curve"`
	Stats          Stats                 `json:"stats"`

	// Performance Metrics
	Metrics *PerformanceMetrics `json:"metrics"`
}

// PerformanceMetrics contains detailed performance analysis
type PerformanceMetrics struct {
	TotalTrades      int     `json:"total_trades"`
	TotalCommission  float64 `json:"total_commission"`
	SharpeRatio      float64 `json:"sharpe_ratio"`
	SortinoRatio     float64 `json:"sortino_ratio"`
	MaxDrawdown      float64 `json:"max_drawdown"`
	DrawdownDuration int     `json:"drawdown_duration"`
	CalmarRatio      float64 `json:"calmar_ratio"`
	PeriodsPerYear   float64 `json:"periods_per_year"`
}

// Results finalizes the portfolio and summarizes the run. It may only be
// called once the loop has stopped; the portfolio rejects fills afterwards.
func (e *Engine) Results() (*Results, error) {
	curve, err := e.portfolio.CreateEquityCurve()
	if err != nil {
		return nil, fmt.Errorf("failed to build equity curve: %w", err)
	}

	names := make([]string, len(e.strategies))
	for i, s := range e.strategies {
		names[i] = s.GetName()
	}

	holdings := e.portfolio.AllHoldings()
	// the opening snapshot is undated when no start date was configured
	start := holdings[0].Timestamp
	if start.IsZero() && len(holdings) > 1 {
		start = holdings[1].Timestamp
	}
	r := &Results{
		StrategyNames:  names,
		StartDate:      start,
		EndDate:        holdings[len(holdings)-1].Timestamp,
		InitialCapital: e.portfolio.InitialCapital(),
		FinalCapital:   e.portfolio.GetTotalValue(),
		TotalReturn:    e.portfolio.GetTotalReturn(),
		TotalPL:        e.portfolio.GetTotalPL(),
		Positions:      e.portfolio.GetPositions(),
		Fills:          e.portfolio.GetTrades(),
		EquityCurve:    curve,
		Stats:          e.stats,
	}
	r.CalculateMetrics(PeriodsPerYear(e.cfg.Timeframe))
	return r, nil
}

// CalculateMetrics derives risk metrics from the equity curve
func (r *Results) CalculateMetrics(periodsPerYear float64) {
	r.Metrics = &PerformanceMetrics{
		TotalTrades:    len(r.Fills),
		PeriodsPerYear: periodsPerYear,
	}
	for _, fill := range r.Fills {
		r.Metrics.TotalCommission += fill.Commission
	}

	if len(r.EquityCurve) == 0 {
		return
	}

	returns := r.EquityCurve.Returns()
	r.Metrics.SharpeRatio = calculateSharpeRatio(returns, periodsPerYear)
	r.Metrics.SortinoRatio = calculateSortinoRatio(returns, periodsPerYear)
	r.Metrics.MaxDrawdown, r.Metrics.DrawdownDuration = calculateDrawdowns(r.EquityCurve)

	// Calmar Ratio (Annual Return / Max Drawdown)
	if r.Metrics.MaxDrawdown > 0 && periodsPerYear > 0 {
		last, _ := r.EquityCurve.Last()
		years := float64(len(r.EquityCurve)) / periodsPerYear
		if years > 0 && last.EquityCurve > 0 {
			annual := math.Pow(last.EquityCurve, 1/years) - 1
			r.Metrics.CalmarRatio = annual / r.Metrics.MaxDrawdown
		}
	}
}

// PeriodsPerYear maps a bar timeframe to the number of bars in a trading
// year, used to annualise ratios. Unknown timeframes are treated as daily.
func PeriodsPerYear(timeframe string) float64 {
	const days = 252
	switch strings.ToLower(timeframe) {
	case "1m", "1min":
		return days * 6.5 * 60
	case "5m", "5min":
		return days * 6.5 * 12
	case "15m", "15min":
		return days * 6.5 * 4
	case "30m", "30min":
		return days * 13
	case "1h", "60m", "1hour":
		return days * 6.5
	case "1w", "1wk", "1week":
		return 52
	case "1mo", "1month":
		return 12
	default:
		return days
	}
}

// calculateSharpeRatio returns the annualised Sharpe ratio, risk-free rate 0
func calculateSharpeRatio(returns []float64, periodsPerYear float64) float64 {
	if len(returns) <= 1 {
		return 0
	}

	mean := meanOf(returns)
	sumSquares := 0.0
	for _, ret := range returns {
		diff := ret - mean
		sumSquares += diff * diff
	}

	stdDev := math.Sqrt(sumSquares / float64(len(returns)-1))
	if stdDev <= 0 {
		return 0
	}
	return math.Sqrt(periodsPerYear) * mean / stdDev
}

// calculateSortinoRatio is the Sharpe ratio with downside deviation only
func calculateSortinoRatio(returns []float64, periodsPerYear float64) float64 {
	if len(returns) == 0 {
		return 0
	}

	sumDownside := 0.0
	for _, ret := range returns {
		if ret < 0 {
			sumDownside += ret * ret
		}
	}
	downside := math.Sqrt(sumDownside / float64(len(returns)))
	if downside <= 0 {
		return 0 // No downside
	}
	return math.Sqrt(periodsPerYear) * meanOf(returns) / downside
}

// calculateDrawdowns returns the deepest drawdown of the equity curve as a
// fraction of its high-water mark, and the longest run of rows spent below
// a previous high.
func calculateDrawdowns(curve portfolio.EquityCurve) (float64, int) {
	highWater := 1.0
	maxDD, duration, longest := 0.0, 0, 0
	for _, row := range curve {
		if row.EquityCurve >= highWater {
			highWater = row.EquityCurve
			duration = 0
			continue
		}

		duration++
		if duration > longest {
			longest = duration
		}
		if dd := 1 - row.EquityCurve/highWater; dd > maxDD {
			maxDD = dd
		}
	}
	return maxDD, longest
}

func meanOf(values []float64) float64 {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// Summary returns a human-readable summary of the results
func (r *Results) Summary() string {
	if r.Metrics == nil {
		r.CalculateMetrics(PeriodsPerYear(""))
	}
	start := r.StartDate
	if start.IsZero() && len(r.EquityCurve) > 0 {
		start = r.EquityCurve[0].Timestamp
	}

	return fmt.Sprintf(`
Backtest Results for %s
=======================
Period: %s to %s
Initial Capital: $%.2f
Final Capital: $%.2f
Total Return: %.2f%%
Total P&L: $%.2f

Activity:
- Ticks: %d
- Signals: %d
- Orders: %d
- Fills: %d
- Commission: $%.2f
- Abandoned Events: %d

Risk Metrics:
- Sharpe Ratio: %.2f
- Sortino Ratio: %.2f
- Calmar Ratio: %.2f
- Max Drawdown: %.2f%%
- Drawdown Duration: %d periods
`,
		strings.Join(r.StrategyNames, ", "),
		start.Format("2006-01-02"),
		r.EndDate.Format("2006-01-02"),
		r.InitialCapital,
		r.FinalCapital,
		r.TotalReturn,
		r.TotalPL,
		r.Stats.Ticks,
		r.Stats.Signals,
		r.Stats.Orders,
		r.Stats.Fills,
		r.Metrics.TotalCommission,
		r.Stats.Errors,
		r.Metrics.SharpeRatio,
		r.Metrics.SortinoRatio,
		r.Metrics.CalmarRatio,
		r.Metrics.MaxDrawdown*100,
		r.Metrics.DrawdownDuration,
	)
}
