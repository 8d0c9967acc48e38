package portfolio

import (
	"errors"
	"time"
)

// ErrNoHoldings is returned when an equity curve is requested before any
// snapshot exists. Unlike data gaps it is not recoverable.
var ErrNoHoldings = errors.New("no holdings snapshots recorded")

// EquityRow is one tick of the equity curve
type EquityRow struct {
	Timestamp        time.Time
	Total            float64
	Cash             float64
	Commission       float64
	Returns          float64
	LiquidityReturns float64
	EquityCurve      float64
	LiquidityCurve   float64
}

// EquityCurve is derived once from the holdings history and never mutated
type EquityCurve []EquityRow

// BuildEquityCurve turns holdings snapshots into cumulative return series.
// The first row has no previous value and is dropped, as is any row whose
// total return is undefined. An undefined cash change counts as flat.
func BuildEquityCurve(holdings []Holdings) (EquityCurve, error) {
	if len(holdings) == 0 {
		return nil, ErrNoHoldings
	}

	curve := make(EquityCurve, 0, len(holdings)-1)
	equity, liquidity := 1.0, 1.0
	for i := 1; i < len(holdings); i++ {
		prev, cur := holdings[i-1], holdings[i]

		ret, ok := pctChange(prev.Total, cur.Total)
		if !ok {
			continue
		}
		liq, ok := pctChange(prev.Cash, cur.Cash)
		if !ok {
			liq = 0
		}

		equity *= 1 + ret
		liquidity *= 1 + liq
		curve = append(curve, EquityRow{
			Timestamp:        cur.Timestamp,
			Total:            cur.Total,
			Cash:             cur.Cash,
			Commission:       cur.Commission,
			Returns:          ret,
			LiquidityReturns: liq,
			EquityCurve:      equity,
			LiquidityCurve:   liquidity,
		})
	}
	return curve, nil
}

func pctChange(prev, cur float64) (float64, bool) {
	if prev == 0 {
		return 0, false
	}
	return cur/prev - 1, true
}

// Returns extracts the per-row total returns
func (c EquityCurve) Returns() []float64 {
	out := make([]float64, len(c))
	for i, row := range c {
		out[i] = row.Returns
	}
	return out
}

// Last returns the final row
func (c EquityCurve) Last() (EquityRow, bool) {
	if len(c) == 0 {
		return EquityRow{}, false
	}
	return c[len(c)-1], true
}
