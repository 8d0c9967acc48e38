package portfolio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func holdingsSeries(totals, cash []float64) []Holdings {
	out := make([]Holdings, len(totals))
	for i := range totals {
		out[i] = Holdings{
			Timestamp:   t0.AddDate(0, 0, i),
			Cash:        cash[i],
			Total:       totals[i],
			MarketValue: map[string]float64{"AAPL": totals[i] - cash[i]},
		}
	}
	return out
}

func TestBuildEquityCurve(t *testing.T) {
	h := holdingsSeries(
		[]float64{100, 110, 99, 121},
		[]float64{100, 50, 50, 0},
	)

	curve, err := BuildEquityCurve(h)
	require.NoError(t, err)
	require.Len(t, curve, 3, "first row has no previous value and is dropped")

	assert.Equal(t, h[1].Timestamp, curve[0].Timestamp)
	assert.InDelta(t, 0.10, curve[0].Returns, 1e-12)
	assert.InDelta(t, 1.10, curve[0].EquityCurve, 1e-12)
	assert.InDelta(t, 0.99, curve[1].EquityCurve, 1e-12)
	assert.InDelta(t, 1.21, curve[2].EquityCurve, 1e-12)

	assert.InDelta(t, 0.5, curve[0].LiquidityCurve, 1e-12)
	assert.InDelta(t, 0.0, curve[2].LiquidityCurve, 1e-12)
	assert.Equal(t, []float64{curve[0].Returns, curve[1].Returns, curve[2].Returns}, curve.Returns())
}

func TestBuildEquityCurveIsIdempotent(t *testing.T) {
	h := holdingsSeries([]float64{100, 101, 102.5, 98}, []float64{100, 20, 20, 20})

	a, err := BuildEquityCurve(h)
	require.NoError(t, err)
	b, err := BuildEquityCurve(h)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestBuildEquityCurveUndefinedRows(t *testing.T) {
	h := holdingsSeries([]float64{100, 0, 50}, []float64{0, 0, 0})

	curve, err := BuildEquityCurve(h)
	require.NoError(t, err)
	require.Len(t, curve, 1, "row after a zero total has no defined return")
	assert.InDelta(t, -1.0, curve[0].Returns, 1e-12)
	assert.Zero(t, curve[0].LiquidityReturns)
}

func TestBuildEquityCurveWithoutHoldings(t *testing.T) {
	_, err := BuildEquityCurve(nil)
	assert.ErrorIs(t, err, ErrNoHoldings)

	var empty EquityCurve
	_, ok := empty.Last()
	assert.False(t, ok)
}

func TestSizing(t *testing.T) {
	assert.Equal(t, int64(50), FixedSize{Shares: 50}.Size(200, 0, 0))
	assert.Equal(t, int64(0), FixedSize{Shares: -5}.Size(200, 0, 0))
	assert.Equal(t, int64(49), PercentOfCash{Fraction: 0.1}.Size(200, 99000, 1e9))
	assert.Equal(t, int64(100), PercentOfEquity{Fraction: 0.2}.Size(200, 0, 100000))
	assert.Equal(t, int64(0), PercentOfEquity{Fraction: 0.2}.Size(0, 0, 100000))

	s, err := ParseSizing("cash", 25)
	require.NoError(t, err)
	assert.Equal(t, PercentOfCash{Fraction: 0.25}, s)

	s, err = ParseSizing("fixed", 50)
	require.NoError(t, err)
	assert.Equal(t, FixedSize{Shares: 50}, s)

	_, err = ParseSizing("equity", 0)
	assert.Error(t, err)
	_, err = ParseSizing("kelly", 1)
	assert.Error(t, err)
}
