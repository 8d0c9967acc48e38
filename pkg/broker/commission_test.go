package broker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPercentageCommission(t *testing.T) {
	c := PercentageCommission{Rate: 0.001}
	assert.Equal(t, 10.0, c.Calculate(50, 200))
	assert.Equal(t, 0.12, c.Calculate(3, 41.37))
	assert.Zero(t, c.Calculate(0, 200))
}

func TestSteppedCommission(t *testing.T) {
	c := NewSteppedCommission()

	// minimum ticket
	assert.Equal(t, 1.30, c.Calculate(10, 100))
	// per-share below threshold
	assert.Equal(t, 3.90, c.Calculate(300, 100))
	// per-share above threshold
	assert.Equal(t, 8.00, c.Calculate(1000, 100))
	// capped at a fraction of traded value
	assert.Equal(t, 0.50, c.Calculate(100, 1))
	assert.Zero(t, c.Calculate(0, 100))
}

func TestParseCommission(t *testing.T) {
	c, err := ParseCommission("percentage", 0.002)
	require.NoError(t, err)
	assert.Equal(t, PercentageCommission{Rate: 0.002}, c)

	c, err = ParseCommission("", 0)
	require.NoError(t, err)
	assert.Equal(t, ZeroCommission{}, c)

	c, err = ParseCommission("ib", 0)
	require.NoError(t, err)
	assert.Equal(t, NewSteppedCommission(), c)

	_, err = ParseCommission("percentage", -1)
	assert.Error(t, err)
	_, err = ParseCommission("flat-fee", 1)
	assert.Error(t, err)
}
