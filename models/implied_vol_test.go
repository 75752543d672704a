package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImpliedVolatilityRoundTrip(t *testing.T) {
	cases := []struct {
		name                 string
		optType              OptionType
		S, K, T, sigma, r, q float64
	}{
		{"atm call", Call, 100, 100, 1, 0.2, 0.05, 0},
		{"otm call", Call, 100, 120, 0.5, 0.35, 0.03, 0.01},
		{"itm call", Call, 100, 80, 0.25, 0.45, 0.05, 0},
		{"atm put", Put, 100, 100, 1, 0.2, 0.05, 0},
		{"otm put", Put, 100, 80, 0.5, 0.3, 0.04, 0.02},
		{"short dated", Call, 264.58, 265, 14.0 / 365, 0.30, 0.05, 0},
		{"high vol", Put, 50, 55, 2, 1.2, 0.01, 0},
		{"low vol", Call, 100, 100, 1, 0.05, 0.02, 0},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			price := BSPrice(c.optType, c.S, c.K, c.T, c.sigma, c.r, c.q)
			iv, err := ImpliedVolatility(c.optType, price, c.S, c.K, c.T, c.r, c.q)
			require.NoError(t, err)
			assert.InDelta(t, c.sigma, iv, 1e-5)
		})
	}
}

func TestImpliedVolatilityBelowIntrinsic(t *testing.T) {
	// Deep ITM call quoted below its intrinsic floor
	_, err := ImpliedVolatility(Call, 15, 120, 100, 0.5, 0.05, 0)
	assert.ErrorIs(t, err, ErrNoSolution)
}

func TestImpliedVolatilityAboveUpperBound(t *testing.T) {
	// A call can never be worth more than the discounted spot
	_, err := ImpliedVolatility(Call, 105, 100, 100, 1, 0.05, 0)
	assert.ErrorIs(t, err, ErrNoSolution)
}

func TestImpliedVolatilityExpired(t *testing.T) {
	_, err := ImpliedVolatility(Call, 5, 100, 100, 0, 0.05, 0)
	assert.ErrorIs(t, err, ErrNoSolution)
}

func TestImpliedVolatilityPutParityConversion(t *testing.T) {
	// The same market, quoted through either side, must invert to the
	// same vol.
	S, K, T, sigma, r, q := 100.0, 95.0, 0.5, 0.4, 0.05, 0.01
	callPrice := BSPrice(Call, S, K, T, sigma, r, q)
	putPrice := BSPrice(Put, S, K, T, sigma, r, q)

	ivCall, err := ImpliedVolatility(Call, callPrice, S, K, T, r, q)
	require.NoError(t, err)
	ivPut, err := ImpliedVolatility(Put, putPrice, S, K, T, r, q)
	require.NoError(t, err)

	assert.InDelta(t, ivCall, ivPut, 1e-6)
}

func TestImpliedVolatilityExtremeVol(t *testing.T) {
	// sigma=3.0 is far from the 0.3 Newton seed but inside the bounded
	// domain.
	sigma := 3.0
	price := BSPrice(Call, 100, 100, 0.25, sigma, 0.05, 0)
	iv, err := ImpliedVolatility(Call, price, 100, 100, 0.25, 0.05, 0)
	require.NoError(t, err)
	assert.InDelta(t, sigma, iv, 1e-4)
}
