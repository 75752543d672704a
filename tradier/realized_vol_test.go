package tradier

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func flatBars(n int, price float64) []DailyBar {
	bars := make([]DailyBar, n)
	for i := range bars {
		bars[i] = DailyBar{Open: price, High: price, Low: price, Close: price}
	}
	return bars
}

// gbmBars generates bars from a geometric random walk at a known daily
// vol, with intraday range consistent with the close-to-close moves.
func gbmBars(n int, dailyVol float64, seed int64) []DailyBar {
	rng := rand.New(rand.NewSource(seed))
	bars := make([]DailyBar, n)
	price := 100.0
	for i := range bars {
		open := price
		closePx := open * math.Exp(dailyVol*rng.NormFloat64())
		high := math.Max(open, closePx) * math.Exp(dailyVol*0.3*math.Abs(rng.NormFloat64()))
		low := math.Min(open, closePx) * math.Exp(-dailyVol*0.3*math.Abs(rng.NormFloat64()))
		bars[i] = DailyBar{Open: open, High: high, Low: low, Close: closePx}
		price = closePx
	}
	return bars
}

func TestRealizedVolatilityFlatSeriesIsZero(t *testing.T) {
	assert.Equal(t, 0.0, RealizedVolatility(flatBars(30, 100), 21))
}

func TestRealizedVolatilityTooShortHistory(t *testing.T) {
	assert.Equal(t, 0.0, RealizedVolatility(flatBars(10, 100), 21))
	assert.Equal(t, 0.0, RealizedVolatility(flatBars(30, 100), 1))
	assert.Equal(t, 0.0, RealizedVolatility(nil, 21))
}

func TestRealizedVolatilityRecoverMagnitude(t *testing.T) {
	// Daily vol 0.0126 annualizes to ~20%. A 252-bar window keeps the
	// sampling error of the estimate manageable.
	annual := 0.20
	daily := annual / math.Sqrt(252)

	vol := RealizedVolatility(gbmBars(300, daily, 42), 252)
	assert.InDelta(t, annual, vol, 0.08)
}

func TestRealizedVolatilityScalesWithVol(t *testing.T) {
	calm := RealizedVolatility(gbmBars(60, 0.005, 7), 21)
	wild := RealizedVolatility(gbmBars(60, 0.03, 7), 21)

	assert.Greater(t, calm, 0.0)
	assert.Greater(t, wild, calm)
}

func TestRealizedVolatilityUsesTrailingWindow(t *testing.T) {
	// Early turbulence followed by a flat tail: a trailing 21-day window
	// must see only the flat tail.
	bars := append(gbmBars(40, 0.05, 3), flatBars(21, 100)...)
	assert.Equal(t, 0.0, RealizedVolatility(bars, 21))
}
