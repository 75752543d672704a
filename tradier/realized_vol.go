package tradier

import "math"

// RealizedVolatility estimates annualized realized vol from the trailing
// `days` daily bars using the Yang-Zhang estimator, which combines
// overnight, open-to-close and Rogers-Satchell components. It backs the
// default implied vol in a market snapshot when no option quote supplies
// one. Returns 0 when the history is too short.
func RealizedVolatility(bars []DailyBar, days int) float64 {
	if len(bars) < days || days < 2 {
		return 0
	}

	opens := make([]float64, days)
	highs := make([]float64, days)
	lows := make([]float64, days)
	closes := make([]float64, days)

	for i := 0; i < days; i++ {
		bar := bars[len(bars)-days+i]
		opens[i] = bar.Open
		highs[i] = bar.High
		lows[i] = bar.Low
		closes[i] = bar.Close
	}

	n := float64(days)
	k := 0.34 / (1.34 + (n+1)/(n-1))

	overnight := overnightVariance(closes, opens)
	openClose := openCloseVariance(opens, closes)
	rs := rogersSatchellVariance(opens, highs, lows, closes)

	yz := math.Sqrt(overnight + k*openClose + (1-k)*rs)

	// Annualize
	return yz * math.Sqrt(252)
}

func overnightVariance(closes, opens []float64) float64 {
	n := len(opens)
	sum := 0.0
	mean := 0.0
	for i := 1; i < n; i++ {
		logReturn := math.Log(opens[i] / closes[i-1])
		mean += logReturn
		sum += logReturn * logReturn
	}
	mean /= float64(n - 1)
	return (sum/float64(n-1) - mean*mean) * float64(n) / float64(n-1)
}

func openCloseVariance(opens, closes []float64) float64 {
	n := len(opens)
	sum := 0.0
	mean := 0.0
	for i := 0; i < n; i++ {
		logReturn := math.Log(closes[i] / opens[i])
		mean += logReturn
		sum += logReturn * logReturn
	}
	mean /= float64(n)
	return (sum/float64(n) - mean*mean) * float64(n) / float64(n-1)
}

func rogersSatchellVariance(opens, highs, lows, closes []float64) float64 {
	n := len(opens)
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += math.Log(highs[i]/closes[i])*math.Log(highs[i]/opens[i]) +
			math.Log(lows[i]/closes[i])*math.Log(lows[i]/opens[i])
	}
	return sum / float64(n)
}
