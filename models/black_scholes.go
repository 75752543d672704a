package models

import "math"

type OptionType string

const (
	Call OptionType = "call"
	Put  OptionType = "put"
)

// BSResult holds a Black-Scholes price and its per-unit sensitivities.
//
// Conventions, fixed across the whole engine:
//   - Delta and Gamma are raw partials in spot.
//   - Vega is per 1 vol point (a move of 0.01 in sigma).
//   - Theta is decay per calendar day.
//   - Rho is per 1% rate move.
type BSResult struct {
	Price float64
	Delta float64
	Gamma float64
	Vega  float64
	Theta float64
	Rho   float64
}

// BSPrice computes the Black-Scholes price of a vanilla option with
// continuous dividend yield q. S and K must be positive. T at or below
// zero, or a zero vol, collapses to intrinsic value.
func BSPrice(optType OptionType, S, K, T, sigma, r, q float64) float64 {
	if T <= 0 || sigma <= 0 {
		return intrinsicValue(optType, S, K)
	}

	d1 := calcD1(S, K, T, sigma, r, q)
	d2 := d1 - sigma*math.Sqrt(T)

	if optType == Call {
		return S*math.Exp(-q*T)*normCDF(d1) - K*math.Exp(-r*T)*normCDF(d2)
	}
	return K*math.Exp(-r*T)*normCDF(-d2) - S*math.Exp(-q*T)*normCDF(-d1)
}

// BSGreeks computes the price and all five greeks in one pass.
//
// Expired or zero-vol options price at intrinsic; delta is 1 (call, ITM),
// -1 (put, ITM) or 0, every other greek is zero.
func BSGreeks(optType OptionType, S, K, T, sigma, r, q float64) BSResult {
	if T <= 0 || sigma <= 0 {
		return BSResult{
			Price: intrinsicValue(optType, S, K),
			Delta: expiredDelta(optType, S, K),
		}
	}

	sqrtT := math.Sqrt(T)
	d1 := calcD1(S, K, T, sigma, r, q)
	d2 := d1 - sigma*sqrtT

	discQ := math.Exp(-q * T)
	discR := math.Exp(-r * T)

	var price, delta, theta, rho float64
	if optType == Call {
		price = S*discQ*normCDF(d1) - K*discR*normCDF(d2)
		delta = discQ * normCDF(d1)
		theta = -(S*discQ*normPDF(d1)*sigma)/(2*sqrtT) - r*K*discR*normCDF(d2) + q*S*discQ*normCDF(d1)
		rho = K * T * discR * normCDF(d2)
	} else {
		price = K*discR*normCDF(-d2) - S*discQ*normCDF(-d1)
		delta = -discQ * normCDF(-d1)
		theta = -(S*discQ*normPDF(d1)*sigma)/(2*sqrtT) + r*K*discR*normCDF(-d2) - q*S*discQ*normCDF(-d1)
		rho = -K * T * discR * normCDF(-d2)
	}

	gamma := discQ * normPDF(d1) / (S * sigma * sqrtT)
	vega := S * discQ * normPDF(d1) * sqrtT

	return BSResult{
		Price: price,
		Delta: delta,
		Gamma: gamma,
		Vega:  vega / 100,
		Theta: theta / 365,
		Rho:   rho / 100,
	}
}

// BSVega returns the raw (per 1.00 vol) vega, used by the Newton step in
// implied-vol inversion where the unscaled derivative is needed.
func BSVega(S, K, T, sigma, r, q float64) float64 {
	if T <= 0 || sigma <= 0 {
		return 0
	}
	d1 := calcD1(S, K, T, sigma, r, q)
	return S * math.Exp(-q*T) * normPDF(d1) * math.Sqrt(T)
}

func calcD1(S, K, T, sigma, r, q float64) float64 {
	return (math.Log(S/K) + (r-q+0.5*sigma*sigma)*T) / (sigma * math.Sqrt(T))
}

func intrinsicValue(optType OptionType, S, K float64) float64 {
	if optType == Call {
		return math.Max(S-K, 0)
	}
	return math.Max(K-S, 0)
}

func expiredDelta(optType OptionType, S, K float64) float64 {
	if optType == Call {
		if S > K {
			return 1
		}
		return 0
	}
	if S < K {
		return -1
	}
	return 0
}

// normCDF calculates the cumulative distribution function of the standard normal distribution
func normCDF(x float64) float64 {
	return 0.5 * (1 + math.Erf(x/math.Sqrt2))
}

// normPDF calculates the probability density function of the standard normal distribution
func normPDF(x float64) float64 {
	return math.Exp(-0.5*x*x) / math.Sqrt(2*math.Pi)
}
