package models

import (
	"errors"
	"math"
)

const (
	ivFloor = 1e-4
	ivCeil  = 5.0

	newtonIterations    = 25
	bisectionIterations = 100
	ivEpsilon           = 1e-9
)

// ErrNoSolution is reported when an observed price cannot be produced by any
// volatility in [ivFloor, ivCeil]: below intrinsic value, above the deep-ITM
// bound, or already expired. Callers drop the offending point instead of
// propagating NaN.
var ErrNoSolution = errors.New("implied vol: no solution in bounded domain")

// ImpliedVolatility backs the Black-Scholes volatility out of an observed
// option price. Newton-Raphson first, bracketed bisection as fallback.
//
// Puts are converted to equivalent calls through put-call parity before
// inversion, so both variants share one monotone objective.
func ImpliedVolatility(optType OptionType, price, S, K, T, r, q float64) (float64, error) {
	if T <= 0 {
		return 0, ErrNoSolution
	}

	if optType == Put {
		price = price + S*math.Exp(-q*T) - K*math.Exp(-r*T)
	}

	intrinsic := math.Max(S*math.Exp(-q*T)-K*math.Exp(-r*T), 0)
	upper := S * math.Exp(-q*T)
	if price <= intrinsic+ivEpsilon || price >= upper {
		return 0, ErrNoSolution
	}

	// Newton-Raphson from a mid-range guess
	sigma := 0.3
	for i := 0; i < newtonIterations; i++ {
		diff := BSPrice(Call, S, K, T, sigma, r, q) - price
		vega := BSVega(S, K, T, sigma, r, q)
		if vega < 1e-12 {
			break
		}
		step := diff / vega
		sigma -= step
		if sigma < ivFloor {
			sigma = ivFloor
		} else if sigma > 10.0 {
			sigma = 10.0
		}
		if math.Abs(step) < ivEpsilon && sigma >= ivFloor && sigma <= ivCeil {
			return sigma, nil
		}
	}

	// Bisection fallback over the bounded domain
	lo, hi := ivFloor, ivCeil
	fLo := BSPrice(Call, S, K, T, lo, r, q) - price
	fHi := BSPrice(Call, S, K, T, hi, r, q) - price
	if fLo*fHi > 0 {
		return 0, ErrNoSolution
	}

	for i := 0; i < bisectionIterations; i++ {
		mid := 0.5 * (lo + hi)
		fMid := BSPrice(Call, S, K, T, mid, r, q) - price
		if math.Abs(fMid) < ivEpsilon || hi-lo < 1e-7 {
			return mid, nil
		}
		if fLo*fMid < 0 {
			hi = mid
		} else {
			lo = mid
			fLo = fMid
		}
	}

	return 0.5 * (lo + hi), nil
}
