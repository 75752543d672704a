package models

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"
	"sort"
	"sync"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/integrate/quad"
	"gonum.org/v1/gonum/optimize"
)

// HestonModel holds the five parameters of the Heston (1993) stochastic
// volatility model:
//
//	dS/S = (r - q) dt + sqrt(v) dW_S
//	dv   = kappa (theta - v) dt + sigma_v sqrt(v) dW_v
//	corr(dW_S, dW_v) = rho
type HestonModel struct {
	V0     float64 // Initial variance
	Kappa  float64 // Mean reversion speed of variance
	Theta  float64 // Long-term variance
	SigmaV float64 // Volatility of variance
	Rho    float64 // Correlation between asset returns and variance
}

// HestonCalibration is the immutable result of one calibration run.
type HestonCalibration struct {
	Params    HestonModel
	RMSE      float64
	Points    int
	Feller    bool // 2*kappa*theta >= sigma_v^2; diagnostic only, never a rejection
	Converged bool
}

// ErrHestonPricing is reported when the quadrature produces a non-finite
// price, so callers can distinguish numerical failure from a bad fit.
var ErrHestonPricing = errors.New("heston: non-finite price from quadrature")

const (
	hestonPhiLo     = 1e-3
	hestonPhiHi     = 100.0
	hestonQuadNodes = 128

	// Fixed penalty for a candidate parameter set whose model price cannot
	// be inverted back to an implied vol at some market point.
	hestonMissPenalty = 0.25
)

var rngPool = sync.Pool{
	New: func() interface{} {
		return rand.New(rand.NewSource(uint64(rand.Int63())))
	},
}

func NewHestonModel(v0, kappa, theta, sigmaV, rho float64) *HestonModel {
	return &HestonModel{
		V0:     v0,
		Kappa:  kappa,
		Theta:  theta,
		SigmaV: sigmaV,
		Rho:    rho,
	}
}

// probability evaluates P_j of the Heston call formula,
//
//	P_j = 0.5 + (1/pi) Int_0^inf Re[ f_j(phi) / (i phi) ] dphi
//
// using the Albrecher et al. (2007) "little trap" branch of the
// characteristic function, which stays numerically stable at long
// maturities. The integral runs over a truncated domain with fixed
// Gauss-Legendre quadrature.
func (h *HestonModel) probability(S, K, T, r, q float64, j int) float64 {
	a := h.Kappa * h.Theta

	var uj, bj float64
	if j == 1 {
		uj = 0.5
		bj = h.Kappa - h.Rho*h.SigmaV
	} else {
		uj = -0.5
		bj = h.Kappa
	}

	logMoneyness := math.Log(S / K)
	sigma2 := h.SigmaV * h.SigmaV

	integrand := func(phi float64) float64 {
		iphi := complex(0, phi)
		rsp := complex(h.Rho*h.SigmaV, 0) * iphi

		d := cmplx.Sqrt((rsp-complex(bj, 0))*(rsp-complex(bj, 0)) -
			complex(sigma2, 0)*(2*complex(uj, 0)*iphi-complex(phi*phi, 0)))

		numG := complex(bj, 0) - rsp - d
		denG := complex(bj, 0) - rsp + d
		g := numG / denG

		expNegDT := cmplx.Exp(-d * complex(T, 0))
		denom := 1 - g*expNegDT

		D := numG / complex(sigma2, 0) * (1 - expNegDT) / denom
		C := complex((r-q)*T, 0)*iphi +
			complex(a/sigma2, 0)*(numG*complex(T, 0)-2*cmplx.Log(denom/(1-g)))

		fj := cmplx.Exp(C + D*complex(h.V0, 0) + iphi*complex(logMoneyness, 0))
		return real(fj / iphi)
	}

	integral := quad.Fixed(integrand, hestonPhiLo, hestonPhiHi, hestonQuadNodes, nil, 0)
	return 0.5 + integral/math.Pi
}

// CallPrice computes the semi-analytic Heston call price. The result is
// floored at discounted intrinsic value, which absorbs small negative
// quadrature noise at far-from-the-money strikes.
func (h *HestonModel) CallPrice(S, K, T, r, q float64) (float64, error) {
	floor := math.Max(S*math.Exp(-q*T)-K*math.Exp(-r*T), 0)
	if T <= 0 {
		return floor, nil
	}

	p1 := h.probability(S, K, T, r, q, 1)
	p2 := h.probability(S, K, T, r, q, 2)
	raw := S*math.Exp(-q*T)*p1 - K*math.Exp(-r*T)*p2

	if math.IsNaN(raw) || math.IsInf(raw, 0) {
		return 0, ErrHestonPricing
	}
	return math.Max(raw, floor), nil
}

// PutPrice derives the put price from the call via put-call parity.
func (h *HestonModel) PutPrice(S, K, T, r, q float64) (float64, error) {
	call, err := h.CallPrice(S, K, T, r, q)
	if err != nil {
		return 0, err
	}
	return call + K*math.Exp(-r*T) - S*math.Exp(-q*T), nil
}

// ImpliedVol prices the option under the model and inverts the result back
// to a Black-Scholes implied vol. The out-of-the-money variant relative to
// the forward is chosen automatically, matching how the market points were
// extracted. Returns ErrNoSolution when the model price is not invertible.
func (h *HestonModel) ImpliedVol(S, K, T, r, q float64) (float64, error) {
	if T <= 0 {
		return 0, ErrNoSolution
	}

	forward := S * math.Exp((r-q)*T)
	optType := Call
	if K < forward {
		optType = Put
	}

	var price float64
	var err error
	if optType == Call {
		price, err = h.CallPrice(S, K, T, r, q)
	} else {
		price, err = h.PutPrice(S, K, T, r, q)
	}
	if err != nil {
		return 0, err
	}

	return ImpliedVolatility(optType, price, S, K, T, r, q)
}

// FellerSatisfied reports whether 2*kappa*theta >= sigma_v^2, i.e. whether
// the variance process stays strictly positive.
func (h *HestonModel) FellerSatisfied() bool {
	return 2*h.Kappa*h.Theta >= h.SigmaV*h.SigmaV
}

// SimulatePrice runs one Euler path of the model and returns the terminal
// spot. Kept as an independent cross-check of the characteristic-function
// pricer; variance is truncated at zero.
func (h *HestonModel) SimulatePrice(s0, r, q, t float64, steps int) float64 {
	dt := t / float64(steps)
	sqrtDt := math.Sqrt(dt)

	s := s0
	v := h.V0

	rng := rngPool.Get().(*rand.Rand)
	defer rngPool.Put(rng)

	for i := 0; i < steps; i++ {
		z1 := rng.NormFloat64()
		z2 := rng.NormFloat64()
		z2 = h.Rho*z1 + math.Sqrt(1-h.Rho*h.Rho)*z2

		s *= math.Exp((r-q-0.5*v)*dt + math.Sqrt(v)*sqrtDt*z1)
		v += h.Kappa*(h.Theta-v)*dt + h.SigmaV*math.Sqrt(v)*sqrtDt*z2
		v = math.Max(0, v) // Ensure variance stays non-negative
	}

	return s
}

var (
	hestonLowerBounds = []float64{1e-4, 0.1, 1e-4, 0.05, -0.99}
	hestonUpperBounds = []float64{0.9, 15.0, 0.9, 2.0, 0.99}
)

// CalibrateHeston fits the five parameters to a set of market implied-vol
// points by minimizing the volume-weighted mean squared error in vol space.
// Box constraints are enforced through an infinite out-of-bounds penalty
// inside a Nelder-Mead run capped at maxIter major iterations.
func CalibrateHeston(points []VolSurfacePoint, S, r, q float64, maxIter int) (*HestonCalibration, error) {
	if len(points) == 0 {
		return nil, errors.New("heston: no calibration points")
	}

	atmVar := medianATMVol(points)
	atmVar *= atmVar
	x0 := []float64{atmVar, 2.0, atmVar, 0.4, -0.7}

	// A candidate that cannot price the chain finitely signals broken
	// inputs rather than a poor fit. Catch that at the starting point, so
	// the caller sees a pricing error instead of an all-penalty objective.
	guess := NewHestonModel(x0[0], x0[1], x0[2], x0[3], x0[4])
	if err := checkFinitePricing(guess, points, S, r, q); err != nil {
		return nil, err
	}

	objective := func(x []float64) float64 {
		for i, val := range x {
			if val < hestonLowerBounds[i] || val > hestonUpperBounds[i] {
				return math.Inf(1)
			}
		}

		model := NewHestonModel(x[0], x[1], x[2], x[3], x[4])
		total := 0.0
		n := 0
		for _, pt := range points {
			w := math.Max(float64(pt.Volume), 1)
			ivModel, err := model.ImpliedVol(S, pt.Strike, pt.Maturity, r, q)
			if err != nil {
				total += w * hestonMissPenalty
				continue
			}
			diff := ivModel - pt.IV/100
			total += w * diff * diff
			n++
		}
		if n == 0 {
			return math.Inf(1)
		}
		return total / float64(n)
	}

	problem := optimize.Problem{Func: objective}
	settings := &optimize.Settings{MajorIterations: maxIter}

	result, err := optimize.Minimize(problem, x0, settings, &optimize.NelderMead{})
	if err != nil {
		return nil, err
	}

	model := HestonModel{
		V0:     result.X[0],
		Kappa:  result.X[1],
		Theta:  result.X[2],
		SigmaV: result.X[3],
		Rho:    result.X[4],
	}

	// The objective folds every inversion miss into the same penalty, so a
	// quadrature blow-up at the optimum would otherwise be reported as a
	// bad fit. Re-price the chain once with the fitted parameters.
	if err := checkFinitePricing(&model, points, S, r, q); err != nil {
		return nil, err
	}

	return &HestonCalibration{
		Params:    model,
		RMSE:      math.Sqrt(result.F),
		Points:    len(points),
		Feller:    model.FellerSatisfied(),
		Converged: calibrationConverged(result),
	}, nil
}

// checkFinitePricing prices every calibration point with the given
// parameters and reports ErrHestonPricing if any quadrature result is
// non-finite. Inversion misses (ErrNoSolution) are fit quality, not
// numerical failure, and pass through.
func checkFinitePricing(model *HestonModel, points []VolSurfacePoint, S, r, q float64) error {
	for _, pt := range points {
		_, err := model.ImpliedVol(S, pt.Strike, pt.Maturity, r, q)
		if errors.Is(err, ErrHestonPricing) {
			return fmt.Errorf("%w (strike %.4g, maturity %.4g)", ErrHestonPricing, pt.Strike, pt.Maturity)
		}
	}
	return nil
}

func calibrationConverged(result *optimize.Result) bool {
	if math.IsInf(result.F, 1) || math.IsNaN(result.F) {
		return false
	}
	switch result.Status {
	case optimize.IterationLimit, optimize.FunctionEvaluationLimit, optimize.RuntimeLimit, optimize.Failure:
		return false
	}
	return true
}

// medianATMVol picks the median implied vol of near-the-money points
// (moneyness within 5% of par), falling back to the full set when the chain
// has no quotes near the money. Result is a raw vol, not a percentage.
func medianATMVol(points []VolSurfacePoint) float64 {
	var vols []float64
	for _, pt := range points {
		if math.Abs(pt.Moneyness-1) <= 0.05 {
			vols = append(vols, pt.IV/100)
		}
	}
	if len(vols) == 0 {
		for _, pt := range points {
			vols = append(vols, pt.IV/100)
		}
	}
	sort.Float64s(vols)
	return vols[len(vols)/2]
}
