package models

import (
	"math"
	"sort"
	"time"

	"github.com/deskview/deskview/tradier"
)

// VolSurfacePoint is one cleaned implied-vol observation extracted from a
// raw option chain. IV is in percent (25.4 means 25.4%). Volume is carried
// only as a liquidity weight for calibration.
type VolSurfacePoint struct {
	Strike       float64    `json:"strike"`
	Maturity     float64    `json:"maturity"` // year fraction
	MaturityDate string     `json:"maturity_date"`
	IV           float64    `json:"iv"`
	Moneyness    float64    `json:"moneyness"`
	OptionType   OptionType `json:"option_type"`
	Volume       int        `json:"volume"`
}

// VolatilitySurface is a dense implied-vol grid over moneyness and
// maturity. Vols[i][j] is the vol in percent at Times[i] x Strikes[j];
// NaN marks a grid cell whose model price could not be inverted.
type VolatilitySurface struct {
	Strikes   []float64
	Moneyness []float64
	Times     []float64
	Vols      [][]float64
}

const (
	moneynessLo = 0.70
	moneynessHi = 1.30

	minUsableIV = 0.02
	maxUsableIV = 3.0

	gridStrikes    = 20
	gridMaturities = 8
	gridTimeLo     = 1.0 / 12
	gridTimeHi     = 2.0
)

// ExtractSurfacePoints turns a raw option chain into cleaned
// (moneyness, maturity, implied vol) observations. Illiquid, stale and
// unattainable quotes are skipped one by one; a point whose inversion
// reports no solution never fails the batch. The result is sorted by
// maturity then strike so downstream calibration is deterministic.
//
// With otmOnly set, in-the-money quotes relative to the forward are
// dropped, which removes intrinsic-value ambiguity before calibration.
func ExtractSurfacePoints(chain []tradier.ChainQuote, spot, r, q float64, valuation time.Time, otmOnly bool) []VolSurfacePoint {
	var points []VolSurfacePoint

	for _, quote := range chain {
		if quote.Volume == 0 {
			continue
		}

		price := quote.MidPrice()
		if price <= 0 {
			continue
		}

		expiry, err := time.Parse("2006-01-02", quote.MaturityDate)
		if err != nil {
			continue
		}
		T := expiry.Sub(valuation).Hours() / 24 / 365
		if T <= 0 {
			continue
		}

		moneyness := quote.Strike / spot
		if moneyness < moneynessLo || moneyness > moneynessHi {
			continue
		}

		optType := OptionType(quote.OptionType)
		if optType != Call && optType != Put {
			continue
		}

		if price < intrinsicValue(optType, spot, quote.Strike) {
			continue
		}

		if otmOnly {
			forward := spot * math.Exp((r-q)*T)
			if optType == Call && quote.Strike < forward*0.99 {
				continue
			}
			if optType == Put && quote.Strike > forward*1.01 {
				continue
			}
		}

		iv, err := ImpliedVolatility(optType, price, spot, quote.Strike, T, r, q)
		if err != nil {
			continue
		}
		if iv < minUsableIV || iv > maxUsableIV {
			continue
		}

		points = append(points, VolSurfacePoint{
			Strike:       quote.Strike,
			Maturity:     T,
			MaturityDate: quote.MaturityDate,
			IV:           iv * 100,
			Moneyness:    moneyness,
			OptionType:   optType,
			Volume:       quote.Volume,
		})
	}

	sort.Slice(points, func(i, j int) bool {
		if points[i].Maturity != points[j].Maturity {
			return points[i].Maturity < points[j].Maturity
		}
		return points[i].Strike < points[j].Strike
	})

	return points
}

// ReconstructSurface evaluates a fitted Heston model over the standard
// moneyness x maturity grid. Cells where inversion fails are marked NaN
// rather than dropped, so the grid shape stays rectangular. progress, when
// non-nil, is invoked once per completed cell.
func ReconstructSurface(model *HestonModel, S, r, q float64, progress func()) VolatilitySurface {
	moneyness := linspace(moneynessLo, moneynessHi, gridStrikes)
	times := linspace(gridTimeLo, gridTimeHi, gridMaturities)

	strikes := make([]float64, len(moneyness))
	for j, m := range moneyness {
		strikes[j] = m * S
	}

	vols := make([][]float64, len(times))
	for i, T := range times {
		row := make([]float64, len(strikes))
		for j, K := range strikes {
			iv, err := model.ImpliedVol(S, K, T, r, q)
			if err != nil {
				row[j] = math.NaN()
			} else {
				row[j] = iv * 100
			}
			if progress != nil {
				progress()
			}
		}
		vols[i] = row
	}

	return VolatilitySurface{
		Strikes:   strikes,
		Moneyness: moneyness,
		Times:     times,
		Vols:      vols,
	}
}

// GridCells returns the number of cells a reconstruction will evaluate,
// for progress reporting.
func GridCells() int {
	return gridStrikes * gridMaturities
}

// InterpolateVolatility performs bilinear interpolation on a reconstructed
// surface at (strike S, year-fraction t). Queries outside the grid clamp to
// the nearest edge node. NaN cells poison their neighborhood, so callers get
// NaN rather than a fabricated vol near a failed grid point. Returns 0 for
// an empty surface.
func InterpolateVolatility(surface VolatilitySurface, S, t float64) float64 {
	if len(surface.Strikes) == 0 || len(surface.Times) == 0 || len(surface.Vols) == 0 {
		return 0
	}

	tIndex, xt := bracket(surface.Times, t)
	sIndex, xs := bracket(surface.Strikes, S)

	// Clamped queries collapse to an edge node index with zero weight on
	// the upper neighbor.
	tUp := tIndex
	if xt > 0 {
		tUp = tIndex + 1
	}
	sUp := sIndex
	if xs > 0 {
		sUp = sIndex + 1
	}

	v00 := surface.Vols[tIndex][sIndex]
	v01 := surface.Vols[tIndex][sUp]
	v10 := surface.Vols[tUp][sIndex]
	v11 := surface.Vols[tUp][sUp]

	return (1-xt)*(1-xs)*v00 + xt*(1-xs)*v10 + (1-xt)*xs*v01 + xt*xs*v11
}

// bracket locates the cell [grid[i], grid[i+1]] containing v and the
// fractional position of v within it. sort.SearchFloat64s returns the first
// index whose node is >= v, which is the upper neighbor for interior
// queries, so the index is stepped back to the lower cell corner. Queries
// beyond either end of the grid return the nearest edge index with a zero
// fraction.
func bracket(grid []float64, v float64) (int, float64) {
	i := sort.SearchFloat64s(grid, v)
	if i > 0 && (i == len(grid) || grid[i] > v) {
		i--
	}
	if i >= len(grid)-1 {
		return len(grid) - 1, 0
	}
	x := (v - grid[i]) / (grid[i+1] - grid[i])
	if x < 0 {
		x = 0
	} else if x > 1 {
		x = 1
	}
	return i, x
}

func linspace(lo, hi float64, n int) []float64 {
	out := make([]float64, n)
	step := (hi - lo) / float64(n-1)
	for i := range out {
		out[i] = lo + float64(i)*step
	}
	return out
}
