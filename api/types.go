package api

import (
	"math"

	"github.com/deskview/deskview/models"
	"github.com/deskview/deskview/positions"
)

// Response is the envelope every endpoint returns.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

type GreeksRequest struct {
	Ticker     string  `json:"ticker"`
	OptionType string  `json:"option_type"` // "call" or "put"
	Strike     float64 `json:"strike"`
	Maturity   string  `json:"maturity"` // 2006-01-02
	Quantity   float64 `json:"quantity"`
	// ImpliedVol overrides the snapshot's default realized vol when set.
	ImpliedVol float64 `json:"implied_vol,omitempty"`
}

type GreeksResponse struct {
	Ticker string  `json:"ticker"`
	Spot   float64 `json:"spot"`
	Price  float64 `json:"price"`
	Delta  float64 `json:"delta"`
	Gamma  float64 `json:"gamma"`
	Vega   float64 `json:"vega"`
	Theta  float64 `json:"theta"`
	Rho    float64 `json:"rho"`
}

type AddPositionRequest struct {
	Kind       string  `json:"kind"` // "option" or "stock"
	Ticker     string  `json:"ticker"`
	OptionType string  `json:"option_type,omitempty"`
	Strike     float64 `json:"strike,omitempty"`
	Maturity   string  `json:"maturity,omitempty"`
	Quantity   float64 `json:"quantity"`
	EntryPrice float64 `json:"entry_price"`
}

type ScenarioRequest struct {
	SpotShockPct  float64 `json:"spot_shock_pct"`
	VolShockPts   float64 `json:"vol_shock_pts"`
	RateShockBps  float64 `json:"rate_shock_bps"`
	TimeDecayDays float64 `json:"time_decay_days"`
}

type PnLResponse struct {
	positions.PnLExplain
	TotalPnL float64 `json:"total_pnl"`
}

type MarketSurfaceResponse struct {
	Ticker string                   `json:"ticker"`
	Spot   float64                  `json:"spot"`
	R      float64                  `json:"r"`
	Q      float64                  `json:"q"`
	Points []models.VolSurfacePoint `json:"points"`
}

// SurfaceGrid is the JSON shape of a reconstructed surface; cells that
// could not be inverted are null instead of NaN.
type SurfaceGrid struct {
	Strikes         []float64    `json:"strikes"`
	Moneyness       []float64    `json:"moneyness"`
	MaturitiesYears []float64    `json:"maturities_years"`
	ImpliedVols     [][]*float64 `json:"implied_vols"`
}

func toSurfaceGrid(surface models.VolatilitySurface) SurfaceGrid {
	vols := make([][]*float64, len(surface.Vols))
	for i, row := range surface.Vols {
		out := make([]*float64, len(row))
		for j, v := range row {
			if !math.IsNaN(v) {
				value := v
				out[j] = &value
			}
		}
		vols[i] = out
	}
	return SurfaceGrid{
		Strikes:         surface.Strikes,
		Moneyness:       surface.Moneyness,
		MaturitiesYears: surface.Times,
		ImpliedVols:     vols,
	}
}
