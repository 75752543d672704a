package positions

import (
	"errors"
	"fmt"
	"time"

	"github.com/deskview/deskview/models"
)

// ErrInvalidInput marks malformed pricing inputs: non-positive spot or
// strike, zero maturities, negative time decay. Rejected immediately,
// never silently clamped.
var ErrInvalidInput = errors.New("positions: invalid input")

type Underlying struct {
	Ticker   string `json:"ticker"`
	Currency string `json:"currency"`
}

// OptionContract is an immutable vanilla option. Time-to-expiry is derived
// against a valuation date, never stored.
type OptionContract struct {
	Underlying Underlying        `json:"underlying"`
	Type       models.OptionType `json:"option_type"`
	Strike     float64           `json:"strike"`
	Maturity   time.Time         `json:"maturity"`
	Quantity   float64           `json:"quantity"` // positive = long, negative = short
}

func NewOptionContract(underlying Underlying, optType models.OptionType, strike float64, maturity time.Time, quantity float64) (OptionContract, error) {
	if strike <= 0 {
		return OptionContract{}, fmt.Errorf("%w: strike must be positive, got %v", ErrInvalidInput, strike)
	}
	if maturity.IsZero() {
		return OptionContract{}, fmt.Errorf("%w: maturity not set", ErrInvalidInput)
	}
	if optType != models.Call && optType != models.Put {
		return OptionContract{}, fmt.Errorf("%w: unknown option type %q", ErrInvalidInput, optType)
	}
	return OptionContract{
		Underlying: underlying,
		Type:       optType,
		Strike:     strike,
		Maturity:   maturity,
		Quantity:   quantity,
	}, nil
}

// TimeToExpiry returns the year-fraction from the valuation date to
// maturity. Expired contracts return 0, never a negative fraction.
func (c OptionContract) TimeToExpiry(valuation time.Time) float64 {
	t := c.Maturity.Sub(valuation).Hours() / 24 / 365
	if t < 0 {
		return 0
	}
	return t
}

func (c OptionContract) IsLong() bool {
	return c.Quantity > 0
}

// Greeks is an additive, scalable value object holding the five
// sensitivities. Units follow models.BSResult: vega per 1 vol point,
// theta per calendar day, rho per 1% rate move.
type Greeks struct {
	Delta float64 `json:"delta"`
	Gamma float64 `json:"gamma"`
	Vega  float64 `json:"vega"`
	Theta float64 `json:"theta"`
	Rho   float64 `json:"rho"`
}

// Scale multiplies all five fields by k.
func (g Greeks) Scale(k float64) Greeks {
	return Greeks{
		Delta: g.Delta * k,
		Gamma: g.Gamma * k,
		Vega:  g.Vega * k,
		Theta: g.Theta * k,
		Rho:   g.Rho * k,
	}
}

// Add sums two Greeks field-wise.
func (g Greeks) Add(other Greeks) Greeks {
	return Greeks{
		Delta: g.Delta + other.Delta,
		Gamma: g.Gamma + other.Gamma,
		Vega:  g.Vega + other.Vega,
		Theta: g.Theta + other.Theta,
		Rho:   g.Rho + other.Rho,
	}
}

// MarketData is a read-only market snapshot for one pricing call.
type MarketData struct {
	Spot          float64 `json:"spot"`
	ImpliedVol    float64 `json:"implied_vol"`
	RiskFreeRate  float64 `json:"risk_free_rate"`
	DividendYield float64 `json:"dividend_yield"`
}

func (m MarketData) Validate() error {
	if m.Spot <= 0 {
		return fmt.Errorf("%w: spot must be positive, got %v", ErrInvalidInput, m.Spot)
	}
	if m.ImpliedVol < 0 {
		return fmt.Errorf("%w: implied vol must be non-negative, got %v", ErrInvalidInput, m.ImpliedVol)
	}
	return nil
}

// ShockScenario is a pure input describing a market move: spot in percent,
// vol in absolute vol points, rate in basis points, time decay in days.
type ShockScenario struct {
	SpotShockPct  float64 `json:"spot_shock_pct"`
	VolShockPts   float64 `json:"vol_shock_pts"`
	RateShockBps  float64 `json:"rate_shock_bps"`
	TimeDecayDays float64 `json:"time_decay_days"`
}

func (s ShockScenario) Validate() error {
	if s.TimeDecayDays < 0 {
		return fmt.Errorf("%w: time decay must be non-negative, got %v", ErrInvalidInput, s.TimeDecayDays)
	}
	return nil
}

// PnLExplain decomposes an estimated PnL into per-greek contributions.
// The total is always derived from the five components, never stored.
type PnLExplain struct {
	DeltaPnL float64 `json:"delta_pnl"`
	GammaPnL float64 `json:"gamma_pnl"`
	VegaPnL  float64 `json:"vega_pnl"`
	ThetaPnL float64 `json:"theta_pnl"`
	RhoPnL   float64 `json:"rho_pnl"`
}

// Total returns the sum of the five components.
func (p PnLExplain) Total() float64 {
	return p.DeltaPnL + p.GammaPnL + p.VegaPnL + p.ThetaPnL + p.RhoPnL
}

// Position is one book entry: an option contract or a bare stock holding,
// together with the per-unit greeks and the spot level that produced them.
// Greeks and Spot are refreshed by the pricing layer before aggregation.
type Position struct {
	ID          string          `json:"id"`
	Contract    *OptionContract `json:"contract,omitempty"` // nil for a bare stock position
	Underlying  Underlying      `json:"underlying"`
	Quantity    float64         `json:"quantity"`
	EntryPrice  float64         `json:"entry_price"`
	MarketPrice float64         `json:"market_price"`
	Spot        float64         `json:"spot"`
	Greeks      Greeks          `json:"greeks"` // per unit
}

// IsStock reports whether the position is a bare underlying holding.
func (p Position) IsStock() bool {
	return p.Contract == nil
}
