package positions

// ExplainPnL applies a shock scenario to a book snapshot and decomposes the
// estimated PnL via a second-order Taylor expansion.
//
// Spot terms are computed per position, because each position carries its
// own underlying spot level:
//
//	dS_i = (spot_shock_pct / 100) * spot_i
//	delta_pnl += qty_i * delta_i * dS_i
//	gamma_pnl += qty_i * 0.5 * gamma_i * dS_i^2
//
// Vega, theta and rho terms use book-level aggregated greeks against the
// single uniform shock: a scenario moves every underlying's vol and rate
// by the same amount. This asymmetry is intentional and only strictly
// correct for single-underlying books.
//
// Unit bookkeeping: vega is per vol point so a vol shock in points
// multiplies directly; theta is per calendar day; rho is per 1% of rate,
// so basis points divide by 100. No cross-greek terms, no correction
// beyond gamma; the total is always the exact sum of the five components.
//
// An empty book yields a zero PnLExplain.
func ExplainPnL(snapshot BookSnapshot, scenario ShockScenario) (PnLExplain, error) {
	if err := scenario.Validate(); err != nil {
		return PnLExplain{}, err
	}
	if snapshot.IsEmpty() {
		return PnLExplain{}, nil
	}

	var explain PnLExplain

	for _, p := range snapshot.Positions {
		dS := scenario.SpotShockPct / 100 * p.Spot
		explain.DeltaPnL += p.Quantity * p.Greeks.Delta * dS
		explain.GammaPnL += p.Quantity * 0.5 * p.Greeks.Gamma * dS * dS
	}

	aggregate := snapshot.AggregateGreeks()
	explain.VegaPnL = aggregate.Vega * scenario.VolShockPts
	explain.ThetaPnL = aggregate.Theta * scenario.TimeDecayDays
	explain.RhoPnL = aggregate.Rho * scenario.RateShockBps / 100

	return explain, nil
}
