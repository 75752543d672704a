package positions

import (
	"fmt"
	"time"

	"github.com/deskview/deskview/models"
)

// PriceOption values one contract against a market snapshot at the given
// valuation date, returning the per-unit price and greeks. Inputs are
// validated up front per the InvalidInput taxonomy.
func PriceOption(contract OptionContract, md MarketData, valuation time.Time) (models.BSResult, error) {
	if err := md.Validate(); err != nil {
		return models.BSResult{}, err
	}
	if contract.Strike <= 0 {
		return models.BSResult{}, fmt.Errorf("%w: strike must be positive, got %v", ErrInvalidInput, contract.Strike)
	}

	T := contract.TimeToExpiry(valuation)
	result := models.BSGreeks(contract.Type, md.Spot, contract.Strike, T, md.ImpliedVol, md.RiskFreeRate, md.DividendYield)
	return result, nil
}

// ImplyVol backs the volatility out of an observed market price for the
// contract. Points for which no vol reproduces the price surface
// models.ErrNoSolution; callers treat those as unusable.
func ImplyVol(contract OptionContract, observedPrice float64, md MarketData, valuation time.Time) (float64, error) {
	if err := md.Validate(); err != nil {
		return 0, err
	}
	if observedPrice <= 0 {
		return 0, fmt.Errorf("%w: observed price must be positive, got %v", ErrInvalidInput, observedPrice)
	}

	T := contract.TimeToExpiry(valuation)
	return models.ImpliedVolatility(contract.Type, observedPrice, md.Spot, contract.Strike, T, md.RiskFreeRate, md.DividendYield)
}

// StockGreeks is the per-unit greeks of a bare underlying holding: delta 1,
// everything else 0, so a stock position aggregates to delta = quantity.
func StockGreeks() Greeks {
	return Greeks{Delta: 1}
}

// NewOptionPosition prices a contract and wraps it as a book position
// carrying its per-unit greeks and the spot that produced them.
func NewOptionPosition(contract OptionContract, md MarketData, entryPrice float64, valuation time.Time) (Position, error) {
	result, err := PriceOption(contract, md, valuation)
	if err != nil {
		return Position{}, err
	}

	return Position{
		Contract:    &contract,
		Underlying:  contract.Underlying,
		Quantity:    contract.Quantity,
		EntryPrice:  entryPrice,
		MarketPrice: result.Price,
		Spot:        md.Spot,
		Greeks: Greeks{
			Delta: result.Delta,
			Gamma: result.Gamma,
			Vega:  result.Vega,
			Theta: result.Theta,
			Rho:   result.Rho,
		},
	}, nil
}

// NewStockPosition wraps a bare underlying holding as a book position.
func NewStockPosition(underlying Underlying, quantity, entryPrice, spot float64) (Position, error) {
	if spot <= 0 {
		return Position{}, fmt.Errorf("%w: spot must be positive, got %v", ErrInvalidInput, spot)
	}

	return Position{
		Underlying:  underlying,
		Quantity:    quantity,
		EntryPrice:  entryPrice,
		MarketPrice: spot,
		Spot:        spot,
		Greeks:      StockGreeks(),
	}, nil
}
