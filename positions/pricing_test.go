package positions

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deskview/deskview/models"
)

var (
	pricingValuation = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	pricingMaturity  = time.Date(2026, 9, 18, 0, 0, 0, 0, time.UTC)

	testUnderlying = Underlying{Ticker: "SPY", Currency: "USD"}
	testMarket     = MarketData{Spot: 100, ImpliedVol: 0.25, RiskFreeRate: 0.05, DividendYield: 0.01}
)

func TestPriceOptionMatchesModel(t *testing.T) {
	contract, err := NewOptionContract(testUnderlying, models.Call, 105, pricingMaturity, 1)
	require.NoError(t, err)

	result, err := PriceOption(contract, testMarket, pricingValuation)
	require.NoError(t, err)

	T := contract.TimeToExpiry(pricingValuation)
	expected := models.BSGreeks(models.Call, 100, 105, T, 0.25, 0.05, 0.01)
	assert.Equal(t, expected, result)
}

func TestPriceOptionRejectsBadMarketData(t *testing.T) {
	contract, _ := NewOptionContract(testUnderlying, models.Call, 100, pricingMaturity, 1)

	_, err := PriceOption(contract, MarketData{Spot: 0, ImpliedVol: 0.2}, pricingValuation)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = PriceOption(contract, MarketData{Spot: 100, ImpliedVol: -0.1}, pricingValuation)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestPriceOptionExpiredContract(t *testing.T) {
	contract, _ := NewOptionContract(testUnderlying, models.Put, 110, pricingMaturity, 1)

	after := pricingMaturity.AddDate(0, 1, 0)
	result, err := PriceOption(contract, testMarket, after)
	require.NoError(t, err)

	assert.Equal(t, 10.0, result.Price) // intrinsic
	assert.Equal(t, -1.0, result.Delta)
	assert.Equal(t, 0.0, result.Vega)
}

func TestImplyVolRoundTrip(t *testing.T) {
	contract, _ := NewOptionContract(testUnderlying, models.Call, 100, pricingMaturity, 1)

	priced, err := PriceOption(contract, testMarket, pricingValuation)
	require.NoError(t, err)

	iv, err := ImplyVol(contract, priced.Price, testMarket, pricingValuation)
	require.NoError(t, err)
	assert.InDelta(t, testMarket.ImpliedVol, iv, 1e-5)
}

func TestImplyVolRejectsNonPositivePrice(t *testing.T) {
	contract, _ := NewOptionContract(testUnderlying, models.Call, 100, pricingMaturity, 1)
	_, err := ImplyVol(contract, 0, testMarket, pricingValuation)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestNewOptionContractValidation(t *testing.T) {
	_, err := NewOptionContract(testUnderlying, models.Call, -5, pricingMaturity, 1)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = NewOptionContract(testUnderlying, models.Call, 100, time.Time{}, 1)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = NewOptionContract(testUnderlying, "swaption", 100, pricingMaturity, 1)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestTimeToExpiryNeverNegative(t *testing.T) {
	contract, _ := NewOptionContract(testUnderlying, models.Call, 100, pricingMaturity, 1)
	assert.Equal(t, 0.0, contract.TimeToExpiry(pricingMaturity.AddDate(1, 0, 0)))
	assert.Greater(t, contract.TimeToExpiry(pricingValuation), 0.0)
}

func TestNewOptionPositionCarriesPerUnitGreeks(t *testing.T) {
	contract, _ := NewOptionContract(testUnderlying, models.Call, 100, pricingMaturity, -10)

	pos, err := NewOptionPosition(contract, testMarket, 3.5, pricingValuation)
	require.NoError(t, err)

	assert.Equal(t, -10.0, pos.Quantity)
	assert.Equal(t, 3.5, pos.EntryPrice)
	assert.Equal(t, testMarket.Spot, pos.Spot)
	assert.False(t, pos.IsStock())

	// Greeks are stored per unit; the sign comes from quantity at
	// aggregation time.
	assert.Greater(t, pos.Greeks.Delta, 0.0)
	assert.Greater(t, pos.Greeks.Vega, 0.0)
}

func TestNewStockPositionDeltaOne(t *testing.T) {
	pos, err := NewStockPosition(testUnderlying, 200, 98.5, 100)
	require.NoError(t, err)

	assert.True(t, pos.IsStock())
	assert.Equal(t, Greeks{Delta: 1}, pos.Greeks)

	book := NewBook()
	book.AddPosition(pos)
	assert.InDelta(t, 200.0, book.Snapshot().AggregateGreeks().Delta, 1e-12)
}

func TestNewStockPositionRejectsBadSpot(t *testing.T) {
	_, err := NewStockPosition(testUnderlying, 100, 98.5, 0)
	assert.ErrorIs(t, err, ErrInvalidInput)
}
