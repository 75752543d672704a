package calibration

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deskview/deskview/models"
	"github.com/deskview/deskview/tradier"
)

// fakeProvider serves a canned market; errors and gating are switchable
// per test.
type fakeProvider struct {
	quote      tradier.MarketQuote
	chain      []tradier.ChainQuote
	quoteErr   error
	chainErr   error
	quoteCalls int64

	gate chan struct{} // when set, GetSpotAndVol blocks until closed
}

func (f *fakeProvider) GetSpotAndVol(ticker string) (tradier.MarketQuote, error) {
	atomic.AddInt64(&f.quoteCalls, 1)
	if f.gate != nil {
		<-f.gate
	}
	if f.quoteErr != nil {
		return tradier.MarketQuote{}, f.quoteErr
	}
	return f.quote, nil
}

func (f *fakeProvider) GetOptionChain(ticker string) ([]tradier.ChainQuote, error) {
	if f.chainErr != nil {
		return nil, f.chainErr
	}
	return f.chain, nil
}

func (f *fakeProvider) GetMaturities(ticker string) ([]string, error) {
	return []string{"2026-09-18"}, nil
}

// flatVolChain builds out-of-the-money quotes priced at a single
// Black-Scholes vol, dated relative to now so extraction keeps them.
func flatVolChain(spot, sigma, r, q float64) []tradier.ChainQuote {
	var chain []tradier.ChainQuote
	now := time.Now()

	for _, months := range []int{3, 6, 12} {
		expiry := now.AddDate(0, months, 0)
		maturity := expiry.Format("2006-01-02")
		T := expiry.Sub(now).Hours() / 24 / 365

		for _, m := range []float64{0.85, 0.90, 0.95} {
			K := m * spot
			price := models.BSPrice(models.Put, spot, K, T, sigma, r, q)
			chain = append(chain, tradier.ChainQuote{
				Strike: K, MaturityDate: maturity, OptionType: "put",
				Bid: price - 0.01, Ask: price + 0.01, Volume: 100,
			})
		}
		for _, m := range []float64{1.05, 1.10, 1.15} {
			K := m * spot
			price := models.BSPrice(models.Call, spot, K, T, sigma, r, q)
			chain = append(chain, tradier.ChainQuote{
				Strike: K, MaturityDate: maturity, OptionType: "call",
				Bid: price - 0.01, Ask: price + 0.01, Volume: 100,
			})
		}
	}
	return chain
}

func marketQuote(spot float64) tradier.MarketQuote {
	return tradier.MarketQuote{
		Ticker: "SPY", Spot: spot, ImpliedVol: 0.25,
		RiskFreeRate: 0.04, DividendYield: 0.0,
	}
}

func TestRunnerStatusUnknownTickerIsIdle(t *testing.T) {
	runner := NewRunner(&fakeProvider{})
	status := runner.Status("AAPL")
	assert.Equal(t, StateIdle, status.State)
	assert.Equal(t, ReasonNone, status.Reason)
}

func TestRunnerUpstreamFailure(t *testing.T) {
	provider := &fakeProvider{quoteErr: fmt.Errorf("%w: status 503", tradier.ErrUpstream)}
	runner := NewRunner(provider)

	status := runner.Calibrate("SPY")
	assert.Equal(t, StateFailed, status.State)
	assert.Equal(t, ReasonUpstream, status.Reason)
	assert.Contains(t, status.Message, "503")
	assert.Nil(t, status.Result)
}

func TestRunnerChainFailureIsUpstream(t *testing.T) {
	provider := &fakeProvider{
		quote:    marketQuote(100),
		chainErr: errors.New("connection reset"),
	}
	runner := NewRunner(provider)

	status := runner.Calibrate("SPY")
	assert.Equal(t, StateFailed, status.State)
	assert.Equal(t, ReasonUpstream, status.Reason)
}

func TestRunnerInsufficientData(t *testing.T) {
	provider := &fakeProvider{quote: marketQuote(100)} // empty chain
	runner := NewRunner(provider)

	status := runner.Calibrate("SPY")
	assert.Equal(t, StateFailed, status.State)
	assert.Equal(t, ReasonInsufficientData, status.Reason)
	assert.Contains(t, status.Message, "no data")
}

func TestRunnerConvergedRun(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping full calibration in short mode")
	}

	provider := &fakeProvider{
		quote: marketQuote(100),
		chain: flatVolChain(100, 0.25, 0.04, 0.0),
	}
	runner := NewRunner(provider)

	status := runner.Calibrate("SPY")
	require.Equal(t, StateConverged, status.State, "message: %s", status.Message)
	require.NotNil(t, status.Result)

	result := status.Result
	assert.Equal(t, "SPY", result.Ticker)
	assert.Equal(t, 100.0, result.Spot)
	assert.NotEmpty(t, result.Scatter)
	assert.GreaterOrEqual(t, len(result.Scatter), defaultMinPoints)
	assert.NotEmpty(t, result.Surface.Vols)
	assert.False(t, result.CompletedAt.IsZero())

	// A flat synthetic surface should fit tightly.
	assert.True(t, result.Calibration.Converged)
	assert.Less(t, result.Calibration.RMSE, 0.5)

	// Polling after the fact sees the same terminal state.
	again := runner.Status("SPY")
	assert.Equal(t, StateConverged, again.State)
	assert.Same(t, result, again.Result)
}

func TestRunnerCoalescesConcurrentCallers(t *testing.T) {
	provider := &fakeProvider{
		quote: marketQuote(100),
		gate:  make(chan struct{}),
		// empty chain: the run terminates as InsufficientData, which is
		// enough to observe the shared in-flight run.
	}
	runner := NewRunner(provider)

	var wg sync.WaitGroup
	results := make([]Status, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0] = runner.Calibrate("SPY")
	}()

	// Wait for the first run to be in flight, then join it.
	require.Eventually(t, func() bool {
		return runner.Status("SPY").State == StateFetchingMarket
	}, time.Second, 5*time.Millisecond)

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[1] = runner.Calibrate("SPY")
	}()

	// Give the second caller time to reach the join path, then release.
	time.Sleep(50 * time.Millisecond)
	close(provider.gate)
	wg.Wait()

	assert.Equal(t, int64(1), atomic.LoadInt64(&provider.quoteCalls), "run was not shared")
	for i, status := range results {
		assert.Equal(t, StateFailed, status.State, "caller %d", i)
		assert.Equal(t, ReasonInsufficientData, status.Reason, "caller %d", i)
	}
}

func TestCalibrateReturnsOwnRunAfterNewerRunStarts(t *testing.T) {
	provider := &fakeProvider{
		quote: marketQuote(100),
		gate:  make(chan struct{}),
	}
	runner := NewRunner(provider)

	var wg sync.WaitGroup
	results := make([]Status, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0] = runner.Calibrate("SPY")
	}()

	require.Eventually(t, func() bool {
		return runner.Status("SPY").State == StateFetchingMarket
	}, time.Second, 5*time.Millisecond)

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[1] = runner.Calibrate("SPY")
	}()
	time.Sleep(50 * time.Millisecond)

	// Replace the ticker entry with a fresh in-flight run before the
	// blocked callers wake up. Both must still report the outcome of the
	// run they joined, never the newcomer's non-terminal state.
	runner.mu.Lock()
	runner.runs["SPY"] = &run{state: StateFetchingMarket, done: make(chan struct{})}
	runner.mu.Unlock()

	close(provider.gate)
	wg.Wait()

	for i, status := range results {
		assert.Equal(t, StateFailed, status.State, "caller %d", i)
		assert.Equal(t, ReasonInsufficientData, status.Reason, "caller %d", i)
	}
}

func TestCalibrationFailReasonClassifiesPricingErrors(t *testing.T) {
	wrapped := fmt.Errorf("calibration for SPY: %w", models.ErrHestonPricing)
	assert.Equal(t, ReasonPricingFailure, calibrationFailReason(wrapped))
	assert.Equal(t, ReasonOptimizerFailure, calibrationFailReason(errors.New("simplex stalled")))
}

func TestRunnerFailedRunIsNotRetriedAutomatically(t *testing.T) {
	provider := &fakeProvider{quoteErr: errors.New("down")}
	runner := NewRunner(provider)

	runner.Calibrate("SPY")
	calls := atomic.LoadInt64(&provider.quoteCalls)

	// Polling must not restart anything.
	runner.Status("SPY")
	runner.Status("SPY")
	assert.Equal(t, calls, atomic.LoadInt64(&provider.quoteCalls))

	// An explicit new request after a terminal state starts fresh.
	provider.quoteErr = nil
	status := runner.Calibrate("SPY")
	assert.Equal(t, calls+1, atomic.LoadInt64(&provider.quoteCalls))
	assert.Equal(t, ReasonInsufficientData, status.Reason) // chain still empty
}

func TestWorkerCountPositive(t *testing.T) {
	assert.GreaterOrEqual(t, workerCount(), 1)
}
