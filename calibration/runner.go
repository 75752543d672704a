// Package calibration drives Heston calibration runs as an explicit
// per-ticker state machine: Idle -> FetchingMarket -> Calibrating ->
// {Converged, Failed}. At most one calibration is in flight per ticker;
// concurrent requests for the same ticker coalesce onto that run and
// observe the same result.
package calibration

import (
	"errors"
	"fmt"
	"log"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/cpu"
	"github.com/vbauerster/mpb/v7"
	"github.com/vbauerster/mpb/v7/decor"

	"github.com/deskview/deskview/models"
	"github.com/deskview/deskview/tradier"
)

type State string

const (
	StateIdle           State = "idle"
	StateFetchingMarket State = "fetching_market"
	StateCalibrating    State = "calibrating"
	StateConverged      State = "converged"
	StateFailed         State = "failed"
)

// FailReason distinguishes the failure classes a caller can react to:
// retrying makes sense for upstream outages, not for a chain with no
// usable quotes.
type FailReason string

const (
	ReasonNone             FailReason = ""
	ReasonInsufficientData FailReason = "insufficient_data"
	ReasonOptimizerFailure FailReason = "optimizer_failure"
	ReasonPricingFailure   FailReason = "pricing_failure"
	ReasonUpstream         FailReason = "upstream_unavailable"
)

// MarketDataProvider is the consumed market-data collaborator.
// *tradier.Client satisfies it; tests plug in a fake.
type MarketDataProvider interface {
	GetSpotAndVol(ticker string) (tradier.MarketQuote, error)
	GetOptionChain(ticker string) ([]tradier.ChainQuote, error)
	GetMaturities(ticker string) ([]string, error)
}

// Result is the immutable outcome of one converged run.
type Result struct {
	Ticker        string                    `json:"ticker"`
	Spot          float64                   `json:"spot"`
	RiskFreeRate  float64                   `json:"risk_free_rate"`
	DividendYield float64                   `json:"dividend_yield"`
	Calibration   *models.HestonCalibration `json:"calibration"`
	Scatter       []models.VolSurfacePoint  `json:"scatter"`
	Surface       models.VolatilitySurface  `json:"-"`
	CompletedAt   time.Time                 `json:"completed_at"`
}

// Status is a point-in-time view of a ticker's run.
type Status struct {
	State   State      `json:"state"`
	Reason  FailReason `json:"reason,omitempty"`
	Message string     `json:"message,omitempty"`
	Result  *Result    `json:"result,omitempty"`
}

const (
	defaultMinPoints = 5

	// Nelder-Mead needs a far larger iteration budget than a
	// quasi-Newton method to reach function convergence in 5 dimensions.
	defaultMaxIterations = 2000
)

type run struct {
	state   State
	reason  FailReason
	message string
	result  *Result
	done    chan struct{}
}

// Runner owns the per-ticker state machines. Runs execute on their own
// goroutines behind a CPU-sized semaphore so a long calibration never
// blocks unrelated requests.
type Runner struct {
	provider      MarketDataProvider
	minPoints     int
	maxIterations int
	showProgress  bool

	workers chan struct{}

	mu   sync.Mutex
	runs map[string]*run
}

type Option func(*Runner)

// WithProgress renders an mpb progress bar during surface reconstruction.
// Meant for the CLI path; the server leaves it off.
func WithProgress() Option {
	return func(r *Runner) { r.showProgress = true }
}

// WithMinPoints overrides the minimum usable surface points required
// before the optimizer is started.
func WithMinPoints(n int) Option {
	return func(r *Runner) { r.minPoints = n }
}

// WithMaxIterations overrides the optimizer's major-iteration budget.
func WithMaxIterations(n int) Option {
	return func(r *Runner) { r.maxIterations = n }
}

func NewRunner(provider MarketDataProvider, opts ...Option) *Runner {
	r := &Runner{
		provider:      provider,
		minPoints:     defaultMinPoints,
		maxIterations: defaultMaxIterations,
		workers:       make(chan struct{}, workerCount()),
		runs:          make(map[string]*run),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// workerCount sizes the calibration semaphore from the physical CPU
// count, falling back to runtime.NumCPU when gopsutil cannot read it.
func workerCount() int {
	n, err := cpu.Counts(true)
	if err != nil || n < 1 {
		n = runtime.NumCPU()
	}
	if n < 1 {
		n = 1
	}
	return n
}

// Calibrate runs (or joins) the calibration for a ticker and blocks until
// it reaches a terminal state. Concurrent callers for the same ticker
// share one in-flight run; a caller arriving after a terminal state
// starts a fresh one. Failed runs are never retried automatically.
func (r *Runner) Calibrate(ticker string) Status {
	r.mu.Lock()
	current, ok := r.runs[ticker]
	if ok && (current.state == StateFetchingMarket || current.state == StateCalibrating) {
		r.mu.Unlock()
		<-current.done
		return r.statusOf(current)
	}

	current = &run{state: StateFetchingMarket, done: make(chan struct{})}
	r.runs[ticker] = current
	r.mu.Unlock()

	go r.execute(ticker, current)
	<-current.done
	return r.statusOf(current)
}

// statusOf snapshots one specific run. Calibrate reads the run it joined
// rather than re-reading the ticker map, so its return value cannot be the
// non-terminal state of a newer run that replaced the map entry.
func (r *Runner) statusOf(current *run) Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Status{
		State:   current.state,
		Reason:  current.reason,
		Message: current.message,
		Result:  current.result,
	}
}

// Status polls the state machine for a ticker. Unknown tickers are Idle.
func (r *Runner) Status(ticker string) Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.runs[ticker]
	if !ok {
		return Status{State: StateIdle}
	}
	return Status{
		State:   current.state,
		Reason:  current.reason,
		Message: current.message,
		Result:  current.result,
	}
}

func (r *Runner) execute(ticker string, current *run) {
	r.workers <- struct{}{}
	defer func() { <-r.workers }()
	defer close(current.done)

	quote, err := r.provider.GetSpotAndVol(ticker)
	if err != nil {
		r.fail(current, ReasonUpstream, err.Error())
		return
	}

	chain, err := r.provider.GetOptionChain(ticker)
	if err != nil {
		r.fail(current, ReasonUpstream, err.Error())
		return
	}

	points := models.ExtractSurfacePoints(chain, quote.Spot, quote.RiskFreeRate, quote.DividendYield, time.Now(), true)
	if len(points) < r.minPoints {
		r.fail(current, ReasonInsufficientData,
			fmt.Sprintf("no data: %d usable surface points for %s, need at least %d", len(points), ticker, r.minPoints))
		return
	}

	r.transition(current, StateCalibrating)
	log.Printf("calibrating %s against %d surface points", ticker, len(points))

	cal, err := models.CalibrateHeston(points, quote.Spot, quote.RiskFreeRate, quote.DividendYield, r.maxIterations)
	if err != nil {
		r.fail(current, calibrationFailReason(err), fmt.Sprintf("calibration error for %s: %v", ticker, err))
		return
	}
	if !cal.Converged {
		r.fail(current, ReasonOptimizerFailure,
			fmt.Sprintf("optimizer did not converge for %s within %d iterations (rmse %.4f)", ticker, r.maxIterations, cal.RMSE))
		return
	}
	if !cal.Feller {
		// Soft diagnostic only; the fit is still accepted.
		log.Printf("calibration for %s violates the Feller condition (2*kappa*theta < sigma_v^2)", ticker)
	}

	surface := r.reconstruct(cal, quote)

	result := &Result{
		Ticker:        ticker,
		Spot:          quote.Spot,
		RiskFreeRate:  quote.RiskFreeRate,
		DividendYield: quote.DividendYield,
		Calibration:   cal,
		Scatter:       points,
		Surface:       surface,
		CompletedAt:   time.Now(),
	}

	r.mu.Lock()
	current.state = StateConverged
	current.result = result
	r.mu.Unlock()
}

func (r *Runner) reconstruct(cal *models.HestonCalibration, quote tradier.MarketQuote) models.VolatilitySurface {
	model := cal.Params

	var progress func()
	var p *mpb.Progress
	if r.showProgress {
		p = mpb.New(mpb.WithWidth(64))
		bar := p.AddBar(int64(models.GridCells()),
			mpb.PrependDecorators(
				decor.Name("Surface"),
				decor.Percentage(decor.WCSyncSpace),
			),
			mpb.AppendDecorators(
				decor.CountersNoUnit("(%d / %d)", decor.WCSyncSpace),
			),
		)
		progress = bar.Increment
	}

	surface := models.ReconstructSurface(&model, quote.Spot, quote.RiskFreeRate, quote.DividendYield, progress)
	if p != nil {
		p.Wait()
	}
	return surface
}

// calibrationFailReason classifies a CalibrateHeston error. Non-finite
// pricing is reported distinctly from an optimizer failure because retrying
// with the same market data cannot help.
func calibrationFailReason(err error) FailReason {
	if errors.Is(err, models.ErrHestonPricing) {
		return ReasonPricingFailure
	}
	return ReasonOptimizerFailure
}

func (r *Runner) transition(current *run, next State) {
	r.mu.Lock()
	current.state = next
	r.mu.Unlock()
}

func (r *Runner) fail(current *run, reason FailReason, message string) {
	r.mu.Lock()
	current.state = StateFailed
	current.reason = reason
	current.message = message
	r.mu.Unlock()
	log.Printf("calibration failed (%s): %s", reason, message)
}
