package api

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/deskview/deskview/calibration"
	"github.com/deskview/deskview/models"
	"github.com/deskview/deskview/positions"
	"github.com/deskview/deskview/tradier"
)

func (s *Server) GetMarketData(c *fiber.Ctx) error {
	ticker := strings.ToUpper(c.Params("ticker"))

	quote, err := s.provider.GetSpotAndVol(ticker)
	if err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(Response{Success: false, Error: err.Error()})
	}
	return c.JSON(Response{Success: true, Data: quote})
}

func (s *Server) GetMaturities(c *fiber.Ctx) error {
	ticker := strings.ToUpper(c.Params("ticker"))

	maturities, err := s.provider.GetMaturities(ticker)
	if err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(Response{Success: false, Error: err.Error()})
	}
	return c.JSON(Response{Success: true, Data: fiber.Map{"ticker": ticker, "maturities": maturities}})
}

func (s *Server) PriceGreeks(c *fiber.Ctx) error {
	var req GreeksRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(Response{Success: false, Error: "invalid request body"})
	}

	contract, md, err := s.buildContract(req.Ticker, req.OptionType, req.Strike, req.Maturity, req.Quantity)
	if err != nil {
		return s.domainError(c, err)
	}
	if req.ImpliedVol > 0 {
		md.ImpliedVol = req.ImpliedVol
	}

	result, err := positions.PriceOption(contract, md, time.Now())
	if err != nil {
		return s.domainError(c, err)
	}

	return c.JSON(Response{Success: true, Data: GreeksResponse{
		Ticker: strings.ToUpper(req.Ticker),
		Spot:   md.Spot,
		Price:  result.Price,
		Delta:  result.Delta,
		Gamma:  result.Gamma,
		Vega:   result.Vega,
		Theta:  result.Theta,
		Rho:    result.Rho,
	}})
}

func (s *Server) AddPosition(c *fiber.Ctx) error {
	var req AddPositionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(Response{Success: false, Error: "invalid request body"})
	}

	book := s.book(c.Params("id"))

	var position positions.Position
	switch req.Kind {
	case "stock":
		quote, err := s.provider.GetSpotAndVol(strings.ToUpper(req.Ticker))
		if err != nil {
			return c.Status(fiber.StatusBadGateway).JSON(Response{Success: false, Error: err.Error()})
		}
		position, err = positions.NewStockPosition(
			positions.Underlying{Ticker: quote.Ticker, Currency: "USD"},
			req.Quantity, req.EntryPrice, quote.Spot)
		if err != nil {
			return s.domainError(c, err)
		}
	case "option":
		contract, md, err := s.buildContract(req.Ticker, req.OptionType, req.Strike, req.Maturity, req.Quantity)
		if err != nil {
			return s.domainError(c, err)
		}
		position, err = positions.NewOptionPosition(contract, md, req.EntryPrice, time.Now())
		if err != nil {
			return s.domainError(c, err)
		}
	default:
		return c.Status(fiber.StatusBadRequest).JSON(Response{Success: false, Error: "kind must be \"option\" or \"stock\""})
	}

	id, err := book.AddPosition(position)
	if err != nil {
		return s.domainError(c, err)
	}
	return c.JSON(Response{Success: true, Data: fiber.Map{"id": id}})
}

func (s *Server) RemovePosition(c *fiber.Ctx) error {
	book := s.book(c.Params("id"))
	if err := book.RemovePosition(c.Params("pid")); err != nil {
		return c.Status(fiber.StatusNotFound).JSON(Response{Success: false, Error: err.Error()})
	}
	return c.JSON(Response{Success: true})
}

func (s *Server) GetBook(c *fiber.Ctx) error {
	return c.JSON(Response{Success: true, Data: s.book(c.Params("id")).Snapshot()})
}

func (s *Server) AggregateBook(c *fiber.Ctx) error {
	snapshot := s.book(c.Params("id")).Snapshot()
	return c.JSON(Response{Success: true, Data: fiber.Map{
		"revision": snapshot.Revision,
		"greeks":   snapshot.AggregateGreeks(),
	}})
}

func (s *Server) ExplainPnL(c *fiber.Ctx) error {
	var req ScenarioRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(Response{Success: false, Error: "invalid request body"})
	}

	snapshot := s.book(c.Params("id")).Snapshot()
	explain, err := positions.ExplainPnL(snapshot, positions.ShockScenario{
		SpotShockPct:  req.SpotShockPct,
		VolShockPts:   req.VolShockPts,
		RateShockBps:  req.RateShockBps,
		TimeDecayDays: req.TimeDecayDays,
	})
	if err != nil {
		return s.domainError(c, err)
	}

	return c.JSON(Response{Success: true, Data: PnLResponse{PnLExplain: explain, TotalPnL: explain.Total()}})
}

func (s *Server) MarketSurface(c *fiber.Ctx) error {
	ticker := strings.ToUpper(c.Params("ticker"))

	quote, err := s.provider.GetSpotAndVol(ticker)
	if err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(Response{Success: false, Error: err.Error()})
	}
	chain, err := s.provider.GetOptionChain(ticker)
	if err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(Response{Success: false, Error: err.Error()})
	}

	points := models.ExtractSurfacePoints(chain, quote.Spot, quote.RiskFreeRate, quote.DividendYield, time.Now(), false)
	if len(points) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(Response{Success: false, Error: "no usable implied-vol points for " + ticker})
	}

	return c.JSON(Response{Success: true, Data: MarketSurfaceResponse{
		Ticker: ticker,
		Spot:   quote.Spot,
		R:      quote.RiskFreeRate,
		Q:      quote.DividendYield,
		Points: points,
	}})
}

// HestonSurface blocks the request until the (possibly shared) run for
// this ticker reaches a terminal state. Polling callers use the status
// endpoint instead.
func (s *Server) HestonSurface(c *fiber.Ctx) error {
	ticker := strings.ToUpper(c.Params("ticker"))

	status := s.runner.Calibrate(ticker)
	if status.State != calibration.StateConverged {
		code := fiber.StatusBadRequest
		if status.Reason == calibration.ReasonUpstream {
			code = fiber.StatusBadGateway
		}
		return c.Status(code).JSON(Response{Success: false, Error: status.Message})
	}

	result := status.Result
	return c.JSON(Response{Success: true, Data: fiber.Map{
		"ticker":         result.Ticker,
		"spot":           result.Spot,
		"r":              result.RiskFreeRate,
		"q":              result.DividendYield,
		"params":         result.Calibration,
		"market_scatter": result.Scatter,
		"surface":        toSurfaceGrid(result.Surface),
	}})
}

func (s *Server) CalibrationStatus(c *fiber.Ctx) error {
	ticker := strings.ToUpper(c.Params("ticker"))

	status := s.runner.Status(ticker)
	data := fiber.Map{"state": status.State}
	if status.Reason != calibration.ReasonNone {
		data["reason"] = status.Reason
		data["message"] = status.Message
	}
	return c.JSON(Response{Success: true, Data: data})
}

func (s *Server) buildContract(ticker, optType string, strike float64, maturity string, quantity float64) (positions.OptionContract, positions.MarketData, error) {
	ticker = strings.ToUpper(ticker)

	expiry, err := time.Parse("2006-01-02", maturity)
	if err != nil {
		return positions.OptionContract{}, positions.MarketData{}, positions.ErrInvalidInput
	}

	contract, err := positions.NewOptionContract(
		positions.Underlying{Ticker: ticker, Currency: "USD"},
		models.OptionType(optType), strike, expiry, quantity)
	if err != nil {
		return positions.OptionContract{}, positions.MarketData{}, err
	}

	quote, err := s.provider.GetSpotAndVol(ticker)
	if err != nil {
		return positions.OptionContract{}, positions.MarketData{}, err
	}

	return contract, positions.MarketData{
		Spot:          quote.Spot,
		ImpliedVol:    quote.ImpliedVol,
		RiskFreeRate:  quote.RiskFreeRate,
		DividendYield: quote.DividendYield,
	}, nil
}

// domainError maps the error taxonomy to HTTP statuses: invalid input and
// no-solution are the caller's problem, upstream outages are a gateway
// failure.
func (s *Server) domainError(c *fiber.Ctx, err error) error {
	code := fiber.StatusBadRequest
	if errors.Is(err, tradier.ErrUpstream) {
		code = fiber.StatusBadGateway
	}
	return c.Status(code).JSON(Response{Success: false, Error: err.Error()})
}
