package api

import (
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/xhhuango/json"

	"github.com/deskview/deskview/calibration"
	"github.com/deskview/deskview/positions"
)

// Server wires the pricing engine behind a fiber app. Books live in
// memory only; portfolio persistence is an external concern.
type Server struct {
	provider calibration.MarketDataProvider
	runner   *calibration.Runner

	mu    sync.Mutex
	books map[string]*positions.Book
}

func NewServer(provider calibration.MarketDataProvider, runner *calibration.Runner) *Server {
	return &Server{
		provider: provider,
		runner:   runner,
		books:    make(map[string]*positions.Book),
	}
}

// App builds the fiber application with all routes registered.
func (s *Server) App() *fiber.App {
	app := fiber.New(fiber.Config{
		JSONEncoder: json.Marshal,
		JSONDecoder: json.Unmarshal,
	})

	app.Use(func(c *fiber.Ctx) error {
		c.Set("Access-Control-Allow-Origin", "*")
		c.Set("Access-Control-Allow-Methods", "GET, POST, DELETE")
		return c.Next()
	})

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(Response{Success: true, Data: "ok"})
	})

	app.Get("/api/market-data/:ticker", s.GetMarketData)
	app.Get("/api/maturities/:ticker", s.GetMaturities)

	app.Post("/greeks", s.PriceGreeks)

	app.Post("/book/:id/positions", s.AddPosition)
	app.Delete("/book/:id/positions/:pid", s.RemovePosition)
	app.Get("/book/:id", s.GetBook)
	app.Get("/book/:id/greeks", s.AggregateBook)
	app.Post("/book/:id/pnl", s.ExplainPnL)

	app.Get("/vol-surface/:ticker/market", s.MarketSurface)
	app.Get("/vol-surface/:ticker/heston", s.HestonSurface)
	app.Get("/vol-surface/:ticker/status", s.CalibrationStatus)

	return app
}

func (s *Server) book(id string) *positions.Book {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.books[id]
	if !ok {
		b = positions.NewBook()
		s.books[id] = b
	}
	return b
}
