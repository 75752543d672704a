package tradier

// Wire types mirror the Tradier market-data API responses. Only the fields
// the engine consumes are mapped.

type QuoteHistory struct {
	History struct {
		Day []DailyBar `json:"day"`
	} `json:"history"`
}

type DailyBar struct {
	Date   string  `json:"date"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume int     `json:"volume"`
}

type optionExpirations struct {
	Expirations struct {
		Date []string `json:"date"`
	} `json:"expirations"`
}

type optionChainResponse struct {
	Options struct {
		Option []chainOption `json:"option"`
	} `json:"options"`
}

type chainOption struct {
	Symbol         string      `json:"symbol"`
	Strike         float64     `json:"strike"`
	Bid            float64     `json:"bid"`
	Ask            float64     `json:"ask"`
	Last           interface{} `json:"last"` // null when never traded
	Volume         int         `json:"volume"`
	ExpirationDate string      `json:"expiration_date"`
	OptionType     string      `json:"option_type"`
}

// MarketQuote is one read-only market snapshot for a single pricing call:
// spot, a default implied vol (30d realized when no option quote supplies
// one), the continuously-compounded risk-free rate and the dividend yield.
type MarketQuote struct {
	Ticker        string  `json:"ticker"`
	Spot          float64 `json:"spot"`
	ImpliedVol    float64 `json:"implied_vol"`
	RiskFreeRate  float64 `json:"risk_free_rate"`
	DividendYield float64 `json:"dividend_yield"`
}

// ChainQuote is one normalized option-chain entry: strike x maturity x
// variant with the quoted prices and traded volume.
type ChainQuote struct {
	Strike       float64 `json:"strike"`
	MaturityDate string  `json:"maturity_date"` // 2006-01-02
	OptionType   string  `json:"option_type"`   // "call" or "put"
	Last         float64 `json:"last"`
	Bid          float64 `json:"bid"`
	Ask          float64 `json:"ask"`
	Volume       int     `json:"volume"`
}

// MidPrice returns the bid/ask midpoint when the quote is two-sided,
// falling back to the last traded price. Quotes whose spread exceeds the
// mid are treated as untradeable and price at 0 so extraction drops them.
func (q ChainQuote) MidPrice() float64 {
	if q.Bid > 0 && q.Ask >= q.Bid {
		mid := (q.Bid + q.Ask) / 2
		if q.Ask-q.Bid > mid {
			return 0
		}
		return mid
	}
	return q.Last
}
