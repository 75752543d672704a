package tradier

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/xhhuango/json"
)

const (
	baseURL = "https://api.tradier.com/v1"

	realizedVolWindow = 21 // trading days, ~30 calendar days

	minChainDays = 7
	maxChainDays = 730
)

// ErrUpstream marks a market-data provider failure. It is propagated to
// callers as-is; the engine never substitutes placeholder data for it.
var ErrUpstream = errors.New("tradier: upstream unavailable")

// Client fetches spot, history and option chains from the Tradier API.
type Client struct {
	Token         string
	RiskFreeRate  float64
	DividendYield float64

	baseURL    string
	httpClient *http.Client
}

func NewClient(token string, riskFreeRate, dividendYield float64) *Client {
	return &Client{
		Token:         token,
		RiskFreeRate:  riskFreeRate,
		DividendYield: dividendYield,
		baseURL:       baseURL,
		httpClient:    &http.Client{Timeout: 30 * time.Second},
	}
}

// GetSpotAndVol builds a market snapshot for one ticker: last close as
// spot, trailing Yang-Zhang realized vol as the default implied vol, and
// the configured rate and yield.
func (c *Client) GetSpotAndVol(ticker string) (MarketQuote, error) {
	history, err := c.getQuoteHistory(ticker)
	if err != nil {
		return MarketQuote{}, err
	}

	bars := history.History.Day
	if len(bars) == 0 {
		return MarketQuote{}, fmt.Errorf("%w: no price history for %s", ErrUpstream, ticker)
	}

	spot := bars[len(bars)-1].Close
	if spot <= 0 {
		return MarketQuote{}, fmt.Errorf("%w: non-positive close for %s", ErrUpstream, ticker)
	}

	return MarketQuote{
		Ticker:        ticker,
		Spot:          spot,
		ImpliedVol:    RealizedVolatility(bars, realizedVolWindow),
		RiskFreeRate:  c.RiskFreeRate,
		DividendYield: c.DividendYield,
	}, nil
}

// GetOptionChain fetches all quoted strikes across maturities between 7
// and 730 days out, normalized to ChainQuote entries.
func (c *Client) GetOptionChain(ticker string) ([]ChainQuote, error) {
	maturities, err := c.GetMaturities(ticker)
	if err != nil {
		return nil, err
	}

	today := time.Now()
	var quotes []ChainQuote

	for _, maturity := range maturities {
		expiry, err := time.Parse("2006-01-02", maturity)
		if err != nil {
			continue
		}
		days := int(expiry.Sub(today).Hours() / 24)
		if days < minChainDays || days > maxChainDays {
			continue
		}

		apiURL := fmt.Sprintf("%s/markets/options/chains?symbol=%s&expiration=%s", c.baseURL, ticker, maturity)
		var chain optionChainResponse
		if err := c.getJSON(apiURL, &chain); err != nil {
			return nil, err
		}

		for _, opt := range chain.Options.Option {
			quotes = append(quotes, ChainQuote{
				Strike:       opt.Strike,
				MaturityDate: opt.ExpirationDate,
				OptionType:   opt.OptionType,
				Last:         asFloat(opt.Last),
				Bid:          opt.Bid,
				Ask:          opt.Ask,
				Volume:       opt.Volume,
			})
		}
	}

	return quotes, nil
}

// GetMaturities returns the ordered expiration dates quoted for a ticker.
func (c *Client) GetMaturities(ticker string) ([]string, error) {
	apiURL := fmt.Sprintf("%s/markets/options/expirations?symbol=%s&includeAllRoots=true", c.baseURL, ticker)

	var expirations optionExpirations
	if err := c.getJSON(apiURL, &expirations); err != nil {
		return nil, err
	}

	return expirations.Expirations.Date, nil
}

func (c *Client) getQuoteHistory(ticker string) (*QuoteHistory, error) {
	end := time.Now().Format("2006-01-02")
	start := time.Now().AddDate(0, -3, 0).Format("2006-01-02")
	apiURL := fmt.Sprintf("%s/markets/history?symbol=%s&interval=daily&start=%s&end=%s&session_filter=all",
		c.baseURL, ticker, start, end)

	history := &QuoteHistory{}
	if err := c.getJSON(apiURL, history); err != nil {
		return nil, err
	}
	return history, nil
}

func (c *Client) getJSON(apiURL string, out interface{}) error {
	req, err := http.NewRequest(http.MethodGet, apiURL, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	req.Header.Add("Authorization", fmt.Sprintf("Bearer %s", c.Token))
	req.Header.Add("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d from %s", ErrUpstream, resp.StatusCode, apiURL)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: failed to read response: %v", ErrUpstream, err)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: failed to unmarshal response: %v", ErrUpstream, err)
	}
	return nil
}

// asFloat handles Tradier's habit of sending null instead of 0 for fields
// like last price.
func asFloat(v interface{}) float64 {
	f, _ := v.(float64)
	return f
}
