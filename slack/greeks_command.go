package deskslack

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/socketmode"

	"github.com/deskview/deskview/calibration"
	"github.com/deskview/deskview/models"
	"github.com/deskview/deskview/positions"
)

type GreeksHandler struct {
	provider calibration.MarketDataProvider
}

func NewGreeksHandler(provider calibration.MarketDataProvider) *GreeksHandler {
	return &GreeksHandler{provider: provider}
}

func (h *GreeksHandler) HandleCommand(evt *socketmode.Event, client *socketmode.Client) error {
	data := evt.Data.(slack.SlashCommand)
	args := strings.Fields(data.Text)

	if len(args) != 4 {
		_, _, err := client.PostMessage(data.ChannelID,
			slack.MsgOptionText("Invalid number of arguments. Usage: /greeks <ticker> <call|put> <strike> <maturity YYYY-MM-DD>", false))
		return err
	}

	ticker := strings.ToUpper(args[0])
	optType := models.OptionType(strings.ToLower(args[1]))
	strike, err := strconv.ParseFloat(args[2], 64)
	if err != nil {
		return h.post(client, data.ChannelID, "Strike must be a number")
	}
	maturity, err := time.Parse("2006-01-02", args[3])
	if err != nil {
		return h.post(client, data.ChannelID, "Maturity must be YYYY-MM-DD")
	}

	quote, err := h.provider.GetSpotAndVol(ticker)
	if err != nil {
		return h.post(client, data.ChannelID, fmt.Sprintf("Market data unavailable for %s: %v", ticker, err))
	}

	contract, err := positions.NewOptionContract(
		positions.Underlying{Ticker: ticker, Currency: "USD"},
		optType, strike, maturity, 1)
	if err != nil {
		return h.post(client, data.ChannelID, fmt.Sprintf("Bad contract: %v", err))
	}

	result, err := positions.PriceOption(contract, positions.MarketData{
		Spot:          quote.Spot,
		ImpliedVol:    quote.ImpliedVol,
		RiskFreeRate:  quote.RiskFreeRate,
		DividendYield: quote.DividendYield,
	}, time.Now())
	if err != nil {
		return h.post(client, data.ChannelID, fmt.Sprintf("Pricing failed: %v", err))
	}

	msg := fmt.Sprintf(
		"%s %s %.2f %s (spot %.2f, vol %.1f%%)\n"+
			"Price: %.4f\nDelta: %.4f\nGamma: %.6f\nVega: %.4f\nTheta: %.4f/day\nRho: %.4f",
		ticker, optType, strike, maturity.Format("2006-01-02"),
		quote.Spot, quote.ImpliedVol*100,
		result.Price, result.Delta, result.Gamma, result.Vega, result.Theta, result.Rho)

	return h.post(client, data.ChannelID, msg)
}

func (h *GreeksHandler) post(client *socketmode.Client, channelID, text string) error {
	_, _, err := client.PostMessage(channelID, slack.MsgOptionText(text, false))
	return err
}
