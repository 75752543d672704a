package deskslack

import (
	"github.com/slack-go/slack"
	"github.com/slack-go/slack/socketmode"
)

type HelpHandler struct{}

func NewHelpHandler() *HelpHandler {
	return &HelpHandler{}
}

func (h *HelpHandler) HandleCommand(evt *socketmode.Event, client *socketmode.Client) error {
	data := evt.Data.(slack.SlashCommand)
	helpText := "Available commands:\n" +
		"/help - Show this help message\n" +
		"/greeks <ticker> <call|put> <strike> <maturity YYYY-MM-DD> - Price an option and show its greeks\n" +
		"/calibrate <ticker> - Calibrate a Heston surface from the listed chain\n" +
		"/vol <ticker> <strike> <years> - Interpolate the latest calibrated surface"

	_, _, err := client.PostMessage(data.ChannelID,
		slack.MsgOptionText(helpText, false))
	return err
}
