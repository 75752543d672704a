package deskslack

import (
	"github.com/slack-go/slack"
	"github.com/slack-go/slack/socketmode"

	"github.com/deskview/deskview/calibration"
)

type Handler struct {
	helpHandler      *HelpHandler
	greeksHandler    *GreeksHandler
	calibrateHandler *CalibrateHandler
	volHandler       *VolHandler
}

func NewHandler(provider calibration.MarketDataProvider, runner *calibration.Runner) *Handler {
	return &Handler{
		helpHandler:      NewHelpHandler(),
		greeksHandler:    NewGreeksHandler(provider),
		calibrateHandler: NewCalibrateHandler(runner),
		volHandler:       NewVolHandler(runner),
	}
}

func (h *Handler) Handle(evt *socketmode.Event, client *socketmode.Client) error {
	data := evt.Data.(slack.SlashCommand)
	switch data.Command {
	case "/help":
		err := h.helpHandler.HandleCommand(evt, client)
		if err != nil {
			return err
		}
	case "/greeks":
		err := h.greeksHandler.HandleCommand(evt, client)
		if err != nil {
			return err
		}
	case "/calibrate":
		err := h.calibrateHandler.HandleCommand(evt, client)
		if err != nil {
			return err
		}
	case "/vol":
		err := h.volHandler.HandleCommand(evt, client)
		if err != nil {
			return err
		}
	}

	client.Ack(*evt.Request)
	return nil
}
