package deskslack

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/socketmode"

	"github.com/deskview/deskview/calibration"
	"github.com/deskview/deskview/models"
)

type VolHandler struct {
	runner *calibration.Runner
}

func NewVolHandler(runner *calibration.Runner) *VolHandler {
	return &VolHandler{runner: runner}
}

func (h *VolHandler) HandleCommand(evt *socketmode.Event, client *socketmode.Client) error {
	data := evt.Data.(slack.SlashCommand)
	args := strings.Fields(data.Text)

	if len(args) != 3 {
		_, _, err := client.PostMessage(data.ChannelID,
			slack.MsgOptionText("Invalid number of arguments. Usage: /vol <ticker> <strike> <years>", false))
		return err
	}

	ticker := strings.ToUpper(args[0])
	strike, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return h.post(client, data.ChannelID, "Strike must be a number")
	}
	years, err := strconv.ParseFloat(args[2], 64)
	if err != nil || years <= 0 {
		return h.post(client, data.ChannelID, "Years must be a positive number")
	}

	status := h.runner.Status(ticker)
	if status.State != calibration.StateConverged {
		return h.post(client, data.ChannelID,
			fmt.Sprintf("No calibrated surface for %s. Run /calibrate %s first.", ticker, ticker))
	}

	vol := models.InterpolateVolatility(status.Result.Surface, strike, years)
	if math.IsNaN(vol) || vol <= 0 {
		return h.post(client, data.ChannelID,
			fmt.Sprintf("%s surface has no usable vol near strike %.2f, %.2fy", ticker, strike, years))
	}

	return h.post(client, data.ChannelID,
		fmt.Sprintf("%s implied vol at strike %.2f, %.2fy: %.2f%%", ticker, strike, years, vol))
}

func (h *VolHandler) post(client *socketmode.Client, channelID, text string) error {
	_, _, err := client.PostMessage(channelID, slack.MsgOptionText(text, false))
	return err
}
