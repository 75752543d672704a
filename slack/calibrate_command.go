package deskslack

import (
	"fmt"
	"strings"
	"time"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/socketmode"

	"github.com/deskview/deskview/calibration"
)

type CalibrateHandler struct {
	runner *calibration.Runner
}

func NewCalibrateHandler(runner *calibration.Runner) *CalibrateHandler {
	return &CalibrateHandler{runner: runner}
}

func (h *CalibrateHandler) HandleCommand(evt *socketmode.Event, client *socketmode.Client) error {
	data := evt.Data.(slack.SlashCommand)
	args := strings.Fields(data.Text)

	if len(args) != 1 {
		_, _, err := client.PostMessage(data.ChannelID,
			slack.MsgOptionText("Invalid number of arguments. Usage: /calibrate <ticker>", false))
		return err
	}
	ticker := strings.ToUpper(args[0])

	// Send initial message
	_, ts, err := client.PostMessage(data.ChannelID,
		slack.MsgOptionText(fmt.Sprintf("Starting Heston calibration for %s...", ticker), false))
	if err != nil {
		return err
	}

	go h.runWithProgress(client, data.ChannelID, ts, ticker)

	return nil
}

// runWithProgress posts a thread update on each state transition while a
// blocking calibration runs on its own goroutine.
func (h *CalibrateHandler) runWithProgress(client *socketmode.Client, channelID, timestamp, ticker string) {
	resultChan := make(chan calibration.Status)

	go func() {
		resultChan <- h.runner.Calibrate(ticker)
	}()

	poll := time.NewTicker(2 * time.Second)
	defer poll.Stop()

	lastState := calibration.StateIdle
	for {
		select {
		case <-poll.C:
			status := h.runner.Status(ticker)
			if status.State != lastState && !terminal(status.State) {
				lastState = status.State
				client.PostMessage(channelID,
					slack.MsgOptionText(fmt.Sprintf("%s: %s...", ticker, status.State), false),
					slack.MsgOptionTS(timestamp))
			}
		case status := <-resultChan:
			client.PostMessage(channelID,
				slack.MsgOptionText(formatStatus(ticker, status), false),
				slack.MsgOptionTS(timestamp))
			return
		}
	}
}

func terminal(state calibration.State) bool {
	return state == calibration.StateConverged || state == calibration.StateFailed
}

func formatStatus(ticker string, status calibration.Status) string {
	if status.State != calibration.StateConverged {
		return fmt.Sprintf("%s calibration failed (%s): %s", ticker, status.Reason, status.Message)
	}

	cal := status.Result.Calibration
	feller := "satisfied"
	if !cal.Feller {
		feller = "violated"
	}
	return fmt.Sprintf(
		"%s calibrated on %d points, RMSE %.4f (Feller %s)\n"+
			"v0=%.4f kappa=%.3f theta=%.4f sigma_v=%.3f rho=%.3f",
		ticker, cal.Points, cal.RMSE, feller,
		cal.Params.V0, cal.Params.Kappa, cal.Params.Theta, cal.Params.SigmaV, cal.Params.Rho)
}
