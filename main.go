package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/xhhuango/json"

	"github.com/deskview/deskview/api"
	"github.com/deskview/deskview/calibration"
	deskslack "github.com/deskview/deskview/slack"
	"github.com/deskview/deskview/tradier"
)

func main() {
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file found, relying on environment")
	}

	tradierKey := os.Getenv("TRADIER_KEY")
	if tradierKey == "" {
		log.Fatal("TRADIER_KEY is required")
	}

	rfr := envFloat("RISK_FREE_RATE", 0.0425)
	divYield := envFloat("DIVIDEND_YIELD", 0.0)

	calibrateTicker := flag.String("calibrate", "", "run one calibration for the given ticker and exit")
	flag.Parse()

	provider := tradier.NewClient(tradierKey, rfr, divYield)

	if *calibrateTicker != "" {
		runOnce(provider, *calibrateTicker)
		return
	}

	runner := calibration.NewRunner(provider)
	server := api.NewServer(provider, runner)

	appToken := os.Getenv("SLACK_APP_TOKEN")
	botToken := os.Getenv("SLACK_BOT_TOKEN")
	if appToken != "" && botToken != "" {
		bot := deskslack.NewSlackBot(appToken, botToken, provider, runner)
		go func() {
			if err := bot.Start(); err != nil {
				log.Printf("slack bot stopped: %v", err)
			}
		}()
		log.Println("Slack bot connected")
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8000"
	}
	log.Printf("Listening on :%s", port)
	log.Fatal(server.App().Listen(":" + port))
}

// runOnce calibrates a single ticker with a terminal progress bar and
// dumps the result as JSON, mirroring what the API returns.
func runOnce(provider *tradier.Client, ticker string) {
	runner := calibration.NewRunner(provider, calibration.WithProgress())

	status := runner.Calibrate(ticker)
	if status.State != calibration.StateConverged {
		fmt.Printf("Calibration failed (%s): %s\n", status.Reason, status.Message)
		os.Exit(1)
	}

	out, err := json.MarshalIndent(status.Result, "", "  ")
	if err != nil {
		fmt.Printf("Error marshalling result: %s\n", err.Error())
		os.Exit(1)
	}

	f := ticker + "_heston.json"
	if err := os.WriteFile(f, out, 0644); err != nil {
		fmt.Printf("Error writing to file %s: %s\n", f, err.Error())
		os.Exit(1)
	}

	cal := status.Result.Calibration
	fmt.Printf("Calibrated %s on %d points, RMSE %.4f\n", ticker, cal.Points, cal.RMSE)
	fmt.Printf("Successfully wrote result to %s\n", f)
}

func envFloat(key string, fallback float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		log.Fatalf("%s must be a number, got %q", key, raw)
	}
	return v
}
