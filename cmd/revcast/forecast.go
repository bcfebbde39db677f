package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/freelanceflow/revcast/internal/analytics"
	"github.com/freelanceflow/revcast/internal/config"
	"github.com/freelanceflow/revcast/internal/persistence/postgres"
)

var (
	forecastUserID  string
	forecastTimeout time.Duration
)

// forecastCmd computes a single user's forecast and prints it as JSON.
// Useful for support investigations without going through the API.
var forecastCmd = &cobra.Command{
	Use:   "forecast",
	Short: "Compute one user's revenue forecast and print it",
	Example: `  revcast forecast --user 7f3a2c1e
  revcast forecast --user 7f3a2c1e --config /etc/revcast/revcast.yaml`,
	RunE: runForecast,
}

func init() {
	forecastCmd.Flags().StringVar(&forecastUserID, "user", "", "User ID to forecast (required)")
	forecastCmd.Flags().DurationVar(&forecastTimeout, "timeout", 30*time.Second, "Overall command timeout")
	forecastCmd.MarkFlagRequired("user")
}

func runForecast(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	policy, err := config.LoadPolicy(cfg.Forecast.PolicyPath, cfg.Forecast.ActiveProfile)
	if err != nil {
		return fmt.Errorf("failed to load forecast policy: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), forecastTimeout)
	defer cancel()

	db, err := postgres.Connect(ctx, postgres.Config{
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    2,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Minute,
		QueryTimeout:    cfg.Database.QueryTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to postgres: %w", err)
	}
	defer db.Close()

	// One-shot run: no cache, no snapshot write, no narration.
	service := analytics.NewService(analytics.Deps{
		Invoices: postgres.NewInvoiceRepo(db, cfg.Database.QueryTimeout),
		Policy:   policy,
	})

	report, err := service.RevenueForecast(ctx, forecastUserID)
	if err != nil {
		return fmt.Errorf("failed to compute forecast: %w", err)
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")

	return encoder.Encode(report)
}
