package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/freelanceflow/revcast/internal/analytics"
	"github.com/freelanceflow/revcast/internal/cache"
	"github.com/freelanceflow/revcast/internal/config"
	"github.com/freelanceflow/revcast/internal/httpapi"
	"github.com/freelanceflow/revcast/internal/metrics"
	"github.com/freelanceflow/revcast/internal/narrate"
	"github.com/freelanceflow/revcast/internal/notify"
	"github.com/freelanceflow/revcast/internal/persistence/postgres"
	"github.com/freelanceflow/revcast/internal/scheduler"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the revcast HTTP service",
	Long: `Starts the forecasting service: connects to PostgreSQL and Redis,
exposes the REST API, WebSocket notifications, and Prometheus metrics, and
optionally runs the periodic forecast refresh scheduler.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if !cmd.Flags().Changed("log-level") {
		applyLogLevel(cfg.LogLevel)
	}

	policy, err := config.LoadPolicy(cfg.Forecast.PolicyPath, cfg.Forecast.ActiveProfile)
	if err != nil {
		return fmt.Errorf("failed to load forecast policy: %w", err)
	}
	log.Info().
		Str("profile", policy.Name).
		Int("window_months", policy.WindowMonths).
		Int("horizon", policy.Horizon).
		Msg("forecast policy loaded")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Connect(ctx, postgres.Config{
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		QueryTimeout:    cfg.Database.QueryTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to postgres: %w", err)
	}
	defer db.Close()

	reg := metrics.NewRegistry()

	forecastCache := cache.New(cache.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		TTL:      cfg.Redis.TTL,
	}, reg)
	defer forecastCache.Close()

	invoices := postgres.NewInvoiceRepo(db, cfg.Database.QueryTimeout)
	snapshots := postgres.NewForecastRepo(db, cfg.Database.QueryTimeout)

	var narrator analytics.Narrator
	if cfg.Narration.Enabled {
		narrator = narrate.NewClient(narrate.Config{
			BaseURL:     cfg.Narration.BaseURL,
			Timeout:     cfg.Narration.Timeout,
			RatePerSec:  cfg.Narration.RatePerSec,
			RateBurst:   cfg.Narration.RateBurst,
			MaxFailures: cfg.Narration.MaxFailures,
			OpenTimeout: cfg.Narration.OpenTimeout,
		})
		log.Info().Str("url", cfg.Narration.BaseURL).Msg("AI narration enabled")
	}

	service := analytics.NewService(analytics.Deps{
		Invoices:  invoices,
		Snapshots: snapshots,
		Cache:     forecastCache,
		Narrator:  narrator,
		Metrics:   reg,
		Policy:    policy,
	})

	hub := notify.NewHub(reg)
	defer hub.Close()

	handlers := httpapi.NewHandlers(service, version, map[string]httpapi.HealthCheck{
		"postgres": func(ctx context.Context) error { return db.PingContext(ctx) },
		"redis":    forecastCache.Health,
	}, reg)
	server := httpapi.NewServer(cfg.Server, handlers, hub, reg)

	if cfg.Scheduler.Enabled {
		sched := scheduler.New(cfg.Scheduler.Interval, service, service, hub)
		go sched.Run(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
		os.Exit(1)
	}

	return nil
}
