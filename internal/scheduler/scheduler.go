// Package scheduler keeps forecasts warm by periodically recomputing them
// for every active user and announcing refreshes over the notification hub.
package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/freelanceflow/revcast/internal/analytics"
	"github.com/freelanceflow/revcast/internal/notify"
)

// UserSource lists the users whose forecasts should be kept warm
type UserSource interface {
	ActiveUserIDs(ctx context.Context) ([]string, error)
}

// Refresher recomputes a single user's forecast
type Refresher interface {
	RefreshForecast(ctx context.Context, userID string) (*analytics.RevenueForecast, error)
}

// Publisher announces completed refreshes to connected dashboards
type Publisher interface {
	Publish(event notify.Event)
}

// Scheduler runs the periodic forecast refresh loop
type Scheduler struct {
	interval time.Duration
	users    UserSource
	service  Refresher
	hub      Publisher
}

// New creates a scheduler. The hub may be nil when notifications are not
// wanted.
func New(interval time.Duration, users UserSource, service Refresher, hub Publisher) *Scheduler {
	return &Scheduler{
		interval: interval,
		users:    users,
		service:  service,
		hub:      hub,
	}
}

// Run blocks, refreshing all forecasts every interval until the context is
// cancelled. The first refresh happens one interval after start so that
// service startup is not serialized behind a full recompute.
func (s *Scheduler) Run(ctx context.Context) {
	log.Info().Dur("interval", s.interval).Msg("forecast refresh scheduler started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("forecast refresh scheduler stopped")
			return
		case <-ticker.C:
			s.RefreshAll(ctx)
		}
	}
}

// RefreshAll recomputes the forecast for every active user. Per-user failures
// are logged and skipped so one broken history cannot stall the sweep.
func (s *Scheduler) RefreshAll(ctx context.Context) {
	start := time.Now()

	userIDs, err := s.users.ActiveUserIDs(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to list active users for forecast refresh")
		return
	}

	refreshed := 0
	for _, userID := range userIDs {
		if ctx.Err() != nil {
			return
		}

		report, err := s.service.RefreshForecast(ctx, userID)
		if err != nil {
			log.Warn().Err(err).Str("user_id", userID).Msg("forecast refresh failed")
			continue
		}
		refreshed++

		if s.hub != nil {
			s.hub.Publish(notify.Event{
				Type:   notify.EventForecastUpdated,
				UserID: userID,
				Payload: map[string]any{
					"trend":        report.Trend,
					"generated_at": report.GeneratedAt,
				},
			})
		}
	}

	log.Info().
		Int("users", len(userIDs)).
		Int("refreshed", refreshed).
		Dur("took", time.Since(start)).
		Msg("forecast refresh sweep complete")
}
