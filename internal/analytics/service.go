// Package analytics builds revenue forecasts for the dashboard: it
// aggregates paid invoices into a monthly series, runs the forecasting
// engine, and relabels the engine's integer time steps back into calendar
// months.
package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/freelanceflow/revcast/internal/cache"
	"github.com/freelanceflow/revcast/internal/config"
	"github.com/freelanceflow/revcast/internal/forecast"
	"github.com/freelanceflow/revcast/internal/metrics"
	"github.com/freelanceflow/revcast/internal/persistence"
)

// Degradation reasons surfaced on reports without projections.
const (
	ReasonInsufficientData = "insufficient data: need more paid invoices before projections are possible"
	ReasonFitNotPossible   = "fit not possible: revenue history is degenerate"
)

// Narrator turns a numeric forecast into dashboard prose. Implementations
// may fail; the service always falls back to a deterministic summary.
type Narrator interface {
	Narrate(ctx context.Context, report *RevenueForecast) (string, error)
}

// MonthPoint is one calendar month of observed or projected revenue
type MonthPoint struct {
	Month  string   `json:"month"`
	Amount float64  `json:"amount"`
	Fitted *float64 `json:"fitted,omitempty"`
}

// RevenueForecast is the dashboard-facing forecast report
type RevenueForecast struct {
	UserID       string       `json:"user_id"`
	GeneratedAt  time.Time    `json:"generated_at"`
	WindowMonths int          `json:"window_months"`
	Horizon      int          `json:"horizon"`
	Observed     []MonthPoint `json:"observed"`
	Projected    []MonthPoint `json:"projected,omitempty"`
	Degree       int          `json:"degree,omitempty"`
	Coefficients []float64    `json:"coefficients,omitempty"`
	Formula      string       `json:"formula,omitempty"`
	RSquared     *float64     `json:"r_squared,omitempty"`
	Trend        string       `json:"trend,omitempty"`
	Narrative    string       `json:"narrative,omitempty"`
	Reason       string       `json:"reason,omitempty"`
	PaidInvoices int64        `json:"paid_invoices"`
	FromCache    bool         `json:"-"`
}

// Deps wires the service's collaborators. Cache, snapshots, narrator, and
// metrics are optional; the numeric path works without them.
type Deps struct {
	Invoices  persistence.InvoiceRepo
	Snapshots persistence.ForecastRepo
	Cache     *cache.ForecastCache
	Narrator  Narrator
	Metrics   *metrics.Registry
	Policy    config.ForecastPolicy
}

// Service produces revenue forecasts
type Service struct {
	invoices  persistence.InvoiceRepo
	snapshots persistence.ForecastRepo
	cache     *cache.ForecastCache
	narrator  Narrator
	metrics   *metrics.Registry
	policy    config.ForecastPolicy

	now func() time.Time
}

// NewService creates an analytics service
func NewService(deps Deps) *Service {
	policy := deps.Policy
	if policy.WindowMonths == 0 {
		policy = config.DefaultPolicy()
	}

	return &Service{
		invoices:  deps.Invoices,
		snapshots: deps.Snapshots,
		cache:     deps.Cache,
		narrator:  deps.Narrator,
		metrics:   deps.Metrics,
		policy:    policy,
		now:       time.Now,
	}
}

// RevenueForecast builds the forecast report for a user, serving from cache
// when a fresh report exists.
func (s *Service) RevenueForecast(ctx context.Context, userID string) (*RevenueForecast, error) {
	if userID == "" {
		return nil, errors.New("analytics: user id is required")
	}

	key := cache.Key(userID, s.policy.WindowMonths, s.policy.Horizon)
	if s.cache != nil {
		if payload, ok := s.cache.Get(ctx, key); ok {
			var report RevenueForecast
			if err := json.Unmarshal(payload, &report); err == nil {
				report.FromCache = true
				s.countOutcome("cache_hit")
				return &report, nil
			}
			log.Warn().Str("user_id", userID).Msg("discarding undecodable cached forecast")
		}
	}

	report, err := s.computeForecast(ctx, userID)
	if err != nil {
		s.countOutcome("error")
		return nil, err
	}

	s.storeSnapshot(ctx, report)

	if s.cache != nil {
		if payload, err := json.Marshal(report); err == nil {
			if err := s.cache.Set(ctx, key, payload); err != nil {
				log.Warn().Err(err).Str("user_id", userID).Msg("failed to cache forecast")
			}
		}
	}

	return report, nil
}

// RevenueHistory returns the aggregated monthly revenue series without
// fitting a model, for the dashboard's history chart.
func (s *Service) RevenueHistory(ctx context.Context, userID string) ([]MonthPoint, error) {
	if userID == "" {
		return nil, errors.New("analytics: user id is required")
	}

	from, to := s.window()
	totals, err := s.invoices.MonthlyPaidRevenue(ctx, userID, persistence.TimeRange{From: from, To: to})
	if err != nil {
		return nil, fmt.Errorf("failed to load revenue history: %w", err)
	}

	series, months := monthlySeries(totals, from, to)

	points := make([]MonthPoint, len(series))
	for i := range series {
		points[i] = MonthPoint{Month: months[i].Format(monthKey), Amount: series[i].Y}
	}

	return points, nil
}

// RefreshForecast recomputes a user's forecast, bypassing and rewarming the
// cache. Used by the scheduler.
func (s *Service) RefreshForecast(ctx context.Context, userID string) (*RevenueForecast, error) {
	key := cache.Key(userID, s.policy.WindowMonths, s.policy.Horizon)
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, key); err != nil {
			log.Warn().Err(err).Str("user_id", userID).Msg("failed to invalidate forecast cache")
		}
	}

	return s.RevenueForecast(ctx, userID)
}

// RecentInvoices lists the paid invoices behind the current window, most
// recent first, for the dashboard's revenue drill-down.
func (s *Service) RecentInvoices(ctx context.Context, userID string, limit int) ([]persistence.Invoice, error) {
	if userID == "" {
		return nil, errors.New("analytics: user id is required")
	}
	if limit <= 0 {
		limit = 50
	}

	from, to := s.window()
	invoices, err := s.invoices.ListPaid(ctx, userID, persistence.TimeRange{From: from, To: to}, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list paid invoices: %w", err)
	}

	return invoices, nil
}

// LatestSnapshot returns the most recent stored forecast run for a user, or
// nil when none exists.
func (s *Service) LatestSnapshot(ctx context.Context, userID string) (*persistence.ForecastSnapshot, error) {
	if userID == "" {
		return nil, errors.New("analytics: user id is required")
	}
	if s.snapshots == nil {
		return nil, nil
	}

	snapshot, err := s.snapshots.Latest(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load latest snapshot: %w", err)
	}

	return snapshot, nil
}

// SnapshotHistory returns stored forecast runs inside the current window,
// most recent first, so a dashboard number can be traced to the model that
// produced it.
func (s *Service) SnapshotHistory(ctx context.Context, userID string, limit int) ([]persistence.ForecastSnapshot, error) {
	if userID == "" {
		return nil, errors.New("analytics: user id is required")
	}
	if s.snapshots == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 12
	}

	from, to := s.window()
	snapshots, err := s.snapshots.ListRange(ctx, userID, persistence.TimeRange{From: from, To: to}, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot history: %w", err)
	}

	return snapshots, nil
}

// ActiveUserIDs lists users with at least one paid invoice inside the
// current aggregation window. The scheduler uses this to decide whose
// forecasts to keep warm.
func (s *Service) ActiveUserIDs(ctx context.Context) ([]string, error) {
	from, to := s.window()

	userIDs, err := s.invoices.ActiveUserIDs(ctx, persistence.TimeRange{From: from, To: to})
	if err != nil {
		return nil, fmt.Errorf("failed to list active users: %w", err)
	}

	return userIDs, nil
}

// Policy returns the active forecast policy
func (s *Service) Policy() config.ForecastPolicy {
	return s.policy
}

func (s *Service) window() (time.Time, time.Time) {
	now := s.now().UTC()
	to := firstOfMonth(now).AddDate(0, 1, 0).Add(-time.Nanosecond) // end of current month
	from := firstOfMonth(now).AddDate(0, -(s.policy.WindowMonths - 1), 0)

	return from, to
}

func (s *Service) computeForecast(ctx context.Context, userID string) (*RevenueForecast, error) {
	from, to := s.window()

	totals, err := s.invoices.MonthlyPaidRevenue(ctx, userID, persistence.TimeRange{From: from, To: to})
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate monthly revenue: %w", err)
	}

	paidCount, err := s.invoices.CountPaid(ctx, userID, persistence.TimeRange{From: from, To: to})
	if err != nil {
		return nil, fmt.Errorf("failed to count paid invoices: %w", err)
	}

	series, months := monthlySeries(totals, from, to)

	report := &RevenueForecast{
		UserID:       userID,
		GeneratedAt:  s.now().UTC(),
		WindowMonths: s.policy.WindowMonths,
		Horizon:      s.policy.Horizon,
		PaidInvoices: paidCount,
		Observed:     make([]MonthPoint, len(series)),
	}
	for i := range series {
		report.Observed[i] = MonthPoint{Month: months[i].Format(monthKey), Amount: series[i].Y}
	}

	if len(series) < s.policy.MinSamples {
		report.Reason = ReasonInsufficientData
		report.Narrative = fallbackNarrative(report)
		s.countOutcome("insufficient_data")
		return report, nil
	}

	degree := s.policy.Degree(len(series))

	start := time.Now()
	model, err := forecast.FitModel(series, degree)
	if err != nil {
		s.observeFit(start, "error")
		if errors.Is(err, forecast.ErrSingularSystem) {
			// Degenerate history: report observations without projections
			// instead of surfacing garbage numbers.
			report.Reason = ReasonFitNotPossible
			report.Narrative = fallbackNarrative(report)
			s.countOutcome("fit_failed")
			return report, nil
		}
		return nil, fmt.Errorf("failed to fit revenue model: %w", err)
	}

	projections, err := forecast.Project(series, s.policy.Horizon, degree)
	if err != nil {
		s.observeFit(start, "error")
		return nil, fmt.Errorf("failed to project revenue: %w", err)
	}
	s.observeFit(start, "ok")

	report.Degree = model.Degree
	report.Coefficients = model.Coefficients
	report.Formula = model.Formula
	r2 := model.RSquared
	report.RSquared = &r2

	fitted := forecast.Fitted(series, model.Coefficients)
	for i := range fitted {
		f := fitted[i].Y
		report.Observed[i].Fitted = &f
	}

	lastMonth := months[len(months)-1]
	report.Projected = make([]MonthPoint, len(projections))
	for i, p := range projections {
		report.Projected[i] = MonthPoint{
			Month:  lastMonth.AddDate(0, i+1, 0).Format(monthKey),
			Amount: p.Y,
		}
	}

	report.Trend = classifyTrend(series, projections)
	report.Narrative = s.narrative(ctx, report)
	s.countOutcome("ok")

	return report, nil
}

// classifyTrend compares the projection horizon against the last observed
// month. Within ±2% counts as flat.
func classifyTrend(series []forecast.Sample, projections []forecast.Sample) string {
	if len(series) == 0 || len(projections) == 0 {
		return ""
	}

	last := series[len(series)-1].Y
	horizon := projections[len(projections)-1].Y

	if last == 0 {
		if horizon > 0 {
			return "rising"
		}
		return "flat"
	}

	change := (horizon - last) / last
	switch {
	case change > 0.02:
		return "rising"
	case change < -0.02:
		return "falling"
	default:
		return "flat"
	}
}

func (s *Service) narrative(ctx context.Context, report *RevenueForecast) string {
	if s.narrator != nil {
		text, err := s.narrator.Narrate(ctx, report)
		if err == nil && text != "" {
			return text
		}
		if err != nil {
			log.Debug().Err(err).Str("user_id", report.UserID).Msg("narration unavailable, using fallback summary")
		}
	}

	return fallbackNarrative(report)
}

// fallbackNarrative produces a deterministic summary when the narration
// service is disabled or unavailable.
func fallbackNarrative(report *RevenueForecast) string {
	if report.Reason != "" {
		return fmt.Sprintf("Not enough revenue history to project yet (%d months observed).", len(report.Observed))
	}

	total := 0.0
	for _, p := range report.Projected {
		total += p.Amount
	}

	confidence := "low"
	if report.RSquared != nil {
		switch {
		case *report.RSquared >= 0.8:
			confidence = "high"
		case *report.RSquared >= 0.5:
			confidence = "moderate"
		}
	}

	return fmt.Sprintf("Revenue is %s: projected %.2f over the next %d months (%s confidence).",
		report.Trend, total, len(report.Projected), confidence)
}

func (s *Service) storeSnapshot(ctx context.Context, report *RevenueForecast) {
	if s.snapshots == nil {
		return
	}

	snapshot := persistence.ForecastSnapshot{
		ID:           uuid.New().String(),
		UserID:       report.UserID,
		GeneratedAt:  report.GeneratedAt,
		WindowMonths: report.WindowMonths,
		Horizon:      report.Horizon,
		Degree:       report.Degree,
		Coefficients: report.Coefficients,
		RSquared:     report.RSquared,
		Reason:       report.Reason,
		Projections:  make(map[string]float64, len(report.Projected)),
	}
	for _, p := range report.Projected {
		snapshot.Projections[p.Month] = p.Amount
	}

	if err := s.snapshots.Insert(ctx, snapshot); err != nil {
		log.Warn().Err(err).Str("user_id", report.UserID).Msg("failed to store forecast snapshot")
		return
	}

	if s.metrics != nil {
		s.metrics.SnapshotsStored.Inc()
	}
}

func (s *Service) countOutcome(outcome string) {
	if s.metrics != nil {
		s.metrics.ForecastRequests.WithLabelValues(outcome).Inc()
	}
}

func (s *Service) observeFit(start time.Time, result string) {
	if s.metrics != nil {
		s.metrics.FitDuration.WithLabelValues(result).Observe(time.Since(start).Seconds())
	}
}
