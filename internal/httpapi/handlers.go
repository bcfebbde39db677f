package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/freelanceflow/revcast/internal/analytics"
	"github.com/freelanceflow/revcast/internal/metrics"
	"github.com/freelanceflow/revcast/internal/persistence"
)

// ForecastService is the analytics surface the HTTP layer depends on
type ForecastService interface {
	RevenueForecast(ctx context.Context, userID string) (*analytics.RevenueForecast, error)
	RevenueHistory(ctx context.Context, userID string) ([]analytics.MonthPoint, error)
	RecentInvoices(ctx context.Context, userID string, limit int) ([]persistence.Invoice, error)
	LatestSnapshot(ctx context.Context, userID string) (*persistence.ForecastSnapshot, error)
	SnapshotHistory(ctx context.Context, userID string, limit int) ([]persistence.ForecastSnapshot, error)
}

// HealthCheck reports the readiness of one dependency
type HealthCheck func(ctx context.Context) error

// Handlers holds the HTTP handler implementations
type Handlers struct {
	service ForecastService
	checks  map[string]HealthCheck
	metrics *metrics.Registry
	version string
}

// NewHandlers creates the handler set. Checks are optional per-dependency
// health checks reported by /health; the registry, when present, feeds the
// health payload's activity counters.
func NewHandlers(service ForecastService, version string, checks map[string]HealthCheck, reg *metrics.Registry) *Handlers {
	return &Handlers{
		service: service,
		checks:  checks,
		metrics: reg,
		version: version,
	}
}

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

type healthResponse struct {
	Status    string             `json:"status"`
	Version   string             `json:"version"`
	Timestamp time.Time          `json:"timestamp"`
	Checks    map[string]string  `json:"checks,omitempty"`
	Activity  map[string]float64 `json:"activity,omitempty"`
}

type historyResponse struct {
	UserID string                 `json:"user_id"`
	Months []analytics.MonthPoint `json:"months"`
}

type invoicesResponse struct {
	UserID   string                `json:"user_id"`
	Invoices []persistence.Invoice `json:"invoices"`
}

type snapshotsResponse struct {
	UserID  string                         `json:"user_id"`
	Latest  *persistence.ForecastSnapshot  `json:"latest,omitempty"`
	History []persistence.ForecastSnapshot `json:"history"`
}

// Health reports service and dependency status
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:    "healthy",
		Version:   h.version,
		Timestamp: time.Now().UTC(),
	}

	if len(h.checks) > 0 {
		resp.Checks = make(map[string]string, len(h.checks))
		for name, check := range h.checks {
			if err := check(r.Context()); err != nil {
				resp.Checks[name] = err.Error()
				resp.Status = "degraded"
			} else {
				resp.Checks[name] = "ok"
			}
		}
	}

	if h.metrics != nil {
		activity, err := h.metrics.Snapshot()
		if err != nil {
			log.Warn().Err(err).Msg("failed to gather activity counters for health")
		} else {
			resp.Activity = activity
		}
	}

	status := http.StatusOK
	if resp.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, r, status, resp)
}

// RevenueForecast serves GET /api/v1/forecast/revenue?user_id=...
func (h *Handlers) RevenueForecast(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		h.writeError(w, r, http.StatusBadRequest, "user_id query parameter is required")
		return
	}

	report, err := h.service.RevenueForecast(r.Context(), userID)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("forecast request failed")
		h.writeError(w, r, http.StatusInternalServerError, "failed to build revenue forecast")
		return
	}

	if report.FromCache {
		w.Header().Set("X-Cache", "HIT")
	} else {
		w.Header().Set("X-Cache", "MISS")
	}

	writeJSON(w, r, http.StatusOK, report)
}

// RevenueHistory serves GET /api/v1/revenue/history?user_id=...
func (h *Handlers) RevenueHistory(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		h.writeError(w, r, http.StatusBadRequest, "user_id query parameter is required")
		return
	}

	months, err := h.service.RevenueHistory(r.Context(), userID)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("history request failed")
		h.writeError(w, r, http.StatusInternalServerError, "failed to load revenue history")
		return
	}

	writeJSON(w, r, http.StatusOK, historyResponse{UserID: userID, Months: months})
}

// RecentInvoices serves GET /api/v1/revenue/invoices?user_id=...&limit=...
func (h *Handlers) RecentInvoices(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		h.writeError(w, r, http.StatusBadRequest, "user_id query parameter is required")
		return
	}

	invoices, err := h.service.RecentInvoices(r.Context(), userID, limitParam(r, 50))
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("invoice list request failed")
		h.writeError(w, r, http.StatusInternalServerError, "failed to list paid invoices")
		return
	}
	if invoices == nil {
		invoices = []persistence.Invoice{}
	}

	writeJSON(w, r, http.StatusOK, invoicesResponse{UserID: userID, Invoices: invoices})
}

// ForecastSnapshots serves GET /api/v1/forecast/snapshots?user_id=...&limit=...
func (h *Handlers) ForecastSnapshots(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		h.writeError(w, r, http.StatusBadRequest, "user_id query parameter is required")
		return
	}

	latest, err := h.service.LatestSnapshot(r.Context(), userID)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("latest snapshot request failed")
		h.writeError(w, r, http.StatusInternalServerError, "failed to load forecast snapshots")
		return
	}

	history, err := h.service.SnapshotHistory(r.Context(), userID, limitParam(r, 12))
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("snapshot history request failed")
		h.writeError(w, r, http.StatusInternalServerError, "failed to load forecast snapshots")
		return
	}
	if history == nil {
		history = []persistence.ForecastSnapshot{}
	}

	writeJSON(w, r, http.StatusOK, snapshotsResponse{UserID: userID, Latest: latest, History: history})
}

// limitParam parses the optional limit query parameter, falling back when
// absent or unusable
func limitParam(r *http.Request, fallback int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback
	}

	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return fallback
	}

	return limit
}

// NotFound is the fallback for unknown routes
func (h *Handlers) NotFound(w http.ResponseWriter, r *http.Request) {
	h.writeError(w, r, http.StatusNotFound, "route not found")
}

func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	requestID, _ := r.Context().Value(requestIDKey{}).(string)
	writeJSON(w, r, status, errorResponse{Error: message, RequestID: requestID})
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("failed to encode response")
	}
}
