package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freelanceflow/revcast/internal/analytics"
	"github.com/freelanceflow/revcast/internal/config"
	"github.com/freelanceflow/revcast/internal/metrics"
	"github.com/freelanceflow/revcast/internal/persistence"
)

type fakeService struct {
	report     *analytics.RevenueForecast
	history    []analytics.MonthPoint
	invoices   []persistence.Invoice
	snapshots  []persistence.ForecastSnapshot
	forecastFn func(ctx context.Context, userID string) (*analytics.RevenueForecast, error)
	err        error
}

func (f *fakeService) RevenueForecast(ctx context.Context, userID string) (*analytics.RevenueForecast, error) {
	if f.forecastFn != nil {
		return f.forecastFn(ctx, userID)
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.report, nil
}

func (f *fakeService) RevenueHistory(_ context.Context, _ string) ([]analytics.MonthPoint, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.history, nil
}

func (f *fakeService) RecentInvoices(_ context.Context, _ string, limit int) ([]persistence.Invoice, error) {
	if f.err != nil {
		return nil, f.err
	}
	if limit < len(f.invoices) {
		return f.invoices[:limit], nil
	}
	return f.invoices, nil
}

func (f *fakeService) LatestSnapshot(_ context.Context, _ string) (*persistence.ForecastSnapshot, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(f.snapshots) == 0 {
		return nil, nil
	}
	return &f.snapshots[0], nil
}

func (f *fakeService) SnapshotHistory(_ context.Context, _ string, _ int) ([]persistence.ForecastSnapshot, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.snapshots, nil
}

func testServer(t *testing.T, service ForecastService, checks map[string]HealthCheck) *Server {
	t.Helper()

	cfg := config.ServerConfig{
		Host:         "127.0.0.1",
		Port:         0,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  5 * time.Second,
	}
	reg := metrics.NewRegistry()
	handlers := NewHandlers(service, "test", checks, reg)

	return NewServer(cfg, handlers, nil, reg)
}

func sampleReport() *analytics.RevenueForecast {
	r2 := 0.93
	return &analytics.RevenueForecast{
		UserID:       "user-1",
		GeneratedAt:  time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC),
		WindowMonths: 12,
		Horizon:      3,
		Observed: []analytics.MonthPoint{
			{Month: "2026-07", Amount: 3400},
			{Month: "2026-08", Amount: 3800},
		},
		Projected: []analytics.MonthPoint{
			{Month: "2026-09", Amount: 4100},
		},
		Degree:   2,
		RSquared: &r2,
		Trend:    "rising",
	}
}

func TestRevenueForecast_Success(t *testing.T) {
	server := testServer(t, &fakeService{report: sampleReport()}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/forecast/revenue?user_id=user-1", nil)
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	var report analytics.RevenueForecast
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, "user-1", report.UserID)
	assert.Equal(t, "rising", report.Trend)
	assert.Len(t, report.Projected, 1)
}

func TestRevenueForecast_CacheHitHeader(t *testing.T) {
	report := sampleReport()
	report.FromCache = true
	server := testServer(t, &fakeService{report: report}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/forecast/revenue?user_id=user-1", nil)
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "HIT", rec.Header().Get("X-Cache"))
}

func TestRevenueForecast_MissingUserID(t *testing.T) {
	server := testServer(t, &fakeService{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/forecast/revenue", nil)
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp.Error, "user_id")
	assert.NotEmpty(t, resp.RequestID)
}

func TestRevenueForecast_ServiceError(t *testing.T) {
	server := testServer(t, &fakeService{err: errors.New("db down")}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/forecast/revenue?user_id=user-1", nil)
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	// Internal detail must not leak to the client.
	assert.NotContains(t, resp.Error, "db down")
}

func TestRevenueHistory_Success(t *testing.T) {
	history := []analytics.MonthPoint{
		{Month: "2026-07", Amount: 3400},
		{Month: "2026-08", Amount: 3800},
	}
	server := testServer(t, &fakeService{history: history}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/revenue/history?user_id=user-1", nil)
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp historyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "user-1", resp.UserID)
	assert.Equal(t, history, resp.Months)
}

func TestRevenueHistory_MissingUserID(t *testing.T) {
	server := testServer(t, &fakeService{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/revenue/history", nil)
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealth_Healthy(t *testing.T) {
	checks := map[string]HealthCheck{
		"postgres": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return nil },
	}
	server := testServer(t, &fakeService{}, checks)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "test", resp.Version)
	assert.Equal(t, "ok", resp.Checks["postgres"])
	assert.Equal(t, "ok", resp.Checks["redis"])
}

func TestHealth_DegradedDependency(t *testing.T) {
	checks := map[string]HealthCheck{
		"redis": func(context.Context) error { return errors.New("connection refused") },
	}
	server := testServer(t, &fakeService{}, checks)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp.Status)
	assert.Contains(t, resp.Checks["redis"], "connection refused")
}

func TestNotFound(t *testing.T) {
	server := testServer(t, &fakeService{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/nope", nil)
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	server := testServer(t, &fakeService{report: sampleReport()}, nil)

	// Generate one request so the HTTP histogram has a sample.
	warm := httptest.NewRequest(http.MethodGet, "/api/v1/forecast/revenue?user_id=user-1", nil)
	server.Router().ServeHTTP(httptest.NewRecorder(), warm)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "revcast_http_request_duration_seconds")
}

func TestCORSPreflight(t *testing.T) {
	server := testServer(t, &fakeService{}, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/forecast/revenue", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORS_RejectsLookalikeOrigins(t *testing.T) {
	server := testServer(t, &fakeService{report: sampleReport()}, nil)

	for _, origin := range []string{
		"https://evil-localhost.example.com",
		"https://localhost.example.com",
		"http://127.0.0.1.attacker.net",
		"not a url://",
	} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/forecast/revenue?user_id=user-1", nil)
		req.Header.Set("Origin", origin)
		rec := httptest.NewRecorder()
		server.Router().ServeHTTP(rec, req)

		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"), "origin %q must not be allowed", origin)
	}
}

func TestHealth_ReportsActivityCounters(t *testing.T) {
	server := testServer(t, &fakeService{report: sampleReport()}, nil)

	// Generate one request so the registry has activity to report.
	warm := httptest.NewRequest(http.MethodGet, "/api/v1/forecast/revenue?user_id=user-1", nil)
	server.Router().ServeHTTP(httptest.NewRecorder(), warm)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Activity)
	assert.Contains(t, resp.Activity, "revcast_ws_clients")
	assert.Equal(t, 1.0, resp.Activity["revcast_http_request_duration_seconds"])
}

func TestRecentInvoices_Success(t *testing.T) {
	paidAt := time.Date(2026, 8, 3, 9, 0, 0, 0, time.UTC)
	service := &fakeService{invoices: []persistence.Invoice{
		{ID: 41, UserID: "user-1", ClientID: 7, Number: "INV-0041", Status: persistence.InvoiceStatusPaid, Amount: 1800, PaidAt: &paidAt},
		{ID: 40, UserID: "user-1", ClientID: 7, Number: "INV-0040", Status: persistence.InvoiceStatusPaid, Amount: 2000, PaidAt: &paidAt},
	}}
	server := testServer(t, service, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/revenue/invoices?user_id=user-1", nil)
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp invoicesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "user-1", resp.UserID)
	require.Len(t, resp.Invoices, 2)
	assert.Equal(t, "INV-0041", resp.Invoices[0].Number)
}

func TestRecentInvoices_LimitParam(t *testing.T) {
	service := &fakeService{invoices: []persistence.Invoice{
		{ID: 41, UserID: "user-1"},
		{ID: 40, UserID: "user-1"},
	}}
	server := testServer(t, service, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/revenue/invoices?user_id=user-1&limit=1", nil)
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp invoicesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Invoices, 1)
}

func TestRecentInvoices_MissingUserID(t *testing.T) {
	server := testServer(t, &fakeService{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/revenue/invoices", nil)
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestForecastSnapshots_Success(t *testing.T) {
	r2 := 0.93
	service := &fakeService{snapshots: []persistence.ForecastSnapshot{
		{
			ID:           "snap-2",
			UserID:       "user-1",
			GeneratedAt:  time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC),
			WindowMonths: 12,
			Horizon:      3,
			Degree:       2,
			Coefficients: []float64{2857.14, 160.71, 3.57},
			RSquared:     &r2,
			Projections:  map[string]float64{"2026-09": 4100},
		},
		{ID: "snap-1", UserID: "user-1", GeneratedAt: time.Date(2026, 7, 15, 12, 0, 0, 0, time.UTC)},
	}}
	server := testServer(t, service, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/forecast/snapshots?user_id=user-1", nil)
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp snapshotsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "user-1", resp.UserID)
	require.NotNil(t, resp.Latest)
	assert.Equal(t, "snap-2", resp.Latest.ID)
	require.Len(t, resp.History, 2)
	assert.Equal(t, 2, resp.Latest.Degree)
}

func TestForecastSnapshots_NoneStored(t *testing.T) {
	server := testServer(t, &fakeService{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/forecast/snapshots?user_id=user-1", nil)
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp snapshotsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Nil(t, resp.Latest)
	assert.Empty(t, resp.History)
}

func TestForecastSnapshots_MissingUserID(t *testing.T) {
	server := testServer(t, &fakeService{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/forecast/snapshots", nil)
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
