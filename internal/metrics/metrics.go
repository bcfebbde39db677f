// Package metrics exposes Prometheus instrumentation for the revcast service.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// Registry holds all Prometheus metrics for revcast
type Registry struct {
	reg *prometheus.Registry

	// Forecast engine metrics
	FitDuration      *prometheus.HistogramVec
	ForecastRequests *prometheus.CounterVec
	SnapshotsStored  prometheus.Counter

	// Cache performance metrics
	CacheHits   *prometheus.CounterVec
	CacheMisses *prometheus.CounterVec

	// HTTP metrics
	HTTPDuration *prometheus.HistogramVec

	// Notification metrics
	ActiveWSClients prometheus.Gauge
	EventsPublished prometheus.Counter
}

// NewRegistry creates a metrics registry with all revcast metrics registered
func NewRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),

		FitDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "revcast_fit_duration_seconds",
				Help:    "Duration of polynomial fit and projection runs",
				Buckets: []float64{0.00001, 0.0001, 0.001, 0.01, 0.1, 1.0},
			},
			[]string{"result"},
		),

		ForecastRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "revcast_forecast_requests_total",
				Help: "Total forecast requests by outcome",
			},
			[]string{"outcome"},
		),

		SnapshotsStored: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "revcast_snapshots_stored_total",
				Help: "Total forecast snapshots persisted",
			},
		),

		CacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "revcast_cache_hits_total",
				Help: "Total cache hits by cache type",
			},
			[]string{"cache_type"},
		),

		CacheMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "revcast_cache_misses_total",
				Help: "Total cache misses by cache type",
			},
			[]string{"cache_type"},
		),

		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "revcast_http_request_duration_seconds",
				Help:    "HTTP request duration by route and status",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
			},
			[]string{"route", "method", "status"},
		),

		ActiveWSClients: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "revcast_ws_clients",
				Help: "Currently connected WebSocket dashboard clients",
			},
		),

		EventsPublished: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "revcast_events_published_total",
				Help: "Total notification events broadcast to clients",
			},
		),
	}

	r.reg.MustRegister(
		r.FitDuration,
		r.ForecastRequests,
		r.SnapshotsStored,
		r.CacheHits,
		r.CacheMisses,
		r.HTTPDuration,
		r.ActiveWSClients,
		r.EventsPublished,
	)

	return r
}

// Gatherer returns the underlying registry for the /metrics handler
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// Snapshot gathers all counter and gauge values into a flat map, used by the
// health endpoint to report service activity without scraping
func (r *Registry) Snapshot() (map[string]float64, error) {
	families, err := r.reg.Gather()
	if err != nil {
		return nil, fmt.Errorf("failed to gather metrics: %w", err)
	}

	out := make(map[string]float64, len(families))
	for _, family := range families {
		total := 0.0
		for _, m := range family.GetMetric() {
			switch family.GetType() {
			case dto.MetricType_COUNTER:
				total += m.GetCounter().GetValue()
			case dto.MetricType_GAUGE:
				total += m.GetGauge().GetValue()
			case dto.MetricType_HISTOGRAM:
				total += float64(m.GetHistogram().GetSampleCount())
			default:
				continue
			}
		}
		out[family.GetName()] = total
	}

	return out, nil
}
