package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistry_RegistersAllMetrics(t *testing.T) {
	r := NewRegistry()

	r.ForecastRequests.WithLabelValues("ok").Inc()
	r.CacheHits.WithLabelValues("forecast").Add(3)
	r.CacheMisses.WithLabelValues("forecast").Inc()
	r.ActiveWSClients.Set(2)
	r.SnapshotsStored.Inc()
	r.FitDuration.WithLabelValues("ok").Observe(0.0004)

	snapshot, err := r.Snapshot()
	require.NoError(t, err)

	assert.Equal(t, 1.0, snapshot["revcast_forecast_requests_total"])
	assert.Equal(t, 3.0, snapshot["revcast_cache_hits_total"])
	assert.Equal(t, 1.0, snapshot["revcast_cache_misses_total"])
	assert.Equal(t, 2.0, snapshot["revcast_ws_clients"])
	assert.Equal(t, 1.0, snapshot["revcast_snapshots_stored_total"])
	assert.Equal(t, 1.0, snapshot["revcast_fit_duration_seconds"])
}

func TestSnapshot_EmptyRegistryHasNoFamilies(t *testing.T) {
	r := NewRegistry()

	snapshot, err := r.Snapshot()
	require.NoError(t, err)

	// Vec metrics without observations produce no families; only the plain
	// counters and gauges show up.
	assert.Contains(t, snapshot, "revcast_ws_clients")
	assert.NotContains(t, snapshot, "revcast_forecast_requests_total")
}
