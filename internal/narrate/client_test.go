package narrate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freelanceflow/revcast/internal/analytics"
)

func testReport() *analytics.RevenueForecast {
	r2 := 0.91

	return &analytics.RevenueForecast{
		UserID:   "user-1",
		Trend:    "rising",
		RSquared: &r2,
		Observed: []analytics.MonthPoint{
			{Month: "2026-07", Amount: 3400},
			{Month: "2026-08", Amount: 3800},
		},
		Projected: []analytics.MonthPoint{
			{Month: "2026-09", Amount: 4100},
		},
	}
}

func TestNarrate_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/narrate", r.URL.Path)

		var req narrationRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "user-1", req.UserID)
		assert.Equal(t, "rising", req.Trend)

		json.NewEncoder(w).Encode(narrationResponse{Narrative: "Revenue keeps climbing."})
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, RatePerSec: 100, RateBurst: 100})

	text, err := client.Narrate(context.Background(), testReport())
	require.NoError(t, err)
	assert.Equal(t, "Revenue keeps climbing.", text)
}

func TestNarrate_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, RatePerSec: 100, RateBurst: 100})

	_, err := client.Narrate(context.Background(), testReport())
	assert.Error(t, err)
}

func TestNarrate_EmptyNarrativeIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(narrationResponse{})
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, RatePerSec: 100, RateBurst: 100})

	_, err := client.Narrate(context.Background(), testReport())
	assert.Error(t, err)
}

func TestNarrate_RateLimited(t *testing.T) {
	client := NewClient(Config{BaseURL: "http://narrator.invalid", RatePerSec: 0.001, RateBurst: 1})

	// First call consumes the only token; it fails on the unreachable host,
	// which is fine for this test.
	client.Narrate(context.Background(), testReport())

	_, err := client.Narrate(context.Background(), testReport())
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestNarrate_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(Config{
		BaseURL:     server.URL,
		RatePerSec:  1000,
		RateBurst:   1000,
		MaxFailures: 2,
		OpenTimeout: time.Minute,
	})

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_, err := client.Narrate(ctx, testReport())
		require.Error(t, err)
	}

	_, err := client.Narrate(ctx, testReport())
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
}
