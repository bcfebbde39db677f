// Package narrate calls the AI narration service that turns forecast numbers
// into dashboard prose. The call path is best-effort: a circuit breaker and
// rate limiter keep a slow or failing narrator from dragging down the
// numeric analytics path.
package narrate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/freelanceflow/revcast/internal/analytics"
)

// ErrRateLimited is returned when the local rate limiter has no capacity.
var ErrRateLimited = errors.New("narrate: rate limit exceeded")

// Config holds narration client settings
type Config struct {
	BaseURL     string
	Timeout     time.Duration
	RatePerSec  float64
	RateBurst   int
	MaxFailures uint32
	OpenTimeout time.Duration
}

// Client is an HTTP client for the narration service
type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	limiter    *rate.Limiter
}

// narrationRequest is the wire request to the narration service
type narrationRequest struct {
	UserID    string                 `json:"user_id"`
	Trend     string                 `json:"trend"`
	RSquared  *float64               `json:"r_squared,omitempty"`
	Formula   string                 `json:"formula,omitempty"`
	Observed  []analytics.MonthPoint `json:"observed"`
	Projected []analytics.MonthPoint `json:"projected"`
}

// narrationResponse is the wire response from the narration service
type narrationResponse struct {
	Narrative string `json:"narrative"`
}

// NewClient creates a narration client
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 2
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = 4
	}
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 60 * time.Second
	}

	settings := gobreaker.Settings{
		Name:    "narration",
		Timeout: cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("narration circuit breaker state change")
		},
	}

	return &Client{
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		breaker:    gobreaker.NewCircuitBreaker(settings),
		limiter:    rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RateBurst),
	}
}

// Narrate asks the narration service for a prose summary of the report.
// Callers treat any error as "use the fallback summary".
func (c *Client) Narrate(ctx context.Context, report *analytics.RevenueForecast) (string, error) {
	if !c.limiter.Allow() {
		return "", ErrRateLimited
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.post(ctx, report)
	})
	if err != nil {
		return "", err
	}

	return result.(string), nil
}

func (c *Client) post(ctx context.Context, report *analytics.RevenueForecast) (string, error) {
	payload := narrationRequest{
		UserID:    report.UserID,
		Trend:     report.Trend,
		RSquared:  report.RSquared,
		Formula:   report.Formula,
		Observed:  report.Observed,
		Projected: report.Projected,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal narration request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/narrate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build narration request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("narration request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return "", fmt.Errorf("narration service returned status %d", resp.StatusCode)
	}

	var decoded narrationResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("failed to decode narration response: %w", err)
	}

	if decoded.Narrative == "" {
		return "", errors.New("narration service returned empty narrative")
	}

	return decoded.Narrative, nil
}
