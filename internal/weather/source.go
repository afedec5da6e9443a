package weather

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker"
	"github.com/timmy/noisewatch/internal/domain"
)

// Source is the opaque weather provider contract: one call returning the
// current reading or failing. Failures are transient by assumption; no
// retry contract exists beyond the circuit breaker.
type Source interface {
	Fetch(ctx context.Context) (domain.WeatherReading, error)
}

// ClientConfig holds configuration for the HTTP weather client.
type ClientConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client fetches current weather over HTTP. A circuit breaker stops
// hammering the endpoint while it is down.
type Client struct {
	http    *resty.Client
	baseURL string
	breaker *gobreaker.CircuitBreaker
}

// NewClient creates a weather HTTP client.
// Parameters:
//   - cfg: endpoint, optional API key, and request timeout.
// Returns:
//   - *Client: initialized client.
func NewClient(cfg *ClientConfig) *Client {
	httpClient := resty.New()
	httpClient.SetTimeout(cfg.Timeout)
	if cfg.APIKey != "" {
		httpClient.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "weather-source",
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
	})

	return &Client{
		http:    httpClient,
		baseURL: cfg.BaseURL,
		breaker: cb,
	}
}

// Fetch performs one weather request.
// Parameters:
//   - ctx: context for cancellation and deadlines.
// Returns:
//   - domain.WeatherReading: current observation.
//   - error: wraps domain.ErrWeatherFetch on any failure.
func (c *Client) Fetch(ctx context.Context) (domain.WeatherReading, error) {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		var reading domain.WeatherReading
		resp, err := c.http.R().
			SetContext(ctx).
			SetResult(&reading).
			Get(c.baseURL)
		if err != nil {
			return nil, err
		}
		if resp.IsError() {
			return nil, fmt.Errorf("unexpected status %d", resp.StatusCode())
		}
		return reading, nil
	})
	if err != nil {
		return domain.WeatherReading{}, fmt.Errorf("%w: %v", domain.ErrWeatherFetch, err)
	}
	return result.(domain.WeatherReading), nil
}
