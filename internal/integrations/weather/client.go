// Package weather looks up current conditions on WeatherAPI.com.
package weather

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"travel-gateway/internal/domain"
)

const (
	// DefaultBaseURL is the public API endpoint used when none is configured.
	DefaultBaseURL = "https://api.weatherapi.com/v1"
	defaultTimeout = 10 * time.Second
	unknownTime    = "N/A"
)

type currentResponse struct {
	Location struct {
		Name      string `json:"name"`
		LocalTime string `json:"localtime"`
	} `json:"location"`
	Current struct {
		TempC      float64 `json:"temp_c"`
		FeelsLikeC float64 `json:"feelslike_c"`
		Condition  struct {
			Text string `json:"text"`
		} `json:"condition"`
	} `json:"current"`
}

// StatusError is a non-2xx answer from the provider.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("weather: unexpected status %d: %s", e.StatusCode, e.Body)
}

// HTTPStatusCode returns the provider's response status.
func (e *StatusError) HTTPStatusCode() int { return e.StatusCode }

// Client calls the current-conditions endpoint with an API key.
type Client struct {
	http   *resty.Client
	apiKey string
	lang   string
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides DefaultBaseURL. Blank values are ignored.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u = strings.TrimSpace(u); u != "" {
			c.http.SetBaseURL(strings.TrimRight(u, "/"))
		}
	}
}

// WithTimeout sets the per-request timeout. Non-positive values are ignored.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.SetTimeout(d)
		}
	}
}

// WithLanguage sets the language of the condition text. Defaults to "es".
func WithLanguage(lang string) Option {
	return func(c *Client) {
		if lang = strings.TrimSpace(lang); lang != "" {
			c.lang = lang
		}
	}
}

// New returns a client authenticated with apiKey.
func New(apiKey string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("weather: api key must not be empty")
	}
	c := &Client{
		http: resty.New().
			SetBaseURL(DefaultBaseURL).
			SetHeader("Accept", "application/json").
			SetTimeout(defaultTimeout),
		apiKey: apiKey,
		lang:   "es",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Lookup returns current conditions for place, temperatures rounded to one
// decimal and local time as HH:MM.
func (c *Client) Lookup(ctx context.Context, place string) (*domain.Weather, error) {
	place = strings.TrimSpace(place)
	if place == "" {
		return nil, errors.New("weather: place must not be empty")
	}

	var out currentResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"key":  c.apiKey,
			"q":    place,
			"lang": c.lang,
			"aqi":  "no",
		}).
		SetResult(&out).
		Get("/current.json")
	if err != nil {
		return nil, fmt.Errorf("weather: request: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, &StatusError{StatusCode: resp.StatusCode(), Body: truncate(resp.String(), 512)}
	}

	return &domain.Weather{
		TemperatureC: round1(out.Current.TempC),
		FeelsLikeC:   round1(out.Current.FeelsLikeC),
		Condition:    out.Current.Condition.Text,
		LocalTime:    clockTime(out.Location.LocalTime),
	}, nil
}

// clockTime extracts HH:MM from "YYYY-MM-DD H:MM".
func clockTime(localtime string) string {
	fields := strings.Fields(localtime)
	if len(fields) < 2 {
		return unknownTime
	}
	t := fields[1]
	if len(t) > 5 {
		t = t[:5]
	}
	return t
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
