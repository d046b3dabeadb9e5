// Package unsplash searches destination photos on the Unsplash API.
package unsplash

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	// DefaultBaseURL is the public API endpoint used when none is configured.
	DefaultBaseURL = "https://api.unsplash.com"
	defaultTimeout = 10 * time.Second
	maxPerPage     = 30
)

type searchResponse struct {
	Total   int `json:"total"`
	Results []struct {
		ID   string `json:"id"`
		URLs struct {
			Regular string `json:"regular"`
		} `json:"urls"`
	} `json:"results"`
}

// StatusError is a non-2xx answer from the provider.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unsplash: unexpected status %d: %s", e.StatusCode, e.Body)
}

// HTTPStatusCode returns the provider's response status.
func (e *StatusError) HTTPStatusCode() int { return e.StatusCode }

// Client searches photos with a Client-ID access key.
type Client struct {
	http *resty.Client
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

// New returns a client authenticated with accessKey.
func New(accessKey string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(accessKey) == "" {
		return nil, errors.New("unsplash: access key must not be empty")
	}
	c := &Client{
		http: resty.New().
			SetBaseURL(DefaultBaseURL).
			SetHeader("Authorization", "Client-ID "+accessKey).
			SetHeader("Accept-Version", "v1").
			SetTimeout(defaultTimeout),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Search returns up to count landscape photo URLs for place.
func (c *Client) Search(ctx context.Context, place string, count int) ([]string, error) {
	place = strings.TrimSpace(place)
	if place == "" {
		return nil, errors.New("unsplash: place must not be empty")
	}
	if count <= 0 {
		return []string{}, nil
	}
	if count > maxPerPage {
		count = maxPerPage
	}

	var out searchResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"query":       place + " travel landscape",
			"per_page":    strconv.Itoa(count),
			"orientation": "landscape",
		}).
		SetResult(&out).
		Get("/search/photos")
	if err != nil {
		return nil, fmt.Errorf("unsplash: request: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		body := resp.String()
		if len(body) > 512 {
			body = body[:512]
		}
		return nil, &StatusError{StatusCode: resp.StatusCode(), Body: body}
	}

	urls := make([]string, 0, len(out.Results))
	for _, r := range out.Results {
		if r.URLs.Regular != "" {
			urls = append(urls, r.URLs.Regular)
		}
	}
	return urls, nil
}
