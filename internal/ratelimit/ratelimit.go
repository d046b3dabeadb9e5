// Package ratelimit enforces per-route fixed-window quotas keyed by caller.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Route names a quota-bearing endpoint.
type Route string

const (
	RoutePlan Route = "plan"
	RouteChat Route = "chat"
)

// Quota allows Limit hits per caller in each fixed Window.
type Quota struct {
	Limit  int
	Window time.Duration
}

// ErrLimited matches every *LimitedError with errors.Is.
var ErrLimited = errors.New("ratelimit: quota exceeded")

// LimitedError is returned when a caller has used up its quota for the
// current window.
type LimitedError struct {
	Route      Route
	RetryAfter time.Duration
}

// Error reports the route and the wait before the next window.
func (e *LimitedError) Error() string {
	return fmt.Sprintf("ratelimit: %s quota exceeded, retry after %s", e.Route, e.RetryAfter)
}

func (e *LimitedError) Unwrap() error { return ErrLimited }

// Store records hits. Increment must perform the read-check-increment for
// one bucket atomically and report whether the hit fit under limit.
type Store interface {
	Increment(ctx context.Context, bucket string, windowStart time.Time, window time.Duration, limit int) (bool, error)
}

// Limiter charges hits against per-route quotas held in a Store.
type Limiter struct {
	store    Store
	quotas   map[Route]Quota
	logger   zerolog.Logger
	now      func() time.Time
	failOpen bool
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithFailOpen sets whether a store failure lets the request through
// (true, the default) or is returned to the caller.
func WithFailOpen(failOpen bool) Option {
	return func(l *Limiter) {
		l.failOpen = failOpen
	}
}

// New validates quotas and returns a Limiter backed by store.
func New(store Store, quotas map[Route]Quota, logger zerolog.Logger, opts ...Option) (*Limiter, error) {
	if store == nil {
		return nil, errors.New("ratelimit: store must not be nil")
	}
	for route, q := range quotas {
		if q.Limit <= 0 || q.Window <= 0 {
			return nil, fmt.Errorf("ratelimit: invalid quota for route %q", route)
		}
	}
	l := &Limiter{
		store:    store,
		quotas:   quotas,
		logger:   logger,
		now:      time.Now,
		failOpen: true,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Key derives the bucket owner: the verified identity when present,
// otherwise the network address.
func Key(identity, address string) string {
	if id := strings.TrimSpace(identity); id != "" {
		return "user:" + id
	}
	return strings.TrimSpace(address)
}

// Allow consumes one unit of route's quota for key. Routes without a quota
// are unlimited. Store failures are logged; they let the request through
// unless the limiter was built with WithFailOpen(false).
func (l *Limiter) Allow(ctx context.Context, route Route, key string) error {
	q, ok := l.quotas[route]
	if !ok {
		return nil
	}
	now := l.now()
	windowStart := now.Truncate(q.Window)

	allowed, err := l.store.Increment(ctx, string(route)+"#"+key, windowStart, q.Window, q.Limit)
	if err != nil {
		if !l.failOpen {
			l.logger.Error().Err(err).Str("route", string(route)).Msg("rate limit store unavailable, refusing request")
			return fmt.Errorf("ratelimit: store: %w", err)
		}
		l.logger.Error().Err(err).Str("route", string(route)).Msg("rate limit store unavailable, allowing request")
		return nil
	}
	if !allowed {
		return &LimitedError{Route: route, RetryAfter: windowStart.Add(q.Window).Sub(now)}
	}
	return nil
}
