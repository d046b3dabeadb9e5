// Package usage keeps best-effort query counters per destination.
package usage

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/rs/zerolog"

	"travel-gateway/internal/domain"
)

// ErrNotFound is returned by a Store that has never been written.
var ErrNotFound = errors.New("usage: no stored stats")

type Store interface {
	Load(ctx context.Context) (domain.UsageStats, error)
	Save(ctx context.Context, stats domain.UsageStats) error
}

// Recorder owns the counters. Callers only ever see copies.
type Recorder struct {
	store  Store
	logger zerolog.Logger
	now    func() time.Time

	mu    sync.Mutex
	stats domain.UsageStats

	flushMu sync.Mutex
}

func NewRecorder(store Store, logger zerolog.Logger) (*Recorder, error) {
	if store == nil {
		return nil, errors.New("usage: store must not be nil")
	}
	r := &Recorder{store: store, logger: logger, now: time.Now}
	r.stats = r.emptyStats()
	return r, nil
}

func (r *Recorder) emptyStats() domain.UsageStats {
	return domain.UsageStats{
		DestinationCounts: make(map[string]int),
		LastReset:         r.now().UTC(),
	}
}

// Load replaces the in-memory counters with the stored document. A missing
// or unreadable document resets the counters to zero.
func (r *Recorder) Load(ctx context.Context) {
	stats, err := r.store.Load(ctx)
	switch {
	case errors.Is(err, ErrNotFound):
		r.logger.Info().Msg("no usage stats stored yet, starting from zero")
		stats = r.emptyStats()
	case err != nil:
		r.logger.Warn().Err(err).Msg("usage stats unreadable, starting from zero")
		stats = r.emptyStats()
	}
	if stats.DestinationCounts == nil {
		stats.DestinationCounts = make(map[string]int)
	}
	if stats.LastReset.IsZero() {
		stats.LastReset = r.now().UTC()
	}

	r.mu.Lock()
	r.stats = stats
	r.mu.Unlock()
}

// Record counts one successful query for destination and flushes.
// Flush failures are logged, never returned.
func (r *Recorder) Record(ctx context.Context, destination string) {
	key := NormalizeDestination(destination)
	if key == "" {
		return
	}
	r.mu.Lock()
	r.stats.TotalQueries++
	r.stats.DestinationCounts[key]++
	r.mu.Unlock()

	r.flush(ctx)
}

func (r *Recorder) flush(ctx context.Context) {
	r.flushMu.Lock()
	defer r.flushMu.Unlock()

	if err := r.store.Save(ctx, r.Snapshot()); err != nil {
		r.logger.Warn().Err(err).Msg("usage stats flush failed")
	}
}

// Snapshot returns a deep copy of the counters.
func (r *Recorder) Snapshot() domain.UsageStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	counts := make(map[string]int, len(r.stats.DestinationCounts))
	for k, v := range r.stats.DestinationCounts {
		counts[k] = v
	}
	return domain.UsageStats{
		TotalQueries:      r.stats.TotalQueries,
		DestinationCounts: counts,
		LastReset:         r.stats.LastReset,
	}
}

// TopDestinations returns the n most queried destinations in stats,
// capitalized for display, ties broken by name.
func TopDestinations(stats domain.UsageStats, n int) []domain.DestinationCount {
	out := make([]domain.DestinationCount, 0, len(stats.DestinationCounts))
	for name, count := range stats.DestinationCounts {
		out = append(out, domain.DestinationCount{Destination: name, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Destination < out[j].Destination
	})
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	for i := range out {
		out[i].Destination = DisplayName(out[i].Destination)
	}
	return out
}

// NormalizeDestination is the counter key for a destination.
func NormalizeDestination(destination string) string {
	return strings.ToLower(strings.TrimSpace(destination))
}

// DisplayName upper-cases the first letter of a normalized key.
func DisplayName(key string) string {
	r := []rune(key)
	if len(r) == 0 {
		return key
	}
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}
