// Package aggregate fans one prompt out to the text, weather and image
// providers and merges whatever comes back.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"travel-gateway/internal/domain"
	"travel-gateway/internal/logger"
)

const (
	defaultBranchTimeout = 10 * time.Second
	defaultTextTimeout   = 60 * time.Second
	defaultImageCount    = 3
)

// ErrTextFailed wraps every text-branch failure. Nothing else fails a request.
var ErrTextFailed = errors.New("aggregate: text generation failed")

var errEmptyText = errors.New("empty generated text")

type TextGenerator interface {
	Generate(ctx context.Context, prompt domain.Prompt) (domain.Generation, error)
}

type WeatherLookup interface {
	Lookup(ctx context.Context, place string) (*domain.Weather, error)
}

type ImageSearch interface {
	Search(ctx context.Context, place string, count int) ([]string, error)
}

type Options struct {
	BranchTimeout time.Duration
	TextTimeout   time.Duration
	ImageCount    int
}

// Aggregator runs the three upstream branches concurrently. Weather and
// images may be nil, in which case those branches report no data.
type Aggregator struct {
	text    TextGenerator
	weather WeatherLookup
	images  ImageSearch
	opts    Options
	logger  zerolog.Logger
}

func New(text TextGenerator, weather WeatherLookup, images ImageSearch, logger zerolog.Logger, opts Options) (*Aggregator, error) {
	if text == nil {
		return nil, errors.New("aggregate: text generator must not be nil")
	}
	if opts.BranchTimeout <= 0 {
		opts.BranchTimeout = defaultBranchTimeout
	}
	if opts.TextTimeout <= 0 {
		opts.TextTimeout = defaultTextTimeout
	}
	if opts.ImageCount <= 0 {
		opts.ImageCount = defaultImageCount
	}
	return &Aggregator{
		text:    text,
		weather: weather,
		images:  images,
		opts:    opts,
		logger:  logger,
	}, nil
}

// Aggregate waits for all branches. A failing branch never cancels its
// siblings; only a text failure produces an error.
func (a *Aggregator) Aggregate(ctx context.Context, prompt domain.Prompt, destination string) (domain.AggregatedResponse, error) {
	log := logger.FromContext(ctx, a.logger)

	var (
		gen     domain.Generation
		weather *domain.Weather
		images  []string
		g       errgroup.Group
	)
	g.Go(func() error {
		var err error
		gen, err = a.generate(ctx, log, prompt)
		return err
	})
	g.Go(func() error {
		weather = a.lookupWeather(ctx, log, destination)
		return nil
	})
	g.Go(func() error {
		images = a.searchImages(ctx, log, destination)
		return nil
	})
	if err := g.Wait(); err != nil {
		return domain.AggregatedResponse{}, fmt.Errorf("%w: %w", ErrTextFailed, err)
	}

	out := domain.AggregatedResponse{
		GeneratedText: gen.Text,
		FinishReason:  domain.NormalizeFinishReason(gen.FinishReason),
		Weather:       weather,
		Images:        images,
	}
	if weather != nil && weather.LocalTime != "" {
		out.Info = &domain.Info{LocalTime: weather.LocalTime}
	}
	return out, nil
}

func (a *Aggregator) generate(ctx context.Context, log zerolog.Logger, prompt domain.Prompt) (domain.Generation, error) {
	ctx, cancel := context.WithTimeout(ctx, a.opts.TextTimeout)
	defer cancel()

	start := time.Now()
	gen, err := a.text.Generate(ctx, prompt)
	if err == nil && strings.TrimSpace(gen.Text) == "" {
		err = errEmptyText
	}
	logBranch(log, "text", start, err)
	if err != nil {
		return domain.Generation{}, err
	}
	return gen, nil
}

func (a *Aggregator) lookupWeather(ctx context.Context, log zerolog.Logger, place string) *domain.Weather {
	if a.weather == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, a.opts.BranchTimeout)
	defer cancel()

	start := time.Now()
	w, err := a.weather.Lookup(ctx, place)
	logBranch(log, "weather", start, err)
	if err != nil {
		return nil
	}
	return w
}

func (a *Aggregator) searchImages(ctx context.Context, log zerolog.Logger, place string) []string {
	if a.images == nil {
		return []string{}
	}
	ctx, cancel := context.WithTimeout(ctx, a.opts.BranchTimeout)
	defer cancel()

	start := time.Now()
	urls, err := a.images.Search(ctx, place, a.opts.ImageCount)
	logBranch(log, "images", start, err)
	if err != nil || urls == nil {
		return []string{}
	}
	if len(urls) > a.opts.ImageCount {
		urls = urls[:a.opts.ImageCount]
	}
	return urls
}

func logBranch(log zerolog.Logger, branch string, start time.Time, err error) {
	latency := time.Since(start).Milliseconds()
	if err != nil {
		log.Warn().Err(err).Str("branch", branch).Bool("ok", false).Int64("latency_ms", latency).Msg("upstream branch failed")
		return
	}
	log.Info().Str("branch", branch).Bool("ok", true).Int64("latency_ms", latency).Msg("upstream branch done")
}
