package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"travel-gateway/internal/aggregate"
	"travel-gateway/internal/auth"
	"travel-gateway/internal/domain"
	"travel-gateway/internal/logger"
	"travel-gateway/internal/ratelimit"
	"travel-gateway/internal/sanitize"
	"travel-gateway/internal/usage"
)

const topDestinationsLimit = 5

type AuthMode string

const (
	AuthRequired AuthMode = "required"
	AuthOptional AuthMode = "optional"
)

type IdentityResolver interface {
	Resolve(ctx context.Context, authorization string) auth.Identity
}

type RateLimiter interface {
	Allow(ctx context.Context, route ratelimit.Route, key string) error
}

type Aggregator interface {
	Aggregate(ctx context.Context, prompt domain.Prompt, destination string) (domain.AggregatedResponse, error)
}

type UsageRecorder interface {
	Record(ctx context.Context, destination string)
	Snapshot() domain.UsageStats
}

type httpStatusCoder interface {
	HTTPStatusCode() int
}

type Options struct {
	AuthMode      AuthMode
	TextAvailable bool
}

// Service runs plan and chat requests through identity, quota,
// sanitization, composition and aggregation, in that order.
type Service struct {
	identity  IdentityResolver
	limiter   RateLimiter
	sanitizer *sanitize.Sanitizer
	composer  *Composer
	agg       Aggregator
	usage     UsageRecorder
	opts      Options
	logger    zerolog.Logger
}

// Caller carries the transport facts needed to identify a request.
type Caller struct {
	Authorization string
	Address       string
}

type PlanInput struct {
	Caller
	Destination       string
	Date              string
	Budget            string
	Style             string
	PreferredCurrency string
}

// ChatInput keeps history entries undecoded so malformed entries can be
// dropped one by one instead of failing the request.
type ChatInput struct {
	PlanInput
	Message string
	History []json.RawMessage
}

type HealthOutput struct {
	Status               string
	TextServiceAvailable bool
}

type StatsOutput struct {
	TotalQueries    int
	TopDestinations []domain.DestinationCount
	LastReset       time.Time
}

func NewService(identity IdentityResolver, limiter RateLimiter, sanitizer *sanitize.Sanitizer, composer *Composer, agg Aggregator, recorder UsageRecorder, logger zerolog.Logger, opts Options) (*Service, error) {
	if identity == nil {
		return nil, errors.New("usecase: identity resolver must not be nil")
	}
	if limiter == nil {
		return nil, errors.New("usecase: rate limiter must not be nil")
	}
	if sanitizer == nil {
		return nil, errors.New("usecase: sanitizer must not be nil")
	}
	if composer == nil {
		return nil, errors.New("usecase: composer must not be nil")
	}
	if agg == nil {
		return nil, errors.New("usecase: aggregator must not be nil")
	}
	if recorder == nil {
		return nil, errors.New("usecase: usage recorder must not be nil")
	}
	switch opts.AuthMode {
	case "":
		opts.AuthMode = AuthRequired
	case AuthRequired, AuthOptional:
	default:
		return nil, errors.New("usecase: unknown auth mode " + string(opts.AuthMode))
	}
	return &Service{
		identity:  identity,
		limiter:   limiter,
		sanitizer: sanitizer,
		composer:  composer,
		agg:       agg,
		usage:     recorder,
		opts:      opts,
		logger:    logger,
	}, nil
}

func (s *Service) Plan(ctx context.Context, in PlanInput) (domain.AggregatedResponse, error) {
	ctx, err := s.admit(ctx, ratelimit.RoutePlan, in.Caller)
	if err != nil {
		return domain.AggregatedResponse{}, err
	}
	q, err := s.sanitizeQuery(in)
	if err != nil {
		return domain.AggregatedResponse{}, err
	}
	s.logRequest(ctx, q, 0, 0)

	prompt := s.composer.Compose(q, ModeInitialPlan, nil, "")
	return s.aggregate(ctx, q, prompt)
}

func (s *Service) Chat(ctx context.Context, in ChatInput) (domain.AggregatedResponse, error) {
	ctx, err := s.admit(ctx, ratelimit.RouteChat, in.Caller)
	if err != nil {
		return domain.AggregatedResponse{}, err
	}
	q, err := s.sanitizeQuery(in.PlanInput)
	if err != nil {
		return domain.AggregatedResponse{}, err
	}
	message, err := s.sanitizer.Required("message", in.Message, sanitize.MaxMessageLength)
	if err != nil {
		return domain.AggregatedResponse{}, rejection(err)
	}
	history := s.sanitizeHistory(ctx, in.History)
	s.logRequest(ctx, q, len(in.History), len(history))

	prompt := s.composer.Compose(q, ModeFor(history), history, message)
	return s.aggregate(ctx, q, prompt)
}

func (s *Service) Health() HealthOutput {
	return HealthOutput{Status: "ok", TextServiceAvailable: s.opts.TextAvailable}
}

func (s *Service) Stats() StatsOutput {
	snap := s.usage.Snapshot()
	return StatsOutput{
		TotalQueries:    snap.TotalQueries,
		TopDestinations: usage.TopDestinations(snap, topDestinationsLimit),
		LastReset:       snap.LastReset,
	}
}

// admit resolves the caller, charges the route's quota and then enforces
// authentication. Quota is keyed before enforcement so unauthenticated
// floods are throttled per address as well. The returned context carries a
// logger tagged with the route and quota key.
func (s *Service) admit(ctx context.Context, route ratelimit.Route, caller Caller) (context.Context, error) {
	identity := s.identity.Resolve(ctx, caller.Authorization)
	key := ratelimit.Key(identity.UID, caller.Address)

	log := logger.FromContext(ctx, s.logger).With().
		Str("route", string(route)).
		Str("caller_key", key).
		Logger()
	ctx = log.WithContext(ctx)

	if err := s.limiter.Allow(ctx, route, key); err != nil {
		if errors.Is(err, ratelimit.ErrLimited) {
			return ctx, newError(ErrorRateLimited, "quota_exceeded", err)
		}
		return ctx, newError(ErrorInternal, "rate_limit_error", err)
	}

	if identity.Verified() || s.opts.AuthMode == AuthOptional {
		return ctx, nil
	}
	switch {
	case errors.Is(identity.Err, auth.ErrUnavailable):
		return ctx, newError(ErrorAuthUnavailable, "identity_unavailable", identity.Err)
	case errors.Is(identity.Err, auth.ErrMissingToken):
		return ctx, newError(ErrorUnauthorized, "missing_token", identity.Err)
	default:
		return ctx, newError(ErrorUnauthorized, "invalid_token", identity.Err)
	}
}

func (s *Service) sanitizeQuery(in PlanInput) (domain.TravelQuery, error) {
	var (
		q   domain.TravelQuery
		err error
	)
	if q.Destination, err = s.sanitizer.Required("destination", in.Destination, sanitize.MaxDestinationLength); err != nil {
		return q, rejection(err)
	}
	optional := []struct {
		field string
		raw   string
		dst   *string
	}{
		{"date", in.Date, &q.Date},
		{"budget", in.Budget, &q.Budget},
		{"style", in.Style, &q.Style},
		{"preferredCurrency", in.PreferredCurrency, &q.PreferredCurrency},
	}
	for _, f := range optional {
		if *f.dst, err = s.sanitizer.Optional(f.field, f.raw, sanitize.MaxFieldLength); err != nil {
			return q, rejection(err)
		}
	}
	return q, nil
}

// sanitizeHistory keeps the trailing window and then drops any entry that
// does not decode or does not pass the sanitizer.
func (s *Service) sanitizeHistory(ctx context.Context, raw []json.RawMessage) []domain.ConversationTurn {
	if n := s.composer.HistoryWindow(); len(raw) > n {
		raw = raw[len(raw)-n:]
	}
	log := logger.FromContext(ctx, s.logger)
	turns := make([]domain.ConversationTurn, 0, len(raw))
	for _, entry := range raw {
		var turn domain.ConversationTurn
		if err := json.Unmarshal(entry, &turn); err != nil {
			log.Debug().Err(err).Msg("dropping undecodable history entry")
			continue
		}
		text, err := s.sanitizer.Required("history", turn.Text, sanitize.MaxMessageLength)
		if err != nil {
			continue
		}
		turn.Text = text
		turns = append(turns, turn)
	}
	return turns
}

func (s *Service) aggregate(ctx context.Context, q domain.TravelQuery, prompt domain.Prompt) (domain.AggregatedResponse, error) {
	resp, err := s.agg.Aggregate(ctx, prompt, q.Destination)
	if err != nil {
		if !errors.Is(err, aggregate.ErrTextFailed) {
			return domain.AggregatedResponse{}, newError(ErrorInternal, "aggregate_error", err)
		}
		reason := "text_generation_failed"
		if status, ok := upstreamStatusCode(err); ok && status == 429 {
			reason = "text_rate_limited"
		}
		return domain.AggregatedResponse{}, newError(ErrorUpstream, reason, err)
	}
	s.usage.Record(ctx, q.Destination)
	return resp, nil
}

func (s *Service) logRequest(ctx context.Context, q domain.TravelQuery, historyIn, historyKept int) {
	present := make([]string, 0, 3)
	for _, f := range [][2]string{{"date", q.Date}, {"budget", q.Budget}, {"style", q.Style}} {
		if f[1] != "" {
			present = append(present, f[0])
		}
	}
	log := logger.FromContext(ctx, s.logger)
	log.Info().
		Str("destination", q.Destination).
		Strs("fields", present).
		Str("currency", q.Currency()).
		Int("history_in", historyIn).
		Int("history_kept", historyKept).
		Msg("request accepted")
}

func rejection(err error) error {
	var rej *sanitize.RejectionError
	if errors.As(err, &rej) {
		return newError(ErrorInvalidInput, rej.Field+"_"+string(rej.Reason), err)
	}
	return newError(ErrorInvalidInput, "invalid_input", err)
}

func upstreamStatusCode(err error) (int, bool) {
	var statusErr httpStatusCoder
	if !errors.As(err, &statusErr) {
		return 0, false
	}
	return statusErr.HTTPStatusCode(), true
}
