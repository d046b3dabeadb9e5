// Package app wires the gateway's dependency graph with fx. Both the HTTP
// server and the Lambda runtime start from Module.
package app

import (
	"context"
	"errors"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"go.uber.org/fx"

	"travel-gateway/internal/aggregate"
	"travel-gateway/internal/api"
	"travel-gateway/internal/auth"
	"travel-gateway/internal/config"
	"travel-gateway/internal/domain"
	"travel-gateway/internal/integrations/gemini"
	"travel-gateway/internal/integrations/openai"
	"travel-gateway/internal/integrations/paramstore"
	"travel-gateway/internal/integrations/unsplash"
	"travel-gateway/internal/integrations/weather"
	"travel-gateway/internal/logger"
	"travel-gateway/internal/ratelimit"
	"travel-gateway/internal/repository"
	"travel-gateway/internal/sanitize"
	"travel-gateway/internal/usage"
	"travel-gateway/internal/usecase"
)

const startupTimeout = 15 * time.Second

// Module provides everything down to the gin engine. Callers supply a
// *config.Config.
var Module = fx.Options(
	StorageModule,
	fx.Provide(
		NewTextBackend,
		NewWeatherLookup,
		NewImageSearch,
		NewAggregator,
		NewIdentityResolver,
		NewRateLimitStore,
		NewRateLimiter,
		NewRecorder,
		NewService,
		NewRouter,
	),
)

// StorageModule is the subset needed to read persisted usage counters.
var StorageModule = fx.Provide(
	NewLogger,
	NewInfra,
	NewUsageStore,
)

func NewLogger(cfg *config.Config) zerolog.Logger {
	return logger.New(api.ServiceName, cfg.LogLevel, cfg.LogPretty)
}

// Infra holds the AWS clients. Both fields are nil when no AWS-backed
// feature is configured.
type Infra struct {
	AWS    *aws.Config
	Params paramstore.Getter
}

func NewInfra(cfg *config.Config) (*Infra, error) {
	if cfg.ParamPrefix == "" && cfg.StatsTable == "" && cfg.RateLimitTable == "" {
		return &Infra{}, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, err
	}
	infra := &Infra{AWS: &awsCfg}
	if cfg.ParamPrefix != "" {
		params, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
		if err != nil {
			return nil, err
		}
		infra.Params = params
	}
	return infra, nil
}

func (i *Infra) dynamoTable(table string) (*repository.Client, error) {
	if i.AWS == nil {
		return nil, errors.New("app: aws config not loaded")
	}
	return repository.New(awsdynamodb.NewFromConfig(*i.AWS), table)
}

// secret resolves an optional credential at startup. An unresolvable
// secret is logged and treated as absent.
func (i *Infra) secret(cfg *config.Config, log zerolog.Logger, value, key string) string {
	s := paramstore.Resolve(value, i.Params, cfg.ParamPrefix, key)
	if s == nil {
		return ""
	}
	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()
	v, err := s.Value(ctx)
	if err != nil {
		log.Error().Err(err).Str("secret", key).Msg("secret lookup failed")
		return ""
	}
	return v
}

// TextBackend is the configured text generator. Available is false when no
// credential could be found; Generator then always fails.
type TextBackend struct {
	Generator aggregate.TextGenerator
	Available bool
}

var errTextUnavailable = errors.New("text generation is not configured")

type unavailableText struct{}

func (unavailableText) Generate(context.Context, domain.Prompt) (domain.Generation, error) {
	return domain.Generation{}, errTextUnavailable
}

func NewTextBackend(lc fx.Lifecycle, cfg *config.Config, infra *Infra, log zerolog.Logger) (TextBackend, error) {
	switch cfg.TextProvider {
	case "openai":
		key := paramstore.Resolve(cfg.OpenAIAPIKey, infra.Params, cfg.ParamPrefix, "openai_api_key")
		if key == nil {
			log.Error().Msg("no OpenAI API key configured, text generation disabled")
			return TextBackend{Generator: unavailableText{}}, nil
		}
		c, err := openai.NewClient(key,
			openai.WithBaseURL(cfg.OpenAIBaseURL),
			openai.WithModel(cfg.OpenAIModel),
			openai.WithTemperature(0.7),
			openai.WithMaxTokens(cfg.OpenAIMaxTokens),
		)
		if err != nil {
			return TextBackend{}, err
		}
		return TextBackend{Generator: c, Available: true}, nil
	default:
		apiKey := infra.secret(cfg, log, cfg.GeminiAPIKey, "gemini_api_key")
		if apiKey == "" {
			log.Error().Msg("no Gemini API key configured, text generation disabled")
			return TextBackend{Generator: unavailableText{}}, nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
		defer cancel()
		c, err := gemini.New(ctx, apiKey, cfg.GeminiModel)
		if err != nil {
			return TextBackend{}, err
		}
		lc.Append(fx.Hook{OnStop: func(context.Context) error { return c.Close() }})
		return TextBackend{Generator: c, Available: true}, nil
	}
}

func NewWeatherLookup(cfg *config.Config, infra *Infra, log zerolog.Logger) (aggregate.WeatherLookup, error) {
	key := infra.secret(cfg, log, cfg.WeatherAPIKey, "weather_api_key")
	if key == "" {
		log.Warn().Msg("no weather API key configured, weather will be omitted")
		return nil, nil
	}
	c, err := weather.New(key,
		weather.WithBaseURL(cfg.WeatherBaseURL),
		weather.WithTimeout(cfg.UpstreamTimeout),
		weather.WithLanguage(cfg.WeatherLanguage),
	)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func NewImageSearch(cfg *config.Config, infra *Infra, log zerolog.Logger) (aggregate.ImageSearch, error) {
	key := infra.secret(cfg, log, cfg.UnsplashAccessKey, "unsplash_access_key")
	if key == "" {
		log.Warn().Msg("no Unsplash access key configured, images will be omitted")
		return nil, nil
	}
	c, err := unsplash.New(key, unsplash.WithBaseURL(cfg.UnsplashBaseURL), unsplash.WithTimeout(cfg.UpstreamTimeout))
	if err != nil {
		return nil, err
	}
	return c, nil
}

func NewAggregator(text TextBackend, w aggregate.WeatherLookup, img aggregate.ImageSearch, cfg *config.Config, log zerolog.Logger) (*aggregate.Aggregator, error) {
	return aggregate.New(text.Generator, w, img, log, aggregate.Options{
		BranchTimeout: cfg.UpstreamTimeout,
		TextTimeout:   cfg.TextTimeout,
		ImageCount:    cfg.ImageCount,
	})
}

func NewIdentityResolver(cfg *config.Config, infra *Infra, log zerolog.Logger) (*auth.Resolver, error) {
	var verifier auth.Verifier
	if secret := infra.secret(cfg, log, cfg.JWTSecret, "jwt_secret"); secret != "" {
		v, err := auth.NewJWTVerifier(secret, cfg.JWTIssuer)
		if err != nil {
			return nil, err
		}
		verifier = v
	} else if cfg.AuthMode == string(usecase.AuthRequired) {
		log.Warn().Msg("auth is required but no JWT secret is configured, every request will be refused")
	}
	return auth.NewResolver(verifier, cfg.AuthTimeout, log), nil
}

func NewRateLimitStore(cfg *config.Config, infra *Infra) (ratelimit.Store, error) {
	if cfg.RateLimitTable == "" {
		return ratelimit.NewMemoryStore(), nil
	}
	c, err := infra.dynamoTable(cfg.RateLimitTable)
	if err != nil {
		return nil, err
	}
	return c.RateLimits(), nil
}

func Quotas(cfg *config.Config) map[ratelimit.Route]ratelimit.Quota {
	return map[ratelimit.Route]ratelimit.Quota{
		ratelimit.RoutePlan: {Limit: cfg.PlanQuota, Window: cfg.QuotaWindow},
		ratelimit.RouteChat: {Limit: cfg.ChatQuota, Window: cfg.QuotaWindow},
	}
}

func NewRateLimiter(store ratelimit.Store, cfg *config.Config, log zerolog.Logger) (*ratelimit.Limiter, error) {
	return ratelimit.New(store, Quotas(cfg), log, ratelimit.WithFailOpen(cfg.RateLimitFailOpen))
}

func NewUsageStore(cfg *config.Config, infra *Infra) (usage.Store, error) {
	if cfg.StatsTable == "" {
		return usage.NewFileStore(cfg.StatsFile)
	}
	c, err := infra.dynamoTable(cfg.StatsTable)
	if err != nil {
		return nil, err
	}
	return c.Usage(), nil
}

// NewRecorder loads the stored counters before the first request.
func NewRecorder(store usage.Store, log zerolog.Logger) (*usage.Recorder, error) {
	r, err := usage.NewRecorder(store, log)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()
	r.Load(ctx)
	return r, nil
}

func NewService(
	identity *auth.Resolver,
	limiter *ratelimit.Limiter,
	agg *aggregate.Aggregator,
	recorder *usage.Recorder,
	text TextBackend,
	cfg *config.Config,
	log zerolog.Logger,
) (*usecase.Service, error) {
	return usecase.NewService(
		identity,
		limiter,
		sanitize.New(log),
		usecase.NewComposer(cfg.BaseCurrency, cfg.HistoryWindow),
		agg,
		recorder,
		log,
		usecase.Options{
			AuthMode:      usecase.AuthMode(cfg.AuthMode),
			TextAvailable: text.Available,
		},
	)
}

func NewRouter(svc *usecase.Service, cfg *config.Config, log zerolog.Logger) (*gin.Engine, error) {
	return api.NewRouter(svc, log, api.Options{
		CORSOrigins:    cfg.CORSOrigins,
		TrustedProxies: cfg.TrustedProxies,
	})
}
