// Package config loads gateway settings from GATEWAY_* environment
// variables, optionally seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"
)

const (
	Prefix         = "GATEWAY"
	DefaultEnvFile = ".env"
)

type Config struct {
	HTTPPort  int    `envconfig:"HTTP_PORT" default:"8000"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogPretty bool   `envconfig:"LOG_PRETTY" default:"false"`

	// Text generation
	TextProvider  string `envconfig:"TEXT_PROVIDER" default:"gemini"`
	GeminiAPIKey  string `envconfig:"GEMINI_API_KEY"`
	GeminiModel   string `envconfig:"GEMINI_MODEL" default:"gemini-2.0-flash"`
	OpenAIAPIKey  string `envconfig:"OPENAI_API_KEY"`
	OpenAIModel   string `envconfig:"OPENAI_MODEL" default:"gpt-4o-mini"`
	OpenAIBaseURL string `envconfig:"OPENAI_BASE_URL" default:"https://api.openai.com/v1"`
	// OpenAIMaxTokens caps completion length; 0 leaves it to the provider.
	OpenAIMaxTokens int `envconfig:"OPENAI_MAX_TOKENS" default:"0"`

	// Weather and images
	WeatherAPIKey     string `envconfig:"WEATHER_API_KEY"`
	WeatherBaseURL    string `envconfig:"WEATHER_BASE_URL" default:"https://api.weatherapi.com/v1"`
	WeatherLanguage   string `envconfig:"WEATHER_LANGUAGE" default:"es"`
	UnsplashAccessKey string `envconfig:"UNSPLASH_ACCESS_KEY"`
	UnsplashBaseURL   string `envconfig:"UNSPLASH_BASE_URL" default:"https://api.unsplash.com"`
	ImageCount        int    `envconfig:"IMAGE_COUNT" default:"3"`

	UpstreamTimeout time.Duration `envconfig:"UPSTREAM_TIMEOUT" default:"10s"`
	TextTimeout     time.Duration `envconfig:"TEXT_TIMEOUT" default:"60s"`

	// Prompting
	BaseCurrency  string `envconfig:"BASE_CURRENCY" default:"USD"`
	HistoryWindow int    `envconfig:"HISTORY_WINDOW" default:"6"`

	// Quotas
	PlanQuota   int           `envconfig:"PLAN_QUOTA" default:"5"`
	ChatQuota   int           `envconfig:"CHAT_QUOTA" default:"10"`
	QuotaWindow time.Duration `envconfig:"QUOTA_WINDOW" default:"1m"`
	// RateLimitFailOpen admits requests when the shared limiter store errors.
	RateLimitFailOpen bool `envconfig:"RATE_LIMIT_FAIL_OPEN" default:"true"`

	// Identity
	AuthMode    string        `envconfig:"AUTH_MODE" default:"required"`
	JWTSecret   string        `envconfig:"JWT_SECRET"`
	JWTIssuer   string        `envconfig:"JWT_ISSUER"`
	AuthTimeout time.Duration `envconfig:"AUTH_TIMEOUT" default:"2s"`

	// Persistence. A table name switches that concern to DynamoDB.
	StatsFile      string `envconfig:"STATS_FILE" default:"usage_stats.json"`
	StatsTable     string `envconfig:"STATS_TABLE"`
	RateLimitTable string `envconfig:"RATE_LIMIT_TABLE"`

	// ParamPrefix enables SSM lookup of any secret left empty above.
	ParamPrefix string   `envconfig:"PARAM_PREFIX"`
	CORSOrigins []string `envconfig:"CORS_ORIGINS" default:"*"`

	TrustedProxies []string `envconfig:"TRUSTED_PROXIES"`
}

// Load exports envFile into the environment when it exists and then
// processes GATEWAY_* variables. An explicitly named file must exist.
func Load(envFile string) (*Config, error) {
	envFile = strings.TrimSpace(envFile)
	switch envFile {
	case "":
		if err := exportEnvironmentIfExists(DefaultEnvFile); err != nil {
			return nil, fmt.Errorf("config: load default env file: %w", err)
		}
	default:
		if err := exportEnvironment(envFile); err != nil {
			return nil, fmt.Errorf("config: load env file: %w", err)
		}
	}

	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("config: process environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("HTTP_PORT %d out of range", c.HTTPPort))
	}
	c.TextProvider = strings.ToLower(strings.TrimSpace(c.TextProvider))
	if c.TextProvider != "gemini" && c.TextProvider != "openai" {
		errs = append(errs, fmt.Errorf("unsupported TEXT_PROVIDER %q", c.TextProvider))
	}
	c.AuthMode = strings.ToLower(strings.TrimSpace(c.AuthMode))
	if c.AuthMode != "required" && c.AuthMode != "optional" {
		errs = append(errs, fmt.Errorf("unsupported AUTH_MODE %q", c.AuthMode))
	}
	if c.PlanQuota <= 0 || c.ChatQuota <= 0 {
		errs = append(errs, errors.New("PLAN_QUOTA and CHAT_QUOTA must be positive"))
	}
	if c.QuotaWindow <= 0 {
		errs = append(errs, errors.New("QUOTA_WINDOW must be positive"))
	}
	if c.ImageCount < 0 {
		errs = append(errs, errors.New("IMAGE_COUNT must not be negative"))
	}
	if c.UpstreamTimeout <= 0 || c.TextTimeout <= 0 || c.AuthTimeout <= 0 {
		errs = append(errs, errors.New("timeouts must be positive"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

func exportEnvironmentIfExists(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if info.IsDir() {
		return nil
	}
	return exportEnvironment(path)
}

// exportEnvironment copies every key of the file into the process
// environment. Existing variables win over the file.
func exportEnvironment(path string) error {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		return err
	}
	for k, val := range v.AllSettings() {
		key := strings.ToUpper(k)
		if _, ok := os.LookupEnv(key); ok {
			continue
		}
		if err := os.Setenv(key, fmt.Sprint(val)); err != nil {
			return err
		}
	}
	return nil
}
