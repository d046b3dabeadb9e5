// Package api exposes the gateway over HTTP with gin.
package api

import (
	"context"
	"errors"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"travel-gateway/internal/domain"
	"travel-gateway/internal/usecase"
)

const ServiceName = "travel-gateway"

type Service interface {
	Plan(ctx context.Context, in usecase.PlanInput) (domain.AggregatedResponse, error)
	Chat(ctx context.Context, in usecase.ChatInput) (domain.AggregatedResponse, error)
	Health() usecase.HealthOutput
	Stats() usecase.StatsOutput
}

type Options struct {
	CORSOrigins []string
	// TrustedProxies lists the peers whose X-Forwarded-For is honoured when
	// resolving the client address. Empty means the connection's own address.
	TrustedProxies []string
}

type server struct {
	svc    Service
	logger zerolog.Logger
}

// NewRouter builds the engine. Every route is served both at the root and
// under /api.
func NewRouter(svc Service, logger zerolog.Logger, opts Options) (*gin.Engine, error) {
	if svc == nil {
		return nil, errors.New("api: service must not be nil")
	}
	gin.SetMode(gin.ReleaseMode)

	s := &server{svc: svc, logger: logger}
	r := gin.New()
	if err := r.SetTrustedProxies(opts.TrustedProxies); err != nil {
		return nil, fmt.Errorf("api: trusted proxies: %w", err)
	}
	r.Use(
		correlationID(),
		requestLogger(logger),
		recovery(),
		cors(opts.CORSOrigins),
	)

	r.GET("/", s.root)
	for _, g := range []*gin.RouterGroup{&r.RouterGroup, r.Group("/api")} {
		g.GET("/health", s.health)
		g.GET("/stats", s.stats)
		g.POST("/plan", s.plan)
		g.POST("/chat", s.chat)
	}
	r.NoRoute(func(c *gin.Context) {
		c.JSON(404, errorResponse{Error: "NOT_FOUND", Message: "Recurso no encontrado."})
	})
	return r, nil
}
