package api

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"travel-gateway/internal/logger"
)

const (
	HeaderCorrelationID = "X-Correlation-Id"
	correlationIDKey    = "correlation_id"
)

func correlationID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(HeaderCorrelationID))
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(correlationIDKey, id)
		c.Header(HeaderCorrelationID, id)
		c.Next()
	}
}

// requestLogger stores a request-scoped logger in the request context and
// logs one line per request once the handler returns.
func requestLogger(base zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		l := base.With().
			Str("correlation_id", c.GetString(correlationIDKey)).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Logger()
		c.Request = c.Request.WithContext(l.WithContext(c.Request.Context()))

		c.Next()

		status := c.Writer.Status()
		evt := l.Info()
		if status >= http.StatusInternalServerError {
			evt = l.Error()
		} else if status >= http.StatusBadRequest {
			evt = l.Warn()
		}
		evt.Int("status", status).
			Int64("latency_ms", time.Since(start).Milliseconds()).
			Str("client_ip", c.ClientIP()).
			Msg("request completed")
	}
}

func recovery() gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(io.Discard, func(c *gin.Context, rec any) {
		log := logger.FromContext(c.Request.Context(), zerolog.Nop())
		log.Error().
			Interface("panic", rec).
			Msg("handler panicked")
		c.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse{
			Error:   "INTERNAL_ERROR",
			Message: messageInternal,
		})
	})
}

// cors answers preflight requests and echoes the origin when it is on the
// allow-list. "*" allows any origin.
func cors(origins []string) gin.HandlerFunc {
	allowAll := false
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o == "*" {
			allowAll = true
		}
		if o != "" {
			allowed[o] = true
		}
	}
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		switch {
		case allowAll:
			c.Header("Access-Control-Allow-Origin", "*")
		case origin != "" && allowed[origin]:
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
		}
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type, "+HeaderCorrelationID)
		c.Header("Access-Control-Expose-Headers", HeaderCorrelationID+", Retry-After")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
