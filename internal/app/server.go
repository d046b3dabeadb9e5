package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"go.uber.org/fx"

	"travel-gateway/internal/config"
)

const readHeaderTimeout = 10 * time.Second

// RegisterHTTPServer binds the listener on start and drains in-flight
// requests on stop. A serve failure shuts the fx app down.
func RegisterHTTPServer(lc fx.Lifecycle, sd fx.Shutdowner, engine *gin.Engine, cfg *config.Config, log zerolog.Logger) {
	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.HTTPPort),
		Handler:           engine,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return err
			}
			log.Info().Str("addr", srv.Addr).Msg("http server listening")
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error().Err(err).Msg("http server stopped")
					_ = sd.Shutdown(fx.ExitCode(1))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info().Msg("http server shutting down")
			return srv.Shutdown(ctx)
		},
	})
}
