package api

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"travel-gateway/internal/logger"
	"travel-gateway/internal/ratelimit"
	"travel-gateway/internal/usecase"
)

const (
	messageInvalidInput    = "La solicitud contiene datos vacíos, demasiado largos o no permitidos. Revisa los campos e inténtalo de nuevo."
	messageUnauthorized    = "Necesitas iniciar sesión para usar este servicio."
	messageAuthUnavailable = "No pudimos verificar tu sesión en este momento. Inténtalo de nuevo en unos minutos."
	messageRateLimited     = "Has realizado demasiadas solicitudes. Espera un momento antes de volver a intentarlo."
	messageUpstream        = "Ocurrió un error consultando a la IA. Inténtalo de nuevo más tarde."
	messageInternal        = "Ocurrió un error interno. Inténtalo de nuevo más tarde."
	messageMalformedBody   = "El cuerpo de la solicitud no es un JSON válido."
)

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func statusFor(code usecase.ErrorCode) (int, string) {
	switch code {
	case usecase.ErrorInvalidInput:
		return http.StatusBadRequest, messageInvalidInput
	case usecase.ErrorUnauthorized:
		return http.StatusUnauthorized, messageUnauthorized
	case usecase.ErrorAuthUnavailable:
		return http.StatusServiceUnavailable, messageAuthUnavailable
	case usecase.ErrorRateLimited:
		return http.StatusTooManyRequests, messageRateLimited
	case usecase.ErrorUpstream:
		return http.StatusInternalServerError, messageUpstream
	default:
		return http.StatusInternalServerError, messageInternal
	}
}

// writeError logs err in full and answers with a fixed message only.
func writeError(c *gin.Context, fallback zerolog.Logger, err error) {
	code := usecase.ErrorInternal
	reason := "unexpected_error"
	var ucErr *usecase.Error
	if errors.As(err, &ucErr) {
		code, reason = ucErr.Code, ucErr.Reason
	}
	status, message := statusFor(code)

	log := logger.FromContext(c.Request.Context(), fallback)
	evt := log.Warn()
	if status >= http.StatusInternalServerError {
		evt = log.Error()
	}
	evt.Err(err).Str("code", string(code)).Str("reason", reason).Int("status", status).Msg("request failed")

	var limited *ratelimit.LimitedError
	if errors.As(err, &limited) {
		secs := int(math.Ceil(limited.RetryAfter.Seconds()))
		if secs < 1 {
			secs = 1
		}
		c.Header("Retry-After", strconv.Itoa(secs))
	}
	c.AbortWithStatusJSON(status, errorResponse{Error: string(code), Message: message})
}
