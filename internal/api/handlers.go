package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"travel-gateway/internal/domain"
	"travel-gateway/internal/logger"
	"travel-gateway/internal/usecase"
)

type planRequest struct {
	Destination       string `json:"destination"`
	Date              string `json:"date"`
	Budget            string `json:"budget"`
	Style             string `json:"style"`
	PreferredCurrency string `json:"preferredCurrency"`
}

type chatRequest struct {
	planRequest
	Message string            `json:"message"`
	History []json.RawMessage `json:"history"`
}

type healthResponse struct {
	Status               string `json:"status"`
	TextServiceAvailable bool   `json:"textServiceAvailable"`
}

type statsResponse struct {
	TotalQueries             int                       `json:"totalQueries"`
	TopDestinations          []domain.DestinationCount `json:"topDestinations"`
	MostRecentResetTimestamp string                    `json:"mostRecentResetTimestamp"`
}

func (s *server) root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": ServiceName,
		"status":  "running",
		"endpoints": gin.H{
			"health": "GET /health",
			"stats":  "GET /stats",
			"plan":   "POST /plan",
			"chat":   "POST /chat",
		},
	})
}

func (s *server) health(c *gin.Context) {
	h := s.svc.Health()
	c.JSON(http.StatusOK, healthResponse{Status: h.Status, TextServiceAvailable: h.TextServiceAvailable})
}

func (s *server) stats(c *gin.Context) {
	st := s.svc.Stats()
	top := st.TopDestinations
	if top == nil {
		top = []domain.DestinationCount{}
	}
	c.JSON(http.StatusOK, statsResponse{
		TotalQueries:             st.TotalQueries,
		TopDestinations:          top,
		MostRecentResetTimestamp: st.LastReset.UTC().Format(time.RFC3339),
	})
}

func (s *server) plan(c *gin.Context) {
	var req planRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.malformed(c, err)
		return
	}
	resp, err := s.svc.Plan(c.Request.Context(), req.input(c))
	if err != nil {
		writeError(c, s.logger, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *server) chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.malformed(c, err)
		return
	}
	resp, err := s.svc.Chat(c.Request.Context(), usecase.ChatInput{
		PlanInput: req.input(c),
		Message:   req.Message,
		History:   req.History,
	})
	if err != nil {
		writeError(c, s.logger, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (r planRequest) input(c *gin.Context) usecase.PlanInput {
	return usecase.PlanInput{
		Caller: usecase.Caller{
			Authorization: c.GetHeader("Authorization"),
			Address:       c.ClientIP(),
		},
		Destination:       r.Destination,
		Date:              r.Date,
		Budget:            r.Budget,
		Style:             r.Style,
		PreferredCurrency: r.PreferredCurrency,
	}
}

func (s *server) malformed(c *gin.Context, err error) {
	log := logger.FromContext(c.Request.Context(), s.logger)
	log.Warn().Err(err).Msg("malformed request body")
	c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{
		Error:   string(usecase.ErrorInvalidInput),
		Message: messageMalformedBody,
	})
}
