// Package handlers exposes the validator HTTP API: organic queries, miner
// standings, scoring statistics and runtime tuning.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/tickernet-ai/tickernet/pkg/protocol"
	"github.com/tickernet-ai/tickernet/services/validator/models"
	"github.com/tickernet-ai/tickernet/services/validator/services"
)

// QueryHandler serves organic intelligence requests.
type QueryHandler struct {
	rounds *services.RoundService
	log    *logrus.Entry
}

// NewQueryHandler creates a query handler.
func NewQueryHandler(rounds *services.RoundService, log *logrus.Entry) *QueryHandler {
	return &QueryHandler{rounds: rounds, log: log}
}

// Query handles POST /api/v1/query. The request may pin a ticker, category
// and sector; anything unspecified is chosen by the generator.
func (h *QueryHandler) Query(c *gin.Context) {
	var req models.QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid request body: " + err.Error()})
		return
	}

	category := protocol.Category(req.Category)
	if req.Category != "" && !category.Valid() {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "unknown category: " + req.Category})
		return
	}

	query, replies, results, err := h.rounds.OrganicQuery(c.Request.Context(), req.Ticker, category, req.Sector)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, services.ErrNoMiners) {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, models.ErrorResponse{Error: err.Error()})
		return
	}

	resp := models.QueryResponse{
		QueryID:  query.ID,
		Ticker:   query.Ticker,
		Category: query.Category,
		Outcomes: make([]models.MinerOutcome, len(results)),
	}

	best := -1
	for i, result := range results {
		resp.Outcomes[i] = models.MinerOutcome{
			MinerID:      result.MinerID,
			Score:        result.Score,
			Latency:      result.Latency,
			Success:      result.Success,
			ErrorMessage: result.ErrorMessage,
		}
		if result.Success && (best < 0 || result.Score > results[best].Score) {
			best = i
		}
	}
	if best >= 0 {
		resp.BestMiner = results[best].MinerID
		resp.BestScore = results[best].Score
		resp.Data = replies[best].Response
	}

	c.JSON(http.StatusOK, resp)
}
