package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tickernet-ai/tickernet/services/validator/models"
	"github.com/tickernet-ai/tickernet/services/validator/services"
	"github.com/tickernet-ai/tickernet/subnet/grading"
	"github.com/tickernet-ai/tickernet/subnet/incentive"
	"github.com/tickernet-ai/tickernet/subnet/querygen"
	"github.com/tickernet-ai/tickernet/subnet/refdata"
)

// StatsHandler exposes miner standings, score history and engine statistics.
type StatsHandler struct {
	registry  *services.Registry
	rounds    *services.RoundService
	generator *querygen.Generator
	validator *grading.Validator
	mechanism *incentive.Mechanism
	directory *refdata.Directory
}

// NewStatsHandler creates a stats handler.
func NewStatsHandler(
	registry *services.Registry,
	rounds *services.RoundService,
	generator *querygen.Generator,
	validator *grading.Validator,
	mechanism *incentive.Mechanism,
	directory *refdata.Directory,
) *StatsHandler {
	return &StatsHandler{
		registry:  registry,
		rounds:    rounds,
		generator: generator,
		validator: validator,
		mechanism: mechanism,
		directory: directory,
	}
}

// Miners handles GET /api/v1/miners: the registered miner set with current
// reputations and the weight each would receive right now.
func (h *StatsHandler) Miners(c *gin.Context) {
	miners := h.registry.Miners()
	weights := h.mechanism.CurrentWeights(h.registry.MinerIDs())

	weightByID := make(map[string]float64, len(weights))
	for _, w := range weights {
		weightByID[w.MinerID] = w.Weight
	}

	out := make([]models.MinerSummary, len(miners))
	for i, m := range miners {
		out[i] = models.MinerSummary{
			MinerID:    m.ID,
			Endpoint:   m.Endpoint,
			Reputation: h.mechanism.Reputation(m.ID),
			Weight:     weightByID[m.ID],
		}
	}
	c.JSON(http.StatusOK, gin.H{"miners": out})
}

// Scores handles GET /api/v1/scores and /api/v1/scores?miner=<id>.
func (h *StatsHandler) Scores(c *gin.Context) {
	if minerID := c.Query("miner"); minerID != "" {
		c.JSON(http.StatusOK, gin.H{
			"miner_id":   minerID,
			"reputation": h.mechanism.Reputation(minerID),
			"history":    h.mechanism.ScoreHistory(minerID),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"reputations": h.mechanism.Reputations()})
}

// Stats handles GET /api/v1/stats: one snapshot across the whole engine.
func (h *StatsHandler) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"round":      h.rounds.Round(),
		"last_run":   h.rounds.LastRun(),
		"generation": h.generator.Stats(),
		"grading":    h.validator.Stats(),
		"directory":  h.directory.Stats(),
	})
}

// WeightsAudit handles GET /api/v1/weights: the audit trail of emitted
// weight vectors.
func (h *StatsHandler) WeightsAudit(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"history": h.mechanism.WeightsHistory()})
}

// UpdateWeights handles POST /api/v1/weights: adjusts the structure/accuracy
// grading blend at runtime.
func (h *StatsHandler) UpdateWeights(c *gin.Context) {
	var req models.WeightsUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid request body: " + err.Error()})
		return
	}

	if err := h.validator.SetWeights(req.StructureWeight, req.AccuracyWeight); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"structure_weight": req.StructureWeight,
		"accuracy_weight":  req.AccuracyWeight,
	})
}
