package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tickernet-ai/tickernet/services/validator/services"
	"github.com/tickernet-ai/tickernet/subnet/refdata"
)

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	registry  *services.Registry
	directory *refdata.Directory
	started   time.Time
}

// NewHealthHandler creates a health handler.
func NewHealthHandler(registry *services.Registry, directory *refdata.Directory) *HealthHandler {
	return &HealthHandler{registry: registry, directory: directory, started: time.Now()}
}

// Health handles GET /health.
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":         "ok",
		"uptime_seconds": int(time.Since(h.started).Seconds()),
	})
}

// Ready handles GET /ready. The validator is ready once it knows at least one
// miner and one company to ask about.
func (h *HealthHandler) Ready(c *gin.Context) {
	if h.registry.Len() == 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "no miners registered"})
		return
	}
	if h.directory.Len() == 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "empty company universe"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
