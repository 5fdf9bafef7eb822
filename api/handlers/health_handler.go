package handlers

import (
	"net/http"
	"os/exec"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/mediagrab-go/internal/app"
	"github.com/yourusername/mediagrab-go/internal/domain"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	controller *app.JobController
	ytdlp      string
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(controller *app.JobController, ytdlpBinary string) *HealthHandler {
	return &HealthHandler{
		controller: controller,
		ytdlp:      ytdlpBinary,
	}
}

// HealthResponse represents a health check response
type HealthResponse struct {
	Status  string          `json:"status"`
	Version string          `json:"version"`
	State   domain.JobState `json:"state"`
}

// Health handles GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: "1.0.0",
		State:   h.controller.State(),
	})
}

// Ready handles GET /ready. Not ready without a usable extraction binary.
func (h *HealthHandler) Ready(c *gin.Context) {
	if _, err := exec.LookPath(h.ytdlp); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"reason": "extraction binary not found: " + h.ytdlp,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
