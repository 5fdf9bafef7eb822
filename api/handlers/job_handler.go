package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yourusername/mediagrab-go/internal/app"
	"github.com/yourusername/mediagrab-go/internal/domain"
)

// JobHandler handles analyze and download-job HTTP requests
type JobHandler struct {
	controller *app.JobController
	history    domain.HistoryRepository
	hub        *ProgressHub
	logger     *zap.Logger
}

// NewJobHandler creates a new job handler
func NewJobHandler(controller *app.JobController, history domain.HistoryRepository, hub *ProgressHub, logger *zap.Logger) *JobHandler {
	return &JobHandler{
		controller: controller,
		history:    history,
		hub:        hub,
		logger:     logger,
	}
}

// AnalyzeRequest represents a request to analyze a URL
type AnalyzeRequest struct {
	URL string `json:"url" binding:"required"`
}

// Analyze handles POST /api/v1/analyze. It blocks until the probe finishes.
func (h *JobHandler) Analyze(c *gin.Context) {
	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	metadata, err := h.controller.Analyze(c.Request.Context(), req.URL)
	if err != nil {
		var analysisErr *domain.AnalysisError
		if errors.As(err, &analysisErr) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": analysisErr.Message})
			return
		}
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, metadata)
}

// StartJobRequest represents a request to start a download job
type StartJobRequest struct {
	URL       string `json:"url" binding:"required"`
	FormatID  string `json:"format_id" binding:"required"`
	OutputDir string `json:"output_dir,omitempty"`
	Title     string `json:"title,omitempty"`
}

// StartJob handles POST /api/v1/jobs. The transfer runs on its own
// goroutine; progress streams over the websocket and the outcome lands in
// history, so the response only acknowledges the start.
func (h *JobHandler) StartJob(c *gin.Context) {
	var req StartJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	metadata := h.controller.MetadataFor(req.URL)
	if metadata == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "URL has not been analyzed"})
		return
	}
	format := metadata.FormatByID(req.FormatID)
	if format == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown format: " + req.FormatID})
		return
	}
	if state := h.controller.State(); state == domain.StateAnalyzing || state == domain.StateDownloading {
		c.JSON(http.StatusConflict, gin.H{"error": "another job is active"})
		return
	}

	title := req.Title
	if title == "" {
		title = metadata.Title
	}

	token := uuid.New().String()
	go func() {
		// Detached from the request context: the job outlives the response
		outcome, err := h.controller.Run(context.Background(), req.URL, *format, req.OutputDir, title, h.hub.Broadcast)
		if err != nil {
			// The client already got 202, so the rejection has to reach it
			// through the progress stream
			h.logger.Error("Job rejected after accept", zap.String("token", token), zap.Error(err))
			h.hub.Broadcast(domain.ProgressEvent{Message: "Download failed: " + err.Error()})
			return
		}
		h.logger.Info("Job terminated",
			zap.String("token", token),
			zap.String("outcome", string(outcome.Status)))
	}()

	c.JSON(http.StatusAccepted, gin.H{"token": token, "status": "started"})
}

// CancelJob handles POST /api/v1/jobs/cancel. Cancellation is cooperative;
// the terminal status appears in history once the job reacts.
func (h *JobHandler) CancelJob(c *gin.Context) {
	h.controller.Cancel()
	c.JSON(http.StatusAccepted, gin.H{"status": "cancel requested"})
}

// PauseJob handles POST /api/v1/jobs/pause
func (h *JobHandler) PauseJob(c *gin.Context) {
	h.controller.Pause()
	c.JSON(http.StatusAccepted, gin.H{"status": "pause requested"})
}

// ResumeJobRequest represents a request to resume from a history entry
type ResumeJobRequest struct {
	EntryID string `json:"entry_id" binding:"required"`
}

// ResumeJob handles POST /api/v1/jobs/resume. The referenced entry keeps its
// terminal status; the resumed run is recorded as a fresh entry.
func (h *JobHandler) ResumeJob(c *gin.Context) {
	var req ResumeJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	entry, err := h.history.FindByID(req.EntryID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if entry == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "history entry not found"})
		return
	}
	if !entry.Status.IsTerminal() {
		c.JSON(http.StatusConflict, gin.H{"error": "entry is still downloading"})
		return
	}
	if state := h.controller.State(); state == domain.StateAnalyzing || state == domain.StateDownloading {
		c.JSON(http.StatusConflict, gin.H{"error": "another job is active"})
		return
	}

	token := uuid.New().String()
	go func() {
		outcome, err := h.controller.ResumeFrom(context.Background(), entry, h.hub.Broadcast)
		if err != nil {
			h.logger.Error("Resume failed", zap.String("token", token), zap.String("entry_id", entry.ID), zap.Error(err))
			h.hub.Broadcast(domain.ProgressEvent{Message: "Download failed: " + err.Error()})
			return
		}
		h.logger.Info("Resumed job terminated",
			zap.String("token", token),
			zap.String("outcome", string(outcome.Status)))
	}()

	c.JSON(http.StatusAccepted, gin.H{"token": token, "status": "started"})
}

// ActiveJob handles GET /api/v1/jobs/active
func (h *JobHandler) ActiveJob(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"state":    h.controller.State(),
		"metadata": h.controller.Metadata(),
	})
}
