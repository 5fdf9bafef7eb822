package api

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourusername/mediagrab-go/api/handlers"
	"github.com/yourusername/mediagrab-go/api/middleware"
	"github.com/yourusername/mediagrab-go/internal/app"
	"github.com/yourusername/mediagrab-go/internal/domain"
)

// SetupRouter builds the HTTP router for the job lifecycle API
func SetupRouter(
	controller *app.JobController,
	history domain.HistoryRepository,
	hub *handlers.ProgressHub,
	config *domain.Config,
	log *zap.Logger,
) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	router.Use(middleware.Logger(log))
	router.Use(middleware.Recovery(log))
	router.Use(middleware.CORS())

	healthHandler := handlers.NewHealthHandler(controller, config.Download.YTDLPBinary)
	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)

	// Progress events stream to every connected subscriber
	router.GET("/ws/progress", hub.Handle)

	v1 := router.Group("/api/v1")
	{
		jobHandler := handlers.NewJobHandler(controller, history, hub, log)
		v1.POST("/analyze", jobHandler.Analyze)

		jobs := v1.Group("/jobs")
		{
			jobs.POST("", jobHandler.StartJob)
			jobs.POST("/cancel", jobHandler.CancelJob)
			jobs.POST("/pause", jobHandler.PauseJob)
			jobs.POST("/resume", jobHandler.ResumeJob)
			jobs.GET("/active", jobHandler.ActiveJob)
		}

		historyHandler := handlers.NewHistoryHandler(history, log)
		hist := v1.Group("/history")
		{
			hist.GET("", historyHandler.List)
			hist.GET("/:id", historyHandler.Get)
			hist.DELETE("", historyHandler.Clear)
		}
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(404, gin.H{"error": "not found"})
	})

	return router
}
