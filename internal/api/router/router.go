package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/matchsight/matchsight-be/internal/api/handler"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "analysis-api-service",
		})
	})

	analysisHandler := handler.NewAnalysisHandler(deps)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		analyses := v1.Group("/analyses")
		{
			// POST /api/v1/analyses - Register a new analysis job
			analyses.POST("", analysisHandler.CreateAnalysis)

			// GET /api/v1/analyses - List analyses with filtering and pagination
			analyses.GET("", analysisHandler.ListAnalyses)

			// GET /api/v1/analyses/:analysis_id - Get analysis state and result
			analyses.GET("/:analysis_id", analysisHandler.GetAnalysis)

			// POST /api/v1/analyses/:analysis_id/process - Deliver features and enqueue
			analyses.POST("/:analysis_id/process", analysisHandler.ProcessAnalysis)
		}
	}

	return r
}
