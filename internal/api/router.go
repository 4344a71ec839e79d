package api

import (
	"github.com/gin-gonic/gin"

	"github.com/marcus/docmorph/internal/api/handler"
	"github.com/marcus/docmorph/internal/api/middleware"
	"github.com/marcus/docmorph/internal/config"
	"github.com/marcus/docmorph/internal/logger"
	"github.com/marcus/docmorph/internal/queue"
	"github.com/marcus/docmorph/internal/service"
)

// SetupRouter configures the Gin router with all routes
func SetupRouter(
	docs *service.DocumentService,
	jobs queue.Queue,
	log *logger.Logger,
	cfg *config.ServerConfig,
) *gin.Engine {
	// Set Gin mode
	switch cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	// Add middleware
	r.Use(gin.Recovery())
	r.Use(middleware.Logger(log))
	r.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins:  cfg.CORS.AllowedOrigins,
		AllowAllOrigins: cfg.CORS.AllowAllOrigins,
	}))

	// Create handlers
	healthHandler := handler.NewHealthHandler()
	documentHandler := handler.NewDocumentHandler(docs, jobs)
	jobHandler := handler.NewJobHandler(jobs)

	// Health check
	r.GET("/health", healthHandler.Health)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		// Documents
		v1.POST("/documents", documentHandler.Upload)
		v1.GET("/documents", documentHandler.List)
		v1.GET("/documents/:id", documentHandler.Get)
		v1.DELETE("/documents/:id", documentHandler.Delete)
		v1.POST("/documents/:id/transform", documentHandler.Transform)

		// Signed downloads authenticate with the token, not the user header
		v1.GET("/documents/downloads/:filename", documentHandler.Download)

		// Jobs
		v1.GET("/jobs", jobHandler.List)
		v1.GET("/jobs/:id", jobHandler.Get)
	}

	return r
}
