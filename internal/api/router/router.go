package router

import (
	"github.com/gin-gonic/gin"

	"github.com/kavon2323/vitaius-vestra/internal/api/handler"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	jobHandler := handler.NewJobHandler(deps)

	r.GET("/healthz", jobHandler.Healthz)
	r.POST("/upload-url", jobHandler.UploadURL)

	jobs := r.Group("/jobs")
	{
		// POST /jobs/new - Create and enqueue a fabrication job
		jobs.POST("/new", jobHandler.CreateJob)

		// GET /jobs/:job_id - Poll job status
		jobs.GET("/:job_id", jobHandler.GetJob)

		// GET /jobs/:job_id/downloads - Signed output URLs
		jobs.GET("/:job_id/downloads", jobHandler.GetDownloads)
	}

	return r
}
