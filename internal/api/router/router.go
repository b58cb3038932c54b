package router

import (
	"github.com/cuongbtq/agent-jobs/internal/api/handler"
	"github.com/gin-gonic/gin"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	healthHandler := handler.NewHealthHandler(deps)
	r.GET("/health", healthHandler.Health)
	r.GET("/metrics", healthHandler.Metrics)

	jobHandler := handler.NewJobHandler(deps)
	objectHandler := handler.NewObjectHandler(deps)

	v1 := r.Group("/api/v1")
	{
		// Presigned downloads carry their own signature
		v1.GET("/objects/*key", objectHandler.Download)

		buyer := v1.Group("")
		buyer.Use(APIKeyAuth(deps.Logger, deps.BuyerAPIKeys))
		buyer.Use(RateLimitMiddleware(deps.Logger, deps.Redis, deps.RateLimit, deps.RateWindow))
		{
			// POST /api/v1/jobs - Create a new job
			buyer.POST("/jobs", jobHandler.CreateJob)

			// GET /api/v1/jobs - List jobs with filtering and pagination
			buyer.GET("/jobs", jobHandler.ListJobs)

			// GET /api/v1/jobs/:job_id - Get job details
			buyer.GET("/jobs/:job_id", jobHandler.GetJob)

			// GET /api/v1/jobs/:job_id/result - Get result manifest with download urls
			buyer.GET("/jobs/:job_id/result", jobHandler.GetJobResult)

			buyer.GET("/agents/:agent_id", jobHandler.GetAgent)
		}

		executor := v1.Group("/executor")
		executor.Use(APIKeyAuth(deps.Logger, deps.ExecutorAPIKeys))
		{
			executor.GET("/jobs", jobHandler.ListExecutorJobs)
			executor.POST("/jobs/:job_id/status", jobHandler.UpdateJobStatus)
			executor.POST("/jobs/:job_id/complete", jobHandler.CompleteJob)
			executor.POST("/agents", jobHandler.RegisterAgent)
		}
	}

	return r
}
