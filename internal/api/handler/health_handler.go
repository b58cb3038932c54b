package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/cuongbtq/agent-jobs/internal/metrics"
	"github.com/cuongbtq/agent-jobs/shared/database"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// HealthHandler reports liveness, dependency health and counters.
type HealthHandler struct {
	serviceName string
	db          *database.Client
	redis       *redis.Client
	metrics     *metrics.Metrics
}

func NewHealthHandler(deps *Dependencies) *HealthHandler {
	return &HealthHandler{
		serviceName: deps.ServiceName,
		db:          deps.DBClient,
		redis:       deps.Redis,
		metrics:     deps.Metrics,
	}
}

// Health handles GET /health. With ?deep=true the database and Redis are
// pinged too.
func (h *HealthHandler) Health(c *gin.Context) {
	if c.Query("deep") != "true" {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": h.serviceName,
		})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	dbStatus := "disabled"
	if h.db != nil {
		dbStatus = "ok"
		if err := h.db.HealthCheck(ctx); err != nil {
			dbStatus = "error"
		}
	}

	redisStatus := "disabled"
	if h.redis != nil {
		redisStatus = "ok"
		if err := h.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "error"
		}
	}

	status, code := "healthy", http.StatusOK
	if dbStatus == "error" || redisStatus == "error" {
		status, code = "unhealthy", http.StatusServiceUnavailable
	}

	body := gin.H{
		"status":   status,
		"service":  h.serviceName,
		"database": dbStatus,
		"redis":    redisStatus,
	}
	if h.db != nil {
		body["database_driver"] = h.db.Driver()
		body["database_pool"] = h.db.PoolStats()
	}

	c.JSON(code, body)
}

// Metrics handles GET /metrics
func (h *HealthHandler) Metrics(c *gin.Context) {
	c.JSON(http.StatusOK, h.metrics.GetSnapshot())
}
