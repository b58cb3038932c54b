package handler

import (
	"log/slog"
	"time"

	"github.com/cuongbtq/agent-jobs/internal/api/objectstore"
	"github.com/cuongbtq/agent-jobs/internal/api/service"
	"github.com/cuongbtq/agent-jobs/internal/metrics"
	"github.com/cuongbtq/agent-jobs/shared/database"
	"github.com/redis/go-redis/v9"
)

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger      *slog.Logger
	Service     *service.JobService
	ObjectStore *objectstore.FileStore
	Metrics     *metrics.Metrics
	DBClient    *database.Client
	Redis       *redis.Client
	ServiceName string

	BuyerAPIKeys    []string
	ExecutorAPIKeys []string
	RateLimit       int
	RateWindow      time.Duration
}

// JobHandler handles job-related HTTP requests
type JobHandler struct {
	logger  *slog.Logger
	service *service.JobService
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{
		logger:  deps.Logger,
		service: deps.Service,
	}
}
