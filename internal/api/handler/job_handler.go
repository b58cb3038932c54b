package handler

import (
	"log/slog"
	"net/http"

	"github.com/cuongbtq/agent-jobs/internal/api/domain"
	"github.com/cuongbtq/agent-jobs/internal/api/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// CreateJob handles POST /api/v1/jobs
// Creates a pending job for an existing agent
func (h *JobHandler) CreateJob(c *gin.Context) {
	var req dto.CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondInvalidRequest(c, h.logger, "Invalid request body", err)
		return
	}

	job, err := h.service.CreateJob(c.Request.Context(), req.AgentID, req.Prompt, domain.Params(req.Params))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, dto.CreateJobResponse{
		JobID:     job.ID,
		AgentID:   job.AgentID,
		Status:    job.Status,
		CreatedAt: job.CreatedAt,
	})
}

// GetJob handles GET /api/v1/jobs/:job_id
// Retrieves detailed information about a specific job
func (h *JobHandler) GetJob(c *gin.Context) {
	jobID, ok := h.jobIDParam(c)
	if !ok {
		return
	}

	job, err := h.service.GetJob(c.Request.Context(), jobID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewJobDTO(job))
}

// ListJobs handles GET /api/v1/jobs
// Lists jobs newest first with optional filtering and cursor pagination
func (h *JobHandler) ListJobs(c *gin.Context) {
	var req dto.ListJobsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		respondInvalidRequest(c, h.logger, "Invalid query parameters", err)
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = defaultPageSize
	}

	if req.PageSize > maxPageSize {
		req.PageSize = maxPageSize
	}

	cursor, err := DecodeJobCursor(req.Cursor)
	if err != nil {
		respondInvalidRequest(c, h.logger, "Invalid cursor", err)
		return
	}

	h.logger.Debug("Decoded cursor", slog.Any("cursor", cursor))

	filter := domain.JobFilter{
		AgentID:  req.AgentID,
		Status:   domain.JobStatus(req.Status),
		PageSize: req.PageSize,
		Cursor:   cursor,
	}

	jobs, err := h.service.ListJobs(c.Request.Context(), filter)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	// One extra row was fetched to detect a following page
	hasMore := len(jobs) > req.PageSize
	if hasMore {
		jobs = jobs[:req.PageSize]
	}

	jobResponse := make([]dto.JobDTO, len(jobs))
	for i := range jobs {
		jobResponse[i] = dto.NewJobDTO(&jobs[i])
	}

	var nextCursor string
	if hasMore {
		lastJob := jobs[len(jobs)-1]
		nextCursor = EncodeJobCursor(&domain.JobCursor{
			CreatedAt: lastJob.CreatedAt,
			JobID:     lastJob.ID,
		})
	}

	c.JSON(http.StatusOK, dto.ListJobsResponse{
		Jobs:       jobResponse,
		NextCursor: nextCursor,
	})
}

// GetJobResult handles GET /api/v1/jobs/:job_id/result
// Returns the result manifest with short lived download urls
func (h *JobHandler) GetJobResult(c *gin.Context) {
	jobID, ok := h.jobIDParam(c)
	if !ok {
		return
	}

	view, err := h.service.GetResult(c.Request.Context(), jobID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	files := make([]dto.ManifestFileDTO, len(view.Files))
	for i, f := range view.Files {
		files[i] = dto.ManifestFileDTO{
			Path:        f.Path,
			DownloadURL: f.DownloadURL,
			SizeBytes:   f.SizeBytes,
			MimeType:    f.MimeType,
		}
	}

	c.JSON(http.StatusOK, dto.JobResultResponse{
		JobID:  view.JobID,
		Status: domain.JobStatusCompleted,
		Files:  files,
	})
}

// jobIDParam validates the :job_id path parameter.
func (h *JobHandler) jobIDParam(c *gin.Context) (string, bool) {
	jobID := c.Param("job_id")
	if _, err := uuid.Parse(jobID); err != nil {
		respondInvalidRequest(c, h.logger, "job_id must be a valid UUID", err)
		return "", false
	}
	return jobID, true
}
