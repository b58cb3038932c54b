package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"

	"github.com/cuongbtq/agent-jobs/internal/api/domain"
	"github.com/cuongbtq/agent-jobs/internal/api/dto"
	"github.com/cuongbtq/agent-jobs/internal/api/service"
	"github.com/gin-gonic/gin"
)

// multipartOverhead is the allowance for part headers and boundaries on top
// of the file payload limit.
const multipartOverhead = 1 << 20

// ListExecutorJobs handles GET /api/v1/executor/jobs
// Returns an agent's jobs in one status, oldest first
func (h *JobHandler) ListExecutorJobs(c *gin.Context) {
	var req dto.ExecutorListJobsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		respondInvalidRequest(c, h.logger, "agent_id must be a valid UUID", err)
		return
	}

	jobs, err := h.service.ListJobsForAgent(c.Request.Context(), req.AgentID, domain.JobStatus(req.Status), req.Limit)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	resp := dto.ExecutorListJobsResponse{Jobs: make([]dto.JobDTO, len(jobs))}
	for i := range jobs {
		resp.Jobs[i] = dto.NewJobDTO(&jobs[i])
	}

	c.JSON(http.StatusOK, resp)
}

// UpdateJobStatus handles POST /api/v1/executor/jobs/:job_id/status
func (h *JobHandler) UpdateJobStatus(c *gin.Context) {
	jobID, ok := h.jobIDParam(c)
	if !ok {
		return
	}

	var req dto.UpdateJobStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondInvalidRequest(c, h.logger, "Invalid request body", err)
		return
	}

	job, err := h.service.UpdateStatus(c.Request.Context(), jobID, service.StatusUpdate{
		Status:   domain.JobStatus(req.Status),
		Progress: req.Progress,
		Reason:   req.Reason,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, dto.UpdateJobStatusResponse{
		JobID:          job.ID,
		Status:         job.Status,
		Progress:       job.Progress,
		DecisionReason: job.DecisionReason,
		StartedAt:      job.StartedAt,
		UpdatedAt:      job.UpdatedAt,
		CompletedAt:    job.CompletedAt,
	})
}

// CompleteJob handles POST /api/v1/executor/jobs/:job_id/complete
// Accepts multipart "files" parts and commits them as the job result
func (h *JobHandler) CompleteJob(c *gin.Context) {
	jobID, ok := h.jobIDParam(c)
	if !ok {
		return
	}

	maxBody := int64(h.service.MaxFiles())*h.service.MaxFileSize() + multipartOverhead
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBody)

	form, err := c.MultipartForm()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(c, h.logger, fmt.Errorf("%w: request body exceeds %d bytes", domain.ErrFileTooLarge, maxBody))
			return
		}
		respondInvalidRequest(c, h.logger, "Invalid multipart body", err)
		return
	}
	defer form.RemoveAll()

	headers := form.File["files"]
	if len(headers) > h.service.MaxFiles() {
		respondError(c, h.logger, fmt.Errorf("%w: got %d, limit is %d", domain.ErrTooManyFiles, len(headers), h.service.MaxFiles()))
		return
	}

	files, closeAll, err := openUploads(headers)
	defer closeAll()
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	record, err := h.service.CompleteJob(c.Request.Context(), jobID, files)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.logger.Info("Job result stored",
		slog.String("job_id", jobID),
		slog.Int("files", len(files)),
	)

	c.JSON(http.StatusOK, dto.CompleteJobResponse{
		JobID:       record.JobID,
		Status:      record.Status,
		CompletedAt: record.CompletedAt,
	})
}

func openUploads(headers []*multipart.FileHeader) ([]service.UploadFile, func(), error) {
	files := make([]service.UploadFile, 0, len(headers))
	opened := make([]multipart.File, 0, len(headers))
	closeAll := func() {
		for _, f := range opened {
			f.Close()
		}
	}

	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			return nil, closeAll, fmt.Errorf("failed to open upload %s: %w", fh.Filename, err)
		}
		opened = append(opened, f)
		files = append(files, service.UploadFile{
			Filename:    fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Size:        fh.Size,
			Content:     f,
		})
	}

	return files, closeAll, nil
}
