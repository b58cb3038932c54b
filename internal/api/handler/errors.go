package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/cuongbtq/agent-jobs/internal/api/domain"
	"github.com/cuongbtq/agent-jobs/internal/api/dto"
	"github.com/cuongbtq/agent-jobs/internal/api/objectstore"
	"github.com/gin-gonic/gin"
)

// Error codes returned in the "error" field of error responses.
const (
	CodeInvalidRequest = "invalid_request"
	CodeUnauthorized   = "unauthorized"
	CodeRateLimited    = "rate_limited"
	CodeInternal       = "internal_error"
)

type errorMapping struct {
	err    error
	status int
	code   string
}

// errorTable maps domain errors to HTTP status and error code. The first
// match wins.
var errorTable = []errorMapping{
	{domain.ErrJobNotFound, http.StatusNotFound, "job_not_found"},
	{domain.ErrAgentNotFound, http.StatusNotFound, "agent_not_found"},
	{domain.ErrJobResultNotFound, http.StatusNotFound, "job_result_not_found"},
	{domain.ErrObjectNotFound, http.StatusNotFound, "object_not_found"},

	{domain.ErrInvalidStatus, http.StatusUnprocessableEntity, "invalid_status"},
	{domain.ErrInvalidProgress, http.StatusUnprocessableEntity, CodeInvalidRequest},
	{domain.ErrEmptyPrompt, http.StatusUnprocessableEntity, CodeInvalidRequest},
	{domain.ErrInvalidRequest, http.StatusUnprocessableEntity, CodeInvalidRequest},
	{domain.ErrNoFiles, http.StatusUnprocessableEntity, "no_files"},
	{domain.ErrTooManyFiles, http.StatusUnprocessableEntity, "too_many_files"},
	{domain.ErrFileTooLarge, http.StatusUnprocessableEntity, "file_too_large"},

	{domain.ErrInvalidProgressUpdate, http.StatusConflict, "invalid_progress_update"},
	{domain.ErrInvalidReasonUpdate, http.StatusConflict, "invalid_reason_update"},
	{domain.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
	{domain.ErrJobNotRunning, http.StatusConflict, "job_not_running"},
	{domain.ErrAlreadyCompleted, http.StatusConflict, "job_already_completed"},
	{domain.ErrJobNotCompleted, http.StatusConflict, "job_not_completed"},
	{domain.ErrAgentExists, http.StatusConflict, "agent_exists"},

	{domain.ErrUploadFailed, http.StatusBadGateway, "storage_upload_failed"},
	{domain.ErrPresignFailed, http.StatusBadGateway, "presign_failed"},
	{domain.ErrCommitFailed, http.StatusInternalServerError, "commit_failed"},
	{domain.ErrInvalidManifest, http.StatusInternalServerError, "invalid_manifest"},

	{objectstore.ErrInvalidKey, http.StatusNotFound, "object_not_found"},
	{objectstore.ErrInvalidSignature, http.StatusForbidden, "invalid_signature"},
	{objectstore.ErrURLExpired, http.StatusForbidden, "url_expired"},
}

func classify(err error) (int, string) {
	for _, m := range errorTable {
		if errors.Is(err, m.err) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, CodeInternal
}

// respondError writes the error body for err. Client side failures are
// logged at info, everything else at error.
func respondError(c *gin.Context, logger *slog.Logger, err error) {
	status, code := classify(err)

	message := err.Error()
	if code == CodeInternal {
		message = "internal server error"
	}

	attrs := []any{
		slog.String("code", code),
		slog.Int("status", status),
		slog.String("path", c.Request.URL.Path),
		slog.Any("error", err),
	}
	if status >= http.StatusInternalServerError {
		logger.Error("Request failed", attrs...)
	} else {
		logger.Info("Request rejected", attrs...)
	}

	c.AbortWithStatusJSON(status, dto.ErrorResponse{Error: code, Message: message})
}

func respondInvalidRequest(c *gin.Context, logger *slog.Logger, message string, err error) {
	logger.Info("Invalid request",
		slog.String("path", c.Request.URL.Path),
		slog.String("message", message),
		slog.Any("error", err),
	)
	c.AbortWithStatusJSON(http.StatusBadRequest, dto.ErrorResponse{Error: CodeInvalidRequest, Message: message})
}
