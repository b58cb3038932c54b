package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cuongbtq/agent-jobs/internal/worker/domain"
	"github.com/gabriel-vasile/mimetype"
)

const (
	DefaultRequestTimeout = 10 * time.Second
	DefaultUploadTimeout  = 60 * time.Second
)

// Config holds the executor API client settings
type Config struct {
	Logger         *slog.Logger
	BaseURL        string
	APIKey         string
	RequestTimeout time.Duration
	UploadTimeout  time.Duration
	HTTPClient     *http.Client
}

// Client talks to the executor endpoints of the job API
type Client struct {
	logger         *slog.Logger
	baseURL        string
	apiKey         string
	requestTimeout time.Duration
	uploadTimeout  time.Duration
	http           *http.Client
}

// NewClient creates a new executor API client
func NewClient(cfg *Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	requestTimeout := cfg.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = DefaultRequestTimeout
	}
	uploadTimeout := cfg.UploadTimeout
	if uploadTimeout <= 0 {
		uploadTimeout = DefaultUploadTimeout
	}

	return &Client{
		logger:         cfg.Logger,
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:         cfg.APIKey,
		requestTimeout: requestTimeout,
		uploadTimeout:  uploadTimeout,
		http:           httpClient,
	}
}

type listJobsResponse struct {
	Jobs []domain.Job `json:"jobs"`
}

type statusRequest struct {
	Status   string  `json:"status"`
	Progress *int    `json:"progress,omitempty"`
	Reason   *string `json:"reason,omitempty"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ListPendingJobs returns up to limit pending jobs of agentID, oldest first
func (c *Client) ListPendingJobs(ctx context.Context, agentID string, limit int) ([]domain.Job, error) {
	query := url.Values{}
	query.Set("agent_id", agentID)
	query.Set("status", domain.JobStatusPending)
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	var resp listJobsResponse
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/executor/jobs?"+query.Encode(), nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	return resp.Jobs, nil
}

// UpdateStatus reports a status change. A 409 answer to an accept is
// returned as domain.ErrJobAlreadyClaimed.
func (c *Client) UpdateStatus(ctx context.Context, jobID, status string, progress *int, reason *string) error {
	body := statusRequest{Status: status, Progress: progress, Reason: reason}

	err := c.doJSON(ctx, http.MethodPost, "/api/v1/executor/jobs/"+url.PathEscape(jobID)+"/status", body, nil)
	if err != nil {
		var apiErr *domain.APIError
		if status == domain.JobStatusAccepted && errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict {
			return fmt.Errorf("%w: %w", domain.ErrJobAlreadyClaimed, apiErr)
		}
		return fmt.Errorf("failed to update job %s to %s: %w", jobID, status, err)
	}

	return nil
}

// Complete uploads the job outputs. Only the first MaxUploadFiles files are
// sent and files above MaxUploadFileSize are skipped.
func (c *Client) Complete(ctx context.Context, jobID string, outputs []domain.OutputFile) error {
	selected := c.selectUploads(jobID, outputs)
	if len(selected) == 0 {
		return domain.ErrNoUploadableFiles
	}

	ctx, cancel := context.WithTimeout(ctx, c.uploadTimeout)
	defer cancel()

	pr, pw := io.Pipe()
	defer pr.Close()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeParts(mw, selected))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/executor/jobs/"+url.PathEscape(jobID)+"/complete", pr)
	if err != nil {
		return fmt.Errorf("failed to build upload request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	if err := c.send(req, nil); err != nil {
		return fmt.Errorf("failed to upload results for job %s: %w", jobID, err)
	}

	c.logger.Info("Uploaded job results",
		slog.String("job_id", jobID),
		slog.Int("files", len(selected)),
	)

	return nil
}

func (c *Client) selectUploads(jobID string, outputs []domain.OutputFile) []domain.OutputFile {
	if len(outputs) > domain.MaxUploadFiles {
		c.logger.Warn("Job produced too many files, uploading the first ones only",
			slog.String("job_id", jobID),
			slog.Int("files", len(outputs)),
			slog.Int("limit", domain.MaxUploadFiles),
		)
		outputs = outputs[:domain.MaxUploadFiles]
	}

	selected := make([]domain.OutputFile, 0, len(outputs))
	for _, f := range outputs {
		if f.Size > domain.MaxUploadFileSize {
			c.logger.Warn("Skipping oversized output file",
				slog.String("job_id", jobID),
				slog.String("file", f.Name),
				slog.Int64("size", f.Size),
				slog.Int64("limit", domain.MaxUploadFileSize),
			)
			continue
		}
		selected = append(selected, f)
	}

	return selected
}

func writeParts(mw *multipart.Writer, outputs []domain.OutputFile) error {
	for _, f := range outputs {
		if err := writePart(mw, f); err != nil {
			return err
		}
	}
	return mw.Close()
}

func writePart(mw *multipart.Writer, f domain.OutputFile) error {
	file, err := os.Open(f.Path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", f.Name, err)
	}
	defer file.Close()

	contentType := "application/octet-stream"
	if mtype, err := mimetype.DetectReader(file); err == nil {
		contentType = mtype.String()
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to rewind %s: %w", f.Name, err)
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files"; filename="%s"`, escapeQuotes(f.Name)))
	header.Set("Content-Type", contentType)

	part, err := mw.CreatePart(header)
	if err != nil {
		return fmt.Errorf("failed to create part for %s: %w", f.Name, err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return fmt.Errorf("failed to stream %s: %w", f.Name, err)
	}
	return nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.send(req, out)
}

// send executes req and decodes a 2xx body into out. Transport failures and
// 5xx answers come back as *domain.RetryableError, other non-2xx answers as
// *domain.APIError.
func (c *Client) send(req *http.Request, out any) error {
	req.Header.Set("X-API-Key", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.NewRetryableError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &domain.APIError{StatusCode: resp.StatusCode}
		var body errorResponse
		if err := json.NewDecoder(io.LimitReader(resp.Body, 64*1024)).Decode(&body); err == nil {
			apiErr.Code = body.Error
			apiErr.Message = body.Message
		}
		if resp.StatusCode >= 500 {
			return domain.NewRetryableError(apiErr)
		}
		return apiErr
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
