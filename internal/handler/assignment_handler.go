package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/elective-match-api/internal/dto"
	"github.com/noah-isme/elective-match-api/internal/models"
	"github.com/noah-isme/elective-match-api/internal/service"
	appErrors "github.com/noah-isme/elective-match-api/pkg/errors"
	"github.com/noah-isme/elective-match-api/pkg/logger"
	"github.com/noah-isme/elective-match-api/pkg/response"
)

type workflowExecutor interface {
	Execute(ctx context.Context, req dto.ExecuteWorkflowRequest) models.WorkflowSummary
	DefaultBatchSize() int
}

type runReader interface {
	Summary(ctx context.Context, runID string) (*models.WorkflowSummary, error)
	Enrollments(ctx context.Context, runID string) ([]models.Enrollment, error)
	Export(ctx context.Context, runID string, req dto.ExportRunRequest) (*service.RunExport, error)
	Publish(ctx context.Context, runID string, req dto.ExportRunRequest) (*dto.ExportLink, error)
	Download(ctx context.Context, token string) (*service.RunDownload, error)
}

// AssignmentHandler exposes the assignment workflow and its runs.
type AssignmentHandler struct {
	workflow workflowExecutor
	runs     runReader
}

// NewAssignmentHandler constructs the handler.
func NewAssignmentHandler(workflow *service.AssignmentWorkflowService, runs *service.RunExportService) *AssignmentHandler {
	return &AssignmentHandler{workflow: workflow, runs: runs}
}

// ExecuteWorkflow godoc
// @Summary Run the batched elective assignment workflow
// @Tags Assignments
// @Produce json
// @Param batchSize query int false "Optional courses per batch"
// @Param capacityPerCourse query int false "Seats per course"
// @Param concurrency query int false "Batches processed in parallel"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /assignments/execute-workflow [post]
func (h *AssignmentHandler) ExecuteWorkflow(c *gin.Context) {
	var req dto.ExecuteWorkflowRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid workflow query"))
		return
	}
	if _, ok := c.GetQuery("batchSize"); !ok {
		req.BatchSize = h.workflow.DefaultBatchSize()
	}

	summary := h.workflow.Execute(c.Request.Context(), req)
	c.Header(logger.RunIDHeader, summary.RunID)

	status := http.StatusOK
	if summary.Status == models.WorkflowStatusFailed {
		status = http.StatusInternalServerError
		if req.BatchSize <= 0 || strings.HasPrefix(summary.Message, "Invalid") {
			status = http.StatusBadRequest
		}
	}
	response.JSON(c, status, summary)
}

// RunSummary godoc
// @Summary Get a workflow run summary
// @Tags Assignments
// @Produce json
// @Param runId path string true "Run ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /assignments/runs/{runId} [get]
func (h *AssignmentHandler) RunSummary(c *gin.Context) {
	summary, err := h.runs.Summary(c.Request.Context(), c.Param("runId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary)
}

// RunEnrollments godoc
// @Summary List enrollments persisted by a workflow run
// @Tags Assignments
// @Produce json
// @Param runId path string true "Run ID"
// @Success 200 {object} response.Envelope
// @Router /assignments/runs/{runId}/enrollments [get]
func (h *AssignmentHandler) RunEnrollments(c *gin.Context) {
	enrollments, err := h.runs.Enrollments(c.Request.Context(), c.Param("runId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollments, map[string]interface{}{"total": len(enrollments)})
}

// ExportRun godoc
// @Summary Download the assignments of a workflow run
// @Tags Assignments
// @Produce text/csv
// @Produce application/pdf
// @Param runId path string true "Run ID"
// @Param format query string false "csv or pdf"
// @Param delivery query string false "attachment (default) or link"
// @Success 200 {file} file
// @Failure 404 {object} response.Envelope
// @Router /assignments/runs/{runId}/export [get]
func (h *AssignmentHandler) ExportRun(c *gin.Context) {
	var req dto.ExportRunRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid export query"))
		return
	}
	req.Format = strings.ToLower(strings.TrimSpace(req.Format))
	req.Delivery = strings.ToLower(strings.TrimSpace(req.Delivery))

	if req.Delivery == "link" {
		link, err := h.runs.Publish(c.Request.Context(), c.Param("runId"), req)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.JSON(c, http.StatusOK, link)
		return
	}

	out, err := h.runs.Export(c.Request.Context(), c.Param("runId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, out.Filename, out.ContentType, out.Data)
}

// DownloadExport godoc
// @Summary Download a stored run export via signed token
// @Tags Assignments
// @Produce octet-stream
// @Param token path string true "Signed token"
// @Success 200 {file} binary
// @Failure 403 {object} response.Envelope
// @Router /exports/{token} [get]
func (h *AssignmentHandler) DownloadExport(c *gin.Context) {
	token := strings.TrimSpace(c.Param("token"))
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}
	out, err := h.runs.Download(c.Request.Context(), token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer out.File.Close() //nolint:errcheck
	c.Header("Content-Disposition", `attachment; filename="`+out.Filename+`"`)
	c.Header("Cache-Control", "no-store")
	c.DataFromReader(http.StatusOK, out.Size, out.ContentType, out.File, nil)
}
