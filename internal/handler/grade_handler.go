package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/elective-match-api/internal/dto"
	"github.com/noah-isme/elective-match-api/internal/service"
	appErrors "github.com/noah-isme/elective-match-api/pkg/errors"
	"github.com/noah-isme/elective-match-api/pkg/response"
)

type gradeSubmitter interface {
	Submit(ctx context.Context, req dto.IngestGradesRequest) (*dto.IngestGradesResponse, error)
}

// GradeHandler receives grade events from the grading system.
type GradeHandler struct {
	service gradeSubmitter
}

// NewGradeHandler constructs the handler.
func NewGradeHandler(svc *service.GradeIngestionService) *GradeHandler {
	return &GradeHandler{service: svc}
}

// Ingest godoc
// @Summary Submit grade events for asynchronous ingestion
// @Tags Grades
// @Accept json
// @Produce json
// @Param payload body dto.IngestGradesRequest true "Grade events"
// @Success 202 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /grades [post]
func (h *GradeHandler) Ingest(c *gin.Context) {
	var req dto.IngestGradesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid grade payload"))
		return
	}
	resp, err := h.service.Submit(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, resp)
}
