package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/elective-match-api/internal/dto"
	"github.com/noah-isme/elective-match-api/internal/models"
	"github.com/noah-isme/elective-match-api/internal/service"
	appErrors "github.com/noah-isme/elective-match-api/pkg/errors"
	"github.com/noah-isme/elective-match-api/pkg/response"
)

type weightingManager interface {
	List(ctx context.Context, courseCode string) ([]models.CourseWeighting, error)
	Replace(ctx context.Context, courseCode string, req dto.ReplaceWeightingsRequest) ([]models.CourseWeighting, error)
}

// WeightingHandler manages prerequisite weightings of optional courses.
type WeightingHandler struct {
	service weightingManager
}

// NewWeightingHandler constructs the handler.
func NewWeightingHandler(svc *service.WeightingService) *WeightingHandler {
	return &WeightingHandler{service: svc}
}

// List godoc
// @Summary List prerequisite weightings of an optional course
// @Tags Weightings
// @Produce json
// @Param code path string true "Optional course code"
// @Success 200 {object} response.Envelope
// @Router /courses/{code}/weightings [get]
func (h *WeightingHandler) List(c *gin.Context) {
	weightings, err := h.service.List(c.Request.Context(), c.Param("code"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, weightings)
}

// Replace godoc
// @Summary Replace prerequisite weightings of an optional course
// @Tags Weightings
// @Accept json
// @Produce json
// @Param code path string true "Optional course code"
// @Param payload body dto.ReplaceWeightingsRequest true "Weightings"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /courses/{code}/weightings [put]
func (h *WeightingHandler) Replace(c *gin.Context) {
	var req dto.ReplaceWeightingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid weighting payload"))
		return
	}
	weightings, err := h.service.Replace(c.Request.Context(), c.Param("code"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, weightings)
}
