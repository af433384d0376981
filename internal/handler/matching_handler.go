package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/noah-isme/elective-match-api/internal/models"
	appErrors "github.com/noah-isme/elective-match-api/pkg/errors"
	"github.com/noah-isme/elective-match-api/pkg/logger"
	"github.com/noah-isme/elective-match-api/pkg/response"
)

const engineAlgorithm = "capacity-aware deferred acceptance (student proposing)"

type matchSolver interface {
	Solve(ctx context.Context, req models.MatchRequest) models.MatchResult
}

type matchRunStore interface {
	SaveMatch(ctx context.Context, result models.MatchResult)
	GetMatch(ctx context.Context, runID string) (models.MatchResult, bool)
}

// MatchingHandler exposes the matching engine over HTTP.
type MatchingHandler struct {
	engine   matchSolver
	runs     matchRunStore
	version  string
	newRunID func() string
}

// NewMatchingHandler constructs the handler.
func NewMatchingHandler(engine matchSolver, runs matchRunStore, version string) *MatchingHandler {
	return &MatchingHandler{engine: engine, runs: runs, version: version, newRunID: uuid.NewString}
}

// Solve godoc
// @Summary Solve a student-course matching problem
// @Description Runs capacity-aware deferred acceptance. The run id is returned in the X-Match-Run-ID header.
// @Tags Matching
// @Accept json
// @Produce json
// @Param payload body models.MatchRequest true "Match request"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /v1/matching/solve [post]
func (h *MatchingHandler) Solve(c *gin.Context) {
	var req models.MatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid match payload"))
		return
	}

	result := h.engine.Solve(c.Request.Context(), req)
	result.RunID = h.newRunID()
	h.runs.SaveMatch(c.Request.Context(), result)
	c.Header(logger.RunIDHeader, result.RunID)

	status := http.StatusOK
	if !result.Succeeded() {
		status = http.StatusBadRequest
	}
	response.JSON(c, status, result)
}

// Assignments godoc
// @Summary List the assignments of a run
// @Tags Matching
// @Produce json
// @Param runId path string true "Run ID"
// @Success 200 {object} response.Envelope
// @Router /v1/matching/runs/{runId}/assignments [get]
func (h *MatchingHandler) Assignments(c *gin.Context) {
	result, ok := h.lookup(c)
	if !ok {
		return
	}
	response.JSON(c, http.StatusOK, result.Assignments)
}

// StudentAssignment godoc
// @Summary Get the assignment of one student in a run
// @Tags Matching
// @Produce json
// @Param runId path string true "Run ID"
// @Param studentId path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /v1/matching/runs/{runId}/assignments/student/{studentId} [get]
func (h *MatchingHandler) StudentAssignment(c *gin.Context) {
	result, ok := h.lookup(c)
	if !ok {
		return
	}
	assignment, found := result.AssignmentFor(c.Param("studentId"))
	if !found {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "student has no assignment in this run"))
		return
	}
	response.JSON(c, http.StatusOK, assignment)
}

// CourseAssignments godoc
// @Summary List the students assigned to one course in a run
// @Tags Matching
// @Produce json
// @Param runId path string true "Run ID"
// @Param courseId path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /v1/matching/runs/{runId}/assignments/course/{courseId} [get]
func (h *MatchingHandler) CourseAssignments(c *gin.Context) {
	result, ok := h.lookup(c)
	if !ok {
		return
	}
	response.JSON(c, http.StatusOK, result.AssignmentsForCourse(c.Param("courseId")))
}

// UnmatchedStudents godoc
// @Summary List the students left unmatched by a run
// @Tags Matching
// @Produce json
// @Param runId path string true "Run ID"
// @Success 200 {object} response.Envelope
// @Router /v1/matching/runs/{runId}/unmatched-students [get]
func (h *MatchingHandler) UnmatchedStudents(c *gin.Context) {
	result, ok := h.lookup(c)
	if !ok {
		return
	}
	response.JSON(c, http.StatusOK, result.UnmatchedStudents)
}

// FullCourses godoc
// @Summary List the courses filled to capacity by a run
// @Tags Matching
// @Produce json
// @Param runId path string true "Run ID"
// @Success 200 {object} response.Envelope
// @Router /v1/matching/runs/{runId}/full-courses [get]
func (h *MatchingHandler) FullCourses(c *gin.Context) {
	result, ok := h.lookup(c)
	if !ok {
		return
	}
	response.JSON(c, http.StatusOK, result.FullCourses)
}

// Summary godoc
// @Summary Summarise a run
// @Tags Matching
// @Produce json
// @Param runId path string true "Run ID"
// @Success 200 {object} response.Envelope
// @Router /v1/matching/runs/{runId}/summary [get]
func (h *MatchingHandler) Summary(c *gin.Context) {
	result, ok := h.lookup(c)
	if !ok {
		return
	}
	response.JSON(c, http.StatusOK, result.Summary())
}

// Health godoc
// @Summary Engine liveness
// @Tags Matching
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /v1/matching/health [get]
func (h *MatchingHandler) Health(c *gin.Context) {
	response.JSON(c, http.StatusOK, gin.H{"status": "UP", "service": "stablematch", "timestamp": time.Now().UTC()})
}

// Info godoc
// @Summary Engine description
// @Tags Matching
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /v1/matching/info [get]
func (h *MatchingHandler) Info(c *gin.Context) {
	response.JSON(c, http.StatusOK, gin.H{
		"service":   "stablematch",
		"version":   h.version,
		"algorithm": engineAlgorithm,
		"properties": []string{
			"stable: no student and course both prefer each other over their assignment",
			"student-optimal among stable matchings",
			"capacity-aware",
		},
	})
}

func (h *MatchingHandler) lookup(c *gin.Context) (models.MatchResult, bool) {
	result, ok := h.runs.GetMatch(c.Request.Context(), c.Param("runId"))
	if !ok {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "match run not found"))
		return models.MatchResult{}, false
	}
	return result, true
}
