package handler

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/elective-match-api/internal/dto"
	appErrors "github.com/noah-isme/elective-match-api/pkg/errors"
)

type gradeSubmitterMock struct {
	captured dto.IngestGradesRequest
	err      error
}

func (m *gradeSubmitterMock) Submit(ctx context.Context, req dto.IngestGradesRequest) (*dto.IngestGradesResponse, error) {
	m.captured = req
	if m.err != nil {
		return nil, m.err
	}
	return &dto.IngestGradesResponse{Accepted: len(req.Events), JobIDs: []string{"job-1"}}, nil
}

func ingest(h *GradeHandler, body string) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/grades", bytes.NewBufferString(body))
	c.Request.Header.Set("Content-Type", "application/json")
	h.Ingest(c)
	return w
}

func TestGradeHandlerAccepts(t *testing.T) {
	svc := &gradeSubmitterMock{}
	w := ingest(&GradeHandler{service: svc}, `{"events":[{"student_code":"S1","course_code":"MATH1","grade":9}]}`)

	require.Equal(t, http.StatusAccepted, w.Code)
	require.Len(t, svc.captured.Events, 1)
	assert.Equal(t, "MATH1", svc.captured.Events[0].CourseCode)
	assert.Contains(t, w.Body.String(), `"accepted":1`)
}

func TestGradeHandlerQueueUnavailable(t *testing.T) {
	svc := &gradeSubmitterMock{err: appErrors.ErrQueueUnavailable}
	w := ingest(&GradeHandler{service: svc}, `{"events":[{"student_code":"S1","course_code":"MATH1","grade":9}]}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
