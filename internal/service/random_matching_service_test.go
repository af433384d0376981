package service

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/elective-match-api/internal/models"
)

func TestRandomMatchingRespectsCapacity(t *testing.T) {
	req := randomRequest(rand.New(rand.NewSource(3)), 25, 4, 3)
	svc := NewRandomMatchingService(rand.New(rand.NewSource(1)), nil)

	result := svc.Solve(context.Background(), req)

	require.Equal(t, models.MatchStatusSuccess, result.Status)
	assert.Equal(t, "Random matching completed (fallback algorithm)", result.Message)
	assert.True(t, result.Fallback)
	assert.Equal(t, len(req.Students), len(result.Assignments)+len(result.UnmatchedStudents))

	load := map[string]int{}
	for _, a := range result.Assignments {
		load[a.CourseID]++
		assert.Equal(t, models.UnrankedPreference, a.StudentPreferenceRank)
		assert.Equal(t, models.UnrankedPreference, a.CoursePreferenceRank)
	}
	for course, n := range load {
		assert.LessOrEqual(t, n, 3, course)
	}
	assert.Len(t, result.Assignments, 12)
	assert.Len(t, result.FullCourses, 4)
}

func TestRandomMatchingSeededRunsRepeat(t *testing.T) {
	req := randomRequest(rand.New(rand.NewSource(5)), 10, 5, 2)
	first := NewRandomMatchingService(rand.New(rand.NewSource(99)), nil).Solve(context.Background(), req)
	second := NewRandomMatchingService(rand.New(rand.NewSource(99)), nil).Solve(context.Background(), req)
	assert.Equal(t, first.Assignments, second.Assignments)
}

func TestRandomMatchingRejectsEmptyInput(t *testing.T) {
	svc := NewRandomMatchingService(rand.New(rand.NewSource(1)), nil)

	result := svc.Solve(context.Background(), models.MatchRequest{Courses: []models.CoursePreference{{CourseID: "C1"}}})
	assert.Equal(t, models.MatchStatusError, result.Status)
	assert.Equal(t, "Random matching failed: Students list cannot be empty", result.Message)
	assert.NotNil(t, result.Assignments)

	result = svc.Solve(context.Background(), models.MatchRequest{Students: []models.StudentPreference{{StudentID: "S1"}}})
	assert.Equal(t, "Random matching failed: Courses list cannot be empty", result.Message)
}

func TestRandomMatchingRejectsDuplicateAndBlankIDs(t *testing.T) {
	svc := NewRandomMatchingService(rand.New(rand.NewSource(1)), nil)
	courses := []models.CoursePreference{{CourseID: "C1"}, {CourseID: "C2"}}

	cases := map[string]struct {
		req     models.MatchRequest
		message string
	}{
		"duplicate student": {
			req: models.MatchRequest{
				Students: []models.StudentPreference{{StudentID: "S1"}, {StudentID: "S1"}},
				Courses:  courses,
			},
			message: "Random matching failed: Duplicate student ID: S1",
		},
		"blank student": {
			req: models.MatchRequest{
				Students: []models.StudentPreference{{StudentID: ""}},
				Courses:  courses,
			},
			message: "Random matching failed: Student ID cannot be empty",
		},
		"duplicate course": {
			req: models.MatchRequest{
				Students: []models.StudentPreference{{StudentID: "S1"}},
				Courses:  []models.CoursePreference{{CourseID: "C1"}, {CourseID: "C1"}},
			},
			message: "Random matching failed: Duplicate course ID: C1",
		},
		"blank course": {
			req: models.MatchRequest{
				Students: []models.StudentPreference{{StudentID: "S1"}},
				Courses:  []models.CoursePreference{{CourseID: ""}},
			},
			message: "Random matching failed: Course ID cannot be empty",
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			result := svc.Solve(context.Background(), tc.req)
			assert.Equal(t, models.MatchStatusError, result.Status)
			assert.Equal(t, tc.message, result.Message)
			assert.Empty(t, result.Assignments)
		})
	}
}
