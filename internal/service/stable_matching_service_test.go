package service

import (
	"context"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/elective-match-api/internal/models"
)

func solve(t *testing.T, req models.MatchRequest) models.MatchResult {
	t.Helper()
	return NewStableMatchingService(nil, nil).Solve(context.Background(), req)
}

func pairs(result models.MatchResult) map[string]string {
	out := make(map[string]string, len(result.Assignments))
	for _, a := range result.Assignments {
		out[a.StudentID] = a.CourseID
	}
	return out
}

// requireStable checks capacity, single assignment and the absence of blocking pairs.
func requireStable(t *testing.T, req models.MatchRequest, result models.MatchResult) {
	t.Helper()
	require.Equal(t, models.MatchStatusSuccess, result.Status, result.Message)

	assigned := pairs(result)
	require.Len(t, assigned, len(result.Assignments), "student assigned twice")
	require.Equal(t, len(req.Students), len(result.Assignments)+len(result.UnmatchedStudents), "students must be partitioned")

	load := map[string][]string{}
	for _, a := range result.Assignments {
		load[a.CourseID] = append(load[a.CourseID], a.StudentID)
	}

	courseRank := map[string]map[string]int{}
	for _, cp := range req.Courses {
		ranks := map[string]int{}
		for i, s := range cp.Preferences {
			ranks[s] = i
		}
		courseRank[cp.CourseID] = ranks
		require.LessOrEqual(t, len(load[cp.CourseID]), req.CapacityFor(cp), "course %s over capacity", cp.CourseID)
	}
	rankIn := func(course, student string) int {
		if r, ok := courseRank[course][student]; ok {
			return r
		}
		return len(req.Students) + 1
	}

	capacity := map[string]int{}
	for _, cp := range req.Courses {
		capacity[cp.CourseID] = req.CapacityFor(cp)
	}
	for _, sp := range req.Students {
		current, matched := assigned[sp.StudentID]
		for _, course := range sp.Preferences {
			if matched && course == current {
				break
			}
			if len(load[course]) < capacity[course] {
				t.Fatalf("blocking pair (%s, %s): course has a free seat", sp.StudentID, course)
			}
			for _, holder := range load[course] {
				if rankIn(course, sp.StudentID) < rankIn(course, holder) {
					t.Fatalf("blocking pair (%s, %s): course prefers them over %s", sp.StudentID, course, holder)
				}
			}
		}
	}
}

func TestStableMatchingMutualFirstChoices(t *testing.T) {
	req := models.MatchRequest{
		Students: []models.StudentPreference{
			{StudentID: "S1", Preferences: []string{"C1", "C2"}},
			{StudentID: "S2", Preferences: []string{"C2", "C1"}},
		},
		Courses: []models.CoursePreference{
			{CourseID: "C1", Preferences: []string{"S1", "S2"}},
			{CourseID: "C2", Preferences: []string{"S2", "S1"}},
		},
		CapacityPerCourse: 1,
	}

	result := solve(t, req)

	requireStable(t, req, result)
	assert.Equal(t, map[string]string{"S1": "C1", "S2": "C2"}, pairs(result))
	assert.Empty(t, result.UnmatchedStudents)
	assert.Equal(t, "Stable matching completed successfully", result.Message)
	assert.Equal(t, []models.Assignment{
		{StudentID: "S1", CourseID: "C1", StudentPreferenceRank: 1, CoursePreferenceRank: 1},
		{StudentID: "S2", CourseID: "C2", StudentPreferenceRank: 1, CoursePreferenceRank: 1},
	}, result.Assignments)
}

func TestStableMatchingCapacityLimitsPopularCourse(t *testing.T) {
	req := models.MatchRequest{
		Students: []models.StudentPreference{
			{StudentID: "S1", Preferences: []string{"C1"}},
			{StudentID: "S2", Preferences: []string{"C1"}},
			{StudentID: "S3", Preferences: []string{"C1"}},
		},
		Courses:           []models.CoursePreference{{CourseID: "C1", Preferences: []string{"S1", "S2", "S3"}}},
		CapacityPerCourse: 2,
	}

	result := solve(t, req)

	requireStable(t, req, result)
	assert.Equal(t, map[string]string{"S1": "C1", "S2": "C1"}, pairs(result))
	assert.Equal(t, []string{"S3"}, result.UnmatchedStudents)
	assert.Equal(t, []string{"C1"}, result.FullCourses)
}

func TestStableMatchingEvictsWorstRankedAssignee(t *testing.T) {
	// S3 arrives last but outranks both holders; the worst of them must leave.
	req := models.MatchRequest{
		Students: []models.StudentPreference{
			{StudentID: "S1", Preferences: []string{"C1", "C2"}},
			{StudentID: "S2", Preferences: []string{"C1", "C2"}},
			{StudentID: "S3", Preferences: []string{"C1", "C2"}},
		},
		Courses: []models.CoursePreference{
			{CourseID: "C1", Preferences: []string{"S3", "S1", "S2"}},
			{CourseID: "C2", Preferences: []string{"S1", "S2", "S3"}},
		},
		CapacityPerCourse: 2,
	}

	result := solve(t, req)

	requireStable(t, req, result)
	assert.Equal(t, map[string]string{"S1": "C1", "S2": "C2", "S3": "C1"}, pairs(result))
}

func TestStableMatchingUnrankedStudents(t *testing.T) {
	req := models.MatchRequest{
		Students: []models.StudentPreference{
			{StudentID: "S1", Preferences: []string{"C1"}},
			{StudentID: "S2", Preferences: []string{"C1"}},
		},
		Courses:           []models.CoursePreference{{CourseID: "C1", Preferences: []string{"S2"}}},
		CapacityPerCourse: 1,
	}

	result := solve(t, req)

	requireStable(t, req, result)
	assert.Equal(t, map[string]string{"S2": "C1"}, pairs(result))
	assert.Equal(t, []string{"S1"}, result.UnmatchedStudents)

	// With a spare seat the unranked student is admitted and reported with rank -1.
	req.CapacityPerCourse = 2
	result = solve(t, req)
	requireStable(t, req, result)
	a, ok := result.AssignmentFor("S1")
	require.True(t, ok)
	assert.Equal(t, models.UnrankedPreference, a.CoursePreferenceRank)
}

func TestStableMatchingEqualRankNeverEvicts(t *testing.T) {
	// S1 and S2 are both missing from C1's list, so they tie for its only seat.
	req := models.MatchRequest{
		Students: []models.StudentPreference{
			{StudentID: "S1", Preferences: []string{"C1"}},
			{StudentID: "S2", Preferences: []string{"C1"}},
			{StudentID: "S3", Preferences: []string{"C2"}},
		},
		Courses: []models.CoursePreference{
			{CourseID: "C1", Preferences: []string{"S3"}},
			{CourseID: "C2", Preferences: []string{"S3"}},
		},
		CapacityPerCourse: 1,
	}

	done := make(chan models.MatchResult, 1)
	go func() { done <- NewStableMatchingService(nil, nil).Solve(context.Background(), req) }()

	var result models.MatchResult
	select {
	case result = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("solve did not terminate; equal ranks keep evicting each other")
	}

	requireStable(t, req, result)
	assert.Equal(t, map[string]string{"S1": "C1", "S3": "C2"}, pairs(result))
	assert.Equal(t, []string{"S2"}, result.UnmatchedStudents)
}

func TestStableMatchingCourseCapacityOverride(t *testing.T) {
	req := models.MatchRequest{
		Students: []models.StudentPreference{
			{StudentID: "S1", Preferences: []string{"C1"}},
			{StudentID: "S2", Preferences: []string{"C1"}},
			{StudentID: "S3", Preferences: []string{"C1"}},
		},
		Courses: []models.CoursePreference{{CourseID: "C1", Preferences: []string{"S3", "S2", "S1"}, Capacity: 3}},
	}

	result := solve(t, req)

	requireStable(t, req, result)
	assert.Len(t, result.Assignments, 3)
	assert.Equal(t, []string{"C1"}, result.FullCourses)
}

func TestStableMatchingDefaultCapacityIsOne(t *testing.T) {
	req := models.MatchRequest{
		Students: []models.StudentPreference{
			{StudentID: "S1", Preferences: []string{"C1"}},
			{StudentID: "S2", Preferences: []string{"C1"}},
		},
		Courses: []models.CoursePreference{{CourseID: "C1", Preferences: []string{"S2", "S1"}}},
	}

	result := solve(t, req)

	requireStable(t, req, result)
	assert.Equal(t, map[string]string{"S2": "C1"}, pairs(result))
}

func TestStableMatchingValidation(t *testing.T) {
	valid := func() models.MatchRequest {
		return models.MatchRequest{
			Students: []models.StudentPreference{{StudentID: "S1", Preferences: []string{"C1"}}},
			Courses:  []models.CoursePreference{{CourseID: "C1", Preferences: []string{"S1"}}},
		}
	}
	cases := []struct {
		name    string
		mutate  func(*models.MatchRequest)
		message string
	}{
		{"no students", func(r *models.MatchRequest) { r.Students = nil }, "Students list cannot be empty"},
		{"no courses", func(r *models.MatchRequest) { r.Courses = nil }, "Courses list cannot be empty"},
		{"negative capacity", func(r *models.MatchRequest) { r.CapacityPerCourse = -1 }, "Capacity per course must be at least 1"},
		{"blank student", func(r *models.MatchRequest) { r.Students[0].StudentID = "" }, "Student ID cannot be empty"},
		{"duplicate student", func(r *models.MatchRequest) { r.Students = append(r.Students, r.Students[0]) }, "Duplicate student ID: S1"},
		{"student without preferences", func(r *models.MatchRequest) { r.Students[0].Preferences = nil }, "Student S1 must have at least one preference"},
		{"blank course", func(r *models.MatchRequest) { r.Courses[0].CourseID = "" }, "Course ID cannot be empty"},
		{"duplicate course", func(r *models.MatchRequest) { r.Courses = append(r.Courses, r.Courses[0]) }, "Duplicate course ID: C1"},
		{"course without preferences", func(r *models.MatchRequest) { r.Courses[0].Preferences = nil }, "Course C1 must have at least one preference"},
		{"unknown course", func(r *models.MatchRequest) { r.Students[0].Preferences = []string{"C9"} }, "Student S1 prefers unknown course C9"},
		{"unknown student", func(r *models.MatchRequest) { r.Courses[0].Preferences = []string{"S9"} }, "Course C1 ranks unknown student S9"},
		{"repeated course", func(r *models.MatchRequest) { r.Students[0].Preferences = []string{"C1", "C1"} }, "Student S1 lists course C1 more than once"},
		{"repeated student", func(r *models.MatchRequest) { r.Courses[0].Preferences = []string{"S1", "S1"} }, "Course C1 lists student S1 more than once"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := valid()
			tc.mutate(&req)
			result := solve(t, req)
			assert.Equal(t, models.MatchStatusError, result.Status)
			assert.Equal(t, "Invalid input: "+tc.message, result.Message)
			assert.NotNil(t, result.Assignments)
			assert.Empty(t, result.Assignments)
			assert.Empty(t, result.UnmatchedStudents)
			assert.Empty(t, result.FullCourses)
		})
	}
}

func TestStableMatchingCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result := NewStableMatchingService(nil, nil).Solve(ctx, models.MatchRequest{
		Students: []models.StudentPreference{{StudentID: "S1", Preferences: []string{"C1"}}},
		Courses:  []models.CoursePreference{{CourseID: "C1", Preferences: []string{"S1"}}},
	})
	assert.Equal(t, models.MatchStatusError, result.Status)
	assert.Contains(t, result.Message, "Internal error")
}

func randomRequest(rng *rand.Rand, students, courses, capacity int) models.MatchRequest {
	req := models.MatchRequest{CapacityPerCourse: capacity}
	courseIDs := make([]string, courses)
	for i := range courseIDs {
		courseIDs[i] = fmt.Sprintf("C%02d", i)
	}
	studentIDs := make([]string, students)
	for i := range studentIDs {
		studentIDs[i] = fmt.Sprintf("S%03d", i)
	}
	for _, id := range studentIDs {
		perm := rng.Perm(courses)
		n := 1 + rng.Intn(courses)
		prefs := make([]string, n)
		for i := 0; i < n; i++ {
			prefs[i] = courseIDs[perm[i]]
		}
		req.Students = append(req.Students, models.StudentPreference{StudentID: id, Preferences: prefs})
	}
	for _, id := range courseIDs {
		perm := rng.Perm(students)
		n := 1 + rng.Intn(students)
		prefs := make([]string, n)
		for i := 0; i < n; i++ {
			prefs[i] = studentIDs[perm[i]]
		}
		req.Courses = append(req.Courses, models.CoursePreference{CourseID: id, Preferences: prefs})
	}
	return req
}

func TestStableMatchingRandomInstancesAreStable(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 200; i++ {
		req := randomRequest(rng, 2+rng.Intn(30), 1+rng.Intn(8), 1+rng.Intn(4))
		result := solve(t, req)
		requireStable(t, req, result)
	}
}

func TestStableMatchingIsDeterministic(t *testing.T) {
	req := randomRequest(rand.New(rand.NewSource(7)), 40, 6, 3)
	first := solve(t, req)
	second := solve(t, req)

	if diff := cmp.Diff(first, second, cmpopts.IgnoreFields(models.MatchResult{}, "ExecutionTimeMs")); diff != "" {
		t.Fatalf("solve is not deterministic (-first +second):\n%s", diff)
	}
}
