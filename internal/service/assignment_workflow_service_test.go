package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/elective-match-api/internal/dto"
	"github.com/noah-isme/elective-match-api/internal/models"
)

type studentRegistryStub struct {
	students []models.Student
	err      error
}

func (s studentRegistryStub) ListAll(ctx context.Context) ([]models.Student, error) {
	return s.students, s.err
}

type courseRegistryStub struct {
	courses []models.Course
	err     error
}

func (s courseRegistryStub) ListOptional(ctx context.Context) ([]models.Course, error) {
	out := make([]models.Course, len(s.courses))
	copy(out, s.courses)
	return out, s.err
}

type scoreBuilderStub struct {
	table models.ScoreTable
}

func (s scoreBuilderStub) ComputeScores(ctx context.Context, students []models.Student, courses []models.Course) (models.ScoreTable, error) {
	return s.table, nil
}

// enrollmentSinkFake keeps enrollments in memory. Transactions come from
// sqlmock so commit and rollback behave like the real pool.
type enrollmentSinkFake struct {
	db      *sqlx.DB
	mu      sync.Mutex
	rows    []models.Enrollment
	locked  []string
	failFor string
}

func newEnrollmentSinkFake(t *testing.T, maxTx int) *enrollmentSinkFake {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	mock.MatchExpectationsInOrder(false)
	for i := 0; i < maxTx; i++ {
		mock.ExpectBegin()
		mock.ExpectCommit()
		mock.ExpectRollback()
	}
	return &enrollmentSinkFake{db: sqlx.NewDb(db, "sqlmock")}
}

func (f *enrollmentSinkFake) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return f.db.BeginTxx(ctx, opts)
}

func (f *enrollmentSinkFake) LockCourse(ctx context.Context, exec sqlx.ExtContext, courseCode string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.locked = append(f.locked, courseCode)
	return nil
}

func (f *enrollmentSinkFake) Exists(ctx context.Context, exec sqlx.ExtContext, studentCode, courseCode string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.rows {
		if e.StudentCode == studentCode && e.CourseCode == courseCode {
			return true, nil
		}
	}
	return false, nil
}

func (f *enrollmentSinkFake) CountByCourse(ctx context.Context, exec sqlx.ExtContext, courseCode string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.rows {
		if e.CourseCode == courseCode {
			n++
		}
	}
	return n, nil
}

func (f *enrollmentSinkFake) Create(ctx context.Context, exec sqlx.ExtContext, enrollment *models.Enrollment) error {
	if enrollment.StudentCode == f.failFor {
		return errors.New("insert failed")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = append(f.rows, *enrollment)
	return nil
}

func (f *enrollmentSinkFake) byStudent() map[string][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string][]string{}
	for _, e := range f.rows {
		out[e.StudentCode] = append(out[e.StudentCode], e.CourseCode)
	}
	return out
}

type matcherFunc func(ctx context.Context, req models.MatchRequest) models.MatchResult

func (f matcherFunc) Solve(ctx context.Context, req models.MatchRequest) models.MatchResult {
	return f(ctx, req)
}

func workflowFixture() ([]models.Student, []models.Course, models.ScoreTable) {
	students := []models.Student{{Code: "S1"}, {Code: "S2"}, {Code: "S3"}}
	courses := []models.Course{{Code: "OPT3"}, {Code: "OPT1"}, {Code: "OPT2"}}
	table := models.ScoreTable{}
	table.Set("S1", "OPT1", 90)
	table.Set("S2", "OPT1", 70)
	table.Set("S2", "OPT2", 95)
	table.Set("S3", "OPT3", 80)
	return students, courses, table
}

func newWorkflow(t *testing.T, sink *enrollmentSinkFake, matcher Matcher, courses []models.Course, cfg AssignmentWorkflowConfig) (*AssignmentWorkflowService, *MatchResultStore) {
	t.Helper()
	students, _, table := workflowFixture()
	store := NewMatchResultStore(time.Hour, nil, nil)
	if matcher == nil {
		matcher = NewStableMatchingService(nil, nil)
	}
	svc := NewAssignmentWorkflowService(
		studentRegistryStub{students: students},
		courseRegistryStub{courses: courses},
		sink,
		scoreBuilderStub{table: table},
		matcher,
		store,
		nil,
		NewMetricsService(),
		nil,
		cfg,
	)
	n := 0
	svc.newRunID = func() string {
		n++
		return fmt.Sprintf("run-%d", n)
	}
	return svc, store
}

func TestWorkflowExecutePersistsEachBatch(t *testing.T) {
	_, courses, _ := workflowFixture()
	sink := newEnrollmentSinkFake(t, 20)
	svc, store := newWorkflow(t, sink, nil, courses, AssignmentWorkflowConfig{})

	summary := svc.Execute(context.Background(), dto.ExecuteWorkflowRequest{BatchSize: 2})

	require.Equal(t, models.WorkflowStatusCompleted, summary.Status, summary.Message)
	assert.Equal(t, "Assignment workflow executed successfully", summary.Message)
	assert.Equal(t, "run-1", summary.RunID)
	assert.Equal(t, 2, summary.TotalBatches)
	assert.Equal(t, 2, summary.SuccessfulBatches)
	assert.Zero(t, summary.FailedBatches)
	assert.Equal(t, 3, summary.EnrollmentsCreated)

	// Batch 0 covers OPT1 and OPT2 in code order; batch 1 covers OPT3.
	first := summary.Results[0]
	assert.Equal(t, map[string]string{"S1": "OPT1", "S2": "OPT2"}, pairs(first))
	assert.Equal(t, []string{"S3"}, first.UnmatchedStudents)
	assert.Equal(t, map[string]string{"S3": "OPT3"}, pairs(summary.Results[1]))

	assert.Equal(t, map[string][]string{"S1": {"OPT1"}, "S2": {"OPT2"}, "S3": {"OPT3"}}, sink.byStudent())
	for _, e := range sink.rows {
		assert.Equal(t, "run-1", e.RunID)
		assert.Equal(t, models.EnrollmentSourceStableMatch, e.Source)
		require.NotNil(t, e.Ranking)
	}

	stored, ok := store.GetWorkflow(context.Background(), "run-1")
	require.True(t, ok)
	assert.Equal(t, summary.EnrollmentsCreated, stored.EnrollmentsCreated)
}

func TestWorkflowExecuteRejectsBatchSize(t *testing.T) {
	_, courses, _ := workflowFixture()
	svc, store := newWorkflow(t, newEnrollmentSinkFake(t, 1), nil, courses, AssignmentWorkflowConfig{})

	summary := svc.Execute(context.Background(), dto.ExecuteWorkflowRequest{BatchSize: 0})

	assert.Equal(t, models.WorkflowStatusFailed, summary.Status)
	assert.Equal(t, "Batch size must be greater than 0", summary.Message)
	_, ok := store.GetWorkflow(context.Background(), summary.RunID)
	assert.True(t, ok)

	_, err := svc.RunWorkflow(context.Background(), -1)
	assert.Error(t, err)
}

func TestWorkflowExecuteWithoutCourses(t *testing.T) {
	svc, _ := newWorkflow(t, newEnrollmentSinkFake(t, 1), nil, nil, AssignmentWorkflowConfig{})

	summary := svc.Execute(context.Background(), dto.ExecuteWorkflowRequest{BatchSize: 3})

	assert.Equal(t, models.WorkflowStatusCompleted, summary.Status)
	assert.Zero(t, summary.TotalBatches)
	assert.Empty(t, summary.Results)
}

func TestWorkflowExecuteRegistryFailure(t *testing.T) {
	store := NewMatchResultStore(time.Hour, nil, nil)
	svc := NewAssignmentWorkflowService(
		studentRegistryStub{err: errors.New("connection refused")},
		courseRegistryStub{courses: []models.Course{{Code: "OPT1"}}},
		newEnrollmentSinkFake(t, 1),
		scoreBuilderStub{},
		NewStableMatchingService(nil, nil),
		store, nil, nil, nil, AssignmentWorkflowConfig{},
	)

	summary := svc.Execute(context.Background(), dto.ExecuteWorkflowRequest{BatchSize: 1})

	assert.Equal(t, models.WorkflowStatusFailed, summary.Status)
	assert.Equal(t, "Error executing workflow: load students: connection refused", summary.Message)
}

func TestWorkflowFailedBatchDoesNotStopOthers(t *testing.T) {
	_, courses, _ := workflowFixture()
	engine := NewStableMatchingService(nil, nil)
	matcher := matcherFunc(func(ctx context.Context, req models.MatchRequest) models.MatchResult {
		if req.Courses[0].CourseID == "OPT1" {
			return errorResult("Invalid input: simulated")
		}
		return engine.Solve(ctx, req)
	})
	sink := newEnrollmentSinkFake(t, 20)
	svc, _ := newWorkflow(t, sink, matcher, courses, AssignmentWorkflowConfig{})

	summary := svc.Execute(context.Background(), dto.ExecuteWorkflowRequest{BatchSize: 1})

	require.Equal(t, models.WorkflowStatusCompleted, summary.Status)
	assert.Equal(t, 3, summary.TotalBatches)
	assert.Equal(t, 1, summary.FailedBatches)
	assert.Equal(t, 2, summary.SuccessfulBatches)
	assert.Equal(t, models.MatchStatusError, summary.Results[0].Status)
}

func TestWorkflowSkipsDuplicatesAndFullCourses(t *testing.T) {
	_, courses, _ := workflowFixture()
	sink := newEnrollmentSinkFake(t, 20)
	sink.rows = []models.Enrollment{
		{StudentCode: "S1", CourseCode: "OPT1"},
		{StudentCode: "S9", CourseCode: "OPT2"},
	}
	svc, _ := newWorkflow(t, sink, nil, courses, AssignmentWorkflowConfig{})

	summary := svc.Execute(context.Background(), dto.ExecuteWorkflowRequest{BatchSize: 3})

	require.Equal(t, models.WorkflowStatusCompleted, summary.Status)
	// S1->OPT1 already exists and OPT2 is full, so only OPT3 is written.
	assert.Equal(t, 1, summary.EnrollmentsCreated)
	assert.Len(t, sink.rows, 3)
}

func TestWorkflowPersistenceErrorsAreLogged(t *testing.T) {
	_, courses, _ := workflowFixture()
	sink := newEnrollmentSinkFake(t, 20)
	sink.failFor = "S2"
	svc, _ := newWorkflow(t, sink, nil, courses, AssignmentWorkflowConfig{})

	summary := svc.Execute(context.Background(), dto.ExecuteWorkflowRequest{BatchSize: 3})

	assert.Equal(t, models.WorkflowStatusCompleted, summary.Status)
	assert.Equal(t, 1, summary.SuccessfulBatches)
	assert.Equal(t, 2, summary.EnrollmentsCreated)
}

func TestWorkflowMarksFallbackEnrollments(t *testing.T) {
	_, courses, _ := workflowFixture()
	engine := NewStableMatchingService(nil, nil)
	matcher := matcherFunc(func(ctx context.Context, req models.MatchRequest) models.MatchResult {
		result := engine.Solve(ctx, req)
		result.Fallback = true
		return result
	})
	sink := newEnrollmentSinkFake(t, 20)
	svc, _ := newWorkflow(t, sink, matcher, courses, AssignmentWorkflowConfig{})

	summary := svc.Execute(context.Background(), dto.ExecuteWorkflowRequest{BatchSize: 3})

	assert.Equal(t, 1, summary.FallbackBatches)
	require.NotEmpty(t, sink.rows)
	for _, e := range sink.rows {
		assert.Equal(t, models.EnrollmentSourceFallback, e.Source)
	}
}

func TestWorkflowParallelBatchesRespectCapacity(t *testing.T) {
	courses := make([]models.Course, 0, 12)
	for i := 0; i < 12; i++ {
		courses = append(courses, models.Course{Code: fmt.Sprintf("OPT%02d", i)})
	}
	sink := newEnrollmentSinkFake(t, 200)
	svc, _ := newWorkflow(t, sink, nil, courses, AssignmentWorkflowConfig{Concurrency: 4, CapacityPerCourse: 2})

	results, err := svc.RunWorkflow(context.Background(), 1)

	require.NoError(t, err)
	assert.Len(t, results, 12)
	perCourse := map[string]int{}
	for _, e := range sink.rows {
		perCourse[e.CourseCode]++
	}
	for course, n := range perCourse {
		assert.LessOrEqual(t, n, 2, course)
	}
	assert.Len(t, sink.rows, 24)
}

func TestPartitionCourses(t *testing.T) {
	courses := []models.Course{{Code: "A"}, {Code: "B"}, {Code: "C"}, {Code: "D"}, {Code: "E"}}
	batches := PartitionCourses(courses, 2)
	require.Len(t, batches, 3)
	assert.Equal(t, []string{"E"}, courseCodes(batches[2]))
	assert.Nil(t, PartitionCourses(courses, 0))
}

func TestBuildBatchRequest(t *testing.T) {
	students, _, table := workflowFixture()
	req := BuildBatchRequest(students, []models.Course{{Code: "OPT2"}, {Code: "OPT1"}}, table, 2)

	assert.Equal(t, 2, req.CapacityPerCourse)
	for _, sp := range req.Students {
		assert.Equal(t, []string{"OPT1", "OPT2"}, sp.Preferences)
	}
	assert.Equal(t, []string{"S2", "S1", "S3"}, req.Courses[0].Preferences)
	assert.Equal(t, "OPT2", req.Courses[0].CourseID)
}
