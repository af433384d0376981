package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/elective-match-api/internal/dto"
	"github.com/noah-isme/elective-match-api/internal/models"
	appErrors "github.com/noah-isme/elective-match-api/pkg/errors"
)

const (
	workflowSuccessMessage   = "Assignment workflow executed successfully"
	workflowBatchSizeMessage = "Batch size must be greater than 0"
)

type studentRegistry interface {
	ListAll(ctx context.Context) ([]models.Student, error)
}

type courseRegistry interface {
	ListOptional(ctx context.Context) ([]models.Course, error)
}

type enrollmentSink interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
	LockCourse(ctx context.Context, exec sqlx.ExtContext, courseCode string) error
	Exists(ctx context.Context, exec sqlx.ExtContext, studentCode, courseCode string) (bool, error)
	CountByCourse(ctx context.Context, exec sqlx.ExtContext, courseCode string) (int, error)
	Create(ctx context.Context, exec sqlx.ExtContext, enrollment *models.Enrollment) error
}

type scoreBuilder interface {
	ComputeScores(ctx context.Context, students []models.Student, courses []models.Course) (models.ScoreTable, error)
}

// AssignmentWorkflowConfig tunes batch processing.
type AssignmentWorkflowConfig struct {
	DefaultBatchSize  int
	Concurrency       int
	CapacityPerCourse int
}

// AssignmentWorkflowService partitions optional courses into batches, matches
// each batch and persists the resulting enrollments.
type AssignmentWorkflowService struct {
	students    studentRegistry
	courses     courseRegistry
	enrollments enrollmentSink
	scores      scoreBuilder
	matcher     Matcher
	store       *MatchResultStore
	validator   *validator.Validate
	metrics     *MetricsService
	logger      *zap.Logger
	cfg         AssignmentWorkflowConfig
	newRunID    func() string
}

// NewAssignmentWorkflowService wires the workflow dependencies.
func NewAssignmentWorkflowService(
	students studentRegistry,
	courses courseRegistry,
	enrollments enrollmentSink,
	scores scoreBuilder,
	matcher Matcher,
	store *MatchResultStore,
	validate *validator.Validate,
	metrics *MetricsService,
	logger *zap.Logger,
	cfg AssignmentWorkflowConfig,
) *AssignmentWorkflowService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DefaultBatchSize <= 0 {
		cfg.DefaultBatchSize = 5
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.CapacityPerCourse <= 0 {
		cfg.CapacityPerCourse = 1
	}
	return &AssignmentWorkflowService{
		students:    students,
		courses:     courses,
		enrollments: enrollments,
		scores:      scores,
		matcher:     matcher,
		store:       store,
		validator:   validate,
		metrics:     metrics,
		logger:      logger,
		cfg:         cfg,
		newRunID:    uuid.NewString,
	}
}

// DefaultBatchSize is used when a caller does not choose one.
func (s *AssignmentWorkflowService) DefaultBatchSize() int {
	return s.cfg.DefaultBatchSize
}

// RunWorkflow matches every batch and returns the results keyed by batch index.
func (s *AssignmentWorkflowService) RunWorkflow(ctx context.Context, batchSize int) (map[int]models.MatchResult, error) {
	if batchSize <= 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, workflowBatchSizeMessage)
	}
	batches, err := s.run(ctx, s.newRunID(), batchSize, s.cfg.CapacityPerCourse, s.cfg.Concurrency)
	if err != nil {
		return nil, err
	}
	results := make(map[int]models.MatchResult, len(batches))
	for _, b := range batches {
		results[b.Index] = b.Result
	}
	return results, nil
}

// Execute runs the workflow and reports a summary. It never returns an error;
// failures are described by the summary status and message.
func (s *AssignmentWorkflowService) Execute(ctx context.Context, req dto.ExecuteWorkflowRequest) models.WorkflowSummary {
	start := time.Now()
	summary := models.WorkflowSummary{
		RunID:     s.newRunID(),
		BatchSize: req.BatchSize,
		Results:   map[int]models.MatchResult{},
		StartedAt: start.UTC(),
	}
	finish := func(status models.WorkflowStatus, message string) models.WorkflowSummary {
		summary.Status = status
		summary.Message = message
		summary.ExecutionTimeMs = time.Since(start).Milliseconds()
		s.store.SaveWorkflow(ctx, summary)
		return summary
	}

	if req.BatchSize <= 0 {
		return finish(models.WorkflowStatusFailed, workflowBatchSizeMessage)
	}
	if err := s.validator.Struct(req); err != nil {
		return finish(models.WorkflowStatusFailed, "Invalid workflow request: "+err.Error())
	}

	capacity := req.CapacityPerCourse
	if capacity <= 0 {
		capacity = s.cfg.CapacityPerCourse
	}
	concurrency := req.Concurrency
	if concurrency <= 0 {
		concurrency = s.cfg.Concurrency
	}

	s.logger.Info("assignment workflow started",
		zap.String("run_id", summary.RunID),
		zap.Int("batch_size", req.BatchSize),
		zap.Int("capacity", capacity),
		zap.Int("concurrency", concurrency),
	)

	batches, err := s.run(ctx, summary.RunID, req.BatchSize, capacity, concurrency)
	if err != nil {
		s.logger.Error("assignment workflow failed", zap.String("run_id", summary.RunID), zap.Error(err))
		return finish(models.WorkflowStatusFailed, "Error executing workflow: "+err.Error())
	}

	summary.TotalBatches = len(batches)
	for _, b := range batches {
		summary.Results[b.Index] = b.Result
		summary.EnrollmentsCreated += b.EnrollmentsCreated
		if b.Result.Succeeded() {
			summary.SuccessfulBatches++
		} else {
			summary.FailedBatches++
		}
		if b.Result.Fallback {
			summary.FallbackBatches++
		}
	}

	s.logger.Info("assignment workflow completed",
		zap.String("run_id", summary.RunID),
		zap.Int("batches", summary.TotalBatches),
		zap.Int("successful", summary.SuccessfulBatches),
		zap.Int("enrollments", summary.EnrollmentsCreated),
	)
	return finish(models.WorkflowStatusCompleted, workflowSuccessMessage)
}

func (s *AssignmentWorkflowService) run(ctx context.Context, runID string, batchSize, capacity, concurrency int) ([]models.BatchResult, error) {
	courses, err := s.courses.ListOptional(ctx)
	if err != nil {
		return nil, fmt.Errorf("load optional courses: %w", err)
	}
	if len(courses) == 0 {
		s.logger.Warn("no optional courses found", zap.String("run_id", runID))
		return []models.BatchResult{}, nil
	}
	students, err := s.students.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load students: %w", err)
	}
	if len(students) == 0 {
		s.logger.Warn("no students found", zap.String("run_id", runID))
		return []models.BatchResult{}, nil
	}

	sort.SliceStable(courses, func(i, j int) bool { return courses[i].Code < courses[j].Code })
	batches := PartitionCourses(courses, batchSize)
	s.logger.Info("optional courses partitioned",
		zap.String("run_id", runID),
		zap.Int("courses", len(courses)),
		zap.Int("students", len(students)),
		zap.Int("batches", len(batches)),
	)

	results := make([]models.BatchResult, len(batches))
	var g errgroup.Group
	g.SetLimit(concurrency)
	for i, batch := range batches {
		i, batch := i, batch
		g.Go(func() error {
			results[i] = s.processBatch(ctx, runID, i, batch, students, capacity)
			return nil
		})
	}
	_ = g.Wait()
	return results, nil
}

func (s *AssignmentWorkflowService) processBatch(ctx context.Context, runID string, index int, courses []models.Course, students []models.Student, capacity int) (batch models.BatchResult) {
	batch = models.BatchResult{Index: index, Courses: courseCodes(courses)}
	log := s.logger.With(zap.String("run_id", runID), zap.Int("batch", index+1))

	defer func() {
		if r := recover(); r != nil {
			log.Error("batch panicked", zap.Any("panic", r))
			batch.Result = errorResult(fmt.Sprintf("%s%v", internalErrorPrefix, r))
		}
		s.metrics.RecordBatch(string(batch.Result.Status))
	}()

	table, err := s.scores.ComputeScores(ctx, students, courses)
	if err != nil {
		log.Error("score computation failed", zap.Error(err))
		batch.Result = errorResult(internalErrorPrefix + err.Error())
		return batch
	}

	req := BuildBatchRequest(students, courses, table, capacity)
	result := s.matcher.Solve(ctx, req)
	if result.RunID == "" {
		result.RunID = fmt.Sprintf("%s-%d", runID, index)
	}
	batch.Result = result

	if !result.Succeeded() {
		log.Warn("batch failed", zap.String("message", result.Message))
		return batch
	}

	source := models.EnrollmentSourceStableMatch
	if result.Fallback {
		source = models.EnrollmentSourceFallback
	}
	for _, assignment := range result.Assignments {
		created, err := s.persistAssignment(ctx, runID, assignment, capacity, source)
		if err != nil {
			log.Error("failed to persist assignment",
				zap.String("student", assignment.StudentID),
				zap.String("course", assignment.CourseID),
				zap.Error(err),
			)
			continue
		}
		if created {
			batch.EnrollmentsCreated++
		}
	}
	log.Info("batch completed",
		zap.Int("assignments", len(result.Assignments)),
		zap.Int("enrollments_created", batch.EnrollmentsCreated),
		zap.Bool("fallback", result.Fallback),
	)
	return batch
}

// persistAssignment writes one enrollment inside its own transaction. The
// course lock serialises the capacity check against concurrent writers.
func (s *AssignmentWorkflowService) persistAssignment(ctx context.Context, runID string, assignment models.Assignment, capacity int, source models.EnrollmentSource) (created bool, err error) {
	tx, err := s.enrollments.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin enrollment tx: %w", err)
	}
	defer func() {
		if err != nil || !created {
			_ = tx.Rollback()
		}
	}()

	if err = s.enrollments.LockCourse(ctx, tx, assignment.CourseID); err != nil {
		return false, err
	}
	exists, err := s.enrollments.Exists(ctx, tx, assignment.StudentID, assignment.CourseID)
	if err != nil {
		return false, err
	}
	if exists {
		s.logger.Debug("enrollment already exists", zap.String("student", assignment.StudentID), zap.String("course", assignment.CourseID))
		return false, nil
	}
	count, err := s.enrollments.CountByCourse(ctx, tx, assignment.CourseID)
	if err != nil {
		return false, err
	}
	if count >= capacity {
		s.logger.Warn("course at capacity, enrollment skipped",
			zap.String("student", assignment.StudentID),
			zap.String("course", assignment.CourseID),
			zap.Int("enrolled", count),
		)
		return false, nil
	}

	enrollment := &models.Enrollment{
		StudentCode: assignment.StudentID,
		CourseCode:  assignment.CourseID,
		Source:      source,
		RunID:       runID,
	}
	if assignment.StudentPreferenceRank > 0 {
		rank := assignment.StudentPreferenceRank
		enrollment.Ranking = &rank
	}
	if err = s.enrollments.Create(ctx, tx, enrollment); err != nil {
		return false, err
	}
	if err = tx.Commit(); err != nil {
		return false, fmt.Errorf("commit enrollment: %w", err)
	}
	return true, nil
}

// PartitionCourses splits courses into consecutive batches of size batchSize.
func PartitionCourses(courses []models.Course, batchSize int) [][]models.Course {
	if batchSize <= 0 {
		return nil
	}
	batches := make([][]models.Course, 0, (len(courses)+batchSize-1)/batchSize)
	for i := 0; i < len(courses); i += batchSize {
		end := i + batchSize
		if end > len(courses) {
			end = len(courses)
		}
		batches = append(batches, courses[i:end])
	}
	return batches
}

// BuildBatchRequest prepares a match request for one batch. Every student
// prefers the batch courses in code order; courses rank students by score.
func BuildBatchRequest(students []models.Student, courses []models.Course, table models.ScoreTable, capacity int) models.MatchRequest {
	codes := courseCodes(courses)
	sort.Strings(codes)

	studentPrefs := make([]models.StudentPreference, 0, len(students))
	for _, st := range students {
		prefs := make([]string, len(codes))
		copy(prefs, codes)
		studentPrefs = append(studentPrefs, models.StudentPreference{StudentID: st.Code, Preferences: prefs})
	}

	coursePrefs := make([]models.CoursePreference, 0, len(courses))
	for _, course := range courses {
		coursePrefs = append(coursePrefs, models.CoursePreference{
			CourseID:    course.Code,
			Preferences: RankStudents(students, course.Code, table),
		})
	}

	return models.MatchRequest{Students: studentPrefs, Courses: coursePrefs, CapacityPerCourse: capacity}
}

func courseCodes(courses []models.Course) []string {
	codes := make([]string, len(courses))
	for i, c := range courses {
		codes[i] = c.Code
	}
	return codes
}
