package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/elective-match-api/internal/dto"
	"github.com/noah-isme/elective-match-api/internal/models"
	appErrors "github.com/noah-isme/elective-match-api/pkg/errors"
	"github.com/noah-isme/elective-match-api/pkg/jobs"
)

// Grade event outcomes.
const (
	GradeOutcomeStored     = "stored"
	GradeOutcomeIgnored    = "ignored"
	GradeOutcomeInvalid    = "invalid"
	GradeOutcomeDeadLetter = "dead_letter"
)

type gradeWriter interface {
	Create(ctx context.Context, grade *models.Grade) error
}

// GradeIngestionService accepts grade events and stores them asynchronously.
type GradeIngestionService struct {
	queue     *jobs.Queue[dto.GradeEvent]
	grades    gradeWriter
	courses   courseLookup
	validator *validator.Validate
	metrics   *MetricsService
	logger    *zap.Logger
	now       func() time.Time
}

// NewGradeIngestionService builds the service and its worker queue. Call Start before Submit.
func NewGradeIngestionService(grades gradeWriter, courses courseLookup, validate *validator.Validate, metrics *MetricsService, logger *zap.Logger, cfg jobs.QueueConfig) *GradeIngestionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &GradeIngestionService{
		grades:    grades,
		courses:   courses,
		validator: validate,
		metrics:   metrics,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
	cfg.Logger = logger
	s.queue = jobs.NewQueue[dto.GradeEvent]("grade-ingestion", s.process, cfg)
	s.queue.OnDeadLetter(s.deadLetter)
	return s
}

// Start launches the ingestion workers.
func (s *GradeIngestionService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop halts the workers.
func (s *GradeIngestionService) Stop() {
	s.queue.Stop()
}

// Drain waits for every accepted event to be processed.
func (s *GradeIngestionService) Drain(ctx context.Context) error {
	return s.queue.Drain(ctx)
}

// Submit enqueues grade events for processing.
func (s *GradeIngestionService) Submit(ctx context.Context, req dto.IngestGradesRequest) (*dto.IngestGradesResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grade events")
	}
	resp := &dto.IngestGradesResponse{JobIDs: make([]string, 0, len(req.Events))}
	for _, event := range req.Events {
		if err := ctx.Err(); err != nil {
			return resp, err
		}
		id := uuid.NewString()
		if err := s.queue.Enqueue(jobs.Job[dto.GradeEvent]{ID: id, Payload: event}); err != nil {
			return resp, appErrors.Wrap(err, appErrors.ErrQueueUnavailable.Code, appErrors.ErrQueueUnavailable.Status, appErrors.ErrQueueUnavailable.Message)
		}
		resp.JobIDs = append(resp.JobIDs, id)
		resp.Accepted++
	}
	return resp, nil
}

func (s *GradeIngestionService) process(ctx context.Context, job jobs.Job[dto.GradeEvent]) error {
	event := job.Payload
	event.StudentCode = strings.TrimSpace(event.StudentCode)
	event.CourseCode = strings.TrimSpace(event.CourseCode)
	if err := s.validator.Struct(event); err != nil {
		s.metrics.RecordGradeEvent(GradeOutcomeInvalid)
		return jobs.Permanent(fmt.Errorf("invalid grade event: %w", err))
	}

	course, err := s.courses.FindByCode(ctx, event.CourseCode)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.ignore(job, "unknown course")
			return nil
		}
		return fmt.Errorf("load course %s: %w", event.CourseCode, err)
	}
	if !course.Compulsory {
		s.ignore(job, "course is not compulsory")
		return nil
	}

	grade := &models.Grade{
		StudentCode: event.StudentCode,
		CourseCode:  event.CourseCode,
		Grade:       event.Grade,
		ReceivedAt:  s.now(),
	}
	if err := s.grades.Create(ctx, grade); err != nil {
		return err
	}
	s.metrics.RecordGradeEvent(GradeOutcomeStored)
	s.logger.Debug("grade stored", zap.String("job_id", job.ID), zap.String("student", grade.StudentCode), zap.String("course", grade.CourseCode))
	return nil
}

func (s *GradeIngestionService) ignore(job jobs.Job[dto.GradeEvent], reason string) {
	s.metrics.RecordGradeEvent(GradeOutcomeIgnored)
	s.logger.Info("grade event ignored",
		zap.String("job_id", job.ID),
		zap.String("course", job.Payload.CourseCode),
		zap.String("reason", reason),
	)
}

func (s *GradeIngestionService) deadLetter(job jobs.Job[dto.GradeEvent], err error) {
	s.metrics.RecordGradeEvent(GradeOutcomeDeadLetter)
	s.logger.Error("grade event dead-lettered",
		zap.String("job_id", job.ID),
		zap.String("student", job.Payload.StudentCode),
		zap.String("course", job.Payload.CourseCode),
		zap.Float64("grade", job.Payload.Grade),
		zap.Int("attempts", job.Attempt),
		zap.Error(err),
	)
}
