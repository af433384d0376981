package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/elective-match-api/internal/dto"
	"github.com/noah-isme/elective-match-api/internal/models"
	appErrors "github.com/noah-isme/elective-match-api/pkg/errors"
)

type weightingStore interface {
	ListByOptionalCourse(ctx context.Context, courseCode string) ([]models.CourseWeighting, error)
	ReplaceForCourse(ctx context.Context, courseCode string, weightings []models.CourseWeighting) error
}

type courseLookup interface {
	FindByCode(ctx context.Context, code string) (*models.Course, error)
}

// WeightingService manages instructor-declared prerequisite weightings.
type WeightingService struct {
	weightings weightingStore
	courses    courseLookup
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewWeightingService constructs the service.
func NewWeightingService(weightings weightingStore, courses courseLookup, validate *validator.Validate, logger *zap.Logger) *WeightingService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WeightingService{weightings: weightings, courses: courses, validator: validate, logger: logger}
}

// List returns the weightings of an optional course.
func (s *WeightingService) List(ctx context.Context, courseCode string) ([]models.CourseWeighting, error) {
	if _, err := s.optionalCourse(ctx, courseCode); err != nil {
		return nil, err
	}
	weightings, err := s.weightings.ListByOptionalCourse(ctx, courseCode)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list weightings")
	}
	if weightings == nil {
		weightings = []models.CourseWeighting{}
	}
	return weightings, nil
}

// Replace validates and stores a new weighting set for an optional course.
func (s *WeightingService) Replace(ctx context.Context, courseCode string, req dto.ReplaceWeightingsRequest) ([]models.CourseWeighting, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid weighting payload")
	}
	if _, err := s.optionalCourse(ctx, courseCode); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(req.Preferences))
	weightings := make([]models.CourseWeighting, 0, len(req.Preferences))
	for _, item := range req.Preferences {
		code := strings.TrimSpace(item.CompulsoryCourseCode)
		if _, dup := seen[code]; dup {
			return nil, appErrors.Clone(appErrors.ErrInvalidWeights, fmt.Sprintf("prerequisite %s listed more than once", code))
		}
		seen[code] = struct{}{}

		prereq, err := s.courses.FindByCode(ctx, code)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrInvalidWeights, fmt.Sprintf("prerequisite %s does not exist", code))
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load prerequisite")
		}
		if !prereq.Compulsory {
			return nil, appErrors.Clone(appErrors.ErrInvalidWeights, fmt.Sprintf("prerequisite %s is not a compulsory course", code))
		}
		weightings = append(weightings, models.CourseWeighting{
			OptionalCourseCode:   courseCode,
			CompulsoryCourseCode: code,
			Percentage:           item.Percentage,
		})
	}

	if err := s.weightings.ReplaceForCourse(ctx, courseCode, weightings); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store weightings")
	}
	s.logger.Info("course weightings replaced", zap.String("course", courseCode), zap.Int("count", len(weightings)))
	return weightings, nil
}

func (s *WeightingService) optionalCourse(ctx context.Context, code string) (*models.Course, error) {
	course, err := s.courses.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if course.Compulsory {
		return nil, appErrors.Clone(appErrors.ErrInvalidWeights, fmt.Sprintf("course %s is compulsory; only optional courses carry weightings", code))
	}
	return course, nil
}
