package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/elective-match-api/internal/models"
)

// WeightingRepository persists prerequisite weightings of optional courses.
type WeightingRepository struct {
	db *sqlx.DB
}

// NewWeightingRepository constructs the repository.
func NewWeightingRepository(db *sqlx.DB) *WeightingRepository {
	return &WeightingRepository{db: db}
}

// ListByOptionalCourse returns the weightings declared for an optional course.
func (r *WeightingRepository) ListByOptionalCourse(ctx context.Context, courseCode string) ([]models.CourseWeighting, error) {
	const query = `SELECT id, optional_course_code, compulsory_course_code, percentage, created_at, updated_at
        FROM course_weightings WHERE optional_course_code = $1 ORDER BY compulsory_course_code ASC`
	var weightings []models.CourseWeighting
	if err := r.db.SelectContext(ctx, &weightings, query, courseCode); err != nil {
		return nil, fmt.Errorf("list course weightings: %w", err)
	}
	return weightings, nil
}

// ReplaceForCourse swaps the weighting set of an optional course atomically.
func (r *WeightingRepository) ReplaceForCourse(ctx context.Context, courseCode string, weightings []models.CourseWeighting) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin weighting tx: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM course_weightings WHERE optional_course_code = $1`, courseCode); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("clear course weightings: %w", err)
	}

	const query = `INSERT INTO course_weightings (id, optional_course_code, compulsory_course_code, percentage, created_at, updated_at)
        VALUES (:id, :optional_course_code, :compulsory_course_code, :percentage, :created_at, :updated_at)`
	now := time.Now().UTC()
	for i := range weightings {
		if weightings[i].ID == "" {
			weightings[i].ID = uuid.NewString()
		}
		weightings[i].OptionalCourseCode = courseCode
		weightings[i].CreatedAt = now
		weightings[i].UpdatedAt = now
		if _, err := tx.NamedExecContext(ctx, query, weightings[i]); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert course weighting: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit weighting tx: %w", err)
	}
	return nil
}
