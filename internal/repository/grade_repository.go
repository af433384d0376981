package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/elective-match-api/internal/models"
)

// GradeRepository stores grade events for compulsory courses.
type GradeRepository struct {
	db *sqlx.DB
}

// NewGradeRepository constructs the repository.
func NewGradeRepository(db *sqlx.DB) *GradeRepository {
	return &GradeRepository{db: db}
}

// FindMostRecent returns the latest grade of a student in a course.
// Grades received at the same instant resolve to the higher value.
// It returns sql.ErrNoRows when the student has no grade for the course.
func (r *GradeRepository) FindMostRecent(ctx context.Context, studentCode, courseCode string) (*models.Grade, error) {
	const query = `SELECT id, student_code, course_code, grade, received_at FROM grades
        WHERE student_code = $1 AND course_code = $2
        ORDER BY received_at DESC, grade DESC
        LIMIT 1`
	var grade models.Grade
	if err := r.db.GetContext(ctx, &grade, query, studentCode, courseCode); err != nil {
		return nil, err
	}
	return &grade, nil
}

// Create inserts a grade record.
func (r *GradeRepository) Create(ctx context.Context, grade *models.Grade) error {
	if grade.ID == "" {
		grade.ID = uuid.NewString()
	}
	if grade.ReceivedAt.IsZero() {
		grade.ReceivedAt = time.Now().UTC()
	}
	const query = `INSERT INTO grades (id, student_code, course_code, grade, received_at)
        VALUES (:id, :student_code, :course_code, :grade, :received_at)`
	if _, err := r.db.NamedExecContext(ctx, query, grade); err != nil {
		return fmt.Errorf("create grade: %w", err)
	}
	return nil
}
