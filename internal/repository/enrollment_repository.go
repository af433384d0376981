package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/elective-match-api/internal/models"
)

// EnrollmentRepository persists optional course enrollments.
// Methods taking an exec run against that transaction, or the pool when nil.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

func (r *EnrollmentRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// BeginTxx opens a transaction for one assignment.
func (r *EnrollmentRepository) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return r.db.BeginTxx(ctx, opts)
}

// LockCourse takes a transaction scoped advisory lock on a course so that
// concurrent writers count and insert one at a time.
func (r *EnrollmentRepository) LockCourse(ctx context.Context, exec sqlx.ExtContext, courseCode string) error {
	if _, err := r.exec(exec).ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, courseCode); err != nil {
		return fmt.Errorf("lock course %s: %w", courseCode, err)
	}
	return nil
}

// Exists reports whether the student is already enrolled in the course.
func (r *EnrollmentRepository) Exists(ctx context.Context, exec sqlx.ExtContext, studentCode, courseCode string) (bool, error) {
	const query = `SELECT 1 FROM enrollments WHERE student_code = $1 AND course_code = $2 LIMIT 1`
	var found int
	if err := sqlx.GetContext(ctx, r.exec(exec), &found, query, studentCode, courseCode); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check enrollment: %w", err)
	}
	return true, nil
}

// CountByCourse returns how many students are enrolled in a course.
func (r *EnrollmentRepository) CountByCourse(ctx context.Context, exec sqlx.ExtContext, courseCode string) (int, error) {
	const query = `SELECT COUNT(*) FROM enrollments WHERE course_code = $1`
	var total int
	if err := sqlx.GetContext(ctx, r.exec(exec), &total, query, courseCode); err != nil {
		return 0, fmt.Errorf("count course enrollments: %w", err)
	}
	return total, nil
}

// Create inserts an enrollment.
func (r *EnrollmentRepository) Create(ctx context.Context, exec sqlx.ExtContext, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	if enrollment.CreatedAt.IsZero() {
		enrollment.CreatedAt = time.Now().UTC()
	}
	if enrollment.Source == "" {
		enrollment.Source = models.EnrollmentSourceStableMatch
	}
	const query = `INSERT INTO enrollments (id, student_code, course_code, ranking, source, run_id, created_at)
        VALUES (:id, :student_code, :course_code, :ranking, :source, :run_id, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, enrollment); err != nil {
		return fmt.Errorf("create enrollment: %w", err)
	}
	return nil
}

// ListByRun returns the enrollments written by a workflow run.
func (r *EnrollmentRepository) ListByRun(ctx context.Context, runID string) ([]models.Enrollment, error) {
	const query = `SELECT id, student_code, course_code, ranking, source, run_id, created_at
        FROM enrollments WHERE run_id = $1 ORDER BY course_code ASC, student_code ASC`
	var enrollments []models.Enrollment
	if err := r.db.SelectContext(ctx, &enrollments, query, runID); err != nil {
		return nil, fmt.Errorf("list run enrollments: %w", err)
	}
	return enrollments, nil
}
