package models

import "time"

// EnrollmentSource records which matcher produced an enrollment.
type EnrollmentSource string

const (
	EnrollmentSourceStableMatch EnrollmentSource = "STABLE_MATCH"
	EnrollmentSourceFallback    EnrollmentSource = "RANDOM_FALLBACK"
)

// Enrollment binds a student to an optional course.
type Enrollment struct {
	ID          string           `db:"id" json:"id"`
	StudentCode string           `db:"student_code" json:"student_code"`
	CourseCode  string           `db:"course_code" json:"course_code"`
	Ranking     *int             `db:"ranking" json:"ranking,omitempty"`
	Source      EnrollmentSource `db:"source" json:"source"`
	RunID       string           `db:"run_id" json:"run_id"`
	CreatedAt   time.Time        `db:"created_at" json:"created_at"`
}
