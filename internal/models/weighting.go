package models

import "time"

// CourseWeighting declares how much a compulsory course grade counts toward
// ranking students for an optional course.
type CourseWeighting struct {
	ID                   string    `db:"id" json:"id"`
	OptionalCourseCode   string    `db:"optional_course_code" json:"optional_course_code"`
	CompulsoryCourseCode string    `db:"compulsory_course_code" json:"compulsory_course_code"`
	Percentage           float64   `db:"percentage" json:"percentage"`
	CreatedAt            time.Time `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time `db:"updated_at" json:"updated_at"`
}
