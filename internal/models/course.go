package models

import "time"

// Course is either compulsory (graded prerequisite) or optional (assignable).
type Course struct {
	ID           string    `db:"id" json:"id"`
	Code         string    `db:"code" json:"code"`
	Title        string    `db:"title" json:"title"`
	Credits      int       `db:"credits" json:"credits"`
	Compulsory   bool      `db:"compulsory" json:"compulsory"`
	InstructorID *string   `db:"instructor_id" json:"instructor_id,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}
