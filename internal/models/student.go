package models

import "time"

// Student is a learner eligible for optional course assignment.
type Student struct {
	ID        string    `db:"id" json:"id"`
	Code      string    `db:"code" json:"code"`
	FullName  string    `db:"full_name" json:"full_name"`
	Year      int       `db:"year" json:"year"`
	Group     string    `db:"group_name" json:"group"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
