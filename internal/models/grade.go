package models

import "time"

// Grade is a single recorded grade of a student in a compulsory course.
type Grade struct {
	ID          string    `db:"id" json:"id"`
	StudentCode string    `db:"student_code" json:"student_code"`
	CourseCode  string    `db:"course_code" json:"course_code"`
	Grade       float64   `db:"grade" json:"grade"`
	ReceivedAt  time.Time `db:"received_at" json:"received_at"`
}

// Grade bounds accepted by ingestion.
const (
	MinGrade = 1.0
	MaxGrade = 10.0
)

// LatestGrade picks the most recent grade. Equal timestamps prefer the higher grade.
func LatestGrade(grades []Grade) (Grade, bool) {
	if len(grades) == 0 {
		return Grade{}, false
	}
	best := grades[0]
	for _, g := range grades[1:] {
		switch {
		case g.ReceivedAt.After(best.ReceivedAt):
			best = g
		case g.ReceivedAt.Equal(best.ReceivedAt) && g.Grade > best.Grade:
			best = g
		}
	}
	return best, true
}

// ScorePoints converts a grade to the 0..100 scale used by preference scores.
func ScorePoints(grade float64) float64 {
	points := grade * 10
	switch {
	case points < 0:
		return 0
	case points > 100:
		return 100
	}
	return points
}
