package models

// MatchStatus reports whether a matching run produced a usable result.
type MatchStatus string

const (
	MatchStatusSuccess MatchStatus = "SUCCESS"
	MatchStatusError   MatchStatus = "ERROR"
)

// UnrankedPreference marks ranks that were not derived from preference lists.
const UnrankedPreference = -1

// StudentPreference lists the courses a student would accept, most preferred first.
type StudentPreference struct {
	StudentID   string   `json:"student_id" yaml:"student_id"`
	Preferences []string `json:"preferences" yaml:"preferences"`
}

// CoursePreference ranks the students a course would accept, best first.
// A positive Capacity overrides the request wide capacity for this course.
type CoursePreference struct {
	CourseID    string   `json:"course_id" yaml:"course_id"`
	Preferences []string `json:"preferences" yaml:"preferences"`
	Capacity    int      `json:"capacity,omitempty" yaml:"capacity,omitempty"`
}

// MatchRequest is the payload accepted by the matching engine.
type MatchRequest struct {
	Students          []StudentPreference `json:"students" yaml:"students"`
	Courses           []CoursePreference  `json:"courses" yaml:"courses"`
	CapacityPerCourse int                 `json:"capacity_per_course,omitempty" yaml:"capacity_per_course,omitempty"`
}

// CapacityFor resolves the seat limit for a course.
func (r MatchRequest) CapacityFor(course CoursePreference) int {
	if course.Capacity > 0 {
		return course.Capacity
	}
	if r.CapacityPerCourse > 0 {
		return r.CapacityPerCourse
	}
	return 1
}

// Assignment places one student into one course.
type Assignment struct {
	StudentID             string `json:"student_id"`
	CourseID              string `json:"course_id"`
	StudentPreferenceRank int    `json:"student_preference_rank"`
	CoursePreferenceRank  int    `json:"course_preference_rank"`
}

// MatchResult is the outcome of a single matching run.
type MatchResult struct {
	RunID             string       `json:"run_id,omitempty"`
	Status            MatchStatus  `json:"status"`
	Message           string       `json:"message"`
	Assignments       []Assignment `json:"assignments"`
	UnmatchedStudents []string     `json:"unmatched_students"`
	FullCourses       []string     `json:"full_courses"`
	ExecutionTimeMs   int64        `json:"execution_time_ms"`
	Fallback          bool         `json:"fallback,omitempty"`
}

// Succeeded reports whether the result can be persisted.
func (r MatchResult) Succeeded() bool {
	return r.Status == MatchStatusSuccess
}

// AssignmentFor returns the assignment of a student, if any.
func (r MatchResult) AssignmentFor(studentID string) (Assignment, bool) {
	for _, a := range r.Assignments {
		if a.StudentID == studentID {
			return a, true
		}
	}
	return Assignment{}, false
}

// AssignmentsForCourse returns the assignments placed into a course.
func (r MatchResult) AssignmentsForCourse(courseID string) []Assignment {
	out := make([]Assignment, 0)
	for _, a := range r.Assignments {
		if a.CourseID == courseID {
			out = append(out, a)
		}
	}
	return out
}

// MatchSummary condenses a result into counters.
type MatchSummary struct {
	RunID             string      `json:"run_id"`
	Status            MatchStatus `json:"status"`
	Message           string      `json:"message"`
	TotalAssignments  int         `json:"total_assignments"`
	UnmatchedStudents int         `json:"unmatched_students"`
	FullCourses       int         `json:"full_courses"`
	ExecutionTimeMs   int64       `json:"execution_time_ms"`
}

// Summary builds the counters for a result.
func (r MatchResult) Summary() MatchSummary {
	return MatchSummary{
		RunID:             r.RunID,
		Status:            r.Status,
		Message:           r.Message,
		TotalAssignments:  len(r.Assignments),
		UnmatchedStudents: len(r.UnmatchedStudents),
		FullCourses:       len(r.FullCourses),
		ExecutionTimeMs:   r.ExecutionTimeMs,
	}
}

// NeutralScore is used when no grade signal exists for a student and course.
const NeutralScore = 50.0

// ScoreTable maps student code to course code to score on a 0..100 scale.
type ScoreTable map[string]map[string]float64

// Score returns the score for a pair or the neutral value.
func (t ScoreTable) Score(studentCode, courseCode string) float64 {
	if byCourse, ok := t[studentCode]; ok {
		if score, ok := byCourse[courseCode]; ok {
			return score
		}
	}
	return NeutralScore
}

// Set records a score.
func (t ScoreTable) Set(studentCode, courseCode string, score float64) {
	byCourse, ok := t[studentCode]
	if !ok {
		byCourse = make(map[string]float64)
		t[studentCode] = byCourse
	}
	byCourse[courseCode] = score
}
