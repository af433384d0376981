package dto

// GradeEvent is a grade published by the grading system.
type GradeEvent struct {
	StudentCode string  `json:"student_code" validate:"required"`
	CourseCode  string  `json:"course_code" validate:"required"`
	Grade       float64 `json:"grade" validate:"min=1,max=10"`
}

// IngestGradesRequest carries one or more grade events.
type IngestGradesRequest struct {
	Events []GradeEvent `json:"events" validate:"required,min=1,dive"`
}

// IngestGradesResponse acknowledges queued grade events.
type IngestGradesResponse struct {
	Accepted int      `json:"accepted"`
	JobIDs   []string `json:"job_ids"`
}
