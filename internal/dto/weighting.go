package dto

// WeightingItem is one prerequisite of an optional course.
type WeightingItem struct {
	CompulsoryCourseCode string  `json:"compulsory_course_code" validate:"required"`
	Percentage           float64 `json:"percentage" validate:"min=0,max=100"`
}

// ReplaceWeightingsRequest replaces every prerequisite weighting of an optional course.
type ReplaceWeightingsRequest struct {
	Preferences []WeightingItem `json:"preferences" validate:"required,min=1,dive"`
}
