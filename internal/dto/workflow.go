package dto

import "time"

// ExecuteWorkflowRequest triggers an assignment workflow run.
// BatchSize is checked by the workflow itself so that a bad value still yields a summary.
type ExecuteWorkflowRequest struct {
	BatchSize         int `json:"batch_size" form:"batchSize"`
	CapacityPerCourse int `json:"capacity_per_course" form:"capacityPerCourse" validate:"omitempty,min=1"`
	Concurrency       int `json:"concurrency" form:"concurrency" validate:"omitempty,min=1,max=16"`
}

// ExportRunRequest selects the export format for a workflow run.
type ExportRunRequest struct {
	Format   string `form:"format" validate:"omitempty,oneof=csv pdf"`
	Delivery string `form:"delivery" validate:"omitempty,oneof=attachment link"`
}

// ExportLink points at a stored export that can be fetched without a bearer token.
type ExportLink struct {
	RunID     string    `json:"run_id"`
	Filename  string    `json:"filename"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}
