package models

import "time"

// WorkflowStatus is the overall outcome of an assignment workflow run.
type WorkflowStatus string

const (
	WorkflowStatusCompleted WorkflowStatus = "COMPLETED"
	WorkflowStatusFailed    WorkflowStatus = "FAILED"
)

// BatchResult pairs a batch with the courses it covered and the matching outcome.
type BatchResult struct {
	Index              int         `json:"index"`
	Courses            []string    `json:"courses"`
	Result             MatchResult `json:"result"`
	EnrollmentsCreated int         `json:"enrollments_created"`
}

// WorkflowSummary aggregates the batches of a workflow run.
type WorkflowSummary struct {
	RunID              string              `json:"run_id"`
	Status             WorkflowStatus      `json:"status"`
	Message            string              `json:"message"`
	BatchSize          int                 `json:"batch_size"`
	TotalBatches       int                 `json:"total_batches"`
	SuccessfulBatches  int                 `json:"successful_batches"`
	FailedBatches      int                 `json:"failed_batches"`
	FallbackBatches    int                 `json:"fallback_batches"`
	EnrollmentsCreated int                 `json:"enrollments_created"`
	ExecutionTimeMs    int64               `json:"execution_time_ms"`
	Results            map[int]MatchResult `json:"results"`
	StartedAt          time.Time           `json:"started_at"`
}

// Assignments flattens every successful batch into one list ordered by batch.
func (s WorkflowSummary) Assignments() []Assignment {
	out := make([]Assignment, 0)
	for i := 0; i < s.TotalBatches; i++ {
		result, ok := s.Results[i]
		if !ok || !result.Succeeded() {
			continue
		}
		out = append(out, result.Assignments...)
	}
	return out
}
