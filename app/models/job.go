package models

import "time"

// Job states.
const (
	JobQueued     = "queued"
	JobProcessing = "processing"
	JobCompleted  = "completed"
	JobFailed     = "failed"
)

// JobStatus tracks an asynchronous dataset check.
type JobStatus struct {
	JobID              string    `json:"job_id"`
	Status             string    `json:"status"`
	Progress           float64   `json:"progress"`
	Processed          int       `json:"processed"`
	Total              int       `json:"total"`
	EstimatedRemaining int       `json:"estimated_remaining_seconds"`
	Message            string    `json:"message,omitempty"`
	ReportKey          string    `json:"report_key,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}
