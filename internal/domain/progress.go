package domain

import "time"

// ProgressState is the lifecycle of an asynchronous batch run.
type ProgressState string

const (
	ProgressQueued    ProgressState = "queued"
	ProgressRunning   ProgressState = "running"
	ProgressCompleted ProgressState = "completed"
	ProgressFailed    ProgressState = "failed"
)

// BatchProgress is the last reported position of a batch run.
type BatchProgress struct {
	BatchID   string        `json:"batchId"`
	State     ProgressState `json:"state"`
	Current   int           `json:"current"`
	Total     int           `json:"total"`
	Summary   *Summary      `json:"summary,omitempty"`
	Error     string        `json:"error,omitempty"`
	UpdatedAt time.Time     `json:"updatedAt"`
}
