package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the status of a batch job
type JobStatus string

const (
	JobStatusPending   JobStatus = "PENDING"
	JobStatusRunning   JobStatus = "RUNNING"
	JobStatusCompleted JobStatus = "COMPLETED"
	JobStatusFailed    JobStatus = "FAILED"
	JobStatusCancelled JobStatus = "CANCELLED"
)

// JobType represents the type of batch job
type JobType string

const (
	JobTypeBatchExecute JobType = "BATCH_EXECUTE"
)

// BatchJob is a background run of one calculator over many input sets.
type BatchJob struct {
	ID               uuid.UUID        `json:"id"`
	JobType          JobType          `json:"job_type"`
	Status           JobStatus        `json:"status"`
	CalculatorID     uuid.UUID        `json:"calculator_id"`
	CallerID         string           `json:"caller_id"`
	Inputs           []map[string]any `json:"inputs,omitempty"`
	TotalRecords     int64            `json:"total_records"`
	ProcessedRecords int64            `json:"processed_records"`
	FailedRecords    int64            `json:"failed_records"`
	ErrorMessage     string           `json:"error_message,omitempty"`
	StartedAt        *time.Time       `json:"started_at,omitempty"`
	FinishedAt       *time.Time       `json:"finished_at,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
}

// InputsJSON returns inputs as JSON bytes
func (b *BatchJob) InputsJSON() ([]byte, error) {
	return json.Marshal(b.Inputs)
}

// Progress returns the progress percentage
func (b *BatchJob) Progress() float64 {
	if b.TotalRecords == 0 {
		return 0
	}
	return float64(b.ProcessedRecords) / float64(b.TotalRecords) * 100
}

// CalculatorRun is the persisted result of one input set within a batch job.
type CalculatorRun struct {
	ID           uuid.UUID             `json:"id"`
	JobID        uuid.UUID             `json:"job_id"`
	CalculatorID uuid.UUID             `json:"calculator_id"`
	RowIndex     int                   `json:"row_index"`
	InputValues  map[string]any        `json:"input_values"`
	Results      map[string]ItemResult `json:"results"`
	ErrorCount   int                   `json:"error_count"`
	DurationMs   float64               `json:"duration_ms"`
	CreatedAt    time.Time             `json:"created_at"`
}

// InputValuesJSON returns input_values as JSON bytes
func (r *CalculatorRun) InputValuesJSON() ([]byte, error) {
	return json.Marshal(r.InputValues)
}

// ResultsJSON returns results as JSON bytes
func (r *CalculatorRun) ResultsJSON() ([]byte, error) {
	return json.Marshal(r.Results)
}
