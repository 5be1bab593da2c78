package jobqueue

import (
	"encoding/json"
	"time"

	"github.com/tradorr/tradorr-api/internal/pkg/billing"
)

// JobType defines the type of job
type JobType string

const (
	JobTypeReconcileSubscription JobType = "reconcile_subscription"
	JobTypeArchiveWebhook        JobType = "archive_webhook"
)

// JobStatus defines the status of a job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusRetrying   JobStatus = "retrying"
)

// Job represents a background job
type Job struct {
	ID          string                 `json:"id"`
	Type        JobType                `json:"type"`
	Status      JobStatus              `json:"status"`
	Payload     map[string]interface{} `json:"payload"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
	ProcessedAt *time.Time             `json:"processed_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	ErrorMsg    string                 `json:"error_msg,omitempty"`
	RetryCount  int                    `json:"retry_count"`
	MaxRetries  int                    `json:"max_retries"`
}

// ReconcileJobPayload re-applies a completed transaction to its user.
type ReconcileJobPayload struct {
	TransactionID string `json:"transaction_id"`
	UserID        string `json:"user_id"`
}

func (p ReconcileJobPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"transaction_id": p.TransactionID,
		"user_id":        p.UserID,
	}
}

func ReconcileJobPayloadFromMap(data map[string]interface{}) (*ReconcileJobPayload, error) {
	var payload ReconcileJobPayload
	err := decodePayload(data, &payload)
	return &payload, err
}

// ArchiveJobPayload carries a raw webhook body to object storage.
type ArchiveJobPayload struct {
	Provider   string    `json:"provider"`
	EventID    string    `json:"event_id"`
	Payload    string    `json:"payload"`
	ReceivedAt time.Time `json:"received_at"`
}

func (p ArchiveJobPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"provider":    p.Provider,
		"event_id":    p.EventID,
		"payload":     p.Payload,
		"received_at": p.ReceivedAt.UTC().Format(time.RFC3339Nano),
	}
}

func ArchiveJobPayloadFromMap(data map[string]interface{}) (*ArchiveJobPayload, error) {
	var payload ArchiveJobPayload
	err := decodePayload(data, &payload)
	return &payload, err
}

// ArchiveRequest converts the payload back into the billing request type.
func (p ArchiveJobPayload) ArchiveRequest() billing.ArchiveRequest {
	return billing.ArchiveRequest{
		Provider:   p.Provider,
		EventID:    p.EventID,
		Payload:    p.Payload,
		ReceivedAt: p.ReceivedAt,
	}
}

func decodePayload(data map[string]interface{}, out interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return json.Unmarshal(jsonData, out)
}

// IsRetryable checks if the job can be retried
func (j *Job) IsRetryable() bool {
	return j.Status == JobStatusFailed && j.RetryCount < j.MaxRetries
}

// MarkAsProcessing updates the job status to processing
func (j *Job) MarkAsProcessing() {
	now := time.Now()
	j.Status = JobStatusProcessing
	j.UpdatedAt = now
	j.ProcessedAt = &now
}

// MarkAsCompleted updates the job status to completed
func (j *Job) MarkAsCompleted() {
	now := time.Now()
	j.Status = JobStatusCompleted
	j.UpdatedAt = now
	j.CompletedAt = &now
	j.ErrorMsg = ""
}

// MarkAsFailed updates the job status to failed
func (j *Job) MarkAsFailed(errorMsg string) {
	j.Status = JobStatusFailed
	j.UpdatedAt = time.Now()
	j.ErrorMsg = errorMsg
	j.RetryCount++
}

// MarkAsRetrying updates the job status to retrying
func (j *Job) MarkAsRetrying() {
	j.Status = JobStatusRetrying
	j.UpdatedAt = time.Now()
}
