package dto

import (
	"encoding/json"
	"time"

	"github.com/judgmentops/queue-be/internal/queue/domain"
)

type CreateJobRequest struct {
	JobType        string          `json:"job_type" binding:"required"`
	Payload        json.RawMessage `json:"payload"`
	MaxAttempts    int             `json:"max_attempts"`
	IdempotencyKey string          `json:"idempotency_key"`
}

type ListJobsRequest struct {
	JobType  string `form:"job_type"`
	Status   string `form:"status"`
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

type ListJobsResponse struct {
	Jobs       []JobDTO `json:"jobs"`
	NextCursor string   `json:"next_cursor,omitempty"`
}

type JobDTO struct {
	JobID          string          `json:"job_id"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
	JobType        string          `json:"job_type"`
	Payload        json.RawMessage `json:"payload"`
	Status         string          `json:"status"`
	Attempts       int             `json:"attempts"`
	MaxAttempts    int             `json:"max_attempts"`
	StartedAt      *time.Time      `json:"started_at,omitempty"`
	LockedBy       string          `json:"locked_by,omitempty"`
	LastError      string          `json:"last_error,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// FromJob maps a domain job onto the API shape.
func FromJob(job *domain.Job) JobDTO {
	out := JobDTO{
		JobID:       job.JobID,
		JobType:     job.JobType,
		Payload:     json.RawMessage(job.Payload),
		Status:      job.Status,
		Attempts:    job.Attempts,
		MaxAttempts: job.MaxAttempts,
		StartedAt:   job.StartedAt,
		CreatedAt:   job.CreatedAt,
		UpdatedAt:   job.UpdatedAt,
	}
	if job.IdempotencyKey != nil {
		out.IdempotencyKey = *job.IdempotencyKey
	}
	if job.LockedBy != nil {
		out.LockedBy = *job.LockedBy
	}
	if job.LastError != nil {
		out.LastError = *job.LastError
	}
	return out
}

type ManualResetRequest struct {
	// TimeoutMinutes overrides the configured manual reset timeout. Zero
	// means use the configured default.
	TimeoutMinutes int `json:"timeout_minutes"`
}

type ManualResetResponse struct {
	Skipped        bool  `json:"skipped"`
	JobsReset      int64 `json:"jobs_reset"`
	TimeoutMinutes int   `json:"timeout_minutes"`
}
