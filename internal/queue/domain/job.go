package domain

import "time"

// Job status constants. These are the text values stored in jobs.status;
// centralizing them here avoids scattering string literals across packages.
const (
	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
	JobStatusCanceled   = "canceled"
)

// Job represents one unit of asynchronous work with a durable lifecycle
// state. The jobs table is the single source of truth: workers and the
// reaper coordinate exclusively through atomic updates against it.
type Job struct {
	JobID          string     `db:"job_id"`
	IdempotencyKey *string    `db:"idempotency_key"`
	JobType        string     `db:"job_type"`
	Payload        string     `db:"payload"` // JSON, opaque to the queue core
	Status         string     `db:"status"`
	Attempts       int        `db:"attempts"`
	MaxAttempts    int        `db:"max_attempts"`
	StartedAt      *time.Time `db:"started_at"`
	LockedBy       *string    `db:"locked_by"`
	LastError      *string    `db:"last_error"`
	CreatedAt      time.Time  `db:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at"`
}

// Terminal reports whether the job can never transition again. A failed job
// is terminal only once its attempt ceiling is exhausted; failures with
// attempts remaining are recycled to pending by Fail/ResetStuck and never
// observed in the failed status.
func (j *Job) Terminal() bool {
	switch j.Status {
	case JobStatusCompleted, JobStatusCanceled:
		return true
	case JobStatusFailed:
		return j.Attempts >= j.MaxAttempts
	}
	return false
}

// WorkerHeartbeat is the liveness record for one worker process. It is
// refreshed on a fixed interval independent of job execution, so a worker
// blocked on a single long job still counts as alive.
type WorkerHeartbeat struct {
	WorkerID      string    `db:"worker_id"`
	Hostname      string    `db:"hostname"`
	StartedAt     time.Time `db:"started_at"`
	LastHeartbeat time.Time `db:"last_heartbeat"`
}

// Reaper run status constants stored in reaper_runs.status.
const (
	ReaperRunSucceeded = "succeeded"
	ReaperRunFailed    = "failed"
)

// ReaperRun is the audit record of one reaper sweep. Rows are append-only
// and used for observability only.
type ReaperRun struct {
	ID            int64      `db:"id"`
	Status        string     `db:"status"`
	Trigger       string     `db:"triggered_by"` // "scheduled" or "manual"
	StartTime     time.Time  `db:"start_time"`
	EndTime       *time.Time `db:"end_time"`
	ReturnMessage string     `db:"return_message"`
	JobsReset     int64      `db:"jobs_reset"`
}
