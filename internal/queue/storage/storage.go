package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/judgmentops/queue-be/internal/queue/domain"
	"github.com/judgmentops/queue-be/shared/postgresql"
)

// jobColumns is the column list shared by every query that returns full rows.
const jobColumns = `job_id, idempotency_key, job_type, payload, status, attempts,
		max_attempts, started_at, locked_by, last_error, created_at, updated_at`

// Storage handles all database operations for the job queue. Every mutation
// is expressed as a single atomic conditional update so that the database's
// row-level isolation is the only coordination mechanism between workers and
// the reaper; there is never a read-then-write pair from the caller's side.
type Storage struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStorage creates a new Storage instance
func NewStorage(pg *postgresql.Client, logger *slog.Logger) *Storage {
	return &Storage{
		db:     pg.GetDB(),
		logger: logger,
	}
}

// EnqueueParams holds the producer-supplied fields for a new job.
type EnqueueParams struct {
	JobType        string
	Payload        string
	MaxAttempts    int
	IdempotencyKey string
}

// Enqueue inserts a new pending job. When an idempotency key is supplied and
// a job with that key already exists, the existing job is returned instead of
// creating a duplicate.
func (s *Storage) Enqueue(ctx context.Context, params EnqueueParams) (*domain.Job, error) {
	if params.MaxAttempts <= 0 {
		params.MaxAttempts = 3
	}
	if params.Payload == "" {
		params.Payload = "{}"
	}
	if !json.Valid([]byte(params.Payload)) {
		return nil, fmt.Errorf("%w: payload is not valid JSON", domain.ErrInvalidPayload)
	}

	var key *string
	if params.IdempotencyKey != "" {
		key = &params.IdempotencyKey
	}

	query := `
		INSERT INTO jobs (
			job_id, idempotency_key, job_type, payload,
			status, attempts, max_attempts, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4,
			$5, 0, $6, now(), now()
		)
		ON CONFLICT (idempotency_key) WHERE idempotency_key IS NOT NULL DO NOTHING
		RETURNING ` + jobColumns

	var job domain.Job
	err := s.db.GetContext(ctx, &job, query,
		uuid.New().String(),
		key,
		params.JobType,
		params.Payload,
		domain.JobStatusPending,
		params.MaxAttempts,
	)
	if err == nil {
		s.logger.Info("Job enqueued",
			slog.String("job_id", job.JobID),
			slog.String("job_type", job.JobType),
			slog.Int("max_attempts", job.MaxAttempts),
		)
		return &job, nil
	}
	if !errors.Is(err, sql.ErrNoRows) || key == nil {
		return nil, fmt.Errorf("failed to enqueue job: %w", err)
	}

	// The insert was skipped by the idempotency-key conflict; return the
	// job that already holds the key.
	existing, err := s.getJobWhere(ctx, "idempotency_key = $1", *key)
	if err != nil {
		return nil, fmt.Errorf("failed to load job for idempotency key: %w", err)
	}
	s.logger.Info("Enqueue deduplicated by idempotency key",
		slog.String("job_id", existing.JobID),
		slog.String("idempotency_key", *key),
	)
	return existing, nil
}

// ClaimNext atomically claims the oldest pending job for the given worker:
// the job moves to processing, attempts is incremented, and started_at and
// locked_by are set, all in one statement. FOR UPDATE SKIP LOCKED guarantees
// that concurrent callers never receive the same row and that one slow claim
// never blocks claims of other jobs. Returns (nil, nil) when no pending job
// is available.
func (s *Storage) ClaimNext(ctx context.Context, workerID string) (*domain.Job, error) {
	query := `
		UPDATE jobs SET
			status = $1,
			locked_by = $2,
			started_at = now(),
			attempts = attempts + 1,
			updated_at = now()
		WHERE job_id = (
			SELECT job_id FROM jobs
			WHERE status = $3
			ORDER BY created_at
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING ` + jobColumns

	var job domain.Job
	err := s.db.GetContext(ctx, &job, query, domain.JobStatusProcessing, workerID, domain.JobStatusPending)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}

	s.logger.Info("Job claimed",
		slog.String("job_id", job.JobID),
		slog.String("job_type", job.JobType),
		slog.String("worker_id", workerID),
		slog.Int("attempt", job.Attempts),
	)
	return &job, nil
}

// Complete transitions a job from processing to completed and releases the
// claim. Only the owning worker may complete; completing an already-completed
// job is a no-op so that retried completions after a lost response are safe.
func (s *Storage) Complete(ctx context.Context, jobID, workerID string) error {
	query := `
		UPDATE jobs SET
			status = $1,
			locked_by = NULL,
			started_at = NULL,
			updated_at = now()
		WHERE job_id = $2 AND status = $3 AND locked_by = $4
	`

	result, err := s.db.ExecContext(ctx, query, domain.JobStatusCompleted, jobID, domain.JobStatusProcessing, workerID)
	if err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows > 0 {
		s.logger.Info("Job completed",
			slog.String("job_id", jobID),
			slog.String("worker_id", workerID),
		)
		return nil
	}

	// Nothing matched: either the job is gone, already completed (fine), or
	// held by someone else / reset out from under us.
	job, err := s.GetJobByID(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status == domain.JobStatusCompleted {
		return nil
	}
	return fmt.Errorf("%w: cannot complete job %s in status %s", domain.ErrInvalidTransition, jobID, job.Status)
}

// Fail records the handler error for a processing job owned by the worker.
// A retryable failure with attempts remaining is recycled to pending for
// another claim; a permanent failure, or a retryable one at the attempt
// ceiling, lands in the terminal failed (dead-letter) state. The resulting
// status is returned.
func (s *Storage) Fail(ctx context.Context, jobID, workerID, jobErr string, retryable bool) (string, error) {
	query := `
		UPDATE jobs SET
			status = CASE WHEN $1 AND attempts < max_attempts THEN $2 ELSE $3 END,
			last_error = $4,
			locked_by = NULL,
			started_at = NULL,
			updated_at = now()
		WHERE job_id = $5 AND status = $6 AND locked_by = $7
		RETURNING status
	`

	var status string
	err := s.db.GetContext(ctx, &status, query,
		retryable, domain.JobStatusPending, domain.JobStatusFailed, jobErr,
		jobID, domain.JobStatusProcessing, workerID,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			job, getErr := s.GetJobByID(ctx, jobID)
			if getErr != nil {
				return "", getErr
			}
			return "", fmt.Errorf("%w: cannot fail job %s in status %s", domain.ErrInvalidTransition, jobID, job.Status)
		}
		return "", fmt.Errorf("failed to record job failure: %w", err)
	}

	if status == domain.JobStatusFailed {
		s.logger.Warn("Job moved to dead letter",
			slog.String("job_id", jobID),
			slog.String("worker_id", workerID),
			slog.String("error", jobErr),
		)
	} else {
		s.logger.Info("Job failed, returned to pending for retry",
			slog.String("job_id", jobID),
			slog.String("worker_id", workerID),
			slog.String("error", jobErr),
		)
	}
	return status, nil
}

// ResetStuck is the self-healing primitive used by the reaper: every job
// still marked processing whose started_at is older than the timeout is
// recycled to pending (or dead-lettered when attempts are exhausted) in one
// statement, so a concurrent completion by a still-live worker cannot be
// overwritten. Returns the number of jobs reset.
func (s *Storage) ResetStuck(ctx context.Context, timeout time.Duration) (int64, error) {
	query := `
		UPDATE jobs SET
			status = CASE WHEN attempts >= max_attempts THEN $1 ELSE $2 END,
			last_error = 'processing timed out; reclaimed from worker ' || COALESCE(locked_by, 'unknown'),
			locked_by = NULL,
			started_at = NULL,
			updated_at = now()
		WHERE status = $3 AND started_at < now() - make_interval(secs => $4)
	`

	result, err := s.db.ExecContext(ctx, query,
		domain.JobStatusFailed, domain.JobStatusPending,
		domain.JobStatusProcessing, timeout.Seconds(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to reset stuck jobs: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows > 0 {
		s.logger.Warn("Reset stuck jobs",
			slog.Int64("count", rows),
			slog.Duration("timeout", timeout),
		)
	}
	return rows, nil
}

// Cancel transitions a still-pending job to canceled. A job that has already
// been claimed cannot be canceled; abandonment plus the reaper is the only
// path for in-flight work.
func (s *Storage) Cancel(ctx context.Context, jobID string) error {
	query := `
		UPDATE jobs SET
			status = $1,
			updated_at = now()
		WHERE job_id = $2 AND status = $3
	`

	result, err := s.db.ExecContext(ctx, query, domain.JobStatusCanceled, jobID, domain.JobStatusPending)
	if err != nil {
		return fmt.Errorf("failed to cancel job: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows > 0 {
		s.logger.Info("Job canceled", slog.String("job_id", jobID))
		return nil
	}

	job, err := s.GetJobByID(ctx, jobID)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: cannot cancel job %s in status %s", domain.ErrInvalidTransition, jobID, job.Status)
}

// GetJobByID retrieves a job from the database by its ID
func (s *Storage) GetJobByID(ctx context.Context, jobID string) (*domain.Job, error) {
	return s.getJobWhere(ctx, "job_id = $1", jobID)
}

func (s *Storage) getJobWhere(ctx context.Context, where string, arg any) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE ` + where

	var job domain.Job
	err := s.db.GetContext(ctx, &job, query, arg)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &job, nil
}
