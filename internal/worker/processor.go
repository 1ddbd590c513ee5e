package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/judgmentops/queue-be/internal/metrics"
	"github.com/judgmentops/queue-be/internal/queue/domain"
)

// processJob runs the handler for an already-claimed job and records the
// outcome. The handler context is derived from Background rather than the
// claim loop's context: shutdown stops new claims but in-flight work is
// allowed to finish, and there is no cooperative cancellation path for a
// running handler beyond its own timeout.
func (w *Worker) processJob(job *domain.Job) {
	w.logger.Info("Processing job",
		slog.String("job_id", job.JobID),
		slog.String("job_type", job.JobType),
		slog.String("worker_id", w.workerID),
		slog.Int("attempt", job.Attempts),
		slog.Int("max_attempts", job.MaxAttempts),
	)

	handler, ok := w.registry.Resolve(job.JobType)
	if !ok {
		w.recordFailure(job, fmt.Errorf("no handler registered for job type %q", job.JobType))
		return
	}

	jobCtx, cancel := context.WithTimeout(context.Background(), w.jobTimeout)
	defer cancel()

	start := time.Now()
	err := w.executeJob(jobCtx, handler, job)
	metrics.JobDuration.WithLabelValues(job.JobType).Observe(time.Since(start).Seconds())

	if err != nil {
		w.recordFailure(job, err)
		return
	}

	storeCtx, storeCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer storeCancel()

	if err := w.store.Complete(storeCtx, job.JobID, w.workerID); err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			// The reaper decided we were dead and reset the job while the
			// handler was still running. The work will be re-executed by
			// another claim; at-least-once semantics absorb the duplicate.
			w.logger.Warn("Lost claim before completion, job was reset",
				slog.String("job_id", job.JobID),
				slog.String("worker_id", w.workerID),
			)
			return
		}
		w.logger.Error("Failed to mark job completed",
			slog.String("job_id", job.JobID),
			slog.Any("error", err),
		)
		return
	}

	metrics.JobsProcessed.WithLabelValues(job.JobType, metrics.OutcomeCompleted).Inc()
	w.logger.Info("Job completed successfully",
		slog.String("job_id", job.JobID),
		slog.String("job_type", job.JobType),
		slog.Duration("duration", time.Since(start)),
	)
}

// executeJob invokes the handler with panic recovery: a panicking handler is
// a handler failure, not a dead worker process. Panics count as retryable,
// the in-process analog of a crashed worker the reaper would recycle.
func (w *Worker) executeJob(ctx context.Context, handler Handler, job *domain.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = domain.NewRetryableError(fmt.Errorf("handler panicked: %v", r))
		}
	}()
	return handler.Execute(ctx, job)
}

// recordFailure routes a handler error through Fail. Errors wrapped in
// domain.RetryableError, and job timeouts, are recycled until the attempt
// ceiling; anything else is permanent and dead-letters on the spot.
func (w *Worker) recordFailure(job *domain.Job, jobErr error) {
	var retryErr *domain.RetryableError
	retryable := errors.As(jobErr, &retryErr) || errors.Is(jobErr, context.DeadlineExceeded)

	w.logger.Error("Job execution failed",
		slog.String("job_id", job.JobID),
		slog.String("job_type", job.JobType),
		slog.String("error", jobErr.Error()),
		slog.Bool("retryable", retryable),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	status, err := w.store.Fail(ctx, job.JobID, w.workerID, jobErr.Error(), retryable)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			w.logger.Warn("Lost claim before failure was recorded",
				slog.String("job_id", job.JobID),
				slog.String("worker_id", w.workerID),
			)
			return
		}
		w.logger.Error("Failed to record job failure",
			slog.String("job_id", job.JobID),
			slog.Any("error", err),
		)
		return
	}

	if status == domain.JobStatusFailed {
		metrics.JobsProcessed.WithLabelValues(job.JobType, metrics.OutcomeDead).Inc()
	} else {
		metrics.JobsProcessed.WithLabelValues(job.JobType, metrics.OutcomeRetried).Inc()
	}
}
