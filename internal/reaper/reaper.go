package reaper

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/judgmentops/queue-be/internal/metrics"
	"github.com/judgmentops/queue-be/internal/queue/domain"
)

// Trigger values recorded on each run.
const (
	TriggerScheduled = "scheduled"
	TriggerManual    = "manual"
)

// Store is the slice of the job store the reaper needs. Implemented by
// queue/storage.Storage.
type Store interface {
	ResetStuck(ctx context.Context, timeout time.Duration) (int64, error)
	PruneHeartbeats(ctx context.Context, olderThan time.Duration) (int64, error)
	RecordReaperRun(ctx context.Context, run *domain.ReaperRun) error
}

// Config holds reaper configuration
type Config struct {
	Logger          *slog.Logger
	Store           Store
	StuckTimeout    time.Duration
	HeartbeatMaxAge time.Duration
	SweepTimeout    time.Duration
}

// Reaper recovers jobs abandoned by crashed or hung workers: any job still
// in processing past the stuck timeout is returned to pending (or
// dead-lettered at the attempt ceiling). Sweeps are mutually exclusive; a
// trigger while one is in flight no-ops rather than double-processing.
type Reaper struct {
	logger          *slog.Logger
	store           Store
	stuckTimeout    time.Duration
	heartbeatMaxAge time.Duration
	sweepTimeout    time.Duration
	mu              sync.Mutex
}

// Result is what one sweep reports back to its trigger.
type Result struct {
	Skipped   bool  `json:"skipped"`
	JobsReset int64 `json:"jobs_reset"`
}

// New creates a reaper.
func New(cfg *Config) *Reaper {
	sweepTimeout := cfg.SweepTimeout
	if sweepTimeout <= 0 {
		sweepTimeout = time.Minute
	}
	heartbeatMaxAge := cfg.HeartbeatMaxAge
	if heartbeatMaxAge <= 0 {
		heartbeatMaxAge = time.Hour
	}

	return &Reaper{
		logger:          cfg.Logger,
		store:           cfg.Store,
		stuckTimeout:    cfg.StuckTimeout,
		heartbeatMaxAge: heartbeatMaxAge,
		sweepTimeout:    sweepTimeout,
	}
}

// Run executes one scheduled sweep with the configured stuck timeout. It is
// the signature cron wants: all errors are handled internally so a failed
// sweep can never crash the host process, which must stay alive for the next
// trigger.
func (r *Reaper) Run() {
	_ = r.sweep(TriggerScheduled, r.stuckTimeout)
}

// RunManual executes an operator-triggered sweep with an operator-chosen
// timeout. It shares the run lock with scheduled sweeps, so automatic and
// manual recovery serialize instead of racing.
func (r *Reaper) RunManual(timeout time.Duration) Result {
	return r.sweep(TriggerManual, timeout)
}

func (r *Reaper) sweep(trigger string, timeout time.Duration) Result {
	if !r.mu.TryLock() {
		r.logger.Warn("Reaper sweep already in progress, skipping",
			slog.String("trigger", trigger),
		)
		return Result{Skipped: true}
	}
	defer r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), r.sweepTimeout)
	defer cancel()

	start := time.Now().UTC()
	r.logger.Info("Reaper sweep started",
		slog.String("trigger", trigger),
		slog.Duration("stuck_timeout", timeout),
	)

	reset, err := r.store.ResetStuck(ctx, timeout)

	run := &domain.ReaperRun{
		Trigger:   trigger,
		StartTime: start,
		JobsReset: reset,
	}
	end := time.Now().UTC()
	run.EndTime = &end

	if err != nil {
		run.Status = domain.ReaperRunFailed
		run.ReturnMessage = err.Error()
		metrics.ReaperRuns.WithLabelValues(domain.ReaperRunFailed).Inc()
		r.logger.Error("Reaper sweep failed",
			slog.String("trigger", trigger),
			slog.Any("error", err),
		)
	} else {
		run.Status = domain.ReaperRunSucceeded
		run.ReturnMessage = fmt.Sprintf("reset %d stuck job(s)", reset)
		metrics.ReaperRuns.WithLabelValues(domain.ReaperRunSucceeded).Inc()
		metrics.ReaperJobsReset.Add(float64(reset))
		r.logger.Info("Reaper sweep finished",
			slog.String("trigger", trigger),
			slog.Int64("jobs_reset", reset),
			slog.Duration("took", end.Sub(start)),
		)

		// Housekeeping piggybacked on a healthy sweep. Stale rows are
		// already ignored by the health counts, so a failure here is
		// log-only.
		if _, pruneErr := r.store.PruneHeartbeats(ctx, r.heartbeatMaxAge); pruneErr != nil {
			r.logger.Warn("Failed to prune stale heartbeats", slog.Any("error", pruneErr))
		}
	}

	// The audit record is written for both outcomes. If even that write
	// fails the sweep still must not propagate an error to the scheduler.
	if recErr := r.store.RecordReaperRun(ctx, run); recErr != nil {
		r.logger.Error("Failed to record reaper run", slog.Any("error", recErr))
	}

	return Result{JobsReset: reset}
}
