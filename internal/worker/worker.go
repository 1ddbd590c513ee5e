package worker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/judgmentops/queue-be/internal/metrics"
	"github.com/judgmentops/queue-be/internal/queue/domain"
)

// Store is the slice of the job store the worker runtime needs. Implemented
// by queue/storage.Storage.
type Store interface {
	ClaimNext(ctx context.Context, workerID string) (*domain.Job, error)
	Complete(ctx context.Context, jobID, workerID string) error
	Fail(ctx context.Context, jobID, workerID, jobErr string, retryable bool) (string, error)
	UpsertHeartbeat(ctx context.Context, workerID, hostname string) error
	DeleteHeartbeat(ctx context.Context, workerID string) error
}

// Config holds worker configuration
type Config struct {
	Logger            *slog.Logger
	Store             Store
	Registry          *Registry
	WorkerID          string
	Concurrency       int
	PollInterval      time.Duration
	JobTimeout        time.Duration
	HeartbeatInterval time.Duration
}

// Worker is the runtime that claims pending jobs from the store, executes
// the registered handler for each, and records the outcome. Multiple worker
// processes run fully in parallel with no shared memory; the store's atomic
// claim is the only coordination between them.
type Worker struct {
	logger            *slog.Logger
	store             Store
	registry          *Registry
	workerID          string
	hostname          string
	concurrency       int
	pollInterval      time.Duration
	jobTimeout        time.Duration
	heartbeatInterval time.Duration
	wg                sync.WaitGroup
	stopChan          chan struct{}
	stopOnce          sync.Once
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	workerID := cfg.WorkerID
	hostname, _ := os.Hostname()
	if workerID == "" {
		workerID = fmt.Sprintf("%s-%s", hostname, uuid.New().String()[:8])
	}

	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	heartbeatInterval := cfg.HeartbeatInterval
	if heartbeatInterval <= 0 {
		heartbeatInterval = 30 * time.Second
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	return &Worker{
		logger:            cfg.Logger,
		store:             cfg.Store,
		registry:          cfg.Registry,
		workerID:          workerID,
		hostname:          hostname,
		concurrency:       concurrency,
		pollInterval:      pollInterval,
		jobTimeout:        cfg.JobTimeout,
		heartbeatInterval: heartbeatInterval,
		stopChan:          make(chan struct{}),
	}
}

// WorkerID returns the identity written into jobs.locked_by.
func (w *Worker) WorkerID() string {
	return w.workerID
}

// Start registers the startup heartbeat and launches the claim loops plus
// the heartbeat loop. It blocks until ctx is canceled or Stop is called.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.String("worker_id", w.workerID),
		slog.Int("concurrency", w.concurrency),
		slog.Duration("poll_interval", w.pollInterval),
		slog.Any("job_types", w.registry.Types()),
	)

	if err := w.store.UpsertHeartbeat(ctx, w.workerID, w.hostname); err != nil {
		return fmt.Errorf("failed to register startup heartbeat: %w", err)
	}

	w.wg.Add(1)
	go w.heartbeatLoop(ctx)

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.claimLoop(ctx, i)
	}

	select {
	case <-ctx.Done():
	case <-w.stopChan:
	}
	return nil
}

// Stop signals the loops to stop claiming and waits for in-flight jobs to
// finish. The caller bounds the wait with its own shutdown timeout; anything
// still running past that is abandoned and recovered later by the reaper.
func (w *Worker) Stop() {
	w.logger.Info("Stopping worker...", slog.String("worker_id", w.workerID))
	w.stopOnce.Do(func() { close(w.stopChan) })
	w.wg.Wait()

	// Best effort: remove the liveness row so health does not count a
	// cleanly-stopped worker until the prune catches up.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := w.store.DeleteHeartbeat(ctx, w.workerID); err != nil {
		w.logger.Warn("Failed to remove heartbeat on shutdown",
			slog.String("worker_id", w.workerID),
			slog.Any("error", err),
		)
	}

	w.logger.Info("Worker stopped", slog.String("worker_id", w.workerID))
}

// claimLoop repeatedly claims and processes jobs until shutdown. An empty
// queue and a store outage both back off for the poll interval; the outage
// is logged but never crashes the process and never counts as a job failure.
func (w *Worker) claimLoop(ctx context.Context, slot int) {
	defer w.wg.Done()

	loopName := fmt.Sprintf("%s-%d", w.workerID, slot)
	w.logger.Info("Claim loop started", slog.String("loop", loopName))

	for {
		select {
		case <-w.stopChan:
			w.logger.Info("Claim loop stopping", slog.String("loop", loopName))
			return
		case <-ctx.Done():
			w.logger.Info("Claim loop stopping - context canceled", slog.String("loop", loopName))
			return
		default:
		}

		job, err := w.store.ClaimNext(ctx, w.workerID)
		if err != nil {
			metrics.ClaimErrors.Inc()
			w.logger.Error("Failed to claim job, backing off",
				slog.String("loop", loopName),
				slog.Any("error", err),
			)
			w.sleep(ctx, w.pollInterval)
			continue
		}

		if job == nil {
			metrics.EmptyClaims.Inc()
			w.sleep(ctx, w.pollInterval)
			continue
		}

		w.processJob(job)
	}
}

// heartbeatLoop refreshes the worker's liveness row on a fixed interval,
// independent of job execution, so a worker blocked on one long job still
// reads as alive.
func (w *Worker) heartbeatLoop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopChan:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			hbCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			err := w.store.UpsertHeartbeat(hbCtx, w.workerID, w.hostname)
			cancel()
			if err != nil {
				w.logger.Warn("Failed to send heartbeat",
					slog.String("worker_id", w.workerID),
					slog.Any("error", err),
				)
			}
		}
	}
}

// sleep waits for d or until shutdown, whichever comes first.
func (w *Worker) sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-w.stopChan:
	case <-ctx.Done():
	case <-timer.C:
	}
}
