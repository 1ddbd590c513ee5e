package health

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/judgmentops/queue-be/internal/config"
	"github.com/judgmentops/queue-be/internal/queue/domain"
)

// Status classifies a metric or the snapshot as a whole.
// Overall ordering: critical > degraded/warning/unknown > healthy.
const (
	StatusHealthy  = "healthy"
	StatusWarning  = "warning"
	StatusDegraded = "degraded"
	StatusCritical = "critical"
	// StatusUnknown marks a metric whose backing query failed; the snapshot
	// stays best-effort and the error is surfaced in the metric message.
	StatusUnknown = "unknown"
)

// Metric is one named, threshold-classified measurement.
type Metric struct {
	Name      string `json:"name"`
	Status    string `json:"status"`
	Value     int64  `json:"value"`
	Threshold string `json:"threshold"`
	Message   string `json:"message"`
}

// QueueHealth summarizes job counts by state.
type QueueHealth struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Failed     int64 `json:"failed"`
	Stuck      int64 `json:"stuck"`
	Failed24h  int64 `json:"failed_24h"`
}

// WorkerHealth summarizes worker liveness.
type WorkerHealth struct {
	TotalWorkers  int        `json:"total_workers"`
	ActiveWorkers int        `json:"active_workers"`
	LastHeartbeat *time.Time `json:"last_heartbeat"`
}

// ReaperHealth summarizes the most recent sweep.
type ReaperHealth struct {
	LastStatus    string     `json:"last_status"`
	LastRun       *time.Time `json:"last_run"`
	ReturnMessage string     `json:"return_message"`
}

// Snapshot is the point-in-time health view consumed by dashboards and
// alerting. It is computed on demand and never persisted.
type Snapshot struct {
	OverallStatus string       `json:"overall_status"`
	Timestamp     time.Time    `json:"timestamp"`
	Environment   string       `json:"environment"`
	Metrics       []Metric     `json:"metrics"`
	QueueHealth   QueueHealth  `json:"queue_health"`
	WorkerHealth  WorkerHealth `json:"worker_health"`
	ReaperHealth  ReaperHealth `json:"reaper_health"`
}

// Store is the read-only slice of the job store the aggregator needs.
// Implemented by queue/storage.Storage.
type Store interface {
	StatusCounts(ctx context.Context) (map[string]int64, error)
	CountStuck(ctx context.Context, timeout time.Duration) (int64, error)
	CountFailedSince(ctx context.Context, since time.Time) (int64, error)
	CountWorkers(ctx context.Context, window time.Duration) (total, active int, err error)
	LastHeartbeat(ctx context.Context) (*time.Time, error)
	LastReaperRun(ctx context.Context) (*domain.ReaperRun, error)
}

// Checker computes health snapshots against configured thresholds. It is a
// pure reader: it never mutates job or heartbeat state.
type Checker struct {
	logger       *slog.Logger
	store        Store
	cfg          config.HealthConfig
	stuckTimeout time.Duration
	environment  string
	now          func() time.Time
}

// NewChecker creates a health checker. stuckTimeout must be the same value
// the reaper sweeps with, so "stuck" means the same thing on both sides.
func NewChecker(logger *slog.Logger, store Store, cfg config.HealthConfig, stuckTimeout time.Duration, environment string) *Checker {
	return &Checker{
		logger:       logger,
		store:        store,
		cfg:          cfg,
		stuckTimeout: stuckTimeout,
		environment:  environment,
		now:          time.Now,
	}
}

// Snapshot computes the current health view. Individual metric failures are
// reported in-band as unknown metrics; the call itself only returns an error
// for programming mistakes, never for a partially-unavailable store.
func (c *Checker) Snapshot(ctx context.Context) *Snapshot {
	now := c.now().UTC()
	snap := &Snapshot{
		Timestamp:   now,
		Environment: c.environment,
	}

	c.checkQueue(ctx, snap)
	c.checkWorkers(ctx, snap)
	c.checkReaper(ctx, snap, now)

	snap.OverallStatus = Overall(snap.Metrics)
	return snap
}

func (c *Checker) checkQueue(ctx context.Context, snap *Snapshot) {
	counts, err := c.store.StatusCounts(ctx)
	if err != nil {
		c.logger.Error("Health check: status counts unavailable", slog.Any("error", err))
		snap.Metrics = append(snap.Metrics, unknownMetric("pending_jobs", err))
	} else {
		snap.QueueHealth.Pending = counts[domain.JobStatusPending]
		snap.QueueHealth.Processing = counts[domain.JobStatusProcessing]
		snap.QueueHealth.Failed = counts[domain.JobStatusFailed]

		pending := counts[domain.JobStatusPending]
		status := StatusHealthy
		msg := "queue depth within limits"
		switch {
		case pending > c.cfg.PendingCritical:
			status = StatusCritical
			msg = fmt.Sprintf("%d jobs pending, queue is backing up", pending)
		case pending >= c.cfg.PendingWarning:
			status = StatusWarning
			msg = fmt.Sprintf("%d jobs pending, workers may be falling behind", pending)
		}
		snap.Metrics = append(snap.Metrics, Metric{
			Name:      "pending_jobs",
			Status:    status,
			Value:     pending,
			Threshold: fmt.Sprintf("warning >= %d, critical > %d", c.cfg.PendingWarning, c.cfg.PendingCritical),
			Message:   msg,
		})
	}

	stuck, err := c.store.CountStuck(ctx, c.stuckTimeout)
	if err != nil {
		c.logger.Error("Health check: stuck count unavailable", slog.Any("error", err))
		snap.Metrics = append(snap.Metrics, unknownMetric("stuck_jobs", err))
	} else {
		snap.QueueHealth.Stuck = stuck
		status := StatusHealthy
		msg := "no jobs stuck in processing"
		if stuck > 0 {
			status = StatusCritical
			msg = fmt.Sprintf("%d job(s) stuck in processing beyond %s, awaiting reaper recovery", stuck, c.stuckTimeout)
		}
		snap.Metrics = append(snap.Metrics, Metric{
			Name:      "stuck_jobs",
			Status:    status,
			Value:     stuck,
			Threshold: "> 0",
			Message:   msg,
		})
	}

	failed24h, err := c.store.CountFailedSince(ctx, c.now().Add(-24*time.Hour))
	if err != nil {
		c.logger.Error("Health check: failed_24h count unavailable", slog.Any("error", err))
		snap.Metrics = append(snap.Metrics, unknownMetric("failed_24h", err))
	} else {
		snap.QueueHealth.Failed24h = failed24h
		status := StatusHealthy
		msg := "dead-letter rate normal"
		if failed24h > c.cfg.Failed24hWarning {
			status = StatusWarning
			msg = fmt.Sprintf("%d jobs dead-lettered in the last 24h", failed24h)
		}
		snap.Metrics = append(snap.Metrics, Metric{
			Name:      "failed_24h",
			Status:    status,
			Value:     failed24h,
			Threshold: fmt.Sprintf("> %d", c.cfg.Failed24hWarning),
			Message:   msg,
		})
	}
}

func (c *Checker) checkWorkers(ctx context.Context, snap *Snapshot) {
	total, active, err := c.store.CountWorkers(ctx, c.cfg.LivenessWindow)
	if err != nil {
		c.logger.Error("Health check: worker counts unavailable", slog.Any("error", err))
		snap.Metrics = append(snap.Metrics, unknownMetric("active_workers", err))
		return
	}

	snap.WorkerHealth.TotalWorkers = total
	snap.WorkerHealth.ActiveWorkers = active

	if last, err := c.store.LastHeartbeat(ctx); err != nil {
		c.logger.Error("Health check: last heartbeat unavailable", slog.Any("error", err))
	} else {
		snap.WorkerHealth.LastHeartbeat = last
	}

	status := StatusHealthy
	msg := fmt.Sprintf("%d of %d worker(s) active", active, total)
	if active == 0 {
		status = StatusCritical
		msg = "no active workers, jobs will not be processed"
	}
	snap.Metrics = append(snap.Metrics, Metric{
		Name:      "active_workers",
		Status:    status,
		Value:     int64(active),
		Threshold: "== 0",
		Message:   msg,
	})
}

func (c *Checker) checkReaper(ctx context.Context, snap *Snapshot, now time.Time) {
	run, err := c.store.LastReaperRun(ctx)
	if err != nil {
		c.logger.Error("Health check: reaper run unavailable", slog.Any("error", err))
		snap.Metrics = append(snap.Metrics, unknownMetric("reaper_freshness", err))
		return
	}

	threshold := fmt.Sprintf("stale after %s", c.cfg.ReaperStaleAfter)

	if run == nil {
		snap.ReaperHealth.LastStatus = "never_ran"
		snap.Metrics = append(snap.Metrics, Metric{
			Name:      "reaper_freshness",
			Status:    StatusDegraded,
			Value:     -1,
			Threshold: threshold,
			Message:   "reaper has never run",
		})
		return
	}

	snap.ReaperHealth.LastStatus = run.Status
	snap.ReaperHealth.LastRun = &run.StartTime
	snap.ReaperHealth.ReturnMessage = run.ReturnMessage

	age := now.Sub(run.StartTime)
	status := StatusHealthy
	msg := fmt.Sprintf("last sweep %s ago: %s", age.Round(time.Second), run.ReturnMessage)
	switch {
	case age > c.cfg.ReaperStaleAfter:
		status = StatusDegraded
		msg = fmt.Sprintf("last sweep %s ago, automatic recovery may be down", age.Round(time.Second))
	case run.Status == domain.ReaperRunFailed:
		status = StatusDegraded
		msg = fmt.Sprintf("last sweep failed: %s", run.ReturnMessage)
	}
	snap.Metrics = append(snap.Metrics, Metric{
		Name:      "reaper_freshness",
		Status:    status,
		Value:     int64(age.Minutes()),
		Threshold: threshold,
		Message:   msg,
	})
}

func unknownMetric(name string, err error) Metric {
	return Metric{
		Name:    name,
		Status:  StatusUnknown,
		Message: fmt.Sprintf("check unavailable: %s", err),
	}
}

// Overall folds per-metric statuses into the snapshot status: any critical
// wins, any warning/degraded/unknown downgrades to degraded, otherwise
// healthy.
func Overall(ms []Metric) string {
	overall := StatusHealthy
	for _, m := range ms {
		switch m.Status {
		case StatusCritical:
			return StatusCritical
		case StatusWarning, StatusDegraded, StatusUnknown:
			overall = StatusDegraded
		}
	}
	return overall
}
