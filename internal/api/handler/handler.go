package handler

import (
	"context"
	"log/slog"
	"time"

	"github.com/judgmentops/queue-be/internal/config"
	"github.com/judgmentops/queue-be/internal/health"
	"github.com/judgmentops/queue-be/internal/queue/domain"
	"github.com/judgmentops/queue-be/internal/queue/storage"
	"github.com/judgmentops/queue-be/internal/reaper"
	"github.com/judgmentops/queue-be/shared/postgresql"
)

// JobStore is the slice of the storage layer the HTTP handlers use.
type JobStore interface {
	Enqueue(ctx context.Context, params storage.EnqueueParams) (*domain.Job, error)
	GetJobByID(ctx context.Context, jobID string) (*domain.Job, error)
	ListJobs(ctx context.Context, filter storage.JobFilter) ([]domain.Job, error)
	Cancel(ctx context.Context, jobID string) error
}

// HealthChecker produces queue health snapshots on demand.
type HealthChecker interface {
	Snapshot(ctx context.Context) *health.Snapshot
}

// Sweeper runs operator-triggered stuck-job sweeps.
type Sweeper interface {
	RunManual(timeout time.Duration) reaper.Result
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger   *slog.Logger
	DBClient *postgresql.Client
	Store    JobStore
	Health   HealthChecker
	Sweeper  Sweeper
	Config   *config.Config
}

// JobHandler handles job-related HTTP requests
type JobHandler struct {
	logger   *slog.Logger
	dbClient *postgresql.Client
	store    JobStore
	health   HealthChecker
	sweeper  Sweeper
	config   *config.Config
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{
		logger:   deps.Logger,
		dbClient: deps.DBClient,
		store:    deps.Store,
		health:   deps.Health,
		sweeper:  deps.Sweeper,
		config:   deps.Config,
	}
}
