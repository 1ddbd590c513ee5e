package alert

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/judgmentops/queue-be/internal/config"
	"github.com/judgmentops/queue-be/internal/health"
	"github.com/judgmentops/queue-be/internal/queue/domain"
	"github.com/judgmentops/queue-be/shared/logger"
)

// healthStore drives the checker's view of the system; tests flip stuck to
// move the overall status between healthy and critical.
type healthStore struct {
	mu    sync.Mutex
	stuck int64
}

func (s *healthStore) setStuck(n int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stuck = n
}

func (s *healthStore) StatusCounts(ctx context.Context) (map[string]int64, error) {
	return map[string]int64{domain.JobStatusPending: 1}, nil
}

func (s *healthStore) CountStuck(ctx context.Context, timeout time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stuck, nil
}

func (s *healthStore) CountFailedSince(ctx context.Context, since time.Time) (int64, error) {
	return 0, nil
}

func (s *healthStore) CountWorkers(ctx context.Context, window time.Duration) (int, int, error) {
	return 1, 1, nil
}

func (s *healthStore) LastHeartbeat(ctx context.Context) (*time.Time, error) {
	now := time.Now()
	return &now, nil
}

func (s *healthStore) LastReaperRun(ctx context.Context) (*domain.ReaperRun, error) {
	return &domain.ReaperRun{
		Status:    domain.ReaperRunSucceeded,
		StartTime: time.Now().Add(-time.Minute),
	}, nil
}

type recordedAlert struct {
	severity string
	message  string
}

type fakeSink struct {
	mu     sync.Mutex
	alerts []recordedAlert
}

func (f *fakeSink) Notify(ctx context.Context, severity, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, recordedAlert{severity: severity, message: message})
	return nil
}

func (f *fakeSink) recorded() []recordedAlert {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedAlert(nil), f.alerts...)
}

func newTestMonitor(store *healthStore, sink Notifier) *Monitor {
	checker := health.NewChecker(
		logger.NewDefault().Logger,
		store,
		config.HealthConfig{
			LivenessWindow:   5 * time.Minute,
			PendingWarning:   50,
			PendingCritical:  100,
			Failed24hWarning: 20,
			ReaperStaleAfter: 30 * time.Minute,
		},
		15*time.Minute,
		"test",
	)
	return NewMonitor(logger.NewDefault().Logger, checker, sink)
}

func TestMonitor_AlertsOnTransitionsOnly(t *testing.T) {
	store := &healthStore{}
	sink := &fakeSink{}
	m := newTestMonitor(store, sink)

	// Healthy from the start: nothing to say.
	m.Run()
	m.Run()
	assert.Empty(t, sink.recorded())

	// Breach: exactly one alert even across repeated ticks.
	store.setStuck(3)
	m.Run()
	m.Run()
	m.Run()

	alerts := sink.recorded()
	require.Len(t, alerts, 1)
	assert.Equal(t, SeverityCritical, alerts[0].severity)
	assert.Contains(t, alerts[0].message, "stuck_jobs")

	// Recovery: one resolved notice.
	store.setStuck(0)
	m.Run()
	m.Run()

	alerts = sink.recorded()
	require.Len(t, alerts, 2)
	assert.Equal(t, SeverityResolved, alerts[1].severity)
	assert.Contains(t, alerts[1].message, "recovered")
}

func TestMonitor_NoResolvedNoticeWithoutPriorAlert(t *testing.T) {
	store := &healthStore{}
	sink := &fakeSink{}
	m := newTestMonitor(store, sink)

	m.Run()
	m.Run()

	assert.Empty(t, sink.recorded())
}

func TestDescribeTransition(t *testing.T) {
	criticalSnap := &health.Snapshot{
		OverallStatus: health.StatusCritical,
		Metrics: []health.Metric{
			{Name: "pending_jobs", Status: health.StatusHealthy, Message: "fine"},
			{Name: "stuck_jobs", Status: health.StatusCritical, Message: "2 job(s) stuck"},
		},
	}

	severity, message := describeTransition(health.StatusHealthy, criticalSnap)
	assert.Equal(t, SeverityCritical, severity)
	assert.Contains(t, message, "stuck_jobs: 2 job(s) stuck")
	assert.NotContains(t, message, "pending_jobs")

	severity, message = describeTransition(health.StatusCritical, &health.Snapshot{OverallStatus: health.StatusHealthy})
	assert.Equal(t, SeverityResolved, severity)
	assert.Contains(t, message, "was critical")

	severity, _ = describeTransition(health.StatusHealthy, &health.Snapshot{OverallStatus: health.StatusHealthy})
	assert.Empty(t, severity)
}
