package alert

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/judgmentops/queue-be/internal/health"
)

// Monitor periodically snapshots queue health and notifies the sink when the
// overall status breaches. It alerts on transitions, not on every tick: a
// queue that stays critical for an hour produces one alert, plus a resolved
// notice when it recovers.
type Monitor struct {
	logger  *slog.Logger
	checker *health.Checker
	sink    Notifier

	mu         sync.Mutex
	lastStatus string
}

// NewMonitor creates a health monitor.
func NewMonitor(logger *slog.Logger, checker *health.Checker, sink Notifier) *Monitor {
	return &Monitor{
		logger:     logger,
		checker:    checker,
		sink:       sink,
		lastStatus: health.StatusHealthy,
	}
}

// Run takes one health sample. It has the no-argument signature cron wants
// and never returns an error; a failed notification is logged and retried
// naturally on the next breach tick.
func (m *Monitor) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	snap := m.checker.Snapshot(ctx)

	m.mu.Lock()
	previous := m.lastStatus
	m.lastStatus = snap.OverallStatus
	m.mu.Unlock()

	if snap.OverallStatus == previous {
		return
	}

	m.logger.Info("Queue health status changed",
		slog.String("from", previous),
		slog.String("to", snap.OverallStatus),
	)

	severity, message := describeTransition(previous, snap)
	if severity == "" {
		return
	}

	if err := m.sink.Notify(ctx, severity, message); err != nil {
		m.logger.Error("Failed to notify alert sink",
			slog.String("severity", severity),
			slog.Any("error", err),
		)
	}
}

func describeTransition(previous string, snap *health.Snapshot) (severity, message string) {
	switch snap.OverallStatus {
	case health.StatusCritical:
		severity = SeverityCritical
	case health.StatusDegraded:
		severity = SeverityWarning
	case health.StatusHealthy:
		// Only announce recovery when we previously alerted.
		if previous == health.StatusHealthy {
			return "", ""
		}
		return SeverityResolved, fmt.Sprintf("queue health recovered (was %s)", previous)
	default:
		return "", ""
	}

	var breaches []string
	for _, metric := range snap.Metrics {
		if metric.Status != health.StatusHealthy {
			breaches = append(breaches, fmt.Sprintf("%s: %s", metric.Name, metric.Message))
		}
	}
	return severity, fmt.Sprintf("queue health is %s - %s", snap.OverallStatus, strings.Join(breaches, "; "))
}
