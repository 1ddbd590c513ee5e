package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus collectors for the queue. Registered on the default registry
// and exposed by the API service on /metrics.
var (
	JobsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "queue",
		Subsystem: "worker",
		Name:      "jobs_processed_total",
		Help:      "Jobs processed by the worker runtime, by job type and outcome.",
	}, []string{"job_type", "outcome"})

	JobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "queue",
		Subsystem: "worker",
		Name:      "job_duration_seconds",
		Help:      "Handler execution time in seconds.",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
	}, []string{"job_type"})

	EmptyClaims = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "queue",
		Subsystem: "worker",
		Name:      "empty_claims_total",
		Help:      "Claim attempts that found no pending job.",
	})

	ClaimErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "queue",
		Subsystem: "worker",
		Name:      "claim_errors_total",
		Help:      "Claim attempts that failed because the store was unavailable.",
	})

	ReaperJobsReset = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "queue",
		Subsystem: "reaper",
		Name:      "jobs_reset_total",
		Help:      "Jobs returned to pending or dead-lettered by reaper sweeps.",
	})

	ReaperRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "queue",
		Subsystem: "reaper",
		Name:      "runs_total",
		Help:      "Reaper sweeps, by outcome.",
	}, []string{"status"})

	AlertsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "queue",
		Subsystem: "health",
		Name:      "alerts_published_total",
		Help:      "Alerts handed to the notification sink, by severity.",
	}, []string{"severity"})
)

// Outcome label values for JobsProcessed.
const (
	OutcomeCompleted = "completed"
	OutcomeRetried   = "retried"
	OutcomeDead      = "dead_letter"
)
