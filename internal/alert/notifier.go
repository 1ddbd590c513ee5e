package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/judgmentops/queue-be/internal/metrics"
	"github.com/judgmentops/queue-be/shared/rabbitmq"
)

// Severity of an alert handed to the sink.
const (
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
	SeverityResolved = "resolved"
)

// Notifier is the capability the health monitor uses to reach the alert
// sink. Message formatting and delivery (Discord/Slack webhooks) live in the
// external relay that consumes the alerts exchange, not here.
type Notifier interface {
	Notify(ctx context.Context, severity, message string) error
}

// event is the wire shape published to the alerts exchange.
type event struct {
	Severity    string    `json:"severity"`
	Message     string    `json:"message"`
	Source      string    `json:"source"`
	Environment string    `json:"environment"`
	Timestamp   time.Time `json:"timestamp"`
}

// RabbitNotifier publishes alert events to the alerts exchange.
type RabbitNotifier struct {
	client      *rabbitmq.Client
	logger      *slog.Logger
	source      string
	environment string
}

// NewRabbitNotifier creates a notifier backed by the shared RabbitMQ client.
func NewRabbitNotifier(client *rabbitmq.Client, logger *slog.Logger, source, environment string) *RabbitNotifier {
	return &RabbitNotifier{
		client:      client,
		logger:      logger,
		source:      source,
		environment: environment,
	}
}

// Notify publishes one alert event. Publish failures are returned to the
// caller for logging but alerts are inherently lossy; nothing is queued for
// redelivery beyond the client's own retry.
func (n *RabbitNotifier) Notify(ctx context.Context, severity, message string) error {
	body, err := json.Marshal(event{
		Severity:    severity,
		Message:     message,
		Source:      n.source,
		Environment: n.environment,
		Timestamp:   time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal alert event: %w", err)
	}

	if err := n.client.PublishWithRetry(ctx, body, "application/json"); err != nil {
		return fmt.Errorf("failed to publish alert: %w", err)
	}

	metrics.AlertsPublished.WithLabelValues(severity).Inc()
	n.logger.Info("Alert published",
		slog.String("severity", severity),
		slog.String("message", message),
	)
	return nil
}

// NopNotifier discards alerts. Used when the alerts exchange is disabled in
// config (local development, tests).
type NopNotifier struct{}

func (NopNotifier) Notify(ctx context.Context, severity, message string) error {
	return nil
}
