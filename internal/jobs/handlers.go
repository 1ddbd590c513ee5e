// Package jobs holds the built-in job handlers shipped with the worker
// service. Deployments register their own handlers alongside these; every
// handler must be idempotent because a crash after the work but before the
// completion write causes the job to run again.
package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/judgmentops/queue-be/internal/queue/domain"
	"github.com/judgmentops/queue-be/internal/worker"
)

// RegisterBuiltins wires the built-in handlers into the registry.
func RegisterBuiltins(registry *worker.Registry, logger *slog.Logger) error {
	webhook := &WebhookHandler{
		logger: logger,
		client: &http.Client{Timeout: 30 * time.Second},
	}
	if err := registry.Register("webhook.dispatch", webhook); err != nil {
		return err
	}

	if err := registry.Register("test.sleep", worker.HandlerFunc(SleepHandler)); err != nil {
		return err
	}

	return nil
}

// WebhookHandler delivers a job payload to an external HTTP endpoint.
type WebhookHandler struct {
	logger *slog.Logger
	client *http.Client
}

type webhookPayload struct {
	URL  string          `json:"url"`
	Body json.RawMessage `json:"body"`
}

// Execute posts the payload body to the target URL. Server-side failures are
// retryable; a malformed payload or client error is not worth retrying.
func (h *WebhookHandler) Execute(ctx context.Context, job *domain.Job) error {
	var payload webhookPayload
	if err := json.Unmarshal([]byte(job.Payload), &payload); err != nil {
		return fmt.Errorf("invalid webhook payload: %w", err)
	}
	if payload.URL == "" {
		return fmt.Errorf("webhook payload missing url")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, payload.URL, bytes.NewReader(payload.Body))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Job-ID", job.JobID)

	resp, err := h.client.Do(req)
	if err != nil {
		return domain.NewRetryableError(fmt.Errorf("webhook request failed: %w", err))
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode >= 500 {
		return domain.NewRetryableError(fmt.Errorf("webhook returned %d", resp.StatusCode))
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook rejected with %d", resp.StatusCode)
	}

	h.logger.Debug("Webhook delivered",
		slog.String("job_id", job.JobID),
		slog.Int("status", resp.StatusCode),
	)
	return nil
}

type sleepPayload struct {
	Duration string `json:"duration"`
}

// SleepHandler blocks for the requested duration. It exists for load and
// recovery testing: a long sleep with a killed worker is the cheapest way to
// produce a genuinely stuck job.
func SleepHandler(ctx context.Context, job *domain.Job) error {
	var payload sleepPayload
	if err := json.Unmarshal([]byte(job.Payload), &payload); err != nil {
		return fmt.Errorf("invalid sleep payload: %w", err)
	}

	d, err := time.ParseDuration(payload.Duration)
	if err != nil {
		return fmt.Errorf("invalid sleep duration %q: %w", payload.Duration, err)
	}

	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
