package jobs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/judgmentops/queue-be/internal/queue/domain"
	"github.com/judgmentops/queue-be/internal/worker"
	"github.com/judgmentops/queue-be/shared/logger"
)

func webhookJob(payload string) *domain.Job {
	return &domain.Job{
		JobID:   "job-1",
		JobType: "webhook.dispatch",
		Payload: payload,
	}
}

func newWebhookHandler() *WebhookHandler {
	return &WebhookHandler{
		logger: logger.NewDefault().Logger,
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

func TestWebhookHandler_DeliversPayload(t *testing.T) {
	var gotJobID, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotJobID = r.Header.Get("X-Job-ID")
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	payload := fmt.Sprintf(`{"url":%q,"body":{"hello":"world"}}`, srv.URL)
	err := newWebhookHandler().Execute(context.Background(), webhookJob(payload))
	require.NoError(t, err)
	assert.Equal(t, "job-1", gotJobID)
	assert.JSONEq(t, `{"hello":"world"}`, gotBody)
}

func TestWebhookHandler_ServerErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	payload := fmt.Sprintf(`{"url":%q,"body":{}}`, srv.URL)
	err := newWebhookHandler().Execute(context.Background(), webhookJob(payload))
	require.Error(t, err)

	var retryable *domain.RetryableError
	assert.True(t, errors.As(err, &retryable))
}

func TestWebhookHandler_ClientErrorIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	payload := fmt.Sprintf(`{"url":%q,"body":{}}`, srv.URL)
	err := newWebhookHandler().Execute(context.Background(), webhookJob(payload))
	require.Error(t, err)

	var retryable *domain.RetryableError
	assert.False(t, errors.As(err, &retryable))
}

func TestWebhookHandler_ConnectionRefusedIsRetryable(t *testing.T) {
	// Bind a port, then close it so the dial fails fast.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	payload := fmt.Sprintf(`{"url":%q,"body":{}}`, url)
	err := newWebhookHandler().Execute(context.Background(), webhookJob(payload))
	require.Error(t, err)

	var retryable *domain.RetryableError
	assert.True(t, errors.As(err, &retryable))
}

func TestWebhookHandler_RejectsBadPayload(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{name: "malformed json", payload: `{not json`},
		{name: "missing url", payload: `{"body":{}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := newWebhookHandler().Execute(context.Background(), webhookJob(tt.payload))
			require.Error(t, err)

			var retryable *domain.RetryableError
			assert.False(t, errors.As(err, &retryable))
		})
	}
}

func TestSleepHandler(t *testing.T) {
	job := &domain.Job{JobID: "job-1", JobType: "test.sleep", Payload: `{"duration":"1ms"}`}
	require.NoError(t, SleepHandler(context.Background(), job))

	job.Payload = `{"duration":"bogus"}`
	require.Error(t, SleepHandler(context.Background(), job))
}

func TestSleepHandler_StopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	job := &domain.Job{JobID: "job-1", JobType: "test.sleep", Payload: `{"duration":"10s"}`}
	err := SleepHandler(ctx, job)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRegisterBuiltins(t *testing.T) {
	registry := worker.NewRegistry()
	require.NoError(t, RegisterBuiltins(registry, logger.NewDefault().Logger))

	assert.ElementsMatch(t, []string{"webhook.dispatch", "test.sleep"}, registry.Types())

	// Registering twice must fail on the duplicate names.
	require.Error(t, RegisterBuiltins(registry, logger.NewDefault().Logger))
}
