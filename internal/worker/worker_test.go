package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/judgmentops/queue-be/internal/queue/domain"
	"github.com/judgmentops/queue-be/shared/logger"
)

// fakeStore implements Store in memory with call recording.
type fakeStore struct {
	mu         sync.Mutex
	jobs       []*domain.Job
	claimErr   error
	completed  []string
	failed     map[string]failRecord
	failErr    error
	heartbeats int
	deleted    []string
}

type failRecord struct {
	msg       string
	retryable bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		failed: make(map[string]failRecord),
	}
}

func (f *fakeStore) ClaimNext(ctx context.Context, workerID string) (*domain.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.claimErr != nil {
		return nil, f.claimErr
	}
	if len(f.jobs) == 0 {
		return nil, nil
	}
	job := f.jobs[0]
	f.jobs = f.jobs[1:]
	job.Status = domain.JobStatusProcessing
	job.Attempts++
	job.LockedBy = &workerID
	return job, nil
}

func (f *fakeStore) Complete(ctx context.Context, jobID, workerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed = append(f.completed, jobID)
	return nil
}

func (f *fakeStore) Fail(ctx context.Context, jobID, workerID, jobErr string, retryable bool) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failErr != nil {
		return "", f.failErr
	}
	f.failed[jobID] = failRecord{msg: jobErr, retryable: retryable}
	if retryable {
		return domain.JobStatusPending, nil
	}
	return domain.JobStatusFailed, nil
}

func (f *fakeStore) UpsertHeartbeat(ctx context.Context, workerID, hostname string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.heartbeats++
	return nil
}

func (f *fakeStore) DeleteHeartbeat(ctx context.Context, workerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, workerID)
	return nil
}

func (f *fakeStore) completedJobs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.completed...)
}

func (f *fakeStore) failedJobs() map[string]failRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]failRecord, len(f.failed))
	for k, v := range f.failed {
		out[k] = v
	}
	return out
}

func testJob(id, jobType string) *domain.Job {
	return &domain.Job{
		JobID:       id,
		JobType:     jobType,
		Payload:     "{}",
		Status:      domain.JobStatusPending,
		MaxAttempts: 3,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
}

func newTestWorker(t *testing.T, store Store, registry *Registry) *Worker {
	t.Helper()
	return NewWorker(&Config{
		Logger:            logger.NewDefault().Logger,
		Store:             store,
		Registry:          registry,
		WorkerID:          "test-worker",
		Concurrency:       1,
		PollInterval:      10 * time.Millisecond,
		JobTimeout:        time.Second,
		HeartbeatInterval: 10 * time.Millisecond,
	})
}

// runWorker starts the worker in the background and returns the channel
// Start's result lands on.
func runWorker(t *testing.T, w *Worker) <-chan error {
	t.Helper()
	done := make(chan error, 1)
	go func() {
		done <- w.Start(context.Background())
	}()
	return done
}

func stopWorker(t *testing.T, w *Worker, done <-chan error) {
	t.Helper()
	w.Stop()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop in time")
	}
}

func TestNewWorker_GeneratesWorkerID(t *testing.T) {
	w := NewWorker(&Config{
		Logger:   logger.NewDefault().Logger,
		Store:    newFakeStore(),
		Registry: NewRegistry(),
	})

	assert.NotEmpty(t, w.WorkerID())

	w2 := NewWorker(&Config{
		Logger:   logger.NewDefault().Logger,
		Store:    newFakeStore(),
		Registry: NewRegistry(),
	})
	assert.NotEqual(t, w.WorkerID(), w2.WorkerID())
}

func TestWorker_ProcessesClaimedJobs(t *testing.T) {
	store := newFakeStore()
	store.jobs = []*domain.Job{
		testJob("job-1", "test.echo"),
		testJob("job-2", "test.echo"),
	}

	var mu sync.Mutex
	var executed []string

	registry := NewRegistry()
	err := registry.Register("test.echo", HandlerFunc(func(ctx context.Context, job *domain.Job) error {
		mu.Lock()
		defer mu.Unlock()
		executed = append(executed, job.JobID)
		return nil
	}))
	require.NoError(t, err)

	w := newTestWorker(t, store, registry)

	started := runWorker(t, w)
	require.Eventually(t, func() bool {
		return len(store.completedJobs()) == 2
	}, 2*time.Second, 10*time.Millisecond)
	stopWorker(t, w, started)

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []string{"job-1", "job-2"}, executed)
	assert.ElementsMatch(t, []string{"job-1", "job-2"}, store.completedJobs())
}

func TestWorker_RecordsHandlerFailure(t *testing.T) {
	store := newFakeStore()
	store.jobs = []*domain.Job{testJob("job-1", "test.fail")}

	registry := NewRegistry()
	err := registry.Register("test.fail", HandlerFunc(func(ctx context.Context, job *domain.Job) error {
		return errors.New("boom")
	}))
	require.NoError(t, err)

	w := newTestWorker(t, store, registry)

	started := runWorker(t, w)
	require.Eventually(t, func() bool {
		return len(store.failedJobs()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	stopWorker(t, w, started)

	failed := store.failedJobs()
	assert.Equal(t, "boom", failed["job-1"].msg)
	assert.False(t, failed["job-1"].retryable, "a plain handler error must dead-letter")
	assert.Empty(t, store.completedJobs())
}

func TestWorker_RetryableErrorIsRecycled(t *testing.T) {
	store := newFakeStore()
	store.jobs = []*domain.Job{testJob("job-1", "test.flaky")}

	registry := NewRegistry()
	err := registry.Register("test.flaky", HandlerFunc(func(ctx context.Context, job *domain.Job) error {
		return domain.NewRetryableError(errors.New("upstream 503"))
	}))
	require.NoError(t, err)

	w := newTestWorker(t, store, registry)

	started := runWorker(t, w)
	require.Eventually(t, func() bool {
		return len(store.failedJobs()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	stopWorker(t, w, started)

	failed := store.failedJobs()
	assert.True(t, failed["job-1"].retryable)
	assert.Contains(t, failed["job-1"].msg, "upstream 503")
}

func TestWorker_TimedOutJobIsRecycled(t *testing.T) {
	store := newFakeStore()
	store.jobs = []*domain.Job{testJob("job-1", "test.slow")}

	registry := NewRegistry()
	err := registry.Register("test.slow", HandlerFunc(func(ctx context.Context, job *domain.Job) error {
		<-ctx.Done()
		return ctx.Err()
	}))
	require.NoError(t, err)

	w := NewWorker(&Config{
		Logger:            logger.NewDefault().Logger,
		Store:             store,
		Registry:          registry,
		WorkerID:          "test-worker",
		Concurrency:       1,
		PollInterval:      10 * time.Millisecond,
		JobTimeout:        20 * time.Millisecond,
		HeartbeatInterval: 10 * time.Millisecond,
	})

	started := runWorker(t, w)
	require.Eventually(t, func() bool {
		return len(store.failedJobs()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	stopWorker(t, w, started)

	failed := store.failedJobs()
	assert.True(t, failed["job-1"].retryable, "a timeout is transient and must not dead-letter")
}

func TestWorker_PanickingHandlerIsFailureNotCrash(t *testing.T) {
	store := newFakeStore()
	store.jobs = []*domain.Job{testJob("job-1", "test.panic")}

	registry := NewRegistry()
	err := registry.Register("test.panic", HandlerFunc(func(ctx context.Context, job *domain.Job) error {
		panic("handler exploded")
	}))
	require.NoError(t, err)

	w := newTestWorker(t, store, registry)

	started := runWorker(t, w)
	require.Eventually(t, func() bool {
		return len(store.failedJobs()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	stopWorker(t, w, started)

	failed := store.failedJobs()
	assert.Contains(t, failed["job-1"].msg, "handler panicked")
	assert.True(t, failed["job-1"].retryable, "a panic is transient, like a worker crash")
}

func TestWorker_UnregisteredJobTypeFails(t *testing.T) {
	store := newFakeStore()
	store.jobs = []*domain.Job{testJob("job-1", "test.unknown")}

	w := newTestWorker(t, store, NewRegistry())

	started := runWorker(t, w)
	require.Eventually(t, func() bool {
		return len(store.failedJobs()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	stopWorker(t, w, started)

	failed := store.failedJobs()
	assert.Contains(t, failed["job-1"].msg, "no handler registered")
	assert.False(t, failed["job-1"].retryable)
}

func TestWorker_StopRemovesHeartbeat(t *testing.T) {
	store := newFakeStore()
	w := newTestWorker(t, store, NewRegistry())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	require.NoError(t, w.Start(ctx))
	w.Stop()

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.GreaterOrEqual(t, store.heartbeats, 1, "startup heartbeat must be written")
	assert.Contains(t, store.deleted, "test-worker")
}

func TestWorker_ClaimErrorBacksOff(t *testing.T) {
	store := newFakeStore()
	store.claimErr = fmt.Errorf("connection refused")

	w := newTestWorker(t, store, NewRegistry())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	// Must return cleanly despite the store being down the whole time.
	require.NoError(t, w.Start(ctx))
	w.Stop()

	assert.Empty(t, store.completedJobs())
	assert.Empty(t, store.failedJobs())
}
