package worker

import (
	"context"
	"fmt"
	"sync"

	"github.com/judgmentops/queue-be/internal/queue/domain"
)

// Handler executes the business logic for one job type. Handlers must be
// idempotent or tolerate re-execution: a job may be claimed, partially
// executed, abandoned by a crash, and re-claimed by another worker. The
// queue provides at-least-once execution, not exactly-once.
type Handler interface {
	Execute(ctx context.Context, job *domain.Job) error
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(ctx context.Context, job *domain.Job) error

func (f HandlerFunc) Execute(ctx context.Context, job *domain.Job) error {
	return f(ctx, job)
}

// Registry maps job_type to its handler. The queue core never inspects
// payload contents; dispatching by type tag is the only coupling between the
// queue and the business logic it runs.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register binds a handler to a job type. Registering the same type twice is
// a programming error.
func (r *Registry) Register(jobType string, h Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[jobType]; exists {
		return fmt.Errorf("handler already registered for job type %q", jobType)
	}
	r.handlers[jobType] = h
	return nil
}

// Resolve returns the handler for a job type, if one is registered.
func (r *Registry) Resolve(jobType string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.handlers[jobType]
	return h, ok
}

// Types returns the registered job types, for startup logging.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	return types
}
