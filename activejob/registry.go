package activejob

import (
	"context"
	"fmt"
	"sync"
)

// Handler executes one decoded job. A returned error fails the batch and
// feeds the topic's retry budget.
type Handler func(ctx context.Context, job Job) error

// UnknownJobError reports an envelope naming a job with no registered
// handler.
type UnknownJobError struct {
	Job string
}

func (e UnknownJobError) Error() string {
	return fmt.Sprintf("no handler registered for job %q", e.Job)
}

// Registry maps job names to handlers. Registration normally happens during
// boot, but the registry is safe for concurrent use so handlers can be added
// while consumers run.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register binds a handler to a job name. Registering the same name twice
// replaces the previous handler.
func (r *Registry) Register(name string, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.handlers[name] = handler
}

func (r *Registry) Handler(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	handler, ok := r.handlers[name]
	return handler, ok
}

func (r *Registry) Dispatch(ctx context.Context, job Job) error {
	handler, ok := r.Handler(job.Name)
	if !ok {
		return UnknownJobError{Job: job.Name}
	}

	return handler(ctx, job)
}
