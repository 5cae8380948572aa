package kernel

import (
	"context"
	"fmt"
	"sync"
)

// Mux maps kernel names to handlers.
type Mux struct {
	entries map[string]muxEntry
	mu      *sync.RWMutex
}

type muxEntry struct {
	h    Handler
	name string
}

func NewMux() *Mux {
	return &Mux{
		entries: make(map[string]muxEntry),
		mu:      &sync.RWMutex{},
	}
}

// Handle registers a handler under a kernel name.
func (m *Mux) Handle(name string, h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[name] = muxEntry{
		h:    h,
		name: name,
	}
}

// match finds a handler in entries given a kernel name.
func (m *Mux) match(name string) (h Handler) {
	// only check for exact match for now
	v, ok := m.entries[name]
	if ok {
		return v.h
	}

	return nil
}

// Run dispatches the job to the handler registered for its kernel.
func (m *Mux) Run(ctx context.Context, job *Job) error {
	h := m.Handler(job)
	return h.Run(ctx, job)
}

// Handler returns the handler to use for the given job.
// It always returns a non-nil handler.
//
// If no registered handler applies to the job, Handler returns a
// 'not found' handler which returns an error.
func (m *Mux) Handler(j *Job) (h Handler) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	h = m.match(j.Kernel())
	if h == nil {
		h = NotFoundHandler()
	}

	return h
}

// NotFound returns an error indicating that no handler is registered for
// the job's kernel.
func NotFound(ctx context.Context, job *Job) error {
	return fmt.Errorf("no kernel registered for %q", job.Kernel())
}

// NotFoundHandler returns a simple handler that returns a "not found" error.
func NotFoundHandler() Handler { return HandlerFunc(NotFound) }
