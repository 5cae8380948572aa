package pool

import (
	"context"
	"errors"
)

var (
	// ErrSpawnWorker is returned when a worker could not be started during
	// pool initialization. The pool stays uninitialized; retry, if wanted,
	// is the caller's job.
	ErrSpawnWorker = errors.New("spawning pool worker failed")
)

// Task is a unit of work executed on a pool worker.
type Task interface {
	// Execute performs the work
	Execute() error

	// OnFailure handles any error returned from Execute()
	OnFailure(error)
}

type Pool interface {
	// Initialize gets the worker pool ready to process work. It is
	// idempotent: when the pool is already live in this process the call
	// returns immediately with no side effect.
	Initialize() error

	// Dispatch submits a batch and blocks until every task in it has
	// completed (or ctx is cancelled). The pool is lazily initialized
	// first if it is not live.
	Dispatch(ctx context.Context, batch *Batch) error

	// DispatchAsync submits a batch and returns immediately; the returned
	// Handle reports completion. Same lazy-initialization contract as
	// Dispatch.
	DispatchAsync(ctx context.Context, batch *Batch) (*Handle, error)

	// Invalidate marks the pool as not live so the next dispatch rebuilds
	// it. Meant to be wired into a fork notification in the child process;
	// the dispatch-time liveness check works without it.
	Invalidate()

	// Shutdown drains queued work, joins all workers and leaves the pool
	// uninitialized. A later dispatch revives it.
	Shutdown()
}
