package pool

import (
	"sync"
	"sync/atomic"
)

// Batch is an ordered sequence of tasks submitted to the pool as one unit.
// Tasks of one batch may complete in any order; waiting on the batch only
// returns once every task has completed.
type Batch struct {
	tasks []Task
}

func NewBatch(tasks ...Task) *Batch {
	return &Batch{tasks: tasks}
}

// Add appends a task to the batch. Only valid before the batch is dispatched.
func (b *Batch) Add(t Task) {
	b.tasks = append(b.tasks, t)
}

func (b *Batch) Len() int {
	return len(b.tasks)
}

// Handle tracks completion of one dispatched batch.
type Handle struct {
	pending atomic.Int64
	done    chan struct{}

	mu  sync.Mutex
	err error
}

func newHandle(n int) *Handle {
	h := &Handle{done: make(chan struct{})}
	h.pending.Store(int64(n))
	if n == 0 {
		close(h.done)
	}
	return h
}

// Wait blocks until every task in the batch has completed and returns the
// first task error, if any.
func (h *Handle) Wait() error {
	<-h.done
	return h.Err()
}

// Done is closed once every task in the batch has completed.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Err returns the first task error recorded so far.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

func (h *Handle) taskDone(err error) {
	if err != nil {
		h.mu.Lock()
		if h.err == nil {
			h.err = err
		}
		h.mu.Unlock()
	}

	if h.pending.Add(-1) == 0 {
		close(h.done)
	}
}

// item is what actually travels to a worker: a task plus the handle of the
// batch it belongs to.
type item struct {
	task   Task
	handle *Handle
}
