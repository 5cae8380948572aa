package pool

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/eapache/queue"
)

// Options configure a WorkerPool.
type Options struct {
	// Workers is the number of pool workers. Defaults to 1.
	Workers int

	// QueueDepth is the capacity of the worker feed channel. Defaults to 64.
	QueueDepth int

	Logger *slog.Logger

	// Metrics are optional; nil disables instrumentation.
	Metrics *Metrics

	// Caps override the default parallel-build capabilities; nil keeps
	// them. DetectCapabilities resolves them from the host instead.
	Caps *Capabilities

	// Spawn starts a pool goroutine. The default always succeeds; tests
	// substitute it to count spawns or to fail worker creation.
	Spawn func(run func()) error

	// ProcessID reports the identity of the current process. The default
	// is os.Getpid; tests substitute it to simulate a fork in-process.
	ProcessID func() int
}

// WorkerPool owns a set of long-lived workers executing batches of tasks.
//
// The pool is built to survive a POSIX fork: in a forked child only the
// calling thread exists, yet the state flag inherited from the parent still
// claims the pool is ready. Every dispatch entry point therefore re-checks
// liveness and silently rebuilds the pool before enqueuing anything. The
// parent keeps its workers and is unaffected.
type WorkerPool struct {
	// mu serializes initialize/shutdown transitions
	mu sync.Mutex

	// state is one of StateUninitialized, StateReady; accessed atomically
	state int32

	// ownerPID is the process that spawned the current workers
	ownerPID atomic.Int64

	// backlogMu guards backlog and kick
	backlogMu sync.Mutex
	backlog   *queue.Queue
	kick      chan struct{}

	// quit tells the current feeder to drain and stop
	quit chan struct{}

	// wg joins the current generation of workers and feeder
	wg *sync.WaitGroup

	workers int
	caps    Capabilities
	opts    Options
	log     *slog.Logger
	metrics *Metrics

	// skipLivenessCheck disables the dispatch-time owner check; only used
	// from tests to demonstrate what breaks without it
	skipLivenessCheck bool
}

var _ Pool = (*WorkerPool)(nil)

func NewWorkerPool(opts Options) *WorkerPool {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.QueueDepth <= 0 {
		opts.QueueDepth = 64
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(os.Stdout, nil))
	}
	if opts.Spawn == nil {
		opts.Spawn = func(run func()) error {
			go run()
			return nil
		}
	}
	if opts.ProcessID == nil {
		opts.ProcessID = defaultProcessID
	}

	// a pool constructed directly is the parallel build; serial and
	// detected configurations come in through Caps
	caps := Capabilities{Parallel: true}
	if opts.Caps != nil {
		caps = *opts.Caps
	}

	return &WorkerPool{
		workers: opts.Workers,
		caps:    caps,
		opts:    opts,
		log:     opts.Logger,
		metrics: opts.Metrics,
		backlog: queue.New(),
		kick:    make(chan struct{}, 1),
		wg:      &sync.WaitGroup{},
	}
}

// Initialize spawns the workers and feeder and marks the pool ready. It is
// idempotent: when the pool is already live in this process it returns
// immediately. When the state flag is ready but the owner process differs
// (this process is a forked child), the inherited workers do not exist in
// this address space; they are dropped without joining and a fresh set is
// spawned.
func (p *WorkerPool) Initialize() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.initLocked()
}

func (p *WorkerPool) initLocked() error {
	if p.live() {
		return nil
	}

	pid := p.opts.ProcessID()

	if !p.caps.Parallel {
		// serial build: the pool is "ready" with zero workers and every
		// dispatch runs inline on the caller
		p.ownerPID.Store(int64(pid))
		p.storeState(StateReady)
		return nil
	}

	p.log.Info("initializing worker pool", "workers", p.workers, "pid", pid)

	feedCh := make(chan item, p.opts.QueueDepth)
	quit := make(chan struct{})
	kick := make(chan struct{}, 1)
	wg := &sync.WaitGroup{}

	p.backlogMu.Lock()
	p.backlog = queue.New()
	p.kick = kick
	p.backlogMu.Unlock()

	for i := 0; i < p.workers; i++ {
		w := newWorker(fmt.Sprintf("worker_%d", i+1), feedCh, p.log, p.metrics)
		wg.Add(1)
		if err := p.opts.Spawn(func() {
			defer wg.Done()
			w.run()
		}); err != nil {
			wg.Done()

			// tear down the workers that did start; the pool stays
			// uninitialized and the failure goes to the caller
			close(quit)
			close(feedCh)
			wg.Wait()
			p.storeState(StateUninitialized)
			return fmt.Errorf("%w: worker %d: %v", ErrSpawnWorker, i+1, err)
		}
	}

	wg.Add(1)
	if err := p.opts.Spawn(func() {
		defer wg.Done()
		p.feed(feedCh, kick, quit)
	}); err != nil {
		wg.Done()
		close(feedCh)
		wg.Wait()
		p.storeState(StateUninitialized)
		return fmt.Errorf("%w: feeder: %v", ErrSpawnWorker, err)
	}

	p.quit = quit
	p.wg = wg
	p.ownerPID.Store(int64(pid))
	p.storeState(StateReady)

	if p.metrics != nil {
		p.metrics.LiveWorkers.Set(float64(p.workers))
		p.metrics.PoolInits.Inc()
	}

	return nil
}

// ensureReady is the guard on every dispatch entry point: never trust that
// a ready flag means live workers, cheaply verify and lazily rebuild. The
// post-fork single-thread case makes the rebuild trivially race-free; at
// normal startup the mutex serializes concurrent dispatchers.
func (p *WorkerPool) ensureReady() error {
	if p.live() {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.initLocked()
}

// Dispatch submits a batch and blocks until every task in it has completed
// or ctx is cancelled. Tasks of the batch may complete in any order.
func (p *WorkerPool) Dispatch(ctx context.Context, batch *Batch) error {
	h, err := p.DispatchAsync(ctx, batch)
	if err != nil {
		return err
	}

	select {
	case <-h.Done():
		return h.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// DispatchAsync submits a batch and returns a Handle immediately.
func (p *WorkerPool) DispatchAsync(ctx context.Context, batch *Batch) (*Handle, error) {
	if err := p.ensureReady(); err != nil {
		return nil, err
	}

	h := newHandle(batch.Len())

	if p.metrics != nil {
		p.metrics.TasksSubmitted.Add(float64(batch.Len()))
	}

	if !p.caps.Parallel {
		p.runInline(ctx, batch, h)
		return h, nil
	}

	items := make([]item, 0, batch.Len())
	for _, t := range batch.tasks {
		items = append(items, item{task: t, handle: h})
	}
	p.enqueue(items)

	return h, nil
}

// runInline executes a batch on the calling goroutine, the serial fallback
// for builds without parallelism.
func (p *WorkerPool) runInline(ctx context.Context, batch *Batch, h *Handle) {
	for _, t := range batch.tasks {
		if err := ctx.Err(); err != nil {
			h.taskDone(err)
			continue
		}

		err := execute(t)
		if err != nil {
			t.OnFailure(err)
			if p.metrics != nil {
				p.metrics.TasksFailed.Inc()
			}
		} else if p.metrics != nil {
			p.metrics.TasksCompleted.Inc()
		}
		h.taskDone(err)
	}
}

// Invalidate marks the pool as not live so the next dispatch rebuilds it.
// This is the proactive half of fork handling, called from a fork
// notification in the child; the lazy check in ensureReady is the half
// that works everywhere.
func (p *WorkerPool) Invalidate() {
	p.storeState(StateUninitialized)
}

// Shutdown drains queued work, joins the current workers and feeder and
// leaves the pool uninitialized. Calling it in a forked child that never
// dispatched is a no-op: there is nothing alive to join there.
func (p *WorkerPool) Shutdown() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.live() {
		p.storeState(StateUninitialized)
		return
	}

	p.storeState(StateUninitialized)

	if !p.caps.Parallel {
		return
	}

	p.log.Info("stopping worker pool")

	close(p.quit)
	p.wg.Wait()

	if p.metrics != nil {
		p.metrics.LiveWorkers.Set(0)
	}

	p.log.Info("worker pool has been stopped")
}

// State reports the observable pool state.
func (p *WorkerPool) State() State {
	return p.loadState()
}
