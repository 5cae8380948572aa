// Package kernpool runs parallel numeric kernels on a process-wide worker
// pool that survives POSIX forks: every dispatch re-checks that the pool's
// workers actually exist in this process and lazily rebuilds them when a
// fork has made the inherited pool state a lie.
package kernpool

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/jirevwe/kernpool/journal"
	"github.com/jirevwe/kernpool/kernel"
	"github.com/jirevwe/kernpool/packer"
	"github.com/jirevwe/kernpool/pool"
	"github.com/oklog/ulid/v2"
)

// Runtime is the shell tying the pool, the kernel registry and the
// dispatch journal together.
type Runtime struct {
	pool    *pool.WorkerPool
	mux     *kernel.Mux
	journal journal.Journal
	logger  *slog.Logger
	caps    pool.Capabilities
	workers int
}

func New(cfg *Config) (*Runtime, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(os.Stdout, nil))
	}

	if cfg.Mux == nil {
		cfg.Mux = kernel.NewMux()
	}

	if cfg.Journal == nil && cfg.JournalPath != "" {
		j, err := journal.NewSqlite(cfg.JournalPath, cfg.Logger)
		if err != nil {
			return nil, fmt.Errorf("opening journal: %w", err)
		}
		cfg.Journal = j
	}

	caps := pool.DetectCapabilities()
	if cfg.Parallel != nil {
		caps.Parallel = *cfg.Parallel
	}
	caps.ForkNotify = cfg.ForkNotify

	var metrics *pool.Metrics
	if cfg.MetricsNamespace != "" {
		metrics = pool.NewMetrics(cfg.MetricsNamespace, "pool")
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}

	r := &Runtime{
		mux:     cfg.Mux,
		journal: cfg.Journal,
		logger:  cfg.Logger,
		caps:    caps,
		workers: workers,
		pool: pool.NewWorkerPool(pool.Options{
			Workers:    workers,
			QueueDepth: cfg.QueueDepth,
			Logger:     cfg.Logger,
			Metrics:    metrics,
			Caps:       &caps,
		}),
	}

	// built-in kernels
	r.mux.Handle(kernel.MatMul, kernel.MatMulHandler())

	return r, nil
}

// RegisterKernel registers a handler under a kernel name.
func (r *Runtime) RegisterKernel(name string, h kernel.Handler) {
	r.mux.Handle(name, h)
}

// Exec dispatches a batch of jobs and blocks until every job has completed
// (or ctx is cancelled). The journal, when configured, records the batch
// through its whole lifecycle before Exec returns.
func (r *Runtime) Exec(ctx context.Context, jobs []*kernel.Job) error {
	batchID, err := r.recordBatch(ctx, jobs)
	if err != nil {
		return err
	}

	err = r.pool.Dispatch(ctx, r.buildBatch(ctx, jobs))
	r.finalizeBatch(ctx, batchID, err)
	return err
}

// Submit dispatches a batch of jobs and returns immediately; completion is
// reported through the returned handle. The journal entry is finalized in
// the background once the batch completes.
func (r *Runtime) Submit(ctx context.Context, jobs []*kernel.Job) (*pool.Handle, error) {
	batchID, err := r.recordBatch(ctx, jobs)
	if err != nil {
		return nil, err
	}

	h, err := r.pool.DispatchAsync(ctx, r.buildBatch(ctx, jobs))
	if err != nil {
		r.finalizeBatch(ctx, batchID, err)
		return nil, err
	}

	if batchID != "" {
		go func() {
			r.finalizeBatch(context.Background(), batchID, h.Wait())
		}()
	}

	return h, nil
}

// MatMul computes C = A×B, splitting the result rows across the pool.
func (r *Runtime) MatMul(ctx context.Context, a, b *kernel.Matrix) (*kernel.Matrix, error) {
	if a.Cols != b.Rows {
		return nil, kernel.ErrDimensionMismatch
	}

	c := kernel.NewMatrix(a.Rows, b.Cols)
	if err := r.Exec(ctx, kernel.MulJobs(a, b, c, r.workers)); err != nil {
		return nil, err
	}
	return c, nil
}

// ForkHandler returns the hook an embedding application wires into its
// fork notification, to be called in the child before any dispatch. It is
// nil when the fork-notify capability is off; the dispatch-time liveness
// check covers that case.
func (r *Runtime) ForkHandler() func() {
	if !r.caps.ForkNotify {
		return nil
	}
	return r.pool.Invalidate
}

// Journal exposes the dispatch journal; nil when journaling is off.
func (r *Runtime) Journal() journal.Journal {
	return r.journal
}

// Close shuts the pool down and closes the journal.
func (r *Runtime) Close() error {
	r.pool.Shutdown()
	if r.journal != nil {
		return r.journal.Close()
	}
	return nil
}

// kernelTask adapts one job to the pool's task contract.
type kernelTask struct {
	ctx    context.Context
	job    *kernel.Job
	mux    *kernel.Mux
	logger *slog.Logger
}

func (t *kernelTask) Execute() error {
	return t.mux.Run(t.ctx, t.job)
}

func (t *kernelTask) OnFailure(err error) {
	t.logger.Error("kernel failed", "kernel", t.job.Kernel(), "id", t.job.ID(), "error", err.Error())
}

func (r *Runtime) buildBatch(ctx context.Context, jobs []*kernel.Job) *pool.Batch {
	batch := pool.NewBatch()
	for _, job := range jobs {
		batch.Add(&kernelTask{ctx: ctx, job: job, mux: r.mux, logger: r.logger})
	}
	return batch
}

// jobSummary is what lands in the journal for each job; kernel arguments
// hold live matrices and are not persisted.
type jobSummary struct {
	ID     string `msgpack:"id"`
	Kernel string `msgpack:"kernel"`
}

func (r *Runtime) recordBatch(ctx context.Context, jobs []*kernel.Job) (string, error) {
	if r.journal == nil || len(jobs) == 0 {
		return "", nil
	}

	summaries := make([]jobSummary, 0, len(jobs))
	for _, job := range jobs {
		summaries = append(summaries, jobSummary{ID: job.ID(), Kernel: job.Kernel()})
	}

	raw, err := packer.Encode(summaries)
	if err != nil {
		return "", fmt.Errorf("encoding batch: %w", err)
	}

	id := ulid.Make().String()
	err = r.journal.RecordBatch(ctx, &journal.BatchRecord{
		ID:     id,
		Kernel: jobs[0].Kernel(),
		Jobs:   raw,
		Pid:    int64(os.Getpid()),
	})
	if err != nil {
		return "", fmt.Errorf("journaling batch: %w", err)
	}

	if _, err = r.journal.UpdateStatus(ctx, id, journal.StatusActive); err != nil {
		r.logger.Error("marking batch active", "batch", id, "error", err.Error())
	}

	return id, nil
}

// finalizeBatch moves the journal entry to its terminal status and out of
// the live table. Journal trouble is logged, never propagated: the
// computation itself already succeeded or failed on its own terms.
func (r *Runtime) finalizeBatch(ctx context.Context, batchID string, dispatchErr error) {
	if r.journal == nil || batchID == "" {
		return
	}

	status := journal.StatusCompleted
	if dispatchErr != nil {
		status = journal.StatusFailed
	}

	if _, err := r.journal.UpdateStatus(ctx, batchID, status); err != nil {
		r.logger.Error("finalizing batch", "batch", batchID, "error", err.Error())
		return
	}

	if err := r.journal.ArchiveBatch(ctx, batchID); err != nil {
		r.logger.Error("archiving batch", "batch", batchID, "error", err.Error())
	}
}
