package pool

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// forkedPool builds a pool whose process identity is under test control;
// bumping the fake pid simulates what a forked child observes: a ready
// flag inherited from the parent with no live workers behind it.
func forkedPool(t *testing.T, workers int, pid *atomic.Int64, spawns *atomic.Int64) *WorkerPool {
	t.Helper()
	return NewWorkerPool(Options{
		Workers:   workers,
		Logger:    slogger,
		Spawn:     countingSpawn(spawns),
		ProcessID: func() int { return int(pid.Load()) },
	})
}

func TestWorkerPool_LazyReinitAfterFork(t *testing.T) {
	var pid, spawns atomic.Int64
	pid.Store(100)

	p := forkedPool(t, 3, &pid, &spawns)
	defer p.Shutdown()

	var count atomic.Int64
	inc := func() error { count.Add(1); return nil }

	require.NoError(t, p.Dispatch(context.Background(), NewBatch(newTestTask(inc))))
	require.Equal(t, int64(4), spawns.Load()) // 3 workers + feeder

	// "fork": same state flag, different process
	pid.Store(101)
	require.Equal(t, StateReady, p.State(), "the inherited flag still claims ready")

	// dispatch must heal silently, not error, and the work must run
	require.NoError(t, p.Dispatch(context.Background(), NewBatch(newTestTask(inc))))
	require.Equal(t, int64(2), count.Load())
	require.Equal(t, int64(8), spawns.Load(), "a fresh worker generation must be spawned")
}

func TestWorkerPool_GrandchildReinitializes(t *testing.T) {
	var pid, spawns atomic.Int64
	pid.Store(100)

	p := forkedPool(t, 2, &pid, &spawns)
	defer p.Shutdown()

	var count atomic.Int64
	inc := func() error { count.Add(1); return nil }

	// parent, child, grandchild: the guard is re-evaluated per process,
	// not a one-shot flag
	for gen := 0; gen < 3; gen++ {
		pid.Store(int64(100 + gen))
		require.NoError(t, p.Dispatch(context.Background(), NewBatch(newTestTask(inc))))
	}

	require.Equal(t, int64(3), count.Load())
	require.Equal(t, int64(9), spawns.Load(), "each process generation spawns its own pool")
}

func TestWorkerPool_InvalidateForcesRebuild(t *testing.T) {
	var pid, spawns atomic.Int64
	pid.Store(100)

	p := forkedPool(t, 2, &pid, &spawns)
	defer p.Shutdown()

	require.NoError(t, p.Initialize())
	require.Equal(t, int64(3), spawns.Load())

	// the proactive fork-notification path
	p.Invalidate()
	require.Equal(t, StateUninitialized, p.State())

	require.NoError(t, p.Dispatch(context.Background(), NewBatch(newTestTask(nil))))
	require.Equal(t, int64(6), spawns.Load())
}

func TestWorkerPool_StaleReadyFlag(t *testing.T) {
	// Recreate the exact post-fork hazard in-process: workers are gone but
	// the state flag still says ready. With the dispatch-time check the
	// pool heals; without it the dispatch is accepted and then sits in the
	// backlog forever. The second half is the regression indicator that
	// the check is present and doing the work.

	t.Run("guarded dispatch heals", func(t *testing.T) {
		var pid, spawns atomic.Int64
		pid.Store(100)

		p := forkedPool(t, 2, &pid, &spawns)
		defer p.Shutdown()

		require.NoError(t, p.Initialize())
		p.Shutdown()
		p.storeState(StateReady) // forge the inherited flag
		pid.Store(101)

		done := false
		require.NoError(t, p.Dispatch(context.Background(), NewBatch(newTestTask(func() error {
			done = true
			return nil
		}))))
		require.True(t, done)
	})

	t.Run("unguarded dispatch hangs", func(t *testing.T) {
		var pid, spawns atomic.Int64
		pid.Store(100)

		p := forkedPool(t, 2, &pid, &spawns)

		require.NoError(t, p.Initialize())
		p.Shutdown()
		p.storeState(StateReady)
		pid.Store(101)

		p.skipLivenessCheck = true
		h, err := p.DispatchAsync(context.Background(), NewBatch(newTestTask(nil)))
		require.NoError(t, err, "the stale flag is trusted, submission is accepted")

		select {
		case <-h.Done():
			t.Fatal("batch completed although no workers exist")
		case <-time.After(200 * time.Millisecond):
			// hung, as the missing check predicts
		}
	})
}
