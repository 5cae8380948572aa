package kernpool

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jirevwe/kernpool/journal"
	"github.com/jirevwe/kernpool/kernel"
	"github.com/stretchr/testify/require"
)

var slogger = slog.New(slog.NewTextHandler(os.Stdout, nil))

func TestRuntime_MatMulMatchesSerial(t *testing.T) {
	rt, err := New(&Config{Workers: 4, Logger: slogger})
	require.NoError(t, err)
	defer rt.Close()

	a := kernel.RandomMatrix(64, 48, 1)
	b := kernel.RandomMatrix(48, 80, 2)

	got, err := rt.MatMul(context.Background(), a, b)
	require.NoError(t, err)

	want, err := kernel.Mul(a, b)
	require.NoError(t, err)
	require.True(t, got.EqualWithin(want, 1e-9))
}

func TestRuntime_MatMulDimensionMismatch(t *testing.T) {
	rt, err := New(&Config{Workers: 2, Logger: slogger})
	require.NoError(t, err)
	defer rt.Close()

	_, err = rt.MatMul(context.Background(),
		kernel.NewMatrix(4, 4), kernel.NewMatrix(5, 5))
	require.ErrorIs(t, err, kernel.ErrDimensionMismatch)
}

func TestRuntime_ExecJournalsBatch(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "kernpool.db")
	rt, err := New(&Config{Workers: 2, Logger: slogger, JournalPath: dbPath})
	require.NoError(t, err)
	defer rt.Close()

	a := kernel.RandomMatrix(16, 16, 5)
	b := kernel.RandomMatrix(16, 16, 6)
	c := kernel.NewMatrix(16, 16)
	require.NoError(t, rt.Exec(context.Background(), kernel.MulJobs(a, b, c, 2)))

	archived, err := rt.Journal().ListArchived(context.Background())
	require.NoError(t, err)
	require.Len(t, archived, 1)
	require.Equal(t, kernel.MatMul, archived[0].Kernel)
	require.Equal(t, string(journal.StatusCompleted), archived[0].Status)
	require.Equal(t, int64(os.Getpid()), archived[0].Pid)
}

func TestRuntime_FailedBatchJournalledAsFailed(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "kernpool.db")
	rt, err := New(&Config{Workers: 2, Logger: slogger, JournalPath: dbPath})
	require.NoError(t, err)
	defer rt.Close()

	boom := errors.New("boom")
	rt.RegisterKernel("exploding", kernel.HandlerFunc(func(ctx context.Context, job *kernel.Job) error {
		return boom
	}))

	err = rt.Exec(context.Background(), []*kernel.Job{kernel.NewJob("exploding", nil)})
	require.ErrorIs(t, err, boom)

	archived, err := rt.Journal().ListArchived(context.Background())
	require.NoError(t, err)
	require.Len(t, archived, 1)
	require.Equal(t, string(journal.StatusFailed), archived[0].Status)
}

func TestRuntime_SubmitReturnsImmediately(t *testing.T) {
	rt, err := New(&Config{Workers: 2, Logger: slogger})
	require.NoError(t, err)
	defer rt.Close()

	release := make(chan struct{})
	rt.RegisterKernel("blocked", kernel.HandlerFunc(func(ctx context.Context, job *kernel.Job) error {
		<-release
		return nil
	}))

	h, err := rt.Submit(context.Background(), []*kernel.Job{kernel.NewJob("blocked", nil)})
	require.NoError(t, err)

	select {
	case <-h.Done():
		t.Fatal("batch completed before the kernel was released")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	require.NoError(t, h.Wait())
}

func TestRuntime_UnknownKernelFails(t *testing.T) {
	rt, err := New(&Config{Workers: 2, Logger: slogger})
	require.NoError(t, err)
	defer rt.Close()

	err = rt.Exec(context.Background(), []*kernel.Job{kernel.NewJob("no-such-kernel", nil)})
	require.Error(t, err)
	require.Contains(t, err.Error(), "no-such-kernel")
}

func TestRuntime_ForkHandler(t *testing.T) {
	rt, err := New(&Config{Workers: 2, Logger: slogger, ForkNotify: true})
	require.NoError(t, err)
	defer rt.Close()

	a := kernel.RandomMatrix(8, 8, 1)
	b := kernel.RandomMatrix(8, 8, 2)
	_, err = rt.MatMul(context.Background(), a, b)
	require.NoError(t, err)

	hook := rt.ForkHandler()
	require.NotNil(t, hook)
	hook()

	// after the notification the pool rebuilds on the next dispatch
	_, err = rt.MatMul(context.Background(), a, b)
	require.NoError(t, err)
}

func TestRuntime_ForkHandlerNilWithoutCapability(t *testing.T) {
	rt, err := New(&Config{Workers: 2, Logger: slogger})
	require.NoError(t, err)
	defer rt.Close()

	require.Nil(t, rt.ForkHandler())
}

func TestRuntime_SerialBuild(t *testing.T) {
	serial := false
	rt, err := New(&Config{Workers: 4, Logger: slogger, Parallel: &serial})
	require.NoError(t, err)
	defer rt.Close()

	a := kernel.RandomMatrix(32, 32, 9)
	b := kernel.RandomMatrix(32, 32, 10)

	got, err := rt.MatMul(context.Background(), a, b)
	require.NoError(t, err)

	want, err := kernel.Mul(a, b)
	require.NoError(t, err)
	require.True(t, got.EqualWithin(want, 1e-9))
}

func TestRetry_ReturnsLastError(t *testing.T) {
	boom := errors.New("boom")
	calls := 0

	err := NewRetry(3, time.Millisecond, func() error {
		calls++
		return boom
	}).Do()
	require.ErrorIs(t, err, boom)
	require.Equal(t, 3, calls)

	calls = 0
	err = NewRetry(3, time.Millisecond, func() error {
		calls++
		if calls < 2 {
			return boom
		}
		return nil
	}).Do()
	require.NoError(t, err)
	require.Equal(t, 2, calls)
}
