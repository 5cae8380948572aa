package kernel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMux_RoutesToRegisteredHandler(t *testing.T) {
	m := NewMux()

	ran := false
	m.Handle("axpy", HandlerFunc(func(ctx context.Context, job *Job) error {
		ran = true
		return nil
	}))

	require.NoError(t, m.Run(context.Background(), NewJob("axpy", nil)))
	require.True(t, ran)
}

func TestMux_UnknownKernelReturnsNotFound(t *testing.T) {
	m := NewMux()

	err := m.Run(context.Background(), NewJob("does-not-exist", nil))
	require.Error(t, err)
	require.Contains(t, err.Error(), "does-not-exist")
}

func TestMux_HandlerNeverNil(t *testing.T) {
	m := NewMux()
	require.NotNil(t, m.Handler(NewJob("missing", nil)))
}
