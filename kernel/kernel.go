package kernel

import (
	"context"

	"github.com/oklog/ulid/v2"
)

// Job is one kernel invocation descriptor: which kernel to run and with
// what arguments. Jobs are what dispatch entry points accept; the pool
// never sees kernel names, only tasks built from jobs.
type Job struct {
	id     string
	kernel string

	// Args carries the kernel's operation parameters. Each kernel defines
	// its own argument type.
	Args any
}

func NewJob(kernel string, args any) *Job {
	return &Job{
		id:     ulid.Make().String(),
		kernel: kernel,
		Args:   args,
	}
}

func (j *Job) ID() string     { return j.id }
func (j *Job) Kernel() string { return j.kernel }

// A Handler executes jobs for one registered kernel.
//
// Run should return nil if the computation succeeded. A non-nil error (or
// a panic) marks the job failed; the pool does not retry.
type Handler interface {
	Run(context.Context, *Job) error
}

// The HandlerFunc type is an adapter to allow the use of ordinary
// functions as a Handler.
type HandlerFunc func(context.Context, *Job) error

// Run calls fn(ctx, job)
func (fn HandlerFunc) Run(ctx context.Context, job *Job) error {
	return fn(ctx, job)
}
