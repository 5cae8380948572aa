package pool

import (
	"os"
	"runtime"
)

// Capabilities describe what the host build and platform provide. They are
// predicates, not platform names: control flow branches on the capability,
// never on an OS string.
type Capabilities struct {
	// Parallel reports whether the pool may spawn workers at all. When
	// false every batch runs inline on the calling goroutine, the serial
	// build of the library.
	Parallel bool

	// ForkNotify reports whether the embedding process can deliver a
	// fork notification to the pool (by calling Invalidate from the
	// child). The dispatch-time liveness check stays active either way:
	// notification is an optimization, the lazy check is the guarantee.
	ForkNotify bool
}

// DetectCapabilities resolves capabilities for the current process. Go
// offers no fork hook, so ForkNotify starts out false; embedders that fork
// through cgo or re-exec can flip it and wire Invalidate themselves.
func DetectCapabilities() Capabilities {
	return Capabilities{
		Parallel:   runtime.GOMAXPROCS(0) > 1,
		ForkNotify: false,
	}
}

// live reports whether the workers the state flag advertises actually exist
// in this address space. After a fork the child inherits state that says
// "ready" while owning none of the parent's workers; comparing the recorded
// owner process identity against the current one catches that. The stale
// case is healed silently by the caller, never surfaced as an error.
func (p *WorkerPool) live() bool {
	if p.loadState() != StateReady {
		return false
	}
	if p.skipLivenessCheck {
		return true
	}
	return p.ownerPID.Load() == int64(p.opts.ProcessID())
}

func defaultProcessID() int {
	return os.Getpid()
}
