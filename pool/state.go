package pool

import "sync/atomic"

// State is the observable lifecycle state of the pool. There are only two:
// a pool is either live in this process or it is not. "Ready" inherited
// across a fork lies, which is why dispatch paths never trust it alone.
type State int32

const (
	StateUninitialized State = iota
	StateReady
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}

func (p *WorkerPool) loadState() State {
	return State(atomic.LoadInt32((*int32)(&p.state)))
}

func (p *WorkerPool) storeState(state State) {
	atomic.StoreInt32((*int32)(&p.state), int32(state))
}
