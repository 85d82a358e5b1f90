package checker

import (
	"sync"

	"veristate/fingerprint"
)

// Visitor observes every path the checker evaluates. Implementations are
// invoked from worker goroutines concurrently and must be thread-safe.
type Visitor[S fingerprint.Hasher, A any] interface {
	Visit(path Path[S, A])
}

// VisitorFunc adapts a function to the Visitor interface.
type VisitorFunc[S fingerprint.Hasher, A any] func(path Path[S, A])

func (f VisitorFunc[S, A]) Visit(path Path[S, A]) { f(path) }

// StateRecorder records the last state of every evaluated path. It does not
// record generated states still pending evaluation.
type StateRecorder[S fingerprint.Hasher, A any] struct {
	mu     sync.Mutex
	states []S
}

// NewStateRecorder returns a recorder and an accessor that snapshots the
// recorded states.
func NewStateRecorder[S fingerprint.Hasher, A any]() (*StateRecorder[S, A], func() []S) {
	r := &StateRecorder[S, A]{}
	return r, func() []S {
		r.mu.Lock()
		defer r.mu.Unlock()
		out := make([]S, len(r.states))
		copy(out, r.states)
		return out
	}
}

func (r *StateRecorder[S, A]) Visit(path Path[S, A]) {
	r.mu.Lock()
	r.states = append(r.states, path.LastState())
	r.mu.Unlock()
}
