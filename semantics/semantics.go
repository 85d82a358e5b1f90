// Package semantics defines correctness for concurrent systems in terms of
// a sequential reference object: a register, a log, or any other data type
// the system emulates. An operation-history tester folds the operations
// observed on a model path into per-thread histories and decides whether
// some interleaving of them is valid for the reference object.
package semantics

import (
	"fmt"
	"sort"

	"veristate/fingerprint"
)

// RefObject is a sequential reference object with value semantics: Invoke
// returns the updated object alongside the operation's return value.
type RefObject[Self any, O fingerprint.Hasher, R fingerprint.Hasher] interface {
	fingerprint.Hasher
	Invoke(op O) (Self, R)
}

// OpRecord pairs an operation with its observed return value.
type OpRecord[O fingerprint.Hasher, R fingerprint.Hasher] struct {
	Op  O
	Ret R
}

// LinearizabilityTester accumulates per-thread operation histories. Each
// thread is sequential: it invokes an operation, and the matching return
// arrives before its next invocation. The tester is an immutable value so
// it can serve as model history; OnInvoke and OnReturn return updated
// copies.
//
// Serialization respects per-thread order and permits unreturned in-flight
// operations to take effect at any point after invocation, which is what
// admits a read observing a write whose acknowledgment is still in flight.
// Real-time order across threads is not tracked: an operation that returned
// before another thread's invocation may still be serialized after it.
type LinearizabilityTester[Self RefObject[Self, O, R], O fingerprint.Hasher, R fingerprint.Hasher] struct {
	init      Self
	completed map[uint64][]OpRecord[O, R]
	inFlight  map[uint64]O
}

// NewLinearizabilityTester starts an empty history over the given
// reference object.
func NewLinearizabilityTester[Self RefObject[Self, O, R], O fingerprint.Hasher, R fingerprint.Hasher](init Self) LinearizabilityTester[Self, O, R] {
	return LinearizabilityTester[Self, O, R]{
		init:      init,
		completed: map[uint64][]OpRecord[O, R]{},
		inFlight:  map[uint64]O{},
	}
}

func (t LinearizabilityTester[Self, O, R]) clone() LinearizabilityTester[Self, O, R] {
	out := LinearizabilityTester[Self, O, R]{
		init:      t.init,
		completed: make(map[uint64][]OpRecord[O, R], len(t.completed)),
		inFlight:  make(map[uint64]O, len(t.inFlight)),
	}
	for th, ops := range t.completed {
		out.completed[th] = append([]OpRecord[O, R]{}, ops...)
	}
	for th, op := range t.inFlight {
		out.inFlight[th] = op
	}
	return out
}

// OnInvoke records an operation invocation by a thread.
func (t LinearizabilityTester[Self, O, R]) OnInvoke(thread uint64, op O) (LinearizabilityTester[Self, O, R], error) {
	if _, ok := t.inFlight[thread]; ok {
		return t, fmt.Errorf("thread %d invoked a second operation before the first returned", thread)
	}
	out := t.clone()
	out.inFlight[thread] = op
	return out, nil
}

// OnReturn records the return of a thread's in-flight operation.
func (t LinearizabilityTester[Self, O, R]) OnReturn(thread uint64, ret R) (LinearizabilityTester[Self, O, R], error) {
	op, ok := t.inFlight[thread]
	if !ok {
		return t, fmt.Errorf("thread %d returned with no operation in flight", thread)
	}
	out := t.clone()
	delete(out.inFlight, thread)
	out.completed[thread] = append(out.completed[thread], OpRecord[O, R]{Op: op, Ret: ret})
	return out, nil
}

// SerializedHistory searches for a sequential ordering of the completed
// operations that is valid for the reference object, interleaving
// in-flight operations where needed. ok=false means the history is not
// serializable.
func (t LinearizabilityTester[Self, O, R]) SerializedHistory() ([]OpRecord[O, R], bool) {
	threads := t.threadIDs()
	positions := make(map[uint64]int, len(threads))
	inFlightUsed := make(map[uint64]bool, len(t.inFlight))
	var sequence []OpRecord[O, R]

	total := 0
	for _, ops := range t.completed {
		total += len(ops)
	}

	var search func(ref Self) bool
	search = func(ref Self) bool {
		if len(sequence) == total {
			return true
		}
		for _, th := range threads {
			ops := t.completed[th]
			pos := positions[th]
			if pos < len(ops) {
				next := ops[pos]
				refAfter, got := ref.Invoke(next.Op)
				if fingerprint.Of(got) == fingerprint.Of(next.Ret) {
					positions[th] = pos + 1
					sequence = append(sequence, next)
					if search(refAfter) {
						return true
					}
					sequence = sequence[:len(sequence)-1]
					positions[th] = pos
				}
				continue
			}
			// A thread's in-flight operation follows all its completed
			// ones and may take effect without a recorded return.
			if op, ok := t.inFlight[th]; ok && !inFlightUsed[th] {
				refAfter, _ := ref.Invoke(op)
				inFlightUsed[th] = true
				if search(refAfter) {
					return true
				}
				inFlightUsed[th] = false
			}
		}
		return false
	}

	if !search(t.init) {
		return nil, false
	}
	out := make([]OpRecord[O, R], len(sequence))
	copy(out, sequence)
	return out, true
}

// IsSerializable reports whether SerializedHistory would succeed.
func (t LinearizabilityTester[Self, O, R]) IsSerializable() bool {
	_, ok := t.SerializedHistory()
	return ok
}

func (t LinearizabilityTester[Self, O, R]) threadIDs() []uint64 {
	seen := map[uint64]struct{}{}
	for th := range t.completed {
		seen[th] = struct{}{}
	}
	for th := range t.inFlight {
		seen[th] = struct{}{}
	}
	out := make([]uint64, 0, len(seen))
	for th := range seen {
		out = append(out, th)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Hash folds the history into a state fingerprint: the reference object,
// each thread's completed sequence, and each in-flight operation.
func (t LinearizabilityTester[Self, O, R]) Hash(s *fingerprint.Stream) {
	t.init.Hash(s)
	sums := make([]uint64, 0, len(t.completed))
	for th, ops := range t.completed {
		sums = append(sums, fingerprint.Element(func(sub *fingerprint.Stream) {
			sub.WriteUint64(th)
			sub.WriteInt(len(ops))
			for _, rec := range ops {
				rec.Op.Hash(sub)
				rec.Ret.Hash(sub)
			}
		}))
	}
	s.WriteSet(sums)
	sums = sums[:0]
	for th, op := range t.inFlight {
		sums = append(sums, fingerprint.Element(func(sub *fingerprint.Stream) {
			sub.WriteUint64(th)
			op.Hash(sub)
		}))
	}
	s.WriteSet(sums)
}
