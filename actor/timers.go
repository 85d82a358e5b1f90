package actor

import (
	"sort"

	"veristate/fingerprint"
)

// Timers is the set of pending timer keys for one actor. A timer is either
// set or not; setting twice is idempotent.
type Timers[T Timer] struct {
	set map[T]struct{}
}

// NewTimers returns an empty timer set.
func NewTimers[T Timer]() Timers[T] {
	return Timers[T]{set: map[T]struct{}{}}
}

// Set arms a timer; reports whether it was newly set.
func (t *Timers[T]) Set(timer T) bool {
	if _, ok := t.set[timer]; ok {
		return false
	}
	t.set[timer] = struct{}{}
	return true
}

// Cancel disarms a timer; reports whether it was set.
func (t *Timers[T]) Cancel(timer T) bool {
	if _, ok := t.set[timer]; !ok {
		return false
	}
	delete(t.set, timer)
	return true
}

// CancelAll disarms every timer.
func (t *Timers[T]) CancelAll() {
	clear(t.set)
}

// IsSet reports whether a timer is armed.
func (t Timers[T]) IsSet(timer T) bool {
	_, ok := t.set[timer]
	return ok
}

// Len reports the number of armed timers.
func (t Timers[T]) Len() int { return len(t.set) }

// Iter visits each armed timer in a deterministic (fingerprint) order.
func (t Timers[T]) Iter(fn func(T) bool) {
	type keyed struct {
		fp    fingerprint.Fingerprint
		timer T
	}
	keys := make([]keyed, 0, len(t.set))
	for timer := range t.set {
		keys = append(keys, keyed{fp: fingerprint.Of(timer), timer: timer})
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].fp < keys[j].fp })
	for _, k := range keys {
		if !fn(k.timer) {
			return
		}
	}
}

// Hash folds the timer set order-insensitively.
func (t Timers[T]) Hash(s *fingerprint.Stream) {
	sums := make([]uint64, 0, len(t.set))
	for timer := range t.set {
		sums = append(sums, uint64(fingerprint.Of(timer)))
	}
	s.WriteSet(sums)
}

// Clone deep-copies the timer set.
func (t Timers[T]) Clone() Timers[T] {
	out := Timers[T]{set: make(map[T]struct{}, len(t.set))}
	for timer := range t.set {
		out.set[timer] = struct{}{}
	}
	return out
}
