package actor

import (
	"sort"

	"veristate/fingerprint"
	"veristate/rewrite"
)

// RandomChoices is the set of unresolved random-choice offers for one
// actor, keyed by the string passed to Out.ChooseRandom.
type RandomChoices struct {
	m map[string][]Value
}

// NewRandomChoices returns an empty offer set.
func NewRandomChoices() RandomChoices {
	return RandomChoices{m: map[string][]Value{}}
}

func (r *RandomChoices) insert(key string, options []Value) {
	r.m[key] = options
}

func (r *RandomChoices) remove(key string) ([]Value, bool) {
	options, ok := r.m[key]
	delete(r.m, key)
	return options, ok
}

// Len reports the number of pending offers.
func (r RandomChoices) Len() int { return len(r.m) }

// Iter visits offers in key order.
func (r RandomChoices) Iter(fn func(key string, options []Value) bool) {
	keys := make([]string, 0, len(r.m))
	for k := range r.m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if !fn(k, r.m[k]) {
			return
		}
	}
}

func (r RandomChoices) Hash(s *fingerprint.Stream) {
	sums := make([]uint64, 0, len(r.m))
	for k, options := range r.m {
		sums = append(sums, fingerprint.Element(func(sub *fingerprint.Stream) {
			sub.WriteString(k)
			sub.WriteInt(len(options))
			for _, o := range options {
				o.Hash(sub)
			}
		}))
	}
	s.WriteSet(sums)
}

// Clone deep-copies the offer set. Option values are shared; they are
// treated as immutable.
func (r RandomChoices) Clone() RandomChoices {
	out := RandomChoices{m: make(map[string][]Value, len(r.m))}
	for k, options := range r.m {
		out.m[k] = append([]Value{}, options...)
	}
	return out
}

// ModelState is a snapshot of the entire actor system at an instant: every
// actor's local state, the messages in flight, the pending timers, the
// unresolved random choices, the crash flags, the persistent storage
// slots, and the user-defined history.
//
// History is purely a function of the sequence of observed network events
// and the model's RecordMsgIn/RecordMsgOut reducers.
type ModelState[M Message, S State[S], T Timer, H fingerprint.Hasher] struct {
	ActorStates   []S
	Network       Network[M]
	Timers        []Timers[T]
	RandomChoices []RandomChoices
	Crashed       []bool
	Storage       []Value
	History       H
}

func (s ModelState[M, S, T, H]) Hash(h *fingerprint.Stream) {
	h.WriteInt(len(s.ActorStates))
	for _, as := range s.ActorStates {
		as.Hash(h)
	}
	s.Network.Hash(h)
	for _, t := range s.Timers {
		t.Hash(h)
	}
	for _, r := range s.RandomChoices {
		r.Hash(h)
	}
	for _, c := range s.Crashed {
		h.WriteBool(c)
	}
	for _, st := range s.Storage {
		if st == nil {
			h.WriteBool(false)
		} else {
			h.WriteBool(true)
			st.Hash(h)
		}
	}
	s.History.Hash(h)
}

// Clone deep-copies the snapshot. Storage values are shared; they are
// treated as immutable.
func (s ModelState[M, S, T, H]) Clone() ModelState[M, S, T, H] {
	out := ModelState[M, S, T, H]{
		ActorStates:   make([]S, len(s.ActorStates)),
		Network:       s.Network.Clone(),
		Timers:        make([]Timers[T], len(s.Timers)),
		RandomChoices: make([]RandomChoices, len(s.RandomChoices)),
		Crashed:       append([]bool{}, s.Crashed...),
		Storage:       append([]Value{}, s.Storage...),
		History:       s.History,
	}
	for i, as := range s.ActorStates {
		out.ActorStates[i] = as.Clone()
	}
	for i, t := range s.Timers {
		out.Timers[i] = t.Clone()
	}
	for i, r := range s.RandomChoices {
		out.RandomChoices[i] = r.Clone()
	}
	return out
}

// Representative canonicalizes the snapshot for symmetry reduction: actors
// are renamed so that their states appear in a canonical (fingerprint)
// order, and the renaming is applied everywhere ids occur. Actor state,
// message, and history types embedding ids must implement
// rewrite.Rewriter for the reduction to be sound; the adapter cannot
// detect an omission.
func (s ModelState[M, S, T, H]) Representative() ModelState[M, S, T, H] {
	fps := make([]fingerprint.Fingerprint, len(s.ActorStates))
	for i, as := range s.ActorStates {
		fps[i] = fingerprint.Of(as)
	}
	plan := rewrite.SortPlan(len(fps), func(i, j int) bool { return fps[i] < fps[j] })
	return ModelState[M, S, T, H]{
		ActorStates: rewrite.Reindex(plan, s.ActorStates, func(as S) S {
			return rewriteValue(as, plan)
		}),
		Network: s.Network.Rewrite(plan),
		Timers: rewrite.Reindex(plan, s.Timers, func(t Timers[T]) Timers[T] {
			return t.Clone()
		}),
		RandomChoices: rewrite.Reindex(plan, s.RandomChoices, func(r RandomChoices) RandomChoices {
			return r.Clone()
		}),
		Crashed: rewrite.Reindex(plan, s.Crashed, rewrite.Identity[bool]),
		Storage: rewrite.Reindex(plan, s.Storage, func(v Value) Value {
			if v == nil {
				return nil
			}
			return rewriteValue(v, plan)
		}),
		History: rewriteValue(s.History, plan),
	}
}
