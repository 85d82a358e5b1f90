package actor

import (
	"fmt"

	"veristate/checker"
	"veristate/fingerprint"
)

// ActionKind discriminates the steps an actor system can take.
type ActionKind int

const (
	// DeliverAction hands an in-flight envelope to its destination.
	DeliverAction ActionKind = iota
	// DropAction loses an envelope; only enabled on lossy networks.
	DropAction
	// TimeoutAction fires a set timer.
	TimeoutAction
	// SelectRandomAction resolves one option of a pending random choice.
	SelectRandomAction
	// CrashAction permanently stops an actor; only enabled when the
	// model allows crashes.
	CrashAction
)

// Action is one possible step of the actor system.
type Action[M Message, T Timer] struct {
	Kind     ActionKind
	Envelope Envelope[M] // Deliver, Drop
	Actor    Id          // Timeout, SelectRandom, Crash
	Timer    T           // Timeout
	Key      string      // SelectRandom
	Index    int         // SelectRandom
}

func (a Action[M, T]) String() string {
	switch a.Kind {
	case DeliverAction:
		return fmt.Sprintf("Deliver{%v}", a.Envelope)
	case DropAction:
		return fmt.Sprintf("Drop{%v}", a.Envelope)
	case TimeoutAction:
		return fmt.Sprintf("Timeout{%v, %v}", a.Actor, a.Timer)
	case SelectRandomAction:
		return fmt.Sprintf("SelectRandom{%v, %s[%d]}", a.Actor, a.Key, a.Index)
	case CrashAction:
		return fmt.Sprintf("Crash{%v}", a.Actor)
	}
	return "Unknown"
}

// Deliver constructs a delivery action, convenient for assertions.
func Deliver[M Message, T Timer](src, dst Id, msg M) Action[M, T] {
	return Action[M, T]{Kind: DeliverAction, Envelope: Envelope[M]{Src: src, Dst: dst, Msg: msg}}
}

// Drop constructs a drop action.
func Drop[M Message, T Timer](src, dst Id, msg M) Action[M, T] {
	return Action[M, T]{Kind: DropAction, Envelope: Envelope[M]{Src: src, Dst: dst, Msg: msg}}
}

// NoHistory is the history type for models that do not track auxiliary
// state.
type NoHistory struct{}

func (NoHistory) Hash(*fingerprint.Stream) {}

// NoTimer is the timer type for actors that never set timers.
type NoTimer struct{}

func (NoTimer) Hash(*fingerprint.Stream) {}

// Model lifts a set of actors into a checkable model whose state is a
// ModelState snapshot. C is an arbitrary configuration value made
// available to history reducers and the boundary; H is the user-defined
// history.
//
// Configure with the chainable methods, then hand the model to
// checker.New.
type Model[M Message, S State[S], T Timer, C any, H fingerprint.Hasher] struct {
	actors       []Actor[M, S, T]
	cfg          C
	lossy        bool
	duplicating  bool
	allowCrashes bool
	networkSet   bool
	initNetwork  Network[M]
	initHistory  H
	initStorage  map[int]Value
	properties   []checker.Property[ModelState[M, S, T, H]]
	recordMsgIn  func(cfg C, history H, env Envelope[M]) (H, bool)
	recordMsgOut func(cfg C, history H, env Envelope[M]) (H, bool)
	boundary     func(cfg C, state ModelState[M, S, T, H]) bool
}

// NewModel starts building an actor model with a configuration value and
// an initial history.
func NewModel[M Message, S State[S], T Timer, C any, H fingerprint.Hasher](cfg C, initHistory H) *Model[M, S, T, C, H] {
	return &Model[M, S, T, C, H]{
		cfg:         cfg,
		duplicating: true,
		initHistory: initHistory,
		initStorage: map[int]Value{},
	}
}

// Actor adds one actor.
func (m *Model[M, S, T, C, H]) Actor(a Actor[M, S, T]) *Model[M, S, T, C, H] {
	m.actors = append(m.actors, a)
	return m
}

// Actors adds several actors.
func (m *Model[M, S, T, C, H]) Actors(actors ...Actor[M, S, T]) *Model[M, S, T, C, H] {
	m.actors = append(m.actors, actors...)
	return m
}

// InitNetwork sets the starting network, including its variant.
func (m *Model[M, S, T, C, H]) InitNetwork(n Network[M]) *Model[M, S, T, C, H] {
	m.initNetwork = n
	m.networkSet = true
	return m
}

// LossyNetwork enables Drop actions. Note that as long as properties do
// not inspect the network, losing a message is indistinguishable from an
// unlimited delay, so disabling loss often shrinks the state space without
// weakening the check.
func (m *Model[M, S, T, C, H]) LossyNetwork(lossy bool) *Model[M, S, T, C, H] {
	m.lossy = lossy
	return m
}

// DuplicatingNetwork controls whether delivered messages can be
// redelivered. Only the unordered variants honor the flag.
func (m *Model[M, S, T, C, H]) DuplicatingNetwork(duplicating bool) *Model[M, S, T, C, H] {
	m.duplicating = duplicating
	return m
}

// AllowCrashes enables Crash actions for every actor.
func (m *Model[M, S, T, C, H]) AllowCrashes(allow bool) *Model[M, S, T, C, H] {
	m.allowCrashes = allow
	return m
}

// InitStorage seeds an actor's persistent storage slot.
func (m *Model[M, S, T, C, H]) InitStorage(actor int, v Value) *Model[M, S, T, C, H] {
	m.initStorage[actor] = v
	return m
}

// Property adds a property over system snapshots.
func (m *Model[M, S, T, C, H]) Property(
	expectation checker.Expectation, name string,
	condition func(state ModelState[M, S, T, H]) bool,
) *Model[M, S, T, C, H] {
	m.properties = append(m.properties, checker.Property[ModelState[M, S, T, H]]{
		Expectation: expectation, Name: name, Condition: condition})
	return m
}

// RecordMsgIn installs the reducer folding delivered envelopes into the
// history. Returning ok=false leaves the history unchanged.
func (m *Model[M, S, T, C, H]) RecordMsgIn(fn func(cfg C, history H, env Envelope[M]) (H, bool)) *Model[M, S, T, C, H] {
	m.recordMsgIn = fn
	return m
}

// RecordMsgOut installs the reducer folding sent envelopes into the
// history.
func (m *Model[M, S, T, C, H]) RecordMsgOut(fn func(cfg C, history H, env Envelope[M]) (H, bool)) *Model[M, S, T, C, H] {
	m.recordMsgOut = fn
	return m
}

// Boundary installs the state-space boundary predicate.
func (m *Model[M, S, T, C, H]) Boundary(fn func(cfg C, state ModelState[M, S, T, H]) bool) *Model[M, S, T, C, H] {
	m.boundary = fn
	return m
}

// Cfg returns the configuration value.
func (m *Model[M, S, T, C, H]) Cfg() C { return m.cfg }

// effectiveNetwork resolves the starting network from the configured one
// and the duplication flag.
func (m *Model[M, S, T, C, H]) effectiveNetwork() Network[M] {
	net := m.initNetwork
	if !m.networkSet {
		net = NewUnorderedDuplicating[M]()
	}
	if net.Variant() == UnorderedDuplicating && !m.duplicating {
		converted := NewUnorderedNonDuplicating[M]()
		net.IterAll(func(e Envelope[M]) bool { converted.Send(e); return true })
		return converted
	}
	return net.Clone()
}

// InitStates builds the single initial snapshot: every actor started, its
// commands committed.
func (m *Model[M, S, T, C, H]) InitStates() []ModelState[M, S, T, H] {
	n := len(m.actors)
	init := ModelState[M, S, T, H]{
		ActorStates:   make([]S, n),
		Network:       m.effectiveNetwork(),
		Timers:        make([]Timers[T], n),
		RandomChoices: make([]RandomChoices, n),
		Crashed:       make([]bool, n),
		Storage:       make([]Value, n),
		History:       m.initHistory,
	}
	for i := range m.actors {
		init.Timers[i] = NewTimers[T]()
		init.RandomChoices[i] = NewRandomChoices()
		if v, ok := m.initStorage[i]; ok {
			init.Storage[i] = v
		}
	}
	for i, a := range m.actors {
		id := Id(i)
		out := &Out[M, T]{}
		init.ActorStates[i] = a.OnStart(id, init.Storage[i], out)
		m.processCommands(id, out, &init)
	}
	return []ModelState[M, S, T, H]{init}
}

// Actions enumerates every enabled step: deliveries of deliverable
// envelopes, drops when lossy, timeouts of set timers, resolutions of
// pending random choices, and crashes when allowed. A state with no
// actions is terminal, which is what triggers the checker's
// eventually-obligation check.
func (m *Model[M, S, T, C, H]) Actions(state ModelState[M, S, T, H], actions *[]Action[M, T]) {
	state.Network.IterDeliverable(func(env Envelope[M]) bool {
		if m.lossy {
			*actions = append(*actions, Action[M, T]{Kind: DropAction, Envelope: env})
		}
		if int(env.Dst) < len(m.actors) && !state.Crashed[env.Dst] {
			*actions = append(*actions, Action[M, T]{Kind: DeliverAction, Envelope: env})
		}
		return true
	})
	for i := range state.Timers {
		if state.Crashed[i] {
			continue
		}
		state.Timers[i].Iter(func(timer T) bool {
			*actions = append(*actions, Action[M, T]{Kind: TimeoutAction, Actor: Id(i), Timer: timer})
			return true
		})
	}
	for i := range state.RandomChoices {
		if state.Crashed[i] {
			continue
		}
		state.RandomChoices[i].Iter(func(key string, options []Value) bool {
			for idx := range options {
				*actions = append(*actions, Action[M, T]{
					Kind: SelectRandomAction, Actor: Id(i), Key: key, Index: idx})
			}
			return true
		})
	}
	if m.allowCrashes {
		for i := range m.actors {
			if !state.Crashed[i] {
				*actions = append(*actions, Action[M, T]{Kind: CrashAction, Actor: Id(i)})
			}
		}
	}
}

// NextState applies one action. ok=false means the action had no effect
// (an actor-level no-op) and the edge is elided.
func (m *Model[M, S, T, C, H]) NextState(last ModelState[M, S, T, H], a Action[M, T]) (ModelState[M, S, T, H], bool) {
	var zero ModelState[M, S, T, H]
	switch a.Kind {
	case DropAction:
		next := last.Clone()
		if err := next.Network.OnDrop(a.Envelope); err != nil {
			return zero, false
		}
		return next, true

	case DeliverAction:
		idx := int(a.Envelope.Dst)
		if idx >= len(m.actors) || last.Crashed[idx] {
			return zero, false
		}
		// Run the handler against a clone first: a delivery the actor
		// ignores produces no edge, even on networks where consuming
		// the envelope would change state.
		cloned := last.ActorStates[idx].Clone()
		out := &Out[M, T]{}
		m.actors[idx].OnMsg(a.Envelope.Dst, &cloned, a.Envelope.Src, a.Envelope.Msg, out)
		if out.IsEmpty() && fingerprint.Of(cloned) == fingerprint.Of(last.ActorStates[idx]) {
			return zero, false
		}
		next := last.Clone()
		if err := next.Network.OnDeliver(a.Envelope); err != nil {
			return zero, false
		}
		if m.recordMsgIn != nil {
			if h, ok := m.recordMsgIn(m.cfg, next.History, a.Envelope); ok {
				next.History = h
			}
		}
		next.ActorStates[idx] = cloned
		m.processCommands(a.Envelope.Dst, out, &next)
		return next, true

	case TimeoutAction:
		idx := int(a.Actor)
		if idx >= len(m.actors) || last.Crashed[idx] || !last.Timers[idx].IsSet(a.Timer) {
			return zero, false
		}
		cloned := last.ActorStates[idx].Clone()
		out := &Out[M, T]{}
		m.actors[idx].OnTimeout(a.Actor, &cloned, a.Timer, out)
		if rearmsOnly(out, a.Timer) && fingerprint.Of(cloned) == fingerprint.Of(last.ActorStates[idx]) {
			// Re-arming the fired timer without any other effect would
			// loop the state onto itself and defeat terminal
			// detection.
			return zero, false
		}
		next := last.Clone()
		next.Timers[idx].Cancel(a.Timer)
		next.ActorStates[idx] = cloned
		m.processCommands(a.Actor, out, &next)
		return next, true

	case SelectRandomAction:
		idx := int(a.Actor)
		if idx >= len(m.actors) || last.Crashed[idx] {
			return zero, false
		}
		next := last.Clone()
		options, ok := next.RandomChoices[idx].remove(a.Key)
		if !ok || a.Index >= len(options) {
			return zero, false
		}
		out := &Out[M, T]{}
		m.actors[idx].OnRandom(a.Actor, &next.ActorStates[idx], options[a.Index], out)
		m.processCommands(a.Actor, out, &next)
		return next, true

	case CrashAction:
		idx := int(a.Actor)
		if idx >= len(m.actors) || last.Crashed[idx] {
			return zero, false
		}
		next := last.Clone()
		next.Crashed[idx] = true
		next.Timers[idx].CancelAll()
		next.RandomChoices[idx] = NewRandomChoices()
		return next, true
	}
	return zero, false
}

// rearmsOnly reports whether the handler's only output is re-setting the
// timer that just fired.
func rearmsOnly[M Message, T Timer](out *Out[M, T], fired T) bool {
	if out.IsEmpty() {
		return false
	}
	for _, c := range out.commands {
		if c.kind != commandSetTimer || c.timer != fired {
			return false
		}
	}
	return true
}

// processCommands commits an actor's outputs: sends through the history
// reducer and onto the network, timer arms and cancels, random offers.
func (m *Model[M, S, T, C, H]) processCommands(id Id, out *Out[M, T], state *ModelState[M, S, T, H]) {
	for _, c := range out.commands {
		switch c.kind {
		case commandSend:
			env := Envelope[M]{Src: id, Dst: c.dst, Msg: c.msg}
			if m.recordMsgOut != nil {
				if h, ok := m.recordMsgOut(m.cfg, state.History, env); ok {
					state.History = h
				}
			}
			state.Network.Send(env)
		case commandSetTimer:
			state.Timers[id].Set(c.timer)
		case commandCancelTimer:
			state.Timers[id].Cancel(c.timer)
		case commandChooseRandom:
			state.RandomChoices[id].insert(c.key, c.options)
		}
	}
}

// Properties implements checker.Model.
func (m *Model[M, S, T, C, H]) Properties() []checker.Property[ModelState[M, S, T, H]] {
	return m.properties
}

// WithinBoundary implements checker.Bounded.
func (m *Model[M, S, T, C, H]) WithinBoundary(state ModelState[M, S, T, H]) bool {
	if m.boundary == nil {
		return true
	}
	return m.boundary(m.cfg, state)
}
