package checker

import (
	"fmt"
	"reflect"
	"strings"

	"veristate/fingerprint"
)

// Step is one element of a Path: a state plus the action taken from it.
// Action is nil on the final step.
type Step[S fingerprint.Hasher, A any] struct {
	State  S
	Action *A
}

// Path is a sequence of states joined by actions:
// state --action--> state ... --action--> state.
type Path[S fingerprint.Hasher, A any] struct {
	steps []Step[S, A]
}

// Len reports the number of states on the path.
func (p Path[S, A]) Len() int { return len(p.steps) }

// Steps returns the underlying steps.
func (p Path[S, A]) Steps() []Step[S, A] { return p.steps }

// LastState returns the final state.
func (p Path[S, A]) LastState() S {
	return p.steps[len(p.steps)-1].State
}

// Actions returns the action sequence.
func (p Path[S, A]) Actions() []A {
	actions := make([]A, 0, len(p.steps))
	for _, s := range p.steps {
		if s.Action != nil {
			actions = append(actions, *s.Action)
		}
	}
	return actions
}

// Encode renders the path as fingerprints delimited by forward slashes, the
// representation the explorer exchanges with its UI.
func (p Path[S, A]) Encode() string {
	parts := make([]string, len(p.steps))
	for i, s := range p.steps {
		parts[i] = fingerprint.Of(s.State).String()
	}
	return strings.Join(parts, "/")
}

// String formats the action sequence and final state for diagnostics.
func (p Path[S, A]) String() string {
	var b strings.Builder
	b.WriteString("== ACTIONS ==\n")
	for _, a := range p.Actions() {
		fmt.Fprintf(&b, "%v\n", a)
	}
	fmt.Fprintf(&b, "== LAST STATE ==\n%+v\n", p.LastState())
	return b.String()
}

// pathFromFingerprints replays a fingerprint sequence forward from the
// matching initial state, selecting at each step the action whose successor
// matches the next fingerprint. canon is the symmetry canonicalization, or
// nil. A failed match indicates a fingerprint collision or a
// nondeterministic model, both user bugs.
func pathFromFingerprints[S fingerprint.Hasher, A any](
	m Model[S, A], canon func(S) S, fps []fingerprint.Fingerprint,
) (Path[S, A], error) {
	if len(fps) == 0 {
		return Path[S, A]{}, fmt.Errorf("empty fingerprint path")
	}
	canonical := func(s S) S {
		if canon != nil {
			return canon(s)
		}
		return s
	}

	var last S
	found := false
	for _, s := range m.InitStates() {
		s = canonical(s)
		if fingerprint.Of(s) == fps[0] {
			last = s
			found = true
			break
		}
	}
	if !found {
		return Path[S, A]{}, fmt.Errorf("no initial state matches fingerprint %v", fps[0])
	}

	steps := make([]Step[S, A], 0, len(fps))
	for _, want := range fps[1:] {
		matched := false
		for _, e := range nextSteps(m, last) {
			next := canonical(e.next)
			if fingerprint.Of(next) == want {
				a := e.action
				steps = append(steps, Step[S, A]{State: last, Action: &a})
				last = next
				matched = true
				break
			}
		}
		if !matched {
			return Path[S, A]{}, fmt.Errorf(
				"no successor matches fingerprint %v: nondeterministic model or fingerprint collision", want)
		}
	}
	steps = append(steps, Step[S, A]{State: last})
	return Path[S, A]{steps: steps}, nil
}

// PathFromActions replays an explicit action sequence from an initial
// state. ok is false if the initial state is unknown or an action is not
// enabled somewhere along the way.
func PathFromActions[S fingerprint.Hasher, A any](
	m Model[S, A], init S, actions []A,
) (Path[S, A], bool) {
	initFP := fingerprint.Of(init)
	known := false
	for _, s := range m.InitStates() {
		if fingerprint.Of(s) == initFP {
			known = true
			break
		}
	}
	if !known {
		return Path[S, A]{}, false
	}

	steps := make([]Step[S, A], 0, len(actions)+1)
	prev := init
	for _, want := range actions {
		matched := false
		for _, e := range nextSteps(m, prev) {
			if reflect.DeepEqual(e.action, want) {
				a := e.action
				steps = append(steps, Step[S, A]{State: prev, Action: &a})
				prev = e.next
				matched = true
				break
			}
		}
		if !matched {
			return Path[S, A]{}, false
		}
	}
	steps = append(steps, Step[S, A]{State: prev})
	return Path[S, A]{steps: steps}, true
}
