package checker

import (
	"fmt"
	"reflect"

	"veristate/fingerprint"
)

// AssertProperties panics unless examples exist for all sometimes
// properties and no counterexamples exist for any always or eventually
// property. Intended for tests.
func AssertProperties[S fingerprint.Hasher, A any](c Checker[S, A]) {
	for _, p := range c.Model().Properties() {
		switch p.Expectation {
		case AlwaysExpectation, EventuallyExpectation:
			AssertNoDiscovery(c, p.Name)
		case SometimesExpectation:
			AssertAnyDiscovery(c, p.Name)
		}
	}
}

// AssertAnyDiscovery panics if the named property has no discovery.
func AssertAnyDiscovery[S fingerprint.Hasher, A any](c Checker[S, A], name string) Path[S, A] {
	if found, ok := c.Discovery(name); ok {
		return found
	}
	if !c.IsDone() {
		panic(fmt.Sprintf("discovery for %q not found, but model checking is incomplete", name))
	}
	panic(fmt.Sprintf("discovery for %q not found", name))
}

// AssertNoDiscovery panics if the named property has a discovery, printing
// its action sequence and final state.
func AssertNoDiscovery[S fingerprint.Hasher, A any](c Checker[S, A], name string) {
	if found, ok := c.Discovery(name); ok {
		panic(fmt.Sprintf("discovery for %q found.\n\n%s", name, found))
	}
	if !c.IsDone() {
		panic(fmt.Sprintf("discovery for %q not found, but model checking is incomplete", name))
	}
}

// AssertDiscovery panics unless the specified action sequence is itself a
// valid discovery for the named property. The checker may have found a
// different but equally valid discovery; this validates the caller's
// expected one.
func AssertDiscovery[S fingerprint.Hasher, A any](c Checker[S, A], name string, actions []A) {
	found := AssertAnyDiscovery(c, name)
	var property Property[S]
	ok := false
	for _, p := range c.Model().Properties() {
		if p.Name == name {
			property, ok = p, true
			break
		}
	}
	if !ok {
		panic(fmt.Sprintf("no property named %q", name))
	}
	for _, init := range c.Model().InitStates() {
		path, valid := PathFromActions(c.Model(), init, actions)
		if !valid {
			continue
		}
		switch property.Expectation {
		case AlwaysExpectation:
			if !property.Condition(path.LastState()) {
				return
			}
		case EventuallyExpectation:
			// Validating an arbitrary eventually discovery would
			// require proving the path terminal, so only the
			// checker's own discovery is accepted.
			if !reflect.DeepEqual(actions, found.Actions()) {
				panic(fmt.Sprintf(
					"cannot validate eventually discovery for %q unless it matches the one the checker found", name))
			}
			if !property.Condition(path.LastState()) {
				return
			}
		case SometimesExpectation:
			if property.Condition(path.LastState()) {
				return
			}
		}
	}
	panic(fmt.Sprintf("invalid discovery for %q, but a valid one was found: %v", name, found.Actions()))
}
