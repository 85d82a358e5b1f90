package checker

import (
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"veristate/fingerprint"
	"veristate/internal/telemetry/events"
)

// Chooser selects transitions during simulation. One chooser is created per
// run, so implementations need not be thread-safe.
type Chooser[S, A any] interface {
	// ChooseInitialState picks the index of the starting state.
	ChooseInitialState(states []S) int
	// ChooseAction picks the index of the next action to take.
	ChooseAction(state S, actions []A) int
}

// ChooserFactory builds a chooser for a run seed. Distinct runs are
// re-seeded so they explore different parts of the space.
type ChooserFactory[S, A any] func(seed uint64) Chooser[S, A]

// UniformChooser makes uniformly random choices; the default chooser.
func UniformChooser[S, A any](seed uint64) Chooser[S, A] {
	return &uniformChooser[S, A]{rng: rand.New(rand.NewSource(int64(seed)))}
}

type uniformChooser[S, A any] struct {
	rng *rand.Rand
}

func (u *uniformChooser[S, A]) ChooseInitialState(states []S) int {
	return u.rng.Intn(len(states))
}

func (u *uniformChooser[S, A]) ChooseAction(_ S, actions []A) int {
	return u.rng.Intn(len(actions))
}

// SimulationChecker random-walks the model, trading coverage for
// scalability. Each run starts at a chooser-selected initial state and
// follows chooser-selected actions until a cycle, the boundary, the depth
// cap, or a dead end. A run that ends at a dead end or the boundary turns
// its still-pending eventually obligations into discoveries on that path; a
// run ended by a cycle or the depth cap records no eventually discovery.
// It does not maintain a global visited set, so
// UniqueStateCount approximates with the generated count.
type SimulationChecker[S fingerprint.Hasher, A any] struct {
	model      Model[S, A]
	properties []Property[S]
	boundary   func(S) bool
	symmetry   func(S) S
	visitor    Visitor[S, A]

	targetStateCount int
	targetMaxDepth   int

	log       *slog.Logger
	bus       events.Bus
	observers []EventObserver

	stateCount  atomic.Int64
	maxDepth    atomic.Int64
	discoveries *discoverySet
	cancelled   atomic.Bool
	finished    atomic.Bool

	group    *errgroup.Group
	joinOnce sync.Once
	joinErr  error
}

func spawnSimulation[S fingerprint.Hasher, A any](
	b *Builder[S, A], seed uint64, factory ChooserFactory[S, A],
) *SimulationChecker[S, A] {
	log, _, bus := b.telemetry()
	if factory == nil {
		factory = UniformChooser[S, A]
	}
	c := &SimulationChecker[S, A]{
		model:            b.model,
		properties:       b.model.Properties(),
		boundary:         withinBoundary(b.model),
		symmetry:         b.symmetry,
		visitor:          b.visitor,
		targetStateCount: b.targetStateCount,
		targetMaxDepth:   b.targetMaxDepth,
		log:              log,
		bus:              bus,
		observers:        b.observers,
		discoveries:      newDiscoverySet(),
	}
	var g errgroup.Group
	for t := 0; t < b.threads; t++ {
		t := t
		// Offset the per-thread seed streams so threads search
		// different parts of the space.
		rng := rand.New(rand.NewSource(int64(seed) + int64(t)))
		g.Go(func() error { return c.runner(t, rng, factory) })
	}
	c.group = &g
	return c
}

func (c *SimulationChecker[S, A]) runner(t int, rng *rand.Rand, factory ChooserFactory[S, A]) (err error) {
	log := c.log.With("runner", t)
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("runner %d: model panic: %v", t, r)
			c.cancelled.Store(true)
		}
	}()
	log.Debug("runner started")
	for {
		if c.cancelled.Load() {
			return nil
		}
		c.checkTraceFromInitial(factory(rng.Uint64()))

		// All runners reach these checks with the same shutdown result,
		// so they drain together.
		if c.discoveries.len() == len(c.properties) {
			log.Debug("discovery complete, shutting down")
			return nil
		}
		if c.targetStateCount > 0 && int(c.stateCount.Load()) >= c.targetStateCount {
			log.Debug("reached target state count, shutting down")
			return nil
		}
	}
}

func (c *SimulationChecker[S, A]) checkTraceFromInitial(chooser Chooser[S, A]) {
	inits := c.model.InitStates()
	if len(inits) == 0 {
		return
	}
	state := inits[chooser.ChooseInitialState(inits)]

	var fps []fingerprint.Fingerprint
	// Per-run dedup for cycle detection; discarded when the run ends.
	generated := make(map[fingerprint.Fingerprint]struct{})
	ebits := initialEventuallyBits(c.properties)
	isTerminal := true
	var actions []A

	currentMax := int(c.maxDepth.Load())
	for {
		if len(fps) > currentMax {
			for {
				cur := c.maxDepth.Load()
				if int64(len(fps)) <= cur || c.maxDepth.CompareAndSwap(cur, int64(len(fps))) {
					break
				}
			}
			currentMax = len(fps)
		}
		if c.targetMaxDepth > 0 && len(fps) >= c.targetMaxDepth {
			// Cannot know whether this state is terminal, so no
			// eventually check for this run.
			return
		}

		fps = append(fps, fingerprint.Of(state))

		if c.visitor != nil {
			if path, err := pathFromFingerprints(c.model, nil, fps); err == nil {
				c.visitor.Visit(path)
			}
		}

		isAwaiting := false
		for i, p := range c.properties {
			if c.discoveries.has(p.Name) {
				continue
			}
			switch p.Expectation {
			case AlwaysExpectation:
				if !p.Condition(state) {
					c.record(p.Name, fps)
				} else {
					isAwaiting = true
				}
			case SometimesExpectation:
				if p.Condition(state) {
					c.record(p.Name, fps)
				} else {
					isAwaiting = true
				}
			case EventuallyExpectation:
				isAwaiting = true
				if p.Condition(state) {
					ebits.Clear(uint(i))
				}
			}
		}
		if !isAwaiting {
			break
		}

		actions = actions[:0]
		c.model.Actions(state, &actions)
		if len(actions) == 0 {
			break
		}
		action := actions[chooser.ChooseAction(state, actions)]

		next, ok := c.model.NextState(state, action)
		if !ok {
			break
		}
		state = next
		if c.boundary != nil && !c.boundary(state) {
			// The walk cannot continue past the boundary; the last
			// in-boundary state ends the run and is treated as
			// terminal for pending eventually obligations.
			break
		}
		c.stateCount.Add(1)

		// End the run on a cycle back to a state already seen on this
		// walk. A revisit is not treated as terminal: it may be a DAG
		// join rather than a loop.
		dedupFP := fingerprint.Of(state)
		if c.symmetry != nil {
			// Continue the walk with the raw state so the path stays
			// extendable; only the dedup key is canonicalized.
			dedupFP = fingerprint.Of(c.symmetry(state))
		}
		if _, seen := generated[dedupFP]; seen {
			isTerminal = false
			break
		}
		generated[dedupFP] = struct{}{}
	}
	if isTerminal && ebits != nil {
		for i, p := range c.properties {
			if ebits.Test(uint(i)) {
				c.record(p.Name, fps)
			}
		}
	}
}

func (c *SimulationChecker[S, A]) record(name string, fps []fingerprint.Fingerprint) {
	trace := make([]fingerprint.Fingerprint, len(fps))
	copy(trace, fps)
	if !c.discoveries.tryRecord(name, trace) {
		return
	}
	c.log.Debug("discovery recorded", "property", name)
	ev := events.Event{Category: events.CategoryDiscovery, Type: "discovery",
		Fields: map[string]any{"property": name}}
	_ = c.bus.Publish(ev)
	dispatch(c.observers, ev)
}

func (c *SimulationChecker[S, A]) Model() Model[S, A] { return c.model }

func (c *SimulationChecker[S, A]) StateCount() int { return int(c.stateCount.Load()) }

// UniqueStateCount approximates with the generated count; simulation does
// not track visited states globally.
func (c *SimulationChecker[S, A]) UniqueStateCount() int { return int(c.stateCount.Load()) }

func (c *SimulationChecker[S, A]) MaxDepth() int { return int(c.maxDepth.Load()) }

func (c *SimulationChecker[S, A]) IsDone() bool {
	return c.finished.Load() || c.cancelled.Load() || c.discoveries.len() == len(c.properties)
}

func (c *SimulationChecker[S, A]) Join() error {
	c.joinOnce.Do(func() {
		c.joinErr = c.group.Wait()
		c.finished.Store(true)
		ev := events.Event{Category: events.CategoryLifecycle, Type: "shutdown", Fields: map[string]any{}}
		_ = c.bus.Publish(ev)
		dispatch(c.observers, ev)
	})
	return c.joinErr
}

func (c *SimulationChecker[S, A]) Cancel() { c.cancelled.Store(true) }

func (c *SimulationChecker[S, A]) Discoveries() map[string]Path[S, A] {
	out := make(map[string]Path[S, A])
	for name, fps := range c.discoveries.snapshot() {
		path, err := pathFromFingerprints(c.model, nil, fps)
		if err != nil {
			panic(fmt.Sprintf("cannot reconstruct discovery for %q: %v", name, err))
		}
		out[name] = path
	}
	return out
}

func (c *SimulationChecker[S, A]) Discovery(name string) (Path[S, A], bool) {
	fps, ok := c.discoveries.snapshot()[name]
	if !ok {
		return Path[S, A]{}, false
	}
	path, err := pathFromFingerprints(c.model, nil, fps)
	if err != nil {
		panic(fmt.Sprintf("cannot reconstruct discovery for %q: %v", name, err))
	}
	return path, true
}
