package checker

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/bits-and-blooms/bitset"
	"golang.org/x/sync/errgroup"

	"veristate/checker/internal/market"
	"veristate/checker/internal/visited"
	"veristate/fingerprint"
	"veristate/internal/telemetry/events"
	"veristate/internal/telemetry/metrics"
)

// blockBudget bounds how many states a worker processes between market
// consultations, keeping shared-lock contention low while preventing one
// worker from monopolizing work.
const blockBudget = 1500

// job is one frontier state plus the metadata the worker loop needs: its
// fingerprint, the eventually obligations still pending on the path that
// reached it, and that path's length.
type job[S any] struct {
	state S
	fp    fingerprint.Fingerprint
	ebits *bitset.BitSet
	depth int
}

// ParallelChecker explores the state space exhaustively on a pool of
// workers. BFS and DFS differ only in which end of the local queue new jobs
// land on.
type ParallelChecker[S fingerprint.Hasher, A any] struct {
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

	index       *visited.Index
	mkt         *market.Market[job[S]]
	stateCount  atomic.Int64
	maxDepth    atomic.Int64
	discoveries *discoverySet
	cancelled   atomic.Bool
	finished    atomic.Bool

	group    *errgroup.Group
	joinOnce sync.Once
	joinErr  error

	mGenerated metrics.Gauge
	mUnique    metrics.Gauge
	mDepth     metrics.Gauge
	mFound     metrics.Counter
}

func spawnParallel[S fingerprint.Hasher, A any](b *Builder[S, A], dfs bool) *ParallelChecker[S, A] {
	log, provider, bus := b.telemetry()

	c := &ParallelChecker[S, A]{
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
		index:            visited.New(),
		discoveries:      newDiscoverySet(),
	}
	c.mGenerated = provider.NewGauge(metrics.GaugeOpts{CommonOpts: metrics.CommonOpts{
		Namespace: "veristate", Subsystem: "checker", Name: "generated_states",
		Help: "States generated including revisits"}})
	c.mUnique = provider.NewGauge(metrics.GaugeOpts{CommonOpts: metrics.CommonOpts{
		Namespace: "veristate", Subsystem: "checker", Name: "unique_states",
		Help: "Distinct states recorded in the visited index"}})
	c.mDepth = provider.NewGauge(metrics.GaugeOpts{CommonOpts: metrics.CommonOpts{
		Namespace: "veristate", Subsystem: "checker", Name: "max_depth",
		Help: "Deepest path length seen"}})
	c.mFound = provider.NewCounter(metrics.CounterOpts{CommonOpts: metrics.CommonOpts{
		Namespace: "veristate", Subsystem: "checker", Name: "discoveries_total",
		Help: "Property discoveries recorded"}})

	ebits := initialEventuallyBits(c.properties)

	pending := market.NewDeque[job[S]]()
	initCount := 0
	for _, s := range b.model.InitStates() {
		if c.symmetry != nil {
			s = c.symmetry(s)
		}
		if c.boundary != nil && !c.boundary(s) {
			continue
		}
		initCount++
		fp := fingerprint.Of(s)
		if !c.index.TryInsertRoot(fp) {
			continue
		}
		var eb *bitset.BitSet
		if ebits != nil {
			eb = ebits.Clone()
		}
		pending.PushBack(job[S]{state: s, fp: fp, ebits: eb, depth: 1})
	}
	c.stateCount.Store(int64(initCount))

	c.mkt = market.New[job[S]](b.threads, log)
	c.mkt.Push(pending)

	var g errgroup.Group
	for t := 0; t < b.threads; t++ {
		t := t
		g.Go(func() error { return c.worker(t, dfs) })
	}
	c.group = &g
	return c
}

// initialEventuallyBits sets a bit for each eventually property index, or
// returns nil if the model has none.
func initialEventuallyBits[S any](properties []Property[S]) *bitset.BitSet {
	var ebits *bitset.BitSet
	for i, p := range properties {
		if p.Expectation == EventuallyExpectation {
			if ebits == nil {
				ebits = bitset.New(uint(len(properties)))
			}
			ebits.Set(uint(i))
		}
	}
	return ebits
}

func (c *ParallelChecker[S, A]) worker(t int, dfs bool) (err error) {
	log := c.log.With("worker", t)
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("worker %d: model panic: %v", t, r)
			c.mkt.Close()
		}
	}()
	defer c.mkt.Leave()
	log.Debug("worker started")

	pending := market.NewDeque[job[S]]()
	for {
		if c.cancelled.Load() {
			c.mkt.Close()
			return nil
		}
		if pending.Len() == 0 {
			pending = c.mkt.Pop()
			if pending.Len() == 0 {
				log.Debug("no more work, shutting down", "unique", c.index.Len())
				return nil
			}
		}
		c.checkBlock(pending, dfs)
		c.mGenerated.Set(float64(c.stateCount.Load()))
		c.mUnique.Set(float64(c.index.Len()))
		c.mDepth.Set(float64(c.maxDepth.Load()))

		if c.discoveries.len() == len(c.properties) {
			log.Debug("discovery complete, shutting down", "unique", c.index.Len())
			c.mkt.Close()
			return nil
		}
		if c.targetStateCount > 0 && int(c.stateCount.Load()) >= c.targetStateCount {
			log.Debug("reached target state count, shutting down", "unique", c.index.Len())
			return nil
		}
		if pending.Len() > 1 {
			c.mkt.SplitAndPush(pending)
		}
	}
}

func (c *ParallelChecker[S, A]) checkBlock(pending *market.Deque[job[S]], dfs bool) {
	budget := blockBudget
	var actions []A
	currentMax := int(c.maxDepth.Load())
	for budget > 0 {
		budget--

		j, ok := pending.PopBack()
		if !ok {
			return
		}

		if j.depth > currentMax {
			for {
				cur := c.maxDepth.Load()
				if int64(j.depth) <= cur || c.maxDepth.CompareAndSwap(cur, int64(j.depth)) {
					break
				}
			}
			currentMax = j.depth
		}
		if c.targetMaxDepth > 0 && j.depth >= c.targetMaxDepth {
			continue
		}

		if c.visitor != nil {
			if path, err := c.pathTo(j.fp); err == nil {
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
				if !p.Condition(j.state) {
					c.record(p.Name, j.fp)
				} else {
					isAwaiting = true
				}
			case SometimesExpectation:
				if p.Condition(j.state) {
					c.record(p.Name, j.fp)
				} else {
					isAwaiting = true
				}
			case EventuallyExpectation:
				// Eventually discoveries are only identified at
				// terminal states, so this property remains
				// undecided here even if the predicate holds: it
				// might still be falsified along another path.
				isAwaiting = true
				if p.Condition(j.state) {
					j.ebits.Clear(uint(i))
				}
			}
		}
		if !isAwaiting {
			return
		}

		isTerminal := true
		actions = actions[:0]
		c.model.Actions(j.state, &actions)
		for _, a := range actions {
			next, ok := c.model.NextState(j.state, a)
			if !ok {
				continue
			}
			if c.boundary != nil && !c.boundary(next) {
				continue
			}
			if c.symmetry != nil {
				next = c.symmetry(next)
			}
			c.stateCount.Add(1)

			nfp := fingerprint.Of(next)
			if !c.index.TryInsert(nfp, j.fp) {
				// A back or cross edge. Known states are not treated
				// as terminal: a join in a DAG is non-terminal, and
				// conflating the two would produce false eventually
				// discoveries.
				isTerminal = false
				continue
			}
			isTerminal = false
			var eb *bitset.BitSet
			if j.ebits != nil {
				eb = j.ebits.Clone()
			}
			nj := job[S]{state: next, fp: nfp, ebits: eb, depth: j.depth + 1}
			if dfs {
				pending.PushBack(nj)
			} else {
				pending.PushFront(nj)
			}
		}
		if isTerminal && j.ebits != nil {
			for i, p := range c.properties {
				if j.ebits.Test(uint(i)) {
					c.record(p.Name, j.fp)
				}
			}
		}
	}
}

func (c *ParallelChecker[S, A]) record(name string, fp fingerprint.Fingerprint) {
	if !c.discoveries.tryRecord(name, []fingerprint.Fingerprint{fp}) {
		return
	}
	c.mFound.Inc(1)
	c.log.Debug("discovery recorded", "property", name, "fingerprint", fp)
	ev := events.Event{Category: events.CategoryDiscovery, Type: "discovery",
		Fields: map[string]any{"property": name, "fingerprint": fp.String()}}
	_ = c.bus.Publish(ev)
	dispatch(c.observers, ev)
}

// pathTo reconstructs a path from an initial state to the given
// fingerprint: walk parent pointers in the visited index to assemble the
// fingerprint sequence, then replay forward.
func (c *ParallelChecker[S, A]) pathTo(fp fingerprint.Fingerprint) (Path[S, A], error) {
	var fps []fingerprint.Fingerprint
	cur := fp
	for {
		parent, isRoot, ok := c.index.Lookup(cur)
		if !ok {
			return Path[S, A]{}, fmt.Errorf("fingerprint %v not in visited index", cur)
		}
		fps = append(fps, cur)
		if isRoot {
			break
		}
		cur = parent
	}
	for i, j := 0, len(fps)-1; i < j; i, j = i+1, j-1 {
		fps[i], fps[j] = fps[j], fps[i]
	}
	return pathFromFingerprints(c.model, c.symmetry, fps)
}

func (c *ParallelChecker[S, A]) Model() Model[S, A] { return c.model }

func (c *ParallelChecker[S, A]) StateCount() int { return int(c.stateCount.Load()) }

func (c *ParallelChecker[S, A]) UniqueStateCount() int { return c.index.Len() }

func (c *ParallelChecker[S, A]) MaxDepth() int { return int(c.maxDepth.Load()) }

func (c *ParallelChecker[S, A]) IsDone() bool {
	return c.finished.Load() ||
		c.mkt.IsClosed() ||
		c.discoveries.len() == len(c.properties)
}

// Join blocks until every worker has exited. The returned error is a fatal
// worker failure (model panic); discoveries are normal outcomes, not
// errors.
func (c *ParallelChecker[S, A]) Join() error {
	c.joinOnce.Do(func() {
		c.joinErr = c.group.Wait()
		c.finished.Store(true)
		ev := events.Event{Category: events.CategoryLifecycle, Type: "shutdown",
			Fields: map[string]any{"unique_states": c.index.Len()}}
		_ = c.bus.Publish(ev)
		dispatch(c.observers, ev)
	})
	return c.joinErr
}

// Cancel requests cooperative shutdown; in-flight expansion completes.
func (c *ParallelChecker[S, A]) Cancel() {
	c.cancelled.Store(true)
	c.mkt.Close()
}

// Discoveries reconstructs a path for every decided property. Panics if a
// path cannot be reconstructed, which indicates a nondeterministic model or
// a fingerprint collision.
func (c *ParallelChecker[S, A]) Discoveries() map[string]Path[S, A] {
	out := make(map[string]Path[S, A])
	for name, fps := range c.discoveries.snapshot() {
		path, err := c.pathTo(fps[0])
		if err != nil {
			panic(fmt.Sprintf("cannot reconstruct discovery for %q: %v", name, err))
		}
		out[name] = path
	}
	return out
}

// Discovery looks up a single property's discovery.
func (c *ParallelChecker[S, A]) Discovery(name string) (Path[S, A], bool) {
	fps, ok := c.discoveries.snapshot()[name]
	if !ok {
		return Path[S, A]{}, false
	}
	path, err := c.pathTo(fps[0])
	if err != nil {
		panic(fmt.Sprintf("cannot reconstruct discovery for %q: %v", name, err))
	}
	return path, true
}
