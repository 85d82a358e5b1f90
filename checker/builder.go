package checker

import (
	"log/slog"

	"veristate/fingerprint"
	"veristate/internal/telemetry/events"
	"veristate/internal/telemetry/metrics"
	"veristate/telemetry/logging"
)

// Builder configures a checking run. Obtain one with New, chain the
// configuration methods, then call SpawnBFS, SpawnDFS, or SpawnSimulation.
type Builder[S fingerprint.Hasher, A any] struct {
	model            Model[S, A]
	threads          int
	targetStateCount int
	targetMaxDepth   int
	symmetry         func(S) S
	visitor          Visitor[S, A]
	logger           *slog.Logger
	metricsBackend   string
	observers        []EventObserver
}

// New starts configuring a checker for the given model.
func New[S fingerprint.Hasher, A any](model Model[S, A]) *Builder[S, A] {
	return &Builder[S, A]{model: model, threads: 1}
}

// Threads sets the worker count. For maximum throughput this should match
// the number of cores.
func (b *Builder[S, A]) Threads(n int) *Builder[S, A] {
	if n > 0 {
		b.threads = n
	}
	return b
}

// TargetStateCount asks the checker to stop once it has generated at least
// this many states. For performance reasons it may overshoot, but it never
// generates fewer if more exist.
func (b *Builder[S, A]) TargetStateCount(n int) *Builder[S, A] {
	b.targetStateCount = n
	return b
}

// TargetMaxDepth stops expanding states at the given path depth. States at
// the cutoff are not treated as terminal.
func (b *Builder[S, A]) TargetMaxDepth(n int) *Builder[S, A] {
	b.targetMaxDepth = n
	return b
}

// Symmetry enables symmetry reduction: successors are canonicalized with
// the supplied representative function before fingerprinting and dedup. The
// function must deterministically map every member of an equivalence class
// to the same member.
func (b *Builder[S, A]) Symmetry(representative func(S) S) *Builder[S, A] {
	b.symmetry = representative
	return b
}

// Visitor registers a callback run on each evaluated path.
func (b *Builder[S, A]) Visitor(v Visitor[S, A]) *Builder[S, A] {
	b.visitor = v
	return b
}

// Logger wires structured diagnostics; silent by default.
func (b *Builder[S, A]) Logger(l *slog.Logger) *Builder[S, A] {
	b.logger = l
	return b
}

// MetricsBackend selects the metrics provider: "prometheus", "otel",
// "noop", or empty for none.
func (b *Builder[S, A]) MetricsBackend(name string) *Builder[S, A] {
	b.metricsBackend = name
	return b
}

// EventObserver registers a telemetry observer invoked for each lifecycle
// event (discoveries, shutdown).
func (b *Builder[S, A]) EventObserver(obs EventObserver) *Builder[S, A] {
	if obs != nil {
		b.observers = append(b.observers, obs)
	}
	return b
}

// SpawnBFS starts a breadth-first search. The call does not block; use
// Join to wait for completion.
func (b *Builder[S, A]) SpawnBFS() *ParallelChecker[S, A] {
	return spawnParallel(b, false)
}

// SpawnDFS starts a depth-first search, which keeps the frontier far
// smaller than BFS on deep state spaces.
func (b *Builder[S, A]) SpawnDFS() *ParallelChecker[S, A] {
	return spawnParallel(b, true)
}

// SpawnSimulation starts random-walk checking with the given seed and
// chooser. Unlike exhaustive search it only terminates when every property
// has a discovery, the target state count is reached, or the caller
// cancels.
func (b *Builder[S, A]) SpawnSimulation(seed uint64, chooser ChooserFactory[S, A]) *SimulationChecker[S, A] {
	return spawnSimulation(b, seed, chooser)
}

// telemetry materializes the builder's observability configuration.
func (b *Builder[S, A]) telemetry() (*slog.Logger, metrics.Provider, events.Bus) {
	log := b.logger
	if log == nil {
		log = logging.Nop()
	}
	provider := metrics.Select(b.metricsBackend)
	bus := events.NewBus(provider)
	return log, provider, bus
}

// dispatch bridges an internal bus event to registered observers.
func dispatch(observers []EventObserver, ev events.Event) {
	if len(observers) == 0 {
		return
	}
	pub := TelemetryEvent{Time: ev.Time, Category: ev.Category, Type: ev.Type, Fields: ev.Fields}
	for _, o := range observers {
		func() {
			defer func() { _ = recover() }()
			o(pub)
		}()
	}
}
