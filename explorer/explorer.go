// Package explorer serves a web UI for walking a model's state space and
// watching a background checking run: the current status (state counts,
// property discoveries), and step-by-step navigation by action index from
// any initial state.
package explorer

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	_ "embed"

	"github.com/gorilla/mux"

	"veristate/checker"
	"veristate/fingerprint"
	"veristate/telemetry/logging"
)

//go:embed ui.html
var uiHTML []byte

// PropertyView is one property's status: expectation, name, and the
// encoded discovery path if one was found.
type PropertyView struct {
	Expectation string  `json:"expectation"`
	Name        string  `json:"name"`
	Discovery   *string `json:"discovery"`
}

// StatusView summarizes the checking run.
type StatusView struct {
	Done             bool           `json:"done"`
	Model            string         `json:"model"`
	StateCount       int            `json:"state_count"`
	UniqueStateCount int            `json:"unique_state_count"`
	MaxDepth         int            `json:"max_depth"`
	Properties       []PropertyView `json:"properties"`
	RecentPath       *string        `json:"recent_path"`
}

// StateView is one reachable state, labeled with the action that produced
// it.
type StateView struct {
	Action      string `json:"action,omitempty"`
	State       string `json:"state"`
	Fingerprint string `json:"fingerprint"`
	ActionIndex int    `json:"actionIndex"`
	Terminal    bool   `json:"terminal"`
}

// Explorer serves a model and its background checking run over HTTP.
type Explorer[S fingerprint.Hasher, A any] struct {
	model   checker.Model[S, A]
	builder *checker.Builder[S, A]
	log     *slog.Logger

	mu      sync.Mutex
	run     checker.Checker[S, A]
	started bool

	recentPath   atomic.Pointer[string]
	recentLogged atomic.Int64
}

// New wraps a configured builder for serving. The builder's model and
// options are used for the background run triggered by the UI.
func New[S fingerprint.Hasher, A any](model checker.Model[S, A], builder *checker.Builder[S, A], log *slog.Logger) *Explorer[S, A] {
	if log == nil {
		log = logging.Nop()
	}
	return &Explorer[S, A]{model: model, builder: builder, log: log}
}

// ensureRun lazily spawns the background BFS run, capturing a recent path
// every few seconds for the status view.
func (e *Explorer[S, A]) ensureRun() checker.Checker[S, A] {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.started {
		e.builder.Visitor(checker.VisitorFunc[S, A](func(p checker.Path[S, A]) {
			now := time.Now().Unix()
			last := e.recentLogged.Load()
			if now-last < 4 || !e.recentLogged.CompareAndSwap(last, now) {
				return
			}
			encoded := p.Encode()
			e.recentPath.Store(&encoded)
		}))
		e.run = e.builder.SpawnBFS()
		e.started = true
	}
	return e.run
}

// Handler returns the HTTP routes.
func (e *Explorer[S, A]) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/", e.handleUI).Methods(http.MethodGet)
	r.HandleFunc("/.status", e.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/.runtocompletion", e.handleRunToCompletion).Methods(http.MethodPost)
	r.PathPrefix("/.states").HandlerFunc(e.handleStates).Methods(http.MethodGet)
	return r
}

// Serve blocks serving the explorer at the given address.
func (e *Explorer[S, A]) Serve(addr string) error {
	e.log.Info("explorer listening", "addr", addr)
	server := &http.Server{Addr: addr, Handler: e.Handler(), ReadHeaderTimeout: 10 * time.Second}
	return server.ListenAndServe()
}

func (e *Explorer[S, A]) handleUI(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(uiHTML)
}

func (e *Explorer[S, A]) handleStatus(w http.ResponseWriter, _ *http.Request) {
	run := e.ensureRun()
	discoveries := map[string]checker.Path[S, A]{}
	if run.IsDone() {
		discoveries = run.Discoveries()
	}
	view := StatusView{
		Done:             run.IsDone(),
		Model:            fmt.Sprintf("%T", e.model),
		StateCount:       run.StateCount(),
		UniqueStateCount: run.UniqueStateCount(),
		MaxDepth:         run.MaxDepth(),
		RecentPath:       e.recentPath.Load(),
	}
	for _, p := range e.model.Properties() {
		pv := PropertyView{Expectation: p.Expectation.String(), Name: p.Name}
		if path, ok := discoveries[p.Name]; ok {
			encoded := path.Encode()
			pv.Discovery = &encoded
		}
		view.Properties = append(view.Properties, pv)
	}
	writeJSON(w, view)
}

func (e *Explorer[S, A]) handleRunToCompletion(w http.ResponseWriter, _ *http.Request) {
	run := e.ensureRun()
	go func() {
		if err := run.Join(); err != nil {
			e.log.Error("checking failed", "err", err)
		}
	}()
	w.WriteHeader(http.StatusAccepted)
}

// handleStates walks the action-index sequence in the URL: the first index
// selects an initial state, each further index selects an enabled action.
// The response lists the next steps available at that point.
func (e *Explorer[S, A]) handleStates(w http.ResponseWriter, req *http.Request) {
	rest := strings.TrimPrefix(req.URL.Path, "/.states")
	rest = strings.Trim(rest, "/")

	var indices []int
	if rest != "" {
		for _, part := range strings.Split(rest, "/") {
			i, err := strconv.Atoi(part)
			if err != nil || i < 0 {
				http.NotFound(w, req)
				return
			}
			indices = append(indices, i)
		}
	}

	inits := e.model.InitStates()
	if len(indices) == 0 {
		views := make([]StateView, 0, len(inits))
		for i, s := range inits {
			views = append(views, StateView{
				State:       fmt.Sprintf("%+v", s),
				Fingerprint: fingerprint.Of(s).String(),
				ActionIndex: i,
				Terminal:    len(nextStepViews(e.model, s)) == 0,
			})
		}
		writeJSON(w, views)
		return
	}

	if indices[0] >= len(inits) {
		http.NotFound(w, req)
		return
	}
	state := inits[indices[0]]
	for _, idx := range indices[1:] {
		steps := nextStepViews(e.model, state)
		if idx >= len(steps) {
			http.NotFound(w, req)
			return
		}
		state = steps[idx].state
	}
	steps := nextStepViews(e.model, state)
	views := make([]StateView, 0, len(steps))
	for i, step := range steps {
		views = append(views, StateView{
			Action:      step.action,
			State:       fmt.Sprintf("%+v", step.state),
			Fingerprint: fingerprint.Of(step.state).String(),
			ActionIndex: i,
			Terminal:    len(nextStepViews(e.model, step.state)) == 0,
		})
	}
	writeJSON(w, views)
}

type stepView[S any] struct {
	action string
	state  S
}

func nextStepViews[S fingerprint.Hasher, A any](m checker.Model[S, A], state S) []stepView[S] {
	var actions []A
	m.Actions(state, &actions)
	var out []stepView[S]
	for _, a := range actions {
		if next, ok := m.NextState(state, a); ok {
			out = append(out, stepView[S]{action: fmt.Sprintf("%v", a), state: next})
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
