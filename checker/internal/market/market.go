// Package market implements the shared job pool that exploration workers
// trade work through. A single mutex and condition variable coordinate
// publishing, stealing, and idle shutdown: when every worker is waiting and
// no job chunks remain, the market closes and all workers drain out.
package market

import (
	"log/slog"
	"sync"
)

// Market holds chunks of jobs shared between workers.
type Market[J any] struct {
	mu        sync.Mutex
	hasNewJob *sync.Cond

	open bool
	// Workers still participating in the run.
	workerCount int
	// Workers currently holding work (the rest are waiting in Pop).
	openCount int
	jobs      []*Deque[J]

	log *slog.Logger
}

// New creates an open market assuming workerCount workers start out working.
func New[J any](workerCount int, log *slog.Logger) *Market[J] {
	if log == nil {
		log = slog.Default()
	}
	m := &Market[J]{open: true, workerCount: workerCount, openCount: workerCount, log: log}
	m.hasNewJob = sync.NewCond(&m.mu)
	return m
}

// Pop blocks until a job chunk is available or the market closes. An empty
// deque means the market closed and the worker should exit. Callers must
// only invoke Pop when their local queue is empty.
func (m *Market[J]) Pop() *Deque[J] {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.open {
		return NewDeque[J]()
	}
	for {
		if n := len(m.jobs); n > 0 {
			job := m.jobs[n-1]
			m.jobs = m.jobs[:n-1]
			m.log.Debug("market: got jobs", "size", job.Len())
			return job
		}
		m.openCount--
		if m.openCount <= 0 {
			// Last running worker: nothing left anywhere, so the
			// whole run is complete.
			m.log.Debug("market: no jobs, last running worker")
			m.open = false
			m.hasNewJob.Broadcast()
			return NewDeque[J]()
		}
		m.log.Debug("market: no jobs, awaiting", "running", m.openCount)
		m.hasNewJob.Wait()
		if !m.open {
			return NewDeque[J]()
		}
		m.openCount++
	}
}

// Push publishes a whole chunk of jobs.
func (m *Market[J]) Push(jobs *Deque[J]) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.open {
		return
	}
	m.jobs = append(m.jobs, jobs)
	m.hasNewJob.Signal()
}

// SplitAndPush carves chunks off the caller's local queue for idle workers.
// The chunk size is len/(1+min(idle, len)) so the sharing worker keeps a
// proportional share. If the market has closed the local queue is cleared so
// the caller stops promptly.
func (m *Market[J]) SplitAndPush(jobs *Deque[J]) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.open {
		jobs.Clear()
		return
	}
	idle := m.workerCount - m.openCount
	if idle < 0 {
		idle = 0
	}
	pieces := 1 + min(idle, jobs.Len())
	size := jobs.Len() / pieces
	if size == 0 {
		return
	}
	m.log.Debug("market: sharing work", "pieces", pieces, "size", size, "running", m.openCount)
	for i := 1; i < pieces; i++ {
		m.jobs = append(m.jobs, jobs.SplitOff(size))
		m.hasNewJob.Signal()
	}
}

// Close shuts the market down; idle workers wake, observe closure, and exit.
func (m *Market[J]) Close() {
	m.mu.Lock()
	m.open = false
	m.hasNewJob.Broadcast()
	m.mu.Unlock()
}

// Leave records that a worker exited for good (discovery-complete or target
// reached) so the remaining workers can still detect global idleness.
func (m *Market[J]) Leave() {
	m.mu.Lock()
	m.workerCount--
	if m.openCount > 0 {
		m.openCount--
	}
	if m.workerCount <= 0 {
		m.open = false
	}
	m.hasNewJob.Broadcast()
	m.mu.Unlock()
}

// IsClosed reports whether the market has shut down.
func (m *Market[J]) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.open
}

// IsDrained reports whether no shared work remains and every participating
// worker is waiting.
func (m *Market[J]) IsDrained() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.open || (len(m.jobs) == 0 && m.openCount <= 0)
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
