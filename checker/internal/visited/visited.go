// Package visited maintains the run-wide fingerprint index: every state the
// checker has generated, keyed by fingerprint, with the fingerprint of the
// predecessor that first reached it. One predecessor per state is enough to
// reconstruct some path from an initial state to any visited state, which is
// all the checker promises. Entries are never removed or overwritten during
// a run.
package visited

import (
	"sync"
	"sync/atomic"

	"veristate/fingerprint"
)

const shardCount = 64

type entry struct {
	parent  fingerprint.Fingerprint
	hasRoot bool // true for initial states, which have no parent
}

type shard struct {
	mu sync.RWMutex
	m  map[fingerprint.Fingerprint]entry
}

// Index is a concurrent fingerprint -> parent fingerprint map.
type Index struct {
	shards [shardCount]shard
	length atomic.Int64
}

// New returns an empty index.
func New() *Index {
	idx := &Index{}
	for i := range idx.shards {
		idx.shards[i].m = make(map[fingerprint.Fingerprint]entry)
	}
	return idx
}

func (idx *Index) shardFor(fp fingerprint.Fingerprint) *shard {
	return &idx.shards[uint64(fp)%shardCount]
}

// TryInsertRoot records an initial state. Reports true if the fingerprint
// was absent.
func (idx *Index) TryInsertRoot(fp fingerprint.Fingerprint) bool {
	s := idx.shardFor(fp)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.m[fp]; ok {
		return false
	}
	s.m[fp] = entry{hasRoot: true}
	idx.length.Add(1)
	return true
}

// TryInsert atomically records fp with its parent if absent. Exactly one
// caller racing on the same fingerprint observes true.
func (idx *Index) TryInsert(fp, parent fingerprint.Fingerprint) bool {
	s := idx.shardFor(fp)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.m[fp]; ok {
		return false
	}
	s.m[fp] = entry{parent: parent}
	idx.length.Add(1)
	return true
}

// Lookup reports the parent of fp. isRoot is true for initial states.
func (idx *Index) Lookup(fp fingerprint.Fingerprint) (parent fingerprint.Fingerprint, isRoot, ok bool) {
	s := idx.shardFor(fp)
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.m[fp]
	return e.parent, e.hasRoot, ok
}

// Contains reports whether fp has been recorded.
func (idx *Index) Contains(fp fingerprint.Fingerprint) bool {
	_, _, ok := idx.Lookup(fp)
	return ok
}

// Len reports the number of unique states recorded.
func (idx *Index) Len() int {
	return int(idx.length.Load())
}
