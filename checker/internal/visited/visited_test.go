package visited

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veristate/fingerprint"
)

func TestTryInsertIsIdempotent(t *testing.T) {
	idx := New()
	assert.True(t, idx.TryInsert(2, 1))
	assert.False(t, idx.TryInsert(2, 99))

	parent, isRoot, ok := idx.Lookup(2)
	require.True(t, ok)
	assert.False(t, isRoot)
	// First writer wins; the parent is never overwritten.
	assert.Equal(t, fingerprint.Fingerprint(1), parent)
	assert.Equal(t, 1, idx.Len())
}

func TestRootsHaveNoParent(t *testing.T) {
	idx := New()
	require.True(t, idx.TryInsertRoot(7))
	assert.False(t, idx.TryInsertRoot(7))
	assert.False(t, idx.TryInsert(7, 1))

	_, isRoot, ok := idx.Lookup(7)
	require.True(t, ok)
	assert.True(t, isRoot)
}

func TestLookupMissing(t *testing.T) {
	idx := New()
	_, _, ok := idx.Lookup(42)
	assert.False(t, ok)
	assert.False(t, idx.Contains(42))
}

func TestConcurrentInsertExactlyOneWinner(t *testing.T) {
	idx := New()
	const goroutines = 32
	const keys = 1000

	var wins atomic.Int64
	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for k := 0; k < keys; k++ {
				if idx.TryInsert(fingerprint.Fingerprint(k), fingerprint.Fingerprint(g)) {
					wins.Add(1)
				}
			}
		}(g)
	}
	wg.Wait()
	assert.Equal(t, int64(keys), wins.Load())
	assert.Equal(t, keys, idx.Len())
}
