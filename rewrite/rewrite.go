// Package rewrite provides permutation plans for symmetry reduction.
//
// A Plan is derived from one state and says how principal indices (actor
// identifiers, process ids) should be renamed so that behaviorally
// equivalent states collapse onto a single canonical representative. User
// state types apply a plan recursively via the Rewriter contract: every
// field that stores a principal index must be renamed, and every vector
// indexed by principal must be permuted with Reindex.
package rewrite

import "sort"

// Plan is a permutation of the dense index space [0, Len).
type Plan struct {
	to  []int // to[old] = new
	inv []int // inv[new] = old
}

// NewPlan builds a plan from an explicit old-to-new index mapping. The
// mapping must be a permutation.
func NewPlan(to []int) Plan {
	inv := make([]int, len(to))
	for old, new := range to {
		inv[new] = old
	}
	cp := make([]int, len(to))
	copy(cp, to)
	return Plan{to: cp, inv: inv}
}

// SortPlan returns the permutation that sorts n per-principal values, given
// their ordering. The resulting plan is a deterministic function of the
// values: renaming principals so that their values appear in sorted order
// yields the canonical representative of the equivalence class.
//
// Ties are broken by the original index, keeping the plan deterministic
// for states with equal per-principal values.
func SortPlan(n int, less func(i, j int) bool) Plan {
	order := make([]int, n) // order[new] = old
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return less(order[a], order[b]) })
	to := make([]int, n)
	for new, old := range order {
		to[old] = new
	}
	return Plan{to: to, inv: order}
}

// Len reports the size of the index space.
func (p Plan) Len() int { return len(p.to) }

// Index renames one principal index.
func (p Plan) Index(old int) int { return p.to[old] }

// Inverse reports which old index lands at a given new index.
func (p Plan) Inverse(new int) int { return p.inv[new] }

// Rewriter is implemented by values that embed principal indices and know
// how to rename them under a plan.
type Rewriter[T any] interface {
	Rewrite(Plan) T
}

// Reindex permutes a per-principal vector under the plan and rewrites each
// element with rw. The element that lived at old index i moves to index
// p.Index(i). Pass Identity for element types that hold no principal
// indices.
func Reindex[T any](p Plan, xs []T, rw func(T) T) []T {
	out := make([]T, len(xs))
	for new := range xs {
		out[new] = rw(xs[p.inv[new]])
	}
	return out
}

// ReindexRewrite is Reindex for element types implementing Rewriter.
func ReindexRewrite[T Rewriter[T]](p Plan, xs []T) []T {
	return Reindex(p, xs, func(x T) T { return x.Rewrite(p) })
}

// Identity is a no-op element rewrite for Reindex.
func Identity[T any](x T) T { return x }
