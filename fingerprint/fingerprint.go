// Package fingerprint computes stable 64-bit content hashes of model states.
//
// A fingerprint must be a pure function of state contents: two semantically
// equal states yield equal fingerprints regardless of process, run, or the
// iteration order of any unordered container they hold. The checker treats
// two states with the same fingerprint as the same state, so hash quality
// matters more than speed here; xxhash gives both.
package fingerprint

import (
	"encoding/binary"
	"sort"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// Fingerprint identifies a state by content hash.
type Fingerprint uint64

// String renders the fingerprint the way the explorer encodes path segments.
func (f Fingerprint) String() string {
	return strconv.FormatUint(uint64(f), 10)
}

// Parse decodes a fingerprint rendered by String.
func Parse(s string) (Fingerprint, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	return Fingerprint(v), err
}

// Hasher is implemented by state types so the checker can fingerprint them.
// Implementations must write every field that participates in state equality
// and nothing else (no pointers, no timestamps, no scratch space).
type Hasher interface {
	Hash(s *Stream)
}

// Stream accumulates state content into a fingerprint.
type Stream struct {
	d *xxhash.Digest
}

// New returns an empty Stream.
func New() *Stream {
	return &Stream{d: xxhash.New()}
}

// Sum finalizes the stream.
func (s *Stream) Sum() Fingerprint {
	return Fingerprint(s.d.Sum64())
}

// Of fingerprints a single value.
func Of(h Hasher) Fingerprint {
	s := New()
	h.Hash(s)
	return s.Sum()
}

func (s *Stream) WriteUint64(v uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	_, _ = s.d.Write(buf[:])
}

func (s *Stream) WriteInt(v int) {
	s.WriteUint64(uint64(int64(v)))
}

func (s *Stream) WriteBool(v bool) {
	if v {
		s.WriteUint64(1)
	} else {
		s.WriteUint64(0)
	}
}

// WriteString writes a length-prefixed string so adjacent fields cannot
// alias one another.
func (s *Stream) WriteString(v string) {
	s.WriteUint64(uint64(len(v)))
	_, _ = s.d.WriteString(v)
}

func (s *Stream) WriteBytes(v []byte) {
	s.WriteUint64(uint64(len(v)))
	_, _ = s.d.Write(v)
}

// Write lets a Stream serve as an io.Writer for encoders.
func (s *Stream) Write(p []byte) (int, error) {
	return s.d.Write(p)
}

// Element hashes one element of an unordered container on a fresh stream.
// Collect the resulting sums and feed them to WriteSet on the outer stream.
func Element(fn func(*Stream)) uint64 {
	sub := New()
	fn(sub)
	return uint64(sub.Sum())
}

// WriteSet folds element hashes into the stream independent of their order.
// The sums are sorted before folding, so set and map iteration order cannot
// leak into the fingerprint. The caller's slice is not modified.
func (s *Stream) WriteSet(sums []uint64) {
	sorted := make([]uint64, len(sums))
	copy(sorted, sums)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	s.WriteUint64(uint64(len(sorted)))
	for _, sum := range sorted {
		s.WriteUint64(sum)
	}
}
