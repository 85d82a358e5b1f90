package actor

import (
	"fmt"
	"sort"

	"veristate/fingerprint"
	"veristate/rewrite"
)

// Envelope identifies a message in flight.
type Envelope[M Message] struct {
	Src, Dst Id
	Msg      M
}

func (e Envelope[M]) Hash(s *fingerprint.Stream) {
	e.Src.Hash(s)
	e.Dst.Hash(s)
	e.Msg.Hash(s)
}

func (e Envelope[M]) String() string {
	return fmt.Sprintf("%v→%v %v", e.Src, e.Dst, e.Msg)
}

// NetworkVariant selects the message-ordering and duplication semantics.
type NetworkVariant int

const (
	// UnorderedDuplicating: messages race one another and can be
	// redelivered any number of times.
	UnorderedDuplicating NetworkVariant = iota
	// UnorderedNonDuplicating: messages race one another but each copy is
	// delivered at most once.
	UnorderedNonDuplicating
	// Ordered: each (src, dst) flow is FIFO; only the head of a flow is
	// deliverable. Different flows are unordered relative to each other.
	Ordered
)

func (v NetworkVariant) String() string {
	switch v {
	case UnorderedDuplicating:
		return "unordered-duplicating"
	case UnorderedNonDuplicating:
		return "unordered-nonduplicating"
	case Ordered:
		return "ordered"
	}
	return "unknown"
}

// ParseNetworkVariant resolves a variant name as accepted on the CLI.
func ParseNetworkVariant(name string) (NetworkVariant, error) {
	switch name {
	case "unordered-duplicating", "unordered_duplicating":
		return UnorderedDuplicating, nil
	case "unordered-nonduplicating", "unordered_nonduplicating":
		return UnorderedNonDuplicating, nil
	case "ordered":
		return Ordered, nil
	}
	return 0, fmt.Errorf("unknown network variant %q", name)
}

// NetworkVariantNames lists the accepted variant names.
func NetworkVariantNames() []string {
	return []string{"unordered-duplicating", "unordered-nonduplicating", "ordered"}
}

type flowKey struct {
	src, dst Id
}

type multiEntry[M Message] struct {
	env   Envelope[M]
	count int
}

// Network holds the messages in flight under one of the three variants.
// Envelopes are keyed by fingerprint, consistent with the checker's
// fingerprint-as-equality approximation.
type Network[M Message] struct {
	variant NetworkVariant

	set   map[fingerprint.Fingerprint]Envelope[M] // unordered-duplicating
	multi map[fingerprint.Fingerprint]multiEntry[M]
	flows map[flowKey][]M // ordered; empty flows are never retained
}

// NewUnorderedDuplicating builds a network where messages have no ordering
// and can be redelivered.
func NewUnorderedDuplicating[M Message](envelopes ...Envelope[M]) Network[M] {
	n := Network[M]{variant: UnorderedDuplicating, set: map[fingerprint.Fingerprint]Envelope[M]{}}
	for _, e := range envelopes {
		n.Send(e)
	}
	return n
}

// NewUnorderedNonDuplicating builds a network where messages have no
// ordering and each copy delivers at most once.
func NewUnorderedNonDuplicating[M Message](envelopes ...Envelope[M]) Network[M] {
	n := Network[M]{variant: UnorderedNonDuplicating, multi: map[fingerprint.Fingerprint]multiEntry[M]{}}
	for _, e := range envelopes {
		n.Send(e)
	}
	return n
}

// NewOrdered builds a network with FIFO flows per (src, dst) pair.
func NewOrdered[M Message](envelopes ...Envelope[M]) Network[M] {
	n := Network[M]{variant: Ordered, flows: map[flowKey][]M{}}
	for _, e := range envelopes {
		n.Send(e)
	}
	return n
}

// NewNetwork builds an empty network of the given variant.
func NewNetwork[M Message](variant NetworkVariant) Network[M] {
	switch variant {
	case UnorderedNonDuplicating:
		return NewUnorderedNonDuplicating[M]()
	case Ordered:
		return NewOrdered[M]()
	default:
		return NewUnorderedDuplicating[M]()
	}
}

// Variant reports the network's semantics.
func (n Network[M]) Variant() NetworkVariant { return n.variant }

// Len reports the number of messages in flight, counting multiset copies.
func (n Network[M]) Len() int {
	switch n.variant {
	case UnorderedDuplicating:
		return len(n.set)
	case UnorderedNonDuplicating:
		total := 0
		for _, e := range n.multi {
			total += e.count
		}
		return total
	default:
		total := 0
		for _, q := range n.flows {
			total += len(q)
		}
		return total
	}
}

// Send places an envelope on the network.
func (n *Network[M]) Send(e Envelope[M]) {
	switch n.variant {
	case UnorderedDuplicating:
		n.set[fingerprint.Of(e)] = e
	case UnorderedNonDuplicating:
		fp := fingerprint.Of(e)
		entry := n.multi[fp]
		entry.env = e
		entry.count++
		n.multi[fp] = entry
	default:
		k := flowKey{e.Src, e.Dst}
		n.flows[k] = append(n.flows[k], e.Msg)
	}
}

// OnDeliver commits a delivery. For the duplicating variant this is a
// no-op: the envelope remains and can be redelivered. For the others it
// removes exactly one instance.
func (n *Network[M]) OnDeliver(e Envelope[M]) error {
	switch n.variant {
	case UnorderedDuplicating:
		return nil
	case UnorderedNonDuplicating:
		return n.removeOne(e)
	default:
		return n.removeHead(e)
	}
}

// OnDrop removes an envelope from the network.
func (n *Network[M]) OnDrop(e Envelope[M]) error {
	switch n.variant {
	case UnorderedDuplicating:
		delete(n.set, fingerprint.Of(e))
		return nil
	case UnorderedNonDuplicating:
		return n.removeOne(e)
	default:
		return n.removeHead(e)
	}
}

func (n *Network[M]) removeOne(e Envelope[M]) error {
	fp := fingerprint.Of(e)
	entry, ok := n.multi[fp]
	if !ok || entry.count < 1 {
		return fmt.Errorf("envelope not found: %v", e)
	}
	if entry.count == 1 {
		delete(n.multi, fp)
		return nil
	}
	entry.count--
	n.multi[fp] = entry
	return nil
}

func (n *Network[M]) removeHead(e Envelope[M]) error {
	k := flowKey{e.Src, e.Dst}
	q, ok := n.flows[k]
	if !ok {
		return fmt.Errorf("flow not found: src=%v dst=%v", e.Src, e.Dst)
	}
	want := fingerprint.Of(e.Msg)
	i := -1
	for j, msg := range q {
		if fingerprint.Of(msg) == want {
			i = j
			break
		}
	}
	if i < 0 {
		return fmt.Errorf("message not found in flow: %v", e)
	}
	if len(q) == 1 {
		// An empty flow is never retained: removing a message must be
		// the exact inverse of adding it, or fingerprints diverge.
		delete(n.flows, k)
		return nil
	}
	n.flows[k] = append(append([]M{}, q[:i]...), q[i+1:]...)
	return nil
}

// IterDeliverable visits each distinct deliverable envelope in a
// deterministic order: for unordered variants every distinct envelope, for
// the ordered variant only the head of each flow.
func (n Network[M]) IterDeliverable(fn func(Envelope[M]) bool) {
	switch n.variant {
	case UnorderedDuplicating:
		for _, fp := range sortedKeys(n.set) {
			if !fn(n.set[fp]) {
				return
			}
		}
	case UnorderedNonDuplicating:
		for _, fp := range sortedKeys(n.multi) {
			if !fn(n.multi[fp].env) {
				return
			}
		}
	default:
		for _, k := range sortedFlowKeys(n.flows) {
			q := n.flows[k]
			if !fn(Envelope[M]{Src: k.src, Dst: k.dst, Msg: q[0]}) {
				return
			}
		}
	}
}

// IterAll visits every message in flight, counting multiset copies and
// non-head flow entries.
func (n Network[M]) IterAll(fn func(Envelope[M]) bool) {
	switch n.variant {
	case UnorderedDuplicating:
		n.IterDeliverable(fn)
	case UnorderedNonDuplicating:
		for _, fp := range sortedKeys(n.multi) {
			e := n.multi[fp]
			for i := 0; i < e.count; i++ {
				if !fn(e.env) {
					return
				}
			}
		}
	default:
		for _, k := range sortedFlowKeys(n.flows) {
			for _, msg := range n.flows[k] {
				if !fn(Envelope[M]{Src: k.src, Dst: k.dst, Msg: msg}) {
					return
				}
			}
		}
	}
}

// Hash folds the network into a state fingerprint. Unordered containers
// fold order-insensitively; ordered flows preserve their FIFO sequence.
func (n Network[M]) Hash(s *fingerprint.Stream) {
	s.WriteInt(int(n.variant))
	switch n.variant {
	case UnorderedDuplicating:
		sums := make([]uint64, 0, len(n.set))
		for fp := range n.set {
			sums = append(sums, uint64(fp))
		}
		s.WriteSet(sums)
	case UnorderedNonDuplicating:
		sums := make([]uint64, 0, len(n.multi))
		for fp, e := range n.multi {
			sums = append(sums, fingerprint.Element(func(sub *fingerprint.Stream) {
				sub.WriteUint64(uint64(fp))
				sub.WriteInt(e.count)
			}))
		}
		s.WriteSet(sums)
	default:
		sums := make([]uint64, 0, len(n.flows))
		for k, q := range n.flows {
			sums = append(sums, fingerprint.Element(func(sub *fingerprint.Stream) {
				k.src.Hash(sub)
				k.dst.Hash(sub)
				sub.WriteInt(len(q))
				for _, msg := range q {
					msg.Hash(sub)
				}
			}))
		}
		s.WriteSet(sums)
	}
}

// Clone deep-copies the network.
func (n Network[M]) Clone() Network[M] {
	out := Network[M]{variant: n.variant}
	switch n.variant {
	case UnorderedDuplicating:
		out.set = make(map[fingerprint.Fingerprint]Envelope[M], len(n.set))
		for fp, e := range n.set {
			out.set[fp] = e
		}
	case UnorderedNonDuplicating:
		out.multi = make(map[fingerprint.Fingerprint]multiEntry[M], len(n.multi))
		for fp, e := range n.multi {
			out.multi[fp] = e
		}
	default:
		out.flows = make(map[flowKey][]M, len(n.flows))
		for k, q := range n.flows {
			out.flows[k] = append([]M{}, q...)
		}
	}
	return out
}

// Rewrite renames the principal ids in every envelope under a symmetry
// plan. Message payloads embedding ids are rewritten when the message type
// implements rewrite.Rewriter.
func (n Network[M]) Rewrite(plan rewrite.Plan) Network[M] {
	out := NewNetwork[M](n.variant)
	n.IterAll(func(e Envelope[M]) bool {
		out.Send(Envelope[M]{
			Src: Id(plan.Index(int(e.Src))),
			Dst: Id(plan.Index(int(e.Dst))),
			Msg: rewriteValue(e.Msg, plan),
		})
		return true
	})
	return out
}

// rewriteValue applies a plan to a value when it knows how to rewrite
// itself; other values pass through unchanged.
func rewriteValue[V any](v V, plan rewrite.Plan) V {
	if r, ok := any(v).(rewrite.Rewriter[V]); ok {
		return r.Rewrite(plan)
	}
	return v
}

func sortedKeys[V any](m map[fingerprint.Fingerprint]V) []fingerprint.Fingerprint {
	keys := make([]fingerprint.Fingerprint, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func sortedFlowKeys[M any](m map[flowKey][]M) []flowKey {
	keys := make([]flowKey, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].src != keys[j].src {
			return keys[i].src < keys[j].src
		}
		return keys[i].dst < keys[j].dst
	})
	return keys
}
