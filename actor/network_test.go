package actor

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veristate/fingerprint"
)

type testMsg string

func (m testMsg) Hash(s *fingerprint.Stream) { s.WriteString(string(m)) }

func env(src, dst Id, msg string) Envelope[testMsg] {
	return Envelope[testMsg]{Src: src, Dst: dst, Msg: testMsg(msg)}
}

func netFingerprint(n Network[testMsg]) fingerprint.Fingerprint {
	s := fingerprint.New()
	n.Hash(s)
	return s.Sum()
}

func TestUnorderedDuplicatingDeliverIsNoOp(t *testing.T) {
	n := NewUnorderedDuplicating(env(0, 1, "a"))
	before := netFingerprint(n)
	require.NoError(t, n.OnDeliver(env(0, 1, "a")))
	assert.Equal(t, before, netFingerprint(n), "envelope remains deliverable")
	assert.Equal(t, 1, n.Len())

	require.NoError(t, n.OnDrop(env(0, 1, "a")))
	assert.Equal(t, 0, n.Len())
}

func TestNonDuplicatingSendDeliverRoundTrip(t *testing.T) {
	n := NewUnorderedNonDuplicating(env(0, 1, "a"))
	before := netFingerprint(n)

	n.Send(env(0, 1, "b"))
	require.NoError(t, n.OnDeliver(env(0, 1, "b")))
	assert.Equal(t, before, netFingerprint(n), "send then deliver restores the multiset")

	n.Send(env(0, 1, "b"))
	require.NoError(t, n.OnDrop(env(0, 1, "b")))
	assert.Equal(t, before, netFingerprint(n), "send then drop restores the multiset")
}

func TestNonDuplicatingCountsCopies(t *testing.T) {
	n := NewUnorderedNonDuplicating[testMsg]()
	n.Send(env(0, 1, "a"))
	n.Send(env(0, 1, "a"))
	assert.Equal(t, 2, n.Len())

	// Two copies, one distinct deliverable envelope.
	seen := 0
	n.IterDeliverable(func(Envelope[testMsg]) bool { seen++; return true })
	assert.Equal(t, 1, seen)

	require.NoError(t, n.OnDeliver(env(0, 1, "a")))
	assert.Equal(t, 1, n.Len())
	require.NoError(t, n.OnDeliver(env(0, 1, "a")))
	assert.Equal(t, 0, n.Len())
	require.Error(t, n.OnDeliver(env(0, 1, "a")))
}

func TestOrderedOnlyHeadDeliverable(t *testing.T) {
	n := NewOrdered(env(0, 1, "first"), env(0, 1, "second"), env(2, 1, "other"))

	var deliverable []Envelope[testMsg]
	n.IterDeliverable(func(e Envelope[testMsg]) bool {
		deliverable = append(deliverable, e)
		return true
	})
	require.Len(t, deliverable, 2)
	assert.Equal(t, env(0, 1, "first"), deliverable[0])
	assert.Equal(t, env(2, 1, "other"), deliverable[1])
}

func TestOrderedFIFOPerFlow(t *testing.T) {
	n := NewOrdered[testMsg]()
	sent := []string{"a", "b", "c"}
	for _, m := range sent {
		n.Send(env(0, 1, m))
	}
	var delivered []string
	for n.Len() > 0 {
		n.IterDeliverable(func(e Envelope[testMsg]) bool {
			delivered = append(delivered, string(e.Msg))
			require.NoError(t, n.OnDeliver(e))
			return false
		})
	}
	assert.Equal(t, sent, delivered, "deliveries equal the send sequence")
}

func TestOrderedEmptyFlowNotRetained(t *testing.T) {
	empty := NewOrdered[testMsg]()
	before := netFingerprint(empty)

	n := NewOrdered[testMsg]()
	n.Send(env(0, 1, "a"))
	require.NoError(t, n.OnDeliver(env(0, 1, "a")))
	assert.Equal(t, before, netFingerprint(n),
		"draining a flow must be the exact inverse of filling it")
}

func TestNetworkHashIsOrderInsensitive(t *testing.T) {
	a := NewUnorderedDuplicating(env(0, 1, "x"), env(1, 0, "y"), env(2, 0, "z"))
	b := NewUnorderedDuplicating(env(2, 0, "z"), env(0, 1, "x"), env(1, 0, "y"))
	assert.Equal(t, netFingerprint(a), netFingerprint(b))
}

func TestNetworkCloneIsDeep(t *testing.T) {
	n := NewUnorderedNonDuplicating(env(0, 1, "a"))
	clone := n.Clone()
	require.NoError(t, clone.OnDeliver(env(0, 1, "a")))
	assert.Equal(t, 1, n.Len())
	assert.Equal(t, 0, clone.Len())
}

func TestParseNetworkVariant(t *testing.T) {
	for _, name := range NetworkVariantNames() {
		v, err := ParseNetworkVariant(name)
		require.NoError(t, err)
		assert.Equal(t, name, v.String())
	}
	_, err := ParseNetworkVariant("carrier-pigeon")
	assert.Error(t, err)
}

func TestIdAddrRoundTrip(t *testing.T) {
	addrs := []string{"127.0.0.1:3000", "10.0.0.7:65535", "192.168.1.1:1"}
	for _, raw := range addrs {
		addr, err := netip.ParseAddrPort(raw)
		require.NoError(t, err)
		assert.Equal(t, addr, FromAddr(addr).Addr())
	}
}
