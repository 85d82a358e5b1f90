package actor

import (
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veristate/fingerprint"
	"veristate/telemetry/logging"
)

// probe records every message it receives and answers a hello with an ack.
type probeState uint32

func (s probeState) Hash(h *fingerprint.Stream) { h.WriteUint64(uint64(s)) }
func (s probeState) Clone() probeState          { return s }

type probe struct {
	NoTimeouts[testMsg, probeState, NoTimer]
	NoRandom[testMsg, probeState, NoTimer]

	mu       *sync.Mutex
	received *[]string
	replyTo  *Id // when set, bootstraps by sending "hello"
}

func (p probe) OnStart(_ Id, _ Value, o *Out[testMsg, NoTimer]) probeState {
	if p.replyTo != nil {
		o.Send(*p.replyTo, "hello")
	}
	return 0
}

func (p probe) OnMsg(_ Id, state *probeState, src Id, msg testMsg, o *Out[testMsg, NoTimer]) {
	p.mu.Lock()
	*p.received = append(*p.received, string(msg))
	p.mu.Unlock()
	if msg == "hello" {
		o.Send(src, "ack")
	}
	*state++
}

func TestSpawnExchangesMessagesOverUDP(t *testing.T) {
	var mu sync.Mutex
	var aGot, bGot []string

	aID := FromAddr(netip.MustParseAddrPort("127.0.0.1:42761"))
	bID := FromAddr(netip.MustParseAddrPort("127.0.0.1:42762"))

	a, err := Spawn[testMsg, probeState, NoTimer](aID,
		probe{mu: &mu, received: &aGot},
		SpawnOptions[testMsg]{Logger: logging.Nop()})
	require.NoError(t, err)
	defer a.Stop()

	b, err := Spawn[testMsg, probeState, NoTimer](bID,
		probe{mu: &mu, received: &bGot, replyTo: &aID},
		SpawnOptions[testMsg]{Logger: logging.Nop()})
	require.NoError(t, err)
	defer b.Stop()

	deadline := time.Now().Add(5 * time.Second)
	for {
		mu.Lock()
		done := len(aGot) > 0 && len(bGot) > 0
		mu.Unlock()
		if done || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, aGot, "a never received b's hello")
	assert.Equal(t, "hello", aGot[0])
	require.NotEmpty(t, bGot, "b never received a's ack")
	assert.Equal(t, "ack", bGot[0])
}
