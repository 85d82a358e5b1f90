package actor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veristate/checker"
	"veristate/fingerprint"
)

// timerState is the test actors' local state; none of them changes it.
type timerState uint32

func (s timerState) Hash(h *fingerprint.Stream) { h.WriteUint64(uint64(s)) }
func (s timerState) Clone() timerState          { return s }

type tick struct{}

func (tick) Hash(*fingerprint.Stream) {}

// oneShot arms a timer at start and does nothing when it fires.
type oneShot struct {
	NoRandom[testMsg, timerState, tick]
}

func (oneShot) OnStart(_ Id, _ Value, o *Out[testMsg, tick]) timerState {
	o.SetTimer(tick{}, ModelTimeout())
	return 0
}

func (oneShot) OnMsg(_ Id, _ *timerState, _ Id, _ testMsg, _ *Out[testMsg, tick]) {}

func (oneShot) OnTimeout(_ Id, _ *timerState, _ tick, _ *Out[testMsg, tick]) {}

func TestTimeoutClearsTimer(t *testing.T) {
	model := NewModel[testMsg, timerState, tick, struct{}, NoHistory](struct{}{}, NoHistory{}).
		Actor(oneShot{}).
		Property(checker.AlwaysExpectation, "unused", func(ModelState[testMsg, timerState, tick, NoHistory]) bool {
			return true
		})
	c := checker.New[ModelState[testMsg, timerState, tick, NoHistory], Action[testMsg, tick]](model).SpawnBFS()
	require.NoError(t, c.Join())
	// Initial state with the timer set, then the state after it fires.
	assert.Equal(t, 2, c.UniqueStateCount())
}

// rearm re-sets the same timer every time it fires.
type rearm struct {
	NoRandom[testMsg, timerState, tick]
}

func (rearm) OnStart(_ Id, _ Value, o *Out[testMsg, tick]) timerState {
	o.SetTimer(tick{}, ModelTimeout())
	return 0
}

func (rearm) OnMsg(_ Id, _ *timerState, _ Id, _ testMsg, _ *Out[testMsg, tick]) {}

func (rearm) OnTimeout(_ Id, _ *timerState, _ tick, o *Out[testMsg, tick]) {
	o.SetTimer(tick{}, ModelTimeout())
}

func TestRearmingTimeoutIsElided(t *testing.T) {
	model := NewModel[testMsg, timerState, tick, struct{}, NoHistory](struct{}{}, NoHistory{}).
		Actor(rearm{}).
		Property(checker.EventuallyExpectation, "never", func(ModelState[testMsg, timerState, tick, NoHistory]) bool {
			return false
		})
	c := checker.New[ModelState[testMsg, timerState, tick, NoHistory], Action[testMsg, tick]](model).SpawnBFS()
	require.NoError(t, c.Join())
	// The self-loop is elided, so the single state is terminal and the
	// unsatisfied obligation becomes a discovery.
	assert.Equal(t, 1, c.UniqueStateCount())
	_, found := c.Discovery("never")
	assert.True(t, found)
}

func TestUndeliverableMessagesIgnored(t *testing.T) {
	model := NewModel[testMsg, timerState, tick, struct{}, NoHistory](struct{}{}, NoHistory{}).
		Actor(oneShot{}).
		InitNetwork(NewUnorderedDuplicating(Envelope[testMsg]{Src: 0, Dst: 99, Msg: "hi"})).
		Property(checker.AlwaysExpectation, "unused", func(ModelState[testMsg, timerState, tick, NoHistory]) bool {
			return true
		})
	c := checker.New[ModelState[testMsg, timerState, tick, NoHistory], Action[testMsg, tick]](model).SpawnBFS()
	require.NoError(t, c.Join())
	// Actor 99 does not exist, so the envelope generates no deliveries;
	// only the timer transition happens.
	assert.Equal(t, 2, c.UniqueStateCount())
}

func TestCrashStopsActor(t *testing.T) {
	model := NewModel[testMsg, timerState, tick, struct{}, NoHistory](struct{}{}, NoHistory{}).
		Actor(oneShot{}).
		AllowCrashes(true).
		Property(checker.SometimesExpectation, "crashed with timer pending",
			func(s ModelState[testMsg, timerState, tick, NoHistory]) bool {
				return s.Crashed[0]
			})
	c := checker.New[ModelState[testMsg, timerState, tick, NoHistory], Action[testMsg, tick]](model).SpawnBFS()
	require.NoError(t, c.Join())
	found, ok := c.Discovery("crashed with timer pending")
	require.True(t, ok)
	last := found.LastState()
	assert.True(t, last.Crashed[0])
	assert.Equal(t, 0, last.Timers[0].Len(), "crash cancels pending timers")
}

func TestPeersAndMajority(t *testing.T) {
	assert.Equal(t, []Id{0, 2, 3}, Peers(1, 4))
	assert.Equal(t, 2, Majority(3))
	assert.Equal(t, 3, Majority(4))
	assert.Equal(t, 3, Majority(5))
}

func TestTimersSetIdempotent(t *testing.T) {
	timers := NewTimers[tick]()
	assert.True(t, timers.Set(tick{}))
	assert.False(t, timers.Set(tick{}))
	assert.Equal(t, 1, timers.Len())
	assert.True(t, timers.Cancel(tick{}))
	assert.False(t, timers.Cancel(tick{}))
}
