// Package register wraps a replicated-store server actor with model-checked
// clients. Clients issue a configurable number of writes followed by a
// read, rotating across servers, and the message protocol doubles as the
// hook for recording an operation history: client sends are invocations,
// client receipts are returns.
package register

import (
	"fmt"

	"veristate/actor"
	"veristate/fingerprint"
	"veristate/semantics"
)

// MsgKind discriminates the register protocol envelope.
type MsgKind uint8

const (
	// PutMsg asks a server to store a value.
	PutMsg MsgKind = iota
	// GetMsg asks a server for the stored value.
	GetMsg
	// PutOkMsg acknowledges a Put.
	PutOkMsg
	// GetOkMsg answers a Get.
	GetOkMsg
	// InternalMsg carries the server protocol's own messages.
	InternalMsg
)

// Msg is the register protocol envelope, generic over the server-internal
// message type.
type Msg[I fingerprint.Hasher] struct {
	Kind      MsgKind
	RequestID uint64
	Value     byte
	Internal  I
}

func (m Msg[I]) Hash(s *fingerprint.Stream) {
	s.WriteUint64(uint64(m.Kind))
	s.WriteUint64(m.RequestID)
	s.WriteUint64(uint64(m.Value))
	if m.Kind == InternalMsg {
		m.Internal.Hash(s)
	}
}

func (m Msg[I]) String() string {
	switch m.Kind {
	case PutMsg:
		return fmt.Sprintf("Put(%d, %c)", m.RequestID, m.Value)
	case GetMsg:
		return fmt.Sprintf("Get(%d)", m.RequestID)
	case PutOkMsg:
		return fmt.Sprintf("PutOk(%d)", m.RequestID)
	case GetOkMsg:
		return fmt.Sprintf("GetOk(%d, %c)", m.RequestID, m.Value)
	default:
		return fmt.Sprintf("Internal(%v)", m.Internal)
	}
}

// Put constructs a store request.
func Put[I fingerprint.Hasher](requestID uint64, value byte) Msg[I] {
	return Msg[I]{Kind: PutMsg, RequestID: requestID, Value: value}
}

// Get constructs a read request.
func Get[I fingerprint.Hasher](requestID uint64) Msg[I] {
	return Msg[I]{Kind: GetMsg, RequestID: requestID}
}

// PutOk constructs a store acknowledgment.
func PutOk[I fingerprint.Hasher](requestID uint64) Msg[I] {
	return Msg[I]{Kind: PutOkMsg, RequestID: requestID}
}

// GetOk constructs a read reply.
func GetOk[I fingerprint.Hasher](requestID uint64, value byte) Msg[I] {
	return Msg[I]{Kind: GetOkMsg, RequestID: requestID, Value: value}
}

// Internal wraps a server-internal message.
func Internal[I fingerprint.Hasher](msg I) Msg[I] {
	return Msg[I]{Kind: InternalMsg, Internal: msg}
}

// State wraps either a client's bookkeeping or the server actor's state.
type State[SS actor.State[SS]] struct {
	IsClient bool

	// Client bookkeeping: the request currently awaited and how many
	// operations have been issued.
	Awaiting   uint64
	HasPending bool
	OpCount    uint64

	Server SS
}

func (s State[SS]) Hash(h *fingerprint.Stream) {
	h.WriteBool(s.IsClient)
	if s.IsClient {
		h.WriteBool(s.HasPending)
		h.WriteUint64(s.Awaiting)
		h.WriteUint64(s.OpCount)
		return
	}
	s.Server.Hash(h)
}

func (s State[SS]) Clone() State[SS] {
	out := s
	if !s.IsClient {
		out.Server = s.Server.Clone()
	}
	return out
}

// Actor is either a model-checked client or a wrapped server.
type Actor[I fingerprint.Hasher, SS actor.State[SS], T actor.Timer] struct {
	// Client configuration; used when Server is nil.
	PutCount    uint64
	ServerCount uint64

	Server actor.Actor[Msg[I], SS, T]
}

// Client builds a register client issuing putCount writes then a read.
func Client[I fingerprint.Hasher, SS actor.State[SS], T actor.Timer](putCount, serverCount uint64) Actor[I, SS, T] {
	return Actor[I, SS, T]{PutCount: putCount, ServerCount: serverCount}
}

// Server wraps a server actor.
func Server[I fingerprint.Hasher, SS actor.State[SS], T actor.Timer](server actor.Actor[Msg[I], SS, T]) Actor[I, SS, T] {
	return Actor[I, SS, T]{Server: server}
}

// requestID derives an operation's identifier from the client id and the
// operation's ordinal (their product), so one client's operations get
// distinct identifiers; ids of different clients can coincide.
func requestID(id actor.Id, opNumber uint64) uint64 {
	return uint64(id) * opNumber
}

// clientValue is the value the client writes: 'A' for the first client,
// 'B' for the second, and so on.
func clientValue(id actor.Id, serverCount uint64) byte {
	return byte('A' + uint64(id) - serverCount)
}

func (a Actor[I, SS, T]) serverFor(id actor.Id, opIndex uint64) actor.Id {
	return actor.Id((uint64(id) + opIndex) % a.ServerCount)
}

func (a Actor[I, SS, T]) OnStart(id actor.Id, storage actor.Value, o *actor.Out[Msg[I], T]) State[SS] {
	if a.Server != nil {
		return State[SS]{Server: a.Server.OnStart(id, storage, o)}
	}
	state := State[SS]{IsClient: true}
	if a.PutCount > 0 {
		req := requestID(id, 1)
		o.Send(a.serverFor(id, 0), Put[I](req, clientValue(id, a.ServerCount)))
		state.Awaiting, state.HasPending = req, true
		state.OpCount = 1
	} else {
		req := requestID(id, 1)
		o.Send(a.serverFor(id, 0), Get[I](req))
		state.Awaiting, state.HasPending = req, true
		state.OpCount = 1
	}
	return state
}

func (a Actor[I, SS, T]) OnMsg(id actor.Id, state *State[SS], src actor.Id, msg Msg[I], o *actor.Out[Msg[I], T]) {
	if a.Server != nil {
		a.Server.OnMsg(id, &state.Server, src, msg, o)
		return
	}
	if !state.HasPending || msg.RequestID != state.Awaiting {
		return
	}
	switch msg.Kind {
	case PutOkMsg:
		if state.OpCount < a.PutCount {
			req := requestID(id, state.OpCount+1)
			o.Send(a.serverFor(id, state.OpCount), Put[I](req, clientValue(id, a.ServerCount)))
			state.Awaiting = req
			state.OpCount++
		} else {
			req := requestID(id, state.OpCount+1)
			o.Send(a.serverFor(id, state.OpCount), Get[I](req))
			state.Awaiting = req
			state.OpCount++
		}
	case GetOkMsg:
		state.HasPending = false
		state.Awaiting = 0
	}
}

func (a Actor[I, SS, T]) OnTimeout(id actor.Id, state *State[SS], timer T, o *actor.Out[Msg[I], T]) {
	if a.Server != nil {
		a.Server.OnTimeout(id, &state.Server, timer, o)
	}
}

func (a Actor[I, SS, T]) OnRandom(id actor.Id, state *State[SS], random actor.Value, o *actor.Out[Msg[I], T]) {
	if a.Server != nil {
		a.Server.OnRandom(id, &state.Server, random, o)
	}
}

// RecordInvocations is the RecordMsgOut reducer: a client's Put or Get
// send invokes an operation on the history.
func RecordInvocations[C any, I fingerprint.Hasher](_ C, h semantics.RegisterHistory, env actor.Envelope[Msg[I]]) (semantics.RegisterHistory, bool) {
	switch env.Msg.Kind {
	case PutMsg:
		next, err := h.OnInvoke(uint64(env.Src), semantics.WriteOp(env.Msg.Value))
		return next, err == nil
	case GetMsg:
		next, err := h.OnInvoke(uint64(env.Src), semantics.ReadOp())
		return next, err == nil
	}
	return h, false
}

// RecordReturns is the RecordMsgIn reducer: a delivered PutOk or GetOk
// returns the thread's in-flight operation.
func RecordReturns[C any, I fingerprint.Hasher](_ C, h semantics.RegisterHistory, env actor.Envelope[Msg[I]]) (semantics.RegisterHistory, bool) {
	switch env.Msg.Kind {
	case PutOkMsg:
		next, err := h.OnReturn(uint64(env.Dst), semantics.RegisterRet{WriteOk: true})
		return next, err == nil
	case GetOkMsg:
		next, err := h.OnReturn(uint64(env.Dst), semantics.RegisterRet{Value: env.Msg.Value})
		return next, err == nil
	}
	return h, false
}
