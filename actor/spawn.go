package actor

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net"
	"net/netip"
	"sync"
	"time"

	"veristate/telemetry/logging"
)

// SpawnOptions configures a running actor. Messages cross the wire as
// JSON datagrams unless custom codecs are supplied.
type SpawnOptions[M Message] struct {
	Marshal   func(M) ([]byte, error)
	Unmarshal func([]byte) (M, error)
	Logger    *slog.Logger
}

// Spawned is a live actor bound to a UDP socket.
type Spawned struct {
	addr   netip.AddrPort
	conn   *net.UDPConn
	stop   chan struct{}
	done   chan struct{}
	closed sync.Once
}

// Addr reports the actor's bound address.
func (s *Spawned) Addr() netip.AddrPort { return s.addr }

// Stop shuts the actor down and waits for its loop to exit.
func (s *Spawned) Stop() {
	s.closed.Do(func() {
		close(s.stop)
		_ = s.conn.Close()
	})
	<-s.done
}

// event is one input to the actor's single-threaded loop.
type event[M Message, T Timer] struct {
	src   Id
	msg   M
	isMsg bool
	timer T
}

// Spawn runs an actor for real: messages map to JSON over UDP, set timers
// fire after a real duration drawn from their range, and random choices
// resolve immediately with real randomness. The actor's id encodes its
// socket address.
func Spawn[M Message, S State[S], T Timer](id Id, a Actor[M, S, T], opts SpawnOptions[M]) (*Spawned, error) {
	marshal := opts.Marshal
	if marshal == nil {
		marshal = func(m M) ([]byte, error) { return json.Marshal(m) }
	}
	unmarshal := opts.Unmarshal
	if unmarshal == nil {
		unmarshal = func(b []byte) (M, error) {
			var m M
			err := json.Unmarshal(b, &m)
			return m, err
		}
	}
	log := opts.Logger
	if log == nil {
		log = logging.New()
	}
	log = log.With("actor", id.Addr().String())

	addr := id.Addr()
	conn, err := net.ListenUDP("udp", net.UDPAddrFromAddrPort(addr))
	if err != nil {
		return nil, fmt.Errorf("bind %v: %w", addr, err)
	}

	sp := &Spawned{addr: addr, conn: conn, stop: make(chan struct{}), done: make(chan struct{})}
	events := make(chan event[M, T], 64)

	// Reader: datagrams become delivery events.
	go func() {
		buf := make([]byte, 65535)
		for {
			n, remote, err := conn.ReadFromUDPAddrPort(buf)
			if err != nil {
				select {
				case <-sp.stop:
				default:
					if !errors.Is(err, net.ErrClosed) {
						log.Error("read failed", "err", err)
					}
				}
				return
			}
			msg, err := unmarshal(buf[:n])
			if err != nil {
				log.Info("ignoring unparseable message", "src", remote.String(), "err", err)
				continue
			}
			select {
			case events <- event[M, T]{src: FromAddr(remote), msg: msg, isMsg: true}:
			case <-sp.stop:
				return
			}
		}
	}()

	// Actor loop: single-threaded over deliveries and timer fires.
	go func() {
		defer close(sp.done)
		rng := rand.New(rand.NewSource(time.Now().UnixNano()))
		timers := map[T]*time.Timer{}

		send := func(dst Id, msg M) {
			raw, err := marshal(msg)
			if err != nil {
				log.Error("marshal failed", "dst", dst.Addr().String(), "err", err)
				return
			}
			if _, err := conn.WriteToUDPAddrPort(raw, dst.Addr()); err != nil {
				log.Info("send failed", "dst", dst.Addr().String(), "err", err)
			}
		}
		var state S
		var apply func(out *Out[M, T])
		apply = func(out *Out[M, T]) {
			for _, c := range out.commands {
				switch c.kind {
				case commandSend:
					send(c.dst, c.msg)
				case commandSetTimer:
					if t, ok := timers[c.timer]; ok {
						t.Stop()
					}
					d := c.within.Min
					if span := c.within.Max - c.within.Min; span > 0 {
						d += time.Duration(rng.Int63n(int64(span)))
					}
					timer := c.timer
					timers[timer] = time.AfterFunc(d, func() {
						select {
						case events <- event[M, T]{timer: timer}:
						case <-sp.stop:
						}
					})
				case commandCancelTimer:
					if t, ok := timers[c.timer]; ok {
						t.Stop()
						delete(timers, c.timer)
					}
				case commandChooseRandom:
					if len(c.options) == 0 {
						continue
					}
					chosen := c.options[rng.Intn(len(c.options))]
					inner := &Out[M, T]{}
					a.OnRandom(id, &state, chosen, inner)
					apply(inner)
				}
			}
		}

		out := &Out[M, T]{}
		state = a.OnStart(id, nil, out)
		log.Info("actor started")
		apply(out)

		for {
			select {
			case <-sp.stop:
				for _, t := range timers {
					t.Stop()
				}
				return
			case ev := <-events:
				inner := &Out[M, T]{}
				if ev.isMsg {
					log.Debug("received message", "src", ev.src.Addr().String())
					a.OnMsg(id, &state, ev.src, ev.msg, inner)
				} else {
					if _, armed := timers[ev.timer]; !armed {
						continue
					}
					delete(timers, ev.timer)
					a.OnTimeout(id, &state, ev.timer, inner)
				}
				apply(inner)
			}
		}
	}()

	return sp, nil
}
