// Package events carries checker lifecycle notifications (progress ticks,
// discoveries, shutdown) to in-process subscribers such as the explorer and
// reporters. Publishing never blocks: a subscriber that cannot keep up drops
// events and the drop is counted.
package events

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"veristate/internal/telemetry/metrics"
)

const (
	CategoryProgress  = "progress"
	CategoryDiscovery = "discovery"
	CategoryLifecycle = "lifecycle"
)

// Event is one checker notification.
type Event struct {
	Time     time.Time      `json:"time"`
	Category string         `json:"category"`
	Type     string         `json:"type"`
	Fields   map[string]any `json:"fields,omitempty"`
}

// Subscription is one subscriber's view of the bus.
type Subscription interface {
	C() <-chan Event
	Close() error
	ID() int64
}

// Stats summarizes bus activity.
type Stats struct {
	Subscribers int64
	Published   uint64
	Dropped     uint64
}

// Bus fans events out to subscribers.
type Bus interface {
	Publish(ev Event) error
	Subscribe(buffer int) (Subscription, error)
	Unsubscribe(sub Subscription) error
	Stats() Stats
}

// NewBus returns a Bus. The provider may be nil.
func NewBus(provider metrics.Provider) Bus {
	b := &eventBus{subs: make(map[int64]*subscriber)}
	if provider != nil {
		b.mPublished = provider.NewCounter(metrics.CounterOpts{CommonOpts: metrics.CommonOpts{
			Namespace: "veristate", Subsystem: "events", Name: "published_total",
			Help: "Total events published"}})
		b.mDropped = provider.NewCounter(metrics.CounterOpts{CommonOpts: metrics.CommonOpts{
			Namespace: "veristate", Subsystem: "events", Name: "dropped_total",
			Help: "Total events dropped due to backpressure"}})
	}
	return b
}

type eventBus struct {
	mu     sync.RWMutex
	subs   map[int64]*subscriber
	nextID int64

	published atomic.Uint64
	dropped   atomic.Uint64

	mPublished metrics.Counter
	mDropped   metrics.Counter
}

func (b *eventBus) Publish(ev Event) error {
	if ev.Category == "" {
		return errors.New("event missing category")
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	b.mu.RLock()
	subs := make([]*subscriber, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.RUnlock()
	b.published.Add(1)
	if b.mPublished != nil {
		b.mPublished.Inc(1)
	}
	for _, s := range subs {
		select {
		case s.ch <- ev:
		default:
			b.dropped.Add(1)
			if b.mDropped != nil {
				b.mDropped.Inc(1)
			}
		}
	}
	return nil
}

func (b *eventBus) Subscribe(buffer int) (Subscription, error) {
	if buffer <= 0 {
		buffer = 64
	}
	id := atomic.AddInt64(&b.nextID, 1)
	sub := &subscriber{id: id, ch: make(chan Event, buffer), bus: b}
	b.mu.Lock()
	b.subs[id] = sub
	b.mu.Unlock()
	return sub, nil
}

func (b *eventBus) Unsubscribe(sub Subscription) error {
	if sub == nil {
		return nil
	}
	id := sub.ID()
	b.mu.Lock()
	s := b.subs[id]
	delete(b.subs, id)
	b.mu.Unlock()
	if s != nil {
		close(s.ch)
	}
	return nil
}

func (b *eventBus) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return Stats{
		Subscribers: int64(len(b.subs)),
		Published:   b.published.Load(),
		Dropped:     b.dropped.Load(),
	}
}

type subscriber struct {
	id  int64
	ch  chan Event
	bus *eventBus
}

func (s *subscriber) C() <-chan Event { return s.ch }
func (s *subscriber) ID() int64       { return s.id }
func (s *subscriber) Close() error    { return s.bus.Unsubscribe(s) }
