// Package event carries model lifecycle notifications to subscribers.
package event

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Type tags an Event.
type Type uint8

const (
	Added Type = iota + 1
	WillRemove
	PropertyChanged
)

func (t Type) String() string {
	switch t {
	case Added:
		return "added"
	case WillRemove:
		return "removed"
	case PropertyChanged:
		return "changed"
	default:
		return "unknown"
	}
}

// MarshalText lets events serialise their type by name.
func (t Type) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *Type) UnmarshalText(b []byte) error {
	for _, c := range []Type{Added, WillRemove, PropertyChanged} {
		if c.String() == string(b) {
			*t = c
			return nil
		}
	}
	return fmt.Errorf("event: unknown type %q", b)
}

// Event is one notification about a model object. Property, Old and New are
// only set for PropertyChanged.
type Event struct {
	Type     Type      `json:"type"`
	Kind     string    `json:"kind"`
	ID       uint32    `json:"id"`
	Property string    `json:"property,omitempty"`
	Old      any       `json:"old,omitempty"`
	New      any       `json:"new,omitempty"`
	Time     time.Time `json:"ts"`
}

// Subscription is a buffered feed of events. Events that do not fit are
// dropped and counted rather than blocking the publisher.
type Subscription struct {
	bus     *Bus
	id      int
	ch      chan Event
	filter  func(Event) bool
	dropped atomic.Uint64
	once    sync.Once
}

// C returns the receive side of the feed. It is closed by Close.
func (s *Subscription) C() <-chan Event { return s.ch }

// Dropped returns how many events were discarded for this subscriber.
func (s *Subscription) Dropped() uint64 { return s.dropped.Load() }

// Close detaches the subscription and closes its channel.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subs, s.id)
		close(s.ch)
		s.bus.mu.Unlock()
	})
}

// Bus fans events out to subscribers. The zero value is not usable; a nil
// *Bus silently discards everything.
type Bus struct {
	mu      sync.RWMutex
	next    int
	subs    map[int]*Subscription
	dropped atomic.Uint64
	now     func() time.Time
}

func NewBus() *Bus {
	return &Bus{subs: make(map[int]*Subscription), now: time.Now}
}

// Subscribe returns a feed with room for buffer pending events.
func (b *Bus) Subscribe(buffer int) *Subscription {
	return b.SubscribeFunc(buffer, nil)
}

// SubscribeFunc is Subscribe restricted to events for which keep returns
// true.
func (b *Bus) SubscribeFunc(buffer int, keep func(Event) bool) *Subscription {
	if buffer < 1 {
		buffer = 1
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.next++
	s := &Subscription{bus: b, id: b.next, ch: make(chan Event, buffer), filter: keep}
	b.subs[b.next] = s
	return s
}

// Publish delivers ev to every subscriber without blocking.
func (b *Bus) Publish(ev Event) {
	if b == nil {
		return
	}
	if ev.Time.IsZero() {
		ev.Time = b.now().UTC()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs {
		if s.filter != nil && !s.filter(ev) {
			continue
		}
		select {
		case s.ch <- ev:
		default:
			s.dropped.Add(1)
			b.dropped.Add(1)
		}
	}
}

// Dropped returns the total number of undelivered events.
func (b *Bus) Dropped() uint64 {
	if b == nil {
		return 0
	}
	return b.dropped.Load()
}

// Subscribers returns the number of attached subscriptions.
func (b *Bus) Subscribers() int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// OfKind keeps events whose Kind is one of kinds. No kinds keeps everything.
func OfKind(kinds ...string) func(Event) bool {
	if len(kinds) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(kinds))
	for _, k := range kinds {
		set[k] = struct{}{}
	}
	return func(ev Event) bool {
		_, ok := set[ev.Kind]
		return ok
	}
}
