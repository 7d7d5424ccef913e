// Package registry keeps the per-kind collections of dynamic model objects
// and drives their create, update and remove lifecycle from status tokens.
package registry

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"example.com/sdrmodel/internal/common"
	"example.com/sdrmodel/internal/event"
	"example.com/sdrmodel/internal/status"
	"example.com/sdrmodel/internal/store"
)

// ID is a radio assigned object or stream id.
type ID uint32

func (id ID) String() string {
	return fmt.Sprintf("0x%08X", uint32(id))
}

// MarshalText renders ids in hex, the way the radio prints them.
func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *ID) UnmarshalText(b []byte) error {
	v, err := status.ParseID(string(b))
	if err != nil {
		return err
	}
	*id = ID(v)
	return nil
}

// Object is implemented by every catalog type. Types satisfy base by
// embedding Base.
type Object interface {
	ID() ID
	Kind() string
	// ApplyProperties consumes the tokens of one status line.
	ApplyProperties(props []status.Property)
	// Ready reports whether the minimum viable state has been received.
	Ready() bool
	Initialized() bool
	base() *Base
}

// Base carries the identity, lock and lifecycle flag shared by all objects.
type Base struct {
	id          ID
	kind        string
	store       *store.Store
	bus         *event.Bus
	metrics     *common.Metrics
	initialized atomic.Bool
}

// Init must be called once by the constructor before the object is
// published to a collection.
func (b *Base) Init(id ID, kind string, bus *event.Bus, metrics *common.Metrics) {
	b.id = id
	b.kind = kind
	b.bus = bus
	b.metrics = metrics
	b.store = store.New(func(c store.Change) {
		bus.Publish(event.Event{
			Type:     event.PropertyChanged,
			Kind:     kind,
			ID:       uint32(id),
			Property: c.Property,
			Old:      c.Old,
			New:      c.New,
		})
	})
}

func (b *Base) ID() ID              { return b.id }
func (b *Base) Kind() string        { return b.kind }
func (b *Base) Store() *store.Store { return b.store }
func (b *Base) Initialized() bool   { return b.initialized.Load() }
func (b *Base) base() *Base         { return b }

// Metrics returns the counters the object reports into. It may be nil.
func (b *Base) Metrics() *common.Metrics { return b.metrics }

// Unknown records a token the object does not understand.
func (b *Base) Unknown(p status.Property) {
	b.metrics.Inc(common.UnknownTokens)
	common.Throttled("unknown:"+b.kind+":"+p.Key, "%s %s: unknown token %s=%q", b.kind, b.id, p.Key, p.Value)
}

// Invalid records a token whose value did not parse.
func (b *Base) Invalid(p status.Property, err error) {
	b.metrics.Inc(common.Malformed)
	common.Throttled("invalid:"+b.kind+":"+p.Key, "%s %s: %v", b.kind, b.id, &status.ParseError{Key: p.Key, Value: p.Value, Err: err})
}

// Remover is implemented by objects that release resources when erased.
type Remover interface {
	Removed()
}

// AcceptFunc decides whether a status line may touch the collection. exists
// reports whether the id is already present.
type AcceptFunc func(props []status.Property, exists bool) bool

// Collection is the id keyed set of one object kind.
type Collection[T Object] struct {
	kind    string
	newFn   func(ID) T
	accept  AcceptFunc
	bus     *event.Bus
	metrics *common.Metrics

	mu    sync.RWMutex
	items map[ID]T

	rejected atomic.Uint64
}

// NewCollection returns an empty collection building objects with newFn.
func NewCollection[T Object](kind string, bus *event.Bus, metrics *common.Metrics, newFn func(ID) T) *Collection[T] {
	return &Collection[T]{
		kind:    kind,
		newFn:   newFn,
		bus:     bus,
		metrics: metrics,
		items:   make(map[ID]T),
	}
}

// WithAccept installs a filter run before any status line is applied.
func (c *Collection[T]) WithAccept(fn AcceptFunc) *Collection[T] {
	c.accept = fn
	return c
}

func (c *Collection[T]) Kind() string { return c.kind }

// Apply processes one status line for id. When inUse is false the object is
// removed. Otherwise the object is looked up or created and registered
// before its properties are parsed, and Added is published the first time it
// becomes ready. The returned bool reports whether the object exists after
// the call.
func (c *Collection[T]) Apply(id ID, props []status.Property, inUse bool) (T, bool) {
	var zero T
	if !inUse {
		c.Remove(id)
		return zero, false
	}

	c.mu.Lock()
	obj, exists := c.items[id]
	if c.accept != nil && !c.accept(props, exists) {
		c.mu.Unlock()
		c.rejected.Add(1)
		c.metrics.Inc(common.Unaddressed)
		return zero, exists
	}
	if !exists {
		obj = c.newFn(id)
		c.items[id] = obj
	}
	c.mu.Unlock()

	obj.ApplyProperties(props)

	b := obj.base()
	if !b.initialized.Load() && obj.Ready() && b.initialized.CompareAndSwap(false, true) {
		c.bus.Publish(event.Event{Type: event.Added, Kind: c.kind, ID: uint32(id)})
	}
	return obj, true
}

// Remove announces and erases id. Absent ids are ignored.
func (c *Collection[T]) Remove(id ID) bool {
	c.mu.RLock()
	obj, ok := c.items[id]
	c.mu.RUnlock()
	if !ok {
		return false
	}
	c.bus.Publish(event.Event{Type: event.WillRemove, Kind: c.kind, ID: uint32(id)})

	c.mu.Lock()
	delete(c.items, id)
	c.mu.Unlock()
	if r, ok := any(obj).(Remover); ok {
		r.Removed()
	}
	return true
}

func (c *Collection[T]) Get(id ID) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	obj, ok := c.items[id]
	return obj, ok
}

// Find returns the first object, in id order, for which match is true.
func (c *Collection[T]) Find(match func(T) bool) (T, bool) {
	for _, obj := range c.All() {
		if match(obj) {
			return obj, true
		}
	}
	var zero T
	return zero, false
}

// All returns the objects ordered by id.
func (c *Collection[T]) All() []T {
	c.mu.RLock()
	out := make([]T, 0, len(c.items))
	for _, obj := range c.items {
		out = append(out, obj)
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

func (c *Collection[T]) IDs() []ID {
	all := c.All()
	ids := make([]ID, len(all))
	for i, obj := range all {
		ids[i] = obj.ID()
	}
	return ids
}

func (c *Collection[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Rejected returns how many status lines the accept filter turned away.
func (c *Collection[T]) Rejected() uint64 {
	return c.rejected.Load()
}
