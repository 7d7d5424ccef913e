package registry

import (
	"testing"

	"example.com/sdrmodel/internal/common"
	"example.com/sdrmodel/internal/event"
	"example.com/sdrmodel/internal/status"
	"example.com/sdrmodel/internal/store"
)

type widget struct {
	Base
	name    string
	port    int
	removed bool
}

func (w *widget) ApplyProperties(props []status.Property) {
	for _, p := range props {
		switch p.Key {
		case "name":
			store.Set(w.Store(), "name", &w.name, p.Value)
		case "port":
			n, err := status.ParseInt(p.Value)
			if err != nil {
				w.Invalid(p, err)
				continue
			}
			store.Set(w.Store(), "port", &w.port, n)
		default:
			w.Unknown(p)
		}
	}
}

func (w *widget) Ready() bool {
	return store.Get(w.Store(), &w.name) != "" && store.Get(w.Store(), &w.port) != 0
}

func (w *widget) Removed() { w.removed = true }

func newWidgets(bus *event.Bus, m *common.Metrics) *Collection[*widget] {
	return NewCollection("widget", bus, m, func(id ID) *widget {
		w := &widget{}
		w.Init(id, "widget", bus, m)
		return w
	})
}

func drain(sub *event.Subscription) []event.Event {
	var out []event.Event
	for {
		select {
		case ev := <-sub.C():
			out = append(out, ev)
		default:
			return out
		}
	}
}

func count(evs []event.Event, typ event.Type) int {
	n := 0
	for _, ev := range evs {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

func TestApplyAddedExactlyOnce(t *testing.T) {
	bus := event.NewBus()
	sub := bus.Subscribe(64)
	c := newWidgets(bus, nil)

	lines := [][]status.Property{
		status.Fields("name=amp"),
		status.Fields("port=4992"),
		status.Fields("name=amp port=4992"),
		status.Fields("port=4992"),
	}
	for i, props := range lines {
		w, ok := c.Apply(7, props, true)
		if !ok || w == nil {
			t.Fatalf("line %d: Apply returned no object", i)
		}
		if i == 0 && w.Initialized() {
			t.Fatalf("object initialized before readiness")
		}
	}
	evs := drain(sub)
	if n := count(evs, event.Added); n != 1 {
		t.Fatalf("Added fired %d times, want 1", n)
	}
	if n := count(evs, event.PropertyChanged); n != 2 {
		t.Fatalf("PropertyChanged fired %d times, want 2", n)
	}
	w, _ := c.Get(7)
	if !w.Initialized() {
		t.Fatalf("object not initialized")
	}
}

func TestObjectVisibleBeforeReady(t *testing.T) {
	c := newWidgets(nil, nil)
	c.Apply(3, status.Fields("name=x"), true)
	if _, ok := c.Get(3); !ok {
		t.Fatalf("object not registered on first line")
	}
	if c.Len() != 1 {
		t.Fatalf("Len = %d, want 1", c.Len())
	}
}

func TestRemoveIdempotent(t *testing.T) {
	bus := event.NewBus()
	sub := bus.Subscribe(16)
	c := newWidgets(bus, nil)

	if c.Remove(99) {
		t.Fatalf("Remove of absent id reported success")
	}
	if _, ok := c.Apply(99, nil, false); ok {
		t.Fatalf("Apply with inUse=false returned an object")
	}
	if evs := drain(sub); len(evs) != 0 {
		t.Fatalf("absent removal emitted %d events", len(evs))
	}

	w, _ := c.Apply(5, status.Fields("name=a port=1"), true)
	drain(sub)
	if !c.Remove(5) {
		t.Fatalf("Remove of present id failed")
	}
	evs := drain(sub)
	if len(evs) != 1 || evs[0].Type != event.WillRemove || evs[0].ID != 5 {
		t.Fatalf("removal events = %+v", evs)
	}
	if !w.removed {
		t.Fatalf("Removed hook not called")
	}
	if c.Remove(5) {
		t.Fatalf("second Remove reported success")
	}
}

func TestUnknownTokensTolerated(t *testing.T) {
	m := common.NewMetrics()
	c := newWidgets(nil, m)
	w, _ := c.Apply(1, status.Fields("name=amp frobnicate=yes port=80 port=bad"), true)
	if store.Get(w.Store(), &w.name) != "amp" || store.Get(w.Store(), &w.port) != 80 {
		t.Fatalf("known fields not applied: %q %d", w.name, w.port)
	}
	if m.Get(common.UnknownTokens) != 1 {
		t.Fatalf("unknown tokens = %d, want 1", m.Get(common.UnknownTokens))
	}
	if m.Get(common.Malformed) != 1 {
		t.Fatalf("malformed = %d, want 1", m.Get(common.Malformed))
	}
}

func TestAcceptFilter(t *testing.T) {
	m := common.NewMetrics()
	const mine = "0x1234"
	c := newWidgets(nil, m).WithAccept(func(props []status.Property, exists bool) bool {
		h, ok := status.Lookup(props, "client_handle")
		if !ok {
			return exists
		}
		return h == mine
	})

	if _, ok := c.Apply(1, status.Fields("client_handle=0x9999 name=other"), true); ok {
		t.Fatalf("foreign line created an object")
	}
	if _, ok := c.Apply(2, status.Fields("name=orphan"), true); ok {
		t.Fatalf("line without handle created an object")
	}
	if _, ok := c.Apply(3, status.Fields("client_handle=0x1234 name=mine"), true); !ok {
		t.Fatalf("own line rejected")
	}
	if _, ok := c.Apply(3, status.Fields("port=5"), true); !ok {
		t.Fatalf("follow-up line for existing object rejected")
	}
	if c.Len() != 1 || c.Rejected() != 2 || m.Get(common.Unaddressed) != 2 {
		t.Fatalf("len=%d rejected=%d unaddressed=%d", c.Len(), c.Rejected(), m.Get(common.Unaddressed))
	}
}

func TestAllOrderedByID(t *testing.T) {
	c := newWidgets(nil, nil)
	for _, id := range []ID{30, 10, 20} {
		c.Apply(id, nil, true)
	}
	ids := c.IDs()
	if len(ids) != 3 || ids[0] != 10 || ids[1] != 20 || ids[2] != 30 {
		t.Fatalf("IDs = %v", ids)
	}
	w, ok := c.Find(func(w *widget) bool { return w.ID() > 15 })
	if !ok || w.ID() != 20 {
		t.Fatalf("Find returned %v,%v", w, ok)
	}
	if ID(0x40000000).String() != "0x40000000" {
		t.Fatalf("ID.String = %s", ID(0x40000000))
	}
}
