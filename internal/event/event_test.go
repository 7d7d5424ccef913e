package event

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestPublishDeliversInOrder(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(8)
	defer sub.Close()

	bus.Publish(Event{Type: Added, Kind: "panadapter", ID: 0x40000000})
	bus.Publish(Event{Type: PropertyChanged, Kind: "panadapter", ID: 0x40000000, Property: "center", Old: 0.0, New: 14.1})
	bus.Publish(Event{Type: WillRemove, Kind: "panadapter", ID: 0x40000000})

	want := []Type{Added, PropertyChanged, WillRemove}
	for i, w := range want {
		ev := <-sub.C()
		if ev.Type != w {
			t.Fatalf("event %d type = %s, want %s", i, ev.Type, w)
		}
		if ev.Time.IsZero() {
			t.Fatalf("event %d has no timestamp", i)
		}
	}
}

func TestPublishDropsWhenFull(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(1)
	for i := 0; i < 3; i++ {
		bus.Publish(Event{Type: Added, Kind: "meter", ID: uint32(i)})
	}
	if sub.Dropped() != 2 || bus.Dropped() != 2 {
		t.Fatalf("dropped = %d/%d, want 2/2", sub.Dropped(), bus.Dropped())
	}
	ev := <-sub.C()
	if ev.ID != 0 {
		t.Fatalf("kept event id %d, want 0", ev.ID)
	}
}

func TestSubscribeFuncFilters(t *testing.T) {
	bus := NewBus()
	sub := bus.SubscribeFunc(4, OfKind("meter"))
	bus.Publish(Event{Type: Added, Kind: "slice", ID: 1})
	bus.Publish(Event{Type: Added, Kind: "meter", ID: 2})
	ev := <-sub.C()
	if ev.Kind != "meter" || ev.ID != 2 {
		t.Fatalf("got %+v, want meter 2", ev)
	}
	if len(sub.C()) != 0 {
		t.Fatalf("unexpected extra events queued")
	}
}

func TestCloseDetaches(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(1)
	sub.Close()
	sub.Close()
	if bus.Subscribers() != 0 {
		t.Fatalf("Subscribers = %d after Close", bus.Subscribers())
	}
	if _, ok := <-sub.C(); ok {
		t.Fatalf("channel still open after Close")
	}
	bus.Publish(Event{Type: Added})
}

func TestNilBusIsInert(t *testing.T) {
	var bus *Bus
	bus.Publish(Event{Type: Added})
	if bus.Dropped() != 0 || bus.Subscribers() != 0 {
		t.Fatalf("nil bus reported activity")
	}
}

func TestEventJSON(t *testing.T) {
	data, err := json.Marshal(Event{Type: WillRemove, Kind: "amplifier", ID: 7})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !strings.Contains(string(data), `"type":"removed"`) {
		t.Fatalf("json = %s", data)
	}
}
