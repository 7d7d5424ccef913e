package publish

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"example.com/sdrmodel/internal/event"
)

type fakeConn struct {
	mu     sync.Mutex
	msgs   map[string][][]byte
	fail   bool
	closed bool
}

func (c *fakeConn) Publish(subject string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("broken pipe")
	}
	if c.msgs == nil {
		c.msgs = make(map[string][][]byte)
	}
	c.msgs[subject] = append(c.msgs[subject], data)
	return nil
}

func (c *fakeConn) Close() { c.closed = true }

func (c *fakeConn) count(subject string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.msgs[subject])
}

func TestSubjects(t *testing.T) {
	p := NewPublisher(&fakeConn{}, "shack.")
	cases := []struct {
		ev   event.Event
		want string
	}{
		{event.Event{Type: event.Added, Kind: "panadapter"}, "shack.panadapter.added"},
		{event.Event{Type: event.WillRemove, Kind: "dax_rx"}, "shack.dax_rx.removed"},
		{event.Event{Type: event.PropertyChanged, Kind: "a.b*"}, "shack.a_b_.changed"},
		{event.Event{Type: event.Added}, "shack._.added"},
	}
	for _, tc := range cases {
		if got := p.Subject(tc.ev); got != tc.want {
			t.Fatalf("Subject(%+v) = %q, want %q", tc.ev, got, tc.want)
		}
	}
}

func TestRunPublishesUntilClosed(t *testing.T) {
	conn := &fakeConn{}
	p := NewPublisher(conn, "sdr")
	bus := event.NewBus()
	sub := bus.Subscribe(16)

	done := make(chan error, 1)
	go func() { done <- p.Run(context.Background(), sub) }()

	bus.Publish(event.Event{Type: event.Added, Kind: "meter", ID: 7})
	bus.Publish(event.Event{Type: event.PropertyChanged, Kind: "meter", ID: 7, Property: "nam", New: "LEVEL"})
	deadline := time.Now().Add(2 * time.Second)
	for conn.count("sdr.meter.changed") == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("event never published")
		}
		time.Sleep(5 * time.Millisecond)
	}
	sub.Close()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}

	var ev event.Event
	if err := json.Unmarshal(conn.msgs["sdr.meter.added"][0], &ev); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.ID != 7 || ev.Type != event.Added {
		t.Fatalf("event = %+v", ev)
	}
	if pub, failed := p.Counts(); pub != 2 || failed != 0 {
		t.Fatalf("counts = %d/%d", pub, failed)
	}
}

func TestPublishFailureAndClose(t *testing.T) {
	conn := &fakeConn{fail: true}
	p := NewPublisher(conn, "sdr")
	if err := p.Publish(event.Event{Type: event.Added, Kind: "slice"}); err == nil {
		t.Fatalf("failure not reported")
	}
	p.Close()
	if !conn.closed {
		t.Fatalf("connection not closed")
	}
	if err := p.Publish(event.Event{Type: event.Added, Kind: "slice"}); err != nil {
		t.Fatalf("publish after close: %v", err)
	}
	if _, failed := p.Counts(); failed != 1 {
		t.Fatalf("failed = %d", failed)
	}
}

func TestRunStopsOnContext(t *testing.T) {
	p := NewPublisher(&fakeConn{}, "sdr")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.Run(ctx, event.NewBus().Subscribe(1)); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
}
