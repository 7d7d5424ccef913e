package store

import (
	"sync"
	"testing"
)

type cell struct {
	s      *Store
	center float64
	name   string
}

func TestSetNotifiesOnlyOnChange(t *testing.T) {
	var got []Change
	c := &cell{}
	c.s = New(func(ch Change) { got = append(got, ch) })

	if !Set(c.s, "center", &c.center, 14.1) {
		t.Fatalf("first Set reported no change")
	}
	if Set(c.s, "center", &c.center, 14.1) {
		t.Fatalf("repeated Set reported a change")
	}
	if len(got) != 1 {
		t.Fatalf("got %d notifications, want 1", len(got))
	}
	if got[0].Property != "center" || got[0].Old != 0.0 || got[0].New != 14.1 {
		t.Fatalf("change = %+v", got[0])
	}
}

func TestNotifierRunsOutsideLock(t *testing.T) {
	c := &cell{}
	var seen string
	c.s = New(func(ch Change) {
		// Reading and writing from the callback would deadlock if the
		// exclusive section were still held.
		seen = Get(c.s, &c.name)
		if ch.Property == "name" {
			Set(c.s, "center", &c.center, 1)
		}
	})
	Set(c.s, "name", &c.name, "pan")
	if seen != "pan" {
		t.Fatalf("callback read %q, want pan", seen)
	}
	if Get(c.s, &c.center) != 1 {
		t.Fatalf("nested Set did not apply")
	}
}

func TestUpdateBatchesChanges(t *testing.T) {
	var got []Change
	c := &cell{}
	c.s = New(func(ch Change) { got = append(got, ch) })

	changes := Update(c.s, func(b *Batch) {
		Put(b, "center", &c.center, 7.0)
		Put(b, "name", &c.name, "a")
		Put(b, "name", &c.name, "a")
		if b.Changed() != 2 {
			t.Errorf("Changed = %d inside batch, want 2", b.Changed())
		}
	})
	if len(changes) != 2 || len(got) != 2 {
		t.Fatalf("changes = %d notified = %d, want 2/2", len(changes), len(got))
	}
	if got[0].Property != "center" || got[1].Property != "name" {
		t.Fatalf("notification order = %s,%s", got[0].Property, got[1].Property)
	}
}

func TestConcurrentReadersNeverSeeTornStrings(t *testing.T) {
	c := &cell{s: New(nil)}
	values := []string{"aaaaaaaaaaaaaaaa", "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"}
	var wg sync.WaitGroup
	stop := make(chan struct{})
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				v := Get(c.s, &c.name)
				if v != "" && v != values[0] && v != values[1] {
					t.Errorf("observed torn value %q", v)
					return
				}
			}
		}()
	}
	for i := 0; i < 2000; i++ {
		Set(c.s, "name", &c.name, values[i%2])
	}
	close(stop)
	wg.Wait()
}
