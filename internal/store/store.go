// Package store provides the per-object synchronization domain every model
// object keeps its mutable fields behind.
//
// Reads of any field take the shared side of the object's lock; writes take
// the exclusive side. A write that changes a value produces a Change which is
// handed to the object's Notifier only after the lock has been released, so
// observers may read the object again from inside the callback.
package store

import "sync"

// Change describes one property mutation.
type Change struct {
	Property string
	Old      any
	New      any
}

// Notifier receives changes after the exclusive section is released.
type Notifier func(Change)

// Store is the lock shared by every field of one object.
type Store struct {
	mu     sync.RWMutex
	notify Notifier
}

// New returns a Store reporting changes to n. n may be nil.
func New(n Notifier) *Store {
	return &Store{notify: n}
}

// SetNotifier replaces the change callback.
func (s *Store) SetNotifier(n Notifier) {
	s.mu.Lock()
	s.notify = n
	s.mu.Unlock()
}

// Read runs fn under the shared lock. fn must not write fields of the same
// object.
func (s *Store) Read(fn func()) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn()
}

// Get returns *field under the shared lock.
func Get[T any](s *Store, field *T) T {
	s.mu.RLock()
	v := *field
	s.mu.RUnlock()
	return v
}

// Set stores v into *field under the exclusive lock and reports whether the
// value changed. The change is announced after the lock is released.
func Set[T comparable](s *Store, name string, field *T, v T) bool {
	s.mu.Lock()
	old := *field
	if old == v {
		s.mu.Unlock()
		return false
	}
	*field = v
	n := s.notify
	s.mu.Unlock()
	if n != nil {
		n(Change{Property: name, Old: old, New: v})
	}
	return true
}

// Batch collects changes made inside Update.
type Batch struct {
	changes []Change
}

// Put writes v into *field. It must only be called from inside Update.
func Put[T comparable](b *Batch, name string, field *T, v T) bool {
	old := *field
	if old == v {
		return false
	}
	*field = v
	b.changes = append(b.changes, Change{Property: name, Old: old, New: v})
	return true
}

// Changed reports how many fields the batch has modified so far.
func (b *Batch) Changed() int {
	return len(b.changes)
}

// Update runs fn under one exclusive section and announces every collected
// change, in write order, once the section is over. It returns the changes.
func Update(s *Store, fn func(b *Batch)) []Change {
	var b Batch
	s.mu.Lock()
	fn(&b)
	n := s.notify
	s.mu.Unlock()
	if n != nil {
		for _, c := range b.changes {
			n(c)
		}
	}
	return b.changes
}
