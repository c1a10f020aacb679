package ecs

import (
	"fmt"
	"sync"

	"github.com/kamstrup/intmap"
)

// Access is the intent a borrow is taken with.
type Access uint8

const (
	Read Access = iota
	Write
)

func (a Access) String() string {
	if a == Write {
		return "write"
	}
	return "read"
}

// borrowState counts readers; writeBorrowed marks an exclusive writer.
type borrowState int32

const writeBorrowed borrowState = -1

func (s borrowState) String() string {
	switch {
	case s == writeBorrowed:
		return "writer"
	case s == 1:
		return "1 reader"
	default:
		return fmt.Sprintf("%d readers", int32(s))
	}
}

// BorrowTracker enforces one-writer-or-many-readers per (entity, component) slot and per resource.
// Check and acquire happen under one lock, so concurrent systems can borrow safely. A conflicting
// borrow is a logic error in a system's declared access and panics with a *BorrowError.
type BorrowTracker struct {
	mu          sync.Mutex
	slots       *intmap.Map[uint64, borrowState]
	resources   *intmap.Map[DynamicId, borrowState]
	names       func(DynamicId) string
	outstanding int
}

// NewBorrowTracker creates an empty tracker. names resolves ids for error messages and may be nil.
func NewBorrowTracker(names func(DynamicId) string) *BorrowTracker {
	if names == nil {
		names = func(id DynamicId) string { return fmt.Sprintf("#%d", id) }
	}
	return &BorrowTracker{
		slots:     intmap.New[uint64, borrowState](1024),
		resources: intmap.New[DynamicId, borrowState](16),
		names:     names,
	}
}

func slotKey(e Entity, id DynamicId) uint64 {
	return uint64(e.Index())<<32 | uint64(id)
}

func acquireState(state borrowState, access Access) (borrowState, bool) {
	if access == Write {
		if state != 0 {
			return state, false
		}
		return writeBorrowed, true
	}
	if state == writeBorrowed {
		return state, false
	}
	return state + 1, true
}

func releaseState(state borrowState, access Access) borrowState {
	if access == Write {
		return 0
	}
	if state > 0 {
		return state - 1
	}
	return 0
}

// TryAcquire borrows the component id of e, returning a *BorrowError on conflict.
func (b *BorrowTracker) TryAcquire(e Entity, id DynamicId, access Access) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := slotKey(e, id)
	state, _ := b.slots.Get(key)
	next, ok := acquireState(state, access)
	if !ok {
		return &BorrowError{Entity: e, Component: id, Name: b.names(id), Held: state.String(), Requested: access}
	}
	b.slots.Put(key, next)
	b.outstanding++
	return nil
}

// Acquire is TryAcquire that panics on conflict.
func (b *BorrowTracker) Acquire(e Entity, id DynamicId, access Access) {
	if err := b.TryAcquire(e, id, access); err != nil {
		panic(err)
	}
}

// Release drops a borrow taken with Acquire.
func (b *BorrowTracker) Release(e Entity, id DynamicId, access Access) {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := slotKey(e, id)
	state, ok := b.slots.Get(key)
	if !ok {
		return
	}
	if next := releaseState(state, access); next == 0 {
		b.slots.Del(key)
	} else {
		b.slots.Put(key, next)
	}
	b.outstanding--
}

// TryAcquireResource borrows the resource id, returning a *BorrowError on conflict.
func (b *BorrowTracker) TryAcquireResource(id DynamicId, access Access) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	state, _ := b.resources.Get(id)
	next, ok := acquireState(state, access)
	if !ok {
		return &BorrowError{Resource: true, Component: id, Name: b.names(id), Held: state.String(), Requested: access}
	}
	b.resources.Put(id, next)
	b.outstanding++
	return nil
}

// AcquireResource is TryAcquireResource that panics on conflict.
func (b *BorrowTracker) AcquireResource(id DynamicId, access Access) {
	if err := b.TryAcquireResource(id, access); err != nil {
		panic(err)
	}
}

func (b *BorrowTracker) ReleaseResource(id DynamicId, access Access) {
	b.mu.Lock()
	defer b.mu.Unlock()

	state, ok := b.resources.Get(id)
	if !ok {
		return
	}
	if next := releaseState(state, access); next == 0 {
		b.resources.Del(id)
	} else {
		b.resources.Put(id, next)
	}
	b.outstanding--
}

// Outstanding returns the number of live borrows.
func (b *BorrowTracker) Outstanding() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.outstanding
}

// State reports the current readers and writer of a component slot.
func (b *BorrowTracker) State(e Entity, id DynamicId) (readers int, writer bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	state, _ := b.slots.Get(slotKey(e, id))
	if state == writeBorrowed {
		return 0, true
	}
	return int(state), false
}

// borrow is a single held guard.
type borrow struct {
	entity   Entity
	id       DynamicId
	access   Access
	resource bool
}

// borrowSet is the group of guards held by one query or resource handle.
type borrowSet struct {
	tracker *BorrowTracker
	held    []borrow
}

func (s *borrowSet) acquire(e Entity, id DynamicId, access Access) error {
	if err := s.tracker.TryAcquire(e, id, access); err != nil {
		return err
	}
	s.held = append(s.held, borrow{entity: e, id: id, access: access})
	return nil
}

func (s *borrowSet) acquireResource(id DynamicId, access Access) error {
	if err := s.tracker.TryAcquireResource(id, access); err != nil {
		return err
	}
	s.held = append(s.held, borrow{id: id, access: access, resource: true})
	return nil
}

func (s *borrowSet) release() {
	if s.tracker == nil {
		return
	}
	for _, h := range s.held {
		if h.resource {
			s.tracker.ReleaseResource(h.id, h.access)
		} else {
			s.tracker.Release(h.entity, h.id, h.access)
		}
	}
	s.held = s.held[:0]
}

func (s *borrowSet) len() int { return len(s.held) }
