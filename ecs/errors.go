package ecs

import (
	"fmt"

	"github.com/rotisserie/eris"
)

var (
	// ErrEntityNotFound is returned for handles that never existed or whose generation is stale.
	ErrEntityNotFound = eris.New("entity does not exist")
	// ErrComponentNotFound is returned when a live entity lacks the requested component.
	ErrComponentNotFound = eris.New("entity does not have component")
	// ErrComponentNotRegistered is returned for ids and names the registry never allocated.
	ErrComponentNotRegistered = eris.New("component type is not registered")
	// ErrInvalidComponent is returned for values that cannot be stored as components.
	ErrInvalidComponent = eris.New("invalid component value")
	// ErrDuplicateComponent is returned when a bundle contains the same component twice.
	ErrDuplicateComponent = eris.New("duplicate component in bundle")
	ErrResourceNotFound   = eris.New("resource does not exist")
	ErrResourceExists     = eris.New("resource already exists")
	// ErrWorldLocked is returned by structural mutations attempted while borrows are outstanding.
	// Queue the change on a Commands buffer instead.
	ErrWorldLocked = eris.New("world has outstanding borrows")
	// ErrAccessOverlap is returned when a query names an id as both read and write.
	ErrAccessOverlap = eris.New("component requested as both read and write")
	// ErrUndeclaredAccess is returned when a system touches data outside its declared access set.
	ErrUndeclaredAccess = eris.New("access not declared by system")
	ErrUnknownStage     = eris.New("unknown stage")
	// ErrSystemPanicked wraps a panic recovered from a running system.
	ErrSystemPanicked = eris.New("system panicked")
)

// BorrowError describes a conflicting borrow. The tracker panics with a *BorrowError value.
type BorrowError struct {
	Entity    Entity
	Resource  bool
	Component DynamicId
	Name      string
	Held      string
	Requested Access
}

func (e *BorrowError) Error() string {
	if e.Resource {
		return fmt.Sprintf("failed to borrow resource %s for %s: already borrowed (%s)",
			e.Name, e.Requested, e.Held)
	}
	return fmt.Sprintf("failed to borrow component %s of entity %s for %s: already borrowed (%s)",
		e.Name, e.Entity, e.Requested, e.Held)
}

// assertThat panics when an internal invariant does not hold.
func assertThat(cond bool, msg string, args ...any) {
	if !cond {
		panic(eris.Errorf("ecs: "+msg, args...))
	}
}
