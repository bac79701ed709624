// Package ids provides small, stable, monotonically increasing identifier
// arenas shared by every stage (rcst/cst/ast/hir/mir/lir each mint their
// own ID type backed by one of these rather than reusing pointers).
package ids

import (
	"fmt"

	"fortio.org/safecast"
)

// ID is an opaque dense identifier into an Arena.
type ID uint32

// Arena hands out sequential IDs and stores one T per ID.
type Arena[T any] struct {
	items []T
}

// NewArena creates an empty arena.
func NewArena[T any]() *Arena[T] {
	return &Arena[T]{}
}

// Add stores value and returns its freshly minted ID.
func (a *Arena[T]) Add(value T) ID {
	id, err := safecast.Conv[uint32](len(a.items))
	if err != nil {
		panic(fmt.Errorf("ids: arena overflow: %w", err))
	}
	a.items = append(a.items, value)
	return ID(id)
}

// Get returns a pointer to the value stored at id, so callers can both
// read and mutate arena-held nodes in place.
func (a *Arena[T]) Get(id ID) *T {
	return &a.items[id]
}

// Set overwrites the value stored at id.
func (a *Arena[T]) Set(id ID, value T) {
	a.items[id] = value
}

// Len returns the number of IDs minted so far.
func (a *Arena[T]) Len() int { return len(a.items) }

// Each calls fn with every (ID, value) pair in minting order.
func (a *Arena[T]) Each(fn func(ID, T)) {
	for i, v := range a.items {
		id, err := safecast.Conv[uint32](i)
		if err != nil {
			panic(fmt.Errorf("ids: arena overflow: %w", err))
		}
		fn(ID(id), v)
	}
}
