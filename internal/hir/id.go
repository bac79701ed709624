package hir

import (
	"fmt"
	"strings"

	"fortio.org/safecast"
)

// ID is a dense index into one module's IDTable. IDs from different
// modules are not comparable to each other; every HIR body is scoped to
// exactly one module's table. Index 0 always names the module root.
//
// Candy's original implementation stores each hierarchical id as an
// owned (module, Vec<String>) path; spec.md's design notes call that out
// as a pattern needing rearchitecting in a systems language ("never
// store full paths by value"). This table stores only a (parent, key)
// pair per id and reconstructs the path by walking parents, so minting a
// child id is O(1) regardless of nesting depth.
type ID uint32

// idEntry is one node of the parent-pointer tree: its path segment plus
// the id of its parent (root's parent is itself).
type idEntry struct {
	parent  ID
	segment string
}

// IDTable interns the hierarchical ids for a single module.
type IDTable struct {
	module  string
	entries []idEntry
}

// NewIDTable creates a table for module with id 0 reserved as its root.
func NewIDTable(module string) *IDTable {
	return &IDTable{module: module, entries: []idEntry{{parent: 0, segment: ""}}}
}

// Root returns the module's root id.
func (t *IDTable) Root() ID { return 0 }

// Module returns the table's owning module name.
func (t *IDTable) Module() string { return t.module }

// Child mints a new id one path segment below parent.
func (t *IDTable) Child(parent ID, segment string) ID {
	t.entries = append(t.entries, idEntry{parent: parent, segment: segment})
	id, err := safecast.Conv[uint32](len(t.entries) - 1)
	if err != nil {
		panic(fmt.Errorf("hir: id table overflow: %w", err))
	}
	return ID(id)
}

// String reconstructs the dotted display form "Module:a.b.c" by walking
// id's parent chain back to the root.
func (t *IDTable) String(id ID) string {
	if id == 0 {
		return t.module
	}
	var segments []string
	for cur := id; cur != 0; cur = t.entries[cur].parent {
		segments = append(segments, t.entries[cur].segment)
	}
	for i, j := 0, len(segments)-1; i < j; i, j = i+1, j-1 {
		segments[i], segments[j] = segments[j], segments[i]
	}
	return t.module + ":" + strings.Join(segments, ".")
}
