// Package tracer defines the pluggable observer interface the VM
// notifies as it executes Trace* instructions (spec.md section 6,
// SPEC_FULL.md section 10), plus a null implementation for when no
// observation is needed.
//
// Grounded directly on original_source/compiler/vm/src/tracer/mod.rs's
// Tracer trait: every method has a no-op default there (achieved via
// default trait methods), which Go expresses instead by shipping a
// Null tracer embeddable in richer ones.
package tracer

import (
	"candy/internal/heap"
	"candy/internal/hir"
)

// Tracer observes a fiber's execution. Every method is optional: embed
// Null to get no-op defaults and override only what you need.
type Tracer interface {
	ValueEvaluated(h *heap.Heap, expression hir.ID, value heap.InlineObject)
	FoundFuzzableFunction(h *heap.Heap, definition hir.ID, function heap.InlineObject)
	CallStarted(h *heap.Heap, callee heap.InlineObject, arguments []heap.InlineObject)
	CallEnded(h *heap.Heap, returnValue heap.InlineObject)
}

// Null is a Tracer whose every method does nothing. Embed it in a
// struct that overrides only the events it cares about.
type Null struct{}

func (Null) ValueEvaluated(*heap.Heap, hir.ID, heap.InlineObject)            {}
func (Null) FoundFuzzableFunction(*heap.Heap, hir.ID, heap.InlineObject)     {}
func (Null) CallStarted(*heap.Heap, heap.InlineObject, []heap.InlineObject) {}
func (Null) CallEnded(*heap.Heap, heap.InlineObject)                        {}

var _ Tracer = Null{}
