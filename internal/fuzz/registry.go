package fuzz

import (
	"candy/internal/heap"
	"candy/internal/hir"
	"candy/internal/tracer"
)

// Record is one fuzzable function discovered via the
// TraceFoundFuzzableFunction instruction (spec.md section 6's
// found_fuzzable_function tracer event), with its closure cloned into
// a heap the Collector owns independently of whichever fiber produced
// it — the module-body fiber that found it is free to settle and have
// its own heap reused/discarded afterward.
type Record struct {
	Definition hir.ID
	Function   heap.InlineObject
	NumArgs    int
}

// Collector implements tracer.Tracer, recording every fuzzable
// function a module-body run announces, grounded on
// original_source/compiler/fuzzer/src/utils.rs's FuzzablesFinder
// (there a `HashMap<Id, InlineObject>` collected the same way; this
// Go port additionally clones each closure into its own Heap so
// fuzzing can proceed after the announcing fiber is gone).
type Collector struct {
	tracer.Null
	Heap    *heap.Heap
	Records []Record
}

// NewCollector returns a Collector with its own heap ready to receive
// cloned closures.
func NewCollector() *Collector {
	return &Collector{Heap: heap.New()}
}

func (c *Collector) FoundFuzzableFunction(h *heap.Heap, definition hir.ID, function heap.InlineObject) {
	cloned := cloneAcross(c.Heap, h, function)
	numArgs := 0
	if cloned.Kind == heap.KindPointerValue {
		if obj := c.Heap.Get(cloned.Handle); obj != nil && obj.Closure != nil {
			numArgs = obj.Closure.NumArgs
		}
	}
	c.Records = append(c.Records, Record{Definition: definition, Function: cloned, NumArgs: numArgs})
}

var _ tracer.Tracer = (*Collector)(nil)

// cloneAcross copies v into dst when it references src, leaving
// self-contained inline values (ints, tags, builtin refs) untouched —
// the same clone-only-if-heap pattern internal/fiber/spawn.go uses to
// move a value between fiber heaps.
func cloneAcross(dst, src *heap.Heap, v heap.InlineObject) heap.InlineObject {
	if v.Kind != heap.KindPointerValue {
		return v
	}
	newHandle, _ := heap.Clone(dst, src, v.Handle)
	return heap.Pointer(newHandle)
}
