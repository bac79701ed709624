package tracer

import (
	"fmt"
	"strings"

	"candy/internal/heap"
)

// StackEntry is one open call frame as observed through CallStarted/
// CallEnded events. Grounded on
// original_source/compiler/src/vm/tracer/stack_trace.rs's StackEntry
// enum, narrowed to the one variant our event set actually produces
// (plain calls — Candy's `needs`/module-boundary tracing is folded into
// ordinary calls by this implementation's MIR lowering, rather than
// kept as separate trace event kinds).
type StackEntry struct {
	Callee    heap.InlineObject
	Arguments []heap.InlineObject
}

// StackTracer reconstructs a live call stack by pushing on CallStarted
// and popping on CallEnded, so a panic can be reported with the chain
// of calls that led to it (SPEC_FULL.md section 12's stack-trace-style
// panic report).
type StackTracer struct {
	Null
	stack []StackEntry
}

func (t *StackTracer) CallStarted(_ *heap.Heap, callee heap.InlineObject, arguments []heap.InlineObject) {
	t.stack = append(t.stack, StackEntry{Callee: callee, Arguments: arguments})
}

func (t *StackTracer) CallEnded(*heap.Heap, heap.InlineObject) {
	if len(t.stack) > 0 {
		t.stack = t.stack[:len(t.stack)-1]
	}
}

// Stack returns the currently open call frames, outermost first.
func (t *StackTracer) Stack() []StackEntry {
	return append([]StackEntry(nil), t.stack...)
}

// FormatPanic renders a stack-trace-style report: the panic reason
// followed by one line per open call frame, innermost first, matching
// the original's format_stack_traces ordering convention.
func FormatPanic(h *heap.Heap, reason heap.InlineObject, responsible heap.InlineObject, entries []StackEntry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "panic: %s\n", describe(h, reason))
	fmt.Fprintf(&b, "responsible: %s\n", describe(h, responsible))
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		fmt.Fprintf(&b, "  at %s(%s)\n", describe(h, e.Callee), describeArgs(h, e.Arguments))
	}
	return b.String()
}

// Describe renders v as a short human-readable label (an int, a tag
// name, a quoted text literal, or a placeholder for other heap
// objects), for the embedder's own result/panic reporting as well as
// FormatPanic's internal use.
func Describe(h *heap.Heap, v heap.InlineObject) string {
	return describe(h, v)
}

func describe(h *heap.Heap, v heap.InlineObject) string {
	switch v.Kind {
	case heap.KindSmallInt:
		return fmt.Sprintf("%d", v.Int)
	case heap.KindInlineTag:
		return v.Text
	case heap.KindBuiltinRef:
		return "builtin:" + v.Text
	case heap.KindPointerValue:
		obj := h.Get(v.Handle)
		if obj == nil {
			return "<freed>"
		}
		switch obj.Kind {
		case heap.KindText:
			return fmt.Sprintf("%q", obj.Text)
		case heap.KindFunction:
			return "<function>"
		default:
			return "<object>"
		}
	default:
		return "?"
	}
}

func describeArgs(h *heap.Heap, args []heap.InlineObject) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = describe(h, a)
	}
	return strings.Join(parts, ", ")
}
