package runtime

import "candy/internal/heap"

// EnvironmentChannels names the channel handles Main's environment
// struct exposes, when the embedder wires one up (spec.md section 6's
// "e.g. Stdin/Stdout send/receive handles"). A nil field is simply
// omitted from the struct; Main's own code decides whether it needed
// that capability.
type EnvironmentChannels struct {
	Stdin  heap.InlineObject
	Stdout heap.InlineObject
}

// BuildEnvironment constructs the struct passed as Main's sole
// argument. Every field is a Tag key (capitalized, matching
// hir.lowerer.pushExportsStruct's own key convention) over a channel
// handle value. A nil channels leaves the struct empty, covering
// spec.md section 8's `main = { environment -> 2 }` scenario, which
// never touches its argument.
func BuildEnvironment(h *heap.Heap, channels *EnvironmentChannels) heap.InlineObject {
	var fields []heap.StructField
	if channels != nil {
		if channels.Stdin.Kind == heap.KindPointerValue {
			fields = append(fields, heap.StructField{Key: heap.Tag("Stdin"), Value: channels.Stdin})
		}
		if channels.Stdout.Kind == heap.KindPointerValue {
			fields = append(fields, heap.StructField{Key: heap.Tag("Stdout"), Value: channels.Stdout})
		}
	}
	handle := h.Allocate(&heap.Object{Kind: heap.KindStruct, Fields: fields})
	return heap.Pointer(handle)
}
