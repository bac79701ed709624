package heap

// ValueKind tags what an InlineObject holds without touching the heap.
// Modeled on vovakirdan-surge's internal/vm.ValueKind, but narrower:
// Candy's inline value space is exactly "small int, bare tag/symbol,
// builtin reference, or heap pointer" (spec.md 4.5) rather than the
// teacher's wider NaN-boxable set.
type ValueKind uint8

const (
	// KindSmallInt holds a machine int directly; only KindBigInt objects
	// on the heap need arbitrary precision.
	KindSmallInt ValueKind = iota
	// KindInlineTag holds a payload-less symbol (True, False, Nothing,
	// Equal, Less, Greater, ...) as plain text with zero heap allocation.
	//
	// This resolves the open question of how to represent the symbol
	// table (spec.md section 9 notes the two reference implementations
	// disagree: one interns symbols into ids, the other stores them
	// inline as heap Texts). Candy tags are few, short, and compared by
	// content far more often than stored in bulk, so interning buys
	// little; inline Texts also let equals() on two tags short-circuit
	// without ever touching a heap.
	KindInlineTag
	// KindBuiltinRef holds a builtin function's name, the inline form a
	// `KindReference` to a builtin resolves to once the VM links it
	// (spec.md 4.7).
	KindBuiltinRef
	// KindPointerValue holds a Handle into the owning Heap.
	KindPointerValue
)

// InlineObject is the value representation the VM's data stack holds:
// a small fixed-size struct that is either self-contained or a pointer
// into a Heap, never both (spec.md 4.5, testable property 4: "no value
// on the data stack is larger than a few machine words").
type InlineObject struct {
	Kind ValueKind

	Int int64  // KindSmallInt
	Text string // KindInlineTag symbol name / KindBuiltinRef builtin name

	Handle Handle // KindPointerValue
}

// Int creates an inline integer.
func Int(v int64) InlineObject { return InlineObject{Kind: KindSmallInt, Int: v} }

// Tag creates a payload-less inline symbol.
func Tag(name string) InlineObject { return InlineObject{Kind: KindInlineTag, Text: name} }

// BuiltinRef creates an inline reference to a builtin function by name.
func BuiltinRef(name string) InlineObject { return InlineObject{Kind: KindBuiltinRef, Text: name} }

// Pointer creates an inline reference to a heap object.
func Pointer(h Handle) InlineObject { return InlineObject{Kind: KindPointerValue, Handle: h} }

// IsHeap reports whether v references a heap-allocated Object.
func (v InlineObject) IsHeap() bool { return v.Kind == KindPointerValue && v.Handle != 0 }

var (
	// True, False, and Nothing are Candy's three ubiquitous bare tags,
	// interned here only to avoid re-allocating the same Go string
	// struct at every call site; they are still ordinary inline tags,
	// not a separate representation.
	True    = Tag("True")
	False   = Tag("False")
	Nothing = Tag("Nothing")
)

// Dup increments the refcount of v's heap object, if it has one. Every
// value pushed onto a second stack slot, captured by a closure, or
// stored into a struct/list must be Dup'd first (spec.md 4.5, mirroring
// vovakirdan-surge's internal/vm retain/release discipline).
func Dup(h *Heap, v InlineObject) {
	if !v.IsHeap() {
		return
	}
	obj := h.Get(v.Handle)
	if obj == nil {
		return
	}
	obj.RefCount++
}

// Drop decrements the refcount of v's heap object, if it has one,
// freeing (and recursively dropping every value it contains) once the
// count reaches zero.
func Drop(h *Heap, v InlineObject) {
	if !v.IsHeap() {
		return
	}
	obj := h.Get(v.Handle)
	if obj == nil {
		return
	}
	obj.RefCount--
	if obj.RefCount > 0 {
		return
	}
	free(h, v.Handle, obj)
}

func free(h *Heap, handle Handle, obj *Object) {
	obj.Freed = true
	delete(h.objs, handle)

	for _, item := range obj.Items {
		Drop(h, item)
	}
	for _, f := range obj.Fields {
		Drop(h, f.Key)
		Drop(h, f.Value)
	}
	if obj.Kind == KindTag {
		Drop(h, obj.Payload)
	}
	if obj.Closure != nil {
		for _, v := range obj.Closure.Captured {
			Drop(h, v)
		}
	}
	if obj.Channel != nil {
		for _, v := range obj.Channel.Buffer {
			Drop(h, v)
		}
		for _, pending := range obj.Channel.SendWaiters {
			Drop(h, pending.Packet)
		}
	}
}

// DropFrameLocals releases every local in locals, in strictly reverse
// order. Contract: implicit drops at function-frame exit run in
// strictly reverse local order, matching the teacher's dropFrameLocals
// and the stack-discipline invariant that makes refcounting
// deterministic (spec.md 4.6 step "return").
func DropFrameLocals(h *Heap, locals []InlineObject) {
	for i := len(locals) - 1; i >= 0; i-- {
		Drop(h, locals[i])
	}
}
