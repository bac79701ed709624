// Package heap implements Candy's runtime object store: refcounted
// heap-allocated objects (Text, List, Struct, tagged values, closures,
// big ints, channels, out-of-VM handles) plus the InlineObject value
// representation the VM's data stack actually holds (spec.md section
// 4.5).
package heap

import (
	"math/big"

	"fortio.org/safecast"
)

// Handle is a stable, monotonically increasing reference to a heap
// object. Handle(0) is never allocated and so is always invalid,
// matching vovakirdan-surge's internal/vm.Handle convention.
type Handle uint32

// Kind identifies the layout of a heap-allocated Object.
type Kind uint8

const (
	KindText Kind = iota
	KindList
	KindStruct
	KindTag // a symbol carrying a payload value (tags without one are represented inline, see inline.go)
	KindFunction
	KindBigInt
	KindChannel
	KindHandle // an out-of-VM callable registered by the embedder
)

// StructField is one key/value pair of a KindStruct object.
type StructField struct {
	Key   InlineObject
	Value InlineObject
}

// Closure is the payload of a KindFunction object: the LIR body start
// offset plus every InlineObject it captured from its defining scope
// (spec.md 4.4's CreateFunction{captured_offsets, num_args, body_start}).
type Closure struct {
	Captured  []InlineObject
	NumArgs   int
	BodyStart int
}

// Channel is the payload of a KindChannel object: a bounded FIFO with
// two waiter queues (spec.md 4.8).
type Channel struct {
	Capacity int
	Buffer   []InlineObject
	// SendWaiters/ReceiveWaiters hold the fiber-assigned operation ids
	// waiting on this channel; internal/fiber owns their resolution.
	SendWaiters    []PendingSend
	ReceiveWaiters []uint64
}

// PendingSend is a sender blocked because the channel buffer was full
// when it tried to enqueue packet.
type PendingSend struct {
	OperationID uint64
	Packet      InlineObject
}

// Object is one heap-allocated value. Tagged-struct style like every
// other stage's node type in this codebase: only the fields for Kind
// are meaningful.
type Object struct {
	Kind     Kind
	RefCount uint32
	Freed    bool

	Text string // KindText

	Items []InlineObject // KindList

	Fields []StructField // KindStruct

	Symbol   string       // KindTag
	Payload  InlineObject // KindTag

	Closure *Closure // KindFunction

	Int *big.Int // KindBigInt: ints that overflow InlineObject's inline range

	Channel *Channel // KindChannel

	HandleID uint64 // KindHandle: the embedder's id for this out-of-VM callable
}

// Heap owns every heap-allocated object live in one fiber (or the
// shared, read-only constant heap). Handles are never reused within a
// heap's lifetime.
type Heap struct {
	next Handle
	objs map[Handle]*Object
}

// New creates an empty heap.
func New() *Heap {
	return &Heap{next: 1, objs: map[Handle]*Object{}}
}

// Allocate stores obj with an initial refcount of 1 and returns its
// handle. Refcounted objects participate in Dup/Drop; non-refcounted
// ones (reserved for future constant-heap optimizations) never do.
func (h *Heap) Allocate(obj *Object) Handle {
	handle := h.next
	h.next++
	obj.RefCount = 1
	h.objs[handle] = obj
	return handle
}

// Get returns the object at handle, or nil if it has been freed or
// never existed in this heap.
func (h *Heap) Get(handle Handle) *Object {
	obj := h.objs[handle]
	if obj == nil || obj.Freed {
		return nil
	}
	return obj
}

// Len reports how many live objects this heap holds, for leak checks in
// tests (spec.md testable property 5).
func (h *Heap) Len() int { return len(h.objs) }

// Adopt moves other's live objects into h (spec.md 4.5's adopt
// operation) under fresh handles, so they cannot collide with h's own
// numbering. Each moved object keeps its refcount as is; refcounts are
// not summed. Handles inside the moved objects are rewritten through the
// returned old-to-new map; h's own objects are left untouched.
func (h *Heap) Adopt(other *Heap) map[Handle]Handle {
	remap := make(map[Handle]Handle, len(other.objs))
	for oldHandle, obj := range other.objs {
		if obj.Freed {
			continue
		}
		remap[oldHandle] = h.Allocate(obj)
		h.objs[remap[oldHandle]].RefCount = obj.RefCount
	}
	for _, newHandle := range remap {
		remapItems(h.objs[newHandle], remap)
	}
	return remap
}

func remapItems(obj *Object, remap map[Handle]Handle) {
	remapInline := func(v *InlineObject) {
		if v.Kind == KindPointerValue {
			if mapped, ok := remap[v.Handle]; ok {
				v.Handle = mapped
			}
		}
	}
	for i := range obj.Items {
		remapInline(&obj.Items[i])
	}
	for i := range obj.Fields {
		remapInline(&obj.Fields[i].Key)
		remapInline(&obj.Fields[i].Value)
	}
	remapInline(&obj.Payload)
	if obj.Closure != nil {
		for i := range obj.Closure.Captured {
			remapInline(&obj.Closure.Captured[i])
		}
	}
}

// Clone deep-copies handle's object graph from src into h, returning the
// new root handle plus the full old->new mapping so callers can rewrite
// further references (spec.md 4.5's clone-with-mapping primitive, used
// to transfer a channel packet between fibers' heaps).
func Clone(dst, src *Heap, handle Handle) (Handle, map[Handle]Handle) {
	mapping := map[Handle]Handle{}
	root := cloneInto(dst, src, handle, mapping)
	return root, mapping
}

func cloneInto(dst, src *Heap, handle Handle, mapping map[Handle]Handle) Handle {
	if existing, ok := mapping[handle]; ok {
		return existing
	}
	obj := src.Get(handle)
	if obj == nil {
		return 0
	}
	clone := &Object{Kind: obj.Kind, Text: obj.Text, Symbol: obj.Symbol, HandleID: obj.HandleID}
	if obj.Int != nil {
		clone.Int = new(big.Int).Set(obj.Int)
	}
	newHandle := dst.Allocate(clone)
	mapping[handle] = newHandle

	cloneInline := func(v InlineObject) InlineObject {
		if v.Kind != KindPointerValue {
			return v
		}
		return InlineObject{Kind: KindPointerValue, Handle: cloneInto(dst, src, v.Handle, mapping)}
	}
	for _, item := range obj.Items {
		clone.Items = append(clone.Items, cloneInline(item))
	}
	for _, f := range obj.Fields {
		clone.Fields = append(clone.Fields, StructField{Key: cloneInline(f.Key), Value: cloneInline(f.Value)})
	}
	clone.Payload = cloneInline(obj.Payload)
	if obj.Closure != nil {
		c := &Closure{NumArgs: obj.Closure.NumArgs, BodyStart: obj.Closure.BodyStart}
		for _, v := range obj.Closure.Captured {
			c.Captured = append(c.Captured, cloneInline(v))
		}
		clone.Closure = c
	}
	if obj.Channel != nil {
		ch := &Channel{Capacity: obj.Channel.Capacity}
		for _, v := range obj.Channel.Buffer {
			ch.Buffer = append(ch.Buffer, cloneInline(v))
		}
		clone.Channel = ch
	}
	return newHandle
}

// contentSize reports the approximate word count of obj's variable-size
// payload. Neither Allocate nor any other code in this module calls it.
func contentSize(obj *Object) int {
	n := len(obj.Items) + len(obj.Fields)*2
	size, err := safecast.Conv[int](n)
	if err != nil {
		return 0
	}
	return size
}
