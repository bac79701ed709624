package vm

import "candy/internal/heap"

func (f *Fiber) asStruct(v heap.InlineObject) (*heap.Object, bool) {
	if v.Kind != heap.KindPointerValue {
		return nil, false
	}
	obj := f.Heap.Get(v.Handle)
	if obj == nil || obj.Kind != heap.KindStruct {
		return nil, false
	}
	return obj, true
}

func (f *Fiber) pushStruct(fields []heap.StructField) {
	handle := f.Heap.Allocate(&heap.Object{Kind: heap.KindStruct, Fields: fields})
	f.push(heap.Pointer(handle))
}

func findField(obj *heap.Object, f *Fiber, key heap.InlineObject) (int, bool) {
	for i, fld := range obj.Fields {
		if valuesEqual(f, fld.Key, key) {
			return i, true
		}
	}
	return 0, false
}

// builtinStructGet is the underlying struct-access helper mir/lower.go
// desugars field access and pattern-matching into (spec.md 4.7: "with
// its own panic paths for missing keys").
func (f *Fiber) builtinStructGet(args []heap.InlineObject, responsible heap.InlineObject) {
	obj, ok := f.asStruct(args[0])
	if !ok {
		f.dropArgs(args...)
		f.triggerPanic("structGet expects a struct", responsible)
		return
	}
	i, found := findField(obj, f, args[1])
	if !found {
		f.dropArgs(args...)
		f.triggerPanic("struct has no such key", responsible)
		return
	}
	v := obj.Fields[i].Value
	heap.Dup(f.Heap, v)
	f.dropArgs(args...)
	f.push(v)
}

func (f *Fiber) builtinStructHasKey(args []heap.InlineObject, responsible heap.InlineObject) {
	obj, ok := f.asStruct(args[0])
	if !ok {
		f.dropArgs(args...)
		f.triggerPanic("structHasKey expects a struct", responsible)
		return
	}
	_, found := findField(obj, f, args[1])
	f.dropArgs(args...)
	f.push(heap.Tag(boolName(found)))
}

func (f *Fiber) builtinStructKeys(args []heap.InlineObject, responsible heap.InlineObject) {
	obj, ok := f.asStruct(args[0])
	if !ok {
		f.dropArgs(args...)
		f.triggerPanic("structGetKeys expects a struct", responsible)
		return
	}
	items := make([]heap.InlineObject, len(obj.Fields))
	for i, fld := range obj.Fields {
		heap.Dup(f.Heap, fld.Key)
		items[i] = fld.Key
	}
	f.dropArgs(args...)
	f.pushList(items)
}

func (f *Fiber) builtinStructValues(args []heap.InlineObject, responsible heap.InlineObject) {
	obj, ok := f.asStruct(args[0])
	if !ok {
		f.dropArgs(args...)
		f.triggerPanic("structValues expects a struct", responsible)
		return
	}
	items := make([]heap.InlineObject, len(obj.Fields))
	for i, fld := range obj.Fields {
		heap.Dup(f.Heap, fld.Value)
		items[i] = fld.Value
	}
	f.dropArgs(args...)
	f.pushList(items)
}

func (f *Fiber) builtinStructLength(args []heap.InlineObject, responsible heap.InlineObject) {
	obj, ok := f.asStruct(args[0])
	if !ok {
		f.dropArgs(args...)
		f.triggerPanic("structLength expects a struct", responsible)
		return
	}
	n := len(obj.Fields)
	f.dropArgs(args...)
	f.push(heap.Int(int64(n)))
}

// builtinStructInsert replaces the value at an existing key or appends a
// new field, returning a fresh struct: args[0] (the old struct) is
// dropped once every retained field has been Dup'd on its behalf, and
// the newly supplied key/value (args[1], args[2]) move into the result
// without an extra Dup, since the call argument's ownership is their
// only reference.
func (f *Fiber) builtinStructInsert(args []heap.InlineObject, responsible heap.InlineObject) {
	obj, ok := f.asStruct(args[0])
	if !ok {
		f.dropArgs(args...)
		f.triggerPanic("structInsert expects a struct", responsible)
		return
	}
	// The replaced-out old key/value (if any) gets no compensating Dup
	// below, so dropping the old struct at the end releases its
	// reference to them along with every other field's now-balanced
	// reference — the same pattern builtinListReplace uses.
	key, value := args[1], args[2]
	out := append([]heap.StructField(nil), obj.Fields...)
	newIndex, found := findField(obj, f, key)
	if found {
		out[newIndex] = heap.StructField{Key: key, Value: value}
	} else {
		newIndex = len(out)
		out = append(out, heap.StructField{Key: key, Value: value})
	}
	for i, fld := range out {
		if i == newIndex {
			continue // the newly supplied pair: already owned, no Dup
		}
		heap.Dup(f.Heap, fld.Key)
		heap.Dup(f.Heap, fld.Value)
	}
	heap.Drop(f.Heap, args[0])
	f.pushStruct(out)
}
