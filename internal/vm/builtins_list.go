package vm

import "candy/internal/heap"

func (f *Fiber) asList(v heap.InlineObject) (*heap.Object, bool) {
	if v.Kind != heap.KindPointerValue {
		return nil, false
	}
	obj := f.Heap.Get(v.Handle)
	if obj == nil || obj.Kind != heap.KindList {
		return nil, false
	}
	return obj, true
}

func (f *Fiber) pushList(items []heap.InlineObject) {
	handle := f.Heap.Allocate(&heap.Object{Kind: heap.KindList, Items: items})
	f.push(heap.Pointer(handle))
}

func (f *Fiber) builtinListLength(args []heap.InlineObject, responsible heap.InlineObject) {
	list, ok := f.asList(args[0])
	if !ok {
		f.dropArgs(args...)
		f.triggerPanic("listLength expects a list", responsible)
		return
	}
	n := len(list.Items)
	f.dropArgs(args...)
	f.push(heap.Int(int64(n)))
}

func (f *Fiber) listIndex(v heap.InlineObject, n int) (int, bool) {
	idx, ok := f.asInt(v)
	if !ok {
		return 0, false
	}
	i := int(idx.Int64())
	if i < 0 || i >= n {
		return 0, false
	}
	return i, true
}

func (f *Fiber) builtinListGet(args []heap.InlineObject, responsible heap.InlineObject) {
	list, ok := f.asList(args[0])
	if !ok {
		f.dropArgs(args...)
		f.triggerPanic("listGet expects a list", responsible)
		return
	}
	i, ok := f.listIndex(args[1], len(list.Items))
	if !ok {
		f.dropArgs(args...)
		f.triggerPanic("list index out of bounds", responsible)
		return
	}
	v := list.Items[i]
	heap.Dup(f.Heap, v)
	f.dropArgs(args...)
	f.push(v)
}

// builtinListInsert returns a fresh list with value inserted at index i:
// every item carried over from the old list is Dup'd on the new list's
// behalf, the old list itself is dropped once (releasing this call's
// reference to it), and the newly supplied value moves into the result
// without an extra Dup — the call argument's ownership is its only
// reference.
func (f *Fiber) builtinListInsert(args []heap.InlineObject, responsible heap.InlineObject) {
	list, ok := f.asList(args[0])
	if !ok {
		f.dropArgs(args...)
		f.triggerPanic("listInsert expects a list", responsible)
		return
	}
	idx, ok := f.asInt(args[1])
	if !ok {
		f.dropArgs(args...)
		f.triggerPanic("listInsert expects an int index", responsible)
		return
	}
	i := int(idx.Int64())
	if i < 0 || i > len(list.Items) {
		f.dropArgs(args...)
		f.triggerPanic("list index out of bounds", responsible)
		return
	}
	value := args[2]
	out := make([]heap.InlineObject, 0, len(list.Items)+1)
	for _, v := range list.Items[:i] {
		heap.Dup(f.Heap, v)
		out = append(out, v)
	}
	out = append(out, value)
	for _, v := range list.Items[i:] {
		heap.Dup(f.Heap, v)
		out = append(out, v)
	}
	heap.Drop(f.Heap, args[0])
	heap.Drop(f.Heap, args[1])
	f.pushList(out)
}

func (f *Fiber) builtinListReplace(args []heap.InlineObject, responsible heap.InlineObject) {
	list, ok := f.asList(args[0])
	if !ok {
		f.dropArgs(args...)
		f.triggerPanic("listReplace expects a list", responsible)
		return
	}
	i, ok := f.listIndex(args[1], len(list.Items))
	if !ok {
		f.dropArgs(args...)
		f.triggerPanic("list index out of bounds", responsible)
		return
	}
	value := args[2]
	out := make([]heap.InlineObject, len(list.Items))
	for j, v := range list.Items {
		if j == i {
			out[j] = value
			continue
		}
		heap.Dup(f.Heap, v)
		out[j] = v
	}
	heap.Drop(f.Heap, args[0])
	heap.Drop(f.Heap, args[1])
	f.pushList(out)
}

func (f *Fiber) builtinListRemove(args []heap.InlineObject, responsible heap.InlineObject) {
	list, ok := f.asList(args[0])
	if !ok {
		f.dropArgs(args...)
		f.triggerPanic("listRemoveAt expects a list", responsible)
		return
	}
	i, ok := f.listIndex(args[1], len(list.Items))
	if !ok {
		f.dropArgs(args...)
		f.triggerPanic("list index out of bounds", responsible)
		return
	}
	// The removed item gets no compensating Dup below, so dropping the
	// old list at the end releases its one reference to it along with
	// every other item's now-balanced reference.
	out := make([]heap.InlineObject, 0, len(list.Items)-1)
	for j, v := range list.Items {
		if j == i {
			continue
		}
		heap.Dup(f.Heap, v)
		out = append(out, v)
	}
	heap.Drop(f.Heap, args[0])
	heap.Drop(f.Heap, args[1])
	f.pushList(out)
}
