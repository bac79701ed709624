package heap_test

import (
	"testing"

	"candy/internal/heap"
)

func TestAllocateAssignsNonZeroHandle(t *testing.T) {
	h := heap.New()
	handle := h.Allocate(&heap.Object{Kind: heap.KindText, Text: "hi"})
	if handle == 0 {
		t.Fatalf("expected a non-zero handle")
	}
	obj := h.Get(handle)
	if obj == nil || obj.Text != "hi" {
		t.Fatalf("expected to read back the allocated text, got %+v", obj)
	}
}

func TestDropFreesAtZeroRefcount(t *testing.T) {
	h := heap.New()
	handle := h.Allocate(&heap.Object{Kind: heap.KindText, Text: "hi"})
	v := heap.Pointer(handle)

	heap.Dup(h, v)
	if h.Get(handle) == nil {
		t.Fatalf("expected object to still be alive after Dup")
	}

	heap.Drop(h, v)
	if h.Get(handle) == nil {
		t.Fatalf("expected object to survive one Drop after a Dup raised refcount to 2")
	}

	heap.Drop(h, v)
	if h.Get(handle) != nil {
		t.Fatalf("expected object to be freed once refcount reaches zero")
	}
	if h.Len() != 0 {
		t.Fatalf("expected heap to be empty after freeing its only object, got %d objects", h.Len())
	}
}

func TestDropRecursesIntoListItems(t *testing.T) {
	h := heap.New()
	inner := h.Allocate(&heap.Object{Kind: heap.KindText, Text: "nested"})
	outer := h.Allocate(&heap.Object{Kind: heap.KindList, Items: []heap.InlineObject{heap.Pointer(inner)}})

	heap.Drop(h, heap.Pointer(outer))

	if h.Get(outer) != nil || h.Get(inner) != nil {
		t.Fatalf("expected both outer and inner objects to be freed")
	}
}

func TestDropFrameLocalsFreesEveryLocal(t *testing.T) {
	h := heap.New()
	var order []heap.Handle
	locals := make([]heap.InlineObject, 3)
	for i := range locals {
		handle := h.Allocate(&heap.Object{Kind: heap.KindText, Text: "local"})
		order = append(order, handle)
		locals[i] = heap.Pointer(handle)
	}

	heap.DropFrameLocals(h, locals)

	for _, handle := range order {
		if h.Get(handle) != nil {
			t.Fatalf("expected local %v to be freed", handle)
		}
	}
}

func TestInlineValuesAreNotHeapBacked(t *testing.T) {
	for _, v := range []heap.InlineObject{heap.Int(42), heap.True, heap.False, heap.Nothing, heap.BuiltinRef("intAdd")} {
		if v.IsHeap() {
			t.Fatalf("expected %+v to not reference the heap", v)
		}
	}
}

func TestCloneDeepCopiesAcrossHeaps(t *testing.T) {
	src := heap.New()
	inner := src.Allocate(&heap.Object{Kind: heap.KindText, Text: "payload"})
	outer := src.Allocate(&heap.Object{Kind: heap.KindList, Items: []heap.InlineObject{heap.Pointer(inner)}})

	dst := heap.New()
	newRoot, mapping := heap.Clone(dst, src, outer)

	if newRoot == outer {
		t.Fatalf("expected clone to produce a handle scoped to the destination heap")
	}
	clonedOuter := dst.Get(newRoot)
	if clonedOuter == nil || len(clonedOuter.Items) != 1 {
		t.Fatalf("expected cloned list with one item, got %+v", clonedOuter)
	}
	clonedInner := dst.Get(clonedOuter.Items[0].Handle)
	if clonedInner == nil || clonedInner.Text != "payload" {
		t.Fatalf("expected cloned inner text object, got %+v", clonedInner)
	}
	if mapping[inner] != clonedOuter.Items[0].Handle {
		t.Fatalf("expected the returned mapping to match the rewritten item handle")
	}

	// Mutating the source after cloning must not affect the destination.
	src.Get(inner).Text = "mutated"
	if dst.Get(clonedOuter.Items[0].Handle).Text != "payload" {
		t.Fatalf("expected clone to be independent of the source heap")
	}
}
