package fiber

import (
	"candy/internal/heap"
	"candy/internal/vm"
)

// handleChildrenWait dispatches a StatusWaitingForChildren fiber to
// whichever half of the handshake it's parked in (builtins_fiber.go's
// fiberCreate/fiberYield each set exactly one of these before
// suspending).
func (s *Vm) handleChildrenWait(e *entry) {
	switch {
	case e.fiber.PendingSpawn != nil:
		s.spawnChild(e)
	case e.fiber.PendingJoin != nil:
		s.awaitJoin(e)
	}
}

// spawnChild mints a new fiber running req.Function and resumes the
// parent with a Tag("Fiber", <id>) handle referencing it (spec.md
// section 3's fiber-tree spawn). The closure is cloned into the child's
// own heap: spec.md section 5 gives every fiber exclusive ownership of
// its value heap, so a captured value can't simply be shared by handle.
func (s *Vm) spawnChild(e *entry) {
	req := e.fiber.PendingSpawn
	fn := req.Function
	if fn.Kind != heap.KindPointerValue {
		e.fiber.Panic("fiberCreate expects a function", req.Responsible)
		s.ready = append(s.ready, e.id)
		return
	}
	obj := e.fiber.Heap.Get(fn.Handle)
	if obj == nil || obj.Kind != heap.KindFunction {
		e.fiber.Panic("fiberCreate expects a function", req.Responsible)
		s.ready = append(s.ready, e.id)
		return
	}

	child := vm.ForModule(s.program, s.tracer).WithChannelHeap(s.channelHeap)
	clonedHandle, _ := heap.Clone(child.Heap, e.fiber.Heap, fn.Handle)
	heap.Drop(e.fiber.Heap, fn)
	child.CallEntryPoint(heap.Pointer(clonedHandle), nil, req.Responsible)

	childID := s.register(child, e.id)
	handle := e.fiber.Heap.Allocate(&heap.Object{
		Kind:    heap.KindTag,
		Symbol:  "Fiber",
		Payload: heap.Int(int64(childID)),
	})
	s.resume(e.id, heap.Pointer(handle))
}

// awaitJoin resolves a fiberYield call immediately if its target has
// already settled, or parks the caller in joinWaiters until
// resolveJoinsOn wakes it.
func (s *Vm) awaitJoin(e *entry) {
	req := e.fiber.PendingJoin
	target := s.fibers[ID(req.FiberID)]
	if target == nil {
		e.fiber.Panic("fiberYield expects a live fiber handle", req.Responsible)
		s.ready = append(s.ready, e.id)
		return
	}
	if target.settled {
		s.resolveJoin(e.id, target)
		return
	}
	childID := ID(req.FiberID)
	s.joinWaiters[childID] = append(s.joinWaiters[childID], e.id)
	s.pendingJoins[e.id] = childID
}

// resolveJoinsOn wakes every fiber parked in fiberYield on childID, once
// childID has settled (called from afterStep's settle branch and from
// Cancel).
func (s *Vm) resolveJoinsOn(childID ID) {
	parents, ok := s.joinWaiters[childID]
	if !ok {
		return
	}
	delete(s.joinWaiters, childID)
	child := s.fibers[childID]
	for _, parentID := range parents {
		delete(s.pendingJoins, parentID)
		s.resolveJoin(parentID, child)
	}
}

// resolveJoin reifies child's outcome as Tag("Ok", result) or
// Tag("Error", reason) in the parent's own heap and resumes it
// (PendingJoinRequest's doc comment: the join primitive never
// re-panics the parent directly).
func (s *Vm) resolveJoin(parentID ID, child *entry) {
	parent := s.fibers[parentID]
	if parent == nil || parent.settled {
		return
	}
	var symbol string
	var value heap.InlineObject
	switch child.fiber.Status {
	case vm.StatusDone:
		symbol, value = "Ok", cloneAcross(parent.fiber.Heap, child.fiber.Heap, child.fiber.Result)
	case vm.StatusPanicked:
		symbol, value = "Error", cloneAcross(parent.fiber.Heap, child.fiber.Heap, child.fiber.PanicReason)
	default: // StatusCanceled
		symbol, value = "Error", heap.Tag("Canceled")
	}
	handle := parent.fiber.Heap.Allocate(&heap.Object{Kind: heap.KindTag, Symbol: symbol, Payload: value})
	s.resume(parentID, heap.Pointer(handle))
}

func cloneAcross(dst, src *heap.Heap, v heap.InlineObject) heap.InlineObject {
	if v.Kind != heap.KindPointerValue {
		return v
	}
	newHandle, _ := heap.Clone(dst, src, v.Handle)
	return heap.Pointer(newHandle)
}
