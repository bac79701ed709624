package vm

import "candy/internal/heap"

// Fiber-tree builtins (spec.md 4.8's parallel/try primitive): fiberCreate
// spawns a child running a zero-argument function, fiberYield blocks
// until that child settles and reifies its outcome as a value. Both
// only set up a Pending* request and suspend — internal/fiber's
// scheduler owns every part of the handshake that needs visibility into
// more than one fiber (minting ids, actually running the child,
// transferring its result heap-to-heap, waking the waiter).
//
// fiberYield never re-panics the caller on a child Panic; it always
// hands back Tag("Ok", value) or Tag("Error", reason), so "parallel"
// and "try" can both be desugared on top of this single join primitive
// (parallel re-panics on Error itself; try keeps the tag).

func (f *Fiber) builtinFiberCreate(args []heap.InlineObject, responsible heap.InlineObject) {
	f.Status = StatusWaitingForChildren
	f.PendingSpawn = &PendingSpawnRequest{Function: args[0], Responsible: responsible}
}

// fiberHandleID reads the operation id out of a Fiber-tagged value
// (built the same way fiberCreate's scheduler-side completion builds
// it: Tag("Fiber", Int(id))).
func (f *Fiber) fiberHandleID(v heap.InlineObject) (uint64, bool) {
	symbol, payload, hasPayload, ok := f.asTag(v)
	if !ok || !hasPayload || symbol != "Fiber" {
		return 0, false
	}
	if payload.Kind != heap.KindSmallInt {
		return 0, false
	}
	return uint64(payload.Int), true
}

func (f *Fiber) builtinFiberYield(args []heap.InlineObject, responsible heap.InlineObject) {
	id, ok := f.fiberHandleID(args[0])
	if !ok {
		f.dropArgs(args...)
		f.triggerPanic("fiberYield expects a fiber handle", responsible)
		return
	}
	f.dropArgs(args...)
	f.Status = StatusWaitingForChildren
	f.PendingJoin = &PendingJoinRequest{FiberID: id, Responsible: responsible}
}
