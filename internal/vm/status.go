// Package vm implements the single-fiber bytecode interpreter (spec.md
// 4.6): a data stack of heap.InlineObject, a call stack of return
// frames, an instruction pointer into a lir.Program, and the fixed
// builtin vocabulary (spec.md 4.7). internal/fiber builds the
// multi-fiber scheduler, channels, and parallel/try semantics on top of
// one Fiber per leaf of the fiber tree.
package vm

import "candy/internal/heap"

// Status is the fiber's current execution state (spec.md 3's Fiber
// status enum).
type Status uint8

const (
	StatusRunning Status = iota
	StatusDone
	StatusPanicked
	StatusWaitingForChannel
	StatusWaitingForHandle
	StatusCanceled
	// StatusWaitingForChildren covers both halves of internal/fiber's
	// spawn/join handshake (spec.md 4.8: "the parent's status becomes
	// WaitingForChildren until all children finish"): a fiber sits here
	// either while fiberCreate waits for the scheduler to mint a child's
	// id, or while fiberYield waits for that child to reach Done or
	// Panicked.
	StatusWaitingForChildren
)

func (s Status) String() string {
	switch s {
	case StatusRunning:
		return "running"
	case StatusDone:
		return "done"
	case StatusPanicked:
		return "panicked"
	case StatusWaitingForChannel:
		return "waitingForChannel"
	case StatusWaitingForHandle:
		return "waitingForHandle"
	case StatusCanceled:
		return "canceled"
	case StatusWaitingForChildren:
		return "waitingForChildren"
	default:
		return "unknown"
	}
}

// PendingHandleRequest describes a suspended call to an embedder-
// provided Handle: the embedder inspects it and eventually calls
// CompleteHandle with a response (spec.md 4.8's Handle contract).
type PendingHandleRequest struct {
	HandleID    uint64
	Arguments   []heap.InlineObject
	Responsible heap.InlineObject
}

// PendingChannelOp describes a suspended send or receive, keyed by an
// operation id the scheduler assigns (spec.md 4.8's "operations return
// an operation ID; completion is observed via vm.completed_operations").
type PendingChannelOp struct {
	OperationID   uint64
	IsSend        bool
	Packet        heap.InlineObject // meaningful only when IsSend
	ChannelHandle heap.Handle       // lets internal/fiber find the Channel object to reconcile without re-deriving it from the stack
}

// PendingSpawnRequest describes a suspended fiberCreate call: the
// scheduler allocates a new child fiber for Function, assigns it an id,
// and resumes this fiber with a Fiber-handle value referencing it
// (spec.md 4.8: "a fiber may spawn a child fiber").
type PendingSpawnRequest struct {
	Function    heap.InlineObject
	Responsible heap.InlineObject
}

// PendingJoinRequest describes a suspended fiberYield call: the
// scheduler resumes this fiber once FiberID reaches Done or Panicked,
// with the outcome reified as a value (Tag("Ok", result) or
// Tag("Error", reason)) rather than re-panicking the parent directly —
// that choice is left to however the calling Candy code built its
// parallel/try desugaring on top of this one join primitive.
type PendingJoinRequest struct {
	FiberID     uint64
	Responsible heap.InlineObject
}
