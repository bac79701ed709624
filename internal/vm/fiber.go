package vm

import (
	"candy/internal/heap"
	"candy/internal/lir"
	"candy/internal/tracer"
)

// Frame is one call's return address and the base stack index its
// locals start at (spec.md 4.6's "push return frame").
type Frame struct {
	ReturnIP  int
	StackBase int
}

// Fiber is one single-threaded cooperative execution context (spec.md
// 4.8): a data stack of InlineObjects, a call stack of Frames, an
// instruction pointer into a lir.Program, and the status the scheduler
// (internal/fiber) inspects between run budgets.
//
// ChannelHeap is deliberately distinct from Heap: per spec.md section 5,
// "each fiber owns its mutable heap exclusively," but channels are
// shared mutable state visible to every fiber holding a reference to
// them. internal/fiber gives every fiber spawned from the same root a
// shared ChannelHeap for exactly this reason; a standalone Fiber (as
// used directly by tests in this package) defaults ChannelHeap to its
// own Heap, which is safe as long as it never spawns children.
type Fiber struct {
	Program     *lir.Program
	Heap        *heap.Heap
	ChannelHeap *heap.Heap
	Tracer      tracer.Tracer

	Stack  []heap.InlineObject
	Frames []Frame
	IP     int

	Status Status
	Result heap.InlineObject

	PanicReason      heap.InlineObject
	PanicResponsible heap.InlineObject

	PendingHandle  *PendingHandleRequest
	PendingChannel *PendingChannelOp
	PendingSpawn   *PendingSpawnRequest
	PendingJoin    *PendingJoinRequest

	nextOperationID uint64
}

// ForModule constructs the root fiber for a compiled program, with the
// module body as its entry point (spec.md 4.8's `Vm::for_module(lir)`).
func ForModule(prog *lir.Program, tr tracer.Tracer) *Fiber {
	if tr == nil {
		tr = tracer.Null{}
	}
	h := heap.New()
	return &Fiber{
		Program:     prog,
		Heap:        h,
		ChannelHeap: h,
		Tracer:      tr,
		IP:          prog.ModuleBodyStart,
		Status:      StatusRunning,
	}
}

// WithChannelHeap overrides the heap channel builtins resolve their
// handles against, used by internal/fiber to give a group of sibling
// fibers one shared channel store.
func (f *Fiber) WithChannelHeap(h *heap.Heap) *Fiber {
	f.ChannelHeap = h
	return f
}

func (f *Fiber) push(v heap.InlineObject) { f.Stack = append(f.Stack, v) }

func (f *Fiber) pop() heap.InlineObject {
	n := len(f.Stack) - 1
	v := f.Stack[n]
	f.Stack = f.Stack[:n]
	return v
}

func (f *Fiber) popN(n int) []heap.InlineObject {
	out := make([]heap.InlineObject, n)
	for i := n - 1; i >= 0; i-- {
		out[i] = f.pop()
	}
	return out
}

// NextOperationID mints a fresh operation id for a suspended channel or
// handle call (spec.md 4.8: "operations return an operation ID").
func (f *Fiber) NextOperationID() uint64 {
	f.nextOperationID++
	return f.nextOperationID
}

// SeedOperationCounter offsets this fiber's operation-id counter so ids
// it mints never collide with another fiber's, given distinct bases.
// internal/fiber calls this once per fiber it creates (root included)
// since every sibling sharing a ChannelHeap also shares the channel
// waiter-queue namespace those ids are matched against.
func (f *Fiber) SeedOperationCounter(base uint64) {
	f.nextOperationID = base
}

// ResumeWithValue pushes v (the resolved value of whatever this fiber
// was suspended on) and marks it runnable again. Used by internal/fiber
// once a pending channel op or handle request completes.
func (f *Fiber) ResumeWithValue(v heap.InlineObject) {
	f.push(v)
	f.Status = StatusRunning
	f.PendingHandle = nil
	f.PendingChannel = nil
	f.PendingSpawn = nil
	f.PendingJoin = nil
}

// Run executes up to budget instructions, stopping early if the fiber
// leaves the Running state (spec.md 4.8: "each run(budget) call
// executes up to budget instructions; callers can yield between budgets
// to multiplex fibers").
func (f *Fiber) Run(budget int) Status {
	for i := 0; i < budget; i++ {
		if f.Status != StatusRunning {
			return f.Status
		}
		if f.IP < 0 || f.IP >= len(f.Program.Instructions) {
			f.triggerPanic("instruction pointer out of bounds", heap.Nothing)
			return f.Status
		}
		instr := f.Program.Instructions[f.IP]
		f.IP++
		f.step(instr)
	}
	return f.Status
}

func (f *Fiber) step(instr lir.Instruction) {
	switch instr.Op {
	case lir.OpPushConstant:
		// importConstant clones straight out of the shared constant heap
		// with a fresh refcount of 1 (Heap.Allocate's contract), owned by
		// the stack slot about to receive it — no separate Dup needed.
		f.push(importConstant(f.Heap, f.Program.ConstantHeap, instr.Constant))

	case lir.OpPushFromStack:
		v := f.Stack[len(f.Stack)-1-instr.Offset]
		heap.Dup(f.Heap, v)
		f.push(v)

	case lir.OpPopMultipleBelowTop:
		top := f.pop()
		below := f.popN(instr.Count)
		heap.DropFrameLocals(f.Heap, below)
		f.push(top)

	case lir.OpCreateTag:
		payload := f.pop()
		handle := f.Heap.Allocate(&heap.Object{Kind: heap.KindTag, Symbol: instr.Symbol, Payload: payload})
		f.push(heap.Pointer(handle))

	case lir.OpCreateList:
		items := f.popN(instr.Count)
		handle := f.Heap.Allocate(&heap.Object{Kind: heap.KindList, Items: items})
		f.push(heap.Pointer(handle))

	case lir.OpCreateStruct:
		pairs := f.popN(2 * instr.Count)
		fields := make([]heap.StructField, instr.Count)
		for i := range fields {
			fields[i] = heap.StructField{Key: pairs[2*i], Value: pairs[2*i+1]}
		}
		handle := f.Heap.Allocate(&heap.Object{Kind: heap.KindStruct, Fields: fields})
		f.push(heap.Pointer(handle))

	case lir.OpCreateFunction:
		captured := make([]heap.InlineObject, len(instr.CapturedOffsets))
		for i, off := range instr.CapturedOffsets {
			v := f.Stack[len(f.Stack)-1-off]
			heap.Dup(f.Heap, v)
			captured[i] = v
		}
		handle := f.Heap.Allocate(&heap.Object{Kind: heap.KindFunction, Closure: &heap.Closure{
			Captured:  captured,
			NumArgs:   instr.NumArgs,
			BodyStart: instr.BodyStart,
		}})
		f.push(heap.Pointer(handle))

	case lir.OpCall:
		responsible := f.pop()
		args := f.popN(instr.NumArgs)
		callee := f.pop()
		f.invoke(callee, args, responsible, false, 0)

	case lir.OpTailCall:
		responsible := f.pop()
		args := f.popN(instr.NumArgs)
		callee := f.pop()
		f.invoke(callee, args, responsible, true, instr.Count)

	case lir.OpReturn:
		f.execReturn()

	case lir.OpPanic:
		reason := f.pop()
		responsible := f.pop()
		f.setPanic(reason, responsible)

	case lir.OpTraceCallStarts:
		// Mirrors Call's own pop order (responsible, then args, then
		// callee): these are transient copies pushed only for this
		// instruction (see lir/compile.go's KindTraceCallStarts case), so
		// every one of them is dropped again once the tracer has seen it.
		responsible := f.pop()
		args := f.popN(instr.NumArgs)
		callee := f.pop()
		f.Tracer.CallStarted(f.Heap, callee, args)
		heap.Drop(f.Heap, callee)
		heap.DropFrameLocals(f.Heap, args)
		heap.Drop(f.Heap, responsible)

	case lir.OpTraceCallEnds:
		rv := f.pop()
		f.Tracer.CallEnded(f.Heap, rv)
		heap.Drop(f.Heap, rv)

	case lir.OpTraceExpressionEvaluated:
		v := f.Stack[len(f.Stack)-1]
		f.Tracer.ValueEvaluated(f.Heap, instr.Origin, v)

	case lir.OpTraceFoundFuzzableFunction:
		v := f.pop()
		f.Tracer.FoundFuzzableFunction(f.Heap, instr.Origin, v)
		heap.Drop(f.Heap, v)

	default:
		f.triggerPanic("unknown instruction", heap.Nothing)
	}
}

func (f *Fiber) execReturn() {
	value := f.pop()
	if len(f.Frames) == 0 {
		heap.DropFrameLocals(f.Heap, f.Stack)
		f.Stack = nil
		f.Result = value
		f.Status = StatusDone
		return
	}
	frame := f.Frames[len(f.Frames)-1]
	locals := f.Stack[frame.StackBase:]
	heap.DropFrameLocals(f.Heap, locals)
	f.Stack = f.Stack[:frame.StackBase]
	f.Frames = f.Frames[:len(f.Frames)-1]
	f.push(value)
	f.IP = frame.ReturnIP
}

func (f *Fiber) setPanic(reason, responsible heap.InlineObject) {
	f.Status = StatusPanicked
	f.PanicReason = reason
	f.PanicResponsible = responsible
}

// Panic is triggerPanic's exported form, for internal/fiber to report a
// scheduling-level error (an unknown fiber handle, a fiberCreate target
// that isn't a function) against a fiber it does not otherwise have any
// way to mutate the interpreter state of.
func (f *Fiber) Panic(reasonText string, responsible heap.InlineObject) {
	f.triggerPanic(reasonText, responsible)
}

// triggerPanic is the internal-error convenience path (arity mismatches,
// type errors): it interns reasonText as a heap Text rather than asking
// callers to build one by hand.
func (f *Fiber) triggerPanic(reasonText string, responsible heap.InlineObject) {
	handle := f.Heap.Allocate(&heap.Object{Kind: heap.KindText, Text: reasonText})
	f.setPanic(heap.Pointer(handle), responsible)
}

// importConstant copies v out of the shared, read-only constant heap
// into fiber heap h, deep-copying any referenced object (constant-heap
// objects are never mutated, but every fiber needs its own refcounted
// copy to drop independently — spec.md section 9's "constant-heap
// objects are never mutated" rule, realized via Clone rather than by
// letting fibers share Handles into a heap they don't own).
func importConstant(dst, constHeap *heap.Heap, v heap.InlineObject) heap.InlineObject {
	if v.Kind != heap.KindPointerValue {
		return v
	}
	newHandle, _ := heap.Clone(dst, constHeap, v.Handle)
	return heap.Pointer(newHandle)
}
