package vm

import "candy/internal/heap"

// invoke dispatches a Call or TailCall's resolved callee (spec.md 4.6's
// Call dispatch contract): a Function pushes (or, for a tail call,
// reuses) a frame and jumps; a Builtin runs synchronously inline;
// anything else panics with a type error blaming responsible.
func (f *Fiber) invoke(callee heap.InlineObject, args []heap.InlineObject, responsible heap.InlineObject, tail bool, numLocalsToPop int) {
	// A tail call to a Builtin or Handle callee drops this frame's locals
	// up front exactly like a tail call to a Function does; compile.go
	// never emits OpTailCall today (the compiler has no tail-call
	// optimization pass), so this path only matters for hand-written or
	// future-compiler-emitted LIR.
	if tail {
		locals := f.Stack[len(f.Stack)-numLocalsToPop:]
		heap.DropFrameLocals(f.Heap, locals)
		f.Stack = f.Stack[:len(f.Stack)-numLocalsToPop]
	}

	switch callee.Kind {
	case heap.KindBuiltinRef:
		f.callBuiltin(callee.Text, args, responsible)
		return

	case heap.KindPointerValue:
		obj := f.Heap.Get(callee.Handle)
		if obj == nil {
			f.triggerPanic("called a value that no longer exists", responsible)
			return
		}
		switch obj.Kind {
		case heap.KindFunction:
			f.callFunction(obj.Closure, args, responsible, tail)
			return
		case heap.KindHandle:
			f.suspendForHandle(obj.HandleID, args, responsible)
			return
		default:
			f.triggerPanic("tried to call a non-function value", responsible)
			return
		}

	default:
		f.triggerPanic("tried to call a non-function value", responsible)
		return
	}
}

// InvokeValue re-enters the call machinery from inside a builtin that is
// itself running as part of an existing call chain (ifElse's branches,
// functionRun's argument): the invoked body's eventual Return pops the
// Frame this pushes and resumes the builtin's caller, exactly like an
// ordinary nested Call would. Not suitable for the embedder's top-level
// entry point — use CallEntryPoint for that.
func (f *Fiber) InvokeValue(callee heap.InlineObject, args []heap.InlineObject, responsible heap.InlineObject) {
	f.Status = StatusRunning
	f.invoke(callee, args, responsible, false, 0)
}

// CallEntryPoint is the embedder-facing entry point for calling a value
// with nothing above it on the call stack: used to invoke the exported
// Main function once the module body has finished running (spec.md
// section 6). Unlike InvokeValue it pushes no Frame, so the invoked
// body's Return falls through execReturn's empty-call-stack case and
// finishes the fiber directly, mirroring how the module body itself
// runs without ever having had a Frame pushed for it.
func (f *Fiber) CallEntryPoint(callee heap.InlineObject, args []heap.InlineObject, responsible heap.InlineObject) {
	f.Status = StatusRunning
	if callee.Kind == heap.KindPointerValue {
		if obj := f.Heap.Get(callee.Handle); obj != nil && obj.Kind == heap.KindFunction {
			f.enterFunction(obj.Closure, args, responsible)
			return
		}
	}
	f.triggerPanic("tried to call a non-function value", responsible)
}

func (f *Fiber) enterFunction(closure *heap.Closure, args []heap.InlineObject, responsible heap.InlineObject) {
	if len(args) != closure.NumArgs {
		f.triggerPanic("function called with the wrong number of arguments", responsible)
		return
	}
	for _, c := range closure.Captured {
		heap.Dup(f.Heap, c)
		f.push(c)
	}
	f.push(responsible)
	for _, a := range args {
		f.push(a)
	}
	f.IP = closure.BodyStart
}

func (f *Fiber) callFunction(closure *heap.Closure, args []heap.InlineObject, responsible heap.InlineObject, tail bool) {
	if len(args) != closure.NumArgs {
		f.triggerPanic("function called with the wrong number of arguments", responsible)
		return
	}

	base := len(f.Stack)
	for _, c := range closure.Captured {
		heap.Dup(f.Heap, c)
		f.push(c)
	}
	f.push(responsible)
	for _, a := range args {
		f.push(a)
	}

	if tail && len(f.Frames) > 0 {
		f.Frames[len(f.Frames)-1].StackBase = base
	} else {
		f.Frames = append(f.Frames, Frame{ReturnIP: f.IP, StackBase: base})
	}
	f.IP = closure.BodyStart
}

func (f *Fiber) suspendForHandle(handleID uint64, args []heap.InlineObject, responsible heap.InlineObject) {
	f.Status = StatusWaitingForHandle
	f.PendingHandle = &PendingHandleRequest{
		HandleID:    handleID,
		Arguments:   args,
		Responsible: responsible,
	}
}
