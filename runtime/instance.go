package runtime

import (
	"candy/internal/fiber"
	"candy/internal/heap"
	"candy/internal/tracer"
	"candy/internal/vm"
)

// Instance is a running VM built from a compiled Program: the fiber
// tree, and which of its two lifecycle phases (module body, then Main)
// the root fiber is in (spec.md section 6's two-step embedder
// contract).
type Instance struct {
	Scheduler *fiber.Vm
	Tracer    *tracer.StackTracer
	mainCalled bool
}

// New constructs the root fiber for prog's LIR, ready to run its module
// body. A StackTracer backs panic reporting (SPEC_FULL.md section 12's
// stack-trace-style panic report). New always installs it; Instance
// offers no way to swap in a different tracer.Tracer.
func New(prog *Program) *Instance {
	st := &tracer.StackTracer{}
	return &Instance{
		Scheduler: fiber.ForModule(prog.LIR, st),
		Tracer:    st,
	}
}

// Run drains every runnable fiber up to instructionBudget instructions
// per turn until every fiber has settled or is blocked on a channel, a
// join, or an embedder handle (spec.md section 6: "call run(budget, tracer) -> Status").
// Once the root reaches Done for the first time, Run automatically
// performs the module-then-Main handoff (extracting Main from the
// exports struct and reentering the root fiber with it) before
// returning, so a caller only sees Done once Main itself has actually
// finished — exactly one call to Run(budget) per embedder turn, as
// spec.md's loop describes, covers both phases.
func (ins *Instance) Run(instructionBudget int) vm.Status {
	status := ins.Scheduler.Run(instructionBudget)
	if status != vm.StatusDone || ins.mainCalled {
		return status
	}
	ins.mainCalled = true
	root := ins.Scheduler.Fiber(ins.Scheduler.Root())
	main, responsible, ok := findMain(root.Heap, root.Result)
	if !ok {
		root.Status = vm.StatusPanicked
		root.PanicReason = heap.Tag("MissingMainExport")
		root.PanicResponsible = heap.Nothing
		return vm.StatusPanicked
	}
	heap.Drop(root.Heap, root.Result)
	env := BuildEnvironment(root.Heap, nil)
	ins.Scheduler.Reenter(ins.Scheduler.Root(), main, []heap.InlineObject{env}, responsible)
	return ins.Scheduler.Run(instructionBudget)
}

// findMain looks up "Main" in exports (the module body's return value,
// a KindStruct object per hir.lowerer.pushExportsStruct) and reports it
// alongside a synthesized responsible value — the module itself, since
// there is no caller above it (spec.md section 8's "responsible = the
// caller of main" scenario: for the outermost call, that's the module).
func findMain(h *heap.Heap, exports heap.InlineObject) (main heap.InlineObject, responsible heap.InlineObject, ok bool) {
	if exports.Kind != heap.KindPointerValue {
		return heap.InlineObject{}, heap.InlineObject{}, false
	}
	obj := h.Get(exports.Handle)
	if obj == nil || obj.Kind != heap.KindStruct {
		return heap.InlineObject{}, heap.InlineObject{}, false
	}
	for _, field := range obj.Fields {
		if field.Key.Kind == heap.KindInlineTag && field.Key.Text == "Main" {
			heap.Dup(h, field.Value)
			return field.Value, heap.Tag("Module"), true
		}
	}
	return heap.InlineObject{}, heap.InlineObject{}, false
}

// Result returns the root fiber's terminal value: Main's return value
// once Run has reached Done, or the panic reason/responsible pair once
// it has reached Panicked.
func (ins *Instance) Result() (status vm.Status, value, panicReason, panicResponsible heap.InlineObject) {
	root := ins.Scheduler.Fiber(ins.Scheduler.Root())
	return root.Status, root.Result, root.PanicReason, root.PanicResponsible
}

// PendingHandles/CompleteHandle/Cancel pass through to the scheduler,
// completing spec.md section 6's "on WaitingForHandle, inspect the
// pending request and call complete_handle" half of the contract.
func (ins *Instance) PendingHandles() map[fiber.ID]vm.PendingHandleRequest {
	return ins.Scheduler.PendingHandles()
}

func (ins *Instance) CompleteHandle(id fiber.ID, response heap.InlineObject) {
	ins.Scheduler.CompleteHandle(id, response)
}

func (ins *Instance) Cancel(id fiber.ID) {
	ins.Scheduler.Cancel(id)
}
