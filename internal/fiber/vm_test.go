package fiber_test

import (
	"testing"

	"candy/internal/ast"
	"candy/internal/config"
	"candy/internal/cst"
	"candy/internal/diag"
	"candy/internal/fiber"
	"candy/internal/heap"
	"candy/internal/hir"
	"candy/internal/lir"
	"candy/internal/mir"
	"candy/internal/rcst"
	"candy/internal/source"
	"candy/internal/tracer"
	"candy/internal/vm"
)

func compile(t *testing.T, src string) *lir.Program {
	t.Helper()
	bag := diag.NewBag(1000)
	rc := rcst.Parse(source.FileID(0), []byte(src))
	c := cst.Lower(rc, bag)
	a := ast.Lower(c, bag)
	h := hir.Lower("Main", a, bag)
	if bag.HasErrors() {
		t.Fatalf("unexpected diagnostics: %+v", bag.Items())
	}
	body := mir.Lower("Main", h, config.TracingConfig{})
	ctx := mir.NewContext(nil, "Main", 8)
	mir.Optimize(ctx, body)
	return lir.Compile("Main", body)
}

func run(sched *fiber.Vm, budget int) vm.Status {
	var status vm.Status
	for i := 0; i < 64; i++ {
		status = sched.Run(budget)
		if status != vm.StatusRunning {
			break
		}
	}
	return status
}

// A fiberCreate/fiberYield round trip: the root spawns a child that
// returns an int, yields on it, and sees Tag("Ok", 7) back.
func TestSpawnAndJoinReifiesDoneAsOk(t *testing.T) {
	prog := compile(t, "child = fiberCreate { 7 }\npub result = fiberYield child\n")
	sched := fiber.ForModule(prog, tracer.Null{})
	if status := run(sched, 1000); status != vm.StatusDone {
		t.Fatalf("expected root to finish, got %v", status)
	}

	root := sched.Fiber(sched.Root())
	obj := root.Heap.Get(root.Result.Handle)
	result, ok := fieldNamed(obj, "Result")
	if !ok {
		t.Fatalf("expected a Result export, got %+v", obj.Fields)
	}
	tagged := root.Heap.Get(result.Handle)
	if tagged.Kind != heap.KindTag || tagged.Symbol != "Ok" {
		t.Fatalf("expected Tag(Ok, _), got %+v", tagged)
	}
	if tagged.Payload.Kind != heap.KindSmallInt || tagged.Payload.Int != 7 {
		t.Fatalf("expected Ok payload 7, got %+v", tagged.Payload)
	}

	snaps, readyCount := sched.Snapshot()
	if readyCount != 0 {
		t.Fatalf("expected nothing ready once root is Done, got %d", readyCount)
	}
	for _, s := range snaps {
		if s.Status != vm.StatusDone {
			t.Fatalf("expected every fiber Done, fiber %v is %v", s.ID, s.Status)
		}
	}
}

// A child that panics is reified as Tag("Error", reason) for the
// joiner, never re-panicking the parent itself.
func TestJoinOnAPanickedChildYieldsError(t *testing.T) {
	prog := compile(t, "child = fiberCreate { needs False \"boom\" }\npub result = fiberYield child\n")
	sched := fiber.ForModule(prog, tracer.Null{})
	if status := run(sched, 1000); status != vm.StatusDone {
		t.Fatalf("expected root to finish despite the child panicking, got %v", status)
	}

	root := sched.Fiber(sched.Root())
	obj := root.Heap.Get(root.Result.Handle)
	result, ok := fieldNamed(obj, "Result")
	if !ok {
		t.Fatalf("expected a Result export, got %+v", obj.Fields)
	}
	tagged := root.Heap.Get(result.Handle)
	if tagged.Kind != heap.KindTag || tagged.Symbol != "Error" {
		t.Fatalf("expected Tag(Error, _), got %+v", tagged)
	}
}

// Joining on a fiber id that settled before fiberYield was even called
// resolves immediately rather than deadlocking (awaitJoin's
// target.settled fast path).
func TestJoinOnAlreadySettledChildResolvesImmediately(t *testing.T) {
	prog := compile(t, "child = fiberCreate { 1 }\nslow = intAdd 1 1\npub result = fiberYield child\n")
	sched := fiber.ForModule(prog, tracer.Null{})
	if status := run(sched, 1000); status != vm.StatusDone {
		t.Fatalf("expected root to finish, got %v", status)
	}
}

// Cancel marks id and its whole spawn subtree Canceled, including a
// grandchild spawned by the direct child. The grandchild blocks forever
// on an empty channel with no sender, so the module's root fiber (which
// only spawns `child` and exports its handle) settles on its own while
// child and grandchild stay alive for Cancel to act on.
func TestCancelPropagatesThroughTheSpawnTree(t *testing.T) {
	prog := compile(t, "ch = channelCreate 0\npub child = fiberCreate { grandchild = fiberCreate { channelReceive ch }\nfiberYield grandchild }\n")
	sched := fiber.ForModule(prog, tracer.Null{})

	if status := run(sched, 1000); status != vm.StatusDone {
		t.Fatalf("expected the module's own root fiber to finish exporting the handle, got %v", status)
	}

	root := sched.Fiber(sched.Root())
	obj := root.Heap.Get(root.Result.Handle)
	handle, ok := fieldNamed(obj, "Child")
	if !ok {
		t.Fatalf("expected a Child export, got %+v", obj.Fields)
	}
	tag := root.Heap.Get(handle.Handle)
	if tag.Kind != heap.KindTag || tag.Symbol != "Fiber" {
		t.Fatalf("expected child to export a Fiber tag, got %+v", tag)
	}
	childID := fiber.ID(uint64(tag.Payload.Int))

	snaps, _ := sched.Snapshot()
	if len(snaps) < 3 {
		t.Fatalf("expected root, child, and grandchild to have spawned, got %d fibers", len(snaps))
	}
	for _, s := range snaps {
		if s.ID != sched.Root() && s.Status == vm.StatusDone {
			t.Fatalf("expected child/grandchild to still be blocked before cancel, fiber %v is Done", s.ID)
		}
	}

	sched.Cancel(childID)
	finalSnaps, readyCount := sched.Snapshot()
	if readyCount != 0 {
		t.Fatalf("expected nothing left ready after cancel, got %d", readyCount)
	}
	for _, s := range finalSnaps {
		if s.ID == sched.Root() {
			continue
		}
		if s.Status != vm.StatusCanceled {
			t.Fatalf("expected every fiber in child's subtree Canceled, fiber %v is %v", s.ID, s.Status)
		}
	}
}

// Two independently-ready fibers interleave round-robin rather than one
// starving the other: a bounded instructionBudget forces the scheduler
// to rotate between them before either finishes.
func TestRoundRobinInterleavesReadyFibers(t *testing.T) {
	prog := compile(t, "a = fiberCreate { intAdd 1 (intAdd 1 (intAdd 1 1)) }\nb = fiberCreate { intAdd 2 2 }\npub resultA = fiberYield a\npub resultB = fiberYield b\n")
	sched := fiber.ForModule(prog, tracer.Null{})
	if status := run(sched, 1); status != vm.StatusDone {
		t.Fatalf("expected eventual completion even with a 1-instruction budget, got %v", status)
	}
}

func fieldNamed(obj *heap.Object, name string) (heap.InlineObject, bool) {
	for _, field := range obj.Fields {
		if field.Key.Kind == heap.KindInlineTag && field.Key.Text == name {
			return field.Value, true
		}
	}
	return heap.InlineObject{}, false
}
