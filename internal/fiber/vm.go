// Package fiber implements Candy's fiber-tree scheduler: the Vm type
// spec.md section 3 describes as "fibers (tree structure for
// parallel/try), channels (id -> bounded buffer + waiter queues),
// handle table, operation id generator, completed operations map",
// built on top of one internal/vm.Fiber per leaf (internal/vm/status.go's
// own package doc names this package as the intended home).
//
// Scheduling is a deterministic, single-threaded round-robin FIFO over
// ready fiber ids (spec.md section 5: "so that identical inputs produce
// identical outputs — important for the fuzzer"), grounded on
// vovakirdan-surge's internal/asyncrt.Executor: one owner holding every
// task/scope/channel map and a ready queue, generalized here from
// asyncrt's async/await task model to Candy's explicit fiber-tree
// spawn/join/cancel model while keeping the same queue-and-wake shape.
package fiber

import (
	"sort"

	"candy/internal/heap"
	"candy/internal/lir"
	"candy/internal/tracer"
	"candy/internal/vm"
)

// ID identifies one fiber within a Vm, mirroring asyncrt's TaskID.
type ID uint64

// operationIDSpan bounds how many channel/spawn operations a single
// fiber may mint before its ids could collide with the next fiber's
// range (vm.Fiber.SeedOperationCounter's contract).
const operationIDSpan = 1_000_000

// entry is one fiber's bookkeeping the scheduler keeps alongside the
// bare vm.Fiber: its place in the spawn tree and, once it settles, the
// outcome any joiner needs.
type entry struct {
	id       ID
	fiber    *vm.Fiber
	parent   ID
	children []ID
	settled  bool
}

// Vm owns every fiber spawned from one compiled program, the channel
// heap they share, and the waiter bookkeeping that resolves send/
// receive and spawn/yield across fiber boundaries (spec.md section 3).
type Vm struct {
	program     *lir.Program
	tracer      tracer.Tracer
	channelHeap *heap.Heap
	progress    ProgressSink

	nextID ID
	root   ID
	fibers map[ID]*entry
	ready  []ID

	channels     map[heap.Handle]*channelWaiters
	joinWaiters  map[ID][]ID // childID -> parent fiber ids blocked in fiberYield on it
	pendingJoins map[ID]ID   // parent fiber id -> childID it's waiting on, for Cancel bookkeeping

	handles map[ID]vm.PendingHandleRequest
}

// ForModule constructs the root fiber for prog and the Vm scheduling it
// (spec.md 4.8's `Vm::for_module(lir)`).
func ForModule(prog *lir.Program, tr tracer.Tracer) *Vm {
	if tr == nil {
		tr = tracer.Null{}
	}
	sched := &Vm{
		program:      prog,
		tracer:       tr,
		channelHeap:  heap.New(),
		fibers:       map[ID]*entry{},
		channels:     map[heap.Handle]*channelWaiters{},
		joinWaiters:  map[ID][]ID{},
		pendingJoins: map[ID]ID{},
		handles:      map[ID]vm.PendingHandleRequest{},
	}
	root := vm.ForModule(prog, tr).WithChannelHeap(sched.channelHeap)
	sched.root = sched.register(root, 0)
	return sched
}

func (s *Vm) register(f *vm.Fiber, parent ID) ID {
	s.nextID++
	id := s.nextID
	f.SeedOperationCounter(uint64(id) * operationIDSpan)
	s.fibers[id] = &entry{id: id, fiber: f, parent: parent}
	if parent != 0 {
		s.fibers[parent].children = append(s.fibers[parent].children, id)
	}
	s.ready = append(s.ready, id)
	return id
}

// Root returns the id of the program's entry fiber.
func (s *Vm) Root() ID { return s.root }

// ChannelHeap exposes the heap every fiber in this tree shares channel
// objects through, so an embedder can allocate a channel (e.g. for a
// Stdin/Stdout handle in Main's environment struct, spec.md section 6)
// without needing a running fiber to call channelCreate from.
func (s *Vm) ChannelHeap() *heap.Heap { return s.channelHeap }

// Fiber exposes the underlying vm.Fiber for id, e.g. so an embedder can
// read Result/PanicReason once it settles.
func (s *Vm) Fiber(id ID) *vm.Fiber {
	e := s.fibers[id]
	if e == nil {
		return nil
	}
	return e.fiber
}

// FiberSnapshot is one fiber's status as of the last completed Run
// turn, for an embedder's live-status view (e.g. cmd/candy's repl).
type FiberSnapshot struct {
	ID     ID
	Parent ID
	Status vm.Status
}

// Snapshot reports every fiber currently known to the scheduler,
// ordered by id, plus how many are sitting in the ready queue.
func (s *Vm) Snapshot() (fibers []FiberSnapshot, readyCount int) {
	fibers = make([]FiberSnapshot, 0, len(s.fibers))
	for id, e := range s.fibers {
		fibers = append(fibers, FiberSnapshot{ID: id, Parent: e.parent, Status: e.fiber.Status})
	}
	sort.Slice(fibers, func(i, j int) bool { return fibers[i].ID < fibers[j].ID })
	return fibers, len(s.ready)
}

// RootSettled reports whether the root fiber has reached Done,
// Panicked, or Canceled.
func (s *Vm) RootSettled() bool {
	switch s.fibers[s.root].fiber.Status {
	case vm.StatusDone, vm.StatusPanicked, vm.StatusCanceled:
		return true
	default:
		return false
	}
}

// Run drains the ready queue, running each runnable fiber up to
// instructionBudget instructions per turn (round-robin multiplexing,
// spec.md 4.8) and resolving channel/spawn/join bookkeeping between
// turns, until nothing is left runnable — either every fiber has
// settled, or every remaining one is blocked (on a channel operation, a
// join, or an embedder handle). Returns the root fiber's final Status.
func (s *Vm) Run(instructionBudget int) vm.Status {
	for len(s.ready) > 0 {
		id := s.ready[0]
		s.ready = s.ready[1:]
		e := s.fibers[id]
		if e == nil || e.settled {
			continue
		}
		status := e.fiber.Run(instructionBudget)
		s.afterStep(e, status)
		if s.progress != nil {
			fibers, ready := s.Snapshot()
			s.progress.OnStep(Step{Fibers: fibers, ReadyCount: ready})
		}
	}
	return s.fibers[s.root].fiber.Status
}

func (s *Vm) afterStep(e *entry, status vm.Status) {
	switch status {
	case vm.StatusRunning:
		// budget exhausted mid-stream; rotate to the back of the queue
		s.ready = append(s.ready, e.id)

	case vm.StatusDone, vm.StatusPanicked, vm.StatusCanceled:
		e.settled = true
		s.settleChannelWaiters(e.id)
		s.resolveJoinsOn(e.id)

	case vm.StatusWaitingForChannel:
		s.registerChannelWaiter(e)

	case vm.StatusWaitingForChildren:
		s.handleChildrenWait(e)

	case vm.StatusWaitingForHandle:
		s.handles[e.id] = *e.fiber.PendingHandle

	default:
		// unreachable: vm.Status has no other members
	}
	s.reconcileChannels()
}

// resume requeues a fiber the scheduler just unblocked.
func (s *Vm) resume(id ID, value heap.InlineObject) {
	e := s.fibers[id]
	if e == nil || e.settled {
		return
	}
	e.fiber.ResumeWithValue(value)
	s.ready = append(s.ready, id)
}

// Cancel marks id and every fiber in its spawn subtree Canceled
// (spec.md 4.8: "a parent cancels a child by setting its status to
// Canceled; the interpreter checks status between instructions" — this
// repo's Fiber.Run already checks Status at the top of every
// instruction, so setting it here is sufficient, no extra signaling
// needed for a fiber sitting in the ready queue).
func (s *Vm) Cancel(id ID) {
	e := s.fibers[id]
	if e == nil || e.settled {
		return
	}
	e.fiber.Status = vm.StatusCanceled
	e.settled = true
	s.settleChannelWaiters(id)
	s.resolveJoinsOn(id)
	for _, child := range e.children {
		s.Cancel(child)
	}
}

// PendingHandles returns every fiber currently suspended on an
// embedder-provided Handle call, for the embedder's inspect step
// (spec.md section 6).
func (s *Vm) PendingHandles() map[ID]vm.PendingHandleRequest {
	return s.handles
}

// CompleteHandle resumes the fiber that issued handle call id with
// response, completing the embedder side of spec.md section 6's
// contract ("complete_handle(op_id, response)").
func (s *Vm) CompleteHandle(id ID, response heap.InlineObject) {
	delete(s.handles, id)
	s.resume(id, response)
}

// Reenter re-queues a settled fiber to invoke callee with args,
// reusing its existing heap rather than spawning a new fiber. This
// backs the embedder's two-phase module-then-Main invocation (spec.md
// section 6: "on Finished, extract the return value and look up Main
// in the exported struct ... call it with an environment struct"): the
// module body and Main run as one continuous fiber lifetime, so Main
// sees the exact heap its own closure was captured from. Returns false
// if id does not name a known fiber.
func (s *Vm) Reenter(id ID, callee heap.InlineObject, args []heap.InlineObject, responsible heap.InlineObject) bool {
	e := s.fibers[id]
	if e == nil {
		return false
	}
	e.settled = false
	e.fiber.CallEntryPoint(callee, args, responsible)
	s.ready = append(s.ready, id)
	return true
}
