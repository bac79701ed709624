package runtime_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"candy/internal/config"
	"candy/internal/fiber"
	"candy/internal/heap"
	"candy/internal/lir"
	"candy/internal/project"
	"candy/internal/tracer"
	"candy/internal/vm"
	"candy/runtime"
)

// buildPackage lays files out on disk under a fresh temp dir (one per
// test) and compiles entryModule from them with runtime.Build —
// project.FsProvider only resolves modules against real files, the same
// way cmd/candy's own pipeline does.
func buildPackage(t *testing.T, files map[string]string, entryModule string, tracing config.TracingConfig) *runtime.Program {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name+".candy"), []byte(content), 0o644); err != nil {
			t.Fatalf("writing %s: %v", name, err)
		}
	}
	pkg := project.Package{Name: "test", Root: dir}
	loader := runtime.NewFileLoader(pkg)
	cache := project.NewCache(loader.Provider, tracing, 8)
	prog, err := runtime.Build(cache, entryModule)
	if err != nil {
		t.Fatalf("building %s: %v", entryModule, err)
	}
	return prog
}

func runToTerminal(t *testing.T, prog *runtime.Program, budget int) (*runtime.Instance, vm.Status) {
	t.Helper()
	ins := runtime.New(prog)
	var status vm.Status
	for i := 0; i < 64; i++ {
		status = ins.Run(budget)
		if status != vm.StatusRunning {
			break
		}
	}
	return ins, status
}

func textOf(h *heap.Heap, v heap.InlineObject) (string, bool) {
	if v.Kind != heap.KindPointerValue {
		return "", false
	}
	obj := h.Get(v.Handle)
	if obj == nil || obj.Kind != heap.KindText {
		return "", false
	}
	return obj.Text, true
}

// Scenario: `main = { environment -> 2 }` → Main invoked with an empty
// environment struct returns inline int 2 (spec.md section 8).
func TestScenarioMainReturnsConstant(t *testing.T) {
	prog := buildPackage(t, map[string]string{
		"Main": "pub main = { environment -> 2 }\n",
	}, "Main", config.TracingConfig{})
	ins, status := runToTerminal(t, prog, 1000)
	if status != vm.StatusDone {
		t.Fatalf("expected Done, got %v", status)
	}
	_, value, _, _ := ins.Result()
	if value.Kind != heap.KindSmallInt || value.Int != 2 {
		t.Fatalf("expected inline int 2, got %+v", value)
	}
}

// Scenario: `main = { environment -> needs False "bad" }` → fiber
// panics with reason "bad" and responsible the caller of main.
func TestScenarioNeedsFailureInsideMainPanics(t *testing.T) {
	prog := buildPackage(t, map[string]string{
		"Main": "pub main = { environment -> needs False \"bad\" }\n",
	}, "Main", config.TracingConfig{})
	ins, status := runToTerminal(t, prog, 1000)
	if status != vm.StatusPanicked {
		t.Fatalf("expected Panicked, got %v", status)
	}
	_, _, reason, responsible := ins.Result()
	text, ok := textOf(ins.Scheduler.Fiber(ins.Scheduler.Root()).Heap, reason)
	if !ok || text != "bad" {
		t.Fatalf("expected panic reason text %q, got %+v", "bad", reason)
	}
	if responsible.Kind != heap.KindInlineTag || responsible.Text != "Module" {
		t.Fatalf("expected responsible to be the caller of main (Module), got %+v", responsible)
	}
}

// Scenario: `main = { environment -> foo }` with no `foo` in scope →
// HIR carries Error(UnknownReference), optimized MIR a Panic, running
// panics with the unknown-reference reason.
func TestScenarioUnknownReferencePanics(t *testing.T) {
	prog := buildPackage(t, map[string]string{
		"Main": "pub main = { environment -> foo }\n",
	}, "Main", config.TracingConfig{})
	if !prog.Diagnostics.HasErrors() {
		t.Fatalf("expected an UnknownReference diagnostic from the entry module")
	}
	ins, status := runToTerminal(t, prog, 1000)
	if status != vm.StatusPanicked {
		t.Fatalf("expected Panicked, got %v", status)
	}
	_, _, reason, _ := ins.Result()
	text, ok := textOf(ins.Scheduler.Fiber(ins.Scheduler.Root()).Heap, reason)
	if !ok || !strings.Contains(text, "unknown reference") {
		t.Fatalf("expected an unknown-reference panic reason, got %+v", reason)
	}
}

// Scenario: `a = 1\nb = 2\nmain = { environment -> a | add b }` (pipe
// desugars to `add a b`) → returns inline int 3.
func TestScenarioPipeDesugarsToCall(t *testing.T) {
	prog := buildPackage(t, map[string]string{
		"Main": "a = 1\nb = 2\npub main = { environment -> a | add b }\n",
	}, "Main", config.TracingConfig{})
	ins, status := runToTerminal(t, prog, 1000)
	if status != vm.StatusDone {
		t.Fatalf("expected Done, got %v", status)
	}
	_, value, _, _ := ins.Result()
	if value.Kind != heap.KindSmallInt || value.Int != 3 {
		t.Fatalf("expected inline int 3, got %+v", value)
	}
}

// Scenario: import cycle `A` uses `B` uses `A` → optimized MIR for A is
// a Panic MIR referencing the cycle; running returns Panicked status.
func TestScenarioImportCyclePanics(t *testing.T) {
	prog := buildPackage(t, map[string]string{
		"A": "other = use \"B\"\npub main = { environment -> other }\n",
		"B": "other = use \"A\"\npub value = other\n",
	}, "A", config.TracingConfig{})
	ins, status := runToTerminal(t, prog, 1000)
	if status != vm.StatusPanicked {
		t.Fatalf("expected Panicked from the import cycle, got %v", status)
	}
	_, _, reason, _ := ins.Result()
	text, ok := textOf(ins.Scheduler.Fiber(ins.Scheduler.Root()).Heap, reason)
	if !ok || !strings.Contains(text, "cycle") {
		t.Fatalf("expected a cycle panic reason, got %+v", reason)
	}
}

// Scenario: text interpolation `main = { environment -> "x = {2}" }` →
// returns a heap Text whose bytes equal "x = 2".
func TestScenarioTextInterpolation(t *testing.T) {
	prog := buildPackage(t, map[string]string{
		"Main": "pub main = { environment -> \"x = {2}\" }\n",
	}, "Main", config.TracingConfig{})
	ins, status := runToTerminal(t, prog, 2000)
	if status != vm.StatusDone {
		t.Fatalf("expected Done, got %v", status)
	}
	_, value, _, _ := ins.Result()
	text, ok := textOf(ins.Scheduler.Fiber(ins.Scheduler.Root()).Heap, value)
	if !ok || text != "x = 2" {
		t.Fatalf("expected text %q, got %+v", "x = 2", value)
	}
}

// Scenario: create channel(capacity=0), spawn a fiber that sends 1,
// root receives → root returns inline int 1; both fibers reach
// Done.
func TestScenarioChannelHandoffBetweenFibers(t *testing.T) {
	src := "ch = channelCreate 0\nspawned = fiberCreate { channelSend ch 1 }\npub result = channelReceive ch\n"
	prog := compileModuleOnly(t, "Main", src)

	scheduler := fiber.ForModule(prog, tracer.Null{})
	var status vm.Status
	for i := 0; i < 64; i++ {
		status = scheduler.Run(1000)
		if status != vm.StatusRunning {
			break
		}
	}
	if status != vm.StatusDone {
		t.Fatalf("expected the root fiber to finish, got %v", status)
	}
	root := scheduler.Fiber(scheduler.Root())
	if root.Result.Kind != heap.KindPointerValue {
		t.Fatalf("expected the exports struct, got %+v", root.Result)
	}
	obj := root.Heap.Get(root.Result.Handle)
	var result heap.InlineObject
	var found bool
	for _, field := range obj.Fields {
		if field.Key.Kind == heap.KindInlineTag && field.Key.Text == "Result" {
			result, found = field.Value, true
		}
	}
	if !found {
		t.Fatalf("expected a Result export, got %+v", obj.Fields)
	}
	if result.Kind != heap.KindSmallInt || result.Int != 1 {
		t.Fatalf("expected channelReceive to yield inline int 1, got %+v", result)
	}

	snapshots, readyCount := scheduler.Snapshot()
	if readyCount != 0 {
		t.Fatalf("expected no fibers still ready once the root is Done, got %d", readyCount)
	}
	for _, snap := range snapshots {
		if snap.Status != vm.StatusDone {
			t.Fatalf("expected every fiber to reach Done, fiber %v is %v", snap.ID, snap.Status)
		}
	}
}

// compileModuleOnly compiles a single module with no imports directly
// through the front end, for scenarios that test scheduler-level
// fiber/channel behavior rather than the Main-export handoff.
func compileModuleOnly(t *testing.T, moduleName, src string) *lir.Program {
	t.Helper()
	prog := buildPackage(t, map[string]string{moduleName: src}, moduleName, config.TracingConfig{})
	return prog.LIR
}
