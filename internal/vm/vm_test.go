package vm_test

import (
	"testing"

	"candy/internal/ast"
	"candy/internal/config"
	"candy/internal/cst"
	"candy/internal/diag"
	"candy/internal/heap"
	"candy/internal/hir"
	"candy/internal/lir"
	"candy/internal/mir"
	"candy/internal/rcst"
	"candy/internal/source"
	"candy/internal/vm"
)

func compileToLIR(t *testing.T, moduleName, src string) *lir.Program {
	t.Helper()
	bag := diag.NewBag(1000)
	rc := rcst.Parse(source.FileID(0), []byte(src))
	c := cst.Lower(rc, bag)
	a := ast.Lower(c, bag)
	h := hir.Lower(moduleName, a, bag)
	if bag.HasErrors() {
		t.Fatalf("unexpected diagnostics: %+v", bag.Items())
	}
	body := mir.Lower(moduleName, h, config.TracingConfig{})
	ctx := mir.NewContext(nil, moduleName, 8)
	mir.Optimize(ctx, body)
	return lir.Compile(moduleName, body)
}

func runModule(t *testing.T, src string) *vm.Fiber {
	t.Helper()
	prog := compileToLIR(t, "Main", src)
	f := vm.ForModule(prog, nil)
	for i := 0; i < 64 && f.Status == vm.StatusRunning; i++ {
		f.Run(1000)
	}
	return f
}

func TestModuleTopLevelBindingReturnsExportStruct(t *testing.T) {
	f := runModule(t, "pub answer = 42\n")
	if f.Status != vm.StatusDone {
		t.Fatalf("expected Done, got %v (panic reason kind %v)", f.Status, f.PanicReason.Kind)
	}
	if f.Result.Kind != heap.KindPointerValue {
		t.Fatalf("expected the module export struct, got %v", f.Result.Kind)
	}
}

func TestArithmeticBuiltinsComputeDirectly(t *testing.T) {
	// Mirrors spec.md section 8's "a=1 b=2 main = add a b" pipe scenario
	// at the builtin-dispatch level, directly invoking intAdd without
	// going through a full source-level pipe/call chain.
	prog := compileToLIR(t, "Main", "pub x = 1\n")
	f := vm.ForModule(prog, nil)
	f.Status = vm.StatusRunning
	result := runBuiltin(t, f, "intAdd", heap.Int(1), heap.Int(2))
	if result.Kind != heap.KindSmallInt || result.Int != 3 {
		t.Fatalf("expected inline int 3, got %+v", result)
	}
}

func TestEqualsComparesStructurally(t *testing.T) {
	prog := compileToLIR(t, "Main", "pub x = 1\n")
	f := vm.ForModule(prog, nil)
	result := runBuiltin(t, f, "equals", heap.Int(7), heap.Int(7))
	if result.Kind != heap.KindInlineTag || result.Text != "True" {
		t.Fatalf("expected True, got %+v", result)
	}
	result = runBuiltin(t, f, "equals", heap.Int(7), heap.Int(8))
	if result.Text != "False" {
		t.Fatalf("expected False, got %+v", result)
	}
}

func TestIfElseInvokesTheSelectedBranch(t *testing.T) {
	prog := compileToLIR(t, "Main", "pub x = 1\n")
	f := vm.ForModule(prog, nil)

	// Build two zero-arg closures directly on the heap: one returning
	// True's complement-of-itself marker (1), the other returning 0.
	thenStart := len(prog.Instructions)
	prog.Instructions = append(prog.Instructions,
		lir.Instruction{Op: lir.OpPushConstant, Constant: heap.Int(1)},
		lir.Instruction{Op: lir.OpReturn},
	)
	elseStart := len(prog.Instructions)
	prog.Instructions = append(prog.Instructions,
		lir.Instruction{Op: lir.OpPushConstant, Constant: heap.Int(0)},
		lir.Instruction{Op: lir.OpReturn},
	)

	thenHandle := f.Heap.Allocate(&heap.Object{Kind: heap.KindFunction, Closure: &heap.Closure{BodyStart: thenStart}})
	elseHandle := f.Heap.Allocate(&heap.Object{Kind: heap.KindFunction, Closure: &heap.Closure{BodyStart: elseStart}})

	result := runBuiltin(t, f, "ifElse", heap.True, heap.Pointer(thenHandle), heap.Pointer(elseHandle))
	if result.Kind != heap.KindSmallInt || result.Int != 1 {
		t.Fatalf("expected the then-branch's value 1, got %+v", result)
	}
}

// runBuiltin invokes name directly via InvokeValue, driving f.Run until
// it settles, and returns the produced value (panicking the test on a
// fiber Panic so builtin-level tests read like simple expect-this-value
// assertions).
func runBuiltin(t *testing.T, f *vm.Fiber, name string, args ...heap.InlineObject) heap.InlineObject {
	t.Helper()
	f.Status = vm.StatusRunning
	base := len(f.Stack)
	frames := len(f.Frames)
	f.InvokeValue(heap.BuiltinRef(name), args, heap.Int(0))
	// A builtin that invokes a function (ifElse, functionRun) pushes a
	// frame; step one instruction at a time until that frame returns, so
	// Run never continues into the module body behind it.
	for i := 0; i < 1000 && f.Status == vm.StatusRunning && len(f.Frames) > frames; i++ {
		f.Run(1)
	}
	if f.Status == vm.StatusPanicked {
		t.Fatalf("builtin %s panicked: reason kind %v", name, f.PanicReason.Kind)
	}
	if len(f.Stack) <= base {
		t.Fatalf("builtin %s did not push a result", name)
	}
	return f.Stack[len(f.Stack)-1]
}

func TestListGetRoundTrips(t *testing.T) {
	prog := compileToLIR(t, "Main", "pub x = 1\n")
	f := vm.ForModule(prog, nil)
	handle := f.Heap.Allocate(&heap.Object{Kind: heap.KindList, Items: []heap.InlineObject{heap.Int(10), heap.Int(20), heap.Int(30)}})

	result := runBuiltin(t, f, "listGet", heap.Pointer(handle), heap.Int(1))
	if result.Kind != heap.KindSmallInt || result.Int != 20 {
		t.Fatalf("expected 20, got %+v", result)
	}
}

func TestTextConcatenateAndLength(t *testing.T) {
	prog := compileToLIR(t, "Main", "pub x = 1\n")
	f := vm.ForModule(prog, nil)
	a := f.Heap.Allocate(&heap.Object{Kind: heap.KindText, Text: "foo"})
	b := f.Heap.Allocate(&heap.Object{Kind: heap.KindText, Text: "bar"})

	result := runBuiltin(t, f, "textConcatenate", heap.Pointer(a), heap.Pointer(b))
	obj := f.Heap.Get(result.Handle)
	if obj == nil || obj.Text != "foobar" {
		t.Fatalf("expected \"foobar\", got %+v", obj)
	}

	length := runBuiltin(t, f, "textLength", result)
	if length.Int != 6 {
		t.Fatalf("expected length 6, got %d", length.Int)
	}
}

func TestPanicInstructionSetsStatusAndReason(t *testing.T) {
	prog := compileToLIR(t, "Main", "pub x = 1\n")
	prog.Instructions = []lir.Instruction{
		{Op: lir.OpPushConstant, Constant: heap.Int(0)},
		{Op: lir.OpPushConstant, Constant: heap.Int(0)},
		{Op: lir.OpPanic},
	}
	f := vm.ForModule(prog, nil)
	f.IP = 0
	f.Run(10)
	if f.Status != vm.StatusPanicked {
		t.Fatalf("expected Panicked, got %v", f.Status)
	}
}

func TestDropFrameLocalsLeavesNoLeakAfterReturn(t *testing.T) {
	f := runModule(t, "pub answer = 42\n")
	if f.Status != vm.StatusDone {
		t.Fatalf("expected Done, got %v", f.Status)
	}
	heap.Drop(f.Heap, f.Result)
	if f.Heap.Len() != 0 {
		t.Fatalf("expected an empty heap after dropping the result, got %d live objects", f.Heap.Len())
	}
}

func TestIntParseProducesOptionTag(t *testing.T) {
	prog := compileToLIR(t, "Main", "pub x = 1\n")
	f := vm.ForModule(prog, nil)
	digits := f.Heap.Allocate(&heap.Object{Kind: heap.KindText, Text: "123"})

	result := runBuiltin(t, f, "intParse", heap.Pointer(digits))
	obj := f.Heap.Get(result.Handle)
	if obj == nil || obj.Kind != heap.KindTag || obj.Symbol != "Some" {
		t.Fatalf("expected Some(123), got %+v", obj)
	}
	if obj.Payload.Kind != heap.KindSmallInt || obj.Payload.Int != 123 {
		t.Fatalf("expected payload 123, got %+v", obj.Payload)
	}
	heap.Drop(f.Heap, result)

	garbage := f.Heap.Allocate(&heap.Object{Kind: heap.KindText, Text: "nope"})
	result = runBuiltin(t, f, "intParse", heap.Pointer(garbage))
	if result.Kind != heap.KindInlineTag || result.Text != "None" {
		t.Fatalf("expected None, got %+v", result)
	}
}

// TestStructInsertReplacesWithoutDoubleFree guards against the
// structInsert bug where replacing an existing key's value dropped the
// old key/value by hand in addition to the old struct's own recursive
// drop-on-free, which would double-decrement the replaced field and
// eventually corrupt an unrelated live object.
func TestStructInsertReplacesWithoutDoubleFree(t *testing.T) {
	prog := compileToLIR(t, "Main", "pub x = 1\n")
	f := vm.ForModule(prog, nil)
	key := f.Heap.Allocate(&heap.Object{Kind: heap.KindText, Text: "count"})
	oldValue := f.Heap.Allocate(&heap.Object{Kind: heap.KindText, Text: "old"})
	structHandle := f.Heap.Allocate(&heap.Object{Kind: heap.KindStruct, Fields: []heap.StructField{
		{Key: heap.Pointer(key), Value: heap.Pointer(oldValue)},
	}})

	newKey := heap.Pointer(key)
	heap.Dup(f.Heap, newKey)
	newValue := f.Heap.Allocate(&heap.Object{Kind: heap.KindText, Text: "new"})

	result := runBuiltin(t, f, "structInsert", heap.Pointer(structHandle), newKey, heap.Pointer(newValue))
	obj := f.Heap.Get(result.Handle)
	if obj == nil || len(obj.Fields) != 1 {
		t.Fatalf("expected a single-field struct, got %+v", obj)
	}
	valueObj := f.Heap.Get(obj.Fields[0].Value.Handle)
	if valueObj == nil || valueObj.Text != "new" {
		t.Fatalf("expected the replaced value \"new\", got %+v", valueObj)
	}

	heap.Drop(f.Heap, result)
	if f.Heap.Len() != 0 {
		t.Fatalf("expected an empty heap after dropping the result, got %d live objects", f.Heap.Len())
	}
}

func TestListRemoveAtDropsExactlyOnce(t *testing.T) {
	prog := compileToLIR(t, "Main", "pub x = 1\n")
	f := vm.ForModule(prog, nil)
	keep := f.Heap.Allocate(&heap.Object{Kind: heap.KindText, Text: "keep"})
	removed := f.Heap.Allocate(&heap.Object{Kind: heap.KindText, Text: "removed"})
	list := f.Heap.Allocate(&heap.Object{Kind: heap.KindList, Items: []heap.InlineObject{
		heap.Pointer(keep), heap.Pointer(removed),
	}})

	result := runBuiltin(t, f, "listRemoveAt", heap.Pointer(list), heap.Int(1))
	obj := f.Heap.Get(result.Handle)
	if obj == nil || len(obj.Items) != 1 {
		t.Fatalf("expected a single-item list, got %+v", obj)
	}
	heap.Drop(f.Heap, result)
	if f.Heap.Len() != 0 {
		t.Fatalf("expected an empty heap after dropping the result, got %d live objects", f.Heap.Len())
	}
}

func TestTagGetValueAndWithoutValue(t *testing.T) {
	prog := compileToLIR(t, "Main", "pub x = 1\n")
	f := vm.ForModule(prog, nil)
	payload := f.Heap.Allocate(&heap.Object{Kind: heap.KindText, Text: "payload"})
	tagHandle := f.Heap.Allocate(&heap.Object{Kind: heap.KindTag, Symbol: "Some", Payload: heap.Pointer(payload)})

	heap.Dup(f.Heap, heap.Pointer(tagHandle))
	value := runBuiltin(t, f, "tagGetValue", heap.Pointer(tagHandle))
	obj := f.Heap.Get(value.Handle)
	if obj == nil || obj.Text != "payload" {
		t.Fatalf("expected \"payload\", got %+v", obj)
	}
	heap.Drop(f.Heap, value)

	bare := runBuiltin(t, f, "tagWithoutValue", heap.Pointer(tagHandle))
	if bare.Kind != heap.KindInlineTag || bare.Text != "Some" {
		t.Fatalf("expected a bare Tag(Some), got %+v", bare)
	}
}
