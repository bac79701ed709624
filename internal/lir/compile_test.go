package lir_test

import (
	"strings"
	"testing"

	"candy/internal/ast"
	"candy/internal/config"
	"candy/internal/cst"
	"candy/internal/diag"
	"candy/internal/hir"
	"candy/internal/lir"
	"candy/internal/mir"
	"candy/internal/rcst"
	"candy/internal/source"
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

func TestCompileProducesReturnTerminatedModuleBody(t *testing.T) {
	prog := compileToLIR(t, "Main", "pub answer = 42\n")
	if len(prog.Instructions) == 0 {
		t.Fatalf("expected at least one instruction")
	}
	last := prog.Instructions[len(prog.Instructions)-1]
	if last.Op != lir.OpReturn {
		t.Fatalf("expected the module body to end in a return, got %v", last.Op)
	}
}

func TestCompileFunctionEmitsCreateFunction(t *testing.T) {
	prog := compileToLIR(t, "Main", "pub add a b = a\n")
	var sawCreateFunction bool
	for _, instr := range prog.Instructions {
		if instr.Op == lir.OpCreateFunction {
			sawCreateFunction = true
		}
	}
	if !sawCreateFunction {
		t.Fatalf("expected a createFunction instruction for `add`")
	}
}

func TestDumpRichProducesOneLinePerInstruction(t *testing.T) {
	prog := compileToLIR(t, "Main", "pub answer = 42\n")
	var buf strings.Builder
	if err := prog.DumpRich(&buf); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != len(prog.Instructions) {
		t.Fatalf("expected %d lines, got %d", len(prog.Instructions), len(lines))
	}
}

func TestMarshalDebugRoundTripsOpSequence(t *testing.T) {
	prog := compileToLIR(t, "Main", "pub answer = 42\n")
	data, err := prog.MarshalDebug()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	module, instructions, bodyStart, err := lir.UnmarshalDebug(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if module != prog.Module || bodyStart != prog.ModuleBodyStart {
		t.Fatalf("expected module/bodyStart to round-trip, got %q/%d", module, bodyStart)
	}
	if len(instructions) != len(prog.Instructions) {
		t.Fatalf("expected %d instructions, got %d", len(prog.Instructions), len(instructions))
	}
	for i, instr := range instructions {
		if instr.Op != prog.Instructions[i].Op {
			t.Fatalf("instruction %d: op mismatch: got %v want %v", i, instr.Op, prog.Instructions[i].Op)
		}
	}
}
