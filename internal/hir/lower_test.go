package hir_test

import (
	"testing"

	"candy/internal/ast"
	"candy/internal/cst"
	"candy/internal/diag"
	"candy/internal/hir"
	"candy/internal/rcst"
	"candy/internal/source"
)

func lowerSource(t *testing.T, moduleName, src string) (*hir.Body, *diag.Bag) {
	t.Helper()
	bag := diag.NewBag(1000)
	rc := rcst.Parse(source.FileID(0), []byte(src))
	if got := rc.Print(); got != src {
		t.Fatalf("round-trip mismatch:\n got: %q\nwant: %q", got, src)
	}
	c := cst.Lower(rc, bag)
	a := ast.Lower(c, bag)
	return hir.Lower(moduleName, a, bag), bag
}

func TestLowerSimpleAssignmentExports(t *testing.T) {
	body, bag := lowerSource(t, "Main", "pub answer = 42\n")
	if bag.HasErrors() {
		t.Fatalf("unexpected diagnostics: %+v", bag.Items())
	}
	ret := body.ReturnID()
	exports := body.Get(ret)
	if exports == nil || exports.Kind != hir.KindStruct {
		t.Fatalf("expected final expression to be the exports struct, got %+v", exports)
	}
	if len(exports.Keys) == 0 {
		t.Fatalf("expected at least one export, got none")
	}
}

func TestLowerUnknownReference(t *testing.T) {
	_, bag := lowerSource(t, "Main", "x = doesNotExist\n")
	found := false
	for _, d := range bag.Items() {
		if d.Code == diag.CodeUnknownReference {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected an UnknownReference diagnostic, got %+v", bag.Items())
	}
}

func TestLowerFunctionSugarAssignment(t *testing.T) {
	body, bag := lowerSource(t, "Main", "pub add a b = a\n")
	if bag.HasErrors() {
		t.Fatalf("unexpected diagnostics: %+v", bag.Items())
	}
	var sawFunction bool
	for _, id := range body.IDs {
		if expr := body.Get(id); expr.Kind == hir.KindFunction && len(expr.Params) == 2 {
			sawFunction = true
		}
	}
	if !sawFunction {
		t.Fatalf("expected a two-parameter function from `add a b = a` sugar")
	}
}

func TestLowerNeedsArity(t *testing.T) {
	_, bag := lowerSource(t, "Main", "x = needs True ok extra\n")
	found := false
	for _, d := range bag.Items() {
		if d.Code == diag.CodeNeedsWithWrongNumberOfArguments {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected NeedsWithWrongNumberOfArguments, got %+v", bag.Items())
	}
}

func TestLowerBuiltinsModuleSparkles(t *testing.T) {
	body, bag := lowerSource(t, hir.BuiltinModule, "")
	if bag.HasErrors() {
		t.Fatalf("unexpected diagnostics: %+v", bag.Items())
	}
	ret := body.ReturnID()
	exports := body.Get(ret)
	if exports == nil || exports.Kind != hir.KindStruct {
		t.Fatalf("expected exports struct, got %+v", exports)
	}
	if len(exports.Keys) < len(hir.BuiltinNames) {
		t.Fatalf("expected Builtins exports to include every sparkles entry, got %d keys", len(exports.Keys))
	}
}

func TestLowerUseWithLiteralPathProducesUseModule(t *testing.T) {
	body, bag := lowerSource(t, "Main", "pub other = use \"Other\"\n")
	if bag.HasErrors() {
		t.Fatalf("unexpected diagnostics: %+v", bag.Items())
	}
	var sawUseModule bool
	for _, id := range body.IDs {
		if e := body.Get(id); e.Kind == hir.KindUseModule && len(e.RelativePath) == 1 && e.RelativePath[0] == "Other" {
			sawUseModule = true
		}
	}
	if !sawUseModule {
		t.Fatalf("expected `use \"Other\"` to lower to a KindUseModule with RelativePath [Other]")
	}
}

func TestLowerUseWithDynamicArgumentStaysAnOrdinaryCall(t *testing.T) {
	body, bag := lowerSource(t, "Main", "pickPath x = use x\n")
	if bag.HasErrors() {
		t.Fatalf("unexpected diagnostics: %+v", bag.Items())
	}
	for _, id := range body.IDs {
		if e := body.Get(id); e.Kind == hir.KindUseModule {
			t.Fatalf("a non-literal `use` argument must not resolve to a static import, got %+v", e)
		}
	}
}
