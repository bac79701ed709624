package fuzz_test

import (
	"testing"

	"candy/internal/ast"
	"candy/internal/config"
	"candy/internal/cst"
	"candy/internal/diag"
	"candy/internal/fuzz"
	"candy/internal/hir"
	"candy/internal/lir"
	"candy/internal/mir"
	"candy/internal/rcst"
	"candy/internal/source"
	"candy/internal/vm"
)

func compileWithFuzzTracing(t *testing.T, moduleName, src string) *lir.Program {
	t.Helper()
	bag := diag.NewBag(1000)
	rc := rcst.Parse(source.FileID(0), []byte(src))
	c := cst.Lower(rc, bag)
	a := ast.Lower(c, bag)
	h := hir.Lower(moduleName, a, bag)
	if bag.HasErrors() {
		t.Fatalf("unexpected diagnostics: %+v", bag.Items())
	}
	body := mir.Lower(moduleName, h, config.TracingConfig{RegisterFuzzables: config.All})
	ctx := mir.NewContext(nil, moduleName, 8)
	mir.Optimize(ctx, body)
	return lir.Compile(moduleName, body)
}

func TestCollectFindsACaptureFreeTopLevelFunction(t *testing.T) {
	prog := compileWithFuzzTracing(t, "Main", "pub identity a = a\n")
	collector, status := fuzz.Collect(prog)
	if status != vm.StatusDone {
		t.Fatalf("expected module body to finish, got %v", status)
	}
	if len(collector.Records) == 0 {
		t.Fatalf("expected identity to be announced as fuzzable")
	}
}

func TestCollectSkipsAFunctionThatCapturesAnOuterBinding(t *testing.T) {
	prog := compileWithFuzzTracing(t, "Main", "n = 10\npub addN a = intAdd a n\n")
	collector, status := fuzz.Collect(prog)
	if status != vm.StatusDone {
		t.Fatalf("expected module body to finish, got %v", status)
	}
	for _, rec := range collector.Records {
		if rec.NumArgs == 1 {
			t.Fatalf("addN captures n and should not have been announced as fuzzable: %+v", rec)
		}
	}
}

func TestCollectWithoutTracingFindsNothing(t *testing.T) {
	bag := diag.NewBag(1000)
	rc := rcst.Parse(source.FileID(0), []byte("pub identity a = a\n"))
	c := cst.Lower(rc, bag)
	a := ast.Lower(c, bag)
	h := hir.Lower("Main", a, bag)
	body := mir.Lower("Main", h, config.TracingConfig{})
	ctx := mir.NewContext(nil, "Main", 8)
	mir.Optimize(ctx, body)
	prog := lir.Compile("Main", body)

	collector, _ := fuzz.Collect(prog)
	if len(collector.Records) != 0 {
		t.Fatalf("expected no fuzzable functions without RegisterFuzzables, got %+v", collector.Records)
	}
}

func TestRunExercisesGeneratedInputsWithoutCrashingTheFuzzer(t *testing.T) {
	prog := compileWithFuzzTracing(t, "Main", "pub identity a = a\n")
	collector, status := fuzz.Collect(prog)
	if status != vm.StatusDone {
		t.Fatalf("expected module body to finish, got %v", status)
	}
	if len(collector.Records) == 0 {
		t.Fatalf("expected identity to be announced as fuzzable")
	}

	// identity never panics, so no amount of fuzzing should report a
	// failing case; the seed is fixed for reproducibility.
	failures := fuzz.Run(prog, collector, fuzz.DefaultSymbols, 20, 1)
	if len(failures) != 0 {
		t.Fatalf("expected identity to never fail, got %+v", failures)
	}
}
